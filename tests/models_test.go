// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"

	"github.com/aimarket/affiliate-engine/models"
	testingutil "github.com/aimarket/affiliate-engine/testing"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "companies", models.Company{}.TableName())
	assert.Equal(t, "ref_codes", models.RefCode{}.TableName())
	assert.Equal(t, "clicks", models.Click{}.TableName())
	assert.Equal(t, "conversions", models.Conversion{}.TableName())
	assert.Equal(t, "invoices", models.Invoice{}.TableName())
	assert.Equal(t, "payouts", models.Payout{}.TableName())
	assert.Equal(t, "transactions", models.Transaction{}.TableName())
	assert.Equal(t, "webhook_settings", models.WebhookSettings{}.TableName())
	assert.Equal(t, "webhook_delivery_logs", models.WebhookDeliveryLog{}.TableName())
	assert.Equal(t, "link_settings", models.LinkSettings{}.TableName())
}

func TestConversionStateHelpers(t *testing.T) {
	t.Run("FreshConversionIsUnlocked", func(t *testing.T) {
		c := &models.Conversion{Status: models.ConversionStatusPending}
		assert.False(t, c.IsBilled())
		assert.False(t, c.IsPaid())
		assert.False(t, c.IsLocked())
		assert.Nil(t, c.PaidAt())
	})

	t.Run("BilledConversionIsLocked", func(t *testing.T) {
		now := utils.UTCNow()
		c := &models.Conversion{Status: models.ConversionStatusApproved, BilledAt: &now}
		assert.True(t, c.IsBilled())
		assert.False(t, c.IsPaid())
		assert.True(t, c.IsLocked())
	})

	t.Run("PaidAtReadFromMetadata", func(t *testing.T) {
		c := &models.Conversion{
			Status:   models.ConversionStatusApproved,
			Metadata: []byte(`{"paid_at":"2026-08-15T10:00:00Z"}`),
		}
		paidAt := c.PaidAt()
		require.NotNil(t, paidAt)
		assert.Equal(t, 2026, paidAt.Year())
		assert.True(t, c.IsPaid())
		assert.True(t, c.IsLocked())
	})

	t.Run("GarbageMetadataMeansUnpaid", func(t *testing.T) {
		c := &models.Conversion{Status: models.ConversionStatusApproved, Metadata: []byte(`{`)}
		assert.Nil(t, c.PaidAt())
		assert.False(t, c.IsPaid())
	})
}

func TestModelUUIDsAssignedOnCreate(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)

		t.Run("Company", func(t *testing.T) {
			company, err := fixtures.CreateTestCompany()
			require.NoError(t, err)
			assert.NotZero(t, company.ID)
			assert.NotEmpty(t, company.UUID.String())
		})

		t.Run("TransactionGetsCorrelationID", func(t *testing.T) {
			company, err := fixtures.CreateTestCompany()
			require.NoError(t, err)
			tx, err := fixtures.CreateTestRecharge(company.ID, 1000)
			require.NoError(t, err)
			assert.NotEmpty(t, tx.UUID.String())
			assert.NotEmpty(t, tx.CorrelationID.String())
		})

		t.Run("ClickAndConversion", func(t *testing.T) {
			company, err := fixtures.CreateTestCompany()
			require.NoError(t, err)
			refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
			require.NoError(t, err)

			click, err := fixtures.CreateTestClick(refCode, "sess-model-1")
			require.NoError(t, err)
			assert.NotEmpty(t, click.UUID.String())

			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 1000)
			require.NoError(t, err)
			assert.NotEmpty(t, conversion.UUID.String())
		})

		return nil
	})
	require.NoError(t, err)
}

// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"
	"time"

	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	testingutil "github.com/aimarket/affiliate-engine/testing"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCompanyRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)

		t.Run("ByID", func(t *testing.T) {
			found, err := repo.ByID(ctx, company.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, company.Name, found.Name)
		})

		t.Run("ByIDNotFound", func(t *testing.T) {
			found, err := repo.ByID(ctx, 999999)
			assert.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("ByUUID", func(t *testing.T) {
			found, err := repo.ByUUID(ctx, company.UUID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, company.ID, found.ID)
		})

		t.Run("FilterByActive", func(t *testing.T) {
			companies, err := repo.ByFilter(ctx, models.CompanyFilter{IsActive: utils.ToPtr(true)}, "", 0, 0)
			require.NoError(t, err)
			assert.NotEmpty(t, companies)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestClickRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewClickRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)
		click, err := fixtures.CreateTestClick(refCode, "sess-repo-1")
		require.NoError(t, err)

		t.Run("ByDedupKey", func(t *testing.T) {
			found, err := repo.ByDedupKey(ctx, refCode.Code, "sess-repo-1", click.DedupBucket)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, click.ID, found.ID)

			missed, err := repo.ByDedupKey(ctx, refCode.Code, "sess-repo-1", click.DedupBucket.Add(-utils.ClickDedupBucket))
			require.NoError(t, err)
			assert.Nil(t, missed)
		})

		t.Run("LatestByRefCode", func(t *testing.T) {
			newer, err := fixtures.CreateTestClick(refCode, "sess-repo-2")
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Click{}).Where("id = ?", newer.ID).
				Update("timestamp", utils.UTCNow().Add(time.Minute)).Error)

			latest, err := repo.LatestByRefCode(ctx, refCode.Code)
			require.NoError(t, err)
			require.NotNil(t, latest)
			assert.Equal(t, newer.ID, latest.ID)
		})

		t.Run("UpdateValidityIsConditional", func(t *testing.T) {
			affected, err := repo.UpdateValidity(ctx, click.ID, false, models.FraudReasonManualOverride)
			require.NoError(t, err)
			assert.Equal(t, int64(1), affected)

			// Same verdict again touches nothing.
			affected, err = repo.UpdateValidity(ctx, click.ID, false, models.FraudReasonManualOverride)
			require.NoError(t, err)
			assert.Equal(t, int64(0), affected)
		})

		t.Run("CountBySession", func(t *testing.T) {
			count, err := repo.CountBySession(ctx, company.ID, "sess-repo-1", utils.UTCNow().Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		t.Run("CountryBreakdown", func(t *testing.T) {
			buckets, err := repo.CountryBreakdown(ctx, company.ID, nil, nil)
			require.NoError(t, err)
			require.Len(t, buckets, 1)
			assert.Equal(t, "US", buckets[0].Key)
			assert.Equal(t, int64(2), buckets[0].Count)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestConversionRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewConversionRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)

		t.Run("ByExternalID", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 10000)
			require.NoError(t, err)

			found, err := repo.ByExternalID(ctx, company.ID, refCode.Code, conversion.ExternalConversionID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, conversion.ID, found.ID)

			missed, err := repo.ByExternalID(ctx, company.ID, refCode.Code, "never-seen")
			require.NoError(t, err)
			assert.Nil(t, missed)
		})

		t.Run("UpdateGuardedReportsRows", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 10000)
			require.NoError(t, err)

			affected, err := repo.UpdateGuarded(ctx, conversion.ID,
				map[string]any{"status = ?": models.ConversionStatusPending},
				map[string]any{"status": models.ConversionStatusApproved, "updated_at": utils.UTCNow()},
			)
			require.NoError(t, err)
			assert.Equal(t, int64(1), affected)

			affected, err = repo.UpdateGuarded(ctx, conversion.ID,
				map[string]any{"status = ?": models.ConversionStatusPending},
				map[string]any{"status": models.ConversionStatusApproved},
			)
			require.NoError(t, err)
			assert.Equal(t, int64(0), affected)
		})

		t.Run("ListBillableSelectsApprovedUnbilled", func(t *testing.T) {
			approved, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)
			billed, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).Where("id = ?", billed.ID).
				Update("billed_at", utils.UTCNow()).Error)

			billable, err := repo.ListBillable(ctx, company.ID, nil, nil, false)
			require.NoError(t, err)

			ids := make([]uint, 0, len(billable))
			for _, c := range billable {
				ids = append(ids, c.ID)
			}
			assert.Contains(t, ids, approved.ID)
			assert.NotContains(t, ids, billed.ID)
		})

		t.Run("SumCommission", func(t *testing.T) {
			status := models.ConversionStatusApproved
			commission, revenue, err := repo.SumCommission(ctx, models.ConversionFilter{
				CompanyID: &company.ID,
				Status:    &status,
			})
			require.NoError(t, err)
			assert.Greater(t, commission, int64(0))
			assert.Greater(t, revenue, commission)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestTransactionRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewTransactionRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)

		_, err = fixtures.CreateTestRecharge(company.ID, 30000)
		require.NoError(t, err)
		recharge, err := fixtures.CreateTestRecharge(company.ID, 20000)
		require.NoError(t, err)

		spend := &models.Transaction{
			CompanyID: company.ID,
			Type:      models.TransactionTypeSpend,
			Status:    models.TransactionStatusCompleted,
			Amount:    -10000,
			Currency:  utils.DefaultCurrency,
		}
		require.NoError(t, repo.Save(ctx, spend))

		t.Run("SumCompletedByCompany", func(t *testing.T) {
			balance, err := repo.SumCompletedByCompany(ctx, company.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(40000), balance)
		})

		t.Run("PendingRowsExcludedFromBalance", func(t *testing.T) {
			pending := &models.Transaction{
				CompanyID: company.ID,
				Type:      models.TransactionTypeRecharge,
				Status:    models.TransactionStatusPending,
				Amount:    99999,
				Currency:  utils.DefaultCurrency,
			}
			require.NoError(t, repo.Save(ctx, pending))

			balance, err := repo.SumCompletedByCompany(ctx, company.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(40000), balance)
		})

		t.Run("LastByType", func(t *testing.T) {
			last, err := repo.LastByType(ctx, company.ID, models.TransactionTypeRecharge)
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.Equal(t, recharge.UUID, last.UUID)
		})

		t.Run("ByUUID", func(t *testing.T) {
			found, err := repo.ByUUID(ctx, recharge.UUID.String())
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, recharge.ID, found.ID)
		})

		t.Run("CashflowTimeline", func(t *testing.T) {
			days, err := repo.CashflowTimeline(ctx, company.ID, utils.UTCNow().AddDate(0, 0, -7))
			require.NoError(t, err)
			require.NotEmpty(t, days)
			assert.Equal(t, int64(50000), days[0].Inflow)
			assert.Equal(t, int64(10000), days[0].Outflow)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestInvoiceRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewInvoiceRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)

		t.Run("NextSequenceFollowsInvoiceCount", func(t *testing.T) {
			first, err := repo.NextSequence(ctx, company.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1), first)

			_, err = fixtures.CreateTestInvoice(company.ID, 1000)
			require.NoError(t, err)

			second, err := repo.NextSequence(ctx, company.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), second)
		})

		t.Run("UnpaidAggregate", func(t *testing.T) {
			_, err := fixtures.CreateTestInvoice(company.ID, 7000)
			require.NoError(t, err)
			_, err = fixtures.CreateTestInvoice(company.ID, 3000)
			require.NoError(t, err)

			// Includes the invoice created by the sequence subtest above.
			amount, count, err := repo.UnpaidAggregate(ctx, company.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(11000), amount)
			assert.Equal(t, int64(3), count)
		})

		t.Run("UpdateStatusGuarded", func(t *testing.T) {
			invoice, err := fixtures.CreateTestInvoice(company.ID, 5000)
			require.NoError(t, err)

			now := utils.UTCNow()
			affected, err := repo.UpdateStatusGuarded(ctx, invoice.ID,
				[]models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusSent},
				models.InvoiceStatusPaid, &now)
			require.NoError(t, err)
			assert.Equal(t, int64(1), affected)

			// A settled invoice is no longer in the open set.
			affected, err = repo.UpdateStatusGuarded(ctx, invoice.ID,
				[]models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusSent},
				models.InvoiceStatusCanceled, nil)
			require.NoError(t, err)
			assert.Equal(t, int64(0), affected)
		})

		return nil
	})
	require.NoError(t, err)
}

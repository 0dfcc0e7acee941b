// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"fmt"
	"testing"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	testingutil "github.com/aimarket/affiliate-engine/testing"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClickFlow(testDB *testingutil.TestDB) businessflow.ClickFlow {
	return newClickFlowWithTracking(testDB, &config.TrackingConfig{})
}

func newClickFlowWithTracking(testDB *testingutil.TestDB, tracking *config.TrackingConfig) businessflow.ClickFlow {
	return businessflow.NewClickFlow(
		repository.NewClickRepository(testDB.DB),
		repository.NewRefCodeRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		testDB.DB,
		nil, // velocity counting is inert without the cache
		&config.CacheConfig{},
		tracking,
	)
}

func TestRecordClick(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newClickFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)

		t.Run("RecordsValidClick", func(t *testing.T) {
			result, err := flow.RecordClick(ctx, &dto.RecordClickRequest{
				RefCode:   refCode.Code,
				SessionID: "sess-valid-1",
				Country:   "us",
				UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
			}, metadata)
			require.NoError(t, err)
			assert.False(t, result.Deduplicated)
			assert.True(t, result.IsValid)
			assert.Nil(t, result.FraudReason)
			assert.NotEmpty(t, result.UUID)
		})

		t.Run("DeduplicatesSameSessionInBucket", func(t *testing.T) {
			req := &dto.RecordClickRequest{RefCode: refCode.Code, SessionID: "sess-dup-1"}
			first, err := flow.RecordClick(ctx, req, metadata)
			require.NoError(t, err)
			assert.False(t, first.Deduplicated)

			second, err := flow.RecordClick(ctx, req, metadata)
			require.NoError(t, err)
			assert.True(t, second.Deduplicated)
			assert.Equal(t, first.UUID, second.UUID)
		})

		t.Run("FlagsDuplicateSessionAcrossBuckets", func(t *testing.T) {
			earlier := utils.UTCNow().Add(-2 * time.Hour)
			_, err := flow.RecordClick(ctx, &dto.RecordClickRequest{
				RefCode:   refCode.Code,
				SessionID: "sess-repeat",
				Timestamp: &earlier,
			}, metadata)
			require.NoError(t, err)

			result, err := flow.RecordClick(ctx, &dto.RecordClickRequest{
				RefCode:   refCode.Code,
				SessionID: "sess-repeat",
			}, metadata)
			require.NoError(t, err)
			assert.False(t, result.Deduplicated)
			assert.False(t, result.IsValid)
			require.NotNil(t, result.FraudReason)
			assert.Equal(t, string(models.FraudReasonDuplicateSession), *result.FraudReason)
		})

		t.Run("FlagsInactiveRefCode", func(t *testing.T) {
			inactive, err := fixtures.CreateTestRefCode(company.ID, 10)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.RefCode{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

			result, err := flow.RecordClick(ctx, &dto.RecordClickRequest{
				RefCode:   inactive.Code,
				SessionID: "sess-inactive-1",
			}, metadata)
			require.NoError(t, err)
			assert.False(t, result.IsValid)
			require.NotNil(t, result.FraudReason)
			assert.Equal(t, string(models.FraudReasonInactiveRefCode), *result.FraudReason)
		})

		t.Run("RejectsInactiveRefCodeWhenConfigured", func(t *testing.T) {
			strict := newClickFlowWithTracking(testDB, &config.TrackingConfig{RejectInactiveRefCodes: true})

			inactive, err := fixtures.CreateTestRefCode(company.ID, 10)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.RefCode{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

			_, err = strict.RecordClick(ctx, &dto.RecordClickRequest{
				RefCode:   inactive.Code,
				SessionID: "sess-inactive-2",
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsRefCodeInactive(err))

			// Nothing is recorded in reject mode.
			var count int64
			require.NoError(t, testDB.DB.Model(&models.Click{}).Where("session_id = ?", "sess-inactive-2").Count(&count).Error)
			assert.Equal(t, int64(0), count)
		})

		t.Run("RejectsUnknownRefCode", func(t *testing.T) {
			_, err := flow.RecordClick(ctx, &dto.RecordClickRequest{
				RefCode:   "NOPE",
				SessionID: "sess-unknown-1",
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsRefCodeNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestListClicks(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newClickFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			_, err := fixtures.CreateTestClick(refCode, fmt.Sprintf("sess-list-%d", i))
			require.NoError(t, err)
		}

		t.Run("PaginatesNewestFirst", func(t *testing.T) {
			result, err := flow.ListClicks(ctx, &dto.ListClicksRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  3,
			}, metadata)
			require.NoError(t, err)
			assert.Len(t, result.Items, 3)
			assert.Equal(t, int64(5), result.Pagination.TotalItems)
			assert.True(t, result.Pagination.HasNext)
		})

		t.Run("FiltersByValidity", func(t *testing.T) {
			result, err := flow.ListClicks(ctx, &dto.ListClicksRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
				IsValid:   utils.ToPtr(false),
			}, metadata)
			require.NoError(t, err)
			assert.Empty(t, result.Items)
		})

		t.Run("RejectsUnknownRange", func(t *testing.T) {
			_, err := flow.ListClicks(ctx, &dto.ListClicksRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
				Range:     "fortnight",
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidRange(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestUpdateClickValidity(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newClickFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)
		click, err := fixtures.CreateTestClick(refCode, "sess-correct-1")
		require.NoError(t, err)

		t.Run("CorrectsVerdict", func(t *testing.T) {
			result, err := flow.UpdateClickValidity(ctx, &dto.UpdateClickValidityRequest{
				CompanyID: company.ID,
				ClickID:   click.ID,
				IsValid:   false,
				Reason:    string(models.FraudReasonManualOverride),
				Note:      "confirmed bot traffic",
			}, metadata)
			require.NoError(t, err)
			assert.True(t, result.Changed)

			var reloaded models.Click
			require.NoError(t, testDB.DB.First(&reloaded, click.ID).Error)
			assert.False(t, reloaded.IsValid)
			require.NotNil(t, reloaded.FraudReason)
			assert.Equal(t, models.FraudReasonManualOverride, *reloaded.FraudReason)
		})

		t.Run("RepeatReportsUnchanged", func(t *testing.T) {
			result, err := flow.UpdateClickValidity(ctx, &dto.UpdateClickValidityRequest{
				CompanyID: company.ID,
				ClickID:   click.ID,
				IsValid:   false,
				Reason:    string(models.FraudReasonManualOverride),
			}, metadata)
			require.NoError(t, err)
			assert.False(t, result.Changed)
		})

		t.Run("OmittedReasonDefaultsToManualOverride", func(t *testing.T) {
			other, err := fixtures.CreateTestClick(refCode, "sess-correct-2")
			require.NoError(t, err)

			result, err := flow.UpdateClickValidity(ctx, &dto.UpdateClickValidityRequest{
				CompanyID: company.ID,
				ClickID:   other.ID,
				IsValid:   false,
			}, metadata)
			require.NoError(t, err)
			assert.True(t, result.Changed)

			var reloaded models.Click
			require.NoError(t, testDB.DB.First(&reloaded, other.ID).Error)
			require.NotNil(t, reloaded.FraudReason)
			assert.Equal(t, models.FraudReasonManualOverride, *reloaded.FraudReason)
		})

		t.Run("RejectsUnknownReason", func(t *testing.T) {
			_, err := flow.UpdateClickValidity(ctx, &dto.UpdateClickValidityRequest{
				CompanyID: company.ID,
				ClickID:   click.ID,
				IsValid:   true,
				Reason:    "gut_feeling",
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidFraudReason(err))
		})

		t.Run("RejectsUnknownClick", func(t *testing.T) {
			_, err := flow.UpdateClickValidity(ctx, &dto.UpdateClickValidityRequest{
				CompanyID: company.ID,
				ClickID:   999999,
				IsValid:   false,
				Reason:    string(models.FraudReasonManualOverride),
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsClickNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	testingutil "github.com/aimarket/affiliate-engine/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSettingsFlow(testDB *testingutil.TestDB) businessflow.SettingsFlow {
	return businessflow.NewSettingsFlow(
		repository.NewWebhookSettingsRepository(testDB.DB),
		repository.NewWebhookDeliveryLogRepository(testDB.DB),
		repository.NewLinkSettingsRepository(testDB.DB),
		repository.NewCompanyRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		testDB.DB,
	)
}

func TestWebhookSettings(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newSettingsFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)

		t.Run("UnconfiguredCompanyGetsEmptyResponse", func(t *testing.T) {
			result, err := flow.GetWebhookSettings(ctx, company.ID, metadata)
			require.NoError(t, err)
			assert.False(t, result.Configured)
		})

		t.Run("SaveAndReadBack", func(t *testing.T) {
			saved, err := flow.SaveWebhookSettings(ctx, &dto.SaveWebhookSettingsRequest{
				CompanyID:   company.ID,
				Endpoint:    "https://hooks.example.com/affiliate",
				Secret:      "super-secret-signing-key",
				Enabled:     true,
				MaxAttempts: 5,
				BackoffBase: "2s",
			}, metadata)
			require.NoError(t, err)
			assert.True(t, saved.Configured)

			result, err := flow.GetWebhookSettings(ctx, company.ID, metadata)
			require.NoError(t, err)
			assert.Equal(t, "https://hooks.example.com/affiliate", result.Endpoint)
			assert.True(t, result.Enabled)
			assert.Equal(t, 5, result.MaxAttempts)
		})

		t.Run("UpsertReplacesEndpoint", func(t *testing.T) {
			_, err := flow.SaveWebhookSettings(ctx, &dto.SaveWebhookSettingsRequest{
				CompanyID: company.ID,
				Endpoint:  "https://hooks.example.com/v2",
				Secret:    "super-secret-signing-key",
				Enabled:   false,
			}, metadata)
			require.NoError(t, err)

			result, err := flow.GetWebhookSettings(ctx, company.ID, metadata)
			require.NoError(t, err)
			assert.Equal(t, "https://hooks.example.com/v2", result.Endpoint)
			assert.False(t, result.Enabled)

			var count int64
			require.NoError(t, testDB.DB.Model(&models.WebhookSettings{}).
				Where("company_id = ?", company.ID).Count(&count).Error)
			assert.Equal(t, int64(1), count)
		})

		t.Run("RejectsBadBackoff", func(t *testing.T) {
			_, err := flow.SaveWebhookSettings(ctx, &dto.SaveWebhookSettingsRequest{
				CompanyID:   company.ID,
				Endpoint:    "https://hooks.example.com/affiliate",
				Secret:      "super-secret-signing-key",
				BackoffBase: "soon",
			}, metadata)
			require.Error(t, err)
		})

		t.Run("RejectsEmptyEndpoint", func(t *testing.T) {
			_, err := flow.SaveWebhookSettings(ctx, &dto.SaveWebhookSettingsRequest{
				CompanyID: company.ID,
				Endpoint:  "   ",
				Secret:    "super-secret-signing-key",
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsWebhookEndpointRequired(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestLinkSettings(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newSettingsFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)

		t.Run("SaveAndReadBack", func(t *testing.T) {
			_, err := flow.SaveLinkSettings(ctx, &dto.SaveLinkSettingsRequest{
				CompanyID:        company.ID,
				UTMDefaults:      map[string]string{"source": "affiliate", "medium": "referral"},
				ParamKeys:        map[string]string{"ref": "ref"},
				AllowlistDomains: []string{"shop.example.com"},
				Templates:        map[string]string{"default": "https://{domain}/l/{landingSlug}?{params}"},
			}, metadata)
			require.NoError(t, err)

			result, err := flow.GetLinkSettings(ctx, company.ID, metadata)
			require.NoError(t, err)
			assert.Equal(t, "affiliate", result.UTMDefaults["source"])
			assert.Equal(t, []string{"shop.example.com"}, result.AllowlistDomains)
		})

		t.Run("RejectsInactiveCompany", func(t *testing.T) {
			dormant, err := fixtures.CreateTestCompany()
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Company{}).Where("id = ?", dormant.ID).Update("is_active", false).Error)

			_, err = flow.GetLinkSettings(ctx, dormant.ID, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsCompanyInactive(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestWebhookDeliveryLog(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newSettingsFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)

		logRepo := repository.NewWebhookDeliveryLogRepository(testDB.DB)
		for i := 0; i < 3; i++ {
			require.NoError(t, logRepo.Save(ctx, &models.WebhookDeliveryLog{
				CompanyID:  company.ID,
				EventType:  models.WebhookEventConversionCreated,
				URL:        "https://hooks.example.com/affiliate",
				Attempt:    i + 1,
				StatusCode: 200,
				DurationMS: 42,
				Success:    true,
			}))
		}

		t.Run("ListsAttempts", func(t *testing.T) {
			result, err := flow.ListWebhookDeliveries(ctx, &dto.ListWebhookDeliveriesRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
			}, metadata)
			require.NoError(t, err)
			assert.Len(t, result.Items, 3)
			assert.Equal(t, string(models.WebhookEventConversionCreated), result.Items[0].EventType)
		})

		return nil
	})
	require.NoError(t, err)
}

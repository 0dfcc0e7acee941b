// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	testingutil "github.com/aimarket/affiliate-engine/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newReportFlow(testDB *testingutil.TestDB) businessflow.ReportFlow {
	return businessflow.NewReportFlow(
		repository.NewClickRepository(testDB.DB),
		repository.NewConversionRepository(testDB.DB),
		repository.NewCompanyRepository(testDB.DB),
		testDB.DB,
	)
}

func seedReportData(t *testing.T, testDB *testingutil.TestDB, fixtures *testingutil.TestFixtures) (*models.Company, *models.RefCode) {
	company, err := fixtures.CreateTestCompany()
	require.NoError(t, err)
	refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := fixtures.CreateTestClick(refCode, fmt.Sprintf("sess-report-%d", i))
		require.NoError(t, err)
	}
	click, err := fixtures.CreateTestClick(refCode, "sess-report-invalid")
	require.NoError(t, err)
	reason := models.FraudReasonDuplicateSession
	require.NoError(t, testDB.DB.Model(&models.Click{}).Where("id = ?", click.ID).
		Updates(map[string]any{"is_valid": false, "fraud_reason": reason}).Error)

	_, err = fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 10000)
	require.NoError(t, err)
	_, err = fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 20000)
	require.NoError(t, err)
	_, err = fixtures.CreateTestConversion(refCode, models.ConversionStatusReversed, 30000)
	require.NoError(t, err)

	return company, refCode
}

func TestReportKPIs(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newReportFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, _ := seedReportData(t, testDB, fixtures)

		t.Run("CountsClicksAndConversions", func(t *testing.T) {
			result, err := flow.GetKPIs(ctx, &dto.GetReportRequest{
				CompanyID: company.ID,
				Range:     "7d",
			}, metadata)
			require.NoError(t, err)
			report := result.Report
			assert.Equal(t, int64(5), report.TotalClicks)
			assert.Equal(t, int64(4), report.ValidClicks)
			assert.Equal(t, int64(1), report.InvalidClicks)
			assert.Equal(t, int64(1), report.PendingConversions)
			assert.Equal(t, int64(1), report.ApprovedConversions)
			assert.Equal(t, int64(1), report.ReversedConversions)
		})

		t.Run("ExcludesReversedFromCommission", func(t *testing.T) {
			result, err := flow.GetKPIs(ctx, &dto.GetReportRequest{
				CompanyID: company.ID,
			}, metadata)
			require.NoError(t, err)
			// Only the approved conversion counts: 10% of 20000.
			assert.Equal(t, int64(2000), result.Report.TotalCommission)
			assert.Equal(t, int64(20000), result.Report.TotalRevenue)
		})

		t.Run("RejectsUnknownRange", func(t *testing.T) {
			_, err := flow.GetKPIs(ctx, &dto.GetReportRequest{
				CompanyID: company.ID,
				Range:     "decade",
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidRange(err))
		})

		t.Run("RejectsUnknownCompany", func(t *testing.T) {
			_, err := flow.GetKPIs(ctx, &dto.GetReportRequest{CompanyID: 999999}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsCompanyNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestReportBreakdowns(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newReportFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, _ := seedReportData(t, testDB, fixtures)

		t.Run("TimelineHasDailyPoints", func(t *testing.T) {
			result, err := flow.GetTimeline(ctx, &dto.GetReportRequest{
				CompanyID: company.ID,
				Range:     "7d",
			}, metadata)
			require.NoError(t, err)
			require.NotEmpty(t, result.Points)

			var clicks int64
			for _, p := range result.Points {
				clicks += p.Clicks
			}
			assert.Equal(t, int64(5), clicks)
		})

		t.Run("GeoBreakdownGroupsByCountry", func(t *testing.T) {
			result, err := flow.GetGeoBreakdown(ctx, &dto.GetReportRequest{
				CompanyID: company.ID,
			}, metadata)
			require.NoError(t, err)
			require.Len(t, result.Entries, 1)
			assert.Equal(t, "US", result.Entries[0].Key)
			assert.Equal(t, int64(5), result.Entries[0].Count)
		})

		t.Run("DeviceBreakdownGroupsByClass", func(t *testing.T) {
			result, err := flow.GetDeviceBreakdown(ctx, &dto.GetReportRequest{
				CompanyID: company.ID,
			}, metadata)
			require.NoError(t, err)
			require.Len(t, result.Entries, 1)
			assert.Equal(t, string(models.DeviceClassDesktop), result.Entries[0].Key)
		})

		t.Run("TopRefCodesRankedByCommission", func(t *testing.T) {
			result, err := flow.GetTopRefCodes(ctx, &dto.GetReportRequest{
				CompanyID: company.ID,
			}, metadata)
			require.NoError(t, err)
			require.Len(t, result.Entries, 1)
			entry := result.Entries[0]
			assert.Equal(t, int64(4), entry.Clicks)
			assert.Equal(t, int64(2), entry.Conversions)
			// Reversed conversions contribute neither commission nor revenue.
			assert.Equal(t, int64(3000), entry.Commission)
			assert.Equal(t, int64(30000), entry.Revenue)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestExportReport(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newReportFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, _ := seedReportData(t, testDB, fixtures)

		t.Run("WritesReadableWorkbook", func(t *testing.T) {
			result, err := flow.ExportReport(ctx, &dto.ExportReportRequest{
				CompanyID: company.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Contains(t, result.FileName, ".xlsx")
			require.NotEmpty(t, result.Content)

			xl, err := excelize.OpenReader(bytes.NewReader(result.Content))
			require.NoError(t, err)
			defer func() { _ = xl.Close() }()

			assert.Contains(t, xl.GetSheetList(), "Summary")
			assert.Contains(t, xl.GetSheetList(), "Conversions")

			rows, err := xl.GetRows("Conversions")
			require.NoError(t, err)
			// Header plus the three seeded conversions.
			assert.Len(t, rows, 4)
		})

		return nil
	})
	require.NoError(t, err)
}

// Package businessflow contains the core business logic and use cases for reporting workflows
package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ReportFlow handles aggregate reporting over clicks and conversions
type ReportFlow interface {
	GetKPIs(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.KPIReportResponse, error)
	GetTimeline(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.TimelineResponse, error)
	GetGeoBreakdown(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.BreakdownResponse, error)
	GetDeviceBreakdown(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.BreakdownResponse, error)
	GetTopRefCodes(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.TopRefCodesResponse, error)
	ExportReport(ctx context.Context, req *dto.ExportReportRequest, metadata *ClientMetadata) (*dto.ExportReportResponse, error)
}

// ReportFlowImpl implements the reporting business flow
type ReportFlowImpl struct {
	clickRepo      repository.ClickRepository
	conversionRepo repository.ConversionRepository
	companyRepo    repository.CompanyRepository
	db             *gorm.DB
}

// NewReportFlow creates a new report flow instance
func NewReportFlow(
	clickRepo repository.ClickRepository,
	conversionRepo repository.ConversionRepository,
	companyRepo repository.CompanyRepository,
	db *gorm.DB,
) ReportFlow {
	return &ReportFlowImpl{
		clickRepo:      clickRepo,
		conversionRepo: conversionRepo,
		companyRepo:    companyRepo,
		db:             db,
	}
}

// GetKPIs aggregates the headline numbers for a range. The conversion rate is
// approved conversions per valid click; a range with no valid clicks reports
// zero rather than dividing by it.
func (s *ReportFlowImpl) GetKPIs(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.KPIReportResponse, error) {
	company, from, to, rangeKeyword, err := s.resolveScope(ctx, req.CompanyID, req.Range)
	if err != nil {
		return nil, NewBusinessError("KPI_REPORT_FAILED", "KPI report failed", err)
	}

	clickFilter := models.ClickFilter{CompanyID: &company.ID, TimestampAfter: from, TimestampBefore: to}
	totalClicks, err := s.clickRepo.Count(ctx, clickFilter)
	if err != nil {
		return nil, NewBusinessError("KPI_REPORT_FAILED", "Failed to count clicks", err)
	}

	validFilter := clickFilter
	validFilter.IsValid = utils.ToPtr(true)
	validClicks, err := s.clickRepo.Count(ctx, validFilter)
	if err != nil {
		return nil, NewBusinessError("KPI_REPORT_FAILED", "Failed to count valid clicks", err)
	}

	statusCounts := make(map[models.ConversionStatus]int64, 4)
	for _, status := range []models.ConversionStatus{
		models.ConversionStatusPending,
		models.ConversionStatusApproved,
		models.ConversionStatusReversed,
		models.ConversionStatusPaid,
	} {
		st := status
		count, err := s.conversionRepo.Count(ctx, models.ConversionFilter{
			CompanyID:       &company.ID,
			Status:          &st,
			TimestampAfter:  from,
			TimestampBefore: to,
		})
		if err != nil {
			return nil, NewBusinessError("KPI_REPORT_FAILED", "Failed to count conversions", err)
		}
		statusCounts[status] = count
	}

	// Commission and revenue exclude reversed conversions.
	var commission, revenue int64
	for _, status := range []models.ConversionStatus{models.ConversionStatusApproved, models.ConversionStatusPaid} {
		st := status
		c, r, err := s.conversionRepo.SumCommission(ctx, models.ConversionFilter{
			CompanyID:       &company.ID,
			Status:          &st,
			TimestampAfter:  from,
			TimestampBefore: to,
		})
		if err != nil {
			return nil, NewBusinessError("KPI_REPORT_FAILED", "Failed to sum commission", err)
		}
		commission += c
		revenue += r
	}

	settled := statusCounts[models.ConversionStatusApproved] + statusCounts[models.ConversionStatusPaid]
	var rate, epc, aov float64
	if validClicks > 0 {
		rate = float64(settled) / float64(validClicks)
		epc = float64(commission) / float64(validClicks)
	}
	if settled > 0 {
		aov = float64(revenue) / float64(settled)
	}

	return &dto.KPIReportResponse{
		Range: rangeKeyword,
		Report: dto.KPIReport{
			TotalClicks:         totalClicks,
			ValidClicks:         validClicks,
			InvalidClicks:       totalClicks - validClicks,
			PendingConversions:  statusCounts[models.ConversionStatusPending],
			ApprovedConversions: statusCounts[models.ConversionStatusApproved],
			ReversedConversions: statusCounts[models.ConversionStatusReversed],
			PaidConversions:     statusCounts[models.ConversionStatusPaid],
			TotalCommission:     commission,
			TotalRevenue:        revenue,
			ConversionRate:      rate,
			EarningsPerClick:    epc,
			AverageOrderValue:   aov,
		},
	}, nil
}

// GetTimeline merges the daily click and conversion series into one sequence
func (s *ReportFlowImpl) GetTimeline(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.TimelineResponse, error) {
	company, from, to, rangeKeyword, err := s.resolveScope(ctx, req.CompanyID, req.Range)
	if err != nil {
		return nil, NewBusinessError("TIMELINE_REPORT_FAILED", "Timeline report failed", err)
	}

	clickDays, err := s.clickRepo.DailyCounts(ctx, company.ID, from, to)
	if err != nil {
		return nil, NewBusinessError("TIMELINE_REPORT_FAILED", "Failed to build click timeline", err)
	}

	conversionDays, err := s.conversionRepo.DailyCounts(ctx, company.ID, from, to)
	if err != nil {
		return nil, NewBusinessError("TIMELINE_REPORT_FAILED", "Failed to build conversion timeline", err)
	}

	byDate := make(map[string]*dto.TimelinePoint)
	dates := make([]string, 0, len(clickDays)+len(conversionDays))
	for _, day := range clickDays {
		point := &dto.TimelinePoint{Date: day.Date, Clicks: day.Total, ValidClicks: day.Valid}
		byDate[day.Date] = point
		dates = append(dates, day.Date)
	}
	for _, day := range conversionDays {
		point, ok := byDate[day.Date]
		if !ok {
			point = &dto.TimelinePoint{Date: day.Date}
			byDate[day.Date] = point
			dates = append(dates, day.Date)
		}
		point.Conversions = day.Count
		point.Commission = day.Commission
	}

	// Both sources come back date-ordered; merge keeps order except for
	// conversion-only days, which a plain sort fixes.
	sortDates(dates)

	points := make([]dto.TimelinePoint, 0, len(dates))
	for _, d := range dates {
		points = append(points, *byDate[d])
	}

	return &dto.TimelineResponse{Range: rangeKeyword, Points: points}, nil
}

// GetGeoBreakdown groups valid clicks by country
func (s *ReportFlowImpl) GetGeoBreakdown(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.BreakdownResponse, error) {
	company, from, to, rangeKeyword, err := s.resolveScope(ctx, req.CompanyID, req.Range)
	if err != nil {
		return nil, NewBusinessError("GEO_REPORT_FAILED", "Geo report failed", err)
	}

	buckets, err := s.clickRepo.CountryBreakdown(ctx, company.ID, from, to)
	if err != nil {
		return nil, NewBusinessError("GEO_REPORT_FAILED", "Failed to group clicks by country", err)
	}

	return bucketsToBreakdown(rangeKeyword, buckets), nil
}

// GetDeviceBreakdown groups valid clicks by device class
func (s *ReportFlowImpl) GetDeviceBreakdown(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.BreakdownResponse, error) {
	company, from, to, rangeKeyword, err := s.resolveScope(ctx, req.CompanyID, req.Range)
	if err != nil {
		return nil, NewBusinessError("DEVICE_REPORT_FAILED", "Device report failed", err)
	}

	buckets, err := s.clickRepo.DeviceBreakdown(ctx, company.ID, from, to)
	if err != nil {
		return nil, NewBusinessError("DEVICE_REPORT_FAILED", "Failed to group clicks by device", err)
	}

	return bucketsToBreakdown(rangeKeyword, buckets), nil
}

// GetTopRefCodes ranks the company's ref codes by earned commission over a
// range. Reversed conversions are excluded, so a heavily charged-back code
// cannot top the list on raw volume.
func (s *ReportFlowImpl) GetTopRefCodes(ctx context.Context, req *dto.GetReportRequest, metadata *ClientMetadata) (*dto.TopRefCodesResponse, error) {
	company, from, to, rangeKeyword, err := s.resolveScope(ctx, req.CompanyID, req.Range)
	if err != nil {
		return nil, NewBusinessError("TOP_REF_CODES_FAILED", "Top ref codes report failed", err)
	}

	stats, err := s.conversionRepo.StatsByRefCode(ctx, company.ID, from, to)
	if err != nil {
		return nil, NewBusinessError("TOP_REF_CODES_FAILED", "Failed to rank ref codes", err)
	}

	clickBuckets, err := s.clickRepo.RefCodeBreakdown(ctx, company.ID, from, to)
	if err != nil {
		return nil, NewBusinessError("TOP_REF_CODES_FAILED", "Failed to count clicks per ref code", err)
	}
	clickCounts := make(map[string]int64, len(clickBuckets))
	for _, b := range clickBuckets {
		clickCounts[b.Key] = b.Count
	}

	const maxEntries = 10
	entries := make([]dto.TopRefCodeEntry, 0, maxEntries)
	for _, st := range stats {
		if len(entries) == maxEntries {
			break
		}
		entries = append(entries, dto.TopRefCodeEntry{
			RefCode:     st.RefCode,
			Clicks:      clickCounts[st.RefCode],
			Conversions: st.Conversions,
			Commission:  st.Commission,
			Revenue:     st.Revenue,
		})
	}

	return &dto.TopRefCodesResponse{Range: rangeKeyword, Entries: entries}, nil
}

// ExportReport writes the range's conversions into an XLSX workbook with a
// summary sheet on top
func (s *ReportFlowImpl) ExportReport(ctx context.Context, req *dto.ExportReportRequest, metadata *ClientMetadata) (*dto.ExportReportResponse, error) {
	company, from, to, rangeKeyword, err := s.resolveScope(ctx, req.CompanyID, req.Range)
	if err != nil {
		return nil, NewBusinessError("EXPORT_REPORT_FAILED", "Export report failed", err)
	}

	kpis, err := s.GetKPIs(ctx, &dto.GetReportRequest{CompanyID: req.CompanyID, Range: req.Range}, metadata)
	if err != nil {
		return nil, err
	}

	conversions, err := s.conversionRepo.ByFilter(ctx, models.ConversionFilter{
		CompanyID:       &company.ID,
		TimestampAfter:  from,
		TimestampBefore: to,
	}, "timestamp ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("EXPORT_REPORT_FAILED", "Failed to load conversions", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	summarySheet := "Summary"
	xl.SetSheetName(xl.GetSheetName(0), summarySheet)
	summaryRows := [][]string{
		{"metric", "value"},
		{"range", rangeKeyword},
		{"total_clicks", strconv.FormatInt(kpis.Report.TotalClicks, 10)},
		{"valid_clicks", strconv.FormatInt(kpis.Report.ValidClicks, 10)},
		{"pending_conversions", strconv.FormatInt(kpis.Report.PendingConversions, 10)},
		{"approved_conversions", strconv.FormatInt(kpis.Report.ApprovedConversions, 10)},
		{"reversed_conversions", strconv.FormatInt(kpis.Report.ReversedConversions, 10)},
		{"paid_conversions", strconv.FormatInt(kpis.Report.PaidConversions, 10)},
		{"total_commission", strconv.FormatInt(kpis.Report.TotalCommission, 10)},
		{"total_revenue", strconv.FormatInt(kpis.Report.TotalRevenue, 10)},
		{"conversion_rate", strconv.FormatFloat(kpis.Report.ConversionRate, 'f', 4, 64)},
	}
	for ri, row := range summaryRows {
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+1)
		record := row
		_ = xl.SetSheetRow(summarySheet, cellRef, &record)
	}

	conversionSheet := "Conversions"
	_, _ = xl.NewSheet(conversionSheet)
	header := []string{"uuid", "ref_code", "external_conversion_id", "type", "value", "currency", "rate", "rate_type", "commission", "status", "billed_at", "paid_at", "timestamp"}
	_ = xl.SetSheetRow(conversionSheet, "A1", &header)
	for ri, c := range conversions {
		billedAt := ""
		if c.BilledAt != nil {
			billedAt = c.BilledAt.UTC().Format(time.RFC3339)
		}
		paidAt := ""
		if pa := c.PaidAt(); pa != nil {
			paidAt = pa.UTC().Format(time.RFC3339)
		}
		record := []string{
			c.UUID.String(),
			c.RefCode,
			c.ExternalConversionID,
			c.ConversionType,
			strconv.FormatInt(c.ConversionValue, 10),
			c.Currency,
			strconv.FormatFloat(c.CommissionRate, 'f', 2, 64),
			string(c.RateType),
			strconv.FormatInt(c.CommissionAmount, 10),
			string(c.Status),
			billedAt,
			paidAt,
			c.Timestamp.UTC().Format(time.RFC3339),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(conversionSheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("EXPORT_REPORT_FAILED", "Failed to write workbook", err)
	}

	return &dto.ExportReportResponse{
		FileName: fmt.Sprintf("affiliate_report_%d_%s.xlsx", company.ID, utils.UTCNowFormat("20060102")),
		Content:  buf.Bytes(),
	}, nil
}

func (s *ReportFlowImpl) resolveScope(ctx context.Context, companyID uint, rangeKeyword string) (*models.Company, *time.Time, *time.Time, string, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, companyID)
	if err != nil {
		return nil, nil, nil, "", err
	}
	if rangeKeyword == "" {
		rangeKeyword = "all"
	}
	from, to, err := ResolveRange(rangeKeyword, utils.UTCNow())
	if err != nil {
		return nil, nil, nil, "", err
	}
	return company, from, to, rangeKeyword, nil
}

func bucketsToBreakdown(rangeKeyword string, buckets []*repository.BucketCount) *dto.BreakdownResponse {
	entries := make([]dto.BreakdownEntry, 0, len(buckets))
	for _, b := range buckets {
		key := b.Key
		if key == "" {
			key = "unknown"
		}
		entries = append(entries, dto.BreakdownEntry{Key: key, Count: b.Count})
	}
	return &dto.BreakdownResponse{Range: rangeKeyword, Entries: entries}
}

// sortDates orders YYYY-MM-DD keys; lexicographic order is chronological for
// this layout
func sortDates(dates []string) {
	for i := 1; i < len(dates); i++ {
		for j := i; j > 0 && dates[j] < dates[j-1]; j-- {
			dates[j], dates[j-1] = dates[j-1], dates[j]
		}
	}
}

package dto

// GetReportRequest bounds a reporting query to one company and range
type GetReportRequest struct {
	CompanyID uint   `json:"company_id" validate:"required"`
	Range     string `json:"range,omitempty"` // today, yesterday, 7d, 30d, 90d, all
}

// KPIReport aggregates the headline attribution numbers for a range
type KPIReport struct {
	TotalClicks         int64   `json:"total_clicks"`
	ValidClicks         int64   `json:"valid_clicks"`
	InvalidClicks       int64   `json:"invalid_clicks"`
	PendingConversions  int64   `json:"pending_conversions"`
	ApprovedConversions int64   `json:"approved_conversions"`
	ReversedConversions int64   `json:"reversed_conversions"`
	PaidConversions     int64   `json:"paid_conversions"`
	TotalCommission     int64   `json:"total_commission"` // Approved and paid, minor units
	TotalRevenue        int64   `json:"total_revenue"`
	ConversionRate      float64 `json:"conversion_rate"`    // Approved conversions per valid click
	EarningsPerClick    float64 `json:"earnings_per_click"` // Commission minor units per valid click
	AverageOrderValue   float64 `json:"average_order_value"`
}

// KPIReportResponse wraps the KPI report
type KPIReportResponse struct {
	Range  string    `json:"range"`
	Report KPIReport `json:"report"`
}

// TimelinePoint is one day of the activity timeline
type TimelinePoint struct {
	Date        string `json:"date"`
	Clicks      int64  `json:"clicks"`
	ValidClicks int64  `json:"valid_clicks"`
	Conversions int64  `json:"conversions"`
	Commission  int64  `json:"commission"`
}

// TimelineResponse represents the daily activity timeline
type TimelineResponse struct {
	Range  string          `json:"range"`
	Points []TimelinePoint `json:"points"`
}

// BreakdownEntry is one bucket of a grouped breakdown
type BreakdownEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// BreakdownResponse represents a grouped breakdown (geo or device)
type BreakdownResponse struct {
	Range   string           `json:"range"`
	Entries []BreakdownEntry `json:"entries"`
}

// TopRefCodeEntry is one ref code in the top performers listing
type TopRefCodeEntry struct {
	RefCode     string `json:"ref_code"`
	Clicks      int64  `json:"clicks"`
	Conversions int64  `json:"conversions"`
	Commission  int64  `json:"commission"` // Minor units
	Revenue     int64  `json:"revenue"`
}

// TopRefCodesResponse represents the best performing ref codes for a range
type TopRefCodesResponse struct {
	Range   string            `json:"range"`
	Entries []TopRefCodeEntry `json:"entries"`
}

// ExportReportRequest requests an XLSX export of the range
type ExportReportRequest struct {
	CompanyID uint   `json:"company_id" validate:"required"`
	Range     string `json:"range,omitempty"`
}

// ExportReportResponse carries the generated workbook
type ExportReportResponse struct {
	FileName string `json:"file_name"`
	Content  []byte `json:"-"` // Streamed as an attachment, never serialized
}

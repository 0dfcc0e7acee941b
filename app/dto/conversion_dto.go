package dto

import "time"

// IngestConversionRequest represents a server-to-server conversion postback
type IngestConversionRequest struct {
	CompanyID            uint       `json:"company_id" validate:"required"`
	RefCode              string     `json:"ref_code" validate:"required,max=64"`
	ExternalConversionID string     `json:"external_conversion_id" validate:"required,max=255"`
	ConversionType       string     `json:"conversion_type,omitempty" validate:"omitempty,max=32"`
	ConversionValue      int64      `json:"conversion_value" validate:"required,gt=0"` // Minor units
	Currency             string     `json:"currency,omitempty" validate:"omitempty,len=3"`
	SessionID            *string    `json:"session_id,omitempty"`
	Timestamp            *time.Time `json:"timestamp,omitempty"`
}

// IngestConversionResponse represents the ingest result
type IngestConversionResponse struct {
	UUID             string `json:"uuid"`
	Status           string `json:"status"`
	CommissionAmount int64  `json:"commission_amount"`
}

// ConversionActionRequest represents a lifecycle action on one conversion
type ConversionActionRequest struct {
	CompanyID    uint `json:"company_id" validate:"required"`
	ConversionID uint `json:"conversion_id" validate:"required"`
}

// BillConversionRequest attaches one approved conversion to an open invoice
type BillConversionRequest struct {
	CompanyID     uint   `json:"company_id" validate:"required"`
	ConversionID  uint   `json:"conversion_id" validate:"required"`
	InvoiceNumber string `json:"invoice_number" validate:"required,max=64"`
}

// ConversionActionResponse represents the action result
type ConversionActionResponse struct {
	Message string          `json:"message"`
	Item    *ConversionItem `json:"item,omitempty"`
}

// ListConversionsRequest represents a paginated conversion listing
type ListConversionsRequest struct {
	CompanyID uint    `json:"company_id" validate:"required"`
	Page      int     `json:"page" validate:"min=1"`
	PageSize  int     `json:"page_size" validate:"min=1,max=100"`
	Range     string  `json:"range,omitempty"`
	Status    *string `json:"status,omitempty"`
	RefCode   *string `json:"ref_code,omitempty"`
	Billed    *bool   `json:"billed,omitempty"`
	Paid      *bool   `json:"paid,omitempty"`
	Query     *string `json:"q,omitempty"` // Matches against external conversion ID
}

// ConversionItem is one conversion in a listing
type ConversionItem struct {
	UUID                 string     `json:"uuid"`
	RefCode              string     `json:"ref_code"`
	ExternalConversionID string     `json:"external_conversion_id"`
	ConversionType       string     `json:"conversion_type"`
	ConversionValue      int64      `json:"conversion_value"`
	Currency             string     `json:"currency"`
	CommissionRate       float64    `json:"commission_rate"`
	RateType             string     `json:"rate_type"`
	CommissionAmount     int64      `json:"commission_amount"`
	Status               string     `json:"status"`
	BilledAt             *time.Time `json:"billed_at,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	InvoiceID            *uint      `json:"invoice_id,omitempty"`
	Timestamp            time.Time  `json:"timestamp"`
}

// ListConversionsResponse represents the paginated conversion listing response
type ListConversionsResponse struct {
	Items      []ConversionItem `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}

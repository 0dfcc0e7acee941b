package dto

import "time"

// GenerateInvoiceRequest batches approved unbilled conversions into an invoice
type GenerateInvoiceRequest struct {
	CompanyID uint   `json:"company_id" validate:"required"`
	Range     string `json:"range,omitempty"` // Bounds the conversion selection, defaults to all
}

// GenerateInvoiceResponse represents the generated invoice
type GenerateInvoiceResponse struct {
	Message         string `json:"message"`
	InvoiceUUID     string `json:"invoice_uuid"`
	InvoiceNumber   string `json:"invoice_number"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ConversionCount int    `json:"conversion_count"`
}

// InvoiceActionRequest represents a lifecycle action on one invoice. Amount
// and PaymentMethod apply to mark-paid only; a zero amount settles the full
// invoice amount.
type InvoiceActionRequest struct {
	CompanyID     uint   `json:"company_id" validate:"required"`
	InvoiceID     uint   `json:"invoice_id" validate:"required"`
	Amount        int64  `json:"amount,omitempty" validate:"omitempty,gt=0"`
	PaymentMethod string `json:"payment_method,omitempty" validate:"omitempty,max=64"`
}

// InvoiceActionResponse represents the action result
type InvoiceActionResponse struct {
	Message string       `json:"message"`
	Item    *InvoiceItem `json:"item,omitempty"`
}

// ListInvoicesRequest represents a paginated invoice listing
type ListInvoicesRequest struct {
	CompanyID uint    `json:"company_id" validate:"required"`
	Page      int     `json:"page" validate:"min=1"`
	PageSize  int     `json:"page_size" validate:"min=1,max=100"`
	Status    *string `json:"status,omitempty"`
}

// InvoiceItem is one invoice in a listing
type InvoiceItem struct {
	UUID          string     `json:"uuid"`
	InvoiceNumber string     `json:"invoice_number"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ListInvoicesResponse represents the paginated invoice listing response
type ListInvoicesResponse struct {
	Items      []InvoiceItem  `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// GeneratePayoutRequest batches billed unpaid conversions into a payout
type GeneratePayoutRequest struct {
	CompanyID uint   `json:"company_id" validate:"required"`
	Range     string `json:"range,omitempty"`
}

// GeneratePayoutResponse represents the generated payout
type GeneratePayoutResponse struct {
	Message         string `json:"message"`
	PayoutUUID      string `json:"payout_uuid"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ConversionCount int    `json:"conversion_count"`
}

// ListPayoutsRequest represents a paginated payout listing
type ListPayoutsRequest struct {
	CompanyID uint    `json:"company_id" validate:"required"`
	Page      int     `json:"page" validate:"min=1"`
	PageSize  int     `json:"page_size" validate:"min=1,max=100"`
	Status    *string `json:"status,omitempty"`
}

// PayoutItem is one payout in a listing
type PayoutItem struct {
	UUID        string     `json:"uuid"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ListPayoutsResponse represents the paginated payout listing response
type ListPayoutsResponse struct {
	Items      []PayoutItem   `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

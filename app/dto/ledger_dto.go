package dto

import "time"

// RechargeRequest represents a balance top-up
type RechargeRequest struct {
	CompanyID     uint   `json:"company_id" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"` // Minor units
	PaymentMethod string `json:"payment_method,omitempty" validate:"omitempty,max=64"`
	Description   string `json:"description,omitempty" validate:"omitempty,max=512"`
}

// RechargeResponse represents the recharge result
type RechargeResponse struct {
	Message         string `json:"message"`
	TransactionUUID string `json:"transaction_uuid"`
	NewBalance      int64  `json:"new_balance"`
}

// RecordSpendRequest represents platform spend drawn from the balance
type RecordSpendRequest struct {
	CompanyID   uint   `json:"company_id" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"` // Minor units, stored negated
	Description string `json:"description,omitempty" validate:"omitempty,max=512"`
}

// RecordSpendResponse represents the spend result
type RecordSpendResponse struct {
	Message         string `json:"message"`
	TransactionUUID string `json:"transaction_uuid"`
	NewBalance      int64  `json:"new_balance"`
}

// RecordAdjustmentRequest represents a manual balance correction
type RecordAdjustmentRequest struct {
	CompanyID   uint   `json:"company_id" validate:"required"`
	Amount      int64  `json:"amount" validate:"required"` // Minor units, signed
	Description string `json:"description" validate:"required,max=512"`
}

// RecordAdjustmentResponse represents the adjustment result
type RecordAdjustmentResponse struct {
	Message         string `json:"message"`
	TransactionUUID string `json:"transaction_uuid"`
	NewBalance      int64  `json:"new_balance"`
}

// RecordRefundRequest represents a refund credited back to the balance
type RecordRefundRequest struct {
	CompanyID   uint   `json:"company_id" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"` // Minor units
	Description string `json:"description,omitempty" validate:"omitempty,max=512"`
}

// RecordRefundResponse represents the refund result
type RecordRefundResponse struct {
	Message         string `json:"message"`
	TransactionUUID string `json:"transaction_uuid"`
	NewBalance      int64  `json:"new_balance"`
}

// GetBalanceRequest represents a balance query
type GetBalanceRequest struct {
	CompanyID uint `json:"company_id" validate:"required"`
}

// GetBalanceResponse represents the balance query result
type GetBalanceResponse struct {
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
	Cached   bool   `json:"cached"` // True when served from the cache
}

// GetTransactionHistoryRequest represents a paginated ledger listing
type GetTransactionHistoryRequest struct {
	CompanyID uint    `json:"company_id" validate:"required"`
	Page      int     `json:"page" validate:"min=1"`
	PageSize  int     `json:"page_size" validate:"min=1,max=100"`
	Range     string  `json:"range,omitempty"`
	Type      *string `json:"type,omitempty"`
	Status    *string `json:"status,omitempty"`
}

// TransactionItem is one ledger row in a listing
type TransactionItem struct {
	UUID          string    `json:"uuid"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"` // Signed
	Currency      string    `json:"currency"`
	PaymentMethod *string   `json:"payment_method,omitempty"`
	InvoiceNumber *string   `json:"invoice_number,omitempty"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// TransactionHistoryResponse represents the paginated ledger listing response
type TransactionHistoryResponse struct {
	Items      []TransactionItem `json:"items"`
	Pagination PaginationInfo    `json:"pagination"`
}

// GetBillingSummaryRequest represents a billing summary query
type GetBillingSummaryRequest struct {
	CompanyID uint   `json:"company_id" validate:"required"`
	Range     string `json:"range,omitempty"` // Bounds the cashflow timeline, defaults to 30d
}

// CashflowPoint is one day of the inflow/outflow timeline
type CashflowPoint struct {
	Date    string `json:"date"`
	Inflow  int64  `json:"inflow"`
	Outflow int64  `json:"outflow"`
}

// BillingSummaryResponse aggregates the billing dashboard numbers
type BillingSummaryResponse struct {
	Balance             int64           `json:"balance"`
	Currency            string          `json:"currency"`
	PayableToAffiliates int64           `json:"payable_to_affiliates"` // Approved commission not yet invoiced
	TotalDeposited      int64           `json:"total_deposited"`       // Lifetime sum of completed recharges
	UnpaidInvoiceAmount int64           `json:"unpaid_invoice_amount"`
	UnpaidInvoiceCount  int64           `json:"unpaid_invoice_count"`
	LastRechargeAt      *time.Time      `json:"last_recharge_at,omitempty"`
	LastRechargeAmount  int64           `json:"last_recharge_amount"`
	TotalSpend          int64           `json:"total_spend"` // Within the requested range, positive
	Cashflow            []CashflowPoint `json:"cashflow"`
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionType represents the type of ledger transaction
type TransactionType string

const (
	TransactionTypeRecharge   TransactionType = "recharge"   // Company tops up its balance
	TransactionTypeSpend      TransactionType = "spend"      // Platform spend drawn from the balance
	TransactionTypePayout     TransactionType = "payout"     // Money leaving the platform to the affiliate
	TransactionTypeInvoice    TransactionType = "invoice"    // Commission batch invoiced to the company
	TransactionTypeRefund     TransactionType = "refund"     // Refund of a previously captured amount
	TransactionTypeAdjustment TransactionType = "adjustment" // Manual balance correction
)

// TransactionStatus represents the current status of a transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is one append-only ledger row. The company balance is always
// the sum of completed amounts, never a separately updated counter.
type Transaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"` // Links related transactions
	CompanyID     uint      `gorm:"not null;index" json:"company_id"`

	Type   TransactionType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status TransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Amount is signed in currency minor units; positive credits the company
	// balance, negative debits it.
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"size:3;not null;default:'USD'" json:"currency"`

	PaymentMethod *string `gorm:"size:64" json:"payment_method,omitempty"`
	InvoiceNumber *string `gorm:"size:64;index" json:"invoice_number,omitempty"`
	Description   string  `gorm:"type:text" json:"description"`

	Metadata json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;index;default:CURRENT_TIMESTAMP" json:"created_at"`

	// Relationships
	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"company,omitempty"`
}

func (Transaction) TableName() string { return "transactions" }

// BeforeCreate ensures UUID and CorrelationID are set
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	return nil
}

// IsCompleted returns true if the transaction counts toward the balance
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// IsInflow returns true when the row credits the company balance
func (t *Transaction) IsInflow() bool {
	return t.Amount > 0
}

// TransactionFilter represents filter criteria for transaction queries
type TransactionFilter struct {
	ID            *uint              `json:"id,omitempty"`
	UUID          *uuid.UUID         `json:"uuid,omitempty"`
	CorrelationID *uuid.UUID         `json:"correlation_id,omitempty"`
	CompanyID     *uint              `json:"company_id,omitempty"`
	Type          *TransactionType   `json:"type,omitempty"`
	Status        *TransactionStatus `json:"status,omitempty"`
	InvoiceNumber *string            `json:"invoice_number,omitempty"`
	CreatedAfter  *time.Time         `json:"created_after,omitempty"`
	CreatedBefore *time.Time         `json:"created_before,omitempty"`
}

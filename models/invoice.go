package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceStatus represents the internal invoice lifecycle
type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "draft"
	InvoiceStatusSent     InvoiceStatus = "sent"
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusCanceled InvoiceStatus = "canceled"
)

// Invoice groups a batch of approved, unbilled conversions for billing.
// Distinct from any external payment-processor invoice.
type Invoice struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CompanyID uint      `gorm:"not null;index" json:"company_id"`

	// InvoiceNumber is sequential per company, e.g. INV-42-7
	InvoiceNumber string `gorm:"size:64;not null;uniqueIndex" json:"invoice_number"`

	// Amount is the sum of commission amounts of the billed conversions,
	// in currency minor units.
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"size:3;not null;default:'USD'" json:"currency"`

	Status InvoiceStatus `gorm:"type:varchar(16);not null;default:'draft';index" json:"status"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	Company     Company      `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"company,omitempty"`
	Conversions []Conversion `gorm:"foreignKey:InvoiceID" json:"conversions,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// BeforeCreate ensures UUID is set
func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == uuid.Nil {
		i.UUID = uuid.New()
	}
	return nil
}

// IsOpen returns true while the invoice can still be paid or canceled
func (i *Invoice) IsOpen() bool {
	return i.Status == InvoiceStatusDraft || i.Status == InvoiceStatusSent
}

// InvoiceFilter represents filter criteria for invoice queries
type InvoiceFilter struct {
	ID            *uint          `json:"id,omitempty"`
	CompanyID     *uint          `json:"company_id,omitempty"`
	Status        *InvoiceStatus `json:"status,omitempty"`
	InvoiceNumber *string        `json:"invoice_number,omitempty"`
	CreatedAfter  *time.Time     `json:"created_after,omitempty"`
	CreatedBefore *time.Time     `json:"created_before,omitempty"`
}

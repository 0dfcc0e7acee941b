package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversionStatus represents the conversion lifecycle state
type ConversionStatus string

const (
	ConversionStatusPending  ConversionStatus = "pending"
	ConversionStatusApproved ConversionStatus = "approved"
	ConversionStatusReversed ConversionStatus = "reversed"
	ConversionStatusPaid     ConversionStatus = "paid"
)

// Conversion is a billable event attributed to a ref code. Billed and paid
// are implicit states carried by BilledAt and PaidAt; once either money
// milestone is reached the conversion can no longer be reversed.
type Conversion struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CompanyID uint      `gorm:"not null;index;uniqueIndex:uk_conversions_external" json:"company_id"`
	RefCodeID uint      `gorm:"not null;index" json:"ref_code_id"`
	RefCode   string    `gorm:"size:64;not null;index;uniqueIndex:uk_conversions_external" json:"ref_code"`

	// ExternalConversionID is the dedup key delivered by the postback,
	// unique per company+ref_code.
	ExternalConversionID string `gorm:"size:255;not null;uniqueIndex:uk_conversions_external" json:"external_conversion_id"`

	ConversionType string `gorm:"size:32;not null;default:'sale'" json:"conversion_type"`

	// Money is stored in currency minor units.
	ConversionValue int64  `gorm:"not null" json:"conversion_value"`
	Currency        string `gorm:"size:3;not null;default:'USD'" json:"currency"`

	// Rate and rate type are snapshotted from the ref code at ingest time;
	// later rate changes never alter historical commission.
	CommissionRate   float64  `gorm:"not null" json:"commission_rate"`
	RateType         RateType `gorm:"type:varchar(16);not null;default:'percent'" json:"rate_type"`
	CommissionAmount int64    `gorm:"not null" json:"commission_amount"`

	Status ConversionStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`

	BilledAt  *time.Time `gorm:"index" json:"billed_at,omitempty"`
	InvoiceID *uint      `gorm:"index" json:"invoice_id,omitempty"`

	SessionID              *string `gorm:"size:128" json:"session_id,omitempty"`
	AttributionWindowHours int     `gorm:"not null;default:720" json:"attribution_window_hours"`

	// Metadata carries paid_at and other side-channel facts
	Metadata json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata,omitempty"`

	Timestamp time.Time `gorm:"not null;index;default:CURRENT_TIMESTAMP" json:"timestamp"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	Company Company  `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"company,omitempty"`
	Invoice *Invoice `gorm:"foreignKey:InvoiceID" json:"invoice,omitempty"`
}

func (Conversion) TableName() string { return "conversions" }

// BeforeCreate ensures UUID is set
func (c *Conversion) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	return nil
}

// IsBilled returns true once the conversion has been included in an invoice
func (c *Conversion) IsBilled() bool {
	return c.BilledAt != nil
}

// PaidAt extracts the paid timestamp from metadata, nil when unpaid
func (c *Conversion) PaidAt() *time.Time {
	if len(c.Metadata) == 0 {
		return nil
	}
	var meta struct {
		PaidAt *time.Time `json:"paid_at"`
	}
	if err := json.Unmarshal(c.Metadata, &meta); err != nil {
		return nil
	}
	return meta.PaidAt
}

// IsPaid returns true once the conversion has been settled by a payout or
// marked paid individually
func (c *Conversion) IsPaid() bool {
	return c.Status == ConversionStatusPaid || c.PaidAt() != nil
}

// IsLocked returns true when money has been invoiced or paid out and the
// conversion may no longer be reversed
func (c *Conversion) IsLocked() bool {
	return c.IsBilled() || c.IsPaid()
}

// ConversionFilter represents filter criteria for conversion queries
type ConversionFilter struct {
	ID                   *uint             `json:"id,omitempty"`
	CompanyID            *uint             `json:"company_id,omitempty"`
	RefCode              *string           `json:"ref_code,omitempty"`
	ExternalConversionID *string           `json:"external_conversion_id,omitempty"`
	Status               *ConversionStatus `json:"status,omitempty"`
	Billed               *bool             `json:"billed,omitempty"`
	Paid                 *bool             `json:"paid,omitempty"`
	InvoiceID            *uint             `json:"invoice_id,omitempty"`
	Query                *string           `json:"q,omitempty"`
	TimestampAfter       *time.Time        `json:"timestamp_after,omitempty"`
	TimestampBefore      *time.Time        `json:"timestamp_before,omitempty"`
}

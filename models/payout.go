package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutStatus represents the payout lifecycle
type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusPaid     PayoutStatus = "paid"
	PayoutStatusCanceled PayoutStatus = "canceled"
)

// Payout groups billed, unpaid conversions for outbound payment to the
// affiliate side.
type Payout struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CompanyID uint      `gorm:"not null;index" json:"company_id"`

	// Amount in currency minor units, always positive; the ledger row it
	// produces is negative.
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"size:3;not null;default:'USD'" json:"currency"`

	Status PayoutStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"company,omitempty"`
}

func (Payout) TableName() string { return "payouts" }

// BeforeCreate ensures UUID is set
func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	return nil
}

// PayoutFilter represents filter criteria for payout queries
type PayoutFilter struct {
	ID            *uint         `json:"id,omitempty"`
	CompanyID     *uint         `json:"company_id,omitempty"`
	Status        *PayoutStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time    `json:"created_after,omitempty"`
	CreatedBefore *time.Time    `json:"created_before,omitempty"`
}

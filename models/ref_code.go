package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MonetizableType identifies the kind of entity a ref code routes traffic to
type MonetizableType string

const (
	MonetizableTypeLanding MonetizableType = "landing"
	MonetizableTypeProduct MonetizableType = "product"
)

// RateType distinguishes percentage commissions from fixed-amount commissions
type RateType string

const (
	RateTypePercent RateType = "percent"
	RateTypeFixed   RateType = "fixed"
)

// RefCode maps a referral code to a monetizable entity and a commission rate.
// Ref codes are never deleted, only deactivated, so historical clicks and
// conversions stay attributable.
type RefCode struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CompanyID uint      `gorm:"not null;index;uniqueIndex:uk_ref_codes_company_code" json:"company_id"`
	Code      string    `gorm:"size:64;not null;uniqueIndex:uk_ref_codes_company_code;index" json:"code"`

	MonetizableType MonetizableType `gorm:"type:varchar(16);not null" json:"monetizable_type"`
	MonetizableID   string          `gorm:"size:64;not null" json:"monetizable_id"`

	// CommissionRate is a percentage for RateTypePercent, a minor-unit amount
	// for RateTypeFixed. Conversions snapshot it at ingest time.
	RateType       RateType `gorm:"type:varchar(16);not null;default:'percent'" json:"rate_type"`
	CommissionRate float64  `gorm:"not null;default:0" json:"commission_rate"`

	AffiliateLink *string `gorm:"type:text" json:"affiliate_link,omitempty"`
	IsActive      bool    `gorm:"not null;default:true;index" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"company,omitempty"`
}

func (RefCode) TableName() string { return "ref_codes" }

// BeforeCreate ensures UUID is set
func (r *RefCode) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	return nil
}

// RefCodeFilter represents filter criteria for ref code queries
type RefCodeFilter struct {
	ID        *uint            `json:"id,omitempty"`
	CompanyID *uint            `json:"company_id,omitempty"`
	Code      *string          `json:"code,omitempty"`
	IsActive  *bool            `json:"is_active,omitempty"`
	Type      *MonetizableType `json:"monetizable_type,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FraudReason is the closed set of verdict reasons produced by click classification
type FraudReason string

const (
	FraudReasonNone             FraudReason = "none"
	FraudReasonDuplicateSession FraudReason = "duplicate_session"
	FraudReasonVelocityAbuse    FraudReason = "velocity_abuse"
	FraudReasonInactiveRefCode  FraudReason = "inactive_ref_code"
	FraudReasonManualOverride   FraudReason = "manual_override"
	FraudReasonUnknown          FraudReason = "unknown_reason"
)

// DeviceClass is derived from the click user agent at ingest time
type DeviceClass string

const (
	DeviceClassDesktop DeviceClass = "desktop"
	DeviceClassMobile  DeviceClass = "mobile"
	DeviceClassTablet  DeviceClass = "tablet"
	DeviceClassUnknown DeviceClass = "unknown"
)

// Click is a single tracked click on a ref code. Rows are immutable once
// written except is_valid/fraud_reason, which an admin may correct; the
// correction is retained in the audit log.
type Click struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CompanyID uint      `gorm:"not null;index" json:"company_id"`
	RefCodeID uint      `gorm:"not null;index" json:"ref_code_id"`
	RefCode   string    `gorm:"size:64;not null;index;uniqueIndex:uk_clicks_dedup" json:"ref_code"`

	SessionID string `gorm:"size:128;not null;index;uniqueIndex:uk_clicks_dedup" json:"session_id"`
	// DedupBucket is the click timestamp truncated to the dedup window;
	// (ref_code, session_id, dedup_bucket) is the idempotency key.
	DedupBucket time.Time `gorm:"not null;uniqueIndex:uk_clicks_dedup" json:"dedup_bucket"`

	Country     string      `gorm:"size:2" json:"country"`
	DeviceClass DeviceClass `gorm:"type:varchar(16);not null;default:'unknown'" json:"device_class"`
	UserAgent   *string     `gorm:"type:text" json:"user_agent,omitempty"`
	IP          *string     `gorm:"size:64" json:"ip,omitempty"`

	IsValid     bool         `gorm:"not null;index" json:"is_valid"`
	FraudReason *FraudReason `gorm:"type:varchar(32)" json:"fraud_reason,omitempty"`

	Timestamp time.Time `gorm:"not null;index;default:CURRENT_TIMESTAMP" json:"timestamp"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	// Relationships
	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"company,omitempty"`
}

func (Click) TableName() string { return "clicks" }

// BeforeCreate ensures UUID is set
func (c *Click) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	return nil
}

// ClickFilter represents filter criteria for click queries
type ClickFilter struct {
	ID              *uint        `json:"id,omitempty"`
	CompanyID       *uint        `json:"company_id,omitempty"`
	RefCode         *string      `json:"ref_code,omitempty"`
	SessionID       *string      `json:"session_id,omitempty"`
	IsValid         *bool        `json:"is_valid,omitempty"`
	FraudReason     *FraudReason `json:"fraud_reason,omitempty"`
	TimestampAfter  *time.Time   `json:"timestamp_after,omitempty"`
	TimestampBefore *time.Time   `json:"timestamp_before,omitempty"`
}

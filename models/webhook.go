package models

import (
	"time"

	"gorm.io/gorm"
)

// WebhookEventType identifies the state change a delivery announces
type WebhookEventType string

const (
	WebhookEventConversionCreated  WebhookEventType = "conversion.created"
	WebhookEventConversionApproved WebhookEventType = "conversion.approved"
	WebhookEventConversionReversed WebhookEventType = "conversion.reversed"
	WebhookEventInvoiceCreated     WebhookEventType = "invoice.created"
	WebhookEventInvoicePaid        WebhookEventType = "invoice.paid"
	WebhookEventInvoiceCanceled    WebhookEventType = "invoice.canceled"
	WebhookEventPayoutCreated      WebhookEventType = "payout.created"
)

// WebhookSettings holds the per-company delivery endpoint and retry policy.
// MaxAttempts and BackoffBase encode the "N x exponential" descriptor.
type WebhookSettings struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID uint `gorm:"not null;uniqueIndex" json:"company_id"`

	Endpoint string `gorm:"type:text;not null" json:"endpoint"`
	Secret   string `gorm:"size:255;not null" json:"-"`
	Enabled  bool   `gorm:"not null;default:true" json:"enabled"`

	MaxAttempts int           `gorm:"not null;default:3" json:"max_attempts"`
	BackoffBase time.Duration `gorm:"not null;default:1000000000" json:"backoff_base"` // nanoseconds

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"company,omitempty"`
}

func (WebhookSettings) TableName() string { return "webhook_settings" }

// BeforeSave clamps the retry policy to sane bounds
func (w *WebhookSettings) BeforeSave(tx *gorm.DB) error {
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 3
	}
	if w.MaxAttempts > 10 {
		w.MaxAttempts = 10
	}
	if w.BackoffBase <= 0 {
		w.BackoffBase = time.Second
	}
	return nil
}

// WebhookDeliveryLog records one delivery attempt. Append-only; admins see a
// capped page of recent rows while health metrics read further back.
type WebhookDeliveryLog struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID uint `gorm:"not null;index" json:"company_id"`

	EventType WebhookEventType `gorm:"type:varchar(32);not null;index" json:"event_type"`
	URL       string           `gorm:"type:text;not null" json:"url"`

	Attempt    int     `gorm:"not null" json:"attempt"`
	StatusCode int     `gorm:"not null" json:"status_code"` // 0 when the request never completed
	DurationMS int64   `gorm:"not null" json:"duration_ms"`
	Success    bool    `gorm:"not null;index" json:"success"`
	Error      *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;index;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (WebhookDeliveryLog) TableName() string { return "webhook_delivery_logs" }

// WebhookDeliveryLogFilter represents filter criteria for delivery log queries
type WebhookDeliveryLogFilter struct {
	CompanyID     *uint             `json:"company_id,omitempty"`
	EventType     *WebhookEventType `json:"event_type,omitempty"`
	Success       *bool             `json:"success,omitempty"`
	CreatedAfter  *time.Time        `json:"created_after,omitempty"`
	CreatedBefore *time.Time        `json:"created_before,omitempty"`
}

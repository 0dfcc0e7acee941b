package models

import (
	"encoding/json"
	"time"
)

// AuditLog retains admin actions that change engine state, in particular
// click validity corrections where the reason string must survive.
type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CompanyID    *uint           `gorm:"index:idx_audit_company_id" json:"company_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"type:inet;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionClickRecorded        = "click_recorded"
	AuditActionClickValidityChanged = "click_validity_changed"
	AuditActionConversionIngested   = "conversion_ingested"
	AuditActionConversionApproved   = "conversion_approved"
	AuditActionConversionReversed   = "conversion_reversed"
	AuditActionConversionMarkedPaid = "conversion_marked_paid"
	AuditActionConversionBilled     = "conversion_billed"
	AuditActionConversionUnbilled   = "conversion_unbilled"
	AuditActionInvoiceGenerated     = "invoice_generated"
	AuditActionInvoiceMarkedPaid    = "invoice_marked_paid"
	AuditActionInvoiceCanceled      = "invoice_canceled"
	AuditActionPayoutGenerated      = "payout_generated"
	AuditActionBalanceRecharged     = "balance_recharged"
	AuditActionSpendRecorded        = "spend_recorded"
	AuditActionAdjustmentRecorded   = "adjustment_recorded"
	AuditActionRefundRecorded       = "refund_recorded"
	AuditActionRefCodeCreated       = "ref_code_created"
	AuditActionRefCodeUpdated       = "ref_code_updated"
	AuditActionWebhookSettingsSaved = "webhook_settings_saved"
	AuditActionLinkSettingsSaved    = "link_settings_saved"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	CompanyID     *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/aimarket/affiliate-engine/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CompanyRepository defines operations for companies
type CompanyRepository interface {
	Repository[models.Company, models.CompanyFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Company, error)
}

// RefCodeRepository defines operations for ref codes
type RefCodeRepository interface {
	Repository[models.RefCode, models.RefCodeFilter]
	ByCode(ctx context.Context, code string) (*models.RefCode, error)
	ByCompanyAndCode(ctx context.Context, companyID uint, code string) (*models.RefCode, error)
	Update(ctx context.Context, refCode *models.RefCode) error
	ListByCompany(ctx context.Context, companyID uint) ([]*models.RefCode, error)
}

// ClickRepository defines operations for clicks
type ClickRepository interface {
	Repository[models.Click, models.ClickFilter]
	ByDedupKey(ctx context.Context, refCode, sessionID string, bucket time.Time) (*models.Click, error)
	LatestByRefCode(ctx context.Context, refCode string) (*models.Click, error)
	UpdateValidity(ctx context.Context, clickID uint, isValid bool, reason models.FraudReason) (int64, error)
	CountBySession(ctx context.Context, companyID uint, sessionID string, since time.Time) (int64, error)
	CountryBreakdown(ctx context.Context, companyID uint, from, to *time.Time) ([]*BucketCount, error)
	DeviceBreakdown(ctx context.Context, companyID uint, from, to *time.Time) ([]*BucketCount, error)
	RefCodeBreakdown(ctx context.Context, companyID uint, from, to *time.Time) ([]*BucketCount, error)
	DailyCounts(ctx context.Context, companyID uint, from, to *time.Time) ([]*DailyClickCount, error)
}

// ConversionRepository defines operations for conversions
type ConversionRepository interface {
	Repository[models.Conversion, models.ConversionFilter]
	ByExternalID(ctx context.Context, companyID uint, refCode, externalID string) (*models.Conversion, error)
	// UpdateGuarded runs a conditional single-statement update and reports
	// the number of rows it touched; zero means the guard failed.
	UpdateGuarded(ctx context.Context, conversionID uint, guard map[string]any, updates map[string]any) (int64, error)
	ListBillable(ctx context.Context, companyID uint, from, to *time.Time, lock bool) ([]*models.Conversion, error)
	ListPayable(ctx context.Context, companyID uint, from, to *time.Time, lock bool) ([]*models.Conversion, error)
	ListByInvoice(ctx context.Context, invoiceID uint) ([]*models.Conversion, error)
	SumCommission(ctx context.Context, filter models.ConversionFilter) (int64, int64, error)
	DailyCounts(ctx context.Context, companyID uint, from, to *time.Time) ([]*DailyConversionCount, error)
	StatsByRefCode(ctx context.Context, companyID uint, from, to *time.Time) ([]*RefCodeStats, error)
}

// TransactionRepository defines operations for ledger transactions
type TransactionRepository interface {
	Repository[models.Transaction, models.TransactionFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Transaction, error)
	SumCompletedByCompany(ctx context.Context, companyID uint) (int64, error)
	SumByType(ctx context.Context, companyID uint, txType models.TransactionType, since *time.Time) (int64, error)
	LastByType(ctx context.Context, companyID uint, txType models.TransactionType) (*models.Transaction, error)
	CashflowTimeline(ctx context.Context, companyID uint, since time.Time) ([]*CashflowDay, error)
}

// InvoiceRepository defines operations for invoices
type InvoiceRepository interface {
	Repository[models.Invoice, models.InvoiceFilter]
	Update(ctx context.Context, invoice *models.Invoice) error
	NextSequence(ctx context.Context, companyID uint) (int64, error)
	UnpaidAggregate(ctx context.Context, companyID uint) (int64, int64, error)
	UpdateStatusGuarded(ctx context.Context, invoiceID uint, from []models.InvoiceStatus, to models.InvoiceStatus, paidAt *time.Time) (int64, error)
}

// PayoutRepository defines operations for payouts
type PayoutRepository interface {
	Repository[models.Payout, models.PayoutFilter]
	Update(ctx context.Context, payout *models.Payout) error
}

// WebhookSettingsRepository defines operations for webhook settings
type WebhookSettingsRepository interface {
	ByCompanyID(ctx context.Context, companyID uint) (*models.WebhookSettings, error)
	Upsert(ctx context.Context, settings *models.WebhookSettings) error
}

// WebhookDeliveryLogRepository defines operations for webhook delivery logs
type WebhookDeliveryLogRepository interface {
	Repository[models.WebhookDeliveryLog, models.WebhookDeliveryLogFilter]
	ListByCompany(ctx context.Context, companyID uint, limit, offset int) ([]*models.WebhookDeliveryLog, error)
}

// LinkSettingsRepository defines operations for link settings
type LinkSettingsRepository interface {
	ByCompanyID(ctx context.Context, companyID uint) (*models.LinkSettings, error)
	Upsert(ctx context.Context, settings *models.LinkSettings) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByCompany(ctx context.Context, companyID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}

// CashflowDay is one day of the billing summary inflow/outflow timeline
type CashflowDay struct {
	Date    string `json:"date"`
	Inflow  int64  `json:"inflow"`
	Outflow int64  `json:"outflow"`
}

// BucketCount is one row of a group-by breakdown (country, device class)
type BucketCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// DailyClickCount is one day of the click timeline
type DailyClickCount struct {
	Date  string `json:"date"`
	Total int64  `json:"total"`
	Valid int64  `json:"valid"`
}

// RefCodeStats aggregates conversion volume and commission per ref code
type RefCodeStats struct {
	RefCode     string `json:"ref_code"`
	Conversions int64  `json:"conversions"`
	Commission  int64  `json:"commission"`
	Revenue     int64  `json:"revenue"`
}

// DailyConversionCount is one day of the conversion timeline
type DailyConversionCount struct {
	Date       string `json:"date"`
	Count      int64  `json:"count"`
	Commission int64  `json:"commission"`
}

package repository

import (
	"context"
	"errors"

	"github.com/aimarket/affiliate-engine/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookSettingsRepositoryImpl implements WebhookSettingsRepository interface
type WebhookSettingsRepositoryImpl struct {
	db *gorm.DB
}

// NewWebhookSettingsRepository creates a new webhook settings repository
func NewWebhookSettingsRepository(db *gorm.DB) WebhookSettingsRepository {
	return &WebhookSettingsRepositoryImpl{db: db}
}

func (r *WebhookSettingsRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// ByCompanyID retrieves the settings row for a company, nil when never configured
func (r *WebhookSettingsRepositoryImpl) ByCompanyID(ctx context.Context, companyID uint) (*models.WebhookSettings, error) {
	db := r.getDB(ctx)
	var settings models.WebhookSettings
	err := db.Where("company_id = ?", companyID).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

// Upsert inserts or replaces the single settings row per company
func (r *WebhookSettingsRepositoryImpl) Upsert(ctx context.Context, settings *models.WebhookSettings) error {
	db := r.getDB(ctx)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"endpoint", "secret", "enabled", "max_attempts", "backoff_base", "updated_at",
		}),
	}).Create(settings).Error
}

// WebhookDeliveryLogRepositoryImpl implements WebhookDeliveryLogRepository interface
type WebhookDeliveryLogRepositoryImpl struct {
	*BaseRepository[models.WebhookDeliveryLog, models.WebhookDeliveryLogFilter]
}

// NewWebhookDeliveryLogRepository creates a new webhook delivery log repository
func NewWebhookDeliveryLogRepository(db *gorm.DB) WebhookDeliveryLogRepository {
	return &WebhookDeliveryLogRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WebhookDeliveryLog, models.WebhookDeliveryLogFilter](db),
	}
}

// ListByCompany returns recent delivery attempts for a company, newest first
func (r *WebhookDeliveryLogRepositoryImpl) ListByCompany(ctx context.Context, companyID uint, limit, offset int) ([]*models.WebhookDeliveryLog, error) {
	filter := models.WebhookDeliveryLogFilter{CompanyID: &companyID}
	return r.ByFilter(ctx, filter, "created_at DESC", limit, offset)
}

// ByFilter retrieves delivery logs based on filter criteria
func (r *WebhookDeliveryLogRepositoryImpl) ByFilter(ctx context.Context, filter models.WebhookDeliveryLogFilter, orderBy string, limit, offset int) ([]*models.WebhookDeliveryLog, error) {
	db := r.getDB(ctx)
	var logs []*models.WebhookDeliveryLog

	query := r.applyFilter(db.Model(&models.WebhookDeliveryLog{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// Count returns the number of delivery logs matching the filter
func (r *WebhookDeliveryLogRepositoryImpl) Count(ctx context.Context, filter models.WebhookDeliveryLogFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.WebhookDeliveryLog{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any delivery log matching the filter exists
func (r *WebhookDeliveryLogRepositoryImpl) Exists(ctx context.Context, filter models.WebhookDeliveryLogFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *WebhookDeliveryLogRepositoryImpl) applyFilter(query *gorm.DB, filter models.WebhookDeliveryLogFilter) *gorm.DB {
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.EventType != nil {
		query = query.Where("event_type = ?", *filter.EventType)
	}
	if filter.Success != nil {
		query = query.Where("success = ?", *filter.Success)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}

package repository

import (
	"context"
	"errors"

	"github.com/aimarket/affiliate-engine/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LinkSettingsRepositoryImpl implements LinkSettingsRepository interface
type LinkSettingsRepositoryImpl struct {
	db *gorm.DB
}

// NewLinkSettingsRepository creates a new link settings repository
func NewLinkSettingsRepository(db *gorm.DB) LinkSettingsRepository {
	return &LinkSettingsRepositoryImpl{db: db}
}

func (r *LinkSettingsRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// ByCompanyID retrieves the settings row for a company, nil when never configured
func (r *LinkSettingsRepositoryImpl) ByCompanyID(ctx context.Context, companyID uint) (*models.LinkSettings, error) {
	db := r.getDB(ctx)
	var settings models.LinkSettings
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
func (r *LinkSettingsRepositoryImpl) Upsert(ctx context.Context, settings *models.LinkSettings) error {
	db := r.getDB(ctx)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"utm_defaults", "param_keys", "allowlist_domains", "templates", "updated_at",
		}),
	}).Create(settings).Error
}

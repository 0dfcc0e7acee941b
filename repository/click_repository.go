package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aimarket/affiliate-engine/models"
	"gorm.io/gorm"
)

// ClickRepositoryImpl implements ClickRepository interface
type ClickRepositoryImpl struct {
	*BaseRepository[models.Click, models.ClickFilter]
}

// NewClickRepository creates a new click repository
func NewClickRepository(db *gorm.DB) ClickRepository {
	return &ClickRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Click, models.ClickFilter](db),
	}
}

// ByDedupKey finds the click occupying a dedup slot, nil when the slot is free
func (r *ClickRepositoryImpl) ByDedupKey(ctx context.Context, refCode, sessionID string, bucket time.Time) (*models.Click, error) {
	db := r.getDB(ctx)
	var click models.Click
	err := db.Where("ref_code = ? AND session_id = ? AND dedup_bucket = ?", refCode, sessionID, bucket).Last(&click).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &click, nil
}

// LatestByRefCode returns the most recent click for a ref code, used for
// attribution window checks
func (r *ClickRepositoryImpl) LatestByRefCode(ctx context.Context, refCode string) (*models.Click, error) {
	db := r.getDB(ctx)
	var click models.Click
	err := db.Where("ref_code = ?", refCode).Order("timestamp DESC").First(&click).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &click, nil
}

// UpdateValidity flips is_valid/fraud_reason in a single guarded statement.
// The guard excludes no-op writes so callers can tell a real flip from an
// idempotent repeat.
func (r *ClickRepositoryImpl) UpdateValidity(ctx context.Context, clickID uint, isValid bool, reason models.FraudReason) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Click{}).
		Where("id = ? AND is_valid <> ?", clickID, isValid).
		Updates(map[string]any{"is_valid": isValid, "fraud_reason": reason})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// CountBySession counts clicks of one session since a cutoff, a fallback
// velocity source when the cache is unavailable
func (r *ClickRepositoryImpl) CountBySession(ctx context.Context, companyID uint, sessionID string, since time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Click{}).
		Where("company_id = ? AND session_id = ? AND timestamp >= ?", companyID, sessionID, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountryBreakdown groups valid clicks by country within a range
func (r *ClickRepositoryImpl) CountryBreakdown(ctx context.Context, companyID uint, from, to *time.Time) ([]*BucketCount, error) {
	return r.breakdown(ctx, "country", companyID, from, to)
}

// DeviceBreakdown groups valid clicks by device class within a range
func (r *ClickRepositoryImpl) DeviceBreakdown(ctx context.Context, companyID uint, from, to *time.Time) ([]*BucketCount, error) {
	return r.breakdown(ctx, "device_class", companyID, from, to)
}

// RefCodeBreakdown groups valid clicks by ref code within a range
func (r *ClickRepositoryImpl) RefCodeBreakdown(ctx context.Context, companyID uint, from, to *time.Time) ([]*BucketCount, error) {
	return r.breakdown(ctx, "ref_code", companyID, from, to)
}

func (r *ClickRepositoryImpl) breakdown(ctx context.Context, column string, companyID uint, from, to *time.Time) ([]*BucketCount, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Click{}).
		Select(column+" AS key, COUNT(*) AS count").
		Where("company_id = ? AND is_valid = ?", companyID, true)
	if from != nil {
		query = query.Where("timestamp >= ?", *from)
	}
	if to != nil {
		query = query.Where("timestamp < ?", *to)
	}

	var rows []*BucketCount
	err := query.Group(column).Order("count DESC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DailyCounts returns per-day total and valid click counts within a range
func (r *ClickRepositoryImpl) DailyCounts(ctx context.Context, companyID uint, from, to *time.Time) ([]*DailyClickCount, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Click{}).
		Select(`to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date,
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_valid THEN 1 ELSE 0 END), 0) AS valid`).
		Where("company_id = ?", companyID)
	if from != nil {
		query = query.Where("timestamp >= ?", *from)
	}
	if to != nil {
		query = query.Where("timestamp < ?", *to)
	}

	var rows []*DailyClickCount
	err := query.Group("date").Order("date ASC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ByFilter retrieves clicks based on filter criteria
func (r *ClickRepositoryImpl) ByFilter(ctx context.Context, filter models.ClickFilter, orderBy string, limit, offset int) ([]*models.Click, error) {
	db := r.getDB(ctx)
	var clicks []*models.Click

	query := r.applyFilter(db.Model(&models.Click{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("timestamp DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&clicks).Error; err != nil {
		return nil, err
	}
	return clicks, nil
}

// Count returns the number of clicks matching the filter
func (r *ClickRepositoryImpl) Count(ctx context.Context, filter models.ClickFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Click{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any click matching the filter exists
func (r *ClickRepositoryImpl) Exists(ctx context.Context, filter models.ClickFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ClickRepositoryImpl) applyFilter(query *gorm.DB, filter models.ClickFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.RefCode != nil {
		query = query.Where("ref_code = ?", *filter.RefCode)
	}
	if filter.SessionID != nil {
		query = query.Where("session_id = ?", *filter.SessionID)
	}
	if filter.IsValid != nil {
		query = query.Where("is_valid = ?", *filter.IsValid)
	}
	if filter.FraudReason != nil {
		query = query.Where("fraud_reason = ?", *filter.FraudReason)
	}
	if filter.TimestampAfter != nil {
		query = query.Where("timestamp >= ?", *filter.TimestampAfter)
	}
	if filter.TimestampBefore != nil {
		query = query.Where("timestamp <= ?", *filter.TimestampBefore)
	}
	return query
}

package repository

import (
	"context"
	"errors"

	"github.com/aimarket/affiliate-engine/models"
	"gorm.io/gorm"
)

// RefCodeRepositoryImpl implements RefCodeRepository interface
type RefCodeRepositoryImpl struct {
	*BaseRepository[models.RefCode, models.RefCodeFilter]
}

// NewRefCodeRepository creates a new ref code repository
func NewRefCodeRepository(db *gorm.DB) RefCodeRepository {
	return &RefCodeRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RefCode, models.RefCodeFilter](db),
	}
}

// ByCode finds a ref code by its code string across all companies
func (r *RefCodeRepositoryImpl) ByCode(ctx context.Context, code string) (*models.RefCode, error) {
	db := r.getDB(ctx)
	var refCode models.RefCode
	err := db.Where("code = ?", code).Last(&refCode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refCode, nil
}

// ByCompanyAndCode finds a ref code scoped to one company
func (r *RefCodeRepositoryImpl) ByCompanyAndCode(ctx context.Context, companyID uint, code string) (*models.RefCode, error) {
	db := r.getDB(ctx)
	var refCode models.RefCode
	err := db.Where("company_id = ? AND code = ?", companyID, code).Last(&refCode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refCode, nil
}

// Update persists changes to an existing ref code
func (r *RefCodeRepositoryImpl) Update(ctx context.Context, refCode *models.RefCode) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Save(refCode).Error
	return err
}

// ListByCompany lists all ref codes of a company, newest first
func (r *RefCodeRepositoryImpl) ListByCompany(ctx context.Context, companyID uint) ([]*models.RefCode, error) {
	db := r.getDB(ctx)
	var refCodes []*models.RefCode
	err := db.Where("company_id = ?", companyID).Order("created_at DESC").Find(&refCodes).Error
	if err != nil {
		return nil, err
	}
	return refCodes, nil
}

// ByFilter retrieves ref codes based on filter criteria
func (r *RefCodeRepositoryImpl) ByFilter(ctx context.Context, filter models.RefCodeFilter, orderBy string, limit, offset int) ([]*models.RefCode, error) {
	db := r.getDB(ctx)
	var refCodes []*models.RefCode

	query := r.applyFilter(db.Model(&models.RefCode{}), filter)
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

	if err := query.Find(&refCodes).Error; err != nil {
		return nil, err
	}
	return refCodes, nil
}

// Count returns the number of ref codes matching the filter
func (r *RefCodeRepositoryImpl) Count(ctx context.Context, filter models.RefCodeFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.RefCode{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any ref code matching the filter exists
func (r *RefCodeRepositoryImpl) Exists(ctx context.Context, filter models.RefCodeFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RefCodeRepositoryImpl) applyFilter(query *gorm.DB, filter models.RefCodeFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Code != nil {
		query = query.Where("code = ?", *filter.Code)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Type != nil {
		query = query.Where("monetizable_type = ?", *filter.Type)
	}
	return query
}

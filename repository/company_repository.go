package repository

import (
	"context"
	"errors"

	"github.com/aimarket/affiliate-engine/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CompanyRepositoryImpl implements CompanyRepository interface
type CompanyRepositoryImpl struct {
	*BaseRepository[models.Company, models.CompanyFilter]
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &CompanyRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Company, models.CompanyFilter](db),
	}
}

// ByUUID finds a company by UUID
func (r *CompanyRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	db := r.getDB(ctx)
	var company models.Company
	err := db.Where("uuid = ?", id).Last(&company).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &company, nil
}

// ByFilter retrieves companies based on filter criteria
func (r *CompanyRepositoryImpl) ByFilter(ctx context.Context, filter models.CompanyFilter, orderBy string, limit, offset int) ([]*models.Company, error) {
	db := r.getDB(ctx)
	var companies []*models.Company

	query := r.applyFilter(db.Model(&models.Company{}), filter)
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

	if err := query.Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

// Count returns the number of companies matching the filter
func (r *CompanyRepositoryImpl) Count(ctx context.Context, filter models.CompanyFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Company{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any company matching the filter exists
func (r *CompanyRepositoryImpl) Exists(ctx context.Context, filter models.CompanyFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CompanyRepositoryImpl) applyFilter(query *gorm.DB, filter models.CompanyFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	return query
}

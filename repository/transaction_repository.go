package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aimarket/affiliate-engine/models"
	"gorm.io/gorm"
)

// TransactionRepositoryImpl implements TransactionRepository interface
type TransactionRepositoryImpl struct {
	*BaseRepository[models.Transaction, models.TransactionFilter]
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &TransactionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Transaction, models.TransactionFilter](db),
	}
}

// ByUUID finds a transaction by UUID
func (r *TransactionRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Transaction, error) {
	db := r.getDB(ctx)
	var transaction models.Transaction
	err := db.Where("uuid = ?", uuid).Last(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// SumCompletedByCompany computes the company balance straight from the
// ledger: the sum of signed amounts over completed transactions.
func (r *TransactionRepositoryImpl) SumCompletedByCompany(ctx context.Context, companyID uint) (int64, error) {
	db := r.getDB(ctx)
	var total int64
	err := db.Model(&models.Transaction{}).
		Where("company_id = ? AND status = ?", companyID, models.TransactionStatusCompleted).
		Select("COALESCE(SUM(amount),0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SumByType sums signed amounts of completed transactions of one type,
// optionally since a cutoff
func (r *TransactionRepositoryImpl) SumByType(ctx context.Context, companyID uint, txType models.TransactionType, since *time.Time) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Transaction{}).
		Where("company_id = ? AND type = ? AND status = ?", companyID, txType, models.TransactionStatusCompleted)
	if since != nil {
		query = query.Where("created_at >= ?", *since)
	}
	var total int64
	if err := query.Select("COALESCE(SUM(amount),0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// LastByType returns the most recent completed transaction of one type
func (r *TransactionRepositoryImpl) LastByType(ctx context.Context, companyID uint, txType models.TransactionType) (*models.Transaction, error) {
	db := r.getDB(ctx)
	var transaction models.Transaction
	err := db.Where("company_id = ? AND type = ? AND status = ?", companyID, txType, models.TransactionStatusCompleted).
		Order("created_at DESC").First(&transaction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// CashflowTimeline aggregates daily inflow and outflow for the billing
// summary. Inflow is positive amounts, outflow the absolute value of
// negative amounts, completed transactions only.
func (r *TransactionRepositoryImpl) CashflowTimeline(ctx context.Context, companyID uint, since time.Time) ([]*CashflowDay, error) {
	db := r.getDB(ctx)
	rows := make([]*CashflowDay, 0)

	err := db.Model(&models.Transaction{}).
		Select("to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date, "+
			"COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END),0) AS inflow, "+
			"COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END),0) AS outflow").
		Where("company_id = ? AND status = ? AND created_at >= ?", companyID, models.TransactionStatusCompleted, since).
		Group("to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')").
		Order("date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ByFilter retrieves transactions based on filter criteria
func (r *TransactionRepositoryImpl) ByFilter(ctx context.Context, filter models.TransactionFilter, orderBy string, limit, offset int) ([]*models.Transaction, error) {
	db := r.getDB(ctx)
	var transactions []*models.Transaction

	query := r.applyFilter(db.Model(&models.Transaction{}), filter)
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

	if err := query.Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

// Count returns the number of transactions matching the filter
func (r *TransactionRepositoryImpl) Count(ctx context.Context, filter models.TransactionFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Transaction{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any transaction matching the filter exists
func (r *TransactionRepositoryImpl) Exists(ctx context.Context, filter models.TransactionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *TransactionRepositoryImpl) applyFilter(query *gorm.DB, filter models.TransactionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.CorrelationID != nil {
		query = query.Where("correlation_id = ?", *filter.CorrelationID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.InvoiceNumber != nil {
		query = query.Where("invoice_number = ?", *filter.InvoiceNumber)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}

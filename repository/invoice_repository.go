package repository

import (
	"context"
	"time"

	"github.com/aimarket/affiliate-engine/models"
	"gorm.io/gorm"
)

// InvoiceRepositoryImpl implements InvoiceRepository interface
type InvoiceRepositoryImpl struct {
	*BaseRepository[models.Invoice, models.InvoiceFilter]
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &InvoiceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Invoice, models.InvoiceFilter](db),
	}
}

// Update persists changes to an existing invoice
func (r *InvoiceRepositoryImpl) Update(ctx context.Context, invoice *models.Invoice) error {
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

	err = db.Save(invoice).Error
	return err
}

// NextSequence returns the next per-company invoice sequence number. Callers
// must hold the company ledger lock (run inside the generation transaction)
// so two invoices never draw the same number.
func (r *InvoiceRepositoryImpl) NextSequence(ctx context.Context, companyID uint) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Invoice{}).Where("company_id = ?", companyID).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

// UnpaidAggregate returns total amount and count of open invoices
func (r *InvoiceRepositoryImpl) UnpaidAggregate(ctx context.Context, companyID uint) (int64, int64, error) {
	db := r.getDB(ctx)
	var row struct {
		Total int64
		Count int64
	}
	err := db.Model(&models.Invoice{}).
		Select("COALESCE(SUM(amount),0) AS total, COUNT(*) AS count").
		Where("company_id = ? AND status IN ?", companyID, []models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusSent}).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Total, row.Count, nil
}

// UpdateStatusGuarded moves an invoice between statuses in one conditional
// statement; zero rows affected means the invoice was not in a legal source
// state.
func (r *InvoiceRepositoryImpl) UpdateStatusGuarded(ctx context.Context, invoiceID uint, from []models.InvoiceStatus, to models.InvoiceStatus, paidAt *time.Time) (int64, error) {
	db := r.getDB(ctx)

	updates := map[string]any{"status": to}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}

	res := db.Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", invoiceID, from).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ByFilter retrieves invoices based on filter criteria
func (r *InvoiceRepositoryImpl) ByFilter(ctx context.Context, filter models.InvoiceFilter, orderBy string, limit, offset int) ([]*models.Invoice, error) {
	db := r.getDB(ctx)
	var invoices []*models.Invoice

	query := r.applyFilter(db.Model(&models.Invoice{}), filter)
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

	if err := query.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// Count returns the number of invoices matching the filter
func (r *InvoiceRepositoryImpl) Count(ctx context.Context, filter models.InvoiceFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Invoice{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any invoice matching the filter exists
func (r *InvoiceRepositoryImpl) Exists(ctx context.Context, filter models.InvoiceFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *InvoiceRepositoryImpl) applyFilter(query *gorm.DB, filter models.InvoiceFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
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

// PayoutRepositoryImpl implements PayoutRepository interface
type PayoutRepositoryImpl struct {
	*BaseRepository[models.Payout, models.PayoutFilter]
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &PayoutRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Payout, models.PayoutFilter](db),
	}
}

// Update persists changes to an existing payout
func (r *PayoutRepositoryImpl) Update(ctx context.Context, payout *models.Payout) error {
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

	err = db.Save(payout).Error
	return err
}

// ByFilter retrieves payouts based on filter criteria
func (r *PayoutRepositoryImpl) ByFilter(ctx context.Context, filter models.PayoutFilter, orderBy string, limit, offset int) ([]*models.Payout, error) {
	db := r.getDB(ctx)
	var payouts []*models.Payout

	query := r.applyFilter(db.Model(&models.Payout{}), filter)
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

	if err := query.Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

// Count returns the number of payouts matching the filter
func (r *PayoutRepositoryImpl) Count(ctx context.Context, filter models.PayoutFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Payout{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any payout matching the filter exists
func (r *PayoutRepositoryImpl) Exists(ctx context.Context, filter models.PayoutFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PayoutRepositoryImpl) applyFilter(query *gorm.DB, filter models.PayoutFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	return query
}

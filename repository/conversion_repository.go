package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aimarket/affiliate-engine/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConversionRepositoryImpl implements ConversionRepository interface
type ConversionRepositoryImpl struct {
	*BaseRepository[models.Conversion, models.ConversionFilter]
}

// NewConversionRepository creates a new conversion repository
func NewConversionRepository(db *gorm.DB) ConversionRepository {
	return &ConversionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Conversion, models.ConversionFilter](db),
	}
}

// ByExternalID finds a conversion by its postback dedup key
func (r *ConversionRepositoryImpl) ByExternalID(ctx context.Context, companyID uint, refCode, externalID string) (*models.Conversion, error) {
	db := r.getDB(ctx)
	var conversion models.Conversion
	err := db.Where("company_id = ? AND ref_code = ? AND external_conversion_id = ?", companyID, refCode, externalID).
		Last(&conversion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversion, nil
}

// UpdateGuarded performs a conditional single-statement update. The guard map
// is ANDed into the WHERE clause together with the id; the returned count is
// zero when the conversion was not in the expected state.
func (r *ConversionRepositoryImpl) UpdateGuarded(ctx context.Context, conversionID uint, guard map[string]any, updates map[string]any) (int64, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Conversion{}).Where("id = ?", conversionID)
	for cond, arg := range guard {
		if arg == nil {
			query = query.Where(cond)
		} else {
			query = query.Where(cond, arg)
		}
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListBillable selects approved, unbilled conversions of a company within an
// optional range. With lock=true rows are locked FOR UPDATE so a concurrent
// invoice generation cannot select an overlapping set.
func (r *ConversionRepositoryImpl) ListBillable(ctx context.Context, companyID uint, from, to *time.Time, lock bool) ([]*models.Conversion, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Conversion{}).
		Where("company_id = ? AND status = ? AND billed_at IS NULL", companyID, models.ConversionStatusApproved)
	query = applyRange(query, from, to)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var conversions []*models.Conversion
	if err := query.Order("timestamp ASC").Find(&conversions).Error; err != nil {
		return nil, err
	}
	return conversions, nil
}

// ListPayable selects approved, billed, unpaid conversions of a company
// within an optional range, optionally locked FOR UPDATE.
func (r *ConversionRepositoryImpl) ListPayable(ctx context.Context, companyID uint, from, to *time.Time, lock bool) ([]*models.Conversion, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Conversion{}).
		Where("company_id = ? AND status = ? AND billed_at IS NOT NULL", companyID, models.ConversionStatusApproved).
		Where("metadata->>'paid_at' IS NULL")
	query = applyRange(query, from, to)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var conversions []*models.Conversion
	if err := query.Order("timestamp ASC").Find(&conversions).Error; err != nil {
		return nil, err
	}
	return conversions, nil
}

// ListByInvoice lists the conversions billed under one invoice
func (r *ConversionRepositoryImpl) ListByInvoice(ctx context.Context, invoiceID uint) ([]*models.Conversion, error) {
	db := r.getDB(ctx)
	var conversions []*models.Conversion
	err := db.Where("invoice_id = ?", invoiceID).Order("timestamp ASC").Find(&conversions).Error
	if err != nil {
		return nil, err
	}
	return conversions, nil
}

// SumCommission returns total commission and total conversion value for the filter
func (r *ConversionRepositoryImpl) SumCommission(ctx context.Context, filter models.ConversionFilter) (int64, int64, error) {
	db := r.getDB(ctx)

	var row struct {
		Commission int64
		Revenue    int64
	}
	query := r.applyFilter(db.Model(&models.Conversion{}), filter).
		Select("COALESCE(SUM(commission_amount),0) AS commission, COALESCE(SUM(conversion_value),0) AS revenue")
	if err := query.Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return row.Commission, row.Revenue, nil
}

// DailyCounts returns per-day conversion counts and commission totals within a range
func (r *ConversionRepositoryImpl) DailyCounts(ctx context.Context, companyID uint, from, to *time.Time) ([]*DailyConversionCount, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Conversion{}).
		Select(`to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date,
			COUNT(*) AS count,
			COALESCE(SUM(commission_amount), 0) AS commission`).
		Where("company_id = ? AND status <> ?", companyID, models.ConversionStatusReversed)
	if from != nil {
		query = query.Where("timestamp >= ?", *from)
	}
	if to != nil {
		query = query.Where("timestamp < ?", *to)
	}

	var rows []*DailyConversionCount
	err := query.Group("date").Order("date ASC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// StatsByRefCode groups non-reversed conversion counts, commission and
// revenue per ref code within a range, highest commission first
func (r *ConversionRepositoryImpl) StatsByRefCode(ctx context.Context, companyID uint, from, to *time.Time) ([]*RefCodeStats, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Conversion{}).
		Select(`ref_code,
			COUNT(*) AS conversions,
			COALESCE(SUM(commission_amount), 0) AS commission,
			COALESCE(SUM(conversion_value), 0) AS revenue`).
		Where("company_id = ? AND status <> ?", companyID, models.ConversionStatusReversed)
	if from != nil {
		query = query.Where("timestamp >= ?", *from)
	}
	if to != nil {
		query = query.Where("timestamp < ?", *to)
	}

	var rows []*RefCodeStats
	err := query.Group("ref_code").Order("commission DESC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ByFilter retrieves conversions based on filter criteria
func (r *ConversionRepositoryImpl) ByFilter(ctx context.Context, filter models.ConversionFilter, orderBy string, limit, offset int) ([]*models.Conversion, error) {
	db := r.getDB(ctx)
	var conversions []*models.Conversion

	query := r.applyFilter(db.Model(&models.Conversion{}), filter)
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

	if err := query.Find(&conversions).Error; err != nil {
		return nil, err
	}
	return conversions, nil
}

// Count returns the number of conversions matching the filter
func (r *ConversionRepositoryImpl) Count(ctx context.Context, filter models.ConversionFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Conversion{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any conversion matching the filter exists
func (r *ConversionRepositoryImpl) Exists(ctx context.Context, filter models.ConversionFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ConversionRepositoryImpl) applyFilter(query *gorm.DB, filter models.ConversionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CompanyID != nil {
		query = query.Where("company_id = ?", *filter.CompanyID)
	}
	if filter.RefCode != nil {
		query = query.Where("ref_code = ?", *filter.RefCode)
	}
	if filter.ExternalConversionID != nil {
		query = query.Where("external_conversion_id = ?", *filter.ExternalConversionID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Billed != nil {
		if *filter.Billed {
			query = query.Where("billed_at IS NOT NULL")
		} else {
			query = query.Where("billed_at IS NULL")
		}
	}
	if filter.Paid != nil {
		if *filter.Paid {
			query = query.Where("metadata->>'paid_at' IS NOT NULL")
		} else {
			query = query.Where("metadata->>'paid_at' IS NULL")
		}
	}
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.Query != nil {
		query = query.Where("external_conversion_id LIKE ?", "%"+*filter.Query+"%")
	}
	if filter.TimestampAfter != nil {
		query = query.Where("timestamp >= ?", *filter.TimestampAfter)
	}
	if filter.TimestampBefore != nil {
		query = query.Where("timestamp <= ?", *filter.TimestampBefore)
	}
	return query
}

func applyRange(query *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		query = query.Where("timestamp >= ?", *from)
	}
	if to != nil {
		query = query.Where("timestamp <= ?", *to)
	}
	return query
}

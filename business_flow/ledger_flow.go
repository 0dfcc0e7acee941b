// Package businessflow contains the core business logic and use cases for ledger workflows
package businessflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// LedgerFlow handles the append-only transaction ledger
type LedgerFlow interface {
	Recharge(ctx context.Context, req *dto.RechargeRequest, metadata *ClientMetadata) (*dto.RechargeResponse, error)
	RecordSpend(ctx context.Context, req *dto.RecordSpendRequest, metadata *ClientMetadata) (*dto.RecordSpendResponse, error)
	RecordAdjustment(ctx context.Context, req *dto.RecordAdjustmentRequest, metadata *ClientMetadata) (*dto.RecordAdjustmentResponse, error)
	RecordRefund(ctx context.Context, req *dto.RecordRefundRequest, metadata *ClientMetadata) (*dto.RecordRefundResponse, error)
	GetBalance(ctx context.Context, req *dto.GetBalanceRequest, metadata *ClientMetadata) (*dto.GetBalanceResponse, error)
	GetTransactionHistory(ctx context.Context, req *dto.GetTransactionHistoryRequest, metadata *ClientMetadata) (*dto.TransactionHistoryResponse, error)
	GetBillingSummary(ctx context.Context, req *dto.GetBillingSummaryRequest, metadata *ClientMetadata) (*dto.BillingSummaryResponse, error)
}

// LedgerFlowImpl implements the ledger business flow
type LedgerFlowImpl struct {
	transactionRepo repository.TransactionRepository
	invoiceRepo     repository.InvoiceRepository
	conversionRepo  repository.ConversionRepository
	companyRepo     repository.CompanyRepository
	auditRepo       repository.AuditLogRepository
	db              *gorm.DB
	rc              *redis.Client
	cacheConfig     *config.CacheConfig
}

// NewLedgerFlow creates a new ledger flow instance
func NewLedgerFlow(
	transactionRepo repository.TransactionRepository,
	invoiceRepo repository.InvoiceRepository,
	conversionRepo repository.ConversionRepository,
	companyRepo repository.CompanyRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
) LedgerFlow {
	return &LedgerFlowImpl{
		transactionRepo: transactionRepo,
		invoiceRepo:     invoiceRepo,
		conversionRepo:  conversionRepo,
		companyRepo:     companyRepo,
		auditRepo:       auditRepo,
		db:              db,
		rc:              rc,
		cacheConfig:     cacheConfig,
	}
}

// Recharge appends a positive completed ledger row. The balance is never a
// stored counter; it is recomputed as the sum of completed amounts, so the
// cache entry is dropped rather than adjusted.
func (s *LedgerFlowImpl) Recharge(ctx context.Context, req *dto.RechargeRequest, metadata *ClientMetadata) (*dto.RechargeResponse, error) {
	if req.Amount <= 0 {
		return nil, NewBusinessError("RECHARGE_FAILED", "Recharge failed", ErrAmountTooLow)
	}

	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("RECHARGE_FAILED", "Recharge failed", err)
	}

	description := req.Description
	if description == "" {
		description = "Balance recharge"
	}

	tx := &models.Transaction{
		CompanyID:   company.ID,
		Type:        models.TransactionTypeRecharge,
		Status:      models.TransactionStatusCompleted,
		Amount:      req.Amount,
		Currency:    utils.DefaultCurrency,
		Description: description,
	}
	if req.PaymentMethod != "" {
		tx.PaymentMethod = &req.PaymentMethod
	}

	var balance int64
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.transactionRepo.Save(txCtx, tx); err != nil {
			return err
		}
		balance, err = s.transactionRepo.SumCompletedByCompany(txCtx, company.ID)
		return err
	})
	if err != nil {
		errMsg := fmt.Sprintf("Recharge failed for company %d: %s", company.ID, err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionBalanceRecharged, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("RECHARGE_FAILED", "Failed to recharge balance", err)
	}

	s.dropBalanceCache(ctx, company.ID)

	msg := fmt.Sprintf("Recharged company %d by %d, new balance %d", company.ID, req.Amount, balance)
	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionBalanceRecharged, msg, true, nil, metadata)

	return &dto.RechargeResponse{
		Message:         "Balance recharged",
		TransactionUUID: tx.UUID.String(),
		NewBalance:      balance,
	}, nil
}

// RecordSpend appends a negative completed ledger row for platform spend.
// The balance check and the append run in one transaction so two concurrent
// spends cannot both pass the same balance.
func (s *LedgerFlowImpl) RecordSpend(ctx context.Context, req *dto.RecordSpendRequest, metadata *ClientMetadata) (*dto.RecordSpendResponse, error) {
	if req.Amount <= 0 {
		return nil, NewBusinessError("RECORD_SPEND_FAILED", "Record spend failed", ErrAmountTooLow)
	}

	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("RECORD_SPEND_FAILED", "Record spend failed", err)
	}

	description := req.Description
	if description == "" {
		description = "Platform spend"
	}

	tx := &models.Transaction{
		CompanyID:   company.ID,
		Type:        models.TransactionTypeSpend,
		Status:      models.TransactionStatusCompleted,
		Amount:      -req.Amount,
		Currency:    utils.DefaultCurrency,
		Description: description,
	}

	var balance int64
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		current, err := s.transactionRepo.SumCompletedByCompany(txCtx, company.ID)
		if err != nil {
			return err
		}
		if current < req.Amount {
			return ErrInsufficientFunds
		}
		if err := s.transactionRepo.Save(txCtx, tx); err != nil {
			return err
		}
		balance = current - req.Amount
		return nil
	})
	if err != nil {
		errMsg := fmt.Sprintf("Spend failed for company %d: %s", company.ID, err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionSpendRecorded, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("RECORD_SPEND_FAILED", "Failed to record spend", err)
	}

	s.dropBalanceCache(ctx, company.ID)

	msg := fmt.Sprintf("Recorded spend of %d for company %d, new balance %d", req.Amount, company.ID, balance)
	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionSpendRecorded, msg, true, nil, metadata)

	return &dto.RecordSpendResponse{
		Message:         "Spend recorded",
		TransactionUUID: tx.UUID.String(),
		NewBalance:      balance,
	}, nil
}

// RecordAdjustment appends a signed completed ledger row for a manual
// balance correction. Unlike spend, a negative adjustment may push the
// balance below zero; the correction mirrors reality rather than policy.
func (s *LedgerFlowImpl) RecordAdjustment(ctx context.Context, req *dto.RecordAdjustmentRequest, metadata *ClientMetadata) (*dto.RecordAdjustmentResponse, error) {
	if req.Amount == 0 {
		return nil, NewBusinessError("RECORD_ADJUSTMENT_FAILED", "Record adjustment failed", ErrAmountTooLow)
	}

	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("RECORD_ADJUSTMENT_FAILED", "Record adjustment failed", err)
	}

	tx := &models.Transaction{
		CompanyID:   company.ID,
		Type:        models.TransactionTypeAdjustment,
		Status:      models.TransactionStatusCompleted,
		Amount:      req.Amount,
		Currency:    utils.DefaultCurrency,
		Description: req.Description,
	}

	var balance int64
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.transactionRepo.Save(txCtx, tx); err != nil {
			return err
		}
		balance, err = s.transactionRepo.SumCompletedByCompany(txCtx, company.ID)
		return err
	})
	if err != nil {
		errMsg := fmt.Sprintf("Adjustment failed for company %d: %s", company.ID, err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionAdjustmentRecorded, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("RECORD_ADJUSTMENT_FAILED", "Failed to record adjustment", err)
	}

	s.dropBalanceCache(ctx, company.ID)

	msg := fmt.Sprintf("Recorded adjustment of %d for company %d, new balance %d", req.Amount, company.ID, balance)
	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionAdjustmentRecorded, msg, true, nil, metadata)

	return &dto.RecordAdjustmentResponse{
		Message:         "Adjustment recorded",
		TransactionUUID: tx.UUID.String(),
		NewBalance:      balance,
	}, nil
}

// RecordRefund appends a positive completed ledger row crediting a
// previously captured amount back to the company.
func (s *LedgerFlowImpl) RecordRefund(ctx context.Context, req *dto.RecordRefundRequest, metadata *ClientMetadata) (*dto.RecordRefundResponse, error) {
	if req.Amount <= 0 {
		return nil, NewBusinessError("RECORD_REFUND_FAILED", "Record refund failed", ErrAmountTooLow)
	}

	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("RECORD_REFUND_FAILED", "Record refund failed", err)
	}

	description := req.Description
	if description == "" {
		description = "Refund"
	}

	tx := &models.Transaction{
		CompanyID:   company.ID,
		Type:        models.TransactionTypeRefund,
		Status:      models.TransactionStatusCompleted,
		Amount:      req.Amount,
		Currency:    utils.DefaultCurrency,
		Description: description,
	}

	var balance int64
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		if err := s.transactionRepo.Save(txCtx, tx); err != nil {
			return err
		}
		balance, err = s.transactionRepo.SumCompletedByCompany(txCtx, company.ID)
		return err
	})
	if err != nil {
		errMsg := fmt.Sprintf("Refund failed for company %d: %s", company.ID, err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionRefundRecorded, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("RECORD_REFUND_FAILED", "Failed to record refund", err)
	}

	s.dropBalanceCache(ctx, company.ID)

	msg := fmt.Sprintf("Recorded refund of %d for company %d, new balance %d", req.Amount, company.ID, balance)
	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionRefundRecorded, msg, true, nil, metadata)

	return &dto.RecordRefundResponse{
		Message:         "Refund recorded",
		TransactionUUID: tx.UUID.String(),
		NewBalance:      balance,
	}, nil
}

// GetBalance returns the company balance, served from cache when fresh
func (s *LedgerFlowImpl) GetBalance(ctx context.Context, req *dto.GetBalanceRequest, metadata *ClientMetadata) (*dto.GetBalanceResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("GET_BALANCE_FAILED", "Get balance failed", err)
	}

	if s.rc != nil {
		key := balanceCacheKey(*s.cacheConfig, company.ID)
		if raw, err := s.rc.Get(ctx, key).Result(); err == nil {
			if cached, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return &dto.GetBalanceResponse{Balance: cached, Currency: utils.DefaultCurrency, Cached: true}, nil
			}
		}
	}

	balance, err := s.transactionRepo.SumCompletedByCompany(ctx, company.ID)
	if err != nil {
		return nil, NewBusinessError("GET_BALANCE_FAILED", "Failed to compute balance", err)
	}

	if s.rc != nil {
		key := balanceCacheKey(*s.cacheConfig, company.ID)
		_ = s.rc.Set(ctx, key, strconv.FormatInt(balance, 10), s.cacheConfig.DefaultTTL).Err()
	}

	return &dto.GetBalanceResponse{Balance: balance, Currency: utils.DefaultCurrency, Cached: false}, nil
}

// GetTransactionHistory returns a page of ledger rows
func (s *LedgerFlowImpl) GetTransactionHistory(ctx context.Context, req *dto.GetTransactionHistoryRequest, metadata *ClientMetadata) (*dto.TransactionHistoryResponse, error) {
	limit, offset, err := NormalizePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("TRANSACTION_HISTORY_FAILED", "Transaction history failed", err)
	}

	from, to, err := ResolveRange(req.Range, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("TRANSACTION_HISTORY_FAILED", "Transaction history failed", err)
	}

	filter := models.TransactionFilter{
		CompanyID:     &req.CompanyID,
		CreatedAfter:  from,
		CreatedBefore: to,
	}
	if req.Type != nil {
		t := models.TransactionType(*req.Type)
		filter.Type = &t
	}
	if req.Status != nil {
		st := models.TransactionStatus(*req.Status)
		filter.Status = &st
	}

	transactions, err := s.transactionRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("TRANSACTION_HISTORY_FAILED", "Failed to list transactions", err)
	}

	total, err := s.transactionRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("TRANSACTION_HISTORY_FAILED", "Failed to count transactions", err)
	}

	items := make([]dto.TransactionItem, 0, len(transactions))
	for _, t := range transactions {
		items = append(items, dto.TransactionItem{
			UUID:          t.UUID.String(),
			Type:          string(t.Type),
			Status:        string(t.Status),
			Amount:        t.Amount,
			Currency:      t.Currency,
			PaymentMethod: t.PaymentMethod,
			InvoiceNumber: t.InvoiceNumber,
			Description:   t.Description,
			CreatedAt:     t.CreatedAt,
		})
	}

	return &dto.TransactionHistoryResponse{
		Items:      items,
		Pagination: buildPagination(req.Page, req.PageSize, total),
	}, nil
}

// GetBillingSummary aggregates the billing dashboard numbers for one company
func (s *LedgerFlowImpl) GetBillingSummary(ctx context.Context, req *dto.GetBillingSummaryRequest, metadata *ClientMetadata) (*dto.BillingSummaryResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Billing summary failed", err)
	}

	rangeKeyword := req.Range
	if rangeKeyword == "" {
		rangeKeyword = "30d"
	}
	from, _, err := ResolveRange(rangeKeyword, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Billing summary failed", err)
	}
	since := utils.UTCNow().AddDate(0, 0, -30)
	if from != nil {
		since = *from
	}

	balance, err := s.transactionRepo.SumCompletedByCompany(ctx, company.ID)
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Failed to compute balance", err)
	}

	unpaidAmount, unpaidCount, err := s.invoiceRepo.UnpaidAggregate(ctx, company.ID)
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Failed to aggregate open invoices", err)
	}

	// Approved commission not yet on any invoice.
	approved := models.ConversionStatusApproved
	payable, _, err := s.conversionRepo.SumCommission(ctx, models.ConversionFilter{
		CompanyID: &company.ID,
		Status:    &approved,
		Billed:    utils.ToPtr(false),
	})
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Failed to sum payable commission", err)
	}

	deposited, err := s.transactionRepo.SumByType(ctx, company.ID, models.TransactionTypeRecharge, nil)
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Failed to sum deposits", err)
	}

	lastRecharge, err := s.transactionRepo.LastByType(ctx, company.ID, models.TransactionTypeRecharge)
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Failed to load last recharge", err)
	}

	spend, err := s.transactionRepo.SumByType(ctx, company.ID, models.TransactionTypeSpend, &since)
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Failed to sum spend", err)
	}

	timeline, err := s.transactionRepo.CashflowTimeline(ctx, company.ID, since)
	if err != nil {
		return nil, NewBusinessError("BILLING_SUMMARY_FAILED", "Failed to build cashflow timeline", err)
	}

	resp := &dto.BillingSummaryResponse{
		Balance:             balance,
		Currency:            utils.DefaultCurrency,
		PayableToAffiliates: payable,
		TotalDeposited:      deposited,
		UnpaidInvoiceAmount: unpaidAmount,
		UnpaidInvoiceCount:  unpaidCount,
		TotalSpend:          -spend, // Spend rows are negative in the ledger
		Cashflow:            make([]dto.CashflowPoint, 0, len(timeline)),
	}
	if lastRecharge != nil {
		resp.LastRechargeAt = &lastRecharge.CreatedAt
		resp.LastRechargeAmount = lastRecharge.Amount
	}
	for _, day := range timeline {
		resp.Cashflow = append(resp.Cashflow, dto.CashflowPoint{Date: day.Date, Inflow: day.Inflow, Outflow: day.Outflow})
	}

	return resp, nil
}

// dropBalanceCache invalidates the cached balance after a ledger append
func (s *LedgerFlowImpl) dropBalanceCache(ctx context.Context, companyID uint) {
	if s.rc == nil {
		return
	}
	_ = s.rc.Del(ctx, balanceCacheKey(*s.cacheConfig, companyID)).Err()
}

// getActiveCompany loads a company and rejects inactive ones
func getActiveCompany(ctx context.Context, companyRepo repository.CompanyRepository, companyID uint) (*models.Company, error) {
	company, err := companyRepo.ByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, ErrCompanyNotFound
	}
	if !company.IsActive {
		return nil, ErrCompanyInactive
	}
	return company, nil
}

// Package businessflow contains the core business logic and use cases for billing workflows
package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// InvoiceFlow handles invoice and payout generation and lifecycle
type InvoiceFlow interface {
	GenerateInvoice(ctx context.Context, req *dto.GenerateInvoiceRequest, metadata *ClientMetadata) (*dto.GenerateInvoiceResponse, error)
	MarkInvoicePaid(ctx context.Context, req *dto.InvoiceActionRequest, metadata *ClientMetadata) (*dto.InvoiceActionResponse, error)
	CancelInvoice(ctx context.Context, req *dto.InvoiceActionRequest, metadata *ClientMetadata) (*dto.InvoiceActionResponse, error)
	ListInvoices(ctx context.Context, req *dto.ListInvoicesRequest, metadata *ClientMetadata) (*dto.ListInvoicesResponse, error)
	GeneratePayout(ctx context.Context, req *dto.GeneratePayoutRequest, metadata *ClientMetadata) (*dto.GeneratePayoutResponse, error)
	ListPayouts(ctx context.Context, req *dto.ListPayoutsRequest, metadata *ClientMetadata) (*dto.ListPayoutsResponse, error)
}

// InvoiceFlowImpl implements the billing business flow
type InvoiceFlowImpl struct {
	invoiceRepo     repository.InvoiceRepository
	payoutRepo      repository.PayoutRepository
	conversionRepo  repository.ConversionRepository
	transactionRepo repository.TransactionRepository
	companyRepo     repository.CompanyRepository
	auditRepo       repository.AuditLogRepository
	db              *gorm.DB
	rc              *redis.Client
	cacheConfig     *config.CacheConfig
	publisher       EventPublisher
}

// NewInvoiceFlow creates a new invoice flow instance
func NewInvoiceFlow(
	invoiceRepo repository.InvoiceRepository,
	payoutRepo repository.PayoutRepository,
	conversionRepo repository.ConversionRepository,
	transactionRepo repository.TransactionRepository,
	companyRepo repository.CompanyRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
	publisher EventPublisher,
) InvoiceFlow {
	return &InvoiceFlowImpl{
		invoiceRepo:     invoiceRepo,
		payoutRepo:      payoutRepo,
		conversionRepo:  conversionRepo,
		transactionRepo: transactionRepo,
		companyRepo:     companyRepo,
		auditRepo:       auditRepo,
		db:              db,
		rc:              rc,
		cacheConfig:     cacheConfig,
		publisher:       publisher,
	}
}

// GenerateInvoice batches every approved unbilled conversion in range into a
// new invoice. The selection runs FOR UPDATE inside one transaction, so two
// concurrent generations cannot bill an overlapping set; either all selected
// conversions are stamped or the whole invoice is rolled back.
func (s *InvoiceFlowImpl) GenerateInvoice(ctx context.Context, req *dto.GenerateInvoiceRequest, metadata *ClientMetadata) (*dto.GenerateInvoiceResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("GENERATE_INVOICE_FAILED", "Generate invoice failed", err)
	}

	from, to, err := ResolveRange(req.Range, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("GENERATE_INVOICE_FAILED", "Generate invoice failed", err)
	}

	var invoice *models.Invoice
	var count int

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		conversions, err := s.conversionRepo.ListBillable(txCtx, company.ID, from, to, true)
		if err != nil {
			return err
		}
		if len(conversions) == 0 {
			return ErrNothingToInvoice
		}

		seq, err := s.invoiceRepo.NextSequence(txCtx, company.ID)
		if err != nil {
			return err
		}

		var amount int64
		periodStart := conversions[0].Timestamp
		periodEnd := conversions[0].Timestamp
		for _, c := range conversions {
			amount += c.CommissionAmount
			if c.Timestamp.Before(periodStart) {
				periodStart = c.Timestamp
			}
			if c.Timestamp.After(periodEnd) {
				periodEnd = c.Timestamp
			}
		}

		invoice = &models.Invoice{
			CompanyID:     company.ID,
			InvoiceNumber: fmt.Sprintf("INV-%d-%d", company.ID, seq),
			Amount:        amount,
			Currency:      utils.DefaultCurrency,
			Status:        models.InvoiceStatusSent,
			PeriodStart:   &periodStart,
			PeriodEnd:     &periodEnd,
		}
		if err := s.invoiceRepo.Save(txCtx, invoice); err != nil {
			return err
		}

		now := utils.UTCNow()
		for _, c := range conversions {
			affected, err := s.conversionRepo.UpdateGuarded(txCtx, c.ID,
				map[string]any{
					"status = ?":        models.ConversionStatusApproved,
					"billed_at IS NULL": nil,
				},
				map[string]any{"billed_at": now, "invoice_id": invoice.ID, "updated_at": now},
			)
			if err != nil {
				return err
			}
			if affected == 0 {
				// The row mutated despite the lock; abort rather than bill a
				// conversion that is no longer billable.
				return ErrInvalidTransition
			}
		}

		ledgerRow := &models.Transaction{
			CompanyID:     company.ID,
			Type:          models.TransactionTypeInvoice,
			Status:        models.TransactionStatusCompleted,
			Amount:        -amount,
			Currency:      utils.DefaultCurrency,
			InvoiceNumber: &invoice.InvoiceNumber,
			Description:   fmt.Sprintf("Invoice %s issued for %d conversions", invoice.InvoiceNumber, len(conversions)),
		}
		if err := s.transactionRepo.Save(txCtx, ledgerRow); err != nil {
			return err
		}

		count = len(conversions)
		return nil
	})
	if err != nil {
		errMsg := fmt.Sprintf("Invoice generation failed for company %d: %s", company.ID, err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionInvoiceGenerated, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("GENERATE_INVOICE_FAILED", "Failed to generate invoice", err)
	}

	s.dropBalanceCache(ctx, company.ID)

	msg := fmt.Sprintf("Generated invoice %s for company %d, %d conversions, amount %d", invoice.InvoiceNumber, company.ID, count, invoice.Amount)
	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionInvoiceGenerated, msg, true, nil, metadata)

	if s.publisher != nil {
		s.publisher.Publish(ctx, company.ID, models.WebhookEventInvoiceCreated, invoiceToItem(invoice))
	}

	return &dto.GenerateInvoiceResponse{
		Message:         "Invoice generated",
		InvoiceUUID:     invoice.UUID.String(),
		InvoiceNumber:   invoice.InvoiceNumber,
		Amount:          invoice.Amount,
		Currency:        invoice.Currency,
		ConversionCount: count,
	}, nil
}

// MarkInvoicePaid settles an open invoice: the invoice flips to paid, every
// conversion billed under it is marked paid, and the received payment lands
// in the ledger with its payment method. All three happen in one transaction.
func (s *InvoiceFlowImpl) MarkInvoicePaid(ctx context.Context, req *dto.InvoiceActionRequest, metadata *ClientMetadata) (*dto.InvoiceActionResponse, error) {
	invoice, err := s.loadOwnedInvoice(ctx, req)
	if err != nil {
		return nil, NewBusinessError("MARK_INVOICE_PAID_FAILED", "Mark invoice paid failed", err)
	}

	received := req.Amount
	if received == 0 {
		received = invoice.Amount
	}
	var paymentMethod *string
	if req.PaymentMethod != "" {
		paymentMethod = &req.PaymentMethod
	}

	now := utils.UTCNow()
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		affected, err := s.invoiceRepo.UpdateStatusGuarded(txCtx, invoice.ID,
			[]models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusSent},
			models.InvoiceStatusPaid, &now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrInvoiceNotOpen
		}

		conversions, err := s.conversionRepo.ListByInvoice(txCtx, invoice.ID)
		if err != nil {
			return err
		}
		for _, c := range conversions {
			if _, err := s.conversionRepo.UpdateGuarded(txCtx, c.ID,
				map[string]any{"metadata->>'paid_at' IS NULL": nil},
				map[string]any{
					"status":     models.ConversionStatusPaid,
					"updated_at": now,
					"metadata":   gorm.Expr(`jsonb_set(COALESCE(metadata, '{}'::jsonb), '{paid_at}', to_jsonb(?::text))`, now.Format(time.RFC3339Nano)),
				},
			); err != nil {
				return err
			}
		}

		ledgerRow := &models.Transaction{
			CompanyID:     invoice.CompanyID,
			Type:          models.TransactionTypeInvoice,
			Status:        models.TransactionStatusCompleted,
			Amount:        received,
			Currency:      invoice.Currency,
			PaymentMethod: paymentMethod,
			InvoiceNumber: &invoice.InvoiceNumber,
			Description:   fmt.Sprintf("Payment received for invoice %s", invoice.InvoiceNumber),
		}
		return s.transactionRepo.Save(txCtx, ledgerRow)
	})
	if err != nil {
		return nil, NewBusinessError("MARK_INVOICE_PAID_FAILED", "Failed to mark invoice paid", err)
	}

	s.dropBalanceCache(ctx, invoice.CompanyID)

	invoice.Status = models.InvoiceStatusPaid
	invoice.PaidAt = &now

	msg := fmt.Sprintf("Marked invoice %s paid", invoice.InvoiceNumber)
	_ = createAuditLog(ctx, s.auditRepo, &invoice.CompanyID, models.AuditActionInvoiceMarkedPaid, msg, true, nil, metadata)

	if s.publisher != nil {
		s.publisher.Publish(ctx, invoice.CompanyID, models.WebhookEventInvoicePaid, invoiceToItem(invoice))
	}

	return &dto.InvoiceActionResponse{Message: "Invoice marked paid", Item: utils.ToPtr(invoiceToItem(invoice))}, nil
}

// CancelInvoice voids an open invoice and unbills its conversions, returning
// them to the billable pool. Paid invoices cannot be canceled, and a paid
// conversion under the invoice fails the whole cancel.
func (s *InvoiceFlowImpl) CancelInvoice(ctx context.Context, req *dto.InvoiceActionRequest, metadata *ClientMetadata) (*dto.InvoiceActionResponse, error) {
	invoice, err := s.loadOwnedInvoice(ctx, req)
	if err != nil {
		return nil, NewBusinessError("CANCEL_INVOICE_FAILED", "Cancel invoice failed", err)
	}

	now := utils.UTCNow()
	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		affected, err := s.invoiceRepo.UpdateStatusGuarded(txCtx, invoice.ID,
			[]models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusSent},
			models.InvoiceStatusCanceled, nil)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrInvoiceNotOpen
		}

		conversions, err := s.conversionRepo.ListByInvoice(txCtx, invoice.ID)
		if err != nil {
			return err
		}
		for _, c := range conversions {
			affected, err := s.conversionRepo.UpdateGuarded(txCtx, c.ID,
				map[string]any{
					"invoice_id = ?":               invoice.ID,
					"metadata->>'paid_at' IS NULL": nil,
				},
				map[string]any{"billed_at": nil, "invoice_id": nil, "updated_at": now},
			)
			if err != nil {
				return err
			}
			if affected == 0 {
				// A paid conversion under this invoice blocks the whole
				// cancel; rolling back leaves every row untouched.
				return ErrConversionLocked
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("CANCEL_INVOICE_FAILED", "Failed to cancel invoice", err)
	}

	invoice.Status = models.InvoiceStatusCanceled

	msg := fmt.Sprintf("Canceled invoice %s", invoice.InvoiceNumber)
	_ = createAuditLog(ctx, s.auditRepo, &invoice.CompanyID, models.AuditActionInvoiceCanceled, msg, true, nil, metadata)

	if s.publisher != nil {
		s.publisher.Publish(ctx, invoice.CompanyID, models.WebhookEventInvoiceCanceled, invoiceToItem(invoice))
	}

	return &dto.InvoiceActionResponse{Message: "Invoice canceled", Item: utils.ToPtr(invoiceToItem(invoice))}, nil
}

// ListInvoices returns a page of invoices for a company
func (s *InvoiceFlowImpl) ListInvoices(ctx context.Context, req *dto.ListInvoicesRequest, metadata *ClientMetadata) (*dto.ListInvoicesResponse, error) {
	limit, offset, err := NormalizePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_INVOICES_FAILED", "List invoices failed", err)
	}

	filter := models.InvoiceFilter{CompanyID: &req.CompanyID}
	if req.Status != nil {
		status := models.InvoiceStatus(*req.Status)
		filter.Status = &status
	}

	invoices, err := s.invoiceRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_INVOICES_FAILED", "Failed to list invoices", err)
	}

	total, err := s.invoiceRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_INVOICES_FAILED", "Failed to count invoices", err)
	}

	items := make([]dto.InvoiceItem, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, invoiceToItem(inv))
	}

	return &dto.ListInvoicesResponse{
		Items:      items,
		Pagination: buildPagination(req.Page, req.PageSize, total),
	}, nil
}

// GeneratePayout batches every billed unpaid conversion in range into a
// payout, marks them paid and appends the outbound ledger row, all in one
// transaction with the selection locked FOR UPDATE.
func (s *InvoiceFlowImpl) GeneratePayout(ctx context.Context, req *dto.GeneratePayoutRequest, metadata *ClientMetadata) (*dto.GeneratePayoutResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("GENERATE_PAYOUT_FAILED", "Generate payout failed", err)
	}

	from, to, err := ResolveRange(req.Range, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("GENERATE_PAYOUT_FAILED", "Generate payout failed", err)
	}

	var payout *models.Payout
	var count int

	err = repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		conversions, err := s.conversionRepo.ListPayable(txCtx, company.ID, from, to, true)
		if err != nil {
			return err
		}
		if len(conversions) == 0 {
			return ErrNothingToPayout
		}

		var amount int64
		periodStart := conversions[0].Timestamp
		periodEnd := conversions[0].Timestamp
		for _, c := range conversions {
			amount += c.CommissionAmount
			if c.Timestamp.Before(periodStart) {
				periodStart = c.Timestamp
			}
			if c.Timestamp.After(periodEnd) {
				periodEnd = c.Timestamp
			}
		}

		payout = &models.Payout{
			CompanyID:   company.ID,
			Amount:      amount,
			Currency:    utils.DefaultCurrency,
			Status:      models.PayoutStatusPaid,
			PeriodStart: &periodStart,
			PeriodEnd:   &periodEnd,
		}
		if err := s.payoutRepo.Save(txCtx, payout); err != nil {
			return err
		}

		now := utils.UTCNow()
		for _, c := range conversions {
			affected, err := s.conversionRepo.UpdateGuarded(txCtx, c.ID,
				map[string]any{
					"status = ?":                   models.ConversionStatusApproved,
					"billed_at IS NOT NULL":        nil,
					"metadata->>'paid_at' IS NULL": nil,
				},
				map[string]any{
					"status":     models.ConversionStatusPaid,
					"updated_at": now,
					"metadata":   gorm.Expr(`jsonb_set(COALESCE(metadata, '{}'::jsonb), '{paid_at}', to_jsonb(?::text))`, now.Format(time.RFC3339Nano)),
				},
			)
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrInvalidTransition
			}
		}

		ledgerRow := &models.Transaction{
			CompanyID:   company.ID,
			Type:        models.TransactionTypePayout,
			Status:      models.TransactionStatusCompleted,
			Amount:      -amount,
			Currency:    utils.DefaultCurrency,
			Description: fmt.Sprintf("Payout of %d conversions", len(conversions)),
		}
		if err := s.transactionRepo.Save(txCtx, ledgerRow); err != nil {
			return err
		}

		count = len(conversions)
		return nil
	})
	if err != nil {
		errMsg := fmt.Sprintf("Payout generation failed for company %d: %s", company.ID, err.Error())
		_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionPayoutGenerated, errMsg, false, &errMsg, metadata)
		return nil, NewBusinessError("GENERATE_PAYOUT_FAILED", "Failed to generate payout", err)
	}

	s.dropBalanceCache(ctx, company.ID)

	msg := fmt.Sprintf("Generated payout %s for company %d, %d conversions, amount %d", payout.UUID, company.ID, count, payout.Amount)
	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionPayoutGenerated, msg, true, nil, metadata)

	if s.publisher != nil {
		s.publisher.Publish(ctx, company.ID, models.WebhookEventPayoutCreated, payoutToItem(payout))
	}

	return &dto.GeneratePayoutResponse{
		Message:         "Payout generated",
		PayoutUUID:      payout.UUID.String(),
		Amount:          payout.Amount,
		Currency:        payout.Currency,
		ConversionCount: count,
	}, nil
}

// ListPayouts returns a page of payouts for a company
func (s *InvoiceFlowImpl) ListPayouts(ctx context.Context, req *dto.ListPayoutsRequest, metadata *ClientMetadata) (*dto.ListPayoutsResponse, error) {
	limit, offset, err := NormalizePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_PAYOUTS_FAILED", "List payouts failed", err)
	}

	filter := models.PayoutFilter{CompanyID: &req.CompanyID}
	if req.Status != nil {
		status := models.PayoutStatus(*req.Status)
		filter.Status = &status
	}

	payouts, err := s.payoutRepo.ByFilter(ctx, filter, "created_at DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_PAYOUTS_FAILED", "Failed to list payouts", err)
	}

	total, err := s.payoutRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_PAYOUTS_FAILED", "Failed to count payouts", err)
	}

	items := make([]dto.PayoutItem, 0, len(payouts))
	for _, p := range payouts {
		items = append(items, payoutToItem(p))
	}

	return &dto.ListPayoutsResponse{
		Items:      items,
		Pagination: buildPagination(req.Page, req.PageSize, total),
	}, nil
}

func (s *InvoiceFlowImpl) loadOwnedInvoice(ctx context.Context, req *dto.InvoiceActionRequest) (*models.Invoice, error) {
	invoice, err := s.invoiceRepo.ByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.CompanyID != req.CompanyID {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

// dropBalanceCache invalidates the cached balance after a ledger append
func (s *InvoiceFlowImpl) dropBalanceCache(ctx context.Context, companyID uint) {
	if s.rc == nil {
		return
	}
	_ = s.rc.Del(ctx, balanceCacheKey(*s.cacheConfig, companyID)).Err()
}

func invoiceToItem(inv *models.Invoice) dto.InvoiceItem {
	return dto.InvoiceItem{
		UUID:          inv.UUID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Amount:        inv.Amount,
		Currency:      inv.Currency,
		Status:        string(inv.Status),
		PeriodStart:   inv.PeriodStart,
		PeriodEnd:     inv.PeriodEnd,
		PaidAt:        inv.PaidAt,
		CreatedAt:     inv.CreatedAt,
	}
}

func payoutToItem(p *models.Payout) dto.PayoutItem {
	return dto.PayoutItem{
		UUID:        p.UUID.String(),
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      string(p.Status),
		PeriodStart: p.PeriodStart,
		PeriodEnd:   p.PeriodEnd,
		CreatedAt:   p.CreatedAt,
	}
}

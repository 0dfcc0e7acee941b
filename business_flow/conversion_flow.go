// Package businessflow contains the core business logic and use cases for conversion lifecycle workflows
package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
	"gorm.io/gorm"
)

// EventPublisher pushes state-change events toward the configured webhook
// endpoint. Implementations must not block the calling flow.
type EventPublisher interface {
	Publish(ctx context.Context, companyID uint, event models.WebhookEventType, payload any) error
}

// ConversionFlow handles conversion ingestion and lifecycle transitions
type ConversionFlow interface {
	IngestConversion(ctx context.Context, req *dto.IngestConversionRequest, metadata *ClientMetadata) (*dto.IngestConversionResponse, error)
	ApproveConversion(ctx context.Context, req *dto.ConversionActionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error)
	ReverseConversion(ctx context.Context, req *dto.ConversionActionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error)
	BillConversion(ctx context.Context, req *dto.BillConversionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error)
	UnbillConversion(ctx context.Context, req *dto.ConversionActionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error)
	MarkConversionPaid(ctx context.Context, req *dto.ConversionActionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error)
	ListConversions(ctx context.Context, req *dto.ListConversionsRequest, metadata *ClientMetadata) (*dto.ListConversionsResponse, error)
}

// ConversionFlowImpl implements the conversion business flow
type ConversionFlowImpl struct {
	conversionRepo repository.ConversionRepository
	refCodeRepo    repository.RefCodeRepository
	clickRepo      repository.ClickRepository
	invoiceRepo    repository.InvoiceRepository
	auditRepo      repository.AuditLogRepository
	db             *gorm.DB
	publisher      EventPublisher
}

// NewConversionFlow creates a new conversion flow instance
func NewConversionFlow(
	conversionRepo repository.ConversionRepository,
	refCodeRepo repository.RefCodeRepository,
	clickRepo repository.ClickRepository,
	invoiceRepo repository.InvoiceRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
	publisher EventPublisher,
) ConversionFlow {
	return &ConversionFlowImpl{
		conversionRepo: conversionRepo,
		refCodeRepo:    refCodeRepo,
		clickRepo:      clickRepo,
		invoiceRepo:    invoiceRepo,
		auditRepo:      auditRepo,
		db:             db,
		publisher:      publisher,
	}
}

// IngestConversion records a postback conversion. The commission rate and
// rate type are snapshotted from the ref code at this moment; later rate
// edits never touch the stored commission. The external conversion ID is a
// dedup key per company and ref code; a replay fails without touching the
// stored row.
func (s *ConversionFlowImpl) IngestConversion(ctx context.Context, req *dto.IngestConversionRequest, metadata *ClientMetadata) (*dto.IngestConversionResponse, error) {
	if err := s.validateIngestRequest(req); err != nil {
		return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Ingest conversion failed", err)
	}

	refCode, err := s.refCodeRepo.ByCompanyAndCode(ctx, req.CompanyID, req.RefCode)
	if err != nil {
		return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Failed to resolve ref code", err)
	}
	if refCode == nil {
		return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Ingest conversion failed", ErrRefCodeNotFound)
	}
	if !refCode.IsActive {
		return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Ingest conversion failed", ErrRefCodeInactive)
	}

	existing, err := s.conversionRepo.ByExternalID(ctx, req.CompanyID, refCode.Code, req.ExternalConversionID)
	if err != nil {
		return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Failed to check conversion dedup key", err)
	}
	if existing != nil {
		return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Ingest conversion failed", ErrDuplicateConversion)
	}

	ts := utils.UTCNow()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	if err := s.checkAttributionWindow(ctx, refCode.Code, ts); err != nil {
		return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Ingest conversion failed", err)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = utils.DefaultCurrency
	}
	conversionType := req.ConversionType
	if conversionType == "" {
		conversionType = "sale"
	}

	conversion := &models.Conversion{
		CompanyID:              req.CompanyID,
		RefCodeID:              refCode.ID,
		RefCode:                refCode.Code,
		ExternalConversionID:   req.ExternalConversionID,
		ConversionType:         conversionType,
		ConversionValue:        req.ConversionValue,
		Currency:               currency,
		CommissionRate:         refCode.CommissionRate,
		RateType:               refCode.RateType,
		CommissionAmount:       computeCommission(req.ConversionValue, refCode.RateType, refCode.CommissionRate),
		Status:                 models.ConversionStatusPending,
		SessionID:              req.SessionID,
		AttributionWindowHours: utils.DefaultAttributionWindowHours,
		Timestamp:              ts,
	}

	if err := s.conversionRepo.Save(ctx, conversion); err != nil {
		// The unique index may have raced with a concurrent postback retry.
		winner, lookupErr := s.conversionRepo.ByExternalID(ctx, req.CompanyID, refCode.Code, req.ExternalConversionID)
		if lookupErr == nil && winner != nil {
			return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Ingest conversion failed", ErrDuplicateConversion)
		}
		return nil, NewBusinessError("INGEST_CONVERSION_FAILED", "Failed to save conversion", err)
	}

	msg := fmt.Sprintf("Ingested conversion %s on ref code %s, commission %d", conversion.ExternalConversionID, refCode.Code, conversion.CommissionAmount)
	_ = createAuditLog(ctx, s.auditRepo, &req.CompanyID, models.AuditActionConversionIngested, msg, true, nil, metadata)

	if s.publisher != nil {
		s.publisher.Publish(ctx, req.CompanyID, models.WebhookEventConversionCreated, conversionToItem(conversion))
	}

	return conversionToIngestResponse(conversion), nil
}

func (s *ConversionFlowImpl) validateIngestRequest(req *dto.IngestConversionRequest) error {
	if strings.TrimSpace(req.RefCode) == "" {
		return ErrRefCodeRequired
	}
	if strings.TrimSpace(req.ExternalConversionID) == "" {
		return ErrExternalConversionIDRequired
	}
	if req.ConversionValue <= 0 {
		return ErrInvalidConversionValue
	}
	return nil
}

// checkAttributionWindow rejects a conversion when the newest click on the
// code is older than the attribution window. A code with no recorded clicks
// passes; direct server postbacks are legitimate traffic.
func (s *ConversionFlowImpl) checkAttributionWindow(ctx context.Context, refCode string, ts time.Time) error {
	click, err := s.clickRepo.LatestByRefCode(ctx, refCode)
	if err != nil {
		return err
	}
	if click == nil {
		return nil
	}
	window := time.Duration(utils.DefaultAttributionWindowHours) * time.Hour
	if ts.Sub(click.Timestamp) > window {
		return ErrAttributionWindowExpired
	}
	return nil
}

// ApproveConversion moves pending to approved. Approving an already approved
// conversion is an idempotent no-op; any other source state is rejected.
func (s *ConversionFlowImpl) ApproveConversion(ctx context.Context, req *dto.ConversionActionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error) {
	conversion, err := s.loadOwnedConversion(ctx, req)
	if err != nil {
		return nil, NewBusinessError("APPROVE_CONVERSION_FAILED", "Approve conversion failed", err)
	}

	affected, err := s.conversionRepo.UpdateGuarded(ctx, conversion.ID,
		map[string]any{"status = ?": models.ConversionStatusPending},
		map[string]any{"status": models.ConversionStatusApproved, "updated_at": utils.UTCNow()},
	)
	if err != nil {
		return nil, NewBusinessError("APPROVE_CONVERSION_FAILED", "Failed to approve conversion", err)
	}

	if affected == 0 {
		// Re-read to tell an idempotent repeat from an illegal transition.
		current, err := s.conversionRepo.ByID(ctx, conversion.ID)
		if err != nil || current == nil {
			return nil, NewBusinessError("APPROVE_CONVERSION_FAILED", "Approve conversion failed", ErrConversionNotFound)
		}
		if current.Status == models.ConversionStatusApproved {
			return &dto.ConversionActionResponse{Message: "Conversion already approved", Item: utils.ToPtr(conversionToItem(current))}, nil
		}
		if current.IsLocked() {
			return nil, NewBusinessError("APPROVE_CONVERSION_FAILED", "Approve conversion failed", ErrConversionLocked)
		}
		return nil, NewBusinessError("APPROVE_CONVERSION_FAILED", "Approve conversion failed", ErrInvalidTransition)
	}

	conversion.Status = models.ConversionStatusApproved

	msg := fmt.Sprintf("Approved conversion %s", conversion.ExternalConversionID)
	_ = createAuditLog(ctx, s.auditRepo, &req.CompanyID, models.AuditActionConversionApproved, msg, true, nil, metadata)

	if s.publisher != nil {
		s.publisher.Publish(ctx, req.CompanyID, models.WebhookEventConversionApproved, conversionToItem(conversion))
	}

	return &dto.ConversionActionResponse{Message: "Conversion approved", Item: utils.ToPtr(conversionToItem(conversion))}, nil
}

// ReverseConversion cancels a pending or approved conversion. Once money has
// moved, the conversion is locked and the reversal is rejected.
func (s *ConversionFlowImpl) ReverseConversion(ctx context.Context, req *dto.ConversionActionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error) {
	conversion, err := s.loadOwnedConversion(ctx, req)
	if err != nil {
		return nil, NewBusinessError("REVERSE_CONVERSION_FAILED", "Reverse conversion failed", err)
	}

	affected, err := s.conversionRepo.UpdateGuarded(ctx, conversion.ID,
		map[string]any{
			"status IN ?":                  []models.ConversionStatus{models.ConversionStatusPending, models.ConversionStatusApproved},
			"billed_at IS NULL":            nil,
			"metadata->>'paid_at' IS NULL": nil,
		},
		map[string]any{"status": models.ConversionStatusReversed, "updated_at": utils.UTCNow()},
	)
	if err != nil {
		return nil, NewBusinessError("REVERSE_CONVERSION_FAILED", "Failed to reverse conversion", err)
	}

	if affected == 0 {
		current, err := s.conversionRepo.ByID(ctx, conversion.ID)
		if err != nil || current == nil {
			return nil, NewBusinessError("REVERSE_CONVERSION_FAILED", "Reverse conversion failed", ErrConversionNotFound)
		}
		if current.Status == models.ConversionStatusReversed {
			return &dto.ConversionActionResponse{Message: "Conversion already reversed", Item: utils.ToPtr(conversionToItem(current))}, nil
		}
		return nil, NewBusinessError("REVERSE_CONVERSION_FAILED", "Reverse conversion failed", ErrConversionLocked)
	}

	conversion.Status = models.ConversionStatusReversed

	msg := fmt.Sprintf("Reversed conversion %s", conversion.ExternalConversionID)
	_ = createAuditLog(ctx, s.auditRepo, &req.CompanyID, models.AuditActionConversionReversed, msg, true, nil, metadata)

	if s.publisher != nil {
		s.publisher.Publish(ctx, req.CompanyID, models.WebhookEventConversionReversed, conversionToItem(conversion))
	}

	return &dto.ConversionActionResponse{Message: "Conversion reversed", Item: utils.ToPtr(conversionToItem(conversion))}, nil
}

// BillConversion attaches a single approved, unbilled conversion to an open
// invoice. Invoice generation bills in bulk; this is the admin correction
// path for a conversion that was approved after its invoice went out.
func (s *ConversionFlowImpl) BillConversion(ctx context.Context, req *dto.BillConversionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error) {
	conversion, err := s.loadOwnedConversion(ctx, &dto.ConversionActionRequest{CompanyID: req.CompanyID, ConversionID: req.ConversionID})
	if err != nil {
		return nil, NewBusinessError("BILL_CONVERSION_FAILED", "Bill conversion failed", err)
	}

	invoices, err := s.invoiceRepo.ByFilter(ctx, models.InvoiceFilter{
		CompanyID:     &req.CompanyID,
		InvoiceNumber: &req.InvoiceNumber,
	}, "", 1, 0)
	if err != nil {
		return nil, NewBusinessError("BILL_CONVERSION_FAILED", "Bill conversion failed", err)
	}
	if len(invoices) == 0 {
		return nil, NewBusinessError("BILL_CONVERSION_FAILED", "Bill conversion failed", ErrInvoiceNotFound)
	}
	invoice := invoices[0]
	if !invoice.IsOpen() {
		return nil, NewBusinessError("BILL_CONVERSION_FAILED", "Bill conversion failed", ErrInvoiceNotOpen)
	}

	now := utils.UTCNow()
	affected, err := s.conversionRepo.UpdateGuarded(ctx, conversion.ID,
		map[string]any{
			"status = ?":        models.ConversionStatusApproved,
			"billed_at IS NULL": nil,
		},
		map[string]any{"billed_at": now, "invoice_id": invoice.ID, "updated_at": now},
	)
	if err != nil {
		return nil, NewBusinessError("BILL_CONVERSION_FAILED", "Failed to bill conversion", err)
	}

	if affected == 0 {
		current, err := s.conversionRepo.ByID(ctx, conversion.ID)
		if err != nil || current == nil {
			return nil, NewBusinessError("BILL_CONVERSION_FAILED", "Bill conversion failed", ErrConversionNotFound)
		}
		if current.IsBilled() {
			return nil, NewBusinessError("BILL_CONVERSION_FAILED", "Bill conversion failed", ErrConversionAlreadyBilled)
		}
		return nil, NewBusinessError("BILL_CONVERSION_FAILED", "Bill conversion failed", ErrInvalidTransition)
	}

	conversion.BilledAt = &now
	conversion.InvoiceID = &invoice.ID

	msg := fmt.Sprintf("Billed conversion %s under invoice %s", conversion.ExternalConversionID, invoice.InvoiceNumber)
	_ = createAuditLog(ctx, s.auditRepo, &req.CompanyID, models.AuditActionConversionBilled, msg, true, nil, metadata)

	return &dto.ConversionActionResponse{Message: "Conversion billed", Item: utils.ToPtr(conversionToItem(conversion))}, nil
}

// UnbillConversion detaches a billed conversion from its invoice, returning
// it to the billable pool. Paid conversions stay locked.
func (s *ConversionFlowImpl) UnbillConversion(ctx context.Context, req *dto.ConversionActionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error) {
	conversion, err := s.loadOwnedConversion(ctx, req)
	if err != nil {
		return nil, NewBusinessError("UNBILL_CONVERSION_FAILED", "Unbill conversion failed", err)
	}

	affected, err := s.conversionRepo.UpdateGuarded(ctx, conversion.ID,
		map[string]any{
			"billed_at IS NOT NULL":        nil,
			"metadata->>'paid_at' IS NULL": nil,
		},
		map[string]any{"billed_at": nil, "invoice_id": nil, "updated_at": utils.UTCNow()},
	)
	if err != nil {
		return nil, NewBusinessError("UNBILL_CONVERSION_FAILED", "Failed to unbill conversion", err)
	}

	if affected == 0 {
		current, err := s.conversionRepo.ByID(ctx, conversion.ID)
		if err != nil || current == nil {
			return nil, NewBusinessError("UNBILL_CONVERSION_FAILED", "Unbill conversion failed", ErrConversionNotFound)
		}
		if current.IsPaid() {
			return nil, NewBusinessError("UNBILL_CONVERSION_FAILED", "Unbill conversion failed", ErrConversionLocked)
		}
		return &dto.ConversionActionResponse{Message: "Conversion already unbilled", Item: utils.ToPtr(conversionToItem(current))}, nil
	}

	conversion.BilledAt = nil
	conversion.InvoiceID = nil

	msg := fmt.Sprintf("Unbilled conversion %s", conversion.ExternalConversionID)
	_ = createAuditLog(ctx, s.auditRepo, &req.CompanyID, models.AuditActionConversionUnbilled, msg, true, nil, metadata)

	return &dto.ConversionActionResponse{Message: "Conversion unbilled", Item: utils.ToPtr(conversionToItem(conversion))}, nil
}

// MarkConversionPaid settles a single billed conversion. Payment requires a
// prior invoice; an unbilled conversion cannot be marked paid.
func (s *ConversionFlowImpl) MarkConversionPaid(ctx context.Context, req *dto.ConversionActionRequest, metadata *ClientMetadata) (*dto.ConversionActionResponse, error) {
	conversion, err := s.loadOwnedConversion(ctx, req)
	if err != nil {
		return nil, NewBusinessError("MARK_CONVERSION_PAID_FAILED", "Mark conversion paid failed", err)
	}

	now := utils.UTCNow()
	affected, err := s.conversionRepo.UpdateGuarded(ctx, conversion.ID,
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
		return nil, NewBusinessError("MARK_CONVERSION_PAID_FAILED", "Failed to mark conversion paid", err)
	}

	if affected == 0 {
		current, err := s.conversionRepo.ByID(ctx, conversion.ID)
		if err != nil || current == nil {
			return nil, NewBusinessError("MARK_CONVERSION_PAID_FAILED", "Mark conversion paid failed", ErrConversionNotFound)
		}
		if current.IsPaid() {
			return &dto.ConversionActionResponse{Message: "Conversion already paid", Item: utils.ToPtr(conversionToItem(current))}, nil
		}
		return nil, NewBusinessError("MARK_CONVERSION_PAID_FAILED", "Mark conversion paid failed", ErrInvalidTransition)
	}

	msg := fmt.Sprintf("Marked conversion %s paid", conversion.ExternalConversionID)
	_ = createAuditLog(ctx, s.auditRepo, &req.CompanyID, models.AuditActionConversionMarkedPaid, msg, true, nil, metadata)

	current, err := s.conversionRepo.ByID(ctx, conversion.ID)
	if err != nil || current == nil {
		current = conversion
		current.Status = models.ConversionStatusPaid
	}

	return &dto.ConversionActionResponse{Message: "Conversion marked paid", Item: utils.ToPtr(conversionToItem(current))}, nil
}

// ListConversions returns a page of conversions for a company
func (s *ConversionFlowImpl) ListConversions(ctx context.Context, req *dto.ListConversionsRequest, metadata *ClientMetadata) (*dto.ListConversionsResponse, error) {
	limit, offset, err := NormalizePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_CONVERSIONS_FAILED", "List conversions failed", err)
	}

	from, to, err := ResolveRange(req.Range, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("LIST_CONVERSIONS_FAILED", "List conversions failed", err)
	}

	filter := models.ConversionFilter{
		CompanyID:       &req.CompanyID,
		RefCode:         req.RefCode,
		Billed:          req.Billed,
		Paid:            req.Paid,
		Query:           req.Query,
		TimestampAfter:  from,
		TimestampBefore: to,
	}
	if req.Status != nil {
		status := models.ConversionStatus(*req.Status)
		filter.Status = &status
	}

	conversions, err := s.conversionRepo.ByFilter(ctx, filter, "timestamp DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_CONVERSIONS_FAILED", "Failed to list conversions", err)
	}

	total, err := s.conversionRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_CONVERSIONS_FAILED", "Failed to count conversions", err)
	}

	items := make([]dto.ConversionItem, 0, len(conversions))
	for _, c := range conversions {
		items = append(items, conversionToItem(c))
	}

	return &dto.ListConversionsResponse{
		Items:      items,
		Pagination: buildPagination(req.Page, req.PageSize, total),
	}, nil
}

func (s *ConversionFlowImpl) loadOwnedConversion(ctx context.Context, req *dto.ConversionActionRequest) (*models.Conversion, error) {
	conversion, err := s.conversionRepo.ByID(ctx, req.ConversionID)
	if err != nil {
		return nil, err
	}
	if conversion == nil || conversion.CompanyID != req.CompanyID {
		return nil, ErrConversionNotFound
	}
	return conversion, nil
}

// computeCommission applies the snapshotted rate. Percent rates apply to the
// conversion value; fixed rates are a flat minor-unit amount per conversion.
func computeCommission(valueMinor int64, rateType models.RateType, rate float64) int64 {
	if rateType == models.RateTypeFixed {
		return utils.RoundHalfUp(rate)
	}
	return utils.PercentCommission(valueMinor, rate)
}

func conversionToIngestResponse(c *models.Conversion) *dto.IngestConversionResponse {
	return &dto.IngestConversionResponse{
		UUID:             c.UUID.String(),
		Status:           string(c.Status),
		CommissionAmount: c.CommissionAmount,
	}
}

func conversionToItem(c *models.Conversion) dto.ConversionItem {
	return dto.ConversionItem{
		UUID:                 c.UUID.String(),
		RefCode:              c.RefCode,
		ExternalConversionID: c.ExternalConversionID,
		ConversionType:       c.ConversionType,
		ConversionValue:      c.ConversionValue,
		Currency:             c.Currency,
		CommissionRate:       c.CommissionRate,
		RateType:             string(c.RateType),
		CommissionAmount:     c.CommissionAmount,
		Status:               string(c.Status),
		BilledAt:             c.BilledAt,
		PaidAt:               c.PaidAt(),
		InvoiceID:            c.InvoiceID,
		Timestamp:            c.Timestamp,
	}
}

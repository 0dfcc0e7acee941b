// Package businessflow contains the core business logic and use cases for ref code registry workflows
package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
	"gorm.io/gorm"
)

// RefCodeFlow handles the referral code registry
type RefCodeFlow interface {
	CreateRefCode(ctx context.Context, req *dto.CreateRefCodeRequest, metadata *ClientMetadata) (*dto.RefCodeResponse, error)
	UpdateRefCode(ctx context.Context, req *dto.UpdateRefCodeRequest, metadata *ClientMetadata) (*dto.RefCodeResponse, error)
	ListRefCodes(ctx context.Context, req *dto.ListRefCodesRequest, metadata *ClientMetadata) (*dto.ListRefCodesResponse, error)
}

// RefCodeFlowImpl implements the ref code business flow
type RefCodeFlowImpl struct {
	refCodeRepo    repository.RefCodeRepository
	clickRepo      repository.ClickRepository
	conversionRepo repository.ConversionRepository
	companyRepo    repository.CompanyRepository
	auditRepo      repository.AuditLogRepository
	db             *gorm.DB
}

// NewRefCodeFlow creates a new ref code flow instance
func NewRefCodeFlow(
	refCodeRepo repository.RefCodeRepository,
	clickRepo repository.ClickRepository,
	conversionRepo repository.ConversionRepository,
	companyRepo repository.CompanyRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
) RefCodeFlow {
	return &RefCodeFlowImpl{
		refCodeRepo:    refCodeRepo,
		clickRepo:      clickRepo,
		conversionRepo: conversionRepo,
		companyRepo:    companyRepo,
		auditRepo:      auditRepo,
		db:             db,
	}
}

// CreateRefCode registers a new referral code. Codes are unique per company
// and case-sensitive; a clash returns a business error rather than touching
// the existing registration.
func (s *RefCodeFlowImpl) CreateRefCode(ctx context.Context, req *dto.CreateRefCodeRequest, metadata *ClientMetadata) (*dto.RefCodeResponse, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, NewBusinessError("CREATE_REF_CODE_FAILED", "Create ref code failed", err)
	}

	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("CREATE_REF_CODE_FAILED", "Create ref code failed", err)
	}

	existing, err := s.refCodeRepo.ByCompanyAndCode(ctx, company.ID, req.Code)
	if err != nil {
		return nil, NewBusinessError("CREATE_REF_CODE_FAILED", "Failed to check code uniqueness", err)
	}
	if existing != nil {
		return nil, NewBusinessError("CREATE_REF_CODE_FAILED", "Create ref code failed", ErrRefCodeAlreadyExists)
	}

	refCode := &models.RefCode{
		CompanyID:       company.ID,
		Code:            req.Code,
		MonetizableType: models.MonetizableType(req.MonetizableType),
		MonetizableID:   req.MonetizableID,
		RateType:        models.RateType(req.RateType),
		CommissionRate:  req.CommissionRate,
		AffiliateLink:   req.AffiliateLink,
		IsActive:        true,
	}

	if err := s.refCodeRepo.Save(ctx, refCode); err != nil {
		return nil, NewBusinessError("CREATE_REF_CODE_FAILED", "Failed to save ref code", err)
	}

	msg := fmt.Sprintf("Created ref code %s for company %d", refCode.Code, company.ID)
	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionRefCodeCreated, msg, true, nil, metadata)

	return &dto.RefCodeResponse{Message: "Ref code created", Item: refCodeToItem(refCode)}, nil
}

func (s *RefCodeFlowImpl) validateCreateRequest(req *dto.CreateRefCodeRequest) error {
	if strings.TrimSpace(req.Code) == "" {
		return ErrRefCodeRequired
	}
	switch models.MonetizableType(req.MonetizableType) {
	case models.MonetizableTypeLanding, models.MonetizableTypeProduct:
	default:
		return ErrInvalidMonetizable
	}
	return validateRate(models.RateType(req.RateType), req.CommissionRate)
}

// UpdateRefCode mutates rate, link or active flag. Rate changes apply only to
// future conversions; historical commissions keep their snapshot. Codes are
// never deleted, deactivation is the terminal state.
func (s *RefCodeFlowImpl) UpdateRefCode(ctx context.Context, req *dto.UpdateRefCodeRequest, metadata *ClientMetadata) (*dto.RefCodeResponse, error) {
	refCode, err := s.refCodeRepo.ByCompanyAndCode(ctx, req.CompanyID, req.Code)
	if err != nil {
		return nil, NewBusinessError("UPDATE_REF_CODE_FAILED", "Failed to load ref code", err)
	}
	if refCode == nil {
		return nil, NewBusinessError("UPDATE_REF_CODE_FAILED", "Update ref code failed", ErrRefCodeNotFound)
	}

	if req.RateType != nil {
		switch models.RateType(*req.RateType) {
		case models.RateTypePercent, models.RateTypeFixed:
			refCode.RateType = models.RateType(*req.RateType)
		default:
			return nil, NewBusinessError("UPDATE_REF_CODE_FAILED", "Update ref code failed", ErrInvalidRateType)
		}
	}
	if req.CommissionRate != nil {
		refCode.CommissionRate = *req.CommissionRate
	}
	if err := validateRate(refCode.RateType, refCode.CommissionRate); err != nil {
		return nil, NewBusinessError("UPDATE_REF_CODE_FAILED", "Update ref code failed", err)
	}
	if req.AffiliateLink != nil {
		refCode.AffiliateLink = req.AffiliateLink
	}
	if req.IsActive != nil {
		refCode.IsActive = *req.IsActive
	}
	refCode.UpdatedAt = utils.UTCNow()

	if err := s.refCodeRepo.Update(ctx, refCode); err != nil {
		return nil, NewBusinessError("UPDATE_REF_CODE_FAILED", "Failed to update ref code", err)
	}

	msg := fmt.Sprintf("Updated ref code %s for company %d, active=%t", refCode.Code, req.CompanyID, refCode.IsActive)
	_ = createAuditLog(ctx, s.auditRepo, &req.CompanyID, models.AuditActionRefCodeUpdated, msg, true, nil, metadata)

	return &dto.RefCodeResponse{Message: "Ref code updated", Item: refCodeToItem(refCode)}, nil
}

// ListRefCodes returns all ref codes of a company
func (s *RefCodeFlowImpl) ListRefCodes(ctx context.Context, req *dto.ListRefCodesRequest, metadata *ClientMetadata) (*dto.ListRefCodesResponse, error) {
	filter := models.RefCodeFilter{
		CompanyID: &req.CompanyID,
		IsActive:  req.IsActive,
	}
	if req.Type != "" {
		t := models.MonetizableType(req.Type)
		filter.Type = &t
	}

	refCodes, err := s.refCodeRepo.ByFilter(ctx, filter, "created_at DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_REF_CODES_FAILED", "Failed to list ref codes", err)
	}

	buckets, err := s.clickRepo.RefCodeBreakdown(ctx, req.CompanyID, nil, nil)
	if err != nil {
		return nil, NewBusinessError("LIST_REF_CODES_FAILED", "Failed to list ref codes", err)
	}
	clickCounts := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		clickCounts[b.Key] = b.Count
	}

	stats, err := s.conversionRepo.StatsByRefCode(ctx, req.CompanyID, nil, nil)
	if err != nil {
		return nil, NewBusinessError("LIST_REF_CODES_FAILED", "Failed to list ref codes", err)
	}
	conversionStats := make(map[string]*repository.RefCodeStats, len(stats))
	for _, st := range stats {
		conversionStats[st.RefCode] = st
	}

	items := make([]dto.RefCodeItem, 0, len(refCodes))
	for _, rc := range refCodes {
		item := refCodeToItem(rc)
		item.ClickCount = clickCounts[rc.Code]
		if st := conversionStats[rc.Code]; st != nil {
			item.ConversionCount = st.Conversions
			item.CommissionTotal = st.Commission
		}
		items = append(items, item)
	}

	return &dto.ListRefCodesResponse{Items: items}, nil
}

// validateRate bounds percent rates to [0, 100]; fixed rates only need to be
// non-negative since they are a flat minor-unit amount.
func validateRate(rateType models.RateType, rate float64) error {
	switch rateType {
	case models.RateTypePercent:
		if rate < 0 || rate > 100 {
			return ErrInvalidCommissionRate
		}
	case models.RateTypeFixed:
		if rate < 0 {
			return ErrInvalidCommissionRate
		}
	default:
		return ErrInvalidRateType
	}
	return nil
}

func refCodeToItem(rc *models.RefCode) dto.RefCodeItem {
	return dto.RefCodeItem{
		UUID:            rc.UUID.String(),
		Code:            rc.Code,
		MonetizableType: string(rc.MonetizableType),
		MonetizableID:   rc.MonetizableID,
		RateType:        string(rc.RateType),
		CommissionRate:  rc.CommissionRate,
		AffiliateLink:   rc.AffiliateLink,
		IsActive:        rc.IsActive,
		CreatedAt:       rc.CreatedAt,
	}
}

// Package businessflow contains the core business logic and use cases for click tracking workflows
package businessflow

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ClickFlow handles click ingestion, listing and validity corrections
type ClickFlow interface {
	RecordClick(ctx context.Context, req *dto.RecordClickRequest, metadata *ClientMetadata) (*dto.RecordClickResponse, error)
	ListClicks(ctx context.Context, req *dto.ListClicksRequest, metadata *ClientMetadata) (*dto.ListClicksResponse, error)
	UpdateClickValidity(ctx context.Context, req *dto.UpdateClickValidityRequest, metadata *ClientMetadata) (*dto.UpdateClickValidityResponse, error)
}

// ClickFlowImpl implements the click business flow
type ClickFlowImpl struct {
	clickRepo      repository.ClickRepository
	refCodeRepo    repository.RefCodeRepository
	auditRepo      repository.AuditLogRepository
	db             *gorm.DB
	rc             *redis.Client
	cacheConfig    *config.CacheConfig
	trackingConfig *config.TrackingConfig
}

// NewClickFlow creates a new click flow instance
func NewClickFlow(
	clickRepo repository.ClickRepository,
	refCodeRepo repository.RefCodeRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
	rc *redis.Client,
	cacheConfig *config.CacheConfig,
	trackingConfig *config.TrackingConfig,
) ClickFlow {
	return &ClickFlowImpl{
		clickRepo:      clickRepo,
		refCodeRepo:    refCodeRepo,
		auditRepo:      auditRepo,
		db:             db,
		rc:             rc,
		cacheConfig:    cacheConfig,
		trackingConfig: trackingConfig,
	}
}

// RecordClick ingests a tracked click. Clicks are recorded even when the
// classifier flags them; only the validity verdict differs. Clicks on an
// inactive ref code are rejected outright when TrackingConfig says so.
// The dedup key (ref_code, session_id, minute bucket) makes delivery
// retries idempotent.
func (s *ClickFlowImpl) RecordClick(ctx context.Context, req *dto.RecordClickRequest, metadata *ClientMetadata) (*dto.RecordClickResponse, error) {
	if strings.TrimSpace(req.RefCode) == "" {
		return nil, NewBusinessError("RECORD_CLICK_FAILED", "Record click failed", ErrRefCodeRequired)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, NewBusinessError("RECORD_CLICK_FAILED", "Record click failed", ErrSessionIDRequired)
	}

	refCode, err := s.refCodeRepo.ByCode(ctx, req.RefCode)
	if err != nil {
		return nil, NewBusinessError("RECORD_CLICK_FAILED", "Failed to resolve ref code", err)
	}
	if refCode == nil {
		return nil, NewBusinessError("RECORD_CLICK_FAILED", "Record click failed", ErrRefCodeNotFound)
	}
	if !refCode.IsActive && s.trackingConfig != nil && s.trackingConfig.RejectInactiveRefCodes {
		return nil, NewBusinessError("RECORD_CLICK_FAILED", "Record click failed", ErrRefCodeInactive)
	}

	ts := utils.UTCNow()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	bucket := utils.TruncateToBucket(ts, utils.ClickDedupBucket)

	// Dedup check before classification so a retried delivery does not
	// inflate the velocity counter.
	existing, err := s.clickRepo.ByDedupKey(ctx, refCode.Code, req.SessionID, bucket)
	if err != nil {
		return nil, NewBusinessError("RECORD_CLICK_FAILED", "Failed to check click dedup key", err)
	}
	if existing != nil {
		return clickToRecordResponse(existing, true), nil
	}

	velocity := s.bumpVelocity(ctx, refCode.Code, req.SessionID)

	priorClicks, err := s.clickRepo.CountBySession(ctx, refCode.CompanyID, req.SessionID, ts.Add(-24*time.Hour))
	if err != nil {
		return nil, NewBusinessError("RECORD_CLICK_FAILED", "Failed to count session clicks", err)
	}

	isValid, reason := ClassifyClick(ClickSignals{
		RefCodeActive:      refCode.IsActive,
		PriorSessionClicks: priorClicks,
		VelocityCount:      velocity,
	})

	click := &models.Click{
		CompanyID:   refCode.CompanyID,
		RefCodeID:   refCode.ID,
		RefCode:     refCode.Code,
		SessionID:   req.SessionID,
		DedupBucket: bucket,
		Country:     strings.ToUpper(req.Country),
		DeviceClass: ClassifyDevice(req.UserAgent),
		IsValid:     isValid,
		Timestamp:   ts,
	}
	if req.UserAgent != "" {
		click.UserAgent = &req.UserAgent
	}
	if req.IP != "" {
		click.IP = &req.IP
	}
	if reason != models.FraudReasonNone {
		click.FraudReason = &reason
	}

	if err := s.clickRepo.Save(ctx, click); err != nil {
		// A concurrent delivery may have taken the dedup slot between the
		// check and the insert; the unique index turns that into an error.
		winner, lookupErr := s.clickRepo.ByDedupKey(ctx, refCode.Code, req.SessionID, bucket)
		if lookupErr == nil && winner != nil {
			return clickToRecordResponse(winner, true), nil
		}
		return nil, NewBusinessError("RECORD_CLICK_FAILED", "Failed to save click", err)
	}

	msg := fmt.Sprintf("Recorded click on ref code %s, valid=%t", refCode.Code, isValid)
	_ = createAuditLog(ctx, s.auditRepo, &refCode.CompanyID, models.AuditActionClickRecorded, msg, true, nil, metadata)

	return clickToRecordResponse(click, false), nil
}

// bumpVelocity increments the sliding-window counter for the session. When the
// cache is down the counter reports zero and velocity abuse is not flagged;
// dedup and session checks still run against the database.
func (s *ClickFlowImpl) bumpVelocity(ctx context.Context, refCode, sessionID string) int64 {
	if s.rc == nil {
		return 0
	}

	key := velocityCacheKey(*s.cacheConfig, refCode, sessionID)
	count, err := s.rc.Incr(ctx, key).Result()
	if err != nil {
		return 0
	}
	if count == 1 {
		_ = s.rc.Expire(ctx, key, utils.VelocityWindow).Err()
	}
	return count
}

// ListClicks returns a page of clicks for a company
func (s *ClickFlowImpl) ListClicks(ctx context.Context, req *dto.ListClicksRequest, metadata *ClientMetadata) (*dto.ListClicksResponse, error) {
	limit, offset, err := NormalizePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_CLICKS_FAILED", "List clicks failed", err)
	}

	from, to, err := ResolveRange(req.Range, utils.UTCNow())
	if err != nil {
		return nil, NewBusinessError("LIST_CLICKS_FAILED", "List clicks failed", err)
	}

	filter := models.ClickFilter{
		CompanyID:       &req.CompanyID,
		RefCode:         req.RefCode,
		IsValid:         req.IsValid,
		TimestampAfter:  from,
		TimestampBefore: to,
	}

	clicks, err := s.clickRepo.ByFilter(ctx, filter, "timestamp DESC", limit, offset)
	if err != nil {
		return nil, NewBusinessError("LIST_CLICKS_FAILED", "Failed to list clicks", err)
	}

	total, err := s.clickRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_CLICKS_FAILED", "Failed to count clicks", err)
	}

	items := make([]dto.ClickItem, 0, len(clicks))
	for _, c := range clicks {
		item := dto.ClickItem{
			UUID:        c.UUID.String(),
			RefCode:     c.RefCode,
			SessionID:   c.SessionID,
			Country:     c.Country,
			DeviceClass: string(c.DeviceClass),
			IsValid:     c.IsValid,
			Timestamp:   c.Timestamp,
		}
		if c.FraudReason != nil {
			item.FraudReason = utils.ToPtr(string(*c.FraudReason))
		}
		items = append(items, item)
	}

	return &dto.ListClicksResponse{
		Items:      items,
		Pagination: buildPagination(req.Page, req.PageSize, total),
	}, nil
}

// UpdateClickValidity lets an admin correct a click verdict. The change is a
// guarded single-statement update so a repeated request reports changed=false
// instead of rewriting history; the reason and note land in the audit log.
// An omitted reason is recorded as a manual override.
func (s *ClickFlowImpl) UpdateClickValidity(ctx context.Context, req *dto.UpdateClickValidityRequest, metadata *ClientMetadata) (*dto.UpdateClickValidityResponse, error) {
	reason := models.FraudReasonManualOverride
	if req.Reason != "" {
		var err error
		reason, err = ParseFraudReason(req.Reason)
		if err != nil {
			return nil, NewBusinessError("UPDATE_CLICK_VALIDITY_FAILED", "Update click validity failed", err)
		}
	}
	if req.IsValid {
		reason = models.FraudReasonNone
	}

	click, err := s.clickRepo.ByID(ctx, req.ClickID)
	if err != nil {
		return nil, NewBusinessError("UPDATE_CLICK_VALIDITY_FAILED", "Failed to load click", err)
	}
	if click == nil || click.CompanyID != req.CompanyID {
		return nil, NewBusinessError("UPDATE_CLICK_VALIDITY_FAILED", "Update click validity failed", ErrClickNotFound)
	}

	affected, err := s.clickRepo.UpdateValidity(ctx, click.ID, req.IsValid, reason)
	if err != nil {
		return nil, NewBusinessError("UPDATE_CLICK_VALIDITY_FAILED", "Failed to update click validity", err)
	}

	changed := affected > 0
	msg := fmt.Sprintf("Click %d validity set to %t, reason=%s, note=%s, changed=%t", click.ID, req.IsValid, reason, req.Note, changed)
	_ = createAuditLog(ctx, s.auditRepo, &req.CompanyID, models.AuditActionClickValidityChanged, msg, true, nil, metadata)

	return &dto.UpdateClickValidityResponse{
		Message: "Click validity updated",
		Changed: changed,
	}, nil
}

func clickToRecordResponse(click *models.Click, deduplicated bool) *dto.RecordClickResponse {
	resp := &dto.RecordClickResponse{
		UUID:         click.UUID.String(),
		Deduplicated: deduplicated,
		IsValid:      click.IsValid,
	}
	if click.FraudReason != nil {
		resp.FraudReason = utils.ToPtr(string(*click.FraudReason))
	}
	return resp
}

func buildPagination(page, pageSize int, total int64) dto.PaginationInfo {
	totalPages := int64(math.Ceil(float64(total) / float64(pageSize)))
	return dto.PaginationInfo{
		CurrentPage: page,
		PageSize:    pageSize,
		TotalItems:  total,
		TotalPages:  totalPages,
		HasNext:     int64(page) < totalPages,
		HasPrevious: page > 1,
	}
}

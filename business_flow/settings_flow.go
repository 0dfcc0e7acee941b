// Package businessflow contains the core business logic and use cases for settings workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// SettingsFlow manages webhook and link builder settings
type SettingsFlow interface {
	SaveWebhookSettings(ctx context.Context, req *dto.SaveWebhookSettingsRequest, metadata *ClientMetadata) (*dto.WebhookSettingsResponse, error)
	GetWebhookSettings(ctx context.Context, companyID uint, metadata *ClientMetadata) (*dto.WebhookSettingsResponse, error)
	ListWebhookDeliveries(ctx context.Context, req *dto.ListWebhookDeliveriesRequest, metadata *ClientMetadata) (*dto.ListWebhookDeliveriesResponse, error)
	SaveLinkSettings(ctx context.Context, req *dto.SaveLinkSettingsRequest, metadata *ClientMetadata) (*dto.LinkSettingsResponse, error)
	GetLinkSettings(ctx context.Context, companyID uint, metadata *ClientMetadata) (*dto.LinkSettingsResponse, error)
}

// SettingsFlowImpl implements the settings business flow
type SettingsFlowImpl struct {
	webhookRepo     repository.WebhookSettingsRepository
	deliveryLogRepo repository.WebhookDeliveryLogRepository
	linkRepo        repository.LinkSettingsRepository
	companyRepo     repository.CompanyRepository
	auditRepo       repository.AuditLogRepository
	db              *gorm.DB
}

// NewSettingsFlow creates a new settings flow instance
func NewSettingsFlow(
	webhookRepo repository.WebhookSettingsRepository,
	deliveryLogRepo repository.WebhookDeliveryLogRepository,
	linkRepo repository.LinkSettingsRepository,
	companyRepo repository.CompanyRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
) SettingsFlow {
	return &SettingsFlowImpl{
		webhookRepo:     webhookRepo,
		deliveryLogRepo: deliveryLogRepo,
		linkRepo:        linkRepo,
		companyRepo:     companyRepo,
		auditRepo:       auditRepo,
		db:              db,
	}
}

// SaveWebhookSettings upserts the company's delivery endpoint and retry policy
func (s *SettingsFlowImpl) SaveWebhookSettings(ctx context.Context, req *dto.SaveWebhookSettingsRequest, metadata *ClientMetadata) (*dto.WebhookSettingsResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_SETTINGS_SAVE_FAILED", "Webhook settings save failed", err)
	}

	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return nil, NewBusinessError("WEBHOOK_SETTINGS_SAVE_FAILED", "Endpoint is required", ErrWebhookEndpointRequired)
	}
	if strings.TrimSpace(req.Secret) == "" {
		return nil, NewBusinessError("WEBHOOK_SETTINGS_SAVE_FAILED", "Secret is required", ErrWebhookSecretRequired)
	}

	backoff := time.Second
	if req.BackoffBase != "" {
		parsed, err := time.ParseDuration(req.BackoffBase)
		if err != nil || parsed <= 0 {
			return nil, NewBusinessError("WEBHOOK_SETTINGS_SAVE_FAILED",
				fmt.Sprintf("Invalid backoff base %q", req.BackoffBase), err)
		}
		backoff = parsed
	}

	settings := &models.WebhookSettings{
		CompanyID:   company.ID,
		Endpoint:    endpoint,
		Secret:      req.Secret,
		Enabled:     req.Enabled,
		MaxAttempts: req.MaxAttempts,
		BackoffBase: backoff,
		UpdatedAt:   utils.UTCNow(),
	}
	if err := s.webhookRepo.Upsert(ctx, settings); err != nil {
		return nil, NewBusinessError("WEBHOOK_SETTINGS_SAVE_FAILED", "Failed to save webhook settings", err)
	}

	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionWebhookSettingsSaved,
		fmt.Sprintf("Webhook endpoint set to %s", endpoint), true, nil, metadata)

	return webhookSettingsToResponse("Webhook settings saved", settings), nil
}

// GetWebhookSettings returns the stored settings with the secret omitted. A
// company with no settings gets an unconfigured response, not an error.
func (s *SettingsFlowImpl) GetWebhookSettings(ctx context.Context, companyID uint, metadata *ClientMetadata) (*dto.WebhookSettingsResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, companyID)
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_SETTINGS_GET_FAILED", "Webhook settings lookup failed", err)
	}

	settings, err := s.webhookRepo.ByCompanyID(ctx, company.ID)
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_SETTINGS_GET_FAILED", "Failed to load webhook settings", err)
	}
	if settings == nil {
		return &dto.WebhookSettingsResponse{Message: "Webhook settings not configured", Configured: false}, nil
	}
	return webhookSettingsToResponse("Webhook settings retrieved", settings), nil
}

// ListWebhookDeliveries lists recent delivery attempts, newest first
func (s *SettingsFlowImpl) ListWebhookDeliveries(ctx context.Context, req *dto.ListWebhookDeliveriesRequest, metadata *ClientMetadata) (*dto.ListWebhookDeliveriesResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_DELIVERIES_LIST_FAILED", "Delivery log listing failed", err)
	}

	page, pageSize, err := NormalizePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_DELIVERIES_LIST_FAILED", "Invalid pagination", err)
	}

	logs, err := s.deliveryLogRepo.ListByCompany(ctx, company.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_DELIVERIES_LIST_FAILED", "Failed to list deliveries", err)
	}
	total, err := s.deliveryLogRepo.Count(ctx, models.WebhookDeliveryLogFilter{CompanyID: &company.ID})
	if err != nil {
		return nil, NewBusinessError("WEBHOOK_DELIVERIES_LIST_FAILED", "Failed to count deliveries", err)
	}

	items := make([]dto.WebhookDeliveryItem, 0, len(logs))
	for _, l := range logs {
		items = append(items, dto.WebhookDeliveryItem{
			EventType:  string(l.EventType),
			URL:        l.URL,
			Attempt:    l.Attempt,
			StatusCode: l.StatusCode,
			DurationMS: l.DurationMS,
			Success:    l.Success,
			Error:      l.Error,
			CreatedAt:  l.CreatedAt,
		})
	}

	return &dto.ListWebhookDeliveriesResponse{
		Items:      items,
		Pagination: buildPagination(page, pageSize, total),
	}, nil
}

// SaveLinkSettings upserts the company's link builder configuration
func (s *SettingsFlowImpl) SaveLinkSettings(ctx context.Context, req *dto.SaveLinkSettingsRequest, metadata *ClientMetadata) (*dto.LinkSettingsResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("LINK_SETTINGS_SAVE_FAILED", "Link settings save failed", err)
	}

	utmJSON, err := marshalStringMap(req.UTMDefaults)
	if err != nil {
		return nil, NewBusinessError("LINK_SETTINGS_SAVE_FAILED", "Invalid UTM defaults", err)
	}
	keysJSON, err := marshalStringMap(req.ParamKeys)
	if err != nil {
		return nil, NewBusinessError("LINK_SETTINGS_SAVE_FAILED", "Invalid param keys", err)
	}
	templatesJSON, err := marshalStringMap(req.Templates)
	if err != nil {
		return nil, NewBusinessError("LINK_SETTINGS_SAVE_FAILED", "Invalid templates", err)
	}

	settings := &models.LinkSettings{
		CompanyID:        company.ID,
		UTMDefaults:      utmJSON,
		ParamKeys:        keysJSON,
		AllowlistDomains: pq.StringArray(req.AllowlistDomains),
		Templates:        templatesJSON,
		UpdatedAt:        utils.UTCNow(),
	}
	if err := s.linkRepo.Upsert(ctx, settings); err != nil {
		return nil, NewBusinessError("LINK_SETTINGS_SAVE_FAILED", "Failed to save link settings", err)
	}

	_ = createAuditLog(ctx, s.auditRepo, &company.ID, models.AuditActionLinkSettingsSaved,
		"Link builder settings updated", true, nil, metadata)

	return linkSettingsToResponse("Link settings saved", settings), nil
}

// GetLinkSettings returns the stored link builder configuration
func (s *SettingsFlowImpl) GetLinkSettings(ctx context.Context, companyID uint, metadata *ClientMetadata) (*dto.LinkSettingsResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, companyID)
	if err != nil {
		return nil, NewBusinessError("LINK_SETTINGS_GET_FAILED", "Link settings lookup failed", err)
	}

	settings, err := s.linkRepo.ByCompanyID(ctx, company.ID)
	if err != nil {
		return nil, NewBusinessError("LINK_SETTINGS_GET_FAILED", "Failed to load link settings", err)
	}
	if settings == nil {
		return &dto.LinkSettingsResponse{Message: "Link settings not configured", Configured: false}, nil
	}
	return linkSettingsToResponse("Link settings retrieved", settings), nil
}

func webhookSettingsToResponse(message string, settings *models.WebhookSettings) *dto.WebhookSettingsResponse {
	return &dto.WebhookSettingsResponse{
		Message:     message,
		Endpoint:    settings.Endpoint,
		Enabled:     settings.Enabled,
		MaxAttempts: settings.MaxAttempts,
		BackoffBase: settings.BackoffBase.String(),
		Configured:  true,
	}
}

func linkSettingsToResponse(message string, settings *models.LinkSettings) *dto.LinkSettingsResponse {
	return &dto.LinkSettingsResponse{
		Message:          message,
		UTMDefaults:      unmarshalStringMap(settings.UTMDefaults),
		ParamKeys:        unmarshalStringMap(settings.ParamKeys),
		AllowlistDomains: settings.AllowlistDomains,
		Templates:        unmarshalStringMap(settings.Templates),
		Configured:       true,
	}
}

func marshalStringMap(m map[string]string) (json.RawMessage, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func unmarshalStringMap(raw json.RawMessage) map[string]string {
	m := map[string]string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &m)
	}
	return m
}

package dto

import "time"

// SaveWebhookSettingsRequest configures the per-company delivery endpoint
type SaveWebhookSettingsRequest struct {
	CompanyID   uint   `json:"company_id" validate:"required"`
	Endpoint    string `json:"endpoint" validate:"required,url"`
	Secret      string `json:"secret" validate:"required,min=16,max=255"`
	Enabled     bool   `json:"enabled"`
	MaxAttempts int    `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=10"`
	BackoffBase string `json:"backoff_base,omitempty"` // Go duration string, e.g. "1s"
}

// WebhookSettingsResponse represents the stored settings, secret omitted
type WebhookSettingsResponse struct {
	Message     string `json:"message"`
	Endpoint    string `json:"endpoint"`
	Enabled     bool   `json:"enabled"`
	MaxAttempts int    `json:"max_attempts"`
	BackoffBase string `json:"backoff_base"`
	Configured  bool   `json:"configured"`
}

// ListWebhookDeliveriesRequest represents a paginated delivery log listing
type ListWebhookDeliveriesRequest struct {
	CompanyID uint `json:"company_id" validate:"required"`
	Page      int  `json:"page" validate:"min=1"`
	PageSize  int  `json:"page_size" validate:"min=1,max=100"`
}

// WebhookDeliveryItem is one delivery attempt in a listing
type WebhookDeliveryItem struct {
	EventType  string    `json:"event_type"`
	URL        string    `json:"url"`
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListWebhookDeliveriesResponse represents the paginated delivery log response
type ListWebhookDeliveriesResponse struct {
	Items      []WebhookDeliveryItem `json:"items"`
	Pagination PaginationInfo        `json:"pagination"`
}

// SaveLinkSettingsRequest configures the per-company link builder
type SaveLinkSettingsRequest struct {
	CompanyID        uint              `json:"company_id" validate:"required"`
	UTMDefaults      map[string]string `json:"utm_defaults,omitempty"`
	ParamKeys        map[string]string `json:"param_keys,omitempty"`
	AllowlistDomains []string          `json:"allowlist_domains,omitempty" validate:"omitempty,dive,hostname"`
	Templates        map[string]string `json:"templates,omitempty"`
}

// LinkSettingsResponse represents the stored link settings
type LinkSettingsResponse struct {
	Message          string            `json:"message"`
	UTMDefaults      map[string]string `json:"utm_defaults"`
	ParamKeys        map[string]string `json:"param_keys"`
	AllowlistDomains []string          `json:"allowlist_domains"`
	Templates        map[string]string `json:"templates"`
	Configured       bool              `json:"configured"`
}

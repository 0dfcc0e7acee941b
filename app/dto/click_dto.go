package dto

import "time"

// RecordClickRequest represents an incoming tracked click
type RecordClickRequest struct {
	RefCode   string     `json:"ref_code" validate:"required,max=64"`
	SessionID string     `json:"session_id" validate:"required,max=128"`
	Country   string     `json:"country,omitempty" validate:"omitempty,len=2"`
	UserAgent string     `json:"user_agent,omitempty"`
	IP        string     `json:"ip,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"` // Defaults to server time
}

// RecordClickResponse represents the result of recording a click
type RecordClickResponse struct {
	UUID         string  `json:"uuid"`
	Deduplicated bool    `json:"deduplicated"` // True when the dedup slot was already taken
	IsValid      bool    `json:"is_valid"`
	FraudReason  *string `json:"fraud_reason,omitempty"`
}

// ListClicksRequest represents a paginated click listing
type ListClicksRequest struct {
	CompanyID uint    `json:"company_id" validate:"required"`
	Page      int     `json:"page" validate:"min=1"`
	PageSize  int     `json:"page_size" validate:"min=1,max=100"`
	Range     string  `json:"range,omitempty"` // today, yesterday, 7d, 30d, 90d, all
	RefCode   *string `json:"ref_code,omitempty"`
	IsValid   *bool   `json:"is_valid,omitempty"`
}

// ClickItem is one click in a listing
type ClickItem struct {
	UUID        string    `json:"uuid"`
	RefCode     string    `json:"ref_code"`
	SessionID   string    `json:"session_id"`
	Country     string    `json:"country,omitempty"`
	DeviceClass string    `json:"device_class"`
	IsValid     bool      `json:"is_valid"`
	FraudReason *string   `json:"fraud_reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ListClicksResponse represents the paginated click listing response
type ListClicksResponse struct {
	Items      []ClickItem    `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// UpdateClickValidityRequest represents an admin correction of a click verdict
type UpdateClickValidityRequest struct {
	CompanyID uint   `json:"company_id" validate:"required"`
	ClickID   uint   `json:"click_id" validate:"required"`
	IsValid   bool   `json:"is_valid"`
	Reason    string `json:"reason,omitempty" validate:"omitempty,max=32"` // Defaults to manual_override
	Note      string `json:"note,omitempty" validate:"max=512"`
}

// UpdateClickValidityResponse represents the correction result
type UpdateClickValidityResponse struct {
	Message string `json:"message"`
	Changed bool   `json:"changed"` // False when the click already had the requested validity
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

package dto

import "time"

// CreateRefCodeRequest registers a referral code for a monetizable entity
type CreateRefCodeRequest struct {
	CompanyID       uint    `json:"company_id" validate:"required"`
	Code            string  `json:"code" validate:"required,max=64,alphanum"`
	MonetizableType string  `json:"monetizable_type" validate:"required,oneof=landing product"`
	MonetizableID   string  `json:"monetizable_id" validate:"required,max=64"`
	RateType        string  `json:"rate_type" validate:"required,oneof=percent fixed"`
	CommissionRate  float64 `json:"commission_rate" validate:"min=0"`
	AffiliateLink   *string `json:"affiliate_link,omitempty"`
}

// UpdateRefCodeRequest updates the mutable fields of a ref code
type UpdateRefCodeRequest struct {
	CompanyID      uint     `json:"company_id" validate:"required"`
	Code           string   `json:"code" validate:"required,max=64"`
	RateType       *string  `json:"rate_type,omitempty" validate:"omitempty,oneof=percent fixed"`
	CommissionRate *float64 `json:"commission_rate,omitempty" validate:"omitempty,min=0"`
	AffiliateLink  *string  `json:"affiliate_link,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

// RefCodeItem is one ref code in a listing
type RefCodeItem struct {
	UUID            string    `json:"uuid"`
	Code            string    `json:"code"`
	MonetizableType string    `json:"monetizable_type"`
	MonetizableID   string    `json:"monetizable_id"`
	RateType        string    `json:"rate_type"`
	CommissionRate  float64   `json:"commission_rate"`
	AffiliateLink   *string   `json:"affiliate_link,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	ClickCount      int64     `json:"click_count"`
	ConversionCount int64     `json:"conversion_count"`
	CommissionTotal int64     `json:"commission_total"` // Minor units, reversed conversions excluded
}

// RefCodeResponse wraps a single ref code
type RefCodeResponse struct {
	Message string      `json:"message"`
	Item    RefCodeItem `json:"item"`
}

// ListRefCodesRequest represents a ref code listing
type ListRefCodesRequest struct {
	CompanyID uint   `json:"company_id" validate:"required"`
	IsActive  *bool  `json:"is_active,omitempty"`
	Type      string `json:"monetizable_type,omitempty" validate:"omitempty,oneof=landing product"`
}

// ListRefCodesResponse represents the ref code listing response
type ListRefCodesResponse struct {
	Items []RefCodeItem `json:"items"`
}

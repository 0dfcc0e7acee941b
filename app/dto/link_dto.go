package dto

// BuildLinkRequest represents a tracked link construction request. Either an
// explicit TargetURL or a Domain plus landing slug / product ID is given; the
// explicit URL is still checked against the allowlist.
type BuildLinkRequest struct {
	CompanyID   uint              `json:"company_id" validate:"required"`
	RefCode     string            `json:"ref_code" validate:"required,max=64"`
	TargetURL   string            `json:"target_url,omitempty" validate:"omitempty,max=2048"`
	Domain      string            `json:"domain,omitempty" validate:"omitempty,max=255"`
	LandingSlug string            `json:"landing_slug,omitempty" validate:"omitempty,max=128"`
	ProductID   string            `json:"product_id,omitempty" validate:"omitempty,max=128"`
	Template    string            `json:"template,omitempty"` // Named template, defaults to "default"
	Sub1        string            `json:"sub1,omitempty" validate:"omitempty,max=64"`
	Sub2        string            `json:"sub2,omitempty" validate:"omitempty,max=64"`
	UTMOverride map[string]string `json:"utm_override,omitempty"`
}

// BuildLinkResponse carries the assembled tracked URL
type BuildLinkResponse struct {
	URL string `json:"url"`
}

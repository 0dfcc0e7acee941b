// Package businessflow contains the core business logic and use cases for link building workflows
package businessflow

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/aimarket/affiliate-engine/app/dto"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
)

// LinkBuilderFlow assembles tracked affiliate URLs from per-company link settings
type LinkBuilderFlow interface {
	BuildLink(ctx context.Context, req *dto.BuildLinkRequest, metadata *ClientMetadata) (*dto.BuildLinkResponse, error)
}

// LinkBuilderFlowImpl implements the link building business flow
type LinkBuilderFlowImpl struct {
	linkSettingsRepo repository.LinkSettingsRepository
	refCodeRepo      repository.RefCodeRepository
	companyRepo      repository.CompanyRepository
}

// NewLinkBuilderFlow creates a new link builder flow instance
func NewLinkBuilderFlow(
	linkSettingsRepo repository.LinkSettingsRepository,
	refCodeRepo repository.RefCodeRepository,
	companyRepo repository.CompanyRepository,
) LinkBuilderFlow {
	return &LinkBuilderFlowImpl{
		linkSettingsRepo: linkSettingsRepo,
		refCodeRepo:      refCodeRepo,
		companyRepo:      companyRepo,
	}
}

// BuildLink resolves the company's link settings and builds a tracked URL for
// the given ref code. The ref code must belong to the company and be active.
func (s *LinkBuilderFlowImpl) BuildLink(ctx context.Context, req *dto.BuildLinkRequest, metadata *ClientMetadata) (*dto.BuildLinkResponse, error) {
	company, err := getActiveCompany(ctx, s.companyRepo, req.CompanyID)
	if err != nil {
		return nil, NewBusinessError("LINK_BUILD_FAILED", "Link build failed", err)
	}

	code := strings.TrimSpace(req.RefCode)
	if code == "" {
		return nil, NewBusinessError("LINK_BUILD_FAILED", "Ref code is required", ErrRefCodeRequired)
	}
	refCode, err := s.refCodeRepo.ByCompanyAndCode(ctx, company.ID, code)
	if err != nil {
		return nil, NewBusinessError("LINK_BUILD_FAILED", "Failed to load ref code", err)
	}
	if refCode == nil {
		return nil, NewBusinessError("LINK_BUILD_FAILED", "Ref code not found", ErrRefCodeNotFound)
	}
	if !refCode.IsActive {
		return nil, NewBusinessError("LINK_BUILD_FAILED", "Ref code is inactive", ErrRefCodeInactive)
	}

	settings, err := s.linkSettingsRepo.ByCompanyID(ctx, company.ID)
	if err != nil {
		return nil, NewBusinessError("LINK_BUILD_FAILED", "Failed to load link settings", err)
	}
	if settings == nil {
		return nil, NewBusinessError("LINK_BUILD_FAILED", "Link settings are not configured", ErrLinkSettingsNotConfigured)
	}

	built, err := BuildAffiliateURL(settings, LinkBuildInput{
		CompanyID:    company.ID,
		RefCode:      refCode.Code,
		TargetURL:    strings.TrimSpace(req.TargetURL),
		Domain:       strings.TrimSpace(req.Domain),
		LandingSlug:  strings.TrimSpace(req.LandingSlug),
		ProductID:    strings.TrimSpace(req.ProductID),
		TemplateName: req.Template,
		Sub1:         req.Sub1,
		Sub2:         req.Sub2,
		UTMOverride:  req.UTMOverride,
	})
	if err != nil {
		return nil, NewBusinessError("LINK_BUILD_FAILED", "Link build failed", err)
	}

	return &dto.BuildLinkResponse{URL: built}, nil
}

// LinkBuildInput carries everything the pure URL builder needs
type LinkBuildInput struct {
	CompanyID    uint
	RefCode      string
	TargetURL    string
	Domain       string
	LandingSlug  string
	ProductID    string
	TemplateName string
	Sub1         string
	Sub2         string
	UTMOverride  map[string]string
}

// BuildAffiliateURL builds a tracked URL from link settings without touching
// storage. Templates accept {domain}, {landingSlug}, {productId} and {params}
// placeholders in both {var} and ${var} form; UTM values may reference
// ${companyId}, ${ref_code} and ${landingSlug}.
func BuildAffiliateURL(settings *models.LinkSettings, in LinkBuildInput) (string, error) {
	paramKeys := settings.DecodedParamKeys()
	if paramKeys.Ref == "" {
		return "", ErrLinkSettingsNotConfigured
	}

	query := buildTrackingQuery(settings, paramKeys, in)

	if in.TargetURL != "" {
		return appendToTarget(settings, in.TargetURL, query)
	}

	if in.Domain == "" {
		return "", ErrInvalidTargetURL
	}
	if !domainAllowed(settings, in.Domain) {
		return "", ErrDomainNotAllowed
	}

	name := in.TemplateName
	if name == "" {
		name = "default"
	}
	template := settings.Template(name)
	if template == "" {
		return defaultPathURL(in, query)
	}
	if !strings.Contains(template, "{domain}") {
		return "", ErrLinkSettingsNotConfigured
	}

	vars := map[string]string{
		"domain":      in.Domain,
		"landingSlug": in.LandingSlug,
		"productId":   in.ProductID,
		"params":      query,
	}
	built := expandPlaceholders(template, vars)
	if !strings.Contains(built, "?") && query != "" {
		built += "?" + query
	}
	return built, nil
}

// buildTrackingQuery assembles the query string with the ref parameter first,
// UTM values next and sub IDs last
func buildTrackingQuery(settings *models.LinkSettings, paramKeys models.LinkParamKeys, in LinkBuildInput) string {
	subs := map[string]string{
		"companyId":   strconv.FormatUint(uint64(in.CompanyID), 10),
		"ref_code":    in.RefCode,
		"landingSlug": in.LandingSlug,
	}

	utm := settings.DecodedUTM()
	values := map[string]string{
		"utm_source":   utm.Source,
		"utm_medium":   utm.Medium,
		"utm_campaign": utm.Campaign,
		"utm_content":  utm.Content,
		"utm_term":     utm.Term,
	}
	for k, v := range in.UTMOverride {
		if strings.HasPrefix(k, "utm_") {
			values[k] = v
		}
	}

	pairs := make([][2]string, 0, 8)
	pairs = append(pairs, [2]string{paramKeys.Ref, in.RefCode})
	for _, k := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term"} {
		if v := values[k]; v != "" {
			pairs = append(pairs, [2]string{k, expandPlaceholders(v, subs)})
		}
	}
	if paramKeys.Sub1 != "" && in.Sub1 != "" {
		pairs = append(pairs, [2]string{paramKeys.Sub1, in.Sub1})
	}
	if paramKeys.Sub2 != "" && in.Sub2 != "" {
		pairs = append(pairs, [2]string{paramKeys.Sub2, in.Sub2})
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
	}
	return strings.Join(parts, "&")
}

// appendToTarget validates an explicit target URL against the allowlist and
// attaches the tracking query to it
func appendToTarget(settings *models.LinkSettings, target, query string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", ErrInvalidTargetURL
	}
	if !domainAllowed(settings, parsed.Hostname()) {
		return "", ErrDomainNotAllowed
	}
	if query != "" {
		if parsed.RawQuery != "" {
			parsed.RawQuery += "&" + query
		} else {
			parsed.RawQuery = query
		}
	}
	return parsed.String(), nil
}

// defaultPathURL is the fallback layout when no template is configured
func defaultPathURL(in LinkBuildInput, query string) (string, error) {
	var path string
	switch {
	case in.LandingSlug != "":
		path = "/landing/" + in.LandingSlug
	case in.ProductID != "":
		path = "/product/" + in.ProductID
	default:
		return "", ErrInvalidTargetURL
	}
	built := "https://" + in.Domain + path
	if query != "" {
		built += "?" + query
	}
	return built, nil
}

func domainAllowed(settings *models.LinkSettings, domain string) bool {
	for _, d := range settings.AllowlistDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// expandPlaceholders substitutes {var} and ${var} references from vars,
// unknown references are left untouched
func expandPlaceholders(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "${"+k+"}", v)
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

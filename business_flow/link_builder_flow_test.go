package businessflow

import (
	"encoding/json"
	"testing"

	"github.com/aimarket/affiliate-engine/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linkSettingsFixture(t *testing.T) *models.LinkSettings {
	t.Helper()
	utm, err := json.Marshal(map[string]string{
		"source":   "partner",
		"medium":   "affiliate",
		"campaign": "co-${companyId}",
		"content":  "${ref_code}",
	})
	require.NoError(t, err)
	keys, err := json.Marshal(map[string]string{"ref": "ref", "sub1": "s1", "sub2": "s2"})
	require.NoError(t, err)
	templates, err := json.Marshal(map[string]string{
		"default": "https://{domain}/landing/{landingSlug}?{params}",
		"product": "https://{domain}/p/{productId}",
	})
	require.NoError(t, err)
	return &models.LinkSettings{
		CompanyID:        42,
		UTMDefaults:      utm,
		ParamKeys:        keys,
		AllowlistDomains: pq.StringArray{"shop.example.com", "landing.example.com"},
		Templates:        templates,
	}
}

func TestBuildAffiliateURL_Template(t *testing.T) {
	settings := linkSettingsFixture(t)

	got, err := BuildAffiliateURL(settings, LinkBuildInput{
		CompanyID:   42,
		RefCode:     "SPRING24",
		Domain:      "shop.example.com",
		LandingSlug: "summer-sale",
	})
	require.NoError(t, err)

	assert.Equal(t,
		"https://shop.example.com/landing/summer-sale?ref=SPRING24&utm_source=partner&utm_medium=affiliate&utm_campaign=co-42&utm_content=SPRING24",
		got)
}

func TestBuildAffiliateURL_NamedTemplateAppendsQuery(t *testing.T) {
	settings := linkSettingsFixture(t)

	got, err := BuildAffiliateURL(settings, LinkBuildInput{
		CompanyID:    42,
		RefCode:      "SPRING24",
		Domain:       "shop.example.com",
		ProductID:    "9981",
		TemplateName: "product",
	})
	require.NoError(t, err)

	// Template carries no {params} placeholder so the query is appended.
	assert.Contains(t, got, "https://shop.example.com/p/9981?")
	assert.Contains(t, got, "ref=SPRING24")
}

func TestBuildAffiliateURL_SubIDsAndOverrides(t *testing.T) {
	settings := linkSettingsFixture(t)

	got, err := BuildAffiliateURL(settings, LinkBuildInput{
		CompanyID:   42,
		RefCode:     "SPRING24",
		Domain:      "shop.example.com",
		LandingSlug: "promo",
		Sub1:        "newsletter",
		Sub2:        "week-12",
		UTMOverride: map[string]string{"utm_source": "email", "bogus": "dropped"},
	})
	require.NoError(t, err)

	assert.Contains(t, got, "utm_source=email")
	assert.Contains(t, got, "s1=newsletter")
	assert.Contains(t, got, "s2=week-12")
	assert.NotContains(t, got, "bogus")
}

func TestBuildAffiliateURL_ExplicitTarget(t *testing.T) {
	settings := linkSettingsFixture(t)

	got, err := BuildAffiliateURL(settings, LinkBuildInput{
		CompanyID: 42,
		RefCode:   "SPRING24",
		TargetURL: "https://landing.example.com/lp?x=1",
	})
	require.NoError(t, err)

	assert.Contains(t, got, "x=1&ref=SPRING24")
}

func TestBuildAffiliateURL_Errors(t *testing.T) {
	settings := linkSettingsFixture(t)

	tests := []struct {
		name    string
		input   LinkBuildInput
		wantErr error
	}{
		{
			name:    "domain outside allowlist",
			input:   LinkBuildInput{CompanyID: 42, RefCode: "R", Domain: "evil.example.org", LandingSlug: "x"},
			wantErr: ErrDomainNotAllowed,
		},
		{
			name:    "target outside allowlist",
			input:   LinkBuildInput{CompanyID: 42, RefCode: "R", TargetURL: "https://evil.example.org/lp"},
			wantErr: ErrDomainNotAllowed,
		},
		{
			name:    "unparseable target",
			input:   LinkBuildInput{CompanyID: 42, RefCode: "R", TargetURL: "::not-a-url"},
			wantErr: ErrInvalidTargetURL,
		},
		{
			name:    "ftp scheme rejected",
			input:   LinkBuildInput{CompanyID: 42, RefCode: "R", TargetURL: "ftp://shop.example.com/file"},
			wantErr: ErrInvalidTargetURL,
		},
		{
			name:    "no domain and no target",
			input:   LinkBuildInput{CompanyID: 42, RefCode: "R"},
			wantErr: ErrInvalidTargetURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAffiliateURL(settings, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildAffiliateURL_MissingRefParamKey(t *testing.T) {
	settings := linkSettingsFixture(t)
	settings.ParamKeys = json.RawMessage(`{}`)

	_, err := BuildAffiliateURL(settings, LinkBuildInput{CompanyID: 42, RefCode: "R", Domain: "shop.example.com", LandingSlug: "x"})
	assert.ErrorIs(t, err, ErrLinkSettingsNotConfigured)
}

func TestBuildAffiliateURL_NoTemplateFallsBackToDefaultPath(t *testing.T) {
	settings := linkSettingsFixture(t)
	settings.Templates = json.RawMessage(`{}`)

	got, err := BuildAffiliateURL(settings, LinkBuildInput{
		CompanyID:   42,
		RefCode:     "SPRING24",
		Domain:      "shop.example.com",
		LandingSlug: "promo",
	})
	require.NoError(t, err)
	assert.Contains(t, got, "https://shop.example.com/landing/promo?ref=SPRING24")
}

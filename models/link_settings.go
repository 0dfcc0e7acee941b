package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// LinkSettings holds per-company UTM defaults, parameter aliases, the domain
// allowlist and URL templates consulted by the link builder. Read-mostly, no
// state machine.
type LinkSettings struct {
	ID        uint `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID uint `gorm:"not null;uniqueIndex" json:"company_id"`

	// UTMDefaults: {"source": "...", "medium": "...", "campaign": "...", "content": "...", "term": "..."}
	UTMDefaults json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"utm_defaults"`

	// ParamKeys aliases the tracking parameter names: {"ref": "ref", "sub1": "s1", "sub2": "s2"}
	ParamKeys json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"param_keys"`

	AllowlistDomains pq.StringArray `gorm:"type:text[]" json:"allowlist_domains"`

	// Templates: {"default": "https://{domain}/landing/{landingSlug}?{params}"}
	Templates json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"templates"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	Company Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE" json:"company,omitempty"`
}

func (LinkSettings) TableName() string { return "link_settings" }

// UTM is the decoded shape of UTMDefaults
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Content  string `json:"content,omitempty"`
	Term     string `json:"term,omitempty"`
}

// LinkParamKeys is the decoded shape of ParamKeys
type LinkParamKeys struct {
	Ref  string `json:"ref"`
	Sub1 string `json:"sub1,omitempty"`
	Sub2 string `json:"sub2,omitempty"`
}

// DecodedUTM unmarshals UTMDefaults, empty on malformed data
func (l *LinkSettings) DecodedUTM() UTM {
	var u UTM
	if len(l.UTMDefaults) > 0 {
		_ = json.Unmarshal(l.UTMDefaults, &u)
	}
	return u
}

// DecodedParamKeys unmarshals ParamKeys, empty on malformed data
func (l *LinkSettings) DecodedParamKeys() LinkParamKeys {
	var k LinkParamKeys
	if len(l.ParamKeys) > 0 {
		_ = json.Unmarshal(l.ParamKeys, &k)
	}
	return k
}

// Template returns the named URL template, empty when missing
func (l *LinkSettings) Template(name string) string {
	var m map[string]string
	if len(l.Templates) == 0 {
		return ""
	}
	if err := json.Unmarshal(l.Templates, &m); err != nil {
		return ""
	}
	return m[name]
}

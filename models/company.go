// Package models contains domain entities and business models for the affiliate engine
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company is the owning entity for every affiliate record. Company CRUD lives
// in the surrounding application; this row exists so ownership and the ledger
// have a real foreign key.
type Company struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	Name string    `gorm:"size:255;not null" json:"name"`

	IsActive bool `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// Relationships
	RefCodes     []RefCode     `gorm:"foreignKey:CompanyID" json:"ref_codes,omitempty"`
	Transactions []Transaction `gorm:"foreignKey:CompanyID" json:"transactions,omitempty"`
}

func (Company) TableName() string { return "companies" }

// BeforeCreate ensures UUID is set
func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	return nil
}

// CompanyFilter represents filter criteria for company queries
type CompanyFilter struct {
	ID       *uint      `json:"id,omitempty"`
	UUID     *uuid.UUID `json:"uuid,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScrapeCredential stores login credentials for one scrapable account.
// Passwords are encrypted at rest; see internal/crypto.
type ScrapeCredential struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	InstitutionName string    `gorm:"not null;column:institution_name" json:"institution_name"`
	AccountNumber   string    `gorm:"uniqueIndex;not null;column:account_number" json:"account_number"`
	Username        string    `gorm:"not null" json:"username"`
	PasswordEnc     string    `gorm:"not null;column:password_enc" json:"-"` // Encrypted, never expose in JSON
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (c *ScrapeCredential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (ScrapeCredential) TableName() string {
	return "scrape_credentials"
}

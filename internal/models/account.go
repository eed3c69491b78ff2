package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountType identifies how an account is scraped and which statement
// mails it can receive.
type AccountType string

const (
	AccountTypeSavings    AccountType = "SAVINGS"
	AccountTypeCreditCard AccountType = "CREDIT_CARD"
	AccountTypeWallet     AccountType = "WALLET"
)

// Account represents a tracked financial account at an external institution
type Account struct {
	ID              string          `gorm:"primaryKey" json:"id"`
	Name            string          `gorm:"not null" json:"name"`
	InstitutionName string          `gorm:"not null;column:institution_name" json:"institution_name"`
	Number          string          `gorm:"uniqueIndex;not null" json:"number"`
	Type            AccountType     `gorm:"not null" json:"type"`
	Balance         decimal.Decimal `gorm:"type:numeric" json:"balance"`
	SenderAddresses string          `gorm:"type:text;column:sender_addresses" json:"-"` // JSON array of statement sender addresses
	StatementDay    int             `gorm:"column:statement_day" json:"statement_day"`  // day of month statements are generated, 0 = unknown
	LastSyncedAt    *time.Time      `gorm:"column:last_synced_at" json:"last_synced_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// TrailingDigits returns the last four digits of the account number,
// or the whole number when it is shorter than four characters.
func (a *Account) TrailingDigits() string {
	if len(a.Number) <= 4 {
		return a.Number
	}
	return a.Number[len(a.Number)-4:]
}

// Senders decodes the stored sender address list.
func (a *Account) Senders() []string {
	if a.SenderAddresses == "" {
		return nil
	}
	var senders []string
	json.Unmarshal([]byte(a.SenderAddresses), &senders)
	return senders
}

// SetSenders encodes and stores the sender address list.
func (a *Account) SetSenders(senders []string) {
	data, _ := json.Marshal(senders)
	a.SenderAddresses = string(data)
}

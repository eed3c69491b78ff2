package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType distinguishes money leaving vs. entering an account.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

// Transaction represents one ingested financial transaction.
// DedupKey is derived from the transaction's content (account, amount, type,
// date, description) so that resubmitting the same logical transaction maps
// to the existing row instead of creating a duplicate.
type Transaction struct {
	ID              string          `gorm:"primaryKey" json:"id"`
	AccountID       string          `gorm:"not null;index;column:account_id" json:"account_id"`
	Amount          decimal.Decimal `gorm:"type:numeric;not null" json:"amount"`
	Type            TransactionType `gorm:"not null" json:"type"`
	Description     string          `gorm:"type:text" json:"description"`
	TransactionDate time.Time       `gorm:"not null;column:transaction_date" json:"transaction_date"`
	DedupKey        string          `gorm:"uniqueIndex;not null;column:dedup_key" json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (Transaction) TableName() string {
	return "transactions"
}

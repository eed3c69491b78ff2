package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceHistory is an append-only record of observed account balances.
type BalanceHistory struct {
	ID         string          `gorm:"primaryKey" json:"id"`
	AccountID  string          `gorm:"not null;index;column:account_id" json:"account_id"`
	Balance    decimal.Decimal `gorm:"type:numeric;not null" json:"balance"`
	RecordedAt time.Time       `gorm:"not null;column:recorded_at" json:"recorded_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (b *BalanceHistory) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (BalanceHistory) TableName() string {
	return "balance_history"
}

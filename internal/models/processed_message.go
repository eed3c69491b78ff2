package models

import (
	"encoding/json"
	"time"
)

// ProcessedMessage records which inbox messages have already produced
// transactions, per account. Rows are created on first sight of a message
// and updated in place as additional accounts resolve against it; they are
// never deleted (append-only audit of ingestion).
type ProcessedMessage struct {
	MessageID           string    `gorm:"primaryKey;column:message_id" json:"message_id"`
	ProcessedAccounts   string    `gorm:"type:text;not null;column:processed_accounts" json:"processed_accounts"` // JSON array of account IDs
	MessageTimestamp    time.Time `gorm:"not null;index;column:message_timestamp" json:"message_timestamp"`
	FirstSeenAt         time.Time `gorm:"not null;column:first_seen_at" json:"first_seen_at"`
	LastSeenAt          time.Time `gorm:"not null;column:last_seen_at" json:"last_seen_at"`
	TransactionsCreated int       `gorm:"not null;default:0;column:transactions_created" json:"transactions_created"`
}

// TableName specifies the table name for GORM
func (ProcessedMessage) TableName() string {
	return "processed_messages"
}

// AccountIDs decodes the processed account set.
func (p *ProcessedMessage) AccountIDs() []string {
	if p.ProcessedAccounts == "" {
		return nil
	}
	var ids []string
	json.Unmarshal([]byte(p.ProcessedAccounts), &ids)
	return ids
}

// HasAccount reports whether the given account already processed this message.
func (p *ProcessedMessage) HasAccount(accountID string) bool {
	for _, id := range p.AccountIDs() {
		if id == accountID {
			return true
		}
	}
	return false
}

// AddAccount adds an account to the processed set if not already present.
// Returns true if the set changed.
func (p *ProcessedMessage) AddAccount(accountID string) bool {
	if p.HasAccount(accountID) {
		return false
	}
	ids := append(p.AccountIDs(), accountID)
	data, _ := json.Marshal(ids)
	p.ProcessedAccounts = string(data)
	return true
}

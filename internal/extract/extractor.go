// Package extract converts unstructured message text into structured
// transaction candidates.
package extract

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Intent classifies what a message is about.
type Intent string

const (
	// IntentTransaction is a debit/credit event to persist as a transaction.
	IntentTransaction Intent = "TRANSACTION"
	// IntentAccountBalance is a statement/outstanding-balance notification.
	IntentAccountBalance Intent = "ACCOUNT_BALANCE"
	// IntentIgnore is anything else (promotions, OTPs, reminders).
	IntentIgnore Intent = "IGNORE"
)

// Result is the structured output of one extraction.
type Result struct {
	Intent        Intent
	Amount        decimal.Decimal
	Date          time.Time
	IsDebit       bool
	Description   string
	AccountNumber string // trailing account digits as printed in the message, may be empty
	Success       bool   // whether the upstream event itself succeeded (a declined payment is not persisted)
}

// Extractor turns free text into a Result. A nil Result with nil error means
// the text carried nothing extractable.
type Extractor interface {
	Extract(ctx context.Context, text string) (*Result, error)
}

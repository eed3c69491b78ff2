// Package scrape coordinates automated login/scrape sessions against
// external institutions: one bounded worker pool, one session per
// institution at a time, every task tracked in the progress ledger.
package scrape

import (
	"context"

	"github.com/mukuzz/myfi-sub000/internal/models"
)

// Credentials is the login material for one scrape task. It is consumed
// once per task and discarded; it is never persisted by this package.
type Credentials struct {
	InstitutionName string
	AccountNumber   string
	Username        string
	Password        string
}

// Scraper is the boundary to the browser-driven page-scripting logic for one
// institution. Implementations own their session resources: a scraper is
// opened on demand by the registry and must release everything on Close,
// even when login never succeeded.
type Scraper interface {
	// Login authenticates the session. A false return without error means
	// the institution rejected the credentials.
	Login(ctx context.Context, creds Credentials) (bool, error)

	// Logout ends the authenticated session.
	Logout(ctx context.Context) error

	// ScrapeBankTransactions pulls transactions for a savings-like account.
	ScrapeBankTransactions(ctx context.Context, account *models.Account) error

	// ScrapeCreditCardTransactions pulls transactions for a card account.
	ScrapeCreditCardTransactions(ctx context.Context, account *models.Account) error

	// SupportedAccountTypes lists the account types this scraper handles.
	SupportedAccountTypes() []models.AccountType

	// Close releases browser/page resources. Always called exactly once per
	// task, regardless of which stage failed.
	Close()
}

// Package store holds the persistence collaborators the ingestion core
// consumes: account lookup, idempotent transaction creation, balance history,
// processed-message records and stored scrape credentials.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mukuzz/myfi-sub000/internal/models"
)

// ErrAccountNotFound is returned when no account matches a lookup.
var ErrAccountNotFound = errors.New("account not found")

// Store wraps the database with the narrow operations the sync services use.
type Store struct {
	db *gorm.DB
}

// New creates a store on top of an initialized database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AccountByNumber resolves an account by its external account number.
func (s *Store) AccountByNumber(number string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("number = ?", number).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, number)
		}
		return nil, fmt.Errorf("failed to load account %s: %w", number, err)
	}
	return &account, nil
}

// InstitutionAccountType is one (institution, account type) pair eligible
// for inbox-based ingestion.
type InstitutionAccountType struct {
	Institution string
	Type        models.AccountType
}

// EligibleInboxAccounts returns the accounts whose institution/type pair is
// configured for inbox ingestion.
func (s *Store) EligibleInboxAccounts(pairs []InstitutionAccountType) ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.Order("number").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	eligible := accounts[:0]
	for _, acc := range accounts {
		for _, pair := range pairs {
			if strings.EqualFold(acc.InstitutionName, pair.Institution) && acc.Type == pair.Type {
				eligible = append(eligible, acc)
				break
			}
		}
	}
	return eligible, nil
}

// RecordSyncTime updates the account's last-successful-sync timestamp.
func (s *Store) RecordSyncTime(accountID string, at time.Time) error {
	return s.db.Model(&models.Account{}).Where("id = ?", accountID).
		Update("last_synced_at", at).Error
}

// CreateTransaction persists a transaction idempotently: the dedup key is
// derived from the transaction's content, and a duplicate submission returns
// the existing row with created=false instead of erroring.
func (s *Store) CreateTransaction(txn *models.Transaction) (*models.Transaction, bool, error) {
	txn.DedupKey = transactionDedupKey(txn)

	var existing models.Transaction
	err := s.db.Where("dedup_key = ?", txn.DedupKey).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to check for duplicate transaction: %w", err)
	}

	if err := s.db.Create(txn).Error; err != nil {
		// Lost a race against a concurrent insert of the same key; the
		// existing row is the answer either way.
		if fetchErr := s.db.Where("dedup_key = ?", txn.DedupKey).First(&existing).Error; fetchErr == nil {
			return &existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create transaction: %w", err)
	}
	return txn, true, nil
}

// AppendBalance writes a balance-history row and updates the account's
// current balance.
func (s *Store) AppendBalance(accountID string, balance decimal.Decimal, at time.Time) error {
	entry := models.BalanceHistory{
		AccountID:  accountID,
		Balance:    balance,
		RecordedAt: at,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append balance history: %w", err)
	}
	return s.db.Model(&models.Account{}).Where("id = ?", accountID).
		Update("balance", balance).Error
}

// transactionDedupKey hashes the content that identifies a logical
// transaction. Two submissions with the same account, amount, type, date and
// description map to the same key.
func transactionDedupKey(txn *models.Transaction) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s",
		txn.AccountID,
		txn.Amount.String(),
		txn.Type,
		txn.TransactionDate.UTC().Format("2006-01-02"),
		strings.TrimSpace(strings.ToLower(txn.Description)),
	)
	return hex.EncodeToString(h.Sum(nil))
}

package inbox

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mukuzz/myfi-sub000/internal/extract"
	"github.com/mukuzz/myfi-sub000/internal/match"
	"github.com/mukuzz/myfi-sub000/internal/models"
	"github.com/mukuzz/myfi-sub000/internal/progress"
	"github.com/mukuzz/myfi-sub000/internal/store"
)

// Store is the slice of persistence the pipeline needs.
type Store interface {
	EligibleInboxAccounts(pairs []store.InstitutionAccountType) ([]models.Account, error)
	IsMessageProcessedFor(messageID, accountID string) (bool, error)
	MarkMessageProcessed(messageID, accountID string, messageTime time.Time, transactionsCreated int) error
	LatestMessageTime(accountID string) (time.Time, bool, error)
	CreateTransaction(txn *models.Transaction) (*models.Transaction, bool, error)
	AppendBalance(accountID string, balance decimal.Decimal, at time.Time) error
}

// Config tunes the ingestion pipeline.
type Config struct {
	// Eligible lists the institution/account-type pairs whose statement
	// mails this pipeline understands.
	Eligible []store.InstitutionAccountType
	// IssuerKeywords maps a lowercased institution name to keywords that
	// identify its messages when they omit account numbers entirely.
	IssuerKeywords map[string][]string
	// CallTimeout bounds each mail-source and extractor call. Defaults to
	// 1 minute.
	CallTimeout time.Duration
}

// Service drives inbox-based ingestion for every eligible account. Accounts
// are processed one at a time, and messages within an account oldest-first,
// so balance updates land in chronological order.
type Service struct {
	ledger    *progress.Ledger
	store     Store
	source    MailSource
	extractor extract.Extractor
	cfg       Config
}

// NewService creates the ingestion pipeline.
func NewService(ledger *progress.Ledger, st Store, source MailSource, extractor extract.Extractor, cfg Config) *Service {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = time.Minute
	}
	return &Service{
		ledger:    ledger,
		store:     st,
		source:    source,
		extractor: extractor,
		cfg:       cfg,
	}
}

// Sync runs one full ingestion pass. One account's failure never aborts the
// others; every failure lands in the ledger instead of propagating.
func (s *Service) Sync(ctx context.Context) {
	s.ledger.Clear(progress.SourceInbox)

	accounts, err := s.store.EligibleInboxAccounts(s.cfg.Eligible)
	if err != nil {
		log.Printf("inbox sync aborted: %v", err)
		return
	}

	for _, acc := range accounts {
		s.ledger.Initialize(progress.SourceInbox, acc.Number, acc.Name, 0)
	}

	for i := range accounts {
		s.syncAccount(ctx, &accounts[i])
	}
}

func (s *Service) syncAccount(ctx context.Context, acc *models.Account) {
	kind := progress.SourceInbox
	id := acc.Number

	s.ledger.Transition(kind, id, progress.StatusLoginStarted, "Authenticating mail source")
	if err := s.authorize(ctx); err != nil {
		s.ledger.Transition(kind, id, progress.StatusLoginFailed,
			fmt.Sprintf("authentication failed: %v", err))
		return
	}
	s.ledger.Transition(kind, id, progress.StatusLoginSuccess, "Mail source authenticated")

	cutoff := s.cutoffFor(acc)
	query := buildQuery(acc.Senders(), cutoff)

	s.ledger.Transition(kind, id, progress.StatusProcessingStarted,
		fmt.Sprintf("Searching inbox since %s", cutoff.Format(time.RFC3339)))

	ids, err := s.listMessages(ctx, query)
	if err != nil {
		s.ledger.Fail(kind, id, fmt.Sprintf("message enumeration failed: %v", err))
		return
	}

	// Gmail returns newest-first; process oldest-first so balance updates
	// apply in chronological order.
	reverse(ids)

	total := len(ids)
	created := 0
	for i, msgID := range ids {
		created += s.processMessage(ctx, acc, msgID)
		s.ledger.Progress(kind, id, progress.StatusProcessingInProgress,
			fmt.Sprintf("Processed %d of %d messages", i+1, total), i+1, total)
	}

	s.ledger.Transition(kind, id, progress.StatusProcessingSuccess,
		fmt.Sprintf("Processed %d messages", total))
	s.ledger.Complete(kind, id,
		fmt.Sprintf("Processed %d messages, %d new transactions", total, created))
}

// processMessage handles one message for one account and returns how many
// transactions it created. Per-message failures are logged and skipped; they
// never abort the account's pass.
func (s *Service) processMessage(ctx context.Context, acc *models.Account, msgID string) int {
	processed, err := s.store.IsMessageProcessedFor(msgID, acc.ID)
	if err != nil {
		log.Printf("WARNING: idempotency lookup failed for message %s: %v", msgID, err)
		return 0
	}
	if processed {
		return 0
	}

	msg, err := s.fullMessage(ctx, msgID)
	if err != nil {
		log.Printf("WARNING: skipping message %s: fetch failed: %v", msgID, err)
		return 0
	}

	text := msg.Subject + "\n" + msg.Body
	if !match.MentionsAccount(text, acc, s.issuerKeywords(acc)) {
		// Not about this account; remember that so replays skip the fetch.
		s.markProcessed(msgID, acc.ID, msg.InternalDate, 0)
		return 0
	}

	result, err := s.extract(ctx, text)
	if err != nil {
		log.Printf("WARNING: extraction failed for message %s: %v", msgID, err)
		s.markProcessed(msgID, acc.ID, msg.InternalDate, 0)
		return 0
	}
	if result == nil {
		s.markProcessed(msgID, acc.ID, msg.InternalDate, 0)
		return 0
	}

	created := 0
	switch result.Intent {
	case extract.IntentTransaction:
		created = s.persistTransaction(acc, msg, result)
	case extract.IntentAccountBalance:
		s.persistBalance(acc, msg, result)
	}

	s.markProcessed(msgID, acc.ID, msg.InternalDate, created)
	return created
}

func (s *Service) persistTransaction(acc *models.Account, msg *Message, result *extract.Result) int {
	if !result.Success {
		log.Printf("Skipping unsuccessful transaction in message %s", msg.ID)
		return 0
	}
	if !match.NumbersConsistent(acc, result.AccountNumber) {
		log.Printf("Skipping message %s: extracted account %s does not match %s",
			msg.ID, result.AccountNumber, acc.TrailingDigits())
		return 0
	}

	txnType := models.TransactionCredit
	if result.IsDebit {
		txnType = models.TransactionDebit
	}
	date := result.Date
	if date.IsZero() {
		date = msg.InternalDate
	}

	txn := &models.Transaction{
		AccountID:       acc.ID,
		Amount:          result.Amount,
		Type:            txnType,
		Description:     result.Description,
		TransactionDate: date,
	}
	persisted, created, err := s.store.CreateTransaction(txn)
	if err != nil {
		log.Printf("WARNING: failed to persist transaction from message %s: %v", msg.ID, err)
		return 0
	}
	if !created {
		log.Printf("Duplicate transaction from message %s maps to %s", msg.ID, persisted.ID)
		return 0
	}
	return 1
}

func (s *Service) persistBalance(acc *models.Account, msg *Message, result *extract.Result) {
	if !match.NumbersConsistent(acc, result.AccountNumber) {
		log.Printf("Skipping balance in message %s: extracted account %s does not match %s",
			msg.ID, result.AccountNumber, acc.TrailingDigits())
		return
	}

	at := result.Date
	if at.IsZero() {
		at = msg.InternalDate
	}
	if err := s.store.AppendBalance(acc.ID, result.Amount, at); err != nil {
		log.Printf("WARNING: failed to append balance from message %s: %v", msg.ID, err)
	}
}

func (s *Service) markProcessed(msgID, accountID string, messageTime time.Time, created int) {
	if err := s.store.MarkMessageProcessed(msgID, accountID, messageTime, created); err != nil {
		log.Printf("WARNING: failed to record processed message %s: %v", msgID, err)
	}
}

func (s *Service) cutoffFor(acc *models.Account) time.Time {
	latest, hasSeen, err := s.store.LatestMessageTime(acc.ID)
	if err != nil {
		log.Printf("WARNING: watermark lookup failed for %s: %v", acc.Number, err)
		hasSeen = false
	}
	return queryCutoff(acc, latest, hasSeen, time.Now())
}

func (s *Service) issuerKeywords(acc *models.Account) []string {
	return s.cfg.IssuerKeywords[strings.ToLower(acc.InstitutionName)]
}

func (s *Service) authorize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.source.Authorize(ctx)
}

func (s *Service) listMessages(ctx context.Context, query string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.source.ListMessages(ctx, query)
}

func (s *Service) fullMessage(ctx context.Context, id string) (*Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.source.FullMessage(ctx, id)
}

func (s *Service) extract(ctx context.Context, text string) (*extract.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.extractor.Extract(ctx, text)
}

func reverse(ids []string) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

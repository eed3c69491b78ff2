package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mukuzz/myfi-sub000/internal/models"
	"github.com/mukuzz/myfi-sub000/internal/progress"
	"github.com/mukuzz/myfi-sub000/internal/store"
)

// AccountStore is the slice of persistence this orchestrator needs.
type AccountStore interface {
	AccountByNumber(number string) (*models.Account, error)
	RecordSyncTime(accountID string, at time.Time) error
}

// Config tunes the orchestrator.
type Config struct {
	// Workers bounds how many scrape tasks run at once across all
	// institutions. Defaults to 4.
	Workers int
	// CallTimeout bounds every external scraper call so a stuck page cannot
	// hold an institution permit forever. Defaults to 3 minutes.
	CallTimeout time.Duration
}

// Service submits one task per credential set to a bounded worker pool and
// drives each task through the progress ledger.
type Service struct {
	ledger      *progress.Ledger
	registry    *Registry
	accounts    AccountStore
	locks       *institutionLocks
	workers     int
	callTimeout time.Duration
	wg          sync.WaitGroup
}

// NewService creates a scrape orchestrator.
func NewService(ledger *progress.Ledger, registry *Registry, accounts AccountStore, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Minute
	}
	return &Service{
		ledger:      ledger,
		registry:    registry,
		accounts:    accounts,
		locks:       newInstitutionLocks(),
		workers:     cfg.Workers,
		callTimeout: cfg.CallTimeout,
	}
}

// Submit starts one scrape task per credential on the worker pool and
// returns immediately. Prior scrape progress is cleared once per batch;
// in-flight operations of other source kinds are untouched.
func (s *Service) Submit(creds []Credentials) {
	s.ledger.Clear(progress.SourceScrape)

	for _, cred := range creds {
		name := fmt.Sprintf("%s %s", cred.InstitutionName, cred.AccountNumber)
		s.ledger.Initialize(progress.SourceScrape, cred.AccountNumber, name, 0)
	}

	sem := make(chan struct{}, s.workers)
	for _, cred := range creds {
		s.wg.Add(1)
		go func(cred Credentials) {
			defer s.wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			s.runTask(cred)
		}(cred)
	}
}

// Wait blocks until every submitted task has finished. Used by callers that
// need batch completion (tests, shutdown).
func (s *Service) Wait() {
	s.wg.Wait()
}

// stageOutcome is the explicit result of one pipeline stage; the final
// reconciliation pattern-matches on these instead of mutable flags.
type stageOutcome int

const (
	stageOK stageOutcome = iota
	stageFailed
	stageSkipped
)

// runTask drives one credential through the full pipeline. No error escapes:
// every failure becomes a ledger transition and cleanup always runs.
func (s *Service) runTask(cred Credentials) {
	kind := progress.SourceScrape
	id := cred.AccountNumber
	lastStage := "startup"

	defer func() {
		if r := recover(); r != nil {
			log.Printf("scrape task %s panicked during %s: %v", id, lastStage, r)
			if op, ok := s.ledger.Snapshot(kind, id); !ok || !op.Status.IsError() {
				s.ledger.Fail(kind, id, fmt.Sprintf("unexpected failure during %s: %v", lastStage, r))
			}
		}
	}()

	// Input errors fail fast: no permit taken, no side effects.
	account, err := s.accounts.AccountByNumber(id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			s.ledger.Fail(kind, id, fmt.Sprintf("account not found: %s", id))
		} else {
			s.ledger.Fail(kind, id, fmt.Sprintf("account lookup failed: %v", err))
		}
		return
	}

	lastStage = "permit acquisition"
	s.ledger.Transition(kind, id, progress.StatusAcquiringPermit,
		fmt.Sprintf("Waiting for %s session permit", cred.InstitutionName))
	release := s.locks.acquire(cred.InstitutionName)
	// Registered first so it runs last: the permit is released only after
	// scraper resources are closed, keeping the next queued task for this
	// institution behind the full cleanup.
	defer release()

	lastStage = "scraper selection"
	scraper, err := s.registry.New(cred.InstitutionName)
	if err != nil {
		s.ledger.Fail(kind, id, err.Error())
		return
	}
	defer scraper.Close()

	lastStage = "login"
	if !s.stageLogin(scraper, cred) {
		return
	}

	lastStage = "processing"
	procOutcome, procMessage := s.stageScrape(scraper, account)

	lastStage = "logout"
	logoutOutcome := s.stageLogout(scraper, id)

	lastStage = "reconciliation"
	s.reconcile(account, procOutcome, procMessage, logoutOutcome)
}

func (s *Service) stageLogin(scraper Scraper, cred Credentials) bool {
	kind := progress.SourceScrape
	id := cred.AccountNumber

	s.ledger.Transition(kind, id, progress.StatusLoginStarted,
		fmt.Sprintf("Logging in to %s", cred.InstitutionName))

	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()

	ok, err := scraper.Login(ctx, cred)
	if err != nil {
		s.ledger.Transition(kind, id, progress.StatusLoginFailed, fmt.Sprintf("login failed: %v", err))
		return false
	}
	if !ok {
		s.ledger.Transition(kind, id, progress.StatusLoginFailed, "login failed: credentials rejected")
		return false
	}

	s.ledger.Transition(kind, id, progress.StatusLoginSuccess, "Login successful")
	return true
}

func (s *Service) stageScrape(scraper Scraper, account *models.Account) (stageOutcome, string) {
	kind := progress.SourceScrape
	id := account.Number

	s.ledger.Transition(kind, id, progress.StatusProcessingStarted, "Starting transaction scrape")

	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()

	var err error
	switch account.Type {
	case models.AccountTypeSavings:
		s.ledger.Transition(kind, id, progress.StatusBankScrapeStarted, "Scraping bank transactions")
		err = scraper.ScrapeBankTransactions(ctx, account)
	case models.AccountTypeCreditCard:
		s.ledger.Transition(kind, id, progress.StatusCardScrapeStarted, "Scraping credit card transactions")
		err = scraper.ScrapeCreditCardTransactions(ctx, account)
	default:
		// Nothing to scrape for this account type; treated as a successful
		// no-op rather than a failure.
		return stageSkipped, fmt.Sprintf("account type %s not scraped; nothing to do", account.Type)
	}

	if err != nil {
		msg := fmt.Sprintf("scrape failed: %v", err)
		s.ledger.Transition(kind, id, progress.StatusProcessingFailed, msg)
		return stageFailed, msg
	}

	s.ledger.Transition(kind, id, progress.StatusProcessingSuccess, "Scrape complete")
	return stageOK, "Scrape complete"
}

func (s *Service) stageLogout(scraper Scraper, id string) stageOutcome {
	kind := progress.SourceScrape

	s.ledger.Transition(kind, id, progress.StatusLogoutStarted, "Logging out")

	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()

	if err := scraper.Logout(ctx); err != nil {
		s.ledger.Transition(kind, id, progress.StatusLogoutFailed, fmt.Sprintf("logout failed: %v", err))
		return stageFailed
	}

	s.ledger.Transition(kind, id, progress.StatusLogoutSuccess, "Logout successful")
	return stageOK
}

// reconcile settles the operation's final state from the explicit stage
// outcomes. Logout failure is terminal on its own; a processing failure is
// re-asserted after the logout recovery step so the operation ends in an
// error state; otherwise the operation completes and the last-successful-sync
// recorder is notified.
func (s *Service) reconcile(account *models.Account, procOutcome stageOutcome, procMessage string, logoutOutcome stageOutcome) {
	kind := progress.SourceScrape
	id := account.Number

	if logoutOutcome == stageFailed {
		return
	}
	if procOutcome == stageFailed {
		s.ledger.Fail(kind, id, procMessage)
		return
	}

	s.ledger.Complete(kind, id, procMessage)
	if err := s.accounts.RecordSyncTime(account.ID, time.Now()); err != nil {
		log.Printf("WARNING: failed to record sync time for %s: %v", id, err)
	}
}

package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukuzz/myfi-sub000/internal/models"
	"github.com/mukuzz/myfi-sub000/internal/progress"
	"github.com/mukuzz/myfi-sub000/internal/store"
)

type fakeScraper struct {
	loginOK   bool
	loginErr  error
	scrapeErr error
	logoutErr error
	panicMsg  string

	scrapeDelay time.Duration
	active      *int32 // shared concurrency counter, usually per institution
	maxActive   *int32

	bankCalls   int32
	cardCalls   int32
	logoutCalls int32
	closeCalls  int32
}

func (f *fakeScraper) Login(ctx context.Context, creds Credentials) (bool, error) {
	return f.loginOK, f.loginErr
}

func (f *fakeScraper) Logout(ctx context.Context) error {
	atomic.AddInt32(&f.logoutCalls, 1)
	return f.logoutErr
}

func (f *fakeScraper) scrape() error {
	if f.active != nil {
		cur := atomic.AddInt32(f.active, 1)
		for {
			max := atomic.LoadInt32(f.maxActive)
			if cur <= max || atomic.CompareAndSwapInt32(f.maxActive, max, cur) {
				break
			}
		}
		defer atomic.AddInt32(f.active, -1)
	}
	if f.scrapeDelay > 0 {
		time.Sleep(f.scrapeDelay)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.scrapeErr
}

func (f *fakeScraper) ScrapeBankTransactions(ctx context.Context, account *models.Account) error {
	atomic.AddInt32(&f.bankCalls, 1)
	return f.scrape()
}

func (f *fakeScraper) ScrapeCreditCardTransactions(ctx context.Context, account *models.Account) error {
	atomic.AddInt32(&f.cardCalls, 1)
	return f.scrape()
}

func (f *fakeScraper) SupportedAccountTypes() []models.AccountType {
	return []models.AccountType{models.AccountTypeSavings, models.AccountTypeCreditCard}
}

func (f *fakeScraper) Close() {
	atomic.AddInt32(&f.closeCalls, 1)
}

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	synced   []string
}

func newFakeAccounts(accounts ...*models.Account) *fakeAccounts {
	m := make(map[string]*models.Account)
	for _, acc := range accounts {
		m[acc.Number] = acc
	}
	return &fakeAccounts{accounts: m}
}

func (f *fakeAccounts) AccountByNumber(number string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acc, ok := f.accounts[number]; ok {
		return acc, nil
	}
	return nil, fmt.Errorf("%w: %s", store.ErrAccountNotFound, number)
}

func (f *fakeAccounts) RecordSyncTime(accountID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, accountID)
	return nil
}

func savingsAccount(number, institution string) *models.Account {
	return &models.Account{
		ID:              "id-" + number,
		Name:            institution + " " + number,
		InstitutionName: institution,
		Number:          number,
		Type:            models.AccountTypeSavings,
	}
}

func newTestService(accounts AccountStore, reg *Registry) (*Service, *progress.Ledger) {
	ledger := progress.NewLedger()
	svc := NewService(ledger, reg, accounts, Config{Workers: 8, CallTimeout: 5 * time.Second})
	return svc, ledger
}

func TestSubmitHappyPath(t *testing.T) {
	acc := savingsAccount("1111", "HDFC Bank")
	accounts := newFakeAccounts(acc)

	scraper := &fakeScraper{loginOK: true}
	reg := NewRegistry()
	reg.Register("HDFC Bank", func() (Scraper, error) { return scraper, nil })

	svc, ledger := newTestService(accounts, reg)
	svc.Submit([]Credentials{{InstitutionName: "HDFC Bank", AccountNumber: "1111", Username: "u", Password: "p"}})
	svc.Wait()

	op, ok := ledger.Snapshot(progress.SourceScrape, "1111")
	require.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, op.Status)

	statuses := historyStatuses(op)
	assert.Equal(t, []progress.Status{
		progress.StatusPending,
		progress.StatusAcquiringPermit,
		progress.StatusLoginStarted,
		progress.StatusLoginSuccess,
		progress.StatusProcessingStarted,
		progress.StatusBankScrapeStarted,
		progress.StatusProcessingSuccess,
		progress.StatusLogoutStarted,
		progress.StatusLogoutSuccess,
		progress.StatusCompleted,
	}, statuses)

	assert.EqualValues(t, 1, scraper.bankCalls)
	assert.EqualValues(t, 1, scraper.closeCalls, "session closed exactly once")
	assert.Equal(t, []string{"id-1111"}, accounts.synced, "last-sync recorder notified")
	assert.False(t, ledger.Aggregate().AnyInProgress)
}

func TestAccountNotFound(t *testing.T) {
	accounts := newFakeAccounts()
	reg := NewRegistry()
	factoryCalls := 0
	reg.Register("HDFC Bank", func() (Scraper, error) { factoryCalls++; return &fakeScraper{loginOK: true}, nil })

	svc, ledger := newTestService(accounts, reg)
	svc.Submit([]Credentials{{InstitutionName: "HDFC Bank", AccountNumber: "9999"}})
	svc.Wait()

	op, ok := ledger.Snapshot(progress.SourceScrape, "9999")
	require.True(t, ok)
	assert.Equal(t, progress.StatusError, op.Status)
	assert.Contains(t, op.ErrorMessage, "not found")

	for _, entry := range op.History {
		assert.NotEqual(t, progress.StatusAcquiringPermit, entry.Status, "no permit taken for input errors")
	}
	assert.Zero(t, factoryCalls, "no scraper session opened")
}

func TestUnsupportedInstitution(t *testing.T) {
	acc := savingsAccount("1111", "Mystery Bank")
	svc, ledger := newTestService(newFakeAccounts(acc), NewRegistry())

	svc.Submit([]Credentials{{InstitutionName: "Mystery Bank", AccountNumber: "1111"}})
	svc.Wait()

	op, _ := ledger.Snapshot(progress.SourceScrape, "1111")
	assert.Equal(t, progress.StatusError, op.Status)
	assert.Contains(t, op.ErrorMessage, "unsupported institution")
}

func TestStageFailures(t *testing.T) {
	t.Run("Login failure is terminal and still closes the session", func(t *testing.T) {
		acc := savingsAccount("1111", "HDFC Bank")
		scraper := &fakeScraper{loginOK: false}
		reg := NewRegistry()
		reg.Register("HDFC Bank", func() (Scraper, error) { return scraper, nil })

		svc, ledger := newTestService(newFakeAccounts(acc), reg)
		svc.Submit([]Credentials{{InstitutionName: "HDFC Bank", AccountNumber: "1111"}})
		svc.Wait()

		op, _ := ledger.Snapshot(progress.SourceScrape, "1111")
		assert.Equal(t, progress.StatusLoginFailed, op.Status)
		assert.NotEmpty(t, op.ErrorMessage)
		assert.EqualValues(t, 1, scraper.closeCalls)
		assert.Zero(t, scraper.logoutCalls, "no logout without a successful login")
		assert.False(t, ledger.Aggregate().AnyInProgress)
	})

	t.Run("Scrape failure still logs out and ends in an error state", func(t *testing.T) {
		acc := savingsAccount("1111", "HDFC Bank")
		scraper := &fakeScraper{loginOK: true, scrapeErr: errors.New("selector vanished")}
		reg := NewRegistry()
		reg.Register("HDFC Bank", func() (Scraper, error) { return scraper, nil })

		svc, ledger := newTestService(newFakeAccounts(acc), reg)
		svc.Submit([]Credentials{{InstitutionName: "HDFC Bank", AccountNumber: "1111"}})
		svc.Wait()

		op, _ := ledger.Snapshot(progress.SourceScrape, "1111")
		assert.Equal(t, progress.StatusError, op.Status)
		assert.Contains(t, op.ErrorMessage, "selector vanished")
		assert.EqualValues(t, 1, scraper.logoutCalls, "cleanup still runs")
		assert.EqualValues(t, 1, scraper.closeCalls)
		assert.True(t, op.Status.IsTerminal())
	})

	t.Run("Logout failure is terminal", func(t *testing.T) {
		acc := savingsAccount("1111", "HDFC Bank")
		scraper := &fakeScraper{loginOK: true, logoutErr: errors.New("session expired")}
		reg := NewRegistry()
		reg.Register("HDFC Bank", func() (Scraper, error) { return scraper, nil })

		svc, ledger := newTestService(newFakeAccounts(acc), reg)
		svc.Submit([]Credentials{{InstitutionName: "HDFC Bank", AccountNumber: "1111"}})
		svc.Wait()

		op, _ := ledger.Snapshot(progress.SourceScrape, "1111")
		assert.Equal(t, progress.StatusLogoutFailed, op.Status)
		assert.EqualValues(t, 1, scraper.closeCalls)
		assert.False(t, ledger.Aggregate().AnyInProgress)
	})

	t.Run("Panic in a stage force-fails the operation and releases resources", func(t *testing.T) {
		acc := savingsAccount("1111", "HDFC Bank")
		scraper := &fakeScraper{loginOK: true, panicMsg: "nil page handle"}
		reg := NewRegistry()
		reg.Register("HDFC Bank", func() (Scraper, error) { return scraper, nil })

		svc, ledger := newTestService(newFakeAccounts(acc), reg)
		svc.Submit([]Credentials{{InstitutionName: "HDFC Bank", AccountNumber: "1111"}})
		svc.Wait()

		op, _ := ledger.Snapshot(progress.SourceScrape, "1111")
		assert.Equal(t, progress.StatusError, op.Status)
		assert.Contains(t, op.ErrorMessage, "processing")
		assert.EqualValues(t, 1, scraper.closeCalls)

		// permit was released: a follow-up task for the same institution runs
		svc.Submit([]Credentials{{InstitutionName: "HDFC Bank", AccountNumber: "1111"}})
		svc.Wait()
	})
}

func TestUnsupportedAccountTypeIsNoOpSuccess(t *testing.T) {
	acc := savingsAccount("1111", "HDFC Bank")
	acc.Type = models.AccountTypeWallet
	scraper := &fakeScraper{loginOK: true}
	reg := NewRegistry()
	reg.Register("HDFC Bank", func() (Scraper, error) { return scraper, nil })

	svc, ledger := newTestService(newFakeAccounts(acc), reg)
	svc.Submit([]Credentials{{InstitutionName: "HDFC Bank", AccountNumber: "1111"}})
	svc.Wait()

	op, _ := ledger.Snapshot(progress.SourceScrape, "1111")
	assert.Equal(t, progress.StatusCompleted, op.Status)
	assert.Zero(t, scraper.bankCalls)
	assert.Zero(t, scraper.cardCalls)
	assert.EqualValues(t, 1, scraper.logoutCalls)
}

func TestPermitExclusivity(t *testing.T) {
	t.Run("Same institution scrapes sequentially", func(t *testing.T) {
		accA := savingsAccount("1111", "HDFC Bank")
		accB := savingsAccount("2222", "HDFC Bank")

		var active, maxActive int32
		reg := NewRegistry()
		reg.Register("HDFC Bank", func() (Scraper, error) {
			return &fakeScraper{loginOK: true, scrapeDelay: 30 * time.Millisecond, active: &active, maxActive: &maxActive}, nil
		})

		svc, ledger := newTestService(newFakeAccounts(accA, accB), reg)
		svc.Submit([]Credentials{
			{InstitutionName: "HDFC Bank", AccountNumber: "1111"},
			{InstitutionName: "HDFC Bank", AccountNumber: "2222"},
		})
		svc.Wait()

		assert.EqualValues(t, 1, atomic.LoadInt32(&maxActive), "sessions for one institution must never overlap")
		for _, id := range []string{"1111", "2222"} {
			op, _ := ledger.Snapshot(progress.SourceScrape, id)
			assert.Equal(t, progress.StatusCompleted, op.Status)
		}
	})

	t.Run("Different institutions scrape concurrently", func(t *testing.T) {
		accA := savingsAccount("1111", "HDFC Bank")
		accB := savingsAccount("2222", "ICICI Bank")

		var active, maxActive int32
		factory := func() (Scraper, error) {
			return &fakeScraper{loginOK: true, scrapeDelay: 50 * time.Millisecond, active: &active, maxActive: &maxActive}, nil
		}
		reg := NewRegistry()
		reg.Register("HDFC Bank", factory)
		reg.Register("ICICI Bank", factory)

		svc, ledger := newTestService(newFakeAccounts(accA, accB), reg)
		svc.Submit([]Credentials{
			{InstitutionName: "HDFC Bank", AccountNumber: "1111"},
			{InstitutionName: "ICICI Bank", AccountNumber: "2222"},
		})
		svc.Wait()

		assert.EqualValues(t, 2, atomic.LoadInt32(&maxActive), "distinct institutions should overlap")
		assert.False(t, ledger.Aggregate().AnyInProgress)
	})
}

func historyStatuses(op progress.Operation) []progress.Status {
	statuses := make([]progress.Status, len(op.History))
	for i, entry := range op.History {
		statuses[i] = entry.Status
	}
	return statuses
}

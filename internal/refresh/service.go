// Package refresh ties the two acquisition paths together: one trigger fans
// out into a scrape batch and an inbox pass, and one aggregated view reports
// progress for both.
package refresh

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/mukuzz/myfi-sub000/internal/progress"
	"github.com/mukuzz/myfi-sub000/internal/scrape"
	"github.com/mukuzz/myfi-sub000/internal/store"
)

// ScrapeRunner accepts a batch of scrape tasks and blocks until they drain.
type ScrapeRunner interface {
	Submit(creds []scrape.Credentials)
	Wait()
}

// InboxRunner runs one inbox ingestion pass.
type InboxRunner interface {
	Sync(ctx context.Context)
}

// CredentialSource loads the stored scrape credentials for a batch.
type CredentialSource interface {
	LoadCredentials() ([]store.DecryptedCredential, error)
}

// Service owns the refresh trigger. A trigger returns immediately; the batch
// runs in the background and lands its outcome in the progress ledger. At
// most one batch runs at a time.
type Service struct {
	ledger  *progress.Ledger
	creds   CredentialSource
	scrapes ScrapeRunner
	inbox   InboxRunner

	mu      sync.Mutex
	running bool

	cron *cron.Cron
}

// NewService wires the refresh coordinator.
func NewService(ledger *progress.Ledger, creds CredentialSource, scrapes ScrapeRunner, inbox InboxRunner) *Service {
	return &Service{
		ledger:  ledger,
		creds:   creds,
		scrapes: scrapes,
		inbox:   inbox,
	}
}

// TriggerRefresh starts a refresh batch and returns without waiting for it.
// A second trigger while a batch is in flight is ignored.
func (s *Service) TriggerRefresh() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("Refresh already in progress, ignoring trigger")
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.run()
}

func (s *Service) run() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: refresh batch panicked: %v", r)
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Println("Starting refresh batch")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		creds, err := s.creds.LoadCredentials()
		if err != nil {
			log.Printf("WARNING: skipping scrape batch, could not load credentials: %v", err)
			return
		}
		if len(creds) == 0 {
			log.Println("No scrape credentials stored, skipping scrape batch")
			return
		}
		batch := make([]scrape.Credentials, len(creds))
		for i, c := range creds {
			batch[i] = scrape.Credentials{
				InstitutionName: c.InstitutionName,
				AccountNumber:   c.AccountNumber,
				Username:        c.Username,
				Password:        c.Password,
			}
		}
		s.scrapes.Submit(batch)
		s.scrapes.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.inbox.Sync(context.Background())
	}()

	wg.Wait()
	log.Println("Refresh batch finished")
}

// Status reports the current state of every tracked operation.
func (s *Service) Status() progress.AggregatedStatus {
	return s.ledger.Aggregate()
}

// StartSchedule begins triggering refreshes on the given cron expression
// (standard 5-field form). An empty spec disables scheduling.
func (s *Service) StartSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, s.TriggerRefresh); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	log.Printf("Scheduled automatic refresh: %s", spec)
	return nil
}

// StopSchedule stops the cron scheduler and waits for a running trigger
// callback to return.
func (s *Service) StopSchedule() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}

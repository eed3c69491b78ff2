package scrape

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnsupportedInstitution is returned when no scraper is registered for an
// institution name.
var ErrUnsupportedInstitution = errors.New("unsupported institution")

// ScraperFactory opens a fresh scraper session for one task.
type ScraperFactory func() (Scraper, error)

// Registry maps institution names to scraper factories. Institutions are
// registered at startup; resolution of an unknown name is a typed error, not
// a nil scraper.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ScraperFactory
}

// NewRegistry creates an empty scraper registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ScraperFactory)}
}

// Register adds a factory for an institution name (case-insensitive).
func (r *Registry) Register(institution string, factory ScraperFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(institution)] = factory
}

// New opens a scraper session for the institution.
func (r *Registry) New(institution string) (Scraper, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(institution)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInstitution, institution)
	}
	return factory()
}

// Institutions lists the registered institution names.
func (r *Registry) Institutions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

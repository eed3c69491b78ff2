package scrape

import "sync"

// institutionLocks hands out one session permit per institution name. Two
// accounts at the same institution never scrape concurrently; accounts at
// different institutions run fully in parallel. Entries are created lazily
// on first use and kept for the process lifetime, so a permit can never be
// removed while held.
type institutionLocks struct {
	mu      sync.Mutex
	permits map[string]chan struct{}
}

func newInstitutionLocks() *institutionLocks {
	return &institutionLocks{permits: make(map[string]chan struct{})}
}

// acquire blocks until the institution's permit is free and returns a
// release function that is safe to call more than once; only the first call
// releases the permit.
func (l *institutionLocks) acquire(institution string) func() {
	l.mu.Lock()
	permit, ok := l.permits[institution]
	if !ok {
		permit = make(chan struct{}, 1)
		l.permits[institution] = permit
	}
	l.mu.Unlock()

	permit <- struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() { <-permit })
	}
}

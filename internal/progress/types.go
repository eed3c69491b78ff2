package progress

import "time"

// SourceKind separates the independent families of tracked operations.
// Clearing one kind at a batch boundary leaves the other kind's in-flight
// operations untouched.
type SourceKind string

const (
	SourceScrape SourceKind = "scrape"
	SourceInbox  SourceKind = "inbox"
)

// Status is one state of the shared ingestion state machine.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusAcquiringPermit Status = "ACQUIRING_PERMIT"
	StatusLoginStarted    Status = "LOGIN_STARTED"
	StatusLoginSuccess    Status = "LOGIN_SUCCESS"
	StatusLoginFailed     Status = "LOGIN_FAILED"

	StatusProcessingStarted    Status = "PROCESSING_STARTED"
	StatusBankScrapeStarted    Status = "BANK_SCRAPE_STARTED"
	StatusCardScrapeStarted    Status = "CARD_SCRAPE_STARTED"
	StatusProcessingInProgress Status = "PROCESSING_IN_PROGRESS"
	StatusProcessingSuccess    Status = "PROCESSING_SUCCESS"
	StatusProcessingFailed     Status = "PROCESSING_FAILED"

	StatusLogoutStarted Status = "LOGOUT_STARTED"
	StatusLogoutSuccess Status = "LOGOUT_SUCCESS"
	StatusLogoutFailed  Status = "LOGOUT_FAILED"

	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// IsTerminal reports whether no further transition is expected for an
// operation in this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusLoginFailed, StatusProcessingFailed, StatusLogoutFailed:
		return true
	}
	return false
}

// IsError reports whether this status carries an error message
// (generic ERROR or any stage-specific *_FAILED state).
func (s Status) IsError() bool {
	switch s {
	case StatusError, StatusLoginFailed, StatusProcessingFailed, StatusLogoutFailed:
		return true
	}
	return false
}

// HistoryEntry is one recorded transition of an operation.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Operation is a point-in-time snapshot of one tracked unit of ingestion
// work. History is append-only: every transition appends exactly one entry
// and entries are never mutated or truncated.
type Operation struct {
	Kind           SourceKind     `json:"kind"`
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Status         Status         `json:"status"`
	StatusMessage  string         `json:"status_message"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	LastUpdateTime time.Time      `json:"last_update_time"`
	ItemsProcessed int            `json:"items_processed"`
	ItemsTotal     int            `json:"items_total"`
	History        []HistoryEntry `json:"history"`
}

// AggregatedStatus is the read-only view handed to pollers.
type AggregatedStatus struct {
	Operations    map[string]Operation `json:"operations"`
	AnyInProgress bool                 `json:"any_in_progress"`
}

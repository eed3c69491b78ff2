package progress

import (
	"fmt"
	"log"
	"sync"
	"time"
)

type ledgerKey struct {
	kind SourceKind
	id   string
}

// Ledger is the process-wide store of per-operation progress records.
// All mutations on a given key are serialized behind the ledger mutex;
// reads return deep copies so callers never observe a torn write.
type Ledger struct {
	mu  sync.RWMutex
	ops map[ledgerKey]*Operation
}

// NewLedger creates an empty progress ledger.
func NewLedger() *Ledger {
	return &Ledger{
		ops: make(map[ledgerKey]*Operation),
	}
}

// Initialize creates a fresh record in PENDING. It is a no-op if the key is
// already tracked; callers are expected to Clear the kind before starting a
// new batch.
func (l *Ledger) Initialize(kind SourceKind, id, name string, totalHint int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{kind, id}
	if _, exists := l.ops[key]; exists {
		return
	}

	now := time.Now()
	l.ops[key] = &Operation{
		Kind:           kind,
		ID:             id,
		Name:           name,
		Status:         StatusPending,
		StatusMessage:  "Pending",
		StartTime:      now,
		LastUpdateTime: now,
		ItemsTotal:     totalHint,
		History: []HistoryEntry{
			{Status: StatusPending, Timestamp: now, Message: "Pending"},
		},
	}
}

// Transition atomically updates status, message and last-update time, and
// appends one history entry. Unknown keys are logged and ignored: a worker
// may race a concurrent Clear and that must not crash the task.
func (l *Ledger) Transition(kind SourceKind, id string, status Status, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitionLocked(kind, id, status, message, -1, -1)
}

// Progress is Transition plus an items-processed update (and items-total
// when totalHint >= 0).
func (l *Ledger) Progress(kind SourceKind, id string, status Status, message string, processed, totalHint int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitionLocked(kind, id, status, message, processed, totalHint)
}

// Complete transitions the operation to COMPLETED.
func (l *Ledger) Complete(kind SourceKind, id, message string) {
	l.Transition(kind, id, StatusCompleted, message)
}

// Fail transitions the operation to the generic ERROR status.
func (l *Ledger) Fail(kind SourceKind, id, errorMessage string) {
	l.Transition(kind, id, StatusError, errorMessage)
}

func (l *Ledger) transitionLocked(kind SourceKind, id string, status Status, message string, processed, totalHint int) {
	op, exists := l.ops[ledgerKey{kind, id}]
	if !exists {
		log.Printf("WARNING: progress transition for unknown operation %s/%s -> %s", kind, id, status)
		return
	}

	now := time.Now()
	op.Status = status
	op.StatusMessage = message
	op.LastUpdateTime = now
	if processed >= 0 {
		op.ItemsProcessed = processed
	}
	if totalHint >= 0 {
		op.ItemsTotal = totalHint
	}
	op.History = append(op.History, HistoryEntry{Status: status, Timestamp: now, Message: message})

	log.Printf("[%s/%s] %s: %s", kind, id, status, message)
}

// Snapshot returns a point-in-time copy of one record.
func (l *Ledger) Snapshot(kind SourceKind, id string) (Operation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	op, exists := l.ops[ledgerKey{kind, id}]
	if !exists {
		return Operation{}, false
	}
	return copyOperation(op), true
}

// Aggregate builds the read-only view across all kinds. AnyInProgress is
// true iff at least one tracked operation is in a non-terminal status.
func (l *Ledger) Aggregate() AggregatedStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	agg := AggregatedStatus{Operations: make(map[string]Operation, len(l.ops))}
	for key, op := range l.ops {
		agg.Operations[fmt.Sprintf("%s:%s", key.kind, key.id)] = copyOperation(op)
		if !op.Status.IsTerminal() {
			agg.AnyInProgress = true
		}
	}
	return agg
}

// Clear drops every record of one source kind (used before starting a new
// batch for that kind).
func (l *Ledger) Clear(kind SourceKind) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key := range l.ops {
		if key.kind == kind {
			delete(l.ops, key)
		}
	}
}

// ClearAll drops every record of every kind.
func (l *Ledger) ClearAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = make(map[ledgerKey]*Operation)
}

// copyOperation deep-copies a record and derives the error message: it is
// non-empty iff the status is an error-class state.
func copyOperation(op *Operation) Operation {
	out := *op
	out.History = make([]HistoryEntry, len(op.History))
	copy(out.History, op.History)
	if op.Status.IsError() {
		out.ErrorMessage = op.StatusMessage
	} else {
		out.ErrorMessage = ""
	}
	return out
}

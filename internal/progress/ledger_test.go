package progress

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerLifecycle(t *testing.T) {
	t.Run("Should create record in PENDING with non-empty history", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "1234", "HDFC Savings", 0)

		op, ok := l.Snapshot(SourceScrape, "1234")
		require.True(t, ok)
		assert.Equal(t, StatusPending, op.Status)
		assert.Equal(t, "HDFC Savings", op.Name)
		require.Len(t, op.History, 1)
		assert.Equal(t, StatusPending, op.History[0].Status)
		assert.False(t, op.StartTime.IsZero())
	})

	t.Run("Should ignore duplicate Initialize for same key", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "1234", "First", 0)
		l.Transition(SourceScrape, "1234", StatusLoginStarted, "logging in")
		l.Initialize(SourceScrape, "1234", "Second", 0)

		op, ok := l.Snapshot(SourceScrape, "1234")
		require.True(t, ok)
		assert.Equal(t, "First", op.Name)
		assert.Equal(t, StatusLoginStarted, op.Status)
	})

	t.Run("Should append exactly one history entry per transition", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "1234", "acct", 0)
		l.Transition(SourceScrape, "1234", StatusLoginStarted, "logging in")
		l.Transition(SourceScrape, "1234", StatusLoginSuccess, "logged in")
		l.Complete(SourceScrape, "1234", "done")

		op, _ := l.Snapshot(SourceScrape, "1234")
		require.Len(t, op.History, 4)
		assert.Equal(t, StatusPending, op.History[0].Status)
		assert.Equal(t, StatusLoginStarted, op.History[1].Status)
		assert.Equal(t, StatusLoginSuccess, op.History[2].Status)
		assert.Equal(t, StatusCompleted, op.History[3].Status)
	})

	t.Run("Should not crash on transition for unknown key", func(t *testing.T) {
		l := NewLedger()
		l.Transition(SourceScrape, "ghost", StatusLoginStarted, "racing a clear")
		_, ok := l.Snapshot(SourceScrape, "ghost")
		assert.False(t, ok)
	})

	t.Run("Should track processed and total counts", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceInbox, "acct-1", "inbox", 0)
		l.Progress(SourceInbox, "acct-1", StatusProcessingInProgress, "3 of 10", 3, 10)

		op, _ := l.Snapshot(SourceInbox, "acct-1")
		assert.Equal(t, 3, op.ItemsProcessed)
		assert.Equal(t, 10, op.ItemsTotal)
		assert.LessOrEqual(t, op.ItemsProcessed, op.ItemsTotal)
	})
}

func TestLedgerErrorMessage(t *testing.T) {
	t.Run("Should expose error message only for error-class statuses", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "1234", "acct", 0)

		l.Transition(SourceScrape, "1234", StatusLoginFailed, "bad password")
		op, _ := l.Snapshot(SourceScrape, "1234")
		assert.Equal(t, "bad password", op.ErrorMessage)

		l2 := NewLedger()
		l2.Initialize(SourceScrape, "5678", "acct", 0)
		l2.Complete(SourceScrape, "5678", "all good")
		op2, _ := l2.Snapshot(SourceScrape, "5678")
		assert.Empty(t, op2.ErrorMessage)
	})

	t.Run("Should expose Fail message via ERROR status", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "1234", "acct", 0)
		l.Fail(SourceScrape, "1234", "account not found: 1234")

		op, _ := l.Snapshot(SourceScrape, "1234")
		assert.Equal(t, StatusError, op.Status)
		assert.Equal(t, "account not found: 1234", op.ErrorMessage)
	})
}

func TestLedgerAggregate(t *testing.T) {
	t.Run("Should report AnyInProgress false iff all operations terminal", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "a", "a", 0)
		l.Initialize(SourceScrape, "b", "b", 0)

		agg := l.Aggregate()
		assert.True(t, agg.AnyInProgress)

		l.Complete(SourceScrape, "a", "done")
		agg = l.Aggregate()
		assert.True(t, agg.AnyInProgress, "b is still pending")

		l.Transition(SourceScrape, "b", StatusLoginFailed, "nope")
		agg = l.Aggregate()
		assert.False(t, agg.AnyInProgress, "LOGIN_FAILED is terminal")
	})

	t.Run("Should treat every terminal status as not in progress", func(t *testing.T) {
		terminal := []Status{StatusCompleted, StatusError, StatusLoginFailed, StatusProcessingFailed, StatusLogoutFailed}
		for i, st := range terminal {
			l := NewLedger()
			id := fmt.Sprintf("op-%d", i)
			l.Initialize(SourceScrape, id, id, 0)
			l.Transition(SourceScrape, id, st, "end")
			assert.False(t, l.Aggregate().AnyInProgress, "status %s should be terminal", st)
		}
	})

	t.Run("Should keep kinds independent across Clear", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "s1", "scrape", 0)
		l.Initialize(SourceInbox, "m1", "inbox", 0)

		l.Clear(SourceScrape)

		_, ok := l.Snapshot(SourceScrape, "s1")
		assert.False(t, ok)
		_, ok = l.Snapshot(SourceInbox, "m1")
		assert.True(t, ok)
	})

	t.Run("Should drop every kind on ClearAll", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "s1", "scrape", 0)
		l.Initialize(SourceInbox, "m1", "inbox", 0)

		l.ClearAll()

		assert.Empty(t, l.Aggregate().Operations)
	})

	t.Run("Should not leak internal history slices to readers", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "1234", "acct", 0)

		op, _ := l.Snapshot(SourceScrape, "1234")
		op.History[0].Message = "mutated by reader"

		fresh, _ := l.Snapshot(SourceScrape, "1234")
		assert.Equal(t, "Pending", fresh.History[0].Message)
	})
}

func TestLedgerConcurrency(t *testing.T) {
	t.Run("Should serialize transitions on the same key", func(t *testing.T) {
		l := NewLedger()
		l.Initialize(SourceScrape, "1234", "acct", 0)

		const writers = 8
		const perWriter = 50

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					l.Transition(SourceScrape, "1234", StatusProcessingInProgress, fmt.Sprintf("w%d-%d", w, i))
				}
			}(w)
		}
		wg.Wait()

		op, _ := l.Snapshot(SourceScrape, "1234")
		// initial PENDING entry plus one per transition, none lost
		assert.Len(t, op.History, 1+writers*perWriter)
	})

	t.Run("Should tolerate concurrent reads and clears", func(t *testing.T) {
		l := NewLedger()
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					id := fmt.Sprintf("op-%d-%d", w, i)
					l.Initialize(SourceScrape, id, id, 0)
					l.Transition(SourceScrape, id, StatusLoginStarted, "go")
					l.Aggregate()
					if i%10 == 0 {
						l.Clear(SourceScrape)
					}
				}
			}(w)
		}
		wg.Wait()
	})
}

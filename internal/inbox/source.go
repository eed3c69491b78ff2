// Package inbox ingests transactions from statement and alert emails: it
// enumerates unseen messages per account, matches and extracts them, and
// records processed messages so replays never double-count.
package inbox

import (
	"context"
	"time"
)

// Message is one fetched mail message, reduced to what ingestion needs.
type Message struct {
	ID           string
	From         string
	Subject      string
	Body         string // extracted plain text
	InternalDate time.Time
}

// MailSource is the boundary to the inbox API. Implementations own
// credential/token handling and pagination.
type MailSource interface {
	// Authorize ensures the source is authenticated, refreshing tokens as
	// needed.
	Authorize(ctx context.Context) error

	// ListMessages returns the ids matching a search query in the source's
	// native newest-first order.
	ListMessages(ctx context.Context, query string) ([]string, error)

	// FullMessage fetches one message's content.
	FullMessage(ctx context.Context, id string) (*Message, error)
}

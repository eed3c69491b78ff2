package inbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/mukuzz/myfi-sub000/internal/models"
)

// buildQuery assembles the mail search expression for one account: scoped to
// the account's known sender addresses and bounded below by the cutoff.
func buildQuery(senders []string, cutoff time.Time) string {
	var parts []string
	if len(senders) > 0 {
		parts = append(parts, fmt.Sprintf("from:(%s)", strings.Join(senders, " OR ")))
	}
	if !cutoff.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", cutoff.Unix()))
	}
	return strings.Join(parts, " ")
}

// queryCutoff picks the lower time bound for an account's inbox search:
// one second before the latest previously-seen message (tolerating clock and
// timezone skew at the source), or, when the account has never seen a
// message, two statement cycles back from the account's statement day.
// Accounts with no known statement day fall back to 60 days.
func queryCutoff(acc *models.Account, latestSeen time.Time, hasSeen bool, now time.Time) time.Time {
	if hasSeen {
		return latestSeen.Add(-time.Second)
	}

	if acc.StatementDay <= 0 || acc.StatementDay > 28 {
		return now.AddDate(0, 0, -60)
	}

	anchor := time.Date(now.Year(), now.Month(), acc.StatementDay, 0, 0, 0, 0, now.Location())
	if anchor.After(now) {
		anchor = anchor.AddDate(0, -1, 0)
	}
	return anchor.AddDate(0, -2, 0)
}

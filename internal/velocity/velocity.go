// Package velocity computes trailing-window transaction aggregates.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/ganga0312/sentinelstream/internal/domain"
)

// Aggregator computes velocity facts for an account from the history store.
// Every call scans the store fresh; there are no incremental counters, so
// facts are never stale beyond what was committed when the scan ran
// (read-committed-at-start). The linear scan per evaluation is a documented
// scaling limit for very hot accounts.
type Aggregator struct {
	store domain.HistoryStore
}

// New creates a new velocity aggregator.
func New(store domain.HistoryStore) *Aggregator {
	return &Aggregator{store: store}
}

// Compute returns count and cumulative amount for the account within the
// trailing window (asOf-window, asOf]. Records matching excludeTxID are
// skipped so that a transaction never counts toward its own evaluation,
// including retries where it is already persisted. No history is the
// zero-value case, not an error.
func (a *Aggregator) Compute(ctx context.Context, accountID, excludeTxID string, asOf time.Time, window time.Duration) (*domain.VelocityFacts, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID is required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	facts := &domain.VelocityFacts{
		AccountID: accountID,
		Window:    window,
		WindowEnd: asOf,
	}

	since := asOf.Add(-window)
	records, err := a.store.Query(ctx, accountID, since)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "velocity query", Err: err}
	}

	for _, rec := range records {
		tx := rec.Transaction
		if tx.ID == excludeTxID {
			continue
		}
		// The store already filters timestamp > since; drop anything a
		// concurrent writer committed past asOf.
		if tx.Timestamp.After(asOf) {
			continue
		}
		facts.Count++
		facts.CumulativeAmount += tx.Amount
	}

	return facts, nil
}

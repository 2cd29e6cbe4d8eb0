package velocity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ganga0312/sentinelstream/internal/domain"
)

// fakeStore serves canned records and mimics the store's strict
// timestamp > since filter.
type fakeStore struct {
	records []domain.Record
	err     error
	queries int
}

func (f *fakeStore) Append(ctx context.Context, tx *domain.Transaction, outcome *domain.Outcome) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, accountID string, since time.Time) ([]domain.Record, error) {
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Record
	for _, rec := range f.records {
		if rec.Transaction.AccountID == accountID && rec.Transaction.Timestamp.After(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) GetOutcome(ctx context.Context, txID string) (*domain.Outcome, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Recent(ctx context.Context, limit int) ([]domain.Record, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func rec(id, account string, amount float64, ts time.Time) domain.Record {
	return domain.Record{
		Transaction: domain.Transaction{
			ID:        id,
			AccountID: account,
			Amount:    amount,
			Timestamp: ts,
		},
	}
}

func TestCompute(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := time.Hour

	t.Run("EmptyHistory", func(t *testing.T) {
		agg := New(&fakeStore{})

		facts, err := agg.Compute(ctx, "acc-1", "tx-new", asOf, window)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if facts.Count != 0 || facts.CumulativeAmount != 0 {
			t.Errorf("expected zero facts, got %+v", facts)
		}
		if facts.AccountID != "acc-1" || facts.Window != window || !facts.WindowEnd.Equal(asOf) {
			t.Errorf("facts metadata wrong: %+v", facts)
		}
	})

	t.Run("CountsAndSums", func(t *testing.T) {
		store := &fakeStore{records: []domain.Record{
			rec("tx-1", "acc-1", 100, asOf.Add(-10*time.Minute)),
			rec("tx-2", "acc-1", 250, asOf.Add(-30*time.Minute)),
			rec("tx-3", "acc-1", 50, asOf.Add(-59*time.Minute)),
		}}
		agg := New(store)

		facts, err := agg.Compute(ctx, "acc-1", "tx-new", asOf, window)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if facts.Count != 3 {
			t.Errorf("expected count 3, got %d", facts.Count)
		}
		if facts.CumulativeAmount != 400 {
			t.Errorf("expected cumulative 400, got %v", facts.CumulativeAmount)
		}
	})

	t.Run("WindowBoundaries", func(t *testing.T) {
		store := &fakeStore{records: []domain.Record{
			// exactly window start: excluded
			rec("tx-at-start", "acc-1", 100, asOf.Add(-window)),
			// inside the window
			rec("tx-just-in", "acc-1", 100, asOf.Add(-window).Add(time.Second)),
			// exactly asOf: included
			rec("tx-at-end", "acc-1", 100, asOf),
			// past asOf: excluded
			rec("tx-future", "acc-1", 100, asOf.Add(time.Second)),
		}}
		agg := New(store)

		facts, err := agg.Compute(ctx, "acc-1", "tx-new", asOf, window)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if facts.Count != 2 {
			t.Errorf("expected count 2 (half-open window), got %d", facts.Count)
		}
	})

	t.Run("ExcludesEvaluatedTransaction", func(t *testing.T) {
		// A retried evaluation finds its own prior append in the store;
		// it must not count toward its own velocity.
		store := &fakeStore{records: []domain.Record{
			rec("tx-self", "acc-1", 5000, asOf.Add(-time.Minute)),
			rec("tx-other", "acc-1", 100, asOf.Add(-time.Minute)),
		}}
		agg := New(store)

		facts, err := agg.Compute(ctx, "acc-1", "tx-self", asOf, window)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}
		if facts.Count != 1 || facts.CumulativeAmount != 100 {
			t.Errorf("expected self-exclusion (count 1, sum 100), got %+v", facts)
		}
	})

	t.Run("RequiresAccountID", func(t *testing.T) {
		agg := New(&fakeStore{})
		if _, err := agg.Compute(ctx, "", "tx-new", asOf, window); err == nil {
			t.Error("expected error for empty accountID")
		}
	})

	t.Run("RequiresPositiveWindow", func(t *testing.T) {
		agg := New(&fakeStore{})
		if _, err := agg.Compute(ctx, "acc-1", "tx-new", asOf, 0); err == nil {
			t.Error("expected error for zero window")
		}
	})

	t.Run("WrapsStoreError", func(t *testing.T) {
		store := &fakeStore{err: errors.New("disk gone")}
		agg := New(store)

		_, err := agg.Compute(ctx, "acc-1", "tx-new", asOf, window)
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) {
			t.Fatalf("expected *domain.PersistenceError, got %T: %v", err, err)
		}
	})
}

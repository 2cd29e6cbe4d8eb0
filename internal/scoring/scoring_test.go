package scoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ganga0312/sentinelstream/internal/config"
	"github.com/ganga0312/sentinelstream/internal/domain"
	"github.com/ganga0312/sentinelstream/internal/rules"
	"github.com/ganga0312/sentinelstream/internal/velocity"
)

// memStore is an in-memory HistoryStore that counts calls, for asserting
// side effects.
type memStore struct {
	mu        sync.Mutex
	records   map[string]domain.Record
	appendErr error

	// queryHook runs at the start of every Query, before the scan.
	queryHook func(ctx context.Context) error

	appends int
	queries int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]domain.Record)}
}

func (m *memStore) Append(ctx context.Context, tx *domain.Transaction, outcome *domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.appendErr != nil {
		return m.appendErr
	}
	if _, exists := m.records[tx.ID]; exists {
		return nil
	}
	m.records[tx.ID] = domain.Record{Transaction: *tx, Outcome: *outcome}
	return nil
}

func (m *memStore) Query(ctx context.Context, accountID string, since time.Time) ([]domain.Record, error) {
	if m.queryHook != nil {
		if err := m.queryHook(ctx); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	var out []domain.Record
	for _, rec := range m.records {
		if rec.Transaction.AccountID == accountID && rec.Transaction.Timestamp.After(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[txID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &rec.Transaction, nil
}

func (m *memStore) GetOutcome(ctx context.Context, txID string) (*domain.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[txID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &rec.Outcome, nil
}

func (m *memStore) Recent(ctx context.Context, limit int) ([]domain.Record, error) {
	return nil, nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }
func (m *memStore) Close() error                   { return nil }

func (m *memStore) calls() (appends, queries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends, m.queries
}

// recordingSink remembers dispatched alerts.
type recordingSink struct {
	mu     sync.Mutex
	alerts []*domain.Alert
}

func (s *recordingSink) Dispatch(ctx context.Context, a *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func testConfigStore(t *testing.T) *config.Store {
	t.Helper()
	snap, err := config.Load([]byte(`{
		"high_risk_locations": ["HighRiskCountry", "Unknown"],
		"risky_merchants": ["GamblingSite", "CryptoExchange"],
		"amount_thresholds": {"large": 10000},
		"velocity_rules": {"window_seconds": 3600, "max_transactions": 10, "max_amount": 20000},
		"risk_weights": {
			"amount_large": 40, "location": 40, "merchant": 30,
			"velocity_count": 25, "velocity_amount": 35
		},
		"review_threshold": 50,
		"reject_threshold": 70,
		"max_score": 100
	}`))
	if err != nil {
		t.Fatalf("failed to build test config: %v", err)
	}
	return config.NewStore(snap)
}

func newOrchestrator(t *testing.T, store *memStore, sink domain.AlertSink) *Orchestrator {
	t.Helper()
	if sink == nil {
		sink = &recordingSink{}
	}
	return New(testConfigStore(t), store, velocity.New(store), rules.NewEngine(), sink, nil, nil, 5*time.Second)
}

func request(id string, amount float64, location, merchant string) *domain.EvaluationRequest {
	return &domain.EvaluationRequest{
		TransactionID: id,
		AccountID:     "acc-test",
		Amount:        &amount,
		Location:      location,
		Merchant:      merchant,
	}
}

func TestEvaluateTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("ApprovesCleanTransaction", func(t *testing.T) {
		store := newMemStore()
		sink := &recordingSink{}
		o := newOrchestrator(t, store, sink)

		outcome, err := o.EvaluateTransaction(ctx, request("tx-1", 25, "US", "CoffeeShop"))
		if err != nil {
			t.Fatalf("EvaluateTransaction failed: %v", err)
		}

		if outcome.Score != 0 {
			t.Errorf("expected score 0, got %v", outcome.Score)
		}
		if outcome.Classification != domain.ClassApprove {
			t.Errorf("expected approve, got %s", outcome.Classification)
		}
		if outcome.RiskLevel != domain.RiskLow {
			t.Errorf("expected LOW, got %s", outcome.RiskLevel)
		}

		if appends, _ := store.calls(); appends != 1 {
			t.Errorf("expected 1 append, got %d", appends)
		}
		if sink.count() != 0 {
			t.Errorf("approve must not alert, got %d alerts", sink.count())
		}
	})

	t.Run("RejectsLargeAmountAtRiskyMerchant", func(t *testing.T) {
		// amount_large (40) + merchant (30) = 70 >= reject threshold 70
		store := newMemStore()
		sink := &recordingSink{}
		o := newOrchestrator(t, store, sink)

		outcome, err := o.EvaluateTransaction(ctx, request("tx-2", 15000, "US", "GamblingSite"))
		if err != nil {
			t.Fatalf("EvaluateTransaction failed: %v", err)
		}

		if outcome.Score != 70 {
			t.Errorf("expected score 70, got %v", outcome.Score)
		}
		if outcome.Classification != domain.ClassReject {
			t.Errorf("expected reject, got %s", outcome.Classification)
		}
		if sink.count() != 1 {
			t.Errorf("reject must alert once, got %d", sink.count())
		}

		// Outcome is persisted alongside the transaction
		persisted, err := store.GetOutcome(ctx, "tx-2")
		if err != nil {
			t.Fatalf("persisted outcome missing: %v", err)
		}
		if persisted.Score != 70 {
			t.Errorf("persisted score mismatch: %v", persisted.Score)
		}
	})

	t.Run("ReviewsVelocityBreach", func(t *testing.T) {
		// 12 prior transactions totaling 48,000 within the window:
		// velocity_count (25) + velocity_amount (35) = 60, review band
		store := newMemStore()
		sink := &recordingSink{}
		o := newOrchestrator(t, store, sink)

		now := time.Now().UTC()
		for i := 0; i < 12; i++ {
			id := fmt.Sprintf("prior-%02d", i)
			store.records[id] = domain.Record{
				Transaction: domain.Transaction{
					ID:        id,
					AccountID: "acc-test",
					Amount:    4000,
					Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
				},
			}
		}

		outcome, err := o.EvaluateTransaction(ctx, request("tx-3", 25, "US", "CoffeeShop"))
		if err != nil {
			t.Fatalf("EvaluateTransaction failed: %v", err)
		}

		if outcome.Score != 60 {
			t.Errorf("expected score 60, got %v", outcome.Score)
		}
		if outcome.Classification != domain.ClassReview {
			t.Errorf("expected review, got %s", outcome.Classification)
		}
		if sink.count() != 1 {
			t.Errorf("review must alert once, got %d", sink.count())
		}
	})

	t.Run("ValidationFailureHasNoSideEffects", func(t *testing.T) {
		store := newMemStore()
		sink := &recordingSink{}
		o := newOrchestrator(t, store, sink)

		req := &domain.EvaluationRequest{
			TransactionID: "tx-4",
			Location:      "US",
			Merchant:      "CoffeeShop",
			// Amount missing
		}

		_, err := o.EvaluateTransaction(ctx, req)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected *domain.ValidationError, got %T: %v", err, err)
		}
		if verr.Field != "amount" {
			t.Errorf("expected field amount, got %s", verr.Field)
		}

		appends, queries := store.calls()
		if appends != 0 || queries != 0 {
			t.Errorf("validation failure must not touch the store: appends=%d queries=%d", appends, queries)
		}
		if sink.count() != 0 {
			t.Errorf("validation failure must not alert")
		}
	})

	t.Run("NegativeAmountRejected", func(t *testing.T) {
		store := newMemStore()
		o := newOrchestrator(t, store, nil)

		_, err := o.EvaluateTransaction(ctx, request("tx-5", -1, "US", "CoffeeShop"))
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected *domain.ValidationError, got %v", err)
		}
	})

	t.Run("PersistenceFailureSurfaces", func(t *testing.T) {
		store := newMemStore()
		store.appendErr = errors.New("disk full")
		sink := &recordingSink{}
		o := newOrchestrator(t, store, sink)

		_, err := o.EvaluateTransaction(ctx, request("tx-6", 25, "US", "CoffeeShop"))
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) {
			t.Fatalf("expected *domain.PersistenceError, got %T: %v", err, err)
		}
		if sink.count() != 0 {
			t.Error("failed persistence must not alert")
		}
	})

	t.Run("RetryIsIdempotent", func(t *testing.T) {
		store := newMemStore()
		o := newOrchestrator(t, store, nil)

		first, err := o.EvaluateTransaction(ctx, request("tx-7", 15000, "US", "GamblingSite"))
		if err != nil {
			t.Fatalf("first evaluation failed: %v", err)
		}

		// Retrying the same transaction must produce the same score: the
		// already-persisted copy is excluded from its own velocity facts
		// and the duplicate append is a no-op.
		second, err := o.EvaluateTransaction(ctx, request("tx-7", 15000, "US", "GamblingSite"))
		if err != nil {
			t.Fatalf("retry failed: %v", err)
		}

		if first.Score != second.Score || first.Classification != second.Classification {
			t.Errorf("retry diverged: first=(%v,%s) second=(%v,%s)",
				first.Score, first.Classification, second.Score, second.Classification)
		}

		records, _ := store.Query(ctx, "acc-test", time.Now().Add(-time.Hour))
		if len(records) != 1 {
			t.Errorf("expected exactly 1 persisted record, got %d", len(records))
		}
	})

	t.Run("ClassificationBoundaries", func(t *testing.T) {
		store := newMemStore()
		o := newOrchestrator(t, store, nil)

		// location only (40) < review threshold 50: approve
		outcome, err := o.EvaluateTransaction(ctx, request("tx-8", 25, "HighRiskCountry", "CoffeeShop"))
		if err != nil {
			t.Fatalf("EvaluateTransaction failed: %v", err)
		}
		if outcome.Classification != domain.ClassApprove {
			t.Errorf("score 40 must approve, got %s", outcome.Classification)
		}

		// amount_large (40) + location (40) = 80 >= reject threshold 70
		outcome, err = o.EvaluateTransaction(ctx, request("tx-9", 10000, "HighRiskCountry", "CoffeeShop"))
		if err != nil {
			t.Fatalf("EvaluateTransaction failed: %v", err)
		}
		if outcome.Classification != domain.ClassReject {
			t.Errorf("score 80 must reject, got %s", outcome.Classification)
		}
	})

	t.Run("TimeoutAbortsBeforePersist", func(t *testing.T) {
		store := newMemStore()
		store.queryHook = func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}
		sink := &recordingSink{}
		o := New(testConfigStore(t), store, velocity.New(store), rules.NewEngine(), sink, nil, nil, 50*time.Millisecond)

		_, err := o.EvaluateTransaction(ctx, request("tx-11", 25, "US", "CoffeeShop"))
		if !errors.Is(err, domain.ErrDependencyTimeout) {
			t.Fatalf("expected ErrDependencyTimeout, got %T: %v", err, err)
		}

		// Timing out before persistence must leave no record behind.
		appends, _ := store.calls()
		if appends != 0 {
			t.Errorf("timed-out evaluation must not persist: appends=%d", appends)
		}
		if sink.count() != 0 {
			t.Errorf("timed-out evaluation must not alert, got %d alerts", sink.count())
		}
	})

	t.Run("ReloadDuringEvaluationKeepsSnapshot", func(t *testing.T) {
		store := newMemStore()
		configStore := testConfigStore(t)

		// Swap in a rule set with negligible weights while the evaluation is
		// between its snapshot read and the rule pass.
		reloaded := []byte(`{
			"high_risk_locations": ["HighRiskCountry"],
			"risky_merchants": ["GamblingSite"],
			"amount_thresholds": {"large": 10000},
			"velocity_rules": {"window_seconds": 3600, "max_transactions": 10, "max_amount": 20000},
			"risk_weights": {
				"amount_large": 5, "location": 5, "merchant": 5,
				"velocity_count": 5, "velocity_amount": 5
			},
			"review_threshold": 50,
			"reject_threshold": 70,
			"max_score": 100
		}`)
		store.queryHook = func(ctx context.Context) error {
			return configStore.Reload(reloaded)
		}

		o := New(configStore, store, velocity.New(store), rules.NewEngine(), &recordingSink{}, nil, nil, 5*time.Second)

		// The in-flight evaluation must score against the snapshot it
		// started with: amount_large (40) + merchant (30) = 70, reject.
		outcome, err := o.EvaluateTransaction(ctx, request("tx-12", 15000, "US", "GamblingSite"))
		if err != nil {
			t.Fatalf("EvaluateTransaction failed: %v", err)
		}
		if outcome.Score != 70 {
			t.Errorf("expected pre-reload score 70, got %v", outcome.Score)
		}
		if outcome.Classification != domain.ClassReject {
			t.Errorf("expected reject under pre-reload rules, got %s", outcome.Classification)
		}

		// The next evaluation picks up the new snapshot wholesale:
		// amount_large (5) + merchant (5) = 10, approve.
		store.queryHook = nil
		outcome, err = o.EvaluateTransaction(ctx, request("tx-13", 15000, "US", "GamblingSite"))
		if err != nil {
			t.Fatalf("EvaluateTransaction failed: %v", err)
		}
		if outcome.Score != 10 {
			t.Errorf("expected post-reload score 10, got %v", outcome.Score)
		}
		if outcome.Classification != domain.ClassApprove {
			t.Errorf("expected approve under post-reload rules, got %s", outcome.Classification)
		}
	})

	t.Run("DefaultAccountForAnonymousRequests", func(t *testing.T) {
		store := newMemStore()
		o := newOrchestrator(t, store, nil)

		amount := 25.0
		req := &domain.EvaluationRequest{
			TransactionID: "tx-10",
			Amount:        &amount,
			Location:      "US",
			Merchant:      "CoffeeShop",
		}

		if _, err := o.EvaluateTransaction(ctx, req); err != nil {
			t.Fatalf("EvaluateTransaction failed: %v", err)
		}

		tx, err := store.GetTransaction(ctx, "tx-10")
		if err != nil {
			t.Fatalf("transaction not persisted: %v", err)
		}
		if tx.AccountID != domain.DefaultAccountID {
			t.Errorf("expected account %q, got %q", domain.DefaultAccountID, tx.AccountID)
		}
	})

	t.Run("RiskLevelBands", func(t *testing.T) {
		tests := []struct {
			score float64
			want  domain.RiskLevel
		}{
			{0, domain.RiskLow},
			{19.99, domain.RiskLow},
			{20, domain.RiskMedium},
			{50, domain.RiskHigh},
			{80, domain.RiskCritical},
			{100, domain.RiskCritical},
		}
		for _, tt := range tests {
			if got := domain.RiskLevelForScore(tt.score); got != tt.want {
				t.Errorf("RiskLevelForScore(%v) = %s, want %s", tt.score, got, tt.want)
			}
		}
	})
}

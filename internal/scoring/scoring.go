// Package scoring composes configuration, velocity facts, rule evaluation,
// persistence and alerting into a single transaction evaluation.
package scoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ganga0312/sentinelstream/internal/config"
	"github.com/ganga0312/sentinelstream/internal/domain"
	"github.com/ganga0312/sentinelstream/internal/metrics"
	"github.com/ganga0312/sentinelstream/internal/rules"
	"github.com/ganga0312/sentinelstream/internal/velocity"
)

// outcomeCacheTTL bounds how long evaluated outcomes stay in the read cache.
const outcomeCacheTTL = 10 * time.Minute

// Orchestrator runs the full evaluation pipeline for one transaction.
// Evaluations for different accounts proceed fully concurrently; concurrent
// evaluations for one account may each miss the other's in-flight append
// (read-committed-at-start, see velocity.Aggregator).
type Orchestrator struct {
	configStore *config.Store
	history     domain.HistoryStore
	aggregator  *velocity.Aggregator
	engine      *rules.Engine
	alerts      domain.AlertSink
	cache       domain.Cache
	metrics     *metrics.Metrics
	timeout     time.Duration
}

// New creates a scoring orchestrator. Cache and metrics may be nil; alerts
// must not be.
func New(configStore *config.Store, history domain.HistoryStore, aggregator *velocity.Aggregator, engine *rules.Engine, alerts domain.AlertSink, cache domain.Cache, m *metrics.Metrics, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		configStore: configStore,
		history:     history,
		aggregator:  aggregator,
		engine:      engine,
		alerts:      alerts,
		cache:       cache,
		metrics:     m,
		timeout:     timeout,
	}
}

// EvaluateTransaction validates, scores, classifies, persists, and alerts.
// Validation failures produce no side effects. A persistence failure after
// scoring surfaces as *domain.PersistenceError: the evaluation is
// indeterminate and may be retried whole, which is safe because appends are
// idempotent on transaction id and scoring is a pure function of
// configuration plus facts.
func (o *Orchestrator) EvaluateTransaction(ctx context.Context, req *domain.EvaluationRequest) (*domain.Outcome, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		o.countFailure("validation")
		return nil, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	tx := req.ToTransaction()
	snap := o.configStore.Current()

	var facts *domain.VelocityFacts
	if snap.VelocityWindow > 0 {
		var err error
		facts, err = o.aggregator.Compute(ctx, tx.AccountID, tx.ID, tx.Timestamp, snap.VelocityWindow)
		if err != nil {
			if ctx.Err() != nil {
				o.countFailure("timeout")
				return nil, domain.ErrDependencyTimeout
			}
			o.countFailure("velocity")
			return nil, err
		}
	}

	score, triggered := o.engine.Evaluate(tx, facts, snap)

	outcome := &domain.Outcome{
		TransactionID:  tx.ID,
		Score:          score,
		Classification: snap.Classify(score),
		RiskLevel:      domain.RiskLevelForScore(score),
		TriggeredRules: triggered,
		EvaluatedAt:    time.Now().UTC(),
	}

	if err := o.history.Append(ctx, tx, outcome); err != nil {
		if ctx.Err() != nil {
			o.countFailure("timeout")
			return nil, domain.ErrDependencyTimeout
		}
		o.countFailure("persistence")
		var perr *domain.PersistenceError
		if errors.As(err, &perr) {
			return nil, err
		}
		return nil, &domain.PersistenceError{Op: "append", Err: err}
	}

	if outcome.Classification != domain.ClassApprove {
		o.dispatchAlert(ctx, outcome)
	}

	if o.cache != nil {
		if err := o.cache.SetOutcome(ctx, tx.ID, outcome, outcomeCacheTTL); err != nil {
			slog.Debug("failed to cache outcome", "tx_id", tx.ID, "error", err)
		}
	}

	if o.metrics != nil {
		o.metrics.Evaluations.WithLabelValues(string(outcome.Classification)).Inc()
		o.metrics.Duration.Observe(time.Since(start).Seconds())
	}

	slog.Info("transaction evaluated",
		"tx_id", tx.ID,
		"account_id", tx.AccountID,
		"score", outcome.Score,
		"classification", outcome.Classification,
		"triggered_rules", outcome.TriggeredRules,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return outcome, nil
}

// dispatchAlert is fire-and-forget: delivery failure is logged and never
// fails the evaluation.
func (o *Orchestrator) dispatchAlert(ctx context.Context, outcome *domain.Outcome) {
	a := &domain.Alert{
		TransactionID:  outcome.TransactionID,
		Score:          outcome.Score,
		Classification: outcome.Classification,
		TriggeredRules: outcome.TriggeredRules,
		Timestamp:      outcome.EvaluatedAt,
	}

	if err := o.alerts.Dispatch(ctx, a); err != nil {
		slog.Error("failed to dispatch alert",
			"tx_id", outcome.TransactionID,
			"error", err,
		)
		return
	}

	if o.metrics != nil {
		o.metrics.Alerts.Inc()
	}
}

func (o *Orchestrator) countFailure(kind string) {
	if o.metrics != nil {
		o.metrics.Failures.WithLabelValues(kind).Inc()
	}
}

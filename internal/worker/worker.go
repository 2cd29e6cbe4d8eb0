// Package worker consumes ingested transactions from the event bus and
// runs them through the scoring pipeline asynchronously.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ganga0312/sentinelstream/internal/domain"
	"github.com/ganga0312/sentinelstream/internal/scoring"
)

// Worker evaluates transactions published on the ingestion topic and
// publishes the resulting decisions.
type Worker struct {
	bus          domain.EventBus
	orchestrator *scoring.Orchestrator
	sub          domain.Subscription
}

// New creates an ingestion worker.
func New(bus domain.EventBus, orchestrator *scoring.Orchestrator) *Worker {
	return &Worker{
		bus:          bus,
		orchestrator: orchestrator,
	}
}

// Start subscribes to the ingestion topic. Evaluation runs on the bus's
// delivery goroutine; failed evaluations are logged, never retried here,
// because a client retry of the same transaction id is idempotent.
func (w *Worker) Start(ctx context.Context) error {
	sub, err := w.bus.Subscribe(ctx, domain.TopicTransactionIngested, w.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to ingestion topic: %w", err)
	}
	w.sub = sub

	slog.Info("ingestion worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

// Stop unsubscribes from the ingestion topic.
func (w *Worker) Stop() error {
	if w.sub == nil {
		return nil
	}
	return w.sub.Unsubscribe()
}

func (w *Worker) handle(ctx context.Context, msg *domain.Message) error {
	var req domain.EvaluationRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to decode ingested transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}

	outcome, err := w.orchestrator.EvaluateTransaction(ctx, &req)
	if err != nil {
		slog.Error("async evaluation failed",
			"tx_id", req.TransactionID,
			"error", err,
		)
		return err
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	if err := w.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision",
			"tx_id", outcome.TransactionID,
			"error", err,
		)
	}

	return nil
}

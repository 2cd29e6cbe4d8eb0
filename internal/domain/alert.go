package domain

import (
	"context"
	"time"
)

// Alert is the outbound notification for a review or reject outcome.
type Alert struct {
	TransactionID  string         `json:"transaction_id"`
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
	TriggeredRules []string       `json:"triggered_rules"`
	Timestamp      time.Time      `json:"timestamp"`
}

// AlertSink receives alerts for high-risk outcomes. Dispatch is
// fire-and-forget from the orchestrator's perspective: a delivery failure
// never fails the evaluation.
type AlertSink interface {
	Dispatch(ctx context.Context, alert *Alert) error
}

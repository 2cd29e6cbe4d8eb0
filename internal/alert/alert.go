// Package alert provides alert sink implementations.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ganga0312/sentinelstream/internal/domain"
)

// BusSink publishes alerts as JSON messages on the event bus alert topic.
type BusSink struct {
	bus   domain.EventBus
	topic string
}

// NewBusSink creates a sink publishing to the standard alert topic.
func NewBusSink(bus domain.EventBus) *BusSink {
	return &BusSink{
		bus:   bus,
		topic: domain.TopicAlert,
	}
}

// Dispatch publishes the alert.
func (s *BusSink) Dispatch(ctx context.Context, a *domain.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return s.bus.Publish(ctx, s.topic, payload)
}

// LogSink writes alerts to the structured log. Used when no event bus is
// configured and as a test double.
type LogSink struct{}

// NewLogSink creates a log-backed sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Dispatch logs the alert at warn level.
func (s *LogSink) Dispatch(ctx context.Context, a *domain.Alert) error {
	slog.Warn("high risk transaction detected",
		"tx_id", a.TransactionID,
		"score", a.Score,
		"classification", a.Classification,
		"triggered_rules", a.TriggeredRules,
	)
	return nil
}

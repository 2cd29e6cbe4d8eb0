// Package bus provides event bus implementations for the evaluation
// pipeline topics.
package bus

import (
	"fmt"

	"github.com/ganga0312/sentinelstream/internal/domain"
)

// New creates an event bus based on configuration.
// For Community tier: returns channel-based bus.
// For Pro tier: returns NATS-based bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Package bus carries engine events over an in-process channel bus
// (community tier) or NATS (pro tier).
package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// New opens the configured bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case domain.BusChannel:
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case domain.BusNATS:
		return NewNATSBus(cfg)
	}
	return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
}

func count(topic, outcome string) {
	metrics.BusMessagesTotal.WithLabelValues(topic, outcome).Inc()
}

// deliver runs a handler and records the outcome. Failed messages are not
// redelivered.
func deliver(ctx context.Context, handler domain.MessageHandler, msg *domain.Message) {
	if err := handler(ctx, msg); err != nil {
		count(msg.Topic, "failed")
		slog.Error("event handler failed",
			"topic", msg.Topic,
			"account_id", msg.AccountID,
			"message_id", msg.ID,
			"error", err,
		)
		return
	}
	count(msg.Topic, "delivered")
}

package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Sink receives alert notifications.
type Sink interface {
	Notify(ctx context.Context, msg *domain.Message) error
}

// LogSink writes alert notifications to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// Notify logs the alert event.
func (s LogSink) Notify(ctx context.Context, msg *domain.Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"account_id", msg.AccountID,
		"topic", msg.Topic,
	}
	switch msg.Topic {
	case domain.TopicAlertRaised:
		var a domain.FraudAlert
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			return err
		}
		attrs = append(attrs,
			"alert_id", a.ID,
			"severity", a.Severity,
			"alert_type", a.AlertType,
			"description", a.Description,
		)
	case domain.TopicAlertResolved:
		var e domain.AlertResolvedEvent
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return err
		}
		attrs = append(attrs, "alert_id", e.AlertID, "resolved_at", e.ResolvedAt)
	}

	logger.InfoContext(ctx, "alert notification", attrs...)
	return nil
}

// Notifier forwards alert events to a sink. Sink failures are logged and
// never retried.
type Notifier struct {
	bus  domain.EventBus
	sink Sink

	mu            sync.Mutex
	subscriptions []domain.Subscription
}

// NewNotifier creates a notifier.
func NewNotifier(bus domain.EventBus, sink Sink) *Notifier {
	return &Notifier{bus: bus, sink: sink}
}

// Start subscribes to the alert topics across all accounts.
func (n *Notifier) Start(ctx context.Context) error {
	for _, topic := range []string{domain.TopicAlertRaised, domain.TopicAlertResolved} {
		sub, err := n.bus.Subscribe(ctx, domain.AllAccounts, topic, n.forward)
		if err != nil {
			n.Stop()
			return err
		}
		n.mu.Lock()
		n.subscriptions = append(n.subscriptions, sub)
		n.mu.Unlock()
	}
	return nil
}

func (n *Notifier) forward(ctx context.Context, msg *domain.Message) error {
	if err := n.sink.Notify(ctx, msg); err != nil {
		slog.Warn("alert notification dropped",
			"message_id", msg.ID,
			"topic", msg.Topic,
			"error", err,
		)
	}
	return nil
}

// Stop unsubscribes from the alert topics.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subscriptions {
		_ = sub.Unsubscribe()
	}
	n.subscriptions = nil
}

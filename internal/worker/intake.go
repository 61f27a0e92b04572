// Package worker runs the background loops around the event bus: async
// submission intake, the outbox relay and alert notifications.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/submission"
)

// Submitter runs one decoded submission.
type Submitter interface {
	Submit(ctx context.Context, accountID string, env *submission.Envelope) (any, error)
}

// Intake consumes submissions published to the event bus.
type Intake struct {
	bus       domain.EventBus
	submitter Submitter

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds intake configuration.
type Config struct {
	// AccountIDs limits intake to these accounts. Empty means every account.
	AccountIDs []string
}

// NewIntake creates an intake worker.
func NewIntake(bus domain.EventBus, submitter Submitter) *Intake {
	ctx, cancel := context.WithCancel(context.Background())
	return &Intake{
		bus:       bus,
		submitter: submitter,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the submission topic for the configured accounts.
func (w *Intake) Start(cfg Config) error {
	accounts := cfg.AccountIDs
	if len(accounts) == 0 {
		accounts = []string{domain.AllAccounts}
	}

	for _, accountID := range accounts {
		sub, err := w.bus.Subscribe(w.ctx, accountID, domain.TopicSubmissionReceived, w.handleMessage)
		if err != nil {
			slog.Error("failed to start intake for account",
				"account_id", accountID,
				"error", err,
			)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	slog.Info("intake started",
		"account_count", len(accounts),
		"topic", domain.TopicSubmissionReceived,
	)
	return nil
}

// handleMessage runs one submission. The account comes from the message
// envelope so a wildcard subscription still scopes writes correctly.
func (w *Intake) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var env submission.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		slog.Error("failed to parse submission message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if _, err := w.submitter.Submit(ctx, msg.AccountID, &env); err != nil {
		slog.Error("async submission failed",
			"message_id", msg.ID,
			"account_id", msg.AccountID,
			"kind", env.Kind,
			"error", err,
		)
		return err
	}

	slog.Info("async submission processed",
		"message_id", msg.ID,
		"account_id", msg.AccountID,
		"kind", env.Kind,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes from the bus.
func (w *Intake) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("intake stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current intake statistics.
func (w *Intake) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// OutboxStore is the part of the repository the relay needs.
type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, ids []string, at time.Time) error
}

// Relay publishes outbox events to the event bus. Delivery is at least
// once: an event published before a failed mark is published again.
type Relay struct {
	store    OutboxStore
	bus      domain.EventBus
	interval time.Duration
	batch    int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRelay creates an outbox relay.
func NewRelay(store OutboxStore, bus domain.EventBus, cfg domain.WorkersConfig) *Relay {
	interval := cfg.OutboxInterval
	if interval <= 0 {
		interval = time.Second
	}
	batch := cfg.OutboxBatch
	if batch <= 0 {
		batch = 100
	}
	return &Relay{store: store, bus: bus, interval: interval, batch: batch}
}

// Start polls the outbox until Stop is called.
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
					slog.Error("outbox relay pass failed", "error", err)
				}
			}
		}
	}()

	slog.Info("outbox relay started", "interval", r.interval, "batch", r.batch)
}

// RunOnce publishes one batch in creation order and returns how many
// events were dispatched. It stops at the first publish failure so
// later events are not delivered ahead of it.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.PendingOutbox(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]string, 0, len(events))
	var publishErr error
	for _, e := range events {
		if err := r.bus.Publish(ctx, e.AccountID, e.Topic, e.Payload); err != nil {
			metrics.OutboxPublishedTotal.WithLabelValues("error").Inc()
			slog.Warn("failed to publish outbox event",
				"event_id", e.ID,
				"topic", e.Topic,
				"error", err,
			)
			publishErr = err
			break
		}
		metrics.OutboxPublishedTotal.WithLabelValues("ok").Inc()
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if err := r.store.MarkDispatched(ctx, published, time.Now().UTC()); err != nil {
			return 0, err
		}
	}
	return len(published), publishErr
}

// Stop ends polling and waits for the current pass.
func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	slog.Info("outbox relay stopped")
}

package bus

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ChannelBus is an in-process EventBus. Every subscription owns a buffered
// queue drained by its own goroutine; a full queue drops the message.
type ChannelBus struct {
	mu     sync.RWMutex
	buffer int
	topics map[string][]*channelSub
	closed bool
}

type channelSub struct {
	id        string
	accountID string
	topic     string
	handler   domain.MessageHandler
	queue     chan *domain.Message
	ctx       context.Context
	cancel    context.CancelFunc
	bus       *ChannelBus
}

// NewChannelBus creates a channel bus with the given per-subscriber buffer.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		buffer: bufferSize,
		topics: make(map[string][]*channelSub),
	}
}

// Publish queues the message for every subscriber of the account and every
// AllAccounts subscriber of the topic.
func (b *ChannelBus) Publish(ctx context.Context, accountID string, topic string, payload []byte) error {
	if accountID == "" {
		return domain.ErrNoAccount
	}
	msg := domain.NewMessage(accountID, topic, payload)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return domain.ErrBusClosed
	}

	count(topic, "published")
	for _, sub := range b.topics[topic] {
		if !sub.wants(accountID) || sub.ctx.Err() != nil {
			continue
		}
		select {
		case sub.queue <- msg:
		default:
			count(topic, "dropped")
			slog.Warn("subscriber queue full, dropping message",
				"topic", topic,
				"account_id", accountID,
				"subscription_id", sub.id,
			)
		}
	}
	return nil
}

// Subscribe starts delivering the topic's messages to handler until the
// subscription, ctx or the bus is closed.
func (b *ChannelBus) Subscribe(ctx context.Context, accountID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if accountID == "" {
		return nil, domain.ErrNoAccount
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, domain.ErrBusClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSub{
		id:        uuid.New().String(),
		accountID: accountID,
		topic:     topic,
		handler:   handler,
		queue:     make(chan *domain.Message, b.buffer),
		ctx:       subCtx,
		cancel:    cancel,
		bus:       b,
	}
	b.topics[topic] = append(b.topics[topic], sub)

	go sub.run()
	return sub, nil
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return domain.ErrBusClosed
	}
	return nil
}

// Close stops every subscription. Queued messages are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.topics {
		for _, sub := range subs {
			sub.cancel()
			close(sub.queue)
		}
	}
	b.topics = nil
	return nil
}

func (b *ChannelBus) remove(sub *channelSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.topics[sub.topic] = slices.DeleteFunc(b.topics[sub.topic], func(s *channelSub) bool {
		return s == sub
	})
}

func (s *channelSub) wants(accountID string) bool {
	return s.accountID == domain.AllAccounts || s.accountID == accountID
}

func (s *channelSub) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.queue:
			if !ok {
				return
			}
			deliver(s.ctx, s.handler, msg)
		}
	}
}

// Unsubscribe stops delivery and detaches the subscription from the bus.
func (s *channelSub) Unsubscribe() error {
	s.cancel()
	s.bus.remove(s)
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSub) Topic() string {
	return s.topic
}

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Headers set on every NATS message besides the JSON envelope.
const (
	headerAccount = "Kestrel-Account"
	headerTopic   = "Kestrel-Topic"
)

// NATSBus is the pro-tier EventBus. Subjects are acct.<accountID>.<topic>,
// so account ids must not contain dots. Submission intake subscribes in a
// queue group when one is configured; every other topic is broadcast.
type NATSBus struct {
	mu    sync.Mutex
	conn  *nats.Conn
	queue string
	subs  map[*natsSub]struct{}
}

type natsSub struct {
	topic string
	sub   *nats.Subscription
	bus   *NATSBus
}

// NewNATSBus connects to NATS, retrying up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("NATS connected",
		"url", conn.ConnectedUrl(),
		"server_id", conn.ConnectedServerId(),
		"queue_group", cfg.NATSQueueGroup,
	)
	return &NATSBus{
		conn:  conn,
		queue: cfg.NATSQueueGroup,
		subs:  make(map[*natsSub]struct{}),
	}, nil
}

func connect(cfg domain.EventBusConfig) (*nats.Conn, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := cfg.NATSReconnectWait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS error", "error", err, "subject", subject)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := nats.Connect(url, opts...)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("NATS connection attempt failed", "attempt", i, "max_attempts", attempts, "error", err)
		if i < attempts {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", attempts, lastErr)
}

// Publish sends the message envelope to the account's subject.
func (b *NATSBus) Publish(ctx context.Context, accountID string, topic string, payload []byte) error {
	if accountID == "" {
		return domain.ErrNoAccount
	}

	msg := domain.NewMessage(accountID, topic, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	out := nats.NewMsg(subject(accountID, topic))
	out.Data = data
	out.Header.Set(nats.MsgIdHdr, msg.ID)
	out.Header.Set(headerAccount, accountID)
	out.Header.Set(headerTopic, topic)

	if err := b.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	count(topic, "published")
	return nil
}

// Subscribe delivers the topic's messages to handler on the NATS
// dispatcher goroutine.
func (b *NATSBus) Subscribe(ctx context.Context, accountID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if accountID == "" {
		return nil, domain.ErrNoAccount
	}

	cb := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			count(topic, "failed")
			slog.Error("failed to decode NATS message", "subject", m.Subject, "error", err)
			return
		}
		deliver(ctx, handler, &msg)
	}

	subj := subject(accountID, topic)
	var (
		sub *nats.Subscription
		err error
	)
	if group := b.queueFor(topic); group != "" {
		sub, err = b.conn.QueueSubscribe(subj, group, cb)
	} else {
		sub, err = b.conn.Subscribe(subj, cb)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subj, err)
	}

	s := &natsSub{topic: topic, sub: sub, bus: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Ping flushes the connection.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains in-flight messages and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[*natsSub]struct{})
	b.mu.Unlock()

	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// queueFor returns the queue group for work topics.
func (b *NATSBus) queueFor(topic string) string {
	if topic == domain.TopicSubmissionReceived {
		return b.queue
	}
	return ""
}

// subject maps an account and topic to a NATS subject. AllAccounts becomes
// a single-token wildcard.
func subject(accountID, topic string) string {
	if accountID == domain.AllAccounts {
		accountID = "*"
	}
	return "acct." + accountID + "." + topic
}

// Unsubscribe stops delivery and forgets the subscription.
func (s *natsSub) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSub) Topic() string {
	return s.topic
}

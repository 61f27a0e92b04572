package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Topics published by the engine. Payloads are JSON.
const (
	// TopicSubmissionReceived carries a submission envelope for async intake.
	TopicSubmissionReceived = "kestrel.submission.received"
	// TopicEntityScored carries a ScoredEvent.
	TopicEntityScored = "kestrel.entity.scored"
	// TopicAlertRaised carries the FraudAlert.
	TopicAlertRaised = "kestrel.alert.raised"
	// TopicAlertResolved carries an AlertResolvedEvent.
	TopicAlertResolved = "kestrel.alert.resolved"
)

// AllAccounts subscribes to a topic across every account.
const AllAccounts = "_all"

// Bus backends.
const (
	BusChannel = "channel"
	BusNATS    = "nats"
)

// ErrBusClosed is returned by a bus after Close.
var ErrBusClosed = errors.New("event bus is closed")

// EventBus moves events between the API, the outbox relay and the workers.
// Publishing is always scoped to one account.
type EventBus interface {
	Publish(ctx context.Context, accountID string, topic string, payload []byte) error

	// Subscribe delivers messages of one account, or of every account when
	// accountID is AllAccounts.
	Subscribe(ctx context.Context, accountID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message. Errors are logged by the
// bus and the message is not redelivered.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope around every published payload.
type Message struct {
	ID        string            `json:"id"`
	AccountID string            `json:"accountId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// NewMessage wraps a payload with a fresh id and the publish time.
func NewMessage(accountID, topic string, payload []byte) *Message {
	return &Message{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
	}
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects the bus backend.
type EventBusConfig struct {
	Type string `json:"type"`

	// ChannelBufferSize is the per-subscriber queue of the in-process bus.
	ChannelBufferSize int `json:"channelBufferSize"`

	NATSUrl           string        `json:"natsUrl"`
	NATSToken         string        `json:"-"`
	NATSMaxReconnects int           `json:"natsMaxReconnects"`
	NATSReconnectWait time.Duration `json:"natsReconnectWait"`

	// NATSQueueGroup shares submission intake between replicas. Alert and
	// scoring topics are always broadcast.
	NATSQueueGroup string `json:"natsQueueGroup"`
}

package domain

import "time"

// OutboxEvent is an event written in the same database transaction as the
// state change it describes, and published to the event bus afterwards.
type OutboxEvent struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"accountId"`
	Topic        string     `json:"topic"`
	Payload      []byte     `json:"payload"`
	CreatedAt    time.Time  `json:"createdAt"`
	DispatchedAt *time.Time `json:"dispatchedAt,omitempty"`
}

// ScoredEvent is the payload of TopicEntityScored.
type ScoredEvent struct {
	EntityType EntityKind `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Score      int        `json:"score"`
	Status     string     `json:"status"`
	AlertID    string     `json:"alertId,omitempty"`
}

// AlertResolvedEvent is the payload of TopicAlertResolved.
type AlertResolvedEvent struct {
	AlertID    string    `json:"alertId"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

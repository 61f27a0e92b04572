package domain

import "errors"

// ErrInvalidTransition is returned when a status update is not allowed
// from the record's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// EntityKind identifies the kind of scored submission.
type EntityKind string

const (
	EntityInvoice     EntityKind = "invoice"
	EntityShipment    EntityKind = "shipment"
	EntityTransaction EntityKind = "transaction"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityInvoice, EntityShipment, EntityTransaction:
		return true
	}
	return false
}

// MaxScore is the upper bound of every fraud score.
const MaxScore = 100

// ClampScore bounds a score to [0, MaxScore].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

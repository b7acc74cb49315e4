package events

import (
	"context"
	"time"
)

// Event types emitted by the ledger.
const (
	TypeEntryPosted          = "entry.posted"
	TypeWithdrawalConfirmed  = "withdrawal.confirmed"
	TypeWithdrawalRolledBack = "withdrawal.rolled_back"
	TypeIntegrityAlarm       = "integrity.alarm"
	TypeIntegrityCleared     = "integrity.cleared"
)

// Event is a fact that has already been committed to the ledger.
type Event struct {
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher delivers events to downstream consumers. Delivery is best effort:
// a failure never undoes ledger state.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

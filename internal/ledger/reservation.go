package ledger

import (
	"fmt"
	"time"
)

// ReservationState is the lifecycle state of a balance hold.
type ReservationState string

const (
	ReservationRequested  ReservationState = "requested"
	ReservationReserved   ReservationState = "reserved"
	ReservationConfirmed  ReservationState = "confirmed"
	ReservationRolledBack ReservationState = "rolled_back"
)

// Terminal reports whether no further transition is allowed.
func (s ReservationState) Terminal() bool {
	return s == ReservationConfirmed || s == ReservationRolledBack
}

// AllowedReservationTransitions returns the legal state transitions of a
// withdrawal reservation.
func AllowedReservationTransitions() map[ReservationState][]ReservationState {
	return map[ReservationState][]ReservationState{
		ReservationRequested: {ReservationReserved},
		ReservationReserved:  {ReservationConfirmed, ReservationRolledBack},
	}
}

// InvalidTransitionError is returned when a reservation is moved along an
// edge that does not exist.
type InvalidTransitionError struct {
	ID   string
	From ReservationState
	To   ReservationState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("reservation %s: invalid transition from %s to %s", e.ID, e.From, e.To)
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to ReservationState) bool {
	for _, s := range AllowedReservationTransitions()[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DestinationKind is the payout rail of a withdrawal.
type DestinationKind string

const (
	DestinationBankAccount  DestinationKind = "bank_account"
	DestinationCryptoWallet DestinationKind = "crypto_wallet"
)

// Destination is where a withdrawal is paid out to.
type Destination struct {
	Kind       DestinationKind `json:"kind" validate:"required,oneof=bank_account crypto_wallet"`
	Address    string          `json:"address" validate:"required,max=128"`
	Network    string          `json:"network,omitempty" validate:"required_if=Kind crypto_wallet,max=32"`
	HolderName string          `json:"holder_name,omitempty" validate:"required_if=Kind bank_account,max=128"`
}

// Reservation is the persisted record of one withdrawal hold. It is kept
// after reaching a terminal state for audit.
type Reservation struct {
	ID                  string           `json:"id"`
	Entity              EntityRef        `json:"entity"`
	AccountCode         string           `json:"account_code"`
	Amount              int64            `json:"amount"`
	State               ReservationState `json:"state"`
	EntryNumber         int64            `json:"entry_number"`
	ReversalEntryNumber int64            `json:"reversal_entry_number,omitempty"`
	WithdrawalID        string           `json:"withdrawal_id,omitempty"`
	Destination         Destination      `json:"destination"`
	FailureReason       string           `json:"failure_reason,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	ResolvedAt          *time.Time       `json:"resolved_at,omitempty"`
}

// transition moves r to the given state or returns InvalidTransitionError.
func (r *Reservation) transition(to ReservationState, at time.Time) error {
	if !CanTransition(r.State, to) {
		return &InvalidTransitionError{ID: r.ID, From: r.State, To: to}
	}
	r.State = to
	if to.Terminal() {
		t := at.UTC()
		r.ResolvedAt = &t
	}
	return nil
}

// WithdrawalStatus of a materialised withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending WithdrawalStatus = "pending"
	// WithdrawalCancelled marks a record whose reservation was rolled back
	// before it could be confirmed. It must never be paid out.
	WithdrawalCancelled WithdrawalStatus = "cancelled"
)

// Withdrawal is the durable settlement request handed to payout processing.
type Withdrawal struct {
	ID            string           `json:"id"`
	ReservationID string           `json:"reservation_id"`
	Entity        EntityRef        `json:"entity"`
	Amount        int64            `json:"amount"`
	Destination   Destination      `json:"destination"`
	Status        WithdrawalStatus `json:"status"`
	EntryNumber   int64            `json:"entry_number"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ReservationFilter narrows ListReservations.
type ReservationFilter struct {
	State ReservationState
	// CreatedBefore, when set, keeps reservations created strictly earlier.
	CreatedBefore time.Time
	Limit         int
}

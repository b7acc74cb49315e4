package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/gateway-ledger/internal/events"
)

const coordinatorActor = "system:withdrawal-coordinator"

// WithdrawalRecorder materialises the durable withdrawal request once funds
// are reserved. The default implementation writes to the ledger store.
type WithdrawalRecorder interface {
	CreateWithdrawal(ctx context.Context, w *Withdrawal) error
	// CancelWithdrawal marks a record whose reservation was rolled back
	// before it could be confirmed.
	CancelWithdrawal(ctx context.Context, id string) error
	// FindByReservation returns a KindNotFound error when no withdrawal
	// exists for the reservation.
	FindByReservation(ctx context.Context, reservationID string) (*Withdrawal, error)
}

// txWithdrawalRecorder is implemented by recorders that write to the ledger
// store, so the record and the confirmation commit together.
type txWithdrawalRecorder interface {
	createWithdrawalTx(ctx context.Context, tx Tx, w *Withdrawal) error
}

type storeWithdrawals struct{ store Store }

func (s storeWithdrawals) CreateWithdrawal(ctx context.Context, w *Withdrawal) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return s.createWithdrawalTx(ctx, tx, w)
	})
}

func (s storeWithdrawals) createWithdrawalTx(ctx context.Context, tx Tx, w *Withdrawal) error {
	return tx.InsertWithdrawal(ctx, w)
}

func (s storeWithdrawals) CancelWithdrawal(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetWithdrawalStatus(ctx, id, WithdrawalCancelled)
	})
}

func (s storeWithdrawals) FindByReservation(ctx context.Context, reservationID string) (*Withdrawal, error) {
	return s.store.FindWithdrawalByReservation(ctx, reservationID)
}

// WithdrawalRequest is a merchant- or trader-initiated payout request.
type WithdrawalRequest struct {
	EntityType  EntityType  `json:"entity_type" validate:"required,oneof=merchant trader affiliate"`
	EntityID    string      `json:"entity_id" validate:"required,max=100"`
	Amount      int64       `json:"amount" validate:"gt=0"`
	Destination Destination `json:"destination"`
	RequestedBy string      `json:"requested_by" validate:"max=100"`
}

// WithdrawalResult is returned to the requester.
type WithdrawalResult struct {
	RequestID     string           `json:"request_id"`
	ReservationID string           `json:"reservation_id"`
	Status        WithdrawalStatus `json:"status"`
	State         ReservationState `json:"state"`
	EntryNumber   int64            `json:"entry_number"`
	Amount        int64            `json:"amount"`
}

type CoordinatorConfig struct {
	// MinimumAmount is the smallest withdrawal accepted, in minor units.
	MinimumAmount     int64
	SettlementAccount string
	// RollbackAttempts bounds retries of the compensating reversal.
	RollbackAttempts int
}

// RecoveryReport summarises a RecoverPending sweep.
type RecoveryReport struct {
	Confirmed  []string `json:"confirmed"`
	RolledBack []string `json:"rolled_back"`
	Failed     []string `json:"failed"`
}

// Coordinator runs the reserve, materialise, confirm-or-rollback protocol
// for withdrawals.
type Coordinator struct {
	engine   *Engine
	store    Store
	recorder WithdrawalRecorder
	cfg      CoordinatorConfig
	opts     Options
}

// NewCoordinator wires a coordinator. A nil recorder stores withdrawal
// requests in the ledger store.
func NewCoordinator(engine *Engine, cfg CoordinatorConfig, recorder WithdrawalRecorder) *Coordinator {
	if recorder == nil {
		recorder = storeWithdrawals{store: engine.store}
	}
	if cfg.RollbackAttempts <= 0 {
		cfg.RollbackAttempts = 3
	}
	return &Coordinator{engine: engine, store: engine.store, recorder: recorder, cfg: cfg, opts: engine.opts}
}

// RequestWithdrawal reserves funds and creates the pending withdrawal. On
// any failure after the reservation the debit is reversed before the error
// is returned, so the entity's balance is exactly what it was before.
func (c *Coordinator) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error) {
	res, err := c.requestWithdrawal(ctx, req)
	if err != nil {
		c.engine.failed("request withdrawal", err,
			"entity", string(req.EntityType)+":"+req.EntityID, "amount", req.Amount)
		return nil, err
	}
	return res, nil
}

func (c *Coordinator) requestWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error) {
	const op = "request withdrawal"
	req.EntityID = strings.TrimSpace(req.EntityID)
	if err := checkStruct(op, req); err != nil {
		return nil, err
	}
	if req.Amount < c.cfg.MinimumAmount {
		return nil, validationError(op, "amount must be at least %d", c.cfg.MinimumAmount)
	}
	if req.RequestedBy == "" {
		req.RequestedBy = string(req.EntityType) + ":" + req.EntityID
	}

	entity := EntityRef{Type: req.EntityType, ID: req.EntityID}
	acct, err := c.store.FindEntityAccount(ctx, entity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindUnknownAccount, op, "%s has no balance account", entity)
		}
		return nil, err
	}

	reserved, entry, err := c.reserve(ctx, req, entity, acct.Code)
	if err != nil {
		switch KindOf(err) {
		case KindInsufficientBalance, KindValidation, KindUnknownAccount:
			return nil, err
		}
		// The reserve transaction rolled back as a whole; nothing to undo.
		return nil, &Error{Kind: KindReservationFailure, Op: op, Msg: "funds could not be reserved; no funds were lost", Err: err}
	}
	c.engine.committed(ctx, entry)

	w := &Withdrawal{
		ID:            uuid.NewString(),
		ReservationID: reserved.ID,
		Entity:        entity,
		Amount:        req.Amount,
		Destination:   req.Destination,
		Status:        WithdrawalPending,
		EntryNumber:   entry.EntryNumber,
		CreatedAt:     c.opts.Now().UTC().Truncate(time.Microsecond),
	}
	if err := c.materialize(ctx, reserved, w); err != nil {
		return nil, err
	}
	return &WithdrawalResult{
		RequestID:     w.ID,
		ReservationID: reserved.ID,
		Status:        w.Status,
		State:         ReservationConfirmed,
		EntryNumber:   entry.EntryNumber,
		Amount:        req.Amount,
	}, nil
}

// materialize creates the withdrawal record and confirms the reservation.
// A reservation already rolled back by recovery is never confirmed; the
// request then fails and the funds stay restored.
func (c *Coordinator) materialize(ctx context.Context, r *Reservation, w *Withdrawal) error {
	const op = "request withdrawal"
	if rec, ok := c.recorder.(txWithdrawalRecorder); ok {
		var confirmed *Reservation
		err := c.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			locked, err := tx.LockReservation(ctx, r.ID)
			if err != nil {
				return err
			}
			if err := c.confirmLocked(ctx, tx, locked, w.ID); err != nil {
				return err
			}
			if err := rec.createWithdrawalTx(ctx, tx, w); err != nil {
				return err
			}
			confirmed = locked
			return nil
		})
		if err != nil {
			return c.abandon(ctx, r, err)
		}
		c.resolved(ctx, confirmed, events.TypeWithdrawalConfirmed)
		return nil
	}

	if err := c.recorder.CreateWithdrawal(ctx, w); err != nil {
		return c.abandon(ctx, r, err)
	}
	if _, err := c.confirm(context.WithoutCancel(ctx), r.ID, w.ID); err != nil {
		// The record exists but must not be paid: cancel it, then make sure
		// the hold is released.
		c.opts.Logger.Error("withdrawal_confirm_failed", "reservation_id", r.ID, "withdrawal_id", w.ID, "err", err)
		if cerr := c.recorder.CancelWithdrawal(context.WithoutCancel(ctx), w.ID); cerr != nil {
			c.opts.Logger.Error("withdrawal_cancel_failed", "withdrawal_id", w.ID, "err", cerr)
			return &Error{
				Kind: KindReservationFailure, Op: op,
				Msg: fmt.Sprintf("withdrawal %s could not be confirmed or cancelled; reservation %s needs operator review", w.ID, r.ID),
				Err: errors.Join(err, cerr),
			}
		}
		return c.abandon(ctx, r, err)
	}
	return nil
}

// abandon rolls the reservation back after cause stopped the request and
// returns the ReservationFailure the caller sees.
func (c *Coordinator) abandon(ctx context.Context, r *Reservation, cause error) error {
	const op = "request withdrawal"
	c.opts.Logger.Warn("withdrawal_materialize_failed", "reservation_id", r.ID, "err", cause)
	if _, err := c.rollback(context.WithoutCancel(ctx), r.ID, "withdrawal not confirmed: "+cause.Error()); err != nil {
		c.opts.Logger.Error("withdrawal_rollback_failed",
			"reservation_id", r.ID, "entry_number", r.EntryNumber, "err", err)
		return &Error{
			Kind: KindReservationFailure, Op: op,
			Msg: fmt.Sprintf("withdrawal could not be created; reservation %s is queued for automatic rollback and no funds were lost", r.ID),
			Err: errors.Join(cause, err),
		}
	}
	return &Error{
		Kind: KindReservationFailure, Op: op,
		Msg: "withdrawal could not be created; the reservation was rolled back and no funds were lost",
		Err: cause,
	}
}

// reserve debits the entity and records the reservation in one transaction.
func (c *Coordinator) reserve(ctx context.Context, req WithdrawalRequest, entity EntityRef, code string) (*Reservation, *JournalEntry, error) {
	var (
		reserved *Reservation
		entry    *JournalEntry
	)
	id := uuid.NewString()
	err := c.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		codes := []string{code, c.cfg.SettlementAccount}
		if codes[1] < codes[0] {
			codes[0], codes[1] = codes[1], codes[0]
		}
		locked, err := tx.LockAccounts(ctx, codes)
		if err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}
		acct := locked[code]
		if acct == nil {
			return newError(KindUnknownAccount, "reserve", "account %q does not exist", code)
		}
		if locked[c.cfg.SettlementAccount] == nil {
			return newError(KindUnknownAccount, "reserve", "settlement account %q does not exist", c.cfg.SettlementAccount)
		}
		if acct.CurrentBalance < req.Amount {
			return &Error{Kind: KindInsufficientBalance, Op: "reserve", Msg: "amount exceeds the available balance"}
		}

		// Reduce the entity account whatever its normal side is.
		side := acct.Type.NormalSide().Opposite()
		entry, err = c.engine.post(ctx, tx, PostRequest{
			ReferenceType: RefSettlement,
			ReferenceID:   id,
			Description:   "withdrawal reservation " + id,
			CreatedBy:     req.RequestedBy,
			Lines: []LineRequest{
				{AccountCode: code, EntryType: side, Amount: req.Amount},
				{AccountCode: c.cfg.SettlementAccount, EntryType: side.Opposite(), Amount: req.Amount},
			},
		})
		if err != nil {
			return err
		}

		r := &Reservation{
			ID:          id,
			Entity:      entity,
			AccountCode: code,
			Amount:      req.Amount,
			State:       ReservationRequested,
			EntryNumber: entry.EntryNumber,
			Destination: req.Destination,
			CreatedAt:   entry.CreatedAt,
		}
		if err := r.transition(ReservationReserved, entry.CreatedAt); err != nil {
			return err
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		reserved = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	c.opts.Logger.Info("withdrawal_reserved",
		"reservation_id", reserved.ID, "account", code, "amount", req.Amount, "entry_number", entry.EntryNumber)
	return reserved, entry, nil
}

// confirmLocked moves a reservation locked in tx to confirmed. It fails
// with an InvalidTransitionError unless the reservation is still reserved.
func (c *Coordinator) confirmLocked(ctx context.Context, tx Tx, r *Reservation, withdrawalID string) error {
	if err := r.transition(ReservationConfirmed, c.opts.Now()); err != nil {
		return err
	}
	r.WithdrawalID = withdrawalID
	return tx.UpdateReservation(ctx, r)
}

// rollbackLocked reverses the settlement entry of a reservation locked in
// tx and marks it rolled back.
func (c *Coordinator) rollbackLocked(ctx context.Context, tx Tx, r *Reservation, reason string) (*JournalEntry, error) {
	if err := r.transition(ReservationRolledBack, c.opts.Now()); err != nil {
		return nil, err
	}
	rev, err := c.engine.reverse(ctx, tx, r.EntryNumber, coordinatorActor, reason)
	if err != nil {
		return nil, err
	}
	r.ReversalEntryNumber = rev.EntryNumber
	r.FailureReason = truncate(reason, maxDescriptionLen)
	return rev, tx.UpdateReservation(ctx, r)
}

// confirm is idempotent for a reservation already confirmed.
func (c *Coordinator) confirm(ctx context.Context, reservationID, withdrawalID string) (*Reservation, error) {
	var (
		out     *Reservation
		changed bool
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		out, changed = r, false
		if r.State == ReservationConfirmed && r.WithdrawalID == withdrawalID {
			return nil
		}
		if err := c.confirmLocked(ctx, tx, r, withdrawalID); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		c.resolved(ctx, out, events.TypeWithdrawalConfirmed)
	}
	return out, nil
}

// rollback reverses the reservation's settlement entry and marks it rolled
// back. It retries because the caller is owed a restored balance.
func (c *Coordinator) rollback(ctx context.Context, reservationID, reason string) (*Reservation, error) {
	var (
		out      *Reservation
		reversal *JournalEntry
		err      error
	)
	for attempt := 0; attempt < c.cfg.RollbackAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
		}
		err = c.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			r, err := tx.LockReservation(ctx, reservationID)
			if err != nil {
				return err
			}
			out, reversal = r, nil
			if r.State == ReservationRolledBack {
				return nil
			}
			reversal, err = c.rollbackLocked(ctx, tx, r, reason)
			return err
		})
		if err == nil {
			break
		}
		var te *InvalidTransitionError
		if errors.As(err, &te) || errors.Is(err, ErrNotFound) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if reversal != nil {
		c.engine.committed(ctx, reversal)
		c.resolved(ctx, out, events.TypeWithdrawalRolledBack)
	}
	return out, nil
}

func (c *Coordinator) resolved(ctx context.Context, r *Reservation, eventType string) {
	c.opts.Recorder.ReservationResolved(string(r.State))
	c.opts.Logger.Info("withdrawal_resolved",
		"reservation_id", r.ID, "state", r.State, "entry_number", r.EntryNumber,
		"reversal_entry_number", r.ReversalEntryNumber)
	c.engine.publish(ctx, events.Event{
		Type:       eventType,
		Key:        r.ID,
		OccurredAt: c.opts.Now().UTC(),
		Payload:    r,
	})
}

// RecoverPending resolves reservations still in reserved state that are
// older than age, which only happens when a process died mid-request. A
// reservation with a live withdrawal is confirmed, any other is rolled back.
// Reservations resolved concurrently by their request are left alone.
func (c *Coordinator) RecoverPending(ctx context.Context, age time.Duration) (*RecoveryReport, error) {
	stuck, err := c.store.ListReservations(ctx, ReservationFilter{
		State:         ReservationReserved,
		CreatedBefore: c.opts.Now().Add(-age),
		Limit:         500,
	})
	if err != nil {
		return nil, fmt.Errorf("list reserved: %w", err)
	}

	report := &RecoveryReport{Confirmed: []string{}, RolledBack: []string{}, Failed: []string{}}
	for _, r := range stuck {
		state, err := c.recover(ctx, r.ID)
		switch {
		case err != nil:
			c.opts.Logger.Error("recovery_failed", "reservation_id", r.ID, "err", err)
			report.Failed = append(report.Failed, r.ID)
		case state == ReservationConfirmed:
			report.Confirmed = append(report.Confirmed, r.ID)
		case state == ReservationRolledBack:
			report.RolledBack = append(report.RolledBack, r.ID)
		}
	}
	if len(stuck) > 0 {
		c.opts.Logger.Info("reservation_recovery",
			"confirmed", len(report.Confirmed), "rolled_back", len(report.RolledBack), "failed", len(report.Failed))
	}
	return report, nil
}

// recover resolves one reservation and returns the state it moved to, or
// an empty state when it was no longer reserved.
func (c *Coordinator) recover(ctx context.Context, id string) (ReservationState, error) {
	const reason = "recovered: withdrawal record was never created"
	if _, ok := c.recorder.(txWithdrawalRecorder); !ok {
		return c.recoverExternal(ctx, id, reason)
	}

	var (
		out      *Reservation
		reversal *JournalEntry
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		out, reversal = nil, nil
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		if r.State != ReservationReserved {
			return nil
		}
		w, err := tx.FindWithdrawalByReservation(ctx, id)
		switch {
		case err == nil && w.Status != WithdrawalCancelled:
			if err := c.confirmLocked(ctx, tx, r, w.ID); err != nil {
				return err
			}
		case err == nil || errors.Is(err, ErrNotFound):
			if reversal, err = c.rollbackLocked(ctx, tx, r, reason); err != nil {
				return err
			}
		default:
			return fmt.Errorf("find withdrawal: %w", err)
		}
		out = r
		return nil
	})
	if err != nil || out == nil {
		return "", err
	}
	if reversal != nil {
		c.engine.committed(ctx, reversal)
		c.resolved(ctx, out, events.TypeWithdrawalRolledBack)
	} else {
		c.resolved(ctx, out, events.TypeWithdrawalConfirmed)
	}
	return out.State, nil
}

// recoverExternal resolves a reservation whose withdrawal lives outside the
// ledger store. The record is read first; the request path cancels its own
// record if this rollback wins.
func (c *Coordinator) recoverExternal(ctx context.Context, id, reason string) (ReservationState, error) {
	w, err := c.recorder.FindByReservation(ctx, id)
	var r *Reservation
	switch {
	case err == nil && w.Status != WithdrawalCancelled:
		r, err = c.confirm(ctx, id, w.ID)
	case err == nil || errors.Is(err, ErrNotFound):
		r, err = c.rollback(ctx, id, reason)
	default:
		return "", fmt.Errorf("find withdrawal: %w", err)
	}
	var te *InvalidTransitionError
	if errors.As(err, &te) {
		// The request resolved it first.
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return r.State, nil
}

// GetReservation returns one reservation.
func (c *Coordinator) GetReservation(ctx context.Context, id string) (*Reservation, error) {
	return c.store.GetReservation(ctx, id)
}

func (c *Coordinator) ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error) {
	return c.store.ListReservations(ctx, filter)
}

// GetWithdrawal returns a materialised withdrawal request.
func (c *Coordinator) GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	return c.store.GetWithdrawal(ctx, id)
}

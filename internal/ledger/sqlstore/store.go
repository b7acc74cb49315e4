// Package sqlstore implements ledger.Store on SQLite through database/sql.
// SQLite has a single writer, so the pool is limited to one connection and
// every transaction runs serially; row locks are implicit.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/example/gateway-ledger/internal/ledger"
)

//go:embed schema.sql
var schema string

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a ledger.Store backed by SQLite.
type Store struct {
	queries
	db *sql.DB
}

// Open opens dsn (for example ":memory:" or "file:ledger.db") and applies
// the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and applies the schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{queries: queries{q: db}, db: db}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txStore{queries: queries{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context, fn func(ctx context.Context, q ledger.Queries) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer sqlTx.Rollback()
	return fn(ctx, queries{q: sqlTx})
}

type txStore struct {
	queries
}

func (t *txStore) InsertAccount(ctx context.Context, a ledger.Account) error {
	var entityType, entityID sql.NullString
	if a.Entity != nil {
		entityType = sql.NullString{String: string(a.Entity.Type), Valid: true}
		entityID = sql.NullString{String: a.Entity.ID, Valid: true}
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO accounts (code, name, account_type, entity_type, entity_id, current_balance, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, a.Code, a.Name, a.Type, entityType, entityID, toMicros(a.CreatedAt))
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "entity") {
			return &ledger.Error{Kind: ledger.KindDuplicateCode, Op: "insert account", Msg: fmt.Sprintf("%s already owns an account", a.Entity)}
		}
		return ledger.DuplicateCode(a.Code)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// LockAccounts reads the accounts; the single connection already gives this
// transaction exclusive access.
func (t *txStore) LockAccounts(ctx context.Context, codes []string) (map[string]*ledger.Account, error) {
	out := make(map[string]*ledger.Account, len(codes))
	for _, code := range codes {
		a, err := t.GetAccount(ctx, code)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[code] = a
	}
	return out, nil
}

func (t *txStore) NextEntryNumber(ctx context.Context) (int64, error) {
	var n int64
	err := t.q.QueryRowContext(ctx, `
		UPDATE ledger_sequences SET last_value = last_value + 1
		WHERE name = 'journal_entries'
		RETURNING last_value
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next entry number: %w", err)
	}
	return n, nil
}

func (t *txStore) InsertEntry(ctx context.Context, e *ledger.JournalEntry) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO journal_entries
			(entry_number, entry_date, reference_type, reference_id, description, total_amount, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EntryNumber, toMicros(e.EntryDate), e.ReferenceType, e.ReferenceID, e.Description,
		e.TotalAmount, e.Status, e.CreatedBy, toMicros(e.CreatedAt))
	if isUniqueViolation(err) {
		return ledger.DuplicatePosting(e.ReferenceType, e.ReferenceID)
	}
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	for _, l := range e.Lines {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO journal_lines
				(entry_number, line_no, account_code, entry_type, amount, balance_after, entry_date)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.EntryNumber, l.LineNo, l.AccountCode, l.EntryType, l.Amount, l.BalanceAfter, toMicros(l.EntryDate))
		if err != nil {
			return fmt.Errorf("insert line %d: %w", l.LineNo, err)
		}
	}
	return nil
}

func (t *txStore) SetAccountBalance(ctx context.Context, code string, balance int64) error {
	res, err := t.q.ExecContext(ctx, `UPDATE accounts SET current_balance = ? WHERE code = ?`, balance, code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ledger.NotFound("set balance", "account %q does not exist", code)
	}
	return nil
}

func (t *txStore) InsertReservation(ctx context.Context, r *ledger.Reservation) error {
	dest, err := encodeDestination(r.Destination)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO reservations
			(id, entity_type, entity_id, account_code, amount, state, entry_number,
			 reversal_entry_number, withdrawal_id, destination, failure_reason, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Entity.Type, r.Entity.ID, r.AccountCode, r.Amount, r.State, r.EntryNumber,
		nullInt(r.ReversalEntryNumber), nullString(r.WithdrawalID), dest, r.FailureReason,
		toMicros(r.CreatedAt), nullTime(r.ResolvedAt))
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// LockReservation is a plain read; the single connection already
// serializes writers.
func (t *txStore) LockReservation(ctx context.Context, id string) (*ledger.Reservation, error) {
	return t.GetReservation(ctx, id)
}

func (t *txStore) UpdateReservation(ctx context.Context, r *ledger.Reservation) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE reservations
		SET state = ?, reversal_entry_number = ?, withdrawal_id = ?, failure_reason = ?, resolved_at = ?
		WHERE id = ?
	`, r.State, nullInt(r.ReversalEntryNumber), nullString(r.WithdrawalID), r.FailureReason, nullTime(r.ResolvedAt), r.ID)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ledger.NotFound("update reservation", "reservation %s does not exist", r.ID)
	}
	return nil
}

func (t *txStore) InsertWithdrawal(ctx context.Context, w *ledger.Withdrawal) error {
	dest, err := encodeDestination(w.Destination)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO withdrawal_requests
			(id, reservation_id, entity_type, entity_id, amount, destination, status, entry_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.ReservationID, w.Entity.Type, w.Entity.ID, w.Amount, dest, w.Status, w.EntryNumber, toMicros(w.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (t *txStore) SetWithdrawalStatus(ctx context.Context, id string, status ledger.WithdrawalStatus) error {
	res, err := t.q.ExecContext(ctx, `UPDATE withdrawal_requests SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set withdrawal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ledger.NotFound("set withdrawal status", "withdrawal %s does not exist", id)
	}
	return nil
}

func (t *txStore) InsertAlarm(ctx context.Context, a *ledger.IntegrityAlarm) error {
	failures, err := json.Marshal(a.Failures)
	if err != nil {
		return fmt.Errorf("encode alarm failures: %w", err)
	}
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO integrity_alarms (source, failures, raised_at) VALUES (?, ?, ?)
	`, a.Source, string(failures), toMicros(a.RaisedAt))
	if err != nil {
		return fmt.Errorf("insert alarm: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (t *txStore) AcknowledgeAlarm(ctx context.Context, id int64, actor, note string, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE integrity_alarms SET acknowledged_at = ?, acknowledged_by = ?, note = ?
		WHERE id = ? AND acknowledged_at IS NULL
	`, toMicros(at), actor, note, id)
	if err != nil {
		return fmt.Errorf("acknowledge alarm: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return ledger.NotFound("acknowledge alarm", "alarm %d is not active", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

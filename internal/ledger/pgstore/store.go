// Package pgstore implements ledger.Store on PostgreSQL. Read-write work runs
// in SERIALIZABLE transactions that are retried on serialization failures,
// and accounts touched by a posting are row-locked in code order.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/gateway-ledger/internal/ledger"
)

const (
	maxRetries      = 3
	txTimeout       = 5 * time.Second
	snapshotTimeout = 30 * time.Second
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a ledger.Store backed by a pgx connection pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies the connection. Run Migrate first on a
// fresh database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithTx runs fn in a SERIALIZABLE transaction, retrying it when Postgres
// reports a serialization failure or deadlock.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction failed after %d retries due to serialization failure: %w", maxRetries, err)
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(txCtx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(txCtx))

	if err := fn(txCtx, &txStore{queries: queries{q: tx}, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(txCtx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Snapshot runs fn in a read-only REPEATABLE READ transaction so every query
// sees the same committed state.
func (s *Store) Snapshot(ctx context.Context, fn func(ctx context.Context, q ledger.Queries) error) error {
	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(snapCtx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(snapCtx))
	return fn(snapCtx, queries{q: tx})
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

type txStore struct {
	queries
	tx pgx.Tx
}

func (t *txStore) InsertAccount(ctx context.Context, a ledger.Account) error {
	var entityType, entityID *string
	if a.Entity != nil {
		et, id := string(a.Entity.Type), a.Entity.ID
		entityType, entityID = &et, &id
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO accounts (code, name, account_type, entity_type, entity_id, current_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)
	`, a.Code, a.Name, string(a.Type), entityType, entityID, a.CreatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "accounts_entity_key" {
			return &ledger.Error{Kind: ledger.KindDuplicateCode, Op: "insert account", Msg: fmt.Sprintf("%s already owns an account", a.Entity)}
		}
		return ledger.DuplicateCode(a.Code)
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// LockAccounts takes row locks with SELECT ... FOR UPDATE. The ORDER BY keeps
// the lock order identical across transactions.
func (t *txStore) LockAccounts(ctx context.Context, codes []string) (map[string]*ledger.Account, error) {
	rows, err := t.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = ANY($1) ORDER BY code FOR UPDATE`, codes)
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*ledger.Account, len(codes))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locked account: %w", err)
		}
		out[a.Code] = a
	}
	return out, rows.Err()
}

// NextEntryNumber increments the sequence row. The row lock it takes is held
// until commit, so numbers are handed out in commit order without gaps.
func (t *txStore) NextEntryNumber(ctx context.Context) (int64, error) {
	var n int64
	err := t.q.QueryRow(ctx, `
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
	_, err := t.q.Exec(ctx, `
		INSERT INTO journal_entries
			(entry_number, entry_date, reference_type, reference_id, description, total_amount, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.EntryNumber, e.EntryDate, string(e.ReferenceType), e.ReferenceID, e.Description,
		e.TotalAmount, string(e.Status), e.CreatedBy, e.CreatedAt)
	if constraint, ok := uniqueViolation(err); ok && constraint == "journal_entries_reference_key" {
		return ledger.DuplicatePosting(e.ReferenceType, e.ReferenceID)
	}
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	batch := &pgx.Batch{}
	for _, l := range e.Lines {
		batch.Queue(`
			INSERT INTO journal_lines
				(entry_number, line_no, account_code, entry_type, amount, balance_after, entry_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.EntryNumber, l.LineNo, l.AccountCode, string(l.EntryType), l.Amount, l.BalanceAfter, l.EntryDate)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

func (t *txStore) SetAccountBalance(ctx context.Context, code string, balance int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE accounts SET current_balance = $1 WHERE code = $2`, balance, code)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ledger.NotFound("set balance", "account %q does not exist", code)
	}
	return nil
}

func (t *txStore) InsertReservation(ctx context.Context, r *ledger.Reservation) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO reservations
			(id, entity_type, entity_id, account_code, amount, state, entry_number,
			 reversal_entry_number, withdrawal_id, destination, failure_reason, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, r.ID, string(r.Entity.Type), r.Entity.ID, r.AccountCode, r.Amount, string(r.State), r.EntryNumber,
		optionalInt(r.ReversalEntryNumber), optionalString(r.WithdrawalID), r.Destination, r.FailureReason,
		r.CreatedAt, r.ResolvedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *txStore) LockReservation(ctx context.Context, id string) (*ledger.Reservation, error) {
	if uuid.Validate(id) != nil {
		return nil, ledger.NotFound("lock reservation", "reservation %s does not exist", id)
	}
	r, err := scanReservation(t.q.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("lock reservation", "reservation %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	return r, nil
}

func (t *txStore) UpdateReservation(ctx context.Context, r *ledger.Reservation) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE reservations
		SET state = $1, reversal_entry_number = $2, withdrawal_id = $3, failure_reason = $4, resolved_at = $5
		WHERE id = $6
	`, string(r.State), optionalInt(r.ReversalEntryNumber), optionalString(r.WithdrawalID), r.FailureReason, r.ResolvedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ledger.NotFound("update reservation", "reservation %s does not exist", r.ID)
	}
	return nil
}

func (t *txStore) InsertWithdrawal(ctx context.Context, w *ledger.Withdrawal) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO withdrawal_requests
			(id, reservation_id, entity_type, entity_id, amount, destination, status, entry_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, w.ID, w.ReservationID, string(w.Entity.Type), w.Entity.ID, w.Amount, w.Destination, string(w.Status), w.EntryNumber, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

func (t *txStore) SetWithdrawalStatus(ctx context.Context, id string, status ledger.WithdrawalStatus) error {
	tag, err := t.q.Exec(ctx, `UPDATE withdrawal_requests SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("set withdrawal status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ledger.NotFound("set withdrawal status", "withdrawal %s does not exist", id)
	}
	return nil
}

func (t *txStore) InsertAlarm(ctx context.Context, a *ledger.IntegrityAlarm) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO integrity_alarms (source, failures, raised_at) VALUES ($1, $2, $3)
		RETURNING id
	`, a.Source, a.Failures, a.RaisedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert alarm: %w", err)
	}
	return nil
}

func (t *txStore) AcknowledgeAlarm(ctx context.Context, id int64, actor, note string, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE integrity_alarms SET acknowledged_at = $1, acknowledged_by = $2, note = $3
		WHERE id = $4 AND acknowledged_at IS NULL
	`, at, actor, note, id)
	if err != nil {
		return fmt.Errorf("acknowledge alarm: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ledger.NotFound("acknowledge alarm", "alarm %d is not active", id)
	}
	return nil
}

func optionalInt(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

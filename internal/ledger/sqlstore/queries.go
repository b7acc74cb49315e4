package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/gateway-ledger/internal/ledger"
)

type queries struct {
	q queryer
}

type rowScanner interface {
	Scan(dest ...any) error
}

const accountColumns = `code, name, account_type, entity_type, entity_id, current_balance, created_at`

func scanAccount(row rowScanner, extra ...any) (*ledger.Account, error) {
	var (
		a                    ledger.Account
		entityType, entityID sql.NullString
		createdAt            int64
	)
	dest := append([]any{&a.Code, &a.Name, &a.Type, &entityType, &entityID, &a.CurrentBalance, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if entityType.Valid {
		a.Entity = &ledger.EntityRef{Type: ledger.EntityType(entityType.String), ID: entityID.String}
	}
	a.CreatedAt = fromMicros(createdAt)
	return &a, nil
}

func (s queries) GetAccount(ctx context.Context, code string) (*ledger.Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("get account", "account %q does not exist", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s queries) FindEntityAccount(ctx context.Context, entity ledger.EntityRef) (*ledger.Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE entity_type = ? AND entity_id = ?`, entity.Type, entity.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("find entity account", "%s has no account", entity)
	}
	if err != nil {
		return nil, fmt.Errorf("find entity account: %w", err)
	}
	return a, nil
}

func (s queries) ListAccounts(ctx context.Context, filter ledger.AccountFilter) ([]ledger.Account, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "account_type = ?")
		args = append(args, filter.Type)
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY code"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := []ledger.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const totalsSelect = `
	SELECT a.code, a.name, a.account_type, a.entity_type, a.entity_id, a.current_balance, a.created_at,
		COALESCE(SUM(CASE WHEN l.entry_type = 'debit' THEN l.amount ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN l.entry_type = 'credit' THEN l.amount ELSE 0 END), 0)
	FROM accounts a`

func (s queries) totals(ctx context.Context, query string, args ...any) ([]ledger.AccountTotal, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("account totals: %w", err)
	}
	defer rows.Close()

	out := []ledger.AccountTotal{}
	for rows.Next() {
		var t ledger.AccountTotal
		a, err := scanAccount(rows, &t.Debits, &t.Credits)
		if err != nil {
			return nil, fmt.Errorf("scan totals: %w", err)
		}
		t.Account = *a
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s queries) SumAccountLines(ctx context.Context, code string) (int64, error) {
	totals, err := s.totals(ctx, totalsSelect+`
		LEFT JOIN journal_lines l ON l.account_code = a.code
		WHERE a.code = ?
		GROUP BY a.code`, code)
	if err != nil {
		return 0, err
	}
	if len(totals) == 0 {
		return 0, ledger.NotFound("sum account lines", "account %q does not exist", code)
	}
	return totals[0].Balance(), nil
}

func (s queries) AccountTotals(ctx context.Context) ([]ledger.AccountTotal, error) {
	return s.totals(ctx, totalsSelect+`
		LEFT JOIN journal_lines l ON l.account_code = a.code
		GROUP BY a.code
		ORDER BY a.code`)
}

func (s queries) Activity(ctx context.Context, from, to time.Time) ([]ledger.AccountTotal, error) {
	return s.totals(ctx, totalsSelect+`
		LEFT JOIN journal_lines l ON l.account_code = a.code AND l.entry_date >= ? AND l.entry_date < ?
		GROUP BY a.code
		ORDER BY a.code`, toMicros(from), toMicros(to))
}

func (s queries) Statement(ctx context.Context, code string, limit int) ([]ledger.JournalLine, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT l.entry_number, l.line_no, l.account_code, l.entry_type, l.amount, l.balance_after, l.entry_date,
			e.reference_type, e.reference_id, e.description
		FROM journal_lines l
		JOIN journal_entries e ON e.entry_number = l.entry_number
		WHERE l.account_code = ?
		ORDER BY l.entry_date DESC, l.entry_number DESC, l.line_no DESC
		LIMIT ?
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("statement: %w", err)
	}
	defer rows.Close()

	out := []ledger.JournalLine{}
	for rows.Next() {
		var (
			l    ledger.JournalLine
			date int64
		)
		if err := rows.Scan(&l.EntryNumber, &l.LineNo, &l.AccountCode, &l.EntryType, &l.Amount, &l.BalanceAfter, &date,
			&l.ReferenceType, &l.ReferenceID, &l.Description); err != nil {
			return nil, fmt.Errorf("scan statement line: %w", err)
		}
		l.EntryDate = fromMicros(date)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s queries) GetEntry(ctx context.Context, number int64) (*ledger.JournalEntry, error) {
	var (
		e                    ledger.JournalEntry
		entryDate, createdAt int64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT entry_number, entry_date, reference_type, reference_id, description, total_amount, status, created_by, created_at
		FROM journal_entries WHERE entry_number = ?
	`, number).Scan(&e.EntryNumber, &entryDate, &e.ReferenceType, &e.ReferenceID, &e.Description,
		&e.TotalAmount, &e.Status, &e.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("get entry", "entry %d does not exist", number)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	e.EntryDate = fromMicros(entryDate)
	e.CreatedAt = fromMicros(createdAt)

	rows, err := s.q.QueryContext(ctx, `
		SELECT line_no, account_code, entry_type, amount, balance_after, entry_date
		FROM journal_lines WHERE entry_number = ? ORDER BY line_no
	`, number)
	if err != nil {
		return nil, fmt.Errorf("get entry lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l    ledger.JournalLine
			date int64
		)
		if err := rows.Scan(&l.LineNo, &l.AccountCode, &l.EntryType, &l.Amount, &l.BalanceAfter, &date); err != nil {
			return nil, fmt.Errorf("scan entry line: %w", err)
		}
		l.EntryNumber = e.EntryNumber
		l.EntryDate = fromMicros(date)
		l.ReferenceType, l.ReferenceID, l.Description = e.ReferenceType, e.ReferenceID, e.Description
		e.Lines = append(e.Lines, l)
	}
	return &e, rows.Err()
}

func (s queries) FindEntryByReference(ctx context.Context, ref ledger.ReferenceType, id string) (*ledger.JournalEntry, error) {
	var number int64
	err := s.q.QueryRowContext(ctx,
		`SELECT entry_number FROM journal_entries WHERE reference_type = ? AND reference_id = ?`, ref, id).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("find entry", "no entry for %s/%s", ref, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find entry by reference: %w", err)
	}
	return s.GetEntry(ctx, number)
}

func (s queries) EntryStats(ctx context.Context) (ledger.EntryStats, error) {
	var st ledger.EntryStats
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(entry_number), 0), COALESCE(MAX(entry_number), 0) FROM journal_entries
	`).Scan(&st.Count, &st.MinNumber, &st.MaxNumber)
	if err != nil {
		return st, fmt.Errorf("entry counts: %w", err)
	}
	err = s.q.QueryRowContext(ctx,
		`SELECT last_value FROM ledger_sequences WHERE name = 'journal_entries'`).Scan(&st.SequenceValue)
	if err != nil {
		return st, fmt.Errorf("entry sequence: %w", err)
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT e.entry_number
		FROM journal_entries e
		LEFT JOIN journal_lines l ON l.entry_number = e.entry_number
		GROUP BY e.entry_number, e.total_amount
		HAVING COALESCE(SUM(CASE WHEN l.entry_type = 'debit' THEN l.amount ELSE 0 END), 0) <> e.total_amount
			OR COALESCE(SUM(CASE WHEN l.entry_type = 'credit' THEN l.amount ELSE 0 END), 0) <> e.total_amount
		ORDER BY e.entry_number
	`)
	if err != nil {
		return st, fmt.Errorf("unbalanced entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return st, err
		}
		st.UnbalancedRefs = append(st.UnbalancedRefs, n)
	}
	return st, rows.Err()
}

const reservationColumns = `id, entity_type, entity_id, account_code, amount, state, entry_number,
	reversal_entry_number, withdrawal_id, destination, failure_reason, created_at, resolved_at`

func scanReservation(row rowScanner) (*ledger.Reservation, error) {
	var (
		r            ledger.Reservation
		reversal     sql.NullInt64
		withdrawalID sql.NullString
		dest         string
		createdAt    int64
		resolvedAt   sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Entity.Type, &r.Entity.ID, &r.AccountCode, &r.Amount, &r.State, &r.EntryNumber,
		&reversal, &withdrawalID, &dest, &r.FailureReason, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}
	r.ReversalEntryNumber = reversal.Int64
	r.WithdrawalID = withdrawalID.String
	r.CreatedAt = fromMicros(createdAt)
	if resolvedAt.Valid {
		t := fromMicros(resolvedAt.Int64)
		r.ResolvedAt = &t
	}
	if err := json.Unmarshal([]byte(dest), &r.Destination); err != nil {
		return nil, fmt.Errorf("decode destination: %w", err)
	}
	return &r, nil
}

func (s queries) GetReservation(ctx context.Context, id string) (*ledger.Reservation, error) {
	r, err := scanReservation(s.q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("get reservation", "reservation %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (s queries) ListReservations(ctx context.Context, filter ledger.ReservationFilter) ([]ledger.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}
	if !filter.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, toMicros(filter.CreatedBefore))
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	out := []ledger.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const withdrawalColumns = `id, reservation_id, entity_type, entity_id, amount, destination, status, entry_number, created_at`

func (s queries) scanWithdrawal(row *sql.Row, op, format string, args ...any) (*ledger.Withdrawal, error) {
	var (
		w         ledger.Withdrawal
		dest      string
		createdAt int64
	)
	err := row.Scan(&w.ID, &w.ReservationID, &w.Entity.Type, &w.Entity.ID, &w.Amount, &dest, &w.Status, &w.EntryNumber, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound(op, format, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal([]byte(dest), &w.Destination); err != nil {
		return nil, fmt.Errorf("decode destination: %w", err)
	}
	w.CreatedAt = fromMicros(createdAt)
	return &w, nil
}

func (s queries) GetWithdrawal(ctx context.Context, id string) (*ledger.Withdrawal, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = ?`, id)
	return s.scanWithdrawal(row, "get withdrawal", "withdrawal %s does not exist", id)
}

func (s queries) FindWithdrawalByReservation(ctx context.Context, reservationID string) (*ledger.Withdrawal, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE reservation_id = ?`, reservationID)
	return s.scanWithdrawal(row, "find withdrawal", "no withdrawal for reservation %s", reservationID)
}

const alarmColumns = `id, source, failures, raised_at, acknowledged_at, acknowledged_by, note`

func (s queries) ActiveAlarm(ctx context.Context) (*ledger.IntegrityAlarm, error) {
	var (
		a        ledger.IntegrityAlarm
		failures string
		raisedAt int64
		ackAt    sql.NullInt64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT `+alarmColumns+` FROM integrity_alarms
		WHERE acknowledged_at IS NULL ORDER BY id LIMIT 1
	`).Scan(&a.ID, &a.Source, &failures, &raisedAt, &ackAt, &a.AcknowledgedBy, &a.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NotFound("active alarm", "no integrity alarm is active")
	}
	if err != nil {
		return nil, fmt.Errorf("active alarm: %w", err)
	}
	if err := json.Unmarshal([]byte(failures), &a.Failures); err != nil {
		return nil, fmt.Errorf("decode alarm failures: %w", err)
	}
	a.RaisedAt = fromMicros(raisedAt)
	if ackAt.Valid {
		t := fromMicros(ackAt.Int64)
		a.AcknowledgedAt = &t
	}
	return &a, nil
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func nullInt(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: v != 0} }

func nullString(v string) sql.NullString { return sql.NullString{String: v, Valid: v != ""} }

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func encodeDestination(d ledger.Destination) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode destination: %w", err)
	}
	return string(b), nil
}

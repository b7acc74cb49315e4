package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/gateway-ledger/internal/ledger"
)

type queries struct {
	q querier
}

const accountColumns = `code, name, account_type, entity_type, entity_id, current_balance, created_at`

func scanAccount(row pgx.Row, extra ...any) (*ledger.Account, error) {
	var (
		a                    ledger.Account
		typ                  string
		entityType, entityID *string
	)
	dest := append([]any{&a.Code, &a.Name, &typ, &entityType, &entityID, &a.CurrentBalance, &a.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	a.Type = ledger.AccountType(typ)
	if entityType != nil && entityID != nil {
		a.Entity = &ledger.EntityRef{Type: ledger.EntityType(*entityType), ID: *entityID}
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (s queries) GetAccount(ctx context.Context, code string) (*ledger.Account, error) {
	a, err := scanAccount(s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("get account", "account %q does not exist", code)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s queries) FindEntityAccount(ctx context.Context, entity ledger.EntityRef) (*ledger.Account, error) {
	a, err := scanAccount(s.q.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE entity_type = $1 AND entity_id = $2`, string(entity.Type), entity.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("find entity account", "%s has no account", entity)
	}
	if err != nil {
		return nil, fmt.Errorf("find entity account: %w", err)
	}
	return a, nil
}

// where builds a WHERE clause with numbered placeholders.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (s queries) ListAccounts(ctx context.Context, filter ledger.AccountFilter) ([]ledger.Account, error) {
	var w where
	if filter.Type != "" {
		w.add("account_type = ?", string(filter.Type))
	}
	if filter.EntityType != "" {
		w.add("entity_type = ?", string(filter.EntityType))
	}
	rows, err := s.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts`+w.String()+` ORDER BY code`, w.args...)
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
		COALESCE(SUM(l.amount) FILTER (WHERE l.entry_type = 'debit'), 0)::BIGINT,
		COALESCE(SUM(l.amount) FILTER (WHERE l.entry_type = 'credit'), 0)::BIGINT
	FROM accounts a`

func (s queries) totals(ctx context.Context, query string, args ...any) ([]ledger.AccountTotal, error) {
	rows, err := s.q.Query(ctx, query, args...)
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
		WHERE a.code = $1
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
		LEFT JOIN journal_lines l ON l.account_code = a.code AND l.entry_date >= $1 AND l.entry_date < $2
		GROUP BY a.code
		ORDER BY a.code`, from, to)
}

func (s queries) Statement(ctx context.Context, code string, limit int) ([]ledger.JournalLine, error) {
	rows, err := s.q.Query(ctx, `
		SELECT l.entry_number, l.line_no, l.account_code, l.entry_type, l.amount, l.balance_after, l.entry_date,
			e.reference_type, e.reference_id, e.description
		FROM journal_lines l
		JOIN journal_entries e ON e.entry_number = l.entry_number
		WHERE l.account_code = $1
		ORDER BY l.entry_date DESC, l.entry_number DESC, l.line_no DESC
		LIMIT $2
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("statement: %w", err)
	}
	defer rows.Close()

	out := []ledger.JournalLine{}
	for rows.Next() {
		var (
			l                 ledger.JournalLine
			entryType, refTyp string
		)
		if err := rows.Scan(&l.EntryNumber, &l.LineNo, &l.AccountCode, &entryType, &l.Amount, &l.BalanceAfter, &l.EntryDate,
			&refTyp, &l.ReferenceID, &l.Description); err != nil {
			return nil, fmt.Errorf("scan statement line: %w", err)
		}
		l.EntryType = ledger.EntryType(entryType)
		l.ReferenceType = ledger.ReferenceType(refTyp)
		l.EntryDate = l.EntryDate.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s queries) GetEntry(ctx context.Context, number int64) (*ledger.JournalEntry, error) {
	var (
		e              ledger.JournalEntry
		refTyp, status string
	)
	err := s.q.QueryRow(ctx, `
		SELECT entry_number, entry_date, reference_type, reference_id, description, total_amount, status, created_by, created_at
		FROM journal_entries WHERE entry_number = $1
	`, number).Scan(&e.EntryNumber, &e.EntryDate, &refTyp, &e.ReferenceID, &e.Description,
		&e.TotalAmount, &status, &e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("get entry", "entry %d does not exist", number)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	e.ReferenceType = ledger.ReferenceType(refTyp)
	e.Status = ledger.EntryStatus(status)
	e.EntryDate = e.EntryDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()

	rows, err := s.q.Query(ctx, `
		SELECT line_no, account_code, entry_type, amount, balance_after, entry_date
		FROM journal_lines WHERE entry_number = $1 ORDER BY line_no
	`, number)
	if err != nil {
		return nil, fmt.Errorf("get entry lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l         ledger.JournalLine
			entryType string
		)
		if err := rows.Scan(&l.LineNo, &l.AccountCode, &entryType, &l.Amount, &l.BalanceAfter, &l.EntryDate); err != nil {
			return nil, fmt.Errorf("scan entry line: %w", err)
		}
		l.EntryNumber = e.EntryNumber
		l.EntryType = ledger.EntryType(entryType)
		l.EntryDate = l.EntryDate.UTC()
		l.ReferenceType, l.ReferenceID, l.Description = e.ReferenceType, e.ReferenceID, e.Description
		e.Lines = append(e.Lines, l)
	}
	return &e, rows.Err()
}

func (s queries) FindEntryByReference(ctx context.Context, ref ledger.ReferenceType, id string) (*ledger.JournalEntry, error) {
	var number int64
	err := s.q.QueryRow(ctx,
		`SELECT entry_number FROM journal_entries WHERE reference_type = $1 AND reference_id = $2`, string(ref), id).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("find entry", "no entry for %s/%s", ref, id)
	}
	if err != nil {
		return nil, fmt.Errorf("find entry by reference: %w", err)
	}
	return s.GetEntry(ctx, number)
}

func (s queries) EntryStats(ctx context.Context) (ledger.EntryStats, error) {
	var st ledger.EntryStats
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(MIN(entry_number), 0), COALESCE(MAX(entry_number), 0),
			(SELECT last_value FROM ledger_sequences WHERE name = 'journal_entries')
		FROM journal_entries
	`).Scan(&st.Count, &st.MinNumber, &st.MaxNumber, &st.SequenceValue)
	if err != nil {
		return st, fmt.Errorf("entry stats: %w", err)
	}

	rows, err := s.q.Query(ctx, `
		SELECT e.entry_number
		FROM journal_entries e
		LEFT JOIN journal_lines l ON l.entry_number = e.entry_number
		GROUP BY e.entry_number, e.total_amount
		HAVING COALESCE(SUM(l.amount) FILTER (WHERE l.entry_type = 'debit'), 0) <> e.total_amount
			OR COALESCE(SUM(l.amount) FILTER (WHERE l.entry_type = 'credit'), 0) <> e.total_amount
		ORDER BY e.entry_number
	`)
	if err != nil {
		return st, fmt.Errorf("unbalanced entries: %w", err)
	}
	st.UnbalancedRefs, err = pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return st, fmt.Errorf("scan unbalanced entries: %w", err)
	}
	return st, nil
}

const reservationColumns = `id::text, entity_type, entity_id, account_code, amount, state, entry_number,
	reversal_entry_number, withdrawal_id::text, destination, failure_reason, created_at, resolved_at`

func scanReservation(row pgx.Row) (*ledger.Reservation, error) {
	var (
		r                 ledger.Reservation
		entityType, state string
		reversal          *int64
		withdrawalID      *string
	)
	if err := row.Scan(&r.ID, &entityType, &r.Entity.ID, &r.AccountCode, &r.Amount, &state, &r.EntryNumber,
		&reversal, &withdrawalID, &r.Destination, &r.FailureReason, &r.CreatedAt, &r.ResolvedAt); err != nil {
		return nil, err
	}
	r.Entity.Type = ledger.EntityType(entityType)
	r.State = ledger.ReservationState(state)
	if reversal != nil {
		r.ReversalEntryNumber = *reversal
	}
	if withdrawalID != nil {
		r.WithdrawalID = *withdrawalID
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if r.ResolvedAt != nil {
		t := r.ResolvedAt.UTC()
		r.ResolvedAt = &t
	}
	return &r, nil
}

func (s queries) GetReservation(ctx context.Context, id string) (*ledger.Reservation, error) {
	if uuid.Validate(id) != nil {
		return nil, ledger.NotFound("get reservation", "reservation %s does not exist", id)
	}
	r, err := scanReservation(s.q.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("get reservation", "reservation %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (s queries) ListReservations(ctx context.Context, filter ledger.ReservationFilter) ([]ledger.Reservation, error) {
	var w where
	if filter.State != "" {
		w.add("state = ?", string(filter.State))
	}
	if !filter.CreatedBefore.IsZero() {
		w.add("created_at < ?", filter.CreatedBefore)
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations` + w.String() + ` ORDER BY created_at`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.q.Query(ctx, query, w.args...)
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

const withdrawalColumns = `id::text, reservation_id::text, entity_type, entity_id, amount, destination, status, entry_number, created_at`

func scanWithdrawal(row pgx.Row, op, format string, args ...any) (*ledger.Withdrawal, error) {
	var (
		w                  ledger.Withdrawal
		entityType, status string
	)
	err := row.Scan(&w.ID, &w.ReservationID, &entityType, &w.Entity.ID, &w.Amount, &w.Destination, &status, &w.EntryNumber, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound(op, format, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	w.Entity.Type = ledger.EntityType(entityType)
	w.Status = ledger.WithdrawalStatus(status)
	w.CreatedAt = w.CreatedAt.UTC()
	return &w, nil
}

func (s queries) GetWithdrawal(ctx context.Context, id string) (*ledger.Withdrawal, error) {
	if uuid.Validate(id) != nil {
		return nil, ledger.NotFound("get withdrawal", "withdrawal %s does not exist", id)
	}
	row := s.q.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1`, id)
	return scanWithdrawal(row, "get withdrawal", "withdrawal %s does not exist", id)
}

func (s queries) FindWithdrawalByReservation(ctx context.Context, reservationID string) (*ledger.Withdrawal, error) {
	if uuid.Validate(reservationID) != nil {
		return nil, ledger.NotFound("find withdrawal", "no withdrawal for reservation %s", reservationID)
	}
	row := s.q.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE reservation_id = $1`, reservationID)
	return scanWithdrawal(row, "find withdrawal", "no withdrawal for reservation %s", reservationID)
}

const alarmColumns = `id, source, failures, raised_at, acknowledged_at, acknowledged_by, note`

func (s queries) ActiveAlarm(ctx context.Context) (*ledger.IntegrityAlarm, error) {
	var a ledger.IntegrityAlarm
	err := s.q.QueryRow(ctx, `
		SELECT `+alarmColumns+` FROM integrity_alarms
		WHERE acknowledged_at IS NULL ORDER BY id LIMIT 1
	`).Scan(&a.ID, &a.Source, &a.Failures, &a.RaisedAt, &a.AcknowledgedAt, &a.AcknowledgedBy, &a.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.NotFound("active alarm", "no integrity alarm is active")
	}
	if err != nil {
		return nil, fmt.Errorf("active alarm: %w", err)
	}
	a.RaisedAt = a.RaisedAt.UTC()
	return &a, nil
}

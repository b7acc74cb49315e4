package ledger

import (
	"context"
	"time"
)

// Queries are the read operations every store exposes, both on its own and
// inside a transaction. Lookups of a single row return an error of kind
// KindNotFound when the row is absent.
type Queries interface {
	GetAccount(ctx context.Context, code string) (*Account, error)
	FindEntityAccount(ctx context.Context, entity EntityRef) (*Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)

	// SumAccountLines recomputes the signed balance of code from its lines.
	SumAccountLines(ctx context.Context, code string) (int64, error)
	// AccountTotals returns lifetime debit and credit totals for every account.
	AccountTotals(ctx context.Context) ([]AccountTotal, error)
	// Activity returns debit and credit totals of lines dated in [from, to).
	Activity(ctx context.Context, from, to time.Time) ([]AccountTotal, error)
	// Statement returns the newest lines of code, newest first.
	Statement(ctx context.Context, code string, limit int) ([]JournalLine, error)

	GetEntry(ctx context.Context, number int64) (*JournalEntry, error)
	FindEntryByReference(ctx context.Context, ref ReferenceType, id string) (*JournalEntry, error)
	EntryStats(ctx context.Context) (EntryStats, error)

	GetReservation(ctx context.Context, id string) (*Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	FindWithdrawalByReservation(ctx context.Context, reservationID string) (*Withdrawal, error)

	// ActiveAlarm returns the unacknowledged integrity alarm, if any.
	ActiveAlarm(ctx context.Context) (*IntegrityAlarm, error)
}

// Tx is a read-write unit of work. Nothing it writes is visible to other
// callers until the enclosing WithTx returns nil.
type Tx interface {
	Queries

	// InsertAccount fails with KindDuplicateCode when the code is taken.
	InsertAccount(ctx context.Context, a Account) error
	// LockAccounts locks the named accounts in the order given and returns
	// the ones that exist. Callers pass codes sorted so lock order is stable.
	LockAccounts(ctx context.Context, codes []string) (map[string]*Account, error)
	// NextEntryNumber allocates the next gapless entry number. The allocation
	// is released if the transaction rolls back.
	NextEntryNumber(ctx context.Context) (int64, error)
	// InsertEntry writes the entry and its lines. It fails with
	// KindDuplicatePosting when the reference pair is taken.
	InsertEntry(ctx context.Context, e *JournalEntry) error
	SetAccountBalance(ctx context.Context, code string, balance int64) error

	InsertReservation(ctx context.Context, r *Reservation) error
	// LockReservation reads the reservation and holds its row until the
	// transaction ends.
	LockReservation(ctx context.Context, id string) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error
	InsertWithdrawal(ctx context.Context, w *Withdrawal) error
	SetWithdrawalStatus(ctx context.Context, id string, status WithdrawalStatus) error

	// InsertAlarm records a new alarm and sets its ID.
	InsertAlarm(ctx context.Context, a *IntegrityAlarm) error
	AcknowledgeAlarm(ctx context.Context, id int64, actor, note string, at time.Time) error
}

// Store is the persistence contract of the ledger.
type Store interface {
	Queries

	// WithTx runs fn in a read-write transaction and commits when fn
	// returns nil. Implementations may run fn more than once on
	// serialization failures, so fn must not have outside effects.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Snapshot runs fn against one consistent read-only view.
	Snapshot(ctx context.Context, fn func(ctx context.Context, q Queries) error) error
}

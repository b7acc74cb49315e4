package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/example/gateway-ledger/internal/events"
	"github.com/example/gateway-ledger/pkg/audit"
)

// Recorder receives operational measurements. internal/metrics implements it.
type Recorder interface {
	EntryPosted(referenceType string, amount int64, replayed bool)
	OperationFailed(operation, kind string)
	ReservationResolved(state string)
	IntegrityChecked(healthy bool, d time.Duration)
}

// Auditor records privileged actions. *audit.ChainLogger implements it.
type Auditor interface {
	Record(ev audit.Event) *audit.LogEntry
}

type nopRecorder struct{}

func (nopRecorder) EntryPosted(string, int64, bool) {}
func (nopRecorder) OperationFailed(string, string) {}
func (nopRecorder) ReservationResolved(string) {}
func (nopRecorder) IntegrityChecked(bool, time.Duration) {}

type nopAuditor struct{}

func (nopAuditor) Record(audit.Event) *audit.LogEntry { return nil }

// Options carries the collaborators shared by the ledger services.
type Options struct {
	Logger    *slog.Logger
	Publisher events.Publisher
	Recorder  Recorder
	Auditor   Auditor
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Publisher == nil {
		o.Publisher = events.Noop{}
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Auditor == nil {
		o.Auditor = nopAuditor{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

const (
	maxReferenceIDLen = 100
	maxDescriptionLen = 500
)

// Engine is the only writer of journal rows and cached balances.
type Engine struct {
	store Store
	opts  Options
}

func NewEngine(store Store, opts Options) *Engine {
	return &Engine{store: store, opts: opts.withDefaults()}
}

// Post appends a balanced entry and updates the running balance of every
// account it touches, all in one transaction. Posting a reference pair that
// already exists with the same lines returns the stored entry with Replayed
// set; the same pair with different lines fails with ErrDuplicatePosting.
func (e *Engine) Post(ctx context.Context, req PostRequest) (*JournalEntry, error) {
	entry, err := e.postTx(ctx, req, nil)
	if err != nil {
		e.failed("post", err, slog.String("reference_type", string(req.ReferenceType)), slog.String("reference_id", req.ReferenceID))
		return nil, err
	}
	e.committed(ctx, entry)
	return entry, nil
}

// postTx runs post in its own transaction, after guard when one is given.
// The caller runs committed.
func (e *Engine) postTx(ctx context.Context, req PostRequest, guard func(ctx context.Context, tx Tx) error) (*JournalEntry, error) {
	var entry *JournalEntry
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if guard != nil {
			if err := guard(ctx, tx); err != nil {
				return err
			}
		}
		var err error
		entry, err = e.post(ctx, tx, req)
		return err
	})
	if errors.Is(err, ErrDuplicatePosting) {
		// A concurrent post won the unique reference; answer with its entry.
		if existing, ferr := e.store.FindEntryByReference(ctx, req.ReferenceType, req.ReferenceID); ferr == nil {
			if replay, rerr := replayOf(existing, req.Lines); rerr == nil {
				return replay, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Reverse posts the equal and opposite of entry number. Reversing the same
// entry twice returns the first reversal. Adjustments and withdrawal
// reservations cannot be reversed here, and nothing can while an integrity
// alarm is active.
func (e *Engine) Reverse(ctx context.Context, number int64, actor, reason string) (*JournalEntry, error) {
	if actor == "" {
		return nil, validationError("reverse", "actor is required")
	}
	if reason == "" {
		return nil, validationError("reverse", "reason is required")
	}
	var entry *JournalEntry
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := checkNotHalted(ctx, tx, "reverse", "manual reversals"); err != nil {
			return err
		}
		orig, err := tx.GetEntry(ctx, number)
		if err != nil {
			return err
		}
		if err := manuallyReversible(ctx, tx, orig); err != nil {
			return err
		}
		entry, err = e.reverseEntry(ctx, tx, orig, actor, reason)
		return err
	})
	if err != nil {
		e.failed("reverse", err, slog.Int64("entry_number", number))
		return nil, err
	}
	e.committed(ctx, entry)
	return entry, nil
}

// GetEntry returns a posted entry with its lines.
func (e *Engine) GetEntry(ctx context.Context, number int64) (*JournalEntry, error) {
	return e.store.GetEntry(ctx, number)
}

// manuallyReversible rejects entries whose undo belongs to another path:
// adjustments are corrected with another adjustment, and a reservation's
// settlement entry is reversed only by the withdrawal coordinator.
func manuallyReversible(ctx context.Context, tx Tx, orig *JournalEntry) error {
	switch orig.ReferenceType {
	case RefAdjustment:
		return validationError("reverse", "entry %d is an adjustment; correct it with another adjustment", orig.EntryNumber)
	case RefSettlement:
		_, err := tx.GetReservation(ctx, orig.ReferenceID)
		if err == nil {
			return validationError("reverse", "entry %d holds withdrawal reservation %s and is released only by the withdrawal coordinator",
				orig.EntryNumber, orig.ReferenceID)
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (e *Engine) reverse(ctx context.Context, tx Tx, number int64, actor, reason string) (*JournalEntry, error) {
	orig, err := tx.GetEntry(ctx, number)
	if err != nil {
		return nil, err
	}
	return e.reverseEntry(ctx, tx, orig, actor, reason)
}

func (e *Engine) reverseEntry(ctx context.Context, tx Tx, orig *JournalEntry, actor, reason string) (*JournalEntry, error) {
	number := orig.EntryNumber
	if orig.ReferenceType == RefReversal {
		return nil, validationError("reverse", "entry %d is itself a reversal", number)
	}
	lines := make([]LineRequest, 0, len(orig.Lines))
	for _, l := range orig.Lines {
		lines = append(lines, LineRequest{AccountCode: l.AccountCode, EntryType: l.EntryType.Opposite(), Amount: l.Amount})
	}
	return e.post(ctx, tx, PostRequest{
		ReferenceType: RefReversal,
		ReferenceID:   strconv.FormatInt(number, 10),
		Description:   truncate(fmt.Sprintf("reversal of entry %d: %s", number, reason), maxDescriptionLen),
		CreatedBy:     actor,
		Lines:         lines,
	})
}

// post does the work of Post inside tx. Services that need a journal entry
// and other writes in one unit of work call it directly.
func (e *Engine) post(ctx context.Context, tx Tx, req PostRequest) (*JournalEntry, error) {
	total, err := validatePost(req)
	if err != nil {
		return nil, err
	}

	existing, err := tx.FindEntryByReference(ctx, req.ReferenceType, req.ReferenceID)
	switch {
	case err == nil:
		return replayOf(existing, req.Lines)
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("lookup reference: %w", err)
	}

	codes := distinctCodes(req.Lines)
	accounts, err := tx.LockAccounts(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	for _, code := range codes {
		if accounts[code] == nil {
			return nil, newError(KindUnknownAccount, "post", "account %q does not exist", code)
		}
	}

	now := e.opts.Now().UTC().Truncate(time.Microsecond)
	entryDate := req.EntryDate.UTC().Truncate(time.Microsecond)
	if req.EntryDate.IsZero() {
		entryDate = now
	}

	balances := make(map[string]int64, len(codes))
	for _, code := range codes {
		balances[code] = accounts[code].CurrentBalance
	}
	lines := make([]JournalLine, len(req.Lines))
	for i, l := range req.Lines {
		next, ok := addChecked(balances[l.AccountCode], SignedAmount(accounts[l.AccountCode].Type, l.EntryType, l.Amount))
		if !ok {
			return nil, validationError("post", "balance of %s would overflow", l.AccountCode)
		}
		balances[l.AccountCode] = next
		lines[i] = JournalLine{
			LineNo:        i + 1,
			AccountCode:   l.AccountCode,
			EntryType:     l.EntryType,
			Amount:        l.Amount,
			BalanceAfter:  next,
			EntryDate:     entryDate,
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
			Description:   req.Description,
		}
	}

	// The sequence row is the last lock taken so concurrent posts on
	// disjoint accounts only serialize for the tail of the transaction.
	number, err := tx.NextEntryNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate entry number: %w", err)
	}
	for i := range lines {
		lines[i].EntryNumber = number
	}
	entry := &JournalEntry{
		EntryNumber:   number,
		EntryDate:     entryDate,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
		TotalAmount:   total,
		Status:        EntryPosted,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		Lines:         lines,
	}
	if err := tx.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	for _, code := range codes {
		if err := tx.SetAccountBalance(ctx, code, balances[code]); err != nil {
			return nil, fmt.Errorf("update balance of %s: %w", code, err)
		}
	}
	return entry, nil
}

// committed runs the after-commit side effects of a post.
func (e *Engine) committed(ctx context.Context, entry *JournalEntry) {
	e.opts.Recorder.EntryPosted(string(entry.ReferenceType), entry.TotalAmount, entry.Replayed)
	if entry.Replayed {
		e.opts.Logger.Info("journal_replay",
			"entry_number", entry.EntryNumber,
			"reference_type", entry.ReferenceType,
			"reference_id", entry.ReferenceID)
		return
	}
	e.opts.Logger.Info("journal_posted",
		"entry_number", entry.EntryNumber,
		"reference_type", entry.ReferenceType,
		"reference_id", entry.ReferenceID,
		"total_amount", entry.TotalAmount,
		"lines", len(entry.Lines))
	e.publish(ctx, events.Event{
		Type:       events.TypeEntryPosted,
		Key:        strconv.FormatInt(entry.EntryNumber, 10),
		OccurredAt: entry.CreatedAt,
		Payload:    entry,
	})
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.opts.Publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.opts.Logger.Warn("event_publish_failed", "type", ev.Type, "key", ev.Key, "err", err)
	}
}

func (e *Engine) failed(op string, err error, attrs ...any) {
	kind := KindOf(err)
	e.opts.Recorder.OperationFailed(op, string(kind))
	args := append([]any{"op", op, "kind", kind, "err", err}, attrs...)
	if kind == KindInternal || kind == KindReservationFailure || kind == KindIntegrityHalt {
		e.opts.Logger.Error("ledger_operation_failed", args...)
		return
	}
	e.opts.Logger.Warn("ledger_operation_rejected", args...)
}

func validatePost(req PostRequest) (int64, error) {
	const op = "post"
	if !req.ReferenceType.Valid() {
		return 0, validationError(op, "reference_type %q is not supported", req.ReferenceType)
	}
	if req.ReferenceID == "" || len(req.ReferenceID) > maxReferenceIDLen {
		return 0, validationError(op, "reference_id must be between 1 and %d characters", maxReferenceIDLen)
	}
	if len(req.Description) > maxDescriptionLen {
		return 0, validationError(op, "description must be at most %d characters", maxDescriptionLen)
	}
	if len(req.Lines) == 0 {
		return 0, validationError(op, "entry has no lines")
	}

	var debits, credits int64
	for i, l := range req.Lines {
		if l.AccountCode == "" {
			return 0, validationError(op, "line %d has no account code", i+1)
		}
		if l.Amount <= 0 {
			return 0, validationError(op, "line %d amount must be positive", i+1)
		}
		var ok bool
		switch l.EntryType {
		case Debit:
			debits, ok = addChecked(debits, l.Amount)
		case Credit:
			credits, ok = addChecked(credits, l.Amount)
		default:
			return 0, validationError(op, "line %d entry_type must be debit or credit", i+1)
		}
		if !ok {
			return 0, validationError(op, "entry total overflows")
		}
	}
	if debits != credits {
		return 0, newError(KindUnbalancedEntry, op, "debits %d do not equal credits %d", debits, credits)
	}
	return debits, nil
}

// replayOf answers a repeated post with the stored entry, provided the
// caller asked for the same postings.
func replayOf(existing *JournalEntry, lines []LineRequest) (*JournalEntry, error) {
	if !sameLines(existing.Lines, lines) {
		return nil, &Error{
			Kind: KindDuplicatePosting,
			Op:   "post",
			Msg: fmt.Sprintf("reference %s/%s was already posted as entry %d with different lines",
				existing.ReferenceType, existing.ReferenceID, existing.EntryNumber),
		}
	}
	replay := *existing
	replay.Replayed = true
	return &replay, nil
}

func distinctCodes(lines []LineRequest) []string {
	seen := make(map[string]struct{}, len(lines))
	codes := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.AccountCode]; ok {
			continue
		}
		seen[l.AccountCode] = struct{}{}
		codes = append(codes, l.AccountCode)
	}
	sort.Strings(codes)
	return codes
}

func addChecked(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

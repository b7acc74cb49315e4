package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/gateway-ledger/internal/events"
	"github.com/example/gateway-ledger/pkg/audit"
)

// Integrity check names.
const (
	CheckTrialBalance    = "trial_balance"
	CheckEntriesBalanced = "entries_balanced"
	CheckCachedBalance   = "cached_balance"
	CheckGaplessNumbers  = "gapless_entry_numbers"
)

// CheckResult is the outcome of one integrity check.
type CheckResult struct {
	Check       string `json:"check"`
	Passed      bool   `json:"passed"`
	Message     string `json:"message"`
	AccountCode string `json:"account_code,omitempty"`
	EntryNumber int64  `json:"entry_number,omitempty"`
}

// Alarm sources.
const (
	AlarmSourceMonitor      = "integrity_check"
	AlarmSourceTrialBalance = "trial_balance"
)

// IntegrityAlarm is a stored halt. While one is unacknowledged, adjustments
// and manual reversals are refused by every process sharing the store.
type IntegrityAlarm struct {
	ID             int64         `json:"id"`
	Source         string        `json:"source"`
	Failures       []CheckResult `json:"failures"`
	RaisedAt       time.Time     `json:"raised_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string        `json:"acknowledged_by,omitempty"`
	Note           string        `json:"note,omitempty"`
}

type IntegrityReport struct {
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration_ns"`
	Healthy   bool          `json:"healthy"`
	Halted    bool          `json:"halted"`
	Results   []CheckResult `json:"results"`
}

// Failures returns only the failed results.
func (r *IntegrityReport) Failures() []CheckResult {
	var out []CheckResult
	for _, c := range r.Results {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}

// IntegrityMonitor verifies the ledger's invariants from a consistent
// snapshot. A violation stores an alarm that halts adjustments until an
// operator acknowledges it.
type IntegrityMonitor struct {
	store Store
	opts  Options

	mu   sync.Mutex
	last *IntegrityReport
}

func NewIntegrityMonitor(store Store, opts Options) *IntegrityMonitor {
	return &IntegrityMonitor{store: store, opts: opts.withDefaults()}
}

// Halted reports whether an unacknowledged alarm is stored.
func (m *IntegrityMonitor) Halted(ctx context.Context) (bool, error) {
	a, err := m.Alarm(ctx)
	return a != nil, err
}

// Alarm returns the active alarm, or nil when there is none.
func (m *IntegrityMonitor) Alarm(ctx context.Context) (*IntegrityAlarm, error) {
	a, err := m.store.ActiveAlarm(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read integrity alarm: %w", err)
	}
	return a, nil
}

// LastReport returns the most recent report, or nil before the first check.
func (m *IntegrityMonitor) LastReport() *IntegrityReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Check runs every integrity check. The returned error covers failures to
// read the ledger; invariant violations are reported in the report.
func (m *IntegrityMonitor) Check(ctx context.Context) (*IntegrityReport, error) {
	start := time.Now()
	var results []CheckResult
	err := m.store.Snapshot(ctx, func(ctx context.Context, q Queries) error {
		totals, err := q.AccountTotals(ctx)
		if err != nil {
			return fmt.Errorf("account totals: %w", err)
		}
		stats, err := q.EntryStats(ctx)
		if err != nil {
			return fmt.Errorf("entry stats: %w", err)
		}
		results = evaluate(totals, stats)
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &IntegrityReport{
		CheckedAt: m.opts.Now().UTC(),
		Duration:  time.Since(start),
		Healthy:   true,
		Results:   results,
	}
	for _, r := range results {
		if !r.Passed {
			report.Healthy = false
		}
	}
	m.opts.Recorder.IntegrityChecked(report.Healthy, report.Duration)
	if !report.Healthy {
		if _, _, err := raiseAlarm(ctx, m.store, m.opts, AlarmSourceMonitor, report.Failures()); err != nil {
			return nil, err
		}
	}
	if report.Halted, err = m.Halted(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()
	return report, nil
}

func evaluate(totals []AccountTotal, stats EntryStats) []CheckResult {
	var results []CheckResult

	if tb, err := buildTrialBalance(totals); err != nil {
		results = append(results, CheckResult{Check: CheckTrialBalance, Message: err.Error()})
	} else {
		results = append(results, CheckResult{
			Check:   CheckTrialBalance,
			Passed:  tb.Balanced,
			Message: fmt.Sprintf("debits %d, credits %d", tb.TotalDebits, tb.TotalCredits),
		})
	}

	if len(stats.UnbalancedRefs) == 0 {
		results = append(results, CheckResult{Check: CheckEntriesBalanced, Passed: true, Message: "every entry balances"})
	}
	for _, n := range stats.UnbalancedRefs {
		results = append(results, CheckResult{
			Check:       CheckEntriesBalanced,
			Message:     "entry debits do not equal credits or its total",
			EntryNumber: n,
		})
	}

	mismatches := 0
	for _, t := range totals {
		if computed := t.Balance(); computed != t.Account.CurrentBalance {
			mismatches++
			results = append(results, CheckResult{
				Check:       CheckCachedBalance,
				Message:     fmt.Sprintf("cached %d, lines sum to %d", t.Account.CurrentBalance, computed),
				AccountCode: t.Account.Code,
			})
		}
	}
	if mismatches == 0 {
		results = append(results, CheckResult{
			Check:   CheckCachedBalance,
			Passed:  true,
			Message: fmt.Sprintf("%d accounts match their lines", len(totals)),
		})
	}

	gapless := stats.SequenceValue == stats.MaxNumber
	if stats.Count > 0 {
		gapless = gapless && stats.MinNumber == 1 && stats.MaxNumber == stats.Count
	}
	results = append(results, CheckResult{
		Check:  CheckGaplessNumbers,
		Passed: gapless,
		Message: fmt.Sprintf("%d entries numbered %d..%d, sequence at %d",
			stats.Count, stats.MinNumber, stats.MaxNumber, stats.SequenceValue),
	})
	return results
}

// raiseAlarm stores an alarm unless one is already active. It returns the
// active alarm and whether this call raised it.
func raiseAlarm(ctx context.Context, store Store, opts Options, source string, failures []CheckResult) (*IntegrityAlarm, bool, error) {
	if failures == nil {
		failures = []CheckResult{}
	}
	var (
		active *IntegrityAlarm
		raised bool
	)
	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.ActiveAlarm(ctx)
		switch {
		case err == nil:
			active, raised = existing, false
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}
		a := &IntegrityAlarm{
			Source:   source,
			Failures: failures,
			RaisedAt: opts.Now().UTC().Truncate(time.Microsecond),
		}
		if err := tx.InsertAlarm(ctx, a); err != nil {
			return err
		}
		active, raised = a, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("raise integrity alarm: %w", err)
	}

	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.Check)
	}
	opts.Logger.Error("integrity_alarm",
		"alarm_id", active.ID,
		"source", source,
		"failed_checks", strings.Join(names, ","),
		"failures", len(failures),
		"newly_halted", raised)
	if !raised {
		return active, false, nil
	}
	if err := opts.Publisher.Publish(context.WithoutCancel(ctx), events.Event{
		Type:       events.TypeIntegrityAlarm,
		Key:        "ledger",
		OccurredAt: active.RaisedAt,
		Payload:    active,
	}); err != nil {
		opts.Logger.Warn("event_publish_failed", "type", events.TypeIntegrityAlarm, "err", err)
	}
	return active, true, nil
}

// checkNotHalted refuses op while an alarm is stored. Callers run it inside
// the transaction that does the guarded write.
func checkNotHalted(ctx context.Context, q Queries, op, what string) error {
	a, err := q.ActiveAlarm(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read integrity alarm: %w", err)
	}
	return &Error{
		Kind: KindIntegrityHalt,
		Op:   op,
		Msg:  fmt.Sprintf("%s are suspended until integrity alarm %d is acknowledged", what, a.ID),
	}
}

// Acknowledge clears the alarm once an operator has investigated it.
func (m *IntegrityMonitor) Acknowledge(ctx context.Context, actor, note string) error {
	actor, note = strings.TrimSpace(actor), strings.TrimSpace(note)
	if actor == "" {
		return validationError("acknowledge integrity alarm", "actor is required")
	}
	if note == "" {
		return validationError("acknowledge integrity alarm", "note is required")
	}
	var cleared *IntegrityAlarm
	err := m.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		cleared = nil
		a, err := tx.ActiveAlarm(ctx)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.AcknowledgeAlarm(ctx, a.ID, actor, note, m.opts.Now().UTC().Truncate(time.Microsecond)); err != nil {
			return err
		}
		cleared = a
		return nil
	})
	if err != nil {
		return fmt.Errorf("acknowledge integrity alarm: %w", err)
	}
	if cleared == nil {
		return nil
	}
	m.opts.Auditor.Record(audit.Event{
		Action: "integrity.acknowledged",
		Actor:  actor,
		Detail: fmt.Sprintf("alarm=%d source=%s note=%q", cleared.ID, cleared.Source, note),
	})
	m.opts.Logger.Warn("integrity_alarm_acknowledged", "actor", actor, "alarm_id", cleared.ID)
	if err := m.opts.Publisher.Publish(context.WithoutCancel(ctx), events.Event{
		Type:       events.TypeIntegrityCleared,
		Key:        "ledger",
		OccurredAt: m.opts.Now().UTC(),
		Payload:    map[string]string{"actor": actor, "note": note},
	}); err != nil {
		m.opts.Logger.Warn("event_publish_failed", "type", events.TypeIntegrityCleared, "err", err)
	}
	return nil
}

package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gateway-ledger/internal/events"
	"github.com/example/gateway-ledger/internal/ledger"
)

func TestIntegrityMonitor_HealthyLedger(t *testing.T) {
	f := newFixture(t)
	code := f.merchant(t, "1")
	f.fund(t, code, 500, "p-1")
	_, err := withdraw(f, "1", 200)
	require.NoError(t, err)

	report, err := f.monitor.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.False(t, report.Halted)
	assert.Empty(t, report.Failures())

	checks := map[string]bool{}
	for _, r := range report.Results {
		checks[r.Check] = true
	}
	for _, name := range []string{ledger.CheckTrialBalance, ledger.CheckEntriesBalanced, ledger.CheckCachedBalance, ledger.CheckGaplessNumbers} {
		assert.True(t, checks[name], "missing check %s", name)
	}
	assert.Same(t, report, f.monitor.LastReport())
}

func TestIntegrityMonitor_TamperedBalanceHaltsAdjustments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.merchant(t, "9")
	f.fund(t, code, 500, "p-1")

	_, err := f.store.DB().ExecContext(ctx, `UPDATE accounts SET current_balance = 9999 WHERE code = ?`, code)
	require.NoError(t, err)

	check, err := f.registry.VerifyBalance(ctx, code)
	require.NoError(t, err)
	assert.False(t, check.Match)
	assert.Equal(t, int64(500), check.Computed)

	report, err := f.monitor.Check(ctx)
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.True(t, report.Halted)
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, ledger.CheckCachedBalance, failures[0].Check)
	assert.Equal(t, code, failures[0].AccountCode)
	assert.Contains(t, f.events.types(), events.TypeIntegrityAlarm)

	_, err = f.adjust.PostAdjustment(ctx, adjustment(10, true))
	require.ErrorIs(t, err, ledger.ErrIntegrityHalt)
	assert.Equal(t, "the request could not be completed, try again or contact support", ledger.UserMessage(err))

	require.ErrorIs(t, f.monitor.Acknowledge(ctx, "", "looked"), ledger.ErrValidation)
	require.ErrorIs(t, f.monitor.Acknowledge(ctx, "ops-1", ""), ledger.ErrValidation)
	require.NoError(t, f.monitor.Acknowledge(ctx, "ops-1", "cache rebuilt from lines"))
	halted, err := f.monitor.Halted(ctx)
	require.NoError(t, err)
	assert.False(t, halted)
	assert.Contains(t, f.events.types(), events.TypeIntegrityCleared)

	entries := f.auditEntries(t)
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[len(entries)-1].Payload, "integrity.acknowledged")

	_, err = f.adjust.PostAdjustment(ctx, adjustment(10, true))
	require.NoError(t, err)
}

func TestIntegrityMonitor_DetectsSequenceGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.merchant(t, "1")
	f.fund(t, code, 100, "p-1")

	_, err := f.store.DB().ExecContext(ctx, `UPDATE ledger_sequences SET last_value = last_value + 3`)
	require.NoError(t, err)

	report, err := f.monitor.Check(ctx)
	require.NoError(t, err)
	require.False(t, report.Healthy)
	assert.Equal(t, ledger.CheckGaplessNumbers, report.Failures()[0].Check)
}

func TestIntegrityAlarm_SharedByEveryProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.merchant(t, "9")
	f.fund(t, code, 500, "p-1")

	// A second replica of the service on the same database.
	opts := ledger.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	otherMonitor := ledger.NewIntegrityMonitor(f.store, opts)
	otherAdjust := ledger.NewAdjustmentService(ledger.NewEngine(f.store, opts), f.sys.AdjustmentClearing)

	_, err := f.store.DB().ExecContext(ctx, `UPDATE accounts SET current_balance = 9999 WHERE code = ?`, code)
	require.NoError(t, err)
	report, err := f.monitor.Check(ctx)
	require.NoError(t, err)
	require.True(t, report.Halted)

	halted, err := otherMonitor.Halted(ctx)
	require.NoError(t, err)
	assert.True(t, halted)
	alarm, err := otherMonitor.Alarm(ctx)
	require.NoError(t, err)
	require.NotNil(t, alarm)
	assert.Equal(t, ledger.AlarmSourceMonitor, alarm.Source)
	require.Len(t, alarm.Failures, 1)
	assert.Equal(t, ledger.CheckCachedBalance, alarm.Failures[0].Check)

	_, err = otherAdjust.PostAdjustment(ctx, adjustment(10, true))
	require.ErrorIs(t, err, ledger.ErrIntegrityHalt)

	// A repeated failing check keeps the one stored alarm.
	_, err = otherMonitor.Check(ctx)
	require.NoError(t, err)
	again, err := f.monitor.Alarm(ctx)
	require.NoError(t, err)
	assert.Equal(t, alarm.ID, again.ID)

	require.NoError(t, otherMonitor.Acknowledge(ctx, "ops-1", "cache rebuilt from lines"))
	halted, err = f.monitor.Halted(ctx)
	require.NoError(t, err)
	assert.False(t, halted)
	require.NoError(t, f.monitor.Acknowledge(ctx, "ops-2", "nothing left to clear"))

	_, err = otherAdjust.PostAdjustment(ctx, adjustment(10, true))
	require.NoError(t, err)
}

func TestTrialBalance_UnbalancedRaisesAlarm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.merchant(t, "9")
	entry := f.fund(t, code, 500, "p-1")

	_, err := f.store.DB().ExecContext(ctx, `
		INSERT INTO journal_lines (entry_number, line_no, account_code, entry_type, amount, balance_after, entry_date)
		VALUES (?, 3, ?, 'debit', 25, 525, 0)
	`, entry.EntryNumber, code)
	require.NoError(t, err)

	tb, err := f.views.TrialBalance(ctx)
	require.NoError(t, err)
	assert.False(t, tb.Balanced)
	assert.Contains(t, f.events.types(), events.TypeIntegrityAlarm)

	alarm, err := f.monitor.Alarm(ctx)
	require.NoError(t, err)
	require.NotNil(t, alarm)
	assert.Equal(t, ledger.AlarmSourceTrialBalance, alarm.Source)

	_, err = f.adjust.PostAdjustment(ctx, adjustment(10, true))
	require.ErrorIs(t, err, ledger.ErrIntegrityHalt)
}

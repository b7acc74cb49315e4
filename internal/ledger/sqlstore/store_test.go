package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gateway-ledger/internal/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccounts(t *testing.T, s *Store, accounts ...ledger.Account) {
	t.Helper()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		for _, a := range accounts {
			if err := tx.InsertAccount(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func insertEntry(t *testing.T, s *Store, ref string, amount int64) int64 {
	t.Helper()
	var number int64
	err := s.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		n, err := tx.NextEntryNumber(ctx)
		if err != nil {
			return err
		}
		number = n
		now := time.Now().UTC()
		return tx.InsertEntry(ctx, &ledger.JournalEntry{
			EntryNumber:   n,
			EntryDate:     now,
			ReferenceType: ledger.RefPayin,
			ReferenceID:   ref,
			TotalAmount:   amount,
			Status:        ledger.EntryPosted,
			CreatedAt:     now,
			Lines: []ledger.JournalLine{
				{LineNo: 1, AccountCode: "CASH", EntryType: ledger.Debit, Amount: amount, BalanceAfter: amount, EntryDate: now},
				{LineNo: 2, AccountCode: "FEES", EntryType: ledger.Credit, Amount: amount, BalanceAfter: amount, EntryDate: now},
			},
		})
	})
	require.NoError(t, err)
	return number
}

func TestStore_AccountRoundTrip(t *testing.T) {
	s := openTestStore(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 123000, time.UTC)
	seedAccounts(t, s, ledger.Account{
		Code: "MERCH_1", Name: "Merchant 1", Type: ledger.AccountLiability,
		Entity: &ledger.EntityRef{Type: ledger.EntityMerchant, ID: "1"}, CreatedAt: created,
	})

	got, err := s.GetAccount(context.Background(), "MERCH_1")
	require.NoError(t, err)
	assert.Equal(t, ledger.AccountLiability, got.Type)
	require.NotNil(t, got.Entity)
	assert.Equal(t, "1", got.Entity.ID)
	assert.True(t, created.Equal(got.CreatedAt))

	byEntity, err := s.FindEntityAccount(context.Background(), ledger.EntityRef{Type: ledger.EntityMerchant, ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "MERCH_1", byEntity.Code)

	_, err = s.GetAccount(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestStore_DuplicateAccountCode(t *testing.T) {
	s := openTestStore(t)
	seedAccounts(t, s, ledger.Account{Code: "CASH", Name: "Cash", Type: ledger.AccountAsset})

	err := s.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertAccount(ctx, ledger.Account{Code: "CASH", Name: "Cash again", Type: ledger.AccountAsset})
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateCode)
}

func TestStore_DuplicateReferenceIsDuplicatePosting(t *testing.T) {
	s := openTestStore(t)
	seedAccounts(t, s,
		ledger.Account{Code: "CASH", Name: "Cash", Type: ledger.AccountAsset},
		ledger.Account{Code: "FEES", Name: "Fees", Type: ledger.AccountRevenue},
	)
	insertEntry(t, s, "p-1", 100)

	err := s.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		n, err := tx.NextEntryNumber(ctx)
		if err != nil {
			return err
		}
		return tx.InsertEntry(ctx, &ledger.JournalEntry{
			EntryNumber: n, ReferenceType: ledger.RefPayin, ReferenceID: "p-1",
			TotalAmount: 5, Status: ledger.EntryPosted,
		})
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicatePosting)

	// The failed transaction released its entry number.
	stats, err := s.EntryStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SequenceValue)
	assert.Equal(t, int64(1), stats.Count)
}

func TestStore_JournalRowsAreImmutable(t *testing.T) {
	s := openTestStore(t)
	seedAccounts(t, s,
		ledger.Account{Code: "CASH", Name: "Cash", Type: ledger.AccountAsset},
		ledger.Account{Code: "FEES", Name: "Fees", Type: ledger.AccountRevenue},
	)
	n := insertEntry(t, s, "p-1", 100)
	ctx := context.Background()

	_, err := s.DB().ExecContext(ctx, `UPDATE journal_entries SET total_amount = 1 WHERE entry_number = ?`, n)
	assert.ErrorContains(t, err, "immutable")
	_, err = s.DB().ExecContext(ctx, `DELETE FROM journal_lines WHERE entry_number = ?`, n)
	assert.ErrorContains(t, err, "immutable")
	_, err = s.DB().ExecContext(ctx, `UPDATE accounts SET code = 'CASH2' WHERE code = 'CASH'`)
	assert.ErrorContains(t, err, "immutable")

	entry, err := s.GetEntry(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.TotalAmount)
	assert.Len(t, entry.Lines, 2)
}

func TestStore_TotalsAndStats(t *testing.T) {
	s := openTestStore(t)
	seedAccounts(t, s,
		ledger.Account{Code: "CASH", Name: "Cash", Type: ledger.AccountAsset},
		ledger.Account{Code: "FEES", Name: "Fees", Type: ledger.AccountRevenue},
		ledger.Account{Code: "IDLE", Name: "Idle", Type: ledger.AccountExpense},
	)
	insertEntry(t, s, "p-1", 100)
	insertEntry(t, s, "p-2", 40)
	ctx := context.Background()

	totals, err := s.AccountTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, "CASH", totals[0].Account.Code)
	assert.Equal(t, int64(140), totals[0].Debits)
	assert.Equal(t, int64(140), totals[1].Credits)
	assert.Equal(t, int64(0), totals[2].Debits+totals[2].Credits)

	sum, err := s.SumAccountLines(ctx, "FEES")
	require.NoError(t, err)
	assert.Equal(t, int64(140), sum)

	stats, err := s.EntryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Count)
	assert.Equal(t, int64(1), stats.MinNumber)
	assert.Equal(t, int64(2), stats.MaxNumber)
	assert.Equal(t, int64(2), stats.SequenceValue)
	assert.Empty(t, stats.UnbalancedRefs)

	lines, err := s.Statement(ctx, "CASH", 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "p-2", lines[0].ReferenceID)
}

func TestStore_IntegrityAlarmLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ActiveAlarm(ctx)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	raised := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	alarm := &ledger.IntegrityAlarm{
		Source:   ledger.AlarmSourceMonitor,
		Failures: []ledger.CheckResult{{Check: ledger.CheckCachedBalance, Message: "cached 9, lines sum to 5", AccountCode: "MERCH_1"}},
		RaisedAt: raised,
	}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertAlarm(ctx, alarm)
	}))
	assert.NotZero(t, alarm.ID)

	// Only one alarm may be active.
	err = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertAlarm(ctx, &ledger.IntegrityAlarm{Source: ledger.AlarmSourceTrialBalance, Failures: []ledger.CheckResult{}, RaisedAt: raised})
	})
	require.Error(t, err)

	active, err := s.ActiveAlarm(ctx)
	require.NoError(t, err)
	assert.Equal(t, alarm.ID, active.ID)
	assert.Equal(t, raised, active.RaisedAt)
	assert.Equal(t, alarm.Failures, active.Failures)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.AcknowledgeAlarm(ctx, alarm.ID, "ops-1", "rebuilt", raised.Add(time.Hour))
	}))
	_, err = s.ActiveAlarm(ctx)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	err = s.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.AcknowledgeAlarm(ctx, alarm.ID, "ops-1", "again", raised.Add(2*time.Hour))
	})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

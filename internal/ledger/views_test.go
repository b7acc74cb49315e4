package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gateway-ledger/internal/ledger"
)

func TestTrialBalance_NormalSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "CASH", ledger.AccountAsset, nil)
	f.account(t, "PAYABLE_M1", ledger.AccountLiability, &ledger.EntityRef{Type: ledger.EntityMerchant, ID: "m1"})
	f.account(t, "BANK_FEES", ledger.AccountExpense, nil)

	post := func(ref string, lines ...ledger.LineRequest) {
		_, err := f.engine.Post(ctx, ledger.PostRequest{ReferenceType: ledger.RefPayin, ReferenceID: ref, Lines: lines})
		require.NoError(t, err)
	}
	post("p1",
		ledger.LineRequest{AccountCode: "CASH", EntryType: ledger.Debit, Amount: 1000},
		ledger.LineRequest{AccountCode: "PAYABLE_M1", EntryType: ledger.Credit, Amount: 970},
		ledger.LineRequest{AccountCode: f.sys.FeeRevenue, EntryType: ledger.Credit, Amount: 30},
	)
	post("p2",
		ledger.LineRequest{AccountCode: "BANK_FEES", EntryType: ledger.Debit, Amount: 5},
		ledger.LineRequest{AccountCode: "CASH", EntryType: ledger.Credit, Amount: 5},
	)

	tb, err := f.views.TrialBalance(ctx)
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.Equal(t, int64(1000), tb.TotalDebits)
	assert.Equal(t, int64(1000), tb.TotalCredits)

	byCode := map[string]ledger.TrialBalanceLine{}
	for _, l := range tb.Lines {
		byCode[l.AccountCode] = l
	}
	assert.Equal(t, int64(995), byCode["CASH"].DebitBalance)
	assert.Equal(t, int64(970), byCode["PAYABLE_M1"].CreditBalance)
	assert.Equal(t, int64(30), byCode[f.sys.FeeRevenue].CreditBalance)
	assert.Equal(t, int64(5), byCode["BANK_FEES"].DebitBalance)
}

func TestTrialBalance_NegativeBalanceMovesToOppositeSide(t *testing.T) {
	f := newFixture(t)
	f.account(t, "CASH", ledger.AccountAsset, nil)

	_, err := f.engine.Post(context.Background(), ledger.PostRequest{
		ReferenceType: ledger.RefOpening, ReferenceID: "o1",
		Lines: []ledger.LineRequest{
			{AccountCode: f.sys.OpeningEquity, EntryType: ledger.Debit, Amount: 40},
			{AccountCode: "CASH", EntryType: ledger.Credit, Amount: 40},
		},
	})
	require.NoError(t, err)

	tb, err := f.views.TrialBalance(context.Background())
	require.NoError(t, err)
	for _, l := range tb.Lines {
		switch l.AccountCode {
		case "CASH":
			assert.Equal(t, int64(40), l.CreditBalance)
			assert.Zero(t, l.DebitBalance)
		case f.sys.OpeningEquity:
			assert.Equal(t, int64(40), l.DebitBalance)
		}
	}
	assert.True(t, tb.Balanced)
}

func TestProfitAndLoss_Period(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "CASH", ledger.AccountAsset, nil)
	f.account(t, "BANK_FEES", ledger.AccountExpense, nil)

	day := func(d int) time.Time { return time.Date(2024, 5, d, 12, 0, 0, 0, time.UTC) }
	post := func(ref string, date time.Time, lines ...ledger.LineRequest) {
		_, err := f.engine.Post(ctx, ledger.PostRequest{ReferenceType: ledger.RefPayin, ReferenceID: ref, EntryDate: date, Lines: lines})
		require.NoError(t, err)
	}
	post("fee-apr", time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC),
		ledger.LineRequest{AccountCode: "CASH", EntryType: ledger.Debit, Amount: 999},
		ledger.LineRequest{AccountCode: f.sys.FeeRevenue, EntryType: ledger.Credit, Amount: 999})
	post("fee-1", day(2),
		ledger.LineRequest{AccountCode: "CASH", EntryType: ledger.Debit, Amount: 300},
		ledger.LineRequest{AccountCode: f.sys.FeeRevenue, EntryType: ledger.Credit, Amount: 300})
	post("refund-1", day(3),
		ledger.LineRequest{AccountCode: f.sys.FeeRevenue, EntryType: ledger.Debit, Amount: 50},
		ledger.LineRequest{AccountCode: "CASH", EntryType: ledger.Credit, Amount: 50})
	post("bank-1", day(4),
		ledger.LineRequest{AccountCode: "BANK_FEES", EntryType: ledger.Debit, Amount: 20},
		ledger.LineRequest{AccountCode: "CASH", EntryType: ledger.Credit, Amount: 20})

	pl, err := f.views.ProfitAndLoss(ctx, ledger.Period{From: day(1), To: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, pl.RevenueLines, 1)
	assert.Equal(t, int64(250), pl.RevenueLines[0].Amount)
	require.Len(t, pl.ExpenseLines, 1)
	assert.Equal(t, int64(20), pl.ExpenseLines[0].Amount)
	assert.Equal(t, int64(230), pl.NetProfit)

	_, err = f.views.ProfitAndLoss(ctx, ledger.Period{From: day(5), To: day(5)})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestAccountStatement_OrderAndLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.merchant(t, "1")

	for i := 1; i <= 5; i++ {
		f.clock.Advance(time.Minute)
		f.fund(t, code, int64(i*10), fmt.Sprintf("p-%d", i))
	}

	lines, err := f.views.AccountStatement(ctx, code, 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "p-5", lines[0].ReferenceID)
	assert.Equal(t, int64(150), lines[0].BalanceAfter)
	assert.Equal(t, "p-4", lines[1].ReferenceID)
	assert.Equal(t, int64(100), lines[1].BalanceAfter)
	assert.True(t, lines[0].EntryDate.After(lines[1].EntryDate))

	all, err := f.views.AccountStatement(ctx, code, 10_000)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = f.views.AccountStatement(ctx, "NOPE", 10)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.views.AccountStatement(ctx, code, -1)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

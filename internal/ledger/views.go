package ledger

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultStatementLimit = 50
	MaxStatementLimit     = 500
)

// TrialBalanceLine reports one account's balance on its debit or credit side.
type TrialBalanceLine struct {
	AccountCode   string      `json:"account_code"`
	AccountName   string      `json:"account_name"`
	AccountType   AccountType `json:"account_type"`
	DebitBalance  int64       `json:"debit_balance"`
	CreditBalance int64       `json:"credit_balance"`
}

type TrialBalance struct {
	Lines        []TrialBalanceLine `json:"lines"`
	TotalDebits  int64              `json:"total_debits"`
	TotalCredits int64              `json:"total_credits"`
	Balanced     bool               `json:"balanced"`
	AsOf         time.Time          `json:"as_of"`
}

// Period is the half-open interval [From, To).
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type ProfitAndLossLine struct {
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	Amount      int64  `json:"amount"`
}

type ProfitAndLoss struct {
	Period       Period              `json:"period"`
	RevenueLines []ProfitAndLossLine `json:"revenue_lines"`
	ExpenseLines []ProfitAndLossLine `json:"expense_lines"`
	TotalRevenue int64               `json:"total_revenue"`
	TotalExpense int64               `json:"total_expense"`
	NetProfit    int64               `json:"net_profit"`
}

// Views computes read models from journal lines. Nothing here writes.
type Views struct {
	store Store
	opts  Options
}

func NewViews(store Store, opts Options) *Views {
	return &Views{store: store, opts: opts.withDefaults()}
}

// TrialBalance reads every account's totals inside one snapshot so the two
// sides are comparable. An unbalanced result raises the integrity alarm.
func (v *Views) TrialBalance(ctx context.Context) (*TrialBalance, error) {
	var tb *TrialBalance
	err := v.store.Snapshot(ctx, func(ctx context.Context, q Queries) error {
		totals, err := q.AccountTotals(ctx)
		if err != nil {
			return err
		}
		tb, err = buildTrialBalance(totals)
		return err
	})
	if err != nil {
		return nil, err
	}
	tb.AsOf = v.opts.Now().UTC()
	if !tb.Balanced {
		v.opts.Logger.Error("trial_balance_unbalanced", "debits", tb.TotalDebits, "credits", tb.TotalCredits)
		failure := CheckResult{
			Check:   CheckTrialBalance,
			Message: fmt.Sprintf("debits %d, credits %d", tb.TotalDebits, tb.TotalCredits),
		}
		if _, _, err := raiseAlarm(ctx, v.store, v.opts, AlarmSourceTrialBalance, []CheckResult{failure}); err != nil {
			return nil, err
		}
	}
	return tb, nil
}

func buildTrialBalance(totals []AccountTotal) (*TrialBalance, error) {
	tb := &TrialBalance{Lines: make([]TrialBalanceLine, 0, len(totals))}
	for _, t := range totals {
		line := TrialBalanceLine{
			AccountCode: t.Account.Code,
			AccountName: t.Account.Name,
			AccountType: t.Account.Type,
		}
		bal := t.Balance()
		side := t.Account.Type.NormalSide()
		if bal < 0 {
			bal = -bal
			side = side.Opposite()
		}
		if side == Debit {
			line.DebitBalance = bal
		} else {
			line.CreditBalance = bal
		}
		var okDebit, okCredit bool
		tb.TotalDebits, okDebit = addChecked(tb.TotalDebits, line.DebitBalance)
		tb.TotalCredits, okCredit = addChecked(tb.TotalCredits, line.CreditBalance)
		if !okDebit || !okCredit {
			return nil, newError(KindInternal, "trial balance", "totals overflow at account %s", t.Account.Code)
		}
		tb.Lines = append(tb.Lines, line)
	}
	tb.Balanced = tb.TotalDebits == tb.TotalCredits
	return tb, nil
}

// ProfitAndLoss sums revenue and expense activity dated inside p.
func (v *Views) ProfitAndLoss(ctx context.Context, p Period) (*ProfitAndLoss, error) {
	if p.From.IsZero() || p.To.IsZero() || !p.From.Before(p.To) {
		return nil, validationError("profit and loss", "period start must be before its end")
	}
	activity, err := v.store.Activity(ctx, p.From.UTC(), p.To.UTC())
	if err != nil {
		return nil, err
	}

	pl := &ProfitAndLoss{
		Period:       Period{From: p.From.UTC(), To: p.To.UTC()},
		RevenueLines: []ProfitAndLossLine{},
		ExpenseLines: []ProfitAndLossLine{},
	}
	for _, a := range activity {
		if a.Debits == 0 && a.Credits == 0 {
			continue
		}
		line := ProfitAndLossLine{AccountCode: a.Account.Code, AccountName: a.Account.Name, Amount: a.Balance()}
		switch a.Account.Type {
		case AccountRevenue:
			pl.RevenueLines = append(pl.RevenueLines, line)
			pl.TotalRevenue += line.Amount
		case AccountExpense:
			pl.ExpenseLines = append(pl.ExpenseLines, line)
			pl.TotalExpense += line.Amount
		}
	}
	pl.NetProfit = pl.TotalRevenue - pl.TotalExpense
	return pl, nil
}

// AccountStatement returns the newest lines of an account, newest first,
// each carrying the balance recorded when it was posted.
func (v *Views) AccountStatement(ctx context.Context, code string, limit int) ([]JournalLine, error) {
	switch {
	case limit < 0:
		return nil, validationError("account statement", "limit must not be negative")
	case limit == 0:
		limit = DefaultStatementLimit
	case limit > MaxStatementLimit:
		limit = MaxStatementLimit
	}
	if _, err := v.store.GetAccount(ctx, code); err != nil {
		return nil, err
	}
	return v.store.Statement(ctx, code, limit)
}

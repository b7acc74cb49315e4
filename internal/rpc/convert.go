package rpc

import (
	"strings"
	"time"

	ledgerv1 "github.com/example/gateway-ledger/api/ledgerv1"
	"github.com/example/gateway-ledger/internal/ledger"
)

// converter moves between wire messages and ledger types. Amounts cross
// the boundary as decimal strings of the ledger currency.
type converter struct {
	cur ledger.Currency
}

func (c converter) money(minor int64) ledgerv1.Money {
	return ledgerv1.Money{Amount: c.cur.Format(minor), Currency: c.cur.Code}
}

func (c converter) parseMoney(field string, m ledgerv1.Money) (int64, error) {
	if m.Currency != "" && !strings.EqualFold(m.Currency, c.cur.Code) {
		return 0, invalidArgument(field + ": ledger currency is " + c.cur.Code)
	}
	minor, err := c.cur.Parse(m.Amount)
	if err != nil {
		return 0, invalidArgument(field + ": " + ledger.UserMessage(err))
	}
	return minor, nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (c converter) account(a *ledger.Account) *ledgerv1.Account {
	out := &ledgerv1.Account{
		Code:        a.Code,
		Name:        a.Name,
		AccountType: string(a.Type),
		Balance:     c.money(a.CurrentBalance),
		CreatedAt:   timestamp(a.CreatedAt),
	}
	if a.Entity != nil {
		out.Entity = &ledgerv1.Entity{Type: string(a.Entity.Type), ID: a.Entity.ID}
	}
	return out
}

func (c converter) line(l ledger.JournalLine) *ledgerv1.JournalLine {
	return &ledgerv1.JournalLine{
		EntryNumber:   l.EntryNumber,
		LineNo:        int32(l.LineNo),
		AccountCode:   l.AccountCode,
		EntryType:     string(l.EntryType),
		Amount:        c.money(l.Amount),
		BalanceAfter:  c.money(l.BalanceAfter),
		EntryDate:     timestamp(l.EntryDate),
		ReferenceType: string(l.ReferenceType),
		ReferenceID:   l.ReferenceID,
	}
}

func (c converter) lines(ls []ledger.JournalLine) []*ledgerv1.JournalLine {
	out := make([]*ledgerv1.JournalLine, 0, len(ls))
	for _, l := range ls {
		out = append(out, c.line(l))
	}
	return out
}

func (c converter) entry(e *ledger.JournalEntry) *ledgerv1.JournalEntry {
	return &ledgerv1.JournalEntry{
		EntryNumber:   e.EntryNumber,
		EntryDate:     timestamp(e.EntryDate),
		ReferenceType: string(e.ReferenceType),
		ReferenceID:   e.ReferenceID,
		Description:   e.Description,
		Total:         c.money(e.TotalAmount),
		Status:        string(e.Status),
		CreatedBy:     e.CreatedBy,
		CreatedAt:     timestamp(e.CreatedAt),
		Replayed:      e.Replayed,
		Lines:         c.lines(e.Lines),
	}
}

func (c converter) trialBalance(tb *ledger.TrialBalance) *ledgerv1.TrialBalanceResponse {
	out := &ledgerv1.TrialBalanceResponse{
		Lines:        make([]*ledgerv1.TrialBalanceLine, 0, len(tb.Lines)),
		TotalDebits:  c.money(tb.TotalDebits),
		TotalCredits: c.money(tb.TotalCredits),
		Balanced:     tb.Balanced,
		AsOf:         timestamp(tb.AsOf),
	}
	for _, l := range tb.Lines {
		out.Lines = append(out.Lines, &ledgerv1.TrialBalanceLine{
			AccountCode:   l.AccountCode,
			AccountName:   l.AccountName,
			AccountType:   string(l.AccountType),
			DebitBalance:  c.money(l.DebitBalance),
			CreditBalance: c.money(l.CreditBalance),
		})
	}
	return out
}

func (c converter) profitAndLoss(pl *ledger.ProfitAndLoss) *ledgerv1.ProfitAndLossResponse {
	conv := func(ls []ledger.ProfitAndLossLine) []*ledgerv1.ProfitAndLossLine {
		out := make([]*ledgerv1.ProfitAndLossLine, 0, len(ls))
		for _, l := range ls {
			out = append(out, &ledgerv1.ProfitAndLossLine{AccountCode: l.AccountCode, AccountName: l.AccountName, Amount: c.money(l.Amount)})
		}
		return out
	}
	return &ledgerv1.ProfitAndLossResponse{
		From:         timestamp(pl.Period.From),
		To:           timestamp(pl.Period.To),
		RevenueLines: conv(pl.RevenueLines),
		ExpenseLines: conv(pl.ExpenseLines),
		TotalRevenue: c.money(pl.TotalRevenue),
		TotalExpense: c.money(pl.TotalExpense),
		NetProfit:    c.money(pl.NetProfit),
	}
}

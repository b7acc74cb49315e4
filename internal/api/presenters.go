package api

import (
	"time"

	"github.com/example/gateway-ledger/internal/ledger"
)

// Presenters render minor units as decimal strings of the ledger currency.

type accountView struct {
	Code        string             `json:"code"`
	Name        string             `json:"name"`
	AccountType ledger.AccountType `json:"account_type"`
	Entity      *ledger.EntityRef  `json:"entity,omitempty"`
	Balance     string             `json:"balance"`
	Currency    string             `json:"currency"`
	CreatedAt   time.Time          `json:"created_at"`
}

type lineView struct {
	EntryNumber   int64                `json:"entry_number"`
	LineNo        int                  `json:"line_no"`
	AccountCode   string               `json:"account_code"`
	EntryType     ledger.EntryType     `json:"entry_type"`
	Amount        string               `json:"amount"`
	BalanceAfter  string               `json:"balance_after"`
	EntryDate     time.Time            `json:"entry_date"`
	ReferenceType ledger.ReferenceType `json:"reference_type,omitempty"`
	ReferenceID   string               `json:"reference_id,omitempty"`
	Description   string               `json:"description,omitempty"`
}

type entryView struct {
	EntryNumber   int64                `json:"entry_number"`
	EntryDate     time.Time            `json:"entry_date"`
	ReferenceType ledger.ReferenceType `json:"reference_type"`
	ReferenceID   string               `json:"reference_id"`
	Description   string               `json:"description"`
	TotalAmount   string               `json:"total_amount"`
	Currency      string               `json:"currency"`
	Status        ledger.EntryStatus   `json:"status"`
	CreatedBy     string               `json:"created_by"`
	CreatedAt     time.Time            `json:"created_at"`
	Replayed      bool                 `json:"replayed,omitempty"`
	Lines         []lineView           `json:"lines"`
}

type trialBalanceLineView struct {
	AccountCode   string             `json:"account_code"`
	AccountName   string             `json:"account_name"`
	AccountType   ledger.AccountType `json:"account_type"`
	DebitBalance  string             `json:"debit_balance"`
	CreditBalance string             `json:"credit_balance"`
}

type trialBalanceView struct {
	Lines        []trialBalanceLineView `json:"lines"`
	TotalDebits  string                 `json:"total_debits"`
	TotalCredits string                 `json:"total_credits"`
	Balanced     bool                   `json:"balanced"`
	Currency     string                 `json:"currency"`
	AsOf         time.Time              `json:"as_of"`
}

type profitAndLossLineView struct {
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	Amount      string `json:"amount"`
}

type profitAndLossView struct {
	From         time.Time               `json:"from"`
	To           time.Time               `json:"to"`
	RevenueLines []profitAndLossLineView `json:"revenue_lines"`
	ExpenseLines []profitAndLossLineView `json:"expense_lines"`
	TotalRevenue string                  `json:"total_revenue"`
	TotalExpense string                  `json:"total_expense"`
	NetProfit    string                  `json:"net_profit"`
	Currency     string                  `json:"currency"`
}

type reservationView struct {
	ID                  string                  `json:"id"`
	Entity              ledger.EntityRef        `json:"entity"`
	AccountCode         string                  `json:"account_code"`
	Amount              string                  `json:"amount"`
	State               ledger.ReservationState `json:"state"`
	EntryNumber         int64                   `json:"entry_number"`
	ReversalEntryNumber int64                   `json:"reversal_entry_number,omitempty"`
	WithdrawalID        string                  `json:"withdrawal_id,omitempty"`
	FailureReason       string                  `json:"failure_reason,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	ResolvedAt          *time.Time              `json:"resolved_at,omitempty"`
}

type withdrawalView struct {
	ID            string                  `json:"id"`
	ReservationID string                  `json:"reservation_id"`
	Entity        ledger.EntityRef        `json:"entity"`
	Amount        string                  `json:"amount"`
	Destination   ledger.Destination      `json:"destination"`
	Status        ledger.WithdrawalStatus `json:"status"`
	EntryNumber   int64                   `json:"entry_number"`
	CreatedAt     time.Time               `json:"created_at"`
}

type withdrawalResultView struct {
	RequestID     string                  `json:"request_id"`
	ReservationID string                  `json:"reservation_id"`
	Status        ledger.WithdrawalStatus `json:"status"`
	State         ledger.ReservationState `json:"state"`
	EntryNumber   int64                   `json:"entry_number"`
	Amount        string                  `json:"amount"`
	Currency      string                  `json:"currency"`
}

type presenter struct{ cur ledger.Currency }

func (p presenter) account(a *ledger.Account) accountView {
	return accountView{
		Code:        a.Code,
		Name:        a.Name,
		AccountType: a.Type,
		Entity:      a.Entity,
		Balance:     p.cur.Format(a.CurrentBalance),
		Currency:    p.cur.Code,
		CreatedAt:   a.CreatedAt,
	}
}

func (p presenter) line(l ledger.JournalLine) lineView {
	return lineView{
		EntryNumber:   l.EntryNumber,
		LineNo:        l.LineNo,
		AccountCode:   l.AccountCode,
		EntryType:     l.EntryType,
		Amount:        p.cur.Format(l.Amount),
		BalanceAfter:  p.cur.Format(l.BalanceAfter),
		EntryDate:     l.EntryDate,
		ReferenceType: l.ReferenceType,
		ReferenceID:   l.ReferenceID,
		Description:   l.Description,
	}
}

func (p presenter) lines(ls []ledger.JournalLine) []lineView {
	out := make([]lineView, 0, len(ls))
	for _, l := range ls {
		out = append(out, p.line(l))
	}
	return out
}

func (p presenter) entry(e *ledger.JournalEntry) entryView {
	return entryView{
		EntryNumber:   e.EntryNumber,
		EntryDate:     e.EntryDate,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		Description:   e.Description,
		TotalAmount:   p.cur.Format(e.TotalAmount),
		Currency:      p.cur.Code,
		Status:        e.Status,
		CreatedBy:     e.CreatedBy,
		CreatedAt:     e.CreatedAt,
		Replayed:      e.Replayed,
		Lines:         p.lines(e.Lines),
	}
}

func (p presenter) trialBalance(tb *ledger.TrialBalance) trialBalanceView {
	out := trialBalanceView{
		Lines:        make([]trialBalanceLineView, 0, len(tb.Lines)),
		TotalDebits:  p.cur.Format(tb.TotalDebits),
		TotalCredits: p.cur.Format(tb.TotalCredits),
		Balanced:     tb.Balanced,
		Currency:     p.cur.Code,
		AsOf:         tb.AsOf,
	}
	for _, l := range tb.Lines {
		out.Lines = append(out.Lines, trialBalanceLineView{
			AccountCode:   l.AccountCode,
			AccountName:   l.AccountName,
			AccountType:   l.AccountType,
			DebitBalance:  p.cur.Format(l.DebitBalance),
			CreditBalance: p.cur.Format(l.CreditBalance),
		})
	}
	return out
}

func (p presenter) profitAndLoss(pl *ledger.ProfitAndLoss) profitAndLossView {
	conv := func(ls []ledger.ProfitAndLossLine) []profitAndLossLineView {
		out := make([]profitAndLossLineView, 0, len(ls))
		for _, l := range ls {
			out = append(out, profitAndLossLineView{AccountCode: l.AccountCode, AccountName: l.AccountName, Amount: p.cur.Format(l.Amount)})
		}
		return out
	}
	return profitAndLossView{
		From:         pl.Period.From,
		To:           pl.Period.To,
		RevenueLines: conv(pl.RevenueLines),
		ExpenseLines: conv(pl.ExpenseLines),
		TotalRevenue: p.cur.Format(pl.TotalRevenue),
		TotalExpense: p.cur.Format(pl.TotalExpense),
		NetProfit:    p.cur.Format(pl.NetProfit),
		Currency:     p.cur.Code,
	}
}

func (p presenter) reservation(r *ledger.Reservation) reservationView {
	return reservationView{
		ID:                  r.ID,
		Entity:              r.Entity,
		AccountCode:         r.AccountCode,
		Amount:              p.cur.Format(r.Amount),
		State:               r.State,
		EntryNumber:         r.EntryNumber,
		ReversalEntryNumber: r.ReversalEntryNumber,
		WithdrawalID:        r.WithdrawalID,
		FailureReason:       r.FailureReason,
		CreatedAt:           r.CreatedAt,
		ResolvedAt:          r.ResolvedAt,
	}
}

func (p presenter) withdrawal(w *ledger.Withdrawal) withdrawalView {
	return withdrawalView{
		ID:            w.ID,
		ReservationID: w.ReservationID,
		Entity:        w.Entity,
		Amount:        p.cur.Format(w.Amount),
		Destination:   w.Destination,
		Status:        w.Status,
		EntryNumber:   w.EntryNumber,
		CreatedAt:     w.CreatedAt,
	}
}

func (p presenter) withdrawalResult(res *ledger.WithdrawalResult) withdrawalResultView {
	return withdrawalResultView{
		RequestID:     res.RequestID,
		ReservationID: res.ReservationID,
		Status:        res.Status,
		State:         res.State,
		EntryNumber:   res.EntryNumber,
		Amount:        p.cur.Format(res.Amount),
		Currency:      p.cur.Code,
	}
}

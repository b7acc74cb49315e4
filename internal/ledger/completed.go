package ledger

import (
	"context"
	"fmt"
)

// FeeShare routes part of a transaction's fees to an account.
type FeeShare struct {
	AccountCode string `json:"account_code"`
	Amount      int64  `json:"amount"`
}

// CompletedTransaction is a successful payin or payout reported by the
// payment side. Amount is the gross amount moved through ClearingAccount.
type CompletedTransaction struct {
	ReferenceType   ReferenceType `json:"reference_type"`
	ReferenceID     string        `json:"reference_id"`
	EntityAccount   string        `json:"entity_account"`
	ClearingAccount string        `json:"clearing_account"`
	Amount          int64         `json:"amount"`
	FeeSplit        []FeeShare    `json:"fee_split"`
	Description     string        `json:"description,omitempty"`
}

// BuildCompletedLines translates a completed transaction into a balanced
// line set. On a payin the entity is credited the gross minus fees; on a
// payout the entity is charged the gross plus fees. Fee accounts always
// increase and the clearing account takes the balancing line.
func BuildCompletedLines(t CompletedTransaction, types map[string]AccountType) ([]LineRequest, error) {
	const op = "translate transaction"
	if t.ReferenceType != RefPayin && t.ReferenceType != RefPayout {
		return nil, validationError(op, "only payin and payout transactions can be translated")
	}
	if t.Amount <= 0 {
		return nil, validationError(op, "amount must be positive")
	}
	var fees int64
	for _, f := range t.FeeSplit {
		if f.Amount <= 0 {
			return nil, validationError(op, "fee share for %s must be positive", f.AccountCode)
		}
		var ok bool
		if fees, ok = addChecked(fees, f.Amount); !ok {
			return nil, validationError(op, "fees overflow")
		}
	}

	typeOf := func(code string) (AccountType, error) {
		at, ok := types[code]
		if !ok {
			return "", newError(KindUnknownAccount, op, "account %q does not exist", code)
		}
		return at, nil
	}

	var lines []LineRequest
	net := map[EntryType]int64{}
	add := func(code string, side EntryType, amount int64) {
		lines = append(lines, LineRequest{AccountCode: code, EntryType: side, Amount: amount})
		net[side] += amount
	}

	entityType, err := typeOf(t.EntityAccount)
	if err != nil {
		return nil, err
	}
	switch t.ReferenceType {
	case RefPayin:
		if fees >= t.Amount {
			return nil, validationError(op, "fees %d must be less than the amount %d", fees, t.Amount)
		}
		add(t.EntityAccount, entityType.NormalSide(), t.Amount-fees)
	case RefPayout:
		total, ok := addChecked(t.Amount, fees)
		if !ok {
			return nil, validationError(op, "amount overflows")
		}
		add(t.EntityAccount, entityType.NormalSide().Opposite(), total)
	}
	for _, f := range t.FeeSplit {
		ft, err := typeOf(f.AccountCode)
		if err != nil {
			return nil, err
		}
		add(f.AccountCode, ft.NormalSide(), f.Amount)
	}

	if _, err := typeOf(t.ClearingAccount); err != nil {
		return nil, err
	}
	diff := net[Debit] - net[Credit]
	switch {
	case diff > 0:
		add(t.ClearingAccount, Credit, diff)
	case diff < 0:
		add(t.ClearingAccount, Debit, -diff)
	}
	return lines, nil
}

// PostCompleted translates and posts a completed transaction. Retries with
// the same reference are answered with the original entry.
func (e *Engine) PostCompleted(ctx context.Context, t CompletedTransaction, actor string) (*JournalEntry, error) {
	types := map[string]AccountType{}
	codes := []string{t.EntityAccount, t.ClearingAccount}
	for _, f := range t.FeeSplit {
		codes = append(codes, f.AccountCode)
	}
	for _, code := range codes {
		if _, seen := types[code]; seen || code == "" {
			continue
		}
		acct, err := e.store.GetAccount(ctx, code)
		if err != nil {
			if KindOf(err) == KindNotFound {
				continue
			}
			return nil, err
		}
		types[code] = acct.Type
	}

	lines, err := BuildCompletedLines(t, types)
	if err != nil {
		e.failed("post completed", err, "reference_id", t.ReferenceID)
		return nil, err
	}
	desc := t.Description
	if desc == "" {
		desc = fmt.Sprintf("%s %s", t.ReferenceType, t.ReferenceID)
	}
	return e.Post(ctx, PostRequest{
		ReferenceType: t.ReferenceType,
		ReferenceID:   t.ReferenceID,
		Description:   desc,
		CreatedBy:     actor,
		Lines:         lines,
	})
}

package ledger

import (
	"sort"
	"time"
)

// AccountType classifies an account in the chart of accounts.
type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// Valid reports whether t is one of the five account classes.
func (t AccountType) Valid() bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense:
		return true
	}
	return false
}

// NormalSide is the side that increases an account of this type.
func (t AccountType) NormalSide() EntryType {
	if t == AccountAsset || t == AccountExpense {
		return Debit
	}
	return Credit
}

// EntryType is the side of a journal line.
type EntryType string

const (
	Debit  EntryType = "debit"
	Credit EntryType = "credit"
)

func (e EntryType) Valid() bool { return e == Debit || e == Credit }

// Opposite returns the other side.
func (e EntryType) Opposite() EntryType {
	if e == Debit {
		return Credit
	}
	return Debit
}

// ReferenceType names the business object a journal entry originates from.
type ReferenceType string

const (
	RefPayin      ReferenceType = "payin"
	RefPayout     ReferenceType = "payout"
	RefDispute    ReferenceType = "dispute"
	RefSettlement ReferenceType = "settlement"
	RefAdjustment ReferenceType = "adjustment"
	RefOpening    ReferenceType = "opening"
	RefReversal   ReferenceType = "reversal"
)

func (r ReferenceType) Valid() bool {
	switch r {
	case RefPayin, RefPayout, RefDispute, RefSettlement, RefAdjustment, RefOpening, RefReversal:
		return true
	}
	return false
}

// EntityType is the kind of party an account belongs to.
type EntityType string

const (
	EntityMerchant  EntityType = "merchant"
	EntityTrader    EntityType = "trader"
	EntityAffiliate EntityType = "affiliate"
	EntitySystem    EntityType = "system"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityMerchant, EntityTrader, EntityAffiliate, EntitySystem:
		return true
	}
	return false
}

// EntityRef links an account to a merchant, trader or system pool.
type EntityRef struct {
	Type EntityType `json:"entity_type"`
	ID   string     `json:"entity_id"`
}

func (r EntityRef) String() string { return string(r.Type) + ":" + r.ID }

// Account is a row of the chart of accounts. CurrentBalance is a cached
// projection maintained by the posting path only.
type Account struct {
	Code           string      `json:"code"`
	Name           string      `json:"name"`
	Type           AccountType `json:"account_type"`
	Entity         *EntityRef  `json:"entity,omitempty"`
	CurrentBalance int64       `json:"current_balance"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SignedAmount is the change a line of the given side and amount makes to the
// balance of an account of type t.
func SignedAmount(t AccountType, side EntryType, amount int64) int64 {
	if side == t.NormalSide() {
		return amount
	}
	return -amount
}

// EntryStatus of a persisted journal entry. Entries are immutable so the
// only value written today is posted.
type EntryStatus string

const EntryPosted EntryStatus = "posted"

// LineRequest is one requested debit or credit.
type LineRequest struct {
	AccountCode string    `json:"account_code"`
	EntryType   EntryType `json:"entry_type"`
	Amount      int64     `json:"amount"`
}

// PostRequest is the input to Engine.Post.
type PostRequest struct {
	EntryDate     time.Time     `json:"entry_date"`
	ReferenceType ReferenceType `json:"reference_type"`
	ReferenceID   string        `json:"reference_id"`
	Description   string        `json:"description"`
	CreatedBy     string        `json:"created_by"`
	Lines         []LineRequest `json:"lines"`
}

// JournalEntry is an immutable balanced record of one business event.
type JournalEntry struct {
	EntryNumber   int64         `json:"entry_number"`
	EntryDate     time.Time     `json:"entry_date"`
	ReferenceType ReferenceType `json:"reference_type"`
	ReferenceID   string        `json:"reference_id"`
	Description   string        `json:"description"`
	TotalAmount   int64         `json:"total_amount"`
	Status        EntryStatus   `json:"status"`
	CreatedBy     string        `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	Lines         []JournalLine `json:"lines"`

	// Replayed is set when the call matched an entry that was already posted.
	Replayed bool `json:"replayed,omitempty"`
}

// JournalLine is one side of a journal entry. BalanceAfter is the account's
// running balance immediately after the line was applied.
type JournalLine struct {
	EntryNumber   int64         `json:"entry_number"`
	LineNo        int           `json:"line_no"`
	AccountCode   string        `json:"account_code"`
	EntryType     EntryType     `json:"entry_type"`
	Amount        int64         `json:"amount"`
	BalanceAfter  int64         `json:"balance_after"`
	EntryDate     time.Time     `json:"entry_date"`
	ReferenceType ReferenceType `json:"reference_type,omitempty"`
	ReferenceID   string        `json:"reference_id,omitempty"`
	Description   string        `json:"description,omitempty"`
}

// lineKey identifies a line irrespective of its position in the entry.
type lineKey struct {
	code   string
	side   EntryType
	amount int64
}

// sameLines reports whether the persisted lines carry exactly the requested
// postings, ignoring order.
func sameLines(persisted []JournalLine, requested []LineRequest) bool {
	if len(persisted) != len(requested) {
		return false
	}
	a := make([]lineKey, 0, len(persisted))
	for _, l := range persisted {
		a = append(a, lineKey{l.AccountCode, l.EntryType, l.Amount})
	}
	b := make([]lineKey, 0, len(requested))
	for _, l := range requested {
		b = append(b, lineKey{l.AccountCode, l.EntryType, l.Amount})
	}
	sortKeys(a)
	sortKeys(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortKeys(keys []lineKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].code != keys[j].code {
			return keys[i].code < keys[j].code
		}
		if keys[i].side != keys[j].side {
			return keys[i].side < keys[j].side
		}
		return keys[i].amount < keys[j].amount
	})
}

// AccountFilter narrows ListAccounts. Zero values match everything.
type AccountFilter struct {
	Type       AccountType
	EntityType EntityType
}

// AccountTotal is the debit and credit activity of one account.
type AccountTotal struct {
	Account Account `json:"account"`
	Debits  int64   `json:"debits"`
	Credits int64   `json:"credits"`
}

// Balance returns the signed balance implied by the totals.
func (t AccountTotal) Balance() int64 {
	if t.Account.Type.NormalSide() == Debit {
		return t.Debits - t.Credits
	}
	return t.Credits - t.Debits
}

// EntryStats summarises the journal for integrity checks.
type EntryStats struct {
	Count          int64
	MinNumber      int64
	MaxNumber      int64
	SequenceValue  int64
	UnbalancedRefs []int64
}

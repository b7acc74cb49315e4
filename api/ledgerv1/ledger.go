// Package ledgerv1 holds the wire types and service descriptor of the
// gatewayledger.v1.LedgerService gRPC API. Messages are carried by the JSON
// codec registered in codec.go.
package ledgerv1

// Money is a decimal amount in the ledger currency. Currency may be left
// empty on requests; when set it must match the ledger's.
type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

type Entity struct {
	Type string `json:"entity_type"`
	ID   string `json:"entity_id"`
}

type Account struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	AccountType string  `json:"account_type"`
	Entity      *Entity `json:"entity,omitempty"`
	Balance     Money   `json:"balance"`
	CreatedAt   string  `json:"created_at"`
}

type CreateAccountRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	AccountType string  `json:"account_type"`
	Entity      *Entity `json:"entity,omitempty"`
}

type GetAccountRequest struct {
	Code string `json:"code"`
}

type ListAccountsRequest struct {
	AccountType string `json:"account_type,omitempty"`
	EntityType  string `json:"entity_type,omitempty"`
}

type ListAccountsResponse struct {
	Accounts []*Account `json:"accounts"`
}

type GetBalanceRequest struct {
	Code string `json:"code"`
}

type GetBalanceResponse struct {
	Code    string `json:"code"`
	Balance Money  `json:"balance"`
}

type Line struct {
	AccountCode string `json:"account_code"`
	EntryType   string `json:"entry_type"`
	Amount      Money  `json:"amount"`
}

type PostEntryRequest struct {
	ReferenceType string  `json:"reference_type"`
	ReferenceID   string  `json:"reference_id"`
	Description   string  `json:"description,omitempty"`
	// EntryDate is RFC 3339; empty means now.
	EntryDate     string  `json:"entry_date,omitempty"`
	Lines         []*Line `json:"lines"`
}

type JournalLine struct {
	EntryNumber   int64  `json:"entry_number"`
	LineNo        int32  `json:"line_no"`
	AccountCode   string `json:"account_code"`
	EntryType     string `json:"entry_type"`
	Amount        Money  `json:"amount"`
	BalanceAfter  Money  `json:"balance_after"`
	EntryDate     string `json:"entry_date"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

type JournalEntry struct {
	EntryNumber   int64          `json:"entry_number"`
	EntryDate     string         `json:"entry_date"`
	ReferenceType string         `json:"reference_type"`
	ReferenceID   string         `json:"reference_id"`
	Description   string         `json:"description"`
	Total         Money          `json:"total"`
	Status        string         `json:"status"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     string         `json:"created_at"`
	Replayed      bool           `json:"replayed,omitempty"`
	Lines         []*JournalLine `json:"lines"`
}

type GetEntryRequest struct {
	EntryNumber int64 `json:"entry_number"`
}

type TrialBalanceRequest struct{}

type TrialBalanceLine struct {
	AccountCode   string `json:"account_code"`
	AccountName   string `json:"account_name"`
	AccountType   string `json:"account_type"`
	DebitBalance  Money  `json:"debit_balance"`
	CreditBalance Money  `json:"credit_balance"`
}

type TrialBalanceResponse struct {
	Lines        []*TrialBalanceLine `json:"lines"`
	TotalDebits  Money               `json:"total_debits"`
	TotalCredits Money               `json:"total_credits"`
	Balanced     bool                `json:"balanced"`
	AsOf         string              `json:"as_of"`
}

type ProfitAndLossRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ProfitAndLossLine struct {
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	Amount      Money  `json:"amount"`
}

type ProfitAndLossResponse struct {
	From         string               `json:"from"`
	To           string               `json:"to"`
	RevenueLines []*ProfitAndLossLine `json:"revenue_lines"`
	ExpenseLines []*ProfitAndLossLine `json:"expense_lines"`
	TotalRevenue Money                `json:"total_revenue"`
	TotalExpense Money                `json:"total_expense"`
	NetProfit    Money                `json:"net_profit"`
}

type AccountStatementRequest struct {
	Code  string `json:"code"`
	Limit int32  `json:"limit,omitempty"`
}

type AccountStatementResponse struct {
	Code  string         `json:"code"`
	Lines []*JournalLine `json:"lines"`
}

type Destination struct {
	Kind       string `json:"kind"`
	Address    string `json:"address"`
	Network    string `json:"network,omitempty"`
	HolderName string `json:"holder_name,omitempty"`
}

type RequestWithdrawalRequest struct {
	EntityType  string       `json:"entity_type"`
	EntityID    string       `json:"entity_id"`
	Amount      Money        `json:"amount"`
	Destination *Destination `json:"destination"`
}

type RequestWithdrawalResponse struct {
	RequestID     string `json:"request_id"`
	ReservationID string `json:"reservation_id"`
	Status        string `json:"status"`
	State         string `json:"state"`
	EntryNumber   int64  `json:"entry_number"`
	Amount        Money  `json:"amount"`
}

type PostAdjustmentRequest struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Amount      Money  `json:"amount"`
	IsCredit    bool   `json:"is_credit"`
	ReasonCode  string `json:"reason_code"`
	ReasonNote  string `json:"reason_note"`
	ReferenceID string `json:"reference_id,omitempty"`
}

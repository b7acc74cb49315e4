package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/security"
)

var (
	errRequired = errors.New("is required")
	errBadDate  = errors.New("must be an RFC 3339 timestamp or a YYYY-MM-DD date")
)

type handlers struct {
	deps Dependencies
}

func (h *handlers) present() presenter { return presenter{cur: h.deps.Currency} }

type createAccountRequest struct {
	Code        string            `json:"code"`
	Name        string            `json:"name"`
	AccountType string            `json:"account_type"`
	Entity      *ledger.EntityRef `json:"entity"`
}

type lineRequest struct {
	AccountCode string `json:"account_code"`
	EntryType   string `json:"entry_type"`
	Amount      string `json:"amount"`
}

type postEntryRequest struct {
	ReferenceType string        `json:"reference_type"`
	ReferenceID   string        `json:"reference_id"`
	Description   string        `json:"description"`
	EntryDate     *time.Time    `json:"entry_date"`
	Lines         []lineRequest `json:"lines"`
}

type feeShareRequest struct {
	AccountCode string `json:"account_code"`
	Amount      string `json:"amount"`
}

type completedRequest struct {
	ReferenceType   string            `json:"reference_type"`
	ReferenceID     string            `json:"reference_id"`
	EntityAccount   string            `json:"entity_account"`
	ClearingAccount string            `json:"clearing_account"`
	Amount          string            `json:"amount"`
	Description     string            `json:"description"`
	FeeSplit        []feeShareRequest `json:"fee_split"`
}

type balanceResponse struct {
	CorrelationID string `json:"correlation_id"`
	AccountCode   string `json:"account_code"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
}

type listAccountsResponse struct {
	CorrelationID string        `json:"correlation_id"`
	Accounts      []accountView `json:"accounts"`
}

type statementResponse struct {
	CorrelationID string     `json:"correlation_id"`
	AccountCode   string     `json:"account_code"`
	Lines         []lineView `json:"lines"`
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Ready(ctx); err != nil {
			h.deps.Logger.Warn("readiness_failed", "err", err)
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "not_ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) jwks(w http.ResponseWriter, r *http.Request) {
	set, err := h.deps.Keys.JWKS()
	if err != nil {
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, r, http.StatusOK, set)
}

func (h *handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	if h.deps.Accounts == nil {
		unavailable(w, r)
		return
	}

	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.deps.Accounts.CreateAccount(r.Context(), ledger.CreateAccountRequest{
		Code:   req.Code,
		Name:   req.Name,
		Type:   ledger.AccountType(req.AccountType),
		Entity: req.Entity,
	})
	if err != nil {
		h.writeLedgerError(w, r, "create account", err)
		return
	}

	writeJSON(w, r, http.StatusCreated, h.present().account(account))
}

func (h *handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Accounts == nil {
		unavailable(w, r)
		return
	}

	q := r.URL.Query()
	accounts, err := h.deps.Accounts.ListAccounts(r.Context(), ledger.AccountFilter{
		Type:       ledger.AccountType(q.Get("account_type")),
		EntityType: ledger.EntityType(q.Get("entity_type")),
	})
	if err != nil {
		h.writeLedgerError(w, r, "list accounts", err)
		return
	}

	views := make([]accountView, 0, len(accounts))
	for i := range accounts {
		views = append(views, h.present().account(&accounts[i]))
	}
	writeJSON(w, r, http.StatusOK, listAccountsResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		Accounts:      views,
	})
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	if h.deps.Accounts == nil {
		unavailable(w, r)
		return
	}

	account, err := h.deps.Accounts.GetAccount(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeLedgerError(w, r, "get account", err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.present().account(account))
}

func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	if h.deps.Accounts == nil {
		unavailable(w, r)
		return
	}

	code := chi.URLParam(r, "code")
	bal, err := h.deps.Accounts.GetBalance(r.Context(), code)
	if err != nil {
		h.writeLedgerError(w, r, "get balance", err)
		return
	}

	writeJSON(w, r, http.StatusOK, balanceResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		AccountCode:   code,
		Balance:       h.deps.Currency.Format(bal),
		Currency:      h.deps.Currency.Code,
	})
}

func (h *handlers) verifyBalance(w http.ResponseWriter, r *http.Request) {
	if h.deps.Accounts == nil {
		unavailable(w, r)
		return
	}

	check, err := h.deps.Accounts.VerifyBalance(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeLedgerError(w, r, "verify balance", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"account_code": check.Code,
		"cached":       h.deps.Currency.Format(check.Cached),
		"computed":     h.deps.Currency.Format(check.Computed),
		"match":        check.Match,
	})
}

func (h *handlers) accountStatement(w http.ResponseWriter, r *http.Request) {
	if h.deps.Reports == nil {
		unavailable(w, r)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			security.WriteError(w, r, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	code := chi.URLParam(r, "code")
	lines, err := h.deps.Reports.AccountStatement(r.Context(), code, limit)
	if err != nil {
		h.writeLedgerError(w, r, "account statement", err)
		return
	}
	writeJSON(w, r, http.StatusOK, statementResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		AccountCode:   code,
		Lines:         h.present().lines(lines),
	})
}

func (h *handlers) postEntry(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		unavailable(w, r)
		return
	}

	var req postEntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post := ledger.PostRequest{
		ReferenceType: ledger.ReferenceType(req.ReferenceType),
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
		CreatedBy:     actorOf(r),
		Lines:         make([]ledger.LineRequest, 0, len(req.Lines)),
	}
	if req.EntryDate != nil {
		post.EntryDate = *req.EntryDate
	}
	for i, l := range req.Lines {
		amount, err := h.deps.Currency.Parse(l.Amount)
		if err != nil {
			security.WriteError(w, r, http.StatusBadRequest, "validation_error", "lines/"+strconv.Itoa(i)+"/amount: "+ledger.UserMessage(err))
			return
		}
		post.Lines = append(post.Lines, ledger.LineRequest{
			AccountCode: l.AccountCode,
			EntryType:   ledger.EntryType(l.EntryType),
			Amount:      amount,
		})
	}

	entry, err := h.deps.Journal.Post(r.Context(), post)
	if err != nil {
		h.writeLedgerError(w, r, "post entry", err)
		return
	}
	writeJSON(w, r, entryStatus(entry), h.present().entry(entry))
}

func (h *handlers) postCompleted(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		unavailable(w, r)
		return
	}

	var req completedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := h.deps.Currency.Parse(req.Amount)
	if err != nil {
		security.WriteError(w, r, http.StatusBadRequest, "validation_error", "amount: "+ledger.UserMessage(err))
		return
	}
	tx := ledger.CompletedTransaction{
		ReferenceType:   ledger.ReferenceType(req.ReferenceType),
		ReferenceID:     req.ReferenceID,
		EntityAccount:   req.EntityAccount,
		ClearingAccount: req.ClearingAccount,
		Amount:          amount,
		Description:     req.Description,
	}
	for i, f := range req.FeeSplit {
		fee, err := h.deps.Currency.Parse(f.Amount)
		if err != nil {
			security.WriteError(w, r, http.StatusBadRequest, "validation_error", "fee_split/"+strconv.Itoa(i)+"/amount: "+ledger.UserMessage(err))
			return
		}
		tx.FeeSplit = append(tx.FeeSplit, ledger.FeeShare{AccountCode: f.AccountCode, Amount: fee})
	}

	entry, err := h.deps.Journal.PostCompleted(r.Context(), tx, actorOf(r))
	if err != nil {
		h.writeLedgerError(w, r, "post completed transaction", err)
		return
	}
	writeJSON(w, r, entryStatus(entry), h.present().entry(entry))
}

func (h *handlers) getEntry(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		unavailable(w, r)
		return
	}

	number, ok := entryNumberParam(w, r)
	if !ok {
		return
	}
	entry, err := h.deps.Journal.GetEntry(r.Context(), number)
	if err != nil {
		h.writeLedgerError(w, r, "get entry", err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.present().entry(entry))
}

func (h *handlers) trialBalance(w http.ResponseWriter, r *http.Request) {
	if h.deps.Reports == nil {
		unavailable(w, r)
		return
	}

	tb, err := h.deps.Reports.TrialBalance(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "trial balance", err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.present().trialBalance(tb))
}

func (h *handlers) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	if h.deps.Reports == nil {
		unavailable(w, r)
		return
	}

	from, err := parsePeriodBound(r.URL.Query().Get("from"))
	if err != nil {
		security.WriteError(w, r, http.StatusBadRequest, "validation_error", "from: "+err.Error())
		return
	}
	to, err := parsePeriodBound(r.URL.Query().Get("to"))
	if err != nil {
		security.WriteError(w, r, http.StatusBadRequest, "validation_error", "to: "+err.Error())
		return
	}

	pl, err := h.deps.Reports.ProfitAndLoss(r.Context(), ledger.Period{From: from, To: to})
	if err != nil {
		h.writeLedgerError(w, r, "profit and loss", err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.present().profitAndLoss(pl))
}

// entryStatus answers a replayed post with 200 so clients can tell it
// apart from a fresh entry.
func entryStatus(e *ledger.JournalEntry) int {
	if e.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

func entryNumberParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	if err != nil || n <= 0 {
		security.WriteError(w, r, http.StatusBadRequest, "validation_error", "entry number must be a positive integer")
		return 0, false
	}
	return n, true
}

// parsePeriodBound accepts RFC 3339 timestamps or plain dates, which are
// read as midnight UTC.
func parsePeriodBound(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errRequired
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errBadDate
	}
	return t, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SystemAccounts names the accounts the ledger itself posts against.
type SystemAccounts struct {
	FeeRevenue         string
	SettlementClearing string
	AdjustmentClearing string
	OpeningEquity      string
}

func DefaultSystemAccounts() SystemAccounts {
	return SystemAccounts{
		FeeRevenue:         "REVENUE_FEES",
		SettlementClearing: "SETTLEMENT_CLEARING",
		AdjustmentClearing: "ADJUSTMENTS_CLEARING",
		OpeningEquity:      "OPENING_BALANCE_EQUITY",
	}
}

// CreateAccountRequest is the input to Registry.CreateAccount.
type CreateAccountRequest struct {
	Code   string      `json:"code" validate:"required,max=50,account_code"`
	Name   string      `json:"name" validate:"required,max=200"`
	Type   AccountType `json:"account_type" validate:"required,oneof=asset liability equity revenue expense"`
	Entity *EntityRef  `json:"entity,omitempty"`
}

// BalanceCheck compares the cached balance of an account with the sum of
// its lines.
type BalanceCheck struct {
	Code     string `json:"code"`
	Cached   int64  `json:"cached"`
	Computed int64  `json:"computed"`
	Match    bool   `json:"match"`
}

// Registry owns the chart of accounts.
type Registry struct {
	store Store
	opts  Options
}

func NewRegistry(store Store, opts Options) *Registry {
	return &Registry{store: store, opts: opts.withDefaults()}
}

// CreateAccount adds an account. Codes are unique and an entity owns at
// most one account.
func (r *Registry) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	const op = "create account"
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := checkStruct(op, req); err != nil {
		return nil, err
	}
	if req.Entity != nil {
		if err := checkEntity(op, *req.Entity); err != nil {
			return nil, err
		}
	}

	acct := Account{
		Code:      req.Code,
		Name:      req.Name,
		Type:      req.Type,
		Entity:    req.Entity,
		CreatedAt: r.opts.Now().UTC().Truncate(time.Microsecond),
	}
	err := r.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if acct.Entity != nil {
			existing, err := tx.FindEntityAccount(ctx, *acct.Entity)
			switch {
			case err == nil:
				return newError(KindDuplicateCode, op, "%s already owns account %s", acct.Entity, existing.Code)
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}
		return tx.InsertAccount(ctx, acct)
	})
	if err != nil {
		r.opts.Logger.Warn("account_create_failed", "code", req.Code, "kind", KindOf(err), "err", err)
		return nil, err
	}
	r.opts.Logger.Info("account_created", "code", acct.Code, "type", acct.Type)
	return &acct, nil
}

func (r *Registry) GetAccount(ctx context.Context, code string) (*Account, error) {
	return r.store.GetAccount(ctx, code)
}

func (r *Registry) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, validationError("list accounts", "unknown account type %q", filter.Type)
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return nil, validationError("list accounts", "unknown entity type %q", filter.EntityType)
	}
	return r.store.ListAccounts(ctx, filter)
}

// GetBalance returns the authoritative balance of code, summed from its
// journal lines rather than read from the cache.
func (r *Registry) GetBalance(ctx context.Context, code string) (int64, error) {
	if _, err := r.store.GetAccount(ctx, code); err != nil {
		return 0, err
	}
	return r.store.SumAccountLines(ctx, code)
}

// VerifyBalance recomputes the balance of code and compares it with the
// cached projection, inside one snapshot.
func (r *Registry) VerifyBalance(ctx context.Context, code string) (*BalanceCheck, error) {
	var check *BalanceCheck
	err := r.store.Snapshot(ctx, func(ctx context.Context, q Queries) error {
		acct, err := q.GetAccount(ctx, code)
		if err != nil {
			return err
		}
		sum, err := q.SumAccountLines(ctx, code)
		if err != nil {
			return err
		}
		check = &BalanceCheck{Code: code, Cached: acct.CurrentBalance, Computed: sum, Match: acct.CurrentBalance == sum}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !check.Match {
		r.opts.Logger.Error("balance_mismatch", "code", code, "cached", check.Cached, "computed", check.Computed)
	}
	return check, nil
}

// EnsureSystemAccounts creates any missing system account.
func (r *Registry) EnsureSystemAccounts(ctx context.Context, sys SystemAccounts) error {
	wanted := []CreateAccountRequest{
		{Code: sys.FeeRevenue, Name: "Fee revenue", Type: AccountRevenue},
		{Code: sys.SettlementClearing, Name: "Settlement clearing", Type: AccountAsset},
		{Code: sys.AdjustmentClearing, Name: "Adjustments clearing", Type: AccountEquity},
		{Code: sys.OpeningEquity, Name: "Opening balance equity", Type: AccountEquity},
	}
	for _, req := range wanted {
		if req.Code == "" {
			continue
		}
		existing, err := r.store.GetAccount(ctx, req.Code)
		if err == nil {
			if existing.Type != req.Type {
				return fmt.Errorf("system account %s has type %s, want %s", req.Code, existing.Type, req.Type)
			}
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("lookup system account %s: %w", req.Code, err)
		}
		req.Entity = &EntityRef{Type: EntitySystem, ID: req.Code}
		if _, err := r.CreateAccount(ctx, req); err != nil && !errors.Is(err, ErrDuplicateCode) {
			return fmt.Errorf("create system account %s: %w", req.Code, err)
		}
	}
	return nil
}

func checkEntity(op string, ref EntityRef) error {
	if !ref.Type.Valid() {
		return validationError(op, "entity_type must be one of: merchant, trader, affiliate, system")
	}
	if ref.ID == "" || len(ref.ID) > 100 {
		return validationError(op, "entity_id must be between 1 and 100 characters")
	}
	return nil
}

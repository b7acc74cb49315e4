package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/example/gateway-ledger/api/ledgerv1"
	"github.com/example/gateway-ledger/internal/auth"
	"github.com/example/gateway-ledger/internal/ledger"
)

type server struct {
	ledgerv1.UnimplementedLedgerServiceServer

	svc  Services
	opts Options
	conv converter
}

func actor(ctx context.Context) string {
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		return p.Actor
	}
	return ""
}

func (s *server) fail(op string, err error) error {
	return toStatus(s.opts.Logger, op, err)
}

func (s *server) CreateAccount(ctx context.Context, in *ledgerv1.CreateAccountRequest) (*ledgerv1.Account, error) {
	req := ledger.CreateAccountRequest{
		Code: in.Code,
		Name: in.Name,
		Type: ledger.AccountType(in.AccountType),
	}
	if in.Entity != nil {
		req.Entity = &ledger.EntityRef{Type: ledger.EntityType(in.Entity.Type), ID: in.Entity.ID}
	}
	a, err := s.svc.Registry.CreateAccount(ctx, req)
	if err != nil {
		return nil, s.fail("create account", err)
	}
	return s.conv.account(a), nil
}

func (s *server) GetAccount(ctx context.Context, in *ledgerv1.GetAccountRequest) (*ledgerv1.Account, error) {
	a, err := s.svc.Registry.GetAccount(ctx, in.Code)
	if err != nil {
		return nil, s.fail("get account", err)
	}
	return s.conv.account(a), nil
}

func (s *server) ListAccounts(ctx context.Context, in *ledgerv1.ListAccountsRequest) (*ledgerv1.ListAccountsResponse, error) {
	list, err := s.svc.Registry.ListAccounts(ctx, ledger.AccountFilter{
		Type:       ledger.AccountType(in.AccountType),
		EntityType: ledger.EntityType(in.EntityType),
	})
	if err != nil {
		return nil, s.fail("list accounts", err)
	}
	out := &ledgerv1.ListAccountsResponse{Accounts: make([]*ledgerv1.Account, 0, len(list))}
	for i := range list {
		out.Accounts = append(out.Accounts, s.conv.account(&list[i]))
	}
	return out, nil
}

func (s *server) GetBalance(ctx context.Context, in *ledgerv1.GetBalanceRequest) (*ledgerv1.GetBalanceResponse, error) {
	bal, err := s.svc.Registry.GetBalance(ctx, in.Code)
	if err != nil {
		return nil, s.fail("get balance", err)
	}
	return &ledgerv1.GetBalanceResponse{Code: in.Code, Balance: s.conv.money(bal)}, nil
}

func (s *server) PostEntry(ctx context.Context, in *ledgerv1.PostEntryRequest) (*ledgerv1.JournalEntry, error) {
	req := ledger.PostRequest{
		ReferenceType: ledger.ReferenceType(in.ReferenceType),
		ReferenceID:   in.ReferenceID,
		Description:   in.Description,
		CreatedBy:     actor(ctx),
		Lines:         make([]ledger.LineRequest, 0, len(in.Lines)),
	}
	switch req.ReferenceType {
	case ledger.RefAdjustment, ledger.RefReversal:
		return nil, invalidArgument("reference_type: " + string(req.ReferenceType) + " entries have their own operations")
	}
	if in.EntryDate != "" {
		t, err := time.Parse(time.RFC3339, in.EntryDate)
		if err != nil {
			return nil, invalidArgument("entry_date must be RFC 3339")
		}
		req.EntryDate = t
	}
	for _, l := range in.Lines {
		if l == nil {
			return nil, invalidArgument("lines must not contain null")
		}
		amount, err := s.conv.parseMoney("lines.amount", l.Amount)
		if err != nil {
			return nil, err
		}
		req.Lines = append(req.Lines, ledger.LineRequest{
			AccountCode: l.AccountCode,
			EntryType:   ledger.EntryType(l.EntryType),
			Amount:      amount,
		})
	}

	entry, err := s.svc.Engine.Post(ctx, req)
	if err != nil {
		return nil, s.fail("post entry", err)
	}
	return s.conv.entry(entry), nil
}

func (s *server) GetEntry(ctx context.Context, in *ledgerv1.GetEntryRequest) (*ledgerv1.JournalEntry, error) {
	entry, err := s.svc.Engine.GetEntry(ctx, in.EntryNumber)
	if err != nil {
		return nil, s.fail("get entry", err)
	}
	return s.conv.entry(entry), nil
}

func (s *server) TrialBalance(ctx context.Context, _ *ledgerv1.TrialBalanceRequest) (*ledgerv1.TrialBalanceResponse, error) {
	tb, err := s.svc.Views.TrialBalance(ctx)
	if err != nil {
		return nil, s.fail("trial balance", err)
	}
	return s.conv.trialBalance(tb), nil
}

func (s *server) ProfitAndLoss(ctx context.Context, in *ledgerv1.ProfitAndLossRequest) (*ledgerv1.ProfitAndLossResponse, error) {
	from, err := time.Parse(time.RFC3339, in.From)
	if err != nil {
		return nil, invalidArgument("from must be RFC 3339")
	}
	to, err := time.Parse(time.RFC3339, in.To)
	if err != nil {
		return nil, invalidArgument("to must be RFC 3339")
	}
	pl, err := s.svc.Views.ProfitAndLoss(ctx, ledger.Period{From: from, To: to})
	if err != nil {
		return nil, s.fail("profit and loss", err)
	}
	return s.conv.profitAndLoss(pl), nil
}

func (s *server) AccountStatement(ctx context.Context, in *ledgerv1.AccountStatementRequest) (*ledgerv1.AccountStatementResponse, error) {
	lines, err := s.svc.Views.AccountStatement(ctx, in.Code, int(in.Limit))
	if err != nil {
		return nil, s.fail("account statement", err)
	}
	return &ledgerv1.AccountStatementResponse{Code: in.Code, Lines: s.conv.lines(lines)}, nil
}

func (s *server) RequestWithdrawal(ctx context.Context, in *ledgerv1.RequestWithdrawalRequest) (*ledgerv1.RequestWithdrawalResponse, error) {
	amount, err := s.conv.parseMoney("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	req := ledger.WithdrawalRequest{
		EntityType:  ledger.EntityType(in.EntityType),
		EntityID:    in.EntityID,
		Amount:      amount,
		RequestedBy: actor(ctx),
	}
	if in.Destination != nil {
		req.Destination = ledger.Destination{
			Kind:       ledger.DestinationKind(in.Destination.Kind),
			Address:    in.Destination.Address,
			Network:    in.Destination.Network,
			HolderName: in.Destination.HolderName,
		}
	}

	res, err := s.svc.Coordinator.RequestWithdrawal(ctx, req)
	if err != nil {
		return nil, s.fail("request withdrawal", err)
	}
	return &ledgerv1.RequestWithdrawalResponse{
		RequestID:     res.RequestID,
		ReservationID: res.ReservationID,
		Status:        string(res.Status),
		State:         string(res.State),
		EntryNumber:   res.EntryNumber,
		Amount:        s.conv.money(res.Amount),
	}, nil
}

func (s *server) PostAdjustment(ctx context.Context, in *ledgerv1.PostAdjustmentRequest) (*ledgerv1.JournalEntry, error) {
	if !peerAllowed(ctx, s.opts.AdminAllowlist) {
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	}
	amount, err := s.conv.parseMoney("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	entry, err := s.svc.Adjustments.PostAdjustment(ctx, ledger.AdjustmentRequest{
		EntityType: ledger.EntityType(in.EntityType),
		EntityID:   in.EntityID,
		Amount:     amount,
		IsCredit:   in.IsCredit,
		Reason: ledger.AdjustmentReason{
			Code: ledger.AdjustmentReasonCode(in.ReasonCode),
			Note: in.ReasonNote,
		},
		ActorID:     actor(ctx),
		ReferenceID: in.ReferenceID,
	})
	if err != nil {
		return nil, s.fail("post adjustment", err)
	}
	return s.conv.entry(entry), nil
}

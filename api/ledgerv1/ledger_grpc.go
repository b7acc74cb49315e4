package ledgerv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "gatewayledger.v1.LedgerService"

// Full method names, as seen by interceptors.
const (
	CreateAccountFullMethod     = "/" + ServiceName + "/CreateAccount"
	GetAccountFullMethod        = "/" + ServiceName + "/GetAccount"
	ListAccountsFullMethod      = "/" + ServiceName + "/ListAccounts"
	GetBalanceFullMethod        = "/" + ServiceName + "/GetBalance"
	PostEntryFullMethod         = "/" + ServiceName + "/PostEntry"
	GetEntryFullMethod          = "/" + ServiceName + "/GetEntry"
	TrialBalanceFullMethod      = "/" + ServiceName + "/TrialBalance"
	ProfitAndLossFullMethod     = "/" + ServiceName + "/ProfitAndLoss"
	AccountStatementFullMethod  = "/" + ServiceName + "/AccountStatement"
	RequestWithdrawalFullMethod = "/" + ServiceName + "/RequestWithdrawal"
	PostAdjustmentFullMethod    = "/" + ServiceName + "/PostAdjustment"
)

type LedgerServiceClient interface {
	CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*Account, error)
	GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*Account, error)
	ListAccounts(ctx context.Context, in *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error)
	GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceResponse, error)
	PostEntry(ctx context.Context, in *PostEntryRequest, opts ...grpc.CallOption) (*JournalEntry, error)
	GetEntry(ctx context.Context, in *GetEntryRequest, opts ...grpc.CallOption) (*JournalEntry, error)
	TrialBalance(ctx context.Context, in *TrialBalanceRequest, opts ...grpc.CallOption) (*TrialBalanceResponse, error)
	ProfitAndLoss(ctx context.Context, in *ProfitAndLossRequest, opts ...grpc.CallOption) (*ProfitAndLossResponse, error)
	AccountStatement(ctx context.Context, in *AccountStatementRequest, opts ...grpc.CallOption) (*AccountStatementResponse, error)
	RequestWithdrawal(ctx context.Context, in *RequestWithdrawalRequest, opts ...grpc.CallOption) (*RequestWithdrawalResponse, error)
	PostAdjustment(ctx context.Context, in *PostAdjustmentRequest, opts ...grpc.CallOption) (*JournalEntry, error)
}

type ledgerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerServiceClient(cc grpc.ClientConnInterface) LedgerServiceClient {
	return &ledgerServiceClient{cc: cc}
}

func (c *ledgerServiceClient) CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*Account, error) {
	out := new(Account)
	if err := c.cc.Invoke(ctx, CreateAccountFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*Account, error) {
	out := new(Account)
	if err := c.cc.Invoke(ctx, GetAccountFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) ListAccounts(ctx context.Context, in *ListAccountsRequest, opts ...grpc.CallOption) (*ListAccountsResponse, error) {
	out := new(ListAccountsResponse)
	if err := c.cc.Invoke(ctx, ListAccountsFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceResponse, error) {
	out := new(GetBalanceResponse)
	if err := c.cc.Invoke(ctx, GetBalanceFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) PostEntry(ctx context.Context, in *PostEntryRequest, opts ...grpc.CallOption) (*JournalEntry, error) {
	out := new(JournalEntry)
	if err := c.cc.Invoke(ctx, PostEntryFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) GetEntry(ctx context.Context, in *GetEntryRequest, opts ...grpc.CallOption) (*JournalEntry, error) {
	out := new(JournalEntry)
	if err := c.cc.Invoke(ctx, GetEntryFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) TrialBalance(ctx context.Context, in *TrialBalanceRequest, opts ...grpc.CallOption) (*TrialBalanceResponse, error) {
	out := new(TrialBalanceResponse)
	if err := c.cc.Invoke(ctx, TrialBalanceFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) ProfitAndLoss(ctx context.Context, in *ProfitAndLossRequest, opts ...grpc.CallOption) (*ProfitAndLossResponse, error) {
	out := new(ProfitAndLossResponse)
	if err := c.cc.Invoke(ctx, ProfitAndLossFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) AccountStatement(ctx context.Context, in *AccountStatementRequest, opts ...grpc.CallOption) (*AccountStatementResponse, error) {
	out := new(AccountStatementResponse)
	if err := c.cc.Invoke(ctx, AccountStatementFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) RequestWithdrawal(ctx context.Context, in *RequestWithdrawalRequest, opts ...grpc.CallOption) (*RequestWithdrawalResponse, error) {
	out := new(RequestWithdrawalResponse)
	if err := c.cc.Invoke(ctx, RequestWithdrawalFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerServiceClient) PostAdjustment(ctx context.Context, in *PostAdjustmentRequest, opts ...grpc.CallOption) (*JournalEntry, error) {
	out := new(JournalEntry)
	if err := c.cc.Invoke(ctx, PostAdjustmentFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type LedgerServiceServer interface {
	CreateAccount(context.Context, *CreateAccountRequest) (*Account, error)
	GetAccount(context.Context, *GetAccountRequest) (*Account, error)
	ListAccounts(context.Context, *ListAccountsRequest) (*ListAccountsResponse, error)
	GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error)
	PostEntry(context.Context, *PostEntryRequest) (*JournalEntry, error)
	GetEntry(context.Context, *GetEntryRequest) (*JournalEntry, error)
	TrialBalance(context.Context, *TrialBalanceRequest) (*TrialBalanceResponse, error)
	ProfitAndLoss(context.Context, *ProfitAndLossRequest) (*ProfitAndLossResponse, error)
	AccountStatement(context.Context, *AccountStatementRequest) (*AccountStatementResponse, error)
	RequestWithdrawal(context.Context, *RequestWithdrawalRequest) (*RequestWithdrawalResponse, error)
	PostAdjustment(context.Context, *PostAdjustmentRequest) (*JournalEntry, error)
	mustEmbedUnimplementedLedgerServiceServer()
}

// UnimplementedLedgerServiceServer must be embedded by implementations so
// methods added later answer Unimplemented instead of breaking the build.
type UnimplementedLedgerServiceServer struct{}

func (UnimplementedLedgerServiceServer) CreateAccount(context.Context, *CreateAccountRequest) (*Account, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateAccount not implemented")
}

func (UnimplementedLedgerServiceServer) GetAccount(context.Context, *GetAccountRequest) (*Account, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAccount not implemented")
}

func (UnimplementedLedgerServiceServer) ListAccounts(context.Context, *ListAccountsRequest) (*ListAccountsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAccounts not implemented")
}

func (UnimplementedLedgerServiceServer) GetBalance(context.Context, *GetBalanceRequest) (*GetBalanceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetBalance not implemented")
}

func (UnimplementedLedgerServiceServer) PostEntry(context.Context, *PostEntryRequest) (*JournalEntry, error) {
	return nil, status.Error(codes.Unimplemented, "method PostEntry not implemented")
}

func (UnimplementedLedgerServiceServer) GetEntry(context.Context, *GetEntryRequest) (*JournalEntry, error) {
	return nil, status.Error(codes.Unimplemented, "method GetEntry not implemented")
}

func (UnimplementedLedgerServiceServer) TrialBalance(context.Context, *TrialBalanceRequest) (*TrialBalanceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method TrialBalance not implemented")
}

func (UnimplementedLedgerServiceServer) ProfitAndLoss(context.Context, *ProfitAndLossRequest) (*ProfitAndLossResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ProfitAndLoss not implemented")
}

func (UnimplementedLedgerServiceServer) AccountStatement(context.Context, *AccountStatementRequest) (*AccountStatementResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AccountStatement not implemented")
}

func (UnimplementedLedgerServiceServer) RequestWithdrawal(context.Context, *RequestWithdrawalRequest) (*RequestWithdrawalResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestWithdrawal not implemented")
}

func (UnimplementedLedgerServiceServer) PostAdjustment(context.Context, *PostAdjustmentRequest) (*JournalEntry, error) {
	return nil, status.Error(codes.Unimplemented, "method PostAdjustment not implemented")
}

func (UnimplementedLedgerServiceServer) mustEmbedUnimplementedLedgerServiceServer() {}

func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerService_ServiceDesc, srv)
}

func _LedgerService_CreateAccount_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateAccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).CreateAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CreateAccountFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).CreateAccount(ctx, req.(*CreateAccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetAccount_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetAccountFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).GetAccount(ctx, req.(*GetAccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_ListAccounts_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListAccountsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).ListAccounts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListAccountsFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).ListAccounts(ctx, req.(*ListAccountsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetBalance_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetBalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetBalanceFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).GetBalance(ctx, req.(*GetBalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_PostEntry_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PostEntryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).PostEntry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PostEntryFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).PostEntry(ctx, req.(*PostEntryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_GetEntry_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetEntryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).GetEntry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetEntryFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).GetEntry(ctx, req.(*GetEntryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_TrialBalance_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(TrialBalanceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).TrialBalance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: TrialBalanceFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).TrialBalance(ctx, req.(*TrialBalanceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_ProfitAndLoss_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ProfitAndLossRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).ProfitAndLoss(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ProfitAndLossFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).ProfitAndLoss(ctx, req.(*ProfitAndLossRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_AccountStatement_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AccountStatementRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).AccountStatement(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AccountStatementFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).AccountStatement(ctx, req.(*AccountStatementRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_RequestWithdrawal_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RequestWithdrawalRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).RequestWithdrawal(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RequestWithdrawalFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).RequestWithdrawal(ctx, req.(*RequestWithdrawalRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _LedgerService_PostAdjustment_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PostAdjustmentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServiceServer).PostAdjustment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PostAdjustmentFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServiceServer).PostAdjustment(ctx, req.(*PostAdjustmentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var LedgerService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateAccount", Handler: _LedgerService_CreateAccount_Handler},
		{MethodName: "GetAccount", Handler: _LedgerService_GetAccount_Handler},
		{MethodName: "ListAccounts", Handler: _LedgerService_ListAccounts_Handler},
		{MethodName: "GetBalance", Handler: _LedgerService_GetBalance_Handler},
		{MethodName: "PostEntry", Handler: _LedgerService_PostEntry_Handler},
		{MethodName: "GetEntry", Handler: _LedgerService_GetEntry_Handler},
		{MethodName: "TrialBalance", Handler: _LedgerService_TrialBalance_Handler},
		{MethodName: "ProfitAndLoss", Handler: _LedgerService_ProfitAndLoss_Handler},
		{MethodName: "AccountStatement", Handler: _LedgerService_AccountStatement_Handler},
		{MethodName: "RequestWithdrawal", Handler: _LedgerService_RequestWithdrawal_Handler},
		{MethodName: "PostAdjustment", Handler: _LedgerService_PostAdjustment_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/ledgerv1/ledger.go",
}

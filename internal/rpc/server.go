// Package rpc serves the ledger over gRPC.
package rpc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	ledgerv1 "github.com/example/gateway-ledger/api/ledgerv1"
	"github.com/example/gateway-ledger/internal/auth"
	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/security"
)

// Services are the ledger components exposed over gRPC.
type Services struct {
	Registry    *ledger.Registry
	Engine      *ledger.Engine
	Views       *ledger.Views
	Coordinator *ledger.Coordinator
	Adjustments *ledger.AdjustmentService
}

type Options struct {
	Logger       *slog.Logger
	JWTValidator *auth.JWTValidator
	Currency     ledger.Currency
	// AdminAllowlist restricts the peers allowed to call admin methods.
	AdminAllowlist []*net.IPNet
	TLS            *tls.Config
}

var methodScopes = map[string][]string{
	ledgerv1.CreateAccountFullMethod:     {auth.ScopeWrite},
	ledgerv1.GetAccountFullMethod:        {auth.ScopeRead},
	ledgerv1.ListAccountsFullMethod:      {auth.ScopeRead},
	ledgerv1.GetBalanceFullMethod:        {auth.ScopeRead},
	ledgerv1.PostEntryFullMethod:         {auth.ScopeWrite},
	ledgerv1.GetEntryFullMethod:          {auth.ScopeRead},
	ledgerv1.TrialBalanceFullMethod:      {auth.ScopeRead},
	ledgerv1.ProfitAndLossFullMethod:     {auth.ScopeRead},
	ledgerv1.AccountStatementFullMethod:  {auth.ScopeRead},
	ledgerv1.RequestWithdrawalFullMethod: {auth.ScopeWithdrawals},
	ledgerv1.PostAdjustmentFullMethod:    {auth.ScopeAdmin},
}

// scopesFor denies methods without a scope entry by requiring the admin
// scope.
func scopesFor(fullMethod string) []string {
	if s, ok := methodScopes[fullMethod]; ok {
		return s
	}
	return []string{auth.ScopeAdmin}
}

// NewServer builds a gRPC server with the ledger service registered behind
// recovery, logging and JWT interceptors.
func NewServer(svc Services, opts Options) *grpc.Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(opts.Logger),
			loggingInterceptor(opts.Logger),
			auth.UnaryServerInterceptor(opts.JWTValidator, scopesFor),
		),
	}
	if opts.TLS != nil {
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(opts.TLS)))
	}
	s := grpc.NewServer(serverOpts...)
	ledgerv1.RegisterLedgerServiceServer(s, &server{svc: svc, opts: opts, conv: converter{cur: opts.Currency}})
	return s
}

func recoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc_panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// loggingInterceptor attaches a correlation id taken from the
// x-correlation-id metadata and logs one line per call.
func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var cid string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("x-correlation-id"); len(vals) > 0 {
				cid = vals[0]
			}
		}
		cid = security.NormalizeCorrelationID(cid)
		ctx = security.WithCorrelationID(ctx, cid)
		_ = grpc.SetHeader(ctx, metadata.Pairs("x-correlation-id", cid))

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc_request",
			"cid", cid,
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

func peerAllowed(ctx context.Context, allow []*net.IPNet) bool {
	if len(allow) == 0 {
		return true
	}
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return false
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range allow {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

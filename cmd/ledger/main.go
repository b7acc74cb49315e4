package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/example/gateway-ledger/internal/app"
	"github.com/example/gateway-ledger/internal/config"
	"github.com/example/gateway-ledger/internal/rpc"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("ledger server stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.Scheduler()
	if err != nil {
		return err
	}
	sched.Start()

	srv := rpc.NewServer(rpc.Services{
		Registry:    a.Registry,
		Engine:      a.Engine,
		Views:       a.Views,
		Coordinator: a.Coordinator,
		Adjustments: a.Adjustments,
	}, rpc.Options{
		Logger:         logger,
		JWTValidator:   a.Validator,
		Currency:       a.Currency,
		AdminAllowlist: a.Allowlist,
		TLS:            a.TLS,
	})
	if !cfg.Production() {
		reflection.Register(srv)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger grpc server listening", "addr", cfg.GRPCAddr, "tls", a.TLS != nil, "env", cfg.Environment)
		errCh <- srv.Serve(lis)
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
	case <-ctx.Done():
		logger.Info("shutting down", "grace", cfg.ShutdownGracePeriod.String())
		gracefulStop(srv, cfg.ShutdownGracePeriod)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if serr := sched.Stop(shutdownCtx); serr != nil {
		logger.Warn("scheduler did not stop in time", "error", serr)
	}
	return err
}

// gracefulStop drains in-flight calls, forcing a stop after grace.
func gracefulStop(srv *grpc.Server, grace time.Duration) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		srv.Stop()
	}
}

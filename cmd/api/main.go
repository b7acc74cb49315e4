package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/gateway-ledger/internal/api"
	"github.com/example/gateway-ledger/internal/app"
	"github.com/example/gateway-ledger/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("api gateway stopped", "error", err)
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

	router, err := api.NewRouter(api.Dependencies{
		Logger:         logger,
		JWTValidator:   a.Validator,
		Keys:           a.Keys,
		Accounts:       a.Registry,
		Journal:        a.Engine,
		Reports:        a.Views,
		Withdrawals:    a.Coordinator,
		Adjustments:    a.Adjustments,
		Integrity:      a.Monitor,
		Currency:       a.Currency,
		RecoveryAge:    cfg.RecoveryAge,
		Ready:          a.Ready,
		Metrics:        a.Metrics,
		Auditor:        a.Audit,
		RateLimiter:    a.RateLimiter("ledger_api"),
		AdminAllowlist: a.Allowlist,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         a.TLS,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger api gateway listening", "addr", cfg.APIAddr, "tls", a.TLS != nil, "env", cfg.Environment)
		if a.TLS != nil {
			// Certificates are already loaded into TLSConfig.
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "grace", cfg.ShutdownGracePeriod.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

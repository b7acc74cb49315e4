// Package app wires configuration into the ledger services shared by the
// HTTP gateway and the gRPC server.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/example/gateway-ledger/internal/auth"
	"github.com/example/gateway-ledger/internal/config"
	"github.com/example/gateway-ledger/internal/events"
	"github.com/example/gateway-ledger/internal/events/kafka"
	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/ledger/pgstore"
	"github.com/example/gateway-ledger/internal/ledger/sqlstore"
	"github.com/example/gateway-ledger/internal/metrics"
	"github.com/example/gateway-ledger/internal/scheduler"
	"github.com/example/gateway-ledger/internal/security"
	"github.com/example/gateway-ledger/pkg/audit"
)

// Store is a ledger store that can be probed and closed.
type Store interface {
	ledger.Store
	Ping(ctx context.Context) error
	Close() error
}

// Application holds the constructed ledger services and the resources
// they depend on.
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	Currency ledger.Currency
	System   ledger.SystemAccounts

	Store       Store
	Registry    *ledger.Registry
	Engine      *ledger.Engine
	Views       *ledger.Views
	Monitor     *ledger.IntegrityMonitor
	Coordinator *ledger.Coordinator
	Adjustments *ledger.AdjustmentService

	Metrics   *metrics.Metrics
	Audit     *audit.ChainLogger
	Redis     *redis.Client
	Keys      *auth.KeySet
	Validator *auth.JWTValidator
	TLS       *tls.Config
	Allowlist []*net.IPNet

	closers []func() error
}

// New opens the store, applies migrations when running on Postgres and
// makes sure the system accounts exist.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Application, err error) {
	a := &Application{
		Config:   cfg,
		Logger:   logger,
		Currency: ledger.Currency{Code: cfg.Currency, Exponent: cfg.CurrencyExponent},
		Metrics:  metrics.New(true),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.System = ledger.DefaultSystemAccounts()
	a.System.SettlementClearing = cfg.SettlementClearingAccount
	a.System.AdjustmentClearing = cfg.AdjustmentClearingAccount

	if a.Allowlist, err = security.ParseCIDRAllowlist(cfg.IPAllowlist); err != nil {
		return nil, fmt.Errorf("API_IP_ALLOWLIST: %w", err)
	}
	if err = a.openStore(ctx); err != nil {
		return nil, err
	}
	if err = a.openAudit(); err != nil {
		return nil, err
	}
	if err = a.loadKeys(); err != nil {
		return nil, err
	}
	tlsCfg := security.TLSConfig{
		CertFile:          cfg.TLSCertFile,
		KeyFile:           cfg.TLSKeyFile,
		CAFile:            cfg.TLSCAFile,
		RequireClientAuth: cfg.TLSRequireClientCert,
	}
	if tlsCfg.Enabled() {
		if a.TLS, err = security.LoadServerTLSConfig(tlsCfg); err != nil {
			return nil, err
		}
	}

	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, a.Redis.Close)
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, p.Close)
		publisher = p
	}

	opts := ledger.Options{
		Logger:    logger,
		Publisher: publisher,
		Recorder:  a.Metrics,
		Auditor:   a.Audit,
	}
	a.Registry = ledger.NewRegistry(a.Store, opts)
	a.Engine = ledger.NewEngine(a.Store, opts)
	a.Views = ledger.NewViews(a.Store, opts)
	a.Monitor = ledger.NewIntegrityMonitor(a.Store, opts)
	a.Coordinator = ledger.NewCoordinator(a.Engine, ledger.CoordinatorConfig{
		MinimumAmount:     cfg.WithdrawalMin,
		SettlementAccount: a.System.SettlementClearing,
	}, nil)
	a.Adjustments = ledger.NewAdjustmentService(a.Engine, a.System.AdjustmentClearing)

	if err = a.Registry.EnsureSystemAccounts(ctx, a.System); err != nil {
		return nil, fmt.Errorf("ensure system accounts: %w", err)
	}
	return a, nil
}

func (a *Application) openStore(ctx context.Context) error {
	switch a.Config.DBDriver {
	case config.DriverSQLite:
		s, err := sqlstore.Open(ctx, a.Config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.Store = s
	default:
		if err := pgstore.Migrate(a.Config.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		s, err := pgstore.Open(ctx, a.Config.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		a.Store = s
	}
	a.closers = append(a.closers, a.Store.Close)
	return nil
}

// openAudit sends the audit chain to AUDIT_SINK, a file path or "stdout".
func (a *Application) openAudit() error {
	var sink io.Writer = os.Stdout
	if path := a.Config.AuditSink; path != "" && path != "stdout" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open audit sink: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		sink = f
	}
	a.Audit = audit.NewChainLogger(audit.WithSink(sink))
	return nil
}

// loadKeys verifies tokens against JWT_PUBLIC_KEY_FILE. Without one a
// throwaway key pair is generated, which only suits development.
func (a *Application) loadKeys() error {
	var err error
	if path := a.Config.JWTPublicKeyFile; path != "" {
		a.Keys, err = auth.LoadPublicKeyFile(path)
		if err != nil {
			return fmt.Errorf("load jwt public key: %w", err)
		}
	} else {
		a.Keys, err = auth.NewKeySet()
		if err != nil {
			return err
		}
		a.Logger.Warn("jwt_dev_keyset", "kid", a.Keys.KeyID(), "msg", "JWT_PUBLIC_KEY_FILE not set, using a generated key")
	}
	a.Validator = &auth.JWTValidator{KeySet: a.Keys, Issuer: a.Config.JWTIssuer}
	return nil
}

// Scheduler returns a scheduler carrying the integrity and recovery jobs.
// Ticks are coordinated through Redis when it is configured.
func (a *Application) Scheduler() (*scheduler.Scheduler, error) {
	var locker *redislock.Client
	if a.Redis != nil {
		locker = redislock.New(a.Redis)
	}
	s := scheduler.New(a.Logger, locker)
	if err := s.Add(scheduler.IntegrityJob(a.Monitor, a.Config.IntegritySchedule)); err != nil {
		return nil, err
	}
	if err := s.Add(scheduler.RecoveryJob(a.Coordinator, a.Config.RecoverySchedule, a.Config.RecoveryAge)); err != nil {
		return nil, err
	}
	return s, nil
}

// RateLimiter returns the Redis token bucket, or nil without Redis.
func (a *Application) RateLimiter(prefix string) *security.RedisTokenBucket {
	if a.Redis == nil {
		return nil
	}
	return &security.RedisTokenBucket{
		Redis:      a.Redis,
		Prefix:     prefix,
		Capacity:   a.Config.RateLimitCapacity,
		RefillRate: a.Config.RateLimitRefill,
	}
}

// Ready reports whether the store and Redis answer.
func (a *Application) Ready(ctx context.Context) error {
	if err := a.Store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

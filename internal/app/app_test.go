package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gateway-ledger/internal/config"
	"github.com/example/gateway-ledger/internal/ledger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:               "development",
		DatabaseURL:               ":memory:",
		DBDriver:                  config.DriverSQLite,
		AuditSink:                 filepath.Join(t.TempDir(), "audit.log"),
		Currency:                  "EUR",
		CurrencyExponent:          2,
		WithdrawalMin:             100,
		SettlementClearingAccount: "SETTLEMENT_CLEARING",
		AdjustmentClearingAccount: "ADJ_CLEARING",
		IntegritySchedule:         "@every 5m",
		RecoverySchedule:          "@every 1m",
		RecoveryAge:               2 * time.Minute,
		IPAllowlist:               []string{"10.0.0.0/8"},
		RateLimitCapacity:         10,
		RateLimitRefill:           1,
		JWTIssuer:                 "gateway-ledger",
	}
}

func TestNew_DevelopmentStack(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, ledger.Currency{Code: "EUR", Exponent: 2}, a.Currency)
	assert.Len(t, a.Allowlist, 1)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.RateLimiter("api"))
	assert.Nil(t, a.TLS)
	require.NoError(t, a.Ready(context.Background()))

	acct, err := a.Registry.GetAccount(context.Background(), "ADJ_CLEARING")
	require.NoError(t, err)
	assert.Equal(t, "ADJ_CLEARING", acct.Code)

	tok, err := a.Keys.Mint(cfg.JWTIssuer, "ops", []string{"ledger:read"}, time.Minute)
	require.NoError(t, err)
	p, err := a.Validator.Principal("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "ops", p.Actor)

	s, err := a.Scheduler()
	require.NoError(t, err)
	s.Start()
	require.NoError(t, s.Stop(context.Background()))
}

func TestNew_AuditSinkReceivesAdjustments(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	_, err = a.Registry.CreateAccount(context.Background(), ledger.CreateAccountRequest{
		Code: "MERCH_1", Name: "Merchant 1", Type: ledger.AccountAsset,
		Entity: &ledger.EntityRef{Type: ledger.EntityMerchant, ID: "1"},
	})
	require.NoError(t, err)
	_, err = a.Adjustments.PostAdjustment(context.Background(), ledger.AdjustmentRequest{
		EntityType: ledger.EntityMerchant, EntityID: "1", Amount: 500,
		Reason:  ledger.AdjustmentReason{Code: ledger.ReasonGoodwill, Note: "service credit"},
		ActorID: "ops-1",
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(cfg.AuditSink)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "adjustment.posted")
}

func TestNew_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NotNil(t, a.RateLimiter("api"))
	require.NoError(t, a.Ready(context.Background()))

	mr.Close()
	assert.Error(t, a.Ready(context.Background()))
}

func TestNew_RejectsBadInput(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig(t)
	cfg.IPAllowlist = []string{"not-an-ip"}
	_, err := New(context.Background(), cfg, logger)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.JWTPublicKeyFile = filepath.Join(t.TempDir(), "missing.pem")
	_, err = New(context.Background(), cfg, logger)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.IntegritySchedule = "every so often"
	a, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	_, err = a.Scheduler()
	assert.Error(t, err)
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/ledger/sqlstore"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newLocker(t *testing.T) (*miniredis.Miniredis, *redislock.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, redislock.New(client)
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	_, locker := newLocker(t)
	s := New(quiet, locker)

	runs := 0
	job := Job{Name: "probe", Spec: "@every 1h", Run: func(context.Context) error { runs++; return nil }}

	require.NoError(t, s.RunOnce(ctx, job))
	assert.Equal(t, 1, runs)

	held, err := locker.Obtain(ctx, "ledger:job:probe", time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, s.RunOnce(ctx, job))
	assert.Equal(t, 1, runs, "another instance holds the lock")

	require.NoError(t, held.Release(ctx))
	require.NoError(t, s.RunOnce(ctx, job))
	assert.Equal(t, 2, runs)
}

func TestRunOnce_ReleasesLockAfterFailure(t *testing.T) {
	ctx := context.Background()
	mr, locker := newLocker(t)
	s := New(quiet, locker)

	boom := errors.New("boom")
	err := s.RunOnce(ctx, Job{Name: "fails", Run: func(context.Context) error { return boom }})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("ledger:job:fails"))
}

func TestRunOnce_WithoutLocker(t *testing.T) {
	s := New(quiet, nil)
	var deadline bool
	err := s.RunOnce(context.Background(), Job{Name: "local", Timeout: time.Second, Run: func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	}})
	require.NoError(t, err)
	assert.True(t, deadline)
}

func TestAdd_RejectsBadJobs(t *testing.T) {
	s := New(quiet, nil)
	assert.Error(t, s.Add(Job{Name: "x", Spec: "every now and then", Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Job{Spec: "@every 1m"}))
	require.NoError(t, s.Add(Job{Name: "ok", Spec: "@every 1m", Run: func(context.Context) error { return nil }}))

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestLedgerJobs(t *testing.T) {
	ctx := context.Background()
	store, err := sqlstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts := ledger.Options{Logger: quiet}
	registry := ledger.NewRegistry(store, opts)
	sys := ledger.DefaultSystemAccounts()
	require.NoError(t, registry.EnsureSystemAccounts(ctx, sys))

	monitor := ledger.NewIntegrityMonitor(store, opts)
	engine := ledger.NewEngine(store, opts)
	coord := ledger.NewCoordinator(engine, ledger.CoordinatorConfig{MinimumAmount: 1, SettlementAccount: sys.SettlementClearing}, nil)

	s := New(quiet, nil)
	require.NoError(t, s.RunOnce(ctx, IntegrityJob(monitor, "@every 5m")))
	require.NotNil(t, monitor.LastReport())
	assert.True(t, monitor.LastReport().Healthy)

	require.NoError(t, s.RunOnce(ctx, RecoveryJob(coord, "@every 1m", time.Minute)))
}

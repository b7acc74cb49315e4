package ledger_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/gateway-ledger/internal/events"
	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/ledger/sqlstore"
	"github.com/example/gateway-ledger/pkg/audit"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturedEvents struct {
	mu     sync.Mutex
	events []events.Event
	// onPublish runs synchronously after ev is recorded.
	onPublish func(ev events.Event)
}

func (c *capturedEvents) Publish(_ context.Context, ev events.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	hook := c.onPublish
	c.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return nil
}

func (c *capturedEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store     *sqlstore.Store
	clock     *clock
	events    *capturedEvents
	audit     *audit.ChainLogger
	auditLog  *bytes.Buffer
	sys       ledger.SystemAccounts
	registry  *ledger.Registry
	engine    *ledger.Engine
	views     *ledger.Views
	monitor   *ledger.IntegrityMonitor
	coord     *ledger.Coordinator
	adjust    *ledger.AdjustmentService
	minAmount int64
}

type fixtureOption func(*fixture, *ledger.CoordinatorConfig, *ledger.WithdrawalRecorder)

func withRecorder(r ledger.WithdrawalRecorder) fixtureOption {
	return func(_ *fixture, _ *ledger.CoordinatorConfig, rec *ledger.WithdrawalRecorder) { *rec = r }
}

func withMinimum(amount int64) fixtureOption {
	return func(_ *fixture, cfg *ledger.CoordinatorConfig, _ *ledger.WithdrawalRecorder) { cfg.MinimumAmount = amount }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store:  store,
		clock:  &clock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		events: &capturedEvents{},
		sys:    ledger.DefaultSystemAccounts(),
	}
	f.auditLog = &bytes.Buffer{}
	f.audit = audit.NewChainLogger(audit.WithSink(f.auditLog))
	o := ledger.Options{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Publisher: f.events,
		Auditor:   f.audit,
		Now:       f.clock.Now,
	}
	cfg := ledger.CoordinatorConfig{MinimumAmount: 1, SettlementAccount: f.sys.SettlementClearing}
	var recorder ledger.WithdrawalRecorder
	for _, opt := range opts {
		opt(f, &cfg, &recorder)
	}

	f.registry = ledger.NewRegistry(store, o)
	f.engine = ledger.NewEngine(store, o)
	f.views = ledger.NewViews(store, o)
	f.monitor = ledger.NewIntegrityMonitor(store, o)
	f.coord = ledger.NewCoordinator(f.engine, cfg, recorder)
	f.adjust = ledger.NewAdjustmentService(f.engine, f.sys.AdjustmentClearing)
	f.minAmount = cfg.MinimumAmount

	require.NoError(t, f.registry.EnsureSystemAccounts(ctx, f.sys))
	return f
}

func (f *fixture) account(t *testing.T, code string, typ ledger.AccountType, entity *ledger.EntityRef) {
	t.Helper()
	_, err := f.registry.CreateAccount(context.Background(), ledger.CreateAccountRequest{
		Code: code, Name: code, Type: typ, Entity: entity,
	})
	require.NoError(t, err)
}

func (f *fixture) merchant(t *testing.T, id string) string {
	t.Helper()
	code := "MERCH_" + id
	f.account(t, code, ledger.AccountAsset, &ledger.EntityRef{Type: ledger.EntityMerchant, ID: id})
	return code
}

// fund credits the merchant's asset account against fee revenue.
func (f *fixture) fund(t *testing.T, code string, amount int64, ref string) *ledger.JournalEntry {
	t.Helper()
	entry, err := f.engine.Post(context.Background(), ledger.PostRequest{
		ReferenceType: ledger.RefPayin,
		ReferenceID:   ref,
		Description:   "funding",
		Lines: []ledger.LineRequest{
			{AccountCode: code, EntryType: ledger.Debit, Amount: amount},
			{AccountCode: f.sys.FeeRevenue, EntryType: ledger.Credit, Amount: amount},
		},
	})
	require.NoError(t, err)
	return entry
}

func (f *fixture) balance(t *testing.T, code string) int64 {
	t.Helper()
	b, err := f.registry.GetBalance(context.Background(), code)
	require.NoError(t, err)
	cached, err := f.registry.GetAccount(context.Background(), code)
	require.NoError(t, err)
	require.Equal(t, b, cached.CurrentBalance, "cached balance of %s drifted", code)
	return b
}

func (f *fixture) requireHealthy(t *testing.T) {
	t.Helper()
	report, err := f.monitor.Check(context.Background())
	require.NoError(t, err)
	require.True(t, report.Healthy, "integrity failures: %+v", report.Failures())
}

func bankDestination() ledger.Destination {
	return ledger.Destination{Kind: ledger.DestinationBankAccount, Address: "GB29NWBK60161331926819", HolderName: "Acme Ltd"}
}

// auditEntries decodes everything written to the audit sink.
func (f *fixture) auditEntries(t *testing.T) []*audit.LogEntry {
	t.Helper()
	var out []*audit.LogEntry
	sc := bufio.NewScanner(bytes.NewReader(f.auditLog.Bytes()))
	for sc.Scan() {
		var e audit.LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, &e)
	}
	return out
}

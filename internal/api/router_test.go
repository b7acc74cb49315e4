package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/gateway-ledger/internal/auth"
	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/ledger/sqlstore"
	"github.com/example/gateway-ledger/internal/metrics"
	"github.com/example/gateway-ledger/internal/security"
	"github.com/example/gateway-ledger/pkg/audit"
)

type testEnv struct {
	deps     Dependencies
	keys     *auth.KeySet
	store    *sqlstore.Store
	sys      ledger.SystemAccounts
	auditLog *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	keys, err := auth.NewKeySet()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := &bytes.Buffer{}
	chain := audit.NewChainLogger(audit.WithSink(auditLog))
	m := metrics.New(false)
	opts := ledger.Options{Logger: logger, Recorder: m, Auditor: chain}

	sys := ledger.DefaultSystemAccounts()
	registry := ledger.NewRegistry(store, opts)
	require.NoError(t, registry.EnsureSystemAccounts(ctx, sys))
	engine := ledger.NewEngine(store, opts)
	monitor := ledger.NewIntegrityMonitor(store, opts)

	return &testEnv{
		keys:     keys,
		store:    store,
		sys:      sys,
		auditLog: auditLog,
		deps: Dependencies{
			Logger:       logger,
			JWTValidator: &auth.JWTValidator{KeySet: keys, Issuer: "test"},
			Keys:         keys,
			Accounts:     registry,
			Journal:      engine,
			Reports:      ledger.NewViews(store, opts),
			Withdrawals: ledger.NewCoordinator(engine, ledger.CoordinatorConfig{
				MinimumAmount:     100,
				SettlementAccount: sys.SettlementClearing,
			}, nil),
			Adjustments:  ledger.NewAdjustmentService(engine, sys.AdjustmentClearing),
			Integrity:    monitor,
			Currency:     ledger.Currency{Code: "USD", Exponent: 2},
			Ready:        store.Ping,
			Metrics:      m,
			Auditor:      chain,
			RateLimiter:  &security.RedisTokenBucket{Redis: rdb, Prefix: "test", Capacity: 100, RefillRate: 100},
			MaxBodyBytes: 1 << 20,
		},
	}
}

func (e *testEnv) server(t *testing.T) *httptest.Server {
	t.Helper()
	h, err := NewRouter(e.deps)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func (e *testEnv) token(t *testing.T, actor string, scopes ...string) string {
	t.Helper()
	tok, err := e.keys.Mint("test", actor, scopes, 5*time.Minute)
	require.NoError(t, err)
	return tok
}

// call sends body as JSON and decodes any JSON answer into a map.
func call(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func merchantAccount(id string) map[string]any {
	return map[string]any{
		"code":         "MERCH_" + id,
		"name":         "Merchant " + id,
		"account_type": "asset",
		"entity":       map[string]any{"entity_type": "merchant", "entity_id": id},
	}
}

func payin(ref, code, amount, revenue string) map[string]any {
	return map[string]any{
		"reference_type": "payin",
		"reference_id":   ref,
		"lines": []map[string]any{
			{"account_code": code, "entry_type": "debit", "amount": amount},
			{"account_code": revenue, "entry_type": "credit", "amount": amount},
		},
	}
}

func TestAuthFailuresAndValidation(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t)

	resp, body := call(t, ts, http.MethodGet, "/v1/accounts", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])

	foreign, err := auth.NewKeySet()
	require.NoError(t, err)
	forged, err := foreign.Mint("test", "mallory", []string{auth.ScopeAdmin}, time.Minute)
	require.NoError(t, err)
	resp, _ = call(t, ts, http.MethodGet, "/v1/accounts", forged, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	reader := env.token(t, "ops-1", auth.ScopeRead)
	resp, _ = call(t, ts, http.MethodPost, "/v1/accounts", reader, merchantAccount("7"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Schema violations are answered before the registry is called.
	writer := env.token(t, "ops-2", auth.ScopeRead, auth.ScopeWrite)
	bad := merchantAccount("7")
	bad["account_type"] = "contra"
	resp, body = call(t, ts, http.MethodPost, "/v1/accounts", writer, bad)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["error"])
	assert.Contains(t, body["message"], "account_type")

	resp, _ = call(t, ts, http.MethodGet, "/v1/accounts/MERCH_7", reader, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccountAndJournalFlow(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t)
	tok := env.token(t, "psp-worker", auth.ScopeRead, auth.ScopeWrite)

	resp, body := call(t, ts, http.MethodPost, "/v1/accounts", tok, merchantAccount("7"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "0.00", body["balance"])
	assert.NotEmpty(t, resp.Header.Get(security.CorrelationIDHeader))

	resp, body = call(t, ts, http.MethodPost, "/v1/accounts", tok, merchantAccount("7"))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_code", body["error"])

	resp, body = call(t, ts, http.MethodPost, "/v1/journal/entries", tok, payin("p-1", "MERCH_7", "10.00", env.sys.FeeRevenue))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "10.00", body["total_amount"])
	assert.Equal(t, "psp-worker", body["created_by"])
	assert.EqualValues(t, 1, body["entry_number"])

	resp, body = call(t, ts, http.MethodPost, "/v1/journal/entries", tok, payin("p-1", "MERCH_7", "10.00", env.sys.FeeRevenue))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["replayed"])
	assert.EqualValues(t, 1, body["entry_number"])

	resp, body = call(t, ts, http.MethodPost, "/v1/journal/entries", tok, payin("p-1", "MERCH_7", "11.00", env.sys.FeeRevenue))
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_posting", body["error"])

	unbalanced := payin("p-2", "MERCH_7", "10.00", env.sys.FeeRevenue)
	unbalanced["lines"].([]map[string]any)[1]["amount"] = "9.99"
	resp, body = call(t, ts, http.MethodPost, "/v1/journal/entries", tok, unbalanced)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "unbalanced_entry", body["error"])

	resp, body = call(t, ts, http.MethodPost, "/v1/journal/entries", tok, payin("p-3", "MERCH_7", "1.001", env.sys.FeeRevenue))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "decimal places")

	resp, body = call(t, ts, http.MethodPost, "/v1/journal/entries", tok, payin("p-4", "NOPE", "1.00", env.sys.FeeRevenue))
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_account", body["error"])

	resp, body = call(t, ts, http.MethodGet, "/v1/accounts/MERCH_7/balance", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10.00", body["balance"])

	resp, body = call(t, ts, http.MethodGet, "/v1/accounts/MERCH_7/statement?limit=5", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "10.00", lines[0].(map[string]any)["balance_after"])

	resp, _ = call(t, ts, http.MethodGet, "/v1/accounts/MERCH_7/statement?limit=many", tok, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = call(t, ts, http.MethodGet, "/v1/accounts/MERCH_7/verify", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["match"])

	resp, body = call(t, ts, http.MethodGet, "/v1/accounts?entity_type=merchant", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["accounts"], 1)

	resp, body = call(t, ts, http.MethodGet, "/v1/journal/entries/1", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["lines"], 2)

	resp, _ = call(t, ts, http.MethodGet, "/v1/journal/entries/abc", tok, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = call(t, ts, http.MethodGet, "/v1/journal/entries/999", tok, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = call(t, ts, http.MethodGet, "/v1/reports/trial-balance", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["balanced"])
	assert.Equal(t, "10.00", body["total_debits"])

	resp, body = call(t, ts, http.MethodGet, "/v1/reports/profit-and-loss?from=2000-01-01&to=2100-01-01", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10.00", body["total_revenue"])
	assert.Equal(t, "10.00", body["net_profit"])

	resp, _ = call(t, ts, http.MethodGet, "/v1/reports/profit-and-loss?to=2100-01-01", tok, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostCompletedTransaction(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t)
	tok := env.token(t, "psp-worker", auth.ScopeRead, auth.ScopeWrite)

	liability := map[string]any{
		"code": "MERCH_9", "name": "Merchant 9", "account_type": "liability",
		"entity": map[string]any{"entity_type": "merchant", "entity_id": "9"},
	}
	resp, _ := call(t, ts, http.MethodPost, "/v1/accounts", tok, liability)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := call(t, ts, http.MethodPost, "/v1/journal/completed", tok, map[string]any{
		"reference_type":   "payin",
		"reference_id":     "tx-1",
		"entity_account":   "MERCH_9",
		"clearing_account": env.sys.SettlementClearing,
		"amount":           "100.00",
		"fee_split":        []map[string]any{{"account_code": env.sys.FeeRevenue, "amount": "2.50"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "100.00", body["total_amount"])

	_, body = call(t, ts, http.MethodGet, "/v1/accounts/MERCH_9/balance", tok, nil)
	assert.Equal(t, "97.50", body["balance"])
}

func TestWithdrawalFlow(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t)
	tok := env.token(t, "merchant-7", auth.ScopeRead, auth.ScopeWrite, auth.ScopeWithdrawals)

	resp, _ := call(t, ts, http.MethodPost, "/v1/accounts", tok, merchantAccount("7"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = call(t, ts, http.MethodPost, "/v1/journal/entries", tok, payin("p-1", "MERCH_7", "10.00", env.sys.FeeRevenue))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	withdrawal := func(amount string) map[string]any {
		return map[string]any{
			"entity_type": "merchant",
			"entity_id":   "7",
			"amount":      amount,
			"destination": map[string]any{"kind": "bank_account", "address": "GB29NWBK60161331926819", "holder_name": "Acme Ltd"},
		}
	}

	readOnly := env.token(t, "viewer", auth.ScopeRead)
	resp, _ = call(t, ts, http.MethodPost, "/v1/withdrawals", readOnly, withdrawal("4.00"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := call(t, ts, http.MethodPost, "/v1/withdrawals", tok, withdrawal("4.00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "confirmed", body["state"])
	assert.Equal(t, "4.00", body["amount"])
	requestID := body["request_id"].(string)

	resp, body = call(t, ts, http.MethodPost, "/v1/withdrawals", tok, withdrawal("7.00"))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", body["error"])
	assert.NotEmpty(t, body["message"])

	resp, body = call(t, ts, http.MethodPost, "/v1/withdrawals", tok, withdrawal("0.50"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", body["error"])

	_, body = call(t, ts, http.MethodGet, "/v1/accounts/MERCH_7/balance", tok, nil)
	assert.Equal(t, "6.00", body["balance"])

	resp, body = call(t, ts, http.MethodGet, "/v1/withdrawals/"+requestID, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	reservationID := body["reservation_id"].(string)

	resp, body = call(t, ts, http.MethodGet, "/v1/reservations/"+reservationID, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, requestID, body["withdrawal_id"])

	resp, body = call(t, ts, http.MethodGet, "/v1/reservations?state=confirmed", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["reservations"], 1)

	resp, _ = call(t, ts, http.MethodGet, "/v1/reservations?state=lost", tok, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t)
	writer := env.token(t, "psp-worker", auth.ScopeRead, auth.ScopeWrite)
	admin := env.token(t, "admin-42", auth.ScopeRead, auth.ScopeAdmin)

	resp, _ := call(t, ts, http.MethodPost, "/v1/accounts", writer, merchantAccount("7"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	adjustment := map[string]any{
		"entity_type": "merchant",
		"entity_id":   "7",
		"amount":      "1.50",
		"is_credit":   false,
		"reason":      map[string]any{"code": "correction", "note": "missed payin"},
	}

	resp, _ = call(t, ts, http.MethodPost, "/v1/admin/adjustments", writer, adjustment)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := call(t, ts, http.MethodPost, "/v1/admin/adjustments", admin, adjustment)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "adjustment", body["reference_type"])
	assert.Equal(t, "admin-42", body["created_by"])
	adjustmentNumber := int64(body["entry_number"].(float64))

	resp, body = call(t, ts, http.MethodPost, "/v1/journal/entries", writer, payin("p-1", "MERCH_7", "2.00", env.sys.FeeRevenue))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	payinPath := "/v1/admin/entries/" + strconv.FormatInt(int64(body["entry_number"].(float64)), 10) + "/reverse"
	reversal := map[string]any{"reason": "posted to the wrong merchant"}

	resp, body = call(t, ts, http.MethodPost, "/v1/admin/integrity/check", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["halted"])
	assert.Equal(t, true, body["report"].(map[string]any)["healthy"])

	_, err := env.store.DB().ExecContext(context.Background(), `UPDATE accounts SET current_balance = 9999 WHERE code = 'MERCH_7'`)
	require.NoError(t, err)

	resp, body = call(t, ts, http.MethodPost, "/v1/admin/integrity/check", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["halted"])
	assert.Equal(t, "integrity_check", body["alarm"].(map[string]any)["source"])

	resp, body = call(t, ts, http.MethodPost, "/v1/admin/adjustments", admin, adjustment)
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	assert.Equal(t, "integrity_halt", body["error"])
	resp, _ = call(t, ts, http.MethodPost, payinPath, admin, reversal)
	require.Equal(t, http.StatusLocked, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/v1/admin/integrity/acknowledge", admin, map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, body = call(t, ts, http.MethodPost, "/v1/admin/integrity/acknowledge", admin, map[string]any{"note": "cache rebuilt"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["halted"])

	resp, _ = call(t, ts, http.MethodPost, "/v1/admin/entries/"+strconv.FormatInt(adjustmentNumber, 10)+"/reverse", admin, reversal)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = call(t, ts, http.MethodPost, payinPath, admin, reversal)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "reversal", body["reference_type"])

	resp, body = call(t, ts, http.MethodPost, "/v1/admin/reservations/recover?older_than=1m", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["failed"])

	resp, _ = call(t, ts, http.MethodPost, "/v1/admin/reservations/recover?older_than=soon", admin, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Every admin request, refused or not, is on the audit chain.
	var actions []string
	var entries []*audit.LogEntry
	for _, line := range bytes.Split(bytes.TrimSpace(env.auditLog.Bytes()), []byte("\n")) {
		var e audit.LogEntry
		require.NoError(t, json.Unmarshal(line, &e))
		entries = append(entries, &e)
		var ev audit.Event
		require.NoError(t, json.Unmarshal([]byte(e.Payload), &ev))
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, -1, audit.VerifyChain(entries))
	assert.Contains(t, actions, "adjustment.posted")
	assert.Contains(t, actions, "integrity.acknowledged")
	assert.Contains(t, actions, "http.admin")
}

func TestAdminAllowlist(t *testing.T) {
	env := newTestEnv(t)
	allow, err := security.ParseCIDRAllowlist([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	env.deps.AdminAllowlist = allow
	ts := env.server(t)

	admin := env.token(t, "admin-42", auth.ScopeAdmin)
	resp, _ := call(t, ts, http.MethodGet, "/v1/admin/integrity", admin, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRateLimitTrips(t *testing.T) {
	env := newTestEnv(t)
	env.deps.RateLimiter.Capacity = 1
	env.deps.RateLimiter.RefillRate = 0.0000001
	ts := env.server(t)

	resp, _ := call(t, ts, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = call(t, ts, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestEnv(t)
	env.deps.MaxBodyBytes = 32
	ts := env.server(t)

	tok := env.token(t, "psp-worker", auth.ScopeWrite)
	resp, _ := call(t, ts, http.MethodPost, "/v1/accounts", tok, merchantAccount("7"))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestProbesAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t)
	tok := env.token(t, "psp-worker", auth.ScopeRead, auth.ScopeWrite)

	resp, _ := call(t, ts, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := call(t, ts, http.MethodGet, "/.well-known/jwks.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	keys := body["keys"].([]any)
	require.Len(t, keys, 1)
	assert.Equal(t, env.keys.KeyID(), keys[0].(map[string]any)["kid"])

	call(t, ts, http.MethodPost, "/v1/accounts", tok, merchantAccount("7"))
	call(t, ts, http.MethodGet, "/v1/accounts/MERCH_7/balance", tok, nil)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `route="/v1/accounts/{code}/balance"`)

	env.deps.Ready = func(context.Context) error { return io.ErrUnexpectedEOF }
	ts = env.server(t)
	resp, _ = call(t, ts, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMTLSRequired(t *testing.T) {
	env := newTestEnv(t)
	certs := generateMTLSCerts(t)

	h, err := NewRouter(env.deps)
	require.NoError(t, err)

	ts := httptest.NewUnstartedServer(h)
	ts.TLS = certs.serverTLS
	ts.StartTLS()
	defer ts.Close()

	clientNoCert := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.noClientTLS}}
	_, err = clientNoCert.Get(ts.URL + "/healthz")
	require.Error(t, err)

	clientWithCert := &http.Client{Transport: &http.Transport{TLSClientConfig: certs.clientTLS}}
	resp, err := clientWithCert.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type testCerts struct {
	serverTLS   *tls.Config
	clientTLS   *tls.Config
	noClientTLS *tls.Config
}

func generateMTLSCerts(t *testing.T) *testCerts {
	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	caPool := x509.NewCertPool()
	caPool.AddCert(caCert)

	serverCert := signCert(t, caCert, caKey, "server", x509.ExtKeyUsageServerAuth, []net.IP{net.ParseIP("127.0.0.1")})
	clientCert := signCert(t, caCert, caKey, "client", x509.ExtKeyUsageClientAuth, nil)

	return &testCerts{
		serverTLS: &tls.Config{
			Certificates: []tls.Certificate{serverCert},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    caPool,
			MinVersion:   tls.VersionTLS13,
		},
		clientTLS: &tls.Config{
			Certificates: []tls.Certificate{clientCert},
			RootCAs:      caPool,
			MinVersion:   tls.VersionTLS13,
		},
		noClientTLS: &tls.Config{
			RootCAs:    caPool,
			MinVersion: tls.VersionTLS13,
		},
	}
}

func signCert(t *testing.T, ca *x509.Certificate, caKey *rsa.PrivateKey, cn string, eku x509.ExtKeyUsage, ips []net.IP) tls.Certificate {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{eku},
		IPAddresses:  ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	c, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return c
}

package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/gateway-ledger/internal/auth"
	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/metrics"
	"github.com/example/gateway-ledger/internal/security"
	"github.com/example/gateway-ledger/pkg/audit"
)

type Auditor interface {
	Record(ev audit.Event) *audit.LogEntry
}

type Accounts interface {
	CreateAccount(ctx context.Context, req ledger.CreateAccountRequest) (*ledger.Account, error)
	GetAccount(ctx context.Context, code string) (*ledger.Account, error)
	ListAccounts(ctx context.Context, filter ledger.AccountFilter) ([]ledger.Account, error)
	GetBalance(ctx context.Context, code string) (int64, error)
	VerifyBalance(ctx context.Context, code string) (*ledger.BalanceCheck, error)
}

type Journal interface {
	Post(ctx context.Context, req ledger.PostRequest) (*ledger.JournalEntry, error)
	PostCompleted(ctx context.Context, t ledger.CompletedTransaction, actor string) (*ledger.JournalEntry, error)
	Reverse(ctx context.Context, number int64, actor, reason string) (*ledger.JournalEntry, error)
	GetEntry(ctx context.Context, number int64) (*ledger.JournalEntry, error)
}

type Reports interface {
	TrialBalance(ctx context.Context) (*ledger.TrialBalance, error)
	ProfitAndLoss(ctx context.Context, p ledger.Period) (*ledger.ProfitAndLoss, error)
	AccountStatement(ctx context.Context, code string, limit int) ([]ledger.JournalLine, error)
}

type Withdrawals interface {
	RequestWithdrawal(ctx context.Context, req ledger.WithdrawalRequest) (*ledger.WithdrawalResult, error)
	GetWithdrawal(ctx context.Context, id string) (*ledger.Withdrawal, error)
	GetReservation(ctx context.Context, id string) (*ledger.Reservation, error)
	ListReservations(ctx context.Context, filter ledger.ReservationFilter) ([]ledger.Reservation, error)
	RecoverPending(ctx context.Context, age time.Duration) (*ledger.RecoveryReport, error)
}

type Adjustments interface {
	PostAdjustment(ctx context.Context, req ledger.AdjustmentRequest) (*ledger.JournalEntry, error)
}

type Integrity interface {
	Check(ctx context.Context) (*ledger.IntegrityReport, error)
	LastReport() *ledger.IntegrityReport
	// Alarm returns the stored alarm, or nil when none is active.
	Alarm(ctx context.Context) (*ledger.IntegrityAlarm, error)
	Acknowledge(ctx context.Context, actor, note string) error
}

// Dependencies are the collaborators of the HTTP gateway. Missing ledger
// components answer 503.
type Dependencies struct {
	Logger       *slog.Logger
	JWTValidator *auth.JWTValidator
	Keys         *auth.KeySet

	Accounts    Accounts
	Journal     Journal
	Reports     Reports
	Withdrawals Withdrawals
	Adjustments Adjustments
	Integrity   Integrity

	Currency    ledger.Currency
	RecoveryAge time.Duration

	// Ready reports whether the store is reachable.
	Ready func(ctx context.Context) error

	Metrics        *metrics.Metrics
	Auditor        Auditor
	RateLimiter    *security.RedisTokenBucket
	AdminAllowlist []*net.IPNet
	MaxBodyBytes   int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RecoveryAge <= 0 {
		deps.RecoveryAge = 2 * time.Minute
	}

	createAccountV, err := security.NewJSONSchemaValidator(createAccountSchema)
	if err != nil {
		return nil, err
	}
	postEntryV, err := security.NewJSONSchemaValidator(postEntrySchema)
	if err != nil {
		return nil, err
	}
	completedV, err := security.NewJSONSchemaValidator(completedSchema)
	if err != nil {
		return nil, err
	}
	reverseV, err := security.NewJSONSchemaValidator(reverseSchema)
	if err != nil {
		return nil, err
	}
	withdrawalV, err := security.NewJSONSchemaValidator(withdrawalSchema)
	if err != nil {
		return nil, err
	}
	adjustmentV, err := security.NewJSONSchemaValidator(adjustmentSchema)
	if err != nil {
		return nil, err
	}
	acknowledgeV, err := security.NewJSONSchemaValidator(acknowledgeSchema)
	if err != nil {
		return nil, err
	}

	onAuthError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		security.WriteJSONError(w, r, status, code)
	}
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.InstrumentHandler)
	}
	r.Use(RequestLogger(deps.Logger))
	if deps.MaxBodyBytes > 0 {
		r.Use(security.LimitBody(deps.MaxBodyBytes))
	}
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", h.ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.Keys != nil {
		r.Get("/.well-known/jwks.json", h.jwks)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTValidator, onAuthError))
		r.Use(recordActor)
		read := auth.RequireScopes(onAuthError, auth.ScopeRead)
		write := auth.RequireScopes(onAuthError, auth.ScopeWrite)

		r.Route("/accounts", func(r chi.Router) {
			r.With(read).Get("/", h.listAccounts)
			r.With(write, createAccountV.Middleware).Post("/", h.createAccount)
			r.With(read).Get("/{code}", h.getAccount)
			r.With(read).Get("/{code}/balance", h.getBalance)
			r.With(read).Get("/{code}/statement", h.accountStatement)
			r.With(read).Get("/{code}/verify", h.verifyBalance)
		})

		r.Route("/journal", func(r chi.Router) {
			r.With(write, postEntryV.Middleware).Post("/entries", h.postEntry)
			r.With(write, completedV.Middleware).Post("/completed", h.postCompleted)
			r.With(read).Get("/entries/{number}", h.getEntry)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Use(read)
			r.Get("/trial-balance", h.trialBalance)
			r.Get("/profit-and-loss", h.profitAndLoss)
		})

		r.With(auth.RequireScopes(onAuthError, auth.ScopeWithdrawals), withdrawalV.Middleware).Post("/withdrawals", h.requestWithdrawal)
		r.With(read).Get("/withdrawals/{id}", h.getWithdrawal)
		r.With(read).Get("/reservations", h.listReservations)
		r.With(read).Get("/reservations/{id}", h.getReservation)

		r.Route("/admin", func(r chi.Router) {
			if deps.Auditor != nil {
				r.Use(AuditMiddleware(deps.Auditor))
			}
			r.Use(security.IPAllowlist(deps.AdminAllowlist))
			r.Use(auth.RequireScopes(onAuthError, auth.ScopeAdmin))
			r.With(adjustmentV.Middleware).Post("/adjustments", h.postAdjustment)
			r.With(reverseV.Middleware).Post("/entries/{number}/reverse", h.reverseEntry)
			r.Get("/integrity", h.integrityReport)
			r.Post("/integrity/check", h.integrityCheck)
			r.With(acknowledgeV.Middleware).Post("/integrity/acknowledge", h.acknowledgeIntegrity)
			r.Post("/reservations/recover", h.recoverReservations)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

// Probes and scrapes are not rate limited.
func rateLimitKeyByIP(r *http.Request) string {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return ""
	}
	return "ip:" + security.RemoteIP(r)
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/gateway-ledger/internal/auth"
	"github.com/example/gateway-ledger/internal/security"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func RequestLogger(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			// The principal is attached further down the chain, so the
			// actor is read from a holder the auth middleware fills in.
			holder := &actorHolder{}
			start := time.Now()
			next.ServeHTTP(sw, r.WithContext(withActorHolder(r.Context(), holder)))
			dur := time.Since(start)

			l.Info("http_request",
				"cid", security.CorrelationIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"actor", holder.actor,
				"duration_ms", dur.Milliseconds(),
			)
		})
	}
}

func actorOf(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.Actor
	}
	return ""
}

type actorHolderKey struct{}

type actorHolder struct{ actor string }

func withActorHolder(ctx context.Context, h *actorHolder) context.Context {
	return context.WithValue(ctx, actorHolderKey{}, h)
}

// recordActor copies the authenticated actor into the request log line.
func recordActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := r.Context().Value(actorHolderKey{}).(*actorHolder); ok {
			h.actor = actorOf(r)
		}
		next.ServeHTTP(w, r)
	})
}

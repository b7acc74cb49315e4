package security

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const CorrelationIDHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// Caller supplied ids are echoed only when they look like ids; anything else
// is replaced so it cannot inject into logs.
var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := NormalizeCorrelationID(r.Header.Get(CorrelationIDHeader))
		w.Header().Set(CorrelationIDHeader, cid)
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), cid)))
	})
}

// NormalizeCorrelationID returns id when it is usable, or a fresh one.
func NormalizeCorrelationID(id string) string {
	if correlationIDPattern.MatchString(id) {
		return id
	}
	return uuid.NewString()
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

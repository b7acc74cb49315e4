package api

import (
	"fmt"
	"net/http"

	"github.com/example/gateway-ledger/internal/security"
	"github.com/example/gateway-ledger/pkg/audit"
)

// AuditMiddleware appends every privileged request, including refused
// ones, to the audit chain.
func AuditMiddleware(a Auditor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			a.Record(audit.Event{
				Action:  "http.admin",
				Actor:   actorOf(r),
				Subject: r.Method + " " + r.URL.Path,
				Detail:  fmt.Sprintf("cid=%s status=%d", security.CorrelationIDFromContext(r.Context()), sw.status),
			})
		})
	}
}

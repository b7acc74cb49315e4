package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/security"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v and writes the error response
// itself when it cannot.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			security.WriteJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large")
			return false
		}
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindUnknownAccount, ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindDuplicateCode, ledger.KindDuplicatePosting:
		return http.StatusConflict
	case ledger.KindInsufficientBalance, ledger.KindUnbalancedEntry:
		return http.StatusUnprocessableEntity
	case ledger.KindIntegrityHalt:
		return http.StatusLocked
	case ledger.KindReservationFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeLedgerError answers with the error kind as code and the message the
// ledger allows end users to see. Internal details only reach the log.
func (h *handlers) writeLedgerError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := ledger.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.deps.Logger.Error("request_failed",
			"cid", security.CorrelationIDFromContext(r.Context()),
			"op", op,
			"kind", string(kind),
			"err", err,
		)
	}
	security.WriteError(w, r, status, string(kind), ledger.UserMessage(err))
}

func unavailable(w http.ResponseWriter, r *http.Request) {
	security.WriteJSONError(w, r, http.StatusServiceUnavailable, "ledger_unavailable")
}

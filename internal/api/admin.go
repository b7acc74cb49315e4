package api

import (
	"net/http"
	"time"

	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/security"
)

type adjustmentRequest struct {
	EntityType  string                  `json:"entity_type"`
	EntityID    string                  `json:"entity_id"`
	Amount      string                  `json:"amount"`
	IsCredit    bool                    `json:"is_credit"`
	ReferenceID string                  `json:"reference_id"`
	Reason      ledger.AdjustmentReason `json:"reason"`
}

type reverseRequest struct {
	Reason string `json:"reason"`
}

type acknowledgeRequest struct {
	Note string `json:"note"`
}

type integrityResponse struct {
	Halted bool                    `json:"halted"`
	Alarm  *ledger.IntegrityAlarm  `json:"alarm,omitempty"`
	Report *ledger.IntegrityReport `json:"report"`
}

func (h *handlers) postAdjustment(w http.ResponseWriter, r *http.Request) {
	if h.deps.Adjustments == nil {
		unavailable(w, r)
		return
	}

	var req adjustmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := h.deps.Currency.Parse(req.Amount)
	if err != nil {
		security.WriteError(w, r, http.StatusBadRequest, "validation_error", "amount: "+ledger.UserMessage(err))
		return
	}

	entry, err := h.deps.Adjustments.PostAdjustment(r.Context(), ledger.AdjustmentRequest{
		EntityType:  ledger.EntityType(req.EntityType),
		EntityID:    req.EntityID,
		Amount:      amount,
		IsCredit:    req.IsCredit,
		Reason:      req.Reason,
		ActorID:     actorOf(r),
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		h.writeLedgerError(w, r, "post adjustment", err)
		return
	}
	writeJSON(w, r, entryStatus(entry), h.present().entry(entry))
}

func (h *handlers) reverseEntry(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		unavailable(w, r)
		return
	}

	number, ok := entryNumberParam(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.deps.Journal.Reverse(r.Context(), number, actorOf(r), req.Reason)
	if err != nil {
		h.writeLedgerError(w, r, "reverse entry", err)
		return
	}
	writeJSON(w, r, entryStatus(entry), h.present().entry(entry))
}

func (h *handlers) integrityReport(w http.ResponseWriter, r *http.Request) {
	if h.deps.Integrity == nil {
		unavailable(w, r)
		return
	}
	h.writeIntegrity(w, r, h.deps.Integrity.LastReport())
}

// writeIntegrity answers with the stored alarm state alongside report.
func (h *handlers) writeIntegrity(w http.ResponseWriter, r *http.Request, report *ledger.IntegrityReport) {
	alarm, err := h.deps.Integrity.Alarm(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "integrity alarm", err)
		return
	}
	writeJSON(w, r, http.StatusOK, integrityResponse{Halted: alarm != nil, Alarm: alarm, Report: report})
}

func (h *handlers) integrityCheck(w http.ResponseWriter, r *http.Request) {
	if h.deps.Integrity == nil {
		unavailable(w, r)
		return
	}

	report, err := h.deps.Integrity.Check(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, "integrity check", err)
		return
	}
	h.writeIntegrity(w, r, report)
}

func (h *handlers) acknowledgeIntegrity(w http.ResponseWriter, r *http.Request) {
	if h.deps.Integrity == nil {
		unavailable(w, r)
		return
	}

	var req acknowledgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.deps.Integrity.Acknowledge(r.Context(), actorOf(r), req.Note); err != nil {
		h.writeLedgerError(w, r, "acknowledge integrity alarm", err)
		return
	}
	h.writeIntegrity(w, r, h.deps.Integrity.LastReport())
}

func (h *handlers) recoverReservations(w http.ResponseWriter, r *http.Request) {
	if h.deps.Withdrawals == nil {
		unavailable(w, r)
		return
	}

	age := h.deps.RecoveryAge
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			security.WriteError(w, r, http.StatusBadRequest, "validation_error", "older_than must be a positive duration")
			return
		}
		age = d
	}

	report, err := h.deps.Withdrawals.RecoverPending(r.Context(), age)
	if err != nil {
		h.writeLedgerError(w, r, "recover reservations", err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/gateway-ledger/internal/ledger"
	"github.com/example/gateway-ledger/internal/security"
)

type withdrawalRequest struct {
	EntityType  string             `json:"entity_type"`
	EntityID    string             `json:"entity_id"`
	Amount      string             `json:"amount"`
	Destination ledger.Destination `json:"destination"`
}

type listReservationsResponse struct {
	CorrelationID string            `json:"correlation_id"`
	Reservations  []reservationView `json:"reservations"`
}

func (h *handlers) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	if h.deps.Withdrawals == nil {
		unavailable(w, r)
		return
	}

	var req withdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := h.deps.Currency.Parse(req.Amount)
	if err != nil {
		security.WriteError(w, r, http.StatusBadRequest, "validation_error", "amount: "+ledger.UserMessage(err))
		return
	}

	res, err := h.deps.Withdrawals.RequestWithdrawal(r.Context(), ledger.WithdrawalRequest{
		EntityType:  ledger.EntityType(req.EntityType),
		EntityID:    req.EntityID,
		Amount:      amount,
		Destination: req.Destination,
		RequestedBy: actorOf(r),
	})
	if err != nil {
		h.writeLedgerError(w, r, "request withdrawal", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, h.present().withdrawalResult(res))
}

func (h *handlers) getWithdrawal(w http.ResponseWriter, r *http.Request) {
	if h.deps.Withdrawals == nil {
		unavailable(w, r)
		return
	}

	wd, err := h.deps.Withdrawals.GetWithdrawal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, "get withdrawal", err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.present().withdrawal(wd))
}

func (h *handlers) getReservation(w http.ResponseWriter, r *http.Request) {
	if h.deps.Withdrawals == nil {
		unavailable(w, r)
		return
	}

	res, err := h.deps.Withdrawals.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, "get reservation", err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.present().reservation(res))
}

func (h *handlers) listReservations(w http.ResponseWriter, r *http.Request) {
	if h.deps.Withdrawals == nil {
		unavailable(w, r)
		return
	}

	state := ledger.ReservationState(r.URL.Query().Get("state"))
	switch state {
	case "", ledger.ReservationRequested, ledger.ReservationReserved, ledger.ReservationConfirmed, ledger.ReservationRolledBack:
	default:
		security.WriteError(w, r, http.StatusBadRequest, "validation_error", "unknown reservation state")
		return
	}

	list, err := h.deps.Withdrawals.ListReservations(r.Context(), ledger.ReservationFilter{State: state})
	if err != nil {
		h.writeLedgerError(w, r, "list reservations", err)
		return
	}
	views := make([]reservationView, 0, len(list))
	for i := range list {
		views = append(views, h.present().reservation(&list[i]))
	}
	writeJSON(w, r, http.StatusOK, listReservationsResponse{
		CorrelationID: security.CorrelationIDFromContext(r.Context()),
		Reservations:  views,
	})
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"market/internal/auth"
	"market/internal/order"
	"market/internal/payment"
	"market/internal/user"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondError maps service errors onto HTTP statuses. Business errors carry
// their message so the caller can act on the failed rule; infrastructure
// errors surface a generic retry signal without leaking internal cause.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidRequest),
		errors.Is(err, order.ErrProductNotFound),
		errors.Is(err, user.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, user.ErrInvalidCredentials),
		errors.Is(err, user.ErrInactive):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound),
		errors.Is(err, payment.ErrUnknownTxnRef):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, payment.ErrAlreadyPaid),
		errors.Is(err, payment.ErrPaymentResolved),
		errors.Is(err, payment.ErrConflictingOutcome),
		errors.Is(err, user.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeError(w, http.StatusServiceUnavailable, "payment provider unavailable, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal error, try again")
	}
}

package http

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"market/internal/order"
	"market/internal/payment"
)

type PaymentHandler struct {
	svc *payment.Service
}

func NewPaymentHandler(svc *payment.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// Process initiates a provider payment for the caller's order.
func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing orderId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	resp, err := h.svc.ProcessPayment(ctx, orderID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SecretKey exposes the provider secret the client needs for the hosted flow.
func (h *PaymentHandler) SecretKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"secretKey": h.svc.SecretKey()})
}

// Callback is the provider's asynchronous outcome notification, keyed by the
// transaction reference and authenticated by an HMAC signature over the
// query parameters.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	txnRef := q.Get("txnRef")
	status := order.PaymentStatus(q.Get("status"))
	signature := q.Get("signature")

	if txnRef == "" || signature == "" {
		writeError(w, http.StatusBadRequest, "missing txnRef or signature")
		return
	}

	params := url.Values{}
	params.Set("txnRef", txnRef)
	params.Set("status", string(status))
	if !payment.VerifySignature(params, h.svc.SecretKey(), signature) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.svc.UpdatePayment(ctx, order.ByTxnRef(txnRef), status); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"market/internal/auth"
	"market/internal/order"
)

// EventPublisher emits order lifecycle events after a successful mutation.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, o *order.Order) error
	PublishOrderCancelled(ctx context.Context, orderID, userID string) error
}

type OrderHandler struct {
	svc    *order.Service
	pub    EventPublisher
	logger *zap.Logger
}

func NewOrderHandler(svc *order.Service, pub EventPublisher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, pub: pub, logger: logger}
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req order.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.svc.CreateOrder(ctx, req, id)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.pub.PublishOrderCreated(ctx, o); err != nil {
		// The order is committed; a lost event must not fail the request.
		h.logger.Error("publish OrderCreated", zap.String("order_id", o.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp, err := h.svc.GetUserOrders(ctx, id, page, size)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing orderId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.svc.GetOrder(ctx, orderID, id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing orderId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.svc.CancelOrder(ctx, orderID, id); err != nil {
		respondError(w, err)
		return
	}

	if err := h.pub.PublishOrderCancelled(ctx, orderID, id.UserID); err != nil {
		h.logger.Error("publish OrderCancelled", zap.String("order_id", orderID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(order.StatusCancelled)})
}

func pageParams(r *http.Request) (page, size int, err error) {
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return 0, 0, errBadParam("page")
		}
	}
	if v := q.Get("size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil {
			return 0, 0, errBadParam("size")
		}
	}
	return page, size, nil
}

type paramError string

func errBadParam(name string) error { return paramError(name) }

func (e paramError) Error() string { return "invalid " + string(e) + " parameter" }

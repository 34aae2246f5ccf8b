package events

import (
	"time"

	"github.com/shopspring/decimal"

	"market/internal/order"
)

// Event names and versions as they appear on the wire.
const (
	EventOrderCreated    = "OrderCreated"
	EventOrderCancelled  = "OrderCancelled"
	EventRefundRequested = "RefundRequested"

	eventVersion = 1
)

// OrderLine mirrors an order item in event payloads.
type OrderLine struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderCreated is published after checkout persists a new order.
type OrderCreated struct {
	OrderID       string              `json:"orderId"`
	UserID        string              `json:"userId"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod order.PaymentMethod `json:"paymentMethod"`
	Items         []OrderLine         `json:"items"`
	Timestamp     time.Time           `json:"timestamp"`
}

// OrderCancelled is published when an order moves to CANCELLED.
type OrderCancelled struct {
	OrderID   string    `json:"orderId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// RefundRequested is relayed from recorded refund intents. Downstream
// consumers own the refund's execution; this service only guarantees the
// intent was recorded atomically with the cancellation.
type RefundRequested struct {
	OrderID   string          `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

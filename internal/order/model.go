package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a single order line. Product name and unit price are copied from the
// catalog at creation time so later catalog edits do not rewrite history.
type Item struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Order is the purchase aggregate. It owns its items; the owning user is
// referenced by id only.
type Order struct {
	ID              string          `json:"orderId"`
	UserID          string          `json:"userId"`
	Items           []Item          `json:"items"`
	ShippingAddress string          `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	Status          Status          `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
	TxnRef          string          `json:"txnRef,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	ShippingDate    *time.Time      `json:"shippingDate,omitempty"`
	DeliveryDate    *time.Time      `json:"deliveryDate,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// CreateRequest is the checkout payload.
type CreateRequest struct {
	Items           []CreateItem  `json:"items"`
	ShippingAddress string        `json:"shippingAddress"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
}

type CreateItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// UpdateStatusRequest is the admin status transition payload. Notes are stored
// as an audit annotation and never validated.
type UpdateStatusRequest struct {
	Status Status `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// PagedResponse carries one page of results plus enough for the caller to
// compute total pages.
type PagedResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// DashboardMetrics aggregates order counts and revenue over a consistent snapshot.
type DashboardMetrics struct {
	TotalOrders    int64            `json:"totalOrders"`
	OrdersByStatus map[Status]int64 `json:"ordersByStatus"`
	TotalRevenue   decimal.Decimal  `json:"totalRevenue"`
	TodayOrders    int64            `json:"todayOrders"`
	TodayRevenue   decimal.Decimal  `json:"todayRevenue"`
}

// RefundStatus is the relay state of a recorded refund intent.
type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundPublished RefundStatus = "PUBLISHED"
)

// ListFilter narrows admin order listings. Nil fields mean no constraint.
type ListFilter struct {
	Status    *Status
	StartDate *time.Time
	EndDate   *time.Time
}

// Lookup is a tagged key resolving an order either by its internal id or by
// the provider-issued transaction reference.
type Lookup struct {
	byRef bool
	value string
}

// ByID keys a lookup on the internal order id.
func ByID(orderID string) Lookup {
	return Lookup{value: orderID}
}

// ByTxnRef keys a lookup on the provider transaction reference.
func ByTxnRef(ref string) Lookup {
	return Lookup{byRef: true, value: ref}
}

// ByRef reports whether the lookup is keyed by transaction reference.
func (l Lookup) ByRef() bool { return l.byRef }

// Value returns the raw key.
func (l Lookup) Value() string { return l.value }

package order

// Status is the order lifecycle state.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// PaymentStatus tracks the payment lifecycle independently of the order status.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentMethod is the closed set of supported payment methods.
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "CARD"
	MethodWallet PaymentMethod = "WALLET"
	MethodCOD    PaymentMethod = "COD"
)

// statusTransitions is the single source of truth for valid order status moves.
// Forward progression only; CANCELLED is reachable from every non-terminal state.
var statusTransitions = map[Status][]Status{
	StatusCreated:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
}

// cancellableStatuses lists the states a user may cancel from. Once the order
// is shipped only an admin move to CANCELLED remains possible.
var cancellableStatuses = map[Status]bool{
	StatusCreated: true,
	StatusPaid:    true,
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s Status) bool {
	_, ok := statusTransitions[s]
	return ok
}

// ValidMethod reports whether m is a known payment method.
func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCard, MethodWallet, MethodCOD:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// UserCancellable reports whether a user-initiated cancellation is allowed from s.
func UserCancellable(s Status) bool {
	return cancellableStatuses[s]
}

// Resolved reports whether the payment reached a terminal outcome.
func (p PaymentStatus) Resolved() bool {
	return p == PaymentSuccess || p == PaymentFailed
}

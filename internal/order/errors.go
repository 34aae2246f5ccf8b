package order

import "errors"

var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrForbidden indicates the caller does not own the order and is not an admin.
	ErrForbidden = errors.New("order access forbidden")
	// ErrInvalidRequest indicates malformed or contradictory input.
	ErrInvalidRequest = errors.New("invalid order request")
	// ErrInvalidTransition indicates a status move the transition table forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrProductNotFound indicates a line item references an unknown or inactive product.
	ErrProductNotFound = errors.New("product not found")
)

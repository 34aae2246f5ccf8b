package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"market/internal/order"
)

var (
	// ErrAlreadyPaid indicates a duplicate payment-initiation attempt.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrPaymentResolved indicates the order's payment already reached a
	// terminal outcome; a new attempt requires a fresh order.
	ErrPaymentResolved = errors.New("payment already resolved")
	// ErrUnknownTxnRef indicates no order matches the provider reference.
	ErrUnknownTxnRef = errors.New("unknown transaction reference")
	// ErrConflictingOutcome indicates two callbacks reported different terminal
	// outcomes for the same payment. Surfaced for manual investigation, never
	// silently overwritten.
	ErrConflictingOutcome = errors.New("conflicting payment outcome")
)

// errAlreadyApplied aborts the row-locked update without surfacing an error:
// the duplicate callback is an idempotent retry.
var errAlreadyApplied = errors.New("outcome already applied")

// Response is returned from a payment initiation.
type Response struct {
	OrderID string              `json:"orderId"`
	TxnRef  string              `json:"txnRef"`
	PayURL  string              `json:"payUrl,omitempty"`
	Status  order.PaymentStatus `json:"status"`
}

// Service reconciles provider payment outcomes against orders.
type Service struct {
	orders  order.Repository
	gateway Gateway
	secret  string
	logger  *zap.Logger
}

// NewService creates the payment reconciliation service.
func NewService(orders order.Repository, gateway Gateway, secret string, logger *zap.Logger) *Service {
	return &Service{orders: orders, gateway: gateway, secret: secret, logger: logger}
}

// SecretKey returns the provider secret clients need to verify the hosted
// payment flow. Read-only after startup.
func (s *Service) SecretKey() string {
	return s.secret
}

// ProcessPayment initiates a provider payment for the order. The transaction
// reference is recorded before the gateway call, so a timed-out initiation
// leaves the order PENDING and resolvable by a later callback; retrying reuses
// the same reference.
func (s *Service) ProcessPayment(ctx context.Context, orderID string) (*Response, error) {
	o, err := s.orders.Get(ctx, order.ByID(orderID))
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus.Resolved() {
		// A terminal FAILED payment cannot be re-initiated either: the txn_ref
		// is burned, so a new hosted flow could never reconcile its callback.
		if o.PaymentStatus == order.PaymentSuccess {
			return nil, ErrAlreadyPaid
		}
		return nil, ErrPaymentResolved
	}

	txnRef := o.TxnRef
	if txnRef == "" {
		txnRef = newTxnRef()
		if err := s.orders.SetTxnRef(ctx, o.ID, txnRef); err != nil {
			if errors.Is(err, order.ErrNotFound) {
				// Lost the race with a concurrent resolution.
				return nil, ErrAlreadyPaid
			}
			return nil, fmt.Errorf("record txn_ref: %w", err)
		}
	}

	resp, err := s.gateway.InitiatePayment(ctx, InitiateRequest{
		OrderID: o.ID,
		TxnRef:  txnRef,
		Amount:  o.Total,
		Method:  o.PaymentMethod,
	})
	if err != nil {
		if errors.Is(err, ErrGatewayUnavailable) {
			s.logger.Warn("payment initiation unresolved, order stays pending",
				zap.String("order_id", o.ID),
				zap.String("txn_ref", txnRef),
				zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("payment initiated",
		zap.String("order_id", o.ID),
		zap.String("txn_ref", txnRef))

	return &Response{
		OrderID: o.ID,
		TxnRef:  txnRef,
		PayURL:  resp.PayURL,
		Status:  order.PaymentPending,
	}, nil
}

// UpdatePayment applies a payment outcome to the order resolved by key, either
// a provider transaction reference (callback path) or an internal order id
// (manual reconciliation). The row lock serializes concurrent callbacks for
// the same order; a repeated identical outcome is a no-op, a different
// terminal outcome is rejected with ErrConflictingOutcome.
func (s *Service) UpdatePayment(ctx context.Context, key order.Lookup, newStatus order.PaymentStatus) error {
	if !newStatus.Resolved() {
		return fmt.Errorf("%w: outcome must be %s or %s",
			order.ErrInvalidRequest, order.PaymentSuccess, order.PaymentFailed)
	}

	err := s.orders.UpdateLocked(ctx, key, func(tx *sql.Tx, o *order.Order) error {
		if o.PaymentStatus.Resolved() {
			if o.PaymentStatus == newStatus {
				return errAlreadyApplied
			}
			return fmt.Errorf("%w: payment is %s, callback reported %s",
				ErrConflictingOutcome, o.PaymentStatus, newStatus)
		}

		o.PaymentStatus = newStatus
		if newStatus == order.PaymentSuccess {
			switch {
			case order.CanTransition(o.Status, order.StatusPaid):
				o.Status = order.StatusPaid
			case o.Status == order.StatusCancelled:
				// Payment landed after cancellation: keep the order cancelled
				// and compensate.
				if err := s.orders.RecordRefundIntentTx(ctx, tx, o.ID, o.Total); err != nil {
					return err
				}
			}
		}
		return nil
	})

	switch {
	case err == nil:
		s.logger.Info("payment outcome applied",
			zap.String("key", key.Value()),
			zap.String("status", string(newStatus)))
		return nil
	case errors.Is(err, errAlreadyApplied):
		s.logger.Info("duplicate payment callback ignored",
			zap.String("key", key.Value()),
			zap.String("status", string(newStatus)))
		return nil
	case errors.Is(err, order.ErrNotFound) && key.ByRef():
		return fmt.Errorf("%w: %s", ErrUnknownTxnRef, key.Value())
	default:
		return err
	}
}

func newTxnRef() string {
	return "MKT" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:20]
}

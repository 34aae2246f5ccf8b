package order

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market/internal/auth"
	"market/internal/catalog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	taxRate         = decimal.NewFromFloat(0.10)
	shippingFee     = decimal.NewFromInt(5)
	freeShippingMin = decimal.NewFromInt(100)
)

// Service implements the order lifecycle: checkout, listing, cancellation and
// admin status transitions.
type Service struct {
	repo    Repository
	catalog catalog.Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates the order lifecycle service.
func NewService(repo Repository, cat catalog.Catalog, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: cat,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder validates the line items against the catalog, prices the order
// and persists it in CREATED/PENDING.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest, id auth.Identity) (*Order, error) {
	if id.UserID == "" {
		return nil, auth.ErrUnauthenticated
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no line items", ErrInvalidRequest)
	}
	if req.ShippingAddress == "" {
		return nil, fmt.Errorf("%w: shipping address is required", ErrInvalidRequest)
	}
	if !ValidMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, req.PaymentMethod)
	}

	subtotal := decimal.Zero
	items := make([]Item, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %s", ErrInvalidRequest, line.ProductID)
		}
		p, err := s.catalog.Product(ctx, line.ProductID)
		if err != nil {
			if err == catalog.ErrNotFound {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			}
			return nil, fmt.Errorf("lookup product %s: %w", line.ProductID, err)
		}
		if !p.Active {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}

		items = append(items, Item{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.Price,
		})
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	tax := subtotal.Mul(taxRate).Round(2)
	shipping := shippingFee
	if subtotal.GreaterThanOrEqual(freeShippingMin) {
		shipping = decimal.Zero
	}

	now := s.now()
	o := &Order{
		UserID:          id.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          StatusCreated,
		Subtotal:        subtotal,
		Tax:             tax,
		Shipping:        shipping,
		Total:           subtotal.Add(tax).Add(shipping),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("total", o.Total.String()))
	return o, nil
}

// GetUserOrders returns the identity's own orders, newest first.
func (s *Service) GetUserOrders(ctx context.Context, id auth.Identity, page, size int) (*PagedResponse[Order], error) {
	page, size, err := clampPage(page, size)
	if err != nil {
		return nil, err
	}

	orders, total, err := s.repo.ListByUser(ctx, id.UserID, page, size)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return pagedOrders(orders, total, page, size), nil
}

// GetOrder returns one order, enforcing ownership unless the caller is an admin.
func (s *Service) GetOrder(ctx context.Context, orderID string, id auth.Identity) (*Order, error) {
	o, err := s.repo.Get(ctx, ByID(orderID))
	if err != nil {
		return nil, err
	}
	if o.UserID != id.UserID && !id.Admin() {
		return nil, ErrForbidden
	}
	return o, nil
}

// CancelOrder moves the order to CANCELLED if it has not shipped. When the
// payment already succeeded a refund intent is recorded in the same
// transaction as the status flip.
func (s *Service) CancelOrder(ctx context.Context, orderID string, id auth.Identity) error {
	err := s.repo.UpdateLocked(ctx, ByID(orderID), func(tx *sql.Tx, o *Order) error {
		if o.UserID != id.UserID && !id.Admin() {
			return ErrForbidden
		}
		if !UserCancellable(o.Status) {
			return fmt.Errorf("%w: cannot cancel order in status %s", ErrInvalidTransition, o.Status)
		}

		o.Status = StatusCancelled
		if o.PaymentStatus == PaymentSuccess {
			if err := s.repo.RecordRefundIntentTx(ctx, tx, o.ID, o.Total); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("order cancelled", zap.String("order_id", orderID), zap.String("user_id", id.UserID))
	return nil
}

// GetAllOrders is the admin listing with optional status and date-range filters.
func (s *Service) GetAllOrders(ctx context.Context, f ListFilter, page, size int) (*PagedResponse[Order], error) {
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return nil, fmt.Errorf("%w: startDate after endDate", ErrInvalidRequest)
	}
	if f.Status != nil && !ValidStatus(*f.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, *f.Status)
	}
	page, size, err := clampPage(page, size)
	if err != nil {
		return nil, err
	}

	orders, total, err := s.repo.List(ctx, f, page, size)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return pagedOrders(orders, total, page, size), nil
}

// UpdateOrderStatus applies an admin transition. Only moves the transition
// table allows go through; a cancellation of a paid order records a refund
// intent exactly like the user path.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, req UpdateStatusRequest) (*Order, error) {
	if !ValidStatus(req.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, req.Status)
	}

	var updated Order
	err := s.repo.UpdateLocked(ctx, ByID(orderID), func(tx *sql.Tx, o *Order) error {
		if !CanTransition(o.Status, req.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, req.Status)
		}

		prev := o.Status
		o.Status = req.Status
		if req.Notes != "" {
			o.Notes = req.Notes
		}

		now := s.now()
		switch req.Status {
		case StatusShipped:
			o.ShippingDate = &now
		case StatusDelivered:
			o.DeliveryDate = &now
		case StatusCancelled:
			if o.PaymentStatus == PaymentSuccess {
				if err := s.repo.RecordRefundIntentTx(ctx, tx, o.ID, o.Total); err != nil {
					return err
				}
			}
		}

		s.logger.Info("order status updated",
			zap.String("order_id", o.ID),
			zap.String("from", string(prev)),
			zap.String("to", string(req.Status)))
		updated = *o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetDashboardMetrics reads aggregates from a consistent snapshot of the store.
func (s *Service) GetDashboardMetrics(ctx context.Context) (*DashboardMetrics, error) {
	m, err := s.repo.Dashboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard metrics: %w", err)
	}
	return m, nil
}

func clampPage(page, size int) (int, int, error) {
	if page < 0 || size < 0 {
		return 0, 0, fmt.Errorf("%w: page and size must be non-negative", ErrInvalidRequest)
	}
	if size == 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size, nil
}

func pagedOrders(orders []Order, total int64, page, size int) *PagedResponse[Order] {
	if orders == nil {
		orders = []Order{}
	}
	return &PagedResponse[Order]{Items: orders, Total: total, Page: page, Size: size}
}

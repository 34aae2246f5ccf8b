package order

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market/internal/auth"
	"market/internal/catalog"
)

type fakeRepo struct {
	Repository

	createFn       func(ctx context.Context, o *Order) error
	getFn          func(ctx context.Context, key Lookup) (*Order, error)
	listByUserFn   func(ctx context.Context, userID string, page, size int) ([]Order, int64, error)
	listFn         func(ctx context.Context, f ListFilter, page, size int) ([]Order, int64, error)
	updateLockedFn func(ctx context.Context, key Lookup, fn func(tx *sql.Tx, o *Order) error) error

	refunds []string
}

func (f *fakeRepo) Create(ctx context.Context, o *Order) error { return f.createFn(ctx, o) }

func (f *fakeRepo) Get(ctx context.Context, key Lookup) (*Order, error) { return f.getFn(ctx, key) }

func (f *fakeRepo) ListByUser(ctx context.Context, userID string, page, size int) ([]Order, int64, error) {
	return f.listByUserFn(ctx, userID, page, size)
}

func (f *fakeRepo) List(ctx context.Context, flt ListFilter, page, size int) ([]Order, int64, error) {
	return f.listFn(ctx, flt, page, size)
}

func (f *fakeRepo) UpdateLocked(ctx context.Context, key Lookup, fn func(tx *sql.Tx, o *Order) error) error {
	return f.updateLockedFn(ctx, key, fn)
}

func (f *fakeRepo) RecordRefundIntentTx(ctx context.Context, tx *sql.Tx, orderID string, amount decimal.Decimal) error {
	f.refunds = append(f.refunds, orderID)
	return nil
}

// lockingRepo holds one in-memory order and runs UpdateLocked closures against it.
func lockingRepo(o *Order) *fakeRepo {
	f := &fakeRepo{}
	f.updateLockedFn = func(ctx context.Context, key Lookup, fn func(tx *sql.Tx, o *Order) error) error {
		if key.Value() != o.ID && !(key.ByRef() && key.Value() == o.TxnRef) {
			return ErrNotFound
		}
		return fn(nil, o)
	}
	f.getFn = func(ctx context.Context, key Lookup) (*Order, error) {
		cp := *o
		return &cp, nil
	}
	return f
}

type fakeCatalog struct {
	products map[string]catalog.Product
}

func (c *fakeCatalog) Product(ctx context.Context, id string) (*catalog.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]catalog.Product{
		"p1": {ID: "p1", Name: "Widget", Price: decimal.NewFromFloat(19.99), Active: true},
		"p2": {ID: "p2", Name: "Gadget", Price: decimal.NewFromInt(40), Active: true},
		"p3": {ID: "p3", Name: "Retired", Price: decimal.NewFromInt(10), Active: false},
	}}
}

func newTestService(repo Repository, cat catalog.Catalog) *Service {
	s := NewService(repo, cat, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return s
}

func customer(id string) auth.Identity { return auth.Identity{UserID: id, Role: auth.RoleUser} }

func TestCreateOrder_PricesAndPersists(t *testing.T) {
	var created *Order
	repo := &fakeRepo{createFn: func(ctx context.Context, o *Order) error {
		created = o
		return nil
	}}
	svc := newTestService(repo, testCatalog())

	o, err := svc.CreateOrder(context.Background(), CreateRequest{
		Items: []CreateItem{
			{ProductID: "p1", Quantity: 2}, // 39.98
			{ProductID: "p2", Quantity: 1}, // 40.00
		},
		ShippingAddress: "1 Main St",
		PaymentMethod:   MethodCard,
	}, customer("user-1"))
	require.NoError(t, err)
	require.Same(t, created, o)

	require.Equal(t, StatusCreated, o.Status)
	require.Equal(t, PaymentPending, o.PaymentStatus)
	require.True(t, decimal.NewFromFloat(79.98).Equal(o.Subtotal), o.Subtotal.String())
	require.True(t, decimal.NewFromFloat(8.00).Equal(o.Tax), o.Tax.String())
	require.True(t, decimal.NewFromInt(5).Equal(o.Shipping), "below free shipping threshold")
	require.True(t, o.Subtotal.Add(o.Tax).Add(o.Shipping).Equal(o.Total), o.Total.String())
	require.Equal(t, "Widget", o.Items[0].ProductName)
}

func TestCreateOrder_FreeShippingAtThreshold(t *testing.T) {
	repo := &fakeRepo{createFn: func(ctx context.Context, o *Order) error { return nil }}
	svc := newTestService(repo, testCatalog())

	o, err := svc.CreateOrder(context.Background(), CreateRequest{
		Items:           []CreateItem{{ProductID: "p2", Quantity: 3}}, // 120.00
		ShippingAddress: "1 Main St",
		PaymentMethod:   MethodWallet,
	}, customer("user-1"))
	require.NoError(t, err)
	require.True(t, o.Shipping.IsZero())
	require.True(t, decimal.NewFromInt(132).Equal(o.Total), o.Total.String())
}

func TestCreateOrder_Validation(t *testing.T) {
	repo := &fakeRepo{createFn: func(ctx context.Context, o *Order) error {
		t.Fatal("invalid request must not reach the repository")
		return nil
	}}
	svc := newTestService(repo, testCatalog())
	ctx := context.Background()
	id := customer("user-1")

	valid := CreateRequest{
		Items:           []CreateItem{{ProductID: "p1", Quantity: 1}},
		ShippingAddress: "1 Main St",
		PaymentMethod:   MethodCard,
	}

	t.Run("no items", func(t *testing.T) {
		req := valid
		req.Items = nil
		_, err := svc.CreateOrder(ctx, req, id)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("missing address", func(t *testing.T) {
		req := valid
		req.ShippingAddress = ""
		_, err := svc.CreateOrder(ctx, req, id)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unknown method", func(t *testing.T) {
		req := valid
		req.PaymentMethod = "CASH"
		_, err := svc.CreateOrder(ctx, req, id)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("zero quantity", func(t *testing.T) {
		req := valid
		req.Items = []CreateItem{{ProductID: "p1", Quantity: 0}}
		_, err := svc.CreateOrder(ctx, req, id)
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unknown product", func(t *testing.T) {
		req := valid
		req.Items = []CreateItem{{ProductID: "nope", Quantity: 1}}
		_, err := svc.CreateOrder(ctx, req, id)
		require.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("inactive product", func(t *testing.T) {
		req := valid
		req.Items = []CreateItem{{ProductID: "p3", Quantity: 1}}
		_, err := svc.CreateOrder(ctx, req, id)
		require.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("no identity", func(t *testing.T) {
		_, err := svc.CreateOrder(ctx, valid, auth.Identity{})
		require.ErrorIs(t, err, auth.ErrUnauthenticated)
	})
}

func TestGetOrder_Ownership(t *testing.T) {
	o := &Order{ID: "order-1", UserID: "owner", Status: StatusCreated}
	repo := lockingRepo(o)
	svc := newTestService(repo, testCatalog())
	ctx := context.Background()

	got, err := svc.GetOrder(ctx, "order-1", customer("owner"))
	require.NoError(t, err)
	require.Equal(t, "order-1", got.ID)

	_, err = svc.GetOrder(ctx, "order-1", customer("stranger"))
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetOrder(ctx, "order-1", auth.Identity{UserID: "staff", Role: auth.RoleAdmin})
	require.NoError(t, err)
}

func TestCancelOrder_FromCreated(t *testing.T) {
	o := &Order{ID: "order-1", UserID: "owner", Status: StatusCreated, PaymentStatus: PaymentPending}
	repo := lockingRepo(o)
	svc := newTestService(repo, testCatalog())

	require.NoError(t, svc.CancelOrder(context.Background(), "order-1", customer("owner")))
	require.Equal(t, StatusCancelled, o.Status)
	require.Empty(t, repo.refunds, "unpaid cancellation must not record a refund")
}

func TestCancelOrder_PaidRecordsRefundIntent(t *testing.T) {
	o := &Order{
		ID: "order-1", UserID: "owner",
		Status: StatusPaid, PaymentStatus: PaymentSuccess,
		Total: decimal.NewFromInt(50),
	}
	repo := lockingRepo(o)
	svc := newTestService(repo, testCatalog())

	require.NoError(t, svc.CancelOrder(context.Background(), "order-1", customer("owner")))
	require.Equal(t, StatusCancelled, o.Status)
	require.Equal(t, []string{"order-1"}, repo.refunds)
}

func TestCancelOrder_AfterShipmentRejected(t *testing.T) {
	for _, s := range []Status{StatusShipped, StatusDelivered, StatusCancelled} {
		o := &Order{ID: "order-1", UserID: "owner", Status: s}
		repo := lockingRepo(o)
		svc := newTestService(repo, testCatalog())

		err := svc.CancelOrder(context.Background(), "order-1", customer("owner"))
		require.ErrorIs(t, err, ErrInvalidTransition, string(s))
		require.Equal(t, s, o.Status)
	}
}

func TestCancelOrder_Forbidden(t *testing.T) {
	o := &Order{ID: "order-1", UserID: "owner", Status: StatusCreated}
	repo := lockingRepo(o)
	svc := newTestService(repo, testCatalog())

	err := svc.CancelOrder(context.Background(), "order-1", customer("stranger"))
	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, StatusCreated, o.Status)
}

func TestUpdateOrderStatus_StepwiseProgression(t *testing.T) {
	o := &Order{ID: "order-1", UserID: "owner", Status: StatusPaid, PaymentStatus: PaymentSuccess}
	repo := lockingRepo(o)
	svc := newTestService(repo, testCatalog())
	ctx := context.Background()

	shipped, err := svc.UpdateOrderStatus(ctx, "order-1", UpdateStatusRequest{Status: StatusShipped, Notes: "carrier ACME"})
	require.NoError(t, err)
	require.Equal(t, StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippingDate)
	require.Equal(t, "carrier ACME", shipped.Notes)

	delivered, err := svc.UpdateOrderStatus(ctx, "order-1", UpdateStatusRequest{Status: StatusDelivered})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveryDate)
}

func TestUpdateOrderStatus_SkippingStatesRejected(t *testing.T) {
	o := &Order{ID: "order-1", UserID: "owner", Status: StatusCreated}
	repo := lockingRepo(o)
	svc := newTestService(repo, testCatalog())

	_, err := svc.UpdateOrderStatus(context.Background(), "order-1", UpdateStatusRequest{Status: StatusDelivered})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, StatusCreated, o.Status)
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	repo := &fakeRepo{updateLockedFn: func(ctx context.Context, key Lookup, fn func(tx *sql.Tx, o *Order) error) error {
		t.Fatal("unknown status must be rejected before the lock")
		return nil
	}}
	svc := newTestService(repo, testCatalog())

	_, err := svc.UpdateOrderStatus(context.Background(), "order-1", UpdateStatusRequest{Status: "SHIPPING"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateOrderStatus_AdminCancelOfPaidRecordsRefund(t *testing.T) {
	o := &Order{
		ID: "order-1", UserID: "owner",
		Status: StatusShipped, PaymentStatus: PaymentSuccess,
		Total: decimal.NewFromInt(80),
	}
	repo := lockingRepo(o)
	svc := newTestService(repo, testCatalog())

	updated, err := svc.UpdateOrderStatus(context.Background(), "order-1", UpdateStatusRequest{Status: StatusCancelled})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.Status)
	require.Equal(t, []string{"order-1"}, repo.refunds)
}

func TestGetUserOrders_OutOfRangePageKeepsTotal(t *testing.T) {
	repo := &fakeRepo{listByUserFn: func(ctx context.Context, userID string, page, size int) ([]Order, int64, error) {
		return nil, 12, nil
	}}
	svc := newTestService(repo, testCatalog())

	resp, err := svc.GetUserOrders(context.Background(), customer("user-1"), 5, 10)
	require.NoError(t, err)
	require.Empty(t, resp.Items)
	require.EqualValues(t, 12, resp.Total)
	require.Equal(t, 5, resp.Page)
	require.Equal(t, 10, resp.Size)
}

func TestGetUserOrders_PageClamping(t *testing.T) {
	var gotPage, gotSize int
	repo := &fakeRepo{listByUserFn: func(ctx context.Context, userID string, page, size int) ([]Order, int64, error) {
		gotPage, gotSize = page, size
		return nil, 0, nil
	}}
	svc := newTestService(repo, testCatalog())
	ctx := context.Background()
	id := customer("user-1")

	resp, err := svc.GetUserOrders(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 20, gotSize, "zero size takes the default")
	require.NotNil(t, resp.Items, "empty page still serializes as an array")

	_, err = svc.GetUserOrders(ctx, id, 3, 500)
	require.NoError(t, err)
	require.Equal(t, 3, gotPage)
	require.Equal(t, 100, gotSize, "size is capped")

	_, err = svc.GetUserOrders(ctx, id, -1, 10)
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.GetUserOrders(ctx, id, 0, -5)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGetAllOrders_DateRangeValidation(t *testing.T) {
	repo := &fakeRepo{listFn: func(ctx context.Context, f ListFilter, page, size int) ([]Order, int64, error) {
		return []Order{}, 0, nil
	}}
	svc := newTestService(repo, testCatalog())
	ctx := context.Background()

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.GetAllOrders(ctx, ListFilter{StartDate: &start, EndDate: &end}, 0, 10)
	require.ErrorIs(t, err, ErrInvalidRequest)

	bad := Status("SHIPPING")
	_, err = svc.GetAllOrders(ctx, ListFilter{Status: &bad}, 0, 10)
	require.ErrorIs(t, err, ErrInvalidRequest)

	ok := StatusPaid
	resp, err := svc.GetAllOrders(ctx, ListFilter{Status: &ok, StartDate: &end, EndDate: &start}, 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 0, resp.Total)
}

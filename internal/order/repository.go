package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Repository is the order store. It is the single source of truth for order
// and payment status.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, key Lookup) (*Order, error)
	ListByUser(ctx context.Context, userID string, page, size int) ([]Order, int64, error)
	List(ctx context.Context, f ListFilter, page, size int) ([]Order, int64, error)
	// SetTxnRef records the provider reference on an order whose payment is
	// still pending. Returns ErrNotFound when no such pending order exists.
	SetTxnRef(ctx context.Context, orderID, txnRef string) error
	// UpdateLocked loads the order under a row lock, applies fn and persists
	// the mutated status fields in the same transaction. fn errors roll the
	// transaction back and are returned unchanged, so concurrent writers of
	// the same order serialize on the row lock.
	UpdateLocked(ctx context.Context, key Lookup, fn func(tx *sql.Tx, o *Order) error) error
	// RecordRefundIntentTx inserts a refund intent inside the caller's transaction.
	RecordRefundIntentTx(ctx context.Context, tx *sql.Tx, orderID string, amount decimal.Decimal) error
	Dashboard(ctx context.Context) (*DashboardMetrics, error)
}

type repo struct {
	db *sql.DB
}

// NewRepository creates a postgres-backed order repository.
func NewRepository(db *sql.DB) Repository {
	return &repo{db: db}
}

const orderColumns = `id, user_id, shipping_address, payment_method, payment_status, status,
	subtotal, tax, shipping, total, txn_ref, notes, shipping_date, delivery_date, created_at, updated_at`

func (r *repo) Create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, shipping_address, payment_method, payment_status, status,
			subtotal, tax, shipping, total, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.UserID, o.ShippingAddress, o.PaymentMethod, o.PaymentStatus, o.Status,
		o.Subtotal, o.Tax, o.Shipping, o.Total, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, product_name, quantity, unit_price)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o            Order
		txnRef       sql.NullString
		notes        sql.NullString
		shippingDate sql.NullTime
		deliveryDate sql.NullTime
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ShippingAddress, &o.PaymentMethod, &o.PaymentStatus, &o.Status,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.Total, &txnRef, &notes, &shippingDate, &deliveryDate,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.TxnRef = txnRef.String
	o.Notes = notes.String
	if shippingDate.Valid {
		t := shippingDate.Time
		o.ShippingDate = &t
	}
	if deliveryDate.Valid {
		t := deliveryDate.Time
		o.DeliveryDate = &t
	}
	return &o, nil
}

func lookupClause(key Lookup) string {
	if key.ByRef() {
		return "txn_ref = $1"
	}
	return "id = $1"
}

func (r *repo) Get(ctx context.Context, key Lookup) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+lookupClause(key), key.Value())

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// loadItems attaches line items to the given orders with a single query.
func (r *repo) loadItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT order_id, product_id, product_name, quantity, unit_price
         FROM order_items WHERE order_id = ANY($1) ORDER BY product_id`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("select order_items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("scan order_item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}

func (r *repo) ListByUser(ctx context.Context, userID string, page, size int) ([]Order, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
         WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, size, page*size,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *repo) List(ctx context.Context, f ListFilter, page, size int) ([]Order, int64, error) {
	conds := []string{"1=1"}
	args := []any{}

	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.StartDate != nil {
		args = append(args, *f.StartDate)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.EndDate != nil {
		args = append(args, *f.EndDate)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, size, page*size)
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
			orderColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func collectOrders(rows *sql.Rows) ([]Order, error) {
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return orders, nil
}

func (r *repo) attachItems(ctx context.Context, orders []Order) error {
	ptrs := make([]*Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	return r.loadItems(ctx, ptrs)
}

func (r *repo) SetTxnRef(ctx context.Context, orderID, txnRef string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET txn_ref = $2, updated_at = NOW()
         WHERE id = $1 AND payment_status = $3`,
		orderID, txnRef, PaymentPending,
	)
	if err != nil {
		return fmt.Errorf("set txn_ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) UpdateLocked(ctx context.Context, key Lookup, fn func(tx *sql.Tx, o *Order) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+lookupClause(key)+` FOR UPDATE`, key.Value())

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("select order for update: %w", err)
	}

	if err := fn(tx, o); err != nil {
		return err
	}

	o.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, payment_status = $3, notes = NULLIF($4, ''),
			shipping_date = $5, delivery_date = $6, updated_at = $7
         WHERE id = $1`,
		o.ID, o.Status, o.PaymentStatus, o.Notes, o.ShippingDate, o.DeliveryDate, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repo) RecordRefundIntentTx(ctx context.Context, tx *sql.Tx, orderID string, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO refund_intents (id, order_id, amount, status, created_at)
         VALUES ($1, $2, $3, $4, NOW())`,
		uuid.NewString(), orderID, amount, RefundPending,
	)
	if err != nil {
		return fmt.Errorf("insert refund_intent: %w", err)
	}
	return nil
}

func (r *repo) Dashboard(ctx context.Context) (*DashboardMetrics, error) {
	// Repeatable read so the aggregates come from one consistent snapshot.
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m := &DashboardMetrics{
		OrdersByStatus: make(map[Status]int64),
		TotalRevenue:   decimal.Zero,
		TodayRevenue:   decimal.Zero,
	}

	rows, err := tx.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	for rows.Next() {
		var (
			s Status
			n int64
		)
		if err := rows.Scan(&s, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		m.OrdersByStatus[s] = n
		m.TotalOrders += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows: %w", err)
	}
	rows.Close()

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM orders
         WHERE payment_status = $1 AND status <> $2`,
		PaymentSuccess, StatusCancelled,
	).Scan(&m.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("total revenue: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total) FILTER (WHERE payment_status = $1), 0)
         FROM orders WHERE created_at >= date_trunc('day', NOW())`,
		PaymentSuccess,
	).Scan(&m.TodayOrders, &m.TodayRevenue)
	if err != nil {
		return nil, fmt.Errorf("today metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

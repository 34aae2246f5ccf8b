package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound indicates the product does not exist or is not purchasable.
var ErrNotFound = errors.New("product not found")

// Product is the read-only catalog view order creation validates against.
type Product struct {
	ID     string          `json:"productId"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

// Catalog resolves products for line-item validation and pricing.
type Catalog interface {
	Product(ctx context.Context, productID string) (*Product, error)
}

type repo struct {
	db *sql.DB
}

// NewRepository creates a postgres-backed catalog.
func NewRepository(db *sql.DB) Catalog {
	return &repo{db: db}
}

func (r *repo) Product(ctx context.Context, productID string) (*Product, error) {
	var p Product
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, price, active FROM products WHERE id = $1`,
		productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	return &p, nil
}

package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"market/internal/payment"
)

func seedUser(t *testing.T, db *sql.DB, id, role string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO users (id, email, full_name, password_hash, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())`,
		id, id+"@example.com", "Seed "+id, []byte("seed-hash"), role,
	)
	require.NoError(t, err)
}

func seedProduct(t *testing.T, db *sql.DB, id string, price decimal.Decimal) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO products (id, name, price, active) VALUES ($1, $2, $3, TRUE)`,
		id, "Product "+id, price)
	require.NoError(t, err)
}

// stubGateway stands in for the provider so lifecycle tests run without an
// external payment endpoint.
type stubGateway struct{}

func (stubGateway) InitiatePayment(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResponse, error) {
	return &payment.InitiateResponse{PayURL: "https://pay.example/hosted/" + req.TxnRef}, nil
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	t.Cleanup(cancel)
	return ctx
}

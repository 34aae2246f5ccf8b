package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market/internal/order"
)

const refundBatchSize = 10

// RefundRelay publishes refund intents that cancellation recorded in the
// order store. Intents are claimed with SKIP LOCKED so multiple instances can
// run side by side without double-publishing.
type RefundRelay struct {
	db       *sql.DB
	pub      *Publisher
	interval time.Duration
	logger   *zap.Logger
}

// NewRefundRelay creates the relay worker.
func NewRefundRelay(db *sql.DB, pub *Publisher, interval time.Duration, logger *zap.Logger) *RefundRelay {
	return &RefundRelay{db: db, pub: pub, interval: interval, logger: logger}
}

// Start runs the relay loop until ctx is cancelled.
func (r *RefundRelay) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("stopping refund relay")
				return
			case <-ticker.C:
				if err := r.relayBatch(ctx); err != nil {
					r.logger.Error("relay refund intents", zap.Error(err))
				}
			}
		}
	}()
}

func (r *RefundRelay) relayBatch(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, amount, created_at
		FROM refund_intents
		WHERE status = $1
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, order.RefundPending, refundBatchSize)
	if err != nil {
		return fmt.Errorf("select refund_intents: %w", err)
	}

	type intent struct {
		id        string
		orderID   string
		amount    decimal.Decimal
		createdAt time.Time
	}
	var intents []intent
	for rows.Next() {
		var in intent
		if err := rows.Scan(&in.id, &in.orderID, &in.amount, &in.createdAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan refund_intent: %w", err)
		}
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("rows: %w", err)
	}
	rows.Close()

	if len(intents) == 0 {
		return nil
	}

	for _, in := range intents {
		err := r.pub.PublishRefundRequested(ctx, in.orderID, RefundRequested{
			OrderID:   in.orderID,
			Amount:    in.amount,
			Timestamp: in.createdAt,
		})
		if err != nil {
			return fmt.Errorf("publish refund for order %s: %w", in.orderID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE refund_intents SET status = $2, published_at = NOW() WHERE id = $1
		`, in.id, order.RefundPublished); err != nil {
			return fmt.Errorf("mark refund_intent published: %w", err)
		}

		r.logger.Info("refund intent published",
			zap.String("order_id", in.orderID),
			zap.String("amount", in.amount.String()))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

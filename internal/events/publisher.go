package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"market/internal/order"
)

// Publisher emits order lifecycle events over AMQP. Every envelope is stamped
// with a per-order sequence number so consumers can detect gaps and reorder.
type Publisher struct {
	ch  *amqp.Channel
	seq *sequenceStore
}

// NewPublisher opens a channel and declares the durable queues so publishing
// never fails due to missing infra.
func NewPublisher(conn *amqp.Connection, seq *sequenceStore) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, q := range []string{OrderCreatedQueue, OrderCancelledQueue, RefundRequestedQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("declare %s: %w", q, err)
		}
	}

	return &Publisher{ch: ch, seq: seq}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// PublishOrderCreated emits the checkout event for a freshly persisted order.
func (p *Publisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	payload := OrderCreated{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
		Timestamp:     time.Now().UTC(),
	}
	for _, it := range o.Items {
		payload.Items = append(payload.Items, OrderLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return publish(ctx, p, OrderCreatedQueue, EventOrderCreated, o.ID, payload)
}

// PublishOrderCancelled emits the cancellation event.
func (p *Publisher) PublishOrderCancelled(ctx context.Context, orderID, userID string) error {
	payload := OrderCancelled{
		OrderID:   orderID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	return publish(ctx, p, OrderCancelledQueue, EventOrderCancelled, orderID, payload)
}

// PublishRefundRequested relays a recorded refund intent downstream.
func (p *Publisher) PublishRefundRequested(ctx context.Context, orderID string, payload RefundRequested) error {
	return publish(ctx, p, RefundRequestedQueue, EventRefundRequested, orderID, payload)
}

func publish[T any](ctx context.Context, p *Publisher, queue, eventName, partitionKey string, payload T) error {
	seq, err := p.seq.Next(ctx, partitionKey)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	env := Envelope[T]{
		EventName:    eventName,
		EventVersion: eventVersion,
		EventID:      uuid.NewString(),
		Producer:     producerName,
		PartitionKey: partitionKey,
		Sequence:     seq,
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventName, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",    // default exchange
		queue, // queue name as routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Package notify produces customer notifications for order lifecycle
// events onto an at-least-once queue consumed by the SMS/email workers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
)

// EventType names a lifecycle notification
type EventType string

const (
	OrderPlaced     EventType = "ORDER_PLACED"
	OrderPaid       EventType = "ORDER_PAID"
	PaymentFailed   EventType = "PAYMENT_FAILED"
	OrderCancelled  EventType = "ORDER_CANCELLED"
	OrderShipped    EventType = "ORDER_SHIPPED"
	OrderDelivered  EventType = "ORDER_DELIVERED"
	RefundProcessed EventType = "REFUND_PROCESSED"
)

// Notification is one queued message
type Notification struct {
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	RequestID string    `json:"request_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink accepts notifications for asynchronous delivery.
type Sink interface {
	Enqueue(ctx context.Context, n Notification) error
}

// RedisQueue pushes JSON notifications onto a Redis list.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// MemoryQueue keeps notifications in process.
type MemoryQueue struct {
	mu    sync.Mutex
	items []Notification
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, n Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, n)
	return nil
}

// Sent returns a copy of everything enqueued so far.
func (q *MemoryQueue) Sent() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notification(nil), q.items...)
}

// Notifier renders lifecycle events and hands them to the sink. Delivery
// is best-effort: failures are logged and counted, never returned.
type Notifier struct {
	sink        Sink
	metrics     *metrics.AppMetrics
	trackingURL string
}

func NewNotifier(sink Sink, m *metrics.AppMetrics, trackingURL string) *Notifier {
	return &Notifier{sink: sink, metrics: m, trackingURL: trackingURL}
}

// OrderEvent enqueues the message for event about order.
func (n *Notifier) OrderEvent(ctx context.Context, event EventType, order *models.Order) {
	recipient := order.Recipient()
	if recipient == "" {
		log.Printf("[NOTIFY] request_id=%s no recipient for order %s, skipping %s", requestid.From(ctx), order.ID, event)
		return
	}

	msg := Notification{
		Recipient: recipient,
		Message:   Render(event, order, n.trackingURL),
		EventType: event,
		OrderID:   order.ID.String(),
		RequestID: requestid.From(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if err := n.sink.Enqueue(ctx, msg); err != nil {
		log.Printf("[NOTIFY] request_id=%s failed to enqueue %s for order %s: %v", requestid.From(ctx), event, order.ID, err)
		n.metrics.NotificationFailures.Add(ctx, 1, metric.WithAttributes(n.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("event_type", string(event)),
		})...))
	}
}

// Render returns the customer-facing text for event.
func Render(event EventType, order *models.Order, trackingURL string) string {
	short := order.ID.String()[:8]
	track := fmt.Sprintf("%s/orders/%s", trackingURL, order.ID)

	switch event {
	case OrderPlaced:
		return fmt.Sprintf("Order #%s confirmed! Total: %s. Track: %s", short, order.TotalAmount.StringFixed(2), track)
	case OrderPaid:
		return fmt.Sprintf("Payment received for order #%s. Track: %s", short, track)
	case PaymentFailed:
		return fmt.Sprintf("Payment for order #%s failed. You can retry from your orders page: %s", short, track)
	case OrderCancelled:
		return fmt.Sprintf("Order #%s has been cancelled.", short)
	case OrderShipped:
		return fmt.Sprintf("Order #%s shipped from manufacturer! Track: %s", short, track)
	case OrderDelivered:
		return fmt.Sprintf("Order #%s delivered successfully! Thank you for shopping with us. Rate your experience: %s", short, track)
	case RefundProcessed:
		return fmt.Sprintf("Refund of %s for order #%s has been processed.", order.TotalAmount.StringFixed(2), short)
	}
	return fmt.Sprintf("Order #%s update: %s", short, event)
}

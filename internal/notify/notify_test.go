package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
)

type failingSink struct{}

func (failingSink) Enqueue(context.Context, Notification) error {
	return errors.New("queue down")
}

func testOrder() *models.Order {
	user := uuid.New()
	return &models.Order{ID: uuid.New(), UserID: &user, TotalAmount: decimal.RequireFromString("230")}
}

func TestNotifier_OrderEvent(t *testing.T) {
	q := NewMemoryQueue()
	n := NewNotifier(q, metrics.NewNoop(), "https://shop.example")
	order := testOrder()

	ctx := requestid.With(context.Background(), "req-1")
	n.OrderEvent(ctx, OrderPlaced, order)

	sent := q.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, OrderPlaced, sent[0].EventType)
	assert.Equal(t, order.UserID.String(), sent[0].Recipient)
	assert.Equal(t, "req-1", sent[0].RequestID)
	assert.Contains(t, sent[0].Message, "Total: 230.00")
	assert.Contains(t, sent[0].Message, "https://shop.example/orders/"+order.ID.String())
}

func TestNotifier_FailureIsSwallowed(t *testing.T) {
	n := NewNotifier(failingSink{}, metrics.NewNoop(), "")
	assert.NotPanics(t, func() {
		n.OrderEvent(context.Background(), OrderShipped, testOrder())
	})
}

func TestNotifier_GuestRecipient(t *testing.T) {
	q := NewMemoryQueue()
	n := NewNotifier(q, metrics.NewNoop(), "")
	order := &models.Order{ID: uuid.New(), Guest: &models.GuestContact{Email: "guest@example.com"}}

	n.OrderEvent(context.Background(), OrderCancelled, order)
	require.Len(t, q.Sent(), 1)
	assert.Equal(t, "guest@example.com", q.Sent()[0].Recipient)
}

func TestRender_EveryEvent(t *testing.T) {
	order := testOrder()
	for _, ev := range []EventType{OrderPlaced, OrderPaid, PaymentFailed, OrderCancelled, OrderShipped, OrderDelivered, RefundProcessed} {
		msg := Render(ev, order, "http://localhost:8000")
		assert.True(t, strings.Contains(msg, order.ID.String()[:8]), "%s: %s", ev, msg)
	}
}

package services

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SigNoz/checkout-service/internal/gateway"
	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/notify"
)

// alwaysClaim disables deduplication so tests reach the lock path.
type alwaysClaim struct{}

func (alwaysClaim) SetIfAbsent(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (alwaysClaim) Forget(context.Context, string) error                           { return nil }

func countAudit(t *testing.T, env *testEnv, resourceID, action string) int {
	t.Helper()
	entries, err := env.store.ListAudit(context.Background(), resourceID)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func countEvents(env *testEnv, event notify.EventType) int {
	n := 0
	for _, e := range env.events() {
		if e == event {
			n++
		}
	}
	return n
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	body := webhookBody(t, EventPaymentCaptured, "pay_1", "order_1")

	res := env.webhooks.HandleWebhook(context.Background(), body, "not-a-signature", "198.51.100.9")
	assert.Equal(t, http.StatusBadRequest, res.HTTPStatus)
	assert.Equal(t, metrics.WebhookBadSignature, res.Status)

	res = env.webhooks.HandleWebhook(context.Background(), body, "", "198.51.100.9")
	assert.Equal(t, http.StatusBadRequest, res.HTTPStatus)

	// The signature covers the exact bytes: a re-serialised body must fail.
	reordered := []byte(`{"payload":{"payment":{"entity":{"order_id":"order_1","id":"pay_1"}}},"event":"payment.captured"}`)
	res = env.webhooks.HandleWebhook(context.Background(), reordered, gateway.Sign(body, testWebhookSecret), "198.51.100.9")
	assert.Equal(t, http.StatusBadRequest, res.HTTPStatus)
}

func TestWebhook_AcknowledgesWhatItCannotUse(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body []byte
		want string
	}{
		{name: "not json", body: []byte(`{"event":`), want: metrics.WebhookMalformed},
		{name: "no event", body: []byte(`{"payload":{}}`), want: metrics.WebhookMalformed},
		{name: "no payment id", body: webhookBody(t, EventPaymentCaptured, "", "order_1"), want: metrics.WebhookMalformed},
		{name: "unhandled event", body: webhookBody(t, "order.paid", "pay_1", "order_1"), want: metrics.WebhookIgnoredEvent},
		{name: "unknown order", body: webhookBody(t, EventPaymentCaptured, "pay_1", "order_404"), want: metrics.WebhookUnknownOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.deliver(tt.body)
			assert.Equal(t, http.StatusOK, res.HTTPStatus)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestWebhook_CaptureThenDuplicate(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	order, payment := env.payOrder(t, customer(), map[uuid.UUID]int{a: 2})
	body := webhookBody(t, EventPaymentCaptured, "pay_1", payment.GatewayOrderID)

	res := env.deliver(body)
	assert.Equal(t, metrics.WebhookProcessed, res.Status)
	after := env.payment(t, order.ID)
	assert.Equal(t, models.PaymentCaptured, after.Status)
	assert.Equal(t, "pay_1", after.GatewayPaymentID)
	assert.Equal(t, models.OrderPaid, env.order(t, order.ID).Status)

	res = env.deliver(body)
	assert.Equal(t, metrics.WebhookDuplicate, res.Status)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, *after, *env.payment(t, order.ID))
	assert.Equal(t, 1, countEvents(env, notify.OrderPaid))
}

func TestWebhook_ConcurrentDuplicateCaptures(t *testing.T) {
	env := newTestEnv(t)
	env.webhooks.idempotency = alwaysClaim{}
	a := env.seedProduct(t, "A", "100", 10)
	order, payment := env.payOrder(t, customer(), map[uuid.UUID]int{a: 1})
	body := webhookBody(t, EventPaymentCaptured, "pay_1", payment.GatewayOrderID)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := env.deliver(body)
			assert.Equal(t, http.StatusOK, res.HTTPStatus)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.OrderPaid, env.order(t, order.ID).Status)
	assert.Equal(t, 1, countAudit(t, env, payment.ID.String(), "PAYMENT_CAPTURED"))
	assert.Equal(t, 1, countAudit(t, env, order.ID.String(), "ORDER_PAID"))
	assert.Equal(t, 1, countEvents(env, notify.OrderPaid))
}

func TestWebhook_RacesClientVerify(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	p := customer()
	order, payment := env.payOrder(t, p, map[uuid.UUID]int{a: 1})
	sig := paymentSignature(payment.GatewayOrderID, "pay_1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		res := env.deliver(webhookBody(t, EventPaymentCaptured, "pay_1", payment.GatewayOrderID))
		assert.Equal(t, metrics.WebhookProcessed, res.Status)
	}()
	go func() {
		defer wg.Done()
		got, err := env.payments.Verify(context.Background(), p, payment.GatewayOrderID, "pay_1", sig)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentCaptured, got.Status)
	}()
	wg.Wait()

	assert.Equal(t, models.OrderPaid, env.order(t, order.ID).Status)
	assert.Equal(t, 1, countAudit(t, env, payment.ID.String(), "PAYMENT_CAPTURED"))
	assert.Equal(t, 1, countEvents(env, notify.OrderPaid))
}

func TestWebhook_DuplicateSequencesConverge(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 0; round < 10; round++ {
		env := newTestEnv(t)
		a := env.seedProduct(t, "A", "100", 10)
		order, payment := env.payOrder(t, customer(), map[uuid.UUID]int{a: 3})

		captured := webhookBody(t, EventPaymentCaptured, "pay_1", payment.GatewayOrderID)
		refunded := webhookBody(t, EventRefundProcessed, "pay_1", payment.GatewayOrderID)

		// Each event at least once, in order, with random duplicates.
		var deliveries [][]byte
		for _, body := range [][]byte{captured, refunded} {
			for n := 1 + rng.Intn(4); n > 0; n-- {
				deliveries = append(deliveries, body)
			}
		}
		for _, body := range deliveries {
			res := env.deliver(body)
			require.Equal(t, http.StatusOK, res.HTTPStatus)
		}

		assert.Equal(t, models.PaymentRefunded, env.payment(t, order.ID).Status)
		assert.Equal(t, models.OrderCancelled, env.order(t, order.ID).Status)
		assert.Equal(t, 10, env.stock(t, a), "stock restored exactly once")
		assert.Equal(t, 1, countEvents(env, notify.RefundProcessed))
	}
}

func TestWebhook_FailureAfterCaptureIsRefused(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	order, payment := env.payOrder(t, customer(), map[uuid.UUID]int{a: 1})
	env.deliver(webhookBody(t, EventPaymentCaptured, "pay_1", payment.GatewayOrderID))

	res := env.deliver(webhookBody(t, EventPaymentFailed, "pay_1", payment.GatewayOrderID))
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, metrics.WebhookIllegalTransition, res.Status)
	assert.Equal(t, models.PaymentCaptured, env.payment(t, order.ID).Status)
	assert.Equal(t, 9, env.stock(t, a))
}

func TestWebhook_ProcessingErrorIsRetried(t *testing.T) {
	env := newTestEnv(t, lockWait(100*time.Millisecond))
	a := env.seedProduct(t, "A", "100", 10)
	order, payment := env.payOrder(t, customer(), map[uuid.UUID]int{a: 1})
	body := webhookBody(t, EventPaymentCaptured, "pay_1", payment.GatewayOrderID)

	guard, err := env.locker.Acquire(context.Background(), orderLockKey(order.ID), time.Minute, time.Second)
	require.NoError(t, err)
	res := env.deliver(body)
	assert.Equal(t, http.StatusServiceUnavailable, res.HTTPStatus)
	assert.Equal(t, metrics.WebhookError, res.Status)
	require.NoError(t, guard.Release(context.Background()))

	res = env.deliver(body)
	assert.Equal(t, metrics.WebhookProcessed, res.Status, "key was released, redelivery is processed")
	assert.Equal(t, models.OrderPaid, env.order(t, order.ID).Status)
}

func TestWebhook_ProcessingErrorKeepsKeyWhenConfigured(t *testing.T) {
	env := newTestEnv(t, lockWait(100*time.Millisecond), keepKeyOnError())
	a := env.seedProduct(t, "A", "100", 10)
	order, payment := env.payOrder(t, customer(), map[uuid.UUID]int{a: 1})
	body := webhookBody(t, EventPaymentCaptured, "pay_1", payment.GatewayOrderID)

	guard, err := env.locker.Acquire(context.Background(), orderLockKey(order.ID), time.Minute, time.Second)
	require.NoError(t, err)
	res := env.deliver(body)
	assert.Equal(t, http.StatusServiceUnavailable, res.HTTPStatus)
	require.NoError(t, guard.Release(context.Background()))

	res = env.deliver(body)
	assert.Equal(t, metrics.WebhookDuplicate, res.Status)
	assert.Equal(t, models.OrderAwaitingPayment, env.order(t, order.ID).Status, "needs manual reconciliation")
}

func TestWebhook_RefundFallsBackToRefundEntity(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	order, payment := env.payOrder(t, customer(), map[uuid.UUID]int{a: 2})
	env.deliver(webhookBody(t, EventPaymentCaptured, "pay_1", payment.GatewayOrderID))

	body := []byte(`{"event":"refund.processed","payload":{"refund":{"entity":{"id":"rfnd_1","payment_id":"pay_1"}},"payment":{"entity":{"order_id":"` + payment.GatewayOrderID + `"}}}}`)
	res := env.deliver(body)
	assert.Equal(t, metrics.WebhookProcessed, res.Status)
	assert.Equal(t, models.PaymentRefunded, env.payment(t, order.ID).Status)
	assert.Equal(t, 10, env.stock(t, a))
}

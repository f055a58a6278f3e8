package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/SigNoz/checkout-service/internal/coord"
	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/store"
)

// Provider event names handled by the reconciler
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundProcessed = "refund.processed"
	EventPaymentRefunded = "payment.refunded"
)

var webhookTargets = map[string]models.PaymentStatus{
	EventPaymentCaptured: models.PaymentCaptured,
	EventPaymentFailed:   models.PaymentFailed,
	EventRefundProcessed: models.PaymentRefunded,
	EventPaymentRefunded: models.PaymentRefunded,
}

var errSupersededPayment = errors.New("event refers to a payment replaced by a retry")

// WebhookResult is the acknowledgement sent back to the provider.
type WebhookResult struct {
	Status     string `json:"status"`
	HTTPStatus int    `json:"-"`
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

func (e *webhookEvent) paymentID() string {
	if id := e.Payload.Payment.Entity.ID; id != "" {
		return id
	}
	return e.Payload.Refund.Entity.PaymentID
}

// WebhookReconciler applies provider events to local payments.
type WebhookReconciler struct {
	lc             *Lifecycle
	gateway        Gateway
	idempotency    coord.IdempotencyStore
	idempotencyTTL time.Duration
	forgetOnError  bool
}

// NewWebhookReconciler creates the reconciler. With forgetOnError the
// idempotency key is released when processing fails so the provider's
// redelivery is processed; the "already in target state" check makes that
// redelivery safe.
func NewWebhookReconciler(lc *Lifecycle, gw Gateway, idem coord.IdempotencyStore, ttl time.Duration, forgetOnError bool) *WebhookReconciler {
	return &WebhookReconciler{lc: lc, gateway: gw, idempotency: idem, idempotencyTTL: ttl, forgetOnError: forgetOnError}
}

// HandleWebhook runs the gates in order: signature over the raw body,
// parse, idempotency claim, order lookup, then the transition under the
// order lock. Only a processing failure asks the provider to redeliver.
func (r *WebhookReconciler) HandleWebhook(ctx context.Context, body []byte, signature, remoteIP string) WebhookResult {
	if signature == "" || !r.gateway.VerifyWebhookSignature(body, signature) {
		log.Printf("[SECURITY] request_id=%s webhook signature mismatch from %s", requestid.From(ctx), remoteIP)
		r.lc.metrics.RecordWebhook(ctx, "", metrics.WebhookBadSignature, false)
		return WebhookResult{Status: metrics.WebhookBadSignature, HTTPStatus: http.StatusBadRequest}
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Event == "" {
		log.Printf("[WEBHOOK] request_id=%s malformed payload: %v", requestid.From(ctx), err)
		return r.ack(ctx, "", metrics.WebhookMalformed)
	}
	target, ok := webhookTargets[ev.Event]
	if !ok {
		return r.ack(ctx, ev.Event, metrics.WebhookIgnoredEvent)
	}
	paymentID, gatewayOrderID := ev.paymentID(), ev.Payload.Payment.Entity.OrderID
	if paymentID == "" || gatewayOrderID == "" {
		log.Printf("[WEBHOOK] request_id=%s %s without payment or order id", requestid.From(ctx), ev.Event)
		return r.ack(ctx, ev.Event, metrics.WebhookMalformed)
	}

	key := "webhook:" + paymentID + ":" + ev.Event
	claimed, err := r.idempotency.SetIfAbsent(ctx, key, r.idempotencyTTL)
	if err != nil {
		log.Printf("[WEBHOOK] request_id=%s idempotency store unavailable: %v", requestid.From(ctx), err)
		r.lc.metrics.RecordWebhook(ctx, ev.Event, metrics.WebhookError, false)
		return WebhookResult{Status: metrics.WebhookError, HTTPStatus: http.StatusServiceUnavailable}
	}
	if !claimed {
		return r.ack(ctx, ev.Event, metrics.WebhookDuplicate)
	}

	payment, err := r.lc.store.GetPaymentByGatewayOrderID(ctx, gatewayOrderID)
	if errors.Is(err, models.ErrNotFound) {
		log.Printf("[WEBHOOK] request_id=%s no payment for gateway order %s", requestid.From(ctx), gatewayOrderID)
		return r.ack(ctx, ev.Event, metrics.WebhookUnknownOrder)
	}
	if err != nil {
		return r.fail(ctx, ev.Event, key, err)
	}

	err = r.lc.mutateOrder(ctx, payment.OrderID, func(tx store.Tx, order *models.Order, ob *outbox) error {
		current, err := tx.LockPaymentByOrder(ctx, order.ID)
		if errors.Is(err, models.ErrNotFound) {
			return errSupersededPayment
		}
		if err != nil {
			return err
		}
		if current.GatewayOrderID != gatewayOrderID {
			return errSupersededPayment
		}
		if current.Status == target {
			log.Printf("[WEBHOOK] request_id=%s payment %s already %s", requestid.From(ctx), current.ID, target)
			return nil
		}
		if target == models.PaymentCaptured {
			current.GatewayPaymentID = paymentID
		}
		return r.lc.setPaymentStatus(ctx, tx, order, current, target, systemActor(sourceWebhook, ev.Event), sourceWebhook, ob)
	})

	var illegal *models.IllegalTransitionError
	switch {
	case err == nil:
		return r.ack(ctx, ev.Event, metrics.WebhookProcessed)
	case errors.As(err, &illegal), errors.Is(err, errSupersededPayment):
		// Redelivery cannot change the outcome; keep the key and alert.
		log.Printf("[WEBHOOK] request_id=%s ALERT %s for gateway order %s refused: %v", requestid.From(ctx), ev.Event, gatewayOrderID, err)
		return r.ack(ctx, ev.Event, metrics.WebhookIllegalTransition)
	default:
		return r.fail(ctx, ev.Event, key, err)
	}
}

func (r *WebhookReconciler) ack(ctx context.Context, event, outcome string) WebhookResult {
	r.lc.metrics.RecordWebhook(ctx, event, outcome, outcome != metrics.WebhookDuplicate)
	return WebhookResult{Status: outcome, HTTPStatus: http.StatusOK}
}

// fail answers 5xx so the provider redelivers. Unless the key can be
// released the redelivery is swallowed as a duplicate, which raises the
// processing-error alert for manual reconciliation.
func (r *WebhookReconciler) fail(ctx context.Context, event, key string, cause error) WebhookResult {
	stillClaimed := true
	if r.forgetOnError {
		if err := r.idempotency.Forget(context.WithoutCancel(ctx), key); err != nil {
			log.Printf("[WEBHOOK] request_id=%s failed to release idempotency key %s: %v", requestid.From(ctx), key, err)
		} else {
			stillClaimed = false
		}
	}
	if stillClaimed {
		log.Printf("[WEBHOOK] request_id=%s ALERT processing failed after claiming %s, needs manual reconciliation: %v", requestid.From(ctx), key, cause)
	} else {
		log.Printf("[WEBHOOK] request_id=%s processing failed, awaiting redelivery: %v", requestid.From(ctx), cause)
	}
	r.lc.metrics.RecordWebhook(ctx, event, metrics.WebhookError, stillClaimed)

	status := http.StatusInternalServerError
	if errors.Is(cause, models.ErrLockTimeout) {
		status = http.StatusServiceUnavailable
	}
	return WebhookResult{Status: metrics.WebhookError, HTTPStatus: status}
}

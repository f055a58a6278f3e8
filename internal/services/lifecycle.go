package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/SigNoz/checkout-service/internal/cache"
	"github.com/SigNoz/checkout-service/internal/coord"
	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/notify"
	"github.com/SigNoz/checkout-service/internal/pricing"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/store"
)

// Gateway is the payment provider as seen by the services.
type Gateway interface {
	CreateRemoteOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (string, error)
	IssueRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal) (string, error)
	CapturedPayment(ctx context.Context, gatewayOrderID string) (string, error)
	VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

// Pricer prices a product at the requested dimensions.
type Pricer interface {
	Price(ctx context.Context, src pricing.RuleSource, product *models.Product, dims models.Dimensions) (decimal.Decimal, error)
}

// Deps are the collaborators shared by the lifecycle services.
type Deps struct {
	Store    store.Store
	Locker   coord.Locker
	Metrics  *metrics.AppMetrics
	Notifier *notify.Notifier
	Cache    cache.Invalidator

	LockTTL                time.Duration
	LockWait               time.Duration
	RevertOnPaymentFailure bool
}

// Lifecycle owns the per-order lock and the status-write path every
// service goes through. See transitions.go.
type Lifecycle struct {
	store    store.Store
	locker   coord.Locker
	metrics  *metrics.AppMetrics
	notifier *notify.Notifier
	cache    cache.Invalidator
	ledger   *Ledger

	lockTTL                time.Duration
	lockWait               time.Duration
	revertOnPaymentFailure bool
	now                    func() time.Time
}

// NewLifecycle creates the shared lifecycle core
func NewLifecycle(d Deps) *Lifecycle {
	return &Lifecycle{
		store:                  d.Store,
		locker:                 d.Locker,
		metrics:                d.Metrics,
		notifier:               d.Notifier,
		cache:                  d.Cache,
		ledger:                 NewLedger(d.Metrics),
		lockTTL:                d.LockTTL,
		lockWait:               d.LockWait,
		revertOnPaymentFailure: d.RevertOnPaymentFailure,
		now:                    func() time.Time { return time.Now().UTC() },
	}
}

func orderLockKey(id uuid.UUID) string {
	return "order:" + id.String()
}

// withOrderLock runs fn while holding the distributed lock for the order.
// The client verify path, the webhook path, the sweeper and admin actions
// all serialise on this same key.
func (lc *Lifecycle) withOrderLock(ctx context.Context, orderID uuid.UUID, fn func() error) error {
	guard, err := lc.locker.Acquire(ctx, orderLockKey(orderID), lc.lockTTL, lc.lockWait)
	if err != nil {
		if errors.Is(err, models.ErrLockTimeout) {
			lc.metrics.LockTimeouts.Add(ctx, 1, metric.WithAttributes(lc.metrics.WithServiceName(nil)...))
			log.Printf("[LOCK] request_id=%s timed out waiting for order %s", requestid.From(ctx), orderID)
		}
		return err
	}
	defer func() {
		if err := guard.Release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[LOCK] request_id=%s failed to release order %s: %v", requestid.From(ctx), orderID, err)
		}
	}()
	return fn()
}

// applyTx runs fn in a transaction against the locked order row and returns
// the post-commit work. Callers hold the order lock.
func (lc *Lifecycle) applyTx(ctx context.Context, orderID uuid.UUID, fn func(tx store.Tx, order *models.Order, ob *outbox) error) (*outbox, error) {
	ob := &outbox{}
	err := lc.store.WithTx(ctx, func(tx store.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		return fn(tx, order, ob)
	})
	if err != nil {
		return nil, err
	}
	return ob, nil
}

// mutateOrder is applyTx under the order lock, flushing after commit.
func (lc *Lifecycle) mutateOrder(ctx context.Context, orderID uuid.UUID, fn func(tx store.Tx, order *models.Order, ob *outbox) error) error {
	var ob *outbox
	err := lc.withOrderLock(ctx, orderID, func() error {
		var err error
		ob, err = lc.applyTx(ctx, orderID, fn)
		return err
	})
	if err != nil {
		return err
	}
	lc.flush(ctx, ob)
	return nil
}

// Actor is who caused a transition, for the audit trail.
type Actor struct {
	ID     *uuid.UUID
	Role   string
	Reason string
}

// ActorFor returns the audit actor for an API caller.
func ActorFor(p models.Principal, reason string) Actor {
	return Actor{ID: p.UserID, Role: p.ActorRole(), Reason: reason}
}

func systemActor(source, reason string) Actor {
	return Actor{Role: "SYSTEM:" + source, Reason: reason}
}

func (lc *Lifecycle) audit(ctx context.Context, tx store.Tx, action, resourceType, resourceID string, actor Actor) error {
	return tx.AppendAudit(ctx, &models.AuditEntry{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		Reason:       actor.Reason,
		RequestID:    requestid.From(ctx),
		CreatedAt:    lc.now(),
	})
}

// outbox collects post-commit work: notifications and cache invalidation.
// Nothing in it runs unless the transaction commits.
type outbox struct {
	events      []queuedEvent
	transitions []paymentTransition
	stockMoved  bool
	promoUsed   bool
}

type paymentTransition struct {
	from, to models.PaymentStatus
	source   string
}

type queuedEvent struct {
	event notify.EventType
	order models.Order
}

func (o *outbox) notify(event notify.EventType, order *models.Order) {
	o.events = append(o.events, queuedEvent{event: event, order: *order})
}

func (o *outbox) transition(from, to models.PaymentStatus, source string) {
	o.transitions = append(o.transitions, paymentTransition{from: from, to: to, source: source})
}

// flush runs after commit. Failures are logged; they never undo the commit.
func (lc *Lifecycle) flush(ctx context.Context, o *outbox) {
	for _, t := range o.transitions {
		lc.metrics.RecordPaymentTransition(ctx, string(t.from), string(t.to), t.source)
	}
	if o.stockMoved {
		lc.invalidate(ctx, cache.TopicInventory)
	}
	if o.promoUsed {
		lc.invalidate(ctx, cache.TopicPromos)
	}
	if lc.notifier == nil {
		return
	}
	for _, ev := range o.events {
		lc.notifier.OrderEvent(ctx, ev.event, &ev.order)
	}
}

func (lc *Lifecycle) invalidate(ctx context.Context, topic string) {
	if lc.cache == nil {
		return
	}
	if err := lc.cache.Invalidate(ctx, topic); err != nil {
		log.Printf("[CACHE] request_id=%s failed to invalidate %s: %v", requestid.From(ctx), topic, err)
	}
}

func (lc *Lifecycle) countOrders(ctx context.Context, order *models.Order) {
	attrs := lc.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("payment_method", string(order.PaymentMethod)),
		attribute.Bool("guest", order.UserID == nil),
	})
	lc.metrics.OrdersCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
	lc.metrics.RevenueTotal.Add(ctx, order.TotalAmount.InexactFloat64(), metric.WithAttributes(attrs...))
}

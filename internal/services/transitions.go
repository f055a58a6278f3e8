package services

import (
	"context"
	"fmt"
	"log"

	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/notify"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/statemachine"
	"github.com/SigNoz/checkout-service/internal/store"
)

// Transition sources, used for metrics and audit roles
const (
	sourceClient  = "client"
	sourceWebhook = "webhook"
	sourceSweeper = "sweeper"
	sourceAdmin   = "admin"
	sourceCancel  = "cancel"
)

var orderNotices = map[models.OrderStatus]notify.EventType{
	models.OrderPaid:      notify.OrderPaid,
	models.OrderCancelled: notify.OrderCancelled,
	models.OrderShipped:   notify.OrderShipped,
	models.OrderDelivered: notify.OrderDelivered,
}

// setOrderStatus is the only writer of Order.Status. The caller holds the
// order lock and the locked order row in tx.
//
// Postconditions: entering CANCELLED returns any stock the order still
// holds; an audit entry is appended; PAID, CANCELLED, SHIPPED and DELIVERED
// queue the matching notification.
func (lc *Lifecycle) setOrderStatus(ctx context.Context, tx store.Tx, order *models.Order, to models.OrderStatus, actor Actor, ob *outbox) error {
	from := order.Status
	if err := statemachine.CheckOrder(from, to); err != nil {
		return err
	}

	if to == models.OrderCancelled {
		moved, err := lc.ledger.ReleaseOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		ob.stockMoved = ob.stockMoved || moved
	}

	order.Status = to
	order.UpdatedAt = lc.now()
	if err := tx.UpdateOrderStatus(ctx, order); err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	if err := lc.audit(ctx, tx, "ORDER_"+string(to), "order", order.ID.String(), actor); err != nil {
		return fmt.Errorf("failed to audit order %s: %w", order.ID, err)
	}

	if event, ok := orderNotices[to]; ok {
		ob.notify(event, order)
	}
	log.Printf("[ORDER] request_id=%s order %s %s -> %s by %s", requestid.From(ctx), order.ID, from, to, actor.Role)
	return nil
}

// setPaymentStatus is the only writer of Payment.Status. Coupled effects
// commit in the same transaction as the payment write:
//
//   - CAPTURED moves the order to PAID; both or neither.
//   - FAILED returns the order's stock and, under the revert policy, moves
//     an order still AWAITING_PAYMENT back to PENDING so it can be retried.
//   - REFUNDED returns any stock still held and cancels the order when the
//     order table allows it.
func (lc *Lifecycle) setPaymentStatus(ctx context.Context, tx store.Tx, order *models.Order, payment *models.Payment, to models.PaymentStatus, actor Actor, source string, ob *outbox) error {
	from := payment.Status
	if err := statemachine.CheckPayment(from, to); err != nil {
		return err
	}

	if statemachine.ReleasesStock(to) {
		moved, err := lc.ledger.ReleaseOrder(ctx, tx, order)
		if err != nil {
			return err
		}
		ob.stockMoved = ob.stockMoved || moved
	}

	switch to {
	case models.PaymentCaptured:
		if err := lc.setOrderStatus(ctx, tx, order, models.OrderPaid, actor, ob); err != nil {
			return err
		}

	case models.PaymentFailed:
		if lc.revertOnPaymentFailure && order.Status == models.OrderAwaitingPayment {
			if err := lc.setOrderStatus(ctx, tx, order, models.OrderPending, actor, ob); err != nil {
				return err
			}
		}
		if order.Status != models.OrderCancelled {
			ob.notify(notify.PaymentFailed, order)
		}

	case models.PaymentRefunded:
		if statemachine.IsLegalOrder(order.Status, models.OrderCancelled) {
			if err := lc.setOrderStatus(ctx, tx, order, models.OrderCancelled, actor, ob); err != nil {
				return err
			}
		}
		ob.notify(notify.RefundProcessed, order)
	}

	payment.Status = to
	payment.UpdatedAt = lc.now()
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return fmt.Errorf("failed to update payment %s: %w", payment.ID, err)
	}
	if err := lc.audit(ctx, tx, "PAYMENT_"+string(to), "payment", payment.ID.String(), actor); err != nil {
		return fmt.Errorf("failed to audit payment %s: %w", payment.ID, err)
	}

	ob.transition(from, to, source)
	log.Printf("[PAYMENT] request_id=%s payment %s (order %s) %s -> %s via %s", requestid.From(ctx), payment.ID, order.ID, from, to, source)
	return nil
}

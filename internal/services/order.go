package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/statemachine"
	"github.com/SigNoz/checkout-service/internal/store"
)

// OrderDetails is an order together with its active payment, if any.
type OrderDetails struct {
	*models.Order
	Payment *models.Payment `json:"payment,omitempty"`
}

// OrderService handles reads, customer cancellation and admin overrides.
type OrderService struct {
	lc *Lifecycle
}

// NewOrderService creates a new order service
func NewOrderService(lc *Lifecycle) *OrderService {
	return &OrderService{lc: lc}
}

// GetOrder retrieves an order the caller may access
func (s *OrderService) GetOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) (*OrderDetails, error) {
	order, err := s.lc.loadAccessible(ctx, p, orderID)
	if err != nil {
		return nil, err
	}

	details := &OrderDetails{Order: order}
	payment, err := s.lc.store.GetPaymentByOrder(ctx, orderID)
	switch {
	case err == nil:
		details.Payment = payment
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return details, nil
}

// Cancel cancels an order that has not been paid yet. Reserved stock is
// returned and a pending payment is marked FAILED in the same transaction.
//
// Postcondition: ORDER_CANCELLED is queued after commit.
func (s *OrderService) Cancel(ctx context.Context, p models.Principal, orderID uuid.UUID, reason string) (*models.Order, error) {
	if _, err := s.lc.loadAccessible(ctx, p, orderID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "cancelled by customer"
	}

	var result *models.Order
	err := s.lc.mutateOrder(ctx, orderID, func(tx store.Tx, order *models.Order, ob *outbox) error {
		if err := statemachine.CheckCustomerCancel(order.Status); err != nil {
			return err
		}
		if err := s.lc.cancel(ctx, tx, order, ActorFor(p, reason), sourceCancel, ob); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdminSetStatus moves an order to a fulfilment status through the same
// transition table as every other path.
func (s *OrderService) AdminSetStatus(ctx context.Context, p models.Principal, orderID uuid.UUID, to models.OrderStatus, reason string) (*models.Order, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}

	var result *models.Order
	err := s.lc.mutateOrder(ctx, orderID, func(tx store.Tx, order *models.Order, ob *outbox) error {
		if err := statemachine.CheckAdminOrder(order.Status, to); err != nil {
			return err
		}
		actor := ActorFor(p, reason)
		if to == models.OrderCancelled {
			if err := s.lc.cancel(ctx, tx, order, actor, sourceAdmin, ob); err != nil {
				return err
			}
		} else if err := s.lc.setOrderStatus(ctx, tx, order, to, actor, ob); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cancel moves the order to CANCELLED and fails a payment still in
// CREATED, so a late capture is refused by the state machine.
func (lc *Lifecycle) cancel(ctx context.Context, tx store.Tx, order *models.Order, actor Actor, source string, ob *outbox) error {
	if err := lc.setOrderStatus(ctx, tx, order, models.OrderCancelled, actor, ob); err != nil {
		return err
	}
	payment, err := tx.LockPaymentByOrder(ctx, order.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentCreated {
		return nil
	}
	return lc.setPaymentStatus(ctx, tx, order, payment, models.PaymentFailed, actor, source, ob)
}

// loadAccessible reads an order and checks the caller may act on it.
func (lc *Lifecycle) loadAccessible(ctx context.Context, p models.Principal, orderID uuid.UUID) (*models.Order, error) {
	order, err := lc.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccessOrder(order) {
		return nil, models.ErrForbidden
	}
	return order, nil
}

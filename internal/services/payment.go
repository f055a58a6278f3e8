package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/statemachine"
	"github.com/SigNoz/checkout-service/internal/store"
)

const staleSweepBatch = 100

// PaymentService creates, verifies and refunds payments. Every mutation
// runs under the per-order lock shared with the webhook reconciler.
type PaymentService struct {
	lc       *Lifecycle
	gateway  Gateway
	currency string
}

// NewPaymentService creates a new payment service
func NewPaymentService(lc *Lifecycle, gw Gateway, currency string) *PaymentService {
	return &PaymentService{lc: lc, gateway: gw, currency: currency}
}

// Init returns the order's payment, creating the remote order on first
// call. A CREATED or CAPTURED payment is returned as is. A FAILED payment
// is archived and replaced, re-reserving the order's stock.
func (s *PaymentService) Init(ctx context.Context, p models.Principal, orderID uuid.UUID) (*models.Payment, error) {
	order, err := s.lc.loadAccessible(ctx, p, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod == models.PaymentMethodCOD {
		return nil, models.ErrCODNotPayable
	}

	var (
		payment *models.Payment
		ob      *outbox
	)
	err = s.lc.withOrderLock(ctx, orderID, func() error {
		order, err := s.lc.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		existing, err := s.lc.store.GetPaymentByOrder(ctx, orderID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to get payment: %w", err)
		}
		if existing != nil {
			if existing.Status == models.PaymentCreated || existing.Status == models.PaymentCaptured {
				payment = existing
				return nil
			}
			if err := statemachine.CheckPaymentRetry(existing.Status); err != nil {
				return err
			}
		}
		if order.Status != models.OrderAwaitingPayment {
			if err := statemachine.CheckOrder(order.Status, models.OrderAwaitingPayment); err != nil {
				return err
			}
		}

		// Remote call outside any transaction; the lock keeps it single-flight.
		gatewayOrderID, err := s.gateway.CreateRemoteOrder(ctx, order.TotalAmount, s.currency, order.ID.String())
		if err != nil {
			log.Printf("[PAYMENT] request_id=%s failed to create remote order for %s: %v", requestid.From(ctx), orderID, err)
			return err
		}

		ob, err = s.lc.applyTx(ctx, orderID, func(tx store.Tx, order *models.Order, ob *outbox) error {
			if existing != nil {
				if err := tx.ArchivePayment(ctx, existing); err != nil {
					return fmt.Errorf("failed to archive payment %s: %w", existing.ID, err)
				}
				if !order.StockReserved {
					if err := s.lc.ledger.ReserveOrder(ctx, tx, order); err != nil {
						return err
					}
					ob.stockMoved = true
				}
			}

			now := s.lc.now()
			payment = &models.Payment{
				ID:             uuid.New(),
				OrderID:        order.ID,
				GatewayOrderID: gatewayOrderID,
				Amount:         order.TotalAmount,
				Currency:       s.currency,
				Status:         models.PaymentCreated,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.InsertPayment(ctx, payment); err != nil {
				return fmt.Errorf("failed to create payment: %w", err)
			}
			actor := ActorFor(p, "payment initiated")
			if err := s.lc.audit(ctx, tx, "PAYMENT_CREATED", "payment", payment.ID.String(), actor); err != nil {
				return err
			}
			if order.Status != models.OrderAwaitingPayment {
				if err := s.lc.setOrderStatus(ctx, tx, order, models.OrderAwaitingPayment, actor, ob); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if ob != nil {
		log.Printf("[PAYMENT] request_id=%s payment %s created for order %s (gateway order %s)", requestid.From(ctx), payment.ID, orderID, payment.GatewayOrderID)
		s.lc.flush(ctx, ob)
	}
	return payment, nil
}

// Verify is the synchronous capture path used when the browser returns
// from the payment page. It races the webhook on the same order lock;
// whichever arrives second finds the payment CAPTURED and does nothing.
func (s *PaymentService) Verify(ctx context.Context, p models.Principal, gatewayOrderID, gatewayPaymentID, signature string) (*models.Payment, error) {
	payment, err := s.lc.store.GetPaymentByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.lc.loadAccessible(ctx, p, payment.OrderID); err != nil {
		return nil, err
	}
	if !s.gateway.VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature) {
		log.Printf("[SECURITY] request_id=%s payment signature mismatch for gateway order %s", requestid.From(ctx), gatewayOrderID)
		return nil, models.ErrSignatureMismatch
	}

	var result *models.Payment
	err = s.lc.mutateOrder(ctx, payment.OrderID, func(tx store.Tx, order *models.Order, ob *outbox) error {
		current, err := tx.LockPaymentByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.GatewayOrderID != gatewayOrderID {
			return &models.IllegalTransitionError{Entity: "payment", From: "SUPERSEDED", To: string(models.PaymentCaptured)}
		}
		result = current
		if current.Status == models.PaymentCaptured {
			return nil
		}
		current.GatewayPaymentID = gatewayPaymentID
		current.Signature = signature
		return s.lc.setPaymentStatus(ctx, tx, order, current, models.PaymentCaptured, ActorFor(p, "payment verified"), sourceClient, ob)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Refund refunds a captured payment in full. The gateway is called under
// the order lock; if it fails the payment is left CAPTURED and the
// refund.processed webhook converges it later.
func (s *PaymentService) Refund(ctx context.Context, p models.Principal, orderID uuid.UUID, reason string) (*models.Payment, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}

	var (
		result *models.Payment
		ob     *outbox
	)
	err := s.lc.withOrderLock(ctx, orderID, func() error {
		payment, err := s.lc.store.GetPaymentByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentRefunded {
			result = payment
			return nil
		}
		if err := statemachine.CheckPayment(payment.Status, models.PaymentRefunded); err != nil {
			return err
		}

		refundID, err := s.gateway.IssueRefund(ctx, payment.GatewayPaymentID, payment.Amount)
		if err != nil {
			log.Printf("[PAYMENT] request_id=%s refund failed for payment %s: %v", requestid.From(ctx), payment.ID, err)
			return err
		}
		log.Printf("[PAYMENT] request_id=%s refund %s issued for payment %s", requestid.From(ctx), refundID, payment.ID)

		ob, err = s.lc.applyTx(ctx, orderID, func(tx store.Tx, order *models.Order, ob *outbox) error {
			current, err := tx.LockPaymentByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			result = current
			return s.lc.setPaymentStatus(ctx, tx, order, current, models.PaymentRefunded, ActorFor(p, reason), sourceAdmin, ob)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if ob != nil {
		s.lc.flush(ctx, ob)
	}
	return result, nil
}

// SweepStale settles payments left in CREATED for longer than olderThan.
// The provider is asked first: a payment it reports captured is captured,
// anything else is failed, through the same lock and transition path as
// the webhook. Orders whose lock is busy, or whose provider lookup fails,
// are left for the next sweep. Returns how many payments were failed.
func (s *PaymentService) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.lc.store.ListStalePayments(ctx, s.lc.now().Add(-olderThan), staleSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}

	failed, recovered := 0, 0
	var errs []error
	for _, candidate := range stale {
		capturedID, err := s.gateway.CapturedPayment(ctx, candidate.GatewayOrderID)
		if err != nil {
			log.Printf("[RECONCILE] request_id=%s cannot confirm gateway order %s, retrying next sweep: %v", requestid.From(ctx), candidate.GatewayOrderID, err)
			continue
		}
		target, reason := models.PaymentFailed, fmt.Sprintf("no capture after %s", olderThan)
		if capturedID != "" {
			target, reason = models.PaymentCaptured, "captured at gateway"
		}

		changed := false
		err = s.lc.mutateOrder(ctx, candidate.OrderID, func(tx store.Tx, order *models.Order, ob *outbox) error {
			current, err := tx.LockPaymentByOrder(ctx, order.ID)
			if err != nil {
				return err
			}
			if current.ID != candidate.ID || current.Status != models.PaymentCreated {
				return nil
			}
			changed = true
			if target == models.PaymentCaptured {
				current.GatewayPaymentID = capturedID
			}
			return s.lc.setPaymentStatus(ctx, tx, order, current, target, systemActor(sourceSweeper, reason), sourceSweeper, ob)
		})
		switch {
		case errors.Is(err, models.ErrLockTimeout):
			log.Printf("[RECONCILE] request_id=%s order %s busy, retrying next sweep", requestid.From(ctx), candidate.OrderID)
		case err != nil:
			errs = append(errs, fmt.Errorf("payment %s: %w", candidate.ID, err))
		case changed && target == models.PaymentCaptured:
			recovered++
		case changed:
			failed++
		}
	}

	if failed > 0 || len(errs) > 0 {
		log.Printf("[RECONCILE] request_id=%s stale sweep: candidates=%d failed=%d errors=%d", requestid.From(ctx), len(stale), failed, len(errs))
	}
	if recovered > 0 {
		log.Printf("[RECONCILE] request_id=%s stale sweep captured %d payments the gateway had settled", requestid.From(ctx), recovered)
	}
	return failed, errors.Join(errs...)
}

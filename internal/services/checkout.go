package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"

	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/notify"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/store"
)

// CheckoutRequest is everything checkout needs besides the cart itself.
type CheckoutRequest struct {
	Address       models.Address       `json:"shipping_address"`
	Guest         *models.GuestContact `json:"guest,omitempty"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

// CheckoutService converts a cart into an order.
type CheckoutService struct {
	lc     *Lifecycle
	pricer Pricer
	promos *PromotionValidator
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(lc *Lifecycle, pricer Pricer, promos *PromotionValidator) *CheckoutService {
	return &CheckoutService{lc: lc, pricer: pricer, promos: promos}
}

// Checkout reserves stock for every cart line, snapshots prices, applies the
// cart's promo when it is still valid and empties the cart, all in one
// transaction. Any failure leaves no order, no reservation and the cart as
// it was.
//
// Postcondition: ORDER_PLACED is queued for the payer after commit.
func (s *CheckoutService) Checkout(ctx context.Context, p models.Principal, req CheckoutRequest) (*models.Order, error) {
	order, err := s.checkout(ctx, p, req)
	if err != nil {
		s.lc.metrics.RecordCheckoutFailure(ctx, checkoutFailureReason(err))
		log.Printf("[CHECKOUT] request_id=%s checkout failed: %v", requestid.From(ctx), err)
		return nil, err
	}
	return order, nil
}

func (s *CheckoutService) checkout(ctx context.Context, p models.Principal, req CheckoutRequest) (*models.Order, error) {
	owner, err := p.CartOwner()
	if err != nil {
		return nil, err
	}
	if owner.IsGuest() && (req.Guest == nil || strings.TrimSpace(req.Guest.Email) == "") {
		return nil, models.ErrMissingContact
	}
	if !addressComplete(req.Address) {
		return nil, models.ErrMissingAddress
	}
	method, err := models.ParsePaymentMethod(string(req.PaymentMethod))
	if err != nil {
		return nil, err
	}
	req.PaymentMethod = method

	now := s.lc.now()
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          p.UserID,
		Status:          models.OrderPending,
		ShippingAddress: req.Address,
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if owner.IsGuest() {
		order.Guest = &models.GuestContact{Email: strings.TrimSpace(req.Guest.Email), Phone: req.Guest.Phone}
		order.SessionKey = owner.SessionKey
	}

	ob := &outbox{}
	err = s.lc.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.LockCart(ctx, owner)
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrEmptyCart
		}
		if err != nil {
			return fmt.Errorf("failed to lock cart: %w", err)
		}
		if len(cart.Items) == 0 {
			return models.ErrEmptyCart
		}

		// ============================================
		// RESERVE + SNAPSHOT, in product id order
		// ============================================
		subtotal := decimal.Zero
		for _, item := range sortedCartItems(cart.Items) {
			product, err := s.lc.ledger.Reserve(ctx, tx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			unitPrice, err := s.pricer.Price(ctx, tx, product, item.Dims)
			if err != nil {
				return err
			}
			line := models.OrderItem{
				ID:          uuid.New(),
				OrderID:     order.ID,
				ProductID:   product.ID,
				ProductName: product.Name,
				ProductCode: product.Code,
				Dims:        item.Dims,
				UnitPrice:   unitPrice,
				Quantity:    item.Quantity,
			}
			order.Items = append(order.Items, line)
			subtotal = subtotal.Add(line.LineTotal())
		}
		order.StockReserved = true

		// ============================================
		// PROMO: re-validated, dropped when stale
		// ============================================
		promo, discount, err := s.revalidatePromo(ctx, tx, cart, p.UserID, subtotal)
		if err != nil {
			return err
		}
		order.DiscountAmount = discount
		order.TotalAmount = decimal.Max(decimal.Zero, subtotal.Sub(discount))

		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		if promo != nil && discount.IsPositive() {
			if err := tx.InsertPromoUsage(ctx, &models.PromoUsage{
				ID:             uuid.New(),
				PromoID:        promo.ID,
				UserID:         p.UserID,
				OrderID:        order.ID,
				DiscountAmount: discount,
				UsedAt:         now,
			}); err != nil {
				return fmt.Errorf("failed to record promo usage: %w", err)
			}
			if err := tx.IncrementPromoUsage(ctx, promo.ID); err != nil {
				return fmt.Errorf("failed to increment promo usage: %w", err)
			}
			ob.promoUsed = true
		}

		if owner.IsGuest() {
			err = tx.DeleteCart(ctx, cart.ID)
		} else {
			err = tx.ClearCart(ctx, cart.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		if err := s.lc.audit(ctx, tx, "ORDER_CREATED", "order", order.ID.String(), ActorFor(p, "checkout")); err != nil {
			return fmt.Errorf("failed to audit order: %w", err)
		}

		ob.stockMoved = true
		ob.notify(notify.OrderPlaced, order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CHECKOUT] request_id=%s order created: order_id=%s, items=%d, total=%s, discount=%s",
		requestid.From(ctx), order.ID, len(order.Items), order.TotalAmount.StringFixed(2), order.DiscountAmount.StringFixed(2))
	s.lc.countOrders(ctx, order)
	s.lc.flush(ctx, ob)
	return order, nil
}

// revalidatePromo locks the cart's promo and checks it against the freshly
// computed subtotal. A promo that no longer applies is dropped: checkout
// continues without the discount.
func (s *CheckoutService) revalidatePromo(ctx context.Context, tx store.Tx, cart *models.Cart, userID *uuid.UUID, subtotal decimal.Decimal) (*models.PromoCode, decimal.Decimal, error) {
	if cart.PromoCodeID == nil {
		return nil, decimal.Zero, nil
	}

	promo, err := tx.LockPromo(ctx, *cart.PromoCodeID)
	if errors.Is(err, models.ErrNotFound) {
		s.dropPromo(ctx, cart.PromoCodeID.String(), "promo no longer exists")
		return nil, decimal.Zero, nil
	}
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to lock promo: %w", err)
	}

	result, err := s.promos.Revalidate(ctx, tx, promo, userID, subtotal)
	var rejected *models.PromoRejectedError
	if errors.As(err, &rejected) {
		s.dropPromo(ctx, promo.Code, rejected.Reason)
		return nil, decimal.Zero, nil
	}
	if err != nil {
		return nil, decimal.Zero, err
	}
	return result.Promo, result.Discount, nil
}

func (s *CheckoutService) dropPromo(ctx context.Context, code, reason string) {
	log.Printf("[CHECKOUT] request_id=%s dropping promo %s at checkout: %s", requestid.From(ctx), code, reason)
	s.lc.metrics.PromoDropped.Add(ctx, 1, metric.WithAttributes(s.lc.metrics.WithServiceName(nil)...))
}

func addressComplete(a models.Address) bool {
	for _, field := range []string{a.Line1, a.City, a.State, a.ZipCode} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

func checkoutFailureReason(err error) string {
	var stock *models.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, models.ErrMissingContact):
		return "missing_contact"
	case errors.Is(err, models.ErrMissingAddress):
		return "missing_address"
	case errors.Is(err, models.ErrPriceUnavailable):
		return "price_unavailable"
	case errors.Is(err, models.ErrInvalidOwner):
		return "invalid_owner"
	}
	return "error"
}

func compareLine(aID, bID uuid.UUID, a, b models.Dimensions) int {
	if c := strings.Compare(aID.String(), bID.String()); c != 0 {
		return c
	}
	for _, pair := range [][2]float64{{a.Length, b.Length}, {a.Breadth, b.Breadth}, {a.Height, b.Height}} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	return 0
}

// sortedCartItems orders lines by product id so that concurrent checkouts
// over overlapping products take row locks in the same order.
func sortedCartItems(items []models.CartItem) []models.CartItem {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b models.CartItem) int {
		return compareLine(a.ProductID, b.ProductID, a.Dims, b.Dims)
	})
	return out
}

func sortedOrderItems(items []models.OrderItem) []models.OrderItem {
	out := slices.Clone(items)
	slices.SortFunc(out, func(a, b models.OrderItem) int {
		return compareLine(a.ProductID, b.ProductID, a.Dims, b.Dims)
	})
	return out
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/store"
)

var hundred = decimal.NewFromInt(100)

// PromoResult is an accepted code and the discount it grants.
type PromoResult struct {
	Promo    *models.PromoCode
	Discount decimal.Decimal
}

// PromotionValidator checks promo codes against a subtotal and usage caps.
type PromotionValidator struct {
	now func() time.Time
}

// NewPromotionValidator creates a validator using wall-clock time
func NewPromotionValidator() *PromotionValidator {
	return &PromotionValidator{now: time.Now}
}

// Validate looks code up (case-insensitive) and evaluates it for the payer.
// userID is nil for guests, who are exempt from the per-user cap.
func (v *PromotionValidator) Validate(ctx context.Context, r store.Reader, code string, userID *uuid.UUID, subtotal decimal.Decimal) (*PromoResult, error) {
	promo, err := r.GetPromoByCode(ctx, code)
	if errors.Is(err, models.ErrNotFound) {
		return nil, &models.PromoRejectedError{Code: code, Reason: "Invalid promo code"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load promo: %w", err)
	}
	return v.evaluate(ctx, r, promo, userID, subtotal)
}

// Revalidate evaluates an already-applied promo. Used at checkout where the
// promo row is locked by the caller.
func (v *PromotionValidator) Revalidate(ctx context.Context, r store.Reader, promo *models.PromoCode, userID *uuid.UUID, subtotal decimal.Decimal) (*PromoResult, error) {
	return v.evaluate(ctx, r, promo, userID, subtotal)
}

func (v *PromotionValidator) evaluate(ctx context.Context, r store.Reader, promo *models.PromoCode, userID *uuid.UUID, subtotal decimal.Decimal) (*PromoResult, error) {
	used := 0
	if userID != nil {
		n, err := r.CountPromoUsage(ctx, promo.ID, *userID)
		if err != nil {
			return nil, fmt.Errorf("failed to count promo usage: %w", err)
		}
		used = n
	}
	if err := EvaluatePromo(promo, subtotal, used, userID != nil, v.now()); err != nil {
		return nil, err
	}
	return &PromoResult{Promo: promo, Discount: CalculateDiscount(promo, subtotal)}, nil
}

// EvaluatePromo applies the eligibility rules in order: active, time window,
// global usage limit, minimum order, per-user limit.
func EvaluatePromo(promo *models.PromoCode, subtotal decimal.Decimal, usedByUser int, authenticated bool, now time.Time) error {
	reject := func(reason string) error {
		return &models.PromoRejectedError{Code: promo.Code, Reason: reason}
	}

	switch {
	case !promo.IsActive:
		return reject("Promo code is inactive")
	case now.Before(promo.ValidFrom):
		return reject(fmt.Sprintf("Promo code starts on %s", promo.ValidFrom.Format("2006-01-02 15:04")))
	case now.After(promo.ValidUntil):
		return reject("Promo code is expired")
	case promo.UsageLimit != nil && *promo.UsageLimit > 0 && promo.UsageCount >= *promo.UsageLimit:
		return reject("Promo code usage limit reached")
	case subtotal.LessThan(promo.MinOrderAmount):
		return reject(fmt.Sprintf("Minimum order amount of %s required", promo.MinOrderAmount.StringFixed(2)))
	case authenticated && usedByUser >= promo.PerUserLimit:
		return reject("You have already used this promo code")
	}
	return nil
}

// CalculateDiscount returns the discount for subtotal, capped by the
// promo's maximum and by the subtotal itself, rounded to 0.01.
func CalculateDiscount(promo *models.PromoCode, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch promo.DiscountType {
	case models.DiscountFixed:
		discount = promo.DiscountValue
	default:
		discount = subtotal.Mul(promo.DiscountValue).Div(hundred)
		if promo.MaxDiscountAmount != nil {
			discount = decimal.Min(discount, *promo.MaxDiscountAmount)
		}
	}
	return decimal.Min(discount, subtotal).Round(2)
}

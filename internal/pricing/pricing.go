// Package pricing computes the unit price of a made-to-measure product.
package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SigNoz/checkout-service/internal/models"
)

// RuleSource loads the dimension rules of a product. store.Reader and
// store.Tx both satisfy it.
type RuleSource interface {
	DimensionRules(ctx context.Context, productID uuid.UUID) ([]models.DimensionRule, error)
}

// DimensionPricer resolves prices in this order: an exact rule for the
// dimensions, then the first range rule containing them
// (base * multiplier + add-on, rounded to 0.01), then the base price when
// the product has no rules at all.
type DimensionPricer struct{}

// Price returns the unit price or an error wrapping models.ErrPriceUnavailable.
func (DimensionPricer) Price(ctx context.Context, src RuleSource, product *models.Product, dims models.Dimensions) (decimal.Decimal, error) {
	rules, err := src.DimensionRules(ctx, product.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load dimension rules: %w", err)
	}
	return Resolve(product, rules, dims)
}

// Resolve is the pure pricing function behind DimensionPricer.
func Resolve(product *models.Product, rules []models.DimensionRule, dims models.Dimensions) (decimal.Decimal, error) {
	if len(rules) == 0 {
		return product.BasePrice, nil
	}

	for _, r := range rules {
		if r.Price != nil && exact(r, dims) {
			return *r.Price, nil
		}
	}

	for _, r := range rules {
		if r.Price == nil && contains(r, dims) {
			return product.BasePrice.Mul(r.Multiplier).Add(r.AddOn).Round(2), nil
		}
	}

	return decimal.Zero, fmt.Errorf("%s at %s: %w", product.Name, dims, models.ErrPriceUnavailable)
}

func exact(r models.DimensionRule, d models.Dimensions) bool {
	return r.MinLength == d.Length && r.MinBreadth == d.Breadth && r.MinHeight == d.Height
}

func contains(r models.DimensionRule, d models.Dimensions) bool {
	return r.MinLength <= d.Length && d.Length <= r.MaxLength &&
		r.MinBreadth <= d.Breadth && d.Breadth <= r.MaxBreadth &&
		r.MinHeight <= d.Height && d.Height <= r.MaxHeight
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/store"
)

func save10() models.PromoCode {
	maxDiscount := decimal.NewFromInt(20)
	return models.PromoCode{
		ID:                uuid.New(),
		Code:              "SAVE10",
		DiscountType:      models.DiscountPercent,
		DiscountValue:     decimal.NewFromInt(10),
		MaxDiscountAmount: &maxDiscount,
		MinOrderAmount:    decimal.NewFromInt(100),
		ValidFrom:         time.Now().Add(-24 * time.Hour),
		ValidUntil:        time.Now().Add(24 * time.Hour),
		PerUserLimit:      1,
		IsActive:          true,
	}
}

func TestPromotionValidator_SAVE10(t *testing.T) {
	st := store.NewMemory()
	st.PutPromo(save10())
	v := NewPromotionValidator()
	userID := uuid.New()

	result, err := v.Validate(context.Background(), st, "SAVE10", &userID, decimal.NewFromInt(250))
	require.NoError(t, err)
	assertMoney(t, "20", result.Discount)
	assertMoney(t, "230", decimal.NewFromInt(250).Sub(result.Discount))

	_, err = v.Validate(context.Background(), st, "SAVE10", &userID, decimal.NewFromInt(80))
	var rejected *models.PromoRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Reason, "Minimum order amount")
}

func TestPromotionValidator_UnknownCode(t *testing.T) {
	_, err := NewPromotionValidator().Validate(context.Background(), store.NewMemory(), "NOPE", nil, decimal.NewFromInt(500))
	var rejected *models.PromoRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Invalid promo code", rejected.Reason)
}

func TestEvaluatePromo(t *testing.T) {
	now := time.Now()
	limit, zero := 5, 0

	tests := []struct {
		name   string
		mutate func(*models.PromoCode)
		used   int
		auth   bool
		total  string
		reason string
	}{
		{name: "valid", total: "250"},
		{name: "inactive", mutate: func(p *models.PromoCode) { p.IsActive = false }, total: "250", reason: "inactive"},
		{name: "not started", mutate: func(p *models.PromoCode) { p.ValidFrom = now.Add(time.Hour) }, total: "250", reason: "starts on"},
		{name: "expired", mutate: func(p *models.PromoCode) { p.ValidUntil = now.Add(-time.Hour) }, total: "250", reason: "expired"},
		{name: "usage limit", mutate: func(p *models.PromoCode) { p.UsageLimit = &limit; p.UsageCount = 5 }, total: "250", reason: "usage limit"},
		{name: "zero usage limit is unlimited", mutate: func(p *models.PromoCode) { p.UsageLimit = &zero; p.UsageCount = 40 }, total: "250"},
		{name: "below minimum", total: "99.99", reason: "Minimum order"},
		{name: "per user limit", used: 1, auth: true, total: "250", reason: "already used"},
		{name: "guests skip per user limit", used: 1, auth: false, total: "250"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promo := save10()
			if tt.mutate != nil {
				tt.mutate(&promo)
			}
			err := EvaluatePromo(&promo, decimal.RequireFromString(tt.total), tt.used, tt.auth, now)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var rejected *models.PromoRejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Contains(t, rejected.Reason, tt.reason)
		})
	}
}

func TestCalculateDiscount(t *testing.T) {
	fixed := models.PromoCode{DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(50)}
	uncapped := models.PromoCode{DiscountType: models.DiscountPercent, DiscountValue: decimal.RequireFromString("12.5")}
	capped := save10()

	assertMoney(t, "50", CalculateDiscount(&fixed, decimal.NewFromInt(200)))
	assertMoney(t, "30", CalculateDiscount(&fixed, decimal.NewFromInt(30)))
	assertMoney(t, "12.35", CalculateDiscount(&uncapped, decimal.RequireFromString("98.80")))
	assertMoney(t, "15", CalculateDiscount(&capped, decimal.NewFromInt(150)))
	assertMoney(t, "20", CalculateDiscount(&capped, decimal.NewFromInt(1000)))
}

package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/store"
)

func TestProductService_CachesUntilInventoryMoves(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	ctx := context.Background()

	got, err := env.products.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 10, got.StockQuantity)

	// A write that bypasses the ledger is not seen until the version moves.
	env.store.PutProduct(models.Product{ID: a, Name: "A", Code: "SKU-A", BasePrice: decimal.NewFromInt(100), StockQuantity: 50})
	got, err = env.products.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 10, got.StockQuantity, "served from cache")

	env.placeOrder(t, customer(), map[uuid.UUID]int{a: 5})
	got, err = env.products.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 45, got.StockQuantity, "checkout invalidates inventory")
}

func TestProductService_AdjustStock(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	ctx := context.Background()
	ops := admin()

	_, err := env.products.GetProduct(ctx, a)
	require.NoError(t, err)

	_, err = env.products.AdjustStock(ctx, customer(), a, 5, "")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = env.products.AdjustStock(ctx, ops, a, 0, "")
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)

	updated, err := env.products.AdjustStock(ctx, ops, a, 5, "inbound shipment")
	require.NoError(t, err)
	assert.Equal(t, 15, updated.StockQuantity)

	got, err := env.products.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 15, got.StockQuantity)

	updated, err = env.products.AdjustStock(ctx, ops, a, -4, "damaged")
	require.NoError(t, err)
	assert.Equal(t, 11, updated.StockQuantity)

	_, err = env.products.AdjustStock(ctx, ops, a, -12, "recount")
	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 11, env.stock(t, a), "never goes negative")

	assert.Equal(t, 2, countAudit(t, env, a.String(), "STOCK_ADJUSTED"))
}

func TestLedger_ReleaseOrderIsGuarded(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	order := env.placeOrder(t, customer(), map[uuid.UUID]int{a: 3})
	ctx := context.Background()

	var first, second bool
	err := env.store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if first, err = env.lc.ledger.ReleaseOrder(ctx, tx, locked); err != nil {
			return err
		}
		second, err = env.lc.ledger.ReleaseOrder(ctx, tx, locked)
		return err
	})
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 10, env.stock(t, a))

	err = env.store.WithTx(ctx, func(tx store.Tx) error {
		return env.lc.ledger.Restock(ctx, tx, a, 0)
	})
	assert.ErrorIs(t, err, models.ErrInvalidQuantity)
}

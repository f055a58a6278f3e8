package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SigNoz/checkout-service/internal/models"
)

func seedProduct(m *Memory, stock int) models.Product {
	p := models.Product{
		ID:            uuid.New(),
		Name:          "Oak Shelf",
		Code:          "OAK-1",
		BasePrice:     decimal.NewFromInt(100),
		StockQuantity: stock,
	}
	m.PutProduct(p)
	return p
}

func TestMemory_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := seedProduct(m, 5)

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.SetStock(ctx, p.ID, 1))
		require.NoError(t, tx.AppendAudit(ctx, &models.AuditEntry{ID: uuid.New(), ResourceID: p.ID.String()}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.StockQuantity)

	audit, err := m.ListAudit(ctx, p.ID.String())
	require.NoError(t, err)
	assert.Empty(t, audit)
}

func TestMemory_CommitAppliesWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := seedProduct(m, 5)

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		return tx.SetStock(ctx, p.ID, 3)
	}))

	got, err := m.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.StockQuantity)
}

func TestMemory_SetStockRejectsNegative(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := seedProduct(m, 1)

	err := m.WithTx(ctx, func(tx Tx) error {
		return tx.SetStock(ctx, p.ID, -1)
	})
	assert.Error(t, err)
}

func TestMemory_OnePaymentPerOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	orderID := uuid.New()
	now := time.Now()

	first := &models.Payment{ID: uuid.New(), OrderID: orderID, GatewayOrderID: "order_1", Status: models.PaymentFailed, CreatedAt: now}
	second := &models.Payment{ID: uuid.New(), OrderID: orderID, GatewayOrderID: "order_2", Status: models.PaymentCreated, CreatedAt: now}

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error { return tx.InsertPayment(ctx, first) }))

	err := m.WithTx(ctx, func(tx Tx) error { return tx.InsertPayment(ctx, second) })
	assert.Error(t, err, "second active payment must be refused")

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		if err := tx.ArchivePayment(ctx, first); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, second)
	}))

	active, err := m.GetPaymentByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	attempts, err := m.ListPaymentAttempts(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, first.ID, attempts[0].ID)
}

func TestMemory_CartOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	user := uuid.New()

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateCart(ctx, &models.Cart{ID: uuid.New(), Owner: models.UserOwner(user)}); err != nil {
			return err
		}
		return tx.CreateCart(ctx, &models.Cart{ID: uuid.New(), Owner: models.SessionOwner("sess-1")})
	}))

	cart, err := m.GetCart(ctx, models.UserOwner(user))
	require.NoError(t, err)
	assert.False(t, cart.Owner.IsGuest())

	_, err = m.GetCart(ctx, models.SessionOwner("sess-2"))
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = m.WithTx(ctx, func(tx Tx) error {
		return tx.CreateCart(ctx, &models.Cart{ID: uuid.New()})
	})
	assert.ErrorIs(t, err, models.ErrInvalidOwner)
}

func TestMemory_ListStalePayments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	old := &models.Payment{ID: uuid.New(), OrderID: uuid.New(), GatewayOrderID: "old", Status: models.PaymentCreated, CreatedAt: now.Add(-2 * time.Hour)}
	fresh := &models.Payment{ID: uuid.New(), OrderID: uuid.New(), GatewayOrderID: "fresh", Status: models.PaymentCreated, CreatedAt: now}
	done := &models.Payment{ID: uuid.New(), OrderID: uuid.New(), GatewayOrderID: "done", Status: models.PaymentCaptured, CreatedAt: now.Add(-2 * time.Hour)}

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		for _, p := range []*models.Payment{old, fresh, done} {
			if err := tx.InsertPayment(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))

	stale, err := m.ListStalePayments(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].GatewayOrderID)
}

func TestMemory_SetStockReserved(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	order := &models.Order{ID: uuid.New(), Status: models.OrderPending, StockReserved: true}

	require.NoError(t, m.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return tx.SetStockReserved(ctx, order.ID, false)
	}))

	got, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, got.StockReserved)
	assert.Equal(t, models.OrderPending, got.Status)

	err = m.WithTx(ctx, func(tx Tx) error {
		return tx.SetStockReserved(ctx, uuid.New(), true)
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

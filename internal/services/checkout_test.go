package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SigNoz/checkout-service/internal/cache"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/notify"
)

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestCheckout_SnapshotsPricesAndReservesStock(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	b := env.seedProduct(t, "B", "50", 10)
	p := customer()

	order := env.placeOrder(t, p, map[uuid.UUID]int{a: 2, b: 1})

	assertMoney(t, "250", order.TotalAmount)
	assertMoney(t, "0", order.DiscountAmount)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.True(t, order.StockReserved)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 8, env.stock(t, a))
	assert.Equal(t, 9, env.stock(t, b))

	// Changing the catalog price later must not touch the snapshot.
	env.store.PutProduct(models.Product{ID: a, Name: "A", Code: "SKU-A", BasePrice: decimal.NewFromInt(999), StockQuantity: 8})
	stored := env.order(t, order.ID)
	for _, item := range stored.Items {
		if item.ProductID == a {
			assertMoney(t, "100", item.UnitPrice)
			assert.Equal(t, "A", item.ProductName)
		}
	}
	assertMoney(t, "250", stored.Subtotal())

	view, err := env.carts.GetCart(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.NotNil(t, view.ID, "authenticated users keep an empty cart")

	assert.Equal(t, []notify.EventType{notify.OrderPlaced}, env.events())

	audit, err := env.store.ListAudit(context.Background(), order.ID.String())
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "ORDER_CREATED", audit[0].Action)
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.checkout.Checkout(context.Background(), customer(), checkoutRequest(customer()))
	assert.ErrorIs(t, err, models.ErrEmptyCart)
}

func TestCheckout_GuestNeedsContactAndLosesCart(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	g := guest()
	env.addItem(t, g, a, 1)

	req := checkoutRequest(g)
	req.Guest = nil
	_, err := env.checkout.Checkout(context.Background(), g, req)
	assert.ErrorIs(t, err, models.ErrMissingContact)
	assert.Equal(t, 10, env.stock(t, a))

	order, err := env.checkout.Checkout(context.Background(), g, checkoutRequest(g))
	require.NoError(t, err)
	assert.Nil(t, order.UserID)
	assert.Equal(t, "guest@example.com", order.Guest.Email)
	assert.True(t, g.CanAccessOrder(env.order(t, order.ID)))

	view, err := env.carts.GetCart(context.Background(), g)
	require.NoError(t, err)
	assert.Nil(t, view.ID, "guest cart is deleted after checkout")
}

func TestCheckout_MissingAddress(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 10)
	p := customer()
	env.addItem(t, p, a, 1)

	req := checkoutRequest(p)
	req.Address.ZipCode = " "
	_, err := env.checkout.Checkout(context.Background(), p, req)
	assert.ErrorIs(t, err, models.ErrMissingAddress)
}

func TestCheckout_InsufficientStockRollsBackEverything(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 5)
	b := env.seedProduct(t, "B", "50", 1)
	p := customer()
	env.addItem(t, p, a, 2)
	env.addItem(t, p, b, 1)

	// Someone else buys the last B between add-to-cart and checkout.
	env.placeOrder(t, customer(), map[uuid.UUID]int{b: 1})

	_, err := env.checkout.Checkout(context.Background(), p, checkoutRequest(p))
	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b, stockErr.ProductID)
	assert.Equal(t, 0, stockErr.Available)
	assert.Equal(t, 1, stockErr.Requested)

	assert.Equal(t, 5, env.stock(t, a), "reservation of A must roll back")
	view, err := env.carts.GetCart(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, view.Lines, 2, "cart is untouched")
}

func TestCheckout_LastUnitRace(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedProduct(t, "A", "100", 1)

	const buyers = 8
	principals := make([]models.Principal, buyers)
	for i := range principals {
		principals[i] = customer()
		env.addItem(t, principals[i], a, 1)
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		outOfStock int
	)
	for _, p := range principals {
		wg.Add(1)
		go func(p models.Principal) {
			defer wg.Done()
			_, err := env.checkout.Checkout(context.Background(), p, checkoutRequest(p))
			var stockErr *models.InsufficientStockError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &stockErr):
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, outOfStock)
	assert.Equal(t, 0, env.stock(t, a))
}

func TestCheckout_NeverOversells(t *testing.T) {
	env := newTestEnv(t)
	const initial = 7
	a := env.seedProduct(t, "A", "10", initial)
	b := env.seedProduct(t, "B", "20", initial)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	type attempt struct {
		p     models.Principal
		lines map[uuid.UUID]int
	}
	var attempts []attempt
	for i := 0; i < 20; i++ {
		at := attempt{p: customer(), lines: map[uuid.UUID]int{a: 1 + rng.Intn(3)}}
		if rng.Intn(2) == 0 {
			at.lines[b] = 1 + rng.Intn(3)
		}
		for id, qty := range at.lines {
			env.addItem(t, at.p, id, qty)
		}
		attempts = append(attempts, at)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved = map[uuid.UUID]int{}
	)
	for _, at := range attempts {
		wg.Add(1)
		go func(at attempt) {
			defer wg.Done()
			order, err := env.checkout.Checkout(context.Background(), at.p, checkoutRequest(at.p))
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, item := range order.Items {
				reserved[item.ProductID] += item.Quantity
			}
		}(at)
	}
	wg.Wait()

	for _, id := range []uuid.UUID{a, b} {
		assert.LessOrEqual(t, reserved[id], initial)
		assert.Equal(t, initial-reserved[id], env.stock(t, id))
	}
}

func TestCheckout_AppliesPromoAndRecordsUsage(t *testing.T) {
	env := newTestEnv(t)
	promo := save10()
	env.store.PutPromo(promo)
	a := env.seedProduct(t, "A", "100", 10)
	b := env.seedProduct(t, "B", "50", 10)
	p := customer()
	env.addItem(t, p, a, 2)
	env.addItem(t, p, b, 1)

	view, err := env.carts.ApplyPromo(context.Background(), p, "save10")
	require.NoError(t, err)
	assertMoney(t, "20", view.Discount)
	assertMoney(t, "230", view.Total)

	order, err := env.checkout.Checkout(context.Background(), p, checkoutRequest(p))
	require.NoError(t, err)
	assertMoney(t, "230", order.TotalAmount)
	assertMoney(t, "20", order.DiscountAmount)
	assertMoney(t, "20", order.Subtotal().Sub(order.TotalAmount))

	stored, err := env.store.GetPromo(context.Background(), promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.UsageCount)
	used, err := env.store.CountPromoUsage(context.Background(), promo.ID, *p.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	v, err := env.versions.Version(context.Background(), cache.TopicPromos)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestCheckout_DropsStalePromo(t *testing.T) {
	env := newTestEnv(t)
	env.store.PutPromo(save10())
	a := env.seedProduct(t, "A", "40", 10)
	p := customer()
	env.addItem(t, p, a, 3)

	view, err := env.carts.ApplyPromo(context.Background(), p, "SAVE10")
	require.NoError(t, err)
	assertMoney(t, "12", view.Discount)

	// Shrinking the cart puts the subtotal below the promo minimum.
	view, err = env.carts.UpdateItem(context.Background(), p, view.Lines[0].ID, 2)
	require.NoError(t, err)
	assert.NotEmpty(t, view.PromoNotice)

	order, err := env.checkout.Checkout(context.Background(), p, checkoutRequest(p))
	require.NoError(t, err, "a stale promo never blocks checkout")
	assertMoney(t, "80", order.TotalAmount)
	assertMoney(t, "0", order.DiscountAmount)
}

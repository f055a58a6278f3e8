package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SigNoz/checkout-service/internal/models"
)

// Memory is an in-process Store. Transactions are fully serialised and
// work on a copy of the state that replaces the live one only on commit.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	products  map[uuid.UUID]models.Product
	rules     map[uuid.UUID][]models.DimensionRule
	orders    map[uuid.UUID]models.Order
	payments  map[uuid.UUID]models.Payment // keyed by order id
	attempts  []models.Payment
	carts     map[uuid.UUID]models.Cart
	cartItems map[uuid.UUID]models.CartItem
	promos    map[uuid.UUID]models.PromoCode
	usages    []models.PromoUsage
	audit     []models.AuditEntry
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: &memState{
		products:  make(map[uuid.UUID]models.Product),
		rules:     make(map[uuid.UUID][]models.DimensionRule),
		orders:    make(map[uuid.UUID]models.Order),
		payments:  make(map[uuid.UUID]models.Payment),
		carts:     make(map[uuid.UUID]models.Cart),
		cartItems: make(map[uuid.UUID]models.CartItem),
		promos:    make(map[uuid.UUID]models.PromoCode),
	}}
}

func (s *memState) clone() *memState {
	return &memState{
		products:  maps.Clone(s.products),
		rules:     maps.Clone(s.rules),
		orders:    maps.Clone(s.orders),
		payments:  maps.Clone(s.payments),
		attempts:  slices.Clip(s.attempts),
		carts:     maps.Clone(s.carts),
		cartItems: maps.Clone(s.cartItems),
		promos:    maps.Clone(s.promos),
		usages:    slices.Clip(s.usages),
		audit:     slices.Clip(s.audit),
	}
}

// PutProduct seeds or replaces a catalog product.
func (m *Memory) PutProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = p
}

// PutDimensionRule seeds a pricing rule.
func (m *Memory) PutDimensionRule(r models.DimensionRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.rules[r.ProductID] = append(slices.Clip(m.state.rules[r.ProductID]), r)
}

// PutPromo seeds or replaces a promo code.
func (m *Memory) PutPromo(p models.PromoCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.promos[p.ID] = p
}

// WithTx runs fn against a private copy of the state.
func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{memReader{work}}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) reader() memReader {
	return memReader{m.state}
}

func (m *Memory) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().GetProduct(ctx, id)
}

func (m *Memory) DimensionRules(ctx context.Context, productID uuid.UUID) ([]models.DimensionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().DimensionRules(ctx, productID)
}

func (m *Memory) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().GetOrder(ctx, id)
}

func (m *Memory) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().GetPaymentByOrder(ctx, orderID)
}

func (m *Memory) GetPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().GetPaymentByGatewayOrderID(ctx, gatewayOrderID)
}

func (m *Memory) ListStalePayments(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().ListStalePayments(ctx, createdBefore, limit)
}

func (m *Memory) ListPaymentAttempts(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().ListPaymentAttempts(ctx, orderID)
}

func (m *Memory) GetCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().GetCart(ctx, owner)
}

func (m *Memory) GetPromo(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().GetPromo(ctx, id)
}

func (m *Memory) GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().GetPromoByCode(ctx, code)
}

func (m *Memory) CountPromoUsage(ctx context.Context, promoID, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().CountPromoUsage(ctx, promoID, userID)
}

func (m *Memory) ListAudit(ctx context.Context, resourceID string) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader().ListAudit(ctx, resourceID)
}

// memReader reads a state without locking; the caller holds Memory.mu.
type memReader struct {
	st *memState
}

func (r memReader) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return &p, nil
}

func (r memReader) DimensionRules(_ context.Context, productID uuid.UUID) ([]models.DimensionRule, error) {
	return slices.Clone(r.st.rules[productID]), nil
}

func (r memReader) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func (r memReader) GetPaymentByOrder(_ context.Context, orderID uuid.UUID) (*models.Payment, error) {
	p, ok := r.st.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment for order %s: %w", orderID, models.ErrNotFound)
	}
	return &p, nil
}

func (r memReader) GetPaymentByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.Payment, error) {
	for _, p := range r.st.payments {
		if p.GatewayOrderID == gatewayOrderID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment for gateway order %s: %w", gatewayOrderID, models.ErrNotFound)
}

func (r memReader) ListStalePayments(_ context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.st.payments {
		if p.Status == models.PaymentCreated && p.CreatedAt.Before(createdBefore) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memReader) ListPaymentAttempts(_ context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.st.attempts {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memReader) GetCart(_ context.Context, owner models.CartOwner) (*models.Cart, error) {
	for _, c := range r.st.carts {
		if sameOwner(c.Owner, owner) {
			c.Items = r.itemsOf(c.ID)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("cart for %s: %w", owner, models.ErrNotFound)
}

func (r memReader) itemsOf(cartID uuid.UUID) []models.CartItem {
	var items []models.CartItem
	for _, it := range r.st.cartItems {
		if it.CartID == cartID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items
}

func sameOwner(a, b models.CartOwner) bool {
	if a.UserID != nil || b.UserID != nil {
		return a.UserID != nil && b.UserID != nil && *a.UserID == *b.UserID
	}
	return a.SessionKey == b.SessionKey
}

func (r memReader) GetPromo(_ context.Context, id uuid.UUID) (*models.PromoCode, error) {
	p, ok := r.st.promos[id]
	if !ok {
		return nil, fmt.Errorf("promo %s: %w", id, models.ErrNotFound)
	}
	return &p, nil
}

func (r memReader) GetPromoByCode(_ context.Context, code string) (*models.PromoCode, error) {
	for _, p := range r.st.promos {
		if strings.EqualFold(p.Code, code) {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("promo %q: %w", code, models.ErrNotFound)
}

func (r memReader) CountPromoUsage(_ context.Context, promoID, userID uuid.UUID) (int, error) {
	n := 0
	for _, u := range r.st.usages {
		if u.PromoID == promoID && u.UserID != nil && *u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r memReader) ListAudit(_ context.Context, resourceID string) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	for _, e := range r.st.audit {
		if e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memTx struct {
	memReader
}

func (t *memTx) LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *memTx) SetStock(_ context.Context, id uuid.UUID, qty int) error {
	p, ok := t.st.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	if qty < 0 {
		return fmt.Errorf("product %s: negative stock %d", id, qty)
	}
	p.StockQuantity = qty
	p.UpdatedAt = time.Now().UTC()
	t.st.products[id] = p
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, order *models.Order) error {
	if _, exists := t.st.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	o := *order
	o.Items = slices.Clone(order.Items)
	t.st.orders[o.ID] = o
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) UpdateOrderStatus(_ context.Context, order *models.Order) error {
	o, ok := t.st.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", order.ID, models.ErrNotFound)
	}
	o.Status = order.Status
	o.StockReserved = order.StockReserved
	o.UpdatedAt = order.UpdatedAt
	t.st.orders[o.ID] = o
	return nil
}

func (t *memTx) SetStockReserved(_ context.Context, orderID uuid.UUID, reserved bool) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	o.StockReserved = reserved
	t.st.orders[orderID] = o
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, p *models.Payment) error {
	if _, exists := t.st.payments[p.OrderID]; exists {
		return fmt.Errorf("order %s already has a payment", p.OrderID)
	}
	for _, other := range t.st.payments {
		if other.GatewayOrderID == p.GatewayOrderID {
			return fmt.Errorf("gateway order %s already recorded", p.GatewayOrderID)
		}
	}
	t.st.payments[p.OrderID] = *p
	return nil
}

func (t *memTx) LockPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	return t.GetPaymentByOrder(ctx, orderID)
}

func (t *memTx) UpdatePayment(_ context.Context, p *models.Payment) error {
	cur, ok := t.st.payments[p.OrderID]
	if !ok || cur.ID != p.ID {
		return fmt.Errorf("payment %s: %w", p.ID, models.ErrNotFound)
	}
	t.st.payments[p.OrderID] = *p
	return nil
}

func (t *memTx) ArchivePayment(_ context.Context, p *models.Payment) error {
	cur, ok := t.st.payments[p.OrderID]
	if !ok || cur.ID != p.ID {
		return fmt.Errorf("payment %s: %w", p.ID, models.ErrNotFound)
	}
	t.st.attempts = append(t.st.attempts, cur)
	delete(t.st.payments, p.OrderID)
	return nil
}

func (t *memTx) LockCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error) {
	return t.GetCart(ctx, owner)
}

func (t *memTx) CreateCart(_ context.Context, cart *models.Cart) error {
	if err := cart.Owner.Validate(); err != nil {
		return err
	}
	for _, c := range t.st.carts {
		if sameOwner(c.Owner, cart.Owner) {
			return fmt.Errorf("cart for %s already exists", cart.Owner)
		}
	}
	c := *cart
	c.Items = nil
	t.st.carts[c.ID] = c
	return nil
}

func (t *memTx) SaveCartItem(_ context.Context, item *models.CartItem) error {
	if _, ok := t.st.carts[item.CartID]; !ok {
		return fmt.Errorf("cart %s: %w", item.CartID, models.ErrNotFound)
	}
	for _, other := range t.st.cartItems {
		if other.ID != item.ID && other.CartID == item.CartID && other.SameLine(item.ProductID, item.Dims) {
			return fmt.Errorf("cart %s already has a line for product %s %s", item.CartID, item.ProductID, item.Dims)
		}
	}
	t.st.cartItems[item.ID] = *item
	t.touchCart(item.CartID)
	return nil
}

func (t *memTx) DeleteCartItem(_ context.Context, cartID, itemID uuid.UUID) error {
	it, ok := t.st.cartItems[itemID]
	if !ok || it.CartID != cartID {
		return fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
	}
	delete(t.st.cartItems, itemID)
	t.touchCart(cartID)
	return nil
}

func (t *memTx) SetCartPromo(_ context.Context, cartID uuid.UUID, promoID *uuid.UUID) error {
	c, ok := t.st.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %s: %w", cartID, models.ErrNotFound)
	}
	c.PromoCodeID = promoID
	c.UpdatedAt = time.Now().UTC()
	t.st.carts[cartID] = c
	return nil
}

func (t *memTx) ClearCart(_ context.Context, cartID uuid.UUID) error {
	for id, it := range t.st.cartItems {
		if it.CartID == cartID {
			delete(t.st.cartItems, id)
		}
	}
	c, ok := t.st.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %s: %w", cartID, models.ErrNotFound)
	}
	c.PromoCodeID = nil
	c.UpdatedAt = time.Now().UTC()
	t.st.carts[cartID] = c
	return nil
}

func (t *memTx) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	if err := t.ClearCart(ctx, cartID); err != nil {
		return err
	}
	delete(t.st.carts, cartID)
	return nil
}

func (t *memTx) touchCart(cartID uuid.UUID) {
	if c, ok := t.st.carts[cartID]; ok {
		c.UpdatedAt = time.Now().UTC()
		t.st.carts[cartID] = c
	}
}

func (t *memTx) LockPromo(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	return t.GetPromo(ctx, id)
}

func (t *memTx) IncrementPromoUsage(_ context.Context, id uuid.UUID) error {
	p, ok := t.st.promos[id]
	if !ok {
		return fmt.Errorf("promo %s: %w", id, models.ErrNotFound)
	}
	p.UsageCount++
	t.st.promos[id] = p
	return nil
}

func (t *memTx) InsertPromoUsage(_ context.Context, usage *models.PromoUsage) error {
	t.st.usages = append(t.st.usages, *usage)
	return nil
}

func (t *memTx) AppendAudit(_ context.Context, entry *models.AuditEntry) error {
	t.st.audit = append(t.st.audit, *entry)
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/store"
)

// CartLine is a cart item priced at read time.
type CartLine struct {
	models.CartItem
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Unavailable bool            `json:"unavailable,omitempty"`
}

// CartView is what the customer sees: lines, promo and totals.
type CartView struct {
	ID          *uuid.UUID      `json:"id,omitempty"`
	Lines       []CartLine      `json:"lines"`
	PromoCode   string          `json:"promo_code,omitempty"`
	PromoNotice string          `json:"promo_notice,omitempty"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// AddItemRequest adds quantity units of a product at the given dimensions.
type AddItemRequest struct {
	ProductID uuid.UUID         `json:"product_id"`
	Dims      models.Dimensions `json:"dimensions"`
	Quantity  int               `json:"quantity"`
}

// cartSource is what pricing a cart needs; store.Reader and store.Tx fit.
type cartSource interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	DimensionRules(ctx context.Context, productID uuid.UUID) ([]models.DimensionRule, error)
}

// CartService handles cart-related operations
type CartService struct {
	lc     *Lifecycle
	pricer Pricer
	promos *PromotionValidator
}

// NewCartService creates a new cart service
func NewCartService(lc *Lifecycle, pricer Pricer, promos *PromotionValidator) *CartService {
	return &CartService{lc: lc, pricer: pricer, promos: promos}
}

// GetCart returns the caller's cart, or an empty view if they have none.
func (s *CartService) GetCart(ctx context.Context, p models.Principal) (*CartView, error) {
	owner, err := p.CartOwner()
	if err != nil {
		return nil, err
	}
	cart, err := s.lc.store.GetCart(ctx, owner)
	if errors.Is(err, models.ErrNotFound) {
		return &CartView{Lines: []CartLine{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return s.view(ctx, s.lc.store, cart, p.UserID)
}

// AddItem validates the price for the dimensions and adds the quantity to
// the matching line, creating the cart and the line as needed.
func (s *CartService) AddItem(ctx context.Context, p models.Principal, req AddItemRequest) (*CartView, error) {
	if req.Quantity < 1 {
		return nil, models.ErrInvalidQuantity
	}
	owner, err := p.CartOwner()
	if err != nil {
		return nil, err
	}

	err = s.lc.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := s.lockOrCreate(ctx, tx, owner)
		if err != nil {
			return err
		}
		product, err := tx.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if _, err := s.pricer.Price(ctx, tx, product, req.Dims); err != nil {
			return err
		}

		item := models.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: product.ID,
			Dims:      req.Dims,
			Quantity:  req.Quantity,
			CreatedAt: s.lc.now(),
		}
		for _, existing := range cart.Items {
			if existing.SameLine(product.ID, req.Dims) {
				item = existing
				item.Quantity += req.Quantity
				break
			}
		}
		if err := checkAvailable(product, item.Quantity); err != nil {
			return err
		}
		return tx.SaveCartItem(ctx, &item)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CART] request_id=%s added product %s x%d to cart of %s", requestid.From(ctx), req.ProductID, req.Quantity, owner)
	return s.GetCart(ctx, p)
}

// UpdateItem sets a line's quantity; anything below 1 removes the line.
func (s *CartService) UpdateItem(ctx context.Context, p models.Principal, itemID uuid.UUID, quantity int) (*CartView, error) {
	owner, err := p.CartOwner()
	if err != nil {
		return nil, err
	}

	err = s.lc.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.LockCart(ctx, owner)
		if err != nil {
			return err
		}
		idx := findItem(cart.Items, itemID)
		if idx < 0 {
			return fmt.Errorf("cart item %s: %w", itemID, models.ErrNotFound)
		}
		if quantity < 1 {
			return tx.DeleteCartItem(ctx, cart.ID, itemID)
		}

		item := cart.Items[idx]
		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if err := checkAvailable(product, quantity); err != nil {
			return err
		}
		item.Quantity = quantity
		return tx.SaveCartItem(ctx, &item)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, p)
}

// RemoveItem deletes a line from the caller's cart.
func (s *CartService) RemoveItem(ctx context.Context, p models.Principal, itemID uuid.UUID) (*CartView, error) {
	return s.UpdateItem(ctx, p, itemID, 0)
}

// ApplyPromo validates code against the current subtotal and attaches it.
func (s *CartService) ApplyPromo(ctx context.Context, p models.Principal, code string) (*CartView, error) {
	owner, err := p.CartOwner()
	if err != nil {
		return nil, err
	}

	err = s.lc.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.LockCart(ctx, owner)
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrEmptyCart
		}
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return models.ErrEmptyCart
		}

		_, subtotal, err := s.priceLines(ctx, tx, cart.Items)
		if err != nil {
			return err
		}
		result, err := s.promos.Validate(ctx, tx, code, p.UserID, subtotal)
		if err != nil {
			return err
		}
		return tx.SetCartPromo(ctx, cart.ID, &result.Promo.ID)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CART] request_id=%s applied promo %s for %s", requestid.From(ctx), code, owner)
	return s.GetCart(ctx, p)
}

// RemovePromo detaches the promo, if any.
func (s *CartService) RemovePromo(ctx context.Context, p models.Principal) (*CartView, error) {
	owner, err := p.CartOwner()
	if err != nil {
		return nil, err
	}

	err = s.lc.store.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.LockCart(ctx, owner)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.SetCartPromo(ctx, cart.ID, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.GetCart(ctx, p)
}

// Merge folds the guest cart of sessionKey into the caller's cart after
// login. Quantities of matching lines are summed; the user's promo wins
// over the guest's. The guest cart is deleted.
func (s *CartService) Merge(ctx context.Context, p models.Principal, sessionKey string) (*CartView, error) {
	if !p.Authenticated() {
		return nil, models.ErrForbidden
	}
	if sessionKey == "" {
		return nil, models.ErrInvalidOwner
	}

	merged := 0
	err := s.lc.store.WithTx(ctx, func(tx store.Tx) error {
		guest, err := tx.LockCart(ctx, models.SessionOwner(sessionKey))
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cart, err := s.lockOrCreate(ctx, tx, models.UserOwner(*p.UserID))
		if err != nil {
			return err
		}

		if err := tx.DeleteCart(ctx, guest.ID); err != nil {
			return err
		}
		for _, g := range guest.Items {
			item := models.CartItem{
				ID:        uuid.New(),
				CartID:    cart.ID,
				ProductID: g.ProductID,
				Dims:      g.Dims,
				Quantity:  g.Quantity,
				CreatedAt: g.CreatedAt,
			}
			if idx := findLine(cart.Items, g.ProductID, g.Dims); idx >= 0 {
				item = cart.Items[idx]
				item.Quantity += g.Quantity
				cart.Items[idx] = item
			} else {
				cart.Items = append(cart.Items, item)
			}
			if err := tx.SaveCartItem(ctx, &item); err != nil {
				return err
			}
			merged++
		}

		if cart.PromoCodeID == nil && guest.PromoCodeID != nil {
			return tx.SetCartPromo(ctx, cart.ID, guest.PromoCodeID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if merged > 0 {
		log.Printf("[CART] request_id=%s merged %d guest lines into cart of user %s", requestid.From(ctx), merged, p.UserID)
	}
	return s.GetCart(ctx, p)
}

func (s *CartService) lockOrCreate(ctx context.Context, tx store.Tx, owner models.CartOwner) (*models.Cart, error) {
	cart, err := tx.LockCart(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := s.lc.now()
	cart = &models.Cart{ID: uuid.New(), Owner: owner, CreatedAt: now, UpdatedAt: now}
	if err := tx.CreateCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

// priceLines prices every item. Lines whose price cannot be resolved are
// flagged and left out of the subtotal.
func (s *CartService) priceLines(ctx context.Context, src cartSource, items []models.CartItem) ([]CartLine, decimal.Decimal, error) {
	lines := make([]CartLine, 0, len(items))
	subtotal := decimal.Zero
	for _, item := range items {
		product, err := src.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		line := CartLine{CartItem: item, ProductName: product.Name}
		price, err := s.pricer.Price(ctx, src, product, item.Dims)
		switch {
		case errors.Is(err, models.ErrPriceUnavailable):
			line.Unavailable = true
		case err != nil:
			return nil, decimal.Zero, err
		default:
			line.UnitPrice = price
			line.LineTotal = price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			subtotal = subtotal.Add(line.LineTotal)
		}
		lines = append(lines, line)
	}
	return lines, subtotal, nil
}

func (s *CartService) view(ctx context.Context, r store.Reader, cart *models.Cart, userID *uuid.UUID) (*CartView, error) {
	lines, subtotal, err := s.priceLines(ctx, r, cart.Items)
	if err != nil {
		return nil, err
	}
	v := &CartView{ID: &cart.ID, Lines: lines, Subtotal: subtotal, Discount: decimal.Zero}

	if cart.PromoCodeID != nil {
		promo, err := r.GetPromo(ctx, *cart.PromoCodeID)
		if err != nil {
			return nil, err
		}
		v.PromoCode = promo.Code
		result, err := s.promos.Revalidate(ctx, r, promo, userID, subtotal)
		var rejected *models.PromoRejectedError
		switch {
		case errors.As(err, &rejected):
			v.PromoNotice = rejected.Reason
		case err != nil:
			return nil, err
		default:
			v.Discount = result.Discount
		}
	}
	v.Total = decimal.Max(decimal.Zero, subtotal.Sub(v.Discount))
	return v, nil
}

// checkAvailable is a soft check; the binding reservation happens at checkout.
func checkAvailable(product *models.Product, qty int) error {
	if qty > product.StockQuantity {
		return &models.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.StockQuantity,
			Requested:   qty,
		}
	}
	return nil
}

func findItem(items []models.CartItem, id uuid.UUID) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func findLine(items []models.CartItem, productID uuid.UUID, dims models.Dimensions) int {
	for i, it := range items {
		if it.SameLine(productID, dims) {
			return i
		}
	}
	return -1
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an Order
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	OrderPaid            OrderStatus = "PAID"
	OrderShipped         OrderStatus = "SHIPPED"
	OrderDelivered       OrderStatus = "DELIVERED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// PaymentStatus is the lifecycle state of a Payment
type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "CREATED"
	PaymentCaptured PaymentStatus = "CAPTURED"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod selects how an order is paid
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodCOD    PaymentMethod = "COD"
)

// ParsePaymentMethod defaults to ONLINE when s is empty.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToUpper(s)) {
	case "", PaymentMethodOnline:
		return PaymentMethodOnline, nil
	case PaymentMethodCOD:
		return PaymentMethodCOD, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrInvalidPaymentMethod)
}

// Product is owned by the catalog; this service only moves StockQuantity.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Code          string          `json:"code"`
	BasePrice     decimal.Decimal `json:"base_price"`
	StockQuantity int             `json:"stock_quantity"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DimensionRule prices a product for a range of dimensions.
// An exact rule has Min == Max on every axis and a fixed Price.
type DimensionRule struct {
	ID         uuid.UUID        `json:"id"`
	ProductID  uuid.UUID        `json:"product_id"`
	MinLength  float64          `json:"min_length"`
	MaxLength  float64          `json:"max_length"`
	MinBreadth float64          `json:"min_breadth"`
	MaxBreadth float64          `json:"max_breadth"`
	MinHeight  float64          `json:"min_height"`
	MaxHeight  float64          `json:"max_height"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Multiplier decimal.Decimal  `json:"multiplier"`
	AddOn      decimal.Decimal  `json:"add_on"`
}

// Dimensions selected by the customer for a made-to-measure product
type Dimensions struct {
	Length  float64 `json:"length"`
	Breadth float64 `json:"breadth"`
	Height  float64 `json:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%gx%gx%g", d.Length, d.Breadth, d.Height)
}

// CartOwner identifies a cart by exactly one of user or anonymous session.
type CartOwner struct {
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	SessionKey string     `json:"session_key,omitempty"`
}

// UserOwner returns the owner for an authenticated user.
func UserOwner(id uuid.UUID) CartOwner {
	return CartOwner{UserID: &id}
}

// SessionOwner returns the owner for a guest session.
func SessionOwner(key string) CartOwner {
	return CartOwner{SessionKey: key}
}

// Validate enforces that exactly one of user and session is set.
func (o CartOwner) Validate() error {
	hasUser := o.UserID != nil
	hasSession := o.SessionKey != ""
	if hasUser == hasSession {
		return ErrInvalidOwner
	}
	return nil
}

// IsGuest reports whether the owner is an anonymous session.
func (o CartOwner) IsGuest() bool {
	return o.UserID == nil
}

func (o CartOwner) String() string {
	if o.UserID != nil {
		return "user:" + o.UserID.String()
	}
	return "session:" + o.SessionKey
}

// Cart represents a shopping cart
type Cart struct {
	ID          uuid.UUID  `json:"id"`
	Owner       CartOwner  `json:"owner"`
	PromoCodeID *uuid.UUID `json:"promo_code_id,omitempty"`
	Items       []CartItem `json:"items"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CartItem is unique per (cart, product, dimensions).
type CartItem struct {
	ID        uuid.UUID  `json:"id"`
	CartID    uuid.UUID  `json:"cart_id"`
	ProductID uuid.UUID  `json:"product_id"`
	Dims      Dimensions `json:"dimensions"`
	Quantity  int        `json:"quantity"`
	CreatedAt time.Time  `json:"created_at"`
}

// SameLine reports whether two items collapse into one cart line.
func (i CartItem) SameLine(productID uuid.UUID, dims Dimensions) bool {
	return i.ProductID == productID && i.Dims == dims
}

// Address is a point-in-time shipping address snapshot
type Address struct {
	Line1   string `json:"line1"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
}

// GuestContact identifies the payer of a guest order.
type GuestContact struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Order is the immutable snapshot produced by checkout; only Status,
// StockReserved and UpdatedAt change after creation.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          *uuid.UUID      `json:"user_id,omitempty"`
	Guest           *GuestContact   `json:"guest,omitempty"`
	SessionKey      string          `json:"-"`
	Status          OrderStatus     `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	ShippingAddress Address         `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	StockReserved   bool            `json:"-"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Subtotal is the sum of unit_price * quantity over all items.
func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Recipient is the notification address for the order's payer.
func (o *Order) Recipient() string {
	if o.UserID != nil {
		return o.UserID.String()
	}
	if o.Guest != nil {
		return o.Guest.Email
	}
	return ""
}

// OwnedBy reports whether the authenticated user placed the order.
func (o *Order) OwnedBy(userID uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == userID
}

// PlacedInSession reports whether a guest order came from the session.
func (o *Order) PlacedInSession(sessionKey string) bool {
	return o.UserID == nil && sessionKey != "" && o.SessionKey == sessionKey
}

// OrderItem is a frozen snapshot of the product at checkout time
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductCode string          `json:"product_code"`
	Dims        Dimensions      `json:"dimensions"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Payment is the single active payment for an order
type Payment struct {
	ID               uuid.UUID       `json:"id"`
	OrderID          uuid.UUID       `json:"order_id"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	Signature        string          `json:"-"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           PaymentStatus   `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DiscountType of a promo code
type DiscountType string

const (
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

// PromoCode is a coupon
type PromoCode struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	DiscountType      DiscountType     `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	MinOrderAmount    decimal.Decimal  `json:"min_order_amount"`
	ValidFrom         time.Time        `json:"valid_from"`
	ValidUntil        time.Time        `json:"valid_until"`
	UsageLimit        *int             `json:"usage_limit,omitempty"` // nil or 0: unlimited
	UsageCount        int              `json:"usage_count"`
	PerUserLimit      int              `json:"per_user_limit"`
	IsActive          bool             `json:"is_active"`
}

// PromoUsage records that a promo was consumed by an order. Never mutated.
type PromoUsage struct {
	ID             uuid.UUID       `json:"id"`
	PromoID        uuid.UUID       `json:"promo_id"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"`
	OrderID        uuid.UUID       `json:"order_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	UsedAt         time.Time       `json:"used_at"`
}

// AuditEntry is appended for every lifecycle mutation
type AuditEntry struct {
	ID           uuid.UUID  `json:"id"`
	Action       string     `json:"action"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	ActorID      *uuid.UUID `json:"actor_id,omitempty"`
	ActorRole    string     `json:"actor_role"`
	Reason       string     `json:"reason"`
	RequestID    string     `json:"request_id"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Package store is the persistence contract for the order/payment lifecycle.
//
// Every mutation runs inside Store.WithTx. Methods named Lock* take an
// exclusive row lock (SELECT ... FOR UPDATE on MySQL) that is held until the
// transaction ends; stock, order and payment writes must be preceded by the
// matching Lock* call in the same transaction.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SigNoz/checkout-service/internal/models"
)

// Reader is the read side, usable both inside and outside a transaction.
// Lookups that find nothing return an error wrapping models.ErrNotFound.
type Reader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	DimensionRules(ctx context.Context, productID uuid.UUID) ([]models.DimensionRule, error)

	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	GetPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	ListStalePayments(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error)
	ListPaymentAttempts(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)

	GetCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error)

	GetPromo(ctx context.Context, id uuid.UUID) (*models.PromoCode, error)
	GetPromoByCode(ctx context.Context, code string) (*models.PromoCode, error)
	CountPromoUsage(ctx context.Context, promoID, userID uuid.UUID) (int, error)

	ListAudit(ctx context.Context, resourceID string) ([]models.AuditEntry, error)
}

// Tx is a unit of work. It is only valid inside the WithTx callback.
type Tx interface {
	Reader

	LockProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	SetStock(ctx context.Context, id uuid.UUID, qty int) error

	InsertOrder(ctx context.Context, order *models.Order) error
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, order *models.Order) error
	SetStockReserved(ctx context.Context, orderID uuid.UUID, reserved bool) error

	InsertPayment(ctx context.Context, p *models.Payment) error
	LockPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error
	// ArchivePayment moves a terminal payment into the attempts history,
	// freeing the order for a new active payment.
	ArchivePayment(ctx context.Context, p *models.Payment) error

	LockCart(ctx context.Context, owner models.CartOwner) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	SaveCartItem(ctx context.Context, item *models.CartItem) error
	DeleteCartItem(ctx context.Context, cartID, itemID uuid.UUID) error
	SetCartPromo(ctx context.Context, cartID uuid.UUID, promoID *uuid.UUID) error
	ClearCart(ctx context.Context, cartID uuid.UUID) error
	DeleteCart(ctx context.Context, cartID uuid.UUID) error

	LockPromo(ctx context.Context, id uuid.UUID) (*models.PromoCode, error)
	IncrementPromoUsage(ctx context.Context, id uuid.UUID) error
	InsertPromoUsage(ctx context.Context, usage *models.PromoUsage) error

	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}

// Store opens transactions. The callback's error rolls everything back.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

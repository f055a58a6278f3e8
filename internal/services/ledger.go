package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/SigNoz/checkout-service/internal/metrics"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/store"
)

// Ledger moves Product.stock_quantity. Every call runs inside the caller's
// transaction and locks the product row before reading it, so the stock
// change commits or rolls back together with the order/payment write.
type Ledger struct {
	metrics *metrics.AppMetrics
}

// NewLedger creates an inventory ledger
func NewLedger(m *metrics.AppMetrics) *Ledger {
	return &Ledger{metrics: m}
}

// Reserve decrements stock by qty or fails with *models.InsufficientStockError
// without touching the row.
func (l *Ledger) Reserve(ctx context.Context, tx store.Tx, productID uuid.UUID, qty int) (*models.Product, error) {
	if qty <= 0 {
		return nil, models.ErrInvalidQuantity
	}

	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock product %s: %w", productID, err)
	}
	if product.StockQuantity < qty {
		return nil, &models.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.StockQuantity,
			Requested:   qty,
		}
	}

	product.StockQuantity -= qty
	if err := tx.SetStock(ctx, productID, product.StockQuantity); err != nil {
		return nil, fmt.Errorf("failed to reserve stock for %s: %w", productID, err)
	}
	l.metrics.RecordStockLevel(ctx, productID.String(), product.StockQuantity)
	return product, nil
}

// Release increments stock by qty, returning units held by an order.
func (l *Ledger) Release(ctx context.Context, tx store.Tx, productID uuid.UUID, qty int) error {
	if err := l.Restock(ctx, tx, productID, qty); err != nil {
		return err
	}
	l.metrics.StockReleased.Add(ctx, int64(qty), metric.WithAttributes(l.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("product_id", productID.String()),
	})...))
	return nil
}

// Restock increments stock by qty.
func (l *Ledger) Restock(ctx context.Context, tx store.Tx, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return models.ErrInvalidQuantity
	}
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to lock product %s: %w", productID, err)
	}

	level := product.StockQuantity + qty
	if err := tx.SetStock(ctx, productID, level); err != nil {
		return fmt.Errorf("failed to release stock for %s: %w", productID, err)
	}
	l.metrics.RecordStockLevel(ctx, productID.String(), level)
	return nil
}

// ReserveOrder takes stock for every item of an order that holds none,
// locking products in id order. The order's stock flag is written in the
// same tx.
func (l *Ledger) ReserveOrder(ctx context.Context, tx store.Tx, order *models.Order) error {
	if order.StockReserved {
		return nil
	}
	for _, item := range sortedOrderItems(order.Items) {
		if _, err := l.Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	if err := tx.SetStockReserved(ctx, order.ID, true); err != nil {
		return fmt.Errorf("failed to mark stock reserved for order %s: %w", order.ID, err)
	}
	order.StockReserved = true
	return nil
}

// ReleaseOrder returns the stock held by order. It is a no-op, logged,
// when the order holds no stock, so compensating paths can never restore
// the same units twice. Reports whether stock moved.
func (l *Ledger) ReleaseOrder(ctx context.Context, tx store.Tx, order *models.Order) (bool, error) {
	if !order.StockReserved {
		log.Printf("[LEDGER] request_id=%s order %s holds no stock, skipping release", requestid.From(ctx), order.ID)
		return false, nil
	}
	for _, item := range sortedOrderItems(order.Items) {
		if err := l.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return false, err
		}
	}
	if err := tx.SetStockReserved(ctx, order.ID, false); err != nil {
		return false, fmt.Errorf("failed to clear stock flag for order %s: %w", order.ID, err)
	}
	order.StockReserved = false
	log.Printf("[LEDGER] request_id=%s released stock for order %s (%d lines)", requestid.From(ctx), order.ID, len(order.Items))
	return true, nil
}

package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/SigNoz/checkout-service/internal/cache"
	"github.com/SigNoz/checkout-service/internal/models"
	"github.com/SigNoz/checkout-service/internal/requestid"
	"github.com/SigNoz/checkout-service/internal/store"
)

const productCacheTTL = 5 * time.Minute

// ProductCache holds product stock reads tagged with the inventory version
// they were read at. Any ledger movement bumps the version.
type ProductCache struct {
	mu    sync.RWMutex
	items map[uuid.UUID]cachedProduct
}

type cachedProduct struct {
	product models.Product
	version int64
	expires time.Time
}

func NewProductCache() *ProductCache {
	return &ProductCache{items: make(map[uuid.UUID]cachedProduct)}
}

// ProductService serves stock levels and admin stock adjustments. Every
// adjustment goes through the ledger, never a bare write.
type ProductService struct {
	lc       *Lifecycle
	versions cache.Versions
	cache    *ProductCache
}

// NewProductService creates a new product service
func NewProductService(lc *Lifecycle, versions cache.Versions) *ProductService {
	return &ProductService{lc: lc, versions: versions, cache: NewProductCache()}
}

// GetProduct returns a product with its current stock
func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	version, err := s.versions.Version(ctx, cache.TopicInventory)
	if err != nil {
		log.Printf("[CACHE] request_id=%s inventory version unavailable, reading through: %v", requestid.From(ctx), err)
		version = -1
	}

	if version >= 0 {
		s.cache.mu.RLock()
		cached, exists := s.cache.items[id]
		s.cache.mu.RUnlock()
		if exists && cached.version == version && time.Now().Before(cached.expires) {
			s.lc.metrics.CacheHits.Add(ctx, 1, metric.WithAttributes(s.lc.metrics.WithServiceName(nil)...))
			return &cached.product, nil
		}
	}
	s.lc.metrics.CacheMisses.Add(ctx, 1, metric.WithAttributes(s.lc.metrics.WithServiceName(nil)...))

	p, err := s.lc.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if version >= 0 {
		s.cache.mu.Lock()
		s.cache.items[id] = cachedProduct{product: *p, version: version, expires: time.Now().Add(productCacheTTL)}
		s.cache.mu.Unlock()
	}
	s.lc.metrics.RecordStockLevel(ctx, id.String(), p.StockQuantity)
	return p, nil
}

// AdjustStock adds delta units (negative removes) to a product's stock.
// Removing more than is available fails with InsufficientStockError.
func (s *ProductService) AdjustStock(ctx context.Context, p models.Principal, id uuid.UUID, delta int, reason string) (*models.Product, error) {
	if !p.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if delta == 0 {
		return nil, models.ErrInvalidQuantity
	}

	var product *models.Product
	err := s.lc.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if delta > 0 {
			err = s.lc.ledger.Restock(ctx, tx, id, delta)
		} else {
			_, err = s.lc.ledger.Reserve(ctx, tx, id, -delta)
		}
		if err != nil {
			return err
		}
		if err := s.lc.audit(ctx, tx, "STOCK_ADJUSTED", "product", id.String(), ActorFor(p, fmt.Sprintf("%+d: %s", delta, reason))); err != nil {
			return err
		}
		product, err = tx.GetProduct(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.lc.invalidate(ctx, cache.TopicInventory)
	log.Printf("[INVENTORY] request_id=%s product %s adjusted by %+d to %d", requestid.From(ctx), id, delta, product.StockQuantity)
	return product, nil
}

// Package coord provides the keyed mutual-exclusion lock and the
// set-once idempotency store shared by every replica of the service.
package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/SigNoz/checkout-service/internal/models"
)

const (
	lockKeyPrefix        = "ecom:lock:"
	idempotencyKeyPrefix = "ecom:idempotency:"

	pollInterval = 50 * time.Millisecond
)

// Locker hands out exclusive leases on a key.
type Locker interface {
	// Acquire waits at most wait for the key. The lease expires after ttl
	// even if never released. Returns models.ErrLockTimeout on timeout.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Guard, error)
}

// Guard is a held lease.
type Guard interface {
	// Release frees the lease if it is still ours. Safe to call twice.
	Release(ctx context.Context) error
}

// IdempotencyStore is an atomic set-if-absent with expiry.
type IdempotencyStore interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// acquireLoop retries try until it succeeds, wait elapses or ctx is done.
func acquireLoop(ctx context.Context, key string, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := try()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("acquire lock %s after %s: %w", key, wait, models.ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

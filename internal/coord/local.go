package coord

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is an in-process Locker for single-replica runs and tests.
// It honours ttl the same way Redis does.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]lease), now: time.Now}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Guard, error) {
	token := uuid.NewString()
	err := acquireLoop(ctx, key, wait, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		now := l.now()
		if cur, held := l.leases[key]; held && now.Before(cur.expires) {
			return false, nil
		}
		l.leases[key] = lease{token: token, expires: now.Add(ttl)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &localGuard{locker: l, key: key, token: token}, nil
}

type localGuard struct {
	locker *LocalLocker
	key    string
	token  string
}

func (g *localGuard) Release(context.Context) error {
	g.locker.mu.Lock()
	defer g.locker.mu.Unlock()

	if cur, held := g.locker.leases[g.key]; held && cur.token == g.token {
		delete(g.locker.leases, g.key)
	}
	return nil
}

// LocalIdempotency is an in-process IdempotencyStore. Expired keys are
// pruned at most once per pruneEvery.
type LocalIdempotency struct {
	mu        sync.Mutex
	keys      map[string]time.Time
	now       func() time.Time
	nextPrune time.Time
}

const pruneEvery = time.Minute

func NewLocalIdempotency() *LocalIdempotency {
	return &LocalIdempotency{keys: make(map[string]time.Time), now: time.Now}
}

func (s *LocalIdempotency) SetIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !now.Before(s.nextPrune) {
		for k, exp := range s.keys {
			if !now.Before(exp) {
				delete(s.keys, k)
			}
		}
		s.nextPrune = now.Add(pruneEvery)
	}
	if exp, ok := s.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.keys[key] = now.Add(ttl)
	return true, nil
}

func (s *LocalIdempotency) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

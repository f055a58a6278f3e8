package coord

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deletes the lock only if the caller still owns it.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lease lock (SET NX PX + token).
type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Guard, error) {
	fullKey := lockKeyPrefix + key
	token := uuid.NewString()

	err := acquireLoop(ctx, key, wait, func() (bool, error) {
		return l.client.SetNX(ctx, fullKey, token, ttl).Result()
	})
	if err != nil {
		return nil, err
	}
	return &redisGuard{client: l.client, key: fullKey, token: token}, nil
}

type redisGuard struct {
	client redis.UniversalClient
	key    string
	token  string
	once   sync.Once
}

func (g *redisGuard) Release(ctx context.Context) error {
	var err error
	g.once.Do(func() {
		err = releaseLockScript.Run(ctx, g.client, []string{g.key}, g.token).Err()
		if errors.Is(err, redis.Nil) {
			err = nil
		}
	})
	return err
}

// RedisIdempotency stores claimed keys with SET NX EX.
type RedisIdempotency struct {
	client redis.UniversalClient
}

func NewRedisIdempotency(client redis.UniversalClient) *RedisIdempotency {
	return &RedisIdempotency{client: client}
}

func (s *RedisIdempotency) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *RedisIdempotency) Forget(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

// Package cache versions cached read models by topic. Readers embed the
// topic version in their cache keys; bumping it invalidates every entry.
package cache

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

const versionKeyPrefix = "ecom:cache:version:"

// Topics invalidated by this service
const (
	TopicInventory = "inventory"
	TopicPromos    = "promos"
)

// Invalidator bumps the version of a cache topic.
type Invalidator interface {
	Invalidate(ctx context.Context, topic string) error
}

// Versions is an Invalidator whose current versions can be read back.
type Versions interface {
	Invalidator
	Version(ctx context.Context, topic string) (int64, error)
}

// RedisVersions keeps topic versions as Redis counters.
type RedisVersions struct {
	client redis.UniversalClient
}

func NewRedisVersions(client redis.UniversalClient) *RedisVersions {
	return &RedisVersions{client: client}
}

func (v *RedisVersions) Invalidate(ctx context.Context, topic string) error {
	return v.client.Incr(ctx, versionKeyPrefix+topic).Err()
}

// Version returns the current version of topic, 0 if never bumped.
func (v *RedisVersions) Version(ctx context.Context, topic string) (int64, error) {
	n, err := v.client.Get(ctx, versionKeyPrefix+topic).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// LocalVersions is the in-process Invalidator.
type LocalVersions struct {
	mu       sync.Mutex
	versions map[string]int64
}

func NewLocalVersions() *LocalVersions {
	return &LocalVersions{versions: make(map[string]int64)}
}

func (v *LocalVersions) Invalidate(_ context.Context, topic string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.versions[topic]++
	return nil
}

func (v *LocalVersions) Version(_ context.Context, topic string) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.versions[topic], nil
}

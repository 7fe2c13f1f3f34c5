package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupCache remembers which normalized names discovery has already handled,
// so repeated pipeline runs over the same schedule data do not re-geocode.
// It is an optimization only; losing it costs API calls, not correctness.
type DedupCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// MemoryDedup is the in-process TTL implementation.
type MemoryDedup struct {
	ttl  time.Duration
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryDedup builds an in-memory dedup cache.
func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	return &MemoryDedup{ttl: ttl, seen: make(map[string]time.Time)}
}

func (m *MemoryDedup) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.seen[key]
	if !ok {
		return false, nil
	}
	if time.Since(at) > m.ttl {
		delete(m.seen, key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryDedup) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[key] = time.Now()
	return nil
}

// RedisDedup shares the seen-set across hosts when discovery runs are
// distributed. Failures degrade to "not seen" so a redis outage never blocks
// the pipeline.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedup builds a redis-backed dedup cache.
func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	return &RedisDedup{client: client, ttl: ttl}
}

func (r *RedisDedup) key(key string) string {
	return "venueatlas:discovered:" + key
}

func (r *RedisDedup) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

func (r *RedisDedup) Mark(ctx context.Context, key string) error {
	return r.client.Set(ctx, r.key(key), "1", r.ttl).Err()
}

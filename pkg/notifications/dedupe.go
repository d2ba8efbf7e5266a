package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper claims keys for a limited time. Claim reports true only for the
// first caller of a key within ttl. Release drops a claim so the key can be
// claimed again.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisDeduper claims keys with SET NX so every replica of the service
// shares one set of sent notifications.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisDeduper creates a RedisDeduper. Keys are stored under prefix.
func NewRedisDeduper(client redis.UniversalClient, prefix string) *RedisDeduper {
	if prefix == "" {
		prefix = "meterkit:notified:"
	}
	return &RedisDeduper{client: client, prefix: prefix}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("notifications: claim %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("notifications: release %s: %w", key, err)
	}
	return nil
}

// MemoryDeduper is a process-local Deduper.
type MemoryDeduper struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewMemoryDeduper creates a MemoryDeduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{claims: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if until, ok := d.claims[key]; ok && now.Before(until) {
		return false, nil
	}
	d.claims[key] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, key)
	return nil
}

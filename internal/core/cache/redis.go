package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a best-effort read-through byte cache. Redis errors degrade to
// calling the loader; they are never returned to the caller.
type Cache struct {
	RDB *redis.Client
	sf  singleflight.Group

	// gens counts invalidations per key. A load only writes back if no
	// invalidation happened while it ran.
	mu   sync.Mutex
	gens map[string]uint64
}

func New(addr, pass string, db int) *Cache {
	return &Cache{
		RDB:  redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}),
		gens: make(map[string]uint64),
	}
}

func (c *Cache) Ping(ctx context.Context) error { return c.RDB.Ping(ctx).Err() }

func (c *Cache) Close() error { return c.RDB.Close() }

func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if b, err := c.RDB.Get(ctx, key).Bytes(); err == nil {
		return b, nil
	}
	// collapse concurrent misses on the same key into one load
	v, err, _ := c.sf.Do(key, func() (any, error) {
		gen := c.generation(key)
		b, e := load(ctx)
		if e != nil {
			return nil, e
		}
		if c.generation(key) != gen {
			return b, nil
		}
		_ = c.RDB.Set(ctx, key, b, ttl).Err()
		// an Invalidate between the check and the SET may have run its DEL first
		if c.generation(key) != gen {
			_ = c.RDB.Del(ctx, key).Err()
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops keys and stops loads already in flight from writing them
// back. A redis failure leaves stale entries until their TTL runs out.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	c.mu.Lock()
	for _, k := range keys {
		c.gens[k]++
	}
	c.mu.Unlock()
	for _, k := range keys {
		c.sf.Forget(k)
	}
	return c.RDB.Del(ctx, keys...).Err()
}

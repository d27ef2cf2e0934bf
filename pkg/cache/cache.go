package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// item is a cached value with its expiry.
type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL support. Expired entries
// are dropped lazily on access and swept whenever a new key is stored.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	items      map[K]*item[V]
	defaultTTL time.Duration
	clock      clock.Clock
}

// New creates a cache whose entries live for defaultTTL. A nil clock means
// wall time.
func New[K comparable, V any](defaultTTL time.Duration, clk clock.Clock) *Cache[K, V] {
	if clk == nil {
		clk = clock.New()
	}
	return &Cache[K, V]{
		items:      make(map[K]*item[V]),
		defaultTTL: defaultTTL,
		clock:      clk,
	}
}

// Get retrieves a live value.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.clock.Now().Before(it.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores a value with the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if _, exists := c.items[key]; !exists {
		c.sweepLocked(now)
	}
	c.items[key] = &item[V]{value: value, expiresAt: now.Add(ttl)}
}

func (c *Cache[K, V]) sweepLocked(now time.Time) {
	for k, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, k)
		}
	}
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*item[V])
}

// Size returns the number of stored entries, expired ones included until
// they are swept.
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// GetOrSet returns the cached value for key or loads and caches it. Load
// errors are returned and not cached. Concurrent misses may load twice.
func (c *Cache[K, V]) GetOrSet(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, value)
	return value, nil
}

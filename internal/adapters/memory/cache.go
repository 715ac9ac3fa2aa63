package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process ports.CacheService used when no Valkey address
// is configured. Suitable for single-instance deployments and tests;
// entries are not shared across API instances.
type Cache struct {
	mu    sync.RWMutex
	items map[string]entry
	stop  chan struct{}
}

// NewCache creates an in-process cache with a background sweeper.
func NewCache() *Cache {
	c := &Cache{
		items: make(map[string]entry),
		stop:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get retrieves a value by key. A missing or expired key is a nil
// value, not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.value, nil
}

// Set stores a value with a TTL in seconds.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	c.items[key] = entry{value: value, expiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second)}
	c.mu.Unlock()
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Close stops the sweeper.
func (c *Cache) Close() {
	close(c.stop)
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, e := range c.items {
				if now.After(e.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

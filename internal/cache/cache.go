package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory TTL map. A janitor goroutine evicts expired
// entries until Close is called.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
	ttl   time.Duration
	now   func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// New returns a cache whose entries live for ttl. cleanupEvery <= 0 disables the janitor.
func New[V any](ttl, cleanupEvery time.Duration) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if cleanupEvery > 0 {
		go c.cleanupLoop(cleanupEvery)
	}
	return c
}

func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.now().After(item.expiresAt) {
		c.mu.Lock()
		// A concurrent Set may have refreshed the entry.
		if cur, ok := c.items[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor. Safe to call more than once.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// ABOUTME: Thread-safe TTL cache for event fingerprints
// ABOUTME: Backs duplicate suppression and the welcome cooldown

package guard

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited set of recently seen keys.
// A doubly-linked list keeps insertion order so eviction at capacity is O(1).
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewCache creates a cache with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Seen atomically checks whether the key was seen within the TTL and marks
// it if not. Returns true for an already-seen key. The check-and-mark is a
// single critical section so concurrent callers cannot both see "new".
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.seen[key]; ok && now.Sub(entry.timestamp) < c.ttl {
		return true
	}

	c.markLocked(key, now)
	return false
}

// markLocked records the key. Must be called with mu held.
func (c *Cache) markLocked(key string, now time.Time) {
	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		front := c.order.Front()
		if front != nil {
			evicted, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, evicted)
		}
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{timestamp: now, element: elem}
}

// Forget removes the key so a later Seen treats it as new.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok {
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}

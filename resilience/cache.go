package resilience

import (
	"container/list"
	"sync"
	"time"
)

// Cache is the interface the client caches responses through. TTLCache is the
// default implementation; anything honoring these semantics may be plugged in
// via WithCustomCache.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Delete(key string)
	Clear()
	Stats() CacheStats
}

// CacheStats is a point-in-time snapshot of a cache's counters. Hit and miss
// counters persist across evictions and Clear.
type CacheStats struct {
	Size     int
	Capacity int
	Hits     uint64
	Misses   uint64
	HitRate  float64
	TTL      time.Duration
}

// cacheEntry pairs a value with its insertion time. Entries are owned
// exclusively by their cache and die on expiry, eviction or overwrite.
type cacheEntry struct {
	key        string
	value      any
	insertedAt time.Time
}

// TTLCache is a bounded key/value store with per-instance TTL and LRU
// eviction. All operations take a single exclusive lock, so interleaved
// callers observe a consistent total order and never a torn entry. Multiple
// independently configured instances may coexist, one per data-volatility
// class.
type TTLCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	hits     uint64
	misses   uint64
	now      func() time.Time
}

// NewTTLCache creates a cache holding at most capacity entries, each valid
// for ttl after insertion. Capacity below 1 is treated as 1.
func NewTTLCache(capacity int, ttl time.Duration) *TTLCache {
	if capacity < 1 {
		capacity = 1
	}
	return &TTLCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the stored value if present and fresh. A present-but-expired
// entry is removed and counted as a miss. A hit promotes the entry to most
// recently used.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.insertedAt) > c.ttl {
		c.order.Remove(elem)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.value, true
}

// Set inserts or overwrites the entry with the current timestamp and promotes
// it to most recently used. When the cache is full and the key is new, the
// least recently used entry is evicted first.
func (c *TTLCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.insertedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{
		key:        key,
		value:      value,
		insertedAt: c.now(),
	})
}

// Delete removes an entry if present.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

// Clear empties the cache. Hit and miss counters are untouched.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of live entries, including any not yet observed as
// expired.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of size, capacity, counters and hit rate. The hit
// rate is zero before any request has been made.
func (c *TTLCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:     c.order.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
		TTL:      c.ttl,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Package cache provides a thread-safe LRU cache of parse results keyed by
// source text.
//
// Parse results are immutable (binding state lives in side tables, never on
// tree nodes), so one cache may be shared by many engine instances: hosts
// that construct a separate engine per thread for the same expression text
// pay the parse cost once. The cache is opt-in via the engine's
// WithParseCache option.
//
// # Example
//
//	c := cache.New(1024)
//	res := c.GetOrParse("$a + 1", func() *parser.Result { return parser.Parse("$a + 1") })
package cache

import (
	"container/list"
	"sync"

	"github.com/syoyo/seexpr/pkg/parser"
)

// entry is a cache entry stored in the doubly-linked list.
type entry struct {
	key string
	res *parser.Result
}

// Cache is a thread-safe LRU (Least Recently Used) cache of parse results.
// Once the capacity is reached, the least recently accessed entry is evicted.
//
// Safe for concurrent use by multiple goroutines.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

// New creates a new LRU cache with the given capacity.
// capacity must be > 0; if <= 0, a default of 256 is used.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Get retrieves a parse result from the cache.
// Returns (res, true) if found and moves the entry to front (MRU).
// Returns (nil, false) if not present.
func (c *Cache) Get(key string) (*parser.Result, bool) {
	c.mu.RLock()
	el, ok := c.items[key]
	// If the element is already at the front, skip the write lock entirely.
	alreadyFront := ok && c.ll.Front() == el
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !alreadyFront {
		// Promote to front under write lock; re-check in case of concurrent
		// eviction.
		c.mu.Lock()
		el, ok = c.items[key]
		if ok {
			c.ll.MoveToFront(el)
		}
		c.mu.Unlock()

		if !ok {
			return nil, false
		}
	}
	return el.Value.(*entry).res, true
}

// Set inserts or replaces a parse result in the cache.
// If at capacity, the least recently used entry is evicted first.
func (c *Cache) Set(key string, res *parser.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).res = res
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		c.evictLocked()
	}

	el := c.ll.PushFront(&entry{key: key, res: res})
	c.items[key] = el
}

// GetOrParse retrieves the result for key from the cache, or calls parse()
// to produce it, caches the result, and returns it. Failed parses are
// cached too: a syntax error for a given text is as stable as a tree.
func (c *Cache) GetOrParse(key string, parse func() *parser.Result) *parser.Result {
	if res, ok := c.Get(key); ok {
		return res
	}
	res := parse()
	c.Set(key, res)
	return res
}

// Len returns the number of entries currently in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	n := len(c.items)
	c.mu.RUnlock()
	return n
}

// Capacity returns the maximum number of entries the cache can hold.
func (c *Cache) Capacity() int {
	return c.capacity
}

// Invalidate removes a single entry from the cache.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element, c.capacity)
}

// evictLocked removes the least recently used entry.
// Must be called with c.mu held for writing.
func (c *Cache) evictLocked() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

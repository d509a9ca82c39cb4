package corrections

import (
	"container/list"
	"sync"

	"github.com/paulmach/orb/maptile"
)

// DefaultMaxFeatures bounds the cache when no explicit limit is given.
const DefaultMaxFeatures = 25000

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Features  int
}

type cacheEntry struct {
	tile     maptile.Tile
	result   Result
	features int
}

// Cache holds decoded corrections per tile coordinate. Its size is measured in
// features, not tiles; least recently used entries are evicted first. A Result
// is never modified after insertion, so readers holding one are unaffected by
// eviction.
type Cache struct {
	mu          sync.Mutex
	maxFeatures int
	total       int
	lru         *list.List
	entries     map[maptile.Tile]*list.Element
	stats       Stats
}

// NewCache returns a cache bounded to maxFeatures features, or
// DefaultMaxFeatures when maxFeatures is not positive.
func NewCache(maxFeatures int) *Cache {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &Cache{
		maxFeatures: maxFeatures,
		lru:         list.New(),
		entries:     make(map[maptile.Tile]*list.Element),
	}
}

// Get returns the cached result for t and marks it as recently used.
func (c *Cache) Get(t maptile.Tile) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[t]; ok {
		c.lru.MoveToFront(e)
		c.stats.Hits++
		return e.Value.(*cacheEntry).result, true
	}
	c.stats.Misses++
	return nil, false
}

// Put stores r for t, replacing any previous entry, then evicts until the
// feature total is back within the limit.
func (c *Cache) Put(t maptile.Tile, r Result) {
	n := r.Count()
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[t]; ok {
		old := e.Value.(*cacheEntry)
		c.total += n - old.features
		old.result, old.features = r, n
		c.lru.MoveToFront(e)
	} else {
		c.entries[t] = c.lru.PushFront(&cacheEntry{tile: t, result: r, features: n})
		c.total += n
	}
	c.evict()
}

func (c *Cache) evict() {
	for c.total > c.maxFeatures {
		back := c.lru.Back()
		if back == nil {
			return
		}
		ent := back.Value.(*cacheEntry)
		c.lru.Remove(back)
		delete(c.entries, ent.tile)
		c.total -= ent.features
		c.stats.Evictions++
	}
}

// SetMaxFeatures changes the limit. The cache is not shrunk now; the new limit
// applies from the next insertion. n <= 0 restores DefaultMaxFeatures.
func (c *Cache) SetMaxFeatures(n int) {
	if n <= 0 {
		n = DefaultMaxFeatures
	}
	c.mu.Lock()
	c.maxFeatures = n
	c.mu.Unlock()
}

// MaxFeatures returns the current limit.
func (c *Cache) MaxFeatures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxFeatures
}

// TotalFeatures returns the number of features currently held.
func (c *Cache) TotalFeatures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.lru.Init()
	c.entries = make(map[maptile.Tile]*list.Element)
	c.total = 0
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	s.Features = c.total
	return s
}

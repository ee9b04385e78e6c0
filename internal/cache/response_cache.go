// Package cache implements the version-keyed response cache. An entry is
// valid only while the graph version it was stored under equals the version
// supplied at lookup time, so every store mutation implicitly invalidates
// every previously cached answer without explicit eviction. This is the
// mechanism that structurally prevents stale answers to a repeated question
// after the graph changed.
package cache

import (
	"container/list"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"agentdb-backend/internal/observability"
)

// Entry is one memoized response.
type Entry struct {
	QueryKey     string `json:"query_key"`
	GraphVersion int64  `json:"graph_version"`
	Payload      any    `json:"payload"`
}

// Stats holds cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Items     int     `json:"items"`
	HitRate   float64 `json:"hit_rate"`
}

type item struct {
	entry      Entry
	lruElement *list.Element
}

// ResponseCache memoizes opaque responses keyed by (query, graph version)
// with LRU eviction. Thread-safe.
type ResponseCache struct {
	mu       sync.Mutex
	items    map[string]*item
	lruList  *list.List
	maxItems int

	hits      int64
	misses    int64
	evictions int64

	metrics *observability.Metrics
	logger  *zap.Logger
}

// New creates a cache bounded to maxItems entries. A non-positive bound
// defaults to 256.
func New(maxItems int, metrics *observability.Metrics, logger *zap.Logger) *ResponseCache {
	if maxItems <= 0 {
		maxItems = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseCache{
		items:    make(map[string]*item),
		lruList:  list.New(),
		maxItems: maxItems,
		metrics:  metrics,
		logger:   logger,
	}
}

// CacheResponse stores the payload under (queryKey, graphVersion), replacing
// any entry for the same pair and evicting the least recently used entry
// when the bound is reached.
func (c *ResponseCache) CacheResponse(queryKey string, graphVersion int64, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := compositeKey(queryKey, graphVersion)
	if existing, ok := c.items[key]; ok {
		c.removeLocked(existing, key)
	}

	for len(c.items) >= c.maxItems && c.lruList.Len() > 0 {
		oldest := c.lruList.Back()
		oldKey := oldest.Value.(string)
		c.removeLocked(c.items[oldKey], oldKey)
		c.evictions++
		if c.metrics != nil {
			c.metrics.CacheEvictions.Inc()
		}
	}

	it := &item{entry: Entry{QueryKey: queryKey, GraphVersion: graphVersion, Payload: payload}}
	it.lruElement = c.lruList.PushFront(key)
	c.items[key] = it
}

// CheckCache returns the payload stored under (queryKey, graphVersion), or
// (nil, false) on any miss, including a version mismatch.
func (c *ResponseCache) CheckCache(queryKey string, graphVersion int64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[compositeKey(queryKey, graphVersion)]
	if !ok {
		c.misses++
		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}
		return nil, false
	}

	c.lruList.MoveToFront(it.lruElement)
	c.hits++
	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
	return it.entry.Payload, true
}

// Clear drops every entry, e.g. on full system load.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := len(c.items)
	c.items = make(map[string]*item)
	c.lruList.Init()
	if count > 0 {
		c.logger.Debug("response cache cleared", zap.Int("entries", count))
	}
}

// GetStats returns cache counters.
func (c *ResponseCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := float64(0)
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Items:     len(c.items),
		HitRate:   hitRate,
	}
}

func (c *ResponseCache) removeLocked(it *item, key string) {
	if it == nil {
		return
	}
	if it.lruElement != nil {
		c.lruList.Remove(it.lruElement)
	}
	delete(c.items, key)
}

func compositeKey(queryKey string, graphVersion int64) string {
	return fmt.Sprintf("%s@%d", queryKey, graphVersion)
}

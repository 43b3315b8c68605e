package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meter-route-service/internal/observability"
)

// HistoryFetcher is the history half of the persistence client.
type HistoryFetcher interface {
	FetchMeterHistory(ctx context.Context, meterID, routeID string) (map[string]any, error)
}

// CachedHistory wraps a HistoryFetcher with an in-memory LRU cache. An entry
// is served for at most ttl after it was fetched; a ttl of zero never expires.
type CachedHistory struct {
	inner   HistoryFetcher
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedHistory creates a cache decorator around a history fetcher.
func NewCachedHistory(inner HistoryFetcher, maxEntries int, ttl time.Duration, metrics *observability.Metrics) *CachedHistory {
	return &CachedHistory{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clockwork.NewRealClock(),
		metrics: metrics,
	}
}

func (c *CachedHistory) FetchMeterHistory(ctx context.Context, meterID, routeID string) (map[string]any, error) {
	key := routeID + "|" + meterID
	if history, fetchedAt, ok := c.cache.get(key); ok {
		if c.ttl <= 0 || c.clock.Since(fetchedAt) < c.ttl {
			c.metrics.HistoryCache.WithLabelValues("hit").Inc()
			return history, nil
		}
		c.metrics.HistoryCache.WithLabelValues("expired").Inc()
	} else {
		c.metrics.HistoryCache.WithLabelValues("miss").Inc()
	}

	history, err := c.inner.FetchMeterHistory(ctx, meterID, routeID)
	if err != nil {
		return nil, err
	}
	// Empty histories are not cached so a meter whose data arrives later is refetched.
	if len(history) > 0 {
		c.cache.put(key, history, c.clock.Now())
	}
	return history, nil
}

// lruCache is a thread-safe LRU of raw histories. Cached maps are shared and
// must not be mutated by callers.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     map[string]any
	fetchedAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (map[string]any, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	c.moveToFront(e)
	return e.value, e.fetchedAt, true
}

func (c *lruCache) put(key string, value map[string]any, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.fetchedAt = fetchedAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, fetchedAt: fetchedAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}

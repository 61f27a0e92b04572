// Package cache holds short-lived per-account state: replayable idempotent
// responses and rate-limit counters.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// LRUCache is the in-process cache: the community-tier backend and the
// local layer of TwoPhaseCache. Values and counters share one LRU list
// bounded by maxSize.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
}

type entry struct {
	key       string
	value     []byte
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the value for key, or nil when absent or expired.
func (c *LRUCache) Get(ctx context.Context, accountID string, key string) ([]byte, error) {
	if accountID == "" {
		return nil, domain.ErrNoAccount
	}

	c.mu.Lock()
	e := c.live(domain.CacheKey(accountID, key), time.Now())
	c.mu.Unlock()

	metrics.ObserveLookup("local", e != nil)
	if e == nil {
		return nil, nil
	}
	return e.value, nil
}

// Set stores value for ttl, replacing any previous value.
func (c *LRUCache) Set(ctx context.Context, accountID string, key string, value []byte, ttl time.Duration) error {
	if accountID == "" {
		return domain.ErrNoAccount
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(domain.CacheKey(accountID, key), time.Now().Add(ttl)).value = value
	return nil
}

// Delete removes key.
func (c *LRUCache) Delete(ctx context.Context, accountID string, key string) error {
	if accountID == "" {
		return domain.ErrNoAccount
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[domain.CacheKey(accountID, key)]; ok {
		c.remove(elem)
	}
	return nil
}

// IncrementCounter bumps a fixed-window counter. An evicted counter starts
// a new window.
func (c *LRUCache) IncrementCounter(ctx context.Context, accountID string, key string, window time.Duration) (int64, error) {
	if accountID == "" {
		return 0, domain.ErrNoAccount
	}

	fullKey := domain.CacheKey(accountID, counterPrefix+key)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.live(fullKey, now)
	if e == nil {
		e = c.put(fullKey, now.Add(window))
	}
	e.count++
	return e.count, nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Stats returns the number of entries and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

// live returns the unexpired entry for key and marks it recently used.
func (c *LRUCache) live(key string, now time.Time) *entry {
	elem, ok := c.items[key]
	if !ok {
		return nil
	}
	e := elem.Value.(*entry)
	if now.After(e.expiresAt) {
		c.remove(elem)
		return nil
	}
	c.order.MoveToFront(elem)
	return e
}

// put installs a fresh entry for key and evicts from the back past capacity.
func (c *LRUCache) put(key string, expiresAt time.Time) *entry {
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	e := &entry{key: key, expiresAt: expiresAt}
	c.items[key] = c.order.PushFront(e)
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return e
}

func (c *LRUCache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}

package repository

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/okian/loopfeed/pkg/metrics"
)

type memoryItem struct {
	key   string
	entry Entry
}

// MemoryCache is an in-process LRU cache.
type MemoryCache struct {
	mu    sync.Mutex
	size  int
	items map[string]*list.Element
	lru   *list.List // most recently used at front

	wg       sync.WaitGroup
	stopChan chan struct{}
	closed   bool
}

// NewMemoryCache creates an LRU cache and starts its metrics updater, which
// stops when ctx is done or the cache is closed.
func NewMemoryCache(ctx context.Context, opts ...Option) *MemoryCache {
	cfg := newCacheConfig(opts)
	c := &MemoryCache{
		size:     cfg.size,
		items:    make(map[string]*list.Element, cfg.size),
		lru:      list.New(),
		stopChan: make(chan struct{}),
	}
	c.startMetricsUpdater(ctx, cfg.metricsUpdateInterval)
	return c
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Entry{}, ErrCacheClosed
	}
	el, ok := c.items[key]
	if !ok {
		return Entry{}, ErrCacheMiss
	}
	c.lru.MoveToFront(el)
	return el.Value.(*memoryItem).entry, nil
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if el, ok := c.items[key]; ok {
		el.Value.(*memoryItem).entry = e
		c.lru.MoveToFront(el)
		return nil
	}
	for len(c.items) >= c.size {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*memoryItem).key)
	}
	c.items[key] = c.lru.PushFront(&memoryItem{key: key, entry: e})
	return nil
}

// Evict implements Cache.
func (c *MemoryCache) Evict(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.lru.Remove(el)
		delete(c.items, key)
	}
	return nil
}

// Len implements Cache.
func (c *MemoryCache) Len(context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close stops the metrics updater and drops every entry.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stopChan)
	c.items = map[string]*list.Element{}
	c.lru.Init()
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *MemoryCache) startMetricsUpdater(ctx context.Context, interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateCacheEntries(c.Len(ctx))
			}
		}
	}()
}

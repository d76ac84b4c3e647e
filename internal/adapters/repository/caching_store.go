package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/adapters/mq/queue"
	"github.com/okian/loopfeed/internal/domain/dedupe"
	"github.com/okian/loopfeed/internal/feed"
	"github.com/okian/loopfeed/pkg/logger"
	"github.com/okian/loopfeed/pkg/metrics"
)

// Cache lookup results reported to metrics.
const (
	LookupHit   = "hit"
	LookupStale = "stale"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Refresher accepts background refresh jobs.
type Refresher interface {
	Enqueue(ctx context.Context, j queue.Job) error
}

// CachingStore serves queries from a Cache in front of another store. A
// fresh entry is returned as is. A stale entry is returned immediately and a
// refresh is scheduled on the Refresher; the read and the refresh share only
// the cache. A miss queries the inner store synchronously.
type CachingStore struct {
	inner     feed.Store
	cache     Cache
	refresher Refresher
	ttl       time.Duration
	now       func() time.Time
	log       logger.Logger

	inflight dedupe.Set
}

// NewCachingStore wraps inner with cache.
func NewCachingStore(inner feed.Store, cache Cache, opts ...StoreOption) *CachingStore {
	s := &CachingStore{
		inner:    inner,
		cache:    cache,
		ttl:      defaultTTL,
		now:      time.Now,
		log:      logger.Named("cache"),
		inflight: dedupe.NewSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SupportsRankHints implements feed.Store.
func (s *CachingStore) SupportsRankHints() bool { return s.inner.SupportsRankHints() }

// Query implements feed.Store.
func (s *CachingStore) Query(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error) {
	key := Key(filters)

	entry, err := s.cache.Get(ctx, key)
	switch {
	case err == nil && entry.Age(s.now()) <= s.ttl:
		metrics.RecordCacheLookup(LookupHit)
		return entry.Events, nil
	case err == nil:
		metrics.RecordCacheLookup(LookupStale)
		if s.scheduleRefresh(ctx, key, filters) {
			return entry.Events, nil
		}
	case errors.Is(err, ErrCacheMiss):
		metrics.RecordCacheLookup(LookupMiss)
	default:
		metrics.RecordCacheLookup(LookupError)
		s.log.Warn(ctx, "cache read failed", logger.Error(err))
	}

	return s.fetch(ctx, key, filters)
}

// fetch queries the inner store and populates the cache.
func (s *CachingStore) fetch(ctx context.Context, key string, filters []nostr.Filter) ([]*nostr.Event, error) {
	events, err := s.inner.Query(ctx, filters)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, key, Entry{Events: events, StoredAt: s.now()}); err != nil {
		s.log.Warn(ctx, "cache write failed", logger.Error(err))
	}
	return events, nil
}

// scheduleRefresh enqueues a refresh of key unless one is already pending.
// It reports whether the stale entry may be served.
func (s *CachingStore) scheduleRefresh(ctx context.Context, key string, filters []nostr.Filter) bool {
	if s.refresher == nil {
		return false
	}
	if s.inflight.SeenAndRecord(key) {
		return true
	}
	job := queue.Job{
		Key: "refresh:" + key,
		Run: func(ctx context.Context) error {
			defer s.inflight.Unrecord(key)
			if _, err := s.fetch(ctx, key, filters); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			return nil
		},
	}
	if err := s.refresher.Enqueue(ctx, job); err != nil {
		s.inflight.Unrecord(key)
		s.log.Debug(ctx, "refresh not scheduled", logger.Error(err))
	}
	return true
}

// Invalidate drops the cached answer for a query.
func (s *CachingStore) Invalidate(ctx context.Context, filters []nostr.Filter) error {
	return s.cache.Evict(ctx, Key(filters))
}

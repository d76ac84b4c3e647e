package repository

import (
	"time"

	"github.com/okian/loopfeed/pkg/logger"
)

const (
	defaultCacheSize             = 2000
	defaultTTL                   = 30 * time.Second
	defaultMetricsUpdateInterval = 5 * time.Second
)

// Option configures a cache backend.
type Option func(*cacheConfig)

type cacheConfig struct {
	size                  int
	metricsUpdateInterval time.Duration
}

func newCacheConfig(opts []Option) cacheConfig {
	c := cacheConfig{size: defaultCacheSize, metricsUpdateInterval: defaultMetricsUpdateInterval}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithSize bounds the number of cached queries.
func WithSize(n int) Option {
	return func(c *cacheConfig) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(c *cacheConfig) {
		if interval > 0 {
			c.metricsUpdateInterval = interval
		}
	}
}

// StoreOption configures a CachingStore.
type StoreOption func(*CachingStore)

// WithTTL sets how long an entry is served without scheduling a refresh.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *CachingStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRefresher sets where stale-entry refreshes are scheduled. Without one,
// stale entries are refetched synchronously.
func WithRefresher(r Refresher) StoreOption {
	return func(s *CachingStore) {
		s.refresher = r
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) StoreOption {
	return func(s *CachingStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *CachingStore) {
		if now != nil {
			s.now = now
		}
	}
}

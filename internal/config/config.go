// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and LOOPFEED_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Relays lists the websocket URLs of the event stores to query.
	Relays []string `koanf:"relays"`
	// RankHints advertises that the relays honor NIP-50 "sort:" hints.
	RankHints bool `koanf:"rank_hints"`

	DefaultPageSize         int `koanf:"default_page_size"`
	MaxPageSize             int `koanf:"max_page_size"`
	TrendingInitialPageSize int `koanf:"trending_initial_page_size"`
	TrendingPageSize        int `koanf:"trending_page_size"`

	// Per-run upper bounds. Tag matching is slower on most relays.
	FeedTimeoutMS       int `koanf:"feed_timeout_ms"`
	TagFeedTimeoutMS    int `koanf:"tag_feed_timeout_ms"`
	ResolveTimeoutMS    int `koanf:"resolve_timeout_ms"`
	EngagementTimeoutMS int `koanf:"engagement_timeout_ms"`
	ResolveConcurrency  int `koanf:"resolve_concurrency"`

	// Background refresh intervals; zero disables.
	PersonalizedRefreshSec int `koanf:"personalized_refresh_sec"`
	RecentRefreshSec       int `koanf:"recent_refresh_sec"`

	// CacheBackend is "memory", "sqlite" or "none".
	CacheBackend string `koanf:"cache_backend"`
	CachePath    string `koanf:"cache_path"`
	CacheSize    int    `koanf:"cache_size"`
	CacheTTLMS   int    `koanf:"cache_ttl_ms"`

	RefreshWorkerCount int `koanf:"refresh_worker_count"`
	RefreshQueueSize   int `koanf:"refresh_queue_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		Relays:                  []string{"wss://relay.divine.video"},
		RankHints:               true,
		DefaultPageSize:         20,
		MaxPageSize:             100,
		TrendingInitialPageSize: 12,
		TrendingPageSize:        50,
		FeedTimeoutMS:           8_000,
		TagFeedTimeoutMS:        15_000,
		ResolveTimeoutMS:        3_000,
		EngagementTimeoutMS:     4_000,
		ResolveConcurrency:      8,
		PersonalizedRefreshSec:  600,
		RecentRefreshSec:        30,
		CacheBackend:            "memory",
		CachePath:               "loopfeed-cache.db",
		CacheSize:               2_000,
		CacheTTLMS:              30_000,
		RefreshWorkerCount:      4,
		RefreshQueueSize:        256,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case len(c.Relays) == 0:
		return fmt.Errorf("%w: at least one relay is required", ErrInvalidConfig)
	case c.DefaultPageSize < 1:
		return fmt.Errorf("%w: default_page_size must be positive", ErrInvalidConfig)
	case c.MaxPageSize < c.DefaultPageSize:
		return fmt.Errorf("%w: max_page_size must be >= default_page_size", ErrInvalidConfig)
	case c.FeedTimeoutMS < 1 || c.TagFeedTimeoutMS < 1:
		return fmt.Errorf("%w: feed timeouts must be positive", ErrInvalidConfig)
	}
	switch c.CacheBackend {
	case "memory", "sqlite", "none":
	default:
		return fmt.Errorf("%w: unknown cache_backend %q", ErrInvalidConfig, c.CacheBackend)
	}
	return nil
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts a second setting to a duration.
func Seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}

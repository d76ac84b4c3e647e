package filter

import "time"

// Default planning limits.
const (
	defaultPageSize                = 20
	defaultMaxPageSize             = 100
	defaultTrendingInitialPageSize = 12
	defaultTrendingPageSize        = 50
	defaultFeedTimeout             = 8 * time.Second
	defaultTagFeedTimeout          = 15 * time.Second
)

// Option configures a Builder.
type Option func(*Builder)

// WithPageSizes sets the default and maximum page sizes.
func WithPageSizes(def, maxSize int) Option {
	return func(b *Builder) {
		if def > 0 {
			b.pageSize = def
		}
		if maxSize > 0 {
			b.maxPageSize = maxSize
		}
	}
}

// WithTrendingPageSizes sets the trending first-page and paged sizes.
func WithTrendingPageSizes(initial, paged int) Option {
	return func(b *Builder) {
		if initial > 0 {
			b.trendingInitial = initial
		}
		if paged > 0 {
			b.trendingPaged = paged
		}
	}
}

// WithTimeouts sets the per-run timeout for tag feeds and for everything else.
func WithTimeouts(feed, tag time.Duration) Option {
	return func(b *Builder) {
		if feed > 0 {
			b.feedTimeout = feed
		}
		if tag > 0 {
			b.tagTimeout = tag
		}
	}
}

// WithRankHints tells the builder whether the store accepts server-side rank hints.
func WithRankHints(supported bool) Option {
	return func(b *Builder) {
		b.rankHints = supported
	}
}

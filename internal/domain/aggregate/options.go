package aggregate

import "github.com/okian/loopfeed/pkg/logger"

const defaultConcurrency = 8

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithResolver sets the network fallback for repost targets missing from the run.
func WithResolver(r Resolver) Option {
	return func(a *Aggregator) {
		a.resolver = r
	}
}

// WithConcurrency bounds concurrent reference resolutions.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}

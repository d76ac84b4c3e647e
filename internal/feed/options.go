package feed

import (
	"time"

	"github.com/okian/loopfeed/pkg/logger"
)

const (
	defaultResolveTimeout     = 3 * time.Second
	defaultEngagementTimeout  = 4 * time.Second
	defaultResolveConcurrency = 8
)

// Option configures an Engine.
type Option func(*Engine)

// WithResolveTimeout bounds each single-reference lookup.
func WithResolveTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.orch.resolveTimeout = d
		}
	}
}

// WithEngagementTimeout bounds the fallback engagement query.
func WithEngagementTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.orch.engagementTimeout = d
		}
	}
}

// WithResolveConcurrency bounds concurrent reference lookups in one run.
func WithResolveConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.resolveConcurrency = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
			e.orch.log = l
		}
	}
}

package service

import (
	"github.com/okian/loopfeed/internal/domain/filter"
	"github.com/okian/loopfeed/internal/feed"
	"github.com/okian/loopfeed/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore replaces the relay-backed event store. The service does not
// close a store supplied this way.
func WithStore(store feed.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithFollowResolver replaces the contact-list follow resolver.
func WithFollowResolver(r filter.FollowResolver) Option {
	return func(s *Service) {
		if r != nil {
			s.follows = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

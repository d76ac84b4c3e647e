package relay

import "github.com/okian/loopfeed/pkg/logger"

// Option configures a Store.
type Option func(*Store)

// WithRankHints marks the relays as accepting "sort:" search hints.
func WithRankHints(enabled bool) Option {
	return func(s *Store) {
		s.rankHints = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDialer replaces the relay connector, mainly for tests.
func WithDialer(d Dialer) Option {
	return func(s *Store) {
		if d != nil {
			s.dial = d
		}
	}
}

package dedupe

// Option configures a Set.
type Option func(*set)

// WithMaxSize bounds the set; once full, the oldest key is evicted.
// Zero or negative leaves the set unbounded.
func WithMaxSize(maxSize int) Option {
	return func(s *set) {
		s.maxSize = maxSize
	}
}

package relay

import "errors"

var (
	// ErrNoRelays is returned when a store is built without relay URLs.
	ErrNoRelays = errors.New("no relays configured")
	// ErrAllRelaysFailed is returned when no relay answered a query.
	ErrAllRelaysFailed = errors.New("all relays failed")
)

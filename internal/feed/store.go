package feed

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Store answers filter queries. Implementations may return events in any
// order, with duplicates.
type Store interface {
	Query(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error)
	// SupportsRankHints reports whether the store claims to honor "sort:"
	// search hints. Claims are verified per query.
	SupportsRankHints() bool
}

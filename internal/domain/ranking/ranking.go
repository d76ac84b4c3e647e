// Package ranking orders aggregated feed items.
package ranking

import (
	"math"
	"sort"

	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/domain/model"
)

// Comparator reports whether a ranks before b. Every comparator falls back to
// insertion order, so it is a strict total order over the items of one run.
type Comparator func(a, b *model.FeedItem) bool

// Chronological ranks by effective timestamp, newest first.
func Chronological(a, b *model.FeedItem) bool {
	if !a.EffectiveAt.Equal(b.EffectiveAt) {
		return a.EffectiveAt.After(b.EffectiveAt)
	}
	return Insertion(a, b)
}

// Popularity ranks by the publisher's loop count, then recency.
func Popularity(a, b *model.FeedItem) bool {
	if la, lb := a.Loops(), b.Loops(); la != lb {
		return la > lb
	}
	return Chronological(a, b)
}

// Engagement ranks by Score, which ApplyEngagement sets to loops plus counted
// interactions, then recency.
func Engagement(a, b *model.FeedItem) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return Chronological(a, b)
}

// Insertion keeps the order items entered the run, which for server-ranked
// queries is the store's order.
func Insertion(a, b *model.FeedItem) bool {
	return a.Sequence < b.Sequence
}

// Rank sorts items in place and truncates to pageSize when pageSize > 0.
func Rank(items []*model.FeedItem, less Comparator, pageSize int) []*model.FeedItem {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
	if pageSize > 0 && len(items) > pageSize {
		items = items[:pageSize]
	}
	return items
}

// ApplyEngagement records per-slug interaction counts and recomputes Score.
// Items absent from counts score their loops alone.
func ApplyEngagement(items []*model.FeedItem, counts map[string]int64) {
	for _, it := range items {
		it.Interactions = counts[it.Slug]
		it.Score = saturatingAdd(it.Loops(), it.Interactions)
	}
}

// saturatingAdd adds two non-negative counts, stopping at math.MaxInt64.
func saturatingAdd(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}

// LooksChronological reports whether a batch that was asked for a ranked
// order came back sorted by creation time instead, which means the store
// ignored the hint. Batches with fewer than two events prove nothing.
func LooksChronological(events []*nostr.Event) bool {
	if len(events) < 2 {
		return false
	}
	for i := 1; i < len(events); i++ {
		if events[i].CreatedAt > events[i-1].CreatedAt {
			return false
		}
	}
	return true
}

// Package repository caches store query results between feed runs.
package repository

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// Entry is one cached query answer.
type Entry struct {
	Events   []*nostr.Event
	StoredAt time.Time
}

// Age reports how long ago the entry was stored.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Cache is the event cache collaborator. Implementations are safe for
// concurrent use and bound their own size.
type Cache interface {
	// Get returns the entry for key or ErrCacheMiss.
	Get(ctx context.Context, key string) (Entry, error)
	// Put stores e under key, replacing any previous entry.
	Put(ctx context.Context, key string, e Entry) error
	// Evict removes key. Evicting a missing key is not an error.
	Evict(ctx context.Context, key string) error
	Len(ctx context.Context) int
	Close() error
}

// keyFilter is a filter with its map fields flattened so that the key does
// not depend on map iteration order.
type keyFilter struct {
	IDs     []string   `json:"ids,omitempty"`
	Kinds   []int      `json:"kinds,omitempty"`
	Authors []string   `json:"authors,omitempty"`
	Tags    [][]string `json:"tags,omitempty"`
	Since   int64      `json:"since,omitempty"`
	Until   int64      `json:"until,omitempty"`
	Limit   int        `json:"limit,omitempty"`
	Search  string     `json:"search,omitempty"`
}

// Key derives a stable cache key from a query.
func Key(filters []nostr.Filter) string {
	out := make([]keyFilter, len(filters))
	for i, f := range filters {
		k := keyFilter{
			IDs:     sorted(f.IDs),
			Kinds:   sorted(f.Kinds),
			Authors: sorted(f.Authors),
			Limit:   f.Limit,
			Search:  f.Search,
		}
		if f.Since != nil {
			k.Since = int64(*f.Since)
		}
		if f.Until != nil {
			k.Until = int64(*f.Until)
		}
		names := make([]string, 0, len(f.Tags))
		for name := range f.Tags {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			k.Tags = append(k.Tags, append([]string{name}, sorted(f.Tags[name])...))
		}
		out[i] = k
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

func sorted[T string | int](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

package testutil

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// Store is an in-memory event store for pipeline tests.
type Store struct {
	mu      sync.Mutex
	events  []*nostr.Event
	queries []nostr.Filter

	// Hints is returned by SupportsRankHints.
	Hints bool
	// HonorHints orders hinted queries by loop count instead of recency.
	HonorHints bool
	// Fail, when set, is consulted before every query.
	Fail func(f nostr.Filter) error
}

// NewStore creates a store holding events.
func NewStore(events ...*nostr.Event) *Store {
	return &Store{events: events}
}

// Add appends events to the store.
func (s *Store) Add(events ...*nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

// Query returns matching events, newest first, honoring each filter's limit.
func (s *Store) Query(ctx context.Context, filters []nostr.Filter) ([]*nostr.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*nostr.Event
	for _, f := range filters {
		s.queries = append(s.queries, f)
		if s.Fail != nil {
			if err := s.Fail(f); err != nil {
				return nil, err
			}
		}
		var matched []*nostr.Event
		for _, ev := range s.events {
			if f.Matches(ev) {
				matched = append(matched, ev)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt > matched[j].CreatedAt })
		if s.HonorHints && strings.HasPrefix(f.Search, "sort:") {
			sort.SliceStable(matched, func(i, j int) bool { return loops(matched[i]) > loops(matched[j]) })
		}
		if f.Limit > 0 && len(matched) > f.Limit {
			matched = matched[:f.Limit]
		}
		out = append(out, matched...)
	}
	return out, nil
}

// SupportsRankHints implements the store contract.
func (s *Store) SupportsRankHints() bool { return s.Hints }

// Queries returns the filters seen so far.
func (s *Store) Queries() []nostr.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]nostr.Filter(nil), s.queries...)
}

func loops(ev *nostr.Event) int64 {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == "loops" {
			n, _ := strconv.ParseInt(t[1], 10, 64)
			return n
		}
	}
	return 0
}

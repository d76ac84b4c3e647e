package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/internal/feed"
)

// FollowResolver reads follow sets from contact list events.
type FollowResolver struct {
	store feed.Store
}

// NewFollowResolver creates a resolver that queries store.
func NewFollowResolver(store feed.Store) *FollowResolver {
	return &FollowResolver{store: store}
}

// ResolveFollowSet returns the "p" entries of the viewer's newest contact list.
// A viewer without a contact list follows nobody.
func (r *FollowResolver) ResolveFollowSet(ctx context.Context, viewer string) ([]string, error) {
	events, err := r.store.Query(ctx, []nostr.Filter{{
		Kinds:   []int{model.KindContactList},
		Authors: []string{viewer},
		Limit:   1,
	}})
	if err != nil {
		return nil, fmt.Errorf("query contact list: %w", err)
	}

	var newest *nostr.Event
	for _, ev := range events {
		if ev.Kind != model.KindContactList || !strings.EqualFold(ev.PubKey, viewer) {
			continue
		}
		if newest == nil || ev.CreatedAt > newest.CreatedAt {
			newest = ev
		}
	}
	if newest == nil {
		return nil, nil
	}

	var out []string
	for _, tag := range newest.Tags {
		if len(tag) >= 2 && tag[0] == "p" && model.IsHexKey(tag[1]) {
			out = append(out, strings.ToLower(tag[1]))
		}
	}
	return out, nil
}

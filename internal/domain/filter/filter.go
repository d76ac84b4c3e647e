// Package filter turns feed requests into store query plans.
package filter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/okian/loopfeed/internal/domain/model"
)

// FollowResolver returns the identities a viewer follows.
type FollowResolver interface {
	ResolveFollowSet(ctx context.Context, viewer string) ([]string, error)
}

// Plan is the set of queries for one feed run.
type Plan struct {
	Type    model.FeedType
	Primary nostr.Filter
	// Reposts is the secondary repost query, nil when the plan has none.
	Reposts *nostr.Filter
	// Ranked is set when Primary carries a server-side rank hint.
	Ranked   bool
	Mode     model.RankMode
	Hint     string
	PageSize int
	Timeout  time.Duration
	// Empty plans issue no queries and yield an empty page.
	Empty bool
	// Direct plans fetch by id and skip reposts and reference resolution.
	Direct bool
	// IDs keeps the requested order of a direct lookup.
	IDs []string
}

// Builder plans store queries.
type Builder struct {
	follows FollowResolver

	pageSize        int
	maxPageSize     int
	trendingInitial int
	trendingPaged   int
	feedTimeout     time.Duration
	tagTimeout      time.Duration
	rankHints       bool
}

// NewBuilder creates a builder. follows may be nil when personalized feeds
// are not served.
func NewBuilder(follows FollowResolver, opts ...Option) *Builder {
	b := &Builder{
		follows:         follows,
		pageSize:        defaultPageSize,
		maxPageSize:     defaultMaxPageSize,
		trendingInitial: defaultTrendingInitialPageSize,
		trendingPaged:   defaultTrendingPageSize,
		feedTimeout:     defaultFeedTimeout,
		tagTimeout:      defaultTagFeedTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build plans the queries for req.
func (b *Builder) Build(ctx context.Context, req model.Request) (Plan, error) {
	if len(req.IDs) > 0 {
		req.Type = model.FeedLookup
	}
	if !req.Type.Valid() {
		return Plan{}, fmt.Errorf("%w: unknown feed type %q", ErrInvalidRequest, req.Type)
	}
	if req.PageSize < 0 {
		return Plan{}, fmt.Errorf("%w: negative page size", ErrInvalidRequest)
	}
	mode := req.RankMode
	if mode == "" {
		mode = model.DefaultRankMode(req.Type)
	}
	if !mode.Valid() {
		return Plan{}, fmt.Errorf("%w: unknown rank mode %q", ErrInvalidRequest, mode)
	}

	plan := Plan{
		Type:     req.Type,
		Mode:     mode,
		PageSize: b.pageSizeFor(req),
		Timeout:  b.feedTimeout,
	}
	primary := nostr.Filter{Kinds: model.VideoKinds, Limit: plan.PageSize}

	switch req.Type {
	case model.FeedLookup:
		ids := uniqueIDs(req.IDs)
		if len(ids) == 0 {
			return Plan{}, fmt.Errorf("%w: lookup without ids", ErrInvalidRequest)
		}
		plan.Direct = true
		plan.Mode = model.RankChronological
		plan.IDs = ids
		plan.PageSize = len(ids)
		plan.Primary = nostr.Filter{IDs: ids, Kinds: model.VideoKinds, Limit: len(ids)}
		return plan, nil
	case model.FeedTag:
		tag := normalizeTag(req.Tag)
		if tag == "" {
			return Plan{}, fmt.Errorf("%w: tag feed without tag", ErrInvalidRequest)
		}
		primary.Tags = nostr.TagMap{"t": {tag}}
		plan.Timeout = b.tagTimeout
	case model.FeedAuthor:
		author, ok := publicKey(req.Author)
		if !ok {
			return Plan{}, fmt.Errorf("%w: author must be a hex or npub public key", ErrInvalidRequest)
		}
		primary.Authors = []string{author}
	case model.FeedPersonalized:
		authors, err := b.followSet(ctx, req.Viewer)
		if err != nil {
			return Plan{}, err
		}
		if len(authors) == 0 {
			plan.Empty = true
			return plan, nil
		}
		primary.Authors = authors
	}

	if req.Cursor != nil {
		until := nostr.Timestamp(req.Cursor.Unix() - 1)
		primary.Until = &until
	}

	if mode.IsHint() && b.rankHints && hintable(req.Type) {
		plan.Ranked = true
		plan.Hint = "sort:" + string(mode)
		primary.Search = plan.Hint
	}
	plan.Primary = primary

	if !plan.Ranked {
		plan.Reposts = plan.repostFilter()
	}
	return plan, nil
}

// WithoutHint returns a copy of p that queries the store unranked, including
// the repost query unranked plans carry.
func (p Plan) WithoutHint() Plan {
	p.Ranked = false
	p.Hint = ""
	p.Primary.Search = ""
	if p.Reposts == nil {
		p.Reposts = p.repostFilter()
	}
	return p
}

// repostFilter selects reposts of videos by the primary query's authors.
// Tag feeds carry none since reposts hold no hashtags.
func (p Plan) repostFilter() *nostr.Filter {
	if p.Type == model.FeedTag || p.Direct {
		return nil
	}
	return &nostr.Filter{
		Kinds:   []int{model.KindRepost, model.KindGenericRepost},
		Authors: p.Primary.Authors,
		Tags:    nostr.TagMap{"k": videoKindStrings()},
		Until:   p.Primary.Until,
		Limit:   p.PageSize,
	}
}

func (b *Builder) pageSizeFor(req model.Request) int {
	size := req.PageSize
	if size == 0 {
		size = b.pageSize
	}
	if req.Type == model.FeedTrending {
		if req.Cursor == nil {
			size = min(size, b.trendingInitial)
		} else {
			size = max(size, b.trendingPaged)
		}
	}
	return min(size, b.maxPageSize)
}

func (b *Builder) followSet(ctx context.Context, viewer string) ([]string, error) {
	viewer, ok := publicKey(viewer)
	if !ok {
		return nil, fmt.Errorf("%w: personalized feed needs a hex or npub viewer key", ErrInvalidRequest)
	}
	if b.follows == nil {
		return nil, fmt.Errorf("%w: no follow resolver configured", ErrFollowSet)
	}
	follows, err := b.follows.ResolveFollowSet(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFollowSet, err)
	}
	authors := make([]string, 0, len(follows))
	seen := make(map[string]struct{}, len(follows))
	for _, f := range follows {
		f = strings.ToLower(strings.TrimSpace(f))
		if !model.IsHexKey(f) {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		authors = append(authors, f)
	}
	return authors, nil
}

// publicKey accepts a hex key or a NIP-19 npub and returns lowercase hex.
func publicKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "npub1") {
		prefix, value, err := nip19.Decode(s)
		if err != nil || prefix != "npub" {
			return "", false
		}
		s, _ = value.(string)
	}
	s = strings.ToLower(s)
	return s, model.IsHexKey(s)
}

func hintable(t model.FeedType) bool {
	switch t {
	case model.FeedDiscovery, model.FeedTrending, model.FeedTag, model.FeedPersonalized:
		return true
	}
	return false
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func videoKindStrings() []string {
	out := make([]string, len(model.VideoKinds))
	for i, k := range model.VideoKinds {
		out[i] = strconv.Itoa(k)
	}
	return out
}

package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/domain/dedupe"
	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/internal/domain/validate"
	"github.com/okian/loopfeed/pkg/logger"
	"github.com/okian/loopfeed/pkg/metrics"
)

// Query purposes reported to metrics.
const (
	PurposePrimary    = "primary"
	PurposeReposts    = "reposts"
	PurposeResolve    = "resolve"
	PurposeEngagement = "engagement"
)

// Orchestrator issues the store queries of one feed run.
type Orchestrator struct {
	store             Store
	log               logger.Logger
	resolveTimeout    time.Duration
	engagementTimeout time.Duration
}

// NewOrchestrator creates an orchestrator over store.
func NewOrchestrator(store Store) *Orchestrator {
	return &Orchestrator{
		store:             store,
		log:               logger.Get(),
		resolveTimeout:    defaultResolveTimeout,
		engagementTimeout: defaultEngagementTimeout,
	}
}

// Fetch runs the primary query. Any failure is wrapped with ErrPrimaryQuery.
func (o *Orchestrator) Fetch(ctx context.Context, f nostr.Filter) ([]*nostr.Event, error) {
	events, err := o.query(ctx, PurposePrimary, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrimaryQuery, err)
	}
	return events, nil
}

// FetchSecondary runs a best-effort query; failures yield no events.
func (o *Orchestrator) FetchSecondary(ctx context.Context, f nostr.Filter) []*nostr.Event {
	events, err := o.query(ctx, PurposeReposts, f)
	if err != nil {
		o.log.Warn(ctx, "repost query failed", logger.Error(err))
		return nil
	}
	return events
}

// ResolveReference fetches the newest valid content event at addr.
func (o *Orchestrator) ResolveReference(ctx context.Context, addr model.Address) (*model.ContentEvent, bool) {
	ctx, cancel := context.WithTimeout(ctx, o.resolveTimeout)
	defer cancel()

	events, err := o.query(ctx, PurposeResolve, nostr.Filter{
		Kinds:   []int{addr.Kind},
		Authors: []string{addr.Publisher},
		Tags:    nostr.TagMap{"d": {addr.Slug}},
	})
	if err != nil {
		o.log.Debug(ctx, "reference lookup failed",
			logger.String("address", addr.String()), logger.Error(err))
		return nil, false
	}

	var newest *model.ContentEvent
	for _, ev := range events {
		c := validate.Validate(ev).Content
		if c == nil || c.Address() != addr {
			continue
		}
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	return newest, newest != nil
}

// CountEngagement counts distinct reposts, positive reactions and zap
// receipts per target slug with a single query.
func (o *Orchestrator) CountEngagement(ctx context.Context, addrs []model.Address) (map[string]int64, error) {
	counts := make(map[string]int64, len(addrs))
	if len(addrs) == 0 {
		return counts, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.engagementTimeout)
	defer cancel()

	wanted := make(map[model.Address]struct{}, len(addrs))
	refs := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if _, dup := wanted[a]; dup {
			continue
		}
		wanted[a] = struct{}{}
		refs = append(refs, a.String())
	}

	events, err := o.query(ctx, PurposeEngagement, nostr.Filter{
		Kinds: []int{model.KindRepost, model.KindGenericRepost, model.KindReaction, model.KindZapReceipt},
		Tags:  nostr.TagMap{"a": refs},
	})
	if err != nil {
		return nil, err
	}

	counted := dedupe.NewSet()
	for _, ev := range events {
		i := validate.Validate(ev).Interaction
		if i == nil || i.Sentiment < 0 {
			continue
		}
		if _, ok := wanted[i.Target]; !ok {
			continue
		}
		if counted.SeenAndRecord(i.ID) {
			continue
		}
		counts[i.Target.Slug]++
	}
	return counts, nil
}

func (o *Orchestrator) query(ctx context.Context, purpose string, f nostr.Filter) ([]*nostr.Event, error) {
	start := time.Now()
	events, err := o.store.Query(ctx, []nostr.Filter{f})
	metrics.RecordStoreQueryLatency(purpose, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordStoreQuery(purpose, "error")
		return nil, err
	}
	metrics.RecordStoreQuery(purpose, "ok")
	return events, nil
}

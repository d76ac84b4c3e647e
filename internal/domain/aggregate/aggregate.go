// Package aggregate collapses validated events from one feed run into feed
// items keyed by slug, merging reposts into the items they point at.
package aggregate

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/domain/dedupe"
	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/internal/domain/validate"
	"github.com/okian/loopfeed/pkg/logger"
	"github.com/okian/loopfeed/pkg/metrics"
)

// Resolution outcomes reported to metrics.
const (
	ResolvedInRun    = "in_run"
	ResolvedEmbedded = "embedded"
	ResolvedNetwork  = "network"
	ResolutionFailed = "failed"
)

// Resolver fetches a single content event by address.
type Resolver interface {
	ResolveReference(ctx context.Context, addr model.Address) (*model.ContentEvent, bool)
}

// Aggregator is local to one run and must not be shared between runs.
type Aggregator struct {
	resolver    Resolver
	concurrency int
	log         logger.Logger

	items   map[string]*model.FeedItem
	order   []*model.FeedItem
	reposts dedupe.Set
	pending []*model.InteractionEvent
}

// New creates an empty aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		concurrency: defaultConcurrency,
		log:         logger.Get(),
		items:       make(map[string]*model.FeedItem),
		reposts:     dedupe.NewSet(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddContent inserts a content event. The first event seen for a slug wins.
// It reports whether the event created a new item.
func (a *Aggregator) AddContent(c *model.ContentEvent) bool {
	if c == nil {
		return false
	}
	if _, ok := a.items[c.Slug]; ok {
		return false
	}
	item := model.NewFeedItem(*c, len(a.order))
	a.items[c.Slug] = item
	a.order = append(a.order, item)
	return true
}

// AddRepost queues a repost for merging. A repost event id already seen in
// this run is ignored. Other interaction kinds are not merged.
func (a *Aggregator) AddRepost(i *model.InteractionEvent) bool {
	if i == nil || i.Kind != model.InteractionRepost {
		return false
	}
	if a.reposts.SeenAndRecord(i.ID) {
		return false
	}
	a.pending = append(a.pending, i)
	return true
}

// Resolve merges queued reposts. Items are keyed by slug alone, so a repost
// joins whatever item holds its target's slug. Targets are looked up in the
// run first, then in the repost's embedded event, then through the resolver
// with one query per distinct address. Reposts whose target cannot be found
// are dropped.
func (a *Aggregator) Resolve(ctx context.Context) {
	pending := a.pending
	a.pending = nil

	var missing []model.Address
	seen := make(map[model.Address]struct{})
	recovered := make(map[model.Address]struct{})
	for _, r := range pending {
		if _, ok := a.items[r.Target.Slug]; ok {
			continue
		}
		if c := embedded(r); c != nil {
			a.AddContent(c)
			recovered[r.Target] = struct{}{}
			metrics.RecordReferenceResolution(ResolvedEmbedded)
			continue
		}
		if _, dup := seen[r.Target]; dup {
			continue
		}
		seen[r.Target] = struct{}{}
		missing = append(missing, r.Target)
	}

	resolved := a.fetch(ctx, missing)
	for _, addr := range missing {
		if c, ok := resolved[addr]; ok {
			a.AddContent(c)
			recovered[addr] = struct{}{}
			metrics.RecordReferenceResolution(ResolvedNetwork)
		}
	}

	for _, r := range pending {
		item, ok := a.items[r.Target.Slug]
		if !ok {
			metrics.RecordReferenceResolution(ResolutionFailed)
			a.log.Debug(ctx, "dropping repost with unresolved target",
				logger.String("repost_id", r.ID),
				logger.String("target", r.Target.String()))
			continue
		}
		if _, ok := recovered[r.Target]; !ok {
			metrics.RecordReferenceResolution(ResolvedInRun)
		}
		item.AddRepost(model.RepostEntry{Actor: r.Actor, RepostedAt: r.CreatedAt, EventID: r.ID})
	}
}

// Items returns the aggregated items in insertion order.
func (a *Aggregator) Items() []*model.FeedItem {
	return append([]*model.FeedItem(nil), a.order...)
}

// Len returns the number of distinct items.
func (a *Aggregator) Len() int { return len(a.order) }

func (a *Aggregator) fetch(ctx context.Context, addrs []model.Address) map[model.Address]*model.ContentEvent {
	out := make(map[model.Address]*model.ContentEvent, len(addrs))
	if a.resolver == nil || len(addrs) == 0 {
		return out
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, a.concurrency)
	)
	for _, addr := range addrs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return out
		}
		wg.Add(1)
		go func(addr model.Address) {
			defer func() {
				<-sem
				wg.Done()
			}()
			c, ok := a.resolver.ResolveReference(ctx, addr)
			if !ok || c == nil || c.Address() != addr {
				return
			}
			mu.Lock()
			out[addr] = c
			mu.Unlock()
		}(addr)
	}
	wg.Wait()
	return out
}

// embedded validates the event a repost carries in its content and returns
// it when it is the repost's target.
func embedded(r *model.InteractionEvent) *model.ContentEvent {
	if r.Embedded == "" {
		return nil
	}
	var ev nostr.Event
	if err := json.Unmarshal([]byte(r.Embedded), &ev); err != nil {
		return nil
	}
	v := validate.Validate(&ev)
	if v.Content == nil || v.Content.Address() != r.Target {
		return nil
	}
	return v.Content
}

// Package feed runs the feed pipeline: plan, fetch, validate, aggregate, rank.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/okian/loopfeed/internal/domain/aggregate"
	"github.com/okian/loopfeed/internal/domain/filter"
	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/internal/domain/ranking"
	"github.com/okian/loopfeed/internal/domain/validate"
	"github.com/okian/loopfeed/pkg/logger"
	"github.com/okian/loopfeed/pkg/metrics"
)

// Ranking fallback outcomes reported to metrics.
const (
	FallbackEngagement = "engagement"
	FallbackDegraded   = "degraded"
)

// Engine loads feed pages. It is safe for concurrent use; each LoadFeed call
// owns its own aggregation state.
type Engine struct {
	orch               *Orchestrator
	builder            *filter.Builder
	resolveConcurrency int
	log                logger.Logger
}

// NewEngine creates an engine over store, planning with builder.
func NewEngine(store Store, builder *filter.Builder, opts ...Option) *Engine {
	e := &Engine{
		orch:               NewOrchestrator(store),
		builder:            builder,
		resolveConcurrency: defaultResolveConcurrency,
		log:                logger.Named("feed"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the state of one LoadFeed call.
type run struct {
	plan     filter.Plan
	log      logger.Logger
	agg      *aggregate.Aggregator
	direct   map[string]*model.FeedItem
	primary  []*nostr.Event
	fallback bool
}

// LoadFeed builds one page of the requested feed. Only primary query
// failures, invalid requests and follow set failures are returned; every
// other problem degrades the page instead.
func (e *Engine) LoadFeed(ctx context.Context, req model.Request) (model.Page, error) {
	start := time.Now()
	page, feedType, err := e.load(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordFeedLoad(feedType, status)
	metrics.RecordFeedLoadLatency(feedType, float64(time.Since(start).Milliseconds()))
	if err == nil {
		metrics.RecordFeedItems(feedType, len(page.Items))
	}
	return page, err
}

func (e *Engine) load(ctx context.Context, req model.Request) (model.Page, string, error) {
	feedType := string(req.Type)
	plan, err := e.builder.Build(ctx, req)
	if err != nil {
		return model.Page{}, feedType, err
	}
	feedType = string(plan.Type)

	r := &run{
		plan: plan,
		log: e.log.With(
			logger.String("run_id", uuid.NewString()),
			logger.String("feed_type", feedType),
		),
	}
	r.log.Debug(ctx, "plan built", logger.String("plan", describe(plan)))
	if plan.Empty {
		r.log.Debug(ctx, "empty plan, no queries issued")
		return model.Page{Items: []model.FeedItem{}}, feedType, nil
	}

	ctx, cancel := context.WithTimeout(ctx, plan.Timeout)
	defer cancel()

	r.agg = aggregate.New(
		aggregate.WithResolver(e.orch),
		aggregate.WithConcurrency(e.resolveConcurrency),
		aggregate.WithLogger(r.log),
	)
	if plan.Direct {
		r.direct = make(map[string]*model.FeedItem, len(plan.IDs))
	}

	reposts := e.fetchReposts(ctx, plan)
	if err := e.fetchPrimary(ctx, r); err != nil {
		r.log.Error(ctx, "primary query failed", logger.Error(err))
		return model.Page{}, feedType, err
	}
	if reposts == nil && r.fallback {
		// The store is not ranking, so reposts are merged client side.
		reposts = e.fetchReposts(ctx, r.plan)
	}
	r.ingest(ctx, r.primary)
	if reposts != nil {
		r.ingest(ctx, <-reposts)
	}
	if !plan.Direct {
		r.agg.Resolve(ctx)
	}

	items := e.rank(ctx, r)
	page := r.page(items)
	r.log.Info(ctx, "feed loaded",
		logger.Int("events", len(r.primary)),
		logger.Int("items", len(page.Items)),
		logger.Bool("fallback_ranking", r.fallback),
		logger.Bool("has_more", page.HasMore),
	)
	return page, feedType, nil
}

func (e *Engine) fetchReposts(ctx context.Context, plan filter.Plan) <-chan []*nostr.Event {
	if plan.Reposts == nil {
		return nil
	}
	ch := make(chan []*nostr.Event, 1)
	go func(f nostr.Filter) { ch <- e.orch.FetchSecondary(ctx, f) }(*plan.Reposts)
	return ch
}

// fetchPrimary runs the primary query and checks that a rank hint was honored.
// An unsupported or empty ranked query is retried without the hint. Once the
// hint is known to be ignored the run continues with the unranked plan.
func (e *Engine) fetchPrimary(ctx context.Context, r *run) error {
	events, err := e.orch.Fetch(ctx, r.plan.Primary)
	if !r.plan.Ranked {
		r.primary = events
		return err
	}

	switch {
	case errors.Is(err, ErrRankUnsupported), err == nil && len(events) == 0:
		r.log.Debug(ctx, "rank hint not honored, retrying without it", logger.String("hint", r.plan.Hint))
		r.fallback = true
		r.plan = r.plan.WithoutHint()
		events, err = e.orch.Fetch(ctx, r.plan.Primary)
	case err == nil && ranking.LooksChronological(events):
		r.fallback = true
		r.plan = r.plan.WithoutHint()
	}
	r.primary = events
	return err
}

func (r *run) ingest(ctx context.Context, events []*nostr.Event) {
	for _, ev := range events {
		v := validate.Validate(ev)
		switch {
		case v.Content != nil && r.direct != nil:
			if _, dup := r.direct[v.Content.ID]; !dup {
				r.direct[v.Content.ID] = model.NewFeedItem(*v.Content, len(r.direct))
			}
		case v.Content != nil:
			r.agg.AddContent(v.Content)
		case v.Interaction != nil:
			r.agg.AddRepost(v.Interaction)
		default:
			metrics.RecordEventRejected(string(v.Reason))
			r.log.Debug(ctx, "event rejected", logger.String("reason", string(v.Reason)))
		}
	}
}

func (e *Engine) rank(ctx context.Context, r *run) []*model.FeedItem {
	plan := r.plan
	if plan.Direct {
		return byRequestedID(r.direct, plan.IDs)
	}
	items := r.agg.Items()

	switch {
	case r.fallback:
		addrs := make([]model.Address, len(items))
		for i, it := range items {
			addrs[i] = it.Address()
		}
		counts, err := e.orch.CountEngagement(ctx, addrs)
		if err != nil {
			metrics.RecordRankingFallback(FallbackDegraded)
			r.log.Warn(ctx, "engagement fallback failed, keeping store order", logger.Error(err))
			return ranking.Rank(items, ranking.Insertion, plan.PageSize)
		}
		metrics.RecordRankingFallback(FallbackEngagement)
		ranking.ApplyEngagement(items, counts)
		return ranking.Rank(items, ranking.Engagement, plan.PageSize)
	case plan.Ranked:
		return ranking.Rank(items, ranking.Insertion, plan.PageSize)
	case plan.Mode == model.RankChronological:
		return ranking.Rank(items, ranking.Chronological, plan.PageSize)
	default:
		return ranking.Rank(items, ranking.Popularity, plan.PageSize)
	}
}

func (r *run) page(items []*model.FeedItem) model.Page {
	out := model.Page{Items: make([]model.FeedItem, len(items))}
	for i, it := range items {
		out.Items[i] = it.Clone()
	}
	if r.plan.Direct || len(r.primary) < r.plan.Primary.Limit {
		return out
	}
	var oldest nostr.Timestamp
	for i, ev := range r.primary {
		if i == 0 || ev.CreatedAt < oldest {
			oldest = ev.CreatedAt
		}
	}
	cursor := oldest.Time()
	out.HasMore = true
	out.NextCursor = &cursor
	return out
}

// byRequestedID returns the fetched items in request order. Lookups are keyed
// by event id, so republishes of one slug are all returned.
func byRequestedID(byID map[string]*model.FeedItem, ids []string) []*model.FeedItem {
	out := make([]*model.FeedItem, 0, len(byID))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out
}

// describe renders a plan for logs.
func describe(p filter.Plan) string {
	return fmt.Sprintf("%s/%s limit=%d ranked=%t", p.Type, p.Mode, p.PageSize, p.Ranked)
}

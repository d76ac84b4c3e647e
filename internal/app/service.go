// Package service wires the feed engine to its stores, cache, refresh
// workers and feed sessions.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventqueue "github.com/okian/loopfeed/internal/adapters/mq/queue"
	workerpool "github.com/okian/loopfeed/internal/adapters/mq/worker"
	"github.com/okian/loopfeed/internal/adapters/relay"
	"github.com/okian/loopfeed/internal/adapters/repository"
	"github.com/okian/loopfeed/internal/config"
	"github.com/okian/loopfeed/internal/domain/filter"
	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/internal/feed"
	"github.com/okian/loopfeed/internal/scheduler"
	"github.com/okian/loopfeed/pkg/logger"
	"github.com/okian/loopfeed/pkg/metrics"
)

// Service owns the long-lived components behind feed loads.
type Service struct {
	mu sync.RWMutex

	cfg     *config.Config
	store   feed.Store
	follows filter.FollowResolver
	policy  scheduler.Policy

	// Built by Start.
	relays  *relay.Store
	cache   repository.Cache
	queue   *eventqueue.InMemoryQueue
	pool    *workerpool.Pool
	engine  *feed.Engine
	runCtx  context.Context
	cancel  context.CancelFunc
	started time.Time

	sessions map[string]*Session

	logger logger.Logger
}

// New constructs a Service from cfg. A nil cfg uses config defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg: cfg,
		policy: scheduler.Policy{
			Personalized: config.Seconds(cfg.PersonalizedRefreshSec),
			Recent:       config.Seconds(cfg.RecentRefreshSec),
		},
		sessions: make(map[string]*Session),
		logger:   logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the store stack, the refresh worker pool and the engine.
// Background components outlive ctx; Stop ends them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return nil
	}
	s.logger.Info(ctx, "starting feed service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	store := s.store
	var relays *relay.Store
	if store == nil {
		var err error
		relays, err = relay.NewStore(s.cfg.Relays,
			relay.WithRankHints(s.cfg.RankHints),
			relay.WithLogger(s.logger.Named("relay")),
		)
		if err != nil {
			cancel()
			return fmt.Errorf("open relays: %w", err)
		}
		store = relays
	}

	cache, err := s.openCache(runCtx)
	if err != nil {
		cancel()
		if relays != nil {
			_ = relays.Close()
		}
		return err
	}

	q := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.RefreshQueueSize))
	pool := workerpool.NewPool(s.cfg.RefreshWorkerCount, q,
		workerpool.WithLogger(s.logger.Named("refresh")),
		workerpool.WithJobTimeout(config.Millis(s.cfg.FeedTimeoutMS)),
	)
	pool.Start(runCtx)

	if cache != nil {
		store = repository.NewCachingStore(store, cache,
			repository.WithTTL(config.Millis(s.cfg.CacheTTLMS)),
			repository.WithRefresher(q),
			repository.WithLogger(s.logger.Named("cache")),
		)
	}

	follows := s.follows
	if follows == nil {
		follows = relay.NewFollowResolver(store)
	}

	builder := filter.NewBuilder(follows,
		filter.WithPageSizes(s.cfg.DefaultPageSize, s.cfg.MaxPageSize),
		filter.WithTrendingPageSizes(s.cfg.TrendingInitialPageSize, s.cfg.TrendingPageSize),
		filter.WithTimeouts(config.Millis(s.cfg.FeedTimeoutMS), config.Millis(s.cfg.TagFeedTimeoutMS)),
		filter.WithRankHints(store.SupportsRankHints()),
	)
	s.engine = feed.NewEngine(store, builder,
		feed.WithResolveTimeout(config.Millis(s.cfg.ResolveTimeoutMS)),
		feed.WithEngagementTimeout(config.Millis(s.cfg.EngagementTimeoutMS)),
		feed.WithResolveConcurrency(s.cfg.ResolveConcurrency),
		feed.WithLogger(s.logger.Named("feed")),
	)

	s.relays, s.cache, s.queue, s.pool = relays, cache, q, pool
	s.runCtx, s.cancel = runCtx, cancel
	s.started = time.Now()

	metrics.UpdateQueueCapacity(s.cfg.RefreshQueueSize)
	s.logger.Info(ctx, "feed service started",
		logger.Int("relays", len(s.cfg.Relays)),
		logger.String("cache", s.cfg.CacheBackend),
		logger.Int("refreshWorkers", pool.Size()),
		logger.Bool("rankHints", store.SupportsRankHints()),
	)
	return nil
}

func (s *Service) openCache(ctx context.Context) (repository.Cache, error) {
	opts := []repository.Option{repository.WithSize(s.cfg.CacheSize)}
	switch s.cfg.CacheBackend {
	case "none":
		return nil, nil
	case "", "memory":
		return repository.NewMemoryCache(ctx, opts...), nil
	case "sqlite":
		c, err := repository.OpenSQLiteCache(ctx, s.cfg.CachePath, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, s.cfg.CacheBackend)
}

// Stop closes every session and releases the components built by Start.
func (s *Service) Stop(ctx context.Context) error {
	// Sessions are closed without holding mu: an in-flight refresh needs it to load.
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
	metrics.UpdateActiveSessions(0)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return nil
	}
	s.logger.Info(ctx, "stopping feed service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refresh workers: %w", err))
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.relays != nil {
		if err := s.relays.Close(); err != nil {
			errs = append(errs, fmt.Errorf("relays: %w", err))
		}
	}
	s.cancel()

	s.engine, s.relays, s.cache, s.queue, s.pool = nil, nil, nil, nil, nil
	s.logger.Info(ctx, "feed service stopped")
	return errors.Join(errs...)
}

// LoadFeed loads one page of a feed.
func (s *Service) LoadFeed(ctx context.Context, req model.Request) (model.Page, error) {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	if engine == nil {
		return model.Page{}, ErrNotStarted
	}
	return engine.LoadFeed(ctx, req)
}

// OpenSession loads the first page of req and registers a session that keeps
// it fresh. The session is not registered when the first load fails.
func (s *Service) OpenSession(ctx context.Context, req model.Request, opts ...SessionOption) (*Session, error) {
	s.mu.RLock()
	started := s.engine != nil
	s.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	opts = append([]SessionOption{WithSessionLogger(s.logger.Named("session"))}, opts...)
	sess := NewSession(s, req, s.policy.Interval(req.Type), opts...)
	if _, err := sess.Start(ctx); err != nil {
		sess.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		sess.Close()
		return nil, ErrNotStarted
	}
	s.sessions[sess.ID()] = sess
	metrics.UpdateActiveSessions(len(s.sessions))
	return sess, nil
}

// Session returns a registered session.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// CloseSession stops and unregisters a session.
func (s *Service) CloseSession(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		metrics.UpdateActiveSessions(len(s.sessions))
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	sess.Close()
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.engine != nil,
		"relays":       s.cfg.Relays,
		"cacheBackend": s.cfg.CacheBackend,
		"sessions":     len(s.sessions),
	}
	if s.engine == nil {
		return stats
	}

	stats["uptimeSeconds"] = int64(time.Since(s.started).Seconds())
	stats["refreshWorkers"] = s.pool.Size()
	stats["refreshJobsProcessed"] = s.pool.Processed()
	queueLen := s.queue.Len()
	stats["refreshQueueLength"] = queueLen
	metrics.UpdateQueueSize(queueLen)
	if s.cache != nil {
		entries := s.cache.Len(s.runCtx)
		stats["cacheEntries"] = entries
		metrics.UpdateCacheEntries(entries)
	}

	feeds := make(map[string]int, len(s.sessions))
	for _, sess := range s.sessions {
		feeds[string(sess.Request().Type)]++
	}
	stats["sessionsByFeed"] = feeds
	return stats
}

package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/loopfeed/internal/domain/model"
	"github.com/okian/loopfeed/internal/scheduler"
	"github.com/okian/loopfeed/pkg/logger"
	"github.com/okian/loopfeed/pkg/metrics"
)

// Loader loads one page of a feed.
type Loader interface {
	LoadFeed(ctx context.Context, req model.Request) (model.Page, error)
}

// Session holds the latest first page of one feed and keeps it fresh on the
// feed type's refresh interval.
type Session struct {
	id       string
	req      model.Request
	loader   Loader
	sched    *scheduler.Scheduler
	onUpdate func(model.Page)
	logger   logger.Logger

	// loadMu admits one load at a time.
	loadMu sync.Mutex

	mu       sync.RWMutex
	page     model.Page
	loadedAt time.Time
	lastErr  error
	loads    int

	runCtx context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithOnUpdate registers a callback invoked after every successful load.
func WithOnUpdate(fn func(model.Page)) SessionOption {
	return func(s *Session) { s.onUpdate = fn }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l logger.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a session for req. Refresh is disabled when interval is zero.
// Any cursor on req is dropped: a session always tracks the first page.
func NewSession(loader Loader, req model.Request, interval time.Duration, opts ...SessionOption) *Session {
	req.Cursor = nil
	s := &Session{
		id:     uuid.NewString(),
		req:    req,
		loader: loader,
		logger: logger.Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.String("session_id", s.id), logger.String("feed_type", string(req.Type)))
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.sched = scheduler.New(interval, s.tick)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Request returns the request the session reloads.
func (s *Session) Request() model.Request { return s.req }

// Start performs the first load and, once it succeeds, starts periodic refresh.
// A failed Start may be retried.
func (s *Session) Start(ctx context.Context) (model.Page, error) {
	page, err := s.Refetch(ctx)
	if err != nil {
		return page, err
	}
	if s.sched.Start(s.runCtx) {
		s.logger.Debug(ctx, "refresh scheduled")
	}
	return page, nil
}

// Refetch reloads the first page. Concurrent callers are serialized.
func (s *Session) Refetch(ctx context.Context) (model.Page, error) {
	if s.closed.Load() {
		return model.Page{}, ErrSessionClosed
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.load(ctx)
}

// tick runs on the scheduler. It skips when a load is already in flight.
func (s *Session) tick(ctx context.Context) {
	if !s.loadMu.TryLock() {
		metrics.RecordRefresh(string(s.req.Type), "skipped")
		return
	}
	defer s.loadMu.Unlock()

	if _, err := s.load(ctx); err != nil {
		metrics.RecordRefresh(string(s.req.Type), "error")
		s.logger.Warn(ctx, "scheduled refresh failed", logger.Error(err))
		return
	}
	metrics.RecordRefresh(string(s.req.Type), "ok")
}

func (s *Session) load(ctx context.Context) (model.Page, error) {
	page, err := s.loader.LoadFeed(ctx, s.req)

	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.page = page
		s.loadedAt = time.Now()
		s.loads++
	}
	s.mu.Unlock()

	if err != nil {
		return model.Page{}, err
	}
	if s.onUpdate != nil {
		s.onUpdate(page)
	}
	return page, nil
}

// Latest returns the most recent successful page and when it was loaded.
// The time is zero before the first successful load.
func (s *Session) Latest() (model.Page, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page, s.loadedAt
}

// LastError returns the error of the most recent load, if it failed.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Loads counts successful loads.
func (s *Session) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}

// Refreshing reports whether periodic refresh is active.
func (s *Session) Refreshing() bool { return s.sched.Running() }

// Close stops periodic refresh. It is idempotent.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.sched.Stop()
}

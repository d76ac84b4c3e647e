// Package scheduler re-runs feed loads on a fixed cadence per feed type.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/okian/loopfeed/internal/domain/model"
)

// Policy maps feed types to refresh intervals. A zero interval disables refresh.
type Policy struct {
	Personalized time.Duration
	Recent       time.Duration
}

// DefaultPolicy refreshes personalized feeds every ten minutes and recent feeds every 30 seconds.
func DefaultPolicy() Policy {
	return Policy{Personalized: 10 * time.Minute, Recent: 30 * time.Second}
}

// Interval returns the refresh interval for t. Feeds other than personalized
// and recent are never refreshed.
func (p Policy) Interval(t model.FeedType) time.Duration {
	switch t {
	case model.FeedPersonalized:
		return max(p.Personalized, 0)
	case model.FeedRecent:
		return max(p.Recent, 0)
	}
	return 0
}

// Task is invoked on every tick.
type Task func(ctx context.Context)

// Scheduler calls a task on a ticker until stopped.
type Scheduler struct {
	interval time.Duration
	task     Task

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a stopped scheduler.
func New(interval time.Duration, task Task) *Scheduler {
	return &Scheduler{
		interval: interval,
		task:     task,
		stopChan: make(chan struct{}),
	}
}

// Enabled reports whether Start would launch a ticker.
func (s *Scheduler) Enabled() bool {
	return s.interval > 0 && s.task != nil
}

// Start launches the ticker goroutine. It returns false when the scheduler is
// disabled, already running or stopped. The loop ends when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Enabled() || s.started || s.stopped {
		return false
	}
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.task(ctx)
			}
		}
	}()
	return true
}

// Running reports whether the ticker goroutine was started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// Stop ends the loop and waits for an in-flight tick to return. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}

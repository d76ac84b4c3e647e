package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/loopfeed/internal/domain/model"
)

// gatedLoader blocks every load until release is closed, when gate is set.
type gatedLoader struct {
	mu      sync.Mutex
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
	err     error
}

func (l *gatedLoader) LoadFeed(ctx context.Context, req model.Request) (model.Page, error) {
	l.calls.Add(1)
	l.mu.Lock()
	gate, entered, err := l.gate, l.entered, l.err
	l.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Page{}, ctx.Err()
		}
	}
	if err != nil {
		return model.Page{}, err
	}
	return model.Page{Items: []model.FeedItem{{ContentEvent: model.ContentEvent{Slug: "s" + string(req.Type)}}}}, nil
}

func (l *gatedLoader) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func TestSessionLifecycle(t *testing.T) {
	Convey("Given a session with a failing first load", t, func() {
		loader := &gatedLoader{err: errors.New("relay down")}
		cursor := time.Now()
		s := NewSession(loader, model.Request{Type: model.FeedRecent, Cursor: &cursor}, time.Hour)
		Reset(s.Close)

		Convey("Then the cursor should be dropped", func() {
			So(s.Request().Cursor, ShouldBeNil)
		})

		Convey("When started", func() {
			_, err := s.Start(context.Background())

			Convey("Then refresh should not be scheduled", func() {
				So(err, ShouldNotBeNil)
				So(s.Refreshing(), ShouldBeFalse)
				So(s.LastError(), ShouldNotBeNil)
			})

			Convey("Then a retry after recovery should schedule refresh", func() {
				loader.fail(nil)
				page, err := s.Start(context.Background())
				So(err, ShouldBeNil)
				So(page.Items, ShouldHaveLength, 1)
				So(s.Refreshing(), ShouldBeTrue)
				So(s.LastError(), ShouldBeNil)
			})
		})
	})

	Convey("Given a session with an update callback", t, func() {
		var updates atomic.Int32
		loader := &gatedLoader{}
		s := NewSession(loader, model.Request{Type: model.FeedRecent}, 0,
			WithSessionID("fixed"),
			WithOnUpdate(func(model.Page) { updates.Add(1) }),
		)
		Reset(s.Close)

		Convey("When refetched twice", func() {
			_, err := s.Start(context.Background())
			So(err, ShouldBeNil)
			_, err = s.Refetch(context.Background())
			So(err, ShouldBeNil)

			Convey("Then every load should notify", func() {
				So(s.ID(), ShouldEqual, "fixed")
				So(updates.Load(), ShouldEqual, 2)
				So(s.Loads(), ShouldEqual, 2)
				So(s.Refreshing(), ShouldBeFalse)
			})
		})
	})
}

func TestSessionTickSkipsInFlightLoad(t *testing.T) {
	Convey("Given a session whose load is in flight", t, func() {
		loader := &gatedLoader{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
		s := NewSession(loader, model.Request{Type: model.FeedRecent}, 0)
		Reset(s.Close)

		done := make(chan error, 1)
		go func() {
			_, err := s.Refetch(context.Background())
			done <- err
		}()
		<-loader.entered

		Convey("When a tick fires", func() {
			s.tick(context.Background())

			Convey("Then it should be skipped", func() {
				So(loader.calls.Load(), ShouldEqual, 1)
				close(loader.gate)
				So(<-done, ShouldBeNil)
			})
		})
	})

	Convey("Given an idle session", t, func() {
		loader := &gatedLoader{}
		s := NewSession(loader, model.Request{Type: model.FeedPersonalized}, 0)
		Reset(s.Close)

		Convey("When a tick fires", func() {
			s.tick(context.Background())

			Convey("Then it should load", func() {
				So(loader.calls.Load(), ShouldEqual, 1)
				_, at := s.Latest()
				So(at.IsZero(), ShouldBeFalse)
			})
		})
	})
}

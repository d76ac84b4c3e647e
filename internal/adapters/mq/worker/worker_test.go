package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/loopfeed/internal/adapters/mq/queue"
	"github.com/okian/loopfeed/internal/adapters/mq/worker"
)

type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a mock queue", t, func() {
		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, worker.WithName("w1"), worker.WithJobTimeout(50*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When jobs are queued", func() {
			var ran atomic.Int32
			for i := 0; i < 3; i++ {
				q.jobs <- queue.Job{Key: "ok", Run: func(context.Context) error {
					ran.Add(1)
					return nil
				}}
			}

			convey.Convey("Then each job should run once", func() {
				convey.So(waitFor(func() bool { return ran.Load() == 3 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a job fails or panics", func() {
			var after atomic.Bool
			q.jobs <- queue.Job{Key: "fail", Run: func(context.Context) error { return errors.New("boom") }}
			q.jobs <- queue.Job{Key: "panic", Run: func(context.Context) error { panic("bad") }}
			q.jobs <- queue.Job{Key: "nil"}
			q.jobs <- queue.Job{Key: "after", Run: func(context.Context) error {
				after.Store(true)
				return nil
			}}

			convey.Convey("Then the worker should keep going", func() {
				convey.So(waitFor(after.Load), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a job outlives its timeout", func() {
			var cause atomic.Value
			q.jobs <- queue.Job{Key: "slow", Run: func(ctx context.Context) error {
				<-ctx.Done()
				cause.Store(ctx.Err())
				return ctx.Err()
			}}

			convey.Convey("Then its context should be cancelled", func() {
				convey.So(waitFor(func() bool { return cause.Load() != nil }), convey.ShouldBeTrue)
				convey.So(cause.Load(), convey.ShouldEqual, context.DeadlineExceeded)
			})
		})

		convey.Convey("When shut down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it should stop cleanly and tolerate a second call", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		p := worker.NewPool(4, q)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)

		convey.So(p.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many jobs are enqueued", func() {
			var ran atomic.Int32
			for i := 0; i < 50; i++ {
				err := q.Enqueue(ctx, queue.Job{Key: "k", Run: func(context.Context) error {
					ran.Add(1)
					return nil
				}})
				convey.So(err, convey.ShouldBeNil)
			}

			convey.Convey("Then all of them should be processed", func() {
				convey.So(waitFor(func() bool { return ran.Load() == 50 }), convey.ShouldBeTrue)
				convey.So(waitFor(func() bool { return p.Processed() == 50 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool shuts down", func() {
			err := p.Shutdown(context.Background())

			convey.Convey("Then the queue should be closed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(errors.Is(q.Enqueue(context.Background(), queue.Job{Key: "late"}), queue.ErrClosed), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		p := worker.NewPool(0, newMockQueue())

		convey.Convey("Then a default size should be used", func() {
			convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}

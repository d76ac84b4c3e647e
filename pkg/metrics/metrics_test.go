package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager()

			Convey("Then it should register on its own registry", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Registry(), ShouldNotBeNil)
				So(manager.Registry(), ShouldNotEqual, GetRegistry())
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.feedLoads.WithLabelValues("recent", "ok").Inc()

			Convey("Then metric names should carry the namespace and subsystem", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "test_namespace_test_subsystem_loads_total")
			})
		})

		Convey("When creating with empty values", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(nil),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "loopfeed")
				So(manager.subsystem, ShouldEqual, "feed")
				So(manager.histogramBuckets, ShouldResemble, defaultLatencyBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics helpers", t, func() {
		Convey("When recording pipeline metrics", func() {
			before := testutil.ToFloat64(globalManager.eventsRejected.WithLabelValues("missing_slug"))
			RecordEventRejected("missing_slug")
			RecordEventRejected("missing_slug")

			Convey("Then counters should move", func() {
				after := testutil.ToFloat64(globalManager.eventsRejected.WithLabelValues("missing_slug"))
				So(after-before, ShouldEqual, 2)
			})

			Convey("And the other helpers should not panic", func() {
				So(func() {
					RecordReferenceResolution("failed")
					RecordRankingFallback("degraded")
					RecordFeedLoad("recent", "ok")
					RecordFeedLoadLatency("recent", 42)
					RecordFeedItems("recent", 20)
					RecordStoreQuery("primary", "ok")
					RecordStoreQueryLatency("primary", 12)
					RecordCacheLookup("hit")
					UpdateCacheEntries(3)
					RecordRefresh("personalized", "ok")
					UpdateActiveSessions(1)
					UpdateQueueCapacity(10)
					UpdateQueueSize(2)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError("full")
					RecordWorkerProcessingLatency(5)
					RecordWorkerError()
					RecordHTTPRequest("feed", "GET", "200")
					RecordHTTPRequestDuration("feed", "GET", "200", 3)
					RecordErrorByEndpoint("feed", "GET", "server_error")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(8)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording concurrently", func() {
			before := testutil.ToFloat64(globalManager.queueEnqueued)
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 100; j++ {
						RecordQueueEnqueue()
					}
				}()
			}
			wg.Wait()

			Convey("Then no increments should be lost", func() {
				So(testutil.ToFloat64(globalManager.queueEnqueued)-before, ShouldEqual, 1000)
			})
		})
	})
}

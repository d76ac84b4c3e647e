// Package metrics provides Prometheus metrics for the loopfeed engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultLatencyBuckets are in milliseconds; relay round trips dominate.
var defaultLatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000} //nolint:gochecknoglobals // immutable bucket layout

// Manager manages all Prometheus metrics for the feed engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         *prometheus.Registry

	// Pipeline
	eventsRejected      *prometheus.CounterVec
	referenceResolution *prometheus.CounterVec
	rankingFallback     *prometheus.CounterVec
	feedLoads           *prometheus.CounterVec
	feedLoadLatency     *prometheus.HistogramVec
	feedItems           *prometheus.HistogramVec

	// Store
	storeQueries      *prometheus.CounterVec
	storeQueryLatency *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	cacheEntries      prometheus.Gauge

	// Refresh
	refreshRuns             *prometheus.CounterVec
	activeSessions          prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueSize               prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      *prometheus.CounterVec
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "loopfeed",
		subsystem:        "feed",
		histogramBuckets: defaultLatencyBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// Registry returns the registry this manager registered its collectors on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place to read the whole metric surface
	m.eventsRejected = m.counterVec("events_rejected_total",
		"Raw events excluded from feeds by the validator", "reason")
	m.referenceResolution = m.counterVec("reference_resolutions_total",
		"Repost targets missing from the primary batch, by outcome", "outcome")
	m.rankingFallback = m.counterVec("ranking_fallback_total",
		"Client-side engagement ranking runs after an ignored rank hint, by outcome", "outcome")
	m.feedLoads = m.counterVec("loads_total",
		"Feed pipeline runs by feed type and status", "feed_type", "status")
	m.feedLoadLatency = m.histogramVec("load_latency_milliseconds",
		"End-to-end feed pipeline latency", m.histogramBuckets, "feed_type")
	m.feedItems = m.histogramVec("items_per_page",
		"Number of items returned per page", []float64{0, 1, 5, 10, 20, 50, 100}, "feed_type")

	m.storeQueries = m.counterVec("store_queries_total",
		"Event store queries by purpose and status", "purpose", "status")
	m.storeQueryLatency = m.histogramVec("store_query_latency_milliseconds",
		"Event store query latency by purpose", m.histogramBuckets, "purpose")
	m.cacheLookups = m.counterVec("cache_lookups_total",
		"Event cache lookups by result (hit, stale, miss)", "result")
	m.cacheEntries = m.gauge("cache_entries", "Entries currently held by the event cache")

	m.refreshRuns = m.counterVec("refresh_runs_total",
		"Background feed refreshes by feed type and status", "feed_type", "status")
	m.activeSessions = m.gauge("active_sessions", "Open feed sessions")
	m.queueCapacity = m.gauge("refresh_queue_capacity", "Capacity of the cache refresh queue")
	m.queueSize = m.gauge("refresh_queue_size", "Pending cache refresh jobs")
	m.queueEnqueued = m.counter("refresh_queue_enqueued_total", "Cache refresh jobs enqueued")
	m.queueDequeued = m.counter("refresh_queue_dequeued_total", "Cache refresh jobs dequeued")
	m.queueEnqueueErrors = m.counterVec("refresh_queue_enqueue_errors_total",
		"Cache refresh jobs rejected by the queue", "reason")
	m.workerProcessingLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "refresh_worker_latency_milliseconds",
		Help:        "Time spent by a refresh worker on one job",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.workerErrors = m.counter("refresh_worker_errors_total", "Cache refresh jobs that failed")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("http_errors_total",
		"HTTP error responses by endpoint and error type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordEventRejected counts a raw event dropped by the validator.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordReferenceResolution counts the outcome of locating a repost target
// that was not in the primary batch: embedded, resolved or failed.
func RecordReferenceResolution(outcome string) {
	globalManager.referenceResolution.WithLabelValues(outcome).Inc()
}

// RecordRankingFallback counts fallback ranking runs: applied or degraded.
func RecordRankingFallback(outcome string) {
	globalManager.rankingFallback.WithLabelValues(outcome).Inc()
}

// RecordFeedLoad counts one pipeline run.
func RecordFeedLoad(feedType, status string) {
	globalManager.feedLoads.WithLabelValues(feedType, status).Inc()
}

// RecordFeedLoadLatency records pipeline latency in milliseconds.
func RecordFeedLoadLatency(feedType string, latencyMs float64) {
	globalManager.feedLoadLatency.WithLabelValues(feedType).Observe(latencyMs)
}

// RecordFeedItems records the size of a returned page.
func RecordFeedItems(feedType string, n int) {
	globalManager.feedItems.WithLabelValues(feedType).Observe(float64(n))
}

// RecordStoreQuery counts one store query; purpose is primary, reposts, resolve, engagement or follows.
func RecordStoreQuery(purpose, status string) {
	globalManager.storeQueries.WithLabelValues(purpose, status).Inc()
}

// RecordStoreQueryLatency records store query latency in milliseconds.
func RecordStoreQueryLatency(purpose string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(purpose).Observe(latencyMs)
}

// RecordCacheLookup counts an event cache lookup.
func RecordCacheLookup(result string) {
	globalManager.cacheLookups.WithLabelValues(result).Inc()
}

// UpdateCacheEntries sets the current cache population.
func UpdateCacheEntries(n int) {
	globalManager.cacheEntries.Set(float64(n))
}

// RecordRefresh counts a background feed refresh.
func RecordRefresh(feedType, status string) {
	globalManager.refreshRuns.WithLabelValues(feedType, status).Inc()
}

// UpdateActiveSessions sets the number of open feed sessions.
func UpdateActiveSessions(n int) {
	globalManager.activeSessions.Set(float64(n))
}

// UpdateQueueCapacity sets the refresh queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the number of pending refresh jobs.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue counts an accepted refresh job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a refresh job handed to a worker.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected refresh job.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordWorkerProcessingLatency records the time a worker spent on one job.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed refresh job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

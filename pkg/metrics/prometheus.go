// Package metrics provides Prometheus metrics for the route risk engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

// Manager owns every collector the engine exports.
type Manager struct {
	namespace       string
	subsystem       string
	refreshInterval time.Duration
	customLabels    map[string]string
	registry        prometheus.Registerer

	// Aggregation passes
	passesTotal     *prometheus.CounterVec
	passDuration    prometheus.Histogram
	passLastSuccess prometheus.Gauge
	schedulerUp     prometheus.Gauge

	// Ingestion filter
	reportsClassified *prometheus.CounterVec
	reportWeight      prometheus.Histogram

	// Score writes
	bucketsScored      prometheus.Counter
	bucketLatency      prometheus.Histogram
	storeErrors        *prometheus.CounterVec
	publishTotal       *prometheus.CounterVec
	overallScoreGauges *prometheus.GaugeVec

	// Analytics
	analyticsDuration *prometheus.HistogramVec
	analyticsCache    *prometheus.CounterVec

	// Work queue and pool
	queueSize   prometheus.Gauge
	queueCap    prometheus.Gauge
	workerCount prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Process
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPause        prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "riskengine",
		subsystem:       "scoring",
		refreshInterval: defaultRefreshInterval,
		customLabels:    make(map[string]string),
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels}
}

func (m *Manager) histOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.customLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	msBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	m.passesTotal = auto.NewCounterVec(m.counterOpts("passes_total", "Aggregation passes by outcome"), []string{"outcome"})
	m.passDuration = auto.NewHistogram(m.histOpts("pass_duration_milliseconds", "Duration of a full aggregation pass", msBuckets))
	m.passLastSuccess = auto.NewGauge(m.gaugeOpts("pass_last_success_unix", "Unix time of the last successful pass"))
	m.schedulerUp = auto.NewGauge(m.gaugeOpts("scheduler_running", "1 while the scheduler is running"))

	m.reportsClassified = auto.NewCounterVec(m.counterOpts("reports_classified_total", "Reports seen by the ingestion filter by outcome"), []string{"outcome"})
	m.reportWeight = auto.NewHistogram(m.histOpts("report_weight", "Ingestion weight assigned to eligible reports", []float64{0.1, 0.25, 0.5, 0.75, 1}))

	m.bucketsScored = auto.NewCounter(m.counterOpts("buckets_scored_total", "Score records written"))
	m.bucketLatency = auto.NewHistogram(m.histOpts("bucket_latency_milliseconds", "Aggregate plus upsert latency per bucket", msBuckets))
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total", "Store errors by store and operation"), []string{"store", "op"})
	m.publishTotal = auto.NewCounterVec(m.counterOpts("score_events_total", "Score change events by outcome"), []string{"outcome"})
	m.overallScoreGauges = auto.NewGaugeVec(m.gaugeOpts("overall_score", "Latest overall score per time bucket, averaged over routes"), []string{"time_bucket"})

	m.analyticsDuration = auto.NewHistogramVec(m.histOpts("analytics_duration_milliseconds", "Risk snapshot computation time", msBuckets), []string{"period"})
	m.analyticsCache = auto.NewCounterVec(m.counterOpts("analytics_cache_total", "Risk snapshot cache lookups"), []string{"result"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Bucket jobs waiting in the queue"))
	m.queueCap = auto.NewGauge(m.gaugeOpts("queue_capacity", "Bucket job queue capacity"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Aggregation workers"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histOpts("http_request_duration_milliseconds", "HTTP request duration", msBuckets), []string{"endpoint", "method", "status_code"})

	m.memoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.goroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Live goroutines"))
	m.gcPause = auto.NewHistogram(m.histOpts("system_gc_pause_milliseconds", "Average GC pause", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10}))
}

// RecordPass records a finished aggregation pass.
func RecordPass(outcome string, durationMs float64) {
	globalManager.passesTotal.WithLabelValues(outcome).Inc()
	globalManager.passDuration.Observe(durationMs)
	if outcome == OutcomeSuccess {
		globalManager.passLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// SetSchedulerRunning flips the scheduler state gauge.
func SetSchedulerRunning(running bool) {
	v := 0.0
	if running {
		v = 1
	}
	globalManager.schedulerUp.Set(v)
}

// RecordReportClassified counts one ingestion filter decision.
func RecordReportClassified(outcome string) {
	globalManager.reportsClassified.WithLabelValues(outcome).Inc()
}

// RecordReportWeight observes the weight given to an eligible report.
func RecordReportWeight(w float64) {
	globalManager.reportWeight.Observe(w)
}

// RecordBucketScored counts a written score and its latency.
func RecordBucketScored(latencyMs float64) {
	globalManager.bucketsScored.Inc()
	globalManager.bucketLatency.Observe(latencyMs)
}

// RecordStoreError counts a store failure.
func RecordStoreError(store, op string) {
	globalManager.storeErrors.WithLabelValues(store, op).Inc()
}

// RecordScoreEvent counts a published (or failed) score change event.
func RecordScoreEvent(outcome string) {
	globalManager.publishTotal.WithLabelValues(outcome).Inc()
}

// UpdateOverallScore sets the bucket-level overall score gauge.
func UpdateOverallScore(timeBucket string, v float64) {
	globalManager.overallScoreGauges.WithLabelValues(timeBucket).Set(v)
}

// RecordAnalyticsDuration observes the time spent computing a snapshot.
func RecordAnalyticsDuration(period string, ms float64) {
	globalManager.analyticsDuration.WithLabelValues(period).Observe(ms)
}

// RecordAnalyticsCache counts a cache hit or miss.
func RecordAnalyticsCache(result string) {
	globalManager.analyticsCache.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCap.Set(float64(capacity)) }

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.memoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.goroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.gcPause.Observe(pauseMs) }

// GetRegistry returns the registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Outcome label values shared by callers.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomePanic     = "panic"
	OutcomeEligible  = "eligible"
	OutcomeDismissed = "dismissed"
	OutcomeMalformed = "malformed"
	CacheHit         = "hit"
	CacheMiss        = "miss"
)

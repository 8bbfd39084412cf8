// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "gapup"

// Run statuses.
const (
	StatusSuccess     = "success"
	StatusEmptySample = "empty_sample"
	StatusError       = "error"
)

// Metrics holds all Prometheus metrics for the application.
// Each instance owns its registry so tests and one-shot CLI runs do not
// share state through the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	// Analysis metrics
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	EventsSelected prometheus.Gauge
	SampleSize     prometheus.Gauge
	PointEstimate  prometheus.Gauge
	CILower        prometheus.Gauge
	CIUpper        prometheus.Gauge

	// Data source metrics
	FetchLatency *prometheus.HistogramVec
	FetchErrors  *prometheus.CounterVec
	BarsFetched  *prometheus.CounterVec

	// Cache metrics
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheOpDuration *prometheus.HistogramVec
	CacheOpErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Analysis metrics
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of analysis runs by status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Analysis run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		EventsSelected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "events_selected",
			Help:      "Extreme drop days selected in the last run",
		}),
		SampleSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "sample_size",
			Help:      "Gap outcomes in the last run",
		}),
		PointEstimate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "gap_up_probability",
			Help:      "Gap-up point estimate of the last run",
		}),
		CILower: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "gap_up_ci_lower",
			Help:      "Lower Wilson bound of the last run",
		}),
		CIUpper: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "gap_up_ci_upper",
			Help:      "Upper Wilson bound of the last run",
		}),

		// Data source metrics
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_latency_seconds",
			Help:      "Market data fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		FetchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed market data fetches",
		}, []string{"provider"}),
		BarsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketdata",
			Name:      "bars_fetched_total",
			Help:      "Total number of daily bars fetched",
		}, []string{"provider"}),

		// Cache metrics
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache reads served locally",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache reads that required a fetch",
		}),
		CacheOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Cache operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		CacheOpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operation_errors_total",
			Help:      "Total number of cache operation errors",
		}, []string{"backend", "operation"}),

		// HTTP metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),

		// Health metrics
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful analysis run",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the registry in node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// RunStats is what a completed analysis run reports.
type RunStats struct {
	Events        int
	SampleSize    int
	PointEstimate float64
	CILower       float64
	CIUpper       float64
}

// RecordRun records a finished analysis run. Gauges are only updated for
// runs that produced a report.
func (m *Metrics) RecordRun(status string, d time.Duration, stats *RunStats) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	if stats == nil {
		return
	}
	m.EventsSelected.Set(float64(stats.Events))
	m.SampleSize.Set(float64(stats.SampleSize))
	m.PointEstimate.Set(stats.PointEstimate)
	m.CILower.Set(stats.CILower)
	m.CIUpper.Set(stats.CIUpper)
	if status == StatusSuccess {
		m.LastSuccessfulRun.SetToCurrentTime()
	}
}

// RecordFetch records a market data fetch.
func (m *Metrics) RecordFetch(provider string, d time.Duration, bars int, err error) {
	m.FetchLatency.WithLabelValues(provider).Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(provider).Inc()
		return
	}
	m.BarsFetched.WithLabelValues(provider).Add(float64(bars))
}

// RecordCacheHit increments the cache hit counter.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordCacheOp records cache operation metrics.
func (m *Metrics) RecordCacheOp(backend, operation string, d time.Duration, err error) {
	m.CacheOpDuration.WithLabelValues(backend, operation).Observe(d.Seconds())
	if err != nil {
		m.CacheOpErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, code int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

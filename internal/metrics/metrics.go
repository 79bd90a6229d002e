package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request counts and latencies per route pattern.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by method, route and status.",
	}, []string{"method", "route", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(requests, duration)
	return &HTTPMetrics{requests: requests, duration: duration}
}

// Observe records one finished request.
func (m *HTTPMetrics) Observe(method, route string, status int, elapsed time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	route = normalizeLabel(route)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// AggregationMetrics records how long the purchase aggregations take.
type AggregationMetrics struct {
	duration *prometheus.HistogramVec
	failure  *prometheus.CounterVec
}

// NewAggregationMetrics registers the aggregation metrics on reg.
func NewAggregationMetrics(reg prometheus.Registerer) *AggregationMetrics {
	if reg == nil {
		return &AggregationMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aggregation_duration_seconds",
		Help:    "Duration of purchase aggregations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "scope"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregation_failure",
		Help: "Failed purchase aggregations.",
	}, []string{"kind"})
	reg.MustRegister(duration, failure)
	return &AggregationMetrics{duration: duration, failure: failure}
}

// ObserveDuration records the duration of one aggregation.
func (a *AggregationMetrics) ObserveDuration(kind, scope string, elapsed time.Duration) {
	if a == nil || a.duration == nil {
		return
	}
	a.duration.WithLabelValues(normalizeLabel(kind), normalizeLabel(scope)).Observe(elapsed.Seconds())
}

// IncFailure counts an aggregation that returned an error.
func (a *AggregationMetrics) IncFailure(kind string) {
	if a == nil || a.failure == nil {
		return
	}
	a.failure.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// PoolStat is the subset of pgxpool.Stat exported as gauges.
type PoolStat interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
}

// RegisterPoolStats exports connection pool gauges read from stat at scrape
// time.
func RegisterPoolStats(reg prometheus.Registerer, stat func() PoolStat) {
	if reg == nil || stat == nil {
		return
	}
	gauge := func(name, help string, read func(PoolStat) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			s := stat()
			if s == nil {
				return 0
			}
			return float64(read(s))
		})
	}
	reg.MustRegister(
		gauge("db_pool_total_conns", "Open database connections.", PoolStat.TotalConns),
		gauge("db_pool_idle_conns", "Idle database connections.", PoolStat.IdleConns),
		gauge("db_pool_acquired_conns", "Database connections in use.", PoolStat.AcquiredConns),
	)
}

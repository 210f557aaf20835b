// Package metrics exposes Prometheus collectors for the DriftFS engine.
//
// All collectors live on a dedicated registry so that the /metrics endpoint
// only ever serves DriftFS series plus the standard process and Go runtime
// collectors. A nil *Metrics is valid everywhere and records nothing, which
// lets callers disable metrics with zero overhead.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every DriftFS collector.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	operations *prometheus.CounterVec
	opDuration *prometheus.HistogramVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,

		httpRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftfs_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_engine_operations_total",
				Help: "Total number of engine operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		opDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "driftfs_engine_operation_duration_seconds",
				Help:    "Engine operation latency by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_cache_hits_total",
				Help: "Total number of cache hits by cache name",
			},
			[]string{"cache"},
		),
		cacheMisses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_cache_misses_total",
				Help: "Total number of cache misses by cache name",
			},
			[]string{"cache"},
		),
		cacheInvalidations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_cache_invalidations_total",
				Help: "Total number of cache entries invalidated by cache name",
			},
			[]string{"cache"},
		),
	}
}

// Handler returns the HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry. Tests only.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveOperation records one engine operation dispatched by the API layer.
func (m *Metrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHit implements the cache metrics interface.
func (m *Metrics) RecordHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

// RecordMiss implements the cache metrics interface.
func (m *Metrics) RecordMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordInvalidation implements the cache metrics interface.
func (m *Metrics) RecordInvalidation(cache string, removed int) {
	if m == nil {
		return
	}
	m.cacheInvalidations.WithLabelValues(cache).Add(float64(removed))
}

// Package monitoring exposes Prometheus metrics and health checks for the
// rendering pipeline.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reactiveviews"

// Outcome labels shared by the counters below.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors for one process. It registers on its own
// registry so tests can create as many as they like. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	backendRetries  prometheus.Counter
	renders         *prometheus.CounterVec
	fallbacks       prometheus.Counter
	transforms      *prometheus.CounterVec
	transformTime   prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	backendUp       prometheus.Gauge
	backendStarts   *prometheus.CounterVec
}

// NewMetrics creates and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Requests sent to the rendering backend",
			},
			[]string{"endpoint", "outcome"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Latency of rendering backend requests",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"endpoint"},
		),
		backendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_connection_retries_total",
			Help:      "Requests retried after a broken connection",
		}),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "component_renders_total",
				Help:      "Component islands rendered, by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_fallbacks_total",
			Help:      "Batch calls that fell back to individual rendering",
		}),
		transforms: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transforms_total",
				Help:      "Documents transformed, by dispatch strategy",
			},
			[]string{"strategy"},
		),
		transformTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_duration_seconds",
			Help:      "Time spent transforming one document",
			Buckets:   prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "render_cache_lookups_total",
				Help:      "Render cache lookups, by result",
			},
			[]string{"result"},
		),
		backendUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_up",
			Help:      "1 when the supervised backend is running",
		}),
		backendStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_starts_total",
				Help:      "Backend process start attempts",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.backendRequests,
		m.backendDuration,
		m.backendRetries,
		m.renders,
		m.fallbacks,
		m.transforms,
		m.transformTime,
		m.cacheLookups,
		m.backendUp,
		m.backendStarts,
	)

	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBackendRequest records one backend round trip.
func (m *Metrics) ObserveBackendRequest(endpoint string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.backendDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncBackendRetry counts a broken-connection retry.
func (m *Metrics) IncBackendRetry() {
	if m == nil {
		return
	}
	m.backendRetries.Inc()
}

// ObserveRender records the outcome of one island.
func (m *Metrics) ObserveRender(strategy string, err error) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(strategy, outcome(err)).Inc()
}

// IncBatchFallback counts a batch call that fell back to individual calls.
func (m *Metrics) IncBatchFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// ObserveTransform records one document transform.
func (m *Metrics) ObserveTransform(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.transforms.WithLabelValues(strategy).Inc()
	m.transformTime.Observe(d.Seconds())
}

// ObserveCacheLookup records a render cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// SetBackendUp sets the backend liveness gauge.
func (m *Metrics) SetBackendUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.backendUp.Set(1)
		return
	}
	m.backendUp.Set(0)
}

// ObserveBackendStart records a backend spawn attempt.
func (m *Metrics) ObserveBackendStart(err error) {
	if m == nil {
		return
	}
	m.backendStarts.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// Package metrics exposes Prometheus instrumentation for aipo: upstream
// search-service queries and read-only API requests.
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

// Query kinds.
const (
	KindGroup  = "group"
	KindPoint  = "point"
	KindDetail = "detail"
)

// Query outcomes.
const (
	OutcomeMatch   = "match"
	OutcomeNoMatch = "nomatch"
	OutcomeError   = "error"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	UpstreamQueries  *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	APIRequests      *prometheus.CounterVec
}

// New creates a Metrics instance with all aipo metrics registered, plus the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		UpstreamQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aipo_upstream_queries_total",
			Help: "Queries sent to the registry search service by kind and outcome",
		}, []string{"kind", "outcome"}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aipo_upstream_query_seconds",
			Help:    "Latency of registry search service queries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aipo_api_requests_total",
			Help: "Read-only API requests by route pattern and status code",
		}, []string{"route", "status"}),
	}
}

// ObserveQuery records one upstream query. Call with time.Now() taken
// before the request was sent. A nil receiver is a no-op.
func (m *Metrics) ObserveQuery(kind, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.UpstreamQueries.WithLabelValues(kind, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveRequest records one API request.
func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

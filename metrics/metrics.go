// Package metrics holds the Prometheus collectors of the costing service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "costing"

// Outcome labels for computations.
const (
	OutcomeOK        = "ok"
	OutcomeCacheHit  = "cache_hit"
	OutcomeClientErr = "client_error"
	OutcomeDataErr   = "data_error"
	OutcomeError     = "error"
)

// Metrics groups every collector. Create one per registry.
type Metrics struct {
	Computations    *prometheus.CounterVec
	ComputeDuration *prometheus.HistogramVec
	EventsReplayed  *prometheus.CounterVec
	UnfilledUnits   *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	EventsIngested  prometheus.Counter
	WarmerRuns      *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	HTTPInFlight    prometheus.Gauge
}

// New registers all collectors on reg. A nil reg builds unregistered
// collectors, which is what tests that don't scrape want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Computations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "computations_total",
				Help:      "Summary computations by costing method and outcome",
			},
			[]string{"method", "outcome"},
		),
		ComputeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compute_duration_seconds",
				Help:      "Time to read, classify and replay one summary",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		EventsReplayed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_replayed_total",
				Help:      "Stock events folded by the replay engines",
			},
			[]string{"method"},
		),
		UnfilledUnits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unfilled_units_total",
				Help:      "Outbound units dropped because the book was empty",
			},
			[]string{"method"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Summary cache lookups by result",
			},
			[]string{"result"},
		),
		EventsIngested: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Stock events appended to the audit trail",
			},
		),
		WarmerRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warmer_runs_total",
				Help:      "Cache warmer passes by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being served",
			},
		),
	}
}

// statusRecorder captures the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count, latency and in-flight requests, keyed
// by the chi route pattern so path parameters don't explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPInFlight.Inc()
		defer m.HTTPInFlight.Dec()

		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(rw.statusCode)

		m.HTTPRequests.WithLabelValues(r.Method, route, status).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

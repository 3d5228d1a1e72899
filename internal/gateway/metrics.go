package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's prometheus instruments on a private registry
// so tests can run side by side without collector collisions.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	searchLatency prometheus.Histogram
}

// NewMetrics creates and registers the gateway instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "API requests by method, route, and status code.",
		}, []string{"method", "route", "code"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "API requests that returned a 4xx or 5xx status.",
		}, []string{"route", "code"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recall",
			Subsystem: "gateway",
			Name:      "search_duration_seconds",
			Help:      "Latency of POST /v1/memories/search.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.requests, m.errors, m.searchLatency)
	return m
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// middleware records per-request counters and search latency.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := routeLabel(r.URL.Path)
		code := strconv.Itoa(rec.code)
		m.requests.WithLabelValues(r.Method, route, code).Inc()
		if rec.code >= 400 {
			m.errors.WithLabelValues(route, code).Inc()
		}
		if r.Method == http.MethodPost && strings.HasSuffix(route, "/search") {
			m.searchLatency.Observe(time.Since(start).Seconds())
		}
	})
}

// routeLabel collapses resource ids so the label set stays bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		// ids are uuids; fixed route segments never contain a dash
		// after the first two path levels.
		if i >= 2 && strings.Contains(part, "-") {
			parts[i] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

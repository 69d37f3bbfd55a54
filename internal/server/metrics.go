// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queriesTotal counts completed query requests, partitioned by outcome:
	// "ok", "not_ready", or "error".
	queriesTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of each query
	// request, including retrieval and answer generation.
	queryDurationSeconds *prometheus.HistogramVec

	// ingestsTotal counts document ingestions, partitioned by outcome:
	// "indexed", "stale" (stored but rebuild failed), or "error".
	ingestsTotal *prometheus.CounterVec

	// indexVectors is the number of vectors in the live index, sampled on
	// every GET /api/index/health.
	indexVectors prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperlens",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperlens",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of query requests, including answer generation.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		ingestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperlens",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of document ingestions, partitioned by outcome.",
		}, []string{"outcome"}),

		indexVectors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "paperlens",
			Subsystem: "index",
			Name:      "vectors",
			Help:      "Number of vectors in the live index, sampled on health checks.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperlens",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperlens",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// httpMetrics is a middleware that records request counts and latency for
// every request, labelled by the logical handler name.
func (s *Server) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}

		handler := handlerLabel(r.URL.Path)
		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(elapsed.Seconds())
	})
}

// handlerLabel maps a request path to a bounded-cardinality handler label by
// replacing document IDs with a placeholder. Unbounded label values would
// blow up the metric cardinality.
func handlerLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	// /api/documents/{id}[/op] — the third segment is always an ID.
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		parts[2] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

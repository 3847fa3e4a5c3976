package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"

	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// ingestRequestsTotal counts POST /kb/upload requests by outcome:
	// "ok", "rejected" (client error) or "error".
	ingestRequestsTotal *prometheus.CounterVec

	// ingestChunksTotal counts chunks stored by successful uploads.
	ingestChunksTotal prometheus.Counter

	// workflowRequestsTotal counts POST /workflow/full requests by outcome.
	workflowRequestsTotal *prometheus.CounterVec

	// workflowDurationSeconds records end-to-end workflow latency.
	workflowDurationSeconds *prometheus.HistogramVec

	// llmRequestsTotal counts POST /llm/query requests by outcome.
	llmRequestsTotal *prometheus.CounterVec

	// httpRequestsTotal counts all instrumented HTTP requests,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of instrumented HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		ingestRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbrag",
			Subsystem: "ingest",
			Name:      "requests_total",
			Help:      "Total number of document uploads, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kbrag",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks embedded and stored by successful uploads.",
		}),

		workflowRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbrag",
			Subsystem: "workflow",
			Name:      "requests_total",
			Help:      "Total number of retrieval-augmented workflow requests, partitioned by outcome.",
		}, []string{"outcome"}),

		workflowDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kbrag",
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of workflow requests from receipt to answer.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		llmRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbrag",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total number of direct LLM queries, partitioned by outcome.",
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kbrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kbrag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument records request count and latency for the named handler.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}

// outcomeFor classifies an HTTP status for the per-operation counters.
func outcomeFor(status int) string {
	switch {
	case status < 400:
		return outcomeOK
	case status < 500:
		return outcomeRejected
	default:
		return outcomeError
	}
}

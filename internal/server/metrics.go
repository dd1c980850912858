// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared by the chat and index instruments.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// labelHandler partitions HTTP metrics by the registered route pattern
// rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatRequestsTotal counts completed /api/chat turns by outcome.
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/chat
	// turn, retrieval and model completion included.
	chatDurationSeconds *prometheus.HistogramVec

	// activeSessions is the number of distinct conversation sessions the
	// server currently holds in memory.
	activeSessions prometheus.Gauge

	// indexRunsTotal counts /api/index runs by outcome.
	indexRunsTotal *prometheus.CounterVec

	// indexChunksTotal counts chunks written to the vector store by /api/index.
	indexChunksTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default, keeping unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultchat",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat turns completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vaultchat",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat turns, retrieval and completion included.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultchat",
			Subsystem: "chat",
			Name:      "active_sessions",
			Help:      "Number of conversation sessions currently held in memory.",
		}),

		indexRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultchat",
			Subsystem: "index",
			Name:      "runs_total",
			Help:      "Total number of /api/index runs, partitioned by outcome.",
		}, []string{"outcome"}),

		indexChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultchat",
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Total number of vault chunks written to the vector store.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultchat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vaultchat",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

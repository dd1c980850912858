package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/vaultchat-go/internal/chat"
	"github.com/54b3r/vaultchat-go/internal/health"
	"github.com/54b3r/vaultchat-go/internal/vault"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single POST /api/chat turn end to end, including
	// retrieval and the model completion. Defaults to 90 seconds.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []health.Pinger
	// Indexer serves POST /api/index. If nil the endpoint answers 503.
	Indexer VaultIndexer
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's Prometheus metrics.
	// Defaults to prometheus.DefaultRegisterer. Tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Asker runs one conversation turn. *chat.Orchestrator satisfies it;
// tests inject a fake.
type Asker interface {
	// Ask runs the question through the conversation pipeline. Failures are
	// reported in the returned message, never as an error.
	Ask(ctx context.Context, question string) chat.Message
}

// SessionFactory builds the Asker for a session ID the first time that ID is
// seen. Subsequent requests with the same ID reuse the same Asker, so one
// session's turns share a transcript.
type SessionFactory func(sessionID string) (Asker, error)

// VaultIndexer runs a full vault indexing pass. *vault.Indexer satisfies it.
type VaultIndexer interface {
	Index(ctx context.Context) (*vault.Result, error)
}

// Server is the HTTP front-end over the conversation orchestrator.
type Server struct {
	// newSession builds the orchestrator for a previously unseen session ID.
	newSession SessionFactory
	// mu protects sessions.
	mu sync.Mutex
	// sessions maps session ID to its live orchestrator.
	sessions map[string]Asker
	// indexer serves POST /api/index. Nil when indexing is not configured.
	indexer VaultIndexer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []health.Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// SessionID keys the conversation. Empty selects the "default" session.
	SessionID string `json:"session_id,omitempty"`
	// Message is the user's question, sent to the model as-is (augmentation
	// with vault context happens server-side and is never echoed back).
	Message string `json:"message"`
}

// chatResponse is the JSON body returned by POST /api/chat.
type chatResponse struct {
	// SessionID is the session the turn was recorded under.
	SessionID string `json:"session_id"`
	// Reply is the assistant message, including any appended source citation.
	Reply string `json:"reply"`
	// Error is true when Reply describes a failed turn rather than an answer.
	Error bool `json:"error,omitempty"`
}

// indexResponse is the JSON body returned by POST /api/index.
type indexResponse struct {
	// DocumentsIndexed is the number of vault documents fully processed.
	DocumentsIndexed int `json:"documents_indexed"`
	// ChunksIndexed is the total number of chunks written to the vector store.
	ChunksIndexed int `json:"chunks_indexed"`
	// Failed lists documents that could not be indexed, if any.
	Failed []string `json:"failed,omitempty"`
}

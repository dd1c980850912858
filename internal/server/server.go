// Package server implements the HTTP server that exposes the vaultchat
// conversation pipeline over a JSON REST API. The server is started by the
// `vaultchat serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/vaultchat-go/internal/logging"
)

// New constructs a Server from the provided session factory and config.
func New(newSession SessionFactory, cfg *Config) (*Server, error) {
	if newSession == nil {
		return nil, fmt.Errorf("server: session factory must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must outlast the slowest chat turn.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 90 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	s := &Server{
		newSession: newSession,
		sessions:   make(map[string]Asker),
		indexer:    cfg.Indexer,
		cfg:        cfg,
		log:        cfg.Logger,
		pingers:    cfg.Pingers,
		metrics:    newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		s.log.Warn("API authentication is disabled; set VAULTCHAT_API_KEY to enable")
	}

	// Mutating endpoints sit behind auth and the per-IP rate limiter.
	// Probes and metrics stay open so orchestration platforms can reach them.
	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", protected(s.handleChat))
	mux.Handle("POST /api/index", protected(s.handleIndex))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("vaultchat server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// sessionFor returns the live Asker for the given session ID, building it via
// the factory on first use. Both the lookup and the build run under the lock
// so two concurrent first requests for one ID share a single orchestrator.
func (s *Server) sessionFor(sessionID string) (Asker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.sessions[sessionID]; ok {
		return a, nil
	}

	a, err := s.newSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("server: build session %q: %w", sessionID, err)
	}
	s.sessions[sessionID] = a
	s.metrics.activeSessions.Set(float64(len(s.sessions)))
	return a, nil
}

// handleChat handles POST /api/chat. One request is one conversation turn:
// the reply arrives as a single JSON document once the model has answered.
// Turn failures (model unreachable, empty reply) come back as HTTP 200 with
// the error flag set — the turn completed, its outcome was an error message.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	a, err := s.sessionFor(sessionID)
	if err != nil {
		log.Error("session setup failed", slog.Any("error", err))
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeError).Inc()
		http.Error(w, "failed to initialise session", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	start := time.Now()
	msg := a.Ask(ctx, req.Message)
	elapsed := time.Since(start)

	outcome := outcomeOK
	if msg.Err {
		outcome = outcomeError
	}
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	writeJSON(w, log, http.StatusOK, chatResponse{
		SessionID: sessionID,
		Reply:     msg.Content,
		Error:     msg.Err,
	})
}

// handleIndex handles POST /api/index by running a full vault indexing pass.
// The response reports per-run counts; documents that failed are listed but
// do not fail the request.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.indexer == nil {
		http.Error(w, "indexing is not configured", http.StatusServiceUnavailable)
		return
	}

	res, err := s.indexer.Index(r.Context())
	if err != nil {
		log.Error("index run failed", slog.Any("error", err))
		s.metrics.indexRunsTotal.WithLabelValues(outcomeError).Inc()
		http.Error(w, "index run failed", http.StatusInternalServerError)
		return
	}

	s.metrics.indexRunsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.indexChunksTotal.Add(float64(res.ChunksIndexed))

	writeJSON(w, log, http.StatusOK, indexResponse{
		DocumentsIndexed: res.DocumentsIndexed,
		ChunksIndexed:    res.ChunksIndexed,
		Failed:           res.Failed,
	})
}

// handleHealth handles GET /api/health for liveness checks. It answers as
// long as the process is up; dependency state belongs to /api/ready.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

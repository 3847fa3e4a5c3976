// Package server implements the kbrag HTTP API: PDF upload into a fresh
// knowledge-base collection, direct LLM queries, and the full
// retrieval-augmented workflow. It is started by the `kbrag serve` command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/version"
)

// New constructs a Server from the domain services and config.
func New(d Deps, cfg *Config) (*Server, error) {
	if d.Ingester == nil {
		return nil, fmt.Errorf("server: ingester must not be nil")
	}
	if d.Workflow == nil {
		return nil, fmt.Errorf("server: workflow must not be nil")
	}
	if d.Generator == nil {
		return nil, fmt.Errorf("server: generator must not be nil")
	}
	if d.Sessions == nil {
		return nil, fmt.Errorf("server: session store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	applyDefaults(cfg)

	s := &Server{
		ingester:  d.Ingester,
		workflow:  d.Workflow,
		generator: d.Generator,
		sessions:  d.Sessions,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: KBRAG_API_KEY not set, authentication disabled")
	}

	rl, stop := newRateLimiter(limitsFromConfig(cfg))
	s.stopRL = stop

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.UploadRateLimit == 0 {
		cfg.UploadRateLimit = defaultUploadRateLimit
	}
	if cfg.UploadRateBurst == 0 {
		cfg.UploadRateBurst = defaultUploadRateBurst
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = defaultCORSOrigin
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
}

// routes builds the handler tree. Domain routes sit behind auth and the
// rate limiter; probes and metrics do not.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	protectAs := func(class, name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, authMiddleware(s.cfg.APIKey, rl.limit(class, h)))
	}
	protect := func(name string, h http.HandlerFunc) http.Handler {
		return protectAs(classQuery, name, h)
	}
	open := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, h)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", open("root", s.handleRoot))
	mux.Handle("GET /api/health", open("health", s.handleHealth))
	mux.Handle("GET /api/ready", open("ready", s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	mux.Handle("POST /kb/upload", protectAs(classUpload, "kb_upload", s.handleUpload))
	mux.Handle("POST /kb/sessions", protect("kb_sessions", s.handleNewSession))
	mux.Handle("GET /kb/active", protect("kb_active", s.handleActive))
	mux.Handle("GET /kb/history", protect("kb_history", s.handleHistory))
	mux.Handle("POST /llm/query", protect("llm_query", s.handleLLMQuery))
	mux.Handle("POST /workflow/full", protect("workflow_full", s.handleWorkflow))

	return requestLogger(s.log, corsMiddleware(s.cfg.CORSOrigin, mux))
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("kbrag server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleRoot handles GET / with a short service banner.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, rootResponse{
		Message: "Knowledge Base API is running!",
		Version: version.Version,
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}

// writeError sends {"detail": msg} with the given status.
func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, errorResponse{Detail: msg})
}

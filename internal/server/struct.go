package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/kbrag-go/internal/ingestion"
	"github.com/54b3r/kbrag-go/internal/store"
	"github.com/54b3r/kbrag-go/internal/workflow"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. LLM
	// calls can be slow, so the default is generous.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// UploadRateLimit and UploadRateBurst shape the separate per-IP bucket
	// for POST /kb/upload. Default 0.5 req/s with a burst of 3.
	UploadRateLimit float64
	UploadRateBurst int
	// APIKey is the Bearer token required on /kb, /llm and /workflow routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// CORSOrigin is the single browser origin allowed to call the API
	// (default: http://localhost:3000).
	CORSOrigin string
	// MaxUploadBytes caps the size of a POST /kb/upload body (default: 32 MiB).
	MaxUploadBytes int64
	// MetricsRegistry receives the server's Prometheus collectors. Defaults
	// to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Deps are the domain services the handlers call.
type Deps struct {
	Ingester  ingester
	Workflow  answerer
	Generator workflow.Generator
	Sessions  store.CollectionStore
}

// ingester is satisfied by *ingestion.Pipeline.
type ingester interface {
	Ingest(ctx context.Context, src ingestion.Source, progress func(ingestion.Progress)) (ingestion.Result, error)
}

// answerer is satisfied by *workflow.Workflow.
type answerer interface {
	Answer(ctx context.Context, q workflow.Query) (workflow.Answer, error)
}

// Server is the kbrag HTTP API.
type Server struct {
	ingester  ingester
	workflow  answerer
	generator workflow.Generator
	sessions  store.CollectionStore

	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Detail string `json:"detail"`
}

// rootResponse is the JSON body for GET /.
type rootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// uploadResponse is the JSON body for POST /kb/upload.
type uploadResponse struct {
	Message        string `json:"message"`
	CollectionName string `json:"collection_name"`
	ChunksAdded    int    `json:"chunks_added"`
	SessionID      string `json:"session_id"`
}

// sessionResponse is the JSON body for POST /kb/sessions.
type sessionResponse struct {
	SessionID string `json:"session_id"`
}

// activeResponse is the JSON body for GET /kb/active.
type activeResponse struct {
	SessionID      string    `json:"session_id"`
	CollectionName string    `json:"collection_name"`
	ChunkCount     int       `json:"chunk_count"`
	Source         string    `json:"source,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// historyResponse is the JSON body for GET /kb/history, newest first.
type historyResponse struct {
	Ingestions []activeResponse `json:"ingestions"`
}

// llmRequest is the JSON body for POST /llm/query. Context is a pointer so
// an explicit empty string still counts as supplied.
type llmRequest struct {
	Question     string  `json:"question"`
	Context      *string `json:"context,omitempty"`
	CustomPrompt string  `json:"custom_prompt,omitempty"`
	APIKey       string  `json:"api_key,omitempty"`
	Model        string  `json:"model,omitempty"`
}

// llmResponse is the JSON body returned by POST /llm/query.
type llmResponse struct {
	Success     bool   `json:"success"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	ContextUsed bool   `json:"context_used"`
}

// workflowRequest is the JSON body for POST /workflow/full.
type workflowRequest struct {
	Question       string `json:"question"`
	APIKey         string `json:"api_key,omitempty"`
	Model          string `json:"model,omitempty"`
	CustomPrompt   string `json:"custom_prompt,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	CollectionName string `json:"collection_name,omitempty"`
}

// workflowResponse is the JSON body returned by POST /workflow/full.
type workflowResponse struct {
	Workflow      string   `json:"workflow"`
	Question      string   `json:"question"`
	ContextFromKB []string `json:"context_from_kb"`
	FinalAnswer   string   `json:"final_answer"`
	ModelUsed     string   `json:"model_used"`
	ContextFound  bool     `json:"context_found"`
}

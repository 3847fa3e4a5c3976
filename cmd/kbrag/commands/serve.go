package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/kbrag-go/internal/config"
	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/server"
	"github.com/54b3r/kbrag-go/internal/tracing"
)

// startupProbeTimeout bounds the dependency check run before listening.
const startupProbeTimeout = 10 * time.Second

// NewServeCmd constructs the `kbrag serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kbrag HTTP API",
		Long: `Start the kbrag HTTP API.

Routes:
  POST /kb/upload       upload a PDF (multipart field "file")
  POST /kb/sessions     mint a session id
  GET  /kb/active       show the session's active collection
  GET  /kb/history      list recent ingestions across sessions
  POST /llm/query       ask the LLM directly with optional context
  POST /workflow/full   retrieve from the active collection and answer
  GET  /api/health      liveness
  GET  /api/ready       dependency readiness
  GET  /metrics         Prometheus metrics

Examples:
  kbrag serve
  kbrag serve --port 9090
  VECTOR_STORE=qdrant MODEL_PROVIDER=ollama kbrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush, ok := tracing.Setup()
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			svc, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer svc.Close()

			log.Info("provider configured",
				slog.String("provider", string(svc.providerCfg.Backend)),
				slog.String("model", svc.providerCfg.ModelName()),
			)

			pingers := buildPingers(svc)
			probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
			if err := server.NewMultiPinger(pingers...).Ping(probeCtx); err != nil {
				log.Warn("serve: dependency not ready at startup", slog.Any("error", err))
			}
			cancel()

			srv, err := server.New(server.Deps{
				Ingester:  svc.pipeline,
				Workflow:  svc.workflow,
				Generator: svc.generator,
				Sessions:  svc.sessions,
			}, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         pingers,
				RateLimit:       float64(config.EnvFloat32("KBRAG_RATE_LIMIT", 0)),
				RateBurst:       config.EnvInt("KBRAG_RATE_BURST", 0),
				UploadRateLimit: float64(config.EnvFloat32("KBRAG_UPLOAD_RATE_LIMIT", 0)),
				UploadRateBurst: config.EnvInt("KBRAG_UPLOAD_RATE_BURST", 0),
				APIKey:          config.Env("KBRAG_API_KEY", ""),
				CORSOrigin:      config.Env("KBRAG_CORS_ORIGIN", ""),
				MaxUploadBytes:  int64(config.EnvInt("KBRAG_MAX_UPLOAD_MB", 32)) << 20,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on")

	return cmd
}

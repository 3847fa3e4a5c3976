package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/54b3r/kbrag-go/internal/config"
	"github.com/54b3r/kbrag-go/internal/embedder"
	"github.com/54b3r/kbrag-go/internal/extract"
	"github.com/54b3r/kbrag-go/internal/ingestion"
	"github.com/54b3r/kbrag-go/internal/llm"
	"github.com/54b3r/kbrag-go/internal/provider"
	"github.com/54b3r/kbrag-go/internal/rag"
	"github.com/54b3r/kbrag-go/internal/server"
	"github.com/54b3r/kbrag-go/internal/store"
	"github.com/54b3r/kbrag-go/internal/workflow"
)

// defaultVectorPath is where chromem persists collections when
// VECTOR_STORE_PATH is unset. Setting it to "" keeps them in memory.
const defaultVectorPath = "./chroma_data"

// services bundles everything the serve, ingest and ask commands share.
type services struct {
	providerCfg  *provider.Config
	embedder     rag.Embedder
	vectors      rag.VectorStore
	vectorsName  string
	sessions     store.CollectionStore
	pipeline     *ingestion.Pipeline
	generator    *llm.Generator
	workflow     *workflow.Workflow
	closeVectors func()
	closeStore   func()
}

// Close releases the vector and session stores.
func (s *services) Close() {
	s.closeStore()
	s.closeVectors()
}

// buildServices wires the domain stack from the environment.
func buildServices(ctx context.Context, log *slog.Logger) (*services, error) {
	embedder.WarnMisconfiguration(log)

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embedder.Backend()))

	vectors, vectorsName, closeVectors, err := buildVectorStore(log)
	if err != nil {
		return nil, err
	}

	sessions, closeStore, err := buildSessionStore(log)
	if err != nil {
		closeVectors()
		return nil, err
	}

	fail := func(err error) (*services, error) {
		closeStore()
		closeVectors()
		return nil, err
	}

	pipeline, err := ingestion.NewPipeline(extract.NewPDFExtractor(), emb, vectors, sessions, &ingestion.Config{
		ChunkSize: config.EnvInt("RAG_CHUNK_SIZE", ingestion.DefaultChunkSize),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create pipeline: %w", err))
	}

	providerCfg := provider.ConfigFromEnv()
	generator := llm.NewGenerator(providerCfg, &llm.Options{
		MaxContextTokens: config.EnvInt("MODEL_MAX_CONTEXT_TOKENS", 0),
	})

	retriever, err := rag.NewRetriever(emb, vectors, 0)
	if err != nil {
		return fail(fmt.Errorf("failed to create retriever: %w", err))
	}
	wf, err := workflow.New(retriever, sessions, generator, config.EnvInt("RAG_TOP_K", rag.DefaultTopK))
	if err != nil {
		return fail(fmt.Errorf("failed to create workflow: %w", err))
	}

	return &services{
		providerCfg:  providerCfg,
		embedder:     emb,
		vectors:      vectors,
		vectorsName:  vectorsName,
		sessions:     sessions,
		pipeline:     pipeline,
		generator:    generator,
		workflow:     wf,
		closeVectors: closeVectors,
		closeStore:   closeStore,
	}, nil
}

// buildVectorStore opens the store selected by VECTOR_STORE: chromem
// (default, persisted under VECTOR_STORE_PATH) or qdrant. The returned name
// labels the backend in readiness responses.
func buildVectorStore(log *slog.Logger) (rag.VectorStore, string, func(), error) {
	backend := strings.ToLower(config.Env("VECTOR_STORE", "chromem"))

	switch backend {
	case "chromem":
		path, set := os.LookupEnv("VECTOR_STORE_PATH")
		if !set {
			path = defaultVectorPath
		}
		path = strings.TrimSpace(path)
		vs, err := rag.NewChromemStore(&rag.ChromemConfig{Path: path})
		if err != nil {
			return nil, "", nil, fmt.Errorf("failed to open chromem store at %q: %w", path, err)
		}
		if path == "" {
			log.Warn("vector store is in-memory; collections are lost on exit")
		}
		log.Info("vector store ready", slog.String("backend", backend), slog.String("path", path))
		return vs, backend, func() { _ = vs.Close() }, nil

	case "qdrant":
		cfg := &rag.QdrantConfig{
			Host:       config.Env("QDRANT_HOST", "localhost"),
			Port:       config.EnvInt("QDRANT_PORT", 6334),
			VectorSize: uint64(embedder.DefaultDimensions(embedder.Backend())), //nolint:gosec // dimensions are small positive ints
			APIKey:     config.Env("QDRANT_API_KEY", ""),
			UseTLS:     config.EnvBool("QDRANT_TLS", false),
		}
		vs, err := rag.NewQdrantStore(cfg)
		if err != nil {
			return nil, "", nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		log.Info("vector store ready",
			slog.String("backend", backend),
			slog.String("host", cfg.Host),
			slog.Int("port", cfg.Port),
			slog.Uint64("vector_size", cfg.VectorSize),
		)
		return vs, backend, func() { _ = vs.Close() }, nil

	default:
		return nil, "", nil, fmt.Errorf("unknown VECTOR_STORE %q (valid: chromem, qdrant)", backend)
	}
}

// buildSessionStore opens the active-collection store. KBRAG_SESSION_DB
// overrides the default path (~/.kbrag/sessions.db); "disabled" keeps
// pointers in memory only.
func buildSessionStore(log *slog.Logger) (store.CollectionStore, func(), error) {
	dbPath := config.Env("KBRAG_SESSION_DB", "")
	if dbPath == "disabled" {
		log.Info("sessions: persistence disabled via KBRAG_SESSION_DB=disabled")
		return store.NewMemoryStore(), func() {}, nil
	}

	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("sessions: could not resolve default DB path, using memory", slog.Any("error", err))
			return store.NewMemoryStore(), func() {}, nil
		}
	}

	ss, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store %q: %w", dbPath, err)
	}
	log.Info("sessions: store opened", slog.String("path", dbPath))
	return ss, func() { _ = ss.Close() }, nil
}

// buildPingers returns the readiness probes for every external dependency.
func buildPingers(svc *services) []server.Pinger {
	return []server.Pinger{
		server.NewVectorStorePinger(svc.vectors, svc.vectorsName),
		server.NewEmbedderPinger(svc.embedder, "embedder_"+embedder.Backend()),
		server.NewSessionStorePinger(svc.sessions),
		server.NewLLMPinger(svc.generator.Ping, string(svc.providerCfg.Backend)),
	}
}

// describeIngestError renders pipeline failures for terminal output.
func describeIngestError(err error) string {
	var ierr *ingestion.IngestionError
	var xerr *extract.ExtractionError
	switch {
	case errors.As(err, &xerr):
		return fmt.Sprintf("could not read PDF: %v", xerr.Err)
	case errors.As(err, &ierr):
		return fmt.Sprintf("%s step failed: %v", ierr.Stage, ierr.Err)
	default:
		return err.Error()
	}
}

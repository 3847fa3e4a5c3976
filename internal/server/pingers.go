package server

import (
	"context"
	"fmt"

	"github.com/54b3r/kbrag-go/internal/rag"
	"github.com/54b3r/kbrag-go/internal/store"
)

// VectorStorePinger probes the vector store backend (Qdrant HealthCheck RPC
// or chromem collection listing). It is used by GET /api/ready.
type VectorStorePinger struct {
	store rag.VectorStore
	name  string
}

// NewVectorStorePinger constructs a VectorStorePinger. name labels the
// backend in readiness responses (e.g. "qdrant").
func NewVectorStorePinger(vs rag.VectorStore, name string) *VectorStorePinger {
	return &VectorStorePinger{store: vs, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *VectorStorePinger) Name() string { return p.name }

// Ping delegates to the store's own health check.
func (p *VectorStorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a single short
// string. Embedding APIs bill per token, so this costs one token per probe.
type EmbedderPinger struct {
	embedder rag.Embedder
	name     string
}

// NewEmbedderPinger constructs an EmbedderPinger labelled name.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds "ping" and checks that one non-empty vector came back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}

// SessionStorePinger probes the active-collection store.
type SessionStorePinger struct {
	store store.CollectionStore
}

// NewSessionStorePinger constructs a SessionStorePinger.
func NewSessionStorePinger(cs store.CollectionStore) *SessionStorePinger {
	return &SessionStorePinger{store: cs}
}

// Name returns the dependency label used in readiness responses.
func (p *SessionStorePinger) Name() string { return "sessions" }

// Ping checks that the session database answers.
func (p *SessionStorePinger) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

// LLMPinger checks that the default chat model can be constructed from the
// configured credentials. It sends no request, so it costs no tokens.
type LLMPinger struct {
	check func(ctx context.Context) error
	name  string
}

// NewLLMPinger constructs an LLMPinger around check, typically
// (*llm.Generator).Ping.
func NewLLMPinger(check func(ctx context.Context) error, name string) *LLMPinger {
	return &LLMPinger{check: check, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the configuration check.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if err := p.check(ctx); err != nil {
		return fmt.Errorf("model unavailable: %w", err)
	}
	return nil
}

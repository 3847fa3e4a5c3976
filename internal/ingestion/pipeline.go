// Package ingestion turns an uploaded document into a fresh, searchable
// knowledge-base collection: extract text → chunk → embed each chunk →
// store → activate. The collection becomes the session's active collection
// only after every step has succeeded.
package ingestion

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/rag"
	"github.com/54b3r/kbrag-go/internal/store"
)

// Pipeline stages reported in IngestionError and Progress.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StageName     = "name"
	StageCreate   = "create"
	StageEmbed    = "embed"
	StageAdd      = "add"
	StageActivate = "activate"
)

// collectionPrefix starts every generated collection name.
const collectionPrefix = "kb_"

// defaultNameAttempts bounds retries when a generated name collides.
const defaultNameAttempts = 3

// Extractor reads the text layer of a document on disk.
type Extractor interface {
	ExtractFile(path string) (string, error)
}

// Source is one document to ingest.
type Source struct {
	// Path is the document's location on disk.
	Path string
	// Name is the original file name, recorded with the pointer. Defaults
	// to the base of Path.
	Name string
	// SessionID selects whose active collection is replaced. Empty means
	// store.DefaultSession.
	SessionID string
}

// Result describes a completed ingestion.
type Result struct {
	CollectionName string
	ChunkCount     int
	SessionID      string
}

// Progress is reported after each chunk is embedded.
type Progress struct {
	Stage string
	Done  int
	Total int
}

// IngestionError reports which stage of an ingestion failed.
type IngestionError struct {
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion: %s failed: %v", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Config holds pipeline settings.
type Config struct {
	// ChunkSize is the chunk width in characters. Defaults to 1000.
	ChunkSize int

	// NameAttempts bounds collection-name retries on collision. Defaults to 3.
	NameAttempts int

	// NewName generates collection names. Defaults to "kb_" + 16 random
	// lowercase hex digits.
	NewName func() (string, error)
}

// Pipeline runs ingestions. It is safe for concurrent use; concurrent
// ingestions always create distinct collections.
type Pipeline struct {
	extractor Extractor
	embedder  rag.Embedder
	vectors   rag.VectorStore
	pointers  store.CollectionStore
	cfg       Config
}

// NewPipeline wires a Pipeline from its dependencies.
func NewPipeline(extractor Extractor, embedder rag.Embedder, vectors rag.VectorStore, pointers store.CollectionStore, cfg *Config) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("ingestion: extractor must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if vectors == nil {
		return nil, fmt.Errorf("ingestion: vector store must not be nil")
	}
	if pointers == nil {
		return nil, fmt.Errorf("ingestion: collection store must not be nil")
	}

	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.NameAttempts <= 0 {
		c.NameAttempts = defaultNameAttempts
	}
	if c.NewName == nil {
		c.NewName = NewCollectionName
	}

	return &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		vectors:   vectors,
		pointers:  pointers,
		cfg:       c,
	}, nil
}

// Ingest processes src and, on success, makes the new collection the
// session's active collection. A failed ingestion leaves the previous
// pointer untouched; any collection it created stays behind unreferenced.
// progress may be nil.
func (p *Pipeline) Ingest(ctx context.Context, src Source, progress func(Progress)) (Result, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	log := logging.FromContext(ctx)
	start := time.Now()

	session, err := store.NormalizeSession(src.SessionID)
	if err != nil {
		return Result{}, &IngestionError{Stage: StageValidate, Err: err}
	}
	name := src.Name
	if name == "" {
		name = filepath.Base(src.Path)
	}

	text, err := p.extractor.ExtractFile(src.Path)
	if err != nil {
		return Result{}, &IngestionError{Stage: StageExtract, Err: err}
	}

	chunks := Chunk(text, p.cfg.ChunkSize)
	if len(chunks) == 0 {
		log.Warn("ingestion: document has no extractable text, collection will be empty",
			slog.String("source", name))
	}

	collection, err := p.createCollection(ctx)
	if err != nil {
		return Result{}, err
	}
	log = log.With(slog.String("collection", collection), slog.String("session_id", session))
	log.Info("ingestion: collection created", slog.Int("chunks", len(chunks)))

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return Result{}, &IngestionError{Stage: StageEmbed, Err: err}
		}
		vecs, err := p.embedder.Embed(ctx, []string{chunk})
		if err != nil {
			return Result{}, &IngestionError{Stage: StageEmbed, Err: fmt.Errorf("chunk %d: %w", i, err)}
		}
		if len(vecs) != 1 {
			return Result{}, &IngestionError{Stage: StageEmbed, Err: fmt.Errorf("chunk %d: embedder returned %d vectors", i, len(vecs))}
		}
		ids[i] = ChunkID(i)
		embeddings[i] = vecs[0]
		progress(Progress{Stage: StageEmbed, Done: i + 1, Total: len(chunks)})
		log.Debug("ingestion: chunk embedded", slog.Int("chunk", i+1), slog.Int("total", len(chunks)))
	}

	if err := p.vectors.Add(ctx, collection, ids, chunks, embeddings); err != nil {
		return Result{}, &IngestionError{Stage: StageAdd, Err: err}
	}

	err = p.pointers.SetActive(ctx, store.ActiveCollection{
		SessionID:  session,
		Collection: collection,
		ChunkCount: len(chunks),
		Source:     name,
	})
	if err != nil {
		return Result{}, &IngestionError{Stage: StageActivate, Err: err}
	}

	log.Info("ingestion: complete",
		slog.Int("chunks", len(chunks)),
		slog.Duration("duration", time.Since(start)),
	)
	return Result{CollectionName: collection, ChunkCount: len(chunks), SessionID: session}, nil
}

// createCollection creates a uniquely named collection, retrying on
// collision up to cfg.NameAttempts times.
func (p *Pipeline) createCollection(ctx context.Context) (string, error) {
	var lastErr error
	for range p.cfg.NameAttempts {
		name, err := p.cfg.NewName()
		if err != nil {
			return "", &IngestionError{Stage: StageName, Err: err}
		}
		err = p.vectors.CreateCollection(ctx, name)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, rag.ErrCollectionExists) {
			return "", &IngestionError{Stage: StageCreate, Err: err}
		}
		logging.FromContext(ctx).Warn("ingestion: collection name collision, retrying", slog.String("collection", name))
		lastErr = err
	}
	return "", &IngestionError{
		Stage: StageCreate,
		Err:   fmt.Errorf("no free name after %d attempts: %w", p.cfg.NameAttempts, lastErr),
	}
}

// NewCollectionName returns "kb_" followed by 16 random lowercase hex digits.
func NewCollectionName() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("ingestion: generate collection name: %w", err)
	}
	return collectionPrefix + hex.EncodeToString(b[:]), nil
}

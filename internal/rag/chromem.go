package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress gzips the persisted documents.
	Compress bool
}

// ChromemStore implements VectorStore on an embedded chromem-go database.
// Vectors are always supplied by the caller; the store never embeds text.
type ChromemStore struct {
	db   *chromem.DB
	path string

	// mu serialises collection creation and guards cols and dims.
	mu sync.Mutex
	// cols caches resolved collections. chromem's GetCollection writes to
	// the collection it returns, so it is only ever called under mu.
	cols map[string]*chromem.Collection
	// dims caches each collection's dimensionality once known.
	dims map[string]int
}

// errNoEmbedding is what the store's embedding func returns. chromem only
// calls it for documents or queries without a vector, which never happens
// through this package.
var errNoEmbedding = errors.New("rag: chromem store requires precomputed embeddings")

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// NewChromemStore opens (or creates) the database at cfg.Path.
func NewChromemStore(cfg *ChromemConfig) (*ChromemStore, error) {
	if cfg == nil {
		cfg = &ChromemConfig{}
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("chromem: failed to open %s: %w", cfg.Path, err)
		}
	}

	return &ChromemStore{
		db:   db,
		path: cfg.Path,
		cols: make(map[string]*chromem.Collection),
		dims: make(map[string]int),
	}, nil
}

// collection resolves name, or returns nil when it does not exist.
func (s *ChromemStore) collection(name string) *chromem.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(name)
}

// lookup is collection for callers already holding s.mu.
func (s *ChromemStore) lookup(name string) *chromem.Collection {
	if col, ok := s.cols[name]; ok {
		return col
	}
	col := s.db.GetCollection(name, noEmbedding)
	if col != nil {
		s.cols[name] = col
	}
	return col
}

// CreateCollection creates an empty collection.
func (s *ChromemStore) CreateCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookup(name) != nil {
		return fmt.Errorf("chromem: %q: %w", name, ErrCollectionExists)
	}
	col, err := s.db.CreateCollection(name, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("chromem: failed to create collection %q: %w", name, err)
	}
	s.cols[name] = col
	return nil
}

// Add stores the batch in collection.
func (s *ChromemStore) Add(ctx context.Context, collection string, ids, documents []string, embeddings [][]float32) error {
	dim, err := validateBatch(ids, documents, embeddings)
	if err != nil {
		return fmt.Errorf("chromem: %w", err)
	}

	col := s.collection(collection)
	if col == nil {
		return fmt.Errorf("chromem: %q: %w", collection, ErrCollectionNotFound)
	}
	if dim == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDimension(ctx, collection, col, embeddings[0]); err != nil {
		return err
	}

	docs := make([]chromem.Document, len(ids))
	for i := range ids {
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   documents[i],
			Embedding: embeddings[i],
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem: failed to add %d documents to %q: %w", len(docs), collection, err)
	}

	s.dims[collection] = dim
	return nil
}

// Query returns up to n nearest documents, best first.
func (s *ChromemStore) Query(ctx context.Context, collection string, embedding []float32, n int) ([]Document, error) {
	col := s.collection(collection)
	if col == nil {
		return nil, fmt.Errorf("chromem: %q: %w", collection, ErrCollectionNotFound)
	}

	count := col.Count()
	if n > count {
		n = count
	}
	if n <= 0 {
		return []Document{}, nil
	}

	s.mu.Lock()
	err := s.checkDimension(ctx, collection, col, embedding)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query %q failed: %w", collection, err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{
			ID:       r.ID,
			Content:  r.Content,
			Distance: 1 - r.Similarity,
		}
	}
	return docs, nil
}

// checkDimension verifies vec against the collection's dimensionality.
// Collections loaded from disk have no cached dimension; for those a
// one-result probe query decides, since chromem rejects vectors whose
// length differs from the stored ones. Callers hold s.mu.
func (s *ChromemStore) checkDimension(ctx context.Context, name string, col *chromem.Collection, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("chromem: %q: %w: empty vector", name, ErrDimensionMismatch)
	}
	if want, ok := s.dims[name]; ok {
		if len(vec) != want {
			return fmt.Errorf("chromem: %q expects %d dimensions, got %d: %w", name, want, len(vec), ErrDimensionMismatch)
		}
		return nil
	}
	if col.Count() == 0 {
		return nil
	}

	if _, err := col.QueryEmbedding(ctx, vec, 1, nil, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("chromem: %q: %w", name, ctxErr)
		}
		return fmt.Errorf("chromem: %q: %w: %v", name, ErrDimensionMismatch, err)
	}
	s.dims[name] = len(vec)
	return nil
}

// Ping reports whether the persistence directory is still present. An
// in-memory store is always ready.
func (s *ChromemStore) Ping(_ context.Context) error {
	if s.path == "" {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("chromem: persistence dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("chromem: persistence path %s is not a directory", s.path)
	}
	return nil
}

// Close is a no-op; persistent chromem databases write through on every add.
func (s *ChromemStore) Close() error { return nil }

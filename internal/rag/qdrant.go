package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// VectorSize is the dimensionality of every collection this store
	// creates. It must match the configured embedder.
	VectorSize uint64

	// APIKey is the optional Qdrant API key.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Payload keys written alongside every point.
const (
	payloadChunkID = "chunk_id"
	payloadContent = "content"
)

// pointNamespace seeds the UUIDv5 point ids derived from chunk ids.
var pointNamespace = uuid.MustParse("6f1c7a4e-2b0d-4c8e-9a57-3d2e1f0b9c11")

// QdrantStore implements VectorStore with one Qdrant collection per
// knowledge base.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig

	// mu guards dims, the vector size each collection was created with.
	mu   sync.Mutex
	dims map[string]uint64
}

// NewQdrantStore connects to Qdrant. Collections are created on demand by
// CreateCollection.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: config must not be nil")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg, dims: make(map[string]uint64)}, nil
}

// CreateCollection creates a cosine-distance collection sized to the
// configured vector size.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection %q: %w", name, err)
	}
	if exists {
		return fmt.Errorf("qdrant: %q: %w", name, ErrCollectionExists)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}
	s.remember(name, s.cfg.VectorSize)
	return nil
}

// Add upserts the batch and waits for it to be indexed.
func (s *QdrantStore) Add(ctx context.Context, collection string, ids, documents []string, embeddings [][]float32) error {
	dim, err := validateBatch(ids, documents, embeddings)
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if dim == 0 {
		return nil
	}
	if err := s.checkDimension(ctx, collection, dim); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i := range ids {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(collection, ids[i])),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadChunkID: ids[i],
				payloadContent: documents[i],
			}),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", collection, err)
	}
	return nil
}

// Query runs a cosine similarity search and returns up to n documents.
func (s *QdrantStore) Query(ctx context.Context, collection string, embedding []float32, n int) ([]Document, error) {
	if err := s.checkDimension(ctx, collection, len(embedding)); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []Document{}, nil
	}

	limit := uint64(n)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search in %q failed: %w", collection, err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		doc := Document{
			ID:       r.GetId().GetUuid(),
			Distance: 1 - r.GetScore(),
		}
		if p := r.GetPayload(); p != nil {
			if v, ok := p[payloadChunkID]; ok {
				doc.ID = v.GetStringValue()
			}
			if v, ok := p[payloadContent]; ok {
				doc.Content = v.GetStringValue()
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Ping runs Qdrant's health check RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// checkDimension verifies dim against the size the collection was created
// with. It also reports ErrCollectionNotFound for unknown collections.
func (s *QdrantStore) checkDimension(ctx context.Context, collection string, dim int) error {
	want, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	if uint64(dim) != want { //nolint:gosec // dim is a vector length
		return fmt.Errorf("qdrant: %q expects %d dimensions, got %d: %w",
			collection, want, dim, ErrDimensionMismatch)
	}
	return nil
}

// dimension returns the collection's vector size, asking Qdrant once per
// collection. Collections created by an earlier run may differ from the
// configured size.
func (s *QdrantStore) dimension(ctx context.Context, collection string) (uint64, error) {
	s.mu.Lock()
	want, ok := s.dims[collection]
	s.mu.Unlock()
	if ok {
		return want, nil
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: failed to check collection %q: %w", collection, err)
	}
	if !exists {
		return 0, fmt.Errorf("qdrant: %q: %w", collection, ErrCollectionNotFound)
	}

	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: failed to read collection %q: %w", collection, err)
	}
	want = vectorSize(info, s.cfg.VectorSize)
	s.remember(collection, want)
	return want, nil
}

func (s *QdrantStore) remember(collection string, size uint64) {
	s.mu.Lock()
	s.dims[collection] = size
	s.mu.Unlock()
}

// vectorSize extracts the unnamed vector size from info, or def when the
// collection uses named vectors this store never creates.
func vectorSize(info *qdrant.CollectionInfo, def uint64) uint64 {
	if size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size > 0 {
		return size
	}
	return def
}

// pointID maps a chunk id to a stable UUID. Qdrant only accepts integer or
// UUID point ids, and the same chunk id appears in every collection.
func pointID(collection, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+"/"+chunkID)).String()
}

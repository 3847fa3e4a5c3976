// Package rag defines the storage and retrieval contracts behind kbrag's
// knowledge bases: named vector collections, text embedders, and the
// retriever that combines the two. Backends (chromem-go, Qdrant) satisfy
// these interfaces so the ingestion and query paths never depend on one.
package rag

import (
	"context"
)

// Document is one stored chunk as returned by a similarity query.
type Document struct {
	// ID is the chunk id supplied at insert time (e.g. "chunk_0").
	ID string

	// Content is the chunk text.
	Content string

	// Distance is 1 - cosine similarity to the query vector; smaller is
	// closer.
	Distance float32
}

// VectorStore manages named collections of (id, text, embedding) triples.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// CreateCollection creates an empty collection. It returns
	// ErrCollectionExists when the name is taken.
	CreateCollection(ctx context.Context, name string) error

	// Add stores the parallel ids/documents/embeddings slices in collection.
	// The first non-empty Add fixes the collection's dimensionality; later
	// vectors of another length fail with ErrDimensionMismatch.
	Add(ctx context.Context, collection string, ids, documents []string, embeddings [][]float32) error

	// Query returns up to n documents ordered best match first. An empty
	// collection yields an empty slice.
	Query(ctx context.Context, collection string, embedding []float32, n int) ([]Document, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts texts into dense vectors. The returned slice is
// parallel to texts and every vector has the same length.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever embeds a question and fetches the closest chunks from a
// collection.
type Retriever interface {
	Retrieve(ctx context.Context, collection, query string, topK int) ([]Document, error)
}

package rag

import (
	"context"
	"fmt"
)

// DefaultTopK is the number of chunks retrieved when the caller passes 0.
const DefaultTopK = 3

// DefaultRetriever implements Retriever by embedding the query with an
// Embedder and searching a VectorStore.
type DefaultRetriever struct {
	embedder    Embedder
	store       VectorStore
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever. A non-positive defaultTopK
// uses DefaultTopK.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds query and returns the topK closest chunks of collection.
// Failures are reported as *RetrievalError.
func (r *DefaultRetriever) Retrieve(ctx context.Context, collection, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &RetrievalError{Stage: "embed", Err: err}
	}
	if len(embeddings) != 1 {
		return nil, &RetrievalError{Stage: "embed", Err: fmt.Errorf("embedder returned %d vectors for 1 query", len(embeddings))}
	}

	docs, err := r.store.Query(ctx, collection, embeddings[0], topK)
	if err != nil {
		return nil, &RetrievalError{Stage: "query", Err: err}
	}
	return docs, nil
}

package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrCollectionExists is returned when creating a collection whose name
	// is already taken.
	ErrCollectionExists = errors.New("rag: collection already exists")

	// ErrCollectionNotFound is returned when adding to or querying a
	// collection that does not exist.
	ErrCollectionNotFound = errors.New("rag: collection not found")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the collection's dimensionality.
	ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

	// ErrLengthMismatch is returned when the ids, documents and embeddings
	// passed to Add have different lengths.
	ErrLengthMismatch = errors.New("rag: ids, documents and embeddings differ in length")
)

// RetrievalError tags a retriever failure with the step that failed:
// "embed" or "query".
type RetrievalError struct {
	Stage string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("rag: %s failed: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// validateBatch checks the Add arguments and returns the batch's common
// vector length (0 for an empty batch).
func validateBatch(ids, documents []string, embeddings [][]float32) (int, error) {
	if len(ids) != len(documents) || len(ids) != len(embeddings) {
		return 0, fmt.Errorf("%w: %d ids, %d documents, %d embeddings",
			ErrLengthMismatch, len(ids), len(documents), len(embeddings))
	}
	if len(embeddings) == 0 {
		return 0, nil
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector for %q", ErrDimensionMismatch, ids[0])
	}
	for i, e := range embeddings {
		if len(e) != dim {
			return 0, fmt.Errorf("%w: %q has %d dimensions, batch has %d",
				ErrDimensionMismatch, ids[i], len(e), dim)
		}
	}
	return dim, nil
}

package rag

import (
	"errors"
	"testing"
)

func TestValidateBatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ids     []string
		docs    []string
		embs    [][]float32
		wantDim int
		wantErr error
	}{
		{name: "empty batch", wantDim: 0},
		{
			name:    "consistent",
			ids:     []string{"a", "b"},
			docs:    []string{"x", "y"},
			embs:    [][]float32{{1, 2}, {3, 4}},
			wantDim: 2,
		},
		{
			name:    "length mismatch",
			ids:     []string{"a"},
			docs:    []string{"x", "y"},
			embs:    [][]float32{{1}},
			wantErr: ErrLengthMismatch,
		},
		{
			name:    "ragged vectors",
			ids:     []string{"a", "b"},
			docs:    []string{"x", "y"},
			embs:    [][]float32{{1, 2}, {3}},
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "zero length vector",
			ids:     []string{"a"},
			docs:    []string{"x"},
			embs:    [][]float32{{}},
			wantErr: ErrDimensionMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dim, err := validateBatch(tc.ids, tc.docs, tc.embs)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dim != tc.wantDim {
				t.Errorf("dim = %d, want %d", dim, tc.wantDim)
			}
		})
	}
}

func TestRetrievalError_Unwrap(t *testing.T) {
	t.Parallel()
	err := &RetrievalError{Stage: "query", Err: ErrCollectionNotFound}
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Error("expected RetrievalError to unwrap to its cause")
	}
	if got := err.Error(); got != "rag: query failed: rag: collection not found" {
		t.Errorf("Error() = %q", got)
	}
}

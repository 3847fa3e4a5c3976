package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

func TestPointID_StableAndScoped(t *testing.T) {
	t.Parallel()

	a := pointID("kb_0011223344556677", "chunk_0")
	if a != pointID("kb_0011223344556677", "chunk_0") {
		t.Error("pointID must be deterministic")
	}
	if a == pointID("kb_8899aabbccddeeff", "chunk_0") {
		t.Error("same chunk id in different collections must map to different points")
	}
	if a == pointID("kb_0011223344556677", "chunk_1") {
		t.Error("different chunk ids must map to different points")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("pointID is not a UUID: %q", a)
	}
}

func TestNewQdrantStore_RequiresVectorSize(t *testing.T) {
	t.Parallel()

	if _, err := NewQdrantStore(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewQdrantStore(&QdrantConfig{Host: "localhost"}); err == nil {
		t.Error("expected error for zero vector size")
	}
}

func TestQdrantStore_CheckDimension(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// kb_old was created by an earlier run with a larger embedder.
	s := &QdrantStore{
		cfg:  &QdrantConfig{VectorSize: 384},
		dims: map[string]uint64{"kb_new": 384, "kb_old": 768},
	}

	tests := []struct {
		collection string
		dim        int
		wantErr    bool
	}{
		{"kb_new", 384, false},
		{"kb_new", 768, true},
		{"kb_old", 768, false},
		{"kb_old", 384, true},
	}
	for _, tc := range tests {
		err := s.checkDimension(ctx, tc.collection, tc.dim)
		if tc.wantErr && !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("%s/%d: expected ErrDimensionMismatch, got %v", tc.collection, tc.dim, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s/%d: unexpected error %v", tc.collection, tc.dim, err)
		}
	}
}

func TestVectorSize(t *testing.T) {
	t.Parallel()

	sized := &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: 768, Distance: qdrant.Distance_Cosine}),
			},
		},
	}
	if got := vectorSize(sized, 384); got != 768 {
		t.Errorf("vectorSize(768 collection) = %d", got)
	}

	named := &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
					"text": {Size: 1536, Distance: qdrant.Distance_Cosine},
				}),
			},
		},
	}
	if got := vectorSize(named, 384); got != 384 {
		t.Errorf("vectorSize(named vectors) = %d, want fallback 384", got)
	}
	if got := vectorSize(nil, 384); got != 384 {
		t.Errorf("vectorSize(nil) = %d, want fallback 384", got)
	}
}

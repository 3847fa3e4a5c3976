//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration embeds two chunks against a running Ollama.
//
//	ollama pull all-minilm
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"The warranty covers manufacturing defects for two years.",
		"Return shipping is paid by the customer unless the item is faulty.",
	}
	embeddings, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v (is Ollama running with %q pulled?)", err, model)
	}
	if len(embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	if len(embeddings[0]) != len(embeddings[1]) || len(embeddings[0]) == 0 {
		t.Fatalf("inconsistent dimensions: %d vs %d", len(embeddings[0]), len(embeddings[1]))
	}
	t.Logf("model=%s dim=%d", model, len(embeddings[0]))
}

package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/54b3r/kbrag-go/internal/ingestion"
	"github.com/54b3r/kbrag-go/internal/llm"
	"github.com/54b3r/kbrag-go/internal/rag"
	"github.com/54b3r/kbrag-go/internal/store"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// fakeEmbedder returns vectors[text] when set, otherwise {1, 0, 0}.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeGenerator records prompts and echoes a fixed answer.
type fakeGenerator struct {
	mu        sync.Mutex
	prompts   []string
	overrides []llm.Overrides
	err       error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, o llm.Overrides) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.overrides = append(g.overrides, o)
	if g.err != nil {
		return "", &llm.GenerationError{Model: g.ModelName(o), Err: g.err}
	}
	return "the answer", nil
}

func (g *fakeGenerator) ModelName(o llm.Overrides) string {
	if o.Model != "" {
		return o.Model
	}
	return "default-model"
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type textExtractor string

func (x textExtractor) ExtractFile(string) (string, error) { return string(x), nil }

type harness struct {
	vectors  *rag.ChromemStore
	pointers *store.MemoryStore
	embedder *fakeEmbedder
	gen      *fakeGenerator
	wf       *Workflow
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	vs, err := rag.NewChromemStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		vectors:  vs,
		pointers: store.NewMemoryStore(),
		embedder: &fakeEmbedder{vectors: map[string][]float32{}},
		gen:      &fakeGenerator{},
	}
	retriever, err := rag.NewRetriever(h.embedder, h.vectors, 0)
	if err != nil {
		t.Fatal(err)
	}
	h.wf, err = New(retriever, h.pointers, h.gen, 0)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// seed creates a collection holding docs with the given vectors and makes
// it the session's active collection.
func (h *harness) seed(t *testing.T, session, name string, docs []string, vecs [][]float32) {
	t.Helper()
	ctx := context.Background()
	if err := h.vectors.CreateCollection(ctx, name); err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = ingestion.ChunkID(i)
	}
	if err := h.vectors.Add(ctx, name, ids, docs, vecs); err != nil {
		t.Fatal(err)
	}
	if err := h.pointers.SetActive(ctx, store.ActiveCollection{SessionID: session, Collection: name, ChunkCount: len(docs)}); err != nil {
		t.Fatal(err)
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAnswer_NoCollection(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.wf.Answer(context.Background(), Query{Question: "anything"})
	if !errors.Is(err, store.ErrNoActiveCollection) {
		t.Fatalf("error = %v, want ErrNoActiveCollection", err)
	}
	var werr *WorkflowError
	if errors.As(err, &werr) {
		t.Errorf("no-collection error must not be a WorkflowError: %v", err)
	}
	if len(h.gen.prompts) != 0 {
		t.Error("generator called without a collection")
	}
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	// Before any ingestion the missing collection wins.
	if _, err := h.wf.Answer(ctx, Query{Question: "  "}); !errors.Is(err, store.ErrNoActiveCollection) {
		t.Fatalf("before ingestion: error = %v, want ErrNoActiveCollection", err)
	}

	h.seed(t, store.DefaultSession, "kb_blank", []string{"text"}, [][]float32{{1, 0, 0}})
	if _, err := h.wf.Answer(ctx, Query{Question: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("after ingestion: error = %v, want ErrEmptyQuestion", err)
	}
	if len(h.gen.prompts) != 0 {
		t.Errorf("generator called %d times for a blank question", len(h.gen.prompts))
	}
}

func TestAnswer_RelevanceOrderAndTopK(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.seed(t, store.DefaultSession, "kb_order", []string{"far", "near", "mid", "farther"}, [][]float32{
		{0, 1, 0},
		{1, 0, 0},
		{1, 1, 0},
		{0, 0, 1},
	})

	got, err := h.wf.Answer(context.Background(), Query{Question: "q"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !got.ContextFound {
		t.Error("ContextFound = false, want true")
	}
	want := []string{"near", "mid"}
	if len(got.ContextChunks) != rag.DefaultTopK {
		t.Fatalf("ContextChunks = %v, want %d chunks", got.ContextChunks, rag.DefaultTopK)
	}
	for i, w := range want {
		if got.ContextChunks[i] != w {
			t.Errorf("ContextChunks[%d] = %q, want %q", i, got.ContextChunks[i], w)
		}
	}
	if !strings.Contains(h.gen.lastPrompt(), "near\n\nmid\n\n") {
		t.Errorf("prompt does not join chunks with a blank line:\n%s", h.gen.lastPrompt())
	}
	if got.Collection != "kb_order" || got.Model != "default-model" || got.Answer != "the answer" {
		t.Errorf("Answer = %+v", got)
	}
}

func TestAnswer_EmptyCollectionFallsBackToNoContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, store.DefaultSession, "kb_empty", nil, nil)

	got, err := h.wf.Answer(context.Background(), Query{Question: "What is X?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got.ContextFound || len(got.ContextChunks) != 0 {
		t.Errorf("ContextFound = %v, chunks = %v; want no context", got.ContextFound, got.ContextChunks)
	}
	if want := llm.RenderPrompt("What is X?", "", ""); h.gen.lastPrompt() != want {
		t.Errorf("prompt = %q, want the no-context template", h.gen.lastPrompt())
	}
}

func TestAnswer_CustomPromptWithoutContext(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, store.DefaultSession, "kb_empty", nil, nil)

	_, err := h.wf.Answer(context.Background(), Query{
		Question:     "What is X?",
		CustomPrompt: "Q: {query}\nCtx: {context}",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	want := "Q: What is X?\nCtx: No relevant context found in the uploaded documents."
	if got := h.gen.lastPrompt(); got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}
}

func TestAnswer_OverridesPassedThrough(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, store.DefaultSession, "kb_x", []string{"x"}, [][]float32{{1, 0, 0}})

	got, err := h.wf.Answer(context.Background(), Query{Question: "q", Model: "gemini-pro", APIKey: "one-off"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "gemini-pro" {
		t.Errorf("Model = %q, want override", got.Model)
	}
	if o := h.gen.overrides[0]; o.APIKey != "one-off" || o.Model != "gemini-pro" {
		t.Errorf("overrides = %+v", o)
	}
}

func TestAnswer_SessionsAreIsolated(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, "alice", "kb_alice", []string{"alice doc"}, [][]float32{{1, 0, 0}})
	h.seed(t, "bob", "kb_bob", []string{"bob doc"}, [][]float32{{1, 0, 0}})

	for session, want := range map[string]string{"alice": "alice doc", "bob": "bob doc"} {
		got, err := h.wf.Answer(context.Background(), Query{Question: "q", SessionID: session})
		if err != nil {
			t.Fatalf("%s: %v", session, err)
		}
		if len(got.ContextChunks) != 1 || got.ContextChunks[0] != want {
			t.Errorf("%s: chunks = %v, want [%s]", session, got.ContextChunks, want)
		}
	}

	if _, err := h.wf.Answer(context.Background(), Query{Question: "q"}); !errors.Is(err, store.ErrNoActiveCollection) {
		t.Errorf("default session error = %v, want ErrNoActiveCollection", err)
	}
}

func TestAnswer_ExplicitCollection(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, store.DefaultSession, "kb_active", []string{"active"}, [][]float32{{1, 0, 0}})
	h.seed(t, "other", "kb_pinned", []string{"pinned"}, [][]float32{{1, 0, 0}})

	got, err := h.wf.Answer(context.Background(), Query{Question: "q", Collection: "kb_pinned"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Collection != "kb_pinned" || got.ContextChunks[0] != "pinned" {
		t.Errorf("Answer = %+v, want pinned collection", got)
	}

	_, err = h.wf.Answer(context.Background(), Query{Question: "q", Collection: "kb_missing"})
	var werr *WorkflowError
	if !errors.As(err, &werr) || werr.Stage != StageRetrieve {
		t.Fatalf("error = %v, want WorkflowError{retrieve}", err)
	}
	if !errors.Is(err, rag.ErrCollectionNotFound) {
		t.Errorf("error = %v, want ErrCollectionNotFound in chain", err)
	}
}

func TestAnswer_FailuresAreWorkflowErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(h *harness)
		wantStage string
		wantAs    func(error) bool
	}{
		{
			name:      "embedding failure",
			setup:     func(h *harness) { h.embedder.err = errors.New("embedder down") },
			wantStage: StageEmbed,
		},
		{
			name: "dimension mismatch",
			setup: func(h *harness) {
				h.embedder.vectors["q"] = []float32{1, 0}
			},
			wantStage: StageRetrieve,
			wantAs:    func(err error) bool { return errors.Is(err, rag.ErrDimensionMismatch) },
		},
		{
			name:      "generation failure",
			setup:     func(h *harness) { h.gen.err = errors.New("quota exceeded") },
			wantStage: StageGenerate,
			wantAs: func(err error) bool {
				var gerr *llm.GenerationError
				return errors.As(err, &gerr)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.seed(t, store.DefaultSession, "kb_fail", []string{"doc"}, [][]float32{{1, 0, 0}})
			tc.setup(h)

			_, err := h.wf.Answer(context.Background(), Query{Question: "q"})
			var werr *WorkflowError
			if !errors.As(err, &werr) {
				t.Fatalf("error = %v, want *WorkflowError", err)
			}
			if werr.Stage != tc.wantStage {
				t.Errorf("Stage = %q, want %q", werr.Stage, tc.wantStage)
			}
			if tc.wantAs != nil && !tc.wantAs(err) {
				t.Errorf("error chain %v missing expected cause", err)
			}
		})
	}
}

// TestAnswer_AfterIngestion drives the real ingestion pipeline and checks
// that the workflow finds what it stored.
func TestAnswer_AfterIngestion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	p, err := ingestion.NewPipeline(textExtractor(strings.Repeat("a", 2500)), h.embedder, h.vectors, h.pointers, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Ingest(context.Background(), ingestion.Source{Path: "doc.pdf"}, nil)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.ChunkCount != 3 {
		t.Fatalf("ChunkCount = %d, want 3", res.ChunkCount)
	}

	got, err := h.wf.Answer(context.Background(), Query{Question: "q"})
	if err != nil {
		t.Fatalf("Answer() after ingestion error = %v", err)
	}
	if got.Collection != res.CollectionName {
		t.Errorf("Collection = %q, want %q", got.Collection, res.CollectionName)
	}
	if len(got.ContextChunks) != 3 {
		t.Errorf("ContextChunks = %d, want 3", len(got.ContextChunks))
	}
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	r, _ := rag.NewRetriever(h.embedder, h.vectors, 0)

	if _, err := New(nil, h.pointers, h.gen, 0); err == nil {
		t.Error("nil retriever accepted")
	}
	if _, err := New(r, nil, h.gen, 0); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := New(r, h.pointers, nil, 0); err == nil {
		t.Error("nil generator accepted")
	}
}

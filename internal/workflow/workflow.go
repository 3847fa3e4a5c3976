// Package workflow answers questions against an ingested knowledge base:
// it resolves the session's active collection, retrieves the closest
// chunks, renders the prompt and asks the LLM.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/kbrag-go/internal/llm"
	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/rag"
	"github.com/54b3r/kbrag-go/internal/store"
)

// Stages reported in WorkflowError.
const (
	StageEmbed    = "embed"
	StageRetrieve = "retrieve"
	StageGenerate = "generate"
)

// contextSeparator joins retrieved chunks into the prompt context.
const contextSeparator = "\n\n"

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("workflow: question must not be empty")

// WorkflowError wraps a failure after the active collection was resolved.
type WorkflowError struct {
	Stage string
	Err   error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow: %s failed: %v", e.Stage, e.Err)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// Generator is the part of llm.Generator the workflow uses.
type Generator interface {
	Generate(ctx context.Context, prompt string, o llm.Overrides) (string, error)
	ModelName(o llm.Overrides) string
}

// Query is one question plus its optional overrides.
type Query struct {
	Question string
	// SessionID selects the active collection; empty means the default session.
	SessionID string
	// Collection, when set, is searched directly instead of the session's
	// active collection.
	Collection   string
	Model        string
	APIKey       string
	CustomPrompt string
}

// Answer is the workflow result.
type Answer struct {
	Answer        string
	ContextChunks []string
	ContextFound  bool
	// Model is the model that produced Answer.
	Model      string
	Collection string
}

// Workflow wires retrieval and generation together.
type Workflow struct {
	retriever rag.Retriever
	pointers  store.CollectionStore
	generator Generator
	topK      int
}

// New constructs a Workflow. A non-positive topK uses rag.DefaultTopK.
func New(retriever rag.Retriever, pointers store.CollectionStore, generator Generator, topK int) (*Workflow, error) {
	if retriever == nil {
		return nil, fmt.Errorf("workflow: retriever must not be nil")
	}
	if pointers == nil {
		return nil, fmt.Errorf("workflow: collection store must not be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("workflow: generator must not be nil")
	}
	if topK <= 0 {
		topK = rag.DefaultTopK
	}
	return &Workflow{retriever: retriever, pointers: pointers, generator: generator, topK: topK}, nil
}

// Answer runs q through retrieval and generation.
//
// A session without an active collection fails with
// store.ErrNoActiveCollection, even when the question is blank; a blank
// question against a resolved collection fails with ErrEmptyQuestion.
// Every later failure is a *WorkflowError.
// Zero retrieved chunks is not an error: the answer is generated without
// context and ContextFound is false.
func (w *Workflow) Answer(ctx context.Context, q Query) (Answer, error) {
	collection, err := w.resolveCollection(ctx, q)
	if err != nil {
		return Answer{}, err
	}
	if strings.TrimSpace(q.Question) == "" {
		return Answer{}, ErrEmptyQuestion
	}

	log := logging.FromContext(ctx).With(slog.String("collection", collection))

	docs, err := w.retriever.Retrieve(ctx, collection, q.Question, w.topK)
	if err != nil {
		return Answer{}, retrievalFailure(err)
	}

	chunks := make([]string, 0, len(docs))
	for _, d := range docs {
		chunks = append(chunks, d.Content)
	}
	joined := strings.Join(chunks, contextSeparator)
	found := len(chunks) > 0

	log.Debug("workflow: retrieved context",
		slog.Int("top_k", w.topK),
		slog.Int("chunks", len(chunks)),
		slog.Bool("context_found", found),
	)

	overrides := llm.Overrides{Model: q.Model, APIKey: q.APIKey}
	prompt := llm.RenderPrompt(q.Question, joined, q.CustomPrompt)

	reply, err := w.generator.Generate(ctx, prompt, overrides)
	if err != nil {
		return Answer{}, &WorkflowError{Stage: StageGenerate, Err: err}
	}

	modelName := w.generator.ModelName(overrides)
	log.Info("workflow: answered",
		slog.String("model", modelName),
		slog.Bool("context_found", found),
	)

	return Answer{
		Answer:        reply,
		ContextChunks: chunks,
		ContextFound:  found,
		Model:         modelName,
		Collection:    collection,
	}, nil
}

func (w *Workflow) resolveCollection(ctx context.Context, q Query) (string, error) {
	if q.Collection != "" {
		return q.Collection, nil
	}
	session, err := store.NormalizeSession(q.SessionID)
	if err != nil {
		return "", err
	}
	ac, err := w.pointers.Active(ctx, session)
	if err != nil {
		return "", err
	}
	return ac.Collection, nil
}

// retrievalFailure maps a retriever error onto the workflow's stages.
func retrievalFailure(err error) error {
	var rerr *rag.RetrievalError
	if errors.As(err, &rerr) && rerr.Stage == "embed" {
		return &WorkflowError{Stage: StageEmbed, Err: err}
	}
	return &WorkflowError{Stage: StageRetrieve, Err: err}
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/kbrag-go/internal/llm"
	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/rag"
	"github.com/54b3r/kbrag-go/internal/store"
	"github.com/54b3r/kbrag-go/internal/workflow"
)

// workflowLabel is echoed in every POST /workflow/full response.
const workflowLabel = "User Query → KnowledgeBase → LLM Engine → Output"

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// handleLLMQuery handles POST /llm/query. The caller supplies any context
// directly; no retrieval takes place.
func (s *Server) handleLLMQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	var req llmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.metrics.llmRequestsTotal.WithLabelValues(outcomeRejected).Inc()
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.metrics.llmRequestsTotal.WithLabelValues(outcomeRejected).Inc()
		writeError(ctx, w, http.StatusBadRequest, "question is required")
		return
	}

	var supplied string
	if req.Context != nil {
		supplied = *req.Context
	}
	prompt := llm.RenderPrompt(req.Question, supplied, req.CustomPrompt)

	answer, err := s.generator.Generate(ctx, prompt, llm.Overrides{Model: req.Model, APIKey: req.APIKey})
	if err != nil {
		s.metrics.llmRequestsTotal.WithLabelValues(outcomeError).Inc()
		log.Error("llm query failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError, fmt.Sprintf("LLM Error: %v", err))
		return
	}

	s.metrics.llmRequestsTotal.WithLabelValues(outcomeOK).Inc()
	writeJSON(ctx, w, http.StatusOK, llmResponse{
		Success:     true,
		Question:    req.Question,
		Answer:      answer,
		ContextUsed: req.Context != nil,
	})
}

// handleWorkflow handles POST /workflow/full: retrieve from the session's
// active collection, then answer with the LLM.
func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	start := time.Now()

	status, resp, msg := s.runWorkflow(w, r)

	outcome := outcomeFor(status)
	s.metrics.workflowRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.workflowDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if status != http.StatusOK {
		writeError(ctx, w, status, msg)
		return
	}
	log.Info("workflow complete",
		slog.String("model", resp.ModelUsed),
		slog.Bool("context_found", resp.ContextFound),
		slog.Duration("duration", time.Since(start)),
	)
	writeJSON(ctx, w, status, resp)
}

// runWorkflow returns the status, the success body, and the error detail
// for non-200 statuses.
func (s *Server) runWorkflow(w http.ResponseWriter, r *http.Request) (int, workflowResponse, string) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	var req workflowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return http.StatusBadRequest, workflowResponse{}, err.Error()
	}

	ans, err := s.workflow.Answer(ctx, workflow.Query{
		Question:     req.Question,
		SessionID:    sessionFrom(r, req.SessionID),
		Collection:   req.CollectionName,
		Model:        req.Model,
		APIKey:       req.APIKey,
		CustomPrompt: req.CustomPrompt,
	})
	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrEmptyQuestion):
		return http.StatusBadRequest, workflowResponse{}, "question is required"
	case errors.Is(err, store.ErrInvalidSession):
		return http.StatusBadRequest, workflowResponse{}, err.Error()
	case errors.Is(err, store.ErrNoActiveCollection):
		return http.StatusBadRequest, workflowResponse{}, "Please upload a PDF first. Use POST /kb/upload"
	case errors.Is(err, rag.ErrCollectionNotFound):
		log.Warn("workflow collection not found", slog.Any("error", err))
		return http.StatusNotFound, workflowResponse{}, fmt.Sprintf("Workflow error: %v", err)
	default:
		log.Error("workflow failed", slog.Any("error", err))
		return http.StatusInternalServerError, workflowResponse{}, fmt.Sprintf("Workflow error: %v", err)
	}

	return http.StatusOK, workflowResponse{
		Workflow:      workflowLabel,
		Question:      req.Question,
		ContextFromKB: ans.ContextChunks,
		FinalAnswer:   ans.Answer,
		ModelUsed:     ans.Model,
		ContextFound:  ans.ContextFound,
	}, ""
}

// decodeJSON reads a single JSON object from a size-limited body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

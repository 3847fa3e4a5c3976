package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/54b3r/kbrag-go/internal/ingestion"
	"github.com/54b3r/kbrag-go/internal/logging"
	"github.com/54b3r/kbrag-go/internal/store"
)

const (
	// defaultMaxUploadBytes caps upload bodies when Config.MaxUploadBytes is unset.
	defaultMaxUploadBytes = 32 << 20

	// multipartMemory is the part of a multipart body kept in memory; the
	// rest is spooled to disk by net/http.
	multipartMemory = 8 << 20

	// sessionHeader carries the client's session id.
	sessionHeader = "X-Session-ID"

	pdfContentType = "application/pdf"

	// defaultHistoryLimit and maxHistoryLimit bound GET /kb/history.
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// handleUpload handles POST /kb/upload. The PDF in the "file" form field is
// spooled to a temporary file, ingested into a fresh collection and made
// the session's active collection. The temporary file is removed on every
// exit path.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	status, resp, err := s.upload(w, r)
	s.metrics.ingestRequestsTotal.WithLabelValues(outcomeFor(status)).Inc()
	if err != nil {
		if status >= http.StatusInternalServerError {
			log.Error("upload failed", slog.Any("error", err))
			writeError(ctx, w, status, fmt.Sprintf("An error occurred: %v", err))
			return
		}
		log.Warn("upload rejected", slog.Any("error", err))
		writeError(ctx, w, status, err.Error())
		return
	}

	s.metrics.ingestChunksTotal.Add(float64(resp.ChunksAdded))
	log.Info("upload ingested",
		slog.String("collection", resp.CollectionName),
		slog.Int("chunks", resp.ChunksAdded),
		slog.String("session_id", resp.SessionID),
	)
	writeJSON(ctx, w, status, resp)
}

// upload does the work of handleUpload and reports the status to send.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (int, uploadResponse, error) {
	if r.ContentLength > s.cfg.MaxUploadBytes {
		return http.StatusRequestEntityTooLarge, uploadResponse{},
			fmt.Errorf("file exceeds the %d byte upload limit", s.cfg.MaxUploadBytes)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return http.StatusRequestEntityTooLarge, uploadResponse{},
				fmt.Errorf("file exceeds the %d byte upload limit", tooBig.Limit)
		}
		return http.StatusBadRequest, uploadResponse{}, fmt.Errorf("invalid multipart body: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		return http.StatusBadRequest, uploadResponse{}, errors.New("file is required")
	}
	defer file.Close()

	if header.Header.Get("Content-Type") != pdfContentType {
		return http.StatusBadRequest, uploadResponse{}, errors.New("File must be a PDF")
	}

	session, err := store.NormalizeSession(sessionFrom(r, r.FormValue("session_id")))
	if err != nil {
		return http.StatusBadRequest, uploadResponse{}, err
	}

	tmp, err := os.CreateTemp("", "kbrag-upload-*.pdf")
	if err != nil {
		return http.StatusInternalServerError, uploadResponse{}, fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		return http.StatusInternalServerError, uploadResponse{}, fmt.Errorf("could not save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return http.StatusInternalServerError, uploadResponse{}, fmt.Errorf("could not save upload: %w", err)
	}

	res, err := s.ingester.Ingest(r.Context(), ingestion.Source{
		Path:      tmp.Name(),
		Name:      filepath.Base(header.Filename),
		SessionID: session,
	}, nil)
	if err != nil {
		return http.StatusInternalServerError, uploadResponse{}, err
	}

	return http.StatusOK, uploadResponse{
		Message:        "File processed successfully!",
		CollectionName: res.CollectionName,
		ChunksAdded:    res.ChunkCount,
		SessionID:      res.SessionID,
	}, nil
}

// handleNewSession handles POST /kb/sessions by minting a random session id.
// Sessions are implicit: nothing is stored until the first upload.
func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{SessionID: uuid.NewString()})
}

// handleActive handles GET /kb/active, reporting the session's active
// collection.
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := store.NormalizeSession(sessionFrom(r, r.URL.Query().Get("session_id")))
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	ac, err := s.sessions.Active(ctx, session)
	if errors.Is(err, store.ErrNoActiveCollection) {
		writeError(ctx, w, http.StatusNotFound, "No document uploaded for this session. Use POST /kb/upload")
		return
	}
	if err != nil {
		logging.FromContext(ctx).Error("active collection lookup failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	writeJSON(ctx, w, http.StatusOK, toActiveResponse(ac))
}

// handleHistory handles GET /kb/history, listing the newest ingestions
// across all sessions. ?limit=N caps the list (default 20, max 100).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(ctx, w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	recent, err := s.sessions.Recent(ctx, limit)
	if err != nil {
		logging.FromContext(ctx).Error("ingestion history lookup failed", slog.Any("error", err))
		writeError(ctx, w, http.StatusInternalServerError, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	resp := historyResponse{Ingestions: make([]activeResponse, 0, len(recent))}
	for _, ac := range recent {
		resp.Ingestions = append(resp.Ingestions, toActiveResponse(ac))
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

func toActiveResponse(ac store.ActiveCollection) activeResponse {
	return activeResponse{
		SessionID:      ac.SessionID,
		CollectionName: ac.Collection,
		ChunkCount:     ac.ChunkCount,
		Source:         ac.Source,
		UpdatedAt:      ac.UpdatedAt,
	}
}

// sessionFrom returns the request-level session id, falling back to the
// X-Session-ID header.
func sessionFrom(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(sessionHeader)
}

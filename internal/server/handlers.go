package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/paperlens/paperlens-go/internal/corpus"
	"github.com/paperlens/paperlens-go/internal/embedder"
	"github.com/paperlens/paperlens-go/internal/engine"
	"github.com/paperlens/paperlens-go/internal/index"
	"github.com/paperlens/paperlens-go/internal/llm"
	"github.com/paperlens/paperlens-go/internal/logging"
	"github.com/paperlens/paperlens-go/internal/relate"
	"github.com/paperlens/paperlens-go/internal/retrieval"
	"github.com/paperlens/paperlens-go/internal/store"
)

// defaultHistoryLimit bounds GET /api/history when no limit is given.
const defaultHistoryLimit = 50

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to an HTTP status and writes a JSON error body.
//
// The mapping mirrors the error taxonomy of the engine: caller mistakes are
// 400s, unknown documents are 404s, an index that has not been built yet is
// 503 (retryable), and upstream model/embedding faults are 502s.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var embErr *embedder.EmbeddingError
	var genErr *llm.GenerationError
	switch {
	case errors.Is(err, corpus.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, relate.ErrNoValidDocuments),
		errors.Is(err, engine.ErrNoContent):
		status = http.StatusBadRequest
	case errors.Is(err, index.ErrIndexNotReady):
		status = http.StatusServiceUnavailable
	case errors.As(err, &embErr), errors.As(err, &genErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeJSON decodes the request body into v, returning a client-friendly
// error on malformed input.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// handleUpload handles POST /api/documents. It accepts a multipart upload
// under the "file" field, persists it to the upload directory, parses it,
// and ingests the result into the corpus and index.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	documentID := engine.MakeDocumentID(header.Filename)
	path, err := s.saveUpload(file, header, documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := s.parser.Parse(r.Context(), path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.engine.Ingest(r.Context(), documentID, doc)
	if err != nil {
		s.metrics.ingestsTotal.WithLabelValues("error").Inc()
		writeError(w, r, err)
		return
	}

	outcome := "indexed"
	if !result.Indexed {
		outcome = "stale"
	}
	s.metrics.ingestsTotal.WithLabelValues(outcome).Inc()

	log.Info("document ingested",
		slog.String("document_id", documentID),
		slog.String("filename", header.Filename),
		slog.Int("chunks", len(doc.Chunks)),
		slog.Bool("indexed", result.Indexed),
	)
	writeJSON(w, http.StatusCreated, result)
}

// saveUpload writes an uploaded file under the configured upload directory,
// named by its document ID so re-uploads never collide.
func (s *Server) saveUpload(file multipart.File, header *multipart.FileHeader, documentID string) (string, error) {
	dir := s.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("server: create upload dir: %w", err)
	}

	path := filepath.Join(dir, documentID+filepath.Ext(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("server: create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("server: write upload: %w", err)
	}
	return path, nil
}

// handleListDocuments handles GET /api/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.engine.Documents()
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleGetDocument handles GET /api/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.engine.Document(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("document deleted", slog.String("document_id", id))
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// handleQuery handles POST /api/query: corpus-wide retrieval plus a
// citation-grounded answer.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.answerQuery(w, r, index.AllDocuments, store.KindQuery, "")
}

// handleDocumentQuery handles POST /api/documents/{id}/query: retrieval
// restricted to one document.
func (s *Server) handleDocumentQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.engine.Document(id); err != nil {
		writeError(w, r, err)
		return
	}
	s.answerQuery(w, r, index.Document(id), store.KindDocumentQuery, id)
}

// answerQuery is the shared body of the two query endpoints.
func (s *Server) answerQuery(w http.ResponseWriter, r *http.Request, scope index.Scope, kind store.Kind, documentID string) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	start := time.Now()
	ans, err := s.engine.QueryWithAnswer(r.Context(), req.Query, req.K, scope)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case errors.Is(err, index.ErrIndexNotReady):
		outcome = "not_ready"
	case err != nil:
		outcome = "error"
	}
	s.metrics.queriesTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())

	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordHistory(r, store.Record{
		Kind:       kind,
		DocumentID: documentID,
		Query:      req.Query,
		Answer:     ans.Answer,
	})
	writeJSON(w, http.StatusOK, queryResponse{Answer: ans.Answer, Sources: ans.Sources})
}

// handleSearch handles GET /api/search: raw retrieval without generation.
// Query parameters: q (required), k, document_id.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))
	scope := index.Scope{DocumentID: r.URL.Query().Get("document_id")}

	results, err := s.engine.Query(r.Context(), q, k, scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

// handleSummary handles POST /api/documents/{id}/summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req summaryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	summary, err := s.engine.Summarize(r.Context(), id, req.Audience)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordHistory(r, store.Record{
		Kind:       store.KindSummary,
		DocumentID: id,
		Query:      "summarize:" + req.Audience,
		Answer:     summary,
	})
	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary, Audience: req.Audience})
}

// handleExplain handles POST /api/documents/{id}/explain-text.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req explainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.SelectedText == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "selected_text is required"})
		return
	}

	explanation, err := s.engine.ExplainText(r.Context(), id, req.SelectedText, req.Context, req.Question, req.Audience)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{Explanation: explanation})
}

// handleAttribution handles POST /api/documents/{id}/explanation: trace a
// generated sentence back to its supporting passages in the document.
func (s *Server) handleAttribution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req attributionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Sentence == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sentence is required"})
		return
	}

	result, err := s.engine.Attribute(r.Context(), id, req.Sentence)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRelated handles GET /api/documents/{id}/related.
func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	related, err := s.engine.Related(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, relatedResponse{Related: related})
}

// handleSynthesize handles POST /api/synthesize.
func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if len(req.DocumentIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "document_ids is required"})
		return
	}

	result, err := s.engine.Synthesize(r.Context(), req.DocumentIDs, req.SynthesisType)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.recordHistory(r, store.Record{
		Kind:   store.KindSynthesis,
		Query:  fmt.Sprintf("synthesize:%s:%v", result.Type, req.DocumentIDs),
		Answer: result.Synthesis,
	})
	writeJSON(w, http.StatusOK, result)
}

// handleHistory handles GET /api/history. Query parameters: limit,
// document_id. Returns 404 when history is disabled.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "query history is disabled"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var recs []store.Record
	var err error
	if id := r.URL.Query().Get("document_id"); id != "" {
		recs, err = s.history.RecentForDocument(r.Context(), id, limit)
	} else {
		recs, err = s.history.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Records: recs})
}

// handleIndexHealth handles GET /api/index/health. The snapshot is always
// available, even before the first rebuild.
func (s *Server) handleIndexHealth(w http.ResponseWriter, r *http.Request) {
	health := s.engine.IndexHealth()
	s.metrics.indexVectors.Set(float64(health.VectorCount))
	writeJSON(w, http.StatusOK, health)
}

// recordHistory appends a history record if history is enabled. Failures are
// logged and never surfaced — history is best-effort.
func (s *Server) recordHistory(r *http.Request, rec store.Record) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(r.Context(), rec); err != nil {
		logging.FromContext(r.Context()).Warn("history append failed", slog.Any("error", err))
	}
}

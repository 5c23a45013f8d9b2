package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const (
	multipartMemory = 8 << 20
	maxChatBody     = 1 << 20
	defaultPageSize = 20
	maxPageSize     = 200
)

func (s *Server) handleIndexReport(w http.ResponseWriter, r *http.Request) {
	if limit := s.config.Ingest.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	s.logger.Debug("index report request", zap.String("filename", header.Filename), zap.Int64("size", header.Size))
	result, err := s.indexer.IndexDocument(r.Context(), file, header.Filename)
	if err != nil {
		status, msg := ingestErrorStatus(err)
		s.logger.Error("indexing failed", zap.String("filename", header.Filename), zap.Error(err))
		s.respondError(w, status, msg)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// ingestErrorStatus maps an ingest error to an HTTP status and client message.
func ingestErrorStatus(err error) (int, string) {
	var storeErr *vector.VectorStoreError
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "unsupported document format"
	case errors.Is(err, extract.ErrCorruptDocument):
		return http.StatusUnprocessableEntity, "document could not be parsed"
	case errors.As(err, &storeErr):
		return http.StatusBadGateway, "vector store unavailable"
	}
	return http.StatusInternalServerError, "indexing failed"
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("chat request", zap.Int("question_len", len(req.Question)))
	s.respondJSON(w, http.StatusOK, s.engine.Ask(r.Context(), req.Question))
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotImplemented, "ingest ledger not enabled")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxPageSize)
	reports, err := s.ledger.ListIngests(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list reports failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []*models.IngestRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"offset":  offset,
		"limit":   limit,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.config
	resp := map[string]interface{}{
		"active_sessions": s.sessions.Len(),
		"config": map[string]interface{}{
			"vector_index_type": cfg.Vector.Type,
			"dimension":         cfg.Vector.Dimension,
			"embedding":         cfg.Embedding.Provider,
			"chunk_size":        cfg.Ingest.ChunkSize,
			"chunk_overlap":     cfg.Ingest.ChunkOverlap,
			"top_k":             cfg.Search.TopK,
			"context_budget":    cfg.Search.ContextBudget,
			"min_score":         cfg.Search.MinScore,
		},
	}
	if s.ledger != nil {
		stats, err := s.ledger.Stats(r.Context())
		if err != nil {
			s.logger.Error("status: ledger stats failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to read ledger")
			return
		}
		resp["ledger"] = stats
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

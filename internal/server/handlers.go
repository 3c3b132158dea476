package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sapdo/widetable/internal/apperrors"
	"github.com/sapdo/widetable/internal/funcall"
)

// maxUploadBytes caps multipart parsing memory; larger files spill to disk.
const maxUploadBytes = 64 << 20

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	description := r.FormValue("description")

	s.logger.Debug("ingest request",
		zap.String("filename", header.Filename),
		zap.String("name", name),
		zap.Int64("bytes", header.Size))

	var result any
	if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		result, err = s.processor.ProcessXLSXFile(r.Context(), file, name, description)
	} else {
		result, err = s.processor.ProcessCSVFile(r.Context(), file, name, description)
	}
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 100)
	search := r.URL.Query().Get("search")

	page, err := s.processor.ListDatasets(r.Context(), offset, limit, search)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := s.processor.GetDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ds)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete dataset request", zap.String("id", id))
	if err := s.processor.DeleteDataset(r.Context(), id); err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleGetColumns(w http.ResponseWriter, r *http.Request) {
	page, err := s.processor.GetDatasetColumns(r.Context(),
		chi.URLParam(r, "id"), queryInt(r, "offset", 0), queryInt(r, "limit", 100))
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

type updateColumnRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleUpdateColumn(w http.ResponseWriter, r *http.Request) {
	var req updateColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	column := chi.URLParam(r, "column")
	if err := s.processor.UpdateColumnDescription(r.Context(), id, column, req.Description); err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"dataset_id": id, "column": column, "status": "updated"})
}

func (s *Server) handleGetColumnGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.processor.GetColumnGroups(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handleGetColumnGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	group, err := s.processor.GetColumnGroup(r.Context(), groupID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, group)
}

func (s *Server) handleGetSample(w http.ResponseWriter, r *http.Request) {
	sample, err := s.processor.GetDatasetSample(r.Context(),
		chi.URLParam(r, "id"), queryInt(r, "limit", 10))
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sample)
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("query request", zap.String("dataset", id), zap.String("query", req.Query))

	result, err := s.processor.QueryDataset(r.Context(), id, req.Query, req.Limit)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type recommendationsRequest struct {
	QueryText string `json:"query_text"`
	Limit     int    `json:"limit,omitempty"`
	DatasetID string `json:"dataset_id,omitempty"`
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.QueryText) == "" {
		s.respondError(w, http.StatusBadRequest, "query_text is required")
		return
	}
	matches, err := s.processor.GetColumnRecommendations(r.Context(), req.QueryText, req.Limit, req.DatasetID)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"recommendations": matches})
}

func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"functions": funcall.Schemas})
}

// handleCallFunction dispatches an LLM-style function call. The response is
// always 200 with either the result or an {"error": message} body, mirroring
// what a model sees through the function-calling protocol.
func (s *Server) handleCallFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	args, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(args) == 0 {
		args = []byte("{}")
	}
	result := s.executor.Execute(r.Context(), name, args)
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.processor.CountDatasets(r.Context())
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"datasets": count})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondAppError maps error kinds onto HTTP statuses. Query and ingestion
// failures are client errors carrying the engine's message so callers can
// self-correct their SQL.
func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		s.respondError(w, http.StatusNotFound, err.Error())
	case apperrors.KindIngestion, apperrors.KindQuery:
		s.respondError(w, http.StatusBadRequest, err.Error())
	case apperrors.KindConfiguration:
		s.logger.Error("configuration error", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kiroku/internal/config"
	"github.com/hyperjump/kiroku/internal/graph"
	"github.com/hyperjump/kiroku/internal/keyword"
	"github.com/hyperjump/kiroku/internal/models"
	"github.com/hyperjump/kiroku/internal/provider"
)

const (
	defaultListLimit   = 50
	defaultSearchLimit = 20
	searchTagBoost     = 2.0
)

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var input models.EntryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, tag := range input.Tags {
		if !models.ValidCategory(tag.Category) {
			s.respondError(w, http.StatusBadRequest, "unknown tag category: "+string(tag.Category))
			return
		}
	}

	entry := &models.Entry{
		ID:      input.ID,
		Content: input.Content,
		Tags:    input.Tags,
		Source:  input.Source,
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Source == "" {
		entry.Source = models.SourceManual
	}

	if err := s.storage.CreateEntry(r.Context(), entry); err != nil {
		s.logger.Error("create entry failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.index != nil {
		if err := s.index.IndexEntry(r.Context(), entry); err != nil {
			s.logger.Warn("keyword indexing failed", zap.String("entry_id", entry.ID), zap.Error(err))
		}
	}
	if s.embedder != nil {
		s.embedder.Enqueue(entry.ID)
	}
	s.respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultListLimit)
	entries, err := s.storage.ListEntries(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list entries failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.storage.CountEntries(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.storage.GetEntry(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "entry not found")
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.storage.GetEntry(r.Context(), id); err != nil {
		s.respondError(w, http.StatusNotFound, "entry not found")
		return
	}
	if err := s.storage.DeleteEntry(r.Context(), id); err != nil {
		s.logger.Error("delete entry failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.index != nil {
		if err := s.index.Delete(r.Context(), id); err != nil {
			s.logger.Warn("keyword delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type searchHit struct {
	Entry *models.Entry `json:"entry"`
	Score float64       `json:"score"`
}

func (s *Server) handleSearchEntries(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.respondError(w, http.StatusNotImplemented, "keyword search not enabled")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := queryInt(r, "limit", defaultSearchLimit)
	fuzzy := r.URL.Query().Get("fuzzy") == "true"

	results, err := s.index.Search(r.Context(), query, limit, &keyword.Options{
		TagBoost:     searchTagBoost,
		FuzzyEnabled: fuzzy,
	})
	if err != nil {
		s.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	hits := make([]searchHit, 0, len(results))
	for _, res := range results {
		entry, err := s.storage.GetEntry(r.Context(), res.ID)
		if err != nil {
			// Index can briefly lag behind a delete.
			continue
		}
		hits = append(hits, searchHit{Entry: entry, Score: res.Score})
	}

	resp := map[string]interface{}{
		"query":   query,
		"results": hits,
	}
	if len(hits) == 0 {
		if suggestion := s.index.Suggest(query); suggestion != "" {
			resp["suggestion"] = suggestion
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGraphHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.provider.Health(r.Context())
	if err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "error",
			"embedding_service": nil,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":            health.Status,
		"embedding_service": health,
	})
}

func (s *Server) handleGraphData(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", s.config.Graph.NodeLimitDefault)
	threshold := queryFloat(r, "threshold", s.config.Graph.ThresholdDefault)

	ns, err := s.builder.BuildNodes(r.Context(), limit)
	if err != nil {
		s.logger.Error("build nodes failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	edges, err := s.builder.BuildEdges(r.Context(), ns, threshold)
	if err != nil {
		if errors.Is(err, graph.ErrTooManyNodes) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("build edges failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &models.GraphData{Nodes: ns.Nodes, Edges: edges})
}

func (s *Server) handleGraphProcess(w http.ResponseWriter, r *http.Request) {
	count, err := s.builder.ProcessUnprocessed(r.Context())
	if err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.logger.Error("process failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"processed": count})
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.builder.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	s.config.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.config)
	s.configMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

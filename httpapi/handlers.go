package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/semindex"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/search"
	"github.com/poiesic/semindex/worker"
)

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

// SearchRequest is the body of the search endpoints.
type SearchRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit,omitempty"`
	Threshold *float32 `json:"threshold,omitempty"`
	Types     []string `json:"types,omitempty"`
	JobID     string   `json:"jobId,omitempty"`
}

// SearchResult is one ranked entity.
type SearchResult struct {
	ID          string  `json:"id"`
	EntityType  string  `json:"entityType"`
	EntityID    string  `json:"entityId"`
	ParentJobID string  `json:"parentJobId,omitempty"`
	ChunkIndex  *int    `json:"chunkIndex,omitempty"`
	Score       float32 `json:"score"`
}

// SearchResponse wraps ranked results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.index.Status())
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	body, opts, err := decodeSearch(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var results []*core.SearchResult
	if body.JobID != "" {
		results, err = s.index.SearchWithinJob(r.Context(), body.Query, body.JobID, opts...)
	} else {
		results, err = s.index.SemanticSearch(r.Context(), body.Query, opts...)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(results))
}

func (s *Server) searchJob(w http.ResponseWriter, r *http.Request) {
	body, opts, err := decodeSearch(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.index.SearchWithinJob(r.Context(), body.Query, chi.URLParam(r, "id"), opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(results))
}

func (s *Server) similarJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = n
	}
	results, err := s.index.FindSimilarJobs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(results))
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.index.DeleteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteEntity(w http.ResponseWriter, r *http.Request) {
	entityType, err := core.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.index.DeleteEntity(r.Context(), entityType, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeSearch(r *http.Request) (SearchRequest, []search.Option, error) {
	var body SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}

	var opts []search.Option
	if body.Limit != 0 {
		opts = append(opts, search.WithLimit(body.Limit))
	}
	if body.Threshold != nil {
		opts = append(opts, search.WithThreshold(*body.Threshold))
	}
	if len(body.Types) > 0 {
		types := make([]core.EntityType, 0, len(body.Types))
		for _, name := range body.Types {
			t, err := core.ParseEntityType(name)
			if err != nil {
				return body, nil, err
			}
			types = append(types, t)
		}
		opts = append(opts, search.WithEntityTypes(types...))
	}
	return body, opts, nil
}

func toResponse(results []*core.SearchResult) SearchResponse {
	out := SearchResponse{Results: make([]SearchResult, len(results))}
	for i, r := range results {
		out.Results[i] = SearchResult{
			ID:          r.Record.ID,
			EntityType:  string(r.Record.EntityType),
			EntityID:    r.Record.EntityID,
			ParentJobID: r.Record.ParentJobID,
			ChunkIndex:  r.Record.ChunkIndex,
			Score:       r.Score,
		}
	}
	return out
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, semindex.ErrEmptyQuery),
		errors.Is(err, semindex.ErrEmptyJobID),
		errors.Is(err, core.ErrInvalidEntityType),
		errors.Is(err, search.ErrInvalidLimit):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrEntityNotEmbedded):
		status = http.StatusNotFound
	case errors.Is(err, worker.ErrModelLoad),
		errors.Is(err, worker.ErrUnitCrashed),
		errors.Is(err, worker.ErrTerminated),
		errors.Is(err, semindex.ErrIndexClosed):
		status = http.StatusServiceUnavailable
	}

	requestID := chimiddleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error", "request_id", requestID, "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

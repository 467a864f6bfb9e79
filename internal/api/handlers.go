package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/rag"
	"github.com/lectern-ai/lectern/internal/tools"
)

// maxQueryBytes bounds the request body to keep hostile payloads cheap.
const maxQueryBytes = 1 << 20

// maxQueryLength bounds the question itself; anything longer is not a
// question a course assistant can answer.
const maxQueryLength = 10000

// RAGService is the part of the RAG pipeline the HTTP layer consumes.
type RAGService interface {
	Query(ctx context.Context, query, sessionID string) (string, []tools.Source, string, error)
	CourseAnalytics(ctx context.Context) (rag.Analytics, error)
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type queryResponse struct {
	Answer    string         `json:"answer"`
	Sources   []tools.Source `json:"sources"`
	SessionID string         `json:"session_id"`
}

type queryHandler struct {
	rag    RAGService
	logger *slog.Logger
}

// answer handles POST /api/query.
func (h *queryHandler) answer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBytes)

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON", h.logger)
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty", h.logger)
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is too long", h.logger)
		return
	}

	answer, sources, sessionID, err := h.rag.Query(r.Context(), query, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrUpstreamUnavailable):
			h.logger.Error("model API unavailable", "error", err)
			writeError(w, http.StatusBadGateway, "upstream_unavailable", "the model API is temporarily unavailable", h.logger)
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
			h.logger.Debug("query canceled", "error", err)
		default:
			h.logger.Error("query failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to process query", h.logger)
		}
		return
	}

	if sources == nil {
		sources = []tools.Source{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:    answer,
		Sources:   sources,
		SessionID: sessionID,
	}, h.logger)
}

// courses handles GET /api/courses.
func (h *queryHandler) courses(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.rag.CourseAnalytics(r.Context())
	if err != nil {
		h.logger.Error("course analytics failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load course statistics", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, analytics, h.logger)
}

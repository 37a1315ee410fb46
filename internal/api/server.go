// Package api serves the review surface: context suggestions awaiting
// approval, the ambiguous-match audit queue, job queue health, and catalog
// lookups.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/store"
)

// Server exposes the HTTP review API over a store.
type Server struct {
	store store.Store
	log   *zap.Logger
}

func NewServer(s store.Store) *Server {
	return &Server{
		store: s,
		log:   zap.L().With(zap.String("component", "api")),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/suggestions", s.handleListSuggestions)
		r.Post("/suggestions/{id}/approve", s.reviewHandler(model.SuggestionStatusApproved))
		r.Post("/suggestions/{id}/reject", s.reviewHandler(model.SuggestionStatusRejected))
		r.Get("/ambiguous", s.handleListAmbiguous)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/stats", s.handleJobStats)
		r.Get("/entities", s.handleSearchEntities)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	status := model.SuggestionStatus(r.URL.Query().Get("status"))
	suggestions, err := s.store.ListSuggestions(r.Context(), status, queryLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// reviewRequest carries the reviewer identity for approve/reject calls.
type reviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
}

func (s *Server) reviewHandler(status model.SuggestionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req reviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}
		if req.ReviewedBy == "" {
			s.writeError(w, http.StatusBadRequest, errors.New("reviewed_by is required"))
			return
		}

		if _, err := s.store.GetSuggestion(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, errors.New("suggestion not found"))
				return
			}
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}

		if err := s.store.UpdateSuggestionStatus(r.Context(), id, status, req.ReviewedBy); err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.log.Info("suggestion reviewed",
			zap.String("suggestion_id", id),
			zap.String("status", string(status)),
			zap.String("reviewed_by", req.ReviewedBy))
		s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
	}
}

func (s *Server) handleListAmbiguous(w http.ResponseWriter, r *http.Request) {
	matches, err := s.store.ListAmbiguousMatches(r.Context(), queryLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ambiguous_matches": matches})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := model.JobStatus(r.URL.Query().Get("status"))
	jobs, err := s.store.ListJobs(r.Context(), status, queryLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.JobStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSearchEntities(w http.ResponseWriter, r *http.Request) {
	entityType := model.EntityType(r.URL.Query().Get("type"))
	if entityType == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("type query parameter is required"))
		return
	}
	q := r.URL.Query().Get("q")

	var (
		entities []model.Entity
		err      error
	)
	if q != "" {
		entities, err = s.store.SearchEntitiesByName(r.Context(), entityType, q, queryLimit(r))
	} else {
		entities, err = s.store.ListEntitiesByType(r.Context(), entityType)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 0 // store default
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

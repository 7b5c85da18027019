// Package api exposes the operational HTTP surface of the harvester: health
// probes, Prometheus metrics and read-only run inspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
	"github.com/madfam-io/renec-harvester-sub000/internal/metrics"
)

// Server wires HTTP handlers to the repository and metrics registry.
type Server struct {
	router  chi.Router
	repo    harvester.Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(repo harvester.Repository, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{repo: repo, metrics: m, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/latest", s.latestRun)
		r.Route("/{run_id}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Get("/entities/{variant}", s.runEntities)
			r.Get("/edges/{rel_type}", s.runEdges)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Ready once the repository answers; a run does not have to exist yet.
	if _, err := s.repo.LatestRun(r.Context()); err != nil && !errors.Is(err, harvester.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.repo.LatestRun(r.Context())
	if err != nil {
		if errors.Is(err, harvester.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no runs recorded")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load latest run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.repo.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) runEntities(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	variant := harvester.Variant(chi.URLParam(r, "variant"))
	if !knownVariant(variant) {
		writeError(w, http.StatusBadRequest, "unknown variant")
		return
	}
	recs, err := s.repo.CurrentSnapshot(r.Context(), runID, variant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}
	if recs == nil {
		recs = []harvester.EntityRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"variant":  variant,
		"count":    len(recs),
		"entities": recs,
	})
}

func (s *Server) runEdges(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	relType := harvester.RelationType(chi.URLParam(r, "rel_type"))
	if !knownRelationType(relType) {
		writeError(w, http.StatusBadRequest, "unknown relationship type")
		return
	}
	edges, err := s.repo.CurrentEdges(r.Context(), runID, relType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load edges")
		return
	}
	if edges == nil {
		edges = []harvester.RelationshipRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"type":   relType,
		"count":  len(edges),
		"edges":  edges,
	})
}

func knownVariant(v harvester.Variant) bool {
	for _, known := range harvester.Variants() {
		if v == known {
			return true
		}
	}
	return false
}

func knownRelationType(t harvester.RelationType) bool {
	for _, known := range harvester.RelationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package server exposes the committed reconciliation artifacts over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/ercot-nodemap/internal/artifact"
	"github.com/sells-group/ercot-nodemap/internal/export"
	"github.com/sells-group/ercot-nodemap/internal/model"
)

// Options configures a Server.
type Options struct {
	Port           int
	ProcessedDir   string
	AllowedOrigins []string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server serves the read API.
type Server struct {
	httpServer *http.Server
	dir        string
}

// New creates a Server with its routes mounted.
func New(opts Options) *Server {
	s := &Server{dir: opts.ProcessedDir}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/nodes", s.handleNodes)
		r.Get("/nodes.geojson", s.handleNodesGeoJSON)
		r.Get("/nodes/{id}", s.handleNode)
		r.Get("/unmatched/nodes", s.handleUnmatchedNodes)
		r.Get("/unmatched/facilities", s.handleUnmatchedFacilities)
		r.Get("/manifest", s.handleManifest)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start listens until Shutdown. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	zap.L().Info("http server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady reports ready once a bundle has been committed.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	m, err := artifact.ReadManifest(s.dir)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "cache_key": m.CacheKey})
}

func (s *Server) matches(r *http.Request) ([]model.MatchRecord, error) {
	return artifact.ReadMatches(r.Context(), filepath.Join(s.dir, artifact.MatchesFile))
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	recs, err := s.matches(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if m := r.URL.Query().Get("method"); m != "" {
		method := model.MatchMethod(m)
		if !method.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown method %q", m)})
			return
		}
		filtered := make([]model.MatchRecord, 0, len(recs))
		for _, rec := range recs {
			if rec.Method == method {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	recs, err := s.matches(r)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, rec := range recs {
		if rec.SettlementPoint == id {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}

	// An unmatched registry node is known but has no coordinates.
	unmatched, err := artifact.ReadUnmatchedNodes(r.Context(), filepath.Join(s.dir, artifact.UnmatchedNodesFile))
	if err == nil {
		for _, n := range unmatched {
			if n.ID == id {
				writeJSON(w, http.StatusNotFound, map[string]string{
					"error":           "settlement point is unmatched",
					"node_id":         n.ID,
					"substation_name": n.Substation,
				})
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("settlement point %q not found", id)})
}

func (s *Server) handleNodesGeoJSON(w http.ResponseWriter, r *http.Request) {
	recs, err := s.matches(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := export.WriteGeoJSON(w, recs); err != nil {
		zap.L().Warn("server: write geojson", zap.Error(err))
	}
}

func (s *Server) handleUnmatchedNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := artifact.ReadUnmatchedNodes(r.Context(), filepath.Join(s.dir, artifact.UnmatchedNodesFile))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleUnmatchedFacilities(w http.ResponseWriter, r *http.Request) {
	facilities, err := artifact.ReadUnmatchedFacilities(r.Context(), filepath.Join(s.dir, artifact.UnmatchedFacilitiesFile))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, facilities)
}

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	m, err := artifact.ReadManifest(s.dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// writeError maps a missing artifact to 404 and anything else to 500.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, artifact.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no reconciliation output; run reconcile first"})
		return
	}
	zap.L().Error("server: read artifact", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read reconciliation output"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// Package adminhttp exposes a Coordinator's invalidation and introspection
// operations over HTTP, alongside its Prometheus metrics.
package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mdshimul186/reqcoord"
)

// Server serves the admin API for one coordinator.
type Server struct {
	coord  *reqcoord.Coordinator
	logger *zap.Logger
	server *http.Server
}

// NewServer creates an admin server for coord.
func NewServer(coord *reqcoord.Coordinator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		coord:  coord,
		logger: logger,
	}
}

// Router returns the admin routes, for mounting into an existing server.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/cache/keys", s.handleKeys).Methods(http.MethodGet)
	router.HandleFunc("/cache/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/cache", s.handleClear).Methods(http.MethodDelete)
	router.HandleFunc("/cache/keys/{key}", s.handleInvalidate).Methods(http.MethodDelete)

	router.HandleFunc("/throttle", s.handleClearThrottles).Methods(http.MethodDelete)
	router.HandleFunc("/throttle/{key}", s.handleResetThrottle).Methods(http.MethodDelete)

	if g := s.coord.Metrics().Gatherer(); g != nil {
		router.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return router
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting admin HTTP server", zap.String("addr", addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Stopping admin HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"name":   s.coord.Name(),
		"build":  reqcoord.GetVersionInfo(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.coord.Keys(r.Context())
	if err != nil {
		s.writeErrorResponse(w, "failed to list keys", http.StatusInternalServerError, err)
		return
	}
	sort.Strings(keys)
	s.writeResponse(w, http.StatusOK, keysResponse{Keys: keys, Count: len(keys)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.Stats(r.Context())
	if err != nil {
		s.writeErrorResponse(w, "failed to read stats", http.StatusInternalServerError, err)
		return
	}
	s.writeResponse(w, http.StatusOK, stats)
}

// handleClear empties the cache, or only matching keys when a pattern or
// prefix query parameter is present.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var pattern reqcoord.Pattern
	switch {
	case q.Get("pattern") != "":
		re, err := regexp.Compile(q.Get("pattern"))
		if err != nil {
			s.writeErrorResponse(w, "invalid pattern", http.StatusBadRequest, err)
			return
		}
		pattern = re
	case q.Get("prefix") != "":
		pattern = reqcoord.Prefix(q.Get("prefix"))
	}

	if pattern == nil {
		if err := s.coord.ClearAll(r.Context()); err != nil {
			s.writeErrorResponse(w, "failed to clear cache", http.StatusInternalServerError, err)
			return
		}
		s.writeResponse(w, http.StatusOK, clearResponse{All: true})
		return
	}

	removed, err := s.coord.ClearByPattern(r.Context(), pattern)
	if err != nil {
		s.writeErrorResponse(w, "failed to clear cache", http.StatusInternalServerError, err)
		return
	}
	s.writeResponse(w, http.StatusOK, clearResponse{Removed: removed})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := s.coord.Invalidate(r.Context(), key); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reqcoord.ErrEmptyKey) {
			status = http.StatusBadRequest
		}
		s.writeErrorResponse(w, "failed to invalidate key", status, err)
		return
	}
	s.writeResponse(w, http.StatusOK, clearResponse{Removed: 1})
}

func (s *Server) handleClearThrottles(w http.ResponseWriter, r *http.Request) {
	s.coord.ClearThrottles()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetThrottle(w http.ResponseWriter, r *http.Request) {
	s.coord.ResetThrottle(mux.Vars(r)["key"])
	w.WriteHeader(http.StatusNoContent)
}

// writeResponse writes JSON response
func (s *Server) writeResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeErrorResponse writes error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, status int, err error) {
	s.logger.Warn(message, zap.Error(err))
	s.writeResponse(w, status, errorResponse{Error: message, Detail: err.Error()})
}

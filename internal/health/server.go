package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Config configures one component's health server.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func DefaultConfig(port int) Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         port,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server exposes GET /health, GET /ready, and GET /metrics for one
// component, backed by a Registry and Metrics.
type Server struct {
	router   *mux.Router
	server   *http.Server
	registry *Registry
	metrics  *Metrics
	config   Config
}

func NewServer(cfg Config, registry *Registry, metrics *Metrics, gatherer prometheus.Gatherer) *Server {
	router := mux.NewRouter()
	s := &Server{router: router, registry: registry, metrics: metrics, config: cfg}

	router.Use(s.requestIDMiddleware)
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	router.Handle("/metrics", Handler(gatherer)).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Interface("request_id", r.Context().Value(requestIDKey{})).
			Msg("health: request handled")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type healthResponse struct {
	Status string       `json:"status"`
	Tasks  []TaskStatus `json:"tasks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tasks := s.registry.TaskStatuses()
	status := http.StatusOK
	if !s.registry.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Status: statusText(status), Tasks: tasks})
}

type readyResponse struct {
	Status       string             `json:"status"`
	Dependencies []DependencyResult `json:"dependencies"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ok, results := s.registry.CheckDependencies()
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResponse{Status: statusText(status), Dependencies: results})
}

func statusText(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unavailable"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start runs the server until it's shut down; ErrServerClosed from a
// graceful Shutdown is swallowed, matching net/http convention.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("health: server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

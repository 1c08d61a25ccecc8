package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/pkg/engine"
)

// ServerConfig holds the server configuration.
type ServerConfig struct {
	Host         string        // Host to bind to (default "localhost")
	Port         int           // Port to listen on (default 8080)
	ReadTimeout  time.Duration // Read timeout (default 30s)
	WriteTimeout time.Duration // Write timeout (default 30s); event streams lift it
	IdleTimeout  time.Duration // Idle timeout (default 60s)
	QuickWorkers int           // Max concurrent evaluations and move lists (default 100)
	HeavyWorkers int           // Max concurrent rollouts and training jobs (default 4)

	BasePath     string // directory holding agents/<name> (default ".")
	DefaultAgent string // agent used when a request names none (default "heuristic")
	MaxTrials    int    // largest rollout accepted (default 100000)
	MaxBulk      int    // most positions in one bulk move request (default 64)
}

// DefaultConfig returns a ServerConfig with sensible defaults.
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		QuickWorkers: 100,
		HeavyWorkers: 4,
		BasePath:     ".",
		DefaultAgent: "heuristic",
		MaxTrials:    100000,
		MaxBulk:      64,
	}
}

// Server is the HTTP API server.
type Server struct {
	config   ServerConfig
	handlers *Handlers
	server   *http.Server
	version  string
}

// NewServer creates a new API server. Zero limits in config take the
// defaults.
func NewServer(e *engine.Engine, config ServerConfig, version string) *Server {
	def := DefaultConfig()
	if config.DefaultAgent == "" {
		config.DefaultAgent = def.DefaultAgent
	}
	if config.BasePath == "" {
		config.BasePath = def.BasePath
	}
	if config.MaxTrials <= 0 {
		config.MaxTrials = def.MaxTrials
	}
	if config.MaxBulk <= 0 {
		config.MaxBulk = def.MaxBulk
	}
	return &Server{
		config:   config,
		handlers: NewHandlers(e, config, version),
		version:  version,
	}
}

// Pool returns the worker pool for monitoring.
func (s *Server) Pool() *WorkerPool {
	return s.handlers.pool
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs every request with its status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	h := s.handlers
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/agents", h.Agents)
		r.Post("/evaluate", h.Evaluate)
		r.Post("/moves", h.Moves)
		r.Post("/moves/bulk", h.MovesBulk)
		r.Post("/rollout", h.Rollout)
		r.Get("/rollout/stream", h.RolloutSSE)
		r.Post("/analyze", h.Analyze)
		r.Post("/train", h.Train)
		r.Get("/train/{id}", h.TrainStatus)
		r.Delete("/train/{id}", h.TrainCancel)
		r.Get("/train/{id}/stream", h.TrainSSE)
		r.Get("/ws", h.WebSocket)
	})
	return r
}

// ListenAndServe serves until ctx ends, then shuts down gracefully,
// cancelling the training jobs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", s.version).Msg("starting API server")
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdown); err != nil {
		return err
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}

// Shutdown stops the training jobs and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.handlers.jobs.stopAll(ctx); err != nil {
		return errors.Wrap(err, "stopping training jobs")
	}
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server shutdown failed")
	}
	return nil
}

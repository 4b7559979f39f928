// Package server wires the HTTP API, the MCP endpoint and operational routes onto one chi router.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/malbeclabs/ados/api/handlers"
	"github.com/malbeclabs/ados/api/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultListenAddr        = ":8080"
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	// Compilation runs several LLM calls; the write timeout covers the whole run.
	DefaultWriteTimeout = 5 * time.Minute
)

type Config struct {
	Logger *slog.Logger
	API    *handlers.API
	// MCP is mounted at /mcp when set.
	MCP http.Handler

	ListenAddr        string
	AllowedOrigins    []string
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration

	// CompileRate and CompileBurst bound compile, runs, validate and MCP requests per IP.
	CompileRate  rate.Limit
	CompileBurst int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.API == nil {
		return errors.New("api is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.CompileRate <= 0 {
		cfg.CompileRate = rate.Every(time.Minute / 30)
	}
	if cfg.CompileBurst <= 0 {
		cfg.CompileBurst = 5
	}
	return nil
}

type Server struct {
	log     *slog.Logger
	cfg     Config
	limiter *handlers.RateLimiter
	http    *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate server config: %w", err)
	}
	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		limiter: handlers.NewRateLimiter("compile", cfg.CompileRate, cfg.CompileBurst),
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s, nil
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	api := s.cfg.API
	limited := handlers.RateLimitMiddleware(s.limiter)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Mcp-Session-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", api.Healthz)
	r.Get("/readyz", api.Readyz)
	r.Get("/version", api.GetVersion)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(limited).Post("/compile", api.Compile)
		r.With(limited).Post("/runs", api.SubmitRun)
		r.Get("/runs/{id}", api.GetRun)
		r.Get("/audit/runs", api.ListAuditRuns)
		r.Get("/audit/runs/{id}", api.GetAuditRun)
		r.Get("/datasets", api.ListDatasets)
		r.Get("/datasets/{name}", api.GetDataset)
		r.Get("/graph", api.GetGraph)
		r.Get("/graph/path", api.GetJoinPath)
		r.With(limited).Post("/validate", api.Validate)
		r.Post("/refresh", api.Refresh)
	})

	if s.cfg.MCP != nil {
		r.With(limited).Handle("/mcp", s.cfg.MCP)
	}
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	defer s.limiter.Close()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()
	s.log.Info("server: listening", "addr", s.cfg.ListenAddr, "mcp", s.cfg.MCP != nil)

	select {
	case <-ctx.Done():
		s.log.Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: stopped")
		return nil
	case err := <-serveErrCh:
		return err
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/api/audit"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
)

// GraphService is the snapshot service behind the catalog and graph endpoints.
type GraphService interface {
	Graph() *discovery.KnowledgeGraph
	Ready() bool
	Refresh(ctx context.Context) (*discovery.KnowledgeGraph, error)
}

type Compiler interface {
	Compile(ctx context.Context, intent string) *compiler.Run
}

type AsyncRunner interface {
	Submit(ctx context.Context, intent string) (string, error)
	Get(id string) (compiler.Status, bool)
}

type PlanValidator interface {
	Validate(ctx context.Context, schemas validator.Schemas, plan validator.QueryPlan) validator.Report
}

type Config struct {
	Logger    *slog.Logger
	Graph     GraphService
	Compiler  Compiler
	Async     AsyncRunner
	Validator PlanValidator
	// Audit is optional; the audit endpoints answer 503 without it.
	Audit   *audit.Store
	Version VersionInfo
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Graph == nil {
		return errors.New("graph service is required")
	}
	if cfg.Compiler == nil {
		return errors.New("compiler is required")
	}
	if cfg.Async == nil {
		return errors.New("async runner is required")
	}
	if cfg.Validator == nil {
		return errors.New("validator is required")
	}
	if cfg.Version.Version == "" {
		cfg.Version.Version = "dev"
	}
	return nil
}

// API holds the HTTP handlers.
type API struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &API{log: cfg.Logger, cfg: cfg}, nil
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

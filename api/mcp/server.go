// Package mcp exposes compilation, catalog browsing and plan validation as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type GraphSource interface {
	Graph() *discovery.KnowledgeGraph
}

type Compiler interface {
	Compile(ctx context.Context, intent string) *compiler.Run
}

type PlanValidator interface {
	Validate(ctx context.Context, schemas validator.Schemas, plan validator.QueryPlan) validator.Report
}

type Config struct {
	Logger    *slog.Logger
	Graph     GraphSource
	Compiler  Compiler
	Validator PlanValidator
	Version   string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Graph == nil {
		return errors.New("graph source is required")
	}
	if cfg.Compiler == nil {
		return errors.New("compiler is required")
	}
	if cfg.Validator == nil {
		return errors.New("validator is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return nil
}

// Server is the ADOS MCP tool server.
type Server struct {
	log    *slog.Logger
	cfg    Config
	server *mcp.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate mcp config: %w", err)
	}
	s := &Server{
		log: cfg.Logger,
		cfg: cfg,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "ados",
			Version: cfg.Version,
		}, nil),
	}
	for _, register := range []func() error{
		s.registerCompile,
		s.registerListDatasets,
		s.registerJoinPath,
		s.registerValidate,
	} {
		if err := register(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MCPServer returns the underlying server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Handler serves the tools over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})
}

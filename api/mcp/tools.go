package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	defaultDatasetLimit = 50
	maxDatasetLimit     = 500
)

type CompileInput struct {
	Intent string `json:"intent" jsonschema:"natural-language analytical request"`
}

type CompileOutput struct {
	ID          string                 `json:"id"`
	Stage       string                 `json:"stage"`
	FailedStage string                 `json:"failed_stage,omitempty"`
	FailureKind string                 `json:"failure_kind,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Warnings    []string               `json:"warnings"`
	JoinPath    []string               `json:"join_path"`
	Query       string                 `json:"query,omitempty"`
	Findings    []validator.Finding    `json:"findings"`
	Audit       string                 `json:"audit"`
	Columns     []string               `json:"columns"`
	Rows        []map[string]any       `json:"rows"`
	RowCount    int                    `json:"row_count"`
	Trace       []string               `json:"trace"`
	JoinColumns []discovery.JoinColumn `json:"join_columns"`
}

type ListDatasetsInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum datasets to return"`
	Offset int `json:"offset,omitempty"`
}

type DatasetInfo struct {
	Name      string   `json:"name"`
	Format    string   `json:"format"`
	RowCount  int64    `json:"row_count"`
	Columns   []string `json:"columns"`
	Types     []string `json:"types"`
	IDColumns []string `json:"id_columns"`
}

type ListDatasetsOutput struct {
	Datasets []DatasetInfo `json:"datasets"`
	Total    int           `json:"total"`
}

type JoinPathInput struct {
	From string `json:"from" jsonschema:"dataset to start from"`
	To   string `json:"to" jsonschema:"dataset to reach"`
}

type JoinPathOutput struct {
	Reachable   bool                   `json:"reachable"`
	Path        []string               `json:"path"`
	JoinColumns []discovery.JoinColumn `json:"join_columns"`
}

type ValidateInput struct {
	Query    string              `json:"query" jsonschema:"SQL query to check"`
	Datasets []string            `json:"datasets" jsonschema:"datasets the query reads"`
	Columns  map[string][]string `json:"columns,omitempty" jsonschema:"columns used per dataset"`
}

type ValidateOutput struct {
	Passed   bool                `json:"passed"`
	Findings []validator.Finding `json:"findings"`
	Audit    string              `json:"audit"`
}

func schemas[In, Out any](name string) (*jsonschema.Schema, *jsonschema.Schema, error) {
	in, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s input schema: %w", name, err)
	}
	out, err := jsonschema.For[Out](nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s output schema: %w", name, err)
	}
	return in, out, nil
}

func (s *Server) registerCompile() error {
	in, out, err := schemas[CompileInput, CompileOutput]("compile")
	if err != nil {
		return err
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "compile",
		Description: `Compile a natural-language analytical request into a validated SQL query and run it.
Returns the stage reached, the join path, the query, every validation finding and the result rows.
A failed compilation is not an error: read failure_kind and message to see what must change.`,
		InputSchema:  in,
		OutputSchema: out,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req CompileInput) (*mcp.CallToolResult, CompileOutput, error) {
		intent := strings.TrimSpace(req.Intent)
		if intent == "" {
			return nil, CompileOutput{}, fmt.Errorf("intent is required")
		}
		s.log.Debug("mcp: compile", "intent", intent)
		return nil, compileOutput(s.cfg.Compiler.Compile(ctx, intent)), nil
	})
	return nil
}

func compileOutput(run *compiler.Run) CompileOutput {
	out := CompileOutput{
		ID:          run.ID,
		Stage:       string(run.Stage),
		Warnings:    nonNil(run.Warnings),
		JoinPath:    nonNil(run.JoinPath),
		JoinColumns: nonNil(run.JoinColumns),
		Findings:    nonNil(run.Findings()),
		Columns:     []string{},
		Rows:        []map[string]any{},
		Trace:       make([]string, 0, len(run.Trace)),
	}
	out.Audit = validator.AuditReport(out.Findings)
	for _, entry := range run.Trace {
		out.Trace = append(out.Trace, fmt.Sprintf("[%s] %s", entry.Stage, entry.Message))
	}
	if run.Failure != nil {
		out.FailedStage = string(run.Failure.Stage)
		out.FailureKind = string(run.Failure.Kind)
		out.Message = run.Failure.Message
	}
	if run.Plan != nil {
		out.Query = run.Plan.Query
	}
	if run.Result != nil {
		out.Columns = nonNil(run.Result.Columns)
		out.Rows = nonNil(run.Result.Rows)
		out.RowCount = run.Result.RowCount
		if out.Message == "" {
			out.Message = engine.Format(*run.Result)
		}
	}
	return out
}

func (s *Server) registerListDatasets() error {
	in, out, err := schemas[ListDatasetsInput, ListDatasetsOutput]("list-datasets")
	if err != nil {
		return err
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "list-datasets",
		Description:  "List the datasets in the catalog with their columns, types and identifier columns.",
		InputSchema:  in,
		OutputSchema: out,
	}, func(_ context.Context, _ *mcp.CallToolRequest, req ListDatasetsInput) (*mcp.CallToolResult, ListDatasetsOutput, error) {
		g := s.cfg.Graph.Graph()
		names := g.Datasets()
		limit := req.Limit
		if limit <= 0 {
			limit = defaultDatasetLimit
		}
		limit = min(limit, maxDatasetLimit)

		result := ListDatasetsOutput{Datasets: []DatasetInfo{}, Total: len(names)}
		for i := max(req.Offset, 0); i < len(names) && len(result.Datasets) < limit; i++ {
			ds, _ := g.Dataset(names[i])
			info := DatasetInfo{
				Name:      ds.Name,
				Format:    string(ds.Format),
				RowCount:  ds.RowCount,
				Columns:   ds.ColumnNames(),
				Types:     make([]string, 0, len(ds.Columns)),
				IDColumns: nonNil(ds.IDColumns()),
			}
			for _, c := range ds.Columns {
				info.Types = append(info.Types, c.Type)
			}
			result.Datasets = append(result.Datasets, info)
		}
		return nil, result, nil
	})
	return nil
}

func (s *Server) registerJoinPath() error {
	in, out, err := schemas[JoinPathInput, JoinPathOutput]("join-path")
	if err != nil {
		return err
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "join-path",
		Description:  "Find the highest-confidence join path between two datasets and the columns each hop joins on.",
		InputSchema:  in,
		OutputSchema: out,
	}, func(_ context.Context, _ *mcp.CallToolRequest, req JoinPathInput) (*mcp.CallToolResult, JoinPathOutput, error) {
		g := s.cfg.Graph.Graph()
		for _, name := range []string{req.From, req.To} {
			if !g.Has(name) {
				return nil, JoinPathOutput{}, fmt.Errorf("dataset %q not found", name)
			}
		}
		path := g.JoinPath(req.From, req.To)
		return nil, JoinPathOutput{
			Reachable:   len(path) > 0,
			Path:        nonNil(path),
			JoinColumns: nonNil(g.JoinColumns(path)),
		}, nil
	})
	return nil
}

func (s *Server) registerValidate() error {
	in, out, err := schemas[ValidateInput, ValidateOutput]("validate")
	if err != nil {
		return err
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "validate",
		Description:  "Check a SQL query against the catalog: dataset and column existence, syntax, join types and read-only safety.",
		InputSchema:  in,
		OutputSchema: out,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req ValidateInput) (*mcp.CallToolResult, ValidateOutput, error) {
		report := s.cfg.Validator.Validate(ctx, s.cfg.Graph.Graph(), validator.QueryPlan{
			Query:    req.Query,
			Datasets: req.Datasets,
			Columns:  req.Columns,
		})
		findings := nonNil(report.Findings)
		return nil, ValidateOutput{
			Passed:   report.Passed,
			Findings: findings,
			Audit:    validator.AuditReport(findings),
		}, nil
	})
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

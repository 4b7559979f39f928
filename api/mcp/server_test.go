package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	adosmcp "github.com/malbeclabs/ados/api/mcp"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	adostesting "github.com/malbeclabs/ados/utils/pkg/testing"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

type staticGraph struct{ g *discovery.KnowledgeGraph }

func (s staticGraph) Graph() *discovery.KnowledgeGraph { return s.g }

type fakeCompiler struct{}

func (fakeCompiler) Compile(_ context.Context, intent string) *compiler.Run {
	if intent == "weather" {
		return &compiler.Run{
			ID: "r2", Intent: intent, Stage: compiler.StageFailed,
			Failure: &compiler.Failure{Stage: compiler.StageDiscovery, Kind: compiler.KindNotFound, Message: "none of the requested datasets exist in the catalog: weather"},
		}
	}
	return &compiler.Run{
		ID: "r1", Intent: intent, Stage: compiler.StageDone,
		JoinPath: []string{"customer", "sales"},
		Trace:    []compiler.TraceEntry{{Stage: compiler.StageDiscovery, Message: "selected datasets: customer, sales"}},
		Plan:     &validator.QueryPlan{Query: "SELECT 1 AS n"},
		Report:   &validator.Report{Passed: true},
		Result:   &engine.Result{Columns: []string{"n"}, Rows: []map[string]any{{"n": 1}}, RowCount: 1},
	}
}

func testGraph() *discovery.KnowledgeGraph {
	snap := catalog.NewSnapshot([]catalog.Dataset{
		{Name: "customer", Format: catalog.FormatParquet, RowCount: 3, Columns: []catalog.Column{
			catalog.NewColumn("ID_Client", "BIGINT", nil),
			catalog.NewColumn("Score", "DOUBLE", nil),
		}},
		{Name: "sales", Format: catalog.FormatParquet, RowCount: 2, Columns: []catalog.Column{
			catalog.NewColumn("ID_Client", "BIGINT", nil),
			catalog.NewColumn("Amount", "DOUBLE", nil),
		}},
	}, nil, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return discovery.Build(snap, discovery.DefaultOptions())
}

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	v, err := validator.New(validator.Config{Logger: adostesting.NewLogger()})
	require.NoError(t, err)
	srv, err := adosmcp.New(adosmcp.Config{
		Logger:    adostesting.NewLogger(),
		Graph:     staticGraph{testGraph()},
		Compiler:  fakeCompiler{},
		Validator: v,
	})
	require.NoError(t, err)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err = srv.MCPServer().Connect(t.Context(), serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(t.Context(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func call[T any](t *testing.T, session *mcp.ClientSession, name string, args map[string]any) T {
	t.Helper()
	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, result.IsError, "tool %s returned an error: %v", name, result.Content)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var out T
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestADOS_MCP_ListTools(t *testing.T) {
	t.Parallel()
	session := connect(t)

	result, err := session.ListTools(t.Context(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{"compile", "list-datasets", "join-path", "validate"}, names)
}

func TestADOS_MCP_Compile(t *testing.T) {
	t.Parallel()
	session := connect(t)

	out := call[adosmcp.CompileOutput](t, session, "compile", map[string]any{"intent": "sales per customer"})
	require.Equal(t, "done", out.Stage)
	require.Equal(t, []string{"customer", "sales"}, out.JoinPath)
	require.Equal(t, "SELECT 1 AS n", out.Query)
	require.Equal(t, 1, out.RowCount)
	require.Equal(t, []string{"[discovery] selected datasets: customer, sales"}, out.Trace)
	require.Contains(t, out.Audit, "Verdict: PASSED")

	out = call[adosmcp.CompileOutput](t, session, "compile", map[string]any{"intent": "weather"})
	require.Equal(t, "failed", out.Stage)
	require.Equal(t, "not_found", out.FailureKind)
	require.Equal(t, "discovery", out.FailedStage)

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: "compile", Arguments: map[string]any{"intent": " "}})
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestADOS_MCP_ListDatasetsAndJoinPath(t *testing.T) {
	t.Parallel()
	session := connect(t)

	list := call[adosmcp.ListDatasetsOutput](t, session, "list-datasets", map[string]any{"limit": 1})
	require.Equal(t, 2, list.Total)
	require.Len(t, list.Datasets, 1)
	require.Equal(t, "customer", list.Datasets[0].Name)
	require.Equal(t, []string{"BIGINT", "DOUBLE"}, list.Datasets[0].Types)

	path := call[adosmcp.JoinPathOutput](t, session, "join-path", map[string]any{"from": "customer", "to": "sales"})
	require.True(t, path.Reachable)
	require.Equal(t, []string{"customer", "sales"}, path.Path)
	require.Len(t, path.JoinColumns, 1)
	require.InDelta(t, discovery.ExactNameConfidence, path.JoinColumns[0].Confidence, 1e-9)

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: "join-path", Arguments: map[string]any{"from": "customer", "to": "ghost"}})
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func TestADOS_MCP_Validate(t *testing.T) {
	t.Parallel()
	session := connect(t)

	out := call[adosmcp.ValidateOutput](t, session, "validate", map[string]any{
		"query":    "DELETE FROM customer",
		"datasets": []string{"customer"},
	})
	require.False(t, out.Passed)
	var rules []string
	for _, f := range out.Findings {
		rules = append(rules, f.Rule)
	}
	require.Contains(t, rules, validator.RuleSQLSafety)
	require.Contains(t, out.Audit, "BLOCKED")
}

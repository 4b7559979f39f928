//go:build evals

package evals_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/agent/pkg/reasoning"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	adostesting "github.com/malbeclabs/ados/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

// Expectation is one property an LLM grader checks in a compiled run.
type Expectation struct {
	Description   string
	ExpectedValue string
	Rationale     string
}

func newAnthropicLLMClient(t *testing.T) reasoning.LLMClient {
	t.Helper()
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		t.Skip("ANTHROPIC_API_KEY not set, skipping eval test")
	}
	llm, err := reasoning.NewAnthropicLLMClient(reasoning.AnthropicConfig{
		Logger: adostesting.NewLogger(),
		Name:   "evals",
	})
	require.NoError(t, err)
	return llm
}

// writeCSVs writes each dataset as <name>.csv into a temp dir and returns the dir.
func writeCSVs(t *testing.T, datasets map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range datasets {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(content), 0o644))
	}
	return dir
}

type harness struct {
	graph    *discovery.Service
	compiler *compiler.Compiler
	llm      reasoning.LLMClient
}

func setupCompiler(t *testing.T, ctx context.Context, dir string) *harness {
	t.Helper()
	log := adostesting.NewLogger()
	llm := newAnthropicLLMClient(t)

	files, err := catalog.NewFileSource(catalog.FileSourceConfig{Logger: log, Paths: []string{dir}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = files.Close() })
	registry, err := catalog.NewRegistry(catalog.RegistryConfig{Logger: log, Sources: []catalog.Source{files}})
	require.NoError(t, err)
	graph, err := discovery.NewService(discovery.ServiceConfig{Logger: log, Catalog: registry})
	require.NoError(t, err)

	duck, err := engine.NewDuckDB(ctx, engine.DuckDBConfig{Logger: log, MaxRows: 1000})
	require.NoError(t, err)
	t.Cleanup(func() { _ = duck.Close() })
	graph.OnSwap(duck.Hook())
	_, err = graph.Refresh(ctx)
	require.NoError(t, err)

	svc, err := reasoning.New(reasoning.Config{Logger: log, LLM: llm, CachePrompts: true})
	require.NoError(t, err)
	v, err := validator.New(validator.Config{Logger: log, Judge: svc})
	require.NoError(t, err)
	c, err := compiler.New(compiler.Config{
		Logger:    log,
		Graph:     graph,
		Reasoning: svc,
		Validator: v,
		Engine:    duck,
	})
	require.NoError(t, err)
	return &harness{graph: graph, compiler: c, llm: llm}
}

func logRun(t *testing.T, run *compiler.Run) {
	t.Helper()
	for _, e := range run.Trace {
		t.Logf("[%s] %s", e.Stage, e.Message)
	}
	if run.Plan != nil {
		t.Logf("query:\n%s", run.Plan.Query)
	}
	if run.Result != nil {
		t.Logf("result:\n%s", engine.Format(*run.Result))
	}
}

const graderPrompt = `You grade the output of a system that compiles natural-language questions into SQL.
Given the question, the compiled query, its result and a list of expectations, decide whether
every expectation holds. Answer with exactly one line: PASS, or FAIL: <reason>.`

// evaluateRun asks the LLM whether the run meets every expectation.
func evaluateRun(t *testing.T, ctx context.Context, h *harness, intent string, run *compiler.Run, expectations ...Expectation) (bool, error) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", intent)
	if run.Plan != nil {
		fmt.Fprintf(&b, "Query:\n%s\n\n", run.Plan.Query)
	}
	if run.Result != nil {
		fmt.Fprintf(&b, "Result:\n%s\n\n", engine.Format(*run.Result))
	}
	if run.Failure != nil {
		fmt.Fprintf(&b, "Failure: %s at %s: %s\n\n", run.Failure.Kind, run.Failure.Stage, run.Failure.Message)
	}
	b.WriteString("Expectations:\n")
	for i, e := range expectations {
		fmt.Fprintf(&b, "%d. %s\n   Expected: %s\n   Why: %s\n", i+1, e.Description, e.ExpectedValue, e.Rationale)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	verdict, err := h.llm.Complete(ctx, graderPrompt, b.String(), reasoning.WithName("grader"))
	if err != nil {
		return false, err
	}
	verdict = strings.TrimSpace(verdict)
	t.Logf("grader: %s", verdict)
	return strings.HasPrefix(strings.ToUpper(verdict), "PASS"), nil
}

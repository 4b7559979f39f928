package reasoning_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/malbeclabs/ados/agent/pkg/reasoning"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	adostesting "github.com/malbeclabs/ados/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

type call struct {
	system, user string
	opts         reasoning.CompleteOptions
}

type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	calls    []call
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string, opts ...reasoning.CompleteOption) (string, error) {
	var o reasoning.CompleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{system: system, user: user, opts: o})
	return f.response, f.err
}

func newService(t *testing.T, llm reasoning.LLMClient) *reasoning.LLMService {
	t.Helper()
	svc, err := reasoning.New(reasoning.Config{Logger: adostesting.NewLogger(), LLM: llm, CachePrompts: true})
	require.NoError(t, err)
	return svc
}

func summary() discovery.Summary {
	return discovery.Summary{Datasets: []discovery.DatasetSummary{
		{Name: "customer", RowCount: 3, Columns: []discovery.ColumnSummary{{Name: "ID_Client", Type: "BIGINT"}}},
		{Name: "sales", RowCount: 2, Columns: []discovery.ColumnSummary{{Name: "ID_Client", Type: "BIGINT"}}},
	}}
}

func TestADOS_Reasoning_Discover(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: "Here you go:\n```json\n" + `{
  "required_datasets": ["customer", "sales"],
  "required_columns": {"customer": ["ID_Client", "Score"], "sales": ["ID_Client", "Amount"]},
  "reasoning": "scores come from customer, amounts from sales"
}` + "\n```"}
	svc := newService(t, llm)

	d, err := svc.Discover(context.Background(), "average sale by customer score", summary())
	require.NoError(t, err)
	require.Equal(t, reasoning.Discovery{
		Datasets:  []string{"customer", "sales"},
		Columns:   map[string][]string{"customer": {"ID_Client", "Score"}, "sales": {"ID_Client", "Amount"}},
		Reasoning: "scores come from customer, amounts from sales",
	}, d)

	require.Len(t, llm.calls, 1)
	c := llm.calls[0]
	require.Equal(t, "discovery", c.opts.Name)
	require.True(t, c.opts.CacheSystemPrompt)
	require.Contains(t, c.user, `"name": "customer"`)
	require.True(t, strings.HasSuffix(c.user, "Intent: average sale by customer score"))
}

func TestADOS_Reasoning_Discover_LegacyFiles(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakeLLM{response: `{"required_files": ["customer.parquet", "sales.csv"], "required_columns": {"sales.csv": ["Amount"]}, "reasoning": "x"}`})
	d, err := svc.Discover(context.Background(), "intent", summary())
	require.NoError(t, err)
	require.Equal(t, []string{"customer", "sales"}, d.Datasets)
	require.Equal(t, map[string][]string{"sales": {"Amount"}}, d.Columns)
}

func TestADOS_Reasoning_Discover_RepeatedNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{"repeated", `{"required_datasets": ["customer", "sales", "customer"]}`, []string{"customer", "sales"}},
		{"file and dataset name", `{"required_datasets": ["sales", "sales.parquet"]}`, []string{"sales"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := newService(t, &fakeLLM{response: tt.response})
			d, err := svc.Discover(context.Background(), "intent", summary())
			require.NoError(t, err)
			require.Equal(t, tt.want, d.Datasets)
		})
	}
}

func TestADOS_Reasoning_Discover_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		reason   string
	}{
		{"prose only", "I think you need the sales dataset.", "no JSON object found"},
		{"unterminated", `{"required_datasets": ["sales"`, "no JSON object found"},
		{"invalid json", `{"required_datasets": [sales]}`, "invalid JSON"},
		{"unknown field", `{"required_datasets": ["sales"], "confidence": 0.9}`, ""},
		{"wrong type", `{"required_datasets": "sales"}`, ""},
		{"no datasets", `{"required_datasets": [], "reasoning": "nothing fits"}`, "no datasets named"},
		{"blank name", `{"required_datasets": [" "]}`, "empty dataset name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := newService(t, &fakeLLM{response: tt.response})
			_, err := svc.Discover(context.Background(), "intent", summary())
			var malformed *reasoning.MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			require.Equal(t, "discovery", malformed.Operation)
			require.Equal(t, tt.response, malformed.Raw)
			if tt.reason != "" {
				require.Contains(t, malformed.Reason, tt.reason)
			}
		})
	}
}

func TestADOS_Reasoning_Discover_LLMError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	svc := newService(t, &fakeLLM{err: boom})
	_, err := svc.Discover(context.Background(), "intent", summary())
	require.ErrorIs(t, err, boom)
	var malformed *reasoning.MalformedResponseError
	require.False(t, errors.As(err, &malformed))
}

func TestADOS_Reasoning_Plan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		query    string
	}{
		{
			name:     "query_text",
			response: `{"query_text": "SELECT 1 FROM sales;", "explanation": "trivial"}`,
			query:    "SELECT 1 FROM sales",
		},
		{
			name:     "sql_query alias with join_path",
			response: `{"sql_query": "SELECT * FROM sales", "join_path": ["sales"], "explanation": "trivial"}`,
			query:    "SELECT * FROM sales",
		},
		{
			name:     "literal newlines and concatenation",
			response: "{\"query_text\": \"SELECT s.Amount\n\" + \"FROM sales s\", \"explanation\": \"trivial\"}",
			query:    "SELECT s.Amount\nFROM sales s",
		},
		{
			name:     "trailing brace and invoke tags",
			response: `{"query_text": "SELECT 1 FROM sales", "explanation": "trivial"}}</invoke>`,
			query:    "SELECT 1 FROM sales",
		},
		{
			name:     "braces inside strings",
			response: `{"query_text": "SELECT '{x}' AS v FROM sales", "explanation": "has } in it"}`,
			query:    "SELECT '{x}' AS v FROM sales",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := newService(t, &fakeLLM{response: tt.response})
			draft, err := svc.Plan(context.Background(), reasoning.PlanRequest{Intent: "x"})
			require.NoError(t, err)
			require.Equal(t, tt.query, draft.Query)
		})
	}
}

func TestADOS_Reasoning_Plan_Malformed(t *testing.T) {
	t.Parallel()

	for _, response := range []string{
		`{"query_text": "  ", "explanation": "nothing"}`,
		`{"explanation": "forgot the query"}`,
		`{"query": "SELECT 1"}`,
		"SELECT * FROM sales",
	} {
		svc := newService(t, &fakeLLM{response: response})
		_, err := svc.Plan(context.Background(), reasoning.PlanRequest{Intent: "x"})
		var malformed *reasoning.MalformedResponseError
		require.ErrorAs(t, err, &malformed, response)
		require.Equal(t, "planning", malformed.Operation)
	}
}

func TestADOS_Reasoning_PlanPrompt(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: `{"query_text": "SELECT 1 FROM customer"}`}
	svc := newService(t, llm)
	_, err := svc.Plan(context.Background(), reasoning.PlanRequest{
		Intent:  "total sales per customer",
		Dialect: "duckdb",
		Datasets: []catalog.Dataset{
			{Name: "customer", RowCount: 3, Columns: []catalog.Column{{Name: "ID_Client", Type: "BIGINT"}}},
			{Name: "sales", RowCount: 2, Columns: []catalog.Column{{Name: "ID_Client", Type: "BIGINT"}, {Name: "Amount", Type: "DOUBLE"}}},
		},
		Columns:  map[string][]string{"sales": {"Amount"}},
		JoinPath: []string{"customer", "sales"},
		JoinColumns: []discovery.JoinColumn{{
			Left:       discovery.ColumnRef{Dataset: "customer", Column: "ID_Client"},
			Right:      discovery.ColumnRef{Dataset: "sales", Column: "ID_Client"},
			Kind:       discovery.KindExactName,
			Confidence: 0.85,
		}},
	})
	require.NoError(t, err)

	user := llm.calls[0].user
	require.Contains(t, user, "SQL dialect: duckdb")
	require.Contains(t, user, "- sales (2 rows)\n    ID_Client BIGINT\n    Amount DOUBLE\n")
	require.Contains(t, user, "- sales: Amount\n")
	require.Contains(t, user, "Join path: customer -> sales\n")
	require.Contains(t, user, "- customer.ID_Client = sales.ID_Client (exact-name-match, confidence 0.85)\n")
	require.Equal(t, "planning", llm.calls[0].opts.Name)
}

func TestADOS_Reasoning_Judge(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: "  OK\n"}
	svc := newService(t, llm)
	answer, err := svc.Judge(context.Background(), "SELECT 1 FROM sales", []string{"sales"})
	require.NoError(t, err)
	require.Equal(t, "OK", answer)
	require.Equal(t, "Datasets: sales\n\nQuery:\nSELECT 1 FROM sales", llm.calls[0].user)

	_, err = newService(t, &fakeLLM{response: " "}).Judge(context.Background(), "SELECT 1 FROM sales", nil)
	var malformed *reasoning.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestADOS_Reasoning_Prompts(t *testing.T) {
	t.Parallel()

	prompts, err := reasoning.LoadPrompts()
	require.NoError(t, err)
	require.Contains(t, prompts.Discover, `"required_datasets"`)
	require.Contains(t, prompts.Plan, `"query_text"`)
	require.Contains(t, prompts.Judge, "OK")
}

func TestADOS_Reasoning_ConfigValidate(t *testing.T) {
	t.Parallel()

	_, err := reasoning.New(reasoning.Config{Logger: adostesting.NewLogger()})
	require.Error(t, err)
	_, err = reasoning.New(reasoning.Config{LLM: &fakeLLM{}})
	require.Error(t, err)
}

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/api/handlers"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	adostesting "github.com/malbeclabs/ados/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	g         atomic.Pointer[discovery.KnowledgeGraph]
	refreshed atomic.Int32
	err       error
}

func (f *fakeGraph) Graph() *discovery.KnowledgeGraph { return f.g.Load() }
func (f *fakeGraph) Ready() bool { return len(f.g.Load().Datasets()) > 0 }

func (f *fakeGraph) Refresh(context.Context) (*discovery.KnowledgeGraph, error) {
	f.refreshed.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.g.Load(), nil
}

type fakeCompiler struct{}

func (fakeCompiler) Compile(_ context.Context, intent string) *compiler.Run {
	run := &compiler.Run{ID: "run-1", Intent: intent, Stage: compiler.StageDone}
	if strings.Contains(intent, "weather") {
		run.Stage = compiler.StageFailed
		run.Failure = &compiler.Failure{Stage: compiler.StageDiscovery, Kind: compiler.KindNotFound, Message: "none"}
	}
	return run
}

type fakeAsync struct {
	runs map[string]compiler.Status
}

func (f *fakeAsync) Submit(_ context.Context, intent string) (string, error) {
	if intent == "closed" {
		return "", errors.New("pool stopped")
	}
	id := "queued-1"
	f.runs[id] = compiler.Status{ID: id, Intent: intent}
	return id, nil
}

func (f *fakeAsync) Get(id string) (compiler.Status, bool) {
	s, ok := f.runs[id]
	return s, ok
}

func testGraph() *discovery.KnowledgeGraph {
	snap := catalog.NewSnapshot([]catalog.Dataset{
		{Name: "customer", Location: "customer.parquet", Format: catalog.FormatParquet, RowCount: 3, Columns: []catalog.Column{
			catalog.NewColumn("ID_Client", "BIGINT", []string{"1", "2", "3"}),
			catalog.NewColumn("Score", "DOUBLE", nil),
		}},
		{Name: "sales", Location: "sales.parquet", Format: catalog.FormatParquet, RowCount: 2, Columns: []catalog.Column{
			catalog.NewColumn("ID_Client", "BIGINT", []string{"1", "2"}),
			catalog.NewColumn("Amount", "DOUBLE", nil),
		}},
		{Name: "weather", Location: "weather.parquet", Format: catalog.FormatParquet, Columns: []catalog.Column{
			catalog.NewColumn("temperature", "DOUBLE", nil),
		}},
	}, []string{"broken.csv: failed to describe"}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return discovery.Build(snap, discovery.DefaultOptions())
}

func newRouter(t *testing.T, graph *fakeGraph) http.Handler {
	t.Helper()
	v, err := validator.New(validator.Config{Logger: adostesting.NewLogger()})
	require.NoError(t, err)
	api, err := handlers.New(handlers.Config{
		Logger:    adostesting.NewLogger(),
		Graph:     graph,
		Compiler:  fakeCompiler{},
		Async:     &fakeAsync{runs: map[string]compiler.Status{}},
		Validator: v,
		Version:   handlers.VersionInfo{Version: "1.2.3", Commit: "abc"},
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/healthz", api.Healthz)
	r.Get("/readyz", api.Readyz)
	r.Get("/version", api.GetVersion)
	r.Post("/api/compile", api.Compile)
	r.Post("/api/runs", api.SubmitRun)
	r.Get("/api/runs/{id}", api.GetRun)
	r.Get("/api/audit/runs", api.ListAuditRuns)
	r.Get("/api/datasets", api.ListDatasets)
	r.Get("/api/datasets/{name}", api.GetDataset)
	r.Get("/api/graph", api.GetGraph)
	r.Get("/api/graph/path", api.GetJoinPath)
	r.Post("/api/validate", api.Validate)
	r.Post("/api/refresh", api.Refresh)
	return r
}

func readyGraph() *fakeGraph {
	f := &fakeGraph{}
	f.g.Store(testGraph())
	return f
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestADOS_Handlers_Compile(t *testing.T) {
	t.Parallel()
	h := newRouter(t, readyGraph())

	rec := do(t, h, http.MethodPost, "/api/compile", `{"intent":"sales per customer"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[compiler.Run](t, rec)
	require.Equal(t, compiler.StageDone, run.Stage)

	rec = do(t, h, http.MethodPost, "/api/compile", `{"intent":"weather in paris"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	run = decode[compiler.Run](t, rec)
	require.Equal(t, compiler.StageFailed, run.Stage)
	require.Equal(t, compiler.KindNotFound, run.Failure.Kind)

	for _, body := range []string{`{"intent":"  "}`, `not json`, `{"intent":"x","extra":1}`} {
		rec = do(t, h, http.MethodPost, "/api/compile", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.Equal(t, "invalid_request", decode[handlers.ErrorResponse](t, rec).Error)
	}
}

func TestADOS_Handlers_Runs(t *testing.T) {
	t.Parallel()
	h := newRouter(t, readyGraph())

	rec := do(t, h, http.MethodPost, "/api/runs", `{"intent":"sales per customer"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "/api/runs/queued-1", rec.Header().Get("Location"))
	require.Equal(t, "queued-1", decode[handlers.SubmitResponse](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/api/runs/queued-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[compiler.Status](t, rec)
	require.False(t, status.Done)
	require.Equal(t, "sales per customer", status.Intent)

	rec = do(t, h, http.MethodGet, "/api/runs/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/runs", `{"intent":"closed"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/audit/runs", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestADOS_Handlers_Datasets(t *testing.T) {
	t.Parallel()
	h := newRouter(t, readyGraph())

	rec := do(t, h, http.MethodGet, "/api/datasets?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[handlers.PaginatedResponse[handlers.DatasetListItem]](t, rec)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	require.Equal(t, "customer", page.Items[0].Name)
	require.Equal(t, []string{"ID_Client"}, page.Items[0].IDColumns)

	rec = do(t, h, http.MethodGet, "/api/datasets?limit=2&offset=2", "")
	page = decode[handlers.PaginatedResponse[handlers.DatasetListItem]](t, rec)
	require.Len(t, page.Items, 1)
	require.Equal(t, "weather", page.Items[0].Name)

	rec = do(t, h, http.MethodGet, "/api/datasets?offset=10", "")
	page = decode[handlers.PaginatedResponse[handlers.DatasetListItem]](t, rec)
	require.Empty(t, page.Items)

	rec = do(t, h, http.MethodGet, "/api/datasets/sales", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ds := decode[catalog.Dataset](t, rec)
	require.Equal(t, []string{"ID_Client", "Amount"}, ds.ColumnNames())

	rec = do(t, h, http.MethodGet, "/api/datasets/ghost_domain", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, decode[handlers.ErrorResponse](t, rec).Message, "ghost_domain")
}

func TestADOS_Handlers_Graph(t *testing.T) {
	t.Parallel()
	h := newRouter(t, readyGraph())

	rec := do(t, h, http.MethodGet, "/api/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	graph := decode[handlers.GraphResponse](t, rec)
	require.Len(t, graph.Datasets, 3)
	require.Len(t, graph.Primary, 1)
	require.Equal(t, discovery.KindExactName, graph.Primary[0].Kind)
	require.Equal(t, []string{"broken.csv: failed to describe"}, graph.Warnings)

	rec = do(t, h, http.MethodGet, "/api/graph/path?from=sales&to=customer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	path := decode[handlers.PathResponse](t, rec)
	require.True(t, path.Reachable)
	require.Equal(t, []string{"sales", "customer"}, path.Path)
	require.Len(t, path.JoinColumns, 1)
	require.Equal(t, "sales", path.JoinColumns[0].Left.Dataset)

	rec = do(t, h, http.MethodGet, "/api/graph/path?from=sales&to=weather", "")
	require.Equal(t, http.StatusOK, rec.Code)
	path = decode[handlers.PathResponse](t, rec)
	require.False(t, path.Reachable)
	require.Empty(t, path.Path)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/graph/path?from=sales", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/graph/path?from=sales&to=ghost", "").Code)
}

func TestADOS_Handlers_Validate(t *testing.T) {
	t.Parallel()
	h := newRouter(t, readyGraph())

	rec := do(t, h, http.MethodPost, "/api/validate", `{
		"query": "SELECT c.Score, s.Amount FROM customer c JOIN sales s ON c.ID_Client = s.ID_Client",
		"datasets": ["customer", "sales"]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.ValidateResponse](t, rec)
	require.True(t, resp.Report.Passed)
	require.Contains(t, resp.Audit, "Verdict: PASSED")

	rec = do(t, h, http.MethodPost, "/api/validate", `{"query": "DROP TABLE customer", "datasets": ["ghost_domain"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[handlers.ValidateResponse](t, rec)
	require.False(t, resp.Report.Passed)
	require.Contains(t, resp.Audit, "BLOCKED")
	var rules []string
	for _, f := range resp.Report.Findings {
		rules = append(rules, f.Rule)
	}
	require.Contains(t, rules, validator.RuleDatasetExistence)
	require.Contains(t, rules, validator.RuleSQLSafety)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/validate", `{"datasets":["customer"]}`).Code)
}

func TestADOS_Handlers_RefreshAndHealth(t *testing.T) {
	t.Parallel()
	graph := readyGraph()
	h := newRouter(t, graph)

	rec := do(t, h, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[handlers.RefreshResponse](t, rec)
	require.Equal(t, 3, resp.Datasets)
	require.EqualValues(t, 1, graph.refreshed.Load())

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	rec = do(t, h, http.MethodGet, "/version", "")
	require.Equal(t, handlers.VersionInfo{Version: "1.2.3", Commit: "abc"}, decode[handlers.VersionInfo](t, rec))

	failing := &fakeGraph{err: errors.New("s3 unreachable")}
	failing.g.Store(discovery.Empty())
	h = newRouter(t, failing)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", "").Code)
	require.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodPost, "/api/refresh", "").Code)
}

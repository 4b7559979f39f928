package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	adostesting "github.com/malbeclabs/ados/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newDuckDB(t *testing.T, maxRows int) *engine.DuckDB {
	t.Helper()
	db, err := engine.NewDuckDB(t.Context(), engine.DuckDBConfig{Logger: adostesting.NewLogger(), MaxRows: maxRows})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestADOS_Engine_DuckDB_ViewsAndJoin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	customer := writeFile(t, dir, "customer.csv", "ID_Client,Score\n1,0.5\n2,0.7\n3,0.9\n")
	sales := writeFile(t, dir, "sales.csv", "ID_Client,Amount\n1,10\n1,15\n2,20\n")

	db := newDuckDB(t, 0)
	require.NoError(t, db.RegisterViews(t.Context(), []catalog.Dataset{
		{Name: "customer", Location: customer, Format: catalog.FormatCSV},
		{Name: "sales", Location: sales, Format: catalog.FormatCSV},
		{Name: "remote", Location: "clickhouse://default.remote", Format: catalog.FormatClickHouse},
	}))

	result, err := db.Execute(t.Context(), `SELECT c.ID_Client, sum(s.Amount)::DOUBLE AS total
FROM customer c JOIN sales s ON c.ID_Client = s.ID_Client
GROUP BY c.ID_Client ORDER BY c.ID_Client`)
	require.NoError(t, err)
	require.Equal(t, []string{"ID_Client", "total"}, result.Columns)
	require.Equal(t, 2, result.RowCount)
	require.Equal(t, []map[string]any{
		{"ID_Client": int64(1), "total": 25.0},
		{"ID_Client": int64(2), "total": 20.0},
	}, result.Rows)
	require.Contains(t, result.Formatted, "1 | 25\n2 | 20\n")

	// Table functions work without views too.
	result, err = db.Execute(t.Context(), "SELECT count(*)::INTEGER AS n FROM read_csv_auto('"+sales+"')")
	require.NoError(t, err)
	require.Equal(t, int32(3), result.Rows[0]["n"])
}

func TestADOS_Engine_DuckDB_Sanitizes(t *testing.T) {
	t.Parallel()

	result, err := newDuckDB(t, 0).Execute(t.Context(), "SELECT 'nan'::DOUBLE AS x, 'abc'::BLOB AS b")
	require.NoError(t, err)
	require.Equal(t, []map[string]any{{"x": nil, "b": "abc"}}, result.Rows)
}

func TestADOS_Engine_DuckDB_MaxRows(t *testing.T) {
	t.Parallel()

	result, err := newDuckDB(t, 2).Execute(t.Context(), "SELECT * FROM range(10)")
	require.NoError(t, err)
	require.Equal(t, 2, result.RowCount)
	require.True(t, result.Truncated)

	result, err = newDuckDB(t, 0).Execute(t.Context(), "SELECT * FROM range(0)")
	require.NoError(t, err)
	require.Equal(t, 0, result.RowCount)
	require.NotNil(t, result.Rows)
	require.Equal(t, "Query returned no results.", result.Formatted)
}

func TestADOS_Engine_DuckDB_Errors(t *testing.T) {
	t.Parallel()

	db := newDuckDB(t, 0)
	_, err := db.Execute(t.Context(), "SELECT * FROM missing_table")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = db.Execute(ctx, "SELECT 1")
	require.Error(t, err)

	_, err = engine.NewDuckDB(t.Context(), engine.DuckDBConfig{Logger: adostesting.NewLogger(), Setup: []string{"NOT SQL"}})
	require.Error(t, err)
	_, err = engine.NewDuckDB(t.Context(), engine.DuckDBConfig{})
	require.Error(t, err)
	require.Equal(t, engine.DialectDuckDB, db.Dialect())
}

func TestADOS_Engine_DuckDB_Hook(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "orders.csv", "order_id,total\n1,9.5\n2,3.5\n")
	g := discovery.Build(catalog.NewSnapshot([]catalog.Dataset{
		{Name: "orders", Location: path, Format: catalog.FormatCSV, Columns: []catalog.Column{catalog.NewColumn("order_id", "BIGINT", nil)}},
	}, nil, time.Now()), discovery.DefaultOptions())

	db := newDuckDB(t, 0)
	db.Hook()(t.Context(), g)

	result, err := db.Execute(t.Context(), `SELECT sum(total) AS s FROM "orders"`)
	require.NoError(t, err)
	require.Equal(t, 13.0, result.Rows[0]["s"])
}

func TestADOS_Engine_DuckDB_DropsVanishedViews(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	orders := writeFile(t, dir, "orders.csv", "order_id,total\n1,9.5\n")
	returns := writeFile(t, dir, "returns.csv", "order_id,reason\n1,damaged\n")
	build := func(datasets ...catalog.Dataset) *discovery.KnowledgeGraph {
		return discovery.Build(catalog.NewSnapshot(datasets, nil, time.Now()), discovery.DefaultOptions())
	}
	ordersDS := catalog.Dataset{Name: "orders", Location: orders, Format: catalog.FormatCSV, Columns: []catalog.Column{catalog.NewColumn("order_id", "BIGINT", nil)}}
	returnsDS := catalog.Dataset{Name: "returns", Location: returns, Format: catalog.FormatCSV, Columns: []catalog.Column{catalog.NewColumn("order_id", "BIGINT", nil)}}

	db := newDuckDB(t, 0)
	db.Hook()(t.Context(), build(ordersDS, returnsDS))
	_, err := db.Execute(t.Context(), `SELECT * FROM "returns"`)
	require.NoError(t, err)

	db.Hook()(t.Context(), build(ordersDS))
	_, err = db.Execute(t.Context(), `SELECT * FROM "returns"`)
	require.Error(t, err)
	_, err = db.Execute(t.Context(), `SELECT * FROM "orders"`)
	require.NoError(t, err)
}

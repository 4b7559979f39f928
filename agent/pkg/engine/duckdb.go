package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/malbeclabs/ados/api/metrics"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
)

const DialectDuckDB = "duckdb"

type DuckDBConfig struct {
	Logger *slog.Logger
	// MaxRows caps materialized rows; 0 means unlimited.
	MaxRows int
	// Setup statements run once after opening, e.g. httpfs and S3 secrets.
	Setup []string
}

func (cfg *DuckDBConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.MaxRows < 0 {
		return errors.New("max rows must be non-negative")
	}
	return nil
}

// DuckDB executes queries on an in-memory DuckDB database.
type DuckDB struct {
	log     *slog.Logger
	db      *sql.DB
	maxRows int

	mu    sync.Mutex
	views map[string]bool
}

var _ Executor = (*DuckDB)(nil)

func NewDuckDB(ctx context.Context, cfg DuckDBConfig) (*DuckDB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate duckdb config: %w", err)
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	for _, stmt := range cfg.Setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run duckdb setup: %w", err)
		}
	}
	return &DuckDB{log: cfg.Logger, db: db, maxRows: cfg.MaxRows, views: map[string]bool{}}, nil
}

func (d *DuckDB) Dialect() string { return DialectDuckDB }

func (d *DuckDB) Close() error {
	return d.db.Close()
}

// RegisterViews creates one view per file-backed dataset so queries may reference
// datasets by name, and drops views registered earlier for datasets no longer listed.
// Datasets living in other engines are skipped.
func (d *DuckDB) RegisterViews(ctx context.Context, datasets []catalog.Dataset) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := make(map[string]bool, len(datasets))
	for _, ds := range datasets {
		if ds.Format != catalog.FormatParquet && ds.Format != catalog.FormatCSV {
			continue
		}
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s",
			catalog.QuoteIdent(ds.Name), catalog.ReaderExpr(ds.Location, ds.Format))
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to register view %s: %w", ds.Name, err)
		}
		current[ds.Name] = true
		d.views[ds.Name] = true
	}

	dropped := 0
	for name := range d.views {
		if current[name] {
			continue
		}
		if _, err := d.db.ExecContext(ctx, "DROP VIEW IF EXISTS "+catalog.QuoteIdent(name)); err != nil {
			return fmt.Errorf("failed to drop view %s: %w", name, err)
		}
		delete(d.views, name)
		dropped++
	}
	d.log.Debug("engine: duckdb views registered", "count", len(current), "dropped", dropped)
	return nil
}

func (d *DuckDB) Execute(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	result, err := d.execute(ctx, query)
	duration := time.Since(start)
	metrics.RecordEngineQuery(DialectDuckDB, duration, err)
	if err != nil {
		d.log.Warn("engine: duckdb query failed", "duration", duration, "error", err)
		return Result{}, err
	}
	d.log.Info("engine: duckdb query completed", "duration", duration, "rows", result.RowCount, "truncated", result.Truncated)
	return result, nil
}

func (d *DuckDB) execute(ctx context.Context, query string) (Result, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	var out []map[string]any
	truncated := false
	for rows.Next() {
		if d.maxRows > 0 && len(out) >= d.maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return finish(columns, out, truncated), nil
}

// Hook keeps the registered views in step with the knowledge graph.
func (d *DuckDB) Hook() discovery.SwapHook {
	return func(ctx context.Context, g *discovery.KnowledgeGraph) {
		datasets := make([]catalog.Dataset, 0, len(g.Datasets()))
		for _, name := range g.Datasets() {
			if ds, ok := g.Dataset(name); ok {
				datasets = append(datasets, ds)
			}
		}
		if err := d.RegisterViews(ctx, datasets); err != nil {
			d.log.Error("engine: failed to register views", "error", err)
		}
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/malbeclabs/ados/api/metrics"
	"github.com/malbeclabs/ados/catalog/pkg/clickhouse"
)

const DialectClickHouse = "clickhouse"

type ClickHouseConfig struct {
	Logger *slog.Logger
	Client clickhouse.Client
	// MaxRows caps materialized rows; 0 means unlimited.
	MaxRows int
}

func (cfg *ClickHouseConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.MaxRows < 0 {
		return errors.New("max rows must be non-negative")
	}
	return nil
}

// ClickHouse executes queries on a ClickHouse connection.
type ClickHouse struct {
	log     *slog.Logger
	client  clickhouse.Client
	maxRows int
}

var _ Executor = (*ClickHouse)(nil)

func NewClickHouse(cfg ClickHouseConfig) (*ClickHouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate clickhouse engine config: %w", err)
	}
	return &ClickHouse{log: cfg.Logger, client: cfg.Client, maxRows: cfg.MaxRows}, nil
}

func (c *ClickHouse) Dialect() string { return DialectClickHouse }

func (c *ClickHouse) Execute(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	result, err := c.execute(ctx, query)
	duration := time.Since(start)
	metrics.RecordEngineQuery(DialectClickHouse, duration, err)
	if err != nil {
		c.log.Warn("engine: clickhouse query failed", "duration", duration, "error", err)
		return Result{}, err
	}
	c.log.Info("engine: clickhouse query completed", "duration", duration, "rows", result.RowCount, "truncated", result.Truncated)
	return result, nil
}

func (c *ClickHouse) execute(ctx context.Context, query string) (Result, error) {
	conn, err := c.client.Conn(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get clickhouse connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	columns := rows.Columns()
	columnTypes := rows.ColumnTypes()

	var out []map[string]any
	truncated := false
	for rows.Next() {
		if c.maxRows > 0 && len(out) >= c.maxRows {
			truncated = true
			break
		}
		ptrs := make([]any, len(columnTypes))
		for i, ct := range columnTypes {
			ptrs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = deref(ptrs[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return finish(columns, out, truncated), nil
}

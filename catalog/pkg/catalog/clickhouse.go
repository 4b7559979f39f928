package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/ados/catalog/pkg/clickhouse"
	"github.com/malbeclabs/ados/utils/pkg/retry"
)

type ClickHouseSourceConfig struct {
	Logger *slog.Logger
	Client clickhouse.Client
	// Database defaults to the client's database.
	Database string
	// Tables restricts the scan; empty means every table in the database.
	Tables     []string
	SampleSize int
	Retry      retry.Config
	Clock      clockwork.Clock
}

func (cfg *ClickHouseSourceConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Database == "" {
		cfg.Database = cfg.Client.Database()
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// ClickHouseSource exposes the tables of a ClickHouse database as datasets.
type ClickHouseSource struct {
	log *slog.Logger
	cfg ClickHouseSourceConfig
}

func NewClickHouseSource(cfg ClickHouseSourceConfig) (*ClickHouseSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate clickhouse source config: %w", err)
	}
	return &ClickHouseSource{log: cfg.Logger, cfg: cfg}, nil
}

type chColumn struct {
	table string
	name  string
	typ   string
}

func (s *ClickHouseSource) Scan(ctx context.Context) (*Snapshot, error) {
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	cols, err := retry.DoValue(ctx, s.cfg.Retry, func() ([]chColumn, error) {
		return s.columns(ctx, conn)
	})
	if err != nil {
		return nil, err
	}
	counts, err := retry.DoValue(ctx, s.cfg.Retry, func() (map[string]int64, error) {
		return s.rowCounts(ctx, conn)
	})
	if err != nil {
		return nil, err
	}

	byTable := map[string][]chColumn{}
	var tables []string
	for _, c := range cols {
		if len(s.cfg.Tables) > 0 && !slices.Contains(s.cfg.Tables, c.table) {
			continue
		}
		if _, ok := byTable[c.table]; !ok {
			tables = append(tables, c.table)
		}
		byTable[c.table] = append(byTable[c.table], c)
	}

	var (
		datasets []Dataset
		warnings []string
	)
	for _, table := range tables {
		columns := make([]Column, 0, len(byTable[table]))
		var sampleErr error
		for _, c := range byTable[table] {
			sample, err := retry.DoValue(ctx, s.cfg.Retry, func() ([]string, error) {
				return s.sample(ctx, conn, table, c.name)
			})
			if err != nil {
				sampleErr = err
				break
			}
			columns = append(columns, NewColumn(c.name, c.typ, sample))
		}
		if sampleErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("catalog: skipping clickhouse table", "table", table, "error", sampleErr)
			warnings = append(warnings, fmt.Sprintf("skipped clickhouse table %s: %v", table, sampleErr))
			continue
		}
		datasets = append(datasets, Dataset{
			Name:     table,
			Location: fmt.Sprintf("clickhouse://%s.%s", s.cfg.Database, table),
			Format:   FormatClickHouse,
			Columns:  columns,
			RowCount: counts[table],
		})
	}

	return NewSnapshot(datasets, warnings, s.cfg.Clock.Now()), nil
}

func (s *ClickHouseSource) columns(ctx context.Context, conn clickhouse.Connection) ([]chColumn, error) {
	rows, err := conn.Query(ctx, `
		SELECT table, name, type
		FROM system.columns
		WHERE database = ?
		ORDER BY table, position
	`, s.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to query system.columns: %w", err)
	}
	defer rows.Close()

	var cols []chColumn
	for rows.Next() {
		var c chColumn
		if err := rows.Scan(&c.table, &c.name, &c.typ); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (s *ClickHouseSource) rowCounts(ctx context.Context, conn clickhouse.Connection) (map[string]int64, error) {
	rows, err := conn.Query(ctx, `
		SELECT name, total_rows
		FROM system.tables
		WHERE database = ?
	`, s.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to query system.tables: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var (
			name  string
			total *uint64
		)
		if err := rows.Scan(&name, &total); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		if total != nil {
			counts[name] = int64(*total)
		}
	}
	return counts, rows.Err()
}

func (s *ClickHouseSource) sample(ctx context.Context, conn clickhouse.Connection, table, column string) ([]string, error) {
	col := "`" + column + "`"
	query := fmt.Sprintf(
		"SELECT DISTINCT toString(%s) AS v FROM `%s`.`%s` WHERE %s IS NOT NULL ORDER BY v LIMIT %d",
		col, s.cfg.Database, table, col, s.cfg.SampleSize,
	)
	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan sample of %s.%s: %w", table, column, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

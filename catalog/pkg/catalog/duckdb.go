package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

const DefaultSampleSize = 100

// duckScanner reads schemas, row counts and value samples of columnar files through DuckDB.
type duckScanner struct {
	log        *slog.Logger
	db         *sql.DB
	sampleSize int
}

func openDuckDB() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return db, nil
}

// ReaderExpr returns the DuckDB table function reading the given location.
func ReaderExpr(location string, format Format) string {
	switch format {
	case FormatCSV:
		return fmt.Sprintf("read_csv_auto(%s)", QuoteLiteral(location))
	default:
		return fmt.Sprintf("read_parquet(%s)", QuoteLiteral(location))
	}
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent renders s as a double-quoted SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (s *duckScanner) scan(ctx context.Context, name, location string, format Format) (Dataset, error) {
	reader := ReaderExpr(location, format)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "DESCRIBE SELECT * FROM "+reader)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to describe %s: %w", location, err)
	}
	type colInfo struct{ name, typ string }
	var cols []colInfo
	for rows.Next() {
		var colName, colType, null, key, dflt, extra sql.NullString
		if err := rows.Scan(&colName, &colType, &null, &key, &dflt, &extra); err != nil {
			rows.Close()
			return Dataset{}, fmt.Errorf("failed to scan describe row: %w", err)
		}
		cols = append(cols, colInfo{name: colName.String, typ: colType.String})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Dataset{}, fmt.Errorf("failed to describe %s: %w", location, err)
	}
	if len(cols) == 0 {
		return Dataset{}, fmt.Errorf("dataset %s has no columns", location)
	}

	var rowCount int64
	if err := conn.QueryRowContext(ctx, "SELECT count(*) FROM "+reader).Scan(&rowCount); err != nil {
		return Dataset{}, fmt.Errorf("failed to count rows of %s: %w", location, err)
	}

	columns := make([]Column, 0, len(cols))
	for _, c := range cols {
		sample, err := s.sample(ctx, conn, reader, c.name)
		if err != nil {
			return Dataset{}, err
		}
		columns = append(columns, NewColumn(c.name, c.typ, sample))
	}

	return Dataset{
		Name:     name,
		Location: location,
		Format:   format,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

func (s *duckScanner) sample(ctx context.Context, conn *sql.Conn, reader, column string) ([]string, error) {
	col := QuoteIdent(column)
	query := fmt.Sprintf(
		"SELECT DISTINCT CAST(%s AS VARCHAR) AS v FROM %s WHERE %s IS NOT NULL ORDER BY v LIMIT %d",
		col, reader, col, s.sampleSize,
	)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to sample column %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan sample of %s: %w", column, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

package engine

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

// Executor runs a validated query.
type Executor interface {
	Execute(ctx context.Context, query string) (Result, error)
	// Dialect names the SQL dialect the executor speaks.
	Dialect() string
}

// Result is a fully materialized query result.
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
	Formatted string           `json:"-"`
}

const formatMaxRows = 50

// FormatValue formats a single value for display. Pointers are dereferenced, which
// matters for nullable and decimal columns that scan as pointers.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ""
		}
		return FormatValue(rv.Elem().Interface())
	}

	switch val := v.(type) {
	case float64:
		return fmt.Sprintf("%v", val)
	case float32:
		return fmt.Sprintf("%v", val)
	case string:
		return val
	case []byte:
		return string(val)
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", val)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Format renders a result as a text table, limited to the first 50 rows.
func Format(result Result) string {
	if len(result.Rows) == 0 {
		return "Query returned no results."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Results (%d rows):\n", len(result.Rows))
	sb.WriteString("Columns: " + strings.Join(result.Columns, " | ") + "\n")
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	for i := range min(formatMaxRows, len(result.Rows)) {
		row := result.Rows[i]
		values := make([]string, 0, len(result.Columns))
		for _, col := range result.Columns {
			values = append(values, FormatValue(row[col]))
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}

	if len(result.Rows) > formatMaxRows {
		fmt.Fprintf(&sb, "... and %d more rows\n", len(result.Rows)-formatMaxRows)
	}
	if result.Truncated {
		sb.WriteString("(result truncated)\n")
	}
	return sb.String()
}

// SanitizeRows replaces NaN and Inf floats with nil so rows can be JSON encoded, and
// turns raw bytes into strings.
func SanitizeRows(rows []map[string]any) {
	for _, row := range rows {
		for key, val := range row {
			switch v := val.(type) {
			case float64:
				if math.IsNaN(v) || math.IsInf(v, 0) {
					row[key] = nil
				}
			case float32:
				if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
					row[key] = nil
				}
			case []byte:
				row[key] = string(v)
			}
		}
	}
}

// deref replaces pointer values with what they point to, or nil.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func finish(columns []string, rows []map[string]any, truncated bool) Result {
	SanitizeRows(rows)
	if rows == nil {
		rows = []map[string]any{}
	}
	result := Result{Columns: columns, Rows: rows, RowCount: len(rows), Truncated: truncated}
	result.Formatted = Format(result)
	return result
}

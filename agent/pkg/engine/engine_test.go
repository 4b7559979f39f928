package engine

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestADOS_Engine_FormatValue(t *testing.T) {
	t.Parallel()

	s := "hello"
	var nilStr *string
	n := int64(42)
	pn := &n

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"nil pointer", nilStr, ""},
		{"string pointer", &s, "hello"},
		{"pointer to pointer", &pn, "42"},
		{"float", 1.5, "1.5"},
		{"float32", float32(2.25), "2.25"},
		{"int", 7, "7"},
		{"uint8", uint8(255), "255"},
		{"bytes", []byte("raw"), "raw"},
		{"bool", true, "true"},
		{"time", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), "2025-01-02T03:04:05Z"},
		{"other", []string{"a", "b"}, "[a b]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestADOS_Engine_SanitizeRows(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"a": math.NaN(), "b": math.Inf(1), "c": 1.0, "d": []byte("x"), "e": float32(math.Inf(-1))},
	}
	SanitizeRows(rows)
	require.Equal(t, []map[string]any{{"a": nil, "b": nil, "c": 1.0, "d": "x", "e": nil}}, rows)
}

func TestADOS_Engine_Format(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Query returned no results.", Format(Result{Columns: []string{"a"}}))

	small := Result{
		Columns: []string{"id", "name"},
		Rows:    []map[string]any{{"id": 1, "name": "a"}, {"id": 2, "name": nil}},
	}
	require.Equal(t, "Results (2 rows):\nColumns: id | name\n"+strings.Repeat("-", 40)+"\n1 | a\n2 | \n", Format(small))

	var rows []map[string]any
	for i := range 60 {
		rows = append(rows, map[string]any{"id": i})
	}
	text := Format(Result{Columns: []string{"id"}, Rows: rows, Truncated: true})
	require.Contains(t, text, "Results (60 rows):\n")
	require.Contains(t, text, "\n49\n")
	require.NotContains(t, text, "\n50\n")
	require.Contains(t, text, "... and 10 more rows\n(result truncated)\n")
}

func TestADOS_Engine_Deref(t *testing.T) {
	t.Parallel()

	s := "x"
	ps := &s
	var nilPtr *string
	require.Equal(t, "x", deref(&ps))
	require.Nil(t, deref(&nilPtr))
	require.Nil(t, deref(nil))
	require.Equal(t, 3, deref(3))
}

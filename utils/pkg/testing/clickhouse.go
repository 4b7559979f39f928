package adostesting

import (
	"fmt"
	"strings"
	"testing"

	"github.com/malbeclabs/ados/catalog/pkg/clickhouse"
	clickhousetesting "github.com/malbeclabs/ados/catalog/pkg/clickhouse/testing"
	"github.com/stretchr/testify/require"
)

// ClickHouseTable describes a table to seed into a test database.
type ClickHouseTable struct {
	Name    string
	Columns string // column definitions, e.g. "id UInt64, name String"
	Rows    []string
}

// NewClickHouseClient returns a client bound to a fresh test database seeded with the given tables.
func NewClickHouseClient(t *testing.T, db *clickhousetesting.DB, tables ...ClickHouseTable) clickhouse.Client {
	t.Helper()

	client := clickhousetesting.NewTestClient(t, db)
	conn, err := client.Conn(t.Context())
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range tables {
		ddl := fmt.Sprintf("CREATE TABLE %s (%s) ENGINE = MergeTree ORDER BY tuple()", table.Name, table.Columns)
		require.NoError(t, conn.Exec(t.Context(), ddl))
		if len(table.Rows) > 0 {
			insert := fmt.Sprintf("INSERT INTO %s VALUES %s", table.Name, strings.Join(table.Rows, ", "))
			require.NoError(t, conn.Exec(t.Context(), insert))
		}
	}

	return client
}

package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestADOS_Catalog_NameTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want []string
	}{
		{"ID_Client", []string{"id", "client"}},
		{"clientId", []string{"client", "id"}},
		{"CLIENT-ID", []string{"client", "id"}},
		{"HTTPServer", []string{"http", "server"}},
		{"  order_line2  ", []string{"order", "line2"}},
		{"Montant", []string{"montant"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, NameTokens(tt.name))
		})
	}
}

func TestADOS_Catalog_IsIdentifier(t *testing.T) {
	t.Parallel()

	require.True(t, IsIdentifier("ID_Client"))
	require.True(t, IsIdentifier("customer_key"))
	require.True(t, IsIdentifier("fk_order"))
	require.True(t, IsIdentifier("ProductCode"))
	require.False(t, IsIdentifier("Score"))
	require.False(t, IsIdentifier("video"), "substring id inside a word is not an identifier")
}

func TestADOS_Catalog_Entity(t *testing.T) {
	t.Parallel()

	require.Equal(t, "client", Entity("ID_Client"))
	require.Equal(t, "client", Entity("client_id"))
	require.Equal(t, "order_line", Entity("order_line_id"))
	require.Equal(t, "", Entity("id"))
}

func TestADOS_Catalog_Singular(t *testing.T) {
	t.Parallel()

	require.Equal(t, "customer", Singular("customers"))
	require.Equal(t, "category", Singular("categories"))
	require.Equal(t, "address", Singular("address"))
	require.Equal(t, "sale", Singular("sales"))
	require.Equal(t, "s", Singular("s"))
}

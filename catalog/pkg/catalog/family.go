package catalog

import "strings"

// Family groups engine types that compare and join compatibly.
type Family string

const (
	FamilyNumeric  Family = "numeric"
	FamilyText     Family = "text"
	FamilyTemporal Family = "temporal"
	FamilyBoolean  Family = "boolean"
	FamilyOther    Family = "other"
)

var (
	numericPrefixes = []string{
		"TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT", "UTINYINT", "USMALLINT",
		"UINTEGER", "UBIGINT", "UHUGEINT", "UINT", "DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL",
	}
	textPrefixes     = []string{"VARCHAR", "STRING", "TEXT", "CHAR", "UUID", "ENUM", "FIXEDSTRING"}
	temporalPrefixes = []string{"DATE", "TIME", "TIMESTAMP", "INTERVAL"}
)

// FamilyOf classifies a DuckDB or ClickHouse type string.
func FamilyOf(typ string) Family {
	t := strings.ToUpper(strings.TrimSpace(typ))
	t = unwrap(t, "LOWCARDINALITY(")
	t = unwrap(t, "NULLABLE(")
	switch {
	case t == "BOOLEAN" || t == "BOOL":
		return FamilyBoolean
	case hasAnyPrefix(t, temporalPrefixes):
		return FamilyTemporal
	case hasAnyPrefix(t, numericPrefixes):
		return FamilyNumeric
	case hasAnyPrefix(t, textPrefixes):
		return FamilyText
	}
	return FamilyOther
}

// Compatible reports whether two column types can be compared in a join condition.
func Compatible(a, b string) bool {
	fa, fb := FamilyOf(a), FamilyOf(b)
	if fa == FamilyOther || fb == FamilyOther {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return fa == fb
}

func unwrap(t, wrapper string) string {
	if strings.HasPrefix(t, wrapper) && strings.HasSuffix(t, ")") {
		return strings.TrimSuffix(strings.TrimPrefix(t, wrapper), ")")
	}
	return t
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

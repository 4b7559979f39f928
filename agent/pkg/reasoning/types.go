package reasoning

import (
	"strings"

	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
)

// Discovery names the datasets and columns an intent needs.
type Discovery struct {
	Datasets  []string            `json:"datasets"`
	Columns   map[string][]string `json:"columns,omitempty"`
	Reasoning string              `json:"reasoning,omitempty"`
}

// PlanDraft is the query text proposed for an intent, before validation.
type PlanDraft struct {
	Query       string `json:"query"`
	Explanation string `json:"explanation,omitempty"`
}

// PlanRequest is everything the planner sees about an intent.
type PlanRequest struct {
	Intent string
	// Dialect is the SQL dialect of the execution engine ("duckdb" or "clickhouse").
	Dialect     string
	Datasets    []catalog.Dataset
	Columns     map[string][]string
	JoinPath    []string
	JoinColumns []discovery.JoinColumn
}

type discoveryWire struct {
	RequiredDatasets []string            `json:"required_datasets,omitempty" jsonschema:"datasets needed to answer the intent"`
	RequiredFiles    []string            `json:"required_files,omitempty" jsonschema:"legacy name for required_datasets"`
	RequiredColumns  map[string][]string `json:"required_columns,omitempty" jsonschema:"columns per dataset"`
	Reasoning        string              `json:"reasoning,omitempty"`
}

type planWire struct {
	QueryText   string   `json:"query_text,omitempty" jsonschema:"the SQL query"`
	SQLQuery    string   `json:"sql_query,omitempty" jsonschema:"legacy name for query_text"`
	JoinPath    []string `json:"join_path,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

func (w discoveryWire) discovery(raw string) (Discovery, error) {
	names := w.RequiredDatasets
	if len(names) == 0 {
		names = w.RequiredFiles
	}
	d := Discovery{Reasoning: strings.TrimSpace(w.Reasoning)}
	seen := map[string]bool{}
	for _, name := range names {
		name = datasetName(name)
		if name == "" {
			return Discovery{}, malformed(opDiscover, raw, "empty dataset name")
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		d.Datasets = append(d.Datasets, name)
	}
	if len(d.Datasets) == 0 {
		return Discovery{}, malformed(opDiscover, raw, "no datasets named")
	}
	if len(w.RequiredColumns) > 0 {
		d.Columns = make(map[string][]string, len(w.RequiredColumns))
		for name, cols := range w.RequiredColumns {
			d.Columns[datasetName(name)] = cols
		}
	}
	return d, nil
}

func (w planWire) draft(raw string) (PlanDraft, error) {
	query := w.QueryText
	if strings.TrimSpace(query) == "" {
		query = w.SQLQuery
	}
	query = cleanSQL(query)
	if query == "" {
		return PlanDraft{}, malformed(opPlan, raw, "empty query")
	}
	return PlanDraft{Query: query, Explanation: strings.TrimSpace(w.Explanation)}, nil
}

// datasetName accepts file names for datasets ("sales.parquet" names "sales").
func datasetName(name string) string {
	name = strings.TrimSpace(name)
	for _, ext := range []string{".parquet", ".csv"} {
		if len(name) > len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// cleanSQL trims whitespace and trailing semicolons.
func cleanSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	for strings.HasSuffix(sql, ";") {
		sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	}
	return sql
}

package discovery

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/malbeclabs/ados/catalog/pkg/catalog"
)

type pairKey struct {
	a, b string
}

func keyOf(x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{x, y}
}

// KnowledgeGraph is an immutable graph of datasets joined by their primary relationship edges.
type KnowledgeGraph struct {
	datasets []string
	schemas  map[string]catalog.Dataset
	pairs    map[pairKey][]Edge // sorted, primary first
	adj      map[string][]string
	warnings []string
	takenAt  time.Time
}

// Empty returns a graph with no datasets.
func Empty() *KnowledgeGraph {
	return Build(catalog.NewSnapshot(nil, nil, time.Time{}), DefaultOptions())
}

// Datasets returns node names in lexical order.
func (g *KnowledgeGraph) Datasets() []string {
	return slices.Clone(g.datasets)
}

func (g *KnowledgeGraph) Has(name string) bool {
	_, ok := g.schemas[name]
	return ok
}

// Dataset returns the schema a node was built from.
func (g *KnowledgeGraph) Dataset(name string) (catalog.Dataset, bool) {
	d, ok := g.schemas[name]
	return d, ok
}

func (g *KnowledgeGraph) Warnings() []string {
	return slices.Clone(g.warnings)
}

// TakenAt is the time of the catalog snapshot the graph was built from.
func (g *KnowledgeGraph) TakenAt() time.Time {
	return g.takenAt
}

// Primary returns the selected edge between two datasets, in either order.
func (g *KnowledgeGraph) Primary(a, b string) (Edge, bool) {
	edges := g.pairs[keyOf(a, b)]
	if len(edges) == 0 {
		return Edge{}, false
	}
	return edges[0], true
}

// Alternates returns the non-primary edges between two datasets in selection order.
func (g *KnowledgeGraph) Alternates(a, b string) []Edge {
	edges := g.pairs[keyOf(a, b)]
	if len(edges) < 2 {
		return nil
	}
	return slices.Clone(edges[1:])
}

// Edges returns every edge, primary and alternate, grouped by dataset pair in lexical order.
func (g *KnowledgeGraph) Edges() []Edge {
	var out []Edge
	for _, k := range g.pairKeys() {
		out = append(out, g.pairs[k]...)
	}
	return out
}

// PrimaryEdges returns one edge per connected dataset pair.
func (g *KnowledgeGraph) PrimaryEdges() []Edge {
	keys := g.pairKeys()
	out := make([]Edge, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.pairs[k][0])
	}
	return out
}

// Neighbors returns datasets directly connected to name, sorted.
func (g *KnowledgeGraph) Neighbors(name string) []string {
	return slices.Clone(g.adj[name])
}

func (g *KnowledgeGraph) pairKeys() []pairKey {
	keys := make([]pairKey, 0, len(g.pairs))
	for k := range g.pairs {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y pairKey) int {
		if c := strings.Compare(x.a, y.a); c != 0 {
			return c
		}
		return strings.Compare(x.b, y.b)
	})
	return keys
}

// Summary describes the graph for prompts and API listings.
type Summary struct {
	Datasets      []DatasetSummary `json:"datasets"`
	Relationships int              `json:"relationships"`
	Pairs         int              `json:"pairs"`
}

type DatasetSummary struct {
	Name      string          `json:"name"`
	RowCount  int64           `json:"row_count"`
	Columns   []ColumnSummary `json:"columns"`
	IDColumns []string        `json:"id_columns"`
}

type ColumnSummary struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (g *KnowledgeGraph) Summary() Summary {
	s := Summary{Pairs: len(g.pairs)}
	for _, edges := range g.pairs {
		s.Relationships += len(edges)
	}
	for _, n := range g.datasets {
		d := g.schemas[n]
		ds := DatasetSummary{Name: n, RowCount: d.RowCount, IDColumns: d.IDColumns()}
		for _, c := range d.Columns {
			ds.Columns = append(ds.Columns, ColumnSummary{Name: c.Name, Type: c.Type})
		}
		s.Datasets = append(s.Datasets, ds)
	}
	return s
}

// Describe renders the graph as text.
func (g *KnowledgeGraph) Describe() string {
	var b strings.Builder
	b.WriteString("=== Knowledge Graph ===\n")
	fmt.Fprintf(&b, "Datasets: %d\n", len(g.datasets))
	fmt.Fprintf(&b, "Connected pairs: %d\n", len(g.pairs))

	for _, n := range g.datasets {
		d := g.schemas[n]
		fmt.Fprintf(&b, "\n%s (%d rows)\n", n, d.RowCount)
		fmt.Fprintf(&b, "  columns: %s\n", strings.Join(d.ColumnNames(), ", "))
		if ids := d.IDColumns(); len(ids) > 0 {
			fmt.Fprintf(&b, "  id columns: %s\n", strings.Join(ids, ", "))
		}
	}

	if len(g.pairs) > 0 {
		b.WriteString("\nRelationships:\n")
		for _, k := range g.pairKeys() {
			edges := g.pairs[k]
			fmt.Fprintf(&b, "  %s\n", edges[0])
			for _, alt := range edges[1:] {
				fmt.Fprintf(&b, "    alt: %s\n", alt)
			}
		}
	}
	return b.String()
}

package discovery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/malbeclabs/ados/catalog/pkg/catalog"
)

const (
	DefaultOverlapThreshold = 0.3
	DefaultSemanticMin      = 0.8
	semanticScale           = 0.8
)

// Options tunes relationship discovery.
type Options struct {
	// OverlapThreshold is the exclusive lower bound on value overlap for a value-overlap edge.
	OverlapThreshold float64
	// Semantic enables semantic-name-similarity edges.
	Semantic bool
	// SemanticMin is the inclusive lower bound on name similarity.
	SemanticMin float64
}

func DefaultOptions() Options {
	return Options{
		OverlapThreshold: DefaultOverlapThreshold,
		SemanticMin:      DefaultSemanticMin,
	}
}

func (o Options) withDefaults() Options {
	if o.OverlapThreshold <= 0 {
		o.OverlapThreshold = DefaultOverlapThreshold
	}
	if o.SemanticMin <= 0 {
		o.SemanticMin = DefaultSemanticMin
	}
	return o
}

// Build derives the knowledge graph of a catalog snapshot. It is pure: the same snapshot
// and options always produce the same edges, confidences and primary selections.
func Build(snap *catalog.Snapshot, opts Options) *KnowledgeGraph {
	opts = opts.withDefaults()
	names := snap.Names()

	g := &KnowledgeGraph{
		datasets: names,
		schemas:  make(map[string]catalog.Dataset, len(names)),
		pairs:    map[pairKey][]Edge{},
		adj:      map[string][]string{},
		warnings: slices.Clone(snap.Warnings),
		takenAt:  snap.TakenAt,
	}
	for _, n := range names {
		d, _ := snap.Get(n)
		g.schemas[n] = d
	}

	for i, a := range names {
		for _, b := range names[i+1:] {
			edges := discoverPair(g.schemas[a], g.schemas[b], opts)
			if len(edges) == 0 {
				continue
			}
			slices.SortStableFunc(edges, func(x, y Edge) int {
				switch {
				case better(x, y):
					return -1
				case better(y, x):
					return 1
				}
				return 0
			})
			g.pairs[pairKey{a, b}] = edges
			g.adj[a] = append(g.adj[a], b)
			g.adj[b] = append(g.adj[b], a)
		}
	}
	for n := range g.adj {
		slices.Sort(g.adj[n])
	}
	return g
}

// discoverPair compares every column pair of two datasets; a sorts before b.
func discoverPair(a, b catalog.Dataset, opts Options) []Edge {
	var edges []Edge
	for _, ca := range a.Columns {
		for _, cb := range b.Columns {
			from := ColumnRef{Dataset: a.Name, Column: ca.Name}
			to := ColumnRef{Dataset: b.Name, Column: cb.Name}
			na, nb := catalog.NormalizeName(ca.Name), catalog.NormalizeName(cb.Name)

			if na == nb {
				edges = append(edges, Edge{
					From: from, To: to, Kind: KindExactName, Confidence: ExactNameConfidence,
					Evidence: fmt.Sprintf("identical column name %q", ca.Name),
				})
			} else if evidence, ok := idPattern(a.Name, ca.Name, b.Name, cb.Name); ok {
				edges = append(edges, Edge{
					From: from, To: to, Kind: KindIDPattern, Confidence: IDPatternConfidence,
					Evidence: evidence,
				})
			}

			if overlap, ok := valueOverlap(ca, cb); ok && overlap > opts.OverlapThreshold {
				edges = append(edges, Edge{
					From: from, To: to, Kind: KindValueOverlap, Confidence: min(overlap, 1.0),
					Evidence: fmt.Sprintf("%.0f%% of sampled %s values appear in %s", overlap*100, from, to),
				})
			}

			if opts.Semantic && na != nb {
				sim := similarity(na, nb)
				if sim >= opts.SemanticMin && sim < 1.0 {
					edges = append(edges, Edge{
						From: from, To: to, Kind: KindSemantic, Confidence: sim * semanticScale,
						Evidence: fmt.Sprintf("column names %.0f%% similar", sim*100),
					})
				}
			}
		}
	}
	return edges
}

// idPattern matches a foreign key to an identifier. Either one side is a bare identifier
// ("id") and the other names that side's dataset ("customer_id" for dataset "customers"),
// or both are identifiers of the same entity spelled differently ("fk_client", "client_id").
func idPattern(dsA, colA, dsB, colB string) (string, bool) {
	if !catalog.IsIdentifier(colA) || !catalog.IsIdentifier(colB) {
		return "", false
	}
	ea, eb := catalog.Entity(colA), catalog.Entity(colB)
	switch {
	case ea == "" && eb != "" && slices.Contains(datasetEntities(dsA), eb):
		return fmt.Sprintf("%s.%s references %s.%s", dsB, colB, dsA, colA), true
	case eb == "" && ea != "" && slices.Contains(datasetEntities(dsB), ea):
		return fmt.Sprintf("%s.%s references %s.%s", dsA, colA, dsB, colB), true
	case ea != "" && ea == eb:
		return fmt.Sprintf("both identify %q", ea), true
	}
	return "", false
}

// datasetEntities returns the singular forms a foreign key may use to name a dataset:
// the whole name and its leading domain token.
func datasetEntities(name string) []string {
	tokens := catalog.NameTokens(name)
	if len(tokens) == 0 {
		return nil
	}
	whole := slices.Clone(tokens)
	whole[len(whole)-1] = catalog.Singular(whole[len(whole)-1])
	return []string{strings.Join(whole, "_"), catalog.Singular(tokens[0])}
}

// valueOverlap is the fraction of a's distinct sampled values also sampled in b.
// Boolean columns and incompatible families never overlap.
func valueOverlap(a, b catalog.Column) (float64, bool) {
	if len(a.Sample) == 0 || len(b.Sample) == 0 {
		return 0, false
	}
	if a.Family == catalog.FamilyBoolean || !catalog.Compatible(a.Type, b.Type) {
		return 0, false
	}
	inB := make(map[string]struct{}, len(b.Sample))
	for _, v := range b.Sample {
		inB[v] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a.Sample))
	shared := 0
	for _, v := range a.Sample {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := inB[v]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(seen)), true
}

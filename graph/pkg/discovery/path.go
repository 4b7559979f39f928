package discovery

import (
	"math"
	"slices"
)

const weightEpsilon = 1e-9

type label struct {
	dist float64
	path []string
}

// less orders labels by distance, then hop count, then lexical path.
func (l label) less(o label) bool {
	if math.Abs(l.dist-o.dist) > weightEpsilon {
		return l.dist < o.dist
	}
	if len(l.path) != len(o.path) {
		return len(l.path) < len(o.path)
	}
	return slices.Compare(l.path, o.path) < 0
}

// JoinPath returns the cheapest chain of datasets from one dataset to another, weighting each
// primary edge by 1/confidence. It returns nil when either dataset is unknown or unreachable.
func (g *KnowledgeGraph) JoinPath(from, to string) []string {
	if !g.Has(from) || !g.Has(to) {
		return nil
	}
	if from == to {
		return []string{from}
	}

	best := map[string]label{from: {path: []string{from}}}
	done := map[string]bool{}

	for {
		var (
			cur   string
			curL  label
			found bool
		)
		for n, l := range best {
			if done[n] {
				continue
			}
			if !found || l.less(curL) {
				cur, curL, found = n, l, true
			}
		}
		if !found {
			return nil
		}
		if cur == to {
			return slices.Clone(curL.path)
		}
		done[cur] = true

		for _, next := range g.adj[cur] {
			if done[next] {
				continue
			}
			edge, _ := g.Primary(cur, next)
			if edge.Confidence <= 0 {
				continue
			}
			cand := label{
				dist: curL.dist + 1/edge.Confidence,
				path: append(slices.Clone(curL.path), next),
			}
			if old, ok := best[next]; !ok || cand.less(old) {
				best[next] = cand
			}
		}
	}
}

// JoinColumn is the join condition of one hop, oriented along the path.
type JoinColumn struct {
	Left       ColumnRef `json:"left"`
	Right      ColumnRef `json:"right"`
	Kind       Kind      `json:"kind"`
	Confidence float64   `json:"confidence"`
}

// JoinColumns returns the primary edge columns for each hop of a path. Hops without an
// edge are omitted.
func (g *KnowledgeGraph) JoinColumns(path []string) []JoinColumn {
	var out []JoinColumn
	for i := 0; i+1 < len(path); i++ {
		left, right := path[i], path[i+1]
		e, ok := g.Primary(left, right)
		if !ok {
			continue
		}
		jc := JoinColumn{Left: e.From, Right: e.To, Kind: e.Kind, Confidence: e.Confidence}
		if e.From.Dataset != left {
			jc.Left, jc.Right = e.To, e.From
		}
		out = append(out, jc)
	}
	return out
}

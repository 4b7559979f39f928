package discovery

import "fmt"

// Kind is the evidence that produced a relationship edge.
type Kind string

const (
	KindIDPattern    Kind = "inferred-id-pattern"
	KindExactName    Kind = "exact-name-match"
	KindValueOverlap Kind = "value-overlap"
	KindSemantic     Kind = "semantic-name-similarity"
)

// Kinds lists every edge kind in selection priority order.
var Kinds = []Kind{KindIDPattern, KindExactName, KindValueOverlap, KindSemantic}

// rank orders kinds for primary selection; lower wins.
func (k Kind) rank() int {
	for i, kk := range Kinds {
		if kk == k {
			return i
		}
	}
	return len(Kinds)
}

const (
	IDPatternConfidence = 0.90
	ExactNameConfidence = 0.85
)

// ColumnRef identifies a column of a dataset.
type ColumnRef struct {
	Dataset string `json:"dataset"`
	Column  string `json:"column"`
}

func (c ColumnRef) String() string {
	return c.Dataset + "." + c.Column
}

// Edge is a candidate join between two columns. From.Dataset sorts before To.Dataset.
type Edge struct {
	From       ColumnRef `json:"from"`
	To         ColumnRef `json:"to"`
	Kind       Kind      `json:"kind"`
	Confidence float64   `json:"confidence"`
	Evidence   string    `json:"evidence"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s <-> %s (%s, conf=%.2f)", e.From, e.To, e.Kind, e.Confidence)
}

// better reports whether a is selected ahead of b.
func better(a, b Edge) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Kind.rank() != b.Kind.rank() {
		return a.Kind.rank() < b.Kind.rank()
	}
	if a.From.Column != b.From.Column {
		return a.From.Column < b.From.Column
	}
	return a.To.Column < b.To.Column
}

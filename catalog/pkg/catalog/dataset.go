package catalog

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Format string

const (
	FormatParquet    Format = "parquet"
	FormatCSV        Format = "csv"
	FormatClickHouse Format = "clickhouse"
)

// Column is a dataset column with a bounded sample of its non-null values.
type Column struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Family      Family   `json:"family"`
	IsID        bool     `json:"is_id"`
	Cardinality int      `json:"cardinality"`
	Sample      []string `json:"-"`
}

// NewColumn builds a column, deriving its family, identifier flag and sample cardinality.
func NewColumn(name, typ string, sample []string) Column {
	distinct := make(map[string]struct{}, len(sample))
	for _, v := range sample {
		distinct[v] = struct{}{}
	}
	return Column{
		Name:        name,
		Type:        typ,
		Family:      FamilyOf(typ),
		IsID:        IsIdentifier(name),
		Cardinality: len(distinct),
		Sample:      sample,
	}
}

// Dataset is a named tabular data product.
type Dataset struct {
	Name     string   `json:"name"`
	Location string   `json:"location"`
	Format   Format   `json:"format"`
	Columns  []Column `json:"columns"`
	RowCount int64    `json:"row_count"`
}

// Column looks up a column by name, ignoring case.
func (d Dataset) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

func (d Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// IDColumns returns the names of identifier-like columns.
func (d Dataset) IDColumns() []string {
	var names []string
	for _, c := range d.Columns {
		if c.IsID {
			names = append(names, c.Name)
		}
	}
	return names
}

// NotFoundError is returned when a dataset is absent from the catalog.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset %q not found", e.Name)
}

// Snapshot is an immutable set of datasets keyed by name.
type Snapshot struct {
	datasets map[string]Dataset
	names    []string
	Warnings []string
	TakenAt  time.Time
}

// NewSnapshot builds a snapshot. When two datasets share a name the first wins and a warning is recorded.
func NewSnapshot(datasets []Dataset, warnings []string, takenAt time.Time) *Snapshot {
	s := &Snapshot{
		datasets: make(map[string]Dataset, len(datasets)),
		Warnings: slices.Clone(warnings),
		TakenAt:  takenAt,
	}
	for _, d := range datasets {
		if _, ok := s.datasets[d.Name]; ok {
			s.Warnings = append(s.Warnings, fmt.Sprintf("duplicate dataset %q at %s ignored", d.Name, d.Location))
			continue
		}
		s.datasets[d.Name] = d
		s.names = append(s.names, d.Name)
	}
	slices.Sort(s.names)
	return s
}

// Names returns dataset names in lexical order.
func (s *Snapshot) Names() []string {
	return slices.Clone(s.names)
}

// List returns datasets sorted by name.
func (s *Snapshot) List() []Dataset {
	out := make([]Dataset, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.datasets[n])
	}
	return out
}

func (s *Snapshot) Get(name string) (Dataset, bool) {
	d, ok := s.datasets[name]
	return d, ok
}

func (s *Snapshot) Len() int {
	return len(s.names)
}

package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/malbeclabs/ados/graph/pkg/discovery"
	"github.com/malbeclabs/ados/graph/pkg/metrics"
	"github.com/malbeclabs/ados/utils/pkg/retry"
)

type MirrorConfig struct {
	Logger *slog.Logger
	Client Client
	Retry  retry.Config
}

func (cfg *MirrorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("neo4j client is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Mirror replaces the (:Dataset)-[:JOINS]->(:Dataset) graph in Neo4j with each new
// knowledge graph. It is a read model only; nothing is ever loaded back from it.
type Mirror struct {
	log *slog.Logger
	cfg MirrorConfig
}

func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate mirror config: %w", err)
	}
	return &Mirror{log: cfg.Logger, cfg: cfg}, nil
}

// EnsureSchema creates the dataset name uniqueness constraint.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	session, err := m.cfg.Client.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close(ctx)

	res, err := session.Run(ctx, "CREATE CONSTRAINT dataset_name IF NOT EXISTS FOR (d:Dataset) REQUIRE d.name IS UNIQUE", nil)
	if err != nil {
		return fmt.Errorf("failed to create dataset constraint: %w", err)
	}
	if _, err := res.Consume(ctx); err != nil {
		return fmt.Errorf("failed to create dataset constraint: %w", err)
	}
	return nil
}

const (
	deleteDatasetsCypher = `MATCH (d:Dataset) DETACH DELETE d`
	createDatasetsCypher = `
		UNWIND $datasets AS ds
		CREATE (:Dataset {name: ds.name, location: ds.location, format: ds.format, row_count: ds.row_count, columns: ds.columns, id_columns: ds.id_columns})`
	createEdgesCypher = `
		UNWIND $edges AS e
		MATCH (a:Dataset {name: e.from_dataset}), (b:Dataset {name: e.to_dataset})
		CREATE (a)-[:JOINS {from_column: e.from_column, to_column: e.to_column, kind: e.kind, confidence: e.confidence, evidence: e.evidence, primary: e.primary}]->(b)`
)

// Sync replaces the mirrored graph in a single write transaction, retrying transient failures.
func (m *Mirror) Sync(ctx context.Context, g *discovery.KnowledgeGraph) error {
	start := time.Now()
	datasets, edges := params(g)

	cfg := m.cfg.Retry
	cfg.OnRetry = func(attempt int, err error) {
		m.log.Warn("neo4j: mirror sync failed, retrying", "attempt", attempt, "error", err)
	}
	err := retry.Do(ctx, cfg, func() error {
		session, err := m.cfg.Client.Session(ctx)
		if err != nil {
			return fmt.Errorf("failed to open session: %w", err)
		}
		defer session.Close(ctx)

		_, err = session.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
			for _, stmt := range []struct {
				cypher string
				params map[string]any
			}{
				{deleteDatasetsCypher, nil},
				{createDatasetsCypher, map[string]any{"datasets": datasets}},
				{createEdgesCypher, map[string]any{"edges": edges}},
			} {
				res, err := tx.Run(ctx, stmt.cypher, stmt.params)
				if err != nil {
					return nil, err
				}
				if _, err := res.Consume(ctx); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		return err
	})
	if err != nil {
		metrics.MirrorSyncTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to sync knowledge graph to neo4j: %w", err)
	}

	metrics.MirrorSyncTotal.WithLabelValues("success").Inc()
	metrics.MirrorSyncDuration.Observe(time.Since(start).Seconds())
	m.log.Info("neo4j: mirrored knowledge graph", "datasets", len(datasets), "edges", len(edges), "duration", time.Since(start).String())
	return nil
}

// Hook adapts Sync into a discovery swap hook. Failures are logged, never propagated.
func (m *Mirror) Hook() discovery.SwapHook {
	return func(ctx context.Context, g *discovery.KnowledgeGraph) {
		if err := m.Sync(ctx, g); err != nil {
			m.log.Error("neo4j: mirror sync failed", "error", err)
		}
	}
}

func params(g *discovery.KnowledgeGraph) ([]map[string]any, []map[string]any) {
	datasets := []map[string]any{}
	for _, name := range g.Datasets() {
		d, _ := g.Dataset(name)
		ids := d.IDColumns()
		if ids == nil {
			ids = []string{}
		}
		datasets = append(datasets, map[string]any{
			"name":       d.Name,
			"location":   d.Location,
			"format":     string(d.Format),
			"row_count":  d.RowCount,
			"columns":    d.ColumnNames(),
			"id_columns": ids,
		})
	}

	edges := []map[string]any{}
	for _, p := range g.PrimaryEdges() {
		all := append([]discovery.Edge{p}, g.Alternates(p.From.Dataset, p.To.Dataset)...)
		for i, e := range all {
			edges = append(edges, map[string]any{
				"from_dataset": e.From.Dataset,
				"from_column":  e.From.Column,
				"to_dataset":   e.To.Dataset,
				"to_column":    e.To.Column,
				"kind":         string(e.Kind),
				"confidence":   e.Confidence,
				"evidence":     e.Evidence,
				"primary":      i == 0,
			})
		}
	}
	return datasets, edges
}

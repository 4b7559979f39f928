// Package audit persists terminal compilation runs so trust decisions can be reviewed later.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/api/handlers/dberror"
	"github.com/malbeclabs/ados/utils/pkg/retry"
)

// ErrNotFound is returned when no run is stored under an ID.
var ErrNotFound = errors.New("run not found")

// Record is the stored summary of a run.
type Record struct {
	ID             uuid.UUID             `json:"id"`
	Intent         string                `json:"intent"`
	Stage          string                `json:"stage"`
	FailedStage    *string               `json:"failed_stage,omitempty"`
	FailureKind    *string               `json:"failure_kind,omitempty"`
	FailureMessage *string               `json:"failure_message,omitempty"`
	Query          *string               `json:"query,omitempty"`
	Datasets       []string              `json:"datasets"`
	Findings       []validator.Finding   `json:"findings"`
	Trace          []compiler.TraceEntry `json:"trace"`
	RowCount       *int                  `json:"row_count,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at"`
}

type StoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Retry  retry.Config
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("pool is required")
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	cfg.Retry.Retryable = dberror.IsTransient
	return nil
}

// Store is the PostgreSQL audit store.
type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

var _ compiler.Recorder = (*Store)(nil)

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate audit store config: %w", err)
	}
	return &Store{log: cfg.Logger, cfg: cfg}, nil
}

// RecordRun stores a terminal run. Recording the same run twice is a no-op.
func (s *Store) RecordRun(ctx context.Context, run *compiler.Run) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("failed to parse run id: %w", err)
	}

	findings, err := json.Marshal(nonNil(run.Findings()))
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}
	trace, err := json.Marshal(nonNil(run.Trace))
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	var failedStage, failureKind, failureMessage, query *string
	if run.Failure != nil {
		stage, kind := string(run.Failure.Stage), string(run.Failure.Kind)
		failedStage, failureKind, failureMessage = &stage, &kind, &run.Failure.Message
	}
	datasets := []string{}
	if run.Plan != nil {
		query = &run.Plan.Query
		datasets = run.Plan.Datasets
	} else if run.Discovery != nil {
		datasets = run.Discovery.Datasets
	}
	var rowCount *int
	if run.Result != nil {
		rowCount = &run.Result.RowCount
	}

	err = retry.Do(ctx, s.cfg.Retry, func() error {
		_, err := s.cfg.Pool.Exec(ctx, `
			INSERT INTO compile_runs (
				id, intent, stage, failed_stage, failure_kind, failure_message,
				query, datasets, findings, trace, row_count, started_at, finished_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (id) DO NOTHING`,
			id, run.Intent, string(run.Stage), failedStage, failureKind, failureMessage,
			query, datasets, findings, trace, rowCount, run.StartedAt, run.FinishedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	s.log.Debug("audit: run recorded", "id", run.ID, "stage", run.Stage)
	return nil
}

const selectColumns = `id, intent, stage, failed_stage, failure_kind, failure_message,
	query, datasets, findings, trace, row_count, started_at, finished_at`

// Get returns the stored run with the given ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.cfg.Pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM compile_runs WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// ListFilter narrows List. A zero value lists every run.
type ListFilter struct {
	// FailureKind selects failed runs of one kind.
	FailureKind string
	Limit       int
	Offset      int
}

// List returns stored runs, most recent first, and the total matching count.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	var kind *string
	if filter.FailureKind != "" {
		kind = &filter.FailureKind
	}

	var total int
	if err := s.cfg.Pool.QueryRow(ctx,
		`SELECT count(*) FROM compile_runs WHERE ($1::text IS NULL OR failure_kind = $1)`, kind,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	rows, err := s.cfg.Pool.Query(ctx, `SELECT `+selectColumns+` FROM compile_runs
		WHERE ($1::text IS NULL OR failure_kind = $1)
		ORDER BY started_at DESC, id
		LIMIT $2 OFFSET $3`, kind, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return records, total, nil
}

// CountBefore returns how many runs started before cutoff.
func (s *Store) CountBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	if err := s.cfg.Pool.QueryRow(ctx,
		`SELECT count(*) FROM compile_runs WHERE started_at < $1`, cutoff,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

// Prune deletes runs that started before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.cfg.Pool.Exec(ctx, `DELETE FROM compile_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	s.log.Info("audit: pruned runs", "before", cutoff, "deleted", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec      Record
		findings []byte
		trace    []byte
	)
	if err := row.Scan(
		&rec.ID, &rec.Intent, &rec.Stage, &rec.FailedStage, &rec.FailureKind, &rec.FailureMessage,
		&rec.Query, &rec.Datasets, &findings, &trace, &rec.RowCount, &rec.StartedAt, &rec.FinishedAt,
	); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(findings, &rec.Findings); err != nil {
		return Record{}, fmt.Errorf("failed to decode findings: %w", err)
	}
	if err := json.Unmarshal(trace, &rec.Trace); err != nil {
		return Record{}, fmt.Errorf("failed to decode trace: %w", err)
	}
	return rec, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

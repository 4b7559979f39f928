package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
)

// Catalog exposes dataset schemas.
type Catalog interface {
	ListDatasets(ctx context.Context) ([]Dataset, error)
	GetSchema(ctx context.Context, name string) (Dataset, error)
}

// Source scans a location for datasets and returns a fresh snapshot.
type Source interface {
	Scan(ctx context.Context) (*Snapshot, error)
}

// Static is a fixed in-memory catalog.
type Static struct {
	snap *Snapshot
}

func NewStatic(datasets ...Dataset) *Static {
	return &Static{snap: NewSnapshot(datasets, nil, clockwork.NewRealClock().Now())}
}

func (s *Static) Scan(ctx context.Context) (*Snapshot, error) {
	return s.snap, nil
}

func (s *Static) ListDatasets(ctx context.Context) ([]Dataset, error) {
	return s.snap.List(), nil
}

func (s *Static) GetSchema(ctx context.Context, name string) (Dataset, error) {
	d, ok := s.snap.Get(name)
	if !ok {
		return Dataset{}, &NotFoundError{Name: name}
	}
	return d, nil
}

type RegistryConfig struct {
	Logger  *slog.Logger
	Sources []Source
	Clock   clockwork.Clock
}

func (cfg *RegistryConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Sources) == 0 {
		return errors.New("at least one source is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Registry merges its sources into a single snapshot that is swapped atomically on Refresh.
type Registry struct {
	log *slog.Logger
	cfg RegistryConfig

	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate registry config: %w", err)
	}
	r := &Registry{log: cfg.Logger, cfg: cfg}
	r.snap.Store(NewSnapshot(nil, nil, cfg.Clock.Now()))
	return r, nil
}

// Refresh rescans every source and swaps in the merged snapshot. A failing source is
// recorded as a warning; refresh only fails when every source fails.
func (r *Registry) Refresh(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		datasets []Dataset
		warnings []string
		errs     []error
	)
	for i, src := range r.cfg.Sources {
		snap, err := src.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.Warn("catalog: source scan failed", "source", i, "error", err)
			warnings = append(warnings, fmt.Sprintf("source %d: %v", i, err))
			errs = append(errs, err)
			continue
		}
		datasets = append(datasets, snap.List()...)
		warnings = append(warnings, snap.Warnings...)
	}
	if len(errs) == len(r.cfg.Sources) {
		return nil, fmt.Errorf("failed to scan catalog sources: %w", errors.Join(errs...))
	}

	snap := NewSnapshot(datasets, warnings, r.cfg.Clock.Now())
	r.snap.Store(snap)
	r.log.Info("catalog: refreshed", "datasets", snap.Len(), "warnings", len(snap.Warnings))
	return snap, nil
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

func (r *Registry) ListDatasets(ctx context.Context) ([]Dataset, error) {
	return r.Snapshot().List(), nil
}

func (r *Registry) GetSchema(ctx context.Context, name string) (Dataset, error) {
	d, ok := r.Snapshot().Get(name)
	if !ok {
		return Dataset{}, &NotFoundError{Name: name}
	}
	return d, nil
}

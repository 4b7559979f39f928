package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const DefaultScanConcurrency = 4

type FileSourceConfig struct {
	Logger *slog.Logger
	// Paths are directories, glob patterns or individual .parquet/.csv files.
	Paths       []string
	SampleSize  int
	Concurrency int
	Clock       clockwork.Clock
}

func (cfg *FileSourceConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Paths) == 0 {
		return errors.New("at least one path is required")
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultScanConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// FileSource scans local parquet and csv files.
type FileSource struct {
	log     *slog.Logger
	cfg     FileSourceConfig
	db      *sql.DB
	scanner *duckScanner
}

func NewFileSource(cfg FileSourceConfig) (*FileSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate file source config: %w", err)
	}
	db, err := openDuckDB()
	if err != nil {
		return nil, err
	}
	return &FileSource{
		log:     cfg.Logger,
		cfg:     cfg,
		db:      db,
		scanner: &duckScanner{log: cfg.Logger, db: db, sampleSize: cfg.SampleSize},
	}, nil
}

func (s *FileSource) Close() error {
	return s.db.Close()
}

type fileRef struct {
	name     string
	location string
	format   Format
}

func formatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet, true
	case ".csv":
		return FormatCSV, true
	}
	return "", false
}

func datasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s *FileSource) files() ([]fileRef, []string) {
	var (
		refs     []fileRef
		warnings []string
		seen     = map[string]bool{}
	)
	add := func(path string) {
		format, ok := formatOf(path)
		if !ok || seen[path] {
			return
		}
		seen[path] = true
		refs = append(refs, fileRef{name: datasetName(path), location: path, format: format})
	}

	for _, p := range s.cfg.Paths {
		info, err := os.Stat(p)
		switch {
		case err == nil && info.IsDir():
			entries, err := os.ReadDir(p)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("failed to read directory %s: %v", p, err))
				continue
			}
			for _, e := range entries {
				if !e.IsDir() {
					add(filepath.Join(p, e.Name()))
				}
			}
		case err == nil:
			add(p)
		default:
			matches, globErr := filepath.Glob(p)
			if globErr != nil || len(matches) == 0 {
				warnings = append(warnings, fmt.Sprintf("no datasets found at %s", p))
				continue
			}
			for _, m := range matches {
				add(m)
			}
		}
	}

	slices.SortFunc(refs, func(a, b fileRef) int { return strings.Compare(a.location, b.location) })
	return refs, warnings
}

// Scan reads every file concurrently. Files that fail to scan are skipped with a warning.
func (s *FileSource) Scan(ctx context.Context) (*Snapshot, error) {
	refs, warnings := s.files()
	datasets, scanWarnings, err := scanAll(ctx, s.log, s.scanner, refs, s.cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(datasets, append(warnings, scanWarnings...), s.cfg.Clock.Now()), nil
}

func scanAll(ctx context.Context, log *slog.Logger, scanner *duckScanner, refs []fileRef, concurrency int) ([]Dataset, []string, error) {
	results := make([]*Dataset, len(refs))
	errs := make([]error, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			d, err := scanner.scan(gctx, ref.name, ref.location, ref.format)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &d
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		datasets []Dataset
		warnings []string
	)
	for i, ref := range refs {
		if errs[i] != nil {
			log.Warn("catalog: skipping dataset", "location", ref.location, "error", errs[i])
			warnings = append(warnings, fmt.Sprintf("skipped %s: %v", ref.location, errs[i]))
			continue
		}
		log.Debug("catalog: scanned dataset", "name", ref.name, "rows", results[i].RowCount, "columns", len(results[i].Columns))
		datasets = append(datasets, *results[i])
	}
	return datasets, warnings, nil
}

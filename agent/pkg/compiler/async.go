package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/malbeclabs/ados/api/metrics"
)

const (
	DefaultAsyncWorkers   = 8
	DefaultAsyncRetention = time.Hour
)

// ErrUnknownRun is returned for run IDs that were never submitted or have expired.
var ErrUnknownRun = errors.New("unknown run")

type AsyncConfig struct {
	Logger   *slog.Logger
	Compiler *Compiler
	// Workers bounds how many runs execute at once; further submissions queue.
	Workers int
	// Retention is how long a run stays retrievable after it is submitted or finishes.
	Retention time.Duration
}

func (cfg *AsyncConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Compiler == nil {
		return errors.New("compiler is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultAsyncWorkers
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultAsyncRetention
	}
	return nil
}

// Status is the externally visible state of a submitted run.
type Status struct {
	ID     string `json:"id"`
	Intent string `json:"intent"`
	Done   bool   `json:"done"`
	Run    *Run   `json:"run,omitempty"`
}

type pending struct {
	intent string
	done   chan struct{}
	run    *Run
}

// Async executes runs on a bounded worker pool and keeps their outcome retrievable by ID.
type Async struct {
	log      *slog.Logger
	compiler *Compiler
	pool     pond.Pool
	runs     *ttlcache.Cache[string, *pending]
}

func NewAsync(cfg AsyncConfig) (*Async, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate async config: %w", err)
	}
	runs := ttlcache.New(
		ttlcache.WithTTL[string, *pending](cfg.Retention),
		ttlcache.WithDisableTouchOnHit[string, *pending](),
	)
	go runs.Start()
	return &Async{
		log:      cfg.Logger,
		compiler: cfg.Compiler,
		pool:     pond.NewPool(cfg.Workers),
		runs:     runs,
	}, nil
}

// Submit queues a run for intent and returns its ID immediately. The run does not
// inherit ctx cancellation, only its values.
func (a *Async) Submit(ctx context.Context, intent string) (string, error) {
	id := uuid.NewString()
	p := &pending{intent: intent, done: make(chan struct{})}
	a.runs.Set(id, p, ttlcache.DefaultTTL)
	metrics.AsyncRunsInFlight.Inc()

	runCtx := context.WithoutCancel(ctx)
	err := a.pool.Go(func() {
		defer metrics.AsyncRunsInFlight.Dec()
		p.run = a.compiler.compile(runCtx, id, intent)
		close(p.done)
		// Restart retention from completion.
		a.runs.Set(id, p, ttlcache.DefaultTTL)
	})
	if err != nil {
		metrics.AsyncRunsInFlight.Dec()
		a.runs.Delete(id)
		return "", fmt.Errorf("failed to submit run: %w", err)
	}
	a.log.Debug("compiler: run submitted", "id", id)
	return id, nil
}

// Get returns the status of a submitted run.
func (a *Async) Get(id string) (Status, bool) {
	item := a.runs.Get(id)
	if item == nil {
		return Status{}, false
	}
	p := item.Value()
	status := Status{ID: id, Intent: p.intent}
	select {
	case <-p.done:
		status.Done = true
		status.Run = p.run
	default:
	}
	return status, true
}

// Wait blocks until the run finishes or ctx is done.
func (a *Async) Wait(ctx context.Context, id string) (*Run, error) {
	item := a.runs.Get(id)
	if item == nil {
		return nil, ErrUnknownRun
	}
	p := item.Value()
	select {
	case <-p.done:
		return p.run, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close waits for queued and running runs to finish and stops expiry.
func (a *Async) Close() {
	a.pool.StopAndWait()
	a.runs.Stop()
}

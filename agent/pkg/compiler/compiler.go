package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/agent/pkg/reasoning"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/api/metrics"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
)

const (
	DefaultDiscoveryTimeout = 60 * time.Second
	DefaultPlanningTimeout  = 90 * time.Second
	DefaultExecutionTimeout = 60 * time.Second
)

// GraphSource provides the current knowledge graph snapshot.
type GraphSource interface {
	Graph() *discovery.KnowledgeGraph
}

type PlanValidator interface {
	Validate(ctx context.Context, schemas validator.Schemas, plan validator.QueryPlan) validator.Report
}

// Recorder persists terminal runs. Recording failures never change a run's outcome.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
}

type Config struct {
	Logger    *slog.Logger
	Graph     GraphSource
	Reasoning reasoning.Service
	Validator PlanValidator
	Engine    engine.Executor
	Recorder  Recorder
	Clock     clockwork.Clock

	DiscoveryTimeout time.Duration
	PlanningTimeout  time.Duration
	ExecutionTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Graph == nil {
		return errors.New("graph source is required")
	}
	if cfg.Reasoning == nil {
		return errors.New("reasoning service is required")
	}
	if cfg.Validator == nil {
		return errors.New("validator is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if cfg.PlanningTimeout <= 0 {
		cfg.PlanningTimeout = DefaultPlanningTimeout
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultExecutionTimeout
	}
	return nil
}

// Compiler drives runs through the stage transitions, performing the external calls
// each stage needs.
type Compiler struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Compiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate compiler config: %w", err)
	}
	return &Compiler{log: cfg.Logger, cfg: cfg}, nil
}

// Compile runs a single pass over intent and returns the terminal run. It never returns
// nil; failures are reported through Run.Failure and Run.Err.
func (c *Compiler) Compile(ctx context.Context, intent string) *Run {
	return c.compile(ctx, uuid.NewString(), intent)
}

func (c *Compiler) compile(ctx context.Context, id, intent string) *Run {
	ctx = reasoning.ContextWithRunID(ctx, id)
	g := c.cfg.Graph.Graph()
	run := c.stamp(newRun(id, intent, c.cfg.Clock.Now()))
	c.log.Info("compiler: run started", "id", id, "datasets", len(g.Datasets()))

	var found reasoning.Discovery
	err := c.call(ctx, StageDiscovery, c.cfg.DiscoveryTimeout, func(ctx context.Context) error {
		var err error
		found, err = c.cfg.Reasoning.Discover(ctx, intent, g.Summary())
		return err
	})
	run = c.stamp(afterDiscovery(run, g, found, err))
	if run.Stage.Terminal() {
		return c.finish(ctx, run)
	}

	run = c.stamp(afterJoinPaths(run, g))
	if run.Stage.Terminal() {
		return c.finish(ctx, run)
	}

	var draft reasoning.PlanDraft
	err = c.call(ctx, StagePlanning, c.cfg.PlanningTimeout, func(ctx context.Context) error {
		var err error
		draft, err = c.cfg.Reasoning.Plan(ctx, c.planRequest(run, g))
		return err
	})
	run = c.stamp(afterPlanning(run, draft, err))
	if run.Stage.Terminal() {
		return c.finish(ctx, run)
	}

	var report validator.Report
	_ = c.call(ctx, StageValidation, 0, func(ctx context.Context) error {
		report = c.cfg.Validator.Validate(ctx, g, *run.Plan)
		return nil
	})
	run = c.stamp(afterValidation(run, report))
	if run.Stage.Terminal() {
		return c.finish(ctx, run)
	}

	var result engine.Result
	err = c.call(ctx, StageExecution, c.cfg.ExecutionTimeout, func(ctx context.Context) error {
		var err error
		result, err = c.cfg.Engine.Execute(ctx, run.Plan.Query)
		return err
	})
	run = c.stamp(afterExecution(run, result, err))
	return c.finish(ctx, run)
}

// call runs one external call under its own timeout. A zero timeout inherits ctx.
func (c *Compiler) call(ctx context.Context, stage Stage, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := c.cfg.Clock.Now()
	err := fn(ctx)
	metrics.RecordPipelineStage(string(stage), c.cfg.Clock.Since(start))
	if err != nil {
		c.log.Warn("compiler: stage call failed", "stage", stage, "error", err)
	}
	return err
}

func (c *Compiler) planRequest(run Run, g *discovery.KnowledgeGraph) reasoning.PlanRequest {
	datasets := make([]catalog.Dataset, 0, len(run.JoinPath))
	for _, name := range run.JoinPath {
		if ds, ok := g.Dataset(name); ok {
			datasets = append(datasets, ds)
		}
	}
	return reasoning.PlanRequest{
		Intent:      run.Intent,
		Dialect:     c.cfg.Engine.Dialect(),
		Datasets:    datasets,
		Columns:     run.Discovery.Columns,
		JoinPath:    run.JoinPath,
		JoinColumns: run.JoinColumns,
	}
}

// stamp sets the time on trace entries added by the last transition.
func (c *Compiler) stamp(run Run) Run {
	now := c.cfg.Clock.Now()
	for i := range run.Trace {
		if run.Trace[i].At.IsZero() {
			run.Trace[i].At = now
		}
	}
	return run
}

func (c *Compiler) finish(ctx context.Context, run Run) *Run {
	run.FinishedAt = c.cfg.Clock.Now()

	var failedAt, kind string
	if run.Failure != nil {
		failedAt, kind = string(run.Failure.Stage), string(run.Failure.Kind)
	}
	metrics.RecordPipelineRun(string(run.Stage), failedAt, kind)

	c.log.Info("compiler: run finished",
		"id", run.ID,
		"stage", run.Stage,
		"failed_at", failedAt,
		"kind", kind,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)

	if c.cfg.Recorder != nil {
		if err := c.cfg.Recorder.RecordRun(context.WithoutCancel(ctx), &run); err != nil {
			c.log.Warn("compiler: failed to record run", "id", run.ID, "error", err)
		}
	}
	return &run
}

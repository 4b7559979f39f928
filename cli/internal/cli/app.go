package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/agent/pkg/reasoning"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/api/audit"
	"github.com/malbeclabs/ados/api/config"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/catalog/pkg/clickhouse"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	"github.com/malbeclabs/ados/graph/pkg/neo4j"
)

// AppOptions selects the optional parts of the application.
type AppOptions struct {
	// Reasoning builds the reasoning service, compiler and async runner.
	Reasoning bool
	// Audit opens the audit store when POSTGRES_DB is set.
	Audit bool
	// Mirror syncs every graph swap to Neo4j when a URI is configured.
	Mirror bool
	// LLM overrides the Anthropic client.
	LLM reasoning.LLMClient
}

// App holds the wired services shared by the commands.
type App struct {
	log *slog.Logger
	cfg Config

	Registry  *catalog.Registry
	Graph     *discovery.Service
	Engine    engine.Executor
	Reasoning *reasoning.LLMService
	// Validator runs the deterministic rules, plus the judge when reasoning is enabled.
	Validator *validator.Validator
	Compiler  *compiler.Compiler
	Async     *compiler.Async
	Audit     *audit.Store

	closers []func()
}

// NewApp wires the catalog sources, knowledge graph, engine and, per opts, the reasoning
// stack. The graph is not built until Refresh or Start is called on it.
func NewApp(ctx context.Context, log *slog.Logger, cfg Config, opts AppOptions) (_ *App, err error) {
	a := &App{log: log, cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var chClient clickhouse.Client
	if cfg.ClickHouse.Addr != "" {
		chClient, err = clickhouse.NewClient(ctx, clickhouse.Config{
			Logger:   log,
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
			Secure:   cfg.ClickHouse.Secure,
			ReadOnly: true,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func() { chClient.Close() })
	}

	sources, setup, err := a.sources(ctx, chClient)
	if err != nil {
		return nil, err
	}
	a.Registry, err = catalog.NewRegistry(catalog.RegistryConfig{Logger: log, Sources: sources})
	if err != nil {
		return nil, err
	}
	a.Graph, err = discovery.NewService(discovery.ServiceConfig{
		Logger:          log,
		Catalog:         a.Registry,
		Options:         discovery.Options{OverlapThreshold: cfg.OverlapThreshold},
		RefreshInterval: cfg.RefreshInterval,
	})
	if err != nil {
		return nil, err
	}

	switch cfg.Engine {
	case engine.DialectClickHouse:
		a.Engine, err = engine.NewClickHouse(engine.ClickHouseConfig{Logger: log, Client: chClient, MaxRows: cfg.MaxRows})
		if err != nil {
			return nil, err
		}
	default:
		duck, err := engine.NewDuckDB(ctx, engine.DuckDBConfig{Logger: log, MaxRows: cfg.MaxRows, Setup: setup})
		if err != nil {
			return nil, err
		}
		a.onClose(func() { duck.Close() })
		a.Graph.OnSwap(duck.Hook())
		a.Engine = duck
	}

	if opts.Mirror && cfg.Neo4j.URI != "" {
		if err := a.mirror(ctx); err != nil {
			return nil, err
		}
	}

	a.Validator, err = validator.New(validator.Config{Logger: log})
	if err != nil {
		return nil, err
	}
	if !opts.Reasoning {
		return a, nil
	}

	llm := opts.LLM
	if llm == nil {
		llm, err = reasoning.NewAnthropicLLMClient(reasoning.AnthropicConfig{
			Logger:    log,
			Model:     anthropic.Model(cfg.AnthropicModel),
			MaxTokens: cfg.AnthropicMaxTokens,
		})
		if err != nil {
			return nil, err
		}
	}
	a.Reasoning, err = reasoning.New(reasoning.Config{Logger: log, LLM: llm, CachePrompts: cfg.CachePrompts})
	if err != nil {
		return nil, err
	}
	a.Validator, err = validator.New(validator.Config{Logger: log, Judge: a.Reasoning})
	if err != nil {
		return nil, err
	}

	if opts.Audit {
		if err := a.openAudit(ctx); err != nil {
			return nil, err
		}
	}

	ccfg := compiler.Config{
		Logger:           log,
		Graph:            a.Graph,
		Reasoning:        a.Reasoning,
		Validator:        a.Validator,
		Engine:           a.Engine,
		DiscoveryTimeout: cfg.DiscoveryTimeout,
		PlanningTimeout:  cfg.PlanningTimeout,
		ExecutionTimeout: cfg.ExecutionTimeout,
	}
	if a.Audit != nil {
		ccfg.Recorder = a.Audit
	}
	a.Compiler, err = compiler.New(ccfg)
	if err != nil {
		return nil, err
	}
	a.Async, err = compiler.NewAsync(compiler.AsyncConfig{
		Logger:    log,
		Compiler:  a.Compiler,
		Workers:   cfg.AsyncWorkers,
		Retention: cfg.AsyncRetention,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(a.Async.Close)
	return a, nil
}

func (a *App) sources(ctx context.Context, chClient clickhouse.Client) ([]catalog.Source, []string, error) {
	var (
		sources []catalog.Source
		setup   []string
	)
	if len(a.cfg.Paths) > 0 {
		fs, err := catalog.NewFileSource(catalog.FileSourceConfig{Logger: a.log, Paths: a.cfg.Paths, SampleSize: a.cfg.SampleSize})
		if err != nil {
			return nil, nil, err
		}
		a.onClose(func() { fs.Close() })
		sources = append(sources, fs)
	}
	if a.cfg.S3.URI != "" {
		s3, err := catalog.NewS3Source(ctx, catalog.S3SourceConfig{
			Logger:          a.log,
			URI:             a.cfg.S3.URI,
			Region:          a.cfg.S3.Region,
			Endpoint:        a.cfg.S3.Endpoint,
			AccessKeyID:     a.cfg.S3.AccessKeyID,
			SecretAccessKey: a.cfg.S3.SecretAccessKey,
			SampleSize:      a.cfg.SampleSize,
		})
		if err != nil {
			return nil, nil, err
		}
		a.onClose(func() { s3.Close() })
		sources = append(sources, s3)
		setup = append(setup, s3.SetupSQL()...)
	}
	if chClient != nil {
		ch, err := catalog.NewClickHouseSource(catalog.ClickHouseSourceConfig{
			Logger:     a.log,
			Client:     chClient,
			Tables:     a.cfg.ClickHouse.Tables,
			SampleSize: a.cfg.SampleSize,
		})
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, ch)
	}
	return sources, setup, nil
}

func (a *App) mirror(ctx context.Context) error {
	client, err := neo4j.NewClient(ctx, a.log, a.cfg.Neo4j.URI, a.cfg.Neo4j.Database, a.cfg.Neo4j.Username, a.cfg.Neo4j.Password)
	if err != nil {
		return err
	}
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(ctx)
	})
	m, err := neo4j.NewMirror(neo4j.MirrorConfig{Logger: a.log, Client: client})
	if err != nil {
		return err
	}
	if err := m.EnsureSchema(ctx); err != nil {
		return err
	}
	a.Graph.OnSwap(m.Hook())
	return nil
}

func (a *App) openAudit(ctx context.Context) error {
	pgCfg, err := config.PgConfigFromEnv()
	if errors.Is(err, config.ErrPostgresDisabled) {
		a.log.Info("cli: audit store disabled, POSTGRES_DB is not set")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load postgres config: %w", err)
	}
	pool, err := config.OpenPostgres(ctx, a.log, pgCfg)
	if err != nil {
		return err
	}
	a.onClose(pool.Close)
	a.Audit, err = audit.NewStore(audit.StoreConfig{Logger: a.log, Pool: pool})
	return err
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases everything NewApp opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

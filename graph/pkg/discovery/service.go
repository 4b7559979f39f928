package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/metrics"
)

// Refresher rescans datasets into a new catalog snapshot.
type Refresher interface {
	Refresh(ctx context.Context) (*catalog.Snapshot, error)
}

// SwapHook runs after a new graph has been swapped in.
type SwapHook func(ctx context.Context, g *KnowledgeGraph)

type ServiceConfig struct {
	Logger  *slog.Logger
	Catalog Refresher
	Options Options
	Clock   clockwork.Clock

	// RefreshInterval enables periodic rebuilds in Start; zero builds once.
	RefreshInterval time.Duration
}

func (cfg *ServiceConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Catalog == nil {
		return errors.New("catalog is required")
	}
	if cfg.RefreshInterval < 0 {
		return errors.New("refresh interval must not be negative")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	cfg.Options = cfg.Options.withDefaults()
	return nil
}

// Service owns the current knowledge graph. Rebuilds are serialized and swapped in
// atomically, so readers always see a complete graph.
type Service struct {
	log *slog.Logger
	cfg ServiceConfig

	refreshMu sync.Mutex
	graph     atomic.Pointer[KnowledgeGraph]

	hooksMu sync.Mutex
	hooks   []SwapHook

	readyOnce sync.Once
	readyCh   chan struct{}
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate discovery service config: %w", err)
	}
	s := &Service{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}
	s.graph.Store(Empty())
	return s, nil
}

// OnSwap registers a hook called after every successful refresh.
func (s *Service) OnSwap(hook SwapHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Graph returns the current snapshot.
func (s *Service) Graph() *KnowledgeGraph {
	return s.graph.Load()
}

func (s *Service) Ready() bool {
	select {
	case <-s.readyCh:
		return true
	default:
		return false
	}
}

func (s *Service) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for knowledge graph: %w", ctx.Err())
	}
}

// Refresh rescans the catalog, rebuilds the graph and swaps it in. Safe to call at any time.
func (s *Service) Refresh(ctx context.Context) (*KnowledgeGraph, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := s.cfg.Clock.Now()
	s.log.Debug("discovery: refresh started")

	snap, err := s.cfg.Catalog.Refresh(ctx)
	if err != nil {
		metrics.GraphRefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to refresh catalog: %w", err)
	}

	g := Build(snap, s.cfg.Options)
	s.graph.Store(g)
	s.readyOnce.Do(func() { close(s.readyCh) })

	duration := s.cfg.Clock.Since(start)
	metrics.GraphRefreshTotal.WithLabelValues("success").Inc()
	metrics.GraphRefreshDuration.Observe(duration.Seconds())
	metrics.GraphDatasets.Set(float64(len(g.datasets)))
	counts := map[Kind]int{}
	for _, e := range g.Edges() {
		counts[e.Kind]++
	}
	for _, k := range Kinds {
		metrics.GraphEdges.WithLabelValues(string(k)).Set(float64(counts[k]))
	}
	s.log.Info("discovery: graph rebuilt", "datasets", len(g.datasets), "pairs", len(g.pairs), "warnings", len(g.warnings), "duration", duration.String())

	s.hooksMu.Lock()
	hooks := append([]SwapHook(nil), s.hooks...)
	s.hooksMu.Unlock()
	for _, hook := range hooks {
		hook(ctx, g)
	}
	return g, nil
}

// Start builds the first graph and, if configured, keeps rebuilding it on an interval
// until ctx is done.
func (s *Service) Start(ctx context.Context) {
	go func() {
		s.log.Info("discovery: starting refresh loop", "interval", s.cfg.RefreshInterval)

		s.safeRefresh(ctx)
		if s.cfg.RefreshInterval == 0 {
			return
		}

		ticker := s.cfg.Clock.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.safeRefresh(ctx)
			}
		}
	}()
}

func (s *Service) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("discovery: refresh panicked", "panic", r)
			metrics.GraphRefreshTotal.WithLabelValues("panic").Inc()
		}
	}()

	if _, err := s.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error("discovery: refresh failed", "error", err)
	}
}

package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
)

const (
	opDiscover = "discovery"
	opPlan     = "planning"
	opJudge    = "judge"
)

// Service is the external reasoning collaborator of the compilation pipeline.
type Service interface {
	Discover(ctx context.Context, intent string, summary discovery.Summary) (Discovery, error)
	Plan(ctx context.Context, req PlanRequest) (PlanDraft, error)
	Judge(ctx context.Context, query string, datasets []string) (string, error)
}

type Config struct {
	Logger *slog.Logger
	LLM    LLMClient
	// Prompts defaults to the embedded prompts.
	Prompts *Prompts
	// CachePrompts enables prompt caching of the system prompts.
	CachePrompts bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.LLM == nil {
		return errors.New("llm client is required")
	}
	if cfg.Prompts == nil {
		prompts, err := LoadPrompts()
		if err != nil {
			return err
		}
		cfg.Prompts = prompts
	}
	return nil
}

// LLMService implements Service on top of an LLMClient. Responses are decoded strictly and
// never retried.
type LLMService struct {
	log             *slog.Logger
	cfg             Config
	discoverySchema *jsonschema.Resolved
	planSchema      *jsonschema.Resolved
}

var _ Service = (*LLMService)(nil)

func New(cfg Config) (*LLMService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate reasoning config: %w", err)
	}
	discoverySchema, err := resolveSchema[discoveryWire]()
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery schema: %w", err)
	}
	planSchema, err := resolveSchema[planWire]()
	if err != nil {
		return nil, fmt.Errorf("failed to build plan schema: %w", err)
	}
	return &LLMService{
		log:             cfg.Logger,
		cfg:             cfg,
		discoverySchema: discoverySchema,
		planSchema:      planSchema,
	}, nil
}

func (s *LLMService) complete(ctx context.Context, op, system, user string) (string, error) {
	opts := []CompleteOption{WithName(op)}
	if s.cfg.CachePrompts {
		opts = append(opts, WithCacheSystemPrompt())
	}
	resp, err := s.cfg.LLM.Complete(ctx, system, user, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to complete %s: %w", op, err)
	}
	s.log.Debug("reasoning: response received", "op", op, "len", len(resp))
	return resp, nil
}

// Discover asks which datasets and columns the intent needs.
func (s *LLMService) Discover(ctx context.Context, intent string, summary discovery.Summary) (Discovery, error) {
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return Discovery{}, fmt.Errorf("failed to encode catalog summary: %w", err)
	}
	user := fmt.Sprintf("Catalog summary:\n%s\n\nIntent: %s", summaryJSON, intent)

	resp, err := s.complete(ctx, opDiscover, s.cfg.Prompts.Discover, user)
	if err != nil {
		return Discovery{}, err
	}
	wire, err := decodeStrict[discoveryWire](opDiscover, resp, s.discoverySchema)
	if err != nil {
		return Discovery{}, err
	}
	d, err := wire.discovery(resp)
	if err != nil {
		return Discovery{}, err
	}
	s.log.Info("reasoning: discovery decoded", "datasets", d.Datasets)
	return d, nil
}

// Plan asks for a query over the given join path.
func (s *LLMService) Plan(ctx context.Context, req PlanRequest) (PlanDraft, error) {
	resp, err := s.complete(ctx, opPlan, s.cfg.Prompts.Plan, planPrompt(req))
	if err != nil {
		return PlanDraft{}, err
	}
	wire, err := decodeStrict[planWire](opPlan, resp, s.planSchema)
	if err != nil {
		return PlanDraft{}, err
	}
	return wire.draft(resp)
}

// Judge asks for a business-logic review of a query. The answer is "OK" or a list of issues.
func (s *LLMService) Judge(ctx context.Context, query string, datasets []string) (string, error) {
	user := fmt.Sprintf("Datasets: %s\n\nQuery:\n%s", strings.Join(datasets, ", "), query)
	resp, err := s.complete(ctx, opJudge, s.cfg.Prompts.Judge, user)
	if err != nil {
		return "", err
	}
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return "", malformed(opJudge, resp, "empty answer")
	}
	return resp, nil
}

func planPrompt(req PlanRequest) string {
	var b strings.Builder
	dialect := req.Dialect
	if dialect == "" {
		dialect = "duckdb"
	}
	fmt.Fprintf(&b, "SQL dialect: %s\n\n", dialect)

	b.WriteString("Datasets:\n")
	for _, d := range req.Datasets {
		fmt.Fprintf(&b, "- %s (%d rows)\n", d.Name, d.RowCount)
		for _, c := range d.Columns {
			fmt.Fprintf(&b, "    %s %s\n", c.Name, c.Type)
		}
	}

	if len(req.Columns) > 0 {
		b.WriteString("\nRequired columns:\n")
		for _, d := range req.Datasets {
			if cols, ok := req.Columns[d.Name]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", d.Name, strings.Join(cols, ", "))
			}
		}
	}

	if len(req.JoinPath) > 1 {
		fmt.Fprintf(&b, "\nJoin path: %s\n", strings.Join(req.JoinPath, " -> "))
		b.WriteString("Join columns:\n")
		for _, jc := range req.JoinColumns {
			fmt.Fprintf(&b, "- %s = %s (%s, confidence %.2f)\n", jc.Left, jc.Right, jc.Kind, jc.Confidence)
		}
	}

	fmt.Fprintf(&b, "\nIntent: %s", req.Intent)
	return b.String()
}

package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/getsentry/sentry-go"
	"github.com/malbeclabs/ados/api/metrics"
)

const (
	DefaultModel     = anthropic.ModelClaudeSonnet4_5
	DefaultMaxTokens = 4096
)

type AnthropicConfig struct {
	Logger *slog.Logger
	// APIKey falls back to the ANTHROPIC_API_KEY environment variable when empty.
	APIKey    string
	Model     anthropic.Model
	MaxTokens int64
	// Name labels calls in logs and metrics when the call does not set one.
	Name string
}

func (cfg *AnthropicConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Name == "" {
		cfg.Name = "ados"
	}
	return nil
}

// AnthropicLLMClient implements LLMClient using the Anthropic API.
type AnthropicLLMClient struct {
	log       *slog.Logger
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	name      string
}

func NewAnthropicLLMClient(cfg AnthropicConfig) (*AnthropicLLMClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate anthropic config: %w", err)
	}
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &AnthropicLLMClient{
		log:       cfg.Logger,
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		name:      cfg.Name,
	}, nil
}

// Complete sends a prompt to Claude and returns the response text.
func (c *AnthropicLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error) {
	options := &CompleteOptions{Name: c.name}
	for _, opt := range opts {
		opt(options)
	}

	span := sentry.StartSpan(ctx, "gen_ai.chat", sentry.WithDescription(fmt.Sprintf("chat %s", c.model)))
	span.SetData("gen_ai.operation.name", "chat")
	span.SetData("gen_ai.request.model", string(c.model))
	span.SetData("gen_ai.request.max_tokens", c.maxTokens)
	span.SetData("gen_ai.system", "anthropic")
	span.SetTag("phase", options.Name)
	if runID, ok := RunIDFromContext(ctx); ok {
		span.SetTag("run_id", runID)
	}
	ctx = span.Context()
	defer span.Finish()

	start := time.Now()
	c.log.Debug("reasoning: anthropic call starting", "phase", options.Name, "model", c.model, "userPromptLen", len(userPrompt), "cacheEnabled", options.CacheSystemPrompt)

	systemBlock := anthropic.TextBlockParam{Type: "text", Text: systemPrompt}
	if options.CacheSystemPrompt {
		systemBlock.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{systemBlock},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})

	duration := time.Since(start)
	if err != nil {
		c.log.Error("reasoning: anthropic call failed", "phase", options.Name, "duration", duration, "error", err)
		metrics.RecordAnthropicRequest(options.Name, duration, err)
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	c.log.Info("reasoning: anthropic call completed",
		"phase", options.Name,
		"duration", duration,
		"stopReason", msg.StopReason,
		"inputTokens", msg.Usage.InputTokens,
		"outputTokens", msg.Usage.OutputTokens,
		"cacheCreationInputTokens", msg.Usage.CacheCreationInputTokens,
		"cacheReadInputTokens", msg.Usage.CacheReadInputTokens,
	)

	metrics.RecordAnthropicRequest(options.Name, duration, nil)
	metrics.RecordAnthropicTokensWithCache(
		msg.Usage.InputTokens,
		msg.Usage.OutputTokens,
		msg.Usage.CacheCreationInputTokens,
		msg.Usage.CacheReadInputTokens,
	)

	span.SetData("gen_ai.usage.input_tokens", msg.Usage.InputTokens)
	span.SetData("gen_ai.usage.output_tokens", msg.Usage.OutputTokens)
	span.SetData("gen_ai.usage.total_tokens", msg.Usage.InputTokens+msg.Usage.OutputTokens)
	if msg.Usage.CacheReadInputTokens > 0 {
		span.SetData("gen_ai.usage.input_tokens.cached", msg.Usage.CacheReadInputTokens)
	}
	span.Status = sentry.SpanStatusOK

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}

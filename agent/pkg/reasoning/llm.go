package reasoning

import "context"

// LLMClient is a single-turn text completion backend.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts ...CompleteOption) (string, error)
}

// CompleteOptions holds optional settings for Complete calls.
type CompleteOptions struct {
	// CacheSystemPrompt marks the system prompt for ephemeral prompt caching.
	CacheSystemPrompt bool
	// Name labels the call in logs and metrics (e.g. "discovery", "planning").
	Name string
}

// CompleteOption configures a Complete call.
type CompleteOption func(*CompleteOptions)

// WithCacheSystemPrompt enables prompt caching of the system prompt.
func WithCacheSystemPrompt() CompleteOption {
	return func(o *CompleteOptions) {
		o.CacheSystemPrompt = true
	}
}

// WithName labels the call.
func WithName(name string) CompleteOption {
	return func(o *CompleteOptions) {
		o.Name = name
	}
}

type runIDKey struct{}

// ContextWithRunID attaches a compilation run ID used to group LLM spans.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID attached by ContextWithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

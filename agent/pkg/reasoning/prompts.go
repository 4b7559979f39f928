package reasoning

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/ados/agent/pkg/reasoning/prompts"
)

// Prompts contains the reasoning prompts loaded from embedded files.
type Prompts struct {
	Discover string // Dataset and column selection
	Plan     string // SQL generation over a join path
	Judge    string // Semantic plausibility review
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Discover, err = loadPrompt("DISCOVER.md"); err != nil {
		return nil, fmt.Errorf("failed to load DISCOVER: %w", err)
	}
	if p.Plan, err = loadPrompt("PLAN.md"); err != nil {
		return nil, fmt.Errorf("failed to load PLAN: %w", err)
	}
	if p.Judge, err = loadPrompt("JUDGE.md"); err != nil {
		return nil, fmt.Errorf("failed to load JUDGE: %w", err)
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

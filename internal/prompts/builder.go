package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

var unresolvedVar = regexp.MustCompile(`\{\{[a-z_]+\}\}`)

// PromptBuilder composes a prompt from a registered base, extra fragments and
// {{variable}} substitutions.
type PromptBuilder struct {
	basePrompt *Prompt
	fragments  []string
	variables  map[string]string
}

// NewPromptBuilder creates a new prompt builder based on a registered prompt.
func NewPromptBuilder(registry *PromptRegistry, id string, version PromptVersion) (*PromptBuilder, error) {
	basePrompt, err := registry.Get(id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}

	return &PromptBuilder{
		basePrompt: basePrompt,
		fragments:  []string{basePrompt.Content},
		variables:  make(map[string]string),
	}, nil
}

// AddFragment appends a fragment to the prompt. Empty fragments are skipped.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// AddPrompt appends the content of another registered prompt.
func (b *PromptBuilder) AddPrompt(registry *PromptRegistry, id string, version PromptVersion) error {
	p, err := registry.Get(id, version)
	if err != nil {
		return err
	}
	b.AddFragment(p.Content)
	return nil
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// SetVariables sets several variables at once.
func (b *PromptBuilder) SetVariables(vars map[string]string) *PromptBuilder {
	for k, v := range vars {
		b.variables[k] = v
	}
	return b
}

// Build constructs the final prompt string. Variables are substituted in a
// single pass so values containing "{{...}}" are never expanded again.
func (b *PromptBuilder) Build() (string, error) {
	template := strings.Join(b.fragments, "\n\n")

	if missing := unresolvedVar.FindAllString(stripKnown(template, b.variables), -1); len(missing) > 0 {
		return "", fmt.Errorf("prompt %s: unresolved variables %v", b.basePrompt.ID, missing)
	}

	pairs := make([]string, 0, 2*len(b.variables))
	for key, value := range b.variables {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}

func stripKnown(s string, vars map[string]string) string {
	for key := range vars {
		s = strings.ReplaceAll(s, "{{"+key+"}}", "")
	}
	return s
}

// Render builds the given prompt from the default registry with vars.
func Render(id string, vars map[string]string) (string, error) {
	b, err := NewPromptBuilder(DefaultRegistry(), id, PromptV1)
	if err != nil {
		return "", err
	}
	return b.SetVariables(vars).Build()
}

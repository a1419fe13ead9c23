package engine

import (
	"context"
	"strings"
)

// Generator is the generation call every analyst component depends on:
// a system prompt and a user message in, model text out.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, systemPrompt, userMessage string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return f(ctx, systemPrompt, userMessage)
}

// ChatGenerator implements Generator on top of an LLMClient with
// transport-level retries. Semantic retries (bad JSON, failed code) belong
// to the callers.
type ChatGenerator struct {
	LLM     LLMClient
	Model   string
	Options ChatOptions
	Policy  RetryPolicy
	// Role names the component this generator serves (planner, agent, ...)
	// and is handed to the callbacks.
	Role string
	// OnRetry is called with the call's context before every transport
	// retry. Optional.
	OnRetry func(ctx context.Context, role string, ev RetryEvent)
	// OnUsage is called after every successful call with the provider's
	// token usage, or an estimate when the provider reported none.
	OnUsage func(ctx context.Context, role string, u Usage, estimated bool)
}

// NewChatGenerator returns a generator with the default retry policy.
func NewChatGenerator(llm LLMClient, model string, opts ChatOptions) *ChatGenerator {
	return &ChatGenerator{
		LLM:     llm,
		Model:   model,
		Options: opts,
		Policy:  DefaultRetryPolicy(),
	}
}

// Generate implements Generator.
func (g *ChatGenerator) Generate(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	messages := make([]ChatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, ChatMessage{Role: RoleUser, Content: userMessage})

	resp, err := RetryWithPolicy(
		ctx,
		g.Policy,
		func(ctx context.Context) (LLMResponse, error) {
			r, err := g.LLM.Chat(ctx, g.Model, messages, g.Options)
			if err != nil {
				return LLMResponse{}, err
			}
			if strings.TrimSpace(r.Assistant.Content) == "" {
				return LLMResponse{}, ErrEmptyResponse
			}
			return r, nil
		},
		ClassifyLLMError,
		func(ctx context.Context, ev RetryEvent) {
			if g.OnRetry != nil {
				g.OnRetry(ctx, g.Role, ev)
			}
		},
	)
	if err != nil {
		return "", err
	}
	if g.OnUsage != nil {
		u, estimated := usageOrEstimate(resp.Usage, messages, resp.Assistant.Content)
		g.OnUsage(ctx, g.Role, u, estimated)
	}
	return strings.TrimSpace(resp.Assistant.Content), nil
}

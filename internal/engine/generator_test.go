package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLLMClient replays canned responses in order.
type MockLLMClient struct {
	Responses []LLMResponse
	Errors    []error
	Calls     [][]ChatMessage
	Opts      []ChatOptions
}

func (m *MockLLMClient) Chat(_ context.Context, _ string, messages []ChatMessage, opts ChatOptions) (LLMResponse, error) {
	i := len(m.Calls)
	m.Calls = append(m.Calls, messages)
	m.Opts = append(m.Opts, opts)
	if i < len(m.Errors) && m.Errors[i] != nil {
		return LLMResponse{}, m.Errors[i]
	}
	if i < len(m.Responses) {
		return m.Responses[i], nil
	}
	return LLMResponse{}, errors.New("no more responses")
}

func reply(text string) LLMResponse {
	return LLMResponse{Assistant: ChatMessage{Role: RoleAssistant, Content: text}, FinishReason: "stop"}
}

func TestChatGenerator_Generate(t *testing.T) {
	llm := &MockLLMClient{Responses: []LLMResponse{reply("  hello  ")}}
	gen := NewChatGenerator(llm, "m", ChatOptions{Temperature: TemperatureAnalysis})

	out, err := gen.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	require.Len(t, llm.Calls, 1)
	assert.Equal(t, []ChatMessage{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "user"}}, llm.Calls[0])
	assert.Equal(t, TemperatureAnalysis, llm.Opts[0].Temperature)
}

func TestChatGenerator_RetriesEmptyAndTransient(t *testing.T) {
	llm := &MockLLMClient{
		Errors:    []error{errors.New("503 service unavailable"), nil, nil},
		Responses: []LLMResponse{{}, reply(""), reply("done")},
	}
	gen := NewChatGenerator(llm, "m", ChatOptions{})
	gen.Policy = fastPolicy(3)
	gen.Role = "planner"
	var retries []int
	var roles []string
	var runIDs []any
	gen.OnRetry = func(ctx context.Context, role string, ev RetryEvent) {
		retries = append(retries, ev.Attempt)
		roles = append(roles, role)
		runIDs = append(runIDs, ctx.Value(ctxKey{}))
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "run-1")
	out, err := gen.Generate(ctx, "", "user")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, []int{1, 2}, retries)
	assert.Equal(t, []string{"planner", "planner"}, roles)
	assert.Equal(t, []any{"run-1", "run-1"}, runIDs)
	assert.Len(t, llm.Calls[0], 1, "empty system prompt is omitted")
}

func TestChatGenerator_NonRetryable(t *testing.T) {
	llm := &MockLLMClient{Errors: []error{errors.New("401 unauthorized")}}
	gen := NewChatGenerator(llm, "m", ChatOptions{})
	gen.Policy = fastPolicy(3)

	_, err := gen.Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Len(t, llm.Calls, 1)
}

func TestRateLimitedClient(t *testing.T) {
	inner := &MockLLMClient{Responses: []LLMResponse{reply("a"), reply("b")}}
	assert.Same(t, LLMClient(inner), NewRateLimitedClient(inner, 0, 0), "rps <= 0 disables limiting")

	limited := NewRateLimitedClient(inner, 1000, 1)
	_, err := limited.Chat(context.Background(), "m", nil, ChatOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRateLimitedClient(inner, 0.001, 1).Chat(ctx, "m", nil, ChatOptions{})
	assert.Error(t, err)
}

func TestChatGenerator_ReportsUsage(t *testing.T) {
	withUsage := reply("ok")
	withUsage.Usage = Usage{Prompt: 120, Completion: 8, Total: 128}
	llm := &MockLLMClient{Responses: []LLMResponse{withUsage, reply("no usage reported")}}
	gen := NewChatGenerator(llm, "m", ChatOptions{})
	gen.Role = "analyzer"

	var got []Usage
	var estimated []bool
	gen.OnUsage = func(ctx context.Context, role string, u Usage, est bool) {
		assert.Equal(t, "analyzer", role)
		assert.Equal(t, "run-2", ctx.Value(ctxKey{}))
		got = append(got, u)
		estimated = append(estimated, est)
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "run-2")
	_, err := gen.Generate(ctx, "sys", "user")
	require.NoError(t, err)
	_, err = gen.Generate(ctx, "sys", "user")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, withUsage.Usage, got[0])
	assert.Equal(t, []bool{false, true}, estimated)
	assert.Positive(t, got[1].Completion)
}

package providers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMClient(t *testing.T) {
	tests := []struct {
		name      string
		settings  Settings
		wantModel string
		wantErr   string
		anthropic bool
	}{
		{name: "openai default model", settings: Settings{Provider: "openai", APIKey: "k"}, wantModel: "gpt-4o-mini"},
		{name: "explicit model", settings: Settings{Provider: "deepseek", APIKey: "k", Model: "deepseek-coder"}, wantModel: "deepseek-coder"},
		{name: "anthropic", settings: Settings{Provider: "Anthropic", APIKey: "k"}, wantModel: "claude-3-5-sonnet-latest", anthropic: true},
		{name: "local server without key", settings: Settings{Provider: "ollama"}, wantModel: "llama3.1"},
		{name: "missing key", settings: Settings{Provider: "groq"}, wantErr: "GROQ_API_KEY not set"},
		{name: "unknown provider", settings: Settings{Provider: "nope", APIKey: "k"}, wantErr: "unknown LLM provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, model, err := NewLLMClient(tt.settings)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, model)
			_, isAnthropic := client.(*AnthropicClient)
			assert.Equal(t, tt.anthropic, isAnthropic)
		})
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "GROQ")
	t.Setenv("GROQ_API_KEY", "gk")
	t.Setenv("GROQ_MODEL", "mixtral")
	t.Setenv("GROQ_BASE_URL", "http://proxy")

	assert.Equal(t, Settings{Provider: "groq", APIKey: "gk", Model: "mixtral", BaseURL: "http://proxy"}, SettingsFromEnv())
}

func TestExtractErrorMetadata(t *testing.T) {
	status, retryAfter := extractErrorMetadata(errors.New("error, status code: 429, message: slow down. Retry-After: 20"))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "20", retryAfter)

	status, retryAfter = extractErrorMetadata(errors.New("dial tcp: i/o timeout"))
	assert.Zero(t, status)
	assert.Empty(t, retryAfter)
}

package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ChamsBouzaiene/analyst/internal/engine"
)

// Settings selects and configures one LLM provider.
type Settings struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// providerSpec describes how to reach one provider.
type providerSpec struct {
	envPrefix      string
	defaultModel   string
	defaultBaseURL string
	keyOptional    bool   // local servers accept any key
	placeholderKey string // used when keyOptional and no key given
	anthropic      bool
}

var providerSpecs = map[string]providerSpec{
	"openai":    {envPrefix: "OPENAI", defaultModel: "gpt-4o-mini"},
	"anthropic": {envPrefix: "ANTHROPIC", defaultModel: "claude-3-5-sonnet-latest", anthropic: true},
	"kimi":      {envPrefix: "KIMI", defaultModel: "kimi-k2-250711", defaultBaseURL: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	"gemini":    {envPrefix: "GEMINI", defaultModel: "gemini-1.5-flash", defaultBaseURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"deepseek":  {envPrefix: "DEEPSEEK", defaultModel: "deepseek-chat", defaultBaseURL: "https://api.deepseek.com/v1"},
	"groq":      {envPrefix: "GROQ", defaultModel: "llama-3.1-70b-versatile", defaultBaseURL: "https://api.groq.com/openai/v1"},
	"glm":       {envPrefix: "GLM", defaultModel: "glm-4-plus", defaultBaseURL: "https://open.bigmodel.cn/api/paas/v4"},
	"minimax":   {envPrefix: "MINIMAX", defaultModel: "abab6.5s-chat", defaultBaseURL: "https://api.minimax.chat/v1"},
	"lmstudio":  {envPrefix: "LMSTUDIO", defaultModel: "local-model", defaultBaseURL: "http://localhost:1234/v1", keyOptional: true, placeholderKey: "lm-studio"},
	"ollama":    {envPrefix: "OLLAMA", defaultModel: "llama3.1", defaultBaseURL: "http://localhost:11434/v1", keyOptional: true, placeholderKey: "ollama"},
}

// Supported returns the supported provider names, sorted.
func Supported() []string {
	names := make([]string, 0, len(providerSpecs))
	for name := range providerSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvPrefix returns the environment variable prefix for a provider
// ("OPENAI" for "openai"), or "" for unknown providers.
func EnvPrefix(provider string) string {
	return providerSpecs[strings.ToLower(provider)].envPrefix
}

// SettingsFromEnv reads LLM_PROVIDER and the provider specific
// <PREFIX>_API_KEY, <PREFIX>_MODEL and <PREFIX>_BASE_URL variables.
func SettingsFromEnv() Settings {
	provider := strings.ToLower(os.Getenv("LLM_PROVIDER"))
	if provider == "" {
		provider = "openai"
	}
	s := Settings{Provider: provider}
	if prefix := EnvPrefix(provider); prefix != "" {
		s.APIKey = os.Getenv(prefix + "_API_KEY")
		s.Model = os.Getenv(prefix + "_MODEL")
		s.BaseURL = os.Getenv(prefix + "_BASE_URL")
	}
	return s
}

// NewLLMClient creates an engine.LLMClient for the given settings and
// returns it together with the resolved model name.
func NewLLMClient(s Settings) (engine.LLMClient, string, error) {
	provider := strings.ToLower(s.Provider)
	if provider == "" {
		provider = "openai"
	}
	spec, ok := providerSpecs[provider]
	if !ok {
		return nil, "", fmt.Errorf("unknown LLM provider: %s (supported: %s)", s.Provider, strings.Join(Supported(), ", "))
	}

	model := s.Model
	if model == "" {
		model = spec.defaultModel
	}

	apiKey := s.APIKey
	if apiKey == "" {
		if !spec.keyOptional {
			return nil, "", fmt.Errorf("%s_API_KEY not set", spec.envPrefix)
		}
		apiKey = spec.placeholderKey
	}

	if spec.anthropic {
		client, err := NewAnthropicClient(apiKey, model)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
		}
		return client, model, nil
	}

	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = spec.defaultBaseURL
	}
	client, err := NewOpenAIClient(apiKey, model, baseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return client, model, nil
}

// NewLLMClientFromEnv is NewLLMClient(SettingsFromEnv()).
func NewLLMClientFromEnv() (engine.LLMClient, string, error) {
	return NewLLMClient(SettingsFromEnv())
}

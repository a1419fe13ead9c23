// Package config loads the analyst configuration file and overlays
// environment variables on it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
	"github.com/ChamsBouzaiene/analyst/internal/providers"
	"github.com/ChamsBouzaiene/analyst/internal/sandbox"
)

// Config holds the user's persistent configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Limits  LimitsConfig  `yaml:"limits"`
	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LLMConfig struct {
	Provider          string  `yaml:"provider,omitempty" validate:"omitempty,llmprovider"`
	Model             string  `yaml:"model,omitempty"`
	APIKey            string  `yaml:"api_key,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty" validate:"omitempty,url"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" validate:"gte=0"`
	Burst             int     `yaml:"burst,omitempty" validate:"gte=0"`
	MaxOutputTokens   int     `yaml:"max_output_tokens,omitempty" validate:"gte=0"`
}

type SandboxConfig struct {
	Mode    string        `yaml:"mode,omitempty" validate:"omitempty,sandboxmode"`
	Image   string        `yaml:"image,omitempty"`
	CPU     string        `yaml:"cpu,omitempty" validate:"omitempty,numeric"`
	Memory  string        `yaml:"memory,omitempty" validate:"omitempty,memlimit"`
	Python  string        `yaml:"python,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
}

type LimitsConfig struct {
	// MaxStepAttempts is fixed; it is accepted only with its real value so
	// a config file cannot suggest otherwise.
	MaxStepAttempts        int           `yaml:"max_step_attempts,omitempty" validate:"omitempty,eq=3"`
	MaxReplanRounds        int           `yaml:"max_replan_rounds,omitempty" validate:"gte=0,lte=100"`
	MaxPlanAttempts        int           `yaml:"max_plan_attempts,omitempty" validate:"gte=0,lte=10"`
	MaxReplanParseAttempts int           `yaml:"max_replan_parse_attempts,omitempty" validate:"gte=0,lte=10"`
	MaxStepFailures        int           `yaml:"max_step_failures,omitempty" validate:"gte=0,lte=10"`
	GenerationTimeout      time.Duration `yaml:"generation_timeout,omitempty" validate:"gte=0"`
	ExecutionTimeout       time.Duration `yaml:"execution_timeout,omitempty" validate:"gte=0"`
	InterpretationTimeout  time.Duration `yaml:"interpretation_timeout,omitempty" validate:"gte=0"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // defaults to <config dir>/journal.db
}

type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"` // e.g. ":9090"; empty disables the endpoint
}

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("llmprovider", func(fl validator.FieldLevel) bool {
		return slices.Contains(providers.Supported(), strings.ToLower(fl.Field().String()))
	})
	_ = configValidate.RegisterValidation("sandboxmode", func(fl validator.FieldLevel) bool {
		_, err := sandbox.ParseMode(fl.Field().String())
		return err == nil
	})
	_ = configValidate.RegisterValidation("memlimit", func(fl validator.FieldLevel) bool {
		_, err := sandbox.MemoryBytes(fl.Field().String())
		return err == nil
	})
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	sb := sandbox.DefaultConfig()
	lim := analyst.DefaultLimits()
	return &Config{
		LLM: LLMConfig{Provider: "openai"},
		Sandbox: SandboxConfig{
			Mode:    string(sb.Mode),
			Image:   sb.DockerImage,
			CPU:     sb.CPU,
			Memory:  sb.Memory,
			Python:  sb.Python,
			Timeout: sb.CmdTimeout,
		},
		Limits: LimitsConfig{
			MaxStepAttempts:        analyst.MaxStepAttempts,
			MaxReplanRounds:        lim.MaxReplanRounds,
			MaxPlanAttempts:        lim.MaxPlanAttempts,
			MaxReplanParseAttempts: lim.MaxReplanParseAttempts,
			MaxStepFailures:        lim.MaxStepFailures,
			GenerationTimeout:      lim.GenerationTimeout,
			ExecutionTimeout:       lim.ExecutionTimeout,
			InterpretationTimeout:  lim.InterpretationTimeout,
		},
		Journal: JournalConfig{Enabled: true},
	}
}

// Validate checks the struct tags and reports every invalid field.
func (c *Config) Validate() error {
	err := configValidate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ApplyEnv overlays environment variables: LLM_PROVIDER and the provider's
// <PREFIX>_API_KEY, <PREFIX>_MODEL, <PREFIX>_BASE_URL; the ANALYST_SANDBOX_*
// and ANALYST_DOCKER_* variables understood by the sandbox package;
// ANALYST_LLM_RPS, ANALYST_JOURNAL_PATH and ANALYST_METRICS_ADDR.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		if !strings.EqualFold(v, c.LLM.Provider) {
			// Credentials in the file belong to the file's provider.
			c.LLM.APIKey, c.LLM.Model, c.LLM.BaseURL = "", "", ""
		}
		c.LLM.Provider = strings.ToLower(v)
	}
	if prefix := providers.EnvPrefix(c.LLM.Provider); prefix != "" {
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			c.LLM.APIKey = v
		}
		if v := os.Getenv(prefix + "_MODEL"); v != "" {
			c.LLM.Model = v
		}
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			c.LLM.BaseURL = v
		}
	}
	if v := os.Getenv("ANALYST_LLM_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps >= 0 {
			c.LLM.RequestsPerSecond = rps
		}
	}

	sb := c.SandboxSettings().ApplyEnv()
	c.Sandbox = SandboxConfig{
		Mode:    string(sb.Mode),
		Image:   sb.DockerImage,
		CPU:     sb.CPU,
		Memory:  sb.Memory,
		Python:  sb.Python,
		Timeout: sb.CmdTimeout,
	}

	if v := os.Getenv("ANALYST_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("ANALYST_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// ProviderSettings converts the llm section for providers.NewLLMClient.
func (c *Config) ProviderSettings() providers.Settings {
	return providers.Settings{
		Provider: c.LLM.Provider,
		APIKey:   c.LLM.APIKey,
		Model:    c.LLM.Model,
		BaseURL:  c.LLM.BaseURL,
	}
}

// SandboxSettings converts the sandbox section, filling blanks with the
// sandbox defaults.
func (c *Config) SandboxSettings() sandbox.Config {
	sb := sandbox.DefaultConfig()
	if c.Sandbox.Mode != "" {
		sb.Mode = sandbox.Mode(strings.ToLower(c.Sandbox.Mode))
	}
	if c.Sandbox.Image != "" {
		sb.DockerImage = c.Sandbox.Image
	}
	if c.Sandbox.CPU != "" {
		sb.CPU = c.Sandbox.CPU
	}
	if c.Sandbox.Memory != "" {
		sb.Memory = c.Sandbox.Memory
	}
	if c.Sandbox.Python != "" {
		sb.Python = c.Sandbox.Python
	}
	if c.Sandbox.Timeout > 0 {
		sb.CmdTimeout = c.Sandbox.Timeout
	}
	return sb
}

// AnalystLimits converts the limits section. Zero values fall back to the
// orchestrator defaults.
func (c *Config) AnalystLimits() analyst.Limits {
	return analyst.Limits{
		MaxReplanRounds:        c.Limits.MaxReplanRounds,
		MaxPlanAttempts:        c.Limits.MaxPlanAttempts,
		MaxReplanParseAttempts: c.Limits.MaxReplanParseAttempts,
		MaxStepFailures:        c.Limits.MaxStepFailures,
		GenerationTimeout:      c.Limits.GenerationTimeout,
		ExecutionTimeout:       c.Limits.ExecutionTimeout,
		InterpretationTimeout:  c.Limits.InterpretationTimeout,
	}
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
	path      string
}

// NewManager creates a manager for <user config dir>/analyst/config.yaml.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	dir := filepath.Join(configDir, "analyst")
	return &Manager{configDir: dir, path: filepath.Join(dir, "config.yaml")}, nil
}

// NewManagerAt creates a manager for an explicit config file.
func NewManagerAt(path string) *Manager {
	return &Manager{configDir: filepath.Dir(path), path: path}
}

// Path returns the absolute path to the config file.
func (m *Manager) Path() string {
	return m.path
}

// Dir returns the directory holding the config file; the journal lives
// there by default.
func (m *Manager) Dir() string {
	return m.configDir
}

// Load reads the configuration from disk over Default(). A missing file is
// not an error. The result is validated but environment variables are not
// applied; call ApplyEnv for that.
func (m *Manager) Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}
	return cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write with 0600 permissions (read/write only by owner)
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return !os.IsNotExist(err)
}

// JournalPath returns the journal database path, defaulting to the config
// directory.
func (m *Manager) JournalPath(cfg *Config) string {
	if cfg.Journal.Path != "" {
		return cfg.Journal.Path
	}
	return filepath.Join(m.configDir, "journal.db")
}

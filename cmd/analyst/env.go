package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
	"github.com/ChamsBouzaiene/analyst/internal/config"
	"github.com/ChamsBouzaiene/analyst/internal/engine"
	"github.com/ChamsBouzaiene/analyst/internal/executor"
	"github.com/ChamsBouzaiene/analyst/internal/journal"
	"github.com/ChamsBouzaiene/analyst/internal/providers"
	"github.com/ChamsBouzaiene/analyst/internal/sandbox"
)

type runtimeOptions struct {
	DataFile    string
	SchemaJSON  string
	NoInterpret bool
	MetricsAddr string
}

func addRuntimeFlags(cmd *cobra.Command, opts *runtimeOptions) {
	cmd.Flags().StringVarP(&opts.DataFile, "file", "f", "", "Data file to analyse; its directory becomes the working directory")
	cmd.Flags().StringVar(&opts.SchemaJSON, "schema-json", "", `Known facts as a JSON object or a path to a JSON file, e.g. '{"schema": {"region": "str"}}'`)
	cmd.Flags().BoolVar(&opts.NoInterpret, "no-interpret", false, "Skip the analysis report after each successful step")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
}

type runtimeEnv struct {
	Config       *config.Config
	Manager      *config.Manager
	Logger       *slog.Logger
	Orchestrator *analyst.Orchestrator
	DataContext  analyst.DataContext
	WorkDir      string
	SandboxMode  sandbox.Mode

	store   *journal.Store
	index   *journal.ReportIndex
	metrics *http.Server
}

func (r *runtimeEnv) Close() {
	if r.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = r.metrics.Shutdown(ctx)
		cancel()
	}
	if r.index != nil {
		r.index.Close()
	}
	if r.store != nil {
		r.store.Close()
	}
}

// loadConfig reads the config file named by --config (or the default
// location) and overlays the environment.
func loadConfig(cmd *cobra.Command) (*config.Manager, *config.Config, error) {
	m, err := manager(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := m.Load()
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

// newLogger writes text logs to a terminal and JSON logs everywhere else.
func newLogger(cmd *cobra.Command) *slog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if !jsonLogs && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func prepareRuntimeEnv(ctx context.Context, cmd *cobra.Command, opts runtimeOptions) (*runtimeEnv, error) {
	logger := newLogger(cmd)
	m, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	dc, workDir, err := initialDataContext(opts.DataFile, opts.SchemaJSON)
	if err != nil {
		return nil, err
	}
	logger.Debug("working directory", "path", workDir)

	env := &runtimeEnv{Config: cfg, Manager: m, Logger: logger, DataContext: dc, WorkDir: workDir}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	llm, model, err := providers.NewLLMClient(cfg.ProviderSettings())
	if err != nil {
		return nil, err
	}
	// One limiter per process: concurrent batch requests share it.
	llm = engine.NewRateLimitedClient(llm, cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)
	logger.Info("LLM configured", "provider", cfg.LLM.Provider, "model", model)

	sbCfg := cfg.SandboxSettings()
	runner, mode, err := sandbox.NewDefaultRunner(ctx, sbCfg)
	if err != nil {
		return nil, err
	}
	env.SandboxMode = mode
	python := sbCfg.Python
	if mode == sandbox.ModeDocker {
		python = "python"
	}
	exec := executor.NewPythonExecutor(runner, workDir, python)
	exec.Timeout = cfg.Limits.ExecutionTimeout
	exec.Logger = logger
	logger.Info("sandbox ready", "mode", mode)

	hooks := []analyst.Hook{analyst.LoggerHook{L: logger}}

	addr := opts.MetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		reg := prometheus.NewRegistry()
		hooks = append(hooks, analyst.NewMetricsHook(reg))
		env.metrics = serveMetrics(addr, reg, logger)
	}

	if cfg.Journal.Enabled {
		store, index, err := openJournal(ctx, m, cfg)
		if err != nil {
			logger.Warn("journal disabled", "error", err)
		} else {
			env.store, env.index = store, index
			hooks = append(hooks, &journal.Hook{Store: store, Index: index, Logger: logger})
		}
	}

	o, err := analyst.NewOrchestratorBuilder().
		WithLLM(llm, model).
		WithMaxOutputTokens(cfg.LLM.MaxOutputTokens).
		WithExecutor(exec).
		WithLimits(cfg.AnalystLimits()).
		WithInterpretation(!opts.NoInterpret).
		WithHooks(hooks...).
		Build()
	if err != nil {
		return nil, err
	}
	env.Orchestrator = o
	ok = true
	return env, nil
}

// initialDataContext returns the starting data context and the working
// directory. The data file is referenced relative to the working directory
// so the same path works on the host and inside the container.
func initialDataContext(dataFile, schemaJSON string) (analyst.DataContext, string, error) {
	dc := analyst.DataContext{}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	if dataFile != "" {
		abs, err := filepath.Abs(dataFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve data file: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, "", fmt.Errorf("data file: %w", err)
		}
		if info.IsDir() {
			return nil, "", fmt.Errorf("data file is a directory: %s", abs)
		}
		workDir = filepath.Dir(abs)
		dc[analyst.KeyFilePath] = filepath.Base(abs)
	}

	if schemaJSON != "" {
		raw := []byte(schemaJSON)
		if !strings.HasPrefix(strings.TrimSpace(schemaJSON), "{") {
			if raw, err = os.ReadFile(schemaJSON); err != nil {
				return nil, "", fmt.Errorf("failed to read schema file: %w", err)
			}
		}
		var facts map[string]any
		if err := json.Unmarshal(raw, &facts); err != nil {
			return nil, "", fmt.Errorf("--schema-json must be a JSON object: %w", err)
		}
		for k, v := range facts {
			dc[k] = v
		}
	}
	return dc, workDir, nil
}

func openJournal(ctx context.Context, m *config.Manager, cfg *config.Config) (*journal.Store, *journal.ReportIndex, error) {
	path := m.JournalPath(cfg)
	store, err := journal.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	index, err := journal.OpenReportIndex(path + ".bleve")
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, index, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr, "path", "/metrics")
	return srv
}

// printOutcome writes the answer (or the failure statement) and the files
// the run produced.
func printOutcome(out *analyst.Outcome) {
	if out == nil {
		return
	}
	stdoutf("%s\n", strings.TrimSpace(out.Message()))

	seen := make(map[string]bool)
	var files []string
	if out.State != nil {
		for _, rec := range out.State.History {
			for _, f := range rec.Artifacts {
				if !seen[f] {
					seen[f] = true
					files = append(files, f)
				}
			}
		}
	}
	if len(files) > 0 {
		stdoutf("\nFiles written: %s\n", strings.Join(files, ", "))
	}
}

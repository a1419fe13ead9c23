// Package executor runs generated Python code for the analyst through a
// sandbox.Runner and reports a structured outcome.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
	"github.com/ChamsBouzaiene/analyst/internal/artifacts"
	"github.com/ChamsBouzaiene/analyst/internal/sandbox"
)

const (
	// ScriptDir is where scratch scripts are written, relative to the
	// working directory.
	ScriptDir = ".analyst/scripts"

	DefaultMaxOutput = 64 * 1024
)

// PythonExecutor is the analyst.CodeExecutor backed by a sandbox.Runner.
// Each Execute writes the code to a fresh script under ScriptDir, runs it
// with the working directory as cwd and deletes the script afterwards.
type PythonExecutor struct {
	Runner  sandbox.Runner
	WorkDir string
	// Python is the interpreter inside the runner: "python" for the Docker
	// images, usually "python3" on the host.
	Python    string
	Timeout   time.Duration // <=0 uses the runner default
	MaxOutput int           // per stream; <=0 uses DefaultMaxOutput
	// TrackArtifacts reports files created or modified while the code ran.
	TrackArtifacts bool
	Logger         *slog.Logger
}

var _ analyst.CodeExecutor = (*PythonExecutor)(nil)

// NewPythonExecutor returns an executor with artifact tracking enabled.
func NewPythonExecutor(runner sandbox.Runner, workDir, python string) *PythonExecutor {
	return &PythonExecutor{
		Runner:         runner,
		WorkDir:        workDir,
		Python:         python,
		MaxOutput:      DefaultMaxOutput,
		TrackArtifacts: true,
	}
}

// Execute runs code and never panics: runner errors and crashes become
// failed outcomes.
func (e *PythonExecutor) Execute(ctx context.Context, code string) (out analyst.ExecutionOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger().Error("python executor panic", "panic", r, "stack", string(debug.Stack()))
			out = analyst.ExecutionOutcome{Error: fmt.Sprintf("executor crashed: %v", r), ExitCode: -1}
		}
		out.Duration = time.Since(start)
	}()

	if strings.TrimSpace(code) == "" {
		return analyst.ExecutionOutcome{Error: "no code to execute", ExitCode: -1}
	}

	script, err := e.writeScript(code)
	if err != nil {
		return analyst.ExecutionOutcome{Error: err.Error(), ExitCode: -1}
	}
	defer os.Remove(filepath.Join(e.WorkDir, script))

	var watcher *artifacts.Watcher
	if e.TrackArtifacts {
		watcher, err = artifacts.NewWatcher(e.WorkDir, e.logger())
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			e.logger().Warn("artifact tracking disabled for this run", "error", err)
			watcher = nil
		}
	}
	stopped := false
	defer func() {
		if watcher != nil && !stopped {
			_, _ = watcher.Stop()
		}
	}()

	res, runErr := e.Runner.Run(ctx, sandbox.Command{
		Dir:       e.WorkDir,
		Name:      e.python(),
		Args:      []string{script},
		Env:       []string{"MPLBACKEND=Agg", "PYTHONUNBUFFERED=1", "PYTHONDONTWRITEBYTECODE=1"},
		Timeout:   e.Timeout,
		MaxOutput: e.maxOutput(),
	})

	if watcher != nil {
		stopped = true
		files, err := watcher.Stop()
		if err != nil {
			e.logger().Debug("artifact watcher stop", "error", err)
		}
		out.Artifacts = files
	}

	out.Stdout = res.Stdout
	out.ExitCode = res.Code
	out.TimedOut = res.TimedOut
	if res.Truncated {
		out.Stdout += fmt.Sprintf("\n... [output truncated at %d bytes]", e.maxOutput())
	}
	switch {
	case runErr != nil:
		out.Error = fmt.Sprintf("failed to run %s: %v", e.python(), runErr)
		if out.ExitCode == 0 {
			out.ExitCode = -1
		}
	case res.TimedOut:
		out.Error = strings.TrimSpace(res.Stderr)
	case res.Code != 0:
		out.Error = strings.TrimSpace(res.Stderr)
		if out.Error == "" {
			out.Error = fmt.Sprintf("exit status %d", res.Code)
		}
	default:
		out.Success = true
	}
	return out
}

// writeScript returns the script path relative to WorkDir, which is also
// its path inside the container.
func (e *PythonExecutor) writeScript(code string) (string, error) {
	rel := filepath.ToSlash(filepath.Join(ScriptDir, uuid.NewString()+".py"))
	abs := filepath.Join(e.WorkDir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create script dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	return rel, nil
}

func (e *PythonExecutor) python() string {
	if e.Python == "" {
		return "python3"
	}
	return e.Python
}

func (e *PythonExecutor) maxOutput() int {
	if e.MaxOutput <= 0 {
		return DefaultMaxOutput
	}
	return e.MaxOutput
}

func (e *PythonExecutor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

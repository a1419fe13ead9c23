package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/analyst/internal/sandbox"
)

// MockRunner is a mock implementation of sandbox.Runner.
type MockRunner struct {
	RunFunc func(ctx context.Context, cmd sandbox.Command) (sandbox.Result, error)
	Calls   []sandbox.Command
}

func (m *MockRunner) Run(ctx context.Context, cmd sandbox.Command) (sandbox.Result, error) {
	m.Calls = append(m.Calls, cmd)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, cmd)
	}
	return sandbox.Result{}, nil
}

func TestPythonExecutor_Success(t *testing.T) {
	dir := t.TempDir()
	code := "import pandas as pd\nprint('rows: 3')"
	var scriptBody string

	runner := &MockRunner{RunFunc: func(_ context.Context, cmd sandbox.Command) (sandbox.Result, error) {
		body, err := os.ReadFile(filepath.Join(cmd.Dir, cmd.Args[0]))
		require.NoError(t, err)
		scriptBody = string(body)
		require.NoError(t, os.WriteFile(filepath.Join(cmd.Dir, "chart.png"), []byte("png"), 0o644))
		return sandbox.Result{Stdout: "rows: 3\n"}, nil
	}}

	e := NewPythonExecutor(runner, dir, "python")
	e.Timeout = 30 * time.Second
	out := e.Execute(context.Background(), code)

	require.True(t, out.Success, out.Error)
	assert.Equal(t, "rows: 3\n", out.Stdout)
	assert.Equal(t, code, scriptBody)
	assert.Equal(t, []string{"chart.png"}, out.Artifacts)
	assert.Positive(t, out.Duration)

	require.Len(t, runner.Calls, 1)
	cmd := runner.Calls[0]
	assert.Equal(t, "python", cmd.Name)
	assert.True(t, strings.HasPrefix(cmd.Args[0], ScriptDir+"/"))
	assert.Contains(t, cmd.Env, "MPLBACKEND=Agg")
	assert.Equal(t, 30*time.Second, cmd.Timeout)
	assert.Equal(t, DefaultMaxOutput, cmd.MaxOutput)

	_, err := os.Stat(filepath.Join(dir, cmd.Args[0]))
	assert.True(t, os.IsNotExist(err), "scratch script must be removed")
}

func TestPythonExecutor_Failures(t *testing.T) {
	tests := []struct {
		name      string
		result    sandbox.Result
		err       error
		wantError string
		wantCode  int
		timedOut  bool
	}{
		{
			name:      "traceback",
			result:    sandbox.Result{Stderr: "Traceback...\nKeyError: 'region'\n", Code: 1},
			wantError: "Traceback...\nKeyError: 'region'",
			wantCode:  1,
		},
		{
			name:      "silent non-zero exit",
			result:    sandbox.Result{Code: 137},
			wantError: "exit status 137",
			wantCode:  137,
		},
		{
			name:      "runner error",
			err:       errors.New("docker daemon not accessible"),
			wantError: "failed to run python3: docker daemon not accessible",
			wantCode:  -1,
		},
		{
			name:      "timeout",
			result:    sandbox.Result{Stderr: "command timed out after 1s", Code: -1, TimedOut: true},
			wantError: "command timed out after 1s",
			wantCode:  -1,
			timedOut:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{RunFunc: func(context.Context, sandbox.Command) (sandbox.Result, error) {
				return tt.result, tt.err
			}}
			e := NewPythonExecutor(runner, t.TempDir(), "")
			e.TrackArtifacts = false

			out := e.Execute(context.Background(), "print(1)")
			assert.False(t, out.Success)
			assert.Equal(t, tt.wantError, out.Error)
			assert.Equal(t, tt.wantCode, out.ExitCode)
			assert.Equal(t, tt.timedOut, out.TimedOut)
		})
	}
}

func TestPythonExecutor_RecoversPanics(t *testing.T) {
	runner := &MockRunner{RunFunc: func(context.Context, sandbox.Command) (sandbox.Result, error) {
		panic("boom")
	}}
	out := NewPythonExecutor(runner, t.TempDir(), "python3").Execute(context.Background(), "print(1)")
	assert.False(t, out.Success)
	assert.Equal(t, "executor crashed: boom", out.Error)
}

func TestPythonExecutor_TruncatedOutput(t *testing.T) {
	runner := &MockRunner{RunFunc: func(_ context.Context, cmd sandbox.Command) (sandbox.Result, error) {
		assert.Equal(t, 8, cmd.MaxOutput)
		return sandbox.Result{Stdout: "12345678", Truncated: true}, nil
	}}
	e := NewPythonExecutor(runner, t.TempDir(), "python3")
	e.MaxOutput = 8
	out := e.Execute(context.Background(), "print('x' * 100)")
	require.True(t, out.Success)
	assert.Contains(t, out.Stdout, "[output truncated at 8 bytes]")
}

func TestPythonExecutor_EmptyCode(t *testing.T) {
	runner := &MockRunner{}
	out := NewPythonExecutor(runner, t.TempDir(), "python3").Execute(context.Background(), "  \n")
	assert.False(t, out.Success)
	assert.Equal(t, "no code to execute", out.Error)
	assert.Empty(t, runner.Calls)
}

func TestPythonExecutor_HostPython(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	dir := t.TempDir()
	e := NewPythonExecutor(sandbox.NewHostRunner(sandbox.DefaultConfig()), dir, python)

	out := e.Execute(context.Background(), "open('result.txt', 'w').write('42')\nprint(6 * 7)")
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "42\n", out.Stdout)
	assert.Equal(t, []string{"result.txt"}, out.Artifacts)

	out = e.Execute(context.Background(), "raise ValueError('bad column')")
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "ValueError: bad column")
	assert.Equal(t, 1, out.ExitCode)
}

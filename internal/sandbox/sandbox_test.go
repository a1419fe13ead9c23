package sandbox

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{max: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, _ = b.Write([]byte("defgh"))
	assert.Equal(t, 5, n, "writes report full length so the producer keeps going")
	assert.Equal(t, "abcde", b.String())
	assert.True(t, b.truncated)

	unlimited := &cappedBuffer{}
	_, _ = unlimited.Write([]byte("hello world"))
	assert.Equal(t, "hello world", unlimited.String())
	assert.False(t, unlimited.truncated)
}

func TestTimeoutFor(t *testing.T) {
	assert.Equal(t, time.Second, timeoutFor(Command{Timeout: time.Second}, Config{CmdTimeout: time.Minute}))
	assert.Equal(t, time.Minute, timeoutFor(Command{}, Config{CmdTimeout: time.Minute}))
	assert.Equal(t, defaultCmdTimeout, timeoutFor(Command{}, Config{}))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "AUTO": ModeAuto, "docker": ModeDocker, " host ": ModeHost} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("vm")
	assert.ErrorContains(t, err, "unknown sandbox mode")
}

func TestResourceLimits(t *testing.T) {
	mem, err := MemoryBytes("512m")
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), mem)

	mem, err = MemoryBytes("")
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024*1024), mem)

	_, err = MemoryBytes("lots")
	assert.Error(t, err)

	cpus, err := NanoCPUs("1.5")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000_000), cpus)

	_, err = NanoCPUs("-1")
	assert.Error(t, err)

	assert.NoError(t, DefaultConfig().Validate())
	bad := DefaultConfig()
	bad.Memory = "a lot"
	assert.Error(t, bad.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ANALYST_SANDBOX_MODE", "host")
	t.Setenv("ANALYST_DOCKER_IMAGE", "python:3.12-slim")
	t.Setenv("ANALYST_DOCKER_MEMORY", "2g")
	t.Setenv("ANALYST_EXEC_TIMEOUT", "30s")
	t.Setenv("ANALYST_PYTHON", "")

	c := DefaultConfig().ApplyEnv()
	assert.Equal(t, ModeHost, c.Mode)
	assert.Equal(t, "python:3.12-slim", c.DockerImage)
	assert.Equal(t, "2g", c.Memory)
	assert.Equal(t, 30*time.Second, c.CmdTimeout)
	assert.Equal(t, "python3", c.Python)

	t.Setenv("ANALYST_SANDBOX_MODE", "vm")
	t.Setenv("ANALYST_EXEC_TIMEOUT", "soon")
	c = DefaultConfig().ApplyEnv()
	assert.Equal(t, ModeAuto, c.Mode)
	assert.Equal(t, defaultCmdTimeout, c.CmdTimeout)
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestHostRunner_Run(t *testing.T) {
	requireShell(t)
	r := NewHostRunner(DefaultConfig())
	dir := t.TempDir()

	res, err := r.Run(context.Background(), Command{
		Dir:  dir,
		Name: "sh",
		Args: []string{"-c", `echo "$GREETING from $(pwd)"; echo oops >&2`},
		Env:  []string{"GREETING=hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Code)
	assert.Contains(t, res.Stdout, "hello from")
	assert.Equal(t, "oops\n", res.Stderr)
	assert.False(t, res.TimedOut)
}

func TestHostRunner_NonZeroExit(t *testing.T) {
	requireShell(t)
	res, err := NewHostRunner(DefaultConfig()).Run(context.Background(), Command{
		Dir:  t.TempDir(),
		Name: "sh",
		Args: []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Code)
}

func TestHostRunner_Timeout(t *testing.T) {
	requireShell(t)
	start := time.Now()
	res, err := NewHostRunner(DefaultConfig()).Run(context.Background(), Command{
		Dir:     t.TempDir(),
		Name:    "sh",
		Args:    []string{"-c", "sleep 10"},
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.Code)
	assert.Contains(t, res.Stderr, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHostRunner_MaxOutput(t *testing.T) {
	requireShell(t)
	res, err := NewHostRunner(DefaultConfig()).Run(context.Background(), Command{
		Dir:       t.TempDir(),
		Name:      "sh",
		Args:      []string{"-c", "printf 0123456789"},
		MaxOutput: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, "0123", res.Stdout)
	assert.True(t, res.Truncated)
}

func TestHostRunner_MissingBinary(t *testing.T) {
	_, err := NewHostRunner(DefaultConfig()).Run(context.Background(), Command{
		Dir:  t.TempDir(),
		Name: "definitely-not-a-real-binary-xyz",
	})
	assert.Error(t, err)
}

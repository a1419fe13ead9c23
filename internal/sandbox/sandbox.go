// Package sandbox runs commands for generated code, either inside a Docker
// container or directly on the host.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout    string
	Stderr    string
	Code      int
	TimedOut  bool
	Truncated bool // stdout or stderr hit Command.MaxOutput
}

// Command describes one process to run.
type Command struct {
	Dir     string // working directory on the host; mounted as /workspace in Docker
	Name    string // executable, e.g. "python3"
	Args    []string
	Env     []string      // extra KEY=VALUE pairs
	Timeout time.Duration // <=0 uses the runner default
	// MaxOutput caps stdout and stderr separately, in bytes. Zero means no cap.
	MaxOutput int
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v (dir=%s)", c.Name, c.Args, c.Dir)
}

// Runner runs a command in a sandboxed environment. A non-nil error means
// the command could not be run or waited for; a command that ran and failed
// is reported through Result.Code.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Result, error) { return f(ctx, cmd) }

// cappedBuffer keeps at most max bytes and remembers whether it dropped any.
type cappedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.max <= 0 {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	room := b.max - len(b.buf)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string { return string(b.buf) }

func timeoutFor(cmd Command, cfg Config) time.Duration {
	if cmd.Timeout > 0 {
		return cmd.Timeout
	}
	if cfg.CmdTimeout > 0 {
		return cfg.CmdTimeout
	}
	return defaultCmdTimeout
}

//go:build !windows
// +build !windows

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// HostRunner runs commands directly on the host machine without isolation.
// It should only be used when Docker is unavailable or explicitly requested.
type HostRunner struct {
	config Config
}

// NewHostRunner creates a host runner.
func NewHostRunner(config Config) *HostRunner {
	return &HostRunner{config: config}
}

// Run runs cmd in cmd.Dir. The whole process group is killed when the
// timeout expires or ctx is cancelled.
func (r *HostRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	timeout := timeoutFor(cmd, r.config)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	// Create a new process group so we can kill all child processes on cancel
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := &cappedBuffer{max: cmd.MaxOutput}
	stderr := &cappedBuffer{max: cmd.MaxOutput}
	c.Stdout = stdout
	c.Stderr = stderr

	if err := c.Start(); err != nil {
		return Result{}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			if c.Process != nil {
				_ = syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
			}
		case <-done:
		}
	}()

	waitErr := c.Wait()
	close(done)

	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.Code = -1
		if res.Stderr == "" {
			res.Stderr = fmt.Sprintf("command timed out after %s", timeout)
		}
		return res, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Code = exitErr.ExitCode()
			return res, nil
		}
		res.Code = 1
		return res, waitErr
	}
	return res, nil
}

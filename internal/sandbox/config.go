package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

const (
	// DefaultImage ships pandas, numpy, matplotlib and seaborn.
	DefaultImage      = "quay.io/jupyter/scipy-notebook:latest"
	defaultCmdTimeout = 2 * time.Minute
	defaultMemory     = "1g"
	defaultCPU        = "2"
)

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	DockerImage string        // image used for every container
	CPU         string        // CPU limit, e.g. "2" or "1.5"
	Memory      string        // memory limit, e.g. "1g" or "512m"
	Python      string        // interpreter for host mode
	CmdTimeout  time.Duration // default command timeout
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeAuto,
		DockerImage: DefaultImage,
		CPU:         defaultCPU,
		Memory:      defaultMemory,
		Python:      "python3",
		CmdTimeout:  defaultCmdTimeout,
	}
}

// ParseMode validates a mode string. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "docker":
		return ModeDocker, nil
	case "host":
		return ModeHost, nil
	default:
		return "", fmt.Errorf("unknown sandbox mode %q (want docker, host or auto)", s)
	}
}

// ApplyEnv overlays ANALYST_SANDBOX_MODE, ANALYST_DOCKER_IMAGE,
// ANALYST_DOCKER_CPU, ANALYST_DOCKER_MEMORY, ANALYST_PYTHON and
// ANALYST_EXEC_TIMEOUT onto c. Invalid values are reported and ignored.
func (c Config) ApplyEnv() Config {
	if v := os.Getenv("ANALYST_SANDBOX_MODE"); v != "" {
		if m, err := ParseMode(v); err == nil {
			c.Mode = m
		} else {
			slog.Warn("ignoring ANALYST_SANDBOX_MODE", "error", err)
		}
	}
	if v := os.Getenv("ANALYST_DOCKER_IMAGE"); v != "" {
		c.DockerImage = v
	}
	if v := os.Getenv("ANALYST_DOCKER_CPU"); v != "" {
		c.CPU = v
	}
	if v := os.Getenv("ANALYST_DOCKER_MEMORY"); v != "" {
		c.Memory = v
	}
	if v := os.Getenv("ANALYST_PYTHON"); v != "" {
		c.Python = v
	}
	if v := os.Getenv("ANALYST_EXEC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.CmdTimeout = d
		} else {
			slog.Warn("ignoring invalid ANALYST_EXEC_TIMEOUT", "value", v)
		}
	}
	return c
}

// Validate checks the resource limits.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if _, err := MemoryBytes(c.Memory); err != nil {
		return err
	}
	if _, err := NanoCPUs(c.CPU); err != nil {
		return err
	}
	return nil
}

// MemoryBytes parses a human-readable memory limit ("1g", "512m", "2GiB").
func MemoryBytes(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		s = defaultMemory
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid memory limit %q", s)
	}
	return n, nil
}

// NanoCPUs parses a CPU limit ("2", "0.5") into Docker nano CPUs.
func NanoCPUs(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		s = defaultCPU
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid cpu limit %q", s)
	}
	return int64(v * 1e9), nil
}

// IsDockerAvailable checks if Docker is available and accessible.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

// NewDefaultRunner creates a runner for config.Mode:
//   - "docker": use Docker, fail if unavailable
//   - "host": run on the host (no isolation)
//   - "auto": use Docker if available, fall back to host
func NewDefaultRunner(ctx context.Context, config Config) (Runner, Mode, error) {
	switch config.Mode {
	case ModeDocker:
		r, err := NewDockerRunner(config)
		if err != nil {
			return nil, "", err
		}
		return r, ModeDocker, nil

	case ModeHost:
		slog.Warn("running generated code on the host without sandboxing")
		return NewHostRunner(config), ModeHost, nil

	case ModeAuto, "":
		if IsDockerAvailable(ctx) {
			r, err := NewDockerRunner(config)
			if err == nil {
				return r, ModeDocker, nil
			}
			slog.Warn("docker available but runner creation failed, using host", "error", err)
		} else {
			slog.Warn("docker not available, running generated code on the host without sandboxing")
		}
		return NewHostRunner(config), ModeHost, nil

	default:
		return nil, "", fmt.Errorf("unknown runner mode: %s", config.Mode)
	}
}

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

const containerWorkdir = "/workspace"

// DockerRunner runs commands in isolated Docker containers: no network,
// read-only root filesystem, all capabilities dropped, and only the working
// directory mounted writable.
type DockerRunner struct {
	client *client.Client
	config Config
	memory int64
	cpus   int64
}

// NewDockerRunner creates a new Docker-based runner.
func NewDockerRunner(config Config) (*DockerRunner, error) {
	memory, err := MemoryBytes(config.Memory)
	if err != nil {
		return nil, err
	}
	cpus, err := NanoCPUs(config.CPU)
	if err != nil {
		return nil, err
	}
	if config.DockerImage == "" {
		config.DockerImage = DefaultImage
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Verify Docker daemon is accessible
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	return &DockerRunner{client: cli, config: config, memory: memory, cpus: cpus}, nil
}

// Image returns the image every container is created from.
func (r *DockerRunner) Image() string { return r.config.DockerImage }

// Run runs cmd in a fresh container with cmd.Dir mounted at /workspace.
func (r *DockerRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	timeout := timeoutFor(cmd, r.config)

	if err := r.ensureImage(ctx, r.config.DockerImage); err != nil {
		return Result{}, fmt.Errorf("failed to ensure image %s: %w", r.config.DockerImage, err)
	}

	absDir, err := filepath.Abs(cmd.Dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	containerConfig := &container.Config{
		Image:           r.config.DockerImage,
		Cmd:             append([]string{cmd.Name}, cmd.Args...),
		WorkingDir:      containerWorkdir,
		User:            "1000:100", // jovyan:users in the jupyter images
		Env:             append([]string{"HOME=/tmp", "MPLCONFIGDIR=/tmp/matplotlib"}, cmd.Env...),
		NetworkDisabled: true,
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: absDir,
				Target: containerWorkdir,
			},
		},
		Resources: container.Resources{
			Memory:   r.memory,
			NanoCPUs: r.cpus,
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 1024},
			},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=256m",
		},
	}

	createResp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := createResp.ID

	// Removed here rather than with AutoRemove so logs can still be read
	// after the process exits.
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	res := Result{}
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.client.ContainerKill(killCtx, containerID, "SIGKILL")
		killCancel()
		res.Code = -1
		res.TimedOut = errors.Is(execCtx.Err(), context.DeadlineExceeded)
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("container wait error: %w", err)
		}
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return Result{}, fmt.Errorf("container wait error: %s", status.Error.Message)
		}
		res.Code = int(status.StatusCode)
	}

	// Logs are read with a fresh context: after a timeout execCtx is done,
	// but the partial output is still wanted.
	logsCtx, logsCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer logsCancel()
	logs, err := r.client.ContainerLogs(logsCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return res, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	stdout := &cappedBuffer{max: cmd.MaxOutput}
	stderr := &cappedBuffer{max: cmd.MaxOutput}
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil && !errors.Is(err, io.EOF) {
		return res, fmt.Errorf("failed to demultiplex container logs: %w", err)
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.truncated || stderr.truncated
	if res.TimedOut && res.Stderr == "" {
		res.Stderr = fmt.Sprintf("command timed out after %s", timeout)
	}
	return res, nil
}

// ensureImage checks if the image exists locally, and pulls it if not.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// Drain the pull output (required for pull to complete)
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"dockexec/pkg/runtime"
)

// ManagedLabel marks every container created by dockexec.
const ManagedLabel = "dockexec.managed"

// dockerAPI is the subset of the Docker client used by DockerRuntime.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// DockerRuntime implements the ContainerRuntime interface using Docker client.
type DockerRuntime struct {
	client dockerAPI
}

var _ runtime.ContainerRuntime = (*DockerRuntime)(nil)

// NewDockerRuntime creates a new DockerRuntime instance using client.FromEnv.
func NewDockerRuntime(ctx context.Context) (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	// Check if Docker daemon is accessible
	if _, err := dockerClient.Ping(ctx); err != nil {
		dockerClient.Close()
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}

	return newDockerRuntime(dockerClient), nil
}

func newDockerRuntime(api dockerAPI) *DockerRuntime {
	return &DockerRuntime{client: api}
}

// Close releases the underlying client connection.
func (d *DockerRuntime) Close() error {
	return d.client.Close()
}

// CreateContainer creates a stopped container and returns its ID.
func (d *DockerRuntime) CreateContainer(ctx context.Context, opts runtime.RunOptions) (string, error) {
	slog.Debug("Creating container", "image", opts.Image, "command", opts.Command, "name", opts.Name)

	var mounts []mount.Mount
	for _, m := range opts.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	labels := map[string]string{ManagedLabel: "true"}
	maps.Copy(labels, opts.Labels)

	containerConfig := &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Command,
		Env:          opts.Env,
		WorkingDir:   opts.WorkingDirectory,
		Labels:       labels,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}

	hostConfig := &container.HostConfig{
		Mounts: mounts,
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, opts.Name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s: %w", runtime.ErrImageNotFound, opts.Image, err)
		}
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	for _, warning := range resp.Warnings {
		slog.Warn("Docker warning on container create", "containerID", resp.ID, "warning", warning)
	}

	return resp.ID, nil
}

// StartContainer starts a created container. A failed start leaves the container in place;
// removing it is the caller's responsibility.
func (d *DockerRuntime) StartContainer(ctx context.Context, containerID string) error {
	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// WaitContainer waits for the container to stop running and returns its exit code.
func (d *DockerRuntime) WaitContainer(ctx context.Context, containerID string) (int64, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return -1, fmt.Errorf("failed to wait for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, fmt.Errorf("daemon reported wait error: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// StopContainer asks the daemon to stop the container, killing it after gracePeriod.
func (d *DockerRuntime) StopContainer(ctx context.Context, containerID string, gracePeriod time.Duration) error {
	timeout := int(math.Ceil(gracePeriod.Seconds()))
	if err := d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", runtime.ErrContainerNotFound, containerID)
		}
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// ContainerLogs reads the complete stdout and stderr of the container.
func (d *DockerRuntime) ContainerLogs(ctx context.Context, containerID string) (runtime.Logs, error) {
	reader, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return runtime.Logs{}, fmt.Errorf("failed to get container logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(&stdout, &stderr, reader)
	logs := runtime.Logs{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return logs, fmt.Errorf("failed to read container logs: %w", err)
	}

	return logs, nil
}

// RemoveContainer force-removes the container together with its anonymous volumes.
func (d *DockerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", runtime.ErrContainerNotFound, containerID)
		}
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

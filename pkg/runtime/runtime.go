// Located in pkg/runtime/runtime.go
package runtime

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrImageNotFound is returned by CreateContainer when the image is not available to the daemon.
	ErrImageNotFound = errors.New("image not found")

	// ErrContainerNotFound is returned when the daemon no longer knows the container.
	ErrContainerNotFound = errors.New("container not found")
)

// Mount describes a bind mount from the host into the container.
type Mount struct {
	Source   string `validate:"required"`
	Target   string `validate:"required,startswith=/"`
	ReadOnly bool
}

// RunOptions defines the parameters for creating a container.
type RunOptions struct {
	Name             string
	Image            string
	Command          []string
	Env              []string
	Mounts           []Mount
	Labels           map[string]string
	WorkingDirectory string
}

// Logs holds the demultiplexed output of a container.
type Logs struct {
	Stdout string
	Stderr string
}

// ContainerRuntime defines the contract for container lifecycle operations.
// Implementations must be safe for concurrent use by independent sessions.
type ContainerRuntime interface {
	CreateContainer(ctx context.Context, opts RunOptions) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	// WaitContainer blocks until the container's main process exits or ctx is done.
	WaitContainer(ctx context.Context, containerID string) (int64, error)
	StopContainer(ctx context.Context, containerID string, gracePeriod time.Duration) error
	// ContainerLogs returns whatever output was read, even when err is non-nil.
	ContainerLogs(ctx context.Context, containerID string) (Logs, error)
	RemoveContainer(ctx context.Context, containerID string) error
}

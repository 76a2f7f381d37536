package app

import (
	"context"
	"fmt"

	apperrors "dockexec/internal/errors"
	dockerruntime "dockexec/internal/runtime"
	"dockexec/pkg/runtime"
)

// Runtime is a container runtime that holds a connection to release after use.
type Runtime interface {
	runtime.ContainerRuntime
	Close() error
}

// Factory creates container runtimes by name.
type Factory interface {
	GetRuntime(ctx context.Context, name string) (Runtime, error)
}

// RuntimeFactory resolves the runtime named in the configuration to a concrete
// implementation, keeping the orchestrator independent of the Docker client.
type RuntimeFactory struct{}

// NewRuntimeFactory creates a new instance of RuntimeFactory.
func NewRuntimeFactory() *RuntimeFactory {
	return &RuntimeFactory{}
}

// GetRuntime connects to the runtime identified by name.
func (f *RuntimeFactory) GetRuntime(ctx context.Context, name string) (Runtime, error) {
	switch name {
	case "docker":
		rt, err := dockerruntime.NewDockerRuntime(ctx)
		if err != nil {
			return nil, apperrors.NewDaemonError(
				"Cannot reach the Docker daemon",
				err.Error(),
				"Start Docker or point DOCKER_HOST at a running daemon",
				err,
			)
		}
		return rt, nil
	default:
		return nil, fmt.Errorf("unsupported runtime: %s", name)
	}
}

// Package runner drives a single container through create, start, wait, log
// collection and removal, removing the container on every exit path.
package runner

import (
	"context"
	"log/slog"
	"time"

	"dockexec/pkg/runtime"
)

const (
	DefaultGracePeriod    = 10 * time.Second
	DefaultCleanupTimeout = 30 * time.Second
)

// Config tunes a ContainerRunner. Zero values select the defaults.
type Config struct {
	// GracePeriod is how long a stop request waits before the daemon kills the container.
	GracePeriod time.Duration
	// CleanupTimeout bounds each post-run daemon call (stop, logs, remove).
	CleanupTimeout time.Duration
	Logger         *slog.Logger
}

// ContainerRunner executes requests against an injected container runtime.
// It holds no per-run state and may be shared by concurrent callers.
type ContainerRunner struct {
	containerRuntime runtime.ContainerRuntime
	gracePeriod      time.Duration
	cleanupTimeout   time.Duration
	logger           *slog.Logger
}

// NewContainerRunner creates a new ContainerRunner.
func NewContainerRunner(containerRuntime runtime.ContainerRuntime, cfg Config) *ContainerRunner {
	r := &ContainerRunner{
		containerRuntime: containerRuntime,
		gracePeriod:      cfg.GracePeriod,
		cleanupTimeout:   cfg.CleanupTimeout,
		logger:           cfg.Logger,
	}
	if r.gracePeriod <= 0 {
		r.gracePeriod = DefaultGracePeriod
	}
	if r.cleanupTimeout <= 0 {
		r.cleanupTimeout = DefaultCleanupTimeout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Execute runs req in a new container and blocks until the container has been removed.
//
// Errors are returned only when the run could not be classified: an invalid
// request, a rejected create, or a rejected start. Once the container is
// running, every ending (including timeout and cancellation of ctx) is reported
// as an Outcome. A failed removal is attached to the Outcome as CleanupErr, or
// joined to the returned error when there is no Outcome.
func (r *ContainerRunner) Execute(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s := &session{
		containerRuntime: r.containerRuntime,
		logger:           r.logger,
		req:              req.clone(),
		gracePeriod:      r.gracePeriod,
		cleanupTimeout:   r.cleanupTimeout,
		state:            StateIdle,
	}
	return s.run(ctx)
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "dockexec/internal/errors"
	"dockexec/pkg/runtime"
)

// session is the state of one Execute call. It owns at most one container.
type session struct {
	containerRuntime runtime.ContainerRuntime
	logger           *slog.Logger
	req              Request
	gracePeriod      time.Duration
	cleanupTimeout   time.Duration

	state       State
	containerID string
	removed     bool
	started     time.Time

	// postRun is the single deadline shared by stop, log collection and removal.
	postRun       context.Context
	cancelPostRun context.CancelFunc
}

type waitResult struct {
	exitCode int64
	err      error
}

func (s *session) transition(to State) {
	s.logger.Debug("Container state transition", "from", s.state.String(), "to", to.String())
	s.state = to
}

func (s *session) run(ctx context.Context) (outcome *Outcome, err error) {
	s.started = time.Now()
	s.logger.Info("Running container", "image", s.req.Image, "command", s.req.Command, "timeout", s.req.Timeout)

	containerID, err := s.containerRuntime.CreateContainer(ctx, s.req.runOptions())
	if err != nil {
		s.transition(StateCreationFailed)
		return nil, creationError(s.req.Image, err)
	}

	s.containerID = containerID
	s.logger = s.logger.With("containerID", shortID(containerID))
	s.transition(StateCreated)

	defer func() {
		cleanupErr := s.cleanup(ctx)
		if cleanupErr == nil {
			return
		}
		switch {
		case outcome != nil:
			outcome.CleanupErr = cleanupErr
		case err != nil:
			err = errors.Join(err, cleanupErr)
		}
	}()

	if err := s.containerRuntime.StartContainer(ctx, containerID); err != nil {
		s.transition(StateStartFailed)
		return nil, apperrors.NewStartError(
			fmt.Sprintf("Failed to start container from image %s", s.req.Image),
			err.Error(),
			"Check that the command exists in the image and is executable",
			err,
		)
	}
	s.transition(StateRunning)

	branch, exitCode, waitErr := s.await(ctx)
	s.transition(branch)

	postRun := s.beginPostRun(ctx)
	if branch == StateTimedOut || branch == StateCancelled {
		s.stop(postRun)
	}

	logs, logsErr := s.containerRuntime.ContainerLogs(postRun, s.containerID)
	outcome = s.classify(branch, exitCode, waitErr, logs, logsErr)

	s.logger.Info("Container finished", "state", branch.String(), "exitCode", outcome.ExitCode, "duration", outcome.Duration)
	return outcome, nil
}

// await races the container's exit against the request timeout and ctx.
// The wait goroutine is released when await returns.
func (s *session) await(ctx context.Context) (State, int64, error) {
	var waitCtx context.Context
	var cancel context.CancelFunc
	if s.req.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, s.req.Timeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	results := make(chan waitResult, 1)
	go func() {
		exitCode, err := s.containerRuntime.WaitContainer(waitCtx, s.containerID)
		results <- waitResult{exitCode: exitCode, err: err}
	}()

	select {
	case res := <-results:
		if res.err == nil {
			return StateCompleted, res.exitCode, nil
		}
		// The wait was aborted by the race itself, not by the daemon.
		if waitCtx.Err() != nil {
			return interruptedState(ctx), ExitCodeUnknown, nil
		}
		return StateRuntimeError, res.exitCode, res.err
	case <-waitCtx.Done():
		return interruptedState(ctx), ExitCodeUnknown, nil
	}
}

func interruptedState(ctx context.Context) State {
	if ctx.Err() != nil {
		return StateCancelled
	}
	return StateTimedOut
}

// beginPostRun starts the deadline for everything after the wait: it survives
// cancellation of ctx and allows one grace period plus the cleanup timeout in total.
func (s *session) beginPostRun(ctx context.Context) context.Context {
	s.postRun, s.cancelPostRun = context.WithTimeout(context.WithoutCancel(ctx), s.gracePeriod+s.cleanupTimeout)
	return s.postRun
}

func (s *session) stop(ctx context.Context) {
	err := s.containerRuntime.StopContainer(ctx, s.containerID, s.gracePeriod)
	if err != nil && !errors.Is(err, runtime.ErrContainerNotFound) {
		s.logger.Warn("Failed to stop container", "error", err)
	}
}

func (s *session) classify(branch State, exitCode int64, waitErr error, logs runtime.Logs, logsErr error) *Outcome {
	outcome := &Outcome{
		ContainerID: s.containerID,
		Stdout:      logs.Stdout,
		Stderr:      logs.Stderr,
		State:       branch,
		Duration:    time.Since(s.started),
	}

	switch branch {
	case StateCompleted:
		outcome.ExitCode = exitCode
		if exitCode != 0 {
			outcome.Reason = ReasonNonZeroExit
		}
	case StateTimedOut:
		outcome.ExitCode = ExitCodeTimedOut
		outcome.Reason = ReasonTimedOut
	case StateCancelled:
		outcome.ExitCode = ExitCodeUnknown
		outcome.Reason = ReasonCancelled
	case StateRuntimeError:
		outcome.ExitCode = exitCode
		outcome.Reason = ReasonRuntimeError
		outcome.Err = apperrors.NewRuntimeError(
			"Failed while waiting for the container to exit",
			waitErr.Error(),
			"Check the daemon logs; the command may have been killed outside dockexec",
			waitErr,
		)
	}

	if logsErr != nil {
		s.logger.Warn("Failed to collect container logs", "error", logsErr)
		logsRunErr := apperrors.NewRuntimeError("Failed to collect container logs", logsErr.Error(), "", logsErr)
		if outcome.Err == nil {
			outcome.Err = logsRunErr
		} else {
			outcome.Err = errors.Join(outcome.Err, logsRunErr)
		}
		if outcome.Reason == ReasonNone {
			outcome.Reason = ReasonRuntimeError
		}
	}

	return outcome
}

// cleanup removes the container. It makes at most one remove call per session.
func (s *session) cleanup(ctx context.Context) error {
	if s.removed {
		return nil
	}
	s.removed = true

	// Without a post-run deadline (start failed) removal gets its own.
	removeCtx, cancel := s.postRun, s.cancelPostRun
	if removeCtx == nil {
		removeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	}
	defer cancel()

	err := s.containerRuntime.RemoveContainer(removeCtx, s.containerID)
	s.transition(StateCleaned)

	if err == nil || errors.Is(err, runtime.ErrContainerNotFound) {
		s.logger.Debug("Container removed")
		return nil
	}

	s.logger.Error("Failed to remove container", "error", err)
	return apperrors.NewCleanupError(
		fmt.Sprintf("Failed to remove container %s", shortID(s.containerID)),
		err.Error(),
		fmt.Sprintf("Remove it manually with 'docker rm -f %s'", s.containerID),
		err,
	)
}

func creationError(image string, err error) error {
	suggestion := "Check that the container daemon is reachable and the image reference is valid"
	if errors.Is(err, runtime.ErrImageNotFound) {
		suggestion = fmt.Sprintf("Pull the image first with 'docker pull %s'", image)
	}
	return apperrors.NewCreationError(
		fmt.Sprintf("Failed to create container from image %s", image),
		err.Error(),
		suggestion,
		err,
	)
}

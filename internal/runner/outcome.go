package runner

import (
	"fmt"
	"time"
)

// State is a step of the container lifecycle driven by a session.
type State int

const (
	StateIdle State = iota
	StateCreated
	StateRunning
	StateCompleted
	StateTimedOut
	StateCancelled
	StateRuntimeError
	StateCreationFailed
	StateStartFailed
	StateCleaned
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateCreated:        "created",
	StateRunning:        "running",
	StateCompleted:      "completed",
	StateTimedOut:       "timed_out",
	StateCancelled:      "cancelled",
	StateRuntimeError:   "runtime_error",
	StateCreationFailed: "creation_failed",
	StateStartFailed:    "start_failed",
	StateCleaned:        "cleaned",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Reason tags why a run did not succeed. It is empty for successful runs.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNonZeroExit  Reason = "non_zero_exit"
	ReasonTimedOut     Reason = "timed_out"
	ReasonCancelled    Reason = "cancelled"
	ReasonRuntimeError Reason = "runtime_error"
)

const (
	// ExitCodeTimedOut is reported when the timeout fired before the command exited.
	ExitCodeTimedOut int64 = 124
	// ExitCodeUnknown is reported when no exit status could be obtained.
	ExitCodeUnknown int64 = -1
)

// Outcome is the classified result of a run that reached the running state.
type Outcome struct {
	ContainerID string
	Stdout      string
	Stderr      string
	ExitCode    int64
	Reason      Reason
	// State is the branch the wait resolved to: completed, timed out, cancelled or runtime error.
	State State
	// Err is the underlying failure for ReasonRuntimeError, or a log collection
	// failure on any branch.
	Err error
	// CleanupErr is set when removing the container failed. It never changes Reason.
	CleanupErr error
	Duration   time.Duration
}

// Succeeded reports whether the command exited with status 0 before any timeout.
func (o *Outcome) Succeeded() bool {
	return o.Reason == ReasonNone
}

func (o *Outcome) String() string {
	if o.Succeeded() {
		return fmt.Sprintf("container %s succeeded in %s", shortID(o.ContainerID), o.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("container %s failed (%s, exit code %d) after %s",
		shortID(o.ContainerID), o.Reason, o.ExitCode, o.Duration.Round(time.Millisecond))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

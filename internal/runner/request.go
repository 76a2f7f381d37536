package runner

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	apperrors "dockexec/internal/errors"
	"dockexec/internal/validation"
	"dockexec/pkg/runtime"
)

// Request describes a single command to run in a fresh container.
type Request struct {
	// Name is the container name; empty lets the daemon choose one.
	Name    string
	Image   string   `validate:"required"`
	Command []string `validate:"required,min=1"`
	// Timeout bounds the wait for the command to exit. Zero waits forever.
	Timeout    time.Duration     `validate:"gte=0"`
	Env        []string          `validate:"dive,envvar"`
	WorkingDir string
	Mounts     []runtime.Mount `validate:"dive"`
	Labels     map[string]string
}

// Validate checks the request without contacting the runtime.
func (r Request) Validate() error {
	if err := validation.Struct(r); err != nil {
		return apperrors.NewInvalidRequestError(
			"Invalid run request",
			err.Error(),
			"Provide an image and a command whose first element is the executable",
			err,
		)
	}

	if strings.TrimSpace(r.Command[0]) == "" {
		err := errors.New("command executable is empty")
		return apperrors.NewInvalidRequestError(
			"Invalid run request",
			err.Error(),
			"The first element of the command must name the program to run",
			err,
		)
	}

	return nil
}

func (r Request) clone() Request {
	r.Command = slices.Clone(r.Command)
	r.Env = slices.Clone(r.Env)
	r.Mounts = slices.Clone(r.Mounts)
	r.Labels = maps.Clone(r.Labels)
	return r
}

func (r Request) runOptions() runtime.RunOptions {
	return runtime.RunOptions{
		Name:             r.Name,
		Image:            r.Image,
		Command:          r.Command,
		Env:              r.Env,
		Mounts:           r.Mounts,
		Labels:           r.Labels,
		WorkingDirectory: r.WorkingDir,
	}
}

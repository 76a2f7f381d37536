// Package app wires configuration, job files and the container runner into
// the commands exposed by the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"dockexec/internal/config"
	"dockexec/internal/parser"
	"dockexec/internal/runner"
	"dockexec/internal/ui"
	"dockexec/pkg/job"
	"dockexec/pkg/runtime"
)

const (
	// ContainerNamePrefix prefixes generated container names.
	ContainerNamePrefix = "dockexec-"
	// RunIDLabel carries the run ID on the container.
	RunIDLabel = "dockexec.run-id"
	// JobLabel carries the job name on containers started from a job file.
	JobLabel = "dockexec.job"

	// ExitCodeFailure is the process exit code for errors without a container status.
	ExitCodeFailure = 1
	// ExitCodeInterrupted is the process exit code when the run was cancelled.
	ExitCodeInterrupted = 130
)

// Options controls a single Run or Exec call.
type Options struct {
	Config  *config.Config
	Factory Factory
	Console *ui.Console
	Logger  *slog.Logger
	// DryRun validates and prints the request without contacting the runtime.
	DryRun bool
	// RecordPath, when set, receives a JSON RunRecord after the run.
	RecordPath string
	// GracePeriod overrides Config.GracePeriod when positive.
	GracePeriod time.Duration
}

func (o Options) withDefaults() Options {
	if o.Config == nil {
		o.Config = config.Default()
	}
	if o.Factory == nil {
		o.Factory = NewRuntimeFactory()
	}
	if o.Console == nil {
		o.Console = ui.NewConsole()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = o.Config.GracePeriod
	}
	return o
}

// Run executes req in a fresh container and relays its output to the console.
// A nil Outcome with a nil error means the run was a dry run.
func Run(ctx context.Context, req runner.Request, opts Options) (*runner.Outcome, error) {
	return run(ctx, req, "", opts.withDefaults())
}

// Exec parses the job file at jobPath and runs it.
func Exec(ctx context.Context, jobPath string, opts Options) (*runner.Outcome, error) {
	j, err := parser.Parse(jobPath)
	if err != nil {
		return nil, err
	}

	// Flag beats job file beats configuration.
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = j.Spec.GracePeriod
	}
	opts = opts.withDefaults()
	opts.Logger.Info("Job parsed successfully", "name", j.Metadata.Name, "image", j.Spec.Image)

	return run(ctx, RequestFromJob(j), j.Metadata.Name, opts)
}

// RequestFromJob maps a parsed job onto a runner request.
func RequestFromJob(j *job.Job) runner.Request {
	mounts := make([]runtime.Mount, 0, len(j.Spec.Mounts))
	for _, m := range j.Spec.Mounts {
		mounts = append(mounts, runtime.Mount{Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}

	labels := maps.Clone(j.Metadata.Labels)
	if labels == nil {
		labels = make(map[string]string)
	}
	labels[JobLabel] = j.Metadata.Name

	return runner.Request{
		Image:      j.Spec.Image,
		Command:    j.Spec.Command,
		Timeout:    j.Spec.Timeout,
		Env:        j.Spec.Env,
		WorkingDir: j.Spec.WorkingDir,
		Mounts:     mounts,
		Labels:     labels,
	}
}

func run(ctx context.Context, req runner.Request, jobName string, opts Options) (*runner.Outcome, error) {
	runID := uuid.New().String()
	if req.Name == "" {
		req.Name = ContainerNamePrefix + runID
	}
	labels := maps.Clone(req.Labels)
	if labels == nil {
		labels = make(map[string]string)
	}
	labels[RunIDLabel] = runID
	req.Labels = labels

	logger := opts.Logger.With("runId", runID)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if opts.DryRun {
		printDryRun(opts.Console, req, opts.GracePeriod)
		logger.Info("Dry run completed", "image", req.Image)
		return nil, nil
	}

	rt, err := opts.Factory.GetRuntime(ctx, opts.Config.Runtime)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to close runtime client", "error", err)
		}
	}()

	containerRunner := runner.NewContainerRunner(rt, runner.Config{
		GracePeriod:    opts.GracePeriod,
		CleanupTimeout: opts.Config.CleanupTimeout,
		Logger:         logger,
	})

	record := newRecord(runID, jobName, req)
	logger.Info("Starting run", "image", req.Image, "container", req.Name, "timeout", req.Timeout)

	outcome, err := containerRunner.Execute(ctx, req)

	if opts.RecordPath != "" {
		record.finish(outcome, err)
		if saveErr := saveRecord(opts.RecordPath, record); saveErr != nil {
			logger.Warn("Failed to save run record", "path", opts.RecordPath, "error", saveErr)
			opts.Console.PrintWarning(saveErr.Error())
		}
	}

	if err != nil {
		return nil, err
	}

	printOutcome(opts.Console, outcome)
	logger.Info("Run finished", "state", outcome.State, "reason", outcome.Reason, "exitCode", outcome.ExitCode)
	return outcome, nil
}

func printDryRun(console *ui.Console, req runner.Request, grace time.Duration) {
	console.PrintInfo("DRY RUN - no container will be created")
	console.PrintInfo(fmt.Sprintf("Image:     %s", req.Image))
	console.PrintInfo(fmt.Sprintf("Command:   %s", strings.Join(req.Command, " ")))
	console.PrintInfo(fmt.Sprintf("Container: %s", req.Name))
	if req.Timeout > 0 {
		console.PrintInfo(fmt.Sprintf("Timeout:   %s (grace period %s)", req.Timeout, grace))
	} else {
		console.PrintInfo("Timeout:   none")
	}
	if req.WorkingDir != "" {
		console.PrintInfo(fmt.Sprintf("Workdir:   %s", req.WorkingDir))
	}
	for _, m := range req.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		console.PrintInfo(fmt.Sprintf("Mount:     %s:%s:%s", m.Source, m.Target, mode))
	}
}

func printOutcome(console *ui.Console, outcome *runner.Outcome) {
	console.PrintOutput(outcome.Stdout, outcome.Stderr)

	if outcome.Succeeded() {
		console.PrintSuccess(outcome.String())
	} else {
		console.PrintWarning(outcome.String())
	}
	if outcome.Err != nil {
		console.PrintWarning(outcome.Err.Error())
	}
	if outcome.CleanupErr != nil {
		console.PrintWarning(outcome.CleanupErr.Error())
	}
}

// ExitCode maps the result of Run or Exec onto a process exit status.
func ExitCode(outcome *runner.Outcome, err error) int {
	switch {
	case err != nil:
		return ExitCodeFailure
	case outcome == nil || outcome.Succeeded():
		return 0
	case outcome.Reason == runner.ReasonTimedOut:
		return int(runner.ExitCodeTimedOut)
	case outcome.Reason == runner.ReasonCancelled:
		return ExitCodeInterrupted
	case outcome.ExitCode > 0 && outcome.ExitCode <= 255:
		return int(outcome.ExitCode)
	default:
		return ExitCodeFailure
	}
}

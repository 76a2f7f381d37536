package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "dockexec/internal/errors"
	"dockexec/internal/runner"
)

const RecordSchemaVersion = "1.0"

// RunRecord is the JSON summary of one run written by --record.
type RunRecord struct {
	SchemaVersion string    `json:"schema_version" yaml:"schema_version"`
	RunID         string    `json:"run_id" yaml:"run_id"`
	JobName       string    `json:"job_name,omitempty" yaml:"job_name,omitempty"`
	ContainerName string    `json:"container_name" yaml:"container_name"`
	ContainerID   string    `json:"container_id,omitempty" yaml:"container_id,omitempty"`
	Image         string    `json:"image" yaml:"image"`
	Command       []string  `json:"command" yaml:"command"`
	State         string    `json:"state" yaml:"state"`
	Reason        string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	ExitCode      *int64    `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
	CleanupError  string    `json:"cleanup_error,omitempty" yaml:"cleanup_error,omitempty"`
	Duration      string    `json:"duration,omitempty" yaml:"duration,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	FinishedAt    time.Time `json:"finished_at" yaml:"finished_at"`
}

// newRecord creates a record for a run that is about to start.
func newRecord(runID, jobName string, req runner.Request) *RunRecord {
	return &RunRecord{
		SchemaVersion: RecordSchemaVersion,
		RunID:         runID,
		JobName:       jobName,
		ContainerName: req.Name,
		Image:         req.Image,
		Command:       req.Command,
		State:         runner.StateIdle.String(),
		CreatedAt:     time.Now(),
	}
}

// finish fills the record from the result of ContainerRunner.Execute.
func (r *RunRecord) finish(outcome *runner.Outcome, err error) {
	r.FinishedAt = time.Now()

	if outcome == nil {
		r.State = failedState(err).String()
		if err != nil {
			r.Error = err.Error()
		}
		return
	}

	exitCode := outcome.ExitCode
	r.ContainerID = outcome.ContainerID
	r.State = outcome.State.String()
	r.Reason = string(outcome.Reason)
	r.ExitCode = &exitCode
	r.Duration = outcome.Duration.Round(time.Millisecond).String()
	if outcome.Err != nil {
		r.Error = outcome.Err.Error()
	}
	if outcome.CleanupErr != nil {
		r.CleanupError = outcome.CleanupErr.Error()
	}
}

func failedState(err error) runner.State {
	switch {
	case errors.Is(err, apperrors.ErrStartFailed):
		return runner.StateStartFailed
	case errors.Is(err, apperrors.ErrCreationFailed):
		return runner.StateCreationFailed
	default:
		return runner.StateIdle
	}
}

// saveRecord persists the record to path.
func saveRecord(path string, record *RunRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}

	return nil
}

// LoadRecord reads a record written by a previous run.
func LoadRecord(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse run record: %w", err)
	}

	return &record, nil
}

// Render writes the record to w as "text", "json" or "yaml".
func (r *RunRecord) Render(w io.Writer, format string) error {
	switch format {
	case "", "text":
		return r.renderText(w)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("failed to encode run record: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func (r *RunRecord) renderText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:       %s\n", r.RunID)
	if r.JobName != "" {
		fmt.Fprintf(&b, "Job:       %s\n", r.JobName)
	}
	fmt.Fprintf(&b, "Container: %s %s\n", r.ContainerName, r.ContainerID)
	fmt.Fprintf(&b, "Image:     %s\n", r.Image)
	fmt.Fprintf(&b, "Command:   %s\n", strings.Join(r.Command, " "))
	fmt.Fprintf(&b, "State:     %s\n", r.State)
	if r.Reason != "" {
		fmt.Fprintf(&b, "Reason:    %s\n", r.Reason)
	}
	if r.ExitCode != nil {
		fmt.Fprintf(&b, "Exit code: %d\n", *r.ExitCode)
	}
	if r.Duration != "" {
		fmt.Fprintf(&b, "Duration:  %s\n", r.Duration)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Error:     %s\n", r.Error)
	}
	if r.CleanupError != "" {
		fmt.Fprintf(&b, "Cleanup:   %s\n", r.CleanupError)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

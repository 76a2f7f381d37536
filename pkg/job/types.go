package job

import "time"

// Job is the root object of a dockexec job file. It describes one command to
// run in a fresh container.
type Job struct {
	APIVersion string   `yaml:"apiVersion" mapstructure:"apiVersion" validate:"required"`
	Kind       string   `yaml:"kind" mapstructure:"kind" validate:"required,eq=Job"`
	Metadata   Metadata `yaml:"metadata" mapstructure:"metadata" validate:"required"`
	Spec       Spec     `yaml:"spec" mapstructure:"spec" validate:"required"`
}

// Metadata contains job-level metadata. Labels are copied onto the container
// with their keys exactly as written.
type Metadata struct {
	Name        string            `yaml:"name" mapstructure:"name" validate:"required"`
	Description string            `yaml:"description" mapstructure:"description"`
	Labels      map[string]string `yaml:"labels,omitempty" mapstructure:"-"`
}

// Spec describes the container run.
type Spec struct {
	Image   string        `yaml:"image" mapstructure:"image" validate:"required"`
	Command []string      `yaml:"command" mapstructure:"command" validate:"required,min=1"`
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout" validate:"gte=0"`
	// GracePeriod overrides the configured stop grace period for this job.
	GracePeriod time.Duration `yaml:"gracePeriod,omitempty" mapstructure:"gracePeriod" validate:"gte=0"`
	Env         []string      `yaml:"env,omitempty" mapstructure:"env" validate:"dive,envvar"`
	WorkingDir  string        `yaml:"workingDir,omitempty" mapstructure:"workingDir"`
	Mounts      []Mount       `yaml:"mounts,omitempty" mapstructure:"mounts" validate:"dive"`
}

// Mount is a bind mount from the host into the container.
type Mount struct {
	Source   string `yaml:"source" mapstructure:"source" validate:"required"`
	Target   string `yaml:"target" mapstructure:"target" validate:"required,startswith=/"`
	ReadOnly bool   `yaml:"readOnly,omitempty" mapstructure:"readOnly"`
}

package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "dockexec/internal/errors"
)

func writeJobFile(t *testing.T, content string) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return filePath
}

func TestParse_ValidJob(t *testing.T) {
	validYaml := `apiVersion: v1
kind: Job
metadata:
  name: hello
  description: Say hello
  labels:
    team: platform
spec:
  image: alpine:3.20
  command: ["sh", "-c", "echo hi"]
  timeout: 5s
  gracePeriod: 2s
  env:
    - GREETING=hello
    - EMPTY=
  workingDir: /work
  mounts:
    - source: /tmp/data
      target: /data
      readOnly: true
`

	j, err := Parse(writeJobFile(t, validYaml))
	if err != nil {
		t.Fatalf("Expected successful parsing, got error: %v", err)
	}

	if j.Kind != "Job" {
		t.Errorf("Expected Kind 'Job', got '%s'", j.Kind)
	}
	if j.Metadata.Name != "hello" {
		t.Errorf("Expected Name 'hello', got '%s'", j.Metadata.Name)
	}
	if j.Metadata.Labels["team"] != "platform" {
		t.Errorf("Expected label team=platform, got %v", j.Metadata.Labels)
	}
	if j.Spec.Image != "alpine:3.20" {
		t.Errorf("Expected image 'alpine:3.20', got '%s'", j.Spec.Image)
	}
	if strings.Join(j.Spec.Command, "|") != "sh|-c|echo hi" {
		t.Errorf("Unexpected command: %q", j.Spec.Command)
	}
	if j.Spec.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %s", j.Spec.Timeout)
	}
	if j.Spec.GracePeriod != 2*time.Second {
		t.Errorf("Expected grace period 2s, got %s", j.Spec.GracePeriod)
	}
	if len(j.Spec.Env) != 2 || j.Spec.Env[0] != "GREETING=hello" {
		t.Errorf("Unexpected env: %q", j.Spec.Env)
	}
	if j.Spec.WorkingDir != "/work" {
		t.Errorf("Expected workingDir '/work', got '%s'", j.Spec.WorkingDir)
	}
	if len(j.Spec.Mounts) != 1 || j.Spec.Mounts[0].Target != "/data" || !j.Spec.Mounts[0].ReadOnly {
		t.Errorf("Unexpected mounts: %+v", j.Spec.Mounts)
	}
}

func TestParse_TimeoutIsOptional(t *testing.T) {
	j, err := Parse(writeJobFile(t, `apiVersion: v1
kind: Job
metadata:
  name: unbounded
spec:
  image: alpine
  command: ["true"]
`))
	if err != nil {
		t.Fatalf("Expected successful parsing, got error: %v", err)
	}
	if j.Spec.Timeout != 0 {
		t.Errorf("Expected zero timeout, got %s", j.Spec.Timeout)
	}
}

func TestParse_LabelKeysAreKeptVerbatim(t *testing.T) {
	j, err := Parse(writeJobFile(t, `apiVersion: v1
kind: Job
metadata:
  name: labelled
  labels: {com.example.Team: Data, Owner: Alice}
spec:
  image: alpine
  command: ["true"]
  timeout: 5s
`))
	if err != nil {
		t.Fatalf("Expected successful parsing, got error: %v", err)
	}

	expected := map[string]string{"com.example.Team": "Data", "Owner": "Alice"}
	if len(j.Metadata.Labels) != len(expected) {
		t.Fatalf("Expected labels %v, got %v", expected, j.Metadata.Labels)
	}
	for key, value := range expected {
		if j.Metadata.Labels[key] != value {
			t.Errorf("Expected label %s=%s, got %v", key, value, j.Metadata.Labels)
		}
	}
	if j.Spec.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %s", j.Spec.Timeout)
	}
}

func TestParse_InvalidLabels(t *testing.T) {
	_, err := Parse(writeJobFile(t, `apiVersion: v1
kind: Job
metadata:
  name: test
  labels:
    team: [a, b]
spec:
  image: alpine
  command: ["true"]
`))
	if err == nil {
		t.Fatal("Expected decode error, got nil")
	}
	if !errors.Is(err, apperrors.ErrJobParseFailed) {
		t.Errorf("Expected ErrJobParseFailed, got: %v", err)
	}
}

func TestParse_FileNotFound(t *testing.T) {
	_, err := Parse("nonexistent-file.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if !errors.Is(err, apperrors.ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got: %v", err)
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	malformedYaml := `apiVersion: v1
kind: Job
metadata:
  name: test
  description: "unclosed quote
spec:
  invalid yaml structure
`

	_, err := Parse(writeJobFile(t, malformedYaml))
	if err == nil {
		t.Fatal("Expected error for malformed YAML, got nil")
	}
	if !errors.Is(err, apperrors.ErrJobParseFailed) {
		t.Errorf("Expected ErrJobParseFailed, got: %v", err)
	}
	if !strings.Contains(err.Error(), "failed to read job file") {
		t.Errorf("Expected 'failed to read job file' error, got: %v", err)
	}
}

func TestParse_InvalidFields(t *testing.T) {
	tests := []struct {
		name          string
		yaml          string
		expectedError string
	}{
		{
			name: "missing apiVersion",
			yaml: `kind: Job
metadata:
  name: test
spec:
  image: alpine
  command: ["true"]
`,
			expectedError: "field 'APIVersion' is required but missing",
		},
		{
			name: "wrong kind value",
			yaml: `apiVersion: v1
kind: Blueprint
metadata:
  name: test
spec:
  image: alpine
  command: ["true"]
`,
			expectedError: "field 'Kind' must be 'Job'",
		},
		{
			name: "missing image",
			yaml: `apiVersion: v1
kind: Job
metadata:
  name: test
spec:
  command: ["true"]
`,
			expectedError: "field 'Spec.Image' is required but missing",
		},
		{
			name: "empty command",
			yaml: `apiVersion: v1
kind: Job
metadata:
  name: test
spec:
  image: alpine
  command: []
`,
			expectedError: "Spec.Command",
		},
		{
			name: "empty executable",
			yaml: `apiVersion: v1
kind: Job
metadata:
  name: test
spec:
  image: alpine
  command: ["", "hi"]
`,
			expectedError: "must name the executable",
		},
		{
			name: "blank executable",
			yaml: `apiVersion: v1
kind: Job
metadata:
  name: test
spec:
  image: alpine
  command: [" "]
`,
			expectedError: "must name the executable",
		},
		{
			name: "malformed env entry",
			yaml: `apiVersion: v1
kind: Job
metadata:
  name: test
spec:
  image: alpine
  command: ["true"]
  env: ["NOVALUE"]
`,
			expectedError: "must have the form KEY=VALUE",
		},
		{
			name: "relative mount target",
			yaml: `apiVersion: v1
kind: Job
metadata:
  name: test
spec:
  image: alpine
  command: ["true"]
  mounts:
    - source: /tmp
      target: data
`,
			expectedError: "must start with '/'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(writeJobFile(t, tt.yaml))
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.expectedError) {
				t.Errorf("Expected error containing '%s', got: %v", tt.expectedError, err)
			}
		})
	}
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse(writeJobFile(t, `apiVersion: v1
kind: Job
metadata:
  name: test
spec:
  image: alpine
  command: ["true"]
  timeout: forever
`))
	if err == nil {
		t.Fatal("Expected decode error, got nil")
	}
	if !errors.Is(err, apperrors.ErrJobParseFailed) {
		t.Errorf("Expected ErrJobParseFailed, got: %v", err)
	}
}

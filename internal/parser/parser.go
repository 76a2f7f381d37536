package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apperrors "dockexec/internal/errors"
	"dockexec/internal/validation"
	"dockexec/pkg/job"
)

// Parse reads and validates a job YAML file, returning the parsed Job struct or an error.
func Parse(filePath string) (*job.Job, error) {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, apperrors.NewJobNotFoundError(
			fmt.Sprintf("Failed to locate job file %s", filePath),
			"The file does not exist",
			"Pass the path of an existing job file with --file",
			fmt.Errorf("job file not found: %s", filePath),
		)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, apperrors.NewParseError(
			fmt.Sprintf("Failed to read job file %s", filepath.Base(filePath)),
			err.Error(),
			"Check that the job file is readable",
			fmt.Errorf("failed to read job file: %w", err),
		)
	}

	// Configure Viper. Dots are legal in label keys, so they must not split paths.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigType("yaml")

	// Read the file
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, apperrors.NewParseError(
			fmt.Sprintf("Failed to read job file %s", filepath.Base(filePath)),
			"The file is not valid YAML",
			"Check indentation and quoting in the job file",
			fmt.Errorf("failed to read job file: %w", err),
		)
	}

	// Unmarshal into Job struct
	var j job.Job
	if err := v.Unmarshal(&j); err != nil {
		return nil, apperrors.NewParseError(
			fmt.Sprintf("Failed to decode job file %s", filepath.Base(filePath)),
			err.Error(),
			"Durations use Go syntax such as 30s or 2m; command and env are lists",
			fmt.Errorf("failed to parse job file - malformed YAML: %w", err),
		)
	}

	// Viper folds keys to lower case; labels are taken verbatim from the document.
	labels, err := decodeLabels(data)
	if err != nil {
		return nil, apperrors.NewParseError(
			fmt.Sprintf("Failed to decode job file %s", filepath.Base(filePath)),
			err.Error(),
			"metadata.labels is a map of string keys to string values",
			fmt.Errorf("failed to parse job file - malformed YAML: %w", err),
		)
	}
	j.Metadata.Labels = labels

	// Validate the structure
	if err := validation.Struct(&j); err != nil {
		return nil, apperrors.NewParseError(
			fmt.Sprintf("Job file %s is invalid", filepath.Base(filePath)),
			err.Error(),
			"Fix the listed fields and run again",
			err,
		)
	}

	if strings.TrimSpace(j.Spec.Command[0]) == "" {
		err := errors.New("validation error: field 'Spec.Command[0]' must name the executable")
		return nil, apperrors.NewParseError(
			fmt.Sprintf("Job file %s is invalid", filepath.Base(filePath)),
			err.Error(),
			"The first element of spec.command is the program to run",
			err,
		)
	}

	return &j, nil
}

func decodeLabels(data []byte) (map[string]string, error) {
	var doc struct {
		Metadata struct {
			Labels map[string]string `yaml:"labels"`
		} `yaml:"metadata"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Metadata.Labels, nil
}

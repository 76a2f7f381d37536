// Package validation wraps go-playground/validator with the tags and message
// formatting shared by requests, job files and configuration.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// KEY=VALUE with a non-empty key
	if err := validate.RegisterValidation("envvar", func(fl validator.FieldLevel) bool {
		key, _, ok := strings.Cut(fl.Field().String(), "=")
		return ok && key != ""
	}); err != nil {
		panic(err)
	}
}

// Struct validates s and returns a user-friendly error, or nil.
func Struct(s any) error {
	if err := validate.Struct(s); err != nil {
		return format(err)
	}
	return nil
}

// format converts validator errors into user-friendly messages.
func format(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validation failed: %w", err)
	}

	var errorMessages []string
	for _, e := range validationErrors {
		errorMessages = append(errorMessages, formatFieldError(e))
	}

	if len(errorMessages) == 1 {
		return fmt.Errorf("validation error: %s", errorMessages[0])
	}

	result := "validation errors:\n"
	for _, msg := range errorMessages {
		result += fmt.Sprintf("  - %s\n", msg)
	}
	return errors.New(result)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "eq":
		return fmt.Sprintf("field '%s' must be '%s'", field, e.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("field '%s' must have at least %s element(s)", field, e.Param())
	case "gte":
		return fmt.Sprintf("field '%s' must not be negative", field)
	case "envvar":
		return fmt.Sprintf("field '%s' must have the form KEY=VALUE", field)
	case "startswith":
		return fmt.Sprintf("field '%s' must start with '%s'", field, e.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, e.Tag())
	}
}

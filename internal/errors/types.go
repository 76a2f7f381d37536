package errors

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid run request")
	ErrCreationFailed    = errors.New("container creation failed")
	ErrStartFailed       = errors.New("container start failed")
	ErrRuntimeFailed     = errors.New("runtime operation failed")
	ErrCleanupFailed     = errors.New("container cleanup failed")
	ErrJobNotFound       = errors.New("job file not found")
	ErrJobParseFailed    = errors.New("job parsing failed")
	ErrConfigInvalid     = errors.New("configuration invalid")
	ErrDaemonUnavailable = errors.New("container daemon unavailable")
)

// RunError carries a classified failure together with user-facing context.
type RunError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *RunError) Error() string {
	if e.OriginalErr == nil {
		return e.Type.Error()
	}
	return e.Type.Error() + ": " + e.OriginalErr.Error()
}

func (e *RunError) Unwrap() error {
	return e.OriginalErr
}

// Is reports whether target is the sentinel this error was classified as.
func (e *RunError) Is(target error) bool {
	return e.Type == target
}

func NewRunError(errorType error, context, cause, suggestion string, originalErr error) *RunError {
	return &RunError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewInvalidRequestError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrInvalidRequest, context, cause, suggestion, originalErr)
}

func NewCreationError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrCreationFailed, context, cause, suggestion, originalErr)
}

func NewStartError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrStartFailed, context, cause, suggestion, originalErr)
}

func NewRuntimeError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrRuntimeFailed, context, cause, suggestion, originalErr)
}

func NewCleanupError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrCleanupFailed, context, cause, suggestion, originalErr)
}

func NewJobNotFoundError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrJobNotFound, context, cause, suggestion, originalErr)
}

func NewParseError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrJobParseFailed, context, cause, suggestion, originalErr)
}

func NewConfigError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrConfigInvalid, context, cause, suggestion, originalErr)
}

func NewDaemonError(context, cause, suggestion string, originalErr error) *RunError {
	return NewRunError(ErrDaemonUnavailable, context, cause, suggestion, originalErr)
}

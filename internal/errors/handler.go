package errors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"dockexec/internal/ui"
)

// LogFileName is the name of the structured error log inside the log directory.
const LogFileName = "dockexec.log"

type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
	logFile *os.File
}

func NewErrorHandler() (*ErrorHandler, error) {
	return NewErrorHandlerWithConsole(ui.NewConsole())
}

// NewErrorHandlerWithConsole creates an ErrorHandler that prints through console.
func NewErrorHandlerWithConsole(console *ui.Console) (*ErrorHandler, error) {
	logFile, err := createLogFile()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &ErrorHandler{
		logger:  logger,
		console: console,
		logFile: logFile,
	}, nil
}

// Close closes the underlying log file.
func (h *ErrorHandler) Close() error {
	if h.logFile == nil {
		return nil
	}
	return h.logFile.Close()
}

// getOSStandardLogDir returns the OS-standard log directory path
func getOSStandardLogDir() (string, error) {
	// Check for environment variable override first
	if customLogDir := os.Getenv("DOCKEXEC_LOG_DIR"); customLogDir != "" {
		return customLogDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		// macOS: ~/Library/Logs/DockExec/
		return filepath.Join(homeDir, "Library", "Logs", "DockExec"), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		// Linux/Unix: ~/.local/share/dockexec/logs/ (XDG Base Directory)
		return filepath.Join(homeDir, ".local", "share", "dockexec", "logs"), nil
	case "windows":
		// Windows: %APPDATA%\DockExec\logs\
		appDataDir := os.Getenv("APPDATA")
		if appDataDir == "" {
			return filepath.Join(homeDir, "AppData", "Roaming", "DockExec", "logs"), nil
		}
		return filepath.Join(appDataDir, "DockExec", "logs"), nil
	default:
		// Fallback for unknown OS
		return filepath.Join(homeDir, ".dockexec", "logs"), nil
	}
}

// createLogDirectoryWithFallback creates the log directory with fallback to current directory
func createLogDirectoryWithFallback() (string, bool, error) {
	var warnings []string
	var fallbackUsed bool

	// Try OS-standard directory first
	logDir, err := getOSStandardLogDir()
	if err == nil {
		if err := os.MkdirAll(logDir, 0750); err == nil {
			// Check if we can write to the directory
			testFile := filepath.Join(logDir, ".test_write")
			if f, testErr := os.Create(testFile); testErr == nil {
				if err := f.Close(); err != nil {
					slog.Warn("Failed to close test file", "path", testFile, "error", err)
				}
				if err := os.Remove(testFile); err != nil {
					slog.Warn("Failed to remove test file", "path", testFile, "error", err)
				}
				return logDir, fallbackUsed, nil
			}
		}
		warnings = append(warnings, fmt.Sprintf("Cannot access standard log directory %s: %v", logDir, err))
	} else {
		warnings = append(warnings, fmt.Sprintf("Cannot determine standard log directory: %v", err))
	}

	// Fallback to current directory
	currentDir, err := os.Getwd()
	if err != nil {
		return "", true, fmt.Errorf("cannot determine current directory for fallback logging: %w", err)
	}

	fallbackUsed = true
	if len(warnings) > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %s. Falling back to current directory for logging.\n", warnings[0])
	}

	return currentDir, fallbackUsed, nil
}

// rotateLogFile rotates log files when size limit is exceeded
func rotateLogFile(logPath string) error {
	const maxFiles = 5

	// Rotate existing files (.4 -> .5, .3 -> .4, etc.)
	for i := maxFiles - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", logPath, i)
		newPath := fmt.Sprintf("%s.%d", logPath, i+1)

		if i == maxFiles-1 {
			// Remove the oldest file
			if _, err := os.Stat(oldPath); err == nil {
				if err := os.Remove(oldPath); err != nil {
					slog.Warn("Failed to remove old log file", "path", oldPath, "error", err)
				}
			}
		} else {
			// Rotate file
			if _, err := os.Stat(oldPath); err == nil {
				if err := os.Rename(oldPath, newPath); err != nil {
					slog.Warn("Failed to rotate log file", "old", oldPath, "new", newPath, "error", err)
				}
			}
		}
	}

	// Move current log to .1
	if _, err := os.Stat(logPath); err == nil {
		return os.Rename(logPath, logPath+".1")
	}

	return nil
}

// checkLogRotation checks if log rotation is needed and performs it
func checkLogRotation(logPath string) error {
	const maxSizeBytes = 10 * 1024 * 1024 // 10MB

	info, err := os.Stat(logPath)
	if err != nil {
		// File doesn't exist or other error, no rotation needed
		return nil
	}

	if info.Size() >= maxSizeBytes {
		return rotateLogFile(logPath)
	}

	return nil
}

func createLogFile() (*os.File, error) {
	logDir, _, err := createLogDirectoryWithFallback()
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := LogFileName

	logPath := filepath.Join(logDir, logFileName)

	// Check if log rotation is needed before opening the file
	if err := checkLogRotation(logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to rotate log file: %v\n", err)
	}

	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// Handle logs err to the log file and prints it to the console. Joined errors,
// such as a start failure paired with a cleanup failure, are reported one by one.
func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	for _, reported := range splitReported(err) {
		if runErr, ok := reported.(*RunError); ok {
			h.handleRunError(runErr)
		} else {
			h.handleGenericError(reported)
		}
	}
}

// splitReported flattens err into the errors to report: each RunError, plus
// every joined member that carries no RunError of its own.
func splitReported(err error) []error {
	switch e := err.(type) {
	case *RunError:
		return []error{e}
	case interface{ Unwrap() []error }:
		var out []error
		for _, inner := range e.Unwrap() {
			out = append(out, splitReported(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		inner := splitReported(e.Unwrap())
		for _, reported := range inner {
			if _, ok := reported.(*RunError); ok {
				return inner
			}
		}
		return []error{err}
	default:
		return []error{err}
	}
}

func (h *ErrorHandler) handleRunError(err *RunError) {
	h.logStructuredError(err)

	message := h.console.FormatErrorMessage(err.Context, err.Cause, err.Suggestion)
	if message == "" {
		message = err.Error()
	}
	h.console.PrintError(message)
}

func (h *ErrorHandler) handleGenericError(err error) {
	h.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)

	h.console.PrintError(err.Error())
}

func (h *ErrorHandler) logStructuredError(err *RunError) {
	logAttrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("type", getErrorTypeName(err.Type)),
		slog.String("context", err.Context),
	}

	if err.Cause != "" {
		logAttrs = append(logAttrs, slog.String("cause", err.Cause))
	}

	if err.Suggestion != "" {
		logAttrs = append(logAttrs, slog.String("suggestion", err.Suggestion))
	}

	h.logger.LogAttrs(context.TODO(), slog.LevelError, "dockexec error occurred", logAttrs...)
}

func getErrorTypeName(errType error) string {
	switch errType {
	case ErrInvalidRequest:
		return "invalid_request"
	case ErrCreationFailed:
		return "creation_failed"
	case ErrStartFailed:
		return "start_failed"
	case ErrRuntimeFailed:
		return "runtime_failed"
	case ErrCleanupFailed:
		return "cleanup_failed"
	case ErrJobNotFound:
		return "job_not_found"
	case ErrJobParseFailed:
		return "job_parse_failed"
	case ErrConfigInvalid:
		return "config_invalid"
	case ErrDaemonUnavailable:
		return "daemon_unavailable"
	default:
		return "unknown"
	}
}

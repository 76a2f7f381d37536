package errors

import (
	"fmt"
	"os"
	"sync"
)

var (
	defaultHandler    *ErrorHandler
	defaultHandlerErr error
	once              sync.Once
)

func GetDefaultHandler() (*ErrorHandler, error) {
	once.Do(func() {
		defaultHandler, defaultHandlerErr = NewErrorHandler()
	})
	return defaultHandler, defaultHandlerErr
}

// HandleError reports err through the default handler, falling back to plain
// stderr output when the log file cannot be opened.
func HandleError(err error) {
	if err == nil {
		return
	}
	handler, handlerErr := GetDefaultHandler()
	if handlerErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return
	}
	handler.Handle(err)
}

// resetDefaultHandler resets the singleton for testing purposes
func resetDefaultHandler() {
	if defaultHandler != nil {
		defaultHandler.Close()
	}
	defaultHandler = nil
	defaultHandlerErr = nil
	once = sync.Once{}
}

package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDisabled          = "DISABLED"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeParse             = "PARSE_ERROR"
	ErrCodeLayoutEngine      = "LAYOUT_ENGINE_ERROR"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeStore             = "STORE_ERROR"
)

// GraphspaceError is the structured error type for registry, engine and store failures.
// Errors raised by action bodies are never converted into a GraphspaceError.
type GraphspaceError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	ActionID string         `json:"action_id,omitempty"`
	Cause    error          `json:"-"`
}

func (e *GraphspaceError) Error() string {
	if e.ActionID != "" {
		return fmt.Sprintf("[%s] action %s: %s", e.Code, e.ActionID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GraphspaceError) Unwrap() error {
	return e.Cause
}

// NewError creates a new GraphspaceError.
func NewError(code, message string) *GraphspaceError {
	return &GraphspaceError{Code: code, Message: message}
}

// NewErrorf creates a new GraphspaceError with a formatted message.
func NewErrorf(code, format string, args ...any) *GraphspaceError {
	return &GraphspaceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithAction attaches an action ID to the error.
func (e *GraphspaceError) WithAction(actionID string) *GraphspaceError {
	e.ActionID = actionID
	return e
}

// WithCause attaches an underlying cause.
func (e *GraphspaceError) WithCause(err error) *GraphspaceError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *GraphspaceError) WithDetails(details map[string]any) *GraphspaceError {
	e.Details = details
	return e
}

// CodeOf returns the code of the outermost GraphspaceError in err's chain, or "".
func CodeOf(err error) string {
	var gerr *GraphspaceError
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

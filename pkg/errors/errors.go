package errors

import (
	"fmt"
)

// ParseError represents a feed or configuration parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while preparing, executing or
// rolling back an update task.
type ExecutionError struct {
	TaskID string
	Phase  string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(taskID, phase string, err error) error {
	return &ExecutionError{TaskID: taskID, Phase: phase, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	phase := e.Phase
	if phase == "" {
		phase = "execute"
	}
	if e.TaskID != "" {
		return fmt.Sprintf("%s error on task %s: %v", phase, e.TaskID, e.Err)
	}
	return fmt.Sprintf("%s error: %v", phase, e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// VerificationError indicates that a key or signature could not be used.
// Rejected feeds never surface as VerificationError; only misconfiguration does.
type VerificationError struct {
	Key     string
	Message string
	Err     error
}

// NewVerificationError constructs a VerificationError for the given key identifier.
func NewVerificationError(key, message string, err error) error {
	return &VerificationError{Key: key, Message: message, Err: err}
}

func (e *VerificationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Key != "" {
		return fmt.Sprintf("verification error [%s]: %s", e.Key, e.Message)
	}
	return fmt.Sprintf("verification error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *VerificationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HandoffError indicates that the cold update helper could not be started or
// never received its transfer object.
type HandoffError struct {
	Stage string
	Err   error
}

// NewHandoffError constructs a HandoffError for the failing stage.
func NewHandoffError(stage string, err error) error {
	return &HandoffError{Stage: stage, Err: err}
}

func (e *HandoffError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stage != "" {
		return fmt.Sprintf("handoff error [%s]: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("handoff error: %v", e.Err)
}

// Unwrap exposes the underlying error.
func (e *HandoffError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

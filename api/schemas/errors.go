package schemas

import (
	"errors"
	"fmt"
	"strings"
)

// -- Error Taxonomy --

// ErrorKind classifies failures at the request boundary.
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION_ERROR"
	KindInit       ErrorKind = "INIT_ERROR"
	KindExecution  ErrorKind = "EXECUTION_ERROR"
	KindInternal   ErrorKind = "INTERNAL_ERROR"
)

// GenericErrorMessage is the only text an InternalError ever exposes.
const GenericErrorMessage = "An internal server error occurred"

// FieldError describes one offending request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a malformed request body. No browser work happens after one.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Kind implements KindedError.
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// InitError reports a failed session bootstrap (CDP unreachable, missing credentials).
type InitError struct {
	CDPURL string
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to initialize session for %s: %v", e.CDPURL, e.Err)
}

func (e *InitError) Unwrap() error   { return e.Err }
func (e *InitError) Kind() ErrorKind { return KindInit }

// ExecutionError reports an automation failure mid-command.
type ExecutionError struct {
	// Step is the lifecycle step that failed ("navigate", "act", "extract").
	Step string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error   { return e.Err }
func (e *ExecutionError) Kind() ErrorKind { return KindExecution }

// InternalError wraps an unexpected fault. Its detail is logged, never returned to callers.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error   { return e.Err }
func (e *InternalError) Kind() ErrorKind { return KindInternal }

// KindedError is implemented by every error of the taxonomy.
type KindedError interface {
	error
	Kind() ErrorKind
}

// KindOf returns the taxonomy kind of err, treating anything unclassified as internal.
func KindOf(err error) ErrorKind {
	var ke KindedError
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	return KindInternal
}

// PublicMessage returns the text that may be shown to a caller for err.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindValidation, KindInit, KindExecution:
		return err.Error()
	default:
		return GenericErrorMessage
	}
}

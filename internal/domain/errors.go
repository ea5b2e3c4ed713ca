package domain

import (
	"fmt"
	"time"
)

// Validation error codes.
const (
	ValidationFileTooLarge     = "file_too_large"
	ValidationInvalidFormat    = "invalid_format"
	ValidationEmptyFile        = "empty_file"
	ValidationInsufficientRows = "insufficient_rows"
	ValidationMissingField     = "missing_required_field"
	ValidationBadConfirmText   = "bad_confirm_text"
)

// ValidationError reports client input that failed validation. It maps to
// a 4xx response with an actionable message and is never retried.
type ValidationError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Message)
}

// NotFoundError reports an unknown or expired session, artifact, thread or
// manifest.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// IntegrityError reports a checksum mismatch between an artifact's recorded
// digest and its stored bytes.
type IntegrityError struct {
	FileID string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for file %s", e.FileID)
}

// RemoteServiceError wraps a failure from the assistant API, carrying the
// operation that failed and the root cause.
type RemoteServiceError struct {
	Op  string
	Err error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("assistant %s failed: %v", e.Op, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// TimeoutError reports that a bounded wait (run polling) exceeded its
// budget.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Elapsed)
}

// ConfigurationError reports a precondition failure in how the caller set
// things up, e.g. starting a run before an assistant exists. Never retried.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

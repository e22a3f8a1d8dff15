package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors underlying the tagged error taxonomy.
var (
	ErrFieldRequired   = errors.New("field required")
	ErrFieldInvalid    = errors.New("field invalid")
	ErrNotFound        = errors.New("not found")
	ErrIntegrity       = errors.New("integrity violation")
	ErrCancelled       = errors.New("operation cancelled")
	ErrRateLimited     = errors.New("rate limited")
	ErrBackendDown     = errors.New("backend unavailable")
	ErrBackendRejected = errors.New("backend rejected request")
)

// ValidationError reports a malformed input at a pipeline or retrieval
// boundary. Never retried.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

func NewValidationError(field, value string, wrapped error) *ValidationError {
	if wrapped == nil {
		wrapped = ErrFieldInvalid
	}
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// NotFoundError reports a missing entity/dataset/run lookup.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// TransientBackendError reports a retryable failure from a consumed port
// (store, LLM, embedder). RetryAfter, when non-zero, is honored by
// internal/fn.Retry in place of computed backoff.
type TransientBackendError struct {
	Backend    string
	Wrapped    error
	RetryAfter time.Duration
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Backend, e.Wrapped)
}

func (e *TransientBackendError) Unwrap() error { return e.Wrapped }

// RetryAfterDuration implements the retry-after hint interface consumed by
// internal/fn.Retry.
func (e *TransientBackendError) RetryAfterDuration() time.Duration { return e.RetryAfter }

func NewTransientBackendError(backend string, wrapped error, retryAfter time.Duration) *TransientBackendError {
	return &TransientBackendError{Backend: backend, Wrapped: wrapped, RetryAfter: retryAfter}
}

// PermanentBackendError reports a non-retryable rejection from a consumed
// port (auth failure, schema mismatch, quota exhausted for good).
type PermanentBackendError struct {
	Backend string
	Wrapped error
}

func (e *PermanentBackendError) Error() string {
	return fmt.Sprintf("permanent: %s: %v", e.Backend, e.Wrapped)
}

func (e *PermanentBackendError) Unwrap() error { return e.Wrapped }

func NewPermanentBackendError(backend string, wrapped error) *PermanentBackendError {
	return &PermanentBackendError{Backend: backend, Wrapped: wrapped}
}

// IntegrityError reports a structural violation in the graph/vector data
// that must halt the run (e.g. a relation referencing a nonexistent
// entity after resolution).
type IntegrityError struct {
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s", e.Detail)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

func NewIntegrityError(detail string) *IntegrityError {
	return &IntegrityError{Detail: detail}
}

// DegradedError reports a component that failed but whose absence does
// not need to fail the run (e.g. validator or reranker unavailable). The
// caller records it as a PipelineRun warning and continues.
type DegradedError struct {
	Component string
	Wrapped   error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("degraded: %s: %v", e.Component, e.Wrapped)
}

func (e *DegradedError) Unwrap() error { return e.Wrapped }

func NewDegradedError(component string, wrapped error) *DegradedError {
	return &DegradedError{Component: component, Wrapped: wrapped}
}

// CancelledError reports that a context was cancelled mid-operation.
type CancelledError struct {
	Stage string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("cancelled: %s", e.Stage)
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }

func NewCancelledError(stage string) *CancelledError {
	return &CancelledError{Stage: stage}
}

// IsRetryable reports whether err should be retried by internal/fn.Retry.
func IsRetryable(err error) bool {
	var t *TransientBackendError
	return errors.As(err, &t)
}

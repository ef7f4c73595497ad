package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the task store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's no longer PENDING
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrStatusConflict is returned when a status write finds the row in an unexpected state
	ErrStatusConflict = errors.New("job status changed concurrently")
)

// Kind classifies every failure the orchestrator can record
type Kind string

// Failure kinds
const (
	KindConfig            Kind = "ConfigError"
	KindUnresolvedAccount Kind = "UnresolvedAccount"
	KindMediaUnavailable  Kind = "MediaUnavailable"
	KindMediaInvalid      Kind = "MediaInvalid"
	KindUploadRejected    Kind = "UploadRejected"
	KindProcessingTimeout Kind = "ProcessingTimeout"
	KindPublishRejected   Kind = "PublishRejected"
)

// Error is a typed failure carrying its kind
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a typed error with a formatted message
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. An err that already carries a kind is returned unchanged.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind carried by err, or "" for untyped errors
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// IsConfigError reports whether err is a ConfigError
func IsConfigError(err error) bool {
	return KindOf(err) == KindConfig
}

// RetryableError wraps transient errors that may be retried within a step
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err was marked transient
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// UnknownPlatformError is returned when a platform cell names no supported platform
type UnknownPlatformError struct {
	Value string
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("unknown platform %q", e.Value)
}

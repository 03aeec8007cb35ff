package harvest

import (
	"errors"
	"fmt"
)

// FailureKind tags a failure with its place in the error taxonomy.
type FailureKind string

// Failure kinds.
const (
	FailureServiceUnresponsive FailureKind = "service_unresponsive"
	FailurePageUnavailable     FailureKind = "page_unavailable"
	FailureExtractionFailed    FailureKind = "extraction_failed"
	FailureTransport           FailureKind = "transport_error"
	FailureKnownCrash          FailureKind = "known_crash_signature"
	FailureRecoveryFailed      FailureKind = "recovery_failed"
	FailurePersistence         FailureKind = "persistence_failed"
	FailureTransient           FailureKind = "transient"
)

var (
	// ErrServiceUnresponsive aborts a run whose initial health check fails.
	ErrServiceUnresponsive = errors.New("extraction service is not responsive")
	// ErrRecoveryFailed aborts a run when a reactive recovery does not bring the service back.
	ErrRecoveryFailed = errors.New("service recovery failed")
	// ErrIndexNotFound signals that the requested index page does not exist.
	ErrIndexNotFound = errors.New("index page not found")
)

// ProcessingError is a typed failure of one work unit step.
type ProcessingError struct {
	Kind FailureKind
	URL  string
	Err  error
}

// NewProcessingError wraps err with a kind.
func NewProcessingError(kind FailureKind, url string, err error) *ProcessingError {
	return &ProcessingError{Kind: kind, URL: url, Err: err}
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// KindOf returns the FailureKind carried by err, or FailureTransient for untyped errors.
func KindOf(err error) FailureKind {
	var perr *ProcessingError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return FailureTransient
}

package models

import (
	"errors"
	"fmt"
	"time"
)

// SourceError wraps a provider failure with its retry classification.
// Transient errors (network, timeout, HTTP 429/5xx) are retried with
// backoff; permanent errors (bad symbol, auth) are not.
type SourceError struct {
	Source    string
	Transient bool
	Err       error
}

func (e *SourceError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s source error (%s): %v", kind, e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// TransientSource wraps err as a retryable source failure.
func TransientSource(source string, err error) error {
	return &SourceError{Source: source, Transient: true, Err: err}
}

// PermanentSource wraps err as a non-retryable source failure.
func PermanentSource(source string, err error) error {
	return &SourceError{Source: source, Transient: false, Err: err}
}

// IsTransient reports whether err should be retried. Unclassified errors
// are treated as permanent so bugs never spin in retry loops.
func IsTransient(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Transient
	}
	return errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrStorageUnavailable)
}

// OutOfOrderError reports an adapter contract violation: observations
// returned with non-ascending timestamps. Permanent by design.
type OutOfOrderError struct {
	Symbol string
	Prev   time.Time
	Next   time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out-of-order data for %s: %s after %s",
		e.Symbol, e.Next.Format(time.RFC3339), e.Prev.Format(time.RFC3339))
}

// InferenceError is a per-record, non-retryable model failure.
type InferenceError struct {
	Symbol    string
	Timestamp time.Time
	Err       error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("model inference failed for %s@%s: %v",
		e.Symbol, e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

var (
	// ErrLeaseHeld indicates another worker holds the per-pair ingestion
	// lease; the cycle for that pair is skipped, not failed.
	ErrLeaseHeld = errors.New("ingestion lease held by another worker")

	// ErrModelUnavailable indicates the external model endpoint could not
	// be reached; retryable by the caller's own policy.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrStorageUnavailable indicates a store backend failure; treated as
	// transient with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrUnknownSource indicates configuration references a source with no
	// registered adapter.
	ErrUnknownSource = errors.New("unknown source")
)

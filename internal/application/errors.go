package application

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions
var (
	ErrNotFound        = errors.New("not found")
	ErrSectionNotFound = fmt.Errorf("section %w", ErrNotFound)
	ErrAmbiguousID     = fmt.Errorf("ambiguous document ID: %w", ErrNotFound)
)

// FailureKind classifies an adapter failure for the retry policy
type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailureFatal
)

func (k FailureKind) String() string {
	if k == FailureFatal {
		return "fatal"
	}
	return "transient"
}

// AdapterError is returned by stage adapters (converter, summarizer, indexer)
// to tell the pipeline whether the call is worth repeating.
type AdapterError struct {
	Op   string
	Kind FailureKind
	Err  error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable adapter failure (network, rate limit, timeout)
func Transient(op string, err error) error {
	return &AdapterError{Op: op, Kind: FailureTransient, Err: err}
}

// Fatal wraps err as a permanent adapter failure (malformed or unsupported input)
func Fatal(op string, err error) error {
	return &AdapterError{Op: op, Kind: FailureFatal, Err: err}
}

// ConfigurationError represents a bad or missing configuration value.
// It aborts startup and is never retried.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

// NotFoundError names what a query could not find
type NotFoundError struct {
	What       string
	ID         string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s not found: %s", e.What, e.ID)
	if len(e.Candidates) > 0 {
		msg += fmt.Sprintf(" (candidates: %s)", strings.Join(e.Candidates, ", "))
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CitationMissingError reports citation keys with no bibliography entry
type CitationMissingError struct {
	Keys []string
}

func (e *CitationMissingError) Error() string {
	return fmt.Sprintf("%d citation key(s) missing from bibliography: %s", len(e.Keys), strings.Join(e.Keys, ", "))
}

// LowConfidenceError reports claims the verifier could not confirm
type LowConfidenceError struct {
	Count int
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("%d claim(s) need revision or are incorrect", e.Count)
}

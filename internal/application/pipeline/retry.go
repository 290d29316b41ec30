package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperflow/internal/application"
)

// RetryPolicy decides whether a failed stage is worth running again
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
}

// DefaultRetryPolicy allows three attempts with 1s, 2s backoff between them
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Base: time.Second}
}

// Classify maps an adapter error onto the failure taxonomy. Timeouts and
// anything the adapter did not classify are transient.
func (p RetryPolicy) Classify(err error) application.FailureKind {
	var adapterErr *application.AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Kind
	}
	return application.FailureTransient
}

// ShouldRetry reports whether another attempt is allowed after attempts failures
func (p RetryPolicy) ShouldRetry(attempts int, kind application.FailureKind) bool {
	return kind == application.FailureTransient && attempts < p.MaxAttempts
}

// Backoff returns the wait before the next attempt: Base * 2^(attempts-1)
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	return p.Base << (attempts - 1)
}

// FailureMessage builds the lastError stored on a Failed record, keeping
// "gave up" and "unsupported input" apart.
func (p RetryPolicy) FailureMessage(kind application.FailureKind, attempts int, err error) string {
	if kind == application.FailureFatal {
		return fmt.Sprintf("unsupported input: %v", err)
	}
	return fmt.Sprintf("gave up after %d attempts: %v", attempts, err)
}

// isCancellation reports whether err comes from the run itself being stopped
// rather than the adapter failing.
func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

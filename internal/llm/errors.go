package llm

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryableError indicates a transient failure (network, 5xx, deadline) that
// can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// CapacityError indicates the service is rate limiting. Retried like a
// transient error but always with jittered backoff.
type CapacityError struct {
	Message string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity error: %s", truncate(e.Message, 200))
}

// ShapeError indicates the model returned text that could not be parsed into
// the requested shape, even after retries. The caller decides whether to
// degrade or fail.
type ShapeError struct {
	Attempts int
	Raw      string
	Err      error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape error after %d attempts: %v (raw: %s)", e.Attempts, e.Err, truncate(e.Raw, 200))
}

func (e *ShapeError) Unwrap() error { return e.Err }

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	var capErr *CapacityError
	return errors.As(err, &retryErr) || errors.As(err, &capErr)
}

// IsShapeError checks if an error is a persistent shape failure.
func IsShapeError(err error) bool {
	var shapeErr *ShapeError
	return errors.As(err, &shapeErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package ollama

import (
	"errors"
	"fmt"
	"time"
)

// ErrStreamTruncated reports an upstream stream that closed before a chunk
// flagged done arrived, e.g. a dropped connection.
var ErrStreamTruncated = errors.New("upstream stream closed before completion")

// TimeoutError reports that an upstream call, or the wait for the next
// streamed chunk, exceeded the configured timeout.
type TimeoutError struct {
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ollama request timed out after %s", e.Timeout)
}

// UnavailableError reports that the upstream server could not be reached
// at all, e.g. connection refused.
type UnavailableError struct {
	Cause error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ollama unreachable: %v", e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// UpstreamError reports a non-2xx response, or an error object delivered
// inside an otherwise successful stream.
type UpstreamError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ollama returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("ollama error: %s", e.Body)
}

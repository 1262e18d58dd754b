package toolexec

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTool reports a malformed descriptor or policy at registration.
	ErrInvalidTool = errors.New("invalid tool")
	// ErrDuplicateTool reports a name that is already registered.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrUnknownTool reports a name that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrMissingDependency matches *MissingDependencyError.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrRateLimitExceeded matches *RateLimitError.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrToolTimeout matches *TimeoutError.
	ErrToolTimeout = errors.New("tool timed out")
)

// MissingDependencyError names the first declared dependency that is not
// registered.
type MissingDependencyError struct {
	Tool       string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("tool %s: missing dependency %s", e.Tool, e.Dependency)
}

func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}

// RateLimitError is returned when a tool's window is exhausted.
type RateLimitError struct {
	Tool       string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for tool %s: %d calls per %s (retry in %s)",
		e.Tool, e.Limit, e.Window, e.RetryAfter.Truncate(time.Millisecond))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// TimeoutError is produced when an attempt outlives its policy timeout.
type TimeoutError struct {
	Tool    string
	Timeout time.Duration
	Attempt int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %s (attempt %d)", e.Tool, e.Timeout, e.Attempt)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrToolTimeout
}

// ExecutionError is the terminal failure of an invocation once its retry
// budget is spent. Err is the failure of the last attempt.
type ExecutionError struct {
	ToolName     string
	InvocationID string
	Attempts     int
	Err          error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.ToolName, e.Message())
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Message returns the underlying failure as a string. It never panics, even
// when Err is nil.
func (e *ExecutionError) Message() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// Metadata mirrors the details reported to the monitor.
func (e *ExecutionError) Metadata() map[string]any {
	return map[string]any{
		"toolName": e.ToolName,
		"success":  false,
		"error":    e.Message(),
	}
}

// IsTimeout reports whether err, or any error it wraps, is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrToolTimeout)
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

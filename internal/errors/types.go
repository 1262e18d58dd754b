// Package errors classifies pipeline failures for callers: an HTTP status,
// a transient/permanent verdict and a short actionable message.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"toolpipe/internal/toolexec"
)

// Kind names the pipeline stage a failure came from.
type Kind string

const (
	KindNone         Kind = ""
	KindInvalid      Kind = "invalid_tool"
	KindDuplicate    Kind = "duplicate_tool"
	KindUnknown      Kind = "unknown_tool"
	KindDependency   Kind = "missing_dependency"
	KindRateLimited  Kind = "rate_limited"
	KindTimeout      Kind = "timeout"
	KindCanceled     Kind = "canceled"
	KindExecution    Kind = "execution_failed"
	KindInvalidInput Kind = "invalid_input"
)

// TransientError marks a tool failure worth trying again later.
type TransientError struct {
	Err     error
	Message string // LLM-friendly message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a tool failure that will repeat with the same input.
type PermanentError struct {
	Err     error
	Message string // LLM-friendly message
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanent wraps err with an LLM-friendly message.
func NewPermanent(err error, format string, args ...any) *PermanentError {
	return &PermanentError{Err: err, Message: fmt.Sprintf(format, args...)}
}

// NewTransient wraps err with an LLM-friendly message.
func NewTransient(err error, format string, args ...any) *TransientError {
	return &TransientError{Err: err, Message: fmt.Sprintf(format, args...)}
}

// Classify maps err to the pipeline stage that produced it. The order
// matters: an ExecutionError wrapping a timeout is a timeout.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, toolexec.ErrInvalidTool):
		return KindInvalid
	case errors.Is(err, toolexec.ErrDuplicateTool):
		return KindDuplicate
	case errors.Is(err, toolexec.ErrUnknownTool):
		return KindUnknown
	case errors.Is(err, toolexec.ErrMissingDependency):
		return KindDependency
	case errors.Is(err, toolexec.ErrRateLimitExceeded):
		return KindRateLimited
	case errors.Is(err, toolexec.ErrToolTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		var execErr *toolexec.ExecutionError
		if !errors.As(err, &execErr) {
			return KindInvalidInput
		}
	}
	return KindExecution
}

// HTTPStatus returns the status code a transport should answer with.
func HTTPStatus(err error) int {
	switch Classify(err) {
	case KindNone:
		return http.StatusOK
	case KindInvalid, KindInvalidInput:
		return http.StatusBadRequest
	case KindDuplicate:
		return http.StatusConflict
	case KindUnknown:
		return http.StatusNotFound
	case KindDependency:
		return http.StatusFailedDependency
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}

// IsTransient reports whether the same invocation may succeed later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	switch Classify(err) {
	case KindRateLimited, KindTimeout:
		return true
	case KindInvalid, KindDuplicate, KindUnknown, KindDependency, KindCanceled:
		return false
	}

	return isNetworkError(err) || isSyscallError(err)
}

// IsPermanent reports whether retrying the same invocation is pointless.
func IsPermanent(err error) bool {
	return err != nil && !IsTransient(err)
}

// FormatForLLM converts pipeline errors to short actionable messages.
func FormatForLLM(err error) string {
	if err == nil {
		return ""
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) && transientErr.Message != "" {
		return transientErr.Message
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) && permanentErr.Message != "" {
		return permanentErr.Message
	}

	switch Classify(err) {
	case KindUnknown:
		return "Tool not found. List the registered tools and check the name."
	case KindDependency:
		var depErr *toolexec.MissingDependencyError
		if errors.As(err, &depErr) {
			return fmt.Sprintf("Tool %s cannot run because its dependency %s is not registered.", depErr.Tool, depErr.Dependency)
		}
		return "A required dependency is not registered."
	case KindRateLimited:
		var rateErr *toolexec.RateLimitError
		if errors.As(err, &rateErr) {
			return fmt.Sprintf("Rate limit reached for %s (%d calls per %s). Try again in %s.",
				rateErr.Tool, rateErr.Limit, rateErr.Window, rateErr.RetryAfter.Round(time.Second))
		}
		return "Rate limit reached. Try again later."
	case KindTimeout:
		return "Tool timed out. Try smaller input or raise the tool timeout."
	case KindCanceled:
		return "The request was cancelled before the tool finished."
	case KindInvalid:
		return "Tool registration is invalid: " + err.Error()
	case KindDuplicate:
		return "A tool with this name is already registered."
	}

	var execErr *toolexec.ExecutionError
	if errors.As(err, &execErr) {
		return fmt.Sprintf("Tool %s failed after %d attempt(s): %s", execErr.ToolName, execErr.Attempts, execErr.Message())
	}
	return err.Error()
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "broken pipe", "no such host"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

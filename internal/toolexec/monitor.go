package toolexec

import "context"

// OperationDetails is reported to the monitor when an operation ends.
type OperationDetails struct {
	Success bool `json:"success"`
	// Retries is the retry budget left unused when the operation ended.
	Retries int `json:"retries"`
	// Attempts is the number of execution attempts made.
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Monitor receives start/end telemetry for every invocation that reaches
// the execution stage. StartOperation may return a derived context (for
// example carrying a span); EndOperation receives that context.
type Monitor interface {
	StartOperation(ctx context.Context, operationID string) context.Context
	EndOperation(ctx context.Context, operationID string, details OperationDetails)
}

// CacheObserver is optionally implemented by monitors that want to hear
// about cache hits, which bypass StartOperation/EndOperation.
type CacheObserver interface {
	CacheHit(ctx context.Context, operationID string)
}

// Rejection reasons reported to a RejectionObserver.
const (
	RejectUnknownTool       = "unknown_tool"
	RejectMissingDependency = "missing_dependency"
	RejectRateLimited       = "rate_limited"
)

// RejectionObserver is optionally implemented by monitors that want to hear
// about invocations refused before execution. Rejections never reach
// StartOperation/EndOperation.
type RejectionObserver interface {
	Rejected(ctx context.Context, operationID, reason string, err error)
}

// OperationID returns the monitor operation id for a tool.
func OperationID(toolName string) string {
	return "tool." + toolName
}

type nopMonitor struct{}

func (nopMonitor) StartOperation(ctx context.Context, _ string) context.Context { return ctx }
func (nopMonitor) EndOperation(context.Context, string, OperationDetails)      {}

// NopMonitor returns a monitor that records nothing.
func NopMonitor() Monitor {
	return nopMonitor{}
}

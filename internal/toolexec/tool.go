package toolexec

import (
	"context"
	"slices"
	"time"
)

// Func is the behavioural half of a tool: given arguments it produces a
// result or fails. The context is cancelled when the attempt's timeout
// expires.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool is the interface implemented by capability types that prefer methods
// over a Descriptor literal.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Descriptor identifies a tool and holds its implementation.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Execute     Func   `json:"-"`
}

// FromTool adapts a Tool to a Descriptor. A nil tool yields an empty
// descriptor, which Register rejects.
func FromTool(t Tool) Descriptor {
	if t == nil {
		return Descriptor{}
	}
	return Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		Execute:     t.Execute,
	}
}

// Policy holds the execution constraints attached to a tool at registration.
type Policy struct {
	// Timeout bounds a single execution attempt. Required.
	Timeout time.Duration `json:"timeout"`
	// Cache memoizes successful results keyed by arguments.
	Cache bool `json:"cache"`
	// RateLimit is the number of admissions per rate window; 0 disables it.
	RateLimit int `json:"rate_limit,omitempty"`
	// Retries is the number of extra attempts after the first failure.
	Retries int `json:"retries,omitempty"`
	// Dependencies must all be registered when the tool is invoked.
	Dependencies []string `json:"dependencies,omitempty"`
}

func (p Policy) clone() Policy {
	p.Dependencies = slices.Clone(p.Dependencies)
	return p
}

// Invocation is one entry of a batch.
type Invocation struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// InvocationRecord tracks one ExecuteTool call that reached the execution
// stage. It is handed to the monitor's context and attached to failures.
type InvocationRecord struct {
	ID               string
	Tool             string
	Args             map[string]any
	Attempt          int
	StartedAt        time.Time
	Success          bool
	RetriesRemaining int
	Err              error
}

type attemptKey struct{}

// AttemptFromContext returns the 1-based attempt number of the running
// execution, or 0 outside the pipeline.
func AttemptFromContext(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	if n, ok := ctx.Value(attemptKey{}).(int); ok {
		return n
	}
	return 0
}

func withAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

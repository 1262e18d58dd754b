package server

import (
	"encoding/json"
	"time"

	"toolpipe/internal/toolexec"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Tools     int       `json:"tools"`
}

// PolicyView renders a policy with millisecond timeouts.
type PolicyView struct {
	TimeoutMs    int64    `json:"timeout_ms"`
	Cache        bool     `json:"cache"`
	RateLimit    int      `json:"rate_limit"`
	Retries      int      `json:"retries"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func newPolicyView(p toolexec.Policy) PolicyView {
	return PolicyView{
		TimeoutMs:    p.Timeout.Milliseconds(),
		Cache:        p.Cache,
		RateLimit:    p.RateLimit,
		Retries:      p.Retries,
		Dependencies: p.Dependencies,
	}
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Policy      PolicyView         `json:"policy"`
	Stats       toolexec.ToolStats `json:"stats"`
}

// InvokeRequest is the body of POST /v1/tools/:name/invoke. Args may be a
// JSON object or a string holding one.
type InvokeRequest struct {
	Args json.RawMessage `json:"args"`
}

// InvokeResponse carries the result of one invocation.
type InvokeResponse struct {
	Tool       string `json:"tool"`
	Result     any    `json:"result"`
	DurationMs int64  `json:"duration_ms"`
}

// BatchRequest is the body of POST /v1/batch.
type BatchRequest struct {
	Parallel    bool                  `json:"parallel"`
	Invocations []toolexec.Invocation `json:"invocations"`
}

// BatchResponse carries batch results in input order.
type BatchResponse struct {
	Results    []any `json:"results"`
	DurationMs int64 `json:"duration_ms"`
}

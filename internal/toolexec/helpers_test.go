package toolexec

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"toolpipe/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type monitorCall struct {
	op      string
	kind    string
	reason  string
	details OperationDetails
}

type recordingMonitor struct {
	mu    sync.Mutex
	calls []monitorCall
}

func (m *recordingMonitor) StartOperation(ctx context.Context, op string) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, monitorCall{op: op, kind: "start"})
	return ctx
}

func (m *recordingMonitor) EndOperation(_ context.Context, op string, details OperationDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, monitorCall{op: op, kind: "end", details: details})
}

func (m *recordingMonitor) CacheHit(_ context.Context, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, monitorCall{op: op, kind: "cache_hit"})
}

func (m *recordingMonitor) Rejected(_ context.Context, op, reason string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, monitorCall{op: op, kind: "rejected", reason: reason})
}

func (m *recordingMonitor) rejections() []string {
	var out []string
	for _, call := range m.snapshot() {
		if call.kind == "rejected" {
			out = append(out, call.op+":"+call.reason)
		}
	}
	return out
}

func (m *recordingMonitor) snapshot() []monitorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]monitorCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *recordingMonitor) ends() []OperationDetails {
	var out []OperationDetails
	for _, call := range m.snapshot() {
		if call.kind == "end" {
			out = append(out, call.details)
		}
	}
	return out
}

func newTestPipeline(clock Clock, monitor Monitor) *Pipeline {
	return New(Config{
		Monitor: monitor,
		Logger:  logging.Nop(),
		Clock:   clock,
	})
}

// countingTool returns a descriptor whose implementation counts calls and
// echoes its arguments.
func countingTool(name string, calls *atomic.Int32) Descriptor {
	return Descriptor{
		Name:        name,
		Description: "counts calls",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			n := calls.Add(1)
			return map[string]any{"call": int(n), "args": args}, nil
		},
	}
}

func sleepingTool(name string, d time.Duration, result any) Descriptor {
	return Descriptor{
		Name:        name,
		Description: "sleeps",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			time.Sleep(d)
			return result, nil
		},
	}
}

var defaultPolicy = Policy{Timeout: time.Second}

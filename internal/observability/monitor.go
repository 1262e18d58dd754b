package observability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"toolpipe/internal/toolexec"
)

// ToolMonitor reports pipeline operations to logs, metrics, traces and the
// event hub. Every sink is optional.
type ToolMonitor struct {
	logger  *Logger
	metrics *MetricsCollector
	tracer  *TracerProvider
	hub     *EventHub
	now     func() time.Time
}

var (
	_ toolexec.Monitor           = (*ToolMonitor)(nil)
	_ toolexec.CacheObserver     = (*ToolMonitor)(nil)
	_ toolexec.RejectionObserver = (*ToolMonitor)(nil)
)

// MonitorOption configures a ToolMonitor.
type MonitorOption func(*ToolMonitor)

// WithMonitorLogger sets the structured logger.
func WithMonitorLogger(logger *Logger) MonitorOption {
	return func(m *ToolMonitor) { m.logger = logger }
}

// WithMonitorMetrics sets the metrics collector.
func WithMonitorMetrics(metrics *MetricsCollector) MonitorOption {
	return func(m *ToolMonitor) { m.metrics = metrics }
}

// WithMonitorTracer sets the tracer provider.
func WithMonitorTracer(tracer *TracerProvider) MonitorOption {
	return func(m *ToolMonitor) { m.tracer = tracer }
}

// WithMonitorEvents sets the event hub.
func WithMonitorEvents(hub *EventHub) MonitorOption {
	return func(m *ToolMonitor) { m.hub = hub }
}

// WithMonitorClock overrides the wall clock used for durations.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *ToolMonitor) { m.now = now }
}

// NewToolMonitor builds a monitor from opts.
func NewToolMonitor(opts ...MonitorOption) *ToolMonitor {
	m := &ToolMonitor{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = NewNoopTracerProvider()
	}
	return m
}

type operationState struct {
	start time.Time
	span  trace.Span
}

type operationKey struct{}

func toolFromOperation(operationID string) string {
	return strings.TrimPrefix(operationID, "tool.")
}

// StartOperation opens a span and remembers the start time in the returned
// context, which EndOperation must receive.
func (m *ToolMonitor) StartOperation(ctx context.Context, operationID string) context.Context {
	tool := toolFromOperation(operationID)
	start := m.now()

	ctx, span := m.tracer.StartSpan(ctx, SpanToolExecute, ToolAttrs(tool)...)
	ctx = context.WithValue(ctx, operationKey{}, &operationState{start: start, span: span})

	m.metrics.IncrementInflight(ctx, tool)
	if m.logger != nil {
		m.logger.WithContext(ctx).Debug("tool started", "tool", tool)
	}
	m.hub.Publish(Event{Type: EventStarted, Operation: operationID, Tool: tool, Time: start})
	return ctx
}

// EndOperation closes the span opened by StartOperation and records the
// outcome.
func (m *ToolMonitor) EndOperation(ctx context.Context, operationID string, details toolexec.OperationDetails) {
	tool := toolFromOperation(operationID)
	end := m.now()

	var duration time.Duration
	if state, ok := ctx.Value(operationKey{}).(*operationState); ok {
		duration = end.Sub(state.start)
		state.span.SetAttributes(
			attribute.Int(AttrAttempts, details.Attempts),
			attribute.Int(AttrRetries, details.Retries),
		)
		if details.Success {
			state.span.SetAttributes(StatusAttrs("success")...)
			state.span.SetStatus(codes.Ok, "")
		} else {
			state.span.SetAttributes(StatusAttrs("error")...)
			state.span.SetAttributes(ErrorAttrs(details.Error)...)
			state.span.SetStatus(codes.Error, details.Error)
		}
		state.span.End()
	}

	status := "success"
	eventType := EventCompleted
	if !details.Success {
		status = "error"
		eventType = EventFailed
	}

	m.metrics.DecrementInflight(ctx, tool)
	m.metrics.RecordToolExecution(ctx, tool, status, duration, details.Attempts)

	if m.logger != nil {
		log := m.logger.WithContext(ctx)
		if details.Success {
			log.Info("tool completed", "tool", tool, "duration_ms", duration.Milliseconds(),
				"attempts", details.Attempts, "retries_remaining", details.Retries)
		} else {
			log.Warn("tool failed", "tool", tool, "duration_ms", duration.Milliseconds(),
				"attempts", details.Attempts, "error", details.Error)
		}
	}

	m.hub.Publish(Event{
		Type:       eventType,
		Operation:  operationID,
		Tool:       tool,
		Time:       end,
		DurationMs: duration.Milliseconds(),
		Success:    details.Success,
		Retries:    details.Retries,
		Attempts:   details.Attempts,
		Error:      details.Error,
	})
}

// CacheHit records an invocation answered from the cache.
func (m *ToolMonitor) CacheHit(ctx context.Context, operationID string) {
	tool := toolFromOperation(operationID)
	m.metrics.Pipeline().RecordCacheHit(tool)
	if m.logger != nil {
		m.logger.WithContext(ctx).Debug("tool cache hit", "tool", tool)
	}
	m.hub.Publish(Event{Type: EventCacheHit, Operation: operationID, Tool: tool, Time: m.now(), Success: true})
}

// Rejected records an invocation refused before execution.
func (m *ToolMonitor) Rejected(ctx context.Context, operationID, reason string, err error) {
	tool := toolFromOperation(operationID)
	m.metrics.Pipeline().RecordRejection(tool, reason)

	var message string
	if err != nil {
		message = err.Error()
	}
	if m.logger != nil {
		m.logger.WithContext(ctx).Info("tool rejected", "tool", tool, "reason", reason, "error", message)
	}
	m.hub.Publish(Event{
		Type:      EventRejected,
		Operation: operationID,
		Tool:      tool,
		Time:      m.now(),
		Error:     message,
		Reason:    reason,
	})
}

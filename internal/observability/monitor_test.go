package observability

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"toolpipe/internal/logging"
	"toolpipe/internal/toolexec"
)

func TestToolMonitorReportsPipelineOperations(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tracer := WrapTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	metrics, err := NewMetricsCollector(MetricsConfig{Enabled: true})
	require.NoError(t, err)
	hub := NewEventHub(16)
	events, stop := hub.Subscribe()
	defer stop()
	var logs bytes.Buffer

	monitor := NewToolMonitor(
		WithMonitorLogger(NewLogger(LogConfig{Level: "debug", Output: &logs})),
		WithMonitorMetrics(metrics),
		WithMonitorTracer(tracer),
		WithMonitorEvents(hub),
	)

	pipeline := toolexec.New(toolexec.Config{Monitor: monitor, Logger: logging.Nop()})
	var calls atomic.Int32
	require.NoError(t, pipeline.Register(toolexec.Descriptor{
		Name: "flaky",
		Execute: func(context.Context, map[string]any) (any, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		},
	}, toolexec.Policy{Timeout: time.Second, Retries: 1, Cache: true}))

	_, err = pipeline.ExecuteTool(context.Background(), "flaky", nil)
	require.NoError(t, err)
	_, err = pipeline.ExecuteTool(context.Background(), "flaky", nil)
	require.NoError(t, err)

	started := <-events
	completed := <-events
	hit := <-events
	assert.Equal(t, EventStarted, started.Type)
	assert.Equal(t, "tool.flaky", started.Operation)
	assert.Equal(t, EventCompleted, completed.Type)
	assert.Equal(t, 2, completed.Attempts)
	assert.Equal(t, 0, completed.Retries)
	assert.True(t, completed.Success)
	assert.Equal(t, EventCacheHit, hit.Type)
	assert.Equal(t, "flaky", hit.Tool)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, SpanToolExecute, ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `tool_name="flaky"`)
	assert.Contains(t, body, "toolpipe_pipeline_cache_hits_total")
	assert.Contains(t, logs.String(), "tool completed")
}

func TestToolMonitorReportsFailures(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tracer := WrapTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	hub := NewEventHub(4)
	events, stop := hub.Subscribe()
	defer stop()

	clock := time.Unix(0, 0)
	monitor := NewToolMonitor(
		WithMonitorTracer(tracer),
		WithMonitorEvents(hub),
		WithMonitorClock(func() time.Time {
			clock = clock.Add(250 * time.Millisecond)
			return clock
		}),
	)

	ctx := monitor.StartOperation(context.Background(), "tool.broken")
	monitor.EndOperation(ctx, "tool.broken", toolexec.OperationDetails{
		Success:  false,
		Attempts: 1,
		Error:    "boom",
	})

	<-events
	failed := <-events
	assert.Equal(t, EventFailed, failed.Type)
	assert.Equal(t, "boom", failed.Error)
	assert.EqualValues(t, 250, failed.DurationMs)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
}

func TestToolMonitorWithoutSinks(t *testing.T) {
	monitor := NewToolMonitor()
	ctx := monitor.StartOperation(context.Background(), "tool.echo")
	monitor.EndOperation(ctx, "tool.echo", toolexec.OperationDetails{Success: true, Attempts: 1})
	monitor.CacheHit(ctx, "tool.echo")
	monitor.Rejected(ctx, "tool.echo", toolexec.RejectRateLimited, nil)
	monitor.EndOperation(context.Background(), "tool.echo", toolexec.OperationDetails{Success: true})
}

func TestToolMonitorCountsRejectionsFromPipeline(t *testing.T) {
	metrics, err := NewMetricsCollector(MetricsConfig{Enabled: true})
	require.NoError(t, err)
	defer func() { _ = metrics.Shutdown(context.Background()) }()
	hub := NewEventHub(8)
	events, stop := hub.Subscribe()
	defer stop()
	var logs bytes.Buffer

	monitor := NewToolMonitor(
		WithMonitorLogger(NewLogger(LogConfig{Level: "debug", Output: &logs})),
		WithMonitorMetrics(metrics),
		WithMonitorEvents(hub),
	)
	pipeline := toolexec.New(toolexec.Config{Monitor: monitor, Logger: logging.Nop()})
	require.NoError(t, pipeline.Register(toolexec.Descriptor{
		Name: "once",
		Execute: func(context.Context, map[string]any) (any, error) {
			return "ok", nil
		},
	}, toolexec.Policy{Timeout: time.Second, RateLimit: 1}))

	ctx := context.Background()
	_, err = pipeline.ExecuteTool(ctx, "once", nil)
	require.NoError(t, err)
	_, err = pipeline.ExecuteTool(ctx, "once", nil)
	require.ErrorIs(t, err, toolexec.ErrRateLimitExceeded)
	_, err = pipeline.ExecuteBatch(ctx, []toolexec.Invocation{{Tool: "ghost"}}, false)
	require.ErrorIs(t, err, toolexec.ErrUnknownTool)

	var rejected []Event
	for len(rejected) < 2 {
		if event := <-events; event.Type == EventRejected {
			rejected = append(rejected, event)
		}
	}
	assert.Equal(t, "once", rejected[0].Tool)
	assert.Equal(t, toolexec.RejectRateLimited, rejected[0].Reason)
	assert.Contains(t, rejected[0].Error, "rate limit exceeded")
	assert.Equal(t, "ghost", rejected[1].Tool)
	assert.Equal(t, toolexec.RejectUnknownTool, rejected[1].Reason)

	body := scrape(t, metrics)
	assert.Contains(t, body, `toolpipe_pipeline_rejections_total{reason="rate_limited",tool_name="once"} 1`)
	assert.Contains(t, body, `toolpipe_pipeline_rejections_total{reason="unknown_tool",tool_name="ghost"} 1`)
	assert.Contains(t, logs.String(), "tool rejected")
}

package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records tool pipeline metrics. A collector built from a
// disabled config is valid and records nothing.
type MetricsCollector struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	toolExecutions metric.Int64Counter
	toolDuration   metric.Float64Histogram
	toolAttempts   metric.Int64Histogram
	toolInflight   metric.Int64UpDownCounter

	pipeline *PipelineMetrics
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// NewMetricsCollector creates a collector backed by its own Prometheus
// registry, served by Handler.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = "toolpipe"
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
		prometheus.WithNamespace(namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("toolpipe")

	toolExecutions, err := meter.Int64Counter(
		"tool.executions",
		metric.WithDescription("Tool invocations that reached execution, by outcome"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_executions counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"tool.duration",
		metric.WithDescription("Tool execution duration in seconds, retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_duration histogram: %w", err)
	}

	toolAttempts, err := meter.Int64Histogram(
		"tool.attempts",
		metric.WithDescription("Attempts made per tool invocation"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_attempts histogram: %w", err)
	}

	toolInflight, err := meter.Int64UpDownCounter(
		"tool.inflight",
		metric.WithDescription("Tool invocations currently executing"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_inflight gauge: %w", err)
	}

	return &MetricsCollector{
		registry:       registry,
		provider:       provider,
		toolExecutions: toolExecutions,
		toolDuration:   toolDuration,
		toolAttempts:   toolAttempts,
		toolInflight:   toolInflight,
		pipeline:       NewPipelineMetrics(registry, namespace),
	}, nil
}

// Enabled reports whether the collector records anything.
func (m *MetricsCollector) Enabled() bool {
	return m != nil && m.registry != nil
}

// Handler serves the collector's registry in the Prometheus text format.
func (m *MetricsCollector) Handler() http.Handler {
	if !m.Enabled() {
		return promhttp.HandlerFor(promclient.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Pipeline returns the admission and cache counters, nil when disabled.
func (m *MetricsCollector) Pipeline() *PipelineMetrics {
	if m == nil {
		return nil
	}
	return m.pipeline
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordToolExecution records one finished invocation.
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, toolName string, status string, duration time.Duration, attempts int) {
	if m == nil || m.toolExecutions == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", toolName),
		attribute.String("status", status),
	}

	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool_name", toolName)))
	if attempts > 0 {
		m.toolAttempts.Record(ctx, int64(attempts), metric.WithAttributes(attribute.String("tool_name", toolName)))
	}
}

// IncrementInflight marks an invocation as executing.
func (m *MetricsCollector) IncrementInflight(ctx context.Context, toolName string) {
	if m == nil || m.toolInflight == nil {
		return
	}
	m.toolInflight.Add(ctx, 1, metric.WithAttributes(attribute.String("tool_name", toolName)))
}

// DecrementInflight marks an invocation as finished.
func (m *MetricsCollector) DecrementInflight(ctx context.Context, toolName string) {
	if m == nil || m.toolInflight == nil {
		return
	}
	m.toolInflight.Add(ctx, -1, metric.WithAttributes(attribute.String("tool_name", toolName)))
}

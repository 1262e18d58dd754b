package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig configures distributed tracing
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	Exporter       string  `yaml:"exporter" json:"exporter"` // otlp, zipkin
	OTLPEndpoint   string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint" json:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate" json:"sample_rate"` // 0.0 to 1.0
	ServiceName    string  `yaml:"service_name" json:"service_name"`
	ServiceVersion string  `yaml:"service_version" json:"service_version"`
}

// TracerProvider wraps OpenTelemetry tracer
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewNoopTracerProvider returns a provider whose spans are discarded.
func NewNoopTracerProvider() *TracerProvider {
	return &TracerProvider{tracer: noop.NewTracerProvider().Tracer("toolpipe")}
}

// WrapTracerProvider adopts an already configured SDK provider.
func WrapTracerProvider(provider *sdktrace.TracerProvider) *TracerProvider {
	return &TracerProvider{provider: provider, tracer: provider.Tracer("toolpipe")}
}

const (
	defaultOTLPEndpoint   = "localhost:4318"
	defaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"
)

// NewTracerProvider builds an SDK provider exporting through the configured
// exporter and installs it globally. A disabled config yields a no-op.
func NewTracerProvider(config TracingConfig) (*TracerProvider, error) {
	if !config.Enabled {
		return NewNoopTracerProvider(), nil
	}
	ctx := context.Background()

	exporter, err := newSpanExporter(ctx, config)
	if err != nil {
		return nil, err
	}
	res, err := serviceResource(ctx, config)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate(config.SampleRate)))),
	)
	otel.SetTracerProvider(provider)
	return WrapTracerProvider(provider), nil
}

func newSpanExporter(ctx context.Context, config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case "", "otlp":
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(orDefault(config.OTLPEndpoint, defaultOTLPEndpoint)),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		return exporter, nil
	case "zipkin":
		exporter, err := zipkin.New(orDefault(config.ZipkinEndpoint, defaultZipkinEndpoint))
		if err != nil {
			return nil, fmt.Errorf("create zipkin exporter: %w", err)
		}
		return exporter, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter %q", config.Exporter)
	}
}

func serviceResource(ctx context.Context, config TracingConfig) (*resource.Resource, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(orDefault(config.ServiceName, "toolpipe")),
		semconv.ServiceVersion(config.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}
	return res, nil
}

func sampleRate(rate float64) float64 {
	if rate <= 0 || rate > 1 {
		return 1
	}
	return rate
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// StartSpan starts a new span, tagging it with the request id in ctx.
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	return tp.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Span names.
const (
	SpanToolExecute = "toolpipe.tool.execute"
	SpanToolBatch   = "toolpipe.tool.batch"
	SpanHTTPServer  = "toolpipe.http.request"
)

// Attribute keys.
const (
	AttrRequestID = "toolpipe.request_id"
	AttrToolName  = "toolpipe.tool_name"
	AttrAttempts  = "toolpipe.attempts"
	AttrRetries   = "toolpipe.retries_remaining"
	AttrStatus    = "toolpipe.status"
	AttrError     = "toolpipe.error"
	AttrBatchSize = "toolpipe.batch_size"
	AttrParallel  = "toolpipe.parallel"
)

// ToolAttrs tags a span with the tool name.
func ToolAttrs(toolName string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(AttrToolName, toolName)}
}

// StatusAttrs tags a span with the invocation outcome.
func StatusAttrs(status string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(AttrStatus, status)}
}

// ErrorAttrs marks a span as failed with message; empty adds nothing.
func ErrorAttrs(message string) []attribute.KeyValue {
	if message == "" {
		return nil
	}
	return []attribute.KeyValue{
		attribute.Bool(AttrError, true),
		attribute.String("error.message", message),
	}
}

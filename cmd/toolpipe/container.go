package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"toolpipe/internal/config"
	"toolpipe/internal/logging"
	"toolpipe/internal/observability"
	"toolpipe/internal/toolexec"
	"toolpipe/internal/tools/builtin"
)

// Container holds the collaborators one CLI invocation needs.
type Container struct {
	Config     *config.Config
	Logger     *observability.Logger
	Metrics    *observability.MetricsCollector
	Tracer     *observability.TracerProvider
	Events     *observability.EventHub
	Pipeline   *toolexec.Pipeline
	Registered []string
}

func buildContainer(cfg *config.Config, logOutput io.Writer) (*Container, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	obs := cfg.Observability

	logger := observability.NewLogger(observability.LogConfig{
		Level:  obs.Logging.Level,
		Format: obs.Logging.Format,
		Output: logOutput,
	})

	metrics, err := observability.NewMetricsCollector(obs.Metrics)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	tracer, err := observability.NewTracerProvider(obs.Tracing)
	if err != nil {
		_ = metrics.Shutdown(context.Background())
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	events := observability.NewEventHub(obs.Events.Buffer)

	monitor := observability.NewToolMonitor(
		observability.WithMonitorLogger(logger),
		observability.WithMonitorMetrics(metrics),
		observability.WithMonitorTracer(tracer),
		observability.WithMonitorEvents(events),
	)

	options := cfg.PipelineOptions()
	options.Monitor = monitor
	options.Logger = logging.FromSlog(logger.Slog(), "toolexec")
	pipeline := toolexec.New(options)

	registered, err := builtin.Register(pipeline, cfg)
	if err != nil {
		events.Close()
		_ = tracer.Shutdown(context.Background())
		_ = metrics.Shutdown(context.Background())
		return nil, err
	}
	metrics.Pipeline().SetRegisteredTools(len(registered))
	logger.Debug("pipeline ready", "tools", len(registered))

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
		Events:     events,
		Pipeline:   pipeline,
		Registered: registered,
	}, nil
}

// Cleanup flushes exporters and closes the event hub.
func (c *Container) Cleanup(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.Events.Close()
	return errors.Join(c.Tracer.Shutdown(ctx), c.Metrics.Shutdown(ctx))
}

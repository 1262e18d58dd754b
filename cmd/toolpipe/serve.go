package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"toolpipe/internal/async"
	"toolpipe/internal/logging"
	"toolpipe/internal/server"
)

func newServeCommand(cli *CLI) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Long: `Serve the pipeline over HTTP until interrupted.

Endpoints: /healthz, /metrics, /v1/tools, /v1/tools/:name,
/v1/tools/:name/invoke, /v1/tools/:name/cache, /v1/batch and the
/v1/events websocket stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := cli.initialize()
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, container, debug)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Run gin in debug mode")
	_ = cli.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// serve runs the HTTP server until ctx is done, then shuts it down within
// the configured grace period.
func serve(ctx context.Context, container *Container, debug bool) error {
	cfg := container.Config.Server
	logger := logging.FromSlog(container.Logger.Slog(), "server")

	srv := server.New(container.Pipeline, server.Config{
		Addr:        cfg.Addr,
		CORSOrigins: cfg.CORSOrigins,
		Debug:       debug,
		ReadTimeout: 30 * time.Second,
		Version:     Version,
	},
		server.WithMetrics(container.Metrics),
		server.WithTracer(container.Tracer),
		server.WithEvents(container.Events),
		server.WithLogger(logger),
	)

	errCh := make(chan error, 1)
	async.Go(logger, "http-server", func() {
		errCh <- srv.Start()
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

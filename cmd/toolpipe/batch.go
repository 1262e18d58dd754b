package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"toolpipe/internal/observability"
	"toolpipe/internal/toolargs"
)

type batchOutput struct {
	Parallel   bool   `json:"parallel"`
	Success    bool   `json:"success"`
	Results    []any  `json:"results,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func newBatchCommand(cli *CLI) *cobra.Command {
	var (
		file     string
		parallel bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Invoke a list of tools from a JSON file",
		Long: `Invoke the tools listed in a JSON file, in order or concurrently.

The file holds an array of {"tool": "...", "args": {...}} objects; "-" reads
standard input. Results are printed in input order. Sequential batches stop
at the first failure; parallel batches run every entry and report the first
failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readBatchFile(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			invocations, err := toolargs.ParseBatch(raw)
			if err != nil {
				return err
			}

			container, err := cli.initialize()
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = observability.ContextWithRequestID(ctx, uuid.NewString())

			start := time.Now()
			results, err := container.Pipeline.ExecuteBatch(ctx, invocations, parallel)
			out := batchOutput{
				Parallel:   parallel,
				Success:    err == nil,
				Results:    results,
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				out.Error = describeError(err)
			}
			if encErr := cli.print.json(out); encErr != nil {
				return encErr
			}
			if err != nil {
				return &ExitCodeError{Code: exitCode(err), Err: errAlreadyReported{err}}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with the invocations, or - for stdin")
	cmd.Flags().BoolVarP(&parallel, "parallel", "p", false, "Run the invocations concurrently")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readBatchFile(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read batch from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return data, nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"toolpipe/internal/observability"
	"toolpipe/internal/toolargs"
)

// runResult is what `run --json` prints.
type runResult struct {
	Tool       string `json:"tool"`
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func newRunCommand(cli *CLI) *cobra.Command {
	var (
		rawArgs  string
		pairs    []string
		repeat   int
		asJSON   bool
		deadline time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <tool>",
		Short: "Invoke one tool",
		Long: `Invoke one tool through the pipeline and print its result.

Arguments come from --args (a JSON object, repaired when slightly malformed)
and --arg key=value pairs, which take precedence. --repeat runs the same
call several times in one process so the cache and rate limiter apply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := toolargs.Parse(rawArgs)
			if err != nil {
				return err
			}
			overrides, err := toolargs.ParsePairs(pairs)
			if err != nil {
				return err
			}
			callArgs := toolargs.Merge(base, overrides)

			container, err := cli.initialize()
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if deadline > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, deadline)
				defer cancel()
			}
			ctx = observability.ContextWithRequestID(ctx, uuid.NewString())

			if repeat < 1 {
				repeat = 1
			}
			var lastErr error
			for i := 0; i < repeat; i++ {
				start := time.Now()
				result, err := container.Pipeline.ExecuteTool(ctx, args[0], callArgs)
				lastErr = err
				if asJSON {
					out := runResult{Tool: args[0], Success: err == nil, Result: result, DurationMs: time.Since(start).Milliseconds()}
					if err != nil {
						out.Error = describeError(err)
					}
					if encErr := cli.print.json(out); encErr != nil {
						return encErr
					}
					continue
				}
				if err != nil {
					cli.print.failure("%s", describeError(err))
					continue
				}
				if err := cli.print.json(result); err != nil {
					return err
				}
			}
			if lastErr != nil {
				return &ExitCodeError{Code: exitCode(lastErr), Err: errAlreadyReported{lastErr}}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&rawArgs, "args", "a", "", "Arguments as a JSON object")
	cmd.Flags().StringArrayVar(&pairs, "arg", nil, "Argument as key=value; repeatable")
	cmd.Flags().IntVarP(&repeat, "repeat", "n", 1, "Number of times to invoke the tool")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON envelope per call")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Overall deadline for all calls")
	return cmd
}

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"toolpipe/internal/toolexec"
)

type toolView struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	TimeoutMs    int64    `json:"timeout_ms"`
	Cache        bool     `json:"cache"`
	RateLimit    int      `json:"rate_limit"`
	Retries      int      `json:"retries"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func newToolView(desc toolexec.Descriptor, policy toolexec.Policy) toolView {
	return toolView{
		Name:         desc.Name,
		Description:  desc.Description,
		TimeoutMs:    policy.Timeout.Milliseconds(),
		Cache:        policy.Cache,
		RateLimit:    policy.RateLimit,
		Retries:      policy.Retries,
		Dependencies: policy.Dependencies,
	}
}

func newToolsCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools",
	}

	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools and their policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := cli.initialize()
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			views := make([]toolView, 0, len(container.Registered))
			for _, desc := range container.Pipeline.List() {
				_, policy, err := container.Pipeline.Describe(desc.Name)
				if err != nil {
					return err
				}
				views = append(views, newToolView(desc, policy))
			}
			if listJSON {
				return cli.print.json(views)
			}
			rows := make([][]string, 0, len(views))
			for _, view := range views {
				rows = append(rows, []string{
					view.Name,
					strconv.FormatInt(view.TimeoutMs, 10) + "ms",
					strconv.FormatBool(view.Cache),
					limitLabel(view.RateLimit),
					strconv.Itoa(view.Retries),
					dependencyLabel(view.Dependencies),
				})
			}
			cli.print.table([]string{"name", "timeout", "cache", "rate limit", "retries", "depends on"}, rows)
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print as JSON")
	cmd.AddCommand(listCmd)

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <tool>",
		Short: "Show one tool's description and policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := cli.initialize()
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			desc, policy, err := container.Pipeline.Describe(args[0])
			if err != nil {
				return err
			}
			view := newToolView(desc, policy)
			if showJSON {
				return cli.print.json(view)
			}
			cli.print.println(bold(cyan(view.Name)))
			if view.Description != "" {
				cli.print.println("  " + view.Description)
			}
			cli.print.printf("  timeout:    %dms\n", view.TimeoutMs)
			cli.print.printf("  cache:      %t\n", view.Cache)
			cli.print.printf("  rate limit: %s\n", limitLabel(view.RateLimit))
			cli.print.printf("  retries:    %d\n", view.Retries)
			cli.print.printf("  depends on: %s\n", dependencyLabel(view.Dependencies))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Print as JSON")
	cmd.AddCommand(showCmd)

	var statsJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-tool cache and rate window state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := cli.initialize()
			if err != nil {
				return err
			}
			defer container.Cleanup(context.Background())

			stats := container.Pipeline.Stats()
			if statsJSON {
				return cli.print.json(stats)
			}
			rows := make([][]string, 0, len(stats))
			for _, s := range stats {
				rows = append(rows, []string{
					s.Name,
					strconv.FormatBool(s.CacheEnabled),
					strconv.Itoa(s.CacheEntries),
					strconv.Itoa(s.WindowCount) + "/" + limitLabel(s.RateLimit),
				})
			}
			cli.print.table([]string{"name", "cache", "entries", "window"}, rows)
			return nil
		},
	}
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print as JSON")
	cmd.AddCommand(statsCmd)

	return cmd
}

func limitLabel(limit int) string {
	if limit <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(limit)
}

func dependencyLabel(deps []string) string {
	if len(deps) == 0 {
		return "-"
	}
	return strings.Join(deps, ",")
}

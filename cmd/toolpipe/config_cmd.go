package main

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"toolpipe/internal/config"
	"toolpipe/internal/tools/builtin"
)

func newConfigCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			cli.print.printf("%s", data)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.print.println(cli.configPath())
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with every builtin tool's defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cli.configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return &ExitCodeError{Code: exitUsage, Err: fmt.Errorf("%s already exists; use --force to overwrite", path)}
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("stat config file: %w", err)
			}
			if err := config.Save(path, starterConfig()); err != nil {
				return err
			}
			cli.print.success("wrote %s", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

// starterConfig is the defaults plus an explicit policy block per builtin
// tool, so the written file documents every knob.
func starterConfig() *config.Config {
	cfg := config.Defaults()
	for _, entry := range builtin.Entries(nil) {
		policy := entry.Policy
		timeoutMs := int(policy.Timeout.Milliseconds())
		cache := policy.Cache
		rateLimit := policy.RateLimit
		retries := policy.Retries
		cfg.Tools[entry.Tool.Name()] = config.ToolConfig{
			TimeoutMs:    &timeoutMs,
			Cache:        &cache,
			RateLimit:    &rateLimit,
			Retries:      &retries,
			Dependencies: slices.Clone(policy.Dependencies),
		}
	}
	return cfg
}

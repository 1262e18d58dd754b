package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"toolpipe/internal/config"
)

// CLI holds state shared by every subcommand.
type CLI struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
	print  *printer
}

// NewRootCommand builds the toolpipe command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TOOLPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cli := &CLI{v: v, out: out, errOut: errOut, print: newPrinter(out, errOut)}

	rootCmd := &cobra.Command{
		Use:   "toolpipe",
		Short: "Run tools through the execution pipeline",
		Long: fmt.Sprintf(`%s

Every invocation is checked for dependencies, rate limited, served from
the result cache when possible, bounded by a timeout and retried on
failure.

%s
  toolpipe tools list
  toolpipe run echo --arg message=hi
  toolpipe run text_diff --args '{"old":"a","new":"b"}'
  toolpipe batch --file calls.json --parallel
  toolpipe serve --addr 127.0.0.1:8080`,
			bold("toolpipe "+Version),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Config file (default "+config.DefaultConfigPath()+")")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text, json")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log-format", flags.Lookup("log-format"))

	rootCmd.AddCommand(newToolsCommand(cli))
	rootCmd.AddCommand(newRunCommand(cli))
	rootCmd.AddCommand(newBatchCommand(cli))
	rootCmd.AddCommand(newServeCommand(cli))
	rootCmd.AddCommand(newConfigCommand(cli))
	rootCmd.AddCommand(newVersionCommand(cli))

	return rootCmd
}

// configPath resolves --config, then TOOLPIPE_CONFIG, then the default path.
func (cli *CLI) configPath() string {
	if path := strings.TrimSpace(cli.v.GetString("config")); path != "" {
		return path
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it.
func (cli *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cli.configPath())
	if err != nil {
		return nil, err
	}
	if level := cli.v.GetString("log-level"); level != "" {
		cfg.Observability.Logging.Level = level
	}
	if format := cli.v.GetString("log-format"); format != "" {
		cfg.Observability.Logging.Format = format
	}
	if addr := cli.v.GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	return cfg, nil
}

// initialize loads the config and builds the pipeline container.
func (cli *CLI) initialize() (*Container, error) {
	cfg, err := cli.loadConfig()
	if err != nil {
		return nil, err
	}
	return buildContainer(cfg, cli.errOut)
}

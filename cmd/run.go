package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"poller/internal/app"
	"poller/internal/controller"
	"poller/internal/formatting"
)

type runOptions struct {
	configPath  string
	metricsAddr string
	output      string
	noColor     bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the controllers declared in a configuration file",
		Long: `Creates and starts every controller declared in the configuration file.

The command returns once every controller has finished, which only happens on
its own for single-run controllers (run-once, input-dir or debug), or when
SIGINT or SIGTERM is received. The final state of every controller is printed
before exiting. A file without a controllers section runs one controller
built from its poller section.`,
		Example: `  poller run --config poller.yaml
  poller run -c poller.yaml --metrics-addr :9090 --log-level INFO`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Poller configuration file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", string(formatting.FormatTable), "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored table output")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := appConfig(cmd, opts.configPath, opts.metricsAddr, opts.output, opts.noColor)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(runContext(cmd))
}

// runContext is cancelled by SIGINT or SIGTERM, or with the command context.
func runContext(cmd *cobra.Command) context.Context {
	term := controller.TerminationContext()
	parent := cmd.Context()
	if parent == nil {
		return term
	}
	ctx, cancel := context.WithCancel(parent)
	context.AfterFunc(term, cancel)
	return ctx
}

func appConfig(cmd *cobra.Command, configPath, metricsAddr, output string, noColor bool) (*app.Config, error) {
	format, err := formatting.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	cfg := app.NewConfig(configPath, metricsAddr, cmd.OutOrStdout())
	cfg.Output = formatting.Options{Format: format, Color: !noColor}
	return cfg, nil
}

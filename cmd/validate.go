package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"poller/internal/app"
	"poller/internal/formatting"
)

func newValidateCmd() *cobra.Command {
	var (
		configPath string
		output     string
		noColor    bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the controllers declared in a configuration file",
		Long: `Builds every declared controller and loads its plugins without running it,
then prints the resulting controllers. Every problem found is reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appConfig(cmd, configPath, "", output, noColor)
			if err != nil {
				return err
			}
			application, err := app.NewApplication(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Validate(runContext(cmd))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Poller configuration file")
	cmd.Flags().StringVarP(&output, "output", "o", string(formatting.FormatTable), "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored table output")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"poller/internal/config"
	"poller/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (a controller failed, an I/O error).
	ExitCodeError = 1
	// ExitCodeConfigError indicates an invalid configuration.
	ExitCodeConfigError = 2
)

var logLevel string

// rootCmd represents the base command for the poller application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "poller",
	Short: "Run and supervise network inventory pollers",
	Long: `poller keeps the device inventory of one or more controllers in sync with
their inventory sources and hands the devices to the configured workers.

Controllers are declared in a YAML configuration file. Each one reads its
inventory sources, drops duplicated devices, splits the rest into one chunk
per worker and applies the assignment, once or periodically.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logging.InitForCLI(level, cmd.ErrOrStderr())
		return nil
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "poller version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfigError
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLoggingLevel,
		"Log level: DEBUG, INFO, WARNING, ERROR or CRITICAL")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())
}

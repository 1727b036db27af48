package app

import (
	"io"
	"time"

	"poller/internal/formatting"
	"poller/internal/plugins"
)

const defaultShutdownTimeout = 30 * time.Second

// Config holds the application configuration
type Config struct {
	// ConfigPath is the poller configuration file.
	ConfigPath string

	// MetricsAddr, when set, is the listen address of the /metrics endpoint.
	MetricsAddr string

	// Output selects how the controller table is written to Out.
	Output formatting.Options
	Out    io.Writer

	// Registry overrides the built-in plugin registry.
	Registry *plugins.Registry

	// ShutdownTimeout bounds the time spent stopping controllers and
	// delivering their webhooks.
	ShutdownTimeout time.Duration
}

// NewConfig creates a new application configuration
func NewConfig(configPath, metricsAddr string, out io.Writer) *Config {
	return &Config{
		ConfigPath:      configPath,
		MetricsAddr:     metricsAddr,
		Out:             out,
		Output:          formatting.Options{Format: formatting.FormatTable},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

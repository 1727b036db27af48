// Package builtin contains the plugins shipped with the poller binary.
//
// Sources:
//   - native: devices listed inline as URLs
//   - file: devices read from a YAML file that is watched for changes
//
// The static chunker and the static manager are used when a configuration
// does not name a chunker or manager type.
package builtin

import (
	"poller/internal/config"
	"poller/internal/plugins"
)

// Register adds every built-in plugin to reg.
func Register(reg *plugins.Registry) {
	reg.MustRegister(plugins.RoleSource, "native", NewNativeSource)
	reg.MustRegister(plugins.RoleSource, "file", NewFileSource)
	reg.MustRegister(plugins.RoleChunker, config.DefaultPluginType, NewStaticChunker)
	reg.MustRegister(plugins.RoleManager, config.DefaultPluginType, NewStaticManager)
}

// NewRegistry returns a registry holding the built-in plugins.
func NewRegistry() *plugins.Registry {
	reg := plugins.NewRegistry()
	Register(reg)
	return reg
}

func nameOr(cfg config.PluginConfig, fallback string) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return fallback
}

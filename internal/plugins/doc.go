// Package plugins defines the plugin roles used by a controller and the
// registry that builds plugins from configuration blocks.
//
// There are three roles. A controller holds any number of sources, exactly
// one chunker and exactly one manager. Any plugin may also implement Runner,
// in which case the controller runs it as a separate task for the lifetime
// of a run.
//
// The registry is an explicit value populated at startup:
//
//	reg := plugins.NewRegistry()
//	builtin.Register(reg)
//	sources, err := reg.Build(plugins.RoleSource, inv.Sources)
package plugins

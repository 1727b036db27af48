package plugins

import (
	"fmt"
	"sort"
	"sync"

	"poller/internal/config"
)

// Factory builds one plugin from its configuration block.
type Factory func(cfg config.PluginConfig) (Plugin, error)

// Registry maps a role and a plugin type to the factory that builds it.
// A registry is built at startup and passed to the controllers that use it.
type Registry struct {
	mu        sync.RWMutex
	factories map[Role]map[string]Factory
}

// NewRegistry creates a registry that knows the source, chunker and manager
// roles and no plugin types.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[Role]map[string]Factory{
			RoleSource:  {},
			RoleChunker: {},
			RoleManager: {},
		},
	}
}

// Register adds a factory for pluginType under role.
func (r *Registry) Register(role Role, pluginType string, f Factory) error {
	if f == nil {
		return fmt.Errorf("cannot register nil factory for %s plugin %q", role, pluginType)
	}
	if pluginType == "" {
		return fmt.Errorf("cannot register %s plugin with empty type", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	types, ok := r.factories[role]
	if !ok {
		return fmt.Errorf("unknown plugin role %q", role)
	}
	if _, exists := types[pluginType]; exists {
		return fmt.Errorf("%s plugin %q already registered", role, pluginType)
	}
	types[pluginType] = f
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// registering built-in plugins at startup.
func (r *Registry) MustRegister(role Role, pluginType string, f Factory) {
	if err := r.Register(role, pluginType, f); err != nil {
		panic(err)
	}
}

// Types returns the registered plugin types of role, sorted.
func (r *Registry) Types(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories[role]))
	for t := range r.factories[role] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Build constructs one plugin per block. It performs no I/O beyond what the
// factories do. Any failure is returned as a *config.ConfigurationError
// listing every block that could not be built.
func (r *Registry) Build(role Role, blocks []config.PluginConfig) ([]Plugin, error) {
	r.mu.RLock()
	types, ok := r.factories[role]
	r.mu.RUnlock()
	if !ok {
		return nil, config.NewConfigurationError("unknown plugin role %q", role)
	}

	var errs config.ErrorCollection
	out := make([]Plugin, 0, len(blocks))
	for i, block := range blocks {
		r.mu.RLock()
		f, ok := types[block.Type]
		r.mu.RUnlock()
		if !ok {
			errs.Addf("%s[%d]: unknown %s plugin type %q", role, i, role, block.Type)
			continue
		}

		p, err := f(block)
		if err != nil {
			errs.Addf("%s[%d] (%s): %v", role, i, block.Type, err)
			continue
		}
		if err := checkRole(role, p); err != nil {
			errs.Addf("%s[%d] (%s): %v", role, i, block.Type, err)
			continue
		}
		out = append(out, p)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkRole(role Role, p Plugin) error {
	var ok bool
	switch role {
	case RoleSource:
		_, ok = p.(Source)
	case RoleChunker:
		_, ok = p.(Chunker)
	case RoleManager:
		_, ok = p.(Manager)
	}
	if !ok {
		return fmt.Errorf("plugin %s does not implement the %s interface", p.Name(), role)
	}
	return nil
}

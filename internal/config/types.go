package config

import (
	"fmt"
	"time"

	"github.com/mohae/deepcopy"
	"gopkg.in/yaml.v3"
)

// Config is the top-level structure of a poller configuration file.
type Config struct {
	// ServiceDirectory holds one YAML definition per pollable service. When
	// empty the built-in service list is used.
	ServiceDirectory string `yaml:"service-directory,omitempty" json:"service-directory,omitempty"`

	Poller PollerConfig `yaml:"poller" json:"poller"`

	// Controllers declares the controllers the run command creates at startup.
	Controllers []ControllerSpec `yaml:"controllers,omitempty" json:"controllers,omitempty"`
}

// PollerConfig is the "poller" section. Integer durations are in seconds and
// zero means "use the default".
type PollerConfig struct {
	UpdatePeriod     int          `yaml:"update-period,omitempty" json:"update-period,omitempty"`
	InventoryTimeout int          `yaml:"inventory-timeout,omitempty" json:"inventory-timeout,omitempty"`
	Period           int          `yaml:"period,omitempty" json:"period,omitempty"`
	ConnectTimeout   int          `yaml:"connect-timeout,omitempty" json:"connect-timeout,omitempty"`
	LoggingLevel     string       `yaml:"logging-level,omitempty" json:"logging-level,omitempty"`
	MaxCmdPipeline   int          `yaml:"max-cmd-pipeline,omitempty" json:"max-cmd-pipeline,omitempty"`
	InventoryFile    string       `yaml:"inventory-file,omitempty" json:"inventory-file,omitempty"`
	Chunker          PluginBlocks `yaml:"chunker,omitempty" json:"chunker,omitempty"`
	Manager          PluginBlocks `yaml:"manager,omitempty" json:"manager,omitempty"`
}

// Clone returns a deep copy of the poller section.
func (p PollerConfig) Clone() PollerConfig {
	out := p
	out.Chunker = p.Chunker.Clone()
	out.Manager = p.Manager.Clone()
	return out
}

// ControllerSpec declares one controller in the configuration file.
type ControllerSpec struct {
	Name    string         `yaml:"name,omitempty" json:"name,omitempty"`
	Args    Args           `yaml:"args,omitempty" json:"args,omitempty"`
	Webhook *WebhookConfig `yaml:"webhook,omitempty" json:"webhook,omitempty"`
}

// Args are the per-controller overrides. A zero value means the argument was
// not supplied and the poller section (or the default) applies.
type Args struct {
	Config           string   `yaml:"config,omitempty" json:"config,omitempty"`
	Inventory        string   `yaml:"inventory,omitempty" json:"inventory,omitempty"`
	InputDir         string   `yaml:"input-dir,omitempty" json:"input-dir,omitempty"`
	Debug            bool     `yaml:"debug,omitempty" json:"debug,omitempty"`
	RunOnce          string   `yaml:"run-once,omitempty" json:"run-once,omitempty"`
	NoCoalescer      bool     `yaml:"no-coalescer,omitempty" json:"no-coalescer,omitempty"`
	UpdatePeriod     int      `yaml:"update-period,omitempty" json:"update-period,omitempty"`
	InventoryTimeout int      `yaml:"inventory-timeout,omitempty" json:"inventory-timeout,omitempty"`
	Workers          int      `yaml:"workers,omitempty" json:"workers,omitempty"`
	Period           int      `yaml:"period,omitempty" json:"period,omitempty"`
	ConnectTimeout   int      `yaml:"connect-timeout,omitempty" json:"connect-timeout,omitempty"`
	LoggingLevel     string   `yaml:"logging-level,omitempty" json:"logging-level,omitempty"`
	ServiceOnly      string   `yaml:"service-only,omitempty" json:"service-only,omitempty"`
	ExcludeServices  string   `yaml:"exclude-services,omitempty" json:"exclude-services,omitempty"`
	OutputDir        string   `yaml:"output-dir,omitempty" json:"output-dir,omitempty"`
	Outputs          []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	MaxCmdPipeline   int      `yaml:"max-cmd-pipeline,omitempty" json:"max-cmd-pipeline,omitempty"`
	SSHConfigFile    string   `yaml:"ssh-config-file,omitempty" json:"ssh-config-file,omitempty"`
}

// WebhookConfig describes the notification sent when a controller run ends.
type WebhookConfig struct {
	URL           string                 `yaml:"url" json:"url"`
	SendConfig    bool                   `yaml:"send-config,omitempty" json:"send-config,omitempty"`
	CustomPayload map[string]interface{} `yaml:"custom-payload,omitempty" json:"custom-payload,omitempty"`
	VerifySSL     *bool                  `yaml:"verify-ssl,omitempty" json:"verify-ssl,omitempty"`
	Timeout       int                    `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Headers       map[string]string      `yaml:"headers,omitempty" json:"headers,omitempty"`
	Params        map[string]string      `yaml:"params,omitempty" json:"params,omitempty"`
	Auth          *BasicAuth             `yaml:"auth,omitempty" json:"auth,omitempty"`
	Cert          string                 `yaml:"cert,omitempty" json:"cert,omitempty"`
	Retries       int                    `yaml:"retries,omitempty" json:"retries,omitempty"`
}

// BasicAuth holds HTTP basic credentials.
type BasicAuth struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// PluginConfig is one plugin declaration: a type, an optional instance name,
// and type-specific options written inline next to them.
type PluginConfig struct {
	Type    string                 `json:"type"`
	Name    string                 `json:"name,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// UnmarshalYAML splits the type and name keys from the remaining options.
func (p *PluginConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := map[string]interface{}{}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("plugin block at line %d: %w", value.Line, err)
	}

	if t, ok := raw["type"]; ok {
		s, ok := t.(string)
		if !ok {
			return fmt.Errorf("plugin block at line %d: type must be a string", value.Line)
		}
		p.Type = s
		delete(raw, "type")
	}
	if n, ok := raw["name"]; ok {
		p.Name = fmt.Sprint(n)
		delete(raw, "name")
	}
	p.Options = raw
	return nil
}

// MarshalYAML writes the block back in its inline form.
func (p PluginConfig) MarshalYAML() (interface{}, error) {
	out := make(map[string]interface{}, len(p.Options)+2)
	for k, v := range p.Options {
		out[k] = v
	}
	if p.Type != "" {
		out["type"] = p.Type
	}
	if p.Name != "" {
		out["name"] = p.Name
	}
	return out, nil
}

// Clone returns a deep copy of the block.
func (p PluginConfig) Clone() PluginConfig {
	out := PluginConfig{Type: p.Type, Name: p.Name}
	if p.Options != nil {
		out.Options = deepcopy.Copy(p.Options).(map[string]interface{})
	}
	return out
}

// Option returns the named option and whether it was set.
func (p PluginConfig) Option(key string) (interface{}, bool) {
	v, ok := p.Options[key]
	return v, ok
}

// SetOption sets an option, allocating the map when needed.
func (p *PluginConfig) SetOption(key string, value interface{}) {
	if p.Options == nil {
		p.Options = map[string]interface{}{}
	}
	p.Options[key] = value
}

// PluginBlocks holds the blocks declared for one plugin role. In YAML it may
// be written as a single mapping or as a sequence of mappings.
type PluginBlocks []PluginConfig

// UnmarshalYAML accepts both the mapping and the sequence form.
func (b *PluginBlocks) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var single PluginConfig
		if err := value.Decode(&single); err != nil {
			return err
		}
		*b = PluginBlocks{single}
		return nil
	case yaml.SequenceNode:
		var list []PluginConfig
		if err := value.Decode(&list); err != nil {
			return err
		}
		*b = list
		return nil
	default:
		return fmt.Errorf("line %d: plugin configuration must be a mapping or a list", value.Line)
	}
}

// Clone returns a deep copy of every block.
func (b PluginBlocks) Clone() PluginBlocks {
	if b == nil {
		return nil
	}
	out := make(PluginBlocks, len(b))
	for i, p := range b {
		out[i] = p.Clone()
	}
	return out
}

// Seconds converts a configuration value in seconds to a time.Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

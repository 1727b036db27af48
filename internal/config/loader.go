package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"poller/pkg/logging"

	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

// LoadConfig reads and parses a poller configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewConfigurationError("configuration file not found at %s", path)
		}
		return nil, fmt.Errorf("error reading config from %s: %w", path, err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	return cfg, nil
}

// ParseConfig parses configuration YAML. Unknown top-level keys are ignored
// so the same file can carry settings for other poller components.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Inventory is the content of an inventory file. Only the sources are
// interpreted by the controller; devices, auths and namespaces are kept for
// the source plugins that reference them.
type Inventory struct {
	Sources    []PluginConfig           `yaml:"sources"`
	Devices    []map[string]interface{} `yaml:"devices,omitempty"`
	Auths      []map[string]interface{} `yaml:"auths,omitempty"`
	Namespaces []map[string]interface{} `yaml:"namespaces,omitempty"`
}

// LoadInventory reads an inventory file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading inventory %s: %w", path, err)
	}
	inv := &Inventory{}
	if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, NewConfigurationError("invalid inventory file %s: %v", path, err)
	}
	return inv, nil
}

// DecodeOptions converts a plugin's option map into a typed struct. The
// struct uses json tags; unknown keys are ignored because every plugin also
// receives the controller-injected options.
func DecodeOptions(options map[string]interface{}, out interface{}) error {
	if options == nil {
		options = map[string]interface{}{}
	}
	data, err := sigsyaml.Marshal(options)
	if err != nil {
		return fmt.Errorf("encoding plugin options: %w", err)
	}
	if err := sigsyaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding plugin options: %w", err)
	}
	return nil
}

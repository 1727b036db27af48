package builtin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"poller/internal/config"
	"poller/internal/inventory"
	"poller/internal/plugins"
)

var defaultPorts = map[string]int{
	"ssh":   22,
	"https": 443,
	"http":  80,
}

type nativeOptions struct {
	Namespace string `json:"namespace"`
	Hosts     []struct {
		URL string `json:"url"`
	} `json:"hosts"`
}

// NativeSource serves a fixed device list written inline in the inventory:
//
//	- name: lab
//	  type: native
//	  namespace: dc1
//	  hosts:
//	    - url: ssh://admin@10.0.0.1:2222
//	    - url: https://10.0.0.2
type NativeSource struct {
	name    string
	entries map[string]inventory.Entry
}

// NewNativeSource is the factory of the native source.
func NewNativeSource(cfg config.PluginConfig) (plugins.Plugin, error) {
	var opts nativeOptions
	if err := config.DecodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	if len(opts.Hosts) == 0 {
		return nil, fmt.Errorf("native source needs at least one host")
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}

	entries := make(map[string]inventory.Entry, len(opts.Hosts))
	for i, h := range opts.Hosts {
		key, entry, err := parseHostURL(h.URL)
		if err != nil {
			return nil, fmt.Errorf("hosts[%d]: %w", i, err)
		}
		if _, dup := entries[key]; dup {
			return nil, fmt.Errorf("hosts[%d]: host %s listed twice", i, key)
		}
		entry["namespace"] = opts.Namespace
		entries[key] = entry
	}

	return &NativeSource{name: nameOr(cfg, "native"), entries: entries}, nil
}

func parseHostURL(raw string) (string, inventory.Entry, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	defPort, ok := defaultPorts[u.Scheme]
	if !ok {
		return "", nil, fmt.Errorf("unsupported transport %q in %q", u.Scheme, raw)
	}
	host := u.Hostname()
	if host == "" {
		return "", nil, fmt.Errorf("missing host in %q", raw)
	}

	port := defPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", nil, fmt.Errorf("invalid port in %q", raw)
		}
	}

	entry := inventory.Entry{
		"hostname":  host,
		"address":   host,
		"port":      port,
		"transport": u.Scheme,
	}
	if u.User != nil {
		entry["username"] = u.User.Username()
	}
	return host, entry, nil
}

// Name implements plugins.Plugin.
func (s *NativeSource) Name() string { return s.name }

// GetInventory implements plugins.Source.
func (s *NativeSource) GetInventory(ctx context.Context) (map[string]inventory.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.entries, nil
}

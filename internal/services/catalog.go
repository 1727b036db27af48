// Package services knows which services the poller can collect and
// validates service filters against that list.
package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultServices is the service list used without a service directory.
var DefaultServices = []string{
	"arpnd", "bgp", "devconfig", "device", "evpnVni", "fs", "ifCounters",
	"interfaces", "inventory", "lldp", "macs", "mlag", "ospfIf", "ospfNbr",
	"routes", "time", "topcpu", "topmem", "vlan",
}

// Catalog is the set of known services.
type Catalog struct {
	names map[string]struct{}
}

// NewCatalog returns a catalog of the given service names.
func NewCatalog(names ...string) *Catalog {
	c := &Catalog{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		c.names[n] = struct{}{}
	}
	return c
}

// Load builds the catalog from the YAML definitions in dir. An empty dir
// yields the default catalog.
func Load(dir string) (*Catalog, error) {
	if dir == "" {
		return NewCatalog(DefaultServices...), nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading service directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no service definitions found in %s", dir)
	}
	return NewCatalog(names...), nil
}

// Names returns the known services, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.names))
	for n := range c.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is a known service.
func (c *Catalog) Has(name string) bool {
	_, ok := c.names[name]
	return ok
}

// ValidateFilter checks a comma-separated "only" or "exclude" filter and
// returns the services that would be polled. Both filters at once, unknown
// names, and a filter that leaves no service are errors.
func (c *Catalog) ValidateFilter(only, exclude string) ([]string, error) {
	onlyList := splitList(only)
	excludeList := splitList(exclude)

	if len(onlyList) > 0 && len(excludeList) > 0 {
		return nil, fmt.Errorf("service-only and exclude-services cannot be used together")
	}

	if unknown := c.unknown(append(onlyList, excludeList...)); len(unknown) > 0 {
		return nil, fmt.Errorf("invalid services specified: %s", strings.Join(unknown, ", "))
	}

	var out []string
	switch {
	case len(onlyList) > 0:
		out = dedup(onlyList)
	case len(excludeList) > 0:
		skip := make(map[string]struct{}, len(excludeList))
		for _, n := range excludeList {
			skip[n] = struct{}{}
		}
		for _, n := range c.Names() {
			if _, ok := skip[n]; !ok {
				out = append(out, n)
			}
		}
	default:
		out = c.Names()
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("the service filter leaves no service to poll")
	}
	return out, nil
}

func (c *Catalog) unknown(names []string) []string {
	var out []string
	for _, n := range names {
		if !c.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedup(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"poller/internal/config"
	"poller/internal/inventory"
	"poller/internal/plugins"
	"poller/pkg/logging"
)

// StaticChunker splits the inventory into contiguous chunks whose sizes
// differ by at most one. Chunks are empty when there are more chunks than
// devices.
type StaticChunker struct {
	name string
}

// NewStaticChunker is the factory of the static chunker.
func NewStaticChunker(cfg config.PluginConfig) (plugins.Plugin, error) {
	return &StaticChunker{name: nameOr(cfg, "static-chunker")}, nil
}

// Name implements plugins.Plugin.
func (c *StaticChunker) Name() string { return c.name }

// Chunk implements plugins.Chunker.
func (c *StaticChunker) Chunk(inv *inventory.Inventory, n int) ([]inventory.Chunk, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cannot split inventory into %d chunks", n)
	}

	devices := inv.Devices()
	size, rem := len(devices)/n, len(devices)%n

	chunks := make([]inventory.Chunk, n)
	start := 0
	for i := range chunks {
		end := start + size
		if i < rem {
			end++
		}
		chunks[i] = append(inventory.Chunk(nil), devices[start:end]...)
		start = end
	}
	return chunks, nil
}

type staticManagerOptions struct {
	Workers       int    `json:"workers"`
	InputDir      string `json:"input-dir"`
	SingleRunMode string `json:"single-run-mode"`
}

// StaticManager keeps a fixed pool of worker slots and records which devices
// each slot polls. Every Apply logs the devices that moved in or out of each
// slot since the previous cycle.
type StaticManager struct {
	name     string
	workers  int
	inputDir string

	mu         sync.Mutex
	assignment [][]string
	cycles     int
	captured   []string
}

// NewStaticManager is the factory of the static manager.
func NewStaticManager(cfg config.PluginConfig) (plugins.Plugin, error) {
	var opts staticManagerOptions
	if err := config.DecodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", opts.Workers)
	}
	return &StaticManager{
		name:     nameOr(cfg, "static-manager"),
		workers:  opts.Workers,
		inputDir: opts.InputDir,
	}, nil
}

// Name implements plugins.Plugin.
func (m *StaticManager) Name() string { return m.name }

// GetNWorkers implements plugins.Manager. Zero configured workers means one,
// and there are never more slots than devices.
func (m *StaticManager) GetNWorkers(inv *inventory.Inventory) int {
	n := m.workers
	if n <= 0 {
		n = 1
	}
	if l := inv.Len(); l > 0 && l < n {
		n = l
	}
	return n
}

// Apply implements plugins.Manager.
func (m *StaticManager) Apply(ctx context.Context, chunks []inventory.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([][]string, len(chunks))
	for i, c := range chunks {
		next[i] = c.IDs()

		var prev []string
		if i < len(m.assignment) {
			prev = m.assignment[i]
		}
		added, removed := diffIDs(prev, next[i])
		if len(added) > 0 || len(removed) > 0 {
			logging.Info("StaticManager", "Worker %d: %d devices (+%d -%d)", i, len(next[i]), len(added), len(removed))
			logging.Debug("StaticManager", "Worker %d added %v removed %v", i, added, removed)
		}
	}
	for i := len(chunks); i < len(m.assignment); i++ {
		logging.Info("StaticManager", "Worker %d released %d devices", i, len(m.assignment[i]))
	}

	m.assignment = next
	m.cycles++
	return nil
}

// LaunchWithDir implements plugins.Manager. It collects the captured files
// of the input directory and fails when there are none.
func (m *StaticManager) LaunchWithDir(ctx context.Context) error {
	if m.inputDir == "" {
		return fmt.Errorf("no input directory configured")
	}

	var files []string
	err := filepath.WalkDir(m.inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading input directory %s: %w", m.inputDir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no captured data in %s", m.inputDir)
	}

	m.mu.Lock()
	m.captured = files
	m.mu.Unlock()

	logging.Info("StaticManager", "Replaying %d captured files from %s", len(files), m.inputDir)
	return nil
}

// Assignment returns the device ids per worker slot from the last Apply.
func (m *StaticManager) Assignment() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]string, len(m.assignment))
	for i, ids := range m.assignment {
		out[i] = append([]string(nil), ids...)
	}
	return out
}

// Cycles returns how many times Apply succeeded.
func (m *StaticManager) Cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

// Captured returns the files found by the last LaunchWithDir.
func (m *StaticManager) Captured() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.captured...)
}

func diffIDs(prev, next []string) (added, removed []string) {
	before := make(map[string]struct{}, len(prev))
	for _, id := range prev {
		before[id] = struct{}{}
	}
	after := make(map[string]struct{}, len(next))
	for _, id := range next {
		after[id] = struct{}{}
		if _, ok := before[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if _, ok := after[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

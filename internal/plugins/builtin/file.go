package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"poller/internal/config"
	"poller/internal/inventory"
	"poller/internal/plugins"
	"poller/pkg/logging"
)

type fileOptions struct {
	File          string `json:"file"`
	InventoryFile string `json:"inventory-file"`
	SingleRunMode string `json:"single-run-mode"`
}

// FileSource reads devices from a YAML list. Each item needs a name, which
// becomes the device id; the other keys are kept as the device entry.
//
// In continuous mode Run watches the file and reloads it on change. A reload
// that fails keeps the previous device list.
type FileSource struct {
	name      string
	path      string
	singleRun bool

	mu       sync.RWMutex
	entries  map[string]inventory.Entry
	loaded   bool
	watching bool
}

// NewFileSource is the factory of the file source. A relative file is
// resolved against the directory of the inventory file.
func NewFileSource(cfg config.PluginConfig) (plugins.Plugin, error) {
	var opts fileOptions
	if err := config.DecodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	if opts.File == "" {
		return nil, fmt.Errorf("file source needs a file")
	}

	path := opts.File
	if !filepath.IsAbs(path) && opts.InventoryFile != "" {
		path = filepath.Join(filepath.Dir(opts.InventoryFile), path)
	}

	return &FileSource{
		name:      nameOr(cfg, "file"),
		path:      filepath.Clean(path),
		singleRun: opts.SingleRunMode != "",
	}, nil
}

// Name implements plugins.Plugin.
func (s *FileSource) Name() string { return s.name }

// GetInventory implements plugins.Source. Without a running watcher the file
// is read on every call.
func (s *FileSource) GetInventory(ctx context.Context) (map[string]inventory.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	fresh := s.loaded && s.watching
	s.mu.RUnlock()

	if !fresh {
		if err := s.reload(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return inventory.CloneBatch(s.entries), nil
}

// Run implements plugins.Runner.
func (s *FileSource) Run(ctx context.Context) error {
	if s.singleRun {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("FileSource", "%s: file watching not available, reading on every cycle: %v", s.name, err)
		return nil
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		logging.Warn("FileSource", "%s: cannot watch %s, reading on every cycle: %v", s.name, s.path, err)
		return nil
	}

	if err := s.reload(); err != nil {
		logging.Warn("FileSource", "%s: initial load failed: %v", s.name, err)
	}
	s.setWatching(true)
	defer s.setWatching(false)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logging.Debug("FileSource", "%s: %s changed", s.name, s.path)
			if err := s.reload(); err != nil {
				logging.Warn("FileSource", "%s: keeping previous devices, reload failed: %v", s.name, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("FileSource", err, "%s: watch error", s.name)
		}
	}
}

func (s *FileSource) setWatching(v bool) {
	s.mu.Lock()
	s.watching = v
	s.mu.Unlock()
}

func (s *FileSource) reload() error {
	entries, err := readDeviceFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = entries
	s.loaded = true
	s.mu.Unlock()

	logging.Debug("FileSource", "%s: loaded %d devices from %s", s.name, len(entries), s.path)
	return nil
}

func readDeviceFile(path string) (map[string]inventory.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device file: %w", err)
	}

	var items []map[string]interface{}
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing device file %s: %w", path, err)
	}

	entries := make(map[string]inventory.Entry, len(items))
	for i, item := range items {
		name, _ := item["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("device %d in %s has no name", i, path)
		}
		if _, dup := entries[name]; dup {
			return nil, fmt.Errorf("device %s listed twice in %s", name, path)
		}
		entries[name] = inventory.Entry(item)
	}
	return entries, nil
}

package plugins

import (
	"context"

	"poller/internal/inventory"
)

// Role identifies what a plugin does for a controller.
type Role string

const (
	RoleSource  Role = "source"
	RoleChunker Role = "chunker"
	RoleManager Role = "manager"
)

// Plugin is implemented by every plugin.
type Plugin interface {
	// Name returns the instance name used in logs.
	Name() string
}

// Runner is implemented by plugins that need their own long-running task.
// The controller runs it next to the sync loop and cancels ctx on stop.
type Runner interface {
	Run(ctx context.Context) error
}

// Source provides devices to poll.
type Source interface {
	Plugin

	// GetInventory returns the current devices keyed by device id. The
	// controller bounds the call with the inventory timeout.
	GetInventory(ctx context.Context) (map[string]inventory.Entry, error)
}

// Chunker splits an inventory into worker-sized parts.
type Chunker interface {
	Plugin

	// Chunk returns exactly n chunks.
	Chunk(inv *inventory.Inventory, n int) ([]inventory.Chunk, error)
}

// Manager dispatches chunks to polling workers.
type Manager interface {
	Plugin

	// GetNWorkers returns how many worker slots are available for inv.
	GetNWorkers(inv *inventory.Inventory) int

	// Apply hands the chunks of one sync cycle to the workers.
	Apply(ctx context.Context, chunks []inventory.Chunk) error

	// LaunchWithDir drives the workers from a captured input directory.
	LaunchWithDir(ctx context.Context) error
}

// IsAsync reports whether p needs its own task.
func IsAsync(p Plugin) bool {
	_, ok := p.(Runner)
	return ok
}

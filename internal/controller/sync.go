package controller

import (
	"context"
	"fmt"

	"poller/internal/inventory"
	"poller/internal/plugins"
	"poller/pkg/logging"
)

// inventorySync is the sync loop task. With an input directory it only
// drives the manager from that directory.
func (c *Controller) inventorySync(ctx context.Context, set *pluginSet) error {
	if c.cfg.InputDir != "" {
		return set.manager.LaunchWithDir(ctx)
	}

	for {
		if err := c.syncCycle(ctx, set); err != nil {
			c.metrics.cycleFailed(c.name)
			return err
		}
		if c.cfg.IsSingleRun() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.cfg.UpdatePeriod):
		}
	}
}

// syncCycle builds the inventory of this cycle from every source, in order,
// and applies it. Nothing is applied unless every source answered in time
// and at least one device was found.
func (c *Controller) syncCycle(ctx context.Context, set *pluginSet) error {
	start := c.clock.Now()
	global := inventory.New()

	for _, src := range set.sources {
		batch, err := c.fetch(ctx, src)
		if err != nil {
			return err
		}
		logging.Debug("Controller", "%s: received inventory from %s", c.name, src.Name())

		if len(batch) == 0 {
			logging.Warn("Controller", "%s: source %s returned an empty inventory", c.name, src.Name())
			continue
		}

		res := global.Merge(inventory.CloneBatch(batch))
		for _, id := range res.Duplicates {
			logging.Warn("Controller", "%s: ignoring duplicated device %s from source %s", c.name, id, src.Name())
		}
		c.metrics.duplicatesDropped(c.name, src.Name(), len(res.Duplicates))
		if res.Added == 0 {
			logging.Warn("Controller", "%s: all %s devices have been ignored", c.name, src.Name())
		}
	}

	if global.Len() == 0 {
		return &InventorySourceError{Message: ErrNoDevices.Error(), Err: ErrNoDevices}
	}

	n := set.manager.GetNWorkers(global)
	chunks, err := set.chunker.Chunk(global, n)
	if err != nil {
		return fmt.Errorf("chunking inventory in %d parts: %w", n, err)
	}
	if err := set.manager.Apply(ctx, chunks); err != nil {
		return fmt.Errorf("applying inventory: %w", err)
	}

	c.metrics.cycleSucceeded(c.name, global.Len(), c.clock.Since(start))
	logging.Info("Controller", "%s: applied %d devices to %d workers", c.name, global.Len(), n)
	return nil
}

type fetchResult struct {
	batch map[string]inventory.Entry
	err   error
}

// fetch gets the inventory of one source within the inventory timeout.
// A fetch cancelled by ctx returns ctx.Err(); any other failure is an
// *InventorySourceError.
func (c *Controller) fetch(ctx context.Context, src plugins.Source) (map[string]inventory.Entry, error) {
	fctx, cancel := c.clock.WithTimeout(ctx, c.cfg.InventoryTimeout)
	defer cancel()

	ch := make(chan fetchResult, 1)
	go func() {
		batch, err := src.GetInventory(fctx)
		ch <- fetchResult{batch: batch, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil {
			return r.batch, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if fctx.Err() != nil {
			return nil, c.timeoutError(src)
		}
		return nil, &InventorySourceError{Source: src.Name(), Message: "failed to get inventory", Err: r.err}

	case <-fctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.timeoutError(src)
	}
}

func (c *Controller) timeoutError(src plugins.Source) error {
	return &InventorySourceError{
		Source:  src.Name(),
		Message: fmt.Sprintf("timeout error: took more than %s", c.cfg.InventoryTimeout),
		Err:     context.DeadlineExceeded,
	}
}

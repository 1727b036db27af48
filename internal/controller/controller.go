package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"poller/internal/config"
	"poller/internal/plugins"
	"poller/internal/services"
	"poller/pkg/logging"
)

// Controller runs the inventory sync loop of one poller: it fetches devices
// from its sources, merges them, splits them with the chunker and hands the
// chunks to the manager.
//
// A Controller is built with New, initialized with Init and then driven with
// Run and Stop. Stop may be called from any goroutine and any number of
// times. After Stop the plugins are discarded, so a new Run needs a new Init.
type Controller struct {
	name     string
	cfg      config.ControllerConfig
	registry *plugins.Registry
	clock    clock.Clock
	termCtx  context.Context
	metrics  *Metrics

	mu       sync.Mutex
	plugins  *pluginSet
	tasks    *taskSet
	stopping bool
	stopCh   chan struct{}
}

type pluginSet struct {
	sources []plugins.Source
	chunker plugins.Chunker
	manager plugins.Manager
}

// taskSet is the group of tasks of one Run.
type taskSet struct {
	cancel context.CancelFunc
	done   chan struct{}
	count  int

	// err is set before done is closed.
	err error
}

// New validates the configuration and returns a controller that is ready to
// be initialized. Every problem found is reported in one
// *config.ConfigurationError.
func New(args config.Args, file *config.Config, registry *plugins.Registry, opts ...Option) (*Controller, error) {
	if registry == nil {
		return nil, fmt.Errorf("controller needs a plugin registry")
	}

	c := &Controller{
		name:     "controller",
		cfg:      config.Resolve(args, file),
		registry: registry,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.termCtx == nil {
		c.termCtx = TerminationContext()
	}

	if err := validate(c.cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func validate(cfg config.ControllerConfig) error {
	var errs config.ErrorCollection

	if cfg.InventoryTimeout < time.Second {
		errs.Addf("Invalid inventory timeout: at least 1 second required")
	}
	if cfg.UpdatePeriod < time.Second {
		errs.Addf("Invalid update period: at least 1 second required")
	}
	if cfg.Period < time.Second {
		errs.Addf("Invalid polling period: at least 1 second required")
	}
	if cfg.Workers < 0 {
		errs.Addf("Invalid number of workers: %d, it cannot be negative", cfg.Workers)
	}
	if _, err := logging.ParseLevel(cfg.LoggingLevel); err != nil {
		errs.AddError(err)
	}

	if catalog, err := services.Load(cfg.ServiceDirectory); err != nil {
		errs.AddError(err)
	} else if _, err := catalog.ValidateFilter(cfg.ServiceOnly, cfg.ExcludeServices); err != nil {
		errs.AddError(err)
	}

	if cfg.InputDir != "" {
		if st, err := os.Stat(cfg.InputDir); err != nil || !st.IsDir() {
			errs.Addf("%s is not a valid directory", cfg.InputDir)
		}
	} else if st, err := os.Stat(cfg.InventoryFile); err != nil || !st.Mode().IsRegular() {
		if cfg.InventoryFile == config.DefaultInventoryPath {
			errs.Addf("Inventory file not found in the default location: %s, "+
				"set inventory to provide it or input-dir to replay pre-captured output", cfg.InventoryFile)
		} else {
			errs.Addf("Inventory file not found at %s", cfg.InventoryFile)
		}
	}

	if cfg.MaxCmdPipeline != 0 && cfg.Workers > 0 && cfg.MaxCmdPipeline%cfg.Workers != 0 {
		errs.Addf("max-cmd-pipeline (%d) has to be a multiple of the number of workers (%d)",
			cfg.MaxCmdPipeline, cfg.Workers)
	}

	return errs.Err()
}

// Name returns the controller name.
func (c *Controller) Name() string { return c.name }

// Config returns the resolved configuration.
func (c *Controller) Config() config.ControllerConfig { return c.cfg }

// Init builds the plugins. It needs exactly one chunker and one manager and
// at least one source. With an input directory only the manager is built.
func (c *Controller) Init() error {
	logging.Info("Controller", "%s: initializing the controller plugins", c.name)

	set := &pluginSet{}

	if c.cfg.InputDir == "" {
		logging.Debug("Controller", "%s: initializing sources", c.name)
		inv, err := config.LoadInventory(c.cfg.InventoryFile)
		if err != nil {
			return err
		}
		if len(inv.Sources) == 0 {
			return config.NewConfigurationError("The inventory file does not have any source")
		}
		built, err := c.registry.Build(plugins.RoleSource, withOptions(inv.Sources, c.cfg.SourceOptions()))
		if err != nil {
			return err
		}
		for _, p := range built {
			set.sources = append(set.sources, p.(plugins.Source))
		}

		logging.Debug("Controller", "%s: initializing chunker", c.name)
		chunkers, err := c.registry.Build(plugins.RoleChunker, c.cfg.Chunker)
		if err != nil {
			return err
		}
		if len(chunkers) != 1 {
			return config.NewConfigurationError("Exactly 1 chunker is required, %d configured", len(chunkers))
		}
		set.chunker = chunkers[0].(plugins.Chunker)
	}

	logging.Debug("Controller", "%s: initializing manager", c.name)
	managers, err := c.registry.Build(plugins.RoleManager, withOptions(c.cfg.Manager, c.cfg.ManagerOptions()))
	if err != nil {
		return err
	}
	if len(managers) != 1 {
		return config.NewConfigurationError("Exactly 1 manager is required, %d configured", len(managers))
	}
	set.manager = managers[0].(plugins.Manager)

	c.mu.Lock()
	c.plugins = set
	c.mu.Unlock()
	return nil
}

// withOptions returns copies of blocks with extra set on each of them.
func withOptions(blocks []config.PluginConfig, extra map[string]interface{}) []config.PluginConfig {
	out := make([]config.PluginConfig, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
		for k, v := range extra {
			out[i].SetOption(k, v)
		}
	}
	return out
}

// Run starts the controller tasks and blocks until they are over: after one
// cycle in single-run mode, otherwise until Stop is called or a task fails.
// Calling Run while the controller is running is a no-op.
//
// Whatever ends the run, the controller is stopped before Run returns. The
// returned error is the one that ended the tasks; a cancelled run returns
// nil.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.tasks != nil {
		stopping := c.stopping
		c.mu.Unlock()
		if stopping {
			logging.Warn("Controller", "%s: stop in progress, skipping this run request", c.name)
		} else {
			logging.Warn("Controller", "%s: controller is already running, skipping this run request", c.name)
		}
		return nil
	}
	if c.plugins == nil {
		c.mu.Unlock()
		return config.NewConfigurationError("controller %s must be initialized before running", c.name)
	}

	c.stopping = false
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	ts := c.startTasks(ctx, c.plugins)
	c.tasks = ts
	c.mu.Unlock()

	logging.Info("Controller", "%s: started %d tasks", c.name, ts.count)

	if c.cfg.IsSingleRun() {
		<-ts.done
	} else {
		select {
		case <-stopCh:
		case <-ts.done:
		}
	}
	<-ts.done

	c.mu.Lock()
	stopped := c.stopping
	c.mu.Unlock()

	err := ts.err
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		if !stopped {
			logging.Warn("Controller", "%s: tasks cancelled, shutting down", c.name)
		}
		err = nil
	default:
		logging.Error("Controller", err, "%s: unexpected error in run", c.name)
	}

	if !stopped {
		if stopErr := c.Stop(context.Background()); stopErr != nil {
			logging.Error("Controller", stopErr, "%s: stop after run failed", c.name)
		}
	} else if c.release(ts) {
		logging.Info("Controller", "%s: tasks ended after stop gave up waiting, cleaned up", c.name)
	}
	return err
}

// release discards ts and the plugins if ts is still the current task set.
// It reports whether anything was released.
func (c *Controller) release(ts *taskSet) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tasks != ts {
		return false
	}
	c.tasks = nil
	c.plugins = nil
	return true
}

// startTasks launches the tasks of one run. The first task to fail cancels
// the others. Must be called with c.mu held.
func (c *Controller) startTasks(parent context.Context, set *pluginSet) *taskSet {
	ctx, cancel := context.WithCancel(parent)
	unlink := context.AfterFunc(c.termCtx, cancel)

	g, gctx := errgroup.WithContext(ctx)
	ts := &taskSet{cancel: cancel, done: make(chan struct{})}

	for _, src := range set.sources {
		if r, ok := src.(plugins.Runner); ok {
			g.Go(func() error { return r.Run(gctx) })
			ts.count++
		}
	}
	if r, ok := set.manager.(plugins.Runner); ok {
		g.Go(func() error { return r.Run(gctx) })
		ts.count++
	}
	g.Go(func() error { return c.inventorySync(gctx, set) })
	ts.count++

	go func() {
		ts.err = g.Wait()
		unlink()
		cancel()
		close(ts.done)
	}()
	return ts
}

// Stop cancels the running tasks, waits for them and discards the plugins.
// Task errors are not reported. A second call while or after stopping logs
// and returns. An error is returned only when ctx ends before the tasks do;
// the controller is then released by Run once the tasks have ended.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		logging.Warn("Controller", "%s: stop already in progress, skipping this call", c.name)
		return nil
	}
	c.stopping = true
	if c.stopCh != nil {
		close(c.stopCh)
	}
	ts := c.tasks
	c.mu.Unlock()

	if ts != nil {
		ts.cancel()
		select {
		case <-ts.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for controller %s tasks: %w", c.name, ctx.Err())
		}
	}

	c.release(ts)

	logging.Info("Controller", "%s: all controller tasks have been stopped and cleaned up", c.name)
	return nil
}

// Running reports whether a task set is active and no stop was requested.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tasks != nil && !c.stopping
}

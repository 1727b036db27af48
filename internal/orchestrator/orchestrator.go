package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"poller/internal/config"
	"poller/internal/controller"
	"poller/internal/plugins"
	"poller/pkg/logging"
)

// DoneFunc is called once with the final metadata of a controller run. A
// callback reused by Update is called again when the restarted run ends.
type DoneFunc func(Metadata)

// Config holds the configuration for the orchestrator.
type Config struct {
	// Registry builds the plugins of every controller. Required.
	Registry *plugins.Registry

	// Clock stamps the metadata times. Defaults to the wall clock.
	Clock clock.Clock

	// ControllerOptions are applied to every controller created.
	ControllerOptions []controller.Option
}

// Orchestrator owns the controllers of the process and their lifecycle.
//
// Operations on different controllers may run concurrently. Operations on
// the same controller are expected to come from a single caller at a time.
type Orchestrator struct {
	registry *plugins.Registry
	clock    clock.Clock
	opts     []controller.Option

	mu          sync.RWMutex
	ids         idAllocator
	controllers map[int]*managedController
	names       map[string]int
}

// managedController wraps a controller with its identity and lifecycle.
type managedController struct {
	mu sync.Mutex

	id   int
	name string
	ctrl *controller.Controller

	created time.Time
	started time.Time
	stopped time.Time
	updated time.Time

	state   State
	lastErr error

	// done is closed when the current run goroutine has finished.
	done   chan struct{}
	onDone DoneFunc
}

// New creates an orchestrator without controllers.
func New(cfg Config) *Orchestrator {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Orchestrator{
		registry:    cfg.Registry,
		clock:       clk,
		opts:        cfg.ControllerOptions,
		controllers: make(map[int]*managedController),
		names:       make(map[string]int),
	}
}

// Create builds and validates a controller and registers it in state
// created. An empty name defaults to "controller-<id>". A name already used
// by another controller now resolves to the new one.
func (o *Orchestrator) Create(args config.Args, file *config.Config, name string) (Metadata, error) {
	if o.registry == nil {
		return Metadata{}, fmt.Errorf("orchestrator has no plugin registry")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.ids.allocate()
	if name == "" {
		name = fmt.Sprintf("controller-%d", id)
	}

	ctrl, err := controller.New(args, file, o.registry, o.controllerOptions(name)...)
	if err != nil {
		o.ids.release(id)
		return Metadata{}, err
	}

	mc := &managedController{
		id:      id,
		name:    name,
		ctrl:    ctrl,
		created: o.clock.Now(),
		state:   StateCreated,
	}
	if prev, exists := o.names[name]; exists && prev != id {
		logging.Warn("Orchestrator", "Controller name %s moves from id %d to id %d", name, prev, id)
	}
	o.controllers[id] = mc
	o.names[name] = id

	logging.Info("Orchestrator", "Created controller %s with id %d", name, id)
	return mc.snapshot(), nil
}

func (o *Orchestrator) controllerOptions(name string) []controller.Option {
	opts := make([]controller.Option, 0, len(o.opts)+1)
	opts = append(opts, o.opts...)
	return append(opts, controller.WithName(name))
}

func (o *Orchestrator) lookup(id int) (*managedController, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	mc, ok := o.controllers[id]
	if !ok {
		return nil, controllerNotFound(id)
	}
	return mc, nil
}

// Start initializes the plugins of a controller and runs it in the
// background. onDone, if not nil, is called once when that run ends, however
// it ends. Starting a running controller is a no-op.
func (o *Orchestrator) Start(id int, onDone DoneFunc) (Metadata, error) {
	mc, err := o.lookup(id)
	if err != nil {
		return Metadata{}, err
	}

	mc.mu.Lock()
	if mc.state == StateRunning {
		snap := mc.snapshotLocked()
		mc.mu.Unlock()
		logging.Warn("Orchestrator", "Controller %s is already running", mc.name)
		return snap, nil
	}

	if err := mc.ctrl.Init(); err != nil {
		mc.mu.Unlock()
		return Metadata{}, err
	}

	mc.state = StateRunning
	mc.started = o.clock.Now()
	mc.lastErr = nil
	mc.onDone = onDone
	mc.done = make(chan struct{})

	ctrl, done := mc.ctrl, mc.done
	snap := mc.snapshotLocked()
	mc.mu.Unlock()

	go o.run(mc, ctrl, done, onDone)

	logging.Info("Orchestrator", "Started controller %s", mc.name)
	return snap, nil
}

func (o *Orchestrator) run(mc *managedController, ctrl *controller.Controller, done chan struct{}, onDone DoneFunc) {
	err := ctrl.Run(context.Background())

	mc.mu.Lock()
	mc.state = StateStopped
	mc.stopped = o.clock.Now()
	mc.lastErr = err
	snap := mc.snapshotLocked()
	mc.mu.Unlock()

	close(done)

	if err != nil {
		logging.Error("Orchestrator", err, "Controller %s stopped", mc.name)
	} else {
		logging.Info("Orchestrator", "Controller %s stopped", mc.name)
	}
	if onDone != nil {
		onDone(snap)
	}
}

// Stop stops a running controller and waits for its run to end. It is a
// no-op for a controller that is not running.
func (o *Orchestrator) Stop(ctx context.Context, id int) (Metadata, error) {
	mc, err := o.lookup(id)
	if err != nil {
		return Metadata{}, err
	}

	mc.mu.Lock()
	if mc.state != StateRunning {
		snap := mc.snapshotLocked()
		mc.mu.Unlock()
		return snap, nil
	}
	ctrl, done := mc.ctrl, mc.done
	mc.mu.Unlock()

	if err := ctrl.Stop(ctx); err != nil {
		return Metadata{}, err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return Metadata{}, fmt.Errorf("waiting for controller %s to stop: %w", mc.name, ctx.Err())
	}
	return mc.snapshot(), nil
}

// Update rebuilds a controller from new arguments on top of its current
// effective configuration. The poller section of file is replaced by the
// effective settings of the controller; the other parts of file apply. An
// empty inventory keeps the current one. A running controller is stopped
// first and restarted with onDone, or with its previous completion callback
// when onDone is nil.
//
// If the new configuration is invalid the previous controller is kept, and
// restarted if it was running.
func (o *Orchestrator) Update(ctx context.Context, id int, args config.Args, file *config.Config, onDone DoneFunc) (Metadata, error) {
	mc, err := o.lookup(id)
	if err != nil {
		return Metadata{}, err
	}

	mc.mu.Lock()
	wasRunning := mc.state == StateRunning
	if onDone == nil {
		onDone = mc.onDone
	}
	mc.mu.Unlock()

	if wasRunning {
		if _, err := o.Stop(ctx, id); err != nil {
			return Metadata{}, err
		}
	}

	mc.mu.Lock()
	prev := mc.ctrl.Config()

	if args.Inventory == "" {
		args.Inventory = prev.InventoryFile
	}
	merged := &config.Config{ServiceDirectory: prev.ServiceDirectory}
	if file != nil {
		merged.ServiceDirectory = file.ServiceDirectory
		merged.Controllers = file.Controllers
		if merged.ServiceDirectory == "" {
			merged.ServiceDirectory = prev.ServiceDirectory
		}
	}
	merged.Poller = prev.PollerSection()

	ctrl, buildErr := controller.New(args, merged, o.registry, o.controllerOptions(mc.name)...)
	if buildErr == nil {
		mc.ctrl = ctrl
		mc.updated = o.clock.Now()
	}
	mc.mu.Unlock()

	if buildErr != nil {
		if wasRunning {
			if _, err := o.Start(id, onDone); err != nil {
				logging.Error("Orchestrator", err, "Failed to restart controller %s after a rejected update", mc.name)
			}
		}
		return Metadata{}, buildErr
	}

	logging.Info("Orchestrator", "Updated controller %s", mc.name)
	if wasRunning {
		return o.Start(id, onDone)
	}
	return mc.snapshot(), nil
}

// Delete stops a controller if needed, removes it and releases its id for
// reuse. It returns the final metadata, in state deleted.
func (o *Orchestrator) Delete(ctx context.Context, id int) (Metadata, error) {
	mc, err := o.lookup(id)
	if err != nil {
		return Metadata{}, err
	}

	if _, err := o.Stop(ctx, id); err != nil {
		return Metadata{}, err
	}

	o.mu.Lock()
	if _, ok := o.controllers[id]; !ok {
		o.mu.Unlock()
		return Metadata{}, controllerNotFound(id)
	}
	delete(o.controllers, id)
	if o.names[mc.name] == id {
		delete(o.names, mc.name)
	}
	o.ids.release(id)
	o.mu.Unlock()

	mc.mu.Lock()
	mc.state = StateDeleted
	snap := mc.snapshotLocked()
	mc.mu.Unlock()

	logging.Info("Orchestrator", "Deleted controller %s, id %d released", mc.name, id)
	return snap, nil
}

// Get returns the metadata of a controller.
func (o *Orchestrator) Get(id int) (Metadata, error) {
	mc, err := o.lookup(id)
	if err != nil {
		return Metadata{}, err
	}
	return mc.snapshot(), nil
}

// GetByName returns the metadata of the controller registered under name.
func (o *Orchestrator) GetByName(name string) (Metadata, error) {
	o.mu.RLock()
	id, ok := o.names[name]
	o.mu.RUnlock()
	if !ok {
		return Metadata{}, controllerNameNotFound(name)
	}
	return o.Get(id)
}

// List returns the metadata of every controller, ordered by id.
func (o *Orchestrator) List() []Metadata {
	o.mu.RLock()
	mcs := make([]*managedController, 0, len(o.controllers))
	for _, mc := range o.controllers {
		mcs = append(mcs, mc)
	}
	o.mu.RUnlock()

	return snapshots(mcs)
}

// Find returns the controllers matching any of ids or names, each once,
// ordered by id. Unknown ids and names are ignored.
func (o *Orchestrator) Find(ids []int, names []string) []Metadata {
	o.mu.RLock()
	matched := make(map[int]*managedController)
	for _, id := range ids {
		if mc, ok := o.controllers[id]; ok {
			matched[id] = mc
		}
	}
	for _, name := range names {
		if id, ok := o.names[name]; ok {
			if mc, ok := o.controllers[id]; ok {
				matched[id] = mc
			}
		}
	}
	o.mu.RUnlock()

	mcs := make([]*managedController, 0, len(matched))
	for _, mc := range matched {
		mcs = append(mcs, mc)
	}
	return snapshots(mcs)
}

// Shutdown stops every running controller concurrently and waits for them.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var running []int
	for _, md := range o.List() {
		if md.State == StateRunning {
			running = append(running, md.ID)
		}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range running {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := o.Stop(ctx, id); err != nil {
				logging.Error("Orchestrator", err, "Failed to stop controller %d during shutdown", id)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	logging.Info("Orchestrator", "Shutdown complete, %d controllers stopped", len(running))
	return errors.Join(errs...)
}

func snapshots(mcs []*managedController) []Metadata {
	out := make([]Metadata, 0, len(mcs))
	for _, mc := range mcs {
		out = append(out, mc.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (mc *managedController) snapshot() Metadata {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.snapshotLocked()
}

func (mc *managedController) snapshotLocked() Metadata {
	md := Metadata{
		ID:              mc.id,
		Name:            mc.name,
		CreatedTime:     mc.created,
		LastStartTime:   timePtr(mc.started),
		LastStopTime:    timePtr(mc.stopped),
		LastUpdatedTime: timePtr(mc.updated),
		State:           mc.state,
		Config:          mc.ctrl.Config().Redacted(),
	}
	if mc.lastErr != nil {
		md.LastError = mc.lastErr.Error()
	}
	return md
}

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"poller/internal/config"
	"poller/internal/controller"
	"poller/internal/formatting"
	"poller/internal/orchestrator"
	"poller/internal/plugins"
	"poller/internal/plugins/builtin"
	"poller/internal/webhook"
	"poller/pkg/logging"
)

// Application represents the main application structure that bootstraps and
// runs the poller.
type Application struct {
	config   *Config
	file     *config.Config
	registry *plugins.Registry
	metrics  *prometheus.Registry
}

// NewApplication loads the configuration file and prepares the plugin
// registry and the metrics registry.
func NewApplication(cfg *Config) (*Application, error) {
	if cfg.ConfigPath == "" {
		return nil, config.NewConfigurationError("a configuration file is required")
	}

	file, err := config.LoadConfig(cfg.ConfigPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load poller configuration from %s", cfg.ConfigPath)
		return nil, err
	}
	logging.Info("Bootstrap", "Loaded configuration from %s", cfg.ConfigPath)

	registry := cfg.Registry
	if registry == nil {
		registry = builtin.NewRegistry()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Application{
		config:   cfg,
		file:     file,
		registry: registry,
		metrics:  prometheus.NewRegistry(),
	}, nil
}

// Metrics returns the registry the controller metrics are registered with.
func (a *Application) Metrics() *prometheus.Registry {
	return a.metrics
}

// specs returns the declared controllers. A file without declarations runs a
// single controller from its poller section.
func (a *Application) specs() []config.ControllerSpec {
	if len(a.file.Controllers) == 0 {
		return []config.ControllerSpec{{Name: "default"}}
	}
	return a.file.Controllers
}

func (a *Application) newOrchestrator(ctx context.Context, metrics *controller.Metrics) *orchestrator.Orchestrator {
	opts := []controller.Option{controller.WithTerminationContext(ctx)}
	if metrics != nil {
		opts = append(opts, controller.WithMetrics(metrics))
	}
	return orchestrator.New(orchestrator.Config{
		Registry:          a.registry,
		ControllerOptions: opts,
	})
}

type declared struct {
	md       orchestrator.Metadata
	args     config.Args
	notifier *webhook.Notifier
}

// createAll creates one controller per declaration. On the first failure the
// controllers created so far are deleted and every problem is returned.
func (a *Application) createAll(ctx context.Context, orch *orchestrator.Orchestrator) ([]declared, error) {
	var (
		out  []declared
		errs []error
	)
	for _, spec := range a.specs() {
		args := spec.Args
		if args.Config == "" {
			args.Config = a.config.ConfigPath
		}

		d := declared{args: args}
		if spec.Webhook != nil {
			n, err := webhook.NewNotifier(*spec.Webhook)
			if err != nil {
				errs = append(errs, fmt.Errorf("controller %s: %w", spec.Name, err))
				continue
			}
			d.notifier = n
		}

		md, err := orch.Create(args, a.file, spec.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("controller %s: %w", spec.Name, err))
			continue
		}
		d.md = md
		out = append(out, d)
	}

	if len(errs) > 0 {
		for _, d := range out {
			if _, err := orch.Delete(ctx, d.md.ID); err != nil {
				logging.Error("Bootstrap", err, "Failed to delete controller %s", d.md.Name)
			}
		}
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Run creates and starts every declared controller and blocks until all of
// them have finished or ctx is cancelled. The controllers are then stopped
// and the final table is written. The returned error lists the controllers
// whose run failed.
func (a *Application) Run(ctx context.Context) error {
	metrics := controller.NewMetrics(a.metrics)
	orch := a.newOrchestrator(ctx, metrics)

	var server *metricsServer
	if a.config.MetricsAddr != "" {
		var err error
		server, err = startMetricsServer(a.config.MetricsAddr, a.metrics)
		if err != nil {
			return err
		}
		defer server.shutdown()
	}

	ctrls, err := a.createAll(ctx, orch)
	if err != nil {
		return err
	}

	var (
		wg        sync.WaitGroup
		startErrs []error
	)
	allDone := make(chan struct{})
	for _, d := range ctrls {
		hook := func(orchestrator.Metadata) {}
		if d.notifier != nil {
			hook = d.notifier.Hook(context.Background())
		}

		// The wait group tracks the first run only; a run restarted with
		// the same callback still notifies but does not count down again.
		var once sync.Once
		wg.Add(1)
		onDone := func(md orchestrator.Metadata) {
			defer once.Do(wg.Done)
			hook(md)
		}
		if _, err := orch.Start(d.md.ID, onDone); err != nil {
			once.Do(wg.Done)
			logging.Error("Bootstrap", err, "Failed to start controller %s", d.md.Name)
			startErrs = append(startErrs, fmt.Errorf("controller %s: %w", d.md.Name, err))
		}
	}
	go func() {
		wg.Wait()
		close(allDone)
	}()

	notifyReady()
	logging.Info("Bootstrap", "Started %d of %d controllers", len(ctrls)-len(startErrs), len(ctrls))

	select {
	case <-allDone:
		logging.Info("Bootstrap", "All controllers finished")
	case <-ctx.Done():
		logging.Info("Bootstrap", "Termination requested, stopping controllers")
	}
	notifyStopping()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	if err := orch.Shutdown(shutdownCtx); err != nil {
		logging.Error("Bootstrap", err, "Controllers did not stop cleanly")
	}
	select {
	case <-allDone:
	case <-shutdownCtx.Done():
		logging.Warn("Bootstrap", "Gave up waiting for completion callbacks")
	}

	final := orch.List()
	if err := formatting.Write(a.config.Out, final, a.config.Output); err != nil {
		return err
	}
	return errors.Join(append(startErrs, runErrors(final)...)...)
}

// Validate builds and initializes every declared controller without running
// it, writes the resulting table and deletes the controllers.
func (a *Application) Validate(ctx context.Context) error {
	orch := a.newOrchestrator(ctx, nil)

	ctrls, err := a.createAll(ctx, orch)
	if err != nil {
		return err
	}
	defer func() {
		for _, d := range ctrls {
			if _, err := orch.Delete(ctx, d.md.ID); err != nil {
				logging.Error("Bootstrap", err, "Failed to delete controller %s", d.md.Name)
			}
		}
	}()

	// The orchestrator entries only carry the metadata shown in the table.
	// Plugin construction is checked on a separate controller built from the
	// same arguments, so the entries stay in state created and are never
	// initialized themselves.
	var errs []error
	for _, d := range ctrls {
		ctrl, err := controller.New(d.args, a.file, a.registry,
			controller.WithName(d.md.Name), controller.WithTerminationContext(ctx))
		if err != nil {
			errs = append(errs, fmt.Errorf("controller %s: %w", d.md.Name, err))
			continue
		}
		if err := ctrl.Init(); err != nil {
			errs = append(errs, fmt.Errorf("controller %s: %w", d.md.Name, err))
		}
	}

	if err := formatting.Write(a.config.Out, orch.List(), a.config.Output); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func runErrors(final []orchestrator.Metadata) []error {
	var errs []error
	for _, md := range final {
		if md.LastError != "" {
			errs = append(errs, fmt.Errorf("controller %s: %s", md.Name, md.LastError))
		}
	}
	return errs
}

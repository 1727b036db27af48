package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"poller/internal/config"
	"poller/internal/inventory"
	"poller/internal/plugins"
	"poller/internal/plugins/builtin"
	"poller/pkg/logging"
)

// memSource serves a fixed batch. It returns the same map on every call so
// tests can mutate it after a fetch.
type memSource struct {
	name string

	mu       sync.Mutex
	batch    map[string]inventory.Entry
	block    bool
	failFrom int
	calls    int
	opts     map[string]interface{}
}

func (s *memSource) Name() string { return s.name }

func (s *memSource) GetInventory(ctx context.Context) (map[string]inventory.Entry, error) {
	s.mu.Lock()
	s.calls++
	calls, block, failFrom, batch := s.calls, s.block, s.failFrom, s.batch
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failFrom > 0 && calls >= failFrom {
		return nil, errors.New("backend unavailable")
	}
	return batch, nil
}

func (s *memSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recManager records every call it receives.
type recManager struct {
	mu       sync.Mutex
	workers  int
	applied  [][]inventory.Chunk
	launched int
	opts     map[string]interface{}
}

func (m *recManager) Name() string { return "rec" }

func (m *recManager) GetNWorkers(inv *inventory.Inventory) int {
	if m.workers == 0 {
		return 1
	}
	return m.workers
}

func (m *recManager) Apply(ctx context.Context, chunks []inventory.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, chunks)
	return nil
}

func (m *recManager) LaunchWithDir(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.launched++
	return nil
}

func (m *recManager) Applied() [][]inventory.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]inventory.Chunk(nil), m.applied...)
}

func (m *recManager) Launched() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launched
}

// runningManager additionally runs its own task until cancelled.
type runningManager struct {
	*recManager
	started   atomic.Int32
	cancelled atomic.Int32
}

func (m *runningManager) Run(ctx context.Context) error {
	m.started.Add(1)
	<-ctx.Done()
	m.cancelled.Add(1)
	return ctx.Err()
}

// stubbornManager keeps running after cancellation until release is closed.
type stubbornManager struct {
	*recManager
	release chan struct{}
	runs    atomic.Int32
}

func (m *stubbornManager) Run(ctx context.Context) error {
	m.runs.Add(1)
	<-ctx.Done()
	<-m.release
	return ctx.Err()
}

type harness struct {
	t         *testing.T
	dir       string
	inventory string
	reg       *plugins.Registry
	sources   map[string]*memSource
	manager   plugins.Manager
	clock     *clock.Mock
	term      context.Context
}

func newHarness(t *testing.T, sources ...*memSource) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		dir:     t.TempDir(),
		reg:     plugins.NewRegistry(),
		sources: map[string]*memSource{},
		manager: &recManager{},
		clock:   clock.NewMock(),
		term:    context.Background(),
	}

	var b strings.Builder
	b.WriteString("sources:\n")
	for _, s := range sources {
		h.sources[s.name] = s
		fmt.Fprintf(&b, "  - name: %s\n    type: mem\n", s.name)
	}
	if len(sources) == 0 {
		b.Reset()
		b.WriteString("sources: []\n")
	}
	h.inventory = filepath.Join(h.dir, "inventory.yaml")
	require.NoError(t, os.WriteFile(h.inventory, []byte(b.String()), 0o644))

	h.reg.MustRegister(plugins.RoleSource, "mem", func(cfg config.PluginConfig) (plugins.Plugin, error) {
		s, ok := h.sources[cfg.Name]
		if !ok {
			return nil, fmt.Errorf("no source %s", cfg.Name)
		}
		s.mu.Lock()
		s.opts = cfg.Options
		s.mu.Unlock()
		return s, nil
	})
	h.reg.MustRegister(plugins.RoleChunker, "static", builtin.NewStaticChunker)
	h.reg.MustRegister(plugins.RoleManager, "rec", func(cfg config.PluginConfig) (plugins.Plugin, error) {
		if rm, ok := h.manager.(*recManager); ok {
			rm.mu.Lock()
			rm.opts = cfg.Options
			rm.mu.Unlock()
		}
		return h.manager, nil
	})
	return h
}

func (h *harness) fileConfig() *config.Config {
	return &config.Config{Poller: config.PollerConfig{
		Manager: config.PluginBlocks{{Type: "rec"}},
	}}
}

func (h *harness) newController(args config.Args, opts ...Option) *Controller {
	h.t.Helper()
	if args.Inventory == "" && args.InputDir == "" {
		args.Inventory = h.inventory
	}
	all := append([]Option{
		WithName("test"),
		WithClock(h.clock),
		WithTerminationContext(h.term),
	}, opts...)
	c, err := New(args, h.fileConfig(), h.reg, all...)
	require.NoError(h.t, err)
	require.NoError(h.t, c.Init())
	return c
}

func runAsync(c *Controller) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- c.Run(context.Background()) }()
	return ch
}

func waitRun(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// captureLogs switches logging to capture mode for the test and returns a
// function that collects the warnings logged so far.
func captureLogs(t *testing.T) func() []string {
	ch := logging.InitForCapture(logging.LevelWarn, 0)
	t.Cleanup(logging.CloseCapture)

	var got []string
	return func() []string {
		for {
			select {
			case e, ok := <-ch:
				if !ok {
					return got
				}
				got = append(got, e.Message)
			default:
				return got
			}
		}
	}
}

func countContaining(msgs []string, sub string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			n++
		}
	}
	return n
}

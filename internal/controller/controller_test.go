package controller

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poller/internal/config"
	"poller/internal/inventory"
)

func TestNew_ReportsEveryProblem(t *testing.T) {
	h := newHarness(t, &memSource{name: "s1"})

	_, err := New(config.Args{
		Inventory:        filepath.Join(h.dir, "missing.yaml"),
		InventoryTimeout: -1,
		UpdatePeriod:     -5,
		Period:           -1,
		Workers:          -2,
		LoggingLevel:     "verbose",
		ServiceOnly:      "bgp,teleport",
	}, nil, h.reg, WithTerminationContext(context.Background()))
	require.Error(t, err)

	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
	msg := err.Error()
	assert.Contains(t, msg, "Invalid inventory timeout")
	assert.Contains(t, msg, "Invalid update period")
	assert.Contains(t, msg, "Invalid polling period")
	assert.Contains(t, msg, "Invalid number of workers")
	assert.Contains(t, msg, "Valid levels are")
	assert.Contains(t, msg, "invalid services specified: teleport")
	assert.Contains(t, msg, "Inventory file not found at")
	assert.Len(t, ce.Problems, 7)
}

func TestNew_RunModeChecks(t *testing.T) {
	h := newHarness(t, &memSource{name: "s1"})
	term := WithTerminationContext(context.Background())

	_, err := New(config.Args{InputDir: h.inventory}, nil, h.reg, term)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a valid directory")

	_, err = New(config.Args{Inventory: h.inventory, Workers: 3, MaxCmdPipeline: 10}, nil, h.reg, term)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has to be a multiple of the number of workers")

	_, err = New(config.Args{Inventory: h.inventory, ServiceOnly: "bgp", ExcludeServices: "lldp"}, nil, h.reg, term)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be used together")

	c, err := New(config.Args{InputDir: h.dir, Debug: true}, nil, h.reg, term)
	require.NoError(t, err)
	assert.Equal(t, config.RunModeDebug, c.Config().SingleRunMode)
	assert.True(t, c.Config().NoCoalescer)

	_, err = New(config.Args{}, nil, nil)
	assert.Error(t, err)
}

func TestInit_PluginCounts(t *testing.T) {
	t.Run("no sources", func(t *testing.T) {
		h := newHarness(t)
		c, err := New(config.Args{Inventory: h.inventory}, h.fileConfig(), h.reg, WithTerminationContext(context.Background()))
		require.NoError(t, err)
		err = c.Init()
		require.Error(t, err)
		assert.True(t, config.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "does not have any source")
	})

	t.Run("two managers", func(t *testing.T) {
		h := newHarness(t, &memSource{name: "s1"})
		file := &config.Config{Poller: config.PollerConfig{
			Manager: config.PluginBlocks{{Type: "rec"}, {Type: "rec"}},
		}}
		c, err := New(config.Args{Inventory: h.inventory}, file, h.reg, WithTerminationContext(context.Background()))
		require.NoError(t, err)
		err = c.Init()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Exactly 1 manager is required, 2 configured")
	})

	t.Run("unknown chunker", func(t *testing.T) {
		h := newHarness(t, &memSource{name: "s1"})
		file := h.fileConfig()
		file.Poller.Chunker = config.PluginBlocks{{Type: "hash"}}
		c, err := New(config.Args{Inventory: h.inventory}, file, h.reg, WithTerminationContext(context.Background()))
		require.NoError(t, err)
		err = c.Init()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown chunker plugin type "hash"`)
	})
}

func TestInit_InjectsOptions(t *testing.T) {
	src := &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}}}
	h := newHarness(t, src)
	h.newController(config.Args{RunOnce: config.RunModeGather, Workers: 2, ServiceOnly: "bgp"})

	assert.Equal(t, config.RunModeGather, src.opts["single-run-mode"])
	assert.Equal(t, h.inventory, src.opts["inventory-file"])

	rm := h.manager.(*recManager)
	assert.Equal(t, 2, rm.opts["workers"])
	assert.Equal(t, "bgp", rm.opts["service-only"])
	assert.Equal(t, true, rm.opts["no-coalescer"])
}

func TestRun_WithoutInit(t *testing.T) {
	h := newHarness(t, &memSource{name: "s1"})
	c, err := New(config.Args{Inventory: h.inventory}, h.fileConfig(), h.reg, WithTerminationContext(context.Background()))
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
}

func TestRun_SingleRunFirstSourceWins(t *testing.T) {
	warnings := captureLogs(t)

	s1 := &memSource{name: "s1", batch: map[string]inventory.Entry{
		"r1": {"from": "s1"},
		"r2": {"from": "s1"},
	}}
	s2 := &memSource{name: "s2", batch: map[string]inventory.Entry{
		"r2": {"from": "s2"},
		"r3": {"from": "s2"},
	}}
	h := newHarness(t, s1, s2)
	c := h.newController(config.Args{RunOnce: config.RunModeGather})

	require.NoError(t, c.Run(context.Background()))

	applied := h.manager.(*recManager).Applied()
	require.Len(t, applied, 1)
	require.Len(t, applied[0], 1)

	got := map[string]string{}
	for _, d := range applied[0][0] {
		got[d.ID] = d.Entry["from"].(string)
	}
	assert.Equal(t, map[string]string{"r1": "s1", "r2": "s1", "r3": "s2"}, got)
	assert.Equal(t, []string{"r1", "r2", "r3"}, applied[0][0].IDs())

	assert.Equal(t, 1, countContaining(warnings(), "ignoring duplicated device r2 from source s2"))
	assert.Equal(t, 1, s1.Calls(), "single-run mode fetches once")
	assert.False(t, c.Running())
}

func TestRun_AllDuplicatesAndEmptySources(t *testing.T) {
	warnings := captureLogs(t)

	s1 := &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}}}
	s2 := &memSource{name: "s2", batch: map[string]inventory.Entry{"r1": {}}}
	s3 := &memSource{name: "s3"}
	h := newHarness(t, s1, s2, s3)
	c := h.newController(config.Args{RunOnce: config.RunModeGather})

	require.NoError(t, c.Run(context.Background()))

	msgs := warnings()
	assert.Equal(t, 1, countContaining(msgs, "all s2 devices have been ignored"))
	assert.Equal(t, 1, countContaining(msgs, "source s3 returned an empty inventory"))
	assert.Len(t, h.manager.(*recManager).Applied(), 1)
}

func TestRun_NoDevices(t *testing.T) {
	s1 := &memSource{name: "s1"}
	s2 := &memSource{name: "s2", batch: map[string]inventory.Entry{}}
	h := newHarness(t, s1, s2)
	c := h.newController(config.Args{RunOnce: config.RunModeGather})

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDevices)
	assert.True(t, IsInventorySourceError(err))
	assert.Equal(t, "no devices to poll", err.Error())
	assert.Empty(t, h.manager.(*recManager).Applied())
}

func TestRun_SourceTimeoutIsFatal(t *testing.T) {
	slow := &memSource{name: "slow", block: true}
	fast := &memSource{name: "fast", batch: map[string]inventory.Entry{"r1": {}}}
	h := newHarness(t, fast, slow)
	c := h.newController(config.Args{RunOnce: config.RunModeGather, InventoryTimeout: 2})

	done := runAsync(c)
	var err error
	require.Eventually(t, func() bool {
		h.clock.Add(time.Second)
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	require.Error(t, err)
	var ise *InventorySourceError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "slow", ise.Source)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timeout error")
	assert.Empty(t, h.manager.(*recManager).Applied(), "no apply with a partial inventory")
	assert.False(t, c.Running())
}

func TestRun_SourceErrorIsFatal(t *testing.T) {
	src := &memSource{name: "s1", failFrom: 1}
	h := newHarness(t, src)
	c := h.newController(config.Args{RunOnce: config.RunModeGather})

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsInventorySourceError(err))
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestRun_SnapshotIsolatesSourceMutation(t *testing.T) {
	src := &memSource{name: "s1", batch: map[string]inventory.Entry{
		"r1": {"address": "10.0.0.1", "tags": []interface{}{"core"}},
	}}
	h := newHarness(t, src)
	c := h.newController(config.Args{RunOnce: config.RunModeGather})
	require.NoError(t, c.Run(context.Background()))

	src.batch["r1"]["address"] = "192.0.2.1"
	src.batch["r1"]["tags"].([]interface{})[0] = "edge"
	src.batch["r9"] = inventory.Entry{}

	applied := h.manager.(*recManager).Applied()
	entry := applied[0][0][0].Entry
	assert.Equal(t, "10.0.0.1", entry["address"])
	assert.Equal(t, "core", entry["tags"].([]interface{})[0])
	assert.Len(t, applied[0][0], 1)
}

func TestRun_ChunksMatchWorkerCount(t *testing.T) {
	src := &memSource{name: "s1", batch: map[string]inventory.Entry{"a": {}, "b": {}, "c": {}}}
	h := newHarness(t, src)
	h.manager.(*recManager).workers = 2
	c := h.newController(config.Args{RunOnce: config.RunModeGather})
	require.NoError(t, c.Run(context.Background()))

	applied := h.manager.(*recManager).Applied()
	require.Len(t, applied[0], 2)
	assert.Equal(t, []string{"a", "b"}, applied[0][0].IDs())
	assert.Equal(t, []string{"c"}, applied[0][1].IDs())
}

func TestRun_InputDirOnlyLaunchesManager(t *testing.T) {
	h := newHarness(t, &memSource{name: "s1"})
	c := h.newController(config.Args{InputDir: h.dir})

	require.NoError(t, c.Run(context.Background()))

	rm := h.manager.(*recManager)
	assert.Equal(t, 1, rm.Launched())
	assert.Empty(t, rm.Applied())
	assert.Zero(t, h.sources["s1"].Calls())
}

func TestRun_ContinuousLoopAndStop(t *testing.T) {
	warnings := captureLogs(t)

	src := &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}}}
	h := newHarness(t, src)
	mgr := &runningManager{recManager: &recManager{}}
	h.manager = mgr
	c := h.newController(config.Args{UpdatePeriod: 60})

	done := runAsync(c)

	require.Eventually(t, func() bool { return len(mgr.Applied()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, c.Running())

	require.Eventually(t, func() bool {
		h.clock.Add(60 * time.Second)
		return len(mgr.Applied()) >= 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), mgr.started.Load())

	// a second Run while running does not start another task set
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, int32(1), mgr.started.Load())
	assert.Equal(t, 1, countContaining(warnings(), "already running"))

	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, waitRun(t, done))
	assert.Equal(t, int32(1), mgr.cancelled.Load())

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, int32(1), mgr.cancelled.Load(), "second stop cancels nothing")
	assert.Equal(t, 1, countContaining(warnings(), "stop already in progress"))
	assert.Zero(t, countContaining(warnings(), "tasks cancelled"))
	assert.False(t, c.Running())

	// plugins are discarded on stop
	err := c.Run(context.Background())
	assert.True(t, config.IsConfigurationError(err))
}

func TestRun_ContinuousFatalErrorEndsRun(t *testing.T) {
	src := &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}}, failFrom: 2}
	h := newHarness(t, src)
	mgr := &runningManager{recManager: &recManager{}}
	h.manager = mgr
	c := h.newController(config.Args{UpdatePeriod: 30})

	done := runAsync(c)
	require.Eventually(t, func() bool { return len(mgr.Applied()) == 1 }, 5*time.Second, 5*time.Millisecond)

	var err error
	require.Eventually(t, func() bool {
		h.clock.Add(30 * time.Second)
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, IsInventorySourceError(err))
	assert.Equal(t, int32(1), mgr.cancelled.Load(), "the manager task is cancelled")
	assert.False(t, c.Running())
}

func TestRun_TerminationContextCancelsTasks(t *testing.T) {
	warnings := captureLogs(t)

	src := &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}}}
	h := newHarness(t, src)
	term, terminate := context.WithCancel(context.Background())
	h.term = term
	c := h.newController(config.Args{})

	done := runAsync(c)
	require.Eventually(t, func() bool { return len(h.manager.(*recManager).Applied()) == 1 }, 5*time.Second, 5*time.Millisecond)

	terminate()
	assert.NoError(t, waitRun(t, done))
	assert.Equal(t, 1, countContaining(warnings(), "tasks cancelled"))
	assert.False(t, c.Running())
}

func TestRun_ParentContextCancel(t *testing.T) {
	src := &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}}}
	h := newHarness(t, src)
	c := h.newController(config.Args{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	require.Eventually(t, func() bool { return len(h.manager.(*recManager).Applied()) == 1 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, waitRun(t, done))
}

func TestStop_TimeoutThenRestart(t *testing.T) {
	src := &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}}}
	h := newHarness(t, src)
	mgr := &stubbornManager{recManager: &recManager{}, release: make(chan struct{})}
	h.manager = mgr
	c := h.newController(config.Args{UpdatePeriod: 60})

	done := runAsync(c)
	require.Eventually(t, func() bool { return len(mgr.Applied()) == 1 }, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Stop(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(mgr.release)
	require.NoError(t, waitRun(t, done))
	assert.False(t, c.Running())

	// the controller is released once the late tasks end and can run again
	require.NoError(t, c.Init())
	done = runAsync(c)
	require.Eventually(t, func() bool { return len(mgr.Applied()) == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, c.Running())
	assert.Equal(t, int32(2), mgr.runs.Load())

	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, waitRun(t, done))
	assert.False(t, c.Running())
}

func TestStop_BeforeRun(t *testing.T) {
	h := newHarness(t, &memSource{name: "s1"})
	c := h.newController(config.Args{})

	require.NoError(t, c.Stop(context.Background()))
	assert.False(t, c.Running())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	s1 := &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}, "r2": {}}}
	s2 := &memSource{name: "s2", batch: map[string]inventory.Entry{"r2": {}}}
	h := newHarness(t, s1, s2)
	c := h.newController(config.Args{RunOnce: config.RunModeGather}, WithMetrics(m))
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("test", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.devices.WithLabelValues("test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicates.WithLabelValues("test", "s2")))

	empty := &memSource{name: "s3"}
	h2 := newHarness(t, empty)
	c2 := h2.newController(config.Args{RunOnce: config.RunModeGather}, WithMetrics(m), WithName("other"))
	assert.Error(t, c2.Run(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("other", "error")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.cycleFailed("x") })
}

func TestInventorySourceError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &InventorySourceError{Source: "netbox", Message: "failed to get inventory", Err: cause}
	assert.Equal(t, "source netbox: failed to get inventory: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsInventorySourceError(cause))
}

func TestTerminationContextIsShared(t *testing.T) {
	assert.Equal(t, TerminationContext(), TerminationContext())
}

func TestRun_OneTerminationEndsEveryController(t *testing.T) {
	term, terminate := context.WithCancel(context.Background())

	h1 := newHarness(t, &memSource{name: "s1", batch: map[string]inventory.Entry{"r1": {}}})
	h1.term = term
	m1 := &runningManager{recManager: &recManager{}}
	h1.manager = m1
	c1 := h1.newController(config.Args{}, WithName("dc1"))

	h2 := newHarness(t, &memSource{name: "s2", batch: map[string]inventory.Entry{"r2": {}}})
	h2.term = term
	m2 := &runningManager{recManager: &recManager{}}
	h2.manager = m2
	c2 := h2.newController(config.Args{}, WithName("dc2"))

	done1, done2 := runAsync(c1), runAsync(c2)
	require.Eventually(t, func() bool {
		return len(m1.Applied()) == 1 && len(m2.Applied()) == 1
	}, 5*time.Second, 5*time.Millisecond)

	terminate()
	assert.NoError(t, waitRun(t, done1))
	assert.NoError(t, waitRun(t, done2))
	assert.Equal(t, int32(1), m1.cancelled.Load())
	assert.Equal(t, int32(1), m2.cancelled.Load())
	assert.False(t, c1.Running())
	assert.False(t, c2.Running())
}

package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Single-run modes. An empty mode means the controller loops forever.
const (
	RunModeGather   = "gather"
	RunModeProcess  = "process"
	RunModeUpdate   = "update"
	RunModeDebug    = "debug"
	RunModeInputDir = "input-dir"
)

// ControllerConfig is the merged configuration of one controller. It is
// built once by Resolve and never mutated afterwards; an update builds a new
// one.
type ControllerConfig struct {
	InventoryTimeout time.Duration `json:"inventory-timeout"`
	UpdatePeriod     time.Duration `json:"update-period"`
	Period           time.Duration `json:"period"`
	ConnectTimeout   time.Duration `json:"connect-timeout,omitempty"`
	Workers          int           `json:"workers"`

	// SingleRunMode is empty for continuous operation.
	SingleRunMode string `json:"single-run-mode,omitempty"`
	NoCoalescer   bool   `json:"no-coalescer"`
	Debug         bool   `json:"debug,omitempty"`
	RunOnce       string `json:"run-once,omitempty"`

	InventoryFile string   `json:"inventory-file,omitempty"`
	InputDir      string   `json:"input-dir,omitempty"`
	OutputDir     string   `json:"output-dir,omitempty"`
	Outputs       []string `json:"outputs,omitempty"`
	ConfigFile    string   `json:"config,omitempty"`
	SSHConfigFile string   `json:"ssh-config-file,omitempty"`

	LoggingLevel     string `json:"logging-level"`
	MaxCmdPipeline   int    `json:"max-cmd-pipeline,omitempty"`
	ServiceOnly      string `json:"service-only,omitempty"`
	ExcludeServices  string `json:"exclude-services,omitempty"`
	ServiceDirectory string `json:"service-directory,omitempty"`

	Chunker PluginBlocks `json:"chunker"`
	Manager PluginBlocks `json:"manager"`
}

// Resolve merges controller arguments over the poller section of cfg and
// fills in defaults. Arguments win over the file, the file wins over the
// defaults. Run-mode flags are normalized: an input directory or the debug
// flag force single-run mode, and any single-run mode disables the coalescer.
func Resolve(args Args, cfg *Config) ControllerConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	p := cfg.Poller

	out := ControllerConfig{
		RunOnce:          args.RunOnce,
		SingleRunMode:    args.RunOnce,
		Debug:            args.Debug,
		InputDir:         args.InputDir,
		OutputDir:        args.OutputDir,
		Outputs:          append([]string(nil), args.Outputs...),
		ConfigFile:       args.Config,
		SSHConfigFile:    args.SSHConfigFile,
		ServiceOnly:      args.ServiceOnly,
		ExcludeServices:  args.ExcludeServices,
		ServiceDirectory: cfg.ServiceDirectory,
	}

	if out.InputDir != "" {
		out.SingleRunMode = RunModeInputDir
	}
	if out.Debug {
		out.SingleRunMode = RunModeDebug
	}
	out.NoCoalescer = args.NoCoalescer || out.SingleRunMode != ""

	out.UpdatePeriod = Seconds(firstNonZero(args.UpdatePeriod, p.UpdatePeriod, DefaultUpdatePeriod))
	out.InventoryTimeout = Seconds(firstNonZero(args.InventoryTimeout, p.InventoryTimeout, DefaultInventoryTimeout))
	out.Period = Seconds(firstNonZero(args.Period, p.Period, DefaultPeriod))
	out.ConnectTimeout = Seconds(firstNonZero(args.ConnectTimeout, p.ConnectTimeout))
	out.MaxCmdPipeline = firstNonZero(args.MaxCmdPipeline, p.MaxCmdPipeline)
	out.LoggingLevel = strings.ToUpper(firstNonEmpty(args.LoggingLevel, p.LoggingLevel, DefaultLoggingLevel))

	out.Chunker = withDefaultType(p.Chunker)
	out.Manager = withDefaultType(p.Manager)

	out.Workers = firstNonZero(args.Workers, blockInt(out.Manager, "workers"), DefaultWorkers)

	if out.InputDir == "" {
		out.InventoryFile = firstNonEmpty(args.Inventory, p.InventoryFile, DefaultInventoryPath)
	}

	return out
}

// IsSingleRun reports whether the controller performs one cycle then stops.
func (c ControllerConfig) IsSingleRun() bool {
	return c.SingleRunMode != ""
}

// PollerSection renders the effective settings back into a poller section.
// An update of a controller uses it as the base the new arguments apply to.
func (c ControllerConfig) PollerSection() PollerConfig {
	manager := c.Manager.Clone()
	for i := range manager {
		manager[i].SetOption("workers", c.Workers)
	}
	return PollerConfig{
		UpdatePeriod:     int(c.UpdatePeriod / time.Second),
		InventoryTimeout: int(c.InventoryTimeout / time.Second),
		Period:           int(c.Period / time.Second),
		ConnectTimeout:   int(c.ConnectTimeout / time.Second),
		LoggingLevel:     c.LoggingLevel,
		MaxCmdPipeline:   c.MaxCmdPipeline,
		InventoryFile:    c.InventoryFile,
		Chunker:          c.Chunker.Clone(),
		Manager:          manager,
	}
}

// SourceOptions are the options every source plugin receives in addition to
// its own block.
func (c ControllerConfig) SourceOptions() map[string]interface{} {
	return map[string]interface{}{
		"single-run-mode": c.SingleRunMode,
		"inventory-file":  c.InventoryFile,
	}
}

// ManagerOptions are the options the manager plugin receives in addition to
// its own block.
func (c ControllerConfig) ManagerOptions() map[string]interface{} {
	return map[string]interface{}{
		"config":           c.ConfigFile,
		"debug":            c.Debug,
		"input-dir":        c.InputDir,
		"exclude-services": c.ExcludeServices,
		"service-only":     c.ServiceOnly,
		"no-coalescer":     c.NoCoalescer,
		"output-dir":       c.OutputDir,
		"outputs":          append([]string(nil), c.Outputs...),
		"max-cmd-pipeline": c.MaxCmdPipeline,
		"single-run-mode":  c.SingleRunMode,
		"run-once":         c.RunOnce,
		"ssh-config-file":  c.SSHConfigFile,
		"workers":          c.Workers,
	}
}

// Redacted returns a deep copy with secret-looking plugin options masked.
func (c ControllerConfig) Redacted() ControllerConfig {
	out := c
	out.Outputs = append([]string(nil), c.Outputs...)
	out.Chunker = redactBlocks(c.Chunker)
	out.Manager = redactBlocks(c.Manager)
	return out
}

// MarshalJSON writes durations in seconds, the unit of the configuration
// file.
func (c ControllerConfig) MarshalJSON() ([]byte, error) {
	type plain ControllerConfig
	return json.Marshal(struct {
		plain
		InventoryTimeout int `json:"inventory-timeout"`
		UpdatePeriod     int `json:"update-period"`
		Period           int `json:"period"`
		ConnectTimeout   int `json:"connect-timeout,omitempty"`
	}{
		plain:            plain(c),
		InventoryTimeout: int(c.InventoryTimeout / time.Second),
		UpdatePeriod:     int(c.UpdatePeriod / time.Second),
		Period:           int(c.Period / time.Second),
		ConnectTimeout:   int(c.ConnectTimeout / time.Second),
	})
}

func withDefaultType(blocks PluginBlocks) PluginBlocks {
	out := blocks.Clone()
	if len(out) == 0 {
		return PluginBlocks{{Type: DefaultPluginType}}
	}
	for i := range out {
		if out[i].Type == "" {
			out[i].Type = DefaultPluginType
		}
	}
	return out
}

// blockInt reads an integer option from the first block that sets it.
func blockInt(blocks PluginBlocks, key string) int {
	for _, b := range blocks {
		v, ok := b.Option(key)
		if !ok {
			continue
		}
		if n, err := toInt(v); err == nil {
			return n
		}
	}
	return 0
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}

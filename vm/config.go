package vm

import (
	"sync/atomic"
	"time"
)

// Config holds the runtime settings loaded from phoebe.toml.
type Config struct {
	// StackCapacity is the slot count of stacks made by NewThread.
	StackCapacity int
	// GCThreshold is the floor of the adaptive collection threshold.
	GCThreshold int64
	Allocator   AllocatorMode
	// Background runs passes on a dedicated goroutine instead of on the
	// evaluating goroutine that notices the threshold.
	Background bool
	// GCInterval additionally runs background passes on a ticker; zero
	// disables it.
	GCInterval time.Duration
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		StackCapacity: DefaultStackCapacity,
		GCThreshold:   DefaultGCThreshold,
		Allocator:     AllocInline,
	}
}

var currentConfig atomic.Pointer[Config]

func init() {
	c := DefaultConfig()
	currentConfig.Store(&c)
}

// CurrentConfig returns the settings in effect.
func CurrentConfig() Config { return *currentConfig.Load() }

// Configure applies cfg: the collector threshold, the allocator strategy
// and the background collector. Stacks created before the call keep their
// capacity.
func Configure(cfg Config) {
	if cfg.StackCapacity <= 0 {
		cfg.StackCapacity = DefaultStackCapacity
	}
	if cfg.GCThreshold <= 0 {
		cfg.GCThreshold = DefaultGCThreshold
	}
	currentConfig.Store(&cfg)

	collector.SetMinThreshold(cfg.GCThreshold)
	registry.setMode(cfg.Allocator)

	collector.Stop()
	if cfg.Background {
		collector.Start(cfg.GCInterval)
	}
	allocLog.Infof("configured: stack %d, threshold %d, allocator %s, background %t",
		cfg.StackCapacity, cfg.GCThreshold, cfg.Allocator, cfg.Background)
}

// Shutdown stops the background collector and the allocator goroutine.
func Shutdown() {
	collector.Stop()
	registry.setMode(AllocInline)
}

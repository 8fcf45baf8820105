// Package manifest handles phoebe.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"

	"github.com/chazu/phoebe/vm"
)

// FileName is the configuration file Load and FindAndLoad look for.
const FileName = "phoebe.toml"

// Manifest represents a phoebe.toml configuration.
type Manifest struct {
	Runtime Runtime `toml:"runtime"`
	GC      GC      `toml:"gc"`
	Log     Log     `toml:"log"`
	REPL    REPL    `toml:"repl"`
	Preload Preload `toml:"preload"`

	// Dir is the directory containing the phoebe.toml file (set at load time).
	Dir string `toml:"-"`
}

type Runtime struct {
	StackCapacity int `toml:"stack-capacity"`
}

// GC configures the collector and the allocator.
type GC struct {
	Mode             string   `toml:"mode"`
	Allocator        string   `toml:"allocator"`
	InitialThreshold int64    `toml:"initial-threshold"`
	Interval         Duration `toml:"interval"`
}

type Log struct {
	Verbosity int `toml:"verbosity"`
}

// REPL configures the interactive front end.
type REPL struct {
	Prompt  string `toml:"prompt"`
	History string `toml:"history"`
}

// Preload lists source files evaluated before any script or REPL input.
type Preload struct {
	Files []string `toml:"files"`
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no phoebe.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.setDefaults()
	return m
}

func (m *Manifest) setDefaults() {
	if m.Runtime.StackCapacity == 0 {
		m.Runtime.StackCapacity = vm.DefaultStackCapacity
	}
	if m.GC.Mode == "" {
		m.GC.Mode = "inline"
	}
	if m.GC.Allocator == "" {
		m.GC.Allocator = vm.AllocInline.String()
	}
	if m.GC.InitialThreshold == 0 {
		m.GC.InitialThreshold = vm.DefaultGCThreshold
	}
	if m.REPL.Prompt == "" {
		m.REPL.Prompt = "phoebe> "
	}
	if m.REPL.History == "" {
		m.REPL.History = ".phoebe_history"
	}
}

// Load parses a phoebe.toml file from the given directory and applies
// environment overrides.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.setDefaults()
	if err := m.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a phoebe.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// ---------------------------------------------------------------------------
// Environment overrides
// ---------------------------------------------------------------------------

// Environment variables that override phoebe.toml.
const (
	EnvStackCapacity = "PHOEBE_STACK_CAPACITY"
	EnvGCThreshold   = "PHOEBE_GC_THRESHOLD"
	EnvGCMode        = "PHOEBE_GC_MODE"
	EnvAllocator     = "PHOEBE_ALLOCATOR"
	EnvGCInterval    = "PHOEBE_GC_INTERVAL"
	EnvLogVerbosity  = "PHOEBE_LOG_VERBOSITY"
	EnvHistory       = "PHOEBE_HISTORY"
)

// ApplyEnv overrides settings from the process environment.
func (m *Manifest) ApplyEnv() error {
	return m.applyOverrides(func(name string) (string, bool) {
		if !env.Has(name) {
			return "", false
		}
		return env.Str(name), true
	})
}

func (m *Manifest) applyOverrides(lookup func(string) (string, bool)) error {
	atoi := func(name string, dst *int) error {
		if s, ok := lookup(name); ok {
			v, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = v
		}
		return nil
	}

	if err := atoi(EnvStackCapacity, &m.Runtime.StackCapacity); err != nil {
		return err
	}
	if err := atoi(EnvLogVerbosity, &m.Log.Verbosity); err != nil {
		return err
	}
	if s, ok := lookup(EnvGCThreshold); ok {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvGCThreshold, err)
		}
		m.GC.InitialThreshold = v
	}
	if s, ok := lookup(EnvGCInterval); ok {
		if err := m.GC.Interval.UnmarshalText([]byte(s)); err != nil {
			return fmt.Errorf("%s: %w", EnvGCInterval, err)
		}
	}
	if s, ok := lookup(EnvGCMode); ok {
		m.GC.Mode = s
	}
	if s, ok := lookup(EnvAllocator); ok {
		m.GC.Allocator = s
	}
	if s, ok := lookup(EnvHistory); ok {
		m.REPL.History = s
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// Validate checks the settings that have a fixed set of values.
func (m *Manifest) Validate() error {
	switch m.GC.Mode {
	case "inline", "background":
	default:
		return fmt.Errorf("gc.mode %q: want inline or background", m.GC.Mode)
	}
	if _, err := vm.ParseAllocatorMode(m.GC.Allocator); err != nil {
		return fmt.Errorf("gc.allocator: %w", err)
	}
	if m.Runtime.StackCapacity < 0 {
		return fmt.Errorf("runtime.stack-capacity %d is negative", m.Runtime.StackCapacity)
	}
	return nil
}

// VMConfig converts m to the settings vm.Configure takes.
func (m *Manifest) VMConfig() (vm.Config, error) {
	if err := m.Validate(); err != nil {
		return vm.Config{}, err
	}
	alloc, _ := vm.ParseAllocatorMode(m.GC.Allocator)
	return vm.Config{
		StackCapacity: m.Runtime.StackCapacity,
		GCThreshold:   m.GC.InitialThreshold,
		Allocator:     alloc,
		Background:    m.GC.Mode == "background",
		GCInterval:    m.GC.Interval.Duration,
	}, nil
}

// PreloadPaths returns absolute paths for the configured preload files.
func (m *Manifest) PreloadPaths() []string {
	var paths []string
	for _, f := range m.Preload.Files {
		if filepath.IsAbs(f) {
			paths = append(paths, f)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, f))
	}
	return paths
}

// HistoryPath returns where the interactive REPL keeps its history. A
// relative path is taken from the user's home directory.
func (m *Manifest) HistoryPath() string {
	if filepath.IsAbs(m.REPL.History) {
		return m.REPL.History
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return m.REPL.History
	}
	return filepath.Join(home, m.REPL.History)
}

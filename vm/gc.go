package vm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Collector: concurrent mark and sweep over the heap registry
// ---------------------------------------------------------------------------

// Phase is the collector's state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseMarking
	PhaseSweeping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMarking:
		return "marking"
	case PhaseSweeping:
		return "sweeping"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Trigger records what started a pass.
type Trigger string

const (
	TriggerExplicit   Trigger = "explicit"
	TriggerThreshold  Trigger = "threshold"
	TriggerBackground Trigger = "background"
	TriggerInterval   Trigger = "interval"
)

// Stats describes one completed pass.
type Stats struct {
	Epoch     uint64        `cbor:"1,keyasint"`
	Trigger   Trigger       `cbor:"2,keyasint"`
	Roots     int           `cbor:"3,keyasint"`
	Swept     int           `cbor:"4,keyasint"`
	Survivors int           `cbor:"5,keyasint"`
	Threshold int64         `cbor:"6,keyasint"`
	Duration  time.Duration `cbor:"7,keyasint"`
	Timestamp time.Time     `cbor:"8,keyasint"`
}

// DefaultGCThreshold is the registry size that first triggers a pass.
const DefaultGCThreshold = 1024

const historyLimit = 256

// Collector owns the epoch and arbitrates passes. One pass runs at a time:
// explicit passes wait their turn, opportunistic and background passes are
// skipped while another is running.
type Collector struct {
	pass    sync.Mutex
	epoch   atomic.Uint64
	marking atomic.Bool
	phase   atomic.Int32

	threshold    atomic.Int64
	minThreshold atomic.Int64

	passes    atomic.Uint64
	lastStats atomic.Pointer[Stats]

	histMu  sync.Mutex
	history []Stats

	roots []Object // reused between passes, guarded by pass

	// background goroutine lifecycle
	life    sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	wakeCh  chan struct{}
	running atomic.Bool
}

var collector = newCollector()

func newCollector() *Collector {
	c := &Collector{wakeCh: make(chan struct{}, 1)}
	c.epoch.Store(1)
	c.threshold.Store(DefaultGCThreshold)
	c.minThreshold.Store(DefaultGCThreshold)
	return c
}

// GC returns the process-wide collector.
func GC() *Collector { return collector }

// GCPass runs a full pass, waiting for any pass already running.
func GCPass() Stats {
	s, _ := collector.run(TriggerExplicit, true)
	return s
}

// MaybeCollect runs a pass if the registry has outgrown the threshold and
// no pass is running. With a background collector it only wakes it.
func MaybeCollect() bool {
	if registry.count.Load() <= collector.threshold.Load() {
		return false
	}
	if collector.running.Load() {
		collector.wake()
		return false
	}
	_, ran := collector.run(TriggerThreshold, false)
	return ran
}

func (c *Collector) State() Phase { return Phase(c.phase.Load()) }

func (c *Collector) Epoch() uint64 { return c.epoch.Load() }

// Threshold returns the registry size that triggers the next pass.
func (c *Collector) Threshold() int64 { return c.threshold.Load() }

// SetMinThreshold sets the floor the adaptive threshold never drops below.
func (c *Collector) SetMinThreshold(n int64) {
	if n < 1 {
		n = 1
	}
	c.minThreshold.Store(n)
	c.threshold.Store(n)
}

// Passes returns the number of completed passes.
func (c *Collector) Passes() uint64 { return c.passes.Load() }

// LastStats returns statistics from the most recent pass, or nil.
func (c *Collector) LastStats() *Stats { return c.lastStats.Load() }

// History returns up to the last 256 pass statistics, oldest first.
func (c *Collector) History() []Stats {
	c.histMu.Lock()
	defer c.histMu.Unlock()
	out := make([]Stats, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Collector) record(s Stats) {
	c.passes.Add(1)
	c.lastStats.Store(&s)
	c.histMu.Lock()
	if len(c.history) == historyLimit {
		copy(c.history, c.history[1:])
		c.history = c.history[:historyLimit-1]
	}
	c.history = append(c.history, s)
	c.histMu.Unlock()
}

// run performs one pass. With wait false it returns immediately when a
// pass is already running.
func (c *Collector) run(trigger Trigger, wait bool) (Stats, bool) {
	if wait {
		c.pass.Lock()
	} else if !c.pass.TryLock() {
		return Stats{}, false
	}
	defer c.pass.Unlock()

	// Allocations queued for the allocator goroutine must be visible to
	// the sweep below.
	registry.flush()

	registry.mu.Lock()
	defer registry.mu.Unlock()

	start := time.Now()
	c.phase.Store(int32(PhaseMarking))

	world.Lock()
	epoch := c.epoch.Add(1)
	c.marking.Store(true)
	roots := c.roots[:0]
	threads.mu.RLock()
	for th := range threads.set {
		roots = th.appendRoots(roots)
	}
	threads.mu.RUnlock()
	roots = refs.appendRoots(roots)
	world.Unlock()

	if gcLog.AllowLevel(commonlog.Debug) {
		gcLog.Debugf("epoch %d: marking from %d roots, %d registered", epoch, len(roots), len(registry.alloced))
	}

	symbols.mark(epoch)
	markHeap(heapExhausted, epoch)
	for _, r := range roots {
		r.mark(epoch)
	}

	// Barriers in flight finish before the sweep starts.
	world.Lock()
	c.marking.Store(false)
	world.Unlock()

	c.phase.Store(int32(PhaseSweeping))
	swept := registry.sweep(epoch)
	survivors := len(registry.alloced)

	next := max(c.minThreshold.Load(), int64(2*survivors))
	c.threshold.Store(next)
	c.phase.Store(int32(PhaseIdle))

	clear(roots)
	c.roots = roots[:0]

	s := Stats{
		Epoch:     epoch,
		Trigger:   trigger,
		Roots:     len(roots),
		Swept:     swept,
		Survivors: survivors,
		Threshold: next,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	c.record(s)
	gcLog.Infof("epoch %d (%s): swept %d, %d survivors, next pass at %d, took %s",
		epoch, trigger, swept, survivors, next, s.Duration)
	return s, true
}

// storeSlot overwrites a heap slot. While marking, the overwritten value
// is shaded so everything reachable when the pass began gets marked.
func storeSlot(slot *atomic.Uint64, v Object) {
	world.RLock()
	old := Object(slot.Swap(uint64(v)))
	if collector.marking.Load() {
		old.mark(collector.epoch.Load())
	}
	world.RUnlock()
}

// ---------------------------------------------------------------------------
// Background collector
// ---------------------------------------------------------------------------

// Start launches the background collector. It runs a pass whenever the
// allocator crosses the threshold and, if interval is positive, on every
// tick. Calling Start on a running collector does nothing.
func (c *Collector) Start(interval time.Duration) {
	c.life.Lock()
	defer c.life.Unlock()

	if c.stop != nil {
		return // already running
	}

	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})

	// Capture channels locally so the goroutine does not read c.stop/c.stopped
	// after Stop() has nilled them out.
	stopCh := c.stop
	stoppedCh := c.stopped
	c.running.Store(true)
	go c.loop(stopCh, stoppedCh, interval)
}

// Stop halts the background collector and waits for it to finish.
// It is safe to call Stop multiple times or on a collector never started.
func (c *Collector) Stop() {
	c.life.Lock()
	stopCh := c.stop
	stoppedCh := c.stopped
	c.stop = nil
	c.stopped = nil
	c.life.Unlock()

	if stopCh != nil {
		c.running.Store(false)
		close(stopCh)
		<-stoppedCh
	}
}

// Running reports whether the background collector is active.
func (c *Collector) Running() bool { return c.running.Load() }

func (c *Collector) wake() {
	if !c.running.Load() {
		return
	}
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

func (c *Collector) loop(stopCh <-chan struct{}, stoppedCh chan struct{}, interval time.Duration) {
	defer close(stoppedCh)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stopCh:
			return
		case <-c.wakeCh:
			c.run(TriggerBackground, false)
		case <-tick:
			c.run(TriggerInterval, false)
		}
	}
}

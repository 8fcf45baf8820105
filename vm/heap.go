package vm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Heap objects
// ---------------------------------------------------------------------------

// gcHeader is embedded in every heap type. handle is the slot-table index
// the object is encoded with; epoch is the last collection that marked it.
type gcHeader struct {
	handle uint64
	epoch  atomic.Uint64
}

func (h *gcHeader) header() *gcHeader { return h }

// Handle returns the slot-table index of the object.
func (h *gcHeader) Handle() uint64 { return h.handle }

// claim stamps the header with epoch. It returns false when the object was
// already marked in this epoch, so each object's children are visited once.
func (h *gcHeader) claim(epoch uint64) bool {
	for {
		old := h.epoch.Load()
		if old == epoch {
			return false
		}
		if h.epoch.CompareAndSwap(old, epoch) {
			return true
		}
	}
}

// shouldDeallocate reports whether the object missed the collection
// identified by epoch.
func (h *gcHeader) shouldDeallocate(epoch uint64) bool {
	return h.epoch.Load() != epoch
}

// heapObject is the closed set of types that live in the slot table:
// *Cons, *Symbol, *Namespace, *Function, *Box and *Error.
type heapObject interface {
	header() *gcHeader
	object() Object
	markChildren(epoch uint64)
	deallocate()
}

func markHeap(h heapObject, epoch uint64) {
	if h.header().claim(epoch) {
		h.markChildren(epoch)
	}
}

// mark is the single dispatch point for marking any Object.
func (o Object) mark(epoch uint64) {
	switch o.Kind() {
	case KindFloat, KindImmediate:
		return
	case KindReference:
		markReference(o, epoch)
	default:
		if h := slots.get(o.handle()); h != nil {
			markHeap(h, epoch)
		}
	}
}

// ---------------------------------------------------------------------------
// Slot table: handle -> heap object
// ---------------------------------------------------------------------------

const (
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
	maxPages = 1 << 16
)

type slotEntry struct {
	obj heapObject
}

type slotPage [pageSize]atomic.Pointer[slotEntry]

// slotTable keeps every live heap object reachable from Go so the Go
// collector never reclaims something an Object still names. Reads are
// lock-free; insert and release serialise on mu.
type slotTable struct {
	mu    sync.Mutex
	pages [maxPages]atomic.Pointer[slotPage]
	next  uint64
	free  []uint64
	limit uint64
}

var slots = &slotTable{limit: maxPages * pageSize}

// ErrHeapExhausted is returned by insert when every handle is in use.
var ErrHeapExhausted = errors.New("vm: heap exhausted")

func (s *slotTable) insert(obj heapObject) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var h uint64
	if n := len(s.free); n > 0 {
		h = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		if s.next+1 >= s.limit {
			return 0, ErrHeapExhausted
		}
		s.next++
		h = s.next
	}

	p := s.pages[h>>pageBits].Load()
	if p == nil {
		p = new(slotPage)
		s.pages[h>>pageBits].Store(p)
	}
	obj.header().handle = h
	p[h&pageMask].Store(&slotEntry{obj: obj})
	return h, nil
}

func (s *slotTable) get(h uint64) heapObject {
	if h == 0 || h>>pageBits >= maxPages {
		return nil
	}
	p := s.pages[h>>pageBits].Load()
	if p == nil {
		return nil
	}
	e := p[h&pageMask].Load()
	if e == nil {
		return nil
	}
	return e.obj
}

func (s *slotTable) release(h uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pages[h>>pageBits].Load()
	if p == nil || p[h&pageMask].Load() == nil {
		panic(fmt.Sprintf("vm: double free of heap handle %d", h))
	}
	p[h&pageMask].Store(nil)
	s.free = append(s.free, h)
}

// ---------------------------------------------------------------------------
// Heap registry
// ---------------------------------------------------------------------------

// AllocatorMode selects how new objects reach the heap registry.
type AllocatorMode int

const (
	// AllocInline registers each object under the registry lock on the
	// allocating goroutine.
	AllocInline AllocatorMode = iota
	// AllocChannel hands registrations to a dedicated allocator goroutine.
	AllocChannel
)

func (m AllocatorMode) String() string {
	switch m {
	case AllocInline:
		return "inline"
	case AllocChannel:
		return "channel"
	}
	return fmt.Sprintf("AllocatorMode(%d)", int(m))
}

// ParseAllocatorMode maps a configuration string to a mode.
func ParseAllocatorMode(s string) (AllocatorMode, error) {
	switch s {
	case "", "inline":
		return AllocInline, nil
	case "channel":
		return AllocChannel, nil
	}
	return AllocInline, fmt.Errorf("vm: unknown allocator mode %q", s)
}

type allocRequest struct {
	obj     heapObject
	flushed chan struct{}
}

type allocator struct {
	ch   chan allocRequest
	done chan struct{}
}

// heapRegistry lists every registered heap object. The collector holds mu
// for a whole pass, so registration blocks while a pass runs.
type heapRegistry struct {
	mu      sync.Mutex
	alloced []heapObject
	count   atomic.Int64

	modeMu sync.RWMutex
	alloc  *allocator
}

var registry = &heapRegistry{}

func (r *heapRegistry) register(h heapObject) {
	r.modeMu.RLock()
	if a := r.alloc; a != nil {
		a.ch <- allocRequest{obj: h}
		r.modeMu.RUnlock()
		return
	}
	r.modeMu.RUnlock()
	r.insert(h)
}

func (r *heapRegistry) insert(h heapObject) {
	r.mu.Lock()
	r.alloced = append(r.alloced, h)
	r.mu.Unlock()
	if n := r.count.Add(1); n > collector.threshold.Load() {
		collector.wake()
	}
}

// flush returns once every registration sent before the call is recorded.
func (r *heapRegistry) flush() {
	r.modeMu.RLock()
	defer r.modeMu.RUnlock()
	if r.alloc == nil {
		return
	}
	done := make(chan struct{})
	r.alloc.ch <- allocRequest{flushed: done}
	<-done
}

func (r *heapRegistry) setMode(mode AllocatorMode) {
	r.modeMu.Lock()
	defer r.modeMu.Unlock()

	switch {
	case mode == AllocChannel && r.alloc == nil:
		a := &allocator{
			ch:   make(chan allocRequest, 256),
			done: make(chan struct{}),
		}
		go a.run(r)
		r.alloc = a
		allocLog.Debug("allocator goroutine started")
	case mode == AllocInline && r.alloc != nil:
		close(r.alloc.ch)
		<-r.alloc.done
		r.alloc = nil
		allocLog.Debug("allocator goroutine stopped")
	}
}

func (r *heapRegistry) mode() AllocatorMode {
	r.modeMu.RLock()
	defer r.modeMu.RUnlock()
	if r.alloc != nil {
		return AllocChannel
	}
	return AllocInline
}

func (a *allocator) run(r *heapRegistry) {
	defer close(a.done)
	for req := range a.ch {
		if req.flushed != nil {
			close(req.flushed)
			continue
		}
		r.insert(req.obj)
	}
}

// sweep drops and deallocates every entry that missed the epoch. The
// caller holds r.mu.
func (r *heapRegistry) sweep(epoch uint64) (swept int) {
	kept := r.alloced[:0]
	for _, h := range r.alloced {
		if h.header().shouldDeallocate(epoch) {
			h.deallocate()
			slots.release(h.header().handle)
			swept++
			continue
		}
		kept = append(kept, h)
	}
	clear(r.alloced[len(kept):])
	r.alloced = kept
	r.count.Add(int64(-swept))
	return swept
}

// AliveCount returns the number of registered heap objects.
func AliveCount() int {
	return int(registry.count.Load())
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// world is held shared by mutators for short sections that make an object
// reachable (allocate and pin, read and pin, store and shade) and
// exclusively by the collector while it snapshots roots. A goroutine never
// acquires it shared twice.
var world sync.RWMutex

// allocate installs obj in the slot table stamped with the current epoch,
// so a pass already under way treats it as marked. If th is non-nil the
// object is pinned to th; link, if non-nil, runs in the same section to
// publish the object somewhere already reachable. Registration follows.
//
// When the slot table is full allocate panics with ErrHeapExhausted.
// Thread.Protect and the outermost Thread.Evaluate recover it and end the
// operation with a fatal heap-exhausted error.
func allocate(th *Thread, obj heapObject, link func(Object)) Object {
	world.RLock()
	if _, err := slots.insert(obj); err != nil {
		world.RUnlock()
		panic(err)
	}
	obj.header().epoch.Store(collector.epoch.Load())
	o := obj.object()
	if th != nil {
		th.pin(o)
	}
	if link != nil {
		link(o)
	}
	world.RUnlock()

	// In channel mode the registry entry is recorded after o is published.
	// o is already in the slot table, black and pinned, and a pass flushes
	// the channel before sweeping, so no pass can free it unregistered.
	registry.register(obj)
	return o
}

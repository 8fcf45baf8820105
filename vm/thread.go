package vm

import (
	"errors"
	"sync"
)

// ErrThreadClosed is returned when a closed thread is used.
var ErrThreadClosed = errors.New("vm: thread closed")

// ---------------------------------------------------------------------------
// Thread: per-goroutine evaluation state
// ---------------------------------------------------------------------------

// Thread is the evaluation state one goroutine owns: a stack, a stack of
// environments (the bottom one is the thread's global environment) and a
// list of pinned objects the collector treats as roots.
//
// A Thread must not be used from two goroutines at once. Any number of
// threads may evaluate in parallel.
type Thread struct {
	stack *Stack
	depth int

	mu     sync.Mutex
	envs   []*Namespace
	pins   []Object
	closed bool
}

// threadRegistry lists every open thread so a collection can see all
// stacks, not only the collecting goroutine's.
type threadRegistry struct {
	mu  sync.RWMutex
	set map[*Thread]struct{}
}

var threads = &threadRegistry{set: make(map[*Thread]struct{})}

// NewThread creates a thread with the configured stack capacity whose
// global environment is the default one.
func NewThread() (*Thread, error) {
	return NewThreadWithCapacity(CurrentConfig().StackCapacity)
}

// NewThreadWithCapacity creates a thread with a stack of the given size.
func NewThreadWithCapacity(capacity int) (*Thread, error) {
	s, err := newStack(capacity)
	if err != nil {
		return nil, err
	}
	g := DefaultGlobalEnv()
	refs.add(g)
	th := &Thread{stack: s, envs: []*Namespace{g}}

	threads.mu.Lock()
	threads.set[th] = struct{}{}
	threads.mu.Unlock()
	return th, nil
}

// Close releases the thread's stack and roots. References into its stack
// read as uninitialized afterwards.
func (th *Thread) Close() {
	th.mu.Lock()
	if th.closed {
		th.mu.Unlock()
		return
	}
	th.closed = true
	envs := th.envs
	th.envs = nil
	th.pins = nil
	th.mu.Unlock()

	threads.mu.Lock()
	delete(threads.set, th)
	threads.mu.Unlock()

	for _, e := range envs {
		refs.remove(e)
	}
	releaseStack(th.stack)
}

// Stack returns the thread's evaluation stack.
func (th *Thread) Stack() *Stack { return th.stack }

// ---------------------------------------------------------------------------
// Pinned roots
// ---------------------------------------------------------------------------

func needsPin(o Object) bool {
	switch o.Kind() {
	case KindFloat, KindImmediate:
		return false
	case KindReference:
		k, _ := o.refParts()
		return k != refStack
	}
	return true
}

// pin records o as a root of th. Callers hold world shared, so no pass
// can snapshot between obtaining o and pinning it.
func (th *Thread) pin(o Object) {
	if !needsPin(o) {
		return
	}
	th.mu.Lock()
	th.pins = append(th.pins, o)
	th.mu.Unlock()
}

func (th *Thread) pinMark() int {
	th.mu.Lock()
	defer th.mu.Unlock()
	return len(th.pins)
}

// unpinTo drops pins made since mark and keeps the given objects pinned,
// in one step.
func (th *Thread) unpinTo(mark int, keep ...Object) {
	th.mu.Lock()
	defer th.mu.Unlock()
	if mark > len(th.pins) {
		mark = len(th.pins)
	}
	clear(th.pins[mark:])
	th.pins = th.pins[:mark]
	for _, o := range keep {
		if needsPin(o) {
			th.pins = append(th.pins, o)
		}
	}
}

// PinCount returns the number of objects pinned to th.
func (th *Thread) PinCount() int { return th.pinMark() }

// Protect runs fn and drops every pin fn made, except those of its result
// or its error object.
func (th *Thread) Protect(fn func() (Object, error)) (result Object, err error) {
	mark := th.pinMark()
	defer func() { th.unpinTo(mark, result, errorObject(err)) }()
	defer th.recoverExhaustion(th.stack.Len(), &result, &err)
	return fn()
}

// recoverExhaustion turns an allocation that found the heap full into a
// fatal error for the operation that made it, dropping whatever that
// operation left above base on th's stack. Other panics continue.
func (th *Thread) recoverExhaustion(base int, result *Object, err *error) {
	r := recover()
	if r == nil {
		return
	}
	if r != ErrHeapExhausted {
		panic(r)
	}
	if n := th.stack.Len() - base; n > 0 {
		th.stack.EndFrame(n)
	}
	*result, *err = Nil, heapExhausted
}

func errorObject(err error) Object {
	var e *Error
	if errors.As(err, &e) {
		return e.Quiet()
	}
	return Nil
}

// Read calls load and pins what it returns before any pass can start.
func (th *Thread) Read(load func() Object) Object {
	world.RLock()
	defer world.RUnlock()
	v := load()
	th.pin(v)
	return v
}

// Deref reads through ref and pins the value.
func (th *Thread) Deref(ref Object) Object {
	return th.Read(func() Object { return Deref(ref) })
}

// Push pushes v onto th's stack.
func (th *Thread) Push(v Object) (Object, error) {
	return th.stack.Push(v)
}

// Pop pops th's stack and pins the value.
func (th *Thread) Pop() (Object, error) {
	world.RLock()
	defer world.RUnlock()
	v, err := th.stack.Pop()
	if err != nil {
		return Nil, err
	}
	th.pin(v)
	return v, nil
}

// appendRoots appends every root th holds. The caller holds world
// exclusively.
func (th *Thread) appendRoots(dst []Object) []Object {
	th.mu.Lock()
	dst = append(dst, th.pins...)
	for _, e := range th.envs {
		dst = append(dst, e.object())
	}
	th.mu.Unlock()
	return th.stack.appendLive(dst)
}

// ---------------------------------------------------------------------------
// Environment stack
// ---------------------------------------------------------------------------

var defaultGlobal struct {
	once sync.Once
	ns   *Namespace
}

// DefaultGlobalEnv returns the process-wide global environment. It holds
// a permanent reference count.
func DefaultGlobalEnv() *Namespace {
	defaultGlobal.once.Do(func() {
		n := &Namespace{name: MakeSymbol("global-namespace"), table: make(map[*Symbol]Object)}
		allocate(nil, n, func(Object) { refs.add(n) })
		defaultGlobal.ns = n
	})
	return defaultGlobal.ns
}

// BindGlobal inserts or updates sym in the default global environment.
func BindGlobal(sym *Symbol, v Object) error {
	return DefaultGlobalEnv().Bind(sym, v)
}

// CurrentEnv returns the innermost environment.
func (th *Thread) CurrentEnv() *Namespace {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.envs[len(th.envs)-1]
}

// GlobalEnv returns the thread's current global environment.
func (th *Thread) GlobalEnv() *Namespace {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.envs[0]
}

// EnvDepth returns the number of environments on th's stack.
func (th *Thread) EnvDepth() int {
	th.mu.Lock()
	defer th.mu.Unlock()
	return len(th.envs)
}

// WithEnv runs fn with env as the innermost environment. env is reference
// counted while pushed.
func (th *Thread) WithEnv(env *Namespace, fn func() (Object, error)) (Object, error) {
	refs.add(env)
	th.mu.Lock()
	th.envs = append(th.envs, env)
	th.mu.Unlock()

	defer func() {
		th.mu.Lock()
		th.envs[len(th.envs)-1] = nil
		th.envs = th.envs[:len(th.envs)-1]
		th.mu.Unlock()
		refs.remove(env)
	}()
	return fn()
}

// WithGlobalEnv runs fn with env in place of th's global environment.
func (th *Thread) WithGlobalEnv(env *Namespace, fn func() (Object, error)) (Object, error) {
	refs.add(env)
	th.mu.Lock()
	old := th.envs[0]
	th.envs[0] = env
	th.mu.Unlock()

	defer func() {
		th.mu.Lock()
		th.envs[0] = old
		th.mu.Unlock()
		refs.remove(env)
	}()
	return fn()
}

// ScopeForNewFunction returns the environment a closure created now
// should capture, promoting it if it is stack-backed.
func (th *Thread) ScopeForNewFunction() *Namespace {
	env := th.CurrentEnv()
	env.Promote()
	return env
}

// WithBindings runs fn in a stack-backed environment binding syms to vals,
// whose parent is the current environment. The values occupy a frame on
// th's stack until fn returns.
func (th *Thread) WithBindings(syms []*Symbol, vals []Object, fn func() (Object, error)) (Object, error) {
	refs := make([]Object, len(vals))
	pushed := 0
	defer func() { th.stack.EndFrame(pushed) }()
	for i, v := range vals {
		r, err := th.stack.Push(v)
		if err != nil {
			return Nil, th.AsError(err)
		}
		refs[i] = r
		pushed++
	}
	env := th.newTransient(th.CurrentEnv(), syms, refs)
	return th.WithEnv(env, fn)
}

// Lookup returns a reference to sym's binding in the current environment
// chain, or an unbound-symbol error.
func (th *Thread) Lookup(sym *Symbol) (Object, error) {
	if r, ok := th.CurrentEnv().GetSymRef(sym); ok {
		return r, nil
	}
	return Nil, th.NewError(ErrKindUnboundSymbol, sym.Object(), Nil)
}

// ---------------------------------------------------------------------------
// Reference counts for environments
// ---------------------------------------------------------------------------

// refTable counts the active uses of each environment. Its keys are a
// collector root set.
type refTable struct {
	mu     sync.Mutex
	counts map[*Namespace]int
}

var refs = &refTable{counts: make(map[*Namespace]int)}

func (r *refTable) add(n *Namespace) {
	r.mu.Lock()
	r.counts[n]++
	r.mu.Unlock()
}

func (r *refTable) remove(n *Namespace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counts[n]
	if !ok {
		panic("vm: reference count underflow for " + n.String())
	}
	if c <= 1 {
		delete(r.counts, n)
		return
	}
	r.counts[n] = c - 1
}

func (r *refTable) appendRoots(dst []Object) []Object {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n := range r.counts {
		dst = append(dst, n.object())
	}
	return dst
}

// RefCount returns the number of active uses of n.
func RefCount(n *Namespace) int {
	refs.mu.Lock()
	defer refs.mu.Unlock()
	return refs.counts[n]
}

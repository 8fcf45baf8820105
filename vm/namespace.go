package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrTransientBind is returned when code tries to add a binding to an
// environment backed by a call frame.
var ErrTransientBind = errors.New("vm: cannot add a binding to a stack-backed environment")

// Namespace is an environment: a table from symbols to references, plus an
// optional parent searched when a symbol is missing.
//
// A persistent namespace keeps every binding in a Box. A transient one is
// built for a call frame and binds each parameter to a reference into the
// caller's stack; Promote converts it to persistent before anything that
// outlives the frame captures it.
type Namespace struct {
	gcHeader
	mu        sync.RWMutex
	name      *Symbol
	parent    *Namespace
	table     map[*Symbol]Object
	transient bool
}

func (n *Namespace) object() Object { return heapObjectFor(tagNamespace, n.handle) }

// Object returns the tagged encoding of n.
func (n *Namespace) Object() Object { return n.object() }

// Name returns the namespace's name, or nil when anonymous.
func (n *Namespace) Name() *Symbol {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Namespace) Parent() *Namespace {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

func (n *Namespace) IsTransient() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.transient
}

func (n *Namespace) String() string {
	if name := n.Name(); name != nil {
		return fmt.Sprintf("[namespace %s]", name.Name())
	}
	return "[namespace ANONYMOUS]"
}

// Len returns the number of bindings made directly in n.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.table)
}

// Symbols returns the symbols bound directly in n, sorted by name.
func (n *Namespace) Symbols() []*Symbol {
	n.mu.RLock()
	out := make([]*Symbol, 0, len(n.table))
	for s := range n.table {
		out = append(out, s)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (n *Namespace) own(sym *Symbol) (Object, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	r, ok := n.table[sym]
	return r, ok
}

// GetSymRef returns a reference to sym's binding in n or the nearest
// ancestor that has one.
func (n *Namespace) GetSymRef(sym *Symbol) (Object, bool) {
	for ns := n; ns != nil; ns = ns.Parent() {
		if r, ok := ns.own(sym); ok {
			return r, true
		}
	}
	return Nil, false
}

// MakeSymRef returns a reference to sym's binding in n itself, creating an
// uninitialized binding if n has none. Parents are never consulted.
func (n *Namespace) MakeSymRef(sym *Symbol) (Object, error) {
	return n.bind(sym, Uninitialized, false)
}

// MakeSymRefSearchParent returns the binding GetSymRef finds, or makes
// one in n.
func (n *Namespace) MakeSymRefSearchParent(sym *Symbol) (Object, error) {
	if r, ok := n.GetSymRef(sym); ok {
		return r, nil
	}
	return n.MakeSymRef(sym)
}

// Bind inserts or updates sym in n.
func (n *Namespace) Bind(sym *Symbol, v Object) error {
	_, err := n.bind(sym, v, true)
	return err
}

func (n *Namespace) bind(sym *Symbol, v Object, overwrite bool) (Object, error) {
	if r, ok := n.own(sym); ok {
		if overwrite {
			return r, SetRef(r, v)
		}
		return r, nil
	}

	var (
		ref      Object
		existing bool
		err      error
	)
	allocate(nil, newBox(v), func(o Object) {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.transient {
			err = ErrTransientBind
			return
		}
		if r, ok := n.table[sym]; ok {
			ref, existing = r, true
			return
		}
		b := slots.get(o.handle()).(*Box)
		ref = b.Ref()
		n.table[sym] = ref
	})
	if err != nil {
		return Nil, err
	}
	if existing && overwrite {
		return ref, SetRef(ref, v)
	}
	return ref, nil
}

// Promote converts a transient namespace, and any transient ancestors, to
// persistent by moving each stack-backed binding into a fresh box.
func (n *Namespace) Promote() {
	if p := n.Parent(); p != nil {
		p.Promote()
	}
	if !n.IsTransient() {
		return
	}

	n.mu.RLock()
	pending := make(map[*Symbol]Object, len(n.table))
	for s, r := range n.table {
		pending[s] = r
	}
	n.mu.RUnlock()

	for sym, r := range pending {
		if k, _ := r.refParts(); k != refStack {
			continue
		}
		allocate(nil, newBox(Deref(r)), func(o Object) {
			b := slots.get(o.handle()).(*Box)
			n.mu.Lock()
			n.table[sym] = b.Ref()
			n.mu.Unlock()
		})
	}

	n.mu.Lock()
	n.transient = false
	n.mu.Unlock()
}

func (n *Namespace) markChildren(epoch uint64) {
	n.mu.RLock()
	name, parent := n.name, n.parent
	refs := make([]Object, 0, 2*len(n.table))
	for s, r := range n.table {
		refs = append(refs, s.object(), r)
	}
	n.mu.RUnlock()

	if name != nil {
		markHeap(name, epoch)
	}
	if parent != nil {
		markHeap(parent, epoch)
	}
	for _, o := range refs {
		o.mark(epoch)
	}
}

func (n *Namespace) deallocate() {
	n.mu.Lock()
	n.table = nil
	n.parent = nil
	n.name = nil
	n.mu.Unlock()
}

// NewNamespace allocates an empty persistent namespace pinned to th.
func (th *Thread) NewNamespace(name *Symbol, parent *Namespace) *Namespace {
	n := &Namespace{name: name, parent: parent, table: make(map[*Symbol]Object)}
	allocate(th, n, nil)
	return n
}

func (th *Thread) newTransient(parent *Namespace, syms []*Symbol, refs []Object) *Namespace {
	n := &Namespace{parent: parent, table: make(map[*Symbol]Object, len(syms)), transient: true}
	for i, s := range syms {
		n.table[s] = refs[i]
	}
	allocate(th, n, nil)
	return n
}

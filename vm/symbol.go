package vm

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Symbol is an interned name. Two symbols with the same name are always
// the same heap object.
type Symbol struct {
	gcHeader
	name string
}

func (s *Symbol) object() Object { return heapObjectFor(tagSymbol, s.handle) }

// Object returns the tagged encoding of s.
func (s *Symbol) Object() Object { return s.object() }

// Name returns the symbol's text.
func (s *Symbol) Name() string { return s.name }

func (s *Symbol) String() string { return s.name }

// IsKeyword reports whether s names itself, which symbols starting with a
// colon do.
func (s *Symbol) IsKeyword() bool { return strings.HasPrefix(s.name, ":") }

// WithColon returns the keyword form of s, used to match &key arguments.
func (s *Symbol) WithColon() *Symbol {
	if s.IsKeyword() {
		return s
	}
	return MakeSymbol(":" + s.name)
}

func (s *Symbol) markChildren(uint64) {}

func (s *Symbol) deallocate() {}

// ---------------------------------------------------------------------------
// SymbolTable: Interned symbols
// ---------------------------------------------------------------------------

// SymbolTable interns names to symbols. Every symbol in the table is a
// collector root.
type SymbolTable struct {
	mu     sync.RWMutex
	byName map[string]*Symbol
}

var symbols = &SymbolTable{byName: make(map[string]*Symbol, 256)}

// MakeSymbol returns the canonical symbol for name, allocating it on first
// use.
func MakeSymbol(name string) *Symbol {
	// Fast path: read-only lookup
	symbols.mu.RLock()
	if s, ok := symbols.byName[name]; ok {
		symbols.mu.RUnlock()
		return s
	}
	symbols.mu.RUnlock()

	// Slow path: need to add new symbol
	symbols.mu.Lock()

	// Double-check after acquiring write lock
	if s, ok := symbols.byName[name]; ok {
		symbols.mu.Unlock()
		return s
	}

	s := &Symbol{name: name}
	world.RLock()
	if _, err := slots.insert(s); err != nil {
		world.RUnlock()
		symbols.mu.Unlock()
		panic(err)
	}
	s.epoch.Store(collector.epoch.Load())
	world.RUnlock()
	symbols.byName[name] = s
	symbols.mu.Unlock()

	// Registration may wait on a running pass, which itself takes the
	// table lock to mark symbols.
	registry.register(s)
	return s
}

// Sym returns the symbol for name as an Object.
func Sym(name string) Object {
	return MakeSymbol(name).Object()
}

// Lookup returns the symbol for name without interning it.
func (st *SymbolTable) Lookup(name string) (*Symbol, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byName[name]
	return s, ok
}

// Len returns the number of interned symbols.
func (st *SymbolTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byName)
}

func (st *SymbolTable) mark(epoch uint64) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, s := range st.byName {
		s.claim(epoch)
	}
}

// Symbols returns the process-wide symbol table.
func Symbols() *SymbolTable { return symbols }

var gensymCount atomic.Uint64

// Gensym interns a fresh symbol named GENSYM-n.
func Gensym() *Symbol {
	return MakeSymbol(fmt.Sprintf("GENSYM-%d", gensymCount.Add(1)-1))
}

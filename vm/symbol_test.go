package vm

import (
	"fmt"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestMakeSymbolInterns(t *testing.T) {
	a := MakeSymbol("sym-test")
	b := MakeSymbol("sym-test")
	if a != b {
		t.Fatal("MakeSymbol returned two symbols for one name")
	}
	if Sym("sym-test") != a.Object() {
		t.Error("Sym does not encode the interned symbol")
	}
	if s, ok := Symbols().Lookup("sym-test"); !ok || s != a {
		t.Error("Lookup does not find the interned symbol")
	}
	if _, ok := Symbols().Lookup("sym-test-never-made"); ok {
		t.Error("Lookup interned a symbol")
	}
}

func TestKeywords(t *testing.T) {
	k := MakeSymbol("size")
	if k.IsKeyword() {
		t.Error("size is not a keyword")
	}
	kw := k.WithColon()
	if kw.Name() != ":size" || !kw.IsKeyword() {
		t.Errorf("WithColon() = %s", kw)
	}
	if kw.WithColon() != kw {
		t.Error("WithColon on a keyword must return it unchanged")
	}
}

func TestGensymUnique(t *testing.T) {
	seen := make(map[*Symbol]bool)
	for range 100 {
		s := Gensym()
		if seen[s] {
			t.Fatalf("Gensym repeated %s", s)
		}
		seen[s] = true
	}
}

// TestMakeSymbolConcurrent interns overlapping names from many goroutines
// and checks everyone agrees on identity.
func TestMakeSymbolConcurrent(t *testing.T) {
	const workers = 32
	const names = 200

	var mu sync.Mutex
	found := make(map[string]*Symbol)

	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for i := range names {
				name := fmt.Sprintf("concurrent-sym-%d", (i+w)%names)
				s := MakeSymbol(name)
				mu.Lock()
				prev, ok := found[name]
				if !ok {
					found[name] = s
				}
				mu.Unlock()
				if ok && prev != s {
					return fmt.Errorf("two symbols for %s", name)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if len(found) != names {
		t.Errorf("interned %d names, want %d", len(found), names)
	}
}

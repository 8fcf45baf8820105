package vm

import (
	"errors"
	"testing"
)

func TestNamespaceBindAndLookup(t *testing.T) {
	th := newTestThread(t)
	parent := th.NewNamespace(MakeSymbol("outer"), nil)
	child := th.NewNamespace(MakeSymbol("inner"), parent)

	x := MakeSymbol("ns-test-x")
	if err := parent.Bind(x, FromInt(1)); err != nil {
		t.Fatal(err)
	}

	ref, ok := child.GetSymRef(x)
	if !ok {
		t.Fatal("child does not see the parent binding")
	}
	if Deref(ref) != FromInt(1) {
		t.Errorf("lookup through parent = %s", Deref(ref))
	}

	// Shadowing in the child leaves the parent alone.
	if err := child.Bind(x, FromInt(2)); err != nil {
		t.Fatal(err)
	}
	cref, _ := child.GetSymRef(x)
	pref, _ := parent.GetSymRef(x)
	if Deref(cref) != FromInt(2) || Deref(pref) != FromInt(1) {
		t.Errorf("shadowing: child %s, parent %s", Deref(cref), Deref(pref))
	}

	// Rebinding updates the existing slot in place.
	if err := parent.Bind(x, FromInt(3)); err != nil {
		t.Fatal(err)
	}
	if Deref(ref) != FromInt(3) {
		t.Errorf("rebinding did not update the existing slot")
	}

	if _, ok := child.GetSymRef(MakeSymbol("ns-test-missing")); ok {
		t.Error("missing symbol found")
	}
}

func TestNamespaceMakeSymRef(t *testing.T) {
	th := newTestThread(t)
	parent := th.NewNamespace(nil, nil)
	child := th.NewNamespace(nil, parent)
	y := MakeSymbol("ns-test-y")
	parent.Bind(y, T)

	ref, err := child.MakeSymRefSearchParent(y)
	if err != nil {
		t.Fatal(err)
	}
	if Deref(ref) != T {
		t.Error("MakeSymRefSearchParent did not find the parent binding")
	}
	if child.Len() != 0 {
		t.Error("MakeSymRefSearchParent created a binding despite finding one")
	}

	own, err := child.MakeSymRef(y)
	if err != nil {
		t.Fatal(err)
	}
	if !Deref(own).IsUninitialized() {
		t.Errorf("fresh binding holds %s", Deref(own))
	}
	again, _ := child.MakeSymRef(y)
	if again != own {
		t.Error("MakeSymRef is not idempotent")
	}
}

func TestTransientNamespacePromote(t *testing.T) {
	th := newTestThread(t)
	a := MakeSymbol("ns-test-a")
	b := MakeSymbol("ns-test-b")

	r1, _ := th.Push(FromInt(1))
	r2, _ := th.Push(FromInt(2))
	outer := th.newTransient(DefaultGlobalEnv(), []*Symbol{a}, []Object{r1})
	inner := th.newTransient(outer, []*Symbol{b}, []Object{r2})

	if err := inner.Bind(MakeSymbol("ns-test-new"), T); !errors.Is(err, ErrTransientBind) {
		t.Errorf("binding a new symbol in a transient namespace: %v", err)
	}

	inner.Promote()
	if inner.IsTransient() || outer.IsTransient() {
		t.Fatal("Promote must promote the whole chain")
	}

	// The frame goes away; promoted bindings keep their values.
	th.Pop()
	th.Pop()

	ra, _ := inner.GetSymRef(a)
	rb, _ := inner.GetSymRef(b)
	if Deref(ra) != FromInt(1) || Deref(rb) != FromInt(2) {
		t.Errorf("after promotion: a=%s b=%s", Deref(ra), Deref(rb))
	}
	if k, _ := rb.refParts(); k != refBox {
		t.Errorf("promoted binding is still a stack reference")
	}
	if err := inner.Bind(MakeSymbol("ns-test-new"), T); err != nil {
		t.Errorf("binding after promotion: %v", err)
	}
}

// A reference resolved before promotion still names the old stack slot;
// resolving again after promotion reaches the box a closure shares.
func TestPromoteMovesBindingOffTheStack(t *testing.T) {
	th := newTestThread(t)
	c := MakeSymbol("ns-test-c")

	r, _ := th.Push(FromInt(0))
	defer th.Pop()
	frame := th.newTransient(DefaultGlobalEnv(), []*Symbol{c}, []Object{r})

	before, _ := frame.GetSymRef(c)
	var captured *Namespace
	th.WithEnv(frame, func() (Object, error) {
		captured = th.ScopeForNewFunction()
		return Nil, nil
	})
	if captured != frame || frame.IsTransient() {
		t.Fatal("capturing did not promote the frame environment")
	}

	after, _ := frame.GetSymRef(c)
	if after == before {
		t.Fatal("promotion left the binding on the stack")
	}
	if err := SetRef(after, FromInt(5)); err != nil {
		t.Fatal(err)
	}
	shared, _ := captured.GetSymRef(c)
	if Deref(shared) != FromInt(5) {
		t.Errorf("closure environment sees %s, want 5", Deref(shared))
	}
	if Deref(before) != FromInt(0) {
		t.Errorf("old stack slot changed to %s", Deref(before))
	}
}

func TestNamespaceSymbolsSorted(t *testing.T) {
	th := newTestThread(t)
	n := th.NewNamespace(nil, nil)
	for _, s := range []string{"zeta", "alpha", "mid"} {
		n.Bind(MakeSymbol(s), T)
	}
	got := n.Symbols()
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Symbols() = %v", got)
	}
	for i := range want {
		if got[i].Name() != want[i] {
			t.Errorf("Symbols()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEnvironmentRefCounts(t *testing.T) {
	th := newTestThread(t)
	n := th.NewNamespace(nil, DefaultGlobalEnv())

	if RefCount(n) != 0 {
		t.Fatalf("fresh namespace has count %d", RefCount(n))
	}
	th.WithEnv(n, func() (Object, error) {
		if RefCount(n) != 1 {
			t.Errorf("count while pushed = %d", RefCount(n))
		}
		if th.CurrentEnv() != n {
			t.Error("CurrentEnv is not the pushed env")
		}
		th.WithEnv(n, func() (Object, error) {
			if RefCount(n) != 2 {
				t.Errorf("count while pushed twice = %d", RefCount(n))
			}
			return Nil, nil
		})
		return Nil, nil
	})
	if RefCount(n) != 0 {
		t.Errorf("count after pop = %d", RefCount(n))
	}
	if th.EnvDepth() != 1 {
		t.Errorf("EnvDepth() = %d after all pops", th.EnvDepth())
	}
}

func TestWithGlobalEnv(t *testing.T) {
	th := newTestThread(t)
	g := th.NewNamespace(MakeSymbol("sandbox"), nil)
	sym := MakeSymbol("ns-test-sandboxed")
	g.Bind(sym, T)

	th.WithGlobalEnv(g, func() (Object, error) {
		if th.GlobalEnv() != g {
			t.Error("GlobalEnv not replaced")
		}
		if _, err := th.Lookup(sym); err != nil {
			t.Errorf("Lookup in replaced global: %v", err)
		}
		return Nil, nil
	})
	if th.GlobalEnv() != DefaultGlobalEnv() {
		t.Error("global env not restored")
	}
	_, err := th.Lookup(sym)
	var e *Error
	if !errors.As(err, &e) || e.Kind() != ErrKindUnboundSymbol {
		t.Errorf("Lookup after restore: %v", err)
	}
}

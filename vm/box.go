package vm

import "sync/atomic"

// Box is a heap cell holding one Object. Persistent environments keep each
// binding in a box so closures and the code that made them share it.
type Box struct {
	gcHeader
	val atomic.Uint64
}

func (b *Box) object() Object { return heapObjectFor(tagBox, b.handle) }

// Object returns the tagged encoding of b.
func (b *Box) Object() Object { return b.object() }

func (b *Box) Get() Object { return Object(b.val.Load()) }

func (b *Box) Set(v Object) { storeSlot(&b.val, v) }

// Ref returns a reference to the boxed slot.
func (b *Box) Ref() Object { return heapReference(refBox, b.handle) }

func (b *Box) markChildren(epoch uint64) { b.Get().mark(epoch) }

func (b *Box) deallocate() { b.val.Store(uint64(Nil)) }

// NewBox allocates a box holding v, pinned to th.
func (th *Thread) NewBox(v Object) Object {
	return allocate(th, newBox(v), nil)
}

func newBox(v Object) *Box {
	b := &Box{}
	b.val.Store(uint64(v))
	return b
}

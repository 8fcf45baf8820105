package vm

import "fmt"

// ---------------------------------------------------------------------------
// References: addressable slots
// ---------------------------------------------------------------------------

// A reference payload holds a 2-bit kind at bits 46-47. Stack references
// carry a 16-bit stack id and a 30-bit slot index; the others carry the
// handle of the heap object owning the slot.
type refKind uint64

const (
	refStack refKind = iota
	refBox
	refCar
	refCdr
)

const (
	refKindShift        = 46
	refLocMask   uint64 = 1<<refKindShift - 1

	stackIndexBits        = 30
	stackIndexMask uint64 = 1<<stackIndexBits - 1
)

// Stack ids are reused once a thread closes, so a stack reference is only
// meaningful while its frame is live. Stack references never escape as
// values: environments hold them only for the frame's duration, and
// Promote moves them into boxes before anything longer-lived captures one.
func stackReference(id uint16, idx int) Object {
	if uint64(idx) > stackIndexMask {
		panic(fmt.Sprintf("vm: stack index %d out of reference range", idx))
	}
	loc := uint64(id)<<stackIndexBits | uint64(idx)
	return encode(tagReference, uint64(refStack)<<refKindShift|loc)
}

func heapReference(k refKind, handle uint64) Object {
	return encode(tagReference, uint64(k)<<refKindShift|handle&refLocMask)
}

func (o Object) refParts() (refKind, uint64) {
	if !o.IsReference() {
		panic("Object.refParts: not a reference")
	}
	p := o.payload()
	return refKind(p >> refKindShift), p & refLocMask
}

func splitStackLoc(loc uint64) (id uint16, idx int) {
	return uint16(loc >> stackIndexBits), int(loc & stackIndexMask)
}

// Deref reads the slot ref points to. A stack reference whose stack has
// been closed, or whose slot has been popped, reads as uninitialized.
func Deref(ref Object) Object {
	k, loc := ref.refParts()
	switch k {
	case refStack:
		id, idx := splitStackLoc(loc)
		s := lookupStack(id)
		if s == nil {
			return Uninitialized
		}
		return s.get(idx)
	case refBox:
		if b, ok := slots.get(loc).(*Box); ok {
			return b.Get()
		}
	case refCar:
		if c, ok := slots.get(loc).(*Cons); ok {
			return c.Car()
		}
	case refCdr:
		if c, ok := slots.get(loc).(*Cons); ok {
			return c.Cdr()
		}
	}
	return Uninitialized
}

// DerefAll follows references until it reaches a non-reference.
func DerefAll(o Object) Object {
	for o.IsReference() {
		o = Deref(o)
	}
	return o
}

// SetRef writes v through ref.
func SetRef(ref, v Object) error {
	k, loc := ref.refParts()
	switch k {
	case refStack:
		id, idx := splitStackLoc(loc)
		s := lookupStack(id)
		if s == nil {
			return fmt.Errorf("vm: reference into closed stack %d", id)
		}
		return s.set(idx, v)
	case refBox:
		if b, ok := slots.get(loc).(*Box); ok {
			b.Set(v)
			return nil
		}
	case refCar:
		if c, ok := slots.get(loc).(*Cons); ok {
			c.SetCar(v)
			return nil
		}
	case refCdr:
		if c, ok := slots.get(loc).(*Cons); ok {
			c.SetCdr(v)
			return nil
		}
	}
	return fmt.Errorf("vm: dangling reference %#x", ref.payload())
}

func markReference(ref Object, epoch uint64) {
	k, loc := ref.refParts()
	if k == refStack {
		// stacks are roots
		return
	}
	if h := slots.get(loc); h != nil {
		markHeap(h, epoch)
	}
}

func referenceString(ref Object) string {
	return Deref(ref).String()
}

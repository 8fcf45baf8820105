package vm

import (
	"fmt"
	"math"
)

// Object is a phoebe value packed into 64 bits using NaN-boxing.
//
// Any bit pattern that is not a tagged value is an IEEE 754 double. Tagged
// values live in the positive NaN/Inf space: the top 12 bits are 0x7FF, a
// 4-bit tag sits at bits 48-51 and the low 48 bits carry the payload.
//
// Encoding scheme:
//   - Float: any double; NaNs are canonicalised to 0x7FF8_0000_0000_0000
//   - Cons, Symbol, Namespace, Function, Box: tag + heap handle
//   - Error: tag + (heap handle << 3 | signaling/quiet)
//   - Reference: tag + 2-bit kind + location
//   - Immediate: tag + 16-bit sub-tag + 32-bit value
//
// Tags 0 and 8 are left to floats so that +Inf (0x7FF0...) and the
// canonical quiet NaN (0x7FF8...) decode as themselves.
type Object uint64

// NaN-boxing constants
const (
	// Sign bit clear, exponent all ones.
	boxedPrefix uint64 = 0x7FF0000000000000
	prefixMask  uint64 = 0xFFF0000000000000

	// 4-bit tag at bits 48-51
	tagShift        = 48
	tagMask  uint64 = 0x000F000000000000

	// 48 bits of payload
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	canonicalNaN uint64 = 0x7FF8000000000000
)

type tag uint64

const (
	tagCons      tag = 1
	tagSymbol    tag = 2
	tagNamespace tag = 3
	tagFunction  tag = 4
	tagError     tag = 5
	tagBox       tag = 6
	tagReference tag = 7
	tagImmediate tag = 9

	// reserved for +Inf and the canonical NaN
	tagFloatInf tag = 0
	tagFloatNaN tag = 8
)

// Kind identifies the variant an Object decodes to.
type Kind uint8

const (
	KindFloat Kind = iota
	KindImmediate
	KindCons
	KindSymbol
	KindNamespace
	KindFunction
	KindError
	KindBox
	KindReference
)

var kindNames = [...]string{
	KindFloat:     "float",
	KindImmediate: "immediate",
	KindCons:      "cons",
	KindSymbol:    "symbol",
	KindNamespace: "namespace",
	KindFunction:  "function",
	KindError:     "error",
	KindBox:       "box",
	KindReference: "reference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func encode(t tag, payload uint64) Object {
	if payload&^payloadMask != 0 {
		panic(fmt.Sprintf("vm: payload %#x does not fit in 48 bits", payload))
	}
	return Object(boxedPrefix | uint64(t)<<tagShift | payload)
}

func (o Object) tag() tag {
	return tag((uint64(o) & tagMask) >> tagShift)
}

func (o Object) payload() uint64 {
	return uint64(o) & payloadMask
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if o decodes to a double.
func (o Object) IsFloat() bool {
	if uint64(o)&prefixMask != boxedPrefix {
		return true
	}
	t := o.tag()
	return t == tagFloatInf || t == tagFloatNaN
}

// Kind returns the variant o decodes to.
func (o Object) Kind() Kind {
	if o.IsFloat() {
		return KindFloat
	}
	switch o.tag() {
	case tagCons:
		return KindCons
	case tagSymbol:
		return KindSymbol
	case tagNamespace:
		return KindNamespace
	case tagFunction:
		return KindFunction
	case tagError:
		return KindError
	case tagBox:
		return KindBox
	case tagReference:
		return KindReference
	case tagImmediate:
		return KindImmediate
	}
	panic(fmt.Sprintf("vm: undecodable object %#016x", uint64(o)))
}

// IsHeap returns true if o names a heap object.
func (o Object) IsHeap() bool {
	switch o.Kind() {
	case KindCons, KindSymbol, KindNamespace, KindFunction, KindError, KindBox:
		return true
	}
	return false
}

// IsCons returns true if o is a pair cell.
func (o Object) IsCons() bool { return !o.IsFloat() && o.tag() == tagCons }

// IsSymbol returns true if o is a symbol.
func (o Object) IsSymbol() bool { return !o.IsFloat() && o.tag() == tagSymbol }

// IsReference returns true if o is a reference.
func (o Object) IsReference() bool { return !o.IsFloat() && o.tag() == tagReference }

// IsError returns true if o is an error object, signaling or quiet.
func (o Object) IsError() bool { return !o.IsFloat() && o.tag() == tagError }

// ---------------------------------------------------------------------------
// Floats
// ---------------------------------------------------------------------------

// FromFloat encodes f. Every NaN collapses to the canonical quiet NaN.
func FromFloat(f float64) Object {
	if math.IsNaN(f) {
		return Object(canonicalNaN)
	}
	return Object(math.Float64bits(f))
}

// Float returns o as a float64.
// Panics if o is not a float.
func (o Object) Float() float64 {
	if !o.IsFloat() {
		panic("Object.Float: not a float")
	}
	return math.Float64frombits(uint64(o))
}

// ---------------------------------------------------------------------------
// Heap handles
// ---------------------------------------------------------------------------

func heapObjectFor(t tag, handle uint64) Object {
	return encode(t, handle)
}

func (o Object) handle() uint64 {
	if o.tag() == tagError {
		return o.payload() >> errorTagBits
	}
	return o.payload()
}

// heap resolves o to its heap object, or nil for non-heap objects.
func (o Object) heap() heapObject {
	if !o.IsHeap() {
		return nil
	}
	h := slots.get(o.handle())
	if h == nil {
		panic(fmt.Sprintf("vm: use of freed heap handle %d (%s)", o.handle(), o.Kind()))
	}
	return h
}

// AsCons returns the pair cell o names.
func (o Object) AsCons() (*Cons, bool) {
	if !o.IsCons() {
		return nil, false
	}
	c, ok := o.heap().(*Cons)
	return c, ok
}

// AsSymbol returns the symbol o names.
func (o Object) AsSymbol() (*Symbol, bool) {
	if !o.IsSymbol() {
		return nil, false
	}
	s, ok := o.heap().(*Symbol)
	return s, ok
}

// AsNamespace returns the environment o names.
func (o Object) AsNamespace() (*Namespace, bool) {
	if o.Kind() != KindNamespace {
		return nil, false
	}
	n, ok := o.heap().(*Namespace)
	return n, ok
}

// AsFunction returns the function o names.
func (o Object) AsFunction() (*Function, bool) {
	if o.Kind() != KindFunction {
		return nil, false
	}
	f, ok := o.heap().(*Function)
	return f, ok
}

// AsBox returns the boxed value o names.
func (o Object) AsBox() (*Box, bool) {
	if o.Kind() != KindBox {
		return nil, false
	}
	b, ok := o.heap().(*Box)
	return b, ok
}

// AsError returns the error object o names, ignoring whether it is
// signaling or quiet.
func (o Object) AsError() (*Error, bool) {
	if !o.IsError() {
		return nil, false
	}
	e, ok := o.heap().(*Error)
	return e, ok
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Eq is identity: two objects are eq when their encodings match.
func Eq(a, b Object) bool {
	return a == b
}

// Eql is eq, except that numbers compare by value across integer and
// float representations.
func Eql(a, b Object) bool {
	if a == b {
		return true
	}
	na, ok := NumberOf(a)
	if !ok {
		return false
	}
	nb, ok := NumberOf(b)
	if !ok {
		return false
	}
	return na.Equal(nb)
}

// Equal is eql extended structurally over pair cells. References and
// boxes compare by their contents. Circular lists compare equal when no
// difference is found before the comparison returns to a pair of cells
// it has already started on.
func Equal(a, b Object) bool {
	return equal(a, b, make(map[[2]*Cons]bool))
}

func equal(a, b Object, seen map[[2]*Cons]bool) bool {
	for {
		a, b = seeThrough(a), seeThrough(b)
		if Eql(a, b) {
			return true
		}
		ca, ok := a.AsCons()
		if !ok {
			return false
		}
		cb, ok := b.AsCons()
		if !ok {
			return false
		}
		key := [2]*Cons{ca, cb}
		if seen[key] {
			return true
		}
		seen[key] = true
		if !equal(ca.Car(), cb.Car(), seen) {
			return false
		}
		a, b = ca.Cdr(), cb.Cdr()
	}
}

func seeThrough(o Object) Object {
	for {
		switch o.Kind() {
		case KindReference:
			o = Deref(o)
		case KindBox:
			b, _ := o.AsBox()
			o = b.Get()
		default:
			return o
		}
	}
}

package vm

import "fmt"

// Immediate sub-tags, stored at bits 32-47 of an immediate's payload.
const (
	immShift = 32

	immBool    uint64 = 0
	immInt     uint64 = 1
	immUint    uint64 = 2
	immSpecial uint64 = 3
)

const immBase = boxedPrefix | uint64(tagImmediate)<<tagShift

// Pre-defined immediates. nil and false are the same object.
const (
	Nil           Object = Object(immBase | immBool<<immShift | 0)
	T             Object = Object(immBase | immBool<<immShift | 1)
	Uninitialized Object = Object(immBase | immSpecial<<immShift | 0)
)

func (o Object) immediate() (sub uint64, val uint32, ok bool) {
	if o.IsFloat() || o.tag() != tagImmediate {
		return 0, 0, false
	}
	p := o.payload()
	return p >> immShift, uint32(p), true
}

// FromBool returns t or nil.
func FromBool(b bool) Object {
	if b {
		return T
	}
	return Nil
}

// FromInt encodes a 32-bit signed integer.
func FromInt(n int32) Object {
	return Object(immBase | immInt<<immShift | uint64(uint32(n)))
}

// FromUint encodes a 32-bit unsigned integer. Stack frames use these as
// their count markers.
func FromUint(n uint32) Object {
	return Object(immBase | immUint<<immShift | uint64(n))
}

// IsNil returns true if o is nil (which is also false).
func (o Object) IsNil() bool { return o == Nil }

// IsUninitialized returns true for the marker bound to missing optional
// and keyword arguments.
func (o Object) IsUninitialized() bool { return o == Uninitialized }

// IsBool returns true if o is t or nil.
func (o Object) IsBool() bool {
	sub, _, ok := o.immediate()
	return ok && sub == immBool
}

// IsInt returns true if o is a 32-bit signed integer.
func (o Object) IsInt() bool {
	sub, _, ok := o.immediate()
	return ok && sub == immInt
}

// IsUint returns true if o is a 32-bit unsigned integer.
func (o Object) IsUint() bool {
	sub, _, ok := o.immediate()
	return ok && sub == immUint
}

// Int returns o as an int32.
// Panics if o is not an integer.
func (o Object) Int() int32 {
	sub, v, ok := o.immediate()
	if !ok || sub != immInt {
		panic("Object.Int: not an integer")
	}
	return int32(v)
}

// Uint returns o as a uint32.
// Panics if o is not an unsigned integer.
func (o Object) Uint() uint32 {
	sub, v, ok := o.immediate()
	if !ok || sub != immUint {
		panic("Object.Uint: not an unsigned integer")
	}
	return v
}

// Truthy reports whether o counts as true in a conditional. Only nil and
// the uninitialized marker are false.
func (o Object) Truthy() bool {
	return o != Nil && o != Uninitialized
}

func immediateString(sub uint64, v uint32) string {
	switch sub {
	case immBool:
		if v != 0 {
			return "t"
		}
		return "nil"
	case immInt:
		return fmt.Sprint(int32(v))
	case immUint:
		return fmt.Sprint(v)
	case immSpecial:
		return "UNINITIALIZED"
	}
	return fmt.Sprintf("[immediate %d:%d]", sub, v)
}

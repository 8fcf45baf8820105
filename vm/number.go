package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Number: integer/float arithmetic
// ---------------------------------------------------------------------------

// Number is a decoded numeric Object. Arithmetic between two integers stays
// integral unless the result leaves the 32-bit range, in which case it
// becomes a float.
type Number struct {
	isFloat bool
	i       int32
	f       float64
}

// IntNumber wraps an integer.
func IntNumber(n int32) Number { return Number{i: n} }

// FloatNumber wraps a float.
func FloatNumber(f float64) Number { return Number{isFloat: true, f: f} }

// NumberOf decodes o as a number, looking through references.
func NumberOf(o Object) (Number, bool) {
	if o.IsReference() {
		o = Deref(o)
	}
	switch {
	case o.IsFloat():
		return FloatNumber(o.Float()), true
	case o.IsInt():
		return IntNumber(o.Int()), true
	}
	return Number{}, false
}

// IsFloat reports whether n holds a float.
func (n Number) IsFloat() bool { return n.isFloat }

// Float64 returns n widened to a float64.
func (n Number) Float64() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

// Int returns the integer held by n and whether n is an integer.
func (n Number) Int() (int32, bool) {
	return n.i, !n.isFloat
}

// Object encodes n.
func (n Number) Object() Object {
	if n.isFloat {
		return FromFloat(n.f)
	}
	return FromInt(n.i)
}

func (n Number) String() string {
	if n.isFloat {
		return formatFloat(n.f)
	}
	return strconv.FormatInt(int64(n.i), 10)
}

func fitsInInt(f float64) bool {
	return f <= math.MaxInt32 && f >= math.MinInt32
}

// Flatten converts an integral float that fits in 32 bits to an integer.
func (n Number) Flatten() Number {
	if n.isFloat && math.Trunc(n.f) == n.f && fitsInInt(n.f) {
		return IntNumber(int32(n.f))
	}
	return n
}

func fromInt64(v int64) Number {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return FloatNumber(float64(v))
	}
	return IntNumber(int32(v))
}

func (n Number) bothInts(m Number) bool { return !n.isFloat && !m.isFloat }

func (n Number) Add(m Number) Number {
	if n.bothInts(m) {
		return fromInt64(int64(n.i) + int64(m.i))
	}
	return FloatNumber(n.Float64() + m.Float64())
}

func (n Number) Sub(m Number) Number {
	if n.bothInts(m) {
		return fromInt64(int64(n.i) - int64(m.i))
	}
	return FloatNumber(n.Float64() - m.Float64())
}

func (n Number) Mul(m Number) Number {
	if n.bothInts(m) {
		return fromInt64(int64(n.i) * int64(m.i))
	}
	return FloatNumber(n.Float64() * m.Float64())
}

// Div always divides as floats and flattens the quotient.
func (n Number) Div(m Number) Number {
	return FloatNumber(n.Float64() / m.Float64()).Flatten()
}

func (n Number) Neg() Number {
	if !n.isFloat {
		return fromInt64(-int64(n.i))
	}
	return FloatNumber(-n.f)
}

func (n Number) Recip() Number {
	return FloatNumber(1 / n.Float64()).Flatten()
}

// Compare returns -1, 0 or 1. NaN compares unequal to everything, and
// Compare reports it as 1 with ok false.
func (n Number) Compare(m Number) (c int, ok bool) {
	if n.bothInts(m) {
		switch {
		case n.i < m.i:
			return -1, true
		case n.i > m.i:
			return 1, true
		}
		return 0, true
	}
	a, b := n.Float64(), m.Float64()
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	case a == b:
		return 0, true
	}
	return 1, false
}

func (n Number) Equal(m Number) bool {
	c, ok := n.Compare(m)
	return ok && c == 0
}

func (n Number) Less(m Number) bool {
	c, ok := n.Compare(m)
	return ok && c < 0
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	for _, c := range s {
		if c == '.' {
			return s
		}
	}
	return s + ".0"
}

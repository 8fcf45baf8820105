package vm

import (
	"math"
	"testing"
)

func TestNumberArithmetic(t *testing.T) {
	i := IntNumber
	f := FloatNumber
	tests := []struct {
		name string
		got  Number
		want string
	}{
		{"int add", i(2).Add(i(3)), "5"},
		{"mixed add", i(2).Add(f(0.5)), "2.5"},
		{"add overflows to float", i(math.MaxInt32).Add(i(1)), "2147483648.0"},
		{"sub", i(2).Sub(i(5)), "-3"},
		{"mul", i(6).Mul(i(7)), "42"},
		{"mul overflow", i(1 << 20).Mul(i(1 << 20)), "1099511627776.0"},
		{"exact div flattens", i(6).Div(i(3)), "2"},
		{"inexact div", i(1).Div(i(2)), "0.5"},
		{"div by zero", i(1).Div(i(0)), "inf"},
		{"neg", i(4).Neg(), "-4"},
		{"neg min int", i(math.MinInt32).Neg(), "2147483648.0"},
		{"recip", i(4).Recip(), "0.25"},
		{"recip of one", i(1).Recip(), "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s := tt.got.String(); s != tt.want {
				t.Errorf("got %s, want %s", s, tt.want)
			}
		})
	}
}

func TestNumberFlatten(t *testing.T) {
	if n := FloatNumber(3).Flatten(); n.IsFloat() {
		t.Error("3.0 did not flatten")
	}
	if n := FloatNumber(3.5).Flatten(); !n.IsFloat() {
		t.Error("3.5 flattened")
	}
	if n := FloatNumber(1e12).Flatten(); !n.IsFloat() {
		t.Error("1e12 flattened outside int32 range")
	}
}

func TestNumberCompare(t *testing.T) {
	nan := FloatNumber(math.NaN())
	if !IntNumber(1).Less(FloatNumber(1.5)) {
		t.Error("1 < 1.5")
	}
	if !IntNumber(2).Equal(FloatNumber(2)) {
		t.Error("2 = 2.0")
	}
	if nan.Equal(nan) || nan.Less(IntNumber(0)) || IntNumber(0).Less(nan) {
		t.Error("NaN must be unordered")
	}
	if _, ok := nan.Compare(IntNumber(1)); ok {
		t.Error("Compare with NaN reported ok")
	}
}

func TestNumberOfLooksThroughReferences(t *testing.T) {
	th := newTestThread(t)
	ref, err := th.Push(FromInt(12))
	if err != nil {
		t.Fatal(err)
	}
	defer th.Pop()

	n, ok := NumberOf(ref)
	if !ok {
		t.Fatal("NumberOf(ref) failed")
	}
	if v, isInt := n.Int(); !isInt || v != 12 {
		t.Errorf("NumberOf(ref) = %s", n)
	}
	if _, ok := NumberOf(Sym("x")); ok {
		t.Error("a symbol is not a number")
	}
}

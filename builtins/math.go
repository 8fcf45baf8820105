package builtins

import "github.com/chazu/phoebe/vm"

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func mathBuiltins() []builtin {
	return []builtin{
		{"=", "(&rest nums)", false, numEqual},
		{"<", "(&rest nums)", false, numLess},
		{">", "(&rest nums)", false, numGreater},
		{"+", "(&rest nums)", false, add},
		{"*", "(&rest nums)", false, multiply},
		{"-", "(number &rest others)", false, subtract},
		{"/", "(number &rest others)", false, divide},
	}
}

// numbers type-checks every element of a rest list.
func numbers(th *vm.Thread, list vm.Object) ([]vm.Number, error) {
	items, err := listArg(th, list)
	if err != nil {
		return nil, err
	}
	out := make([]vm.Number, len(items))
	for i, o := range items {
		if out[i], err = numberArg(th, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// chain reports whether ok holds for every adjacent pair.
func chain(th *vm.Thread, list vm.Object, ok func(a, b vm.Number) bool) (vm.Object, error) {
	nums, err := numbers(th, list)
	if err != nil {
		return vm.Nil, err
	}
	for i := 1; i < len(nums); i++ {
		if !ok(nums[i-1], nums[i]) {
			return vm.Nil, nil
		}
	}
	return vm.T, nil
}

func numEqual(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	return chain(th, args[0], vm.Number.Equal)
}

func numLess(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	return chain(th, args[0], vm.Number.Less)
}

func numGreater(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	return chain(th, args[0], func(a, b vm.Number) bool { return b.Less(a) })
}

func add(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	nums, err := numbers(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	sum := vm.IntNumber(0)
	for _, n := range nums {
		sum = sum.Add(n)
	}
	return sum.Object(), nil
}

func multiply(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	nums, err := numbers(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	product := vm.IntNumber(1)
	for _, n := range nums {
		product = product.Mul(n)
	}
	return product.Object(), nil
}

// subtract negates a lone argument.
func subtract(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	first, err := numberArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	others, err := numbers(th, args[1])
	if err != nil {
		return vm.Nil, err
	}
	if len(others) == 0 {
		return first.Neg().Object(), nil
	}
	for _, n := range others {
		first = first.Sub(n)
	}
	return first.Object(), nil
}

// divide takes the reciprocal of a lone argument.
func divide(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	first, err := numberArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	others, err := numbers(th, args[1])
	if err != nil {
		return vm.Nil, err
	}
	if len(others) == 0 {
		return first.Recip().Object(), nil
	}
	for _, n := range others {
		first = first.Div(n)
	}
	return first.Object(), nil
}

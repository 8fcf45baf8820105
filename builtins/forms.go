package builtins

import "github.com/chazu/phoebe/vm"

// ---------------------------------------------------------------------------
// Special forms: control flow, binding and definition
// ---------------------------------------------------------------------------

// Special forms receive their arguments unevaluated and evaluate them in
// the caller's environment, since a native call pushes none of its own.

func formBuiltins() []builtin {
	return []builtin{
		{"quote", "(x)", true, quote},
		{"cond", "(&rest clauses)", true, cond},
		{"if", "(test then &rest elses)", true, ifForm},
		{"when", "(test &rest body)", true, when},
		{"unless", "(test &rest body)", true, unless},
		{"let", "(bindings &rest body)", true, let},
		{"lambda", "(arglist &rest body)", true, lambda},
		{"defun", "(name arglist &rest body)", true, defun},
		{"defvar", "(name &optional value)", true, defvar},
		{"boundp", "(symbol)", true, boundp},
		{"setf", "(place value)", true, setf},
	}
}

func quote(_ *vm.Thread, args []vm.Object) (vm.Object, error) {
	return args[0], nil
}

// cond evaluates each clause's test in turn. The first truthy test runs
// the rest of its clause, or yields the test value when there is none.
func cond(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	clauses, err := listArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	for _, clause := range clauses {
		c, ok := clause.AsCons()
		if !ok {
			return vm.Nil, th.NewError(vm.ErrKindImproperList, clause, vm.Nil)
		}
		test, err := th.Evaluate(c.Car())
		if err != nil {
			return vm.Nil, err
		}
		if !test.Truthy() {
			continue
		}
		if c.Cdr().IsNil() {
			return test, nil
		}
		return th.EvalBody(c.Cdr())
	}
	return vm.Nil, nil
}

func ifForm(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	test, err := th.Evaluate(args[0])
	if err != nil {
		return vm.Nil, err
	}
	if test.Truthy() {
		return th.Evaluate(args[1])
	}
	return th.EvalBody(args[2])
}

func when(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	test, err := th.Evaluate(args[0])
	if err != nil {
		return vm.Nil, err
	}
	if !test.Truthy() {
		return vm.Nil, nil
	}
	return th.EvalBody(args[1])
}

// unless yields the test value when it is truthy.
func unless(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	test, err := th.Evaluate(args[0])
	if err != nil {
		return vm.Nil, err
	}
	if test.Truthy() {
		return test, nil
	}
	return th.EvalBody(args[1])
}

// let evaluates every binding in the enclosing environment, then runs the
// body in a new one holding them.
func let(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	bindings, err := listArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	syms := make([]*vm.Symbol, len(bindings))
	vals := make([]vm.Object, len(bindings))
	for i, b := range bindings {
		pair, err := listArg(th, b)
		if err != nil {
			return vm.Nil, err
		}
		if len(pair) != 2 {
			return vm.Nil, th.NewError(vm.ErrKindImproperList, b, vm.Nil)
		}
		if syms[i], err = symbolArg(th, pair[0]); err != nil {
			return vm.Nil, err
		}
		if vals[i], err = th.Evaluate(pair[1]); err != nil {
			return vm.Nil, err
		}
	}
	body := args[1]
	return th.WithBindings(syms, vals, func() (vm.Object, error) {
		return th.EvalBody(body)
	})
}

func lambda(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	f, err := th.NewFunction(nil, args[0], args[1], th.ScopeForNewFunction())
	if err != nil {
		return vm.Nil, th.AsError(err)
	}
	return f.Object(), nil
}

// defun binds a named function in the global environment and returns it.
func defun(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	name, err := symbolArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	f, err := th.NewFunction(name, args[1], args[2], th.ScopeForNewFunction())
	if err != nil {
		return vm.Nil, th.AsError(err)
	}
	if err := th.GlobalEnv().Bind(name, f.Object()); err != nil {
		return vm.Nil, th.AsError(err)
	}
	return f.Object(), nil
}

// defvar initializes a global variable unless it already has a value,
// and returns a reference to it.
func defvar(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	name, err := symbolArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	ref, err := th.GlobalEnv().MakeSymRef(name)
	if err != nil {
		return vm.Nil, th.AsError(err)
	}
	if !vm.Deref(ref).IsUninitialized() {
		return ref, nil
	}

	v := vm.Uninitialized
	if supplied(args[1]) {
		if v, err = th.Evaluate(args[1]); err != nil {
			return vm.Nil, err
		}
	}
	if err := vm.SetRef(ref, v); err != nil {
		return vm.Nil, th.AsError(err)
	}
	return ref, nil
}

func boundp(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	sym, err := symbolArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	_, ok := th.GlobalEnv().GetSymRef(sym)
	return vm.FromBool(ok), nil
}

// setf evaluates place to a reference, then value, and stores.
func setf(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	ref, err := th.EvaluateToReference(args[0])
	if err != nil {
		return vm.Nil, err
	}
	v, err := th.Evaluate(args[1])
	if err != nil {
		return vm.Nil, err
	}
	// A closure made while evaluating the value promotes the environment,
	// moving stack-backed bindings into boxes. Look the symbol up again.
	if _, ok := args[0].AsSymbol(); ok {
		if ref, err = th.EvaluateToReference(args[0]); err != nil {
			return vm.Nil, err
		}
	}
	if err := vm.SetRef(ref, v); err != nil {
		return vm.Nil, th.AsError(err)
	}
	return v, nil
}

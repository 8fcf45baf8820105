package builtins

import "github.com/chazu/phoebe/vm"

// ---------------------------------------------------------------------------
// Error construction, signaling and handling
// ---------------------------------------------------------------------------

func errorBuiltins() []builtin {
	return []builtin{
		{"throw", "(error)", false, throw},
		{"error", "(name &optional body)", false, makeError},
		{"type-error", "(wanted)", false, typeError},
		{"improper-list-error", "()", false, improperListError},
		{"not-a-reference-error", "()", false, notAReferenceError},
		{"catch-error", "(try bind &rest catch)", true, catchError},
	}
}

// throw signals an error object built by one of the constructors.
func throw(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	if !args[0].IsError() {
		return vm.Nil, th.NewError(vm.ErrKindType, vm.Sym("error"), args[0])
	}
	return vm.ToSignaling(args[0]), nil
}

// makeError builds a quiet user error. A missing body is nil.
func makeError(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	name, err := symbolArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	body := args[1]
	if !supplied(body) {
		body = vm.Nil
	}
	return th.NewUserError(name, body).Quiet(), nil
}

func typeError(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	wanted, err := symbolArg(th, args[0])
	if err != nil {
		return vm.Nil, err
	}
	return th.NewError(vm.ErrKindType, wanted.Object(), vm.Nil).Quiet(), nil
}

func improperListError(th *vm.Thread, _ []vm.Object) (vm.Object, error) {
	return th.NewError(vm.ErrKindImproperList, vm.Nil, vm.Nil).Quiet(), nil
}

func notAReferenceError(th *vm.Thread, _ []vm.Object) (vm.Object, error) {
	return th.NewError(vm.ErrKindCannotBeReferenced, vm.Nil, vm.Nil).Quiet(), nil
}

// catchError evaluates try. If it signals, the quiet error is bound to
// bind while the catch forms run, and the last of them is the result.
// Stack overflow is not catchable.
func catchError(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	bind, err := symbolArg(th, args[1])
	if err != nil {
		return vm.Nil, err
	}
	v, err := th.Evaluate(args[0])
	if err == nil {
		return v, nil
	}
	e := th.AsError(err)
	if e.Fatal() {
		return vm.Nil, e
	}

	caught := e.Quiet()
	body := args[2]
	return th.WithBindings([]*vm.Symbol{bind}, []vm.Object{caught}, func() (vm.Object, error) {
		if body.IsNil() {
			return caught, nil
		}
		return th.EvalBody(body)
	})
}

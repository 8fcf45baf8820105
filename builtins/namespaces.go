package builtins

import "github.com/chazu/phoebe/vm"

func namespaceBuiltins() []builtin {
	return []builtin{
		{"make-namespace", "(&key name contents parent)", true, makeNamespace},
		{"nref", "(namespace symbol)", true, nref},
		{"with-namespace", "(namespace &rest body)", true, withNamespace},
	}
}

// makeNamespace builds a namespace from unevaluated key arguments:
//
//	(make-namespace :name foo :contents ((a 1) (b (+ 1 1))) :parent p)
//
// The name is bound globally. Content values and the parent are
// evaluated; an explicit nil parent makes a root namespace, and anything
// but a namespace otherwise means the global environment.
func makeNamespace(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	var name *vm.Symbol
	if supplied(args[0]) {
		var err error
		if name, err = symbolArg(th, args[0]); err != nil {
			return vm.Nil, err
		}
	}

	parent := th.GlobalEnv()
	if supplied(args[2]) {
		p, err := th.Evaluate(args[2])
		if err != nil {
			return vm.Nil, err
		}
		if n, ok := p.AsNamespace(); ok {
			parent = n
		} else if p.IsNil() {
			parent = nil
		}
	}

	ns := th.NewNamespace(name, parent)
	if supplied(args[1]) {
		pairs, err := listArg(th, args[1])
		if err != nil {
			return vm.Nil, err
		}
		for _, pair := range pairs {
			items, err := listArg(th, pair)
			if err != nil {
				return vm.Nil, err
			}
			if len(items) != 2 {
				return vm.Nil, th.NewError(vm.ErrKindImproperList, pair, vm.Nil)
			}
			sym, err := symbolArg(th, items[0])
			if err != nil {
				return vm.Nil, err
			}
			v, err := th.Evaluate(items[1])
			if err != nil {
				return vm.Nil, err
			}
			if err := ns.Bind(sym, v); err != nil {
				return vm.Nil, th.AsError(err)
			}
		}
	}

	if name != nil {
		if err := th.GlobalEnv().Bind(name, ns.Object()); err != nil {
			return vm.Nil, th.AsError(err)
		}
	}
	return ns.Object(), nil
}

// nref returns a reference to symbol's binding as seen from namespace,
// creating an uninitialized binding there if none is visible.
func nref(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	v, err := th.Evaluate(args[0])
	if err != nil {
		return vm.Nil, err
	}
	ns, err := namespaceArg(th, v)
	if err != nil {
		return vm.Nil, err
	}
	sym, err := symbolArg(th, args[1])
	if err != nil {
		return vm.Nil, err
	}
	ref, err := ns.MakeSymRefSearchParent(sym)
	if err != nil {
		return vm.Nil, th.AsError(err)
	}
	return ref, nil
}

// withNamespace runs body with namespace standing in for the global
// environment.
func withNamespace(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	v, err := th.Evaluate(args[0])
	if err != nil {
		return vm.Nil, err
	}
	ns, err := namespaceArg(th, v)
	if err != nil {
		return vm.Nil, err
	}
	body := args[1]
	return th.WithGlobalEnv(ns, func() (vm.Object, error) {
		return th.EvalBody(body)
	})
}

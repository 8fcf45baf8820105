// Package builtins defines phoebe's special forms and builtin functions
// in the default global environment.
package builtins

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/phoebe/reader"
	"github.com/chazu/phoebe/vm"
)

var log = commonlog.GetLogger("phoebe.builtins")

// builtin describes one native binding. params is a lambda list in
// source form, such as "(test then &rest elses)".
type builtin struct {
	name    string
	params  string
	special bool
	fn      vm.NativeFunc
}

var (
	installOnce sync.Once
	installErr  error
)

// Install binds every builtin in the default global environment. It is
// safe to call from any number of goroutines; only the first call does
// any work and every call returns once the builtins are in place.
func Install() error {
	installOnce.Do(func() { installErr = install() })
	return installErr
}

func install() error {
	th, err := vm.NewThread()
	if err != nil {
		return err
	}
	defer th.Close()

	groups := [][]builtin{
		formBuiltins(),
		listBuiltins(),
		errorBuiltins(),
		mathBuiltins(),
		namespaceBuiltins(),
	}
	n := 0
	for _, group := range groups {
		for _, b := range group {
			if err := define(th, b); err != nil {
				return err
			}
			n++
		}
	}
	log.Infof("installed %d builtins", n)
	return nil
}

func define(th *vm.Thread, b builtin) error {
	_, err := th.Protect(func() (vm.Object, error) {
		arglist, err := reader.ReadString(th, b.params)
		if err != nil {
			return vm.Nil, fmt.Errorf("builtins: %s: %w", b.name, err)
		}
		sym := vm.MakeSymbol(b.name)
		f, err := th.NewNativeFunction(sym, arglist, b.special, b.fn)
		if err != nil {
			return vm.Nil, fmt.Errorf("builtins: %s: %w", b.name, err)
		}
		return vm.Nil, vm.BindGlobal(sym, f.Object())
	})
	return err
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func symbolArg(th *vm.Thread, o vm.Object) (*vm.Symbol, error) {
	if s, ok := o.AsSymbol(); ok {
		return s, nil
	}
	return nil, th.NewError(vm.ErrKindType, vm.Sym("symbol"), o)
}

func numberArg(th *vm.Thread, o vm.Object) (vm.Number, error) {
	if n, ok := vm.NumberOf(o); ok {
		return n, nil
	}
	return vm.Number{}, th.NewError(vm.ErrKindType, vm.Sym("number"), o)
}

func namespaceArg(th *vm.Thread, o vm.Object) (*vm.Namespace, error) {
	if n, ok := o.AsNamespace(); ok {
		return n, nil
	}
	return nil, th.NewError(vm.ErrKindType, vm.Sym("namespace"), o)
}

// listArg collects a proper list.
func listArg(th *vm.Thread, o vm.Object) ([]vm.Object, error) {
	items, err := vm.ListToSlice(o)
	if err != nil {
		return nil, th.AsError(err)
	}
	return items, nil
}

// supplied reports whether an optional or key argument was given.
func supplied(o vm.Object) bool { return !o.IsUninitialized() }

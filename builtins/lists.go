package builtins

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chazu/phoebe/vm"
)

func listBuiltins() []builtin {
	return []builtin{
		{"cons", "(first second)", false, cons},
		{"list", "(&rest elements)", false, list},
		{"car", "(pair)", false, car},
		{"cdr", "(pair)", false, cdr},
		{"debug", "(obj)", false, debug},
		{"gensym", "()", false, gensym},
		{"gc", "()", false, gc},
	}
}

func cons(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	return th.NewCons(args[0], args[1]), nil
}

func list(_ *vm.Thread, args []vm.Object) (vm.Object, error) {
	return args[0], nil
}

// car and cdr return references to the slot, so setf can assign through
// them. Both accept nil and return nil.
func car(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	if args[0].IsNil() {
		return vm.Nil, nil
	}
	c, ok := args[0].AsCons()
	if !ok {
		return vm.Nil, th.NewError(vm.ErrKindType, vm.Sym("list"), args[0])
	}
	return c.CarRef(), nil
}

func cdr(th *vm.Thread, args []vm.Object) (vm.Object, error) {
	if args[0].IsNil() {
		return vm.Nil, nil
	}
	c, ok := args[0].AsCons()
	if !ok {
		return vm.Nil, th.NewError(vm.ErrKindType, vm.Sym("list"), args[0])
	}
	return c.CdrRef(), nil
}

var debugOut struct {
	mu sync.Mutex
	w  io.Writer
}

// SetDebugOutput redirects what the debug builtin prints. The default is
// standard error.
func SetDebugOutput(w io.Writer) {
	debugOut.mu.Lock()
	debugOut.w = w
	debugOut.mu.Unlock()
}

// debug prints the raw encoding of obj and returns it.
func debug(_ *vm.Thread, args []vm.Object) (vm.Object, error) {
	debugOut.mu.Lock()
	defer debugOut.mu.Unlock()
	w := debugOut.w
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "%#v\n", args[0])
	return args[0], nil
}

func gensym(_ *vm.Thread, _ []vm.Object) (vm.Object, error) {
	return vm.Gensym().Object(), nil
}

// gc runs a full collection and returns the number of survivors.
func gc(_ *vm.Thread, _ []vm.Object) (vm.Object, error) {
	s := vm.GCPass()
	return vm.FromInt(int32(s.Survivors)), nil
}

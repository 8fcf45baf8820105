package vm

import "fmt"

// String renders o the way the printer shows it at the REPL.
func (o Object) String() string {
	switch o.Kind() {
	case KindFloat:
		return formatFloat(o.Float())
	case KindImmediate:
		sub, v, _ := o.immediate()
		return immediateString(sub, v)
	case KindReference:
		return referenceString(o)
	}

	h := slots.get(o.handle())
	if h == nil {
		return fmt.Sprintf("[freed %s %d]", o.Kind(), o.handle())
	}
	switch h := h.(type) {
	case *Box:
		return h.Get().String()
	case fmt.Stringer:
		return h.String()
	}
	return fmt.Sprintf("[%s]", o.Kind())
}

// GoString shows the raw encoding alongside the printed form.
func (o Object) GoString() string {
	return fmt.Sprintf("vm.Object(%#016x %s)", uint64(o), o)
}

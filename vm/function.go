package vm

import "fmt"

// NativeFunc is the body of a builtin or special form. args holds one
// value per parameter in Arglist order: mandatory, optional, rest, then
// keys. A native body may return a Reference, which callers that want a
// value dereference.
type NativeFunc func(th *Thread, args []Object) (Object, error)

// Function is a callable: a source body evaluated in a fresh environment
// whose parent is the defining environment, or a native body.
type Function struct {
	gcHeader
	name    *Symbol
	params  *Arglist
	body    Object
	native  NativeFunc
	special bool
	env     *Namespace
	// frameLen is the number of stack slots a call consumes.
	frameLen int
}

func (f *Function) object() Object { return heapObjectFor(tagFunction, f.handle) }

// Object returns the tagged encoding of f.
func (f *Function) Object() Object { return f.object() }

// Name returns the function's name, or nil for a lambda.
func (f *Function) Name() *Symbol { return f.name }

// IsSpecialForm reports whether f receives its arguments unevaluated.
func (f *Function) IsSpecialForm() bool { return f.special }

func (f *Function) String() string {
	if f.name != nil {
		return fmt.Sprintf("[function %s]", f.name.Name())
	}
	return "[function ANONYMOUS]"
}

func (f *Function) markChildren(epoch uint64) {
	if f.name != nil {
		markHeap(f.name, epoch)
	}
	f.params.source.mark(epoch)
	f.body.mark(epoch)
	if f.env != nil {
		markHeap(f.env, epoch)
	}
}

func (f *Function) deallocate() {
	f.env = nil
	f.native = nil
}

// NewFunction allocates a source function. env is promoted first when it
// is stack-backed, since the function will outlive the frame.
func (th *Thread) NewFunction(name *Symbol, arglist, body Object, env *Namespace) (*Function, error) {
	params, err := ParseArglist(arglist)
	if err != nil {
		return nil, err
	}
	if _, err := ListLength(body); err != nil {
		return nil, err
	}
	if env != nil {
		env.Promote()
	}
	f := &Function{name: name, params: params, body: body, env: env, frameLen: params.Len()}
	allocate(th, f, nil)
	return f, nil
}

// NewNativeFunction allocates a builtin. Special forms receive their
// arguments unevaluated.
func (th *Thread) NewNativeFunction(name *Symbol, arglist Object, special bool, body NativeFunc) (*Function, error) {
	params, err := ParseArglist(arglist)
	if err != nil {
		return nil, err
	}
	f := &Function{name: name, params: params, body: Nil, native: body, special: special, frameLen: params.Len()}
	allocate(th, f, nil)
	return f, nil
}

// ---------------------------------------------------------------------------
// Arglist
// ---------------------------------------------------------------------------

// Arglist is a parsed lambda list:
//
//	(a b &optional c &rest r &key k)
//
// Sections are optional but must appear in that order.
type Arglist struct {
	Required []*Symbol
	Optional []*Symbol
	Rest     *Symbol
	Keys     []*Symbol

	source Object
}

const (
	markerOptional = "&optional"
	markerRest     = "&rest"
	markerKey      = "&key"
)

// ParseArglist validates and parses a lambda list.
func ParseArglist(list Object) (*Arglist, error) {
	items, err := ListToSlice(list)
	if err != nil {
		return nil, err
	}

	a := &Arglist{source: list}
	section := 0 // 0 required, 1 optional, 2 rest, 3 key
	restSeen := false
	for _, item := range items {
		sym, ok := item.AsSymbol()
		if !ok {
			return nil, &TypeError{Wanted: "symbol", Got: item}
		}
		switch sym.Name() {
		case markerOptional:
			if section >= 1 {
				return nil, fmt.Errorf("vm: misplaced &optional in %s", list)
			}
			section = 1
			continue
		case markerRest:
			if section >= 2 {
				return nil, fmt.Errorf("vm: misplaced &rest in %s", list)
			}
			section = 2
			continue
		case markerKey:
			if section >= 3 {
				return nil, fmt.Errorf("vm: misplaced &key in %s", list)
			}
			section = 3
			continue
		}
		switch section {
		case 0:
			a.Required = append(a.Required, sym)
		case 1:
			a.Optional = append(a.Optional, sym)
		case 2:
			if restSeen {
				return nil, fmt.Errorf("vm: &rest takes one parameter in %s", list)
			}
			a.Rest = sym
			restSeen = true
		case 3:
			a.Keys = append(a.Keys, sym)
		}
	}
	return a, nil
}

// Source returns the list the arglist was parsed from.
func (a *Arglist) Source() Object { return a.source }

// Len is the number of parameters, which is also the frame length.
func (a *Arglist) Len() int {
	n := len(a.Required) + len(a.Optional) + len(a.Keys)
	if a.Rest != nil {
		n++
	}
	return n
}

// Symbols returns the parameters in frame order.
func (a *Arglist) Symbols() []*Symbol {
	out := make([]*Symbol, 0, a.Len())
	out = append(out, a.Required...)
	out = append(out, a.Optional...)
	if a.Rest != nil {
		out = append(out, a.Rest)
	}
	return append(out, a.Keys...)
}

func (a *Arglist) String() string { return a.source.String() }

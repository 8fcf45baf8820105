package vm

import (
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Evaluator
// ---------------------------------------------------------------------------

// maxDepthPerSlot bounds Go recursion relative to the stack capacity, so
// calls that consume no stack slots still hit a stack-overflow error.
const maxDepthPerSlot = 8

// Evaluate evaluates o in th's current environment. The error, if any, is
// always an *Error; a signaling error object is never returned as a value.
func (th *Thread) Evaluate(o Object) (Object, error) {
	return th.eval(o, false)
}

// EvaluateToReference evaluates o to an addressable slot, as assignment
// needs. Only symbols, references, boxes and native calls that return
// references can be addressed; anything else fails with a
// not-a-reference error.
func (th *Thread) EvaluateToReference(o Object) (Object, error) {
	return th.eval(o, true)
}

func (th *Thread) eval(o Object, toRef bool) (result Object, err error) {
	mark := th.pinMark()
	defer func() { th.unpinTo(mark, result, errorObject(err)) }()
	if th.depth == 0 {
		defer th.recoverExhaustion(th.stack.Len(), &result, &err)
	}

	th.depth++
	defer func() { th.depth-- }()
	if limit := th.stack.Cap() * maxDepthPerSlot; th.depth > limit {
		return Nil, th.NewError(ErrKindStackOverflow, FromInt(int32(th.depth)), FromInt(int32(limit)))
	}

	if evalLog.AllowLevel(commonlog.Debug) {
		evalLog.Debugf("evaluating %s", o)
	}

	switch o.Kind() {
	case KindFloat, KindImmediate, KindFunction, KindNamespace:
		return th.selfEvaluating(o, toRef)

	case KindError:
		if o.IsSignaling() {
			e, _ := o.AsError()
			return Nil, e
		}
		return th.selfEvaluating(o, toRef)

	case KindReference:
		if toRef {
			return o, nil
		}
		return th.value(o), nil

	case KindBox:
		b, _ := o.AsBox()
		if toRef {
			return b.Ref(), nil
		}
		return th.eval(th.Read(b.Get), false)

	case KindSymbol:
		sym, _ := o.AsSymbol()
		if sym.IsKeyword() {
			return th.selfEvaluating(o, toRef)
		}
		ref, err := th.Lookup(sym)
		if err != nil {
			return Nil, err
		}
		if toRef {
			return ref, nil
		}
		return th.value(ref), nil

	case KindCons:
		c, _ := o.AsCons()
		return th.apply(c, toRef)
	}
	return Nil, th.TypeErrorWanted("object")
}

func (th *Thread) selfEvaluating(o Object, toRef bool) (Object, error) {
	if toRef {
		return Nil, th.NewError(ErrKindCannotBeReferenced, o, Nil)
	}
	return o, nil
}

// value follows references to a plain value and pins it.
func (th *Thread) value(o Object) Object {
	if !o.IsReference() {
		return o
	}
	return th.Read(func() Object { return DerefAll(o) })
}

// apply evaluates a call form. Only the outermost result is left as a
// reference in reference mode; arguments always evaluate to values.
func (th *Thread) apply(c *Cons, toRef bool) (Object, error) {
	head, err := th.eval(c.Car(), false)
	if err != nil {
		return Nil, err
	}
	fn, ok := head.AsFunction()
	if !ok {
		return Nil, th.NewError(ErrKindType, Sym("function"), head)
	}

	forms, err := ListToSlice(c.Cdr())
	if err != nil {
		return Nil, th.AsError(err)
	}
	args := forms
	if !fn.special {
		args = make([]Object, len(forms))
		for i, form := range forms {
			if args[i], err = th.eval(form, false); err != nil {
				return Nil, err
			}
		}
	}

	result, err := th.Call(fn, args)
	MaybeCollect()
	if err != nil {
		return Nil, err
	}

	if toRef {
		if !result.IsReference() {
			return Nil, th.NewError(ErrKindCannotBeReferenced, result, Nil)
		}
		return result, nil
	}
	return th.value(result), nil
}

// Call applies fn to args, which are already evaluated unless fn is a
// special form. The arguments occupy a frame on th's stack for the
// duration of the call; a source body runs in a fresh environment whose
// slots refer to that frame. The environment is popped and then the frame
// slots are removed on every path.
func (th *Thread) Call(fn *Function, args []Object) (Object, error) {
	base := th.stack.Len()
	if err := th.bindArgs(fn.params, args); err != nil {
		if n := th.stack.Len() - base; n > 0 {
			th.stack.EndFrame(n)
		}
		return Nil, th.AsError(err)
	}
	n := fn.frameLen
	defer th.stack.EndFrame(n)

	if fn.native != nil {
		frame := make([]Object, n)
		for i := range frame {
			frame[i] = th.stack.get(base + i)
		}
		r, err := fn.native(th, frame)
		if err != nil {
			return Nil, th.AsError(err)
		}
		if r.IsSignaling() {
			e, _ := r.AsError()
			return Nil, e
		}
		return r, nil
	}

	slotRefs := make([]Object, n)
	for i := range slotRefs {
		slotRefs[i] = stackReference(th.stack.id, base+i)
	}
	env := th.newTransient(fn.env, fn.params.Symbols(), slotRefs)
	return th.WithEnv(env, func() (Object, error) {
		return th.EvalBody(fn.body)
	})
}

// EvalBody evaluates a list of forms in order and returns the last value,
// or nil for an empty body.
func (th *Thread) EvalBody(body Object) (Object, error) {
	res := Nil
	for cur := body; !cur.IsNil(); {
		c, ok := cur.AsCons()
		if !ok {
			return Nil, th.NewError(ErrKindImproperList, body, Nil)
		}
		var err error
		if res, err = th.eval(c.Car(), false); err != nil {
			return Nil, err
		}
		cur = c.Cdr()
	}
	return res, nil
}

// bindArgs pushes one slot per parameter: mandatory, optional (missing
// ones are uninitialized), the rest list, then keyword values matched by
// :name.
func (th *Thread) bindArgs(p *Arglist, args []Object) error {
	push := func(v Object) error {
		_, err := th.stack.Push(v)
		return err
	}

	if len(args) < len(p.Required) {
		return th.NewError(ErrKindBadArgCount, p.source, FromInt(int32(len(args))))
	}
	for i := range p.Required {
		if err := push(args[i]); err != nil {
			return err
		}
	}
	rest := args[len(p.Required):]

	for range p.Optional {
		v := Uninitialized
		if len(rest) > 0 {
			v, rest = rest[0], rest[1:]
		}
		if err := push(v); err != nil {
			return err
		}
	}

	if p.Rest != nil {
		if err := push(th.NewList(rest...)); err != nil {
			return err
		}
	}

	if len(p.Keys) == 0 {
		if p.Rest == nil && len(rest) > 0 {
			return th.NewError(ErrKindBadArgCount, p.source, FromInt(int32(len(args))))
		}
		return nil
	}

	given := make(map[*Symbol]Object, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		key, ok := rest[i].AsSymbol()
		if !ok {
			return th.NewError(ErrKindType, Sym("symbol"), rest[i])
		}
		if i+1 >= len(rest) {
			return th.NewError(ErrKindUnaccompaniedKey, key.Object(), Nil)
		}
		given[key] = rest[i+1]
	}
	for _, k := range p.Keys {
		v, ok := given[k.WithColon()]
		if !ok {
			v = Uninitialized
		}
		if err := push(v); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Frame protocol
// ---------------------------------------------------------------------------

// EvalFromStack evaluates argument 0 of the current frame and replaces the
// frame with the result, or with the signaling error object on failure.
func (th *Thread) EvalFromStack() error {
	ref, err := th.stack.NthArg(0)
	if err != nil {
		return th.stack.CloseFrameAndReturn(th.AsError(err).Signaling())
	}
	v, err := th.Evaluate(th.Deref(ref))
	if err != nil {
		v = th.AsError(err).Signaling()
	}
	return th.stack.CloseFrameAndReturn(v)
}

// PrintFromStack renders argument 0 of the current frame and closes the
// frame.
func (th *Thread) PrintFromStack() (string, error) {
	ref, err := th.stack.NthArg(0)
	if err != nil {
		return "", err
	}
	s := Deref(ref).String()
	return s, th.stack.CloseFrame()
}

// EvalTopLevel evaluates one form through the frame protocol, as the REPL
// does, and gives the collector a chance to run.
func (th *Thread) EvalTopLevel(form Object) (Object, error) {
	return th.Protect(func() (Object, error) {
		if err := th.stack.MakeFrame(form); err != nil {
			return Nil, th.AsError(err)
		}
		if err := th.EvalFromStack(); err != nil {
			return Nil, th.AsError(err)
		}
		v, err := th.Pop()
		MaybeCollect()
		if err != nil {
			return Nil, th.AsError(err)
		}
		if v.IsSignaling() {
			e, _ := v.AsError()
			return Nil, e
		}
		return v, nil
	})
}

package vm

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func symList(th *Thread, names ...string) Object {
	items := make([]Object, len(names))
	for i, n := range names {
		items[i] = Sym(n)
	}
	return th.NewList(items...)
}

func defNative(t *testing.T, th *Thread, name, params string, special bool, fn NativeFunc) {
	t.Helper()
	var arglist Object = Nil
	if params != "" {
		arglist = symList(th, strings.Fields(params)...)
	}
	f, err := th.NewNativeFunction(MakeSymbol(name), arglist, special, fn)
	if err != nil {
		t.Fatalf("NewNativeFunction(%s): %v", name, err)
	}
	if err := BindGlobal(MakeSymbol(name), f.Object()); err != nil {
		t.Fatal(err)
	}
}

func wantErrorKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error = %v, want %s", err, kind)
	}
	if e.Kind() != kind {
		t.Fatalf("error kind = %s (%v), want %s", e.Kind(), e, kind)
	}
	return e
}

// installTestForms binds the natives the evaluator tests use.
func installTestForms(t *testing.T, th *Thread) {
	t.Helper()
	defNative(t, th, "evaltest-args", "a &optional b &rest r", false,
		func(th *Thread, args []Object) (Object, error) {
			return th.NewList(args...), nil
		})
	defNative(t, th, "evaltest-keys", "a &key size color", false,
		func(th *Thread, args []Object) (Object, error) {
			return th.NewList(args...), nil
		})
	defNative(t, th, "evaltest-add", "x y", false,
		func(th *Thread, args []Object) (Object, error) {
			a, ok1 := NumberOf(args[0])
			b, ok2 := NumberOf(args[1])
			if !ok1 || !ok2 {
				return Nil, th.TypeErrorWanted("number")
			}
			return a.Add(b).Object(), nil
		})
	defNative(t, th, "evaltest-quote", "form", true,
		func(th *Thread, args []Object) (Object, error) {
			return args[0], nil
		})
	defNative(t, th, "evaltest-lambda", "params &rest body", true,
		func(th *Thread, args []Object) (Object, error) {
			f, err := th.NewFunction(nil, args[0], args[1], th.ScopeForNewFunction())
			if err != nil {
				return Nil, err
			}
			return f.Object(), nil
		})
	defNative(t, th, "evaltest-signal", "", false,
		func(th *Thread, args []Object) (Object, error) {
			return th.NewUserError(MakeSymbol("evaltest-raised"), Sym("boom")).Signaling(), nil
		})
}

func evalOK(t *testing.T, th *Thread, form Object) Object {
	t.Helper()
	v, err := th.Evaluate(form)
	if err != nil {
		t.Fatalf("Evaluate(%s): %v", form, err)
	}
	return v
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestEvaluateSelfEvaluating(t *testing.T) {
	th := newTestThread(t)
	for _, o := range []Object{Nil, T, FromInt(3), FromFloat(2.5), Sym(":keyword")} {
		if got := evalOK(t, th, o); got != o {
			t.Errorf("Evaluate(%s) = %s", o, got)
		}
	}
}

func TestEvaluateUnboundSymbol(t *testing.T) {
	th := newTestThread(t)
	_, err := th.Evaluate(Sym("evaltest-nowhere"))
	e := wantErrorKind(t, err, ErrKindUnboundSymbol)
	if e.Payload() != Sym("evaltest-nowhere") {
		t.Errorf("payload = %s", e.Payload())
	}
}

func TestEvaluateOptionalAndRest(t *testing.T) {
	th := newTestThread(t)
	installTestForms(t, th)

	tests := []struct {
		form Object
		want string
	}{
		{th.NewList(Sym("evaltest-args"), FromInt(1)), "(1 UNINITIALIZED nil)"},
		{th.NewList(Sym("evaltest-args"), FromInt(1), FromInt(2)), "(1 2 nil)"},
		{th.NewList(Sym("evaltest-args"), FromInt(1), FromInt(2), FromInt(3), FromInt(4)), "(1 2 (3 4))"},
	}
	for _, tt := range tests {
		if got := evalOK(t, th, tt.form).String(); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.form, got, tt.want)
		}
	}
	if th.Stack().Len() != 0 {
		t.Errorf("stack not balanced: %d slots", th.Stack().Len())
	}
}

func TestEvaluateKeyArguments(t *testing.T) {
	th := newTestThread(t)
	installTestForms(t, th)

	tests := []struct {
		form Object
		want string
	}{
		{th.NewList(Sym("evaltest-keys"), FromInt(1)), "(1 UNINITIALIZED UNINITIALIZED)"},
		{th.NewList(Sym("evaltest-keys"), FromInt(1), Sym(":color"), FromInt(2)), "(1 UNINITIALIZED 2)"},
		{th.NewList(Sym("evaltest-keys"), FromInt(1), Sym(":color"), FromInt(2), Sym(":size"), FromInt(3)), "(1 3 2)"},
		{th.NewList(Sym("evaltest-keys"), FromInt(1), Sym(":weight"), FromInt(9)), "(1 UNINITIALIZED UNINITIALIZED)"},
	}
	for _, tt := range tests {
		if got := evalOK(t, th, tt.form).String(); got != tt.want {
			t.Errorf("%s = %s, want %s", tt.form, got, tt.want)
		}
	}

	_, err := th.Evaluate(th.NewList(Sym("evaltest-keys"), FromInt(1), Sym(":size")))
	wantErrorKind(t, err, ErrKindUnaccompaniedKey)

	_, err = th.Evaluate(th.NewList(Sym("evaltest-keys"), FromInt(1), FromInt(5), FromInt(6)))
	wantErrorKind(t, err, ErrKindType)

	if th.Stack().Len() != 0 {
		t.Errorf("stack not balanced after errors: %d slots", th.Stack().Len())
	}
}

func TestEvaluateArgCount(t *testing.T) {
	th := newTestThread(t)
	installTestForms(t, th)

	_, err := th.Evaluate(th.NewList(Sym("evaltest-add"), FromInt(1)))
	wantErrorKind(t, err, ErrKindBadArgCount)

	_, err = th.Evaluate(th.NewList(Sym("evaltest-add"), FromInt(1), FromInt(2), FromInt(3)))
	e := wantErrorKind(t, err, ErrKindBadArgCount)
	if want := "The count 3 is not compatible with the arglist (x y)"; e.Error() != want {
		t.Errorf("message = %q", e.Error())
	}
}

func TestEvaluateNotAFunction(t *testing.T) {
	th := newTestThread(t)
	_, err := th.Evaluate(th.NewList(FromInt(1), FromInt(2)))
	wantErrorKind(t, err, ErrKindType)
}

func TestEvaluateImproperCall(t *testing.T) {
	th := newTestThread(t)
	installTestForms(t, th)
	_, err := th.Evaluate(th.NewCons(Sym("evaltest-add"), FromInt(1)))
	wantErrorKind(t, err, ErrKindImproperList)
}

func TestSpecialFormsSeeUnevaluatedArguments(t *testing.T) {
	th := newTestThread(t)
	installTestForms(t, th)
	form := th.NewList(Sym("evaltest-quote"), Sym("evaltest-nowhere"))
	if got := evalOK(t, th, form); got != Sym("evaltest-nowhere") {
		t.Errorf("quote returned %s", got)
	}
}

func TestSignalingReturnBecomesError(t *testing.T) {
	th := newTestThread(t)
	installTestForms(t, th)
	_, err := th.Evaluate(th.NewList(Sym("evaltest-signal")))
	e := wantErrorKind(t, err, ErrKindUser)
	if e.Name().Name() != "evaltest-raised" {
		t.Errorf("error name = %s", e.Name())
	}
}

func TestSourceFunctionsAndClosures(t *testing.T) {
	th := newTestThread(t)
	installTestForms(t, th)

	// ((lambda (x y) (evaltest-add x y)) 2 3)
	lambda := th.NewList(Sym("evaltest-lambda"), symList(th, "x", "y"),
		th.NewList(Sym("evaltest-add"), Sym("x"), Sym("y")))
	if got := evalOK(t, th, th.NewList(lambda, FromInt(2), FromInt(3))); got != FromInt(5) {
		t.Errorf("lambda call = %s", got)
	}

	// ((lambda (n) (lambda () n)) 5) returns a closure over n.
	maker := th.NewList(Sym("evaltest-lambda"), symList(th, "n"),
		th.NewList(Sym("evaltest-lambda"), Nil, Sym("n")))
	closure := evalOK(t, th, th.NewList(maker, FromInt(5)))
	fn, ok := closure.AsFunction()
	if !ok {
		t.Fatalf("maker returned %s", closure)
	}
	if fn.env.IsTransient() {
		t.Fatal("captured environment was not promoted")
	}

	GCPass()
	if got := evalOK(t, th, th.NewList(closure)); got != FromInt(5) {
		t.Errorf("closure call after the frame is gone = %s", got)
	}
	if th.Stack().Len() != 0 {
		t.Errorf("stack not balanced: %d slots", th.Stack().Len())
	}
	if th.EnvDepth() != 1 {
		t.Errorf("EnvDepth() = %d", th.EnvDepth())
	}
}

func TestEvaluateToReference(t *testing.T) {
	th := newTestThread(t)
	sym := MakeSymbol("evaltest-place")
	if err := BindGlobal(sym, FromInt(1)); err != nil {
		t.Fatal(err)
	}

	ref, err := th.EvaluateToReference(sym.Object())
	if err != nil {
		t.Fatal(err)
	}
	if err := SetRef(ref, FromInt(2)); err != nil {
		t.Fatal(err)
	}
	if got := evalOK(t, th, sym.Object()); got != FromInt(2) {
		t.Errorf("after assignment through reference: %s", got)
	}

	_, err = th.EvaluateToReference(FromInt(4))
	wantErrorKind(t, err, ErrKindCannotBeReferenced)
}

func TestDeepRecursionOverflows(t *testing.T) {
	th := newTestStack(t, 64)
	installTestForms(t, th)

	// A parameterless function calling itself consumes no stack slots, so
	// it hits the depth limit.
	loop := MakeSymbol("evaltest-loop")
	f, err := th.NewFunction(loop, Nil, th.NewList(th.NewList(loop.Object())), DefaultGlobalEnv())
	if err != nil {
		t.Fatal(err)
	}
	BindGlobal(loop, f.Object())

	_, err = th.Evaluate(th.NewList(loop.Object()))
	if e := wantErrorKind(t, err, ErrKindStackOverflow); !e.Fatal() {
		t.Error("stack overflow is not fatal")
	}

	// With a parameter each call takes a slot, so the stack fills first.
	grow := MakeSymbol("evaltest-grow")
	g, err := th.NewFunction(grow, symList(th, "x"), th.NewList(th.NewList(grow.Object(), Sym("x"))), DefaultGlobalEnv())
	if err != nil {
		t.Fatal(err)
	}
	BindGlobal(grow, g.Object())
	_, err = th.Evaluate(th.NewList(grow.Object(), FromInt(1)))
	wantErrorKind(t, err, ErrKindStackOverflow)

	if th.Stack().Len() != 0 {
		t.Errorf("stack not unwound after overflow: %d slots", th.Stack().Len())
	}
}

func TestEvalTopLevel(t *testing.T) {
	th := newTestThread(t)
	installTestForms(t, th)

	form := th.NewList(Sym("evaltest-add"), FromInt(40), FromInt(2))
	pins := th.PinCount()
	v, err := th.EvalTopLevel(form)
	if err != nil || v != FromInt(42) {
		t.Fatalf("EvalTopLevel = %s, %v", v, err)
	}
	if th.PinCount() != pins {
		t.Errorf("pins %d -> %d", pins, th.PinCount())
	}

	_, err = th.EvalTopLevel(Sym("evaltest-nowhere"))
	wantErrorKind(t, err, ErrKindUnboundSymbol)
	if th.Stack().Len() != 0 {
		t.Errorf("frame left on the stack: %d slots", th.Stack().Len())
	}
}

func TestPrintFromStack(t *testing.T) {
	th := newTestThread(t)
	if err := th.Stack().MakeFrame(th.NewList(FromInt(1), FromFloat(2))); err != nil {
		t.Fatal(err)
	}
	s, err := th.PrintFromStack()
	if err != nil || s != "(1 2.0)" {
		t.Errorf("PrintFromStack = %q, %v", s, err)
	}
	if th.Stack().Len() != 0 {
		t.Error("frame not closed")
	}
}

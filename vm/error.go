package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Go-side errors raised below the evaluator
// ---------------------------------------------------------------------------

// StackOverflowError is returned by Push on a full stack.
type StackOverflowError struct {
	Size, Cap int
}

func (e *StackOverflowError) Error() string {
	return fmt.Sprintf("Stack overflow after %d elements with capacity %d", e.Size, e.Cap)
}

// ErrStackUnderflow is returned by Pop on an empty stack.
var ErrStackUnderflow = errors.New("Attempt to pop off an empty stack.")

// ArgIndexError is returned by NthArg outside the current frame.
type ArgIndexError struct {
	Attempted, Length int
}

func (e *ArgIndexError) Error() string {
	return fmt.Sprintf("Attempted to reference argument %d but only found %d.", e.Attempted, e.Length)
}

// TypeError reports a value of the wrong type.
type TypeError struct {
	Wanted string
	Got    Object
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("Expected a value of type %s.", e.Wanted)
}

// ImproperListError reports a list that does not end in nil.
type ImproperListError struct {
	List Object
}

func (e *ImproperListError) Error() string {
	return "Found an improperly-terminated list where a proper one was expected"
}

// ---------------------------------------------------------------------------
// Error objects
// ---------------------------------------------------------------------------

// ErrorKind classifies an Error object.
type ErrorKind uint8

const (
	ErrKindStackOverflow ErrorKind = iota
	ErrKindStackUnderflow
	ErrKindBadArgCount
	ErrKindType
	ErrKindImproperList
	ErrKindCannotBeReferenced
	ErrKindUnboundSymbol
	ErrKindUnaccompaniedKey
	ErrKindArgIndex
	ErrKindUser
	ErrKindHeapExhausted
)

var errorKindNames = [...]string{
	ErrKindStackOverflow:      "stack-overflow-error",
	ErrKindStackUnderflow:     "stack-underflow-error",
	ErrKindBadArgCount:        "arg-count-error",
	ErrKindType:               "type-error",
	ErrKindImproperList:       "improper-list-error",
	ErrKindCannotBeReferenced: "not-a-reference-error",
	ErrKindUnboundSymbol:      "unbound-symbol-error",
	ErrKindUnaccompaniedKey:   "unaccompanied-key-error",
	ErrKindArgIndex:           "arg-out-of-bounds-error",
	ErrKindUser:               "user-error",
	ErrKindHeapExhausted:      "heap-exhausted-error",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// The low bits of an error's payload say whether it is signaling (still
// unwinding) or quiet (caught, an ordinary value).
const (
	errorTagBits        = 3
	errorTagMask uint64 = 1<<errorTagBits - 1

	errSignaling uint64 = 0
	errQuiet     uint64 = 1
)

// Error is a heap-allocated error. It implements the Go error interface
// so evaluation can return it directly.
type Error struct {
	gcHeader
	kind ErrorKind
	name *Symbol
	a, b Object
}

func (e *Error) object() Object { return e.Quiet() }

// Signaling returns the signaling encoding of e.
func (e *Error) Signaling() Object {
	return encode(tagError, e.handle<<errorTagBits|errSignaling)
}

// Quiet returns the quiet encoding of e.
func (e *Error) Quiet() Object {
	return encode(tagError, e.handle<<errorTagBits|errQuiet)
}

func (e *Error) Kind() ErrorKind { return e.kind }

// Name returns the language-level name: the kind's name, or the name
// given to a user error.
func (e *Error) Name() *Symbol {
	if e.name != nil {
		return e.name
	}
	return MakeSymbol(e.kind.String())
}

// Payload returns the user error body, or the primary payload of a
// builtin error (the unbound symbol, the offending key, the wanted type).
func (e *Error) Payload() Object { return e.a }

// Fatal reports whether catch-error must let e through.
func (e *Error) Fatal() bool {
	return e.kind == ErrKindStackOverflow || e.kind == ErrKindHeapExhausted
}

func (e *Error) Error() string {
	switch e.kind {
	case ErrKindStackOverflow:
		return fmt.Sprintf("Stack overflow after %s elements with capacity %s", e.a, e.b)
	case ErrKindStackUnderflow:
		return ErrStackUnderflow.Error()
	case ErrKindBadArgCount:
		return fmt.Sprintf("The count %s is not compatible with the arglist %s", e.b, e.a)
	case ErrKindType:
		return fmt.Sprintf("Expected a value of type %s.", e.a)
	case ErrKindImproperList:
		return (&ImproperListError{}).Error()
	case ErrKindCannotBeReferenced:
		return "Attempt to create a reference has failed"
	case ErrKindUnboundSymbol:
		return fmt.Sprintf("The symbol %s is unbound.", e.a)
	case ErrKindUnaccompaniedKey:
		return fmt.Sprintf("The key %s did not have an accompanying symbol when parsing key arguments.", e.a)
	case ErrKindArgIndex:
		return fmt.Sprintf("Attempted to reference argument %s but only found %s.", e.a, e.b)
	case ErrKindUser:
		return fmt.Sprintf("%s: %s", e.Name().Name(), e.a)
	case ErrKindHeapExhausted:
		return "Heap exhausted"
	}
	return e.kind.String()
}

func (e *Error) String() string { return e.Error() }

func (e *Error) markChildren(epoch uint64) {
	if e.name != nil {
		markHeap(e.name, epoch)
	}
	e.a.mark(epoch)
	e.b.mark(epoch)
}

func (e *Error) deallocate() {
	e.a, e.b = Nil, Nil
	e.name = nil
}

// IsSignaling reports whether o is an error still unwinding.
func (o Object) IsSignaling() bool {
	return o.IsError() && o.payload()&errorTagMask == errSignaling
}

// ToQuiet converts a signaling error object to its quiet form. Other
// objects are returned unchanged. No allocation happens.
func ToQuiet(o Object) Object {
	if !o.IsError() {
		return o
	}
	return encode(tagError, o.payload()&^errorTagMask|errQuiet)
}

// ToSignaling converts an error object to its signaling form.
func ToSignaling(o Object) Object {
	if !o.IsError() {
		return o
	}
	return encode(tagError, o.payload()&^errorTagMask|errSignaling)
}

// NewError allocates an error object pinned to th.
func (th *Thread) NewError(kind ErrorKind, a, b Object) *Error {
	e := &Error{kind: kind, a: a, b: b}
	allocate(th, e, nil)
	return e
}

// NewUserError allocates a user error called name carrying body.
func (th *Thread) NewUserError(name *Symbol, body Object) *Error {
	e := &Error{kind: ErrKindUser, name: name, a: body, b: Nil}
	allocate(th, e, nil)
	return e
}

// TypeErrorWanted allocates a type error naming the wanted type.
func (th *Thread) TypeErrorWanted(wanted string) *Error {
	return th.NewError(ErrKindType, Sym(wanted), Nil)
}

// AsError converts any Go error into an error object pinned to th.
// Errors that are already error objects pass through.
func (th *Thread) AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var (
		overflow *StackOverflowError
		argIdx   *ArgIndexError
		typeErr  *TypeError
		improper *ImproperListError
	)
	switch {
	case errors.As(err, &overflow):
		return th.NewError(ErrKindStackOverflow, FromInt(int32(overflow.Size)), FromInt(int32(overflow.Cap)))
	case errors.Is(err, ErrStackUnderflow):
		return th.NewError(ErrKindStackUnderflow, Nil, Nil)
	case errors.As(err, &argIdx):
		return th.NewError(ErrKindArgIndex, FromInt(int32(argIdx.Attempted)), FromInt(int32(argIdx.Length)))
	case errors.As(err, &typeErr):
		return th.TypeErrorWanted(typeErr.Wanted)
	case errors.As(err, &improper):
		return th.NewError(ErrKindImproperList, improper.List, Nil)
	}
	return th.NewUserError(MakeSymbol("go-error"), Sym(err.Error()))
}

// heapExhausted is allocated up front, since nothing can be allocated once
// it is needed. The collector marks it on every pass.
var heapExhausted *Error

func init() {
	heapExhausted = &Error{kind: ErrKindHeapExhausted, a: Nil, b: Nil}
	allocate(nil, heapExhausted, nil)
}

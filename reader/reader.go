// Package reader turns source text into phoebe objects.
package reader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/chazu/phoebe/vm"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrUnclosedList is returned when input ends inside a list.
	ErrUnclosedList = errors.New("A list went unclosed")
	// ErrExtraClose is returned for a close paren with no open list.
	ErrExtraClose = errors.New("A spurious close-delimiter")
	// ErrStringLiteral is returned for a double quote; strings are not
	// part of the language yet.
	ErrStringLiteral = errors.New("string literals are not supported")
	// ErrQuoteAtEOF is returned for a quote with nothing after it.
	ErrQuoteAtEOF = errors.New("quote at end of input")
)

// Position is a location in the input.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// SyntaxError wraps a read error with the position it was detected at.
type SyntaxError struct {
	Pos Position
	Err error
}

func (e *SyntaxError) Error() string { return fmt.Sprintf("%s: %v", e.Pos, e.Err) }

func (e *SyntaxError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

const commentChar = ';'

// Reader reads forms one at a time from a stream, consuming no more input
// than the form needs.
type Reader struct {
	in   *bufio.Reader
	pos  Position
	prev Position // position before the last rune, for unread
}

// New creates a reader over r.
func New(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{in: br, pos: Position{Line: 1, Column: 1}}
}

func (r *Reader) readRune() (rune, error) {
	c, size, err := r.in.ReadRune()
	if err != nil {
		return 0, err
	}
	r.prev = r.pos
	r.pos.Offset += size
	if c == '\n' {
		r.pos.Line++
		r.pos.Column = 1
	} else {
		r.pos.Column++
	}
	return c, nil
}

func (r *Reader) unreadRune() {
	if err := r.in.UnreadRune(); err == nil {
		r.pos = r.prev
	}
}

// skip consumes whitespace and comments. It returns io.EOF at the end of
// the input.
func (r *Reader) skip() error {
	for {
		c, err := r.readRune()
		if err != nil {
			return err
		}
		switch {
		case c == commentChar:
			for c != '\n' {
				if c, err = r.readRune(); err != nil {
					return err
				}
			}
		case unicode.IsSpace(c):
		default:
			r.unreadRune()
			return nil
		}
	}
}

func (r *Reader) fail(err error) error {
	return &SyntaxError{Pos: r.pos, Err: err}
}

// Read returns the next form, pinned to th. At the end of the input it
// returns io.EOF.
func (r *Reader) Read(th *vm.Thread) (vm.Object, error) {
	if err := r.skip(); err != nil {
		return vm.Nil, err
	}
	c, err := r.readRune()
	if err != nil {
		return vm.Nil, err
	}

	switch c {
	case '(':
		return r.readList(th)
	case ')':
		return vm.Nil, r.fail(ErrExtraClose)
	case '"':
		return vm.Nil, r.fail(ErrStringLiteral)
	case '\'':
		form, err := r.Read(th)
		if errors.Is(err, io.EOF) {
			return vm.Nil, r.fail(ErrQuoteAtEOF)
		}
		if err != nil {
			return vm.Nil, err
		}
		return th.NewList(vm.Sym("quote"), form), nil
	}
	r.unreadRune()
	return r.readAtom()
}

// readList reads forms up to the matching close paren, which it consumes.
func (r *Reader) readList(th *vm.Thread) (vm.Object, error) {
	var items []vm.Object
	for {
		if err := r.skip(); err != nil {
			if errors.Is(err, io.EOF) {
				return vm.Nil, r.fail(ErrUnclosedList)
			}
			return vm.Nil, err
		}
		c, err := r.readRune()
		if err != nil {
			return vm.Nil, err
		}
		if c == ')' {
			return th.NewList(items...), nil
		}
		r.unreadRune()

		item, err := r.Read(th)
		if errors.Is(err, io.EOF) {
			return vm.Nil, r.fail(ErrUnclosedList)
		}
		if err != nil {
			return vm.Nil, err
		}
		items = append(items, item)
	}
}

func isDelimiter(c rune) bool {
	return unicode.IsSpace(c) || c == '(' || c == ')' || c == '\'' || c == '"' || c == commentChar
}

func (r *Reader) readAtom() (vm.Object, error) {
	var b strings.Builder
	for {
		c, err := r.readRune()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return vm.Nil, err
		}
		if isDelimiter(c) {
			r.unreadRune()
			break
		}
		b.WriteRune(c)
	}
	return ParseAtom(b.String()), nil
}

// ---------------------------------------------------------------------------
// Atoms
// ---------------------------------------------------------------------------

// ParseAtom converts a token to an integer, a float, t, nil or a symbol.
//
// Integers are an optional sign and digits; ones that do not fit in 32
// bits become floats. Floats need digits on at least one side of a
// decimal point, or digits followed by an exponent.
func ParseAtom(tok string) vm.Object {
	switch tok {
	case "t":
		return vm.T
	case "nil":
		return vm.Nil
	}

	switch classify(tok) {
	case atomInt:
		n, err := strconv.ParseInt(tok, 10, 64)
		if err == nil && n >= math.MinInt32 && n <= math.MaxInt32 {
			return vm.FromInt(int32(n))
		}
		return floatOf(tok)
	case atomFloat:
		return floatOf(tok)
	}
	return vm.Sym(tok)
}

func floatOf(tok string) vm.Object {
	// Out-of-range literals come back as infinities, which is what we want.
	f, _ := strconv.ParseFloat(tok, 64)
	return vm.FromFloat(f)
}

type atomKind int

const (
	atomSymbol atomKind = iota
	atomInt
	atomFloat
)

func digits(s string) (string, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}

func trimSign(s string) string {
	if s != "" && (s[0] == '+' || s[0] == '-') {
		return s[1:]
	}
	return s
}

// validExponent reports whether s is an exponent body: a sign and digits.
func validExponent(s string) bool {
	d, rest := digits(trimSign(s))
	return d != "" && rest == ""
}

func classify(tok string) atomKind {
	integral, rest := digits(trimSign(tok))
	switch {
	case rest == "":
		if integral == "" {
			return atomSymbol
		}
		return atomInt
	case rest[0] == 'e' || rest[0] == 'E':
		if integral != "" && validExponent(rest[1:]) {
			return atomFloat
		}
		return atomSymbol
	case rest[0] == '.':
		fractional, tail := digits(rest[1:])
		if integral == "" && fractional == "" {
			return atomSymbol
		}
		switch {
		case tail == "":
			return atomFloat
		case (tail[0] == 'e' || tail[0] == 'E') && validExponent(tail[1:]):
			return atomFloat
		}
	}
	return atomSymbol
}

// ---------------------------------------------------------------------------
// Convenience
// ---------------------------------------------------------------------------

// ReadString reads exactly one form from s.
func ReadString(th *vm.Thread, s string) (vm.Object, error) {
	r := New(strings.NewReader(s))
	form, err := r.Read(th)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return vm.Nil, fmt.Errorf("reader: no form in %q", s)
		}
		return vm.Nil, err
	}
	if err := r.skip(); !errors.Is(err, io.EOF) {
		return vm.Nil, fmt.Errorf("reader: trailing input after the first form in %q", s)
	}
	return form, nil
}

// ReadAll reads every form in s.
func ReadAll(th *vm.Thread, s string) ([]vm.Object, error) {
	r := New(strings.NewReader(s))
	var forms []vm.Object
	for {
		form, err := r.Read(th)
		if errors.Is(err, io.EOF) {
			return forms, nil
		}
		if err != nil {
			return forms, err
		}
		forms = append(forms, form)
	}
}

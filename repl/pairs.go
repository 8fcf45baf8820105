package repl

import (
	"bytes"
	"fmt"
	"strings"
)

// Pair is one input and the output the REPL should print for it,
// without the trailing newline.
type Pair struct {
	Input  string
	Output string
}

// WrongOutputError is returned by TestPairs when an input printed
// something other than what was expected.
type WrongOutputError struct {
	Input, Expected, Found string
}

func (e *WrongOutputError) Error() string {
	return fmt.Sprintf("Expected %s to yield %s but found %s", e.Input, e.Expected, e.Found)
}

// InternalError is returned by TestPairs when an input wrote to the
// error stream.
type InternalError struct {
	Input, Message string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("Phoebe errored internally on %s: %s", e.Input, e.Message)
}

// TestPairs runs each input through its own REPL in series and checks
// what it prints. Concurrent callers share the global environment, so
// each should use names of its own.
func TestPairs(pairs ...Pair) error {
	for _, p := range pairs {
		var out, errOut bytes.Buffer
		if err := Run(strings.NewReader(p.Input), &out, &errOut, false); err != nil {
			return err
		}
		if errOut.Len() > 0 {
			return &InternalError{Input: p.Input, Message: strings.TrimSpace(errOut.String())}
		}
		if want := p.Output + "\n"; out.String() != want {
			return &WrongOutputError{Input: p.Input, Expected: want, Found: out.String()}
		}
	}
	return nil
}

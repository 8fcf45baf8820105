// Package repl implements phoebe's read-eval-print loop over arbitrary
// readers and writers.
package repl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/phoebe/builtins"
	"github.com/chazu/phoebe/reader"
	"github.com/chazu/phoebe/vm"
)

// Prompt is written before each read when prompting is enabled.
const Prompt = "phoebe> "

var log = commonlog.GetLogger("phoebe.repl")

// Run installs the builtins, then reads, evaluates and prints every form
// in in on a fresh thread. Results go to out, one per line; evaluation
// and syntax errors go to errOut and the loop carries on. Run returns
// nil at the end of the input.
func Run(in io.Reader, out, errOut io.Writer, prompt bool) error {
	if err := builtins.Install(); err != nil {
		return err
	}
	th, err := vm.NewThread()
	if err != nil {
		return err
	}
	defer th.Close()
	return Loop(th, in, out, errOut, prompt)
}

// Loop is Run on an existing thread, so that definitions made by earlier
// calls stay visible. The builtins must already be installed.
func Loop(th *vm.Thread, in io.Reader, out, errOut io.Writer, prompt bool) error {
	rd := reader.New(in)
	for {
		if prompt {
			if _, err := io.WriteString(out, Prompt); err != nil {
				return err
			}
		}
		done, err := step(th, rd, out, errOut)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// step handles one form. Pins made while reading and evaluating it are
// dropped before step returns.
func step(th *vm.Thread, rd *reader.Reader, out, errOut io.Writer) (done bool, err error) {
	_, err = th.Protect(func() (vm.Object, error) {
		form, err := rd.Read(th)
		if errors.Is(err, io.EOF) {
			done = true
			return vm.Nil, nil
		}
		var syntax *reader.SyntaxError
		if errors.As(err, &syntax) {
			log.Debugf("syntax error at %s", syntax.Pos)
			_, werr := fmt.Fprintln(errOut, syntax.Err)
			return vm.Nil, werr
		}
		if err != nil {
			return vm.Nil, err
		}

		v, err := th.EvalTopLevel(form)
		if err != nil {
			_, werr := fmt.Fprintln(errOut, err)
			return vm.Nil, werr
		}
		_, werr := fmt.Fprintln(out, v)
		return vm.Nil, werr
	})
	return done, err
}

// Complete reports whether src holds only whole forms, so an interactive
// front end knows to keep reading lines before evaluating.
func Complete(th *vm.Thread, src string) bool {
	complete := true
	th.Protect(func() (vm.Object, error) {
		rd := reader.New(strings.NewReader(src))
		for {
			_, err := rd.Read(th)
			if err == nil {
				continue
			}
			if errors.Is(err, reader.ErrUnclosedList) || errors.Is(err, reader.ErrQuoteAtEOF) {
				complete = false
			}
			return vm.Nil, nil
		}
	})
	return complete
}

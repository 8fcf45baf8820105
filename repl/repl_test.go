package repl

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/phoebe/builtins"
	"github.com/chazu/phoebe/vm"
)

func runString(t *testing.T, src string, prompt bool) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	if err := Run(strings.NewReader(src), &out, &errOut, prompt); err != nil {
		t.Fatalf("Run(%q): %v", src, err)
	}
	return out.String(), errOut.String()
}

func TestMakeAList(t *testing.T) {
	out, errOut := runString(t, "(list 1 2 3 4)", false)
	if errOut != "" {
		t.Fatalf("repl errored: %s", errOut)
	}
	if out != "(1 2 3 4)\n" {
		t.Errorf("output = %q, want %q", out, "(1 2 3 4)\n")
	}
}

func TestSeveralFormsOnOneInput(t *testing.T) {
	out, errOut := runString(t, "(+ 1 2) (* 5 5)\n'a ; trailing comment\n", false)
	if errOut != "" {
		t.Fatalf("repl errored: %s", errOut)
	}
	if want := "3\n25\na\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestPromptBeforeEachRead(t *testing.T) {
	out, _ := runString(t, "1 2", true)
	want := Prompt + "1\n" + Prompt + "2\n" + Prompt
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestErrorsGoToErrorStream(t *testing.T) {
	out, errOut := runString(t, "(throw (error (quote some-error) (quote error-description)))", false)
	if out != "" {
		t.Errorf("output = %q, want nothing", out)
	}
	if want := "some-error: error-description\n"; errOut != want {
		t.Errorf("error output = %q, want %q", errOut, want)
	}
}

func TestLoopContinuesAfterErrors(t *testing.T) {
	out, errOut := runString(t, ") repl-test-unbound-symbol (+ 1 1)", false)
	if out != "2\n" {
		t.Errorf("output = %q, want %q", out, "2\n")
	}
	lines := strings.Split(strings.TrimSpace(errOut), "\n")
	if len(lines) != 2 {
		t.Fatalf("error output = %q, want two lines", errOut)
	}
	if lines[0] != "A spurious close-delimiter" {
		t.Errorf("first error = %q", lines[0])
	}
	if lines[1] != "The symbol repl-test-unbound-symbol is unbound." {
		t.Errorf("second error = %q", lines[1])
	}
}

func TestUnclosedListAtEndOfInput(t *testing.T) {
	out, errOut := runString(t, "(+ 1 2", false)
	if out != "" {
		t.Errorf("output = %q, want nothing", out)
	}
	if errOut != "A list went unclosed\n" {
		t.Errorf("error output = %q", errOut)
	}
}

func TestLoopLeavesNoPins(t *testing.T) {
	if err := builtins.Install(); err != nil {
		t.Fatal(err)
	}
	th, err := vm.NewThread()
	if err != nil {
		t.Fatal(err)
	}
	defer th.Close()

	before := th.PinCount()
	var out, errOut bytes.Buffer
	src := "(list 1 2 3) (cons 1 2) (repl-test-missing) (lambda (x) x)"
	if err := Loop(th, strings.NewReader(src), &out, &errOut, false); err != nil {
		t.Fatal(err)
	}
	if got := th.PinCount(); got != before {
		t.Errorf("PinCount = %d after the loop, want %d", got, before)
	}
	if th.Stack().Len() != 0 {
		t.Errorf("stack holds %d slots after the loop", th.Stack().Len())
	}
}

func TestLoopKeepsDefinitionsAcrossCalls(t *testing.T) {
	if err := builtins.Install(); err != nil {
		t.Fatal(err)
	}
	th, err := vm.NewThread()
	if err != nil {
		t.Fatal(err)
	}
	defer th.Close()

	var out, errOut bytes.Buffer
	if err := Loop(th, strings.NewReader("(defvar repl-test-kept 7)"), &out, &errOut, false); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := Loop(th, strings.NewReader("repl-test-kept"), &out, &errOut, false); err != nil {
		t.Fatal(err)
	}
	if out.String() != "7\n" || errOut.Len() != 0 {
		t.Errorf("output = %q, errors = %q", out.String(), errOut.String())
	}
}

func TestComplete(t *testing.T) {
	th, err := vm.NewThread()
	if err != nil {
		t.Fatal(err)
	}
	defer th.Close()

	tests := []struct {
		src  string
		want bool
	}{
		{"", true},
		{"(+ 1 2)", true},
		{"(defun f (x)", false},
		{"(a (b c)", false},
		{"'", false},
		{")", true},
		{"foo ; (", true},
	}
	for _, tt := range tests {
		if got := Complete(th, tt.src); got != tt.want {
			t.Errorf("Complete(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestPairsReportsMismatch(t *testing.T) {
	err := TestPairs(Pair{"(+ 2 2)", "5"})
	var wrong *WrongOutputError
	if !errors.As(err, &wrong) {
		t.Fatalf("err = %v, want a WrongOutputError", err)
	}
	if wrong.Found != "4\n" {
		t.Errorf("Found = %q", wrong.Found)
	}

	err = TestPairs(Pair{"repl-test-never-bound", "nil"})
	var internal *InternalError
	if !errors.As(err, &internal) {
		t.Fatalf("err = %v, want an InternalError", err)
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/chazu/phoebe/manifest"
	"github.com/chazu/phoebe/repl"
	"github.com/chazu/phoebe/vm"
)

const promptCont = "...     "

const helpText = `REPL Commands:
  :help, :h, :?     Show this help
  :gc               Run a collection and show its statistics
  :stats            Show the collector state
  :quit, :q         Exit REPL`

// runREPL starts an interactive read-eval-print loop with line editing
// and history.
func runREPL(th *vm.Thread, m *manifest.Manifest) int {
	fmt.Println("phoebe REPL (Ctrl+D exits, :help for commands)")

	histPath := m.HistoryPath()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		code, ok := readForms(ln, th, m.REPL.Prompt)
		if !ok {
			fmt.Println()
			break
		}

		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if isCommand(trimmed) {
			if handleCommand(trimmed) {
				return 0
			}
			continue
		}

		if err := repl.Loop(th, strings.NewReader(code), os.Stdout, os.Stderr, false); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}
	return 0
}

// readForms prompts until the accumulated lines hold only whole forms.
func readForms(ln *liner.State, th *vm.Thread, prompt string) (string, bool) {
	var b strings.Builder
	for {
		p := prompt
		if b.Len() > 0 {
			p = promptCont
		}
		line, err := ln.Prompt(p)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			b.Reset()
			continue
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if src := b.String(); repl.Complete(th, src) {
			return src, true
		}
	}
}

var commands = map[string]bool{
	":help": true, ":h": true, ":?": true,
	":quit": true, ":q": true,
	":gc": true, ":stats": true,
}

// isCommand reports whether line is a REPL meta-command. Any other input,
// keywords such as :foo included, is evaluated.
func isCommand(line string) bool {
	return commands[line]
}

// handleCommand runs a REPL meta-command and reports whether to exit.
func handleCommand(cmd string) bool {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Println(helpText)
	case ":quit", ":q":
		return true
	case ":gc":
		s := vm.GCPass()
		fmt.Printf("pass %d: %d roots, %d swept, %d survivors in %v\n",
			s.Epoch, s.Roots, s.Swept, s.Survivors, s.Duration)
	case ":stats":
		c := vm.GC()
		fmt.Printf("state %s, epoch %d, %d passes, threshold %d, %d live objects\n",
			c.State(), c.Epoch(), c.Passes(), c.Threshold(), vm.AliveCount())
	}
	return false
}

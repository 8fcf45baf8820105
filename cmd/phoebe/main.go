// phoebe CLI - runs phoebe scripts and the interactive REPL
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/phoebe/builtins"
	"github.com/chazu/phoebe/manifest"
	"github.com/chazu/phoebe/repl"
	"github.com/chazu/phoebe/vm"
)

var log = commonlog.GetLogger("phoebe.cli")

func main() {
	os.Exit(run())
}

func run() int {
	verbose := flag.Int("v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)")
	interactive := flag.Bool("i", false, "Start the interactive REPL after running scripts")
	configDir := flag.String("config", "", "Directory holding phoebe.toml (default: search upward from .)")
	parallel := flag.Bool("parallel", false, "Run each script on its own thread, concurrently")
	gcStats := flag.String("gc-stats", "", "Write collector statistics to `file` (CBOR) on exit")
	noPrompt := flag.Bool("no-prompt", false, "Read forms from stdin without line editing or prompts")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: phoebe [options] [scripts...]\n\n")
		fmt.Fprintf(os.Stderr, "Evaluates each script, then starts a REPL if -i is given or no scripts are.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  phoebe                          # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  phoebe a.lisp b.lisp -i         # Load scripts, then REPL\n")
		fmt.Fprintf(os.Stderr, "  phoebe -parallel a.lisp b.lisp  # Run scripts on concurrent threads\n")
		fmt.Fprintf(os.Stderr, "  phoebe -gc-stats gc.cbor x.lisp # Record collector passes\n")
	}
	flag.Parse()

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	verbosity := m.Log.Verbosity
	if *verbose > verbosity {
		verbosity = *verbose
	}
	commonlog.Configure(verbosity, nil)

	cfg, err := m.VMConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	vm.Configure(cfg)
	defer vm.Shutdown()

	if *gcStats != "" {
		defer writeGCStats(*gcStats)
	}

	if err := builtins.Install(); err != nil {
		fmt.Fprintf(os.Stderr, "Error installing builtins: %v\n", err)
		return 1
	}

	th, err := vm.NewThread()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer th.Close()

	for _, path := range m.PreloadPaths() {
		if err := runFile(th, path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	scripts := flag.Args()
	if *parallel {
		err = runParallel(scripts)
	} else {
		for _, path := range scripts {
			if err = runFile(th, path); err != nil {
				break
			}
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *interactive || len(scripts) == 0 {
		if *noPrompt {
			if err := repl.Loop(th, os.Stdin, os.Stdout, os.Stderr, false); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
			return 0
		}
		return runREPL(th, m)
	}
	return 0
}

// loadManifest reads phoebe.toml from dir, or from the nearest directory
// above the working directory that has one. With no file at all the
// defaults apply, still subject to environment overrides.
func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil || m != nil {
		return m, err
	}
	m = manifest.Default()
	if err := m.ApplyEnv(); err != nil {
		return nil, err
	}
	return m, m.Validate()
}

func runFile(th *vm.Thread, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	log.Infof("loading %s", path)
	return repl.Loop(th, f, os.Stdout, os.Stderr, false)
}

// runParallel evaluates every script on a thread of its own. Each
// script's output is buffered and written once all have finished, in
// command-line order.
func runParallel(paths []string) error {
	outs := make([]bytes.Buffer, len(paths))
	errs := make([]bytes.Buffer, len(paths))

	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return repl.Run(f, &outs[i], &errs[i], false)
		})
	}
	err := g.Wait()

	for i := range paths {
		os.Stdout.Write(outs[i].Bytes())
		os.Stderr.Write(errs[i].Bytes())
	}
	return err
}

func writeGCStats(path string) {
	data, err := vm.MarshalStats(vm.Report())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding GC stats: %v\n", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing GC stats: %v\n", err)
	}
}

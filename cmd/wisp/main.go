// Command wisp is the REPL and file-runner entry point. Grounded on
// funvibe-funxy/internal/vm/debugger_cli.go's bufio.Scanner prompt loop
// (scan a line, print a prompt, report EOF) and
// funvibe-funxy/internal/evaluator/builtins_term.go's isatty-based terminal
// detection, simplified here to a single always-on driver session rather
// than a debugger attached to a running program.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/wisp-lang/wisp/internal/config"
	"github.com/wisp-lang/wisp/internal/driver"
	"github.com/wisp-lang/wisp/internal/vm"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfgPath := "wisp.yaml"
	if p := os.Getenv("WISP_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wisp: %v\n", err)
		return 1
	}

	d := driver.New(cfg.StackSize, cfg.FrameCapacity)

	if cfg.Prelude != "" {
		if _, err := d.Eval(context.Background(), fmt.Sprintf(`(load %q)`, cfg.Prelude)); err != nil {
			fmt.Fprintf(os.Stderr, "wisp: loading prelude %s: %v\n", cfg.Prelude, err)
			return 1
		}
	}

	if len(args) > 0 {
		return runFile(d, args[0])
	}
	return runREPL(d, cfg)
}

// runFile loads and runs a script to completion, exiting non-zero on any
// top-level failure so wisp composes with shell scripting the way a normal
// CLI does.
func runFile(d *driver.Driver, path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wisp: %v\n", err)
		return 1
	}
	if _, err := d.Eval(context.Background(), fmt.Sprintf(`(load %q)`, abs)); err != nil {
		fmt.Fprintf(os.Stderr, "wisp: %v\n", err)
		return 1
	}
	return 0
}

// runREPL reads forms from stdin, accumulating lines until TryEvalREPL
// reports a complete form (so a define split across several lines works the
// same as one typed on a single line), evaluates each one, and binds its
// result to the next `$n` global. The banner and prompt are suppressed when
// stdin isn't a terminal, so piping a script through `wisp` behaves like
// running it as a file. A literal `:q` line exits; Ctrl-C interrupts the
// in-flight evaluation (per spec.md §6) without killing the REPL.
func runREPL(d *driver.Driver, cfg config.Config) int {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Fprintln(os.Stdout, "wisp REPL. Ctrl-D to exit.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var pending string
	for {
		if interactive {
			if pending == "" {
				fmt.Fprint(os.Stdout, cfg.Prompt)
			} else {
				fmt.Fprint(os.Stdout, "... ")
			}
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Fprintf(os.Stderr, "\nwisp: %v\n", err)
				return 1
			}
			if pending != "" {
				fmt.Fprintf(os.Stderr, "\nwisp: unexpected EOF mid-form\n")
				return 1
			}
			if interactive {
				fmt.Fprintln(os.Stdout)
			}
			return 0
		}
		line := scanner.Text()
		if pending == "" {
			if line == ":q" {
				return 0
			}
			if line == "" {
				continue
			}
		}
		if pending == "" {
			pending = line
		} else {
			pending = pending + "\n" + line
		}

		result, name, incomplete, err := evalInterruptibly(d, pending)
		if incomplete {
			continue
		}
		pending = ""
		if err != nil {
			if errors.Is(err, vm.ErrInterrupted) {
				fmt.Fprintf(os.Stderr, "\ninterrupted\n")
				continue
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if interactive {
			fmt.Fprintf(os.Stdout, "%s = %s\n", name, vm.Display(result))
		}
	}
}

// evalInterruptibly runs one TryEvalREPL call under a context tied to
// os.Interrupt, scoped to just this evaluation: the VM's poll loop
// (internal/vm/vm.go's pollPeriod/ErrInterrupted) notices cancellation and
// returns ErrInterrupted instead of the process dying to the signal,
// letting runREPL recover and print the next prompt rather than exiting.
func evalInterruptibly(d *driver.Driver, src string) (vm.Value, string, bool, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return d.TryEvalREPL(ctx, src)
}

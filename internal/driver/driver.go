// Package driver owns one parse+codegen+VM pipeline per session: the
// external collaborator spec.md's core treats as a given. Grounded on
// funvibe-funxy/internal/vm/vm.go's Run (fresh script closure plus frame 0
// setup) and funvibe-funxy/cmd/funxy/main.go's pipeline-selection style,
// flattened here to a single VM backend since this spec has no alternate
// execution backend to choose between.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/wisp-lang/wisp/internal/codegen"
	"github.com/wisp-lang/wisp/internal/lexer"
	"github.com/wisp-lang/wisp/internal/macro"
	"github.com/wisp-lang/wisp/internal/parser"
	"github.com/wisp-lang/wisp/internal/vm"
)

// Driver is one REPL or file-execution session: one macro table (shared
// across every chunk compiled into it, so macros defined early stay visible
// later), one VM instance, and a unique SessionID stamped onto its log
// lines so multiple REPL processes' interleaved stderr can be told apart.
type Driver struct {
	SessionID string

	VM     *vm.VM
	macros *macro.Table

	replCount int
}

// New creates a Driver with the given operand-stack and frame-heap
// capacities, wiring itself in as the VM's Loader for `load`.
func New(stackSize, frameCapacity int) *Driver {
	d := &Driver{
		SessionID: uuid.NewString(),
		macros:    macro.NewTable(),
	}
	d.VM = vm.New(stackSize, frameCapacity, d)
	return d
}

// Eval compiles src as one chunk, splices it onto the end of the VM's
// instruction stream, and runs it to completion (Exit, an error, or ctx
// cancellation), per SPEC_FULL.md §4.4's join-and-resume contract. Bindings
// a chunk creates at the top level (via `define`) persist into later Eval
// calls on the same Driver, since they all share frame 0.
func (d *Driver) Eval(ctx context.Context, src string) (vm.Value, error) {
	code, consts, err := d.compile(src, true, true)
	if err != nil {
		return vm.Value{}, err
	}
	startPC := d.VM.Append(code, consts)
	d.VM.SetEntry(startPC)
	result, err := d.VM.Run(ctx)
	if err != nil {
		log.Printf("session %s: eval error: %v", d.SessionID, err)
	}
	return result, err
}

// EvalREPL runs src the same way Eval does, then binds the result to the
// next `$n` global (`$1`, `$2`, ...) per spec.md's REPL auto-binding
// requirement, and reports which name it used.
func (d *Driver) EvalREPL(ctx context.Context, src string) (vm.Value, string, error) {
	result, err := d.Eval(ctx, src)
	if err != nil {
		return result, "", err
	}
	return result, d.bindREPLResult(result), nil
}

// TryEvalREPL is EvalREPL's incremental counterpart: it parses src
// non-strictly, so a form left open across a line break (an unclosed
// paren) reports incomplete=true instead of a syntax error, letting the
// caller append another line and retry the whole buffer. An unterminated
// string literal is not treated as incomplete: the lexer rejects it, and
// that is returned as an error. Once src parses as a complete program it compiles, runs,
// and binds the result exactly like EvalREPL.
func (d *Driver) TryEvalREPL(ctx context.Context, src string) (result vm.Value, name string, incomplete bool, err error) {
	code, consts, err := d.compile(src, true, false)
	if err != nil {
		if errors.Is(err, parser.ErrIncompleteInput) {
			return vm.Value{}, "", true, nil
		}
		return vm.Value{}, "", false, err
	}
	startPC := d.VM.Append(code, consts)
	d.VM.SetEntry(startPC)
	result, err = d.VM.Run(ctx)
	if err != nil {
		log.Printf("session %s: eval error: %v", d.SessionID, err)
		return result, "", false, err
	}
	return result, d.bindREPLResult(result), false, nil
}

func (d *Driver) bindREPLResult(result vm.Value) string {
	d.replCount++
	name := fmt.Sprintf("$%d", d.replCount)
	d.VM.DefineGlobal(name, result)
	return name
}

// compile lexes and parses src, then lowers it through codegen. isMain
// controls whether the last top-level form's value survives on the stack
// (true for Eval/EvalREPL chunks, which are run to Exit directly) or every
// form pops its own result (false for LoadChunk's spliced, never-exited
// chunks). strict controls EOF-mid-form behavior: true reports a hard
// syntax error (file loads have no more input coming), false reports
// parser.ErrIncompleteInput so a REPL can ask for another line.
func (d *Driver) compile(src string, isMain, strict bool) ([]byte, []vm.Value, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, nil, fmt.Errorf("lex: %w", err)
	}
	p := parser.New(toks, d.macros, strict)
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, nil, fmt.Errorf("parse: %w", err)
	}
	return codegen.Generate(prog, isMain)
}

// LoadChunk implements vm.Loader for the `load` special form: it reads path
// from disk and compiles it as a non-main chunk. Its macro definitions
// register in the same shared table as the rest of the session, matching
// `load`'s role as a textual include rather than an isolated module.
func (d *Driver) LoadChunk(path string) ([]byte, []vm.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	code, consts, err := d.compile(string(data), false, true)
	if err != nil {
		return nil, nil, fmt.Errorf("load %q: %w", path, err)
	}
	return code, consts, nil
}

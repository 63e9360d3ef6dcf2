// Package codegen lowers an AST (internal/ast) into a flat VM instruction
// stream (internal/vm), per SPEC_FULL.md §4.2: a two-pass label-patching
// builder, per-surface-name hygiene resolution, and tail-position tracking.
//
// Grounded on funvibe-funxy/internal/vm's chunk.go (a growing []byte code
// vector plus a parallel constant pool, AddConstant/WriteOp) and
// compiler_scope.go's locals/scopeDepth push-on-enter/pop-on-exit pattern,
// generalized here from slot indices to per-name expansion-context stacks.
// Unlike funxy's single-pass emitJump/patchJump direct backpatch (which
// writes 0xff placeholder bytes and overwrites them once the jump distance
// is known), this builder defers every jump target to a second pass: emit
// produces a temporary instruction list carrying symbolic label ids, and
// build() resolves them to absolute program-counter offsets afterward, per
// SPEC_FULL.md's explicit two-pass requirement.
package codegen

import (
	"fmt"

	"github.com/wisp-lang/wisp/internal/vm"
)

// label is an opaque, not-yet-positioned jump target.
type label int

// tempKind identifies the variant of a tempInstr.
type tempKind int

const (
	kindPlain  tempKind = iota // opcode with no operand
	kindOperand16              // opcode whose 2-byte operand is a literal already known
	kindJump // opcode whose 2-byte operand is a label, resolved in pass two
	kindMark // a label's position marker; contributes no bytes
)

type tempInstr struct {
	kind     tempKind
	op       vm.Opcode
	operand  int   // kindOperand16: the literal operand value
	target   label // kindJump: the label this instruction jumps to
	mark     label // kindMark: the label this position defines
}

// Builder accumulates a temporary instruction list and a constant pool for
// one compiled unit (one top-level Program, or one REPL chunk), then
// resolves it to a flat instruction stream via Build.
type Builder struct {
	instrs    []tempInstr
	nextLabel label
	constants []vm.Value

	// ctxStack holds, per surface name, the stack of expansion-context ids
	// currently in scope (most recently def'd on top), per SPEC_FULL.md
	// §4.2's hygiene resolution rule.
	ctxStack map[string][]int
	// scopes holds, per currently-open lexical scope, the names def'd
	// inside it, so endScope can pop exactly those entries back off
	// ctxStack.
	scopes [][]string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{ctxStack: make(map[string][]int)}
}

func (b *Builder) newLabel() label {
	l := b.nextLabel
	b.nextLabel++
	return l
}

func (b *Builder) markLabel(l label) {
	b.instrs = append(b.instrs, tempInstr{kind: kindMark, mark: l})
}

// emit appends a no-operand opcode.
func (b *Builder) emit(op vm.Opcode) {
	b.instrs = append(b.instrs, tempInstr{kind: kindPlain, op: op})
}

// emitOperand16 appends an opcode whose 2-byte operand is already a known
// literal (a constant-pool index), as opposed to a not-yet-resolved label.
func (b *Builder) emitOperand16(op vm.Opcode, operand int) {
	b.instrs = append(b.instrs, tempInstr{kind: kindOperand16, op: op, operand: operand})
}

// emitJump appends an opcode whose 2-byte operand is a label to resolve in
// the second pass (Jump, JumpIf, PushReturnContext, CreateClosure).
func (b *Builder) emitJump(op vm.Opcode, target label) {
	b.instrs = append(b.instrs, tempInstr{kind: kindJump, op: op, target: target})
}

// valueConstant interns v (a literal to Push) into the constant pool,
// returning its index. Constants are not deduplicated: SPEC_FULL.md places
// no such requirement, and identical-looking literals at different source
// positions have no reason to alias.
func (b *Builder) valueConstant(v vm.Value) int {
	b.constants = append(b.constants, v)
	return len(b.constants) - 1
}

// nameConstant interns a resolved identifier key as a Symbol constant, for
// use as the operand of Def/Set/Get/CollectVArg (whose VM-side handling
// reads the constant's .S field as the binding name).
func (b *Builder) nameConstant(key string) int {
	return b.valueConstant(vm.SymbolVal(key))
}

// emitPush emits Push of a literal value.
func (b *Builder) emitPush(v vm.Value) {
	b.emitOperand16(vm.Push, b.valueConstant(v))
}

// emitDef/emitSet/emitGet/emitCollectVArg emit the environment-access
// opcodes with a resolved name already interned as their operand.
func (b *Builder) emitDef(key string)         { b.emitOperand16(vm.Def, b.nameConstant(key)) }
func (b *Builder) emitSet(key string)         { b.emitOperand16(vm.Set, b.nameConstant(key)) }
func (b *Builder) emitGet(key string)         { b.emitOperand16(vm.Get, b.nameConstant(key)) }
func (b *Builder) emitCollectVArg(key string) { b.emitOperand16(vm.CollectVArg, b.nameConstant(key)) }

// beginScope opens a new lexical scope (a lambda or do body): names def'd
// until the matching endScope are popped back off ctxStack when it closes.
func (b *Builder) beginScope() {
	b.scopes = append(b.scopes, nil)
}

func (b *Builder) endScope() {
	top := b.scopes[len(b.scopes)-1]
	b.scopes = b.scopes[:len(b.scopes)-1]
	for _, name := range top {
		stack := b.ctxStack[name]
		b.ctxStack[name] = stack[:len(stack)-1]
	}
}

// def records that `name` (at expansion context `ctx`) is now bound in the
// innermost open scope (or permanently, at top level, if no scope is open).
func (b *Builder) def(name string, ctx int) {
	b.ctxStack[name] = append(b.ctxStack[name], ctx)
	if n := len(b.scopes); n > 0 {
		b.scopes[n-1] = append(b.scopes[n-1], name)
	}
}

// isBound reports whether name currently has any definition in scope,
// shadowing the built-in operator of the same name (if any).
func (b *Builder) isBound(name string) bool {
	return len(b.ctxStack[name]) > 0
}

// resolve implements SPEC_FULL.md §4.2's hygiene rule: use ctx if that
// exact context is in the stack for name; otherwise fall back to the top of
// the stack; if name has no entry at all, context 0 is used. The emitted
// key is name when the chosen context is 0, else "name~ctx".
func (b *Builder) resolve(name string, ctx int) string {
	stack := b.ctxStack[name]
	if len(stack) == 0 {
		return name
	}
	for _, c := range stack {
		if c == ctx {
			return resolvedKey(name, c)
		}
	}
	return resolvedKey(name, stack[len(stack)-1])
}

func resolvedKey(name string, ctx int) string {
	if ctx == 0 {
		return name
	}
	return fmt.Sprintf("%s~%d", name, ctx)
}

// Build resolves every label to an absolute program-counter offset and
// flattens the temporary instruction list into a VM-executable byte stream.
// When isMain is true, an Exit is appended so the stream has somewhere to
// stop.
func (b *Builder) Build(isMain bool) ([]byte, []vm.Value, error) {
	if isMain {
		b.emit(vm.Exit)
	}

	positions := make(map[label]int)
	pc := 0
	for _, ins := range b.instrs {
		switch ins.kind {
		case kindMark:
			positions[ins.mark] = pc
		case kindPlain:
			pc += vm.InstrLen(ins.op)
		case kindOperand16:
			pc += vm.InstrLen(ins.op)
		case kindJump:
			pc += vm.InstrLen(ins.op)
		}
	}

	code := make([]byte, 0, pc)
	for _, ins := range b.instrs {
		switch ins.kind {
		case kindMark:
			continue
		case kindPlain:
			code = append(code, byte(ins.op))
		case kindOperand16:
			code = append(code, byte(ins.op), byte(ins.operand>>8), byte(ins.operand))
		case kindJump:
			target, ok := positions[ins.target]
			if !ok {
				return nil, nil, fmt.Errorf("codegen: unresolved label in %v", ins.op)
			}
			code = append(code, byte(ins.op), byte(target>>8), byte(target))
		}
	}

	return code, b.constants, nil
}

package codegen

import (
	"fmt"

	"github.com/wisp-lang/wisp/internal/ast"
	"github.com/wisp-lang/wisp/internal/vm"
)

// Generate lowers a parsed Program into a flat instruction stream and its
// constant pool, per SPEC_FULL.md §4.2. isMain is true for a chunk the VM
// enters directly (every chunk the driver's Eval/REPL entry points run); it
// is false for a chunk
// spliced in by `load`, which falls through into a trailing Jump back to its
// call site instead of an Exit.
//
// Every top-level form leaves the operand stack exactly as it found it,
// except the last one when isMain is true: its value is left on the stack
// for Exit to return (Exit already falls back to Null when the stack is
// empty, so a trailing `define` needs no special case).
func Generate(prog *ast.Program, isMain bool) ([]byte, []vm.Value, error) {
	b := NewBuilder()
	for i, form := range prog.Forms {
		keep := isMain && i == len(prog.Forms)-1
		if err := genTopLevel(b, form, keep); err != nil {
			return nil, nil, err
		}
	}
	return b.Build(isMain)
}

func genTopLevel(b *Builder, tl ast.TopLevel, keep bool) error {
	switch t := tl.(type) {
	case *ast.DefineSyntaxForm:
		// Macro definitions are consumed entirely by internal/macro during
		// parsing; nothing reaches codegen for them to lower.
		return nil

	case *ast.LoadForm:
		if err := genExpr(b, t.Path, false); err != nil {
			return err
		}
		b.emit(vm.Load)
		if !keep {
			b.emit(vm.Pop)
		}
		return nil

	case *ast.DefineVar, *ast.DefineFunc:
		// Top-level position is never tail: a self-tail-call here would let
		// OptCall try to reuse frame 0 (the root frame). Deactivate never
		// drops the root, but SafeToReuse and ForceFree have no root guard,
		// so the reuse check must never be asked to fire there.
		return genDefine(b, tl.(ast.Define))

	case *ast.TopLevelExpr:
		if err := genExpr(b, t.Expr, false); err != nil {
			return err
		}
		if !keep {
			b.emit(vm.Pop)
		}
		return nil
	}
	return fmt.Errorf("codegen: unknown top-level form %T", tl)
}

// genDefine lowers both forms of Define. A variable define is Def(id); expr;
// Set(id) (the form itself contributes nothing to the operand stack). A
// function define desugars to a variable define whose value is a lambda, per
// SPEC_FULL.md §4.2.
//
// The name is registered in the hygiene table *before* the value expression
// is compiled, so a function's own body can refer to itself recursively (the
// binding slot already exists in the current frame, holding Null, by the
// time CreateClosure captures that frame as the closure's lexical parent;
// the closure is only ever invoked later, after Set has run).
func genDefine(b *Builder, d ast.Define) error {
	switch n := d.(type) {
	case *ast.DefineVar:
		b.def(n.Name.Name, n.Name.Ctx)
		key := b.resolve(n.Name.Name, n.Name.Ctx)
		b.emitDef(key)
		if err := genExpr(b, n.Value, false); err != nil {
			return err
		}
		b.emitSet(key)
		return nil

	case *ast.DefineFunc:
		b.def(n.Name.Name, n.Name.Ctx)
		key := b.resolve(n.Name.Name, n.Name.Ctx)
		b.emitDef(key)
		if err := genLambda(b, n.Params, n.Rest, n.Body); err != nil {
			return err
		}
		b.emitSet(key)
		return nil
	}
	return fmt.Errorf("codegen: unknown define form %T", d)
}

// genBody lowers a lambda/let/do body: its internal defines run first (each
// in non-tail position), then its expressions in sequence, with all but the
// last popped; tail propagates only to the last expression.
func genBody(b *Builder, body *ast.Body, tail bool) error {
	for _, d := range body.Defs {
		if err := genDefine(b, d); err != nil {
			return err
		}
	}
	for i, e := range body.Exprs {
		isLast := i == len(body.Exprs)-1
		if err := genExpr(b, e, isLast && tail); err != nil {
			return err
		}
		if !isLast {
			b.emit(vm.Pop)
		}
	}
	return nil
}

// genExpr lowers a single expression, leaving exactly one value on the
// operand stack. tail marks whether e sits in the syntactic tail position of
// the enclosing lambda/do body (it decides Call vs OptCall for any
// application e contains at its own tail position).
func genExpr(b *Builder, e ast.Expr, tail bool) error {
	switch n := e.(type) {
	case *ast.IntLit:
		b.emitPush(vm.IntVal(n.Value))
		return nil
	case *ast.FloatLit:
		b.emitPush(vm.FloatVal(n.Value))
		return nil
	case *ast.BoolLit:
		b.emitPush(vm.BoolVal(n.Value))
		return nil
	case *ast.StringLit:
		b.emitPush(vm.StringVal(n.Value))
		return nil

	case *ast.Ident:
		b.emitGet(b.resolve(n.Name, n.Ctx))
		return nil

	case *ast.Quote:
		return genSExp(b, n.Datum)

	case *ast.SetForm:
		if err := genExpr(b, n.Value, false); err != nil {
			return err
		}
		b.emitSet(b.resolve(n.Name.Name, n.Name.Ctx))
		b.emitPush(vm.NullVal())
		return nil

	case *ast.Lambda:
		return genLambda(b, n.Params, n.Rest, n.Body)

	case *ast.Apply:
		return genApply(b, n, tail)

	case *ast.IfForm:
		return genIf(b, n, tail)
	case *ast.CondForm:
		return genCond(b, n, tail)
	case *ast.AndForm:
		return genAnd(b, n, tail)
	case *ast.OrForm:
		return genOr(b, n, tail)
	case *ast.BeginForm:
		return genBegin(b, n, tail)

	case *ast.LetForm:
		return genLet(b, n, tail)
	case *ast.LetStarForm:
		return genLetStar(b, n, tail)
	case *ast.LetRecForm:
		return genLetRec(b, n, tail)
	case *ast.DoForm:
		return genDo(b, n, tail)
	}
	return fmt.Errorf("codegen: unknown expression %T", e)
}

// genLambda emits CreateClosure(entry); Jump(after) at the call site, then
// the body out of line at entry: each formal consumed left-to-right via
// Def+Set (matching the order arguments arrive, nearest-top-first), the
// variadic rest (if any) collected directly by CollectVArg with no trailing
// Set (CollectVArg itself performs the binding), the body's last expression
// in tail position, and a closing Ret. Shared by both `(lambda ...)` and the
// desugared form of `(define (f ...) ...)`.
func genLambda(b *Builder, params []*ast.Ident, rest *ast.Ident, body *ast.Body) error {
	entry := b.newLabel()
	after := b.newLabel()

	b.emitJump(vm.CreateClosure, entry)
	b.emitJump(vm.Jump, after)

	b.markLabel(entry)
	b.beginScope()
	for _, p := range params {
		b.def(p.Name, p.Ctx)
		key := b.resolve(p.Name, p.Ctx)
		b.emitDef(key)
		b.emitSet(key)
	}
	if rest != nil {
		b.def(rest.Name, rest.Ctx)
		key := b.resolve(rest.Name, rest.Ctx)
		b.emitDef(key)
		b.emitCollectVArg(key)
	}
	if err := genBody(b, body, true); err != nil {
		return err
	}
	b.emit(vm.Ret)
	b.endScope()

	b.markLabel(after)
	return nil
}

func genIf(b *Builder, n *ast.IfForm, tail bool) error {
	if err := genExpr(b, n.Cond, false); err != nil {
		return err
	}
	b.emit(vm.Not)
	elseLabel := b.newLabel()
	exitLabel := b.newLabel()
	b.emitJump(vm.JumpIf, elseLabel)

	if err := genExpr(b, n.Then, tail); err != nil {
		return err
	}
	b.emitJump(vm.Jump, exitLabel)

	b.markLabel(elseLabel)
	if n.Else != nil {
		if err := genExpr(b, n.Else, tail); err != nil {
			return err
		}
	} else {
		b.emitPush(vm.NullVal())
	}
	b.markLabel(exitLabel)
	return nil
}

func genCond(b *Builder, n *ast.CondForm, tail bool) error {
	exitLabel := b.newLabel()
	for _, clause := range n.Clauses {
		if err := genExpr(b, clause.Test, false); err != nil {
			return err
		}
		b.emit(vm.Not)
		pastLabel := b.newLabel()
		b.emitJump(vm.JumpIf, pastLabel)
		if err := genExprSeqTail(b, clause.Then, tail); err != nil {
			return err
		}
		b.emitJump(vm.Jump, exitLabel)
		b.markLabel(pastLabel)
	}
	if n.Else != nil {
		if err := genExprSeqTail(b, n.Else, tail); err != nil {
			return err
		}
	} else {
		b.emitPush(vm.NullVal())
	}
	b.markLabel(exitLabel)
	return nil
}

// genExprSeqTail lowers a sequence of expressions where only the value of
// the last one survives (begin-style), shared by cond arms and the else arm.
func genExprSeqTail(b *Builder, exprs []ast.Expr, tail bool) error {
	for i, e := range exprs {
		isLast := i == len(exprs)-1
		if err := genExpr(b, e, isLast && tail); err != nil {
			return err
		}
		if !isLast {
			b.emit(vm.Pop)
		}
	}
	return nil
}

func genAnd(b *Builder, n *ast.AndForm, tail bool) error {
	if len(n.Exprs) == 0 {
		b.emitPush(vm.BoolVal(true))
		return nil
	}
	exitLabel := b.newLabel()
	for _, e := range n.Exprs[:len(n.Exprs)-1] {
		if err := genExpr(b, e, false); err != nil {
			return err
		}
		b.emit(vm.Dup)
		b.emit(vm.Not)
		b.emitJump(vm.JumpIf, exitLabel)
		b.emit(vm.Pop)
	}
	if err := genExpr(b, n.Exprs[len(n.Exprs)-1], tail); err != nil {
		return err
	}
	b.markLabel(exitLabel)
	return nil
}

func genOr(b *Builder, n *ast.OrForm, tail bool) error {
	if len(n.Exprs) == 0 {
		b.emitPush(vm.BoolVal(false))
		return nil
	}
	exitLabel := b.newLabel()
	for _, e := range n.Exprs[:len(n.Exprs)-1] {
		if err := genExpr(b, e, false); err != nil {
			return err
		}
		b.emit(vm.Dup)
		b.emitJump(vm.JumpIf, exitLabel)
		b.emit(vm.Pop)
	}
	if err := genExpr(b, n.Exprs[len(n.Exprs)-1], tail); err != nil {
		return err
	}
	b.markLabel(exitLabel)
	return nil
}

func genBegin(b *Builder, n *ast.BeginForm, tail bool) error {
	if len(n.Exprs) == 0 {
		b.emitPush(vm.NullVal())
		return nil
	}
	return genExprSeqTail(b, n.Exprs, tail)
}

package codegen

import (
	"github.com/wisp-lang/wisp/internal/ast"
	"github.com/wisp-lang/wisp/internal/vm"
)

// genLet, genLetStar and genLetRec all lower by rewriting to simpler forms
// and recursing through genExpr, rather than emitting bytecode directly: a
// plain let becomes an immediately-applied lambda, let* a chain of nested
// single-binding lets, letrec a let of Null-initialized bindings followed by
// a set! per binding, and named let a letrec binding a self-recursive
// function plus a call of it. Reusing genLambda/genApply this way keeps the
// hygiene bookkeeping (beginScope/endScope, def) in exactly one place.

func genLet(b *Builder, n *ast.LetForm, tail bool) error {
	if n.Name == nil {
		params := make([]*ast.Ident, len(n.Bindings))
		args := make([]ast.Expr, len(n.Bindings))
		for i, bind := range n.Bindings {
			params[i] = bind.Name
			args[i] = bind.Value
		}
		lambda := &ast.Lambda{Tok: n.Tok, Params: params, Body: n.Body}
		apply := &ast.Apply{Tok: n.Tok, Fn: lambda, Args: args}
		return genExpr(b, apply, tail)
	}

	// Named let: (let loop ((x v) ...) body) => (letrec ((loop (lambda (x
	// ...) body))) (loop v ...)).
	params := make([]*ast.Ident, len(n.Bindings))
	args := make([]ast.Expr, len(n.Bindings))
	for i, bind := range n.Bindings {
		params[i] = bind.Name
		args[i] = bind.Value
	}
	lambda := &ast.Lambda{Tok: n.Tok, Params: params, Body: n.Body}
	selfRef := &ast.Ident{Tok: n.Name.Tok, Name: n.Name.Name, Ctx: n.Name.Ctx}
	selfApply := &ast.Apply{Tok: n.Tok, Fn: selfRef, Args: args}
	letrec := &ast.LetRecForm{
		Tok:      n.Tok,
		Bindings: []ast.Binding{{Name: n.Name, Value: lambda}},
		Body:     &ast.Body{Exprs: []ast.Expr{selfApply}},
	}
	return genExpr(b, letrec, tail)
}

func genLetStar(b *Builder, n *ast.LetStarForm, tail bool) error {
	if len(n.Bindings) == 0 {
		return genExpr(b, &ast.LetForm{Tok: n.Tok, Body: n.Body}, tail)
	}

	var build func(i int) *ast.LetForm
	build = func(i int) *ast.LetForm {
		if i == len(n.Bindings)-1 {
			return &ast.LetForm{Tok: n.Tok, Bindings: n.Bindings[i : i+1], Body: n.Body}
		}
		inner := build(i + 1)
		return &ast.LetForm{
			Tok:      n.Tok,
			Bindings: n.Bindings[i : i+1],
			Body:     &ast.Body{Exprs: []ast.Expr{inner}},
		}
	}
	return genExpr(b, build(0), tail)
}

// genLetRec rewrites to a let that binds every name to Null up front, then
// set!s each to its real initializer before the original body runs. The
// set!s run after the body's own internal defines (simpler than threading
// them into the Defs phase too, and in practice the two never interact:
// internal defines don't reference the enclosing letrec's bindings in their
// own initializers).
func genLetRec(b *Builder, n *ast.LetRecForm, tail bool) error {
	bindings := make([]ast.Binding, len(n.Bindings))
	sets := make([]ast.Expr, len(n.Bindings))
	for i, bind := range n.Bindings {
		bindings[i] = ast.Binding{
			Name:  bind.Name,
			Value: &ast.Quote{Tok: n.Tok, Datum: &ast.SExpNull{Tok: n.Tok}},
		}
		sets[i] = &ast.SetForm{Tok: n.Tok, Name: bind.Name, Value: bind.Value}
	}
	newBody := &ast.Body{
		Defs:  n.Body.Defs,
		Exprs: append(append([]ast.Expr{}, sets...), n.Body.Exprs...),
	}
	let := &ast.LetForm{Tok: n.Tok, Bindings: bindings, Body: newBody}
	return genExpr(b, let, tail)
}

// genDo lowers to the same CreateClosure/Jump(after) skip-and-call shape
// genLambda uses for an ordinary closure, specialized to zero parameters and
// emitted directly (a `do` loop's internal jump-back-to-test control flow
// has no equivalent among the existing expression nodes, so it can't be
// built by just recursing through genExpr like the other binders above).
//
// All of a binding's Init expressions (and, each iteration, all of the Step
// expressions) are evaluated before any of them is assigned, matching the
// rule that a do-binding's initializer and step never see that iteration's
// other not-yet-updated siblings as live do-local bindings.
func genDo(b *Builder, n *ast.DoForm, tail bool) error {
	entry := b.newLabel()
	after := b.newLabel()
	var exitLabel label
	if !tail {
		exitLabel = b.newLabel()
		b.emitJump(vm.PushReturnContext, exitLabel)
	}
	b.emitJump(vm.CreateClosure, entry)
	b.emitJump(vm.Jump, after)

	b.markLabel(entry)
	b.beginScope()

	for _, bind := range n.Bindings {
		if err := genExpr(b, bind.Init, false); err != nil {
			return err
		}
	}
	for i := len(n.Bindings) - 1; i >= 0; i-- {
		bind := n.Bindings[i]
		b.def(bind.Name.Name, bind.Name.Ctx)
		key := b.resolve(bind.Name.Name, bind.Name.Ctx)
		b.emitDef(key)
		b.emitSet(key)
	}

	loopLabel := b.newLabel()
	b.markLabel(loopLabel)
	if err := genExpr(b, n.Test, false); err != nil {
		return err
	}
	doneLabel := b.newLabel()
	b.emitJump(vm.JumpIf, doneLabel)

	for _, e := range n.Body {
		if err := genExpr(b, e, false); err != nil {
			return err
		}
		b.emit(vm.Pop)
	}

	for _, bind := range n.Bindings {
		if bind.Step != nil {
			if err := genExpr(b, bind.Step, false); err != nil {
				return err
			}
		} else {
			b.emitGet(b.resolve(bind.Name.Name, bind.Name.Ctx))
		}
	}
	for i := len(n.Bindings) - 1; i >= 0; i-- {
		b.emitSet(b.resolve(n.Bindings[i].Name.Name, n.Bindings[i].Name.Ctx))
	}
	b.emitJump(vm.Jump, loopLabel)

	b.markLabel(doneLabel)
	if len(n.Values) == 0 {
		b.emitPush(vm.NullVal())
	} else {
		if err := genExprSeqTail(b, n.Values, true); err != nil {
			return err
		}
	}
	b.emit(vm.Ret)
	b.endScope()

	b.markLabel(after)
	if tail {
		b.emit(vm.OptCall)
	} else {
		b.emit(vm.Call)
		b.markLabel(exitLabel)
	}
	return nil
}

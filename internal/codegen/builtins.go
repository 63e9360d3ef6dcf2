package codegen

import (
	"fmt"

	"github.com/wisp-lang/wisp/internal/ast"
	"github.com/wisp-lang/wisp/internal/vm"
)

// builtinInfo describes a built-in operator name inlined directly to a
// dedicated opcode instead of going through the Call protocol, per
// SPEC_FULL.md §4.2. variadic covers the four arithmetic operators, whose
// argument count isn't fixed; every other built-in takes exactly n operands.
type builtinInfo struct {
	op       vm.Opcode
	n        int // fixed argument count; ignored when variadic
	variadic bool
}

// builtins maps a surface name to its opcode, as long as that name isn't
// shadowed by a user binding (genApply checks isBound before consulting this
// table). +, -, *, and / additionally fold over any number of arguments;
// every comparison here is strictly binary since the opcode set has no
// chained n-ary comparison primitive.
var builtins = map[string]builtinInfo{
	"+": {op: vm.Add, variadic: true},
	"-": {op: vm.Sub, variadic: true},
	"*": {op: vm.Mul, variadic: true},
	"/": {op: vm.Div, variadic: true},

	"=":  {op: vm.Eq, n: 2},
	"<":  {op: vm.Lt, n: 2},
	"<=": {op: vm.Le, n: 2},
	">":  {op: vm.Gt, n: 2},
	">=": {op: vm.Ge, n: 2},

	"display": {op: vm.Display, n: 1},
	"not":     {op: vm.Not, n: 1},

	"cons":     {op: vm.Cons, n: 2},
	"car":      {op: vm.Car, n: 1},
	"cdr":      {op: vm.Cdr, n: 1},
	"set-car!": {op: vm.SetCar, n: 2},
	"set-cdr!": {op: vm.SetCdr, n: 2},

	"null?":    {op: vm.IsNull, n: 1},
	"pair?":    {op: vm.IsPair, n: 1},
	"number?":  {op: vm.IsNumber, n: 1},
	"boolean?": {op: vm.IsBool, n: 1},
	"string?":  {op: vm.IsString, n: 1},
	"proc?":    {op: vm.IsProc, n: 1},
	"symbol?":  {op: vm.IsSymbol, n: 1},
	"eq?":      {op: vm.IsEq, n: 2},
	"equal?":   {op: vm.IsEqual, n: 2},

	"symbol->string": {op: vm.SymbolToString, n: 1},
	"string->symbol": {op: vm.StringToSymbol, n: 1},
	"string->number": {op: vm.StringToNumber, n: 1},
	"number->string": {op: vm.NumberToString, n: 1},
	"string-append":  {op: vm.StringAppend, n: 2},
}

// genApply dispatches an application: apply itself (which spreads its last
// argument via ExpandList), a built-in operator name (inlined to its
// opcode), or a general user-procedure call through Call/OptCall.
func genApply(b *Builder, n *ast.Apply, tail bool) error {
	if ident, ok := n.Fn.(*ast.Ident); ok && !b.isBound(ident.Name) {
		if ident.Name == "apply" {
			return genApplySpecial(b, n, tail)
		}
		if info, ok := builtins[ident.Name]; ok {
			return genBuiltinCall(b, ident.Name, info, n.Args)
		}
	}
	return genApplyGeneral(b, n, tail)
}

// genApplyGeneral lowers a normal call: arguments evaluated in reverse
// source order (so the leftmost ends up nearest the top of the stack,
// matching the callee's left-to-right Def+Set parameter consumption), then
// the callee, then Call or OptCall depending on tail.
func genApplyGeneral(b *Builder, n *ast.Apply, tail bool) error {
	var exitLabel label
	if !tail {
		exitLabel = b.newLabel()
		b.emitJump(vm.PushReturnContext, exitLabel)
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		if err := genExpr(b, n.Args[i], false); err != nil {
			return err
		}
	}
	if err := genExpr(b, n.Fn, false); err != nil {
		return err
	}
	if tail {
		b.emit(vm.OptCall)
	} else {
		b.emit(vm.Call)
		b.markLabel(exitLabel)
	}
	return nil
}

// genApplySpecial lowers (apply proc arg... lst): proc and the fixed
// arguments are evaluated the same as any other call, but the final
// argument is evaluated once and spread by ExpandList instead of pushed as
// a single value.
func genApplySpecial(b *Builder, n *ast.Apply, tail bool) error {
	if len(n.Args) < 2 {
		return fmt.Errorf("apply: requires a procedure and a list argument")
	}
	proc := n.Args[0]
	mid := n.Args[1 : len(n.Args)-1]
	list := n.Args[len(n.Args)-1]

	var exitLabel label
	if !tail {
		exitLabel = b.newLabel()
		b.emitJump(vm.PushReturnContext, exitLabel)
	}
	if err := genExpr(b, list, false); err != nil {
		return err
	}
	b.emit(vm.ExpandList)
	for i := len(mid) - 1; i >= 0; i-- {
		if err := genExpr(b, mid[i], false); err != nil {
			return err
		}
	}
	if err := genExpr(b, proc, false); err != nil {
		return err
	}
	if tail {
		b.emit(vm.OptCall)
	} else {
		b.emit(vm.Call)
		b.markLabel(exitLabel)
	}
	return nil
}

// genBuiltinCall inlines a call to a built-in operator name directly to its
// opcode, skipping the Call protocol entirely. Binary opcodes pop their
// first-popped (top) operand as the leftmost source argument, so arguments
// are pushed in reverse order here too, same as genApplyGeneral.
func genBuiltinCall(b *Builder, name string, info builtinInfo, args []ast.Expr) error {
	if info.variadic {
		return genVariadicArith(b, name, info.op, args)
	}
	if len(args) != info.n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", name, info.n, len(args))
	}
	for i := len(args) - 1; i >= 0; i-- {
		if err := genExpr(b, args[i], false); err != nil {
			return err
		}
	}
	b.emit(info.op)
	return nil
}

// genVariadicArith folds +, -, *, / over any number of arguments. +/* allow
// zero arguments (identity 0/1); -// with exactly one argument negate/invert
// against that identity; two or more fold left-associatively, matching
// ordinary left-to-right evaluation of a chain of binary operations.
func genVariadicArith(b *Builder, name string, op vm.Opcode, args []ast.Expr) error {
	switch name {
	case "+", "*":
		identity := vm.IntVal(0)
		if name == "*" {
			identity = vm.IntVal(1)
		}
		if len(args) == 0 {
			b.emitPush(identity)
			return nil
		}
		return genLeftFold(b, op, args)

	case "-", "/":
		if len(args) == 0 {
			return fmt.Errorf("%s: requires at least 1 argument", name)
		}
		if len(args) == 1 {
			identity := vm.IntVal(0)
			if name == "/" {
				identity = vm.IntVal(1)
			}
			// Binary opcode: the leftmost (first) operand is nearest the
			// top, so the identity is pushed last (landing on top) and the
			// lone argument is pushed first (landing underneath),
			// computing identity OP arg -- e.g. 0 - x, or 1 / x.
			if err := genExpr(b, args[0], false); err != nil {
				return err
			}
			b.emitPush(identity)
			b.emit(op)
			return nil
		}
		return genLeftFold(b, op, args)
	}
	return fmt.Errorf("codegen: unknown variadic operator %s", name)
}

// genLeftFold evaluates args[0] op args[1] op args[2] ... left-associatively.
// There's no Swap opcode to reorder two already-stacked values, so the running
// accumulator can't simply be left on the stack while the next argument is
// pushed on top of it (that would put the new argument, not the accumulator,
// in the first/top operand position). Instead this recurses from the right:
// the last argument is pushed first (so it ends up deepest, as the second/
// below operand), then the fold of everything before it is computed on top
// of it (landing in the first/top operand position), then op combines them.
func genLeftFold(b *Builder, op vm.Opcode, args []ast.Expr) error {
	if len(args) == 1 {
		return genExpr(b, args[0], false)
	}
	last := args[len(args)-1]
	if err := genExpr(b, last, false); err != nil {
		return err
	}
	if err := genLeftFold(b, op, args[:len(args)-1]); err != nil {
		return err
	}
	b.emit(op)
	return nil
}

package codegen

import (
	"fmt"

	"github.com/wisp-lang/wisp/internal/ast"
	"github.com/wisp-lang/wisp/internal/vm"
)

// genSExp lowers a quoted datum to code that builds the equivalent runtime
// value. Quoted symbols become opaque Symbol data, not variable references,
// so their expansion context is irrelevant here (unlike *ast.Ident, which
// resolve hygienically) -- a macro template that quotes a renamed symbol
// still wants the plain surface name as the literal it produces.
func genSExp(b *Builder, d ast.SExp) error {
	switch n := d.(type) {
	case *ast.SExpInt:
		b.emitPush(vm.IntVal(n.Value))
		return nil
	case *ast.SExpFloat:
		b.emitPush(vm.FloatVal(n.Value))
		return nil
	case *ast.SExpBool:
		b.emitPush(vm.BoolVal(n.Value))
		return nil
	case *ast.SExpString:
		b.emitPush(vm.StringVal(n.Value))
		return nil
	case *ast.SExpSymbol:
		b.emitPush(vm.SymbolVal(n.Name))
		return nil
	case *ast.SExpNull:
		b.emitPush(vm.NullVal())
		return nil

	case *ast.SExpPair:
		// Cons pops its first/top operand as car and its second/below
		// operand as cdr, so cdr is evaluated (and pushed) first, landing
		// deeper, with car pushed second so it ends up on top.
		if err := genSExp(b, n.Cdr); err != nil {
			return err
		}
		if err := genSExp(b, n.Car); err != nil {
			return err
		}
		b.emit(vm.Cons)
		return nil
	}
	return fmt.Errorf("codegen: unknown quoted datum %T", d)
}

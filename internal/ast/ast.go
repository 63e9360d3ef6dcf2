// Package ast defines the syntax tree produced by internal/parser: nested
// variant types for top-level forms, expressions, quoted S-expressions, and
// bindings, exactly as described in SPEC_FULL.md §3 (DATA MODEL, "AST").
//
// Every identifier-carrying node stores the expansion context id stamped on
// it by the macro expander (0 for source written directly by the user), so
// internal/codegen can perform hygienic renaming without re-deriving it.
package ast

import "github.com/wisp-lang/wisp/internal/token"

// Node is the base interface implemented by every AST node; it exists
// mainly so error messages can point at a source position.
type Node interface {
	Pos() token.Token
}

// Program is the root of a parsed chunk: a sequence of top-level forms.
type Program struct {
	Forms []TopLevel
}

// TopLevel is a macro definition, a definition, a `load`, or a bare
// expression appearing at the top level of a program.
type TopLevel interface {
	Node
	topLevelNode()
}

// DefineSyntaxForm records that a macro was defined here. The macro table
// entry itself is built and owned by internal/macro during parsing; this
// node is kept only so the generator has something structurally present at
// the position a define-syntax form occupied (it lowers to nothing, per
// SPEC_FULL.md §7: "Code-gen errors: none by design").
type DefineSyntaxForm struct {
	Tok  token.Token
	Name string
}

func (n *DefineSyntaxForm) Pos() token.Token { return n.Tok }
func (*DefineSyntaxForm) topLevelNode()      {}

// LoadForm is `(load "path")`.
type LoadForm struct {
	Tok  token.Token
	Path Expr
}

func (n *LoadForm) Pos() token.Token { return n.Tok }
func (*LoadForm) topLevelNode()      {}

// TopLevelExpr wraps a bare expression so it satisfies TopLevel.
type TopLevelExpr struct {
	Expr Expr
}

func (n *TopLevelExpr) Pos() token.Token { return n.Expr.Pos() }
func (*TopLevelExpr) topLevelNode()      {}

// Define is the common interface of DefineVar and DefineFunc: both a
// variable binding and a function binding, usable at top level or as an
// internal definition at the head of a body.
type Define interface {
	TopLevel
	defineNode()
}

// DefineVar is `(define id exp)`.
type DefineVar struct {
	Tok   token.Token
	Name  *Ident
	Value Expr
}

func (n *DefineVar) Pos() token.Token { return n.Tok }
func (*DefineVar) topLevelNode()      {}
func (*DefineVar) defineNode()        {}

// DefineFunc is `(define (id args...) body)`, with an optional `. rest`.
type DefineFunc struct {
	Tok    token.Token
	Name   *Ident
	Params []*Ident
	Rest   *Ident // nil if not variadic
	Body   *Body
}

func (n *DefineFunc) Pos() token.Token { return n.Tok }
func (*DefineFunc) topLevelNode()      {}
func (*DefineFunc) defineNode()        {}

// Body is zero or more internal definitions followed by one or more
// expressions, per the grammar sketch in SPEC_FULL.md §4.1.
type Body struct {
	Defs  []Define
	Exprs []Expr // non-empty
}

// Binding is one `(id exp)` entry of a let/let*/letrec binding list.
type Binding struct {
	Name  *Ident
	Value Expr
}

// DoBinding is one `(id init step)` entry of a `do` form. Step is nil when
// the variable is not re-stepped each iteration (`(id init)`).
type DoBinding struct {
	Name *Ident
	Init Expr
	Step Expr
}

// CondClause is one non-else arm of a `cond` form.
type CondClause struct {
	Test Expr
	Then []Expr // non-empty
}

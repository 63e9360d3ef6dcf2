package ast

import "github.com/wisp-lang/wisp/internal/token"

// Expr is any expression node.
type Expr interface {
	Node
	exprNode()
}

// Ident is an identifier reference: a variable use, a bound name, or a
// built-in operator name. Ctx is the expansion context id stamped by the
// macro expander (0 for identifiers the user wrote directly).
type Ident struct {
	Tok token.Token
	Name string
	Ctx  int
}

func (n *Ident) Pos() token.Token { return n.Tok }
func (*Ident) exprNode()          {}

// IntLit, FloatLit, BoolLit and StringLit are self-evaluating constants.
type IntLit struct {
	Tok   token.Token
	Value int64
}

func (n *IntLit) Pos() token.Token { return n.Tok }
func (*IntLit) exprNode()          {}

type FloatLit struct {
	Tok   token.Token
	Value float64
}

func (n *FloatLit) Pos() token.Token { return n.Tok }
func (*FloatLit) exprNode()          {}

type BoolLit struct {
	Tok   token.Token
	Value bool
}

func (n *BoolLit) Pos() token.Token { return n.Tok }
func (*BoolLit) exprNode()          {}

type StringLit struct {
	Tok   token.Token
	Value string
}

func (n *StringLit) Pos() token.Token { return n.Tok }
func (*StringLit) exprNode()          {}

// Lambda is `(lambda arg body)`, where arg is either a single identifier
// (whole-arguments-as-list form) or a parameter list with an optional
// `. rest` tail.
type Lambda struct {
	Tok    token.Token
	Params []*Ident
	Rest   *Ident // nil unless variadic; if Params is empty and Rest is set with no dot, arg was a bare identifier
	Body   *Body
}

func (n *Lambda) Pos() token.Token { return n.Tok }
func (*Lambda) exprNode()          {}

// Apply is a function application `(func exps...)`.
type Apply struct {
	Tok  token.Token
	Fn   Expr
	Args []Expr
}

func (n *Apply) Pos() token.Token { return n.Tok }
func (*Apply) exprNode()          {}

// Quote is `(quote datum)` or `'datum`.
type Quote struct {
	Tok   token.Token
	Datum SExp
}

func (n *Quote) Pos() token.Token { return n.Tok }
func (*Quote) exprNode()          {}

// SetForm is `(set! id exp)`.
type SetForm struct {
	Tok   token.Token
	Name  *Ident
	Value Expr
}

func (n *SetForm) Pos() token.Token { return n.Tok }
func (*SetForm) exprNode()          {}

// LetForm is `(let bindings body)` or named `(let loop bindings body)`.
type LetForm struct {
	Tok      token.Token
	Name     *Ident // non-nil for named let
	Bindings []Binding
	Body     *Body
}

func (n *LetForm) Pos() token.Token { return n.Tok }
func (*LetForm) exprNode()          {}

// LetStarForm is `(let* bindings body)`.
type LetStarForm struct {
	Tok      token.Token
	Bindings []Binding
	Body     *Body
}

func (n *LetStarForm) Pos() token.Token { return n.Tok }
func (*LetStarForm) exprNode()          {}

// LetRecForm is `(letrec bindings body)`.
type LetRecForm struct {
	Tok      token.Token
	Bindings []Binding
	Body     *Body
}

func (n *LetRecForm) Pos() token.Token { return n.Tok }
func (*LetRecForm) exprNode()          {}

// IfForm is `(if cond then [else])`.
type IfForm struct {
	Tok  token.Token
	Cond Expr
	Then Expr
	Else Expr // nil if omitted
}

func (n *IfForm) Pos() token.Token { return n.Tok }
func (*IfForm) exprNode()          {}

// CondForm is `(cond clause... [else exps...])`.
type CondForm struct {
	Tok     token.Token
	Clauses []CondClause
	Else    []Expr // nil if no else clause
}

func (n *CondForm) Pos() token.Token { return n.Tok }
func (*CondForm) exprNode()          {}

// AndForm is `(and exps...)`.
type AndForm struct {
	Tok   token.Token
	Exprs []Expr
}

func (n *AndForm) Pos() token.Token { return n.Tok }
func (*AndForm) exprNode()          {}

// OrForm is `(or exps...)`.
type OrForm struct {
	Tok   token.Token
	Exprs []Expr
}

func (n *OrForm) Pos() token.Token { return n.Tok }
func (*OrForm) exprNode()          {}

// BeginForm is `(begin exps...)`.
type BeginForm struct {
	Tok   token.Token
	Exprs []Expr
}

func (n *BeginForm) Pos() token.Token { return n.Tok }
func (*BeginForm) exprNode()          {}

// DoForm is `(do bindings (test value...) body...)`.
type DoForm struct {
	Tok      token.Token
	Bindings []DoBinding
	Test     Expr
	Values   []Expr
	Body     []Expr
}

func (n *DoForm) Pos() token.Token { return n.Tok }
func (*DoForm) exprNode()          {}

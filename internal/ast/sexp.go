package ast

import "github.com/wisp-lang/wisp/internal/token"

// SExp is a quoted S-expression datum: what `quote`/`'` produces as data
// rather than code. Identifiers inside a quoted datum still record the
// expansion context id of their token, but internal/codegen ignores it: a
// quoted symbol always becomes its plain surface name.
type SExp interface {
	Node
	sexpNode()
}

// SExpInt, SExpFloat, SExpBool and SExpString are literal data.
type SExpInt struct {
	Tok   token.Token
	Value int64
}

func (n *SExpInt) Pos() token.Token { return n.Tok }
func (*SExpInt) sexpNode()          {}

type SExpFloat struct {
	Tok   token.Token
	Value float64
}

func (n *SExpFloat) Pos() token.Token { return n.Tok }
func (*SExpFloat) sexpNode()          {}

type SExpBool struct {
	Tok   token.Token
	Value bool
}

func (n *SExpBool) Pos() token.Token { return n.Tok }
func (*SExpBool) sexpNode()          {}

type SExpString struct {
	Tok   token.Token
	Value string
}

func (n *SExpString) Pos() token.Token { return n.Tok }
func (*SExpString) sexpNode()          {}

// SExpSymbol is a quoted identifier: it becomes a Symbol value named Name,
// not a variable reference. Ctx is recorded from the token but is not used
// to rename the symbol.
type SExpSymbol struct {
	Tok  token.Token
	Name string
	Ctx  int
}

func (n *SExpSymbol) Pos() token.Token { return n.Tok }
func (*SExpSymbol) sexpNode()          {}

// SExpPair is one cons cell of a quoted list/dotted pair.
type SExpPair struct {
	Tok token.Token
	Car SExp
	Cdr SExp
}

func (n *SExpPair) Pos() token.Token { return n.Tok }
func (*SExpPair) sexpNode()          {}

// SExpNull is the quoted empty list `()`.
type SExpNull struct {
	Tok token.Token
}

func (n *SExpNull) Pos() token.Token { return n.Tok }
func (*SExpNull) sexpNode()          {}

package parser

import (
	"fmt"

	"github.com/wisp-lang/wisp/internal/ast"
	"github.com/wisp-lang/wisp/internal/token"
)

// parseSExp reads one quoted datum: a self-evaluating literal, a symbol (any
// token whose literal text names it, including reserved words — 'if reads as
// the symbol "if"), a nested quote, or a (possibly dotted) list.
func (p *Parser) parseSExp() (ast.SExp, error) {
	t := p.cur()
	switch t.Type {
	case token.INT:
		p.advance()
		var v int64
		fmt.Sscanf(t.Literal, "%d", &v)
		return &ast.SExpInt{Tok: t, Value: v}, nil
	case token.FLOAT:
		p.advance()
		var v float64
		fmt.Sscanf(t.Literal, "%g", &v)
		return &ast.SExpFloat{Tok: t, Value: v}, nil
	case token.STRING:
		p.advance()
		return &ast.SExpString{Tok: t, Value: t.Literal}, nil
	case token.TRUE:
		p.advance()
		return &ast.SExpBool{Tok: t, Value: true}, nil
	case token.FALSE:
		p.advance()
		return &ast.SExpBool{Tok: t, Value: false}, nil
	case token.QUOTE:
		p.advance()
		inner, err := p.parseSExp()
		if err != nil {
			return nil, err
		}
		return &ast.SExpPair{
			Tok: t,
			Car: &ast.SExpSymbol{Tok: t, Name: "quote", Ctx: t.ExpansionCtx},
			Cdr: &ast.SExpPair{Tok: t, Car: inner, Cdr: &ast.SExpNull{Tok: t}},
		}, nil
	case token.LPAREN:
		return p.parseSExpList()
	case token.RPAREN, token.DOT, token.ELLIPSIS:
		return nil, fmt.Errorf("line %d: unexpected %q in quoted datum", t.Line, t.Lexeme)
	case token.EOF:
		if !p.Strict {
			return nil, fmt.Errorf("%w", ErrIncompleteInput)
		}
		return nil, fmt.Errorf("line %d: unexpected end of input in quoted datum", t.Line)
	default:
		// Any other token, including reserved words, reads as a plain symbol
		// when it appears as quoted data.
		p.advance()
		return &ast.SExpSymbol{Tok: t, Name: t.Lexeme, Ctx: t.ExpansionCtx}, nil
	}
}

func (p *Parser) parseSExpList() (ast.SExp, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.RPAREN {
		p.advance()
		return &ast.SExpNull{Tok: openTok}, nil
	}
	var items []ast.SExp
	var tail ast.SExp = &ast.SExpNull{Tok: openTok}
	for {
		if p.cur().Type == token.DOT {
			p.advance()
			t, err := p.parseSExp()
			if err != nil {
				return nil, err
			}
			tail = t
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			break
		}
		item, err := p.parseSExp()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.cur().Type == token.RPAREN {
			p.advance()
			break
		}
		if p.cur().Type == token.EOF {
			if !p.Strict {
				return nil, fmt.Errorf("%w", ErrIncompleteInput)
			}
			return nil, fmt.Errorf("line %d: unterminated quoted list", openTok.Line)
		}
	}
	result := tail
	for i := len(items) - 1; i >= 0; i-- {
		result = &ast.SExpPair{Tok: items[i].Pos(), Car: items[i], Cdr: result}
	}
	return result, nil
}

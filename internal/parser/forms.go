package parser

import (
	"fmt"

	"github.com/wisp-lang/wisp/internal/ast"
	"github.com/wisp-lang/wisp/internal/token"
)

// parseExpr parses one expression: an atom, a quote shorthand, or a
// parenthesized form.
func (p *Parser) parseExpr() (ast.Expr, error) {
	t := p.cur()
	switch t.Type {
	case token.INT:
		p.advance()
		var v int64
		fmt.Sscanf(t.Literal, "%d", &v)
		return &ast.IntLit{Tok: t, Value: v}, nil
	case token.FLOAT:
		p.advance()
		var v float64
		fmt.Sscanf(t.Literal, "%g", &v)
		return &ast.FloatLit{Tok: t, Value: v}, nil
	case token.STRING:
		p.advance()
		return &ast.StringLit{Tok: t, Value: t.Literal}, nil
	case token.TRUE:
		p.advance()
		return &ast.BoolLit{Tok: t, Value: true}, nil
	case token.FALSE:
		p.advance()
		return &ast.BoolLit{Tok: t, Value: false}, nil
	case token.IDENT:
		p.advance()
		return ident(t), nil
	case token.QUOTE:
		p.advance()
		datum, err := p.parseSExp()
		if err != nil {
			return nil, err
		}
		return &ast.Quote{Tok: t, Datum: datum}, nil
	case token.LPAREN:
		return p.parseList()
	case token.EOF:
		if !p.Strict {
			return nil, fmt.Errorf("%w", ErrIncompleteInput)
		}
		return nil, fmt.Errorf("line %d: unexpected end of input", t.Line)
	default:
		return nil, fmt.Errorf("line %d: unexpected token %q in expression position", t.Line, t.Lexeme)
	}
}

// parseList dispatches a parenthesized form by peeking at its head token,
// without consuming anything itself; each concrete parse method below
// consumes its own leading '(' and keyword.
func (p *Parser) parseList() (ast.Expr, error) {
	switch p.peekType(1) {
	case token.QUOTE_KW:
		return p.parseQuoteForm()
	case token.LAMBDA:
		return p.parseLambda()
	case token.SET:
		return p.parseSet()
	case token.LET:
		return p.parseLet()
	case token.LET_STAR:
		return p.parseLetStar()
	case token.LETREC:
		return p.parseLetRec()
	case token.IF:
		return p.parseIf()
	case token.COND:
		return p.parseCond()
	case token.AND:
		return p.parseAndOr(true)
	case token.OR:
		return p.parseAndOr(false)
	case token.BEGIN:
		return p.parseBegin()
	case token.DO:
		return p.parseDo()
	case token.IDENT:
		if m, ok := p.macros.Lookup(p.toks[p.pos+1].Lexeme); ok {
			return p.expandAndReparse(m)
		}
		return p.parseApplication()
	default:
		return p.parseApplication()
	}
}

func (p *Parser) parseQuoteForm() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.QUOTE_KW); err != nil {
		return nil, err
	}
	datum, err := p.parseSExp()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.Quote{Tok: openTok, Datum: datum}, nil
}

func (p *Parser) parseApplication() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if p.cur().Type == token.RPAREN {
		return nil, fmt.Errorf("line %d: empty combination '()' is not a valid expression", openTok.Line)
	}
	fn, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var args []ast.Expr
	for p.cur().Type != token.RPAREN {
		if p.cur().Type == token.EOF {
			if !p.Strict {
				return nil, fmt.Errorf("%w", ErrIncompleteInput)
			}
			return nil, fmt.Errorf("line %d: unterminated application", openTok.Line)
		}
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	p.advance() // ')'
	return &ast.Apply{Tok: openTok, Fn: fn, Args: args}, nil
}

// parseParamList parses `(id... [. rest])` or a bare identifier (the
// whole-arguments-as-list form, equivalent to zero fixed params plus rest).
func (p *Parser) parseParamList() ([]*ast.Ident, *ast.Ident, error) {
	if p.cur().Type == token.IDENT {
		t := p.advance()
		return nil, ident(t), nil
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, nil, err
	}
	var params []*ast.Ident
	var rest *ast.Ident
	for p.cur().Type != token.RPAREN {
		if p.cur().Type == token.DOT {
			p.advance()
			rt, err := p.expect(token.IDENT)
			if err != nil {
				return nil, nil, err
			}
			rest = ident(rt)
			break
		}
		pt, err := p.expect(token.IDENT)
		if err != nil {
			return nil, nil, err
		}
		params = append(params, ident(pt))
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, nil, err
	}
	return params, rest, nil
}

func (p *Parser) parseLambda() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LAMBDA); err != nil {
		return nil, err
	}
	params, rest, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.Lambda{Tok: openTok, Params: params, Rest: rest, Body: body}, nil
}

func (p *Parser) parseSet() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.SET); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.SetForm{Tok: openTok, Name: ident(nameTok), Value: val}, nil
}

func (p *Parser) parseBindings() ([]ast.Binding, error) {
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var out []ast.Binding
	for p.cur().Type != token.RPAREN {
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		out = append(out, ast.Binding{Name: ident(nameTok), Value: val})
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Parser) parseLet() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LET); err != nil {
		return nil, err
	}
	var name *ast.Ident
	if p.cur().Type == token.IDENT {
		t := p.advance()
		name = ident(t)
	}
	bindings, err := p.parseBindings()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.LetForm{Tok: openTok, Name: name, Bindings: bindings, Body: body}, nil
}

func (p *Parser) parseLetStar() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LET_STAR); err != nil {
		return nil, err
	}
	bindings, err := p.parseBindings()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.LetStarForm{Tok: openTok, Bindings: bindings, Body: body}, nil
}

func (p *Parser) parseLetRec() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LETREC); err != nil {
		return nil, err
	}
	bindings, err := p.parseBindings()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.LetRecForm{Tok: openTok, Bindings: bindings, Body: body}, nil
}

func (p *Parser) parseIf() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.IF); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var els ast.Expr
	if p.cur().Type != token.RPAREN {
		els, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.IfForm{Tok: openTok, Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseCond() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.COND); err != nil {
		return nil, err
	}
	var clauses []ast.CondClause
	var elseExprs []ast.Expr
	for p.cur().Type != token.RPAREN {
		clauseTok, err := p.expect(token.LPAREN)
		if err != nil {
			return nil, err
		}
		if p.cur().Type == token.ELSE {
			p.advance()
			var exprs []ast.Expr
			for p.cur().Type != token.RPAREN {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				exprs = append(exprs, e)
			}
			p.advance() // ')'
			elseExprs = exprs
			if p.cur().Type != token.RPAREN {
				return nil, fmt.Errorf("line %d: 'else' must be the last cond clause", clauseTok.Line)
			}
			break
		}
		test, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.cur().Type == token.IDENT && p.cur().Lexeme == "=>" {
			return nil, fmt.Errorf("line %d: cond '=>' clauses are not supported", p.cur().Line)
		}
		var thenExprs []ast.Expr
		for p.cur().Type != token.RPAREN {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			thenExprs = append(thenExprs, e)
		}
		if len(thenExprs) == 0 {
			return nil, fmt.Errorf("line %d: cond clause has an empty body", clauseTok.Line)
		}
		p.advance() // ')'
		clauses = append(clauses, ast.CondClause{Test: test, Then: thenExprs})
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.CondForm{Tok: openTok, Clauses: clauses, Else: elseExprs}, nil
}

func (p *Parser) parseAndOr(isAnd bool) (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if isAnd {
		if _, err := p.expect(token.AND); err != nil {
			return nil, err
		}
	} else {
		if _, err := p.expect(token.OR); err != nil {
			return nil, err
		}
	}
	var exprs []ast.Expr
	for p.cur().Type != token.RPAREN {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	if isAnd {
		return &ast.AndForm{Tok: openTok, Exprs: exprs}, nil
	}
	return &ast.OrForm{Tok: openTok, Exprs: exprs}, nil
}

func (p *Parser) parseBegin() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.BEGIN); err != nil {
		return nil, err
	}
	var exprs []ast.Expr
	for p.cur().Type != token.RPAREN {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.BeginForm{Tok: openTok, Exprs: exprs}, nil
}

func (p *Parser) parseDo() (ast.Expr, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.DO); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil {
		return nil, err
	}
	var bindings []ast.DoBinding
	for p.cur().Type != token.RPAREN {
		if _, err := p.expect(token.LPAREN); err != nil {
			return nil, err
		}
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		var step ast.Expr
		if p.cur().Type != token.RPAREN {
			step, err = p.parseExpr()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		bindings = append(bindings, ast.DoBinding{Name: ident(nameTok), Init: init, Step: step})
	}
	if _, err := p.expect(token.RPAREN); err != nil { // close bindings list
		return nil, err
	}
	if _, err := p.expect(token.LPAREN); err != nil { // open (test value...)
		return nil, err
	}
	test, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var values []ast.Expr
	for p.cur().Type != token.RPAREN {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	var body []ast.Expr
	for p.cur().Type != token.RPAREN {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body = append(body, e)
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.DoForm{Tok: openTok, Bindings: bindings, Test: test, Values: values, Body: body}, nil
}

// parseDefine recognizes both `(define id exp)` and
// `(define (id args... [. rest]) body)`.
func (p *Parser) parseDefine() (ast.TopLevel, error) {
	openTok, err := p.expect(token.LPAREN)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.DEFINE); err != nil {
		return nil, err
	}
	if p.cur().Type == token.LPAREN {
		p.advance()
		nameTok, err := p.expect(token.IDENT)
		if err != nil {
			return nil, err
		}
		var params []*ast.Ident
		var rest *ast.Ident
		for p.cur().Type != token.RPAREN {
			if p.cur().Type == token.DOT {
				p.advance()
				rt, err := p.expect(token.IDENT)
				if err != nil {
					return nil, err
				}
				rest = ident(rt)
				break
			}
			pt, err := p.expect(token.IDENT)
			if err != nil {
				return nil, err
			}
			params = append(params, ident(pt))
		}
		if _, err := p.expect(token.RPAREN); err != nil { // close param list
			return nil, err
		}
		body, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil { // close define
			return nil, err
		}
		return &ast.DefineFunc{Tok: openTok, Name: ident(nameTok), Params: params, Rest: rest, Body: body}, nil
	}
	nameTok, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RPAREN); err != nil {
		return nil, err
	}
	return &ast.DefineVar{Tok: openTok, Name: ident(nameTok), Value: val}, nil
}

// parseBody parses zero or more internal `(define ...)` forms followed by
// one or more expressions, per the grammar sketch in SPEC_FULL.md §4.1.
func (p *Parser) parseBody() (*ast.Body, error) {
	body := &ast.Body{}
	for p.cur().Type == token.LPAREN && p.peekType(1) == token.DEFINE {
		d, err := p.parseDefine()
		if err != nil {
			return nil, err
		}
		body.Defs = append(body.Defs, d.(ast.Define))
	}
	for p.cur().Type != token.RPAREN {
		if p.cur().Type == token.EOF {
			if !p.Strict {
				return nil, fmt.Errorf("%w", ErrIncompleteInput)
			}
			return nil, fmt.Errorf("line %d: unterminated body", p.cur().Line)
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body.Exprs = append(body.Exprs, e)
	}
	if len(body.Exprs) == 0 {
		return nil, fmt.Errorf("line %d: a body must contain at least one expression", p.cur().Line)
	}
	return body, nil
}

package macro

import (
	"fmt"

	"github.com/wisp-lang/wisp/internal/token"
)

// Expand tries each of m's rules in order against call (the full macro
// invocation chunk, head included) and returns the token stream the
// matching rule's template rewrites to, with a fresh expansion context id
// stamped onto every template token it emits — except inside quoted
// regions, whose tokens are stamped with context 0 so quoted symbols
// remain literal. Substituted (pattern-bound) tokens keep the context id
// they already carried at the call site.
//
// If no rule matches, Expand reports an invalid-syntax error: per
// spec.md §4.1, match failure falls through rule-by-rule, and only
// exhausting every rule is an error.
func (t *Table) Expand(m *Macro, call Chunk) ([]token.Token, error) {
	for _, rule := range m.Rules {
		b, ok, err := matchRule(m, rule, call)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ctx := t.NewContext()
		out, err := instantiate(rule.Template, b, ctx, false)
		if err != nil {
			return nil, err
		}
		return out.Flatten(), nil
	}
	return nil, fmt.Errorf("line %d: no syntax-rules pattern for '%s' matches this use", call.Tok.Line, m.Name)
}

// instantiate builds the expanded chunk tree for a template chunk,
// substituting pattern bindings and stamping fresh-context ids onto every
// token the template itself contributes.
func instantiate(c Chunk, b *bindings, ctx int, inQuote bool) (Chunk, error) {
	switch c.Kind {
	case QuoteChunk:
		inner, err := instantiate(*c.Inner, b, ctx, true)
		if err != nil {
			return Chunk{}, err
		}
		tok := c.Tok
		tok.ExpansionCtx = 0
		return Chunk{Kind: QuoteChunk, Tok: tok, Inner: &inner}, nil

	case AtomChunk:
		if c.Tok.Type == token.ELLIPSIS {
			return Chunk{}, fmt.Errorf("line %d: '...' may only appear as a list element in a syntax-rules template", c.Tok.Line)
		}
		if c.Tok.Type == token.IDENT {
			if bound, ok := b.single[c.Tok.Lexeme]; ok {
				return bound, nil
			}
		}
		tok := c.Tok
		if inQuote {
			tok.ExpansionCtx = 0
		} else {
			tok.ExpansionCtx = ctx
		}
		return Chunk{Kind: AtomChunk, Tok: tok}, nil

	case ListChunk:
		var items []Chunk
		for _, item := range c.Items {
			if item.Kind == AtomChunk && item.Tok.Type == token.ELLIPSIS {
				if !b.hasMulti {
					return Chunk{}, fmt.Errorf("line %d: '...' in template has no matching '...' in pattern", item.Tok.Line)
				}
				items = append(items, b.multi...)
				continue
			}
			inst, err := instantiate(item, b, ctx, inQuote)
			if err != nil {
				return Chunk{}, err
			}
			items = append(items, inst)
		}
		open, close := c.Tok, c.CloseTok
		if inQuote {
			open.ExpansionCtx, close.ExpansionCtx = 0, 0
		} else {
			open.ExpansionCtx, close.ExpansionCtx = ctx, ctx
		}
		return Chunk{Kind: ListChunk, Tok: open, CloseTok: close, Items: items}, nil

	default:
		return c, nil
	}
}

package macro

import (
	"fmt"

	"github.com/wisp-lang/wisp/internal/token"
)

// bindings holds the result of a successful pattern match: single-chunk
// substitutions plus the one allowed `...` multi-chunk collection.
type bindings struct {
	single map[string]Chunk
	multi  []Chunk // bound to the "..." key; nil if the rule has no ellipsis
	hasMulti bool
}

// matchRule attempts to match call (the macro invocation's own chunk,
// including its head) against rule.Pattern. The pattern's first item is
// conventionally `_`, matching the invocation's own name.
func matchRule(m *Macro, rule Rule, call Chunk) (*bindings, bool, error) {
	if rule.Pattern.Kind != ListChunk || call.Kind != ListChunk {
		return nil, false, nil
	}
	b := &bindings{single: make(map[string]Chunk)}
	ok, err := matchList(m, rule.Pattern.Items, call.Items, b)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

// matchList matches a pattern chunk list against a call-site chunk list.
// A trailing `...` pattern item collects every remaining call-site chunk;
// spec.md's open questions leave nested ellipses unspecified, so this
// implementation rejects a non-trailing `...` rather than guessing at its
// semantics.
func matchList(m *Macro, pattern, call []Chunk, b *bindings) (bool, error) {
	i, j := 0, 0
	for i < len(pattern) {
		p := pattern[i]
		if p.Kind == AtomChunk && p.Tok.Type == token.ELLIPSIS {
			if i != len(pattern)-1 {
				return false, fmt.Errorf("line %d: nested or non-trailing '...' in syntax-rules pattern is not supported", p.Tok.Line)
			}
			if b.hasMulti {
				return false, fmt.Errorf("line %d: a pattern may contain at most one '...'", p.Tok.Line)
			}
			b.multi = append([]Chunk{}, call[j:]...)
			b.hasMulti = true
			j = len(call)
			i++
			continue
		}
		if j >= len(call) {
			return false, nil
		}
		ok, err := matchChunk(m, p, call[j], b)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		i++
		j++
	}
	return j == len(call), nil
}

func matchChunk(m *Macro, p, c Chunk, b *bindings) (bool, error) {
	switch p.Kind {
	case AtomChunk:
		if p.Tok.Type == token.IDENT {
			if p.Tok.Lexeme == "_" {
				return true, nil
			}
			if m.Keywords[p.Tok.Lexeme] {
				name, ok := c.IsIdent()
				return ok && name == p.Tok.Lexeme, nil
			}
			b.single[p.Tok.Lexeme] = c
			return true, nil
		}
		// A literal constant in pattern position must match the same literal.
		return c.Kind == AtomChunk && c.Tok.Type == p.Tok.Type && c.Tok.Lexeme == p.Tok.Lexeme, nil
	case ListChunk:
		if c.Kind != ListChunk {
			return false, nil
		}
		return matchList(m, p.Items, c.Items, b)
	case QuoteChunk:
		if c.Kind != QuoteChunk {
			return false, nil
		}
		return matchChunk(m, *p.Inner, *c.Inner, b)
	default:
		return false, nil
	}
}

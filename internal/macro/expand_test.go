package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-lang/wisp/internal/lexer"
	"github.com/wisp-lang/wisp/internal/token"
)

// mustChunk tokenizes src and reads a single chunk from the front of it,
// the same way the parser feeds a macro's pattern, template, or call-site
// text to ReadChunk.
func mustChunk(t *testing.T, src string) Chunk {
	t.Helper()
	toks, err := lexer.Tokenize(src)
	require.NoError(t, err)
	c, _, err := ReadChunk(toks, 0)
	require.NoError(t, err)
	return c
}

func findToken(toks []token.Token, lexeme string) (token.Token, bool) {
	for _, tok := range toks {
		if tok.Lexeme == lexeme {
			return tok, true
		}
	}
	return token.Token{}, false
}

func TestExpand_TwoIndependentExpansionsDoNotCrossCapture(t *testing.T) {
	table := NewTable()
	table.Define("my-let1", nil, []Rule{{
		Pattern:  mustChunk(t, "(_ v body)"),
		Template: mustChunk(t, "(let ((tmp v)) body)"),
	}})
	m, ok := table.Lookup("my-let1")
	require.True(t, ok)

	out1, err := table.Expand(m, mustChunk(t, "(my-let1 1 x)"))
	require.NoError(t, err)
	out2, err := table.Expand(m, mustChunk(t, "(my-let1 2 y)"))
	require.NoError(t, err)

	tmp1, ok := findToken(out1, "tmp")
	require.True(t, ok)
	tmp2, ok := findToken(out2, "tmp")
	require.True(t, ok)

	assert.NotZero(t, tmp1.ExpansionCtx, "the template's own tmp is stamped with a fresh, non-reader context")
	assert.NotZero(t, tmp2.ExpansionCtx)
	assert.NotEqual(t, tmp1.ExpansionCtx, tmp2.ExpansionCtx, "two independent expansions of the same macro must not share a context, or their tmps would collide")

	one, ok := findToken(out1, "1")
	require.True(t, ok)
	x, ok := findToken(out1, "x")
	require.True(t, ok)
	assert.Zero(t, one.ExpansionCtx, "a pattern-substituted call-site token keeps its own (reader) context rather than being stamped")
	assert.Zero(t, x.ExpansionCtx)
}

func TestExpand_NestedPatternBindings(t *testing.T) {
	table := NewTable()
	table.Define("my-if", nil, []Rule{{
		Pattern:  mustChunk(t, "(_ (a b) c)"),
		Template: mustChunk(t, "(if a b c)"),
	}})
	m, ok := table.Lookup("my-if")
	require.True(t, ok)

	out, err := table.Expand(m, mustChunk(t, "(my-if (test then) else-branch)"))
	require.NoError(t, err)

	var lexemes []string
	for _, tok := range out {
		lexemes = append(lexemes, tok.Lexeme)
	}
	assert.Equal(t, []string{"(", "if", "test", "then", "else-branch", ")"}, lexemes,
		"bindings captured from a nested (a b) sub-pattern substitute at their own template position")
}

func TestExpand_SingleTrailingEllipsisCollectsRemainingArgs(t *testing.T) {
	table := NewTable()
	table.Define("my-list", nil, []Rule{{
		Pattern:  mustChunk(t, "(_ x ...)"),
		Template: mustChunk(t, "(list x ...)"),
	}})
	m, ok := table.Lookup("my-list")
	require.True(t, ok)

	out, err := table.Expand(m, mustChunk(t, "(my-list 1 2 3)"))
	require.NoError(t, err)

	var lexemes []string
	for _, tok := range out {
		lexemes = append(lexemes, tok.Lexeme)
	}
	assert.Equal(t, []string{"(", "list", "1", "2", "3", ")"}, lexemes)
}

func TestExpand_NoMatchingRuleErrors(t *testing.T) {
	table := NewTable()
	table.Define("my-one-arg", nil, []Rule{{
		Pattern:  mustChunk(t, "(_ v)"),
		Template: mustChunk(t, "v"),
	}})
	m, ok := table.Lookup("my-one-arg")
	require.True(t, ok)

	_, err := table.Expand(m, mustChunk(t, "(my-one-arg 1 2)"))
	assert.Error(t, err)
}

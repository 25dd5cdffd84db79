package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string, flags Flags) []Token {
	t.Helper()
	l := New(src, nil, flags)
	var toks []Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Kind == End {
			break
		}
	}
	return toks
}

func TestLexSimpleArithmetic(t *testing.T) {
	toks := lexAll(t, "1 + 2 * 3", 0)
	kinds := kindsOf(toks)
	assert.Equal(t, []Kind{Num, Plus, Num, Star, Num, End}, kinds)
}

func TestLexKeywordsVsIdentifiers(t *testing.T) {
	toks := lexAll(t, "if else var while for continue break return foo", 0)
	kinds := kindsOf(toks)
	assert.Equal(t, []Kind{KwIf, KwElse, KwVar, KwWhile, KwFor, KwContinue, KwBreak, KwReturn, Ident, End}, kinds)
}

func TestLexMemoryKey(t *testing.T) {
	toks := lexAll(t, "$hp", 0)
	require.Equal(t, Key, toks[0].Kind)
	assert.NotZero(t, toks[0].Hash)
}

func TestLexCompoundAssignOperators(t *testing.T) {
	toks := lexAll(t, "+= -= *= /= %= ??=", 0)
	kinds := kindsOf(toks)
	assert.Equal(t, []Kind{PlusAssign, MinusAssign, StarAssign, SlashAssign, PercentAssign, CoalesceAssign, End}, kinds)
}

func TestLexStringWithEscapes(t *testing.T) {
	toks := lexAll(t, `"a\nb\tc\"d"`, 0)
	require.Equal(t, Str, toks[0].Kind)
	assert.Equal(t, "a\nb\tc\"d", toks[0].Text)
}

func TestLexStringUnicodeEscape(t *testing.T) {
	toks := lexAll(t, "\"\\u0041\"", 0)
	require.Equal(t, Str, toks[0].Kind)
	assert.Equal(t, "A", toks[0].Text)
}

func TestLexUnterminatedStringIsError(t *testing.T) {
	toks := lexAll(t, `"abc`, 0)
	require.Equal(t, ErrorTok, toks[0].Kind)
	assert.Equal(t, ErrUnterminatedString, toks[0].ErrK)
}

func TestLexNumberWithExponent(t *testing.T) {
	toks := lexAll(t, "1.5e-3", 0)
	require.Equal(t, Num, toks[0].Kind)
	assert.InDelta(t, 1.5e-3, toks[0].NumVal, 1e-12)
}

func TestLexCommentsAndNewlinesSkippedByDefault(t *testing.T) {
	toks := lexAll(t, "1 // comment\n+ 2", 0)
	kinds := kindsOf(toks)
	assert.Equal(t, []Kind{Num, Plus, Num, End}, kinds)
}

func TestLexCommentsAndNewlinesEmittedWhenRequested(t *testing.T) {
	toks := lexAll(t, "1 // c\n+2", EmitNewline|EmitComment)
	kinds := kindsOf(toks)
	assert.Equal(t, []Kind{Num, Comment, Newline, Plus, Num, End}, kinds)
}

func TestLexBlockComment(t *testing.T) {
	toks := lexAll(t, "1 /* skip\nme */ + 2", 0)
	kinds := kindsOf(toks)
	assert.Equal(t, []Kind{Num, Plus, Num, End}, kinds)
}

func TestLexUnexpectedCharIsError(t *testing.T) {
	toks := lexAll(t, "1 ~ 2", 0)
	require.Len(t, toks, 4)
	assert.Equal(t, ErrorTok, toks[1].Kind)
	assert.Equal(t, ErrUnexpectedChar, toks[1].ErrK)
}

func kindsOf(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

package lexer_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/saruga/abcc/internal/diag"
	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/lexer"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/test"
)

func newLexer(t *testing.T, src string) *lexer.Lexer {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.abc")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	strs := intern.NewStore()
	r := source.NewReader(strs, nil)
	if err := r.OpenRoot(path); err != nil {
		t.Fatal(err)
	}
	sink := diag.NewSink(func(intern.String) string { return src })
	m := source.NewMacros()
	return lexer.New(r, m, strs, sink)
}

func newLexerWithSink(t *testing.T, src string, sink *diag.Sink) *lexer.Lexer {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.abc")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	strs := intern.NewStore()
	r := source.NewReader(strs, nil)
	if err := r.OpenRoot(path); err != nil {
		t.Fatal(err)
	}
	m := source.NewMacros()
	return lexer.New(r, m, strs, sink)
}

func kinds(t *testing.T, src string) []lexer.Kind {
	t.Helper()
	l := newLexer(t, src)
	var out []lexer.Kind
	for {
		tok := l.Next()
		out = append(out, tok.Kind)
		if tok.Kind == lexer.EOF {
			break
		}
	}
	return out
}

func assertKinds(t *testing.T, got, want []lexer.Kind) {
	t.Helper()
	test.AssertEqual(t, len(got), len(want))
	for i := range want {
		if i < len(got) {
			test.AssertEqual(t, got[i], want[i])
		}
	}
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	got := kinds(t, "fn main array of x")
	want := []lexer.Kind{lexer.KwFn, lexer.Ident, lexer.KwArray, lexer.KwOf, lexer.Ident, lexer.EOF}
	assertKinds(t, got, want)
}

func TestMultiCharOperators(t *testing.T) {
	got := kinds(t, "<<= >> -> ++ == != <=")
	want := []lexer.Kind{lexer.ShlEq, lexer.Shr, lexer.Arrow, lexer.PlusPlus, lexer.EqEq, lexer.NotEq, lexer.LtEq, lexer.EOF}
	assertKinds(t, got, want)
}

func TestSingleCharOperatorsAndPunctuators(t *testing.T) {
	got := kinds(t, "( ) { } [ ] , ; : ? . ~")
	want := []lexer.Kind{
		lexer.LParen, lexer.RParen, lexer.LBrace, lexer.RBrace,
		lexer.LBracket, lexer.RBracket, lexer.Comma, lexer.Semicolon,
		lexer.Colon, lexer.Question, lexer.Dot, lexer.Tilde, lexer.EOF,
	}
	assertKinds(t, got, want)
}

func TestEllipsis(t *testing.T) {
	got := kinds(t, "...")
	want := []lexer.Kind{lexer.Ellipsis, lexer.EOF}
	assertKinds(t, got, want)
}

func TestHexAndOctalIntegerLiterals(t *testing.T) {
	l := newLexer(t, "0x1F 017 42")

	tok := l.Next()
	test.AssertEqual(t, tok.Kind, lexer.IntLiteral)
	test.AssertEqual(t, tok.IntValue, int64(31))

	tok = l.Next()
	test.AssertEqual(t, tok.Kind, lexer.IntLiteral)
	test.AssertEqual(t, tok.IntValue, int64(15))

	tok = l.Next()
	test.AssertEqual(t, tok.Kind, lexer.IntLiteral)
	test.AssertEqual(t, tok.IntValue, int64(42))
}

func TestIntLiteralOverflowWarnsAndClamps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.abc")
	src := "99999999999999999999"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	strs := intern.NewStore()
	r := source.NewReader(strs, nil)
	if err := r.OpenRoot(path); err != nil {
		t.Fatal(err)
	}
	sink := diag.NewSink(func(intern.String) string { return src })
	m := source.NewMacros()
	l := lexer.New(r, m, strs, sink)

	tok := l.Next()
	test.AssertEqual(t, tok.Kind, lexer.IntLiteral)
	test.AssertEqual(t, tok.IntValue, int64(math.MaxInt64))

	diags := sink.All()
	test.AssertEqual(t, len(diags), 1)
	test.AssertEqual(t, diags[0].Severity, diag.Warning)
}

func TestIntLiteralWithinRangeDoesNotWarn(t *testing.T) {
	sink := diag.NewSink(nil)
	l := newLexerWithSink(t, "42", sink)

	tok := l.Next()
	test.AssertEqual(t, tok.Kind, lexer.IntLiteral)
	test.AssertEqual(t, tok.IntValue, int64(42))
	test.AssertEqual(t, len(sink.All()), 0)
}

func TestFloatLiteralWithExponent(t *testing.T) {
	l := newLexer(t, "1.5e2")
	tok := l.Next()
	test.AssertEqual(t, tok.Kind, lexer.FloatLiteral)
	test.AssertEqual(t, tok.FloatValue, 150.0)
}

func TestFloatLiteralPlainDecimal(t *testing.T) {
	l := newLexer(t, "3.25")
	tok := l.Next()
	test.AssertEqual(t, tok.Kind, lexer.FloatLiteral)
	test.AssertEqual(t, tok.FloatValue, 3.25)
}

func TestStringLiteralCooksEscapes(t *testing.T) {
	l := newLexer(t, `"a\nb\x41"`)
	tok := l.Next()
	test.AssertEqual(t, tok.Kind, lexer.StringLiteral)
	test.AssertEqual(t, tok.Cooked, "a\nbA")
}

func TestCharLiteralCooksOctalEscape(t *testing.T) {
	l := newLexer(t, `'\101'`)
	tok := l.Next()
	test.AssertEqual(t, tok.Kind, lexer.CharLiteral)
	test.AssertEqual(t, tok.IntValue, int64('A'))
}

func TestCharLiteralPlain(t *testing.T) {
	l := newLexer(t, "'x'")
	tok := l.Next()
	test.AssertEqual(t, tok.Kind, lexer.CharLiteral)
	test.AssertEqual(t, tok.IntValue, int64('x'))
}

func TestLineCommentIsSkipped(t *testing.T) {
	got := kinds(t, "x // trailing comment\n+")
	want := []lexer.Kind{lexer.Ident, lexer.Plus, lexer.EOF}
	assertKinds(t, got, want)
}

func TestBlockCommentIsSkipped(t *testing.T) {
	got := kinds(t, "x /* comment \n spanning lines */ +")
	want := []lexer.Kind{lexer.Ident, lexer.Plus, lexer.EOF}
	assertKinds(t, got, want)
}

func TestDefineRewritesIdentifier(t *testing.T) {
	l := newLexer(t, "@define FOO 1\nFOO")
	tok := l.Next()
	// A macro-rewritten identifier stays an Ident token; only its Cooked
	// text changes, mirroring how a consumer reads Cooked rather than Raw
	// when resolving a name.
	test.AssertEqual(t, tok.Kind, lexer.Ident)
	test.AssertEqual(t, tok.Raw, "FOO")
	test.AssertEqual(t, tok.Cooked, "1")
}

func TestDefineToEmptyExpandsAway(t *testing.T) {
	got := kinds(t, "@define EMPTY \nx EMPTY y")
	want := []lexer.Kind{lexer.Ident, lexer.Ident, lexer.EOF}
	assertKinds(t, got, want)
}

func TestIfdefSuppressesFalseBranch(t *testing.T) {
	got := kinds(t, "@ifdef NOPE\nx\n@endif\ny")
	want := []lexer.Kind{lexer.Ident, lexer.EOF}
	assertKinds(t, got, want)
}

func TestIfdefAllowsTrueBranch(t *testing.T) {
	got := kinds(t, "@define FEATURE \n@ifdef FEATURE\nx\n@endif\ny")
	want := []lexer.Kind{lexer.Ident, lexer.Ident, lexer.EOF}
	assertKinds(t, got, want)
}

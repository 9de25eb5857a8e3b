package lexer

import (
	"testing"

	"github.com/parisxmas/esp32basic/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeMinimal(t *testing.T) {
	toks, err := Tokenize(0, []byte("PRINT 42"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := kinds(toks)
	want := []token.Kind{token.KwPrint, token.IntLit, token.EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestSigilIdentifiers(t *testing.T) {
	toks, err := Tokenize(0, []byte("x% y& z! w# s$ plain"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []token.Kind{token.IdentInt, token.IdentLong, token.IdentSingle, token.IdentDouble, token.IdentString, token.Ident, token.EOF}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestCompoundIdentifier(t *testing.T) {
	toks, err := Tokenize(0, []byte("GPIO.MODE 2, 1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Kind != token.CompoundIdent || toks[0].Text != "GPIO.MODE" {
		t.Fatalf("expected compound identifier GPIO.MODE, got %v %q", toks[0].Kind, toks[0].Text)
	}
}

func TestNonWhitelistedDotIsNotCompound(t *testing.T) {
	toks, err := Tokenize(0, []byte("obj.field"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []token.Kind{token.Ident, token.Dot, token.Ident, token.EOF}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestCaseInsensitiveKeywordsUpperCased(t *testing.T) {
	toks, err := Tokenize(0, []byte("print X"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Kind != token.KwPrint {
		t.Fatalf("expected lowercase 'print' to lex as keyword, got %v", toks[0].Kind)
	}
	if toks[1].Text != "X" {
		t.Fatalf("expected identifier upper-cased, got %q", toks[1].Text)
	}
}

func TestStringEscape(t *testing.T) {
	toks, err := Tokenize(0, []byte(`"he said ""hi"""`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Kind != token.StringLit || toks[0].Text != `he said "hi"` {
		t.Fatalf("got %v %q", toks[0].Kind, toks[0].Text)
	}
}

func TestInterpolatedStringRawTemplate(t *testing.T) {
	toks, err := Tokenize(0, []byte(`$"x={N}"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Kind != token.InterpStringLit || toks[0].Text != "x={N}" {
		t.Fatalf("got %v %q", toks[0].Kind, toks[0].Text)
	}
}

func TestUnterminatedStringError(t *testing.T) {
	_, err := Tokenize(0, []byte(`"unterminated`))
	if err == nil {
		t.Fatal("expected error for unterminated string")
	}
}

func TestUnknownCharacterError(t *testing.T) {
	_, err := Tokenize(0, []byte("@"))
	if err == nil {
		t.Fatal("expected error for unknown character")
	}
}

func TestNewlineAndColonAreStatementSeparators(t *testing.T) {
	toks, err := Tokenize(0, []byte("PRINT 1\nPRINT 2 : PRINT 3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := kinds(toks)
	want := []token.Kind{
		token.KwPrint, token.IntLit, token.Newline,
		token.KwPrint, token.IntLit, token.Colon,
		token.KwPrint, token.IntLit, token.EOF,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestOperatorsLongestFirst(t *testing.T) {
	toks, err := Tokenize(0, []byte("<= >= <> => < > ="))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []token.Kind{token.Leq, token.Geq, token.Neq, token.FatArrow, token.Lt, token.Gt, token.Eq, token.EOF}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestHexAndOctalIntegerLiterals(t *testing.T) {
	toks, err := Tokenize(0, []byte("&HFF &O17"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Kind != token.IntLit || toks[0].Text != "&HFF" {
		t.Fatalf("got %v %q", toks[0].Kind, toks[0].Text)
	}
	if toks[1].Kind != token.IntLit || toks[1].Text != "&O17" {
		t.Fatalf("got %v %q", toks[1].Kind, toks[1].Text)
	}
}

func TestSpanLocalityReLexesToSameToken(t *testing.T) {
	src := []byte("PRINT 123.5")
	toks, err := Tokenize(0, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, tok := range toks {
		if tok.Kind == token.EOF || tok.Kind == token.Newline {
			continue
		}
		sub := src[tok.Span.Start:tok.Span.End]
		reToks, err := Tokenize(0, sub)
		if err != nil {
			t.Fatalf("re-lex error: %v", err)
		}
		if len(reToks) < 1 || reToks[0].Kind != tok.Kind {
			t.Fatalf("span %v did not re-lex to %v, got %v", tok.Span, tok.Kind, reToks)
		}
	}
}

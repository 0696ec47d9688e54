package parser

import (
	"testing"

	"github.com/syoyo/seexpr/pkg/types"
)

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	l := NewLexer(input)
	var toks []Token
	for {
		tok := l.Next()
		if tok.Type == TokenEOF || tok.Type == TokenError {
			toks = append(toks, tok)
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		types []TokenType
	}{
		{"number", "42", []TokenType{TokenNumber, TokenEOF}},
		{"float", "3.14", []TokenType{TokenNumber, TokenEOF}},
		{"scientific", "1e-10", []TokenType{TokenNumber, TokenEOF}},
		{"string double", `"hello"`, []TokenType{TokenString, TokenEOF}},
		{"string single", `'hi'`, []TokenType{TokenString, TokenEOF}},
		{"variable", "$u", []TokenType{TokenVariable, TokenEOF}},
		{"bare name", "Cs", []TokenType{TokenName, TokenEOF}},
		{"call shape", "sin(1)", []TokenType{TokenName, TokenParenOpen, TokenNumber, TokenParenClose, TokenEOF}},
		{"arithmetic", "1+2*3", []TokenType{TokenNumber, TokenPlus, TokenNumber, TokenMult, TokenNumber, TokenEOF}},
		{"power", "2^3", []TokenType{TokenNumber, TokenPow, TokenNumber, TokenEOF}},
		{"comparisons", "a<=b>=c==d!=e", []TokenType{TokenName, TokenLessEqual, TokenName, TokenGreaterEqual, TokenName, TokenEqual, TokenName, TokenNotEqual, TokenName, TokenEOF}},
		{"logical", "a&&b||!c", []TokenType{TokenName, TokenAnd, TokenName, TokenOr, TokenNot, TokenName, TokenEOF}},
		{"ternary", "a?b:c", []TokenType{TokenName, TokenCondition, TokenName, TokenColon, TokenName, TokenEOF}},
		{"vector", "[1,2,3]", []TokenType{TokenBracketOpen, TokenNumber, TokenComma, TokenNumber, TokenComma, TokenNumber, TokenBracketClose, TokenEOF}},
		{"lone equals is invalid", "=", []TokenType{TokenError}},
		{"lone ampersand is invalid", "&", []TokenType{TokenError}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := lexAll(t, tt.input)
			if len(toks) != len(tt.types) {
				t.Fatalf("got %d tokens, want %d: %v", len(toks), len(tt.types), toks)
			}
			for i, want := range tt.types {
				if toks[i].Type != want {
					t.Errorf("token %d = %s, want %s", i, toks[i].Type, want)
				}
			}
		})
	}
}

func TestLexerSpans(t *testing.T) {
	toks := lexAll(t, "ab + $cd")
	// ab at [0,2), + at [3,4), $cd at [5,8) including the $ prefix.
	if toks[0].Start != 0 || toks[0].End != 2 {
		t.Errorf("name span = [%d,%d), want [0,2)", toks[0].Start, toks[0].End)
	}
	if toks[1].Start != 3 || toks[1].End != 4 {
		t.Errorf("plus span = [%d,%d), want [3,4)", toks[1].Start, toks[1].End)
	}
	if toks[2].Start != 5 || toks[2].End != 8 {
		t.Errorf("variable span = [%d,%d), want [5,8)", toks[2].Start, toks[2].End)
	}
	if toks[2].Value != "cd" {
		t.Errorf("variable value = %q, want %q", toks[2].Value, "cd")
	}
}

func TestLexerComments(t *testing.T) {
	l := NewLexer("1 # one\n+ 2 # two")
	for {
		if tok := l.Next(); tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}

	comments := l.Comments()
	if len(comments) != 2 {
		t.Fatalf("got %d comments, want 2: %v", len(comments), comments)
	}
	if comments[0] != (types.CommentSpan{Start: 2, End: 7}) {
		t.Errorf("first comment span = %+v, want {2 7}", comments[0])
	}
	if comments[1].Start != 12 || comments[1].End != 17 {
		t.Errorf("second comment span = %+v, want {12 17}", comments[1])
	}
}

func TestLexerKeepsFirstDiagnostic(t *testing.T) {
	// Two invalid characters produce two error tokens, but the retained
	// diagnostic is the earliest one.
	l := NewLexer("@ `")
	var errs int
	for {
		tok := l.Next()
		if tok.Type == TokenError {
			errs++
		}
		if tok.Type == TokenEOF {
			break
		}
	}
	if errs != 2 {
		t.Fatalf("got %d error tokens, want 2", errs)
	}

	d := l.Diagnostic()
	if d == nil {
		t.Fatal("expected a diagnostic")
	}
	if d.Start != 0 || d.End != 1 {
		t.Errorf("span = [%d,%d), want the first error at [0,1)", d.Start, d.End)
	}
}

func TestLexerUnterminatedString(t *testing.T) {
	l := NewLexer(`"abc`)
	tok := l.Next()
	if tok.Type != TokenError {
		t.Fatalf("token = %s, want error", tok.Type)
	}
	d := l.Diagnostic()
	if d == nil {
		t.Fatal("expected a diagnostic")
	}
	if d.Code != types.ErrStringNotClosed {
		t.Errorf("code = %s, want %s", d.Code, types.ErrStringNotClosed)
	}
	if d.Start >= d.End {
		t.Errorf("empty diagnostic span [%d,%d)", d.Start, d.End)
	}
}

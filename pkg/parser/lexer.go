package parser

import (
	"fmt"
	"unicode/utf8"

	"github.com/syoyo/seexpr/pkg/types"
)

const eof = -1

// Lexer converts an expression into a sequence of tokens.
// The implementation is based on Rob Pike's "Lexical Scanning in Go" technique.
type Lexer struct {
	input    string // Input string being scanned
	length   int    // Length of input string
	start    int    // Start position of current token
	current  int    // Current position in input
	width    int    // Width of last rune read
	diag     *types.Diagnostic
	comments []types.CommentSpan
}

// NewLexer creates a new lexer from the provided input string.
// The input is tokenized by successive calls to the Next method.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		length: len(input),
	}
}

// Next returns the next token from the input.
// When the end of the input is reached, Next returns TokenEOF for all
// subsequent calls. Line comments starting with '#' are skipped and their
// spans recorded; see Comments.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	ch := l.nextRune()
	if ch == eof {
		return l.eofToken()
	}

	// Check for two-character symbols first (e.g., ==, <=, &&)
	if rts := lookupSymbol2(ch); rts != nil {
		for _, rt := range rts {
			if l.acceptRune(rt.r) {
				return l.newToken(rt.tt)
			}
		}
	}

	// Check for single-character symbols
	if tt := lookupSymbol1(ch); tt > 0 {
		return l.newToken(tt)
	}

	// String literals (single or double quoted)
	if ch == '"' || ch == '\'' {
		l.ignore()
		return l.scanString(ch)
	}

	// Number literals
	if ch >= '0' && ch <= '9' {
		l.backup()
		return l.scanNumber()
	}

	// Names and variables
	if ch == '$' || ch == '_' || isAlpha(ch) {
		l.backup()
		return l.scanName()
	}

	return l.errorToken(types.ErrSyntax, fmt.Sprintf("Unexpected character %q", ch))
}

// Diagnostic returns the first lexical error encountered, if any. The lexer
// retains at most one diagnostic: errorToken keeps the earliest record, so
// scanning past an error token never replaces it with a later one.
func (l *Lexer) Diagnostic() *types.Diagnostic {
	return l.diag
}

// Comments returns the spans of all comments skipped so far, in source order.
func (l *Lexer) Comments() []types.CommentSpan {
	return l.comments
}

// scanString reads a string literal from the current position.
// The opening quote has already been consumed.
// Supports both single and double quotes with escape sequences.
func (l *Lexer) scanString(quote rune) Token {
Loop:
	for {
		switch l.nextRune() {
		case quote:
			break Loop
		case '\\':
			// Consume escaped character
			if r := l.nextRune(); r != eof {
				break
			}
			fallthrough
		case eof:
			return l.errorToken(types.ErrStringNotClosed, "Unterminated string literal")
		}
	}

	l.backup()
	t := l.newToken(TokenString)
	l.acceptRune(quote)
	l.ignore()
	return t
}

// scanNumber reads a number literal from the current position.
// Supports integers, decimals, and scientific notation.
// Format: [0-9]+(\.[0-9]*)?([eE][+-]?[0-9]+)?
func (l *Lexer) scanNumber() Token {
	l.acceptAll(isDigit)

	// Decimal part
	if l.acceptRune('.') {
		l.acceptAll(isDigit)
	}

	// Exponent part
	if l.acceptRunes2('e', 'E') {
		l.acceptRunes2('+', '-')
		if !l.acceptAll(isDigit) {
			return l.errorToken(types.ErrNumberRange, "Malformed number exponent")
		}
	}

	return l.newToken(TokenNumber)
}

// scanName reads a name or variable from the current position.
// Names match [A-Za-z_][A-Za-z0-9_]*; variables are names prefixed with $.
func (l *Lexer) scanName() Token {
	isVar := l.acceptRune('$')
	if isVar {
		l.ignore()
	}

	l.accept(isNameStart)
	l.acceptAll(isNameChar)

	t := l.newToken(TokenName)
	if isVar {
		t.Type = TokenVariable
		// Report the span including the $ prefix so diagnostics underline
		// the full reference.
		t.Start--
	}
	return t
}

// Helper methods

func (l *Lexer) eofToken() Token {
	return Token{
		Type:  TokenEOF,
		Start: l.current,
		End:   l.current,
	}
}

func (l *Lexer) errorToken(code types.ErrorCode, message string) Token {
	t := l.newToken(TokenError)
	if l.diag == nil {
		l.diag = &types.Diagnostic{
			Code:    code,
			Message: message,
			Start:   t.Start,
			End:     max(t.End, t.Start+1),
		}
	}
	return t
}

func (l *Lexer) newToken(tt TokenType) Token {
	t := Token{
		Type:  tt,
		Value: l.input[l.start:l.current],
		Start: l.start,
		End:   l.current,
	}
	l.width = 0
	l.start = l.current
	return t
}

func (l *Lexer) nextRune() rune {
	if l.current >= l.length {
		l.width = 0
		return eof
	}

	r, w := utf8.DecodeRuneInString(l.input[l.current:])
	l.width = w
	l.current += w
	return r
}

func (l *Lexer) backup() {
	l.current -= l.width
}

func (l *Lexer) ignore() {
	l.start = l.current
}

func (l *Lexer) acceptRune(r rune) bool {
	return l.accept(func(c rune) bool {
		return c == r
	})
}

func (l *Lexer) acceptRunes2(r1, r2 rune) bool {
	return l.accept(func(c rune) bool {
		return c == r1 || c == r2
	})
}

func (l *Lexer) accept(isValid func(rune) bool) bool {
	if isValid(l.nextRune()) {
		return true
	}
	l.backup()
	return false
}

func (l *Lexer) acceptAll(isValid func(rune) bool) bool {
	var matched bool
	for l.accept(isValid) {
		matched = true
	}
	return matched
}

// skipWhitespace advances past whitespace and '#' line comments,
// recording each comment's span.
func (l *Lexer) skipWhitespace() {
	for {
		l.acceptAll(isWhitespace)
		l.ignore()

		if !l.acceptRune('#') {
			return
		}

		// Line comment: consume to end of line (or input).
		for {
			ch := l.nextRune()
			if ch == eof {
				break
			}
			if ch == '\n' {
				l.backup()
				break
			}
		}
		l.comments = append(l.comments, types.CommentSpan{Start: l.start, End: l.current})
		l.ignore()
	}
}

// Character classification functions

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v':
		return true
	default:
		return false
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameStart(r rune) bool {
	return r == '_' || isAlpha(r)
}

func isNameChar(r rune) bool {
	return r == '_' || isAlpha(r) || isDigit(r)
}

package parser

// TokenType represents the type of a lexical token.
type TokenType uint8

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber   // 123, 3.14, 1e-10
	TokenString   // "hello" or 'hello'
	TokenName     // fieldName
	TokenVariable // $var

	// Grouping symbols
	TokenBracketOpen  // [
	TokenBracketClose // ]
	TokenParenOpen    // (
	TokenParenClose   // )

	// Basic symbols
	TokenComma     // ,
	TokenColon     // :
	TokenCondition // ?

	// Arithmetic operators
	TokenPlus  // +
	TokenMinus // -
	TokenMult  // *
	TokenDiv   // /
	TokenMod   // %
	TokenPow   // ^

	// Comparison operators
	TokenEqual        // ==
	TokenNotEqual     // !=
	TokenLess         // <
	TokenLessEqual    // <=
	TokenGreater      // >
	TokenGreaterEqual // >=

	// Logical operators
	TokenNot // !
	TokenAnd // &&
	TokenOr  // ||
)

// String returns a string representation of the token type.
func (tt TokenType) String() string {
	switch tt {
	case TokenEOF:
		return "(eof)"
	case TokenError:
		return "(error)"
	case TokenNumber:
		return "(number)"
	case TokenString:
		return "(string)"
	case TokenName:
		return "(name)"
	case TokenVariable:
		return "(variable)"
	case TokenBracketOpen:
		return "["
	case TokenBracketClose:
		return "]"
	case TokenParenOpen:
		return "("
	case TokenParenClose:
		return ")"
	case TokenComma:
		return ","
	case TokenColon:
		return ":"
	case TokenCondition:
		return "?"
	case TokenPlus:
		return "+"
	case TokenMinus:
		return "-"
	case TokenMult:
		return "*"
	case TokenDiv:
		return "/"
	case TokenMod:
		return "%"
	case TokenPow:
		return "^"
	case TokenEqual:
		return "=="
	case TokenNotEqual:
		return "!="
	case TokenLess:
		return "<"
	case TokenLessEqual:
		return "<="
	case TokenGreater:
		return ">"
	case TokenGreaterEqual:
		return ">="
	case TokenNot:
		return "!"
	case TokenAnd:
		return "&&"
	case TokenOr:
		return "||"
	default:
		return "(unknown)"
	}
}

// Token represents a lexical token in an expression.
type Token struct {
	Type  TokenType // Type of the token
	Value string    // Literal value of the token
	Start int       // Starting byte offset in the input string
	End   int       // Ending byte offset (half-open)
}

// symbols1 maps single-character symbols to token types.
var symbols1 = [...]TokenType{
	'[': TokenBracketOpen,
	']': TokenBracketClose,
	'(': TokenParenOpen,
	')': TokenParenClose,
	',': TokenComma,
	':': TokenColon,
	'?': TokenCondition,
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenMult,
	'/': TokenDiv,
	'%': TokenMod,
	'^': TokenPow,
	'<': TokenLess,
	'>': TokenGreater,
	'!': TokenNot,
}

// runeTokenType pairs a rune with its corresponding token type.
type runeTokenType struct {
	r  rune
	tt TokenType
}

// symbols2 maps two-character symbol sequences to token types.
// The key is the first character of the sequence.
var symbols2 = [...][]runeTokenType{
	'=': {{'=', TokenEqual}},
	'!': {{'=', TokenNotEqual}},
	'<': {{'=', TokenLessEqual}},
	'>': {{'=', TokenGreaterEqual}},
	'&': {{'&', TokenAnd}},
	'|': {{'|', TokenOr}},
}

const (
	symbol1Count = rune(len(symbols1))
	symbol2Count = rune(len(symbols2))
)

// lookupSymbol1 returns the token type for a single-character symbol.
// Returns 0 if the rune is not a valid symbol.
func lookupSymbol1(r rune) TokenType {
	if r < 0 || r >= symbol1Count {
		return 0
	}
	return symbols1[r]
}

// lookupSymbol2 returns possible two-character symbol completions.
// Returns nil if the rune cannot start a two-character symbol.
func lookupSymbol2(r rune) []runeTokenType {
	if r < 0 || r >= symbol2Count {
		return nil
	}
	return symbols2[r]
}

// Package parser implements the reference parser for the expression
// language.
//
// The parser uses a hand-written recursive descent approach with Pratt-style
// operator precedence. It reports every detected syntax error as a
// positional diagnostic instead of returning Go errors, and it never panics
// across the package boundary: Parse always returns a total Result.
//
// # Architecture
//
//   - Lexer: tokenizes the input and records '#' comment spans
//   - Parser: builds the syntax tree from tokens
//   - Result: tree (nil on syntax failure), diagnostics, comment spans
//
// # Example
//
//	res := parser.Parse("$a + 1")
//	if res.Tree == nil {
//	    fmt.Println(res.Diagnostics[0])
//	}
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syoyo/seexpr/pkg/types"
)

// Result is the outcome of parsing one expression.
//
// Tree is nil when the input had a syntax error; in that case Diagnostics is
// non-empty. No fallback tree is ever substituted for invalid input.
// Comments lists the spans of '#' line comments in source order.
//
// A Result is immutable after Parse returns and safe to share between
// engine instances (binding never mutates the tree).
type Result struct {
	Tree        *types.ASTNode
	Diagnostics []types.Diagnostic
	Comments    []types.CommentSpan

	arena *types.NodeArena // keeps arena-allocated nodes alive
}

// Option configures parsing behavior.
type Option func(*Options)

// Options holds parser configuration.
type Options struct {
	// MaxDepth limits recursion depth to prevent stack overflow.
	MaxDepth int
}

// WithMaxDepth sets the maximum parsing depth.
func WithMaxDepth(depth int) Option {
	return func(opts *Options) {
		opts.MaxDepth = depth
	}
}

// Parse parses an expression and returns the Result.
//
// Parse is total: syntax errors are reported through Result.Diagnostics with
// half-open [start, end) byte spans into the original text, and Result.Tree
// is nil.
func Parse(input string, opts ...Option) *Result {
	p := newParser(input, opts...)

	res := &Result{arena: p.arena}

	if p.current.Type == TokenEOF {
		// Underline the first byte when there is one; a zero-length input
		// gets the only in-range span it has, [0,0).
		end := 1
		if end > len(input) {
			end = len(input)
		}
		p.diags = append(p.diags, types.Diagnostic{
			Code:    types.ErrUnexpectedEnd,
			Message: "Empty expression",
			Start:   0,
			End:     end,
		})
	} else {
		root := p.parseExpression(0)
		if root != nil && p.current.Type != TokenEOF {
			p.syntaxError(types.ErrSyntax, fmt.Sprintf("Unexpected token %q", p.current.Value))
			root = nil
		}
		res.Tree = root
	}

	res.Diagnostics = p.diags
	res.Comments = p.lexer.Comments()
	if len(res.Diagnostics) > 0 {
		res.Tree = nil
	}
	return res
}

// Parser builds a syntax tree from tokens using Pratt's "Top Down Operator
// Precedence" algorithm.
type Parser struct {
	lexer   *Lexer
	current Token
	prev    Token
	arena   *types.NodeArena
	diags   []types.Diagnostic
	depth   int
	opts    Options
}

// newParser creates a parser for the given input and reads the first token.
func newParser(input string, opts ...Option) *Parser {
	options := Options{
		MaxDepth: 100,
	}
	for _, opt := range opts {
		opt(&options)
	}

	p := &Parser{
		lexer: NewLexer(input),
		arena: types.NewNodeArena(),
		opts:  options,
	}
	p.advance()
	return p
}

// Operator precedence table (binding power).
// Higher values bind more tightly.
var precedence = map[TokenType]int{
	TokenCondition:    5,  // ?: (right associative)
	TokenOr:           10, // ||
	TokenAnd:          15, // &&
	TokenEqual:        20, // ==
	TokenNotEqual:     20, // !=
	TokenLess:         25, // <
	TokenLessEqual:    25, // <=
	TokenGreater:      25, // >
	TokenGreaterEqual: 25, // >=
	TokenPlus:         30, // +
	TokenMinus:        30, // -
	TokenMult:         40, // *
	TokenDiv:          40, // /
	TokenMod:          40, // %
	TokenPow:          50, // ^ (right associative)
}

// unaryBindingPower sits between the multiplicative operators and power,
// so -a^b parses as -(a^b) while -a*b parses as (-a)*b.
const unaryBindingPower = 45

// advance moves to the next token.
func (p *Parser) advance() {
	p.prev = p.current
	p.current = p.lexer.Next()
}

// expect checks that the current token matches the expected type and advances.
// On mismatch it records a diagnostic and returns false.
func (p *Parser) expect(tt TokenType) bool {
	if p.current.Type != tt {
		p.syntaxError(types.ErrExpectedToken,
			fmt.Sprintf("Expected %s but got %s", tt.String(), p.current.Type.String()))
		return false
	}
	p.advance()
	return true
}

// syntaxError records a diagnostic at the current token. When the parser is
// positioned at end of input the previous token's span is used instead, so
// the reported range is never empty.
func (p *Parser) syntaxError(code types.ErrorCode, message string) {
	if p.current.Type == TokenError {
		if d := p.lexer.Diagnostic(); d != nil {
			p.diags = append(p.diags, *d)
			return
		}
	}

	start, end := p.current.Start, p.current.End
	if start >= end {
		if p.prev.End > p.prev.Start {
			start, end = p.prev.Start, p.prev.End
		} else {
			end = start + 1
		}
	}
	p.diags = append(p.diags, types.Diagnostic{
		Code:    code,
		Message: message,
		Start:   start,
		End:     end,
	})
}

// parseExpression parses an expression with the given right binding power.
// Returns nil after recording a diagnostic on syntax failure.
func (p *Parser) parseExpression(rbp int) *types.ASTNode {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.opts.MaxDepth {
		p.syntaxError(types.ErrSyntax, "Expression is nested too deeply")
		return nil
	}

	lhs := p.parsePrefix()
	if lhs == nil {
		return nil
	}

	for {
		prec, ok := precedence[p.current.Type]
		if !ok || prec <= rbp {
			return lhs
		}
		lhs = p.parseInfix(lhs, prec)
		if lhs == nil {
			return nil
		}
	}
}

// parsePrefix handles tokens that begin an expression (Pratt "nud").
func (p *Parser) parsePrefix() *types.ASTNode {
	tok := p.current

	switch tok.Type {
	case TokenNumber:
		p.advance()
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.diags = append(p.diags, types.Diagnostic{
				Code:    types.ErrNumberRange,
				Message: fmt.Sprintf("Number out of range: %s", tok.Value),
				Start:   tok.Start,
				End:     tok.End,
			})
			return nil
		}
		n := p.arena.Alloc(types.NodeNumber, tok.Start, tok.End)
		n.NumValue = v
		return n

	case TokenString:
		p.advance()
		n := p.arena.Alloc(types.NodeString, tok.Start, tok.End)
		n.StrValue = unescape(tok.Value)
		return n

	case TokenVariable:
		p.advance()
		if tok.Value == "" {
			p.diags = append(p.diags, types.Diagnostic{
				Code:    types.ErrSyntax,
				Message: "Missing variable name after $",
				Start:   tok.Start,
				End:     tok.End,
			})
			return nil
		}
		n := p.arena.Alloc(types.NodeVariable, tok.Start, tok.End)
		n.Name = tok.Value
		return n

	case TokenName:
		p.advance()
		if p.current.Type == TokenParenOpen {
			return p.parseCall(tok)
		}
		// A bare name is a variable reference without the $ prefix.
		n := p.arena.Alloc(types.NodeVariable, tok.Start, tok.End)
		n.Name = tok.Value
		return n

	case TokenParenOpen:
		p.advance()
		inner := p.parseExpression(0)
		if inner == nil || !p.expect(TokenParenClose) {
			return nil
		}
		return inner

	case TokenBracketOpen:
		return p.parseVector(tok)

	case TokenMinus, TokenNot:
		p.advance()
		operand := p.parseExpression(unaryBindingPower)
		if operand == nil {
			return nil
		}
		n := p.arena.Alloc(types.NodeUnary, tok.Start, operand.End)
		n.Op = tok.Type.String()
		n.LHS = operand
		return n

	case TokenEOF:
		p.syntaxError(types.ErrUnexpectedEnd, "Unexpected end of expression")
		return nil

	case TokenError:
		p.syntaxError(types.ErrSyntax, "Invalid token")
		return nil

	default:
		p.syntaxError(types.ErrSyntax, fmt.Sprintf("Unexpected token %q", tok.Value))
		return nil
	}
}

// parseInfix handles binary operators and the conditional (Pratt "led").
// prec is the operator's binding power; lhs is the already-parsed left side.
func (p *Parser) parseInfix(lhs *types.ASTNode, prec int) *types.ASTNode {
	tok := p.current
	p.advance()

	if tok.Type == TokenCondition {
		thenBranch := p.parseExpression(0)
		if thenBranch == nil || !p.expect(TokenColon) {
			return nil
		}
		elseBranch := p.parseExpression(prec - 1)
		if elseBranch == nil {
			return nil
		}
		n := p.arena.Alloc(types.NodeCond, lhs.Start, elseBranch.End)
		n.Cond = lhs
		n.LHS = thenBranch
		n.RHS = elseBranch
		return n
	}

	rbp := prec
	if tok.Type == TokenPow {
		rbp = prec - 1 // right associative
	}
	rhs := p.parseExpression(rbp)
	if rhs == nil {
		return nil
	}
	n := p.arena.Alloc(types.NodeBinary, lhs.Start, rhs.End)
	n.Op = tok.Type.String()
	n.LHS = lhs
	n.RHS = rhs
	return n
}

// parseCall parses a function call; name is the already-consumed name token
// and the current token is the opening parenthesis.
func (p *Parser) parseCall(name Token) *types.ASTNode {
	p.advance() // consume (

	n := p.arena.Alloc(types.NodeCall, name.Start, name.End)
	n.Name = name.Value

	if p.current.Type != TokenParenClose {
		for {
			arg := p.parseExpression(0)
			if arg == nil {
				return nil
			}
			n.Arguments = append(n.Arguments, arg)
			if p.current.Type != TokenComma {
				break
			}
			p.advance()
		}
	}

	end := p.current.End
	if !p.expect(TokenParenClose) {
		return nil
	}
	n.End = end
	return n
}

// parseVector parses a [a, b, c] vector constructor; open is the opening
// bracket token, not yet consumed.
func (p *Parser) parseVector(open Token) *types.ASTNode {
	p.advance() // consume [

	n := p.arena.Alloc(types.NodeVector, open.Start, open.End)

	if p.current.Type == TokenBracketClose {
		p.syntaxError(types.ErrSyntax, "Empty vector constructor")
		return nil
	}
	for {
		el := p.parseExpression(0)
		if el == nil {
			return nil
		}
		n.Arguments = append(n.Arguments, el)
		if p.current.Type != TokenComma {
			break
		}
		p.advance()
	}

	end := p.current.End
	if !p.expect(TokenBracketClose) {
		return nil
	}
	n.End = end
	return n
}

// unescape decodes the escape sequences of a string literal body.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

package parser

import (
	"fmt"
	"testing"

	"github.com/syoyo/seexpr/pkg/types"
)

// Helper functions

func parseOK(t *testing.T, input string) *types.ASTNode {
	t.Helper()
	res := Parse(input)
	if res.Tree == nil {
		t.Fatalf("failed to parse %q: %v", input, res.Diagnostics)
	}
	return res.Tree
}

func parseFail(t *testing.T, input string) *Result {
	t.Helper()
	res := Parse(input)
	if res.Tree != nil {
		t.Fatalf("expected %q to fail parsing", input)
	}
	if len(res.Diagnostics) == 0 {
		t.Fatalf("failed parse of %q produced no diagnostics", input)
	}
	return res
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		nodeType types.NodeType
		num      float64
		str      string
	}{
		{"integer", "42", types.NodeNumber, 42.0, ""},
		{"float", "3.14", types.NodeNumber, 3.14, ""},
		{"scientific", "1e2", types.NodeNumber, 100.0, ""},
		{"string", `"hello"`, types.NodeString, 0, "hello"},
		{"string escape", `"a\"b\nc"`, types.NodeString, 0, "a\"b\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := parseOK(t, tt.input)
			if n.Type != tt.nodeType {
				t.Fatalf("node type = %s, want %s", n.Type, tt.nodeType)
			}
			if n.Type == types.NodeNumber && n.NumValue != tt.num {
				t.Errorf("NumValue = %v, want %v", n.NumValue, tt.num)
			}
			if n.Type == types.NodeString && n.StrValue != tt.str {
				t.Errorf("StrValue = %q, want %q", n.StrValue, tt.str)
			}
		})
	}
}

func TestParseVariables(t *testing.T) {
	n := parseOK(t, "$u")
	if n.Type != types.NodeVariable || n.Name != "u" {
		t.Fatalf("got %s %q, want variable u", n.Type, n.Name)
	}
	if n.Start != 0 || n.End != 2 {
		t.Errorf("span = [%d,%d), want [0,2)", n.Start, n.End)
	}

	// Bare names are variable references without the $ prefix.
	n = parseOK(t, "Cs")
	if n.Type != types.NodeVariable || n.Name != "Cs" {
		t.Fatalf("got %s %q, want variable Cs", n.Type, n.Name)
	}
}

func TestParsePrecedence(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3).
	n := parseOK(t, "1 + 2 * 3")
	if n.Type != types.NodeBinary || n.Op != "+" {
		t.Fatalf("root = %s %q, want binary +", n.Type, n.Op)
	}
	if n.RHS.Type != types.NodeBinary || n.RHS.Op != "*" {
		t.Fatalf("rhs = %s %q, want binary *", n.RHS.Type, n.RHS.Op)
	}

	// Power is right associative: 2 ^ 3 ^ 2 is 2 ^ (3 ^ 2).
	n = parseOK(t, "2 ^ 3 ^ 2")
	if n.Op != "^" || n.RHS.Op != "^" {
		t.Fatalf("power must be right associative, got %+v", n)
	}

	// Unary minus binds looser than power: -2 ^ 2 is -(2 ^ 2).
	n = parseOK(t, "-2 ^ 2")
	if n.Type != types.NodeUnary || n.Op != "-" || n.LHS.Op != "^" {
		t.Fatalf("-2^2 must parse as -(2^2), got %s %q", n.Type, n.Op)
	}

	// But tighter than multiplication: -2 * 3 is (-2) * 3.
	n = parseOK(t, "-2 * 3")
	if n.Type != types.NodeBinary || n.Op != "*" || n.LHS.Type != types.NodeUnary {
		t.Fatalf("-2*3 must parse as (-2)*3")
	}

	// Parentheses override precedence.
	n = parseOK(t, "(1 + 2) * 3")
	if n.Op != "*" || n.LHS.Op != "+" {
		t.Fatalf("(1+2)*3 must parse with + inside")
	}
}

func TestParseTernary(t *testing.T) {
	n := parseOK(t, "$a > 0 ? 1 : 2")
	if n.Type != types.NodeCond {
		t.Fatalf("root = %s, want condition", n.Type)
	}
	if n.Cond.Type != types.NodeBinary || n.Cond.Op != ">" {
		t.Errorf("condition = %s %q, want binary >", n.Cond.Type, n.Cond.Op)
	}
	if n.LHS.NumValue != 1 || n.RHS.NumValue != 2 {
		t.Errorf("branches = %v / %v, want 1 / 2", n.LHS.NumValue, n.RHS.NumValue)
	}

	// Nested ternaries are right associative.
	n = parseOK(t, "$a ? 1 : $b ? 2 : 3")
	if n.RHS.Type != types.NodeCond {
		t.Errorf("else branch must be the nested conditional")
	}
}

func TestParseCall(t *testing.T) {
	n := parseOK(t, "clamp($x, 0, 1)")
	if n.Type != types.NodeCall || n.Name != "clamp" {
		t.Fatalf("got %s %q, want call clamp", n.Type, n.Name)
	}
	if len(n.Arguments) != 3 {
		t.Fatalf("got %d arguments, want 3", len(n.Arguments))
	}
	if n.Start != 0 || n.End != len("clamp($x, 0, 1)") {
		t.Errorf("call span = [%d,%d)", n.Start, n.End)
	}

	n = parseOK(t, "rand()")
	if n.Type != types.NodeCall || len(n.Arguments) != 0 {
		t.Fatalf("rand() must parse as a zero-argument call")
	}
}

func TestParseVector(t *testing.T) {
	n := parseOK(t, "[1, 2, 3]")
	if n.Type != types.NodeVector || len(n.Arguments) != 3 {
		t.Fatalf("got %s with %d elements, want vector of 3", n.Type, len(n.Arguments))
	}

	parseFail(t, "[]")
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []string{
		"1 + ",
		"(1 + 2",
		"$a ? 1",
		"f(1,",
		"[1, 2",
		"1 2",
		"@",
		`"abc`,
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			res := parseFail(t, input)
			for _, d := range res.Diagnostics {
				if d.Start >= d.End {
					t.Errorf("empty diagnostic span [%d,%d) for %q", d.Start, d.End, input)
				}
				if d.End > len(input) {
					t.Errorf("diagnostic span [%d,%d) exceeds input length %d", d.Start, d.End, len(input))
				}
			}
		})
	}
}

func TestParseEmptyExpression(t *testing.T) {
	// Spans always stay within the input. Zero-length input gets the only
	// in-range span it has, [0,0); whitespace- or comment-only input
	// underlines its first byte.
	for _, input := range []string{"", "   ", "# just a comment"} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			res := parseFail(t, input)
			d := res.Diagnostics[0]
			if d.Code != types.ErrUnexpectedEnd {
				t.Errorf("code = %s, want %s", d.Code, types.ErrUnexpectedEnd)
			}
			if d.Start != 0 || d.End > len(input) {
				t.Errorf("span = [%d,%d), out of range for length %d", d.Start, d.End, len(input))
			}
			if len(input) > 0 && d.End != 1 {
				t.Errorf("span = [%d,%d), want [0,1)", d.Start, d.End)
			}
		})
	}
}

func TestParseIncompleteBinarySpan(t *testing.T) {
	// The diagnostic for a dangling operator underlines the operator.
	res := parseFail(t, "1 + ")
	d := res.Diagnostics[0]
	if d.Code != types.ErrUnexpectedEnd {
		t.Errorf("code = %s, want %s", d.Code, types.ErrUnexpectedEnd)
	}
	if d.Start != 2 || d.End != 3 {
		t.Errorf("span = [%d,%d), want [2,3)", d.Start, d.End)
	}
}

func TestParseComments(t *testing.T) {
	res := Parse("1 + 2 # add\n# trailing")
	if res.Tree == nil {
		t.Fatalf("parse failed: %v", res.Diagnostics)
	}
	if len(res.Comments) != 2 {
		t.Fatalf("got %d comments, want 2: %v", len(res.Comments), res.Comments)
	}
}

func TestParseDepthLimit(t *testing.T) {
	var deep string
	for i := 0; i < 200; i++ {
		deep += "("
	}
	deep += "1"
	for i := 0; i < 200; i++ {
		deep += ")"
	}
	res := Parse(deep, WithMaxDepth(50))
	if res.Tree != nil {
		t.Fatal("expected depth limit to reject the expression")
	}
}

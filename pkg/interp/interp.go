// Package interp implements the portable tree-walking evaluation backend.
//
// The interpreter is always available and produces deterministic results for
// a given binding. At construction it assigns every tree node a fixed slot
// in a flat buffer sized from the binder's per-node types, so repeated
// evaluation performs no allocations: each call overwrites the slots in
// place and returns a borrowed view of the result.
package interp

import (
	"math"

	"github.com/syoyo/seexpr/pkg/binder"
	"github.com/syoyo/seexpr/pkg/types"
)

// Program is a bound expression prepared for repeated evaluation.
//
// A Program holds mutable evaluation state and is not safe for concurrent
// use; run one Program per goroutine.
type Program struct {
	root    *types.ASTNode
	binding *binder.Binding

	slots []float64
	offs  map[*types.ASTNode]int
	dims  map[*types.ASTNode]int
	// argViews caches, per call node, the slot views passed to the function
	// implementation so evaluation allocates nothing.
	argViews map[*types.ASTNode][][]float64

	out []float64
}

// New prepares a program for the given valid binding. The tree and binding
// must come from the same bind cycle.
func New(root *types.ASTNode, b *binder.Binding) *Program {
	p := &Program{
		root:     root,
		binding:  b,
		offs:     make(map[*types.ASTNode]int),
		dims:     make(map[*types.ASTNode]int),
		argViews: make(map[*types.ASTNode][][]float64),
		out:      make([]float64, b.ReturnType.Dim()),
	}
	total := p.layout(root)
	p.slots = make([]float64, total)
	p.buildViews(root)
	return p
}

// layout assigns each node a contiguous slot range and returns the total
// buffer size.
func (p *Program) layout(n *types.ASTNode) int {
	next := 0
	var assign func(n *types.ASTNode)
	assign = func(n *types.ASTNode) {
		d := p.binding.NodeTypes[n].Dim()
		if d < 1 {
			d = 1
		}
		p.offs[n] = next
		p.dims[n] = d
		next += d

		if n.Cond != nil {
			assign(n.Cond)
		}
		if n.LHS != nil {
			assign(n.LHS)
		}
		if n.RHS != nil {
			assign(n.RHS)
		}
		for _, a := range n.Arguments {
			assign(a)
		}
	}
	assign(n)
	return next
}

// buildViews precomputes the argument slot views for every call node.
func (p *Program) buildViews(n *types.ASTNode) {
	if n.Type == types.NodeCall {
		views := make([][]float64, len(n.Arguments))
		for i, a := range n.Arguments {
			views[i] = p.slot(a)
		}
		p.argViews[n] = views
	}
	if n.Cond != nil {
		p.buildViews(n.Cond)
	}
	if n.LHS != nil {
		p.buildViews(n.LHS)
	}
	if n.RHS != nil {
		p.buildViews(n.RHS)
	}
	for _, a := range n.Arguments {
		p.buildViews(a)
	}
}

// slot returns the buffer view owned by n.
func (p *Program) slot(n *types.ASTNode) []float64 {
	off := p.offs[n]
	return p.slots[off : off+p.dims[n]]
}

// EvalFP evaluates the expression numerically.
//
// The returned buffer is borrowed: it is sized to the bound return type's
// dimension and overwritten in place on the next call. Callers needing
// retention must copy it first. The only error source is a host variable
// read failing its contract.
func (p *Program) EvalFP() ([]float64, error) {
	if err := p.evalNode(p.root); err != nil {
		return nil, err
	}
	// Broadcast the root value into the result buffer; a scalar root fills
	// every component of a vector return type.
	src := p.slot(p.root)
	for i := range p.out {
		p.out[i] = at(src, i)
	}
	return p.out, nil
}

// EvalStr evaluates a string-typed expression.
func (p *Program) EvalStr() (string, error) {
	return p.evalStrNode(p.root)
}

func (p *Program) evalNode(n *types.ASTNode) error {
	dst := p.slot(n)

	switch n.Type {
	case types.NodeNumber:
		dst[0] = n.NumValue
		return nil

	case types.NodeVariable:
		return p.binding.VarRefs[n].EvalFP(dst)

	case types.NodeUnary:
		if err := p.evalNode(n.LHS); err != nil {
			return err
		}
		src := p.slot(n.LHS)
		if n.Op == "!" {
			dst[0] = truth(src[0] == 0)
			return nil
		}
		for i := range dst {
			dst[i] = -src[i]
		}
		return nil

	case types.NodeBinary:
		return p.evalBinary(n, dst)

	case types.NodeCond:
		if err := p.evalNode(n.Cond); err != nil {
			return err
		}
		branch := n.RHS
		if p.slot(n.Cond)[0] != 0 {
			branch = n.LHS
		}
		if err := p.evalNode(branch); err != nil {
			return err
		}
		src := p.slot(branch)
		for i := range dst {
			dst[i] = at(src, i)
		}
		return nil

	case types.NodeVector:
		for i, el := range n.Arguments {
			if err := p.evalNode(el); err != nil {
				return err
			}
			dst[i] = p.slot(el)[0]
		}
		return nil

	case types.NodeCall:
		for _, a := range n.Arguments {
			if err := p.evalNode(a); err != nil {
				return err
			}
		}
		p.binding.FuncDefs[n].Eval(dst, p.argViews[n])
		return nil

	default:
		// Strings are unreachable in numeric positions; the binder rejects
		// them. Zero-fill defensively anyway.
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
}

func (p *Program) evalBinary(n *types.ASTNode, dst []float64) error {
	// Logical operators short-circuit on the scalar left side.
	switch n.Op {
	case "&&":
		if err := p.evalNode(n.LHS); err != nil {
			return err
		}
		if p.slot(n.LHS)[0] == 0 {
			dst[0] = 0
			return nil
		}
		if err := p.evalNode(n.RHS); err != nil {
			return err
		}
		dst[0] = truth(p.slot(n.RHS)[0] != 0)
		return nil
	case "||":
		if err := p.evalNode(n.LHS); err != nil {
			return err
		}
		if p.slot(n.LHS)[0] != 0 {
			dst[0] = 1
			return nil
		}
		if err := p.evalNode(n.RHS); err != nil {
			return err
		}
		dst[0] = truth(p.slot(n.RHS)[0] != 0)
		return nil
	}

	if err := p.evalNode(n.LHS); err != nil {
		return err
	}
	if err := p.evalNode(n.RHS); err != nil {
		return err
	}
	l, r := p.slot(n.LHS), p.slot(n.RHS)

	switch n.Op {
	case "+":
		for i := range dst {
			dst[i] = at(l, i) + at(r, i)
		}
	case "-":
		for i := range dst {
			dst[i] = at(l, i) - at(r, i)
		}
	case "*":
		for i := range dst {
			dst[i] = at(l, i) * at(r, i)
		}
	case "/":
		for i := range dst {
			dst[i] = at(l, i) / at(r, i)
		}
	case "%":
		for i := range dst {
			dst[i] = math.Mod(at(l, i), at(r, i))
		}
	case "^":
		for i := range dst {
			dst[i] = math.Pow(at(l, i), at(r, i))
		}
	case "==":
		dst[0] = truth(l[0] == r[0])
	case "!=":
		dst[0] = truth(l[0] != r[0])
	case "<":
		dst[0] = truth(l[0] < r[0])
	case "<=":
		dst[0] = truth(l[0] <= r[0])
	case ">":
		dst[0] = truth(l[0] > r[0])
	case ">=":
		dst[0] = truth(l[0] >= r[0])
	}
	return nil
}

// evalStrNode handles the string-typed positions the binder admits: string
// literals, string variables and conditionals over them.
func (p *Program) evalStrNode(n *types.ASTNode) (string, error) {
	switch n.Type {
	case types.NodeString:
		return n.StrValue, nil
	case types.NodeVariable:
		return p.binding.VarRefs[n].EvalStr()
	case types.NodeCond:
		if err := p.evalNode(n.Cond); err != nil {
			return "", err
		}
		if p.slot(n.Cond)[0] != 0 {
			return p.evalStrNode(n.LHS)
		}
		return p.evalStrNode(n.RHS)
	default:
		return "", nil
	}
}

// at reads component i of a slot, broadcasting scalars.
func at(s []float64, i int) float64 {
	if len(s) == 1 {
		return s[0]
	}
	return s[i]
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

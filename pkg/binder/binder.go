// Package binder resolves the free names of a parsed expression against a
// host environment and computes the expression's type.
//
// Binding is a single error-tolerant walk over the tree: every resolution
// failure and type conflict is recorded as a positional diagnostic and the
// walk continues, so one validity query surfaces every problem at once.
// Binding never mutates the tree; all results live in the returned Binding
// side table, which keeps parse trees shareable across engine instances.
package binder

import (
	"fmt"

	"github.com/syoyo/seexpr/pkg/funcs"
	"github.com/syoyo/seexpr/pkg/types"
	"github.com/syoyo/seexpr/pkg/vars"
)

// Resolver is the host environment capability. The binder invokes it in
// left-to-right tree order and possibly multiple times for the same name;
// implementations must not assume any caching on the binder side.
type Resolver interface {
	// ResolveVar returns the reference for a variable name, or nil when the
	// host does not know the name.
	ResolveVar(name string) vars.Ref
	// ResolveFunc returns the descriptor for a function name, or nil when
	// the host does not know the name.
	ResolveFunc(name string) *funcs.Func
}

// ResolverFuncs adapts plain functions to the Resolver interface.
// Either field may be nil.
type ResolverFuncs struct {
	Var  func(name string) vars.Ref
	Func func(name string) *funcs.Func
}

// ResolveVar implements Resolver.
func (r ResolverFuncs) ResolveVar(name string) vars.Ref {
	if r.Var == nil {
		return nil
	}
	return r.Var(name)
}

// ResolveFunc implements Resolver.
func (r ResolverFuncs) ResolveFunc(name string) *funcs.Func {
	if r.Func == nil {
		return nil
	}
	return r.Func(name)
}

// Binding holds the outcome of one bind cycle.
//
// Usage sets record every referenced name regardless of resolution outcome.
// UnsafeCalls records one entry per call site of a function whose descriptor
// declares ThreadSafe false: a function called N times contributes up to N
// entries, in source order.
type Binding struct {
	// ReturnType is the reconciled expression type. Meaningful only when
	// Valid; it is the Error type otherwise.
	ReturnType types.Type
	// Valid is true when every name resolved and no type conflict occurred.
	Valid bool
	// Diagnostics accumulated during the walk, in source order.
	Diagnostics []types.Diagnostic

	Vars        map[string]struct{}
	Funcs       map[string]struct{}
	UnsafeCalls []string

	// Per-node results used by the evaluation backends.
	NodeTypes map[*types.ASTNode]types.Type
	VarRefs   map[*types.ASTNode]vars.Ref
	FuncDefs  map[*types.ASTNode]*funcs.Func
}

// UsesVar reports whether the expression references the named variable.
func (b *Binding) UsesVar(name string) bool {
	_, ok := b.Vars[name]
	return ok
}

// UsesFunc reports whether the expression calls the named function.
func (b *Binding) UsesFunc(name string) bool {
	_, ok := b.Funcs[name]
	return ok
}

// Bind walks tree once, resolving names through resolver (which may be nil)
// with builtins as the function fallback (which may also be nil), and
// reconciles the computed type against desired.
//
// Scalar expressions broadcast to a vector desired type; a vector expression
// with a scalar desired type is a type error. Bind never aborts early: all
// diagnostics for the cycle accumulate in the returned Binding.
func Bind(tree *types.ASTNode, desired types.Type, resolver Resolver, builtins *funcs.Registry) *Binding {
	b := &Binding{
		Valid:     true,
		Vars:      make(map[string]struct{}),
		Funcs:     make(map[string]struct{}),
		NodeTypes: make(map[*types.ASTNode]types.Type),
		VarRefs:   make(map[*types.ASTNode]vars.Ref),
		FuncDefs:  make(map[*types.ASTNode]*funcs.Func),
	}
	w := &walker{b: b, resolver: resolver, builtins: builtins}

	computed := w.walk(tree)
	b.reconcile(computed, desired, tree)
	return b
}

// walker carries the walk state for one bind cycle.
type walker struct {
	b        *Binding
	resolver Resolver
	builtins *funcs.Registry
}

// diag records a diagnostic at a node's span and marks the binding invalid.
func (w *walker) diag(code types.ErrorCode, n *types.ASTNode, format string, args ...interface{}) {
	w.b.Diagnostics = append(w.b.Diagnostics, types.Diagnostic{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Start:   n.Start,
		End:     n.End,
	})
	w.b.Valid = false
}

// walk computes and records the type of n, descending into children.
// It never stops early: failed subtrees yield the Error type and the walk
// continues so that all diagnostics accumulate.
func (w *walker) walk(n *types.ASTNode) types.Type {
	t := w.typeOf(n)
	w.b.NodeTypes[n] = t
	return t
}

func (w *walker) typeOf(n *types.ASTNode) types.Type {
	switch n.Type {
	case types.NodeNumber:
		return types.FP(1).WithLifetime(types.LifetimeConstant)

	case types.NodeString:
		return types.StringType().WithLifetime(types.LifetimeConstant)

	case types.NodeVariable:
		return w.bindVariable(n)

	case types.NodeCall:
		return w.bindCall(n)

	case types.NodeUnary:
		t := w.walk(n.LHS)
		if t.IsString() {
			w.diag(types.ErrTypeMismatch, n, "Operand of %q must be numeric", n.Op)
			return types.ErrorType()
		}
		if n.Op == "!" && t.IsVector() {
			w.diag(types.ErrTypeMismatch, n, "Operand of %q must be a scalar", n.Op)
			return types.ErrorType()
		}
		return t

	case types.NodeBinary:
		return w.bindBinary(n)

	case types.NodeCond:
		return w.bindCond(n)

	case types.NodeVector:
		return w.bindVector(n)

	default:
		w.diag(types.ErrTypeMismatch, n, "Unknown node type %q", n.Type)
		return types.ErrorType()
	}
}

func (w *walker) bindVariable(n *types.ASTNode) types.Type {
	// Usage is recorded before resolution so unresolved names still appear
	// in the usage set.
	w.b.Vars[n.Name] = struct{}{}

	var ref vars.Ref
	if w.resolver != nil {
		ref = w.resolver.ResolveVar(n.Name)
	}
	if ref == nil {
		w.diag(types.ErrUndefinedVariable, n, "Undefined variable %q", n.Name)
		return types.ErrorType()
	}

	t := ref.Type()
	if t.IsError() {
		w.diag(types.ErrTypeMismatch, n, "Variable %q has an unusable declared type", n.Name)
		return types.ErrorType()
	}
	w.b.VarRefs[n] = ref
	return t
}

func (w *walker) bindCall(n *types.ASTNode) types.Type {
	w.b.Funcs[n.Name] = struct{}{}

	var fn *funcs.Func
	if w.resolver != nil {
		fn = w.resolver.ResolveFunc(n.Name)
	}
	if fn == nil && w.builtins != nil {
		fn = w.builtins.Lookup(n.Name)
	}

	if fn == nil {
		w.diag(types.ErrUndefinedFunction, n, "Undefined function %q", n.Name)
		for _, arg := range n.Arguments {
			w.walk(arg)
		}
		return types.ErrorType()
	}

	w.b.FuncDefs[n] = fn
	if !fn.ThreadSafe {
		// One log entry per occurrence, not a deduplicated set.
		w.b.UnsafeCalls = append(w.b.UnsafeCalls, n.Name)
	}

	if len(n.Arguments) < fn.MinArgs || (fn.MaxArgs >= 0 && len(n.Arguments) > fn.MaxArgs) {
		w.diag(types.ErrArgumentCount, n, "Function %q expects %s, got %d",
			n.Name, arityText(fn), len(n.Arguments))
	}

	result := types.FP(1).WithLifetime(types.LifetimeConstant)
	for _, arg := range n.Arguments {
		at := w.walk(arg)
		if at.IsString() {
			w.diag(types.ErrTypeMismatch, arg, "Argument of %q must be numeric", n.Name)
			at = types.ErrorType()
		}
		result = result.Promote(at)
	}
	if result.IsError() {
		return result
	}
	if !fn.Pure {
		result = result.WithLifetime(types.LifetimeVarying)
	}
	return result
}

func (w *walker) bindBinary(n *types.ASTNode) types.Type {
	lt := w.walk(n.LHS)
	rt := w.walk(n.RHS)

	if lt.IsString() || rt.IsString() {
		w.diag(types.ErrTypeMismatch, n, "Operands of %q must be numeric", n.Op)
		return types.ErrorType()
	}

	p := lt.Promote(rt)
	if p.IsError() {
		if !lt.IsError() && !rt.IsError() {
			w.diag(types.ErrTypeMismatch, n, "Incompatible operands of %q: %s vs %s", n.Op, lt, rt)
		}
		return types.ErrorType()
	}

	switch n.Op {
	case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
		// Comparisons and logic are defined on scalars and reduce to a
		// scalar truth value.
		if p.IsVector() {
			w.diag(types.ErrTypeMismatch, n, "Operands of %q must be scalars", n.Op)
			return types.ErrorType()
		}
		return types.FP(1).WithLifetime(p.Lifetime())
	default:
		return p
	}
}

func (w *walker) bindCond(n *types.ASTNode) types.Type {
	ct := w.walk(n.Cond)
	lt := w.walk(n.LHS)
	rt := w.walk(n.RHS)

	if ct.IsString() || ct.IsVector() {
		w.diag(types.ErrTypeMismatch, n.Cond, "Condition must be a numeric scalar")
		return types.ErrorType()
	}

	p := lt.Promote(rt)
	if p.IsError() {
		if !lt.IsError() && !rt.IsError() {
			w.diag(types.ErrTypeMismatch, n, "Branches of ?: have incompatible types: %s vs %s", lt, rt)
		}
		return types.ErrorType()
	}
	if ct.IsError() {
		return types.ErrorType()
	}
	// The result varies whenever the condition does.
	if ct.Lifetime() > p.Lifetime() {
		p = p.WithLifetime(ct.Lifetime())
	}
	return p
}

func (w *walker) bindVector(n *types.ASTNode) types.Type {
	life := types.LifetimeConstant
	failed := false
	for _, el := range n.Arguments {
		et := w.walk(el)
		switch {
		case et.IsError():
			failed = true
		case !et.IsScalar():
			w.diag(types.ErrTypeMismatch, el, "Vector elements must be scalars, got %s", et)
			failed = true
		default:
			if et.Lifetime() > life {
				life = et.Lifetime()
			}
		}
	}
	if failed {
		return types.ErrorType()
	}
	return types.FP(len(n.Arguments)).WithLifetime(life)
}

// reconcile checks the computed type against the caller's desired type and
// sets ReturnType. Scalar results broadcast to a vector desired type with
// their lifetime preserved; narrowing a vector to a scalar is a type error.
func (b *Binding) reconcile(computed, desired types.Type, tree *types.ASTNode) {
	if !b.Valid {
		b.ReturnType = types.ErrorType()
		return
	}

	fail := func(format string, args ...interface{}) {
		b.Diagnostics = append(b.Diagnostics, types.Diagnostic{
			Code:    types.ErrReturnType,
			Message: fmt.Sprintf(format, args...),
			Start:   tree.Start,
			End:     tree.End,
		})
		b.Valid = false
		b.ReturnType = types.ErrorType()
	}

	if computed.IsError() {
		fail("Expression has no usable type")
		return
	}

	switch {
	case desired.IsString():
		if !computed.IsString() {
			fail("Expression is %s where a string was requested", computed)
			return
		}
		b.ReturnType = computed

	case desired.IsFP():
		switch {
		case computed.IsString():
			fail("Expression is a string where a numeric value was requested")
		case computed.Dim() == desired.Dim():
			b.ReturnType = computed
		case computed.Dim() == 1:
			// Legal scalar-to-vector broadcast.
			b.ReturnType = types.FP(desired.Dim()).WithLifetime(computed.Lifetime())
		case desired.Dim() == 1:
			fail("Expression is %s where a scalar was requested", computed)
		default:
			fail("Expression is %s where %s was requested", computed, desired)
		}

	default:
		fail("Unusable desired return type")
	}
}

// arityText formats a function's accepted argument count for diagnostics.
func arityText(fn *funcs.Func) string {
	switch {
	case fn.MaxArgs < 0:
		return fmt.Sprintf("at least %d arguments", fn.MinArgs)
	case fn.MinArgs == fn.MaxArgs:
		return fmt.Sprintf("%d arguments", fn.MinArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", fn.MinArgs, fn.MaxArgs)
	}
}

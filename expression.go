package seexpr

import (
	"context"
	"strings"

	"github.com/syoyo/seexpr/pkg/binder"
	"github.com/syoyo/seexpr/pkg/compiled"
	"github.com/syoyo/seexpr/pkg/interp"
	"github.com/syoyo/seexpr/pkg/parser"
	"github.com/syoyo/seexpr/pkg/types"
)

// exprState is the explicit lifecycle position of an Expression.
// Legal transitions:
//
//	Fresh --parse--> Parsed | ParseFailed
//	Parsed --bind--> Bound | BindFailed
//	any --SetExpr/Reset--> Fresh
//
// Evaluation keeps the Bound state. All transitions fire lazily on the
// first query that requires them.
type exprState uint8

const (
	stateFresh exprState = iota
	stateParseFailed
	stateParsed
	stateBindFailed
	stateBound
)

// Expression is the engine owning one expression's compile and evaluation
// state.
//
// An Expression is not safe for concurrent use: queries and evaluations on
// one instance must be externally serialized. Use one instance per thread;
// distinct instances share no state.
type Expression struct {
	src     string
	desired types.Type
	opts    options

	state    exprState
	parseRes *parser.Result
	diags    []types.Diagnostic // parse-stage diagnostics for this cycle
	comments []types.CommentSpan

	binding    *binder.Binding
	returnType types.Type

	interpProg   *interp.Program
	compiledProg *compiled.Program

	sentinel []float64

	// parses counts engine parse cycles; a desired-type change must rebind
	// without bumping it.
	parses int
}

// Expr returns the source text this expression is currently set to evaluate.
func (e *Expression) Expr() string {
	return e.src
}

// SetExpr replaces the source text, atomically invalidating all parsed and
// bound state. Nothing is reparsed until the next query that needs it.
func (e *Expression) SetExpr(source string) {
	e.invalidate()
	e.src = source
}

// SetDesiredReturnType changes the desired return type. When the expression
// is already bound this forces a rebind that reuses the existing parse tree;
// the source text is never reparsed.
func (e *Expression) SetDesiredReturnType(t types.Type) {
	if t == e.desired {
		return
	}
	e.desired = t
	if e.state == stateBound || e.state == stateBindFailed {
		e.dropBinding()
		e.state = stateParsed
	}
}

// DesiredReturnType returns the caller-requested return type.
func (e *Expression) DesiredReturnType() types.Type {
	return e.desired
}

// WantVec reports whether the desired return type is a vector.
func (e *Expression) WantVec() bool {
	return e.desired.IsVector()
}

// Reset forces full invalidation without changing the source text.
func (e *Expression) Reset() {
	e.invalidate()
}

// Close releases all derived state, including any native-code memory held by
// the compiled backend. The expression remains usable; the next query
// recompiles from the source text.
func (e *Expression) Close() error {
	var err error
	if e.compiledProg != nil {
		err = e.compiledProg.Close(context.Background())
	}
	e.compiledProg = nil
	e.invalidate()
	return err
}

// SyntaxOK reports whether the source text parses. The expression is parsed
// if needed; binding is not forced.
func (e *Expression) SyntaxOK() bool {
	e.parseIfNeeded()
	return e.state != stateParseFailed
}

// IsValid reports whether the expression parses and fully binds.
// Parsing and binding happen lazily if needed.
func (e *Expression) IsValid() bool {
	e.prepIfNeeded()
	return e.state == stateBound
}

// ParseError returns a human-readable aggregate of all diagnostics for the
// current compile cycle, or "" when the expression is valid. It forces a
// full parse and bind.
func (e *Expression) ParseError() string {
	e.prepIfNeeded()
	ds := e.Diagnostics()
	if len(ds) == 0 {
		return ""
	}
	msgs := make([]string, len(ds))
	for i, d := range ds {
		msgs[i] = d.String()
	}
	return strings.Join(msgs, "\n")
}

// Diagnostics returns every diagnostic of the current compile cycle in
// source order: parse-stage records first, then bind-stage records. It
// forces a full parse and bind. The returned slice is cleared when the
// source text changes.
func (e *Expression) Diagnostics() []types.Diagnostic {
	e.prepIfNeeded()
	if e.binding == nil || len(e.binding.Diagnostics) == 0 {
		return e.diags
	}
	out := make([]types.Diagnostic, 0, len(e.diags)+len(e.binding.Diagnostics))
	out = append(out, e.diags...)
	out = append(out, e.binding.Diagnostics...)
	return out
}

// Comments returns the comment spans of the source text, in source order.
// The expression is parsed if needed.
func (e *Expression) Comments() []types.CommentSpan {
	e.parseIfNeeded()
	return e.comments
}

// IsConstant reports whether the expression binds to a Constant lifetime:
// no variables and no impure functions. It forces a full bind; an invalid
// expression is not constant.
func (e *Expression) IsConstant() bool {
	e.prepIfNeeded()
	return e.state == stateBound && e.returnType.Lifetime() == types.LifetimeConstant
}

// UsesVar reports whether the expression references the named variable.
//
// Usage queries force a full bind; unresolved names still count as used
// because the binder records every name before attempting resolution.
func (e *Expression) UsesVar(name string) bool {
	e.prepIfNeeded()
	return e.binding != nil && e.binding.UsesVar(name)
}

// UsesFunc reports whether the expression calls the named function.
// Same semantics as UsesVar.
func (e *Expression) UsesFunc(name string) bool {
	e.prepIfNeeded()
	return e.binding != nil && e.binding.UsesFunc(name)
}

// IsThreadSafe reports whether the expression is free of calls to functions
// the host flagged as not thread-safe. A false result means calls into
// those functions must be serialized by the host regardless of how many
// Expression instances exist.
func (e *Expression) IsThreadSafe() bool {
	e.prepIfNeeded()
	return e.binding == nil || len(e.binding.UnsafeCalls) == 0
}

// ThreadUnsafeCalls returns one entry per call site of a non-thread-safe
// function, in source order. A function called N times contributes N
// entries.
func (e *Expression) ThreadUnsafeCalls() []string {
	e.prepIfNeeded()
	if e.binding == nil {
		return nil
	}
	return e.binding.UnsafeCalls
}

// ReturnType returns the bound return type. It forces a full bind and
// returns the Error type when the expression is invalid; Error never
// appears as the type of a valid expression.
func (e *Expression) ReturnType() types.Type {
	e.prepIfNeeded()
	if e.state != stateBound {
		return types.ErrorType()
	}
	return e.returnType
}

// IsVec reports whether the bound expression computes a vector. This may be
// false even when WantVec is true (and the reverse never holds: a scalar
// desired type forbids vector results).
func (e *Expression) IsVec() bool {
	e.prepIfNeeded()
	return e.state == stateBound && e.returnType.IsVector()
}

// EvalFP evaluates the expression numerically.
//
// The returned buffer is borrowed: it is sized to ReturnType's dimension,
// owned by the expression, and overwritten in place by the next EvalFP or
// invalidated by Reset/SetExpr. Callers needing retention must copy it
// first (see EvalFPCopy).
//
// Evaluating an invalid, unbindable or string-typed expression does not
// crash: it returns a zeroed buffer sized to the desired type's dimension.
// Check IsValid to distinguish that sentinel from a genuine zero result.
func (e *Expression) EvalFP() []float64 {
	e.prepIfNeeded()
	if e.state != stateBound || !e.returnType.IsFP() {
		return e.zeroSentinel()
	}

	if e.compiledProg != nil {
		res, err := e.compiledProg.EvalFP(context.Background())
		if err == nil {
			return res
		}
		// A failing variable read fails identically on both backends; fall
		// through so the sentinel path below is the single source of truth.
		e.opts.logger.Debug("seexpr: compiled evaluation failed", "err", err)
	}

	res, err := e.interpProg.EvalFP()
	if err != nil {
		e.opts.logger.Debug("seexpr: variable read failed", "err", err)
		return e.zeroSentinel()
	}
	return res
}

// EvalFPCopy evaluates like EvalFP and returns a freshly allocated copy the
// caller owns.
func (e *Expression) EvalFPCopy() []float64 {
	src := e.EvalFP()
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// EvalStr evaluates a string-typed expression. String results are opaque
// byte sequences; no encoding conversion is applied.
//
// Evaluating an invalid or numeric-typed expression returns "" without
// crashing; check IsValid and ReturnType to distinguish the sentinel.
func (e *Expression) EvalStr() string {
	e.prepIfNeeded()
	if e.state != stateBound || !e.returnType.IsString() {
		return ""
	}
	s, err := e.interpProg.EvalStr()
	if err != nil {
		e.opts.logger.Debug("seexpr: string variable read failed", "err", err)
		return ""
	}
	return s
}

// parseIfNeeded runs the parse stage once per source text.
func (e *Expression) parseIfNeeded() {
	if e.state != stateFresh {
		return
	}
	e.parses++

	var res *parser.Result
	if e.opts.parseCache != nil {
		res = e.opts.parseCache.GetOrParse(e.src, func() *parser.Result {
			return parser.Parse(e.src)
		})
	} else {
		res = parser.Parse(e.src)
	}

	e.parseRes = res
	e.diags = append([]types.Diagnostic(nil), res.Diagnostics...)
	e.comments = res.Comments

	if res.Tree == nil {
		// Terminal for this source text: binding never proceeds past a
		// syntax failure and no fallback tree is substituted.
		e.state = stateParseFailed
		e.opts.logger.Debug("seexpr: parse failed", "diagnostics", len(res.Diagnostics))
		return
	}
	e.state = stateParsed
}

// prepIfNeeded runs parse and bind stages as required.
func (e *Expression) prepIfNeeded() {
	e.parseIfNeeded()
	if e.state != stateParsed {
		return
	}

	b := binder.Bind(e.parseRes.Tree, e.desired, e.opts.resolver, e.opts.builtins)
	e.binding = b

	if !b.Valid {
		e.state = stateBindFailed
		e.returnType = types.ErrorType()
		e.opts.logger.Debug("seexpr: bind failed", "diagnostics", len(b.Diagnostics))
		return
	}

	e.returnType = b.ReturnType
	e.interpProg = interp.New(e.parseRes.Tree, b)
	e.state = stateBound

	if e.opts.strategy == UseCompiled && e.returnType.IsFP() {
		prog, err := compiled.Compile(context.Background(), e.parseRes.Tree, b)
		if err != nil {
			// Silent fallback: the interpreter program built above serves.
			e.opts.logger.Debug("seexpr: using interpreter backend", "reason", err)
		} else {
			e.compiledProg = prog
			e.opts.logger.Debug("seexpr: using compiled backend", "dim", e.returnType.Dim())
		}
	}
}

// dropBinding discards bind-stage results, keeping the parse tree.
func (e *Expression) dropBinding() {
	if e.compiledProg != nil {
		_ = e.compiledProg.Close(context.Background())
		e.compiledProg = nil
	}
	e.interpProg = nil
	e.binding = nil
	e.returnType = types.Type{}
}

// invalidate resets to the Fresh state, releasing every derived result.
// No partially-reset state is observable: the engine is single-threaded by
// contract and every field is cleared before returning.
func (e *Expression) invalidate() {
	e.dropBinding()
	e.parseRes = nil
	e.diags = nil
	e.comments = nil
	e.state = stateFresh
}

// zeroSentinel returns the documented result for evaluating an expression
// with no usable numeric binding.
func (e *Expression) zeroSentinel() []float64 {
	d := e.desired.Dim()
	if d < 1 {
		d = 1
	}
	if len(e.sentinel) != d {
		e.sentinel = make([]float64, d)
	}
	for i := range e.sentinel {
		e.sentinel[i] = 0
	}
	return e.sentinel
}

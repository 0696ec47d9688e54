// Package compiled implements the ahead-of-time compiled evaluation backend.
//
// The backend translates a bound numeric expression into a small WebAssembly
// module — one exported f64 function per output component, with host imports
// for variable reads, pow and fmod — and runs it under wazero. On amd64 and
// arm64 wazero compiles the module to native code ahead of the first call,
// amortizing the translation cost over many evaluations; elsewhere wazero's
// own interpreter runs the same module, so hosts never need to probe for
// native-code support.
//
// The emitted opcodes perform the same IEEE-754 double-precision operations
// the tree-walking backend performs, and ^ and % route through host calls
// into the identical math.Pow and math.Mod, so both backends produce
// bit-equal results for every tree this backend accepts.
//
// Expressions using features outside the emitter's subset are rejected with
// ErrUnsupported; the engine then quietly keeps the tree-walking backend.
package compiled

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/syoyo/seexpr/pkg/binder"
	"github.com/syoyo/seexpr/pkg/types"
	"github.com/syoyo/seexpr/pkg/vars"
)

// ErrUnsupported reports that the expression uses features the emitter does
// not translate. It is an expected outcome, not a failure: the caller falls
// back to the interpreter.
var ErrUnsupported = errors.New("compiled: expression not supported by code generator")

// Program is a compiled expression ready for repeated evaluation.
//
// A Program owns a wazero runtime and the native-code memory behind it; the
// owner must Close it on invalidation or teardown. Like the interpreter's
// program it holds a mutable result buffer and is not safe for concurrent
// use.
type Program struct {
	runtime wazero.Runtime
	fns     []api.Function

	varRefs []vars.Ref
	varVals [][]float64
	out     []float64
}

// Compile translates the bound tree into a wazero-backed program.
//
// Returns ErrUnsupported when the tree falls outside the emitter's subset or
// the binding is not a valid numeric one. Any other error is an internal
// code-generation failure.
func Compile(ctx context.Context, root *types.ASTNode, b *binder.Binding) (*Program, error) {
	if !b.Valid || !b.ReturnType.IsFP() {
		return nil, ErrUnsupported
	}
	if !supported(root, b) {
		return nil, ErrUnsupported
	}

	dim := b.ReturnType.Dim()
	p := &Program{
		out: make([]float64, dim),
	}

	// Assign each variable occurrence its own read slot, in source order,
	// mirroring the interpreter's per-node reads.
	slots := make(map[*types.ASTNode]int)
	collectVars(root, b, p, slots)

	e := &emitter{binding: b, slots: slots}
	wasm := e.module(root, dim)

	r := wazero.NewRuntime(ctx)
	success := false
	defer func() {
		if !success {
			_ = r.Close(ctx)
		}
	}()

	_, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(p.readVar).Export("readvar").
		NewFunctionBuilder().WithFunc(math.Pow).Export("pow").
		NewFunctionBuilder().WithFunc(math.Mod).Export("fmod").
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("compiled: host module: %w", err)
	}

	cm, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compiled: module compile: %w", err)
	}

	mod, err := r.InstantiateModule(ctx, cm, wazero.NewModuleConfig().WithName(uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("compiled: module instantiate: %w", err)
	}

	p.fns = make([]api.Function, dim)
	for k := 0; k < dim; k++ {
		fn := mod.ExportedFunction(exportName(k))
		if fn == nil {
			return nil, fmt.Errorf("compiled: missing export %s", exportName(k))
		}
		p.fns[k] = fn
	}

	p.runtime = r
	success = true
	return p, nil
}

// collectVars registers every variable node's reference and staging buffer.
func collectVars(n *types.ASTNode, b *binder.Binding, p *Program, slots map[*types.ASTNode]int) {
	if n.Type == types.NodeVariable {
		ref := b.VarRefs[n]
		slots[n] = len(p.varRefs)
		p.varRefs = append(p.varRefs, ref)
		p.varVals = append(p.varVals, make([]float64, b.NodeTypes[n].Dim()))
		return
	}
	if n.Cond != nil {
		collectVars(n.Cond, b, p, slots)
	}
	if n.LHS != nil {
		collectVars(n.LHS, b, p, slots)
	}
	if n.RHS != nil {
		collectVars(n.RHS, b, p, slots)
	}
	for _, a := range n.Arguments {
		collectVars(a, b, p, slots)
	}
}

// readVar is the host import backing variable reads from generated code.
func (p *Program) readVar(_ context.Context, slot, comp uint32) float64 {
	return p.varVals[slot][comp]
}

// EvalFP stages the current variable values and runs the compiled functions.
// The returned buffer is borrowed and overwritten on the next call.
func (p *Program) EvalFP(ctx context.Context) ([]float64, error) {
	for i, ref := range p.varRefs {
		if err := ref.EvalFP(p.varVals[i]); err != nil {
			return nil, err
		}
	}
	for k, fn := range p.fns {
		res, err := fn.Call(ctx)
		if err != nil {
			return nil, fmt.Errorf("compiled: eval component %d: %w", k, err)
		}
		p.out[k] = api.DecodeF64(res[0])
	}
	return p.out, nil
}

// Close releases the wazero runtime and any native-code memory it allocated.
func (p *Program) Close(ctx context.Context) error {
	if p.runtime == nil {
		return nil
	}
	err := p.runtime.Close(ctx)
	p.runtime = nil
	return err
}

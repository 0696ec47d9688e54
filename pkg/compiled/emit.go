package compiled

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"

	"github.com/syoyo/seexpr/pkg/binder"
	"github.com/syoyo/seexpr/pkg/types"
)

// WebAssembly binary encoding constants used by the emitter.
const (
	secType     = 1
	secImport   = 2
	secFunction = 3
	secExport   = 7
	secCode     = 10

	valI32 = 0x7F
	valF64 = 0x7C

	opCall     = 0x10
	opEnd      = 0x0B
	opI32Const = 0x41
	opF64Const = 0x44
	opF64Neg   = 0x9A
	opF64Add   = 0xA0
	opF64Sub   = 0xA1
	opF64Mul   = 0xA2
	opF64Div   = 0xA3
)

// Imported function indices; locally defined functions follow them.
const (
	fnReadVar = 0 // (slot i32, comp i32) -> f64
	fnPow     = 1 // (f64, f64) -> f64
	fnFmod    = 2 // (f64, f64) -> f64

	importedFuncCount = 3
)

// supported reports whether the emitter can translate the whole tree:
// numeric literals, bound numeric variables, vector constructors, unary
// negation and the elementwise arithmetic operators. Anything else
// (comparisons, logic, conditionals, function calls, strings) selects the
// interpreter instead.
func supported(n *types.ASTNode, b *binder.Binding) bool {
	if !b.NodeTypes[n].IsFP() {
		return false
	}
	switch n.Type {
	case types.NodeNumber:
		return true
	case types.NodeVariable:
		return b.VarRefs[n] != nil
	case types.NodeUnary:
		return n.Op == "-" && supported(n.LHS, b)
	case types.NodeBinary:
		switch n.Op {
		case "+", "-", "*", "/", "%", "^":
			return supported(n.LHS, b) && supported(n.RHS, b)
		}
		return false
	case types.NodeVector:
		for _, el := range n.Arguments {
			if !supported(el, b) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// emitter builds the module bytes for one bound tree. Each output component
// becomes its own exported nullary f64 function: component k of the result
// is computed by "eval<k>". Scalar subtrees broadcast by always emitting
// their single component.
type emitter struct {
	binding *binder.Binding
	slots   map[*types.ASTNode]int // variable node -> readvar slot
}

// module assembles the complete WebAssembly binary for dim components.
func (e *emitter) module(root *types.ASTNode, dim int) []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})

	// Type section: (i32,i32)->f64, (f64,f64)->f64, ()->f64.
	var sec bytes.Buffer
	uleb(&sec, 3)
	sec.Write([]byte{0x60, 2, valI32, valI32, 1, valF64})
	sec.Write([]byte{0x60, 2, valF64, valF64, 1, valF64})
	sec.Write([]byte{0x60, 0, 1, valF64})
	writeSection(&out, secType, sec.Bytes())

	// Import section: the three host helpers from module "env".
	sec.Reset()
	uleb(&sec, importedFuncCount)
	writeImport(&sec, "readvar", 0)
	writeImport(&sec, "pow", 1)
	writeImport(&sec, "fmod", 1)
	writeSection(&out, secImport, sec.Bytes())

	// Function section: dim local functions of type ()->f64.
	sec.Reset()
	uleb(&sec, uint32(dim))
	for k := 0; k < dim; k++ {
		uleb(&sec, 2)
	}
	writeSection(&out, secFunction, sec.Bytes())

	// Export section: eval0..eval<dim-1>.
	sec.Reset()
	uleb(&sec, uint32(dim))
	for k := 0; k < dim; k++ {
		writeName(&sec, exportName(k))
		sec.WriteByte(0x00) // function export
		uleb(&sec, uint32(importedFuncCount+k))
	}
	writeSection(&out, secExport, sec.Bytes())

	// Code section: one body per component.
	sec.Reset()
	uleb(&sec, uint32(dim))
	rootDim := e.dim(root)
	for k := 0; k < dim; k++ {
		var body bytes.Buffer
		uleb(&body, 0) // no locals
		e.component(&body, root, clampComp(k, rootDim))
		body.WriteByte(opEnd)
		uleb(&sec, uint32(body.Len()))
		sec.Write(body.Bytes())
	}
	writeSection(&out, secCode, sec.Bytes())

	return out.Bytes()
}

// component emits the instructions computing component k of n.
func (e *emitter) component(body *bytes.Buffer, n *types.ASTNode, k int) {
	switch n.Type {
	case types.NodeNumber:
		body.WriteByte(opF64Const)
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], math.Float64bits(n.NumValue))
		body.Write(raw[:])

	case types.NodeVariable:
		body.WriteByte(opI32Const)
		sleb(body, int32(e.slots[n]))
		body.WriteByte(opI32Const)
		sleb(body, int32(clampComp(k, e.dim(n))))
		body.WriteByte(opCall)
		uleb(body, fnReadVar)

	case types.NodeUnary:
		e.component(body, n.LHS, clampComp(k, e.dim(n.LHS)))
		body.WriteByte(opF64Neg)

	case types.NodeBinary:
		e.component(body, n.LHS, clampComp(k, e.dim(n.LHS)))
		e.component(body, n.RHS, clampComp(k, e.dim(n.RHS)))
		switch n.Op {
		case "+":
			body.WriteByte(opF64Add)
		case "-":
			body.WriteByte(opF64Sub)
		case "*":
			body.WriteByte(opF64Mul)
		case "/":
			body.WriteByte(opF64Div)
		case "^":
			body.WriteByte(opCall)
			uleb(body, fnPow)
		case "%":
			body.WriteByte(opCall)
			uleb(body, fnFmod)
		}

	case types.NodeVector:
		e.component(body, n.Arguments[k], 0)
	}
}

// dim returns the bound dimension of a node.
func (e *emitter) dim(n *types.ASTNode) int {
	d := e.binding.NodeTypes[n].Dim()
	if d < 1 {
		return 1
	}
	return d
}

// clampComp maps an output component onto a subtree's own components:
// scalars always contribute their single component.
func clampComp(k, dim int) int {
	if k >= dim {
		return 0
	}
	return k
}

func exportName(k int) string {
	return "eval" + strconv.Itoa(k)
}

// writeSection appends a section id, its byte length and payload.
func writeSection(out *bytes.Buffer, id byte, payload []byte) {
	out.WriteByte(id)
	uleb(out, uint32(len(payload)))
	out.Write(payload)
}

// writeImport appends one function import from module "env".
func writeImport(sec *bytes.Buffer, field string, typeIdx uint32) {
	writeName(sec, "env")
	writeName(sec, field)
	sec.WriteByte(0x00) // function import
	uleb(sec, typeIdx)
}

// writeName appends a length-prefixed UTF-8 name.
func writeName(sec *bytes.Buffer, s string) {
	uleb(sec, uint32(len(s)))
	sec.WriteString(s)
}

// uleb appends v in unsigned LEB128 encoding.
func uleb(out *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// sleb appends v in signed LEB128 encoding.
func sleb(out *bytes.Buffer, v int32) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			out.WriteByte(b)
			return
		}
		out.WriteByte(b | 0x80)
	}
}

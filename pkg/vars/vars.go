// Package vars defines the variable-reference capability through which the
// runtime reads host values.
//
// A host resolver returns a Ref for each free variable name in an
// expression. The Ref is host-owned: the runtime holds it as a non-owning
// handle for one bind cycle and the host must not invalidate it while it is
// bound. Embeddable bases are provided for the common vector, scalar and
// string specializations; each base fails loudly (with an error, never a
// panic or wrong data) on the read form it does not carry. The binder uses
// the declared type to keep a numeric consumer from ever reaching a
// string-only reference, so these errors mark host-side contract violations,
// not expected runtime conditions.
//
// The bases declare a Varying lifetime, the safe assumption for host data
// that may change per evaluation. Hosts with batch-constant or fully
// constant values implement Type directly and narrow the lifetime.
//
// # Example
//
//	type position struct {
//	    vars.Vector
//	    p [3]float64
//	}
//
//	func (v *position) EvalFP(dst []float64) error {
//	    copy(dst, v.p[:])
//	    return nil
//	}
package vars

import (
	"errors"

	"github.com/syoyo/seexpr/pkg/types"
)

// ErrNotNumeric is returned when a numeric read reaches a string-only
// reference.
var ErrNotNumeric = errors.New("vars: reference is not numeric")

// ErrNotString is returned when a string read reaches a numeric reference.
var ErrNotString = errors.New("vars: reference is not a string")

// Ref is the host-owned variable reference capability.
//
// Type reports the declared type used by the binder; EvalFP and EvalStr are
// the two read forms. Implementations embed Vector, Scalar or String and
// override only the read form matching their declared type.
type Ref interface {
	// Type returns the declared type of the variable.
	Type() types.Type
	// EvalFP writes the current numeric value into dst, which is sized to
	// the declared dimension.
	EvalFP(dst []float64) error
	// EvalStr returns the current string value.
	EvalStr() (string, error)
}

// DefaultVectorDim is the dimension a Vector base declares when Dim is zero.
const DefaultVectorDim = 3

// Vector is an embeddable base for vector-valued references.
// A zero Dim declares the default dimension of 3.
type Vector struct {
	Dim int
}

// Type returns FP with the declared dimension and a Varying lifetime.
func (v Vector) Type() types.Type {
	d := v.Dim
	if d <= 0 {
		d = DefaultVectorDim
	}
	return types.FP(d)
}

// EvalStr fails: vector references carry no string form.
func (Vector) EvalStr() (string, error) {
	return "", ErrNotString
}

// Scalar is an embeddable base for scalar-valued references.
type Scalar struct{}

// Type returns FP(1) with a Varying lifetime.
func (Scalar) Type() types.Type {
	return types.FP(1)
}

// EvalStr fails: scalar references carry no string form.
func (Scalar) EvalStr() (string, error) {
	return "", ErrNotString
}

// String is an embeddable base for string-valued references.
type String struct{}

// Type returns the string type with a Varying lifetime.
func (String) Type() types.Type {
	return types.StringType()
}

// EvalFP fails: string references carry no numeric form.
func (String) EvalFP([]float64) error {
	return ErrNotNumeric
}

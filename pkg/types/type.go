// Package types defines the core type system for the expression runtime.
//
// This package contains:
//   - Type: the descriptor driving every binding decision (value kind,
//     dimension and lifetime)
//   - ASTNode: syntax tree nodes with source spans
//   - Diagnostic: positional error records accumulated per compile cycle
//   - CommentSpan: source ranges of comments, for external tooling
package types

import "fmt"

// Kind is the value kind of a Type.
type Kind uint8

const (
	// KindError marks an unusable type produced by failed resolution or an
	// illegal combination. It is absorbing under Promote.
	KindError Kind = iota
	// KindFP is a floating-point value of some dimension (scalar when dim==1,
	// vector otherwise). All numeric values are double precision.
	KindFP
	// KindString is an opaque byte-sequence value.
	KindString
)

// Lifetime describes how often a value may change across repeated
// evaluations. The ordering Constant < Uniform < Varying means a value valid
// at a more specific lifetime may be used wherever a less specific one is
// required, not the reverse.
type Lifetime uint8

const (
	// LifetimeConstant values never change.
	LifetimeConstant Lifetime = iota
	// LifetimeUniform values are fixed for a batch of evaluations.
	LifetimeUniform
	// LifetimeVarying values may differ on every evaluation.
	LifetimeVarying
)

// String returns a human-readable lifetime name.
func (l Lifetime) String() string {
	switch l {
	case LifetimeConstant:
		return "constant"
	case LifetimeUniform:
		return "uniform"
	default:
		return "varying"
	}
}

// Type is an immutable descriptor of an expression value: value kind,
// dimension and lifetime qualifier. The zero value is the Error type.
// Equality is structural; Type is comparable.
type Type struct {
	kind Kind
	dim  int
	life Lifetime
}

// FP returns a floating-point type of the given dimension with Varying
// lifetime. dim < 1 yields the Error type.
func FP(dim int) Type {
	if dim < 1 {
		return ErrorType()
	}
	return Type{kind: KindFP, dim: dim, life: LifetimeVarying}
}

// StringType returns the string type with Varying lifetime.
func StringType() Type {
	return Type{kind: KindString, dim: 1, life: LifetimeVarying}
}

// ErrorType returns the absorbing error type.
func ErrorType() Type {
	return Type{kind: KindError, life: LifetimeVarying}
}

// WithLifetime returns a copy of t with the given lifetime qualifier.
func (t Type) WithLifetime(l Lifetime) Type {
	t.life = l
	return t
}

// Kind returns the value kind.
func (t Type) Kind() Kind { return t.kind }

// Dim returns the dimension. Strings and errors report their stored
// dimension (1 and 0 respectively).
func (t Type) Dim() int { return t.dim }

// Lifetime returns the lifetime qualifier.
func (t Type) Lifetime() Lifetime { return t.life }

// IsFP reports whether t is a numeric type of any dimension.
func (t Type) IsFP() bool { return t.kind == KindFP }

// IsScalar reports whether t is a one-dimensional numeric type.
func (t Type) IsScalar() bool { return t.kind == KindFP && t.dim == 1 }

// IsVector reports whether t is a numeric type of dimension > 1.
func (t Type) IsVector() bool { return t.kind == KindFP && t.dim > 1 }

// IsString reports whether t is the string kind.
func (t Type) IsString() bool { return t.kind == KindString }

// IsError reports whether t is the error kind.
func (t Type) IsError() bool { return t.kind == KindError }

// maxLifetime returns the less specific of the two lifetimes.
func maxLifetime(a, b Lifetime) Lifetime {
	if a > b {
		return a
	}
	return b
}

// Promote combines t with other for an elementwise operation.
//
// Dimensions must match, or one side must be a scalar broadcast to the
// other's dimension. The resulting lifetime is the maximum (least specific)
// of the two. Error is absorbing, and any incompatible combination (mixed
// kinds, mismatched vector dimensions) yields Error.
func (t Type) Promote(other Type) Type {
	if t.IsError() || other.IsError() {
		return ErrorType()
	}
	if t.kind != other.kind {
		return ErrorType()
	}
	life := maxLifetime(t.life, other.life)
	if t.IsString() {
		return StringType().WithLifetime(life)
	}
	switch {
	case t.dim == other.dim:
		return FP(t.dim).WithLifetime(life)
	case t.dim == 1:
		return FP(other.dim).WithLifetime(life)
	case other.dim == 1:
		return FP(t.dim).WithLifetime(life)
	default:
		return ErrorType()
	}
}

// String returns a compact representation such as "FP[3] varying".
func (t Type) String() string {
	switch t.kind {
	case KindFP:
		return fmt.Sprintf("FP[%d] %s", t.dim, t.life)
	case KindString:
		return fmt.Sprintf("string %s", t.life)
	default:
		return "error"
	}
}

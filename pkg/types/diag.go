package types

import "fmt"

// ErrorCode identifies a diagnostic category with a stable code.
type ErrorCode string

// Diagnostic codes. The S prefix marks parser-detected syntax errors (fatal
// to binding for that cycle), U marks binder-detected unresolved references
// and T marks binder-detected type conflicts (both non-fatal to the walk).
const (
	ErrStringNotClosed ErrorCode = "S0101"
	ErrNumberRange     ErrorCode = "S0102"
	ErrUnexpectedEnd   ErrorCode = "S0104"
	ErrSyntax          ErrorCode = "S0201"
	ErrExpectedToken   ErrorCode = "S0202"

	ErrArgumentCount ErrorCode = "T0410"
	ErrTypeMismatch  ErrorCode = "T1003"
	ErrReturnType    ErrorCode = "T2001"

	ErrUndefinedVariable ErrorCode = "U1001"
	ErrUndefinedFunction ErrorCode = "U1002"
)

// Diagnostic is a positional error record. Start and End are byte offsets
// into the original expression text forming a half-open [Start, End) range,
// precise enough to underline the failing span.
//
// Diagnostics are append-only within one compile cycle and cleared when the
// source text changes.
type Diagnostic struct {
	Code    ErrorCode
	Message string
	Start   int
	End     int
}

// String formats the diagnostic with its code and span.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %d-%d: %s", d.Code, d.Start, d.End, d.Message)
}

// CommentSpan records the half-open [Start, End) byte range of a comment in
// the source text. Comments are recorded for external tooling and are not
// interpreted by the runtime.
type CommentSpan struct {
	Start int
	End   int
}

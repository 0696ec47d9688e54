// Package seexpr provides an embeddable runtime for a small expression
// language.
//
// Host applications supply expression text plus a resolver that maps free
// variable and function names to host values; the runtime parses, binds and
// repeatedly evaluates the expression with minimal per-call overhead, e.g.
// once per data point in a batch.
//
// # Quick start
//
//	// Compile once, evaluate many times
//	expr, err := seexpr.Compile("$u * 2 + 1", seexpr.WithResolver(host))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v := expr.EvalFP() // borrowed buffer, overwritten on the next call
//
// # Lifecycle
//
// An Expression moves lazily through parse and bind stages on the first
// query that needs them; construction and SetExpr never parse. Changing the
// source text atomically invalidates every derived result. Changing only the
// desired return type rebinds the existing tree without reparsing.
//
// # Backends
//
// Two interchangeable evaluation strategies exist: a portable tree-walking
// interpreter (always available) and an ahead-of-time compiled backend that
// generates code through wazero. The compiled backend silently falls back to
// the interpreter for expressions it cannot translate, so hosts never probe
// for availability. Both produce bit-equal double-precision results.
//
// # Concurrency
//
// All operations are synchronous on the calling thread. A single Expression
// holds mutable compile and evaluation state and must be externally
// serialized; distinct instances are fully independent provided
// IsThreadSafe reports true (a false result means the host functions
// themselves need serialization, no matter how many instances exist).
package seexpr

import (
	"fmt"
	"log/slog"

	"github.com/syoyo/seexpr/pkg/binder"
	"github.com/syoyo/seexpr/pkg/cache"
	"github.com/syoyo/seexpr/pkg/funcs"
	"github.com/syoyo/seexpr/pkg/types"
)

// Version returns the current version of the runtime.
func Version() string {
	return "v0.1.0-dev"
}

// Resolver is the host environment capability handed to the binder.
// See binder.Resolver for the invocation contract.
type Resolver = binder.Resolver

// ResolverFuncs adapts plain functions to the Resolver interface.
type ResolverFuncs = binder.ResolverFuncs

// EvaluationStrategy selects the evaluation backend for an Expression.
// It is fixed at construction; there is no mutable process-wide default.
type EvaluationStrategy uint8

const (
	// UseInterpreter always evaluates with the portable tree-walking
	// backend.
	UseInterpreter EvaluationStrategy = iota
	// UseCompiled evaluates with ahead-of-time generated code where the
	// expression and platform allow it, silently falling back to the
	// interpreter otherwise.
	UseCompiled
)

// Option configures an Expression at construction.
type Option func(*options)

// options holds engine configuration.
type options struct {
	resolver   binder.Resolver
	desired    types.Type
	strategy   EvaluationStrategy
	logger     *slog.Logger
	parseCache *cache.Cache
	builtins   *funcs.Registry
}

// WithResolver sets the host resolver for variable and function names.
// Without a resolver every variable reference is unresolved (builtin
// functions still work).
func WithResolver(r Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithDesiredType sets the desired return type used for broadcast and
// mismatch decisions during binding. The default is a Varying 3-vector.
func WithDesiredType(t types.Type) Option {
	return func(o *options) {
		o.desired = t
	}
}

// WithBackend selects the evaluation strategy.
func WithBackend(s EvaluationStrategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithLogger sets the structured logger. Parse, bind and backend-selection
// events are logged at Debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithParseCache shares a parse-result cache across engine instances, so
// hosts constructing one instance per thread for the same text parse it
// once.
func WithParseCache(c *cache.Cache) Option {
	return func(o *options) {
		o.parseCache = c
	}
}

// WithBuiltins replaces the builtin function registry consulted when the
// host resolver does not know a function name. Pass nil to disable the
// fallback entirely.
func WithBuiltins(r *funcs.Registry) Option {
	return func(o *options) {
		o.builtins = r
	}
}

// New creates an Expression for the given source text.
//
// Construction is O(1): nothing is parsed or bound until the first query
// that needs it.
func New(source string, opts ...Option) *Expression {
	o := options{
		desired:  types.FP(3),
		strategy: UseInterpreter,
		builtins: funcs.Builtins(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Expression{
		src:     source,
		desired: o.desired,
		opts:    o,
	}
}

// Compile creates an Expression and forces a full parse and bind, returning
// an error describing every diagnostic when the expression is invalid.
func Compile(source string, opts ...Option) (*Expression, error) {
	e := New(source, opts...)
	if !e.IsValid() {
		return nil, fmt.Errorf("seexpr: invalid expression: %s", e.ParseError())
	}
	return e, nil
}

// MustCompile is like Compile but panics if the expression is invalid.
// It simplifies safe initialization of global variables.
func MustCompile(source string, opts ...Option) *Expression {
	e, err := Compile(source, opts...)
	if err != nil {
		panic(fmt.Sprintf("seexpr: MustCompile(%q): %v", source, err))
	}
	return e
}

// Package funcs provides the function descriptor surface and the builtin
// function registry.
//
// Hosts expose functions to expressions by returning a *Func from their
// resolver. When the host resolver does not know a name, the binder falls
// back to the builtin registry, so standard math functions work without any
// host wiring.
//
// # Example
//
//	fade := &funcs.Func{
//	    Name:       "fade",
//	    MinArgs:    1,
//	    MaxArgs:    1,
//	    ThreadSafe: true,
//	    Pure:       true,
//	    Eval: funcs.Componentwise1(func(x float64) float64 {
//	        return x * x * (3 - 2*x)
//	    }),
//	}
package funcs

import (
	"math"
	"math/rand"
	"sync"
)

// EvalFunc computes a numeric function result into out. args holds one
// evaluated buffer per argument; arguments are applied componentwise, with
// one-dimensional arguments broadcast to the output dimension.
type EvalFunc func(out []float64, args [][]float64)

// Func describes a function callable from expressions.
type Func struct {
	// Name as it appears at call sites.
	Name string
	// MinArgs and MaxArgs bound the accepted argument count.
	// MaxArgs of -1 means unlimited.
	MinArgs int
	MaxArgs int
	// ThreadSafe declares whether the implementation may be called
	// concurrently from multiple engine instances. Every call site of a
	// function with ThreadSafe false is recorded in the expression's
	// thread-safety log.
	ThreadSafe bool
	// Pure declares that the result depends only on the arguments. The
	// binder propagates argument lifetimes through pure functions; impure
	// functions always produce Varying values.
	Pure bool
	// Eval is the numeric implementation.
	Eval EvalFunc
}

// at reads component i of an argument buffer, broadcasting scalars.
func at(a []float64, i int) float64 {
	if len(a) == 1 {
		return a[0]
	}
	return a[i]
}

// Componentwise1 adapts a one-argument scalar function to an EvalFunc
// applied per component.
func Componentwise1(f func(float64) float64) EvalFunc {
	return func(out []float64, args [][]float64) {
		for i := range out {
			out[i] = f(at(args[0], i))
		}
	}
}

// Componentwise2 adapts a two-argument scalar function to an EvalFunc
// applied per component with scalar broadcast.
func Componentwise2(f func(x, y float64) float64) EvalFunc {
	return func(out []float64, args [][]float64) {
		for i := range out {
			out[i] = f(at(args[0], i), at(args[1], i))
		}
	}
}

// Componentwise3 adapts a three-argument scalar function to an EvalFunc
// applied per component with scalar broadcast.
func Componentwise3(f func(x, y, z float64) float64) EvalFunc {
	return func(out []float64, args [][]float64) {
		for i := range out {
			out[i] = f(at(args[0], i), at(args[1], i), at(args[2], i))
		}
	}
}

// Registry maps function names to descriptors.
// Safe for concurrent lookup by multiple goroutines.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]*Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]*Func)}
}

// Register adds or replaces a function descriptor.
func (r *Registry) Register(f *Func) {
	r.mu.Lock()
	r.fns[f.Name] = f
	r.mu.Unlock()
}

// Lookup returns the descriptor for name, or nil when unknown.
func (r *Registry) Lookup(name string) *Func {
	r.mu.RLock()
	f := r.fns[name]
	r.mu.RUnlock()
	return f
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.fns)
	r.mu.RUnlock()
	return n
}

func pure1(name string, f func(float64) float64) *Func {
	return &Func{Name: name, MinArgs: 1, MaxArgs: 1, ThreadSafe: true, Pure: true, Eval: Componentwise1(f)}
}

func pure2(name string, f func(x, y float64) float64) *Func {
	return &Func{Name: name, MinArgs: 2, MaxArgs: 2, ThreadSafe: true, Pure: true, Eval: Componentwise2(f)}
}

func pure3(name string, f func(x, y, z float64) float64) *Func {
	return &Func{Name: name, MinArgs: 3, MaxArgs: 3, ThreadSafe: true, Pure: true, Eval: Componentwise3(f)}
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

var (
	builtinsOnce sync.Once
	builtins     *Registry
)

// Builtins returns the shared registry of standard functions. The registry
// is built once and must not be mutated by callers; hosts extend the
// function set through their resolver instead.
func Builtins() *Registry {
	builtinsOnce.Do(func() {
		builtins = NewRegistry()
		for _, f := range []*Func{
			pure1("abs", math.Abs),
			pure1("acos", math.Acos),
			pure1("asin", math.Asin),
			pure1("atan", math.Atan),
			pure1("ceil", math.Ceil),
			pure1("cos", math.Cos),
			pure1("exp", math.Exp),
			pure1("floor", math.Floor),
			pure1("log", math.Log),
			pure1("sin", math.Sin),
			pure1("sqrt", math.Sqrt),
			pure1("tan", math.Tan),
			pure2("atan2", math.Atan2),
			pure2("fmod", math.Mod),
			pure2("max", math.Max),
			pure2("min", math.Min),
			pure2("pow", math.Pow),
			pure3("clamp", clamp),
			pure3("lerp", lerp),
			{
				// rand draws from the shared math/rand source: neither pure
				// nor safe for concurrent callers.
				Name:    "rand",
				MinArgs: 0,
				MaxArgs: 0,
				Eval: func(out []float64, _ [][]float64) {
					v := rand.Float64()
					for i := range out {
						out[i] = v
					}
				},
			},
		} {
			builtins.Register(f)
		}
	})
	return builtins
}

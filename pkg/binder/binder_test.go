package binder_test

import (
	"testing"

	"github.com/syoyo/seexpr/pkg/binder"
	"github.com/syoyo/seexpr/pkg/funcs"
	"github.com/syoyo/seexpr/pkg/parser"
	"github.com/syoyo/seexpr/pkg/types"
	"github.com/syoyo/seexpr/pkg/vars"
)

type vecRef struct{ vars.Vector }

func (vecRef) EvalFP(dst []float64) error { return nil }

type scalarRef struct{ vars.Scalar }

func (scalarRef) EvalFP(dst []float64) error { return nil }

type strRef struct{ vars.String }

func (strRef) EvalStr() (string, error) { return "", nil }

// env resolves a fixed variable environment: $P is FP[3], $u is FP[1] and
// $name is a string. All other names are unknown.
var env = binder.ResolverFuncs{
	Var: func(name string) vars.Ref {
		switch name {
		case "P":
			return vecRef{}
		case "u":
			return scalarRef{}
		case "name":
			return strRef{}
		}
		return nil
	},
}

func bind(t *testing.T, src string, desired types.Type) *binder.Binding {
	t.Helper()
	res := parser.Parse(src)
	if res.Tree == nil {
		t.Fatalf("parse of %q failed: %v", src, res.Diagnostics)
	}
	return binder.Bind(res.Tree, desired, env, funcs.Builtins())
}

func TestBindConstantExpression(t *testing.T) {
	b := bind(t, "1 + 2 * 3", types.FP(3))
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	// Scalar constant broadcast to the desired vector type.
	if b.ReturnType.Dim() != 3 || b.ReturnType.Lifetime() != types.LifetimeConstant {
		t.Errorf("ReturnType = %s, want FP[3] constant", b.ReturnType)
	}
}

func TestBindVariableLifetime(t *testing.T) {
	b := bind(t, "$u + 1", types.FP(1))
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	if b.ReturnType.Lifetime() != types.LifetimeVarying {
		t.Errorf("ReturnType = %s, want varying", b.ReturnType)
	}
	if !b.UsesVar("u") || b.UsesVar("P") {
		t.Error("usage set must record exactly the referenced names")
	}
}

func TestBindUndefinedVariable(t *testing.T) {
	b := bind(t, "$missing + 1", types.FP(1))
	if b.Valid {
		t.Fatal("bind of an undefined variable must fail")
	}

	var found bool
	for _, d := range b.Diagnostics {
		if d.Code == types.ErrUndefinedVariable {
			found = true
			if d.Start >= d.End {
				t.Errorf("empty diagnostic span [%d,%d)", d.Start, d.End)
			}
		}
	}
	if !found {
		t.Errorf("no undefined-variable diagnostic in %v", b.Diagnostics)
	}

	// Unresolved names still appear in the usage set.
	if !b.UsesVar("missing") {
		t.Error("usage set must include unresolved names")
	}
}

func TestBindAccumulatesDiagnostics(t *testing.T) {
	// Two independent failures must both be reported in one bind cycle.
	b := bind(t, "$bogus1 + $bogus2", types.FP(1))
	if b.Valid {
		t.Fatal("bind must fail")
	}
	if len(b.Diagnostics) < 2 {
		t.Fatalf("got %d diagnostics, want one per undefined name: %v",
			len(b.Diagnostics), b.Diagnostics)
	}
}

func TestBindUndefinedFunction(t *testing.T) {
	b := bind(t, "snoise($P)", types.FP(1))
	if b.Valid {
		t.Fatal("bind of an undefined function must fail")
	}
	if !b.UsesFunc("snoise") {
		t.Error("usage set must include unresolved function names")
	}
}

func TestBindFunctionFallback(t *testing.T) {
	// sin is not in the host resolver but resolves through the builtins.
	b := bind(t, "sin($u)", types.FP(1))
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	if !b.UsesFunc("sin") {
		t.Error("UsesFunc(sin) = false")
	}
}

func TestBindHostFunctionShadowsBuiltin(t *testing.T) {
	hosted := &funcs.Func{Name: "sin", MinArgs: 1, MaxArgs: 1, ThreadSafe: true, Pure: true,
		Eval: funcs.Componentwise1(func(x float64) float64 { return 0 })}
	r := binder.ResolverFuncs{
		Func: func(name string) *funcs.Func {
			if name == "sin" {
				return hosted
			}
			return nil
		},
	}

	res := parser.Parse("sin(1)")
	b := binder.Bind(res.Tree, types.FP(1), r, funcs.Builtins())
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	for _, fn := range b.FuncDefs {
		if fn != hosted {
			t.Error("host resolver must shadow the builtin registry")
		}
	}
}

func TestBindArity(t *testing.T) {
	b := bind(t, "pow(2)", types.FP(1))
	if b.Valid {
		t.Fatal("wrong arity must fail binding")
	}
	if b.Diagnostics[0].Code != types.ErrArgumentCount {
		t.Errorf("code = %s, want %s", b.Diagnostics[0].Code, types.ErrArgumentCount)
	}
}

func TestBindUnsafeCallsPerOccurrence(t *testing.T) {
	b := bind(t, "rand() + rand()", types.FP(1))
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	if len(b.UnsafeCalls) != 2 {
		t.Fatalf("UnsafeCalls = %v, want two entries", b.UnsafeCalls)
	}
	// Impure calls always produce varying values.
	if b.ReturnType.Lifetime() != types.LifetimeVarying {
		t.Errorf("ReturnType = %s, want varying", b.ReturnType)
	}
}

func TestBindPureCallLifetime(t *testing.T) {
	// A pure function of constants stays constant.
	b := bind(t, "sin(0.5)", types.FP(1))
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	if b.ReturnType.Lifetime() != types.LifetimeConstant {
		t.Errorf("ReturnType = %s, want constant", b.ReturnType)
	}
}

func TestBindStringMisuse(t *testing.T) {
	tests := []string{
		`$name + 1`,
		`-$name`,
		`$name ? 1 : 2`,
		`sin($name)`,
		`[$name, 1, 2]`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			b := bind(t, src, types.FP(1))
			if b.Valid {
				t.Fatalf("binding %q must fail", src)
			}
		})
	}

	// A bare string expression with a string desired type is fine.
	b := bind(t, `"hello"`, types.StringType())
	if !b.Valid {
		t.Fatalf("string bind failed: %v", b.Diagnostics)
	}
}

func TestBindVectorOperands(t *testing.T) {
	b := bind(t, "$P * 2", types.FP(3))
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	if b.ReturnType.Dim() != 3 {
		t.Errorf("ReturnType = %s, want FP[3]", b.ReturnType)
	}

	// Comparisons are scalar-only.
	b = bind(t, "$P == $P", types.FP(1))
	if b.Valid {
		t.Fatal("vector comparison must fail binding")
	}
}

func TestBindReconcile(t *testing.T) {
	// Vector where a scalar was requested: narrowing is a type error.
	b := bind(t, "[1, 2, 3]", types.FP(1))
	if b.Valid {
		t.Fatal("narrowing a vector to a scalar must fail")
	}
	var found bool
	for _, d := range b.Diagnostics {
		if d.Code == types.ErrReturnType {
			found = true
		}
	}
	if !found {
		t.Errorf("no return-type diagnostic in %v", b.Diagnostics)
	}

	// Dimension mismatch between two vectors also fails.
	b = bind(t, "[1, 2]", types.FP(3))
	if b.Valid {
		t.Fatal("dimension mismatch must fail")
	}

	// Exact match passes through with the computed lifetime.
	b = bind(t, "[$u, 0, 1]", types.FP(3))
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	if b.ReturnType.Lifetime() != types.LifetimeVarying {
		t.Errorf("ReturnType = %s, want varying element lifetime", b.ReturnType)
	}
}

func TestBindTernaryLifetime(t *testing.T) {
	// The result varies whenever the condition does, even with constant
	// branches.
	b := bind(t, "$u > 0.5 ? 1 : 2", types.FP(1))
	if !b.Valid {
		t.Fatalf("bind failed: %v", b.Diagnostics)
	}
	if b.ReturnType.Lifetime() != types.LifetimeVarying {
		t.Errorf("ReturnType = %s, want varying", b.ReturnType)
	}
}

func TestBindNilResolver(t *testing.T) {
	res := parser.Parse("sin(1)")
	b := binder.Bind(res.Tree, types.FP(1), nil, funcs.Builtins())
	if !b.Valid {
		t.Fatalf("builtins must work without a host resolver: %v", b.Diagnostics)
	}

	b = binder.Bind(res.Tree, types.FP(1), nil, nil)
	if b.Valid {
		t.Fatal("no resolver and no builtins must fail")
	}
}

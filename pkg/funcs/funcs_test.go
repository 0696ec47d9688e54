package funcs_test

import (
	"math"
	"testing"

	"github.com/syoyo/seexpr/pkg/funcs"
)

func TestComponentwiseBroadcast(t *testing.T) {
	add := funcs.Componentwise2(func(x, y float64) float64 { return x + y })

	out := make([]float64, 3)
	add(out, [][]float64{{1, 2, 3}, {10}})
	want := []float64{11, 12, 13}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out = %v, want %v", out, want)
		}
	}

	// Scalar output with scalar arguments.
	out = out[:1]
	add(out, [][]float64{{1}, {2}})
	if out[0] != 3 {
		t.Errorf("out = %v, want [3]", out)
	}
}

func TestRegistry(t *testing.T) {
	r := funcs.NewRegistry()
	if r.Lookup("fade") != nil {
		t.Fatal("empty registry resolved a name")
	}

	f := &funcs.Func{Name: "fade", MinArgs: 1, MaxArgs: 1, ThreadSafe: true, Pure: true,
		Eval: funcs.Componentwise1(func(x float64) float64 { return x * x * (3 - 2*x) })}
	r.Register(f)

	if got := r.Lookup("fade"); got != f {
		t.Fatalf("Lookup returned %v, want the registered descriptor", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	// Register replaces on name collision.
	f2 := &funcs.Func{Name: "fade", MinArgs: 2, MaxArgs: 2}
	r.Register(f2)
	if r.Lookup("fade") != f2 || r.Len() != 1 {
		t.Error("re-registering the same name must replace the descriptor")
	}
}

func TestBuiltins(t *testing.T) {
	b := funcs.Builtins()
	if b != funcs.Builtins() {
		t.Fatal("Builtins must return the shared registry")
	}

	tests := []struct {
		name string
		args [][]float64
		want float64
	}{
		{"abs", [][]float64{{-2}}, 2},
		{"floor", [][]float64{{1.7}}, 1},
		{"ceil", [][]float64{{1.2}}, 2},
		{"sqrt", [][]float64{{9}}, 3},
		{"pow", [][]float64{{2}, {10}}, 1024},
		{"fmod", [][]float64{{7}, {3}}, 1},
		{"atan2", [][]float64{{1}, {1}}, math.Pi / 4},
		{"max", [][]float64{{1}, {2}}, 2},
		{"min", [][]float64{{1}, {2}}, 1},
		{"clamp", [][]float64{{5}, {0}, {1}}, 1},
		{"clamp", [][]float64{{-5}, {0}, {1}}, 0},
		{"clamp", [][]float64{{0.25}, {0}, {1}}, 0.25},
		{"lerp", [][]float64{{0}, {10}, {0.5}}, 5},
	}

	for _, tt := range tests {
		f := b.Lookup(tt.name)
		if f == nil {
			t.Fatalf("builtin %s not registered", tt.name)
		}
		if !f.ThreadSafe || !f.Pure {
			t.Errorf("%s must be pure and thread safe", tt.name)
		}
		out := make([]float64, 1)
		f.Eval(out, tt.args)
		if math.Abs(out[0]-tt.want) > 1e-12 {
			t.Errorf("%s(%v) = %v, want %v", tt.name, tt.args, out[0], tt.want)
		}
	}
}

func TestBuiltinArity(t *testing.T) {
	b := funcs.Builtins()
	for _, tt := range []struct {
		name     string
		min, max int
	}{
		{"sin", 1, 1},
		{"pow", 2, 2},
		{"clamp", 3, 3},
		{"rand", 0, 0},
	} {
		f := b.Lookup(tt.name)
		if f == nil {
			t.Fatalf("builtin %s not registered", tt.name)
		}
		if f.MinArgs != tt.min || f.MaxArgs != tt.max {
			t.Errorf("%s arity = [%d,%d], want [%d,%d]", tt.name, f.MinArgs, f.MaxArgs, tt.min, tt.max)
		}
	}
}

func TestRandDescriptor(t *testing.T) {
	f := funcs.Builtins().Lookup("rand")
	if f == nil {
		t.Fatal("rand not registered")
	}
	if f.ThreadSafe {
		t.Error("rand must not be declared thread safe")
	}
	if f.Pure {
		t.Error("rand must not be declared pure")
	}

	// rand broadcasts one draw across all output components.
	out := make([]float64, 3)
	f.Eval(out, nil)
	if out[0] != out[1] || out[1] != out[2] {
		t.Errorf("rand components differ: %v", out)
	}
	if out[0] < 0 || out[0] >= 1 {
		t.Errorf("rand out of range: %v", out[0])
	}
}

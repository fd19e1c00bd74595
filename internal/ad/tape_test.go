package ad

import (
	"math"
	"testing"
)

func numDeriv(f func(float64) float64, x float64) float64 {
	h := 1e-6 * math.Max(1, math.Abs(x))
	return (f(x+h) - f(x-h)) / (2 * h)
}

func TestPrimitiveGradients(t *testing.T) {
	tests := []struct {
		name  string
		build func(Var) Var
		plain func(float64) float64
		at    float64
	}{
		{"sqrt", func(v Var) Var { return v.Sqrt() }, math.Sqrt, 2.3},
		{"exp", func(v Var) Var { return v.Exp() }, math.Exp, 0.7},
		{"sin", func(v Var) Var { return v.Sin() }, math.Sin, 1.1},
		{"cos", func(v Var) Var { return v.Cos() }, math.Cos, 1.1},
		{"erfc", func(v Var) Var { return v.Erfc() }, math.Erfc, 0.8},
		{"acos", func(v Var) Var { return v.Acos() }, math.Acos, 0.4},
		{"square", func(v Var) Var { return v.Square() }, func(x float64) float64 { return x * x }, -1.7},
		{"recip", func(v Var) Var { return v.t.Const(1).Div(v) }, func(x float64) float64 { return 1 / x }, 3.1},
		{"scale", func(v Var) Var { return v.Scale(-2.5) }, func(x float64) float64 { return -2.5 * x }, 0.9},
		{"shift", func(v Var) Var { return v.AddConst(4).Sqrt() }, func(x float64) float64 { return math.Sqrt(x + 4) }, 1.2},
	}
	for _, tt := range tests {
		tape := NewTape()
		v := tape.Leaf(tt.at)
		out := tt.build(v)
		tape.Backward(out)
		got := tape.LeafGrad(0)
		want := numDeriv(tt.plain, tt.at)
		if math.Abs(got-want) > 1e-6*math.Max(1, math.Abs(want)) {
			t.Errorf("%s: gradient %g, finite difference %g", tt.name, got, want)
		}
	}
}

func TestCompositeGradient(t *testing.T) {
	// f(x, y) = exp(-x*y) * sqrt(x) + acos(y/2)
	f := func(x, y float64) float64 {
		return math.Exp(-x*y)*math.Sqrt(x) + math.Acos(y/2)
	}
	x0, y0 := 1.3, 0.6

	tape := NewTape()
	x := tape.Leaf(x0)
	y := tape.Leaf(y0)
	out := x.Mul(y).Neg().Exp().Mul(x.Sqrt()).Add(y.Scale(0.5).Acos())
	if math.Abs(out.Value()-f(x0, y0)) > 1e-12 {
		t.Fatalf("value %g, want %g", out.Value(), f(x0, y0))
	}
	tape.Backward(out)

	gx := numDeriv(func(x float64) float64 { return f(x, y0) }, x0)
	gy := numDeriv(func(y float64) float64 { return f(x0, y) }, y0)
	if math.Abs(tape.LeafGrad(0)-gx) > 1e-6 {
		t.Errorf("df/dx = %g, want %g", tape.LeafGrad(0), gx)
	}
	if math.Abs(tape.LeafGrad(1)-gy) > 1e-6 {
		t.Errorf("df/dy = %g, want %g", tape.LeafGrad(1), gy)
	}
}

func TestClampSubGradient(t *testing.T) {
	tape := NewTape()
	v := tape.Leaf(-0.5)
	out := v.MaxConst(0).Scale(3)
	if out.Value() != 0 {
		t.Fatalf("clamped value %g, want 0", out.Value())
	}
	tape.Backward(out)
	if g := tape.LeafGrad(0); g != 0 {
		t.Errorf("clamped branch gradient %g, want 0", g)
	}

	tape.SetLeaf(0, 2.0)
	tape.Forward()
	if out.Value() != 6 {
		t.Fatalf("pass-through value %g, want 6", out.Value())
	}
	tape.Backward(out)
	if g := tape.LeafGrad(0); g != 3 {
		t.Errorf("pass-through gradient %g, want 3", g)
	}
}

func TestAcosClampedBounded(t *testing.T) {
	tape := NewTape()
	v := tape.Leaf(1.5) // outside the acos domain
	out := v.AcosClamped(1e-8)
	if math.IsNaN(out.Value()) {
		t.Fatal("clamped acos returned NaN")
	}
	tape.Backward(out)
	if g := tape.LeafGrad(0); g != 0 {
		t.Errorf("gradient beyond clamp %g, want 0", g)
	}
}

func TestReplayDeterministic(t *testing.T) {
	tape := NewTape()
	x := tape.Leaf(0.9)
	y := tape.Leaf(1.7)
	out := x.Square().Add(y.Sqrt()).Mul(x.Sub(y).Erfc())

	tape.Backward(out)
	v1, g1 := out.Value(), tape.LeafGrad(0)

	// Replay at a different point, then back at the original.
	tape.SetLeaf(0, 5)
	tape.SetLeaf(1, 2)
	tape.Forward()
	if out.Value() == v1 {
		t.Fatal("replay did not pick up new leaf values")
	}

	tape.SetLeaf(0, 0.9)
	tape.SetLeaf(1, 1.7)
	tape.Forward()
	tape.Backward(out)
	if out.Value() != v1 || tape.LeafGrad(0) != g1 {
		t.Errorf("replay not bit-identical: value %g vs %g, grad %g vs %g",
			out.Value(), v1, tape.LeafGrad(0), g1)
	}
}

func TestDot3(t *testing.T) {
	tape := NewTape()
	var a, b [3]Var
	av := [3]float64{1, -2, 3}
	bv := [3]float64{0.5, 4, -1}
	for i := 0; i < 3; i++ {
		a[i] = tape.Leaf(av[i])
		b[i] = tape.Leaf(bv[i])
	}
	d := Dot3(a, b)
	want := av[0]*bv[0] + av[1]*bv[1] + av[2]*bv[2]
	if math.Abs(d.Value()-want) > 1e-14 {
		t.Errorf("dot = %g, want %g", d.Value(), want)
	}
}

package optim

import (
	"context"
	"math"
	"testing"

	"github.com/plumbum082/DMFF/internal/calc"
	"github.com/plumbum082/DMFF/internal/config"
	"github.com/plumbum082/DMFF/internal/ffield"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
)

func dimerSetup(t *testing.T, oo float64) (*calc.Calculator, []geom.Vec, *geom.Box) {
	t.Helper()
	c, err := calc.New(ffield.Default(), 2)
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	raw := config.DimerGeometry(9, oo)
	pos := make([]geom.Vec, len(raw))
	for i, g := range raw {
		pos[i] = geom.Vec{g[0], g[1], g[2]}
	}
	box, err := geom.Cubic(18)
	if err != nil {
		t.Fatal(err)
	}
	return c, pos, box
}

func TestScanProfile(t *testing.T) {
	c, pos, box := dimerSetup(t, 2.9)
	profile, best, err := Scan(context.Background(), c, pos, box, 8.5, 2.6, 5.0, 9)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(profile) != 9 {
		t.Fatalf("expected 9 points, got %d", len(profile))
	}
	if profile[0].Distance != 2.6 || math.Abs(profile[8].Distance-5.0) > 1e-12 {
		t.Errorf("bad distance grid: %v .. %v", profile[0].Distance, profile[8].Distance)
	}
	for _, p := range profile {
		if math.IsNaN(p.Energy) || math.IsInf(p.Energy, 0) {
			t.Fatalf("non-finite energy at r=%.3f", p.Distance)
		}
	}
	if best.Energy > profile[len(profile)-1].Energy {
		t.Errorf("best %v higher than the last sample %v", best, profile[len(profile)-1])
	}
}

func TestScanRejectsMonomer(t *testing.T) {
	c, pos, box := dimerSetup(t, 2.9)
	if _, _, err := Scan(context.Background(), c, pos[:3], box, 8.5, 2.6, 5.0, 5); err == nil {
		t.Fatal("expected error for non-dimer input")
	}
}

func TestScanCancellation(t *testing.T) {
	c, pos, box := dimerSetup(t, 2.9)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Scan(ctx, c, pos, box, 8.5, 2.6, 5.0, 5); err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestMinimizeGoesDownhill(t *testing.T) {
	c, pos, box := dimerSetup(t, 3.3)
	pairs, err := neighbor.Build(pos, box, 8.5)
	if err != nil {
		t.Fatalf("build pairs: %v", err)
	}

	e0, err := c.EvaluateEnergy(pos, box, pairs)
	if err != nil {
		t.Fatalf("initial energy: %v", err)
	}

	final, steps, err := Minimize(context.Background(), c, pos, box, pairs,
		Options{MaxSteps: 25, StepSize: 1e-3, ForceTol: 1.0})
	if err != nil {
		t.Fatalf("minimize: %v", err)
	}
	if len(steps) == 0 {
		t.Fatal("no steps recorded")
	}
	last := steps[len(steps)-1]
	if last.Energy >= e0 {
		t.Errorf("final energy %g not below initial %g", last.Energy, e0)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Energy > steps[i-1].Energy {
			t.Errorf("energy rose at step %d: %g -> %g", i, steps[i-1].Energy, steps[i].Energy)
		}
	}
	if len(final) != len(pos) {
		t.Errorf("final geometry has %d atoms, want %d", len(final), len(pos))
	}
}

func TestMinimizerRejectsBadOptions(t *testing.T) {
	c, pos, box := dimerSetup(t, 2.9)
	pairs, err := neighbor.Build(pos, box, 8.5)
	if err != nil {
		t.Fatalf("build pairs: %v", err)
	}
	if _, err := NewMinimizer(c, pos, box, pairs, Options{}); err == nil {
		t.Fatal("expected error for zero options")
	}
}

package calc

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/diff/fd"

	"github.com/plumbum082/DMFF/internal/ffield"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
	"github.com/plumbum082/DMFF/internal/pme"
)

const (
	rOH      = 0.9572
	thetaHOH = 104.52 * math.Pi / 180
)

// water places one equilibrium monomer with the oxygen at c, hydrogens in
// the xy plane.
func water(c geom.Vec) []geom.Vec {
	return []geom.Vec{
		c,
		c.Add(geom.Vec{rOH, 0, 0}),
		c.Add(geom.Vec{rOH * math.Cos(thetaHOH), rOH * math.Sin(thetaHOH), 0}),
	}
}

// dimer is a hydrogen-bonded pair: the second molecule donates an O-H
// straight at the first oxygen.
func dimer(oo float64) []geom.Vec {
	acc := water(geom.Vec{10, 10, 10})
	don := []geom.Vec{
		{10 - oo, 10, 10},
		{10 - oo + rOH, 10, 10},
		{10 - oo + rOH*math.Cos(thetaHOH), 10 + rOH*math.Sin(thetaHOH), 10},
	}
	return append(acc, don...)
}

func cubic(t *testing.T, l float64) *geom.Box {
	t.Helper()
	box, err := geom.Cubic(l)
	if err != nil {
		t.Fatal(err)
	}
	return box
}

func testSetup(t *testing.T, nMol int) (*Calculator, *geom.Box) {
	t.Helper()
	c, err := New(ffield.Default(), nMol)
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	return c, cubic(t, 20)
}

func pairsFor(t *testing.T, pos []geom.Vec, box *geom.Box) *neighbor.PairList {
	t.Helper()
	pairs, err := neighbor.Build(pos, box, 9)
	if err != nil {
		t.Fatalf("build pairs: %v", err)
	}
	return pairs
}

func TestDimerEnergyFinite(t *testing.T) {
	c, box := testSetup(t, 2)
	pos := dimer(2.9)
	e, err := c.EvaluateEnergy(pos, box, pairsFor(t, pos, box))
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	if math.IsNaN(e) || math.IsInf(e, 0) {
		t.Fatalf("non-finite energy %g", e)
	}
}

func TestForcesSumToZero(t *testing.T) {
	// Ewald energy under periodic boundaries is translation invariant, so
	// the forces must sum to zero to machine-ish precision.
	c, box := testSetup(t, 2)
	pos := dimer(2.9)
	f, err := c.EvaluateForces(pos, box, pairsFor(t, pos, box))
	if err != nil {
		t.Fatalf("forces: %v", err)
	}
	var sum geom.Vec
	for _, fi := range f {
		sum = sum.Add(fi)
	}
	if sum.Norm() > 1e-8 {
		t.Errorf("net force %v, want ~0", sum)
	}
}

func TestForcesMatchFiniteDifference(t *testing.T) {
	c, box := testSetup(t, 2)
	pos := dimer(3.1)
	pairs := pairsFor(t, pos, box)

	energyAt := func(x []float64) float64 {
		p := make([]geom.Vec, len(pos))
		for i := range p {
			p[i] = geom.Vec{x[3*i], x[3*i+1], x[3*i+2]}
		}
		e, err := c.EvaluateEnergy(p, box, pairs)
		if err != nil {
			t.Fatalf("energy during fd: %v", err)
		}
		return e
	}

	x := make([]float64, 3*len(pos))
	for i, p := range pos {
		x[3*i], x[3*i+1], x[3*i+2] = p[0], p[1], p[2]
	}
	grad := make([]float64, len(x))
	fd.Gradient(grad, energyAt, x, &fd.Settings{Formula: fd.Central, Step: 1e-5})

	f, err := c.EvaluateForces(pos, box, pairs)
	if err != nil {
		t.Fatalf("forces: %v", err)
	}
	for i := range pos {
		for k := 0; k < 3; k++ {
			got := f[i][k]
			want := -grad[3*i+k]
			if math.Abs(got-want) > 1e-4*math.Abs(want)+1e-6 {
				t.Errorf("atom %d axis %d: force %g, -dE/dx %g", i, k, got, want)
			}
		}
	}
}

func TestTranslationInvariance(t *testing.T) {
	c, box := testSetup(t, 2)
	pos := dimer(2.9)
	e1, err := c.EvaluateEnergy(pos, box, pairsFor(t, pos, box))
	if err != nil {
		t.Fatalf("energy: %v", err)
	}

	shift := geom.Vec{3.7, -1.2, 5.5}
	moved := make([]geom.Vec, len(pos))
	for i := range pos {
		moved[i] = pos[i].Add(shift)
	}
	e2, err := c.EvaluateEnergy(moved, box, pairsFor(t, moved, box))
	if err != nil {
		t.Fatalf("translated energy: %v", err)
	}
	if math.Abs(e1-e2) > 1e-7 {
		t.Errorf("energy changed under translation: %g vs %g", e1, e2)
	}
}

func TestPlanReuse(t *testing.T) {
	c, box := testSetup(t, 2)
	pos := dimer(2.9)
	pairs := pairsFor(t, pos, box)

	e1, err := c.EvaluateEnergy(pos, box, pairs)
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	e2, err := c.EvaluateEnergy(pos, box, pairs)
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	if e1 != e2 {
		t.Errorf("replay not deterministic: %g vs %g", e1, e2)
	}
	if n := c.PlanCount(); n != 1 {
		t.Errorf("plan count %d after identical calls, want 1", n)
	}

	// Same topology, new positions: the recording is reused.
	pos[3] = pos[3].Add(geom.Vec{0.01, 0, 0})
	if _, err := c.EvaluateEnergy(pos, box, pairs); err != nil {
		t.Fatalf("perturbed energy: %v", err)
	}
	if n := c.PlanCount(); n != 1 {
		t.Errorf("plan count %d after perturbation, want 1", n)
	}

	// A different box is a different plan.
	if _, err := c.EvaluateEnergy(pos, cubic(t, 21), pairs); err != nil {
		t.Fatalf("resized energy: %v", err)
	}
	if n := c.PlanCount(); n != 2 {
		t.Errorf("plan count %d after box change, want 2", n)
	}
}

func TestTemplateStaysUntouched(t *testing.T) {
	c, box := testSetup(t, 2)
	before := c.ParamSet().CloneQLocal()

	pos := dimer(2.9)
	if _, err := c.EvaluateEnergy(pos, box, pairsFor(t, pos, box)); err != nil {
		t.Fatalf("energy: %v", err)
	}

	after := c.ParamSet().QLocal
	for i := range before {
		for k := 0; k < 4; k++ {
			if before[i][k] != after[i][k] {
				t.Fatalf("template row %d column %d changed: %g -> %g",
					i, k, before[i][k], after[i][k])
			}
		}
	}
}

func TestDegenerateGeometry(t *testing.T) {
	c, box := testSetup(t, 2)
	pos := dimer(2.9)
	pos[4] = pos[3] // collapse an O-H bond of the second molecule

	_, err := c.EvaluateEnergy(pos, box, pairsFor(t, pos, box))
	var de geom.DegenerateGeometryError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want DegenerateGeometryError", err)
	}
	if de.Molecule != 1 {
		t.Errorf("error names molecule %d, want 1", de.Molecule)
	}
}

func TestShapeMismatch(t *testing.T) {
	c, box := testSetup(t, 2)
	pos := water(geom.Vec{5, 5, 5}) // 3 atoms against a 2-molecule calculator
	_, err := c.EvaluateEnergy(pos, box, pairsFor(t, pos, box))
	var se geom.ShapeMismatchError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want ShapeMismatchError", err)
	}
}

func TestSolverFailureSurfaces(t *testing.T) {
	ff := ffield.Default()
	ff.Polarization.Iterations = 1
	ff.Polarization.Tolerance = 1e-16
	c, err := New(ff, 2)
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	box := cubic(t, 20)
	pos := dimer(2.9)

	_, err = c.EvaluateEnergy(pos, box, pairsFor(t, pos, box))
	var solErr pme.SolverError
	if !errors.As(err, &solErr) {
		t.Fatalf("got %v, want SolverError", err)
	}
}

func TestEvaluateAgreesWithEnergy(t *testing.T) {
	c, box := testSetup(t, 2)
	pos := dimer(2.9)
	pairs := pairsFor(t, pos, box)

	e1, err := c.EvaluateEnergy(pos, box, pairs)
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	e2, _, err := c.Evaluate(pos, box, pairs)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if e1 != e2 {
		t.Errorf("energy-only %g, combined %g", e1, e2)
	}
}

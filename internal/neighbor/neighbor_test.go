package neighbor

import (
	"testing"

	"github.com/plumbum082/DMFF/internal/geom"
)

func cubic(t *testing.T, l float64) *geom.Box {
	t.Helper()
	box, err := geom.Cubic(l)
	if err != nil {
		t.Fatal(err)
	}
	return box
}

func TestBuildSimplePair(t *testing.T) {
	box := cubic(t, 20)
	pos := []geom.Vec{{1, 1, 1}, {3, 1, 1}, {12, 12, 12}}
	pl, err := Build(pos, box, 4.0)
	if err != nil {
		t.Fatal(err)
	}
	if pl.Len() != 1 {
		t.Fatalf("expected 1 pair, got %d", pl.Len())
	}
	p := pl.Pairs[0]
	if p.I != 0 || p.J != 1 {
		t.Errorf("pair (%d,%d), want (0,1)", p.I, p.J)
	}
	if p.Shift != [3]int{0, 0, 0} {
		t.Errorf("unexpected shift %v", p.Shift)
	}
}

func TestBuildAcrossBoundary(t *testing.T) {
	box := cubic(t, 10)
	pos := []geom.Vec{{0.5, 5, 5}, {9.5, 5, 5}}
	pl, err := Build(pos, box, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if pl.Len() != 1 {
		t.Fatalf("expected wrapped pair, got %d pairs", pl.Len())
	}
	// displacement 0.5-9.5 = -9 wraps to +1, shift -1
	if pl.Pairs[0].Shift != [3]int{-1, 0, 0} {
		t.Errorf("shift %v, want [-1 0 0]", pl.Pairs[0].Shift)
	}
	d := pos[0].Sub(pos[1]).Sub(box.ShiftVec(pl.Pairs[0].Shift))
	if r := d.Norm(); r < 0.99 || r > 1.01 {
		t.Errorf("wrapped distance %g, want 1", r)
	}
}

func TestBuildCutoffTooLarge(t *testing.T) {
	box := cubic(t, 6)
	if _, err := Build([]geom.Vec{{0, 0, 0}}, box, 4.0); err == nil {
		t.Fatal("expected cutoff validation error")
	}
}

func TestTopologyHash(t *testing.T) {
	box := cubic(t, 20)
	pos := []geom.Vec{{1, 1, 1}, {2, 1, 1}, {3, 1, 1}}
	a, _ := Build(pos, box, 4.0)
	b, _ := Build(pos, box, 4.0)
	if a.TopologyHash() != b.TopologyHash() {
		t.Error("identical lists hash differently")
	}
	moved := []geom.Vec{{1, 1, 1}, {2, 1, 1}, {12, 12, 12}}
	c, _ := Build(moved, box, 4.0)
	if a.TopologyHash() == c.TopologyHash() {
		t.Error("different pair topology produced the same hash")
	}
}

package optim

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/plumbum082/DMFF/internal/calc"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
)

// ScanPoint is one sample of the dimer separation profile.
type ScanPoint struct {
	Distance float64
	Energy   float64
}

// Scan sweeps the oxygen-oxygen separation of a water dimer: the second
// molecule is rigidly translated along the O-O axis while its internal
// geometry stays fixed. Returns the profile and the lowest-energy sample.
func Scan(ctx context.Context, c *calc.Calculator, pos []geom.Vec, box *geom.Box, cutoff, from, to float64, points int) ([]ScanPoint, ScanPoint, error) {
	if len(pos) != 6 {
		return nil, ScanPoint{}, fmt.Errorf("separation scan needs a dimer, got %d atoms", len(pos))
	}
	if points < 2 || to <= from || from <= 0 {
		return nil, ScanPoint{}, fmt.Errorf("invalid scan range [%g, %g] with %d points", from, to, points)
	}

	axis := box.MinImage(pos[3].Sub(pos[0]))
	r0 := axis.Norm()
	if r0 == 0 {
		return nil, ScanPoint{}, fmt.Errorf("scan axis undefined: coincident oxygens")
	}
	dir := axis.Scale(1 / r0)

	profile := make([]ScanPoint, 0, points)
	energies := make([]float64, 0, points)
	for i := 0; i < points; i++ {
		select {
		case <-ctx.Done():
			return profile, ScanPoint{}, ctx.Err()
		default:
		}

		r := from + (to-from)*float64(i)/float64(points-1)
		shift := dir.Scale(r - r0)
		moved := append([]geom.Vec(nil), pos...)
		for a := 3; a < 6; a++ {
			moved[a] = pos[a].Add(shift)
		}

		pairs, err := neighbor.Build(moved, box, cutoff)
		if err != nil {
			return profile, ScanPoint{}, err
		}
		e, err := c.EvaluateEnergy(moved, box, pairs)
		if err != nil {
			return profile, ScanPoint{}, fmt.Errorf("scan point r=%.3f: %w", r, err)
		}
		profile = append(profile, ScanPoint{Distance: r, Energy: e})
		energies = append(energies, e)
	}

	best := profile[floats.MinIdx(energies)]
	return profile, best, nil
}

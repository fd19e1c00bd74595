package pme

import (
	"math"

	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
)

// SolveInduced iterates the induced dipoles to self-consistency:
// mu_i = pol_i * E_i(q, mu), with E the total Ewald field (real,
// reciprocal and self parts) in e/angstrom^2 units. Damped fixed-point
// mixing keeps the iteration stable; failure to converge is a SolverError
// rather than a silently wrong energy.
//
// q are the per-atom monopoles, muPerm the permanent dipoles from the
// multipole block. The returned slice holds the induced dipoles only.
func (e *Engine) SolveInduced(pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList, q []float64, muPerm []geom.Vec) ([]geom.Vec, error) {
	n := len(pos)
	kvecs := e.waveVectors(box)
	ph := makePhases(kvecs, pos)

	// Pair geometry and kernels are dipole-independent; compute once.
	type pairData struct {
		i, j int
		dr   geom.Vec
		kr   kernels
	}
	pd := make([]pairData, 0, pairs.Len())
	for _, p := range pairs.Pairs {
		dr := wrapped(pos, box, p)
		c := e.coeffs(p.I, p.J)
		pd = append(pd, pairData{i: p.I, j: p.J, dr: dr, kr: e.kernelsAt(dr.Norm(), c)})
	}

	mu := make([]geom.Vec, n)    // induced
	tot := make([]geom.Vec, n)   // permanent + induced
	field := make([]geom.Vec, n)
	selfMu := e.selfDipole()

	residual := math.Inf(1)
	for it := 0; it < e.set.Iterations; it++ {
		for i := range tot {
			tot[i] = muPerm[i].Add(mu[i])
			field[i] = geom.Vec{}
		}

		// real-space field from charges and dipoles
		for _, p := range pd {
			i, j, dr := p.i, p.j, p.dr
			// charge contributions
			field[i] = field[i].Add(dr.Scale(q[j] * p.kr.c1p))
			field[j] = field[j].Sub(dr.Scale(q[i] * p.kr.c1p))
			// dipole contributions
			field[i] = field[i].Add(dr.Scale(p.kr.c2d * tot[j].Dot(dr))).Sub(tot[j].Scale(p.kr.c1d))
			field[j] = field[j].Add(dr.Scale(p.kr.c2d * tot[i].Dot(dr))).Sub(tot[i].Scale(p.kr.c1d))
		}

		recipField(kvecs, ph, q, tot, field)

		// self field
		for i := range field {
			field[i] = field[i].Add(tot[i].Scale(2 * selfMu))
		}

		residual = 0
		w := e.set.Mixing
		for i := range mu {
			next := field[i].Scale(e.ps.Pol[i])
			mixed := mu[i].Scale(1 - w).Add(next.Scale(w))
			if r := mixed.Sub(mu[i]).Norm(); r > residual {
				residual = r
			}
			mu[i] = mixed
		}
		if residual < e.set.Tolerance {
			return mu, nil
		}
	}
	return nil, SolverError{Iterations: e.set.Iterations, Residual: residual, Tolerance: e.set.Tolerance}
}

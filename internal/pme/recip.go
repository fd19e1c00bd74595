package pme

import (
	"math"

	"github.com/plumbum082/DMFF/internal/geom"
)

// waveVector is one reciprocal lattice vector with its energy prefactor
// (2 pi / V) * exp(-k^2 / 4 kappa^2) / k^2, without the Coulomb constant.
type waveVector struct {
	k    geom.Vec
	pref float64
}

// waveVectors enumerates the reciprocal sphere |n| <= KMax, skipping k=0
// and vectors whose Gaussian weight is negligible.
func (e *Engine) waveVectors(box *geom.Box) []waveVector {
	const weightFloor = 1e-10

	// reciprocal basis: k_c = 2 pi * sum_j inv[c][j] n_j
	inv := boxInv(box)
	kmax := e.set.KMax
	fourKap2 := 4 * e.set.Kappa * e.set.Kappa
	twoPiOverV := 2 * math.Pi / box.Volume()

	var out []waveVector
	for n1 := -kmax; n1 <= kmax; n1++ {
		for n2 := -kmax; n2 <= kmax; n2++ {
			for n3 := -kmax; n3 <= kmax; n3++ {
				if n1 == 0 && n2 == 0 && n3 == 0 {
					continue
				}
				if n1*n1+n2*n2+n3*n3 > kmax*kmax {
					continue
				}
				var k geom.Vec
				for c := 0; c < 3; c++ {
					k[c] = 2 * math.Pi * (inv[c][0]*float64(n1) + inv[c][1]*float64(n2) + inv[c][2]*float64(n3))
				}
				k2 := k.Dot(k)
				w := math.Exp(-k2 / fourKap2)
				if w < weightFloor {
					continue
				}
				out = append(out, waveVector{k: k, pref: twoPiOverV * w / k2})
			}
		}
	}
	return out
}

func boxInv(box *geom.Box) [3][3]float64 {
	// Recover the inverse from Frac applied to unit vectors.
	var inv [3][3]float64
	for i := 0; i < 3; i++ {
		var u geom.Vec
		u[i] = 1
		s := box.Frac(u)
		for j := 0; j < 3; j++ {
			inv[i][j] = s[j]
		}
	}
	return inv
}

// phases holds cos(k.r) and sin(k.r) for every wave vector and atom,
// precomputed once per solve since they do not depend on the dipoles.
type phases struct {
	cos [][]float64 // [kvec][atom]
	sin [][]float64
}

func makePhases(kvecs []waveVector, pos []geom.Vec) phases {
	ph := phases{
		cos: make([][]float64, len(kvecs)),
		sin: make([][]float64, len(kvecs)),
	}
	for ki, kv := range kvecs {
		ph.cos[ki] = make([]float64, len(pos))
		ph.sin[ki] = make([]float64, len(pos))
		for i, r := range pos {
			a := kv.k.Dot(r)
			ph.cos[ki][i] = math.Cos(a)
			ph.sin[ki][i] = math.Sin(a)
		}
	}
	return ph
}

// recipField accumulates the reciprocal-space field (without Coulomb
// factor) at every atom for the current charges and total dipoles.
func recipField(kvecs []waveVector, ph phases, q []float64, mu []geom.Vec, field []geom.Vec) {
	for ki, kv := range kvecs {
		var sre, sim float64
		for i := range q {
			kmu := kv.k.Dot(mu[i])
			c, s := ph.cos[ki][i], ph.sin[ki][i]
			sre += q[i]*c - kmu*s
			sim += q[i]*s + kmu*c
		}
		for i := range q {
			c, s := ph.cos[ki][i], ph.sin[ki][i]
			// E_a = 2 pref k_a (S_re sin_i - S_im cos_i)
			f := 2 * kv.pref * (sre*s - sim*c)
			field[i][0] += f * kv.k[0]
			field[i][1] += f * kv.k[1]
			field[i][2] += f * kv.k[2]
		}
	}
}

// Package pme evaluates the electrostatic, polarization and dispersion
// energy of fluctuating monopoles plus permanent and induced dipoles under
// Ewald summation.
//
// The reciprocal-space part is a direct sum over wave vectors rather than
// an FFT mesh so the whole energy stays expressible as tape primitives.
// The induced-dipole solver iterates in plain float64 to convergence; the
// tape then evaluates the full variational energy at the solved dipoles,
// whose dipole-gradient vanishes at the solution, so position gradients
// through the tape are exact without differentiating the solver.
//
// Intramolecular masking is handled as real-space corrections against the
// unmasked reciprocal sum, which requires every masked pair to sit inside
// the cutoff. Water triplets satisfy this for any cutoff above ~2 A.
package pme

import (
	"fmt"
	"math"

	"github.com/plumbum082/DMFF/internal/ffield"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
)

// Coulomb is e^2/(4 pi eps0) in kJ/mol * angstrom.
const Coulomb = 1389.35455846

const sqrtPi = 1.7724538509055159

// Settings is the static configuration of the engine; it participates in
// the calculator's plan key.
type Settings struct {
	Kappa      float64
	KMax       int
	Iterations int
	Tolerance  float64
	Mixing     float64
}

// SettingsFrom pulls engine settings out of a force field.
func SettingsFrom(ff *ffield.ForceField) Settings {
	return Settings{
		Kappa:      ff.Ewald.Kappa,
		KMax:       ff.Ewald.KMax,
		Iterations: ff.Polarization.Iterations,
		Tolerance:  ff.Polarization.Tolerance,
		Mixing:     ff.Polarization.Mixing,
	}
}

// SolverError reports a diverged or unconverged induced-dipole iteration.
// It propagates unchanged through the calculator; retrying a deterministic
// computation has no value.
type SolverError struct {
	Iterations int
	Residual   float64
	Tolerance  float64
}

func (e SolverError) Error() string {
	return fmt.Sprintf("polarization solver: residual %g above %g after %d iterations",
		e.Residual, e.Tolerance, e.Iterations)
}

// Engine binds settings to a broadcast parameter set.
type Engine struct {
	set Settings
	ps  *ffield.ParamSet
}

func New(set Settings, ps *ffield.ParamSet) *Engine {
	return &Engine{set: set, ps: ps}
}

func (e *Engine) Settings() Settings { return e.set }

// pairCoeffs are the position-independent constants of one neighbor pair.
type pairCoeffs struct {
	m, p, d  float64 // masking scales
	thole    float64
	dampLen  float64 // (pol_i*pol_j)^(1/6)
	damped   bool
}

func (e *Engine) coeffs(i, j int) pairCoeffs {
	c := pairCoeffs{
		m:     ffield.ScaleFor(e.ps.MScales, i, j),
		p:     ffield.ScaleFor(e.ps.PScales, i, j),
		d:     ffield.ScaleFor(e.ps.DScales, i, j),
		thole: math.Min(e.ps.Thole[i], e.ps.Thole[j]),
	}
	prod := e.ps.Pol[i] * e.ps.Pol[j]
	if prod > 0 && c.thole > 0 {
		c.dampLen = math.Pow(prod, 1.0/6.0)
		c.damped = true
	}
	return c
}

// kernels are the screened interaction coefficients of one pair at
// distance r: charge-charge (c0), charge-dipole (c1p), and the two
// dipole-dipole ranks (c1d, c2d), each with the Ewald erfc screening and
// the bare-interaction correction for intramolecular masking and Thole
// damping already folded in.
type kernels struct {
	c0, c1p, c1d, c2d float64
	invR, invR6       float64
}

func (e *Engine) kernelsAt(r float64, c pairCoeffs) kernels {
	kap := e.set.Kappa
	invR := 1 / r
	invR2 := invR * invR
	invR3 := invR2 * invR
	invR5 := invR3 * invR2

	g := 2 * kap / sqrtPi * math.Exp(-kap*kap*r*r)
	b0 := math.Erfc(kap*r) * invR
	b1 := (b0 + g) * invR2
	b2 := (3*b1 + 2*kap*kap*g) * invR2

	l3, l5 := 1.0, 1.0
	if c.damped {
		u := r / c.dampLen
		au3 := c.thole * u * u * u
		ex := math.Exp(-au3)
		l3 = 1 - ex
		l5 = 1 - (1+au3)*ex
	}

	return kernels{
		c0:    b0 - (1-c.m)*invR,
		c1p:   b1 - (1-c.p*l3)*invR3,
		c1d:   b1 - (1-c.d*l3)*invR3,
		c2d:   b2 - 3*(1-c.d*l5)*invR5,
		invR:  invR,
		invR6: invR3 * invR3,
	}
}

// selfDipole is the prefactor of the dipole Ewald self term.
func (e *Engine) selfDipole() float64 {
	k := e.set.Kappa
	return 2 * k * k * k / (3 * sqrtPi)
}

// selfCharge is the prefactor of the charge Ewald self term.
func (e *Engine) selfCharge() float64 {
	return e.set.Kappa / sqrtPi
}

// wrapped returns the minimum-image displacement of a pair using its
// stored lattice shift.
func wrapped(pos []geom.Vec, box *geom.Box, p neighbor.Pair) geom.Vec {
	return pos[p.I].Sub(pos[p.J]).Sub(box.ShiftVec(p.Shift))
}

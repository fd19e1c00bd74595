// Package fluctq maps water internal coordinates to geometry-dependent
// atomic monopoles and dispersion amplitudes via fixed empirical
// polynomials. Angles are in degrees and lengths in angstrom; the
// coefficients are only valid in those units.
package fluctq

import (
	"math"

	"github.com/plumbum082/DMFF/internal/ad"
	"github.com/plumbum082/DMFF/internal/geom"
)

// Dipole-surface coefficients of the published parameterization.
// Reproduced exactly, not re-derived.
const (
	dipA0 = -0.016858755
	dipA1 = 0.002287251
	dipA2 = 0.239667591
	dipA3 = -0.070483437
)

// Dispersion-surface coefficients (atomic units). Model-internal fitted
// constants, not taken from a published surface; same functional form as
// the dipole surface. C6_H is floored at zero because the fit goes
// negative outside its domain.
const (
	c6H0 = -1.95
	c6H1 = 0.012
	c6H2 = 1.52
	c6H3 = 1.52

	c6O0 = 12.8
	c6O1 = 0.044
	c6O2 = 3.6
	c6O3 = 3.6
)

// C6Unit converts the polynomial output from atomic units to
// angstrom^6 * kJ/mol: bohr^6 in angstrom^6 times hartree in kJ/mol.
var C6Unit = math.Pow(0.529, 6) * 2625.5

// Charges is the per-molecule output: monopoles and dispersion amplitudes
// (sqrt of the unit-converted, clamped C6) for O, H1, H2.
type Charges struct {
	QO, QH1, QH2 float64
	AO, AH1, AH2 float64
}

// FromInternals evaluates the model in plain float64, for inspection and
// tests. The differentiated pipeline uses OnTape.
func FromInternals(in geom.Internals) Charges {
	dip := dipA0 + dipA1*in.AngleDeg + dipA2*in.DOH1 + dipA3*in.DOH2
	qh := dip / in.DOH1 // dROH1 only; the asymmetry is part of the fit
	c6h := math.Max(c6H0+c6H1*in.AngleDeg+c6H2*in.DOH1+c6H3*in.DOH2, 0) * C6Unit
	c6o := (c6O0 + c6O1*in.AngleDeg + c6O2*in.DOH1 + c6O3*in.DOH2) * C6Unit
	ah := math.Sqrt(c6h)
	return Charges{
		QO: -2 * qh, QH1: qh, QH2: qh,
		AO: math.Sqrt(c6o), AH1: ah, AH2: ah,
	}
}

// TapeCharges mirrors Charges with tape variables.
type TapeCharges struct {
	QO, QH1, QH2 ad.Var
	AO, AH1, AH2 ad.Var
}

// OnTape records the charge model for one molecule. Local neutrality
// (q_O = -2 q_H) holds by construction. The C6_H floor uses a max-with-zero
// primitive whose clamped branch carries a zero sub-gradient, keeping the
// downstream sqrt differentiable.
func OnTape(d1, d2, angleDeg ad.Var) TapeCharges {
	dip := angleDeg.Scale(dipA1).
		Add(d1.Scale(dipA2)).
		Add(d2.Scale(dipA3)).
		AddConst(dipA0)
	qh := dip.Div(d1)

	c6h := angleDeg.Scale(c6H1).
		Add(d1.Scale(c6H2)).
		Add(d2.Scale(c6H3)).
		AddConst(c6H0).
		MaxConst(0).
		Scale(C6Unit)
	c6o := angleDeg.Scale(c6O1).
		Add(d1.Scale(c6O2)).
		Add(d2.Scale(c6O3)).
		AddConst(c6O0).
		Scale(C6Unit)

	ah := c6h.Sqrt()
	return TapeCharges{
		QO: qh.Scale(-2), QH1: qh, QH2: qh,
		AO: c6o.Sqrt(), AH1: ah, AH2: ah,
	}
}

// Scatter places per-molecule outputs into full per-atom arrays at
// stride-3 offsets (O at 0, hydrogens at 1 and 2), matching the fixed atom
// ordering of the parameter broadcast.
func Scatter(mols []TapeCharges) (charges, amps []ad.Var) {
	charges = make([]ad.Var, 3*len(mols))
	amps = make([]ad.Var, 3*len(mols))
	for m, c := range mols {
		charges[3*m] = c.QO
		charges[3*m+1] = c.QH1
		charges[3*m+2] = c.QH2
		amps[3*m] = c.AO
		amps[3*m+1] = c.AH1
		amps[3*m+2] = c.AH2
	}
	return charges, amps
}

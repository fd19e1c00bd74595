package pme

import (
	"github.com/plumbum082/DMFF/internal/ad"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
)

// TapeArgs collects the tape-resident inputs of one energy recording.
// Positions, pair shifts and induced dipoles are leaves owned by the
// caller; charges and dispersion amplitudes are tape expressions produced
// by the fluctuating-charge model.
type TapeArgs struct {
	Tape       *ad.Tape
	Pos        [][3]ad.Var
	PairShifts [][3]ad.Var
	Pairs      *neighbor.PairList
	Box        *geom.Box
	Charges    []ad.Var
	Amps       []ad.Var
	MuInd      [][3]ad.Var
	MuPerm     []geom.Vec
}

// EnergyOnTape records the total energy: Ewald real, reciprocal and self
// electrostatics of charges and dipoles, Thole-damped and scale-masked in
// real space; polarization internal energy; and pairwise dispersion. The
// expression mirrors the float64 field math in solver.go term for term:
// the solved dipoles must be the stationary point of exactly this energy.
func (e *Engine) EnergyOnTape(a TapeArgs) ad.Var {
	t := a.Tape
	kap := e.set.Kappa

	// total dipoles: permanent block + induced leaves
	mu := make([][3]ad.Var, len(a.Pos))
	for i := range mu {
		for c := 0; c < 3; c++ {
			mu[i][c] = a.MuInd[i][c].AddConst(a.MuPerm[i][c])
		}
	}

	elec := t.Const(0)
	disp := t.Const(0)

	for pi, p := range a.Pairs.Pairs {
		i, j := p.I, p.J
		pc := e.coeffs(i, j)

		var dr [3]ad.Var
		for c := 0; c < 3; c++ {
			dr[c] = a.Pos[i][c].Sub(a.Pos[j][c]).Sub(a.PairShifts[pi][c])
		}
		r2 := ad.Dot3(dr, dr)
		r := r2.Sqrt()
		invR := t.Const(1).Div(r)
		invR2 := invR.Square()
		invR3 := invR2.Mul(invR)
		invR5 := invR3.Mul(invR2)
		invR6 := invR3.Square()

		g := r2.Scale(-kap * kap).Exp().Scale(2 * kap / sqrtPi)
		b0 := r.Scale(kap).Erfc().Mul(invR)
		b1 := b0.Add(g).Mul(invR2)
		b2 := b1.Scale(3).Add(g.Scale(2 * kap * kap)).Mul(invR2)

		var c1p, c1d, c2d ad.Var
		if pc.damped {
			au3 := r2.Mul(r).Scale(pc.thole / (pc.dampLen * pc.dampLen * pc.dampLen))
			ex := au3.Neg().Exp()
			l3 := ex.Neg().AddConst(1)
			l5 := au3.AddConst(1).Mul(ex).Neg().AddConst(1)
			c1p = b1.Sub(invR3.Mul(l3.Scale(pc.p).Neg().AddConst(1)))
			c1d = b1.Sub(invR3.Mul(l3.Scale(pc.d).Neg().AddConst(1)))
			c2d = b2.Sub(invR5.Scale(3).Mul(l5.Scale(pc.d).Neg().AddConst(1)))
		} else {
			c1p = b1.Sub(invR3.Scale(1 - pc.p))
			c1d = b1.Sub(invR3.Scale(1 - pc.d))
			c2d = b2.Sub(invR5.Scale(3 * (1 - pc.d)))
		}
		c0 := b0.Sub(invR.Scale(1 - pc.m))

		qi, qj := a.Charges[i], a.Charges[j]
		muiDr := ad.Dot3(mu[i], dr)
		mujDr := ad.Dot3(mu[j], dr)

		elec = elec.Add(qi.Mul(qj).Mul(c0))
		elec = elec.Add(c1p.Mul(qi.Mul(mujDr).Sub(qj.Mul(muiDr))))
		elec = elec.Add(c1d.Mul(ad.Dot3(mu[i], mu[j])))
		elec = elec.Sub(c2d.Mul(muiDr).Mul(mujDr))

		if pc.m != 0 {
			disp = disp.Sub(a.Amps[i].Mul(a.Amps[j]).Mul(invR6).Scale(pc.m))
		}
	}

	// reciprocal space
	for _, kv := range e.waveVectors(a.Box) {
		sre := t.Const(0)
		sim := t.Const(0)
		for i := range a.Pos {
			phase := a.Pos[i][0].Scale(kv.k[0]).
				Add(a.Pos[i][1].Scale(kv.k[1])).
				Add(a.Pos[i][2].Scale(kv.k[2]))
			cs := phase.Cos()
			sn := phase.Sin()
			kmu := mu[i][0].Scale(kv.k[0]).
				Add(mu[i][1].Scale(kv.k[1])).
				Add(mu[i][2].Scale(kv.k[2]))
			sre = sre.Add(a.Charges[i].Mul(cs)).Sub(kmu.Mul(sn))
			sim = sim.Add(a.Charges[i].Mul(sn)).Add(kmu.Mul(cs))
		}
		elec = elec.Add(sre.Square().Add(sim.Square()).Scale(kv.pref))
	}

	// self terms and polarization internal energy
	selfQ := e.selfCharge()
	selfMu := e.selfDipole()
	for i := range a.Pos {
		elec = elec.Sub(a.Charges[i].Square().Scale(selfQ))
		elec = elec.Sub(ad.Dot3(mu[i], mu[i]).Scale(selfMu))
		if pol := e.ps.Pol[i]; pol > 0 {
			elec = elec.Add(ad.Dot3(a.MuInd[i], a.MuInd[i]).Scale(1 / (2 * pol)))
		}
	}

	return elec.Scale(Coulomb).Add(disp)
}

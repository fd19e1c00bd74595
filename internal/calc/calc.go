// Package calc composes the differentiable pipeline: geometry features,
// fluctuating charges, multipole injection and the Ewald engine, recorded
// on one reverse-mode tape. EvaluateEnergy and EvaluateForces are pure
// functions of their explicit inputs; repeated calls with the same pair
// topology replay a cached recording instead of rebuilding the graph.
package calc

import (
	"math"

	"github.com/plumbum082/DMFF/internal/ad"
	"github.com/plumbum082/DMFF/internal/ffield"
	"github.com/plumbum082/DMFF/internal/fluctq"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
	"github.com/plumbum082/DMFF/internal/pme"
)

const degPerRad = 180 / math.Pi

type Calculator struct {
	ff     *ffield.ForceField
	ps     *ffield.ParamSet
	engine *pme.Engine
	nMol   int
	plans  map[planKey]*plan
}

type planKey struct {
	nAtoms   int
	pairHash uint64
	box      [9]float64
	set      pme.Settings
}

// plan is a recorded computation graph plus the layout of its settable
// leaves: positions, pair shift vectors, intramolecular wrap shifts and
// induced dipoles, in registration order.
type plan struct {
	tape     *ad.Tape
	energy   ad.Var
	posBase  int
	pairBase int
	molBase  int
	muBase   int
}

// New broadcasts the force field for nMol water molecules and prepares an
// empty plan cache.
func New(ff *ffield.ForceField, nMol int) (*Calculator, error) {
	if err := ff.Validate(); err != nil {
		return nil, err
	}
	ps, err := ffield.Broadcast(ff, nMol)
	if err != nil {
		return nil, err
	}
	return &Calculator{
		ff:     ff,
		ps:     ps,
		engine: pme.New(pme.SettingsFrom(ff), ps),
		nMol:   nMol,
		plans:  make(map[planKey]*plan),
	}, nil
}

// ParamSet exposes the shared broadcast template (read-only by convention).
func (c *Calculator) ParamSet() *ffield.ParamSet { return c.ps }

// EvaluateEnergy returns the total energy in kJ/mol.
func (c *Calculator) EvaluateEnergy(pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList) (float64, error) {
	e, _, err := c.evaluate(pos, box, pairs, false)
	return e, err
}

// EvaluateForces returns the forces, the negated gradient of
// EvaluateEnergy with respect to positions only; box and pair shifts are
// non-differentiated auxiliary inputs.
func (c *Calculator) EvaluateForces(pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList) ([]geom.Vec, error) {
	_, f, err := c.evaluate(pos, box, pairs, true)
	return f, err
}

// Evaluate returns energy and forces from a single recording pass.
func (c *Calculator) Evaluate(pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList) (float64, []geom.Vec, error) {
	return c.evaluate(pos, box, pairs, true)
}

func (c *Calculator) evaluate(pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList, wantForces bool) (float64, []geom.Vec, error) {
	if err := geom.CheckShape(len(pos)); err != nil {
		return 0, nil, err
	}
	if len(c.ps.MapAtomtype) != len(pos) {
		return 0, nil, geom.ShapeMismatchError{NAtoms: len(pos), MapLen: len(c.ps.MapAtomtype)}
	}

	// Degenerate geometry is a domain error detected up front, never a
	// silently produced NaN; the error names the offending molecule.
	internals, err := geom.MoleculeInternals(pos, box)
	if err != nil {
		return 0, nil, err
	}

	// Solve the induced dipoles outside the tape. The tape evaluates the
	// variational energy whose dipole-gradient vanishes at this solution.
	q := make([]float64, len(pos))
	for m, in := range internals {
		ch := fluctq.FromInternals(in)
		q[3*m], q[3*m+1], q[3*m+2] = ch.QO, ch.QH1, ch.QH2
	}
	muPerm := make([]geom.Vec, len(pos))
	for i, row := range c.ps.QLocal {
		muPerm[i] = geom.Vec{row[1], row[2], row[3]}
	}
	mu, err := c.engine.SolveInduced(pos, box, pairs, q, muPerm)
	if err != nil {
		return 0, nil, err // upstream engine failure, propagated unchanged
	}

	p := c.planFor(pos, box, pairs)
	c.setLeaves(p, pos, box, pairs, mu)
	p.tape.Forward()
	energy := p.tape.Value(p.energy)

	if !wantForces {
		return energy, nil, nil
	}
	p.tape.Backward(p.energy)
	forces := make([]geom.Vec, len(pos))
	for i := range pos {
		for k := 0; k < 3; k++ {
			forces[i][k] = -p.tape.LeafGrad(p.posBase + 3*i + k)
		}
	}
	return energy, forces, nil
}

func (c *Calculator) planFor(pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList) *plan {
	key := planKey{
		nAtoms:   len(pos),
		pairHash: pairs.TopologyHash(),
		set:      c.engine.Settings(),
	}
	bv := box.Vectors()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			key.box[3*i+j] = bv[i][j]
		}
	}
	if p, ok := c.plans[key]; ok {
		return p
	}
	p := c.record(pos, box, pairs)
	c.plans[key] = p
	return p
}

// record builds the computation graph once for a given shape. All branch
// decisions depend only on static configuration, so the recording stays
// valid for any positions with the same pair topology.
func (c *Calculator) record(pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList) *plan {
	t := ad.NewTape()
	p := &plan{tape: t}

	p.posBase = t.NumLeaves()
	posVars := make([][3]ad.Var, len(pos))
	for i := range pos {
		for k := 0; k < 3; k++ {
			posVars[i][k] = t.Leaf(pos[i][k])
		}
	}

	p.pairBase = t.NumLeaves()
	pairShifts := make([][3]ad.Var, pairs.Len())
	for pi, pr := range pairs.Pairs {
		sv := box.ShiftVec(pr.Shift)
		for k := 0; k < 3; k++ {
			pairShifts[pi][k] = t.Leaf(sv[k])
		}
	}

	p.molBase = t.NumLeaves()
	nMol := len(pos) / geom.AtomsPerMolecule
	molShiftVars := make([][2][3]ad.Var, nMol)
	molShifts := geom.MoleculeShifts(pos, box)
	for m := 0; m < nMol; m++ {
		for b := 0; b < 2; b++ {
			sv := box.ShiftVec(molShifts[m][b])
			for k := 0; k < 3; k++ {
				molShiftVars[m][b][k] = t.Leaf(sv[k])
			}
		}
	}

	p.muBase = t.NumLeaves()
	muVars := make([][3]ad.Var, len(pos))
	for i := range pos {
		for k := 0; k < 3; k++ {
			muVars[i][k] = t.Leaf(0)
		}
	}

	// geometry features -> fluctuating charges
	mols := make([]fluctq.TapeCharges, nMol)
	for m := 0; m < nMol; m++ {
		var h1, h2 [3]ad.Var
		for k := 0; k < 3; k++ {
			h1[k] = posVars[3*m+1][k].Sub(posVars[3*m][k]).Sub(molShiftVars[m][0][k])
			h2[k] = posVars[3*m+2][k].Sub(posVars[3*m][k]).Sub(molShiftVars[m][1][k])
		}
		d1 := ad.Dot3(h1, h1).Sqrt()
		d2 := ad.Dot3(h2, h2).Sqrt()
		arg := ad.Dot3(h1, h2).Div(d1.Mul(d2))
		angle := arg.AcosClamped(geom.AcosEps).Scale(degPerRad)
		mols[m] = fluctq.OnTape(d1, d2, angle)
	}
	charges, amps := fluctq.Scatter(mols)
	block := InjectMonopoles(c.ps, charges)

	p.energy = c.engine.EnergyOnTape(pme.TapeArgs{
		Tape:       t,
		Pos:        posVars,
		PairShifts: pairShifts,
		Pairs:      pairs,
		Box:        box,
		Charges:    block.Mono,
		Amps:       amps,
		MuInd:      muVars,
		MuPerm:     block.Dip,
	})
	return p
}

func (c *Calculator) setLeaves(p *plan, pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList, mu []geom.Vec) {
	t := p.tape
	for i := range pos {
		for k := 0; k < 3; k++ {
			t.SetLeaf(p.posBase+3*i+k, pos[i][k])
		}
	}
	for pi, pr := range pairs.Pairs {
		sv := box.ShiftVec(pr.Shift)
		for k := 0; k < 3; k++ {
			t.SetLeaf(p.pairBase+3*pi+k, sv[k])
		}
	}
	for m, ms := range geom.MoleculeShifts(pos, box) {
		for b := 0; b < 2; b++ {
			sv := box.ShiftVec(ms[b])
			for k := 0; k < 3; k++ {
				t.SetLeaf(p.molBase+6*m+3*b+k, sv[k])
			}
		}
	}
	for i := range mu {
		for k := 0; k < 3; k++ {
			t.SetLeaf(p.muBase+3*i+k, mu[i][k])
		}
	}
}

// PlanCount reports how many compiled recordings the cache holds.
func (c *Calculator) PlanCount() int { return len(c.plans) }

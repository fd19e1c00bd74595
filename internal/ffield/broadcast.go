package ffield

import "github.com/plumbum082/DMFF/internal/geom"

// ParamSet is the per-atom expansion of the type tables: the shared
// template the calculator reads. Only QLocal ever needs mutation and the
// calculator does that on a private clone.
type ParamSet struct {
	// QLocal rows are [monopole, dipole_x, dipole_y, dipole_z] per atom.
	QLocal      [][4]float64
	Pol         []float64
	Thole       []float64
	MScales     []float64
	PScales     []float64
	DScales     []float64
	MapAtomtype []int
}

// Broadcast expands the per-type tables to nMol water molecules laid out as
// repeating O-H-H triplets.
func Broadcast(f *ForceField, nMol int) (*ParamSet, error) {
	n := nMol * geom.AtomsPerMolecule
	ps := &ParamSet{
		QLocal:      make([][4]float64, n),
		Pol:         make([]float64, n),
		Thole:       make([]float64, n),
		MScales:     append([]float64(nil), f.Scales.M...),
		PScales:     append([]float64(nil), f.Scales.P...),
		DScales:     append([]float64(nil), f.Scales.D...),
		MapAtomtype: make([]int, n),
	}
	for m := 0; m < nMol; m++ {
		for s, name := range f.Residue {
			ti, err := f.typeIndex(name)
			if err != nil {
				return nil, err
			}
			i := m*geom.AtomsPerMolecule + s
			at := f.AtomTypes[ti]
			ps.MapAtomtype[i] = ti
			ps.QLocal[i] = [4]float64{at.Charge, at.Dipole[0], at.Dipole[1], at.Dipole[2]}
			ps.Pol[i] = at.Polarizability
			ps.Thole[i] = at.Thole
		}
	}
	return ps, nil
}

// CloneQLocal returns a private copy of the multipole block for
// copy-on-write monopole injection.
func (p *ParamSet) CloneQLocal() [][4]float64 {
	q := make([][4]float64, len(p.QLocal))
	copy(q, p.QLocal)
	return q
}

// ScaleFor looks up the intramolecular masking factor for an atom pair in a
// scale table. Atoms in different molecules are unmasked. Within a water
// triplet the oxygen-hydrogen pairs are separated by one bond and the
// hydrogen pair by two.
func ScaleFor(table []float64, i, j int) float64 {
	if i/geom.AtomsPerMolecule != j/geom.AtomsPerMolecule {
		return 1
	}
	sep := 2
	if i%geom.AtomsPerMolecule == 0 || j%geom.AtomsPerMolecule == 0 {
		sep = 1
	}
	return table[sep-1]
}

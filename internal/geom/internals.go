package geom

import (
	"fmt"
	"math"
)

const (
	// MinBondLength is the bond length below which a molecule is treated
	// as collapsed rather than silently producing NaN downstream.
	MinBondLength = 1e-4

	// AcosEps keeps the arc-cosine argument strictly inside (-1, 1) so the
	// angle stays differentiable at linear geometries.
	AcosEps = 1e-8

	// AtomsPerMolecule is the fixed O-H-H triplet size.
	AtomsPerMolecule = 3
)

// ShapeMismatchError reports positions whose length is not a whole number
// of molecules, or an atom-type map that disagrees with the positions.
type ShapeMismatchError struct {
	NAtoms int
	MapLen int
}

func (e ShapeMismatchError) Error() string {
	if e.NAtoms%AtomsPerMolecule != 0 {
		return fmt.Sprintf("positions hold %d atoms, not divisible by %d", e.NAtoms, AtomsPerMolecule)
	}
	return fmt.Sprintf("atom type map has %d entries for %d atoms", e.MapLen, e.NAtoms)
}

// DegenerateGeometryError reports a collapsed bond in a specific molecule.
type DegenerateGeometryError struct {
	Molecule int
	Bond     string
	Length   float64
}

func (e DegenerateGeometryError) Error() string {
	return fmt.Sprintf("molecule %d: bond %s length %g below %g", e.Molecule, e.Bond, e.Length, MinBondLength)
}

// Internals holds the geometry features of one water molecule: the two O-H
// bond lengths in angstrom and the H-O-H bend angle in degrees. Recomputed
// on every call, never cached across position changes.
type Internals struct {
	DOH1     float64
	DOH2     float64
	AngleDeg float64
}

// CheckShape validates the triplet layout before any computation.
func CheckShape(nAtoms int) error {
	if nAtoms == 0 || nAtoms%AtomsPerMolecule != 0 {
		return ShapeMismatchError{NAtoms: nAtoms}
	}
	return nil
}

// MoleculeInternals derives per-molecule internal coordinates from cartesian
// positions with minimum-image corrected O-H vectors, so intramolecular
// bonds spanning a periodic boundary are measured correctly.
func MoleculeInternals(positions []Vec, box *Box) ([]Internals, error) {
	if err := CheckShape(len(positions)); err != nil {
		return nil, err
	}
	nMol := len(positions) / AtomsPerMolecule
	out := make([]Internals, nMol)
	for m := 0; m < nMol; m++ {
		o := positions[3*m]
		h1 := box.MinImage(positions[3*m+1].Sub(o))
		h2 := box.MinImage(positions[3*m+2].Sub(o))
		d1 := h1.Norm()
		d2 := h2.Norm()
		if d1 < MinBondLength {
			return nil, DegenerateGeometryError{Molecule: m, Bond: "O-H1", Length: d1}
		}
		if d2 < MinBondLength {
			return nil, DegenerateGeometryError{Molecule: m, Bond: "O-H2", Length: d2}
		}
		arg := h1.Dot(h2) / (d1 * d2)
		arg = math.Min(math.Max(arg, -1+AcosEps), 1-AcosEps)
		out[m] = Internals{
			DOH1:     d1,
			DOH2:     d2,
			AngleDeg: math.Acos(arg) * 180 / math.Pi,
		}
	}
	return out, nil
}

// MoleculeShifts returns, for every molecule, the integer lattice shifts of
// the two O-H displacement vectors. The calculator feeds these to the tape
// as non-differentiated leaves: the shift is piecewise constant in the
// positions, so the wrapped bond vector stays differentiable.
func MoleculeShifts(positions []Vec, box *Box) [][2][3]int {
	nMol := len(positions) / AtomsPerMolecule
	out := make([][2][3]int, nMol)
	for m := 0; m < nMol; m++ {
		o := positions[3*m]
		out[m][0] = box.ImageShift(positions[3*m+1].Sub(o))
		out[m][1] = box.ImageShift(positions[3*m+2].Sub(o))
	}
	return out
}

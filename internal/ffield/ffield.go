// Package ffield loads force-field parameters and broadcasts per-type
// tables to per-atom arrays for the calculator. The broadcast arrays are
// shared, immutable state: the calculator clones what it needs to mutate.
package ffield

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AtomType is one row of the per-type parameter tables. Charge and dipole
// form the local multipole block; polarizability and thole drive the
// induced-dipole model.
type AtomType struct {
	Name           string     `yaml:"name"`
	Charge         float64    `yaml:"charge"`
	Dipole         [3]float64 `yaml:"dipole"`
	Polarizability float64    `yaml:"polarizability"`
	Thole          float64    `yaml:"thole"`
}

// Scales are intramolecular masking tables indexed by bond separation
// minus one: index 0 applies to 1-2 pairs, index 1 to 1-3 pairs.
type Scales struct {
	M []float64 `yaml:"mscales"`
	P []float64 `yaml:"pscales"`
	D []float64 `yaml:"dscales"`
}

// Ewald holds the splitting parameter (1/angstrom) and the reciprocal-space
// summation bound per axis.
type Ewald struct {
	Kappa float64 `yaml:"kappa"`
	KMax  int     `yaml:"kmax"`
}

// Polarization configures the induced-dipole fixed-point solver. The
// iteration count is part of the computation shape, so it is static
// configuration rather than a runtime stopping rule.
type Polarization struct {
	Iterations int     `yaml:"iterations"`
	Tolerance  float64 `yaml:"tolerance"`
	Mixing     float64 `yaml:"mixing"`
}

// Units declares the unit system of the file. The empirical charge
// polynomials are only valid in angstrom and kJ/mol, so anything else is
// rejected at load rather than silently misread.
type Units struct {
	Length string `yaml:"length"`
	Energy string `yaml:"energy"`
}

type ForceField struct {
	Name         string       `yaml:"name"`
	Units        Units        `yaml:"units"`
	AtomTypes    []AtomType   `yaml:"atom_types"`
	Residue      []string     `yaml:"residue"`
	Scales       Scales       `yaml:"scales"`
	Ewald        Ewald        `yaml:"ewald"`
	Polarization Polarization `yaml:"polarization"`
}

// Default returns the built-in fluctuating-charge water parameterization.
func Default() *ForceField {
	return &ForceField{
		Name:  "fluctuating-water",
		Units: Units{Length: "angstrom", Energy: "kjmol"},
		AtomTypes: []AtomType{
			{Name: "OW", Charge: -0.8, Polarizability: 0.837, Thole: 0.39},
			{Name: "HW", Charge: 0.4, Polarizability: 0.496, Thole: 0.39},
		},
		Residue: []string{"OW", "HW", "HW"},
		Scales: Scales{
			M: []float64{0, 0},
			P: []float64{0, 0},
			D: []float64{0, 0},
		},
		Ewald:        Ewald{Kappa: 0.6, KMax: 14},
		Polarization: Polarization{Iterations: 60, Tolerance: 1e-7, Mixing: 0.6},
	}
}

// Load reads a force field from a YAML file and validates it.
func Load(path string) (*ForceField, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ff := &ForceField{}
	if err := yaml.Unmarshal(data, ff); err != nil {
		return nil, fmt.Errorf("parse force field %s: %w", path, err)
	}
	if err := ff.Validate(); err != nil {
		return nil, fmt.Errorf("force field %s: %w", path, err)
	}
	return ff, nil
}

// Save writes the force field as YAML.
func Save(path string, ff *ForceField) error {
	data, err := yaml.Marshal(ff)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (f *ForceField) Validate() error {
	switch f.Units.Length {
	case "angstrom", "A":
	default:
		return fmt.Errorf("unsupported length unit %q (want angstrom)", f.Units.Length)
	}
	switch f.Units.Energy {
	case "kjmol", "kj/mol":
	default:
		return fmt.Errorf("unsupported energy unit %q (want kjmol)", f.Units.Energy)
	}
	if len(f.Residue) != 3 {
		return fmt.Errorf("residue must list 3 sites (O, H, H), got %d", len(f.Residue))
	}
	for _, name := range f.Residue {
		if _, err := f.typeIndex(name); err != nil {
			return err
		}
	}
	for _, s := range [][]float64{f.Scales.M, f.Scales.P, f.Scales.D} {
		if len(s) < 2 {
			return fmt.Errorf("scale tables need entries for 1-2 and 1-3 pairs, got %d", len(s))
		}
	}
	for _, at := range f.AtomTypes {
		if at.Polarizability < 0 {
			return fmt.Errorf("atom type %s: negative polarizability", at.Name)
		}
	}
	if f.Ewald.Kappa <= 0 || f.Ewald.KMax < 1 {
		return fmt.Errorf("invalid ewald settings kappa=%g kmax=%d", f.Ewald.Kappa, f.Ewald.KMax)
	}
	if f.Polarization.Iterations < 1 || f.Polarization.Mixing <= 0 || f.Polarization.Mixing > 1 {
		return fmt.Errorf("invalid polarization settings %+v", f.Polarization)
	}
	return nil
}

func (f *ForceField) typeIndex(name string) (int, error) {
	for i, at := range f.AtomTypes {
		if at.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown atom type %q", name)
}

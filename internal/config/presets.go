package config

import "math"

const (
	equilibriumOH    = 0.9572
	equilibriumAngle = 104.52 * math.Pi / 180
	hbondOO          = 2.9
)

// MonomerGeometry returns one equilibrium water molecule with the oxygen
// at (c, c, c) and the hydrogens in the xy plane.
func MonomerGeometry(c float64) [][3]float64 {
	return [][3]float64{
		{c, c, c},
		{c + equilibriumOH, c, c},
		{c + equilibriumOH*math.Cos(equilibriumAngle), c + equilibriumOH*math.Sin(equilibriumAngle), c},
	}
}

// DimerGeometry returns a hydrogen-bonded pair at the given oxygen-oxygen
// separation: the donor O-H points straight at the acceptor oxygen.
func DimerGeometry(c, oo float64) [][3]float64 {
	acceptor := MonomerGeometry(c)
	donor := [][3]float64{
		{c - oo, c, c},
		{c - oo + equilibriumOH, c, c},
		{c - oo + equilibriumOH*math.Cos(equilibriumAngle), c + equilibriumOH*math.Sin(equilibriumAngle), c},
	}
	return append(acceptor, donor...)
}

var Presets = map[string]map[string]*Config{
	"monomer": {
		"equilibrium": {
			Box: DefaultBox, Cutoff: DefaultCutoff,
			Geometry: MonomerGeometry(DefaultBox / 2),
		},
		"stretched": {
			Box: DefaultBox, Cutoff: DefaultCutoff,
			Geometry: [][3]float64{
				{9, 9, 9},
				{9 + 1.05, 9, 9},
				{9 + 1.05*math.Cos(equilibriumAngle), 9 + 1.05*math.Sin(equilibriumAngle), 9},
			},
		},
	},
	"dimer": {
		"hbond": {
			Box: DefaultBox, Cutoff: DefaultCutoff,
			Geometry: DimerGeometry(DefaultBox/2, hbondOO),
			Scan: ScanConfig{From: DefaultScanFrom, To: DefaultScanTo, Points: DefaultScanPts},
			Minimize: MinimizeConfig{
				Steps: DefaultMinSteps, StepSize: DefaultMinStep, ForceTol: DefaultForceTol,
			},
		},
		"far": {
			Box: 25, Cutoff: 11,
			Geometry: DimerGeometry(12.5, 8.0),
		},
		"compressed": {
			Box: DefaultBox, Cutoff: DefaultCutoff,
			Geometry: DimerGeometry(DefaultBox/2, 2.4),
		},
	},
}

func GetPreset(system, preset string) *Config {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	cfg, ok := systemPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(system string) []string {
	systemPresets, ok := Presets[system]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(systemPresets))
	for name := range systemPresets {
		names = append(names, name)
	}
	return names
}

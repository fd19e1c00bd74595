package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plumbum082/DMFF/internal/geom"
)

const (
	DefaultBox      = 18.0
	DefaultCutoff   = 8.5
	DefaultScanFrom = 2.4
	DefaultScanTo   = 6.0
	DefaultScanPts  = 40
	DefaultMinSteps = 300
	DefaultMinStep  = 2e-3
	DefaultForceTol = 1.0
)

type Config struct {
	ForceField string         `yaml:"force_field"`
	Box        float64        `yaml:"box"`
	Cutoff     float64        `yaml:"cutoff"`
	Positions  string         `yaml:"positions"`
	Geometry   [][3]float64   `yaml:"geometry"`
	Scan       ScanConfig     `yaml:"scan"`
	Minimize   MinimizeConfig `yaml:"minimize"`
}

// ScanConfig sweeps the dimer oxygen-oxygen separation in angstrom.
type ScanConfig struct {
	From   float64 `yaml:"from"`
	To     float64 `yaml:"to"`
	Points int     `yaml:"points"`
}

type MinimizeConfig struct {
	Steps    int     `yaml:"steps"`
	StepSize float64 `yaml:"step_size"`
	ForceTol float64 `yaml:"force_tol"`
}

func DefaultConfig() *Config {
	return &Config{
		Box:      DefaultBox,
		Cutoff:   DefaultCutoff,
		Geometry: MonomerGeometry(DefaultBox / 2),
		Scan: ScanConfig{
			From:   DefaultScanFrom,
			To:     DefaultScanTo,
			Points: DefaultScanPts,
		},
		Minimize: MinimizeConfig{
			Steps:    DefaultMinSteps,
			StepSize: DefaultMinStep,
			ForceTol: DefaultForceTol,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadPositions resolves the configured coordinates: an XYZ file when set,
// the inline geometry otherwise.
func (c *Config) LoadPositions() ([]geom.Vec, error) {
	if c.Positions != "" {
		pos, _, err := ReadXYZ(c.Positions)
		return pos, err
	}
	if len(c.Geometry) == 0 {
		return nil, fmt.Errorf("config has neither positions file nor inline geometry")
	}
	pos := make([]geom.Vec, len(c.Geometry))
	for i, g := range c.Geometry {
		pos[i] = geom.Vec{g[0], g[1], g[2]}
	}
	return pos, nil
}

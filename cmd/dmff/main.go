package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/plumbum082/DMFF/internal/calc"
	"github.com/plumbum082/DMFF/internal/config"
	"github.com/plumbum082/DMFF/internal/ffield"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
	"github.com/plumbum082/DMFF/internal/optim"
	"github.com/plumbum082/DMFF/internal/storage"
	"github.com/plumbum082/DMFF/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string
	ffFile     string
	boxEdge    float64
	cutoff     float64
	xyzFile    string
	outFile    string
	// scan bounds
	scanFrom float64
	scanTo   float64
	scanPts  int
	// minimizer settings
	minSteps int
	minStep  float64
	forceTol float64
	live     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dmff",
		Short: "fluctuating-charge polarizable water energetics",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".dmff", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "run config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "preset geometry, e.g. dimer/hbond")
	rootCmd.PersistentFlags().StringVar(&ffFile, "ff", "", "force field file (yaml), built-in when empty")
	rootCmd.PersistentFlags().Float64Var(&boxEdge, "box", 0, "cubic box edge in angstrom")
	rootCmd.PersistentFlags().Float64Var(&cutoff, "cutoff", 0, "real-space cutoff in angstrom")
	rootCmd.PersistentFlags().StringVar(&xyzFile, "xyz", "", "coordinates file (xyz)")

	energyCmd := &cobra.Command{
		Use:   "energy",
		Short: "compute the total energy",
		RunE:  runEnergy,
	}

	forcesCmd := &cobra.Command{
		Use:   "forces",
		Short: "compute per-atom forces",
		RunE:  runForces,
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "sweep the dimer oxygen-oxygen separation",
		RunE:  runScan,
	}
	scanCmd.Flags().Float64Var(&scanFrom, "from", 0, "first separation")
	scanCmd.Flags().Float64Var(&scanTo, "to", 0, "last separation")
	scanCmd.Flags().IntVar(&scanPts, "points", 0, "number of samples")

	minimizeCmd := &cobra.Command{
		Use:   "minimize",
		Short: "relax the geometry along the forces",
		RunE:  runMinimize,
	}
	minimizeCmd.Flags().IntVar(&minSteps, "steps", 0, "step budget")
	minimizeCmd.Flags().Float64Var(&minStep, "step-size", 0, "initial step size")
	minimizeCmd.Flags().Float64Var(&forceTol, "force-tol", 0, "convergence force tolerance")
	minimizeCmd.Flags().BoolVar(&live, "live", false, "watch the descent in a live view")
	minimizeCmd.Flags().StringVar(&outFile, "out", "", "write the relaxed geometry (xyz)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run profile",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [system]",
		Short: "list preset geometries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for system: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	ffCmd := &cobra.Command{
		Use:   "ff",
		Short: "show the active force field",
		RunE:  showForceField,
	}
	ffCmd.Flags().StringVar(&outFile, "write", "", "write the force field to a file instead")

	rootCmd.AddCommand(energyCmd, forcesCmd, scanCmd, minimizeCmd, listCmd, plotCmd, exportCmd, presetsCmd, ffCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// system bundles everything a run needs, resolved from preset, config file
// and flags in that order.
type system struct {
	cfg   *config.Config
	ff    *ffield.ForceField
	calc  *calc.Calculator
	pos   []geom.Vec
	box   *geom.Box
	pairs *neighbor.PairList
}

func buildSystem(cmd *cobra.Command) (*system, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		sys, name, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset must be system/name, got %q", preset)
		}
		p := config.GetPreset(sys, name)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %q (available: %v)", preset, config.ListPresets(sys))
		}
		cfg.Box = p.Box
		cfg.Cutoff = p.Cutoff
		cfg.Geometry = p.Geometry
		cfg.Positions = p.Positions
		if p.Scan.Points > 0 {
			cfg.Scan = p.Scan
		}
		if p.Minimize.Steps > 0 {
			cfg.Minimize = p.Minimize
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("box") {
		cfg.Box = boxEdge
	}
	if cmd.Flags().Changed("cutoff") {
		cfg.Cutoff = cutoff
	}
	if ffFile != "" {
		cfg.ForceField = ffFile
	}
	if xyzFile != "" {
		cfg.Positions = xyzFile
	}

	ff := ffield.Default()
	if cfg.ForceField != "" {
		loaded, err := ffield.Load(cfg.ForceField)
		if err != nil {
			return nil, err
		}
		ff = loaded
	}

	pos, err := cfg.LoadPositions()
	if err != nil {
		return nil, err
	}
	if err := geom.CheckShape(len(pos)); err != nil {
		return nil, err
	}

	box, err := geom.Cubic(cfg.Box)
	if err != nil {
		return nil, fmt.Errorf("box edge %g: %w", cfg.Box, err)
	}
	pairs, err := neighbor.Build(pos, box, cfg.Cutoff)
	if err != nil {
		return nil, err
	}

	c, err := calc.New(ff, len(pos)/geom.AtomsPerMolecule)
	if err != nil {
		return nil, err
	}

	return &system{cfg: cfg, ff: ff, calc: c, pos: pos, box: box, pairs: pairs}, nil
}

func (s *system) metadata(kind string, energy float64) storage.RunMetadata {
	return storage.RunMetadata{
		Kind:       kind,
		ForceField: s.ff.Name,
		Box:        s.cfg.Box,
		Cutoff:     s.cfg.Cutoff,
		NAtoms:     len(s.pos),
		Energy:     energy,
	}
}

func openStore() (*storage.Store, error) {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

func runEnergy(cmd *cobra.Command, args []string) error {
	s, err := buildSystem(cmd)
	if err != nil {
		return err
	}

	start := time.Now()
	e, err := s.calc.EvaluateEnergy(s.pos, s.box, s.pairs)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("atoms: %d  pairs: %d  box: %.2f A  cutoff: %.2f A\n",
		len(s.pos), s.pairs.Len(), s.cfg.Box, s.cfg.Cutoff)
	fmt.Printf("energy: %.6f kJ/mol\n", e)
	fmt.Printf("elapsed: %v\n", elapsed)

	st, err := openStore()
	if err != nil {
		return err
	}
	runID, err := st.Save(s.metadata("energy", e), nil)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runForces(cmd *cobra.Command, args []string) error {
	s, err := buildSystem(cmd)
	if err != nil {
		return err
	}

	e, f, err := s.calc.Evaluate(s.pos, s.box, s.pairs)
	if err != nil {
		return err
	}

	fmt.Printf("energy: %.6f kJ/mol\n\n", e)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ATOM\tFX\tFY\tFZ")
	profile := &storage.Profile{Columns: []string{"atom", "fx", "fy", "fz"}}
	var net geom.Vec
	var maxF float64
	for i, fi := range f {
		fmt.Fprintf(w, "%d\t%.6f\t%.6f\t%.6f\n", i, fi[0], fi[1], fi[2])
		profile.Rows = append(profile.Rows, []float64{float64(i), fi[0], fi[1], fi[2]})
		net = net.Add(fi)
		if n := fi.Norm(); n > maxF {
			maxF = n
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nnet force: %.2e kJ/mol/A\n", net.Norm())

	st, err := openStore()
	if err != nil {
		return err
	}
	meta := s.metadata("forces", e)
	meta.MaxForce = maxF
	runID, err := st.Save(meta, profile)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	s, err := buildSystem(cmd)
	if err != nil {
		return err
	}

	sc := s.cfg.Scan
	if cmd.Flags().Changed("from") {
		sc.From = scanFrom
	}
	if cmd.Flags().Changed("to") {
		sc.To = scanTo
	}
	if cmd.Flags().Changed("points") {
		sc.Points = scanPts
	}

	fmt.Printf("scanning O-O separation %.2f .. %.2f A (%d points)...\n", sc.From, sc.To, sc.Points)
	profile, best, err := optim.Scan(context.Background(), s.calc, s.pos, s.box, s.cfg.Cutoff, sc.From, sc.To, sc.Points)
	if err != nil {
		return err
	}

	energies := make([]float64, len(profile))
	rows := make([][]float64, len(profile))
	for i, p := range profile {
		energies[i] = p.Energy
		rows[i] = []float64{p.Distance, p.Energy}
	}

	graph := asciigraph.Plot(energies,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("energy vs O-O separation (%.2f .. %.2f A)", sc.From, sc.To)),
	)
	fmt.Println(graph)
	fmt.Printf("\nminimum: %.6f kJ/mol at r = %.3f A\n", best.Energy, best.Distance)

	st, err := openStore()
	if err != nil {
		return err
	}
	runID, err := st.Save(s.metadata("scan", best.Energy),
		&storage.Profile{Columns: []string{"distance", "energy"}, Rows: rows})
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runMinimize(cmd *cobra.Command, args []string) error {
	s, err := buildSystem(cmd)
	if err != nil {
		return err
	}

	mc := s.cfg.Minimize
	if cmd.Flags().Changed("steps") {
		mc.Steps = minSteps
	}
	if cmd.Flags().Changed("step-size") {
		mc.StepSize = minStep
	}
	if cmd.Flags().Changed("force-tol") {
		mc.ForceTol = forceTol
	}
	opt := optim.Options{MaxSteps: mc.Steps, StepSize: mc.StepSize, ForceTol: mc.ForceTol}

	var final []geom.Vec
	var steps []optim.Step
	if live {
		min, err := optim.NewMinimizer(s.calc, s.pos, s.box, s.pairs, opt)
		if err != nil {
			return err
		}
		if err := tui.Run(min, "water"); err != nil {
			return err
		}
		final = min.Positions()
		steps = []optim.Step{{Iter: min.Iterations(), Energy: min.Energy(), MaxForce: min.MaxForce()}}
	} else {
		final, steps, err = optim.Minimize(context.Background(), s.calc, s.pos, s.box, s.pairs, opt)
		if err != nil {
			return err
		}
	}

	last := steps[len(steps)-1]
	fmt.Printf("steps: %d\n", last.Iter)
	fmt.Printf("energy: %.6f kJ/mol\n", last.Energy)
	fmt.Printf("max force: %.4f kJ/mol/A (tolerance %.3f)\n", last.MaxForce, mc.ForceTol)

	if outFile != "" {
		comment := fmt.Sprintf("relaxed, E = %.6f kJ/mol", last.Energy)
		if err := config.WriteXYZ(outFile, comment, nil, final); err != nil {
			return err
		}
		fmt.Printf("geometry written to %s\n", outFile)
	}

	rows := make([][]float64, len(steps))
	for i, st := range steps {
		rows[i] = []float64{float64(st.Iter), st.Energy, st.MaxForce}
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	meta := s.metadata("minimize", last.Energy)
	meta.MaxForce = last.MaxForce
	runID, err := st.Save(meta, &storage.Profile{Columns: []string{"iter", "energy", "max_force"}, Rows: rows})
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTIME\tATOMS\tBOX\tCUTOFF\tENERGY")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\t%.1f\t%.4f\n",
			run.ID,
			run.Kind,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.NAtoms,
			run.Box,
			run.Cutoff,
			run.Energy,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	profile, err := st.LoadProfile(args[0])
	if err != nil {
		return err
	}
	if len(profile.Rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("kind: %s\n", meta.Kind)
	fmt.Printf("samples: %d\n\n", len(profile.Rows))

	for col := 1; col < len(profile.Columns); col++ {
		data := make([]float64, len(profile.Rows))
		for i, row := range profile.Rows {
			if col < len(row) {
				data[i] = row[col]
			}
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s vs %s", profile.Columns[col], profile.Columns[0])),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	out := struct {
		storage.RunMetadata
		Columns []string    `json:"columns,omitempty"`
		Rows    [][]float64 `json:"rows,omitempty"`
	}{RunMetadata: *meta}

	if profile, err := st.LoadProfile(args[0]); err == nil {
		out.Columns = profile.Columns
		out.Rows = profile.Rows
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func showForceField(cmd *cobra.Command, args []string) error {
	ff := ffield.Default()
	if ffFile != "" {
		loaded, err := ffield.Load(ffFile)
		if err != nil {
			return err
		}
		ff = loaded
	}

	if outFile != "" {
		if err := ffield.Save(outFile, ff); err != nil {
			return err
		}
		fmt.Printf("force field written to %s\n", outFile)
		return nil
	}

	data, err := yaml.Marshal(ff)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

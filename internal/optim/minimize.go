// Package optim provides the energy exploration drivers built on the
// calculator: a rigid dimer separation scan and a steepest-descent
// geometry minimizer with backtracking step control.
package optim

import (
	"context"
	"fmt"

	"github.com/plumbum082/DMFF/internal/calc"
	"github.com/plumbum082/DMFF/internal/geom"
	"github.com/plumbum082/DMFF/internal/neighbor"
)

type Options struct {
	MaxSteps int
	StepSize float64
	ForceTol float64 // largest force component at convergence, kJ/mol/angstrom
}

// Step is one minimizer iteration: the energy after the move and the
// largest remaining force component.
type Step struct {
	Iter     int
	Energy   float64
	MaxForce float64
	StepSize float64
}

// Minimizer relaxes a configuration by stepping along the forces. The step
// size backtracks whenever a move would raise the energy, so every
// accepted iterate is monotonically downhill.
type Minimizer struct {
	calc   *calc.Calculator
	box    *geom.Box
	pairs  *neighbor.PairList
	pos    []geom.Vec
	forces []geom.Vec
	energy float64
	step   float64
	opt    Options
	iter   int
}

func NewMinimizer(c *calc.Calculator, pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList, opt Options) (*Minimizer, error) {
	if opt.MaxSteps <= 0 || opt.StepSize <= 0 || opt.ForceTol <= 0 {
		return nil, fmt.Errorf("invalid minimizer options %+v", opt)
	}
	m := &Minimizer{
		calc:  c,
		box:   box,
		pairs: pairs,
		pos:   append([]geom.Vec(nil), pos...),
		step:  opt.StepSize,
		opt:   opt,
	}
	e, f, err := c.Evaluate(m.pos, box, pairs)
	if err != nil {
		return nil, err
	}
	m.energy, m.forces = e, f
	return m, nil
}

func (m *Minimizer) Positions() []geom.Vec { return append([]geom.Vec(nil), m.pos...) }
func (m *Minimizer) Energy() float64       { return m.energy }
func (m *Minimizer) MaxForce() float64     { return maxComponent(m.forces) }
func (m *Minimizer) Iterations() int       { return m.iter }

// Converged reports whether every force component is below the tolerance.
func (m *Minimizer) Converged() bool {
	return maxComponent(m.forces) < m.opt.ForceTol
}

// Step performs one accepted downhill move. It returns done=true once the
// forces are converged or the step budget is exhausted.
func (m *Minimizer) Step() (Step, bool, error) {
	if m.Converged() {
		return m.report(), true, nil
	}
	if m.iter >= m.opt.MaxSteps {
		return m.report(), true, nil
	}

	// Backtrack until the trial configuration lowers the energy. A step
	// that small always exists away from the converged point.
	for {
		trial := make([]geom.Vec, len(m.pos))
		for i := range m.pos {
			trial[i] = m.pos[i].Add(m.forces[i].Scale(m.step))
		}
		e, f, err := m.calc.Evaluate(trial, m.box, m.pairs)
		if err != nil {
			return Step{}, false, err
		}
		if e < m.energy {
			m.pos, m.forces, m.energy = trial, f, e
			m.step *= 1.1
			break
		}
		m.step *= 0.5
		if m.step < 1e-12 {
			// Cannot make progress; treat the point as converged.
			m.iter = m.opt.MaxSteps
			return m.report(), true, nil
		}
	}
	m.iter++
	return m.report(), m.Converged() || m.iter >= m.opt.MaxSteps, nil
}

func (m *Minimizer) report() Step {
	return Step{Iter: m.iter, Energy: m.energy, MaxForce: maxComponent(m.forces), StepSize: m.step}
}

// Minimize runs the descent to completion, collecting the trajectory of
// accepted steps. The context cancels between iterations.
func Minimize(ctx context.Context, c *calc.Calculator, pos []geom.Vec, box *geom.Box, pairs *neighbor.PairList, opt Options) ([]geom.Vec, []Step, error) {
	m, err := NewMinimizer(c, pos, box, pairs, opt)
	if err != nil {
		return nil, nil, err
	}
	steps := make([]Step, 0, opt.MaxSteps)
	for {
		select {
		case <-ctx.Done():
			return m.Positions(), steps, ctx.Err()
		default:
		}
		st, done, err := m.Step()
		if err != nil {
			return nil, steps, err
		}
		steps = append(steps, st)
		if done {
			return m.Positions(), steps, nil
		}
	}
}

func maxComponent(f []geom.Vec) float64 {
	var m float64
	for _, fi := range f {
		for k := 0; k < 3; k++ {
			if a := abs(fi[k]); a > m {
				m = a
			}
		}
	}
	return m
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

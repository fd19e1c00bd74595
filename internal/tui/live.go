// Package tui renders a live terminal view of a running geometry
// minimization: energy trace, force convergence and the current geometry
// summary, updating as the descent proceeds.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/plumbum082/DMFF/internal/optim"
)

const historyCapacity = 600

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

// Model drives one minimizer and buffers its trajectory for display.
type Model struct {
	min           *optim.Minimizer
	system        string
	last          optim.Step
	energyHistory []float64
	forceHistory  []float64
	running       bool
	done          bool
	err           error
}

func NewModel(min *optim.Minimizer, system string) Model {
	return Model{
		min:           min,
		system:        system,
		running:       true,
		last:          optim.Step{Energy: min.Energy(), MaxForce: min.MaxForce()},
		energyHistory: []float64{min.Energy()},
		forceHistory:  []float64{min.MaxForce()},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		}
	case TickMsg:
		if m.running && !m.done && m.err == nil {
			m.advance()
		}
		return m, tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m *Model) advance() {
	step, done, err := m.min.Step()
	if err != nil {
		m.err = err
		return
	}
	m.last = step
	m.done = done
	m.energyHistory = append(m.energyHistory, step.Energy)
	if len(m.energyHistory) > historyCapacity {
		m.energyHistory = m.energyHistory[1:]
	}
	m.forceHistory = append(m.forceHistory, step.MaxForce)
	if len(m.forceHistory) > historyCapacity {
		m.forceHistory = m.forceHistory[1:]
	}
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("MINIMIZE " + strings.ToUpper(m.system)) + "\n")

	status := "RUNNING"
	switch {
	case m.err != nil:
		status = errStyle.Render("ERROR: " + m.err.Error())
	case m.done && m.min.Converged():
		status = doneStyle.Render("CONVERGED")
	case m.done:
		status = doneStyle.Render("STOPPED (step budget)")
	case !m.running:
		status = "PAUSED"
	}
	s.WriteString(status + "\n\n")

	stats := []string{
		labelStyle.Render("iteration") + valueStyle.Render(fmt.Sprintf("%d", m.last.Iter)),
		labelStyle.Render("energy") + valueStyle.Render(fmt.Sprintf("%.6f kJ/mol", m.last.Energy)),
		labelStyle.Render("max force") + valueStyle.Render(fmt.Sprintf("%.4f kJ/mol/A", m.last.MaxForce)),
		labelStyle.Render("step size") + valueStyle.Render(fmt.Sprintf("%.2e A", m.last.StepSize)),
	}
	s.WriteString(statsStyle.Render(strings.Join(stats, "\n")) + "\n")

	if len(m.energyHistory) > 1 {
		chart := asciigraph.Plot(m.energyHistory,
			asciigraph.Height(8), asciigraph.Width(60), asciigraph.Caption("energy (kJ/mol)"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}
	if len(m.forceHistory) > 1 {
		chart := asciigraph.Plot(m.forceHistory,
			asciigraph.Height(5), asciigraph.Width(60), asciigraph.Caption("max force"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	s.WriteString(helpStyle.Render("space pause/resume · q quit"))
	return s.String()
}

// Run blocks until the minimization finishes or the user quits, then
// reports the terminal state of the minimizer.
func Run(min *optim.Minimizer, system string) error {
	p := tea.NewProgram(NewModel(min, system))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}

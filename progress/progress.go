// Package progress implements an optional interactive compile-progress
// display, grounded in the teacher's repl package: the same Bubble Tea /
// Bubbles / Lipgloss stack, the same spinner-while-busy pattern, styled
// output distinguishing success from failure. Unlike the teacher's REPL,
// this model never evaluates anything itself — it is purely observational,
// fed driver.Event values from the Module Driver's Progress callback and
// rendering them; it never touches compiler state (SPEC_FULL.md §4.9).
package progress

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alta-lang/altac-codegen/driver"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	rootDoneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	rootPendingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#767676"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6"))
)

// eventMsg carries one driver.Event into the Bubble Tea update loop.
type eventMsg driver.Event

// rootStatus tracks one root's progress as events arrive for it.
type rootStatus struct {
	id   string
	done bool
}

// model is the Bubble Tea model rendering a running compilation.
type model struct {
	spinner spinner.Model
	roots   []rootStatus
	total   int

	phase  driver.Phase
	detail string
	err    error

	done bool
}

func initialModel() model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))
	return model{spinner: s}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.applyEvent(driver.Event(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *model) applyEvent(e driver.Event) {
	m.phase = e.Phase
	m.detail = e.Detail
	m.total = e.Total

	switch e.Phase {
	case driver.PhaseCompilingRoot:
		m.roots = append(m.roots, rootStatus{id: e.RootID})
	case driver.PhaseRootDone:
		for i := range m.roots {
			if m.roots[i].id == e.RootID {
				m.roots[i].done = true
			}
		}
	case driver.PhaseDone:
		m.done = true
	case driver.PhaseFailed:
		m.err = e.Err
		m.done = true
	}
}

func (m model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(" Compiling "))
	s.WriteString("\n\n")

	for _, r := range m.roots {
		if r.done {
			s.WriteString(rootDoneStyle.Render("  ✓ " + r.id))
		} else {
			s.WriteString(m.spinner.View())
			s.WriteString(rootPendingStyle.Render(" " + r.id))
		}
		s.WriteString("\n")
	}
	s.WriteString("\n")

	switch {
	case m.err != nil:
		s.WriteString(failStyle.Render(fmt.Sprintf("failed: %s", m.err)))
		s.WriteString("\n")
	case m.done:
		s.WriteString(doneStyle.Render("compilation complete"))
		if m.detail != "" {
			s.WriteString(" -> " + m.detail)
		}
		s.WriteString("\n")
	default:
		s.WriteString(phaseStyle.Render(m.phase.String()))
		if m.detail != "" {
			s.WriteString(": " + m.detail)
		}
		s.WriteString("\n")
	}

	return s.String()
}

// Program wraps a running Bubble Tea program rendering compile progress.
// Callback returns the function to wire into driver.Driver.Progress; the
// driver calls it synchronously from Run's goroutine, so it only forwards
// the event into the Bubble Tea program's own message loop rather than
// touching the model directly.
type Program struct {
	tea *tea.Program
}

// New starts a new progress display. Run the returned Program in its own
// goroutine (via Wait) while the driver compiles, and stop it once the
// driver's Run call returns (it stops itself on PhaseDone/PhaseFailed, but
// Wait still needs to be drained).
func New() *Program {
	p := tea.NewProgram(initialModel())
	return &Program{tea: p}
}

// Callback returns the func(driver.Event) to assign to Driver.Progress.
func (p *Program) Callback() func(driver.Event) {
	return func(e driver.Event) {
		p.tea.Send(eventMsg(e))
	}
}

// Wait blocks until the Bubble Tea program exits, returning any error it
// reported.
func (p *Program) Wait() error {
	_, err := p.tea.Run()
	return err
}

// Package tui renders a running simulation in the terminal. Closing the
// display stops the run at the next round boundary.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nvandessel/contagion/internal/engine"
	"github.com/nvandessel/contagion/internal/graph"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 2).
			MarginRight(2)

	recordBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 2)

	barStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8800"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)

	contentStyle = lipgloss.NewStyle().MarginLeft(2)
)

// stateStyles colours node glyphs by state label, matching the DOT palette.
var stateStyles = map[string]lipgloss.Style{
	"dead":        lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	"infected":    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
	"recovered":   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
	"vaccinated":  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF")),
	"sheltered":   lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
	"susceptible": lipgloss.NewStyle().Foreground(lipgloss.Color("#5F87FF")),
}

const (
	// maxNodes caps the node strip; larger graphs show a count instead.
	maxNodes = 400
	// barWidth is the width of the longest bar in the record chart.
	barWidth = 30
	// maxRecordRows is the number of most recent rounds charted.
	maxRecordRows = 15
)

type keyMap struct {
	Quit key.Binding
	Help key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "close"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Help, k.Quit}}
}

// roundMsg carries one observed round into the program.
type roundMsg struct {
	model  string
	round  int
	events engine.Events
	totals graph.Counts
	labels []string
}

func newRoundMsg(ev engine.RoundEvent) roundMsg {
	labels := make([]string, ev.Snapshot.Len())
	for i := range labels {
		labels[i] = ev.Snapshot.At(i).Label()
	}
	return roundMsg{
		model:  ev.Model,
		round:  ev.Round,
		events: ev.Events,
		totals: ev.Totals,
		labels: labels,
	}
}

// doneMsg reports that the run finished.
type doneMsg struct {
	stopped bool
	reason  string
	err     error
}

type model struct {
	title   string
	horizon int // rounds the model will run, 0 when unknown

	modelName string
	round     int
	record    []int
	last      engine.Events
	totals    graph.Counts
	labels    []string

	done     bool
	stopped  bool
	reason   string
	err      error
	quitting bool

	help  help.Model
	keys  keyMap
	width int
}

func newModel(title string, horizon int) model {
	return model{
		title:   title,
		horizon: horizon,
		help:    help.New(),
		keys:    keys,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case roundMsg:
		m.modelName = msg.model
		m.round = msg.round
		m.last = msg.events
		m.totals = msg.totals
		m.labels = msg.labels
		if msg.round < len(m.record) {
			m.record = m.record[:msg.round]
		}
		m.record = append(m.record, msg.events.New)

	case doneMsg:
		m.done = true
		m.stopped = msg.stopped
		m.reason = msg.reason
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n\n")

	if m.record == nil {
		s.WriteString(contentStyle.Render("Waiting for the first round..."))
	} else {
		s.WriteString(contentStyle.Render(m.renderProgress()))
		s.WriteString("\n\n")
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			statsBoxStyle.Render(m.renderTotals()),
			recordBoxStyle.Render(m.renderRecord()),
		))
		s.WriteString("\n\n")
		s.WriteString(contentStyle.Render(m.renderNodes()))
	}

	if m.done {
		s.WriteString("\n\n")
		switch {
		case m.err != nil:
			s.WriteString(errorStyle.Render("✗ run failed: " + m.err.Error()))
		case m.stopped:
			s.WriteString(errorStyle.Render("✗ run stopped: " + m.reason))
		default:
			s.WriteString(successStyle.Render(fmt.Sprintf("✓ run complete after %d rounds", m.round)))
		}
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return s.String()
}

func (m model) renderProgress() string {
	if m.horizon > 0 {
		return fmt.Sprintf("%s · round %d / %d · %d new", m.modelName, m.round, m.horizon, m.last.New)
	}
	return fmt.Sprintf("%s · round %d · %d new", m.modelName, m.round, m.last.New)
}

func (m model) renderTotals() string {
	rows := []struct {
		label string
		n     int
	}{
		{"susceptible", m.totals.Susceptible},
		{"infected", m.totals.Infected},
		{"recovered", m.totals.Recovered},
		{"dead", m.totals.Dead},
		{"sheltered", m.totals.Sheltered},
		{"vaccinated", m.totals.Vaccinated},
	}
	var b strings.Builder
	b.WriteString("Nodes\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %-12s %d\n", stateStyles[r.label].Render("●"), r.label, r.n)
	}
	if m.last.Died+m.last.Recovered+m.last.Waned > 0 {
		fmt.Fprintf(&b, "\nlast round: %d died, %d recovered, %d waned",
			m.last.Died, m.last.Recovered, m.last.Waned)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderRecord charts new events per round, most recent rounds last.
func (m model) renderRecord() string {
	peak := 0
	for _, n := range m.record {
		peak = max(peak, n)
	}
	first := max(0, len(m.record)-maxRecordRows)

	var b strings.Builder
	b.WriteString("New per round\n")
	for i := first; i < len(m.record); i++ {
		n := m.record[i]
		width := 0
		if peak > 0 {
			width = n * barWidth / peak
		}
		fmt.Fprintf(&b, "%3d │%s %d\n", i, barStyle.Render(strings.Repeat("█", width)), n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) renderNodes() string {
	if len(m.labels) > maxNodes {
		return fmt.Sprintf("(%d nodes, too many to draw)", len(m.labels))
	}
	perLine := 40
	if m.width > 4 {
		perLine = max(10, (m.width-4)/2)
	}
	var b strings.Builder
	for i, label := range m.labels {
		if i > 0 && i%perLine == 0 {
			b.WriteString("\n")
		}
		b.WriteString(stateStyles[label].Render("●"))
		b.WriteString(" ")
	}
	return b.String()
}

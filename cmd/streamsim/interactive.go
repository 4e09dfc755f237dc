package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/gateware/sim"
	"github.com/wippyai/gateware/stream"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	signalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	firedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type keyMap struct {
	Step  key.Binding
	Run   key.Binding
	Done  key.Binding
	Reset key.Binding
	Up    key.Binding
	Down  key.Binding
	Help  key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Step, k.Run, k.Done, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Step, k.Run, k.Done, k.Reset},
		{k.Up, k.Down, k.Help, k.Quit},
	}
}

var keys = keyMap{
	Step:  key.NewBinding(key.WithKeys("n", " "), key.WithHelp("n/space", "tick")),
	Run:   key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "run n ticks")),
	Done:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "run to completion")),
	Reset: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rebuild")),
	Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "select port")),
	Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "select port")),
	Help:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:  key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
}

type modelState int

const (
	stateStep modelState = iota
	stateInputTicks
)

type interactiveModel struct {
	err      error
	ctx      context.Context
	metrics  *sim.Metrics
	scenario *Scenario
	bench    *bench
	trace    []string
	input    textinput.Model
	viewport viewport.Model
	help     help.Model
	seen     int
	selected int
	state    modelState
}

type builtMsg struct {
	err   error
	bench *bench
}

type ranMsg struct {
	err error
}

func newInteractiveModel(ctx context.Context, s *Scenario, metrics *sim.Metrics) *interactiveModel {
	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}
	ti := textinput.New()
	ti.Placeholder = "ticks"
	ti.Prompt = "run: "
	ti.CharLimit = 8
	ti.Width = 20
	return &interactiveModel{
		ctx:      ctx,
		metrics:  metrics,
		scenario: s,
		input:    ti,
		viewport: viewport.New(width, traceHeight(height)),
		help:     help.New(),
		state:    stateStep,
	}
}

func traceHeight(h int) int { return max(h-16, 4) }

func (m *interactiveModel) Init() tea.Cmd {
	return m.build
}

func (m *interactiveModel) build() tea.Msg {
	b, err := m.scenario.Build(m.ctx, m.metrics)
	if err != nil {
		return builtMsg{err: err}
	}
	// Show settled signals before the first tick.
	if err := b.circuit.Settle(); err != nil {
		b.close()
		return builtMsg{err: err}
	}
	return builtMsg{bench: b}
}

// advance runs n ticks, or until the scenario completes when n < 0.
func (m *interactiveModel) advance(n int) tea.Cmd {
	return func() tea.Msg {
		c := m.bench.circuit
		var err error
		if n < 0 {
			err = c.RunUntil(m.bench.finished, m.scenario.Limit)
		} else {
			err = c.Run(n)
		}
		if err == nil {
			err = c.Settle()
		}
		if err == nil {
			err = m.bench.kernelErr()
		}
		return ranMsg{err: err}
	}
}

func (m *interactiveModel) close() {
	if m.bench != nil {
		m.bench.close()
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = traceHeight(msg.Height)
		m.help.Width = msg.Width

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) && (m.state == stateStep || msg.String() == "ctrl+c") {
			m.close()
			return m, tea.Quit
		}
		if m.state == stateInputTicks {
			return m.updateInput(msg)
		}
		if m.bench == nil {
			return m, nil
		}
		switch {
		case key.Matches(msg, keys.Step):
			return m, m.advance(1)
		case key.Matches(msg, keys.Run):
			m.state = stateInputTicks
			m.input.SetValue("")
			return m, m.input.Focus()
		case key.Matches(msg, keys.Done):
			return m, m.advance(-1)
		case key.Matches(msg, keys.Reset):
			m.close()
			m.bench, m.trace, m.seen, m.err = nil, nil, 0, nil
			m.refreshTrace()
			return m, m.build
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, keys.Down):
			if m.selected < len(m.bench.ports)-1 {
				m.selected++
			}
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil

	case builtMsg:
		m.err = msg.err
		m.bench = msg.bench

	case ranMsg:
		m.err = msg.err
		m.recordBeats()
	}

	return m, nil
}

func (m *interactiveModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.state = stateStep
		m.input.Blur()
		n, err := strconv.Atoi(strings.TrimSpace(m.input.Value()))
		if err != nil || n < 1 {
			m.err = fmt.Errorf("invalid tick count %q", m.input.Value())
			return m, nil
		}
		return m, m.advance(n)
	case "esc":
		m.state = stateStep
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// recordBeats appends the beats received since the last step to the trace.
func (m *interactiveModel) recordBeats() {
	beats := m.bench.mon.Beats()
	for _, b := range beats[m.seen:] {
		m.trace = append(m.trace, fmt.Sprintf("%6d  %s%s", m.seen, b.Payload, markers(b)))
		m.seen++
	}
	m.refreshTrace()
}

func (m *interactiveModel) refreshTrace() {
	m.viewport.SetContent(strings.Join(m.trace, "\n"))
	m.viewport.GotoBottom()
}

func markers(b stream.Beat) string {
	var s string
	if b.SOP {
		s += " sop"
	}
	if b.EOP {
		s += " eop"
	}
	return s
}

func signalFlag(name string, on bool) string {
	if on {
		return firedStyle.Render(name)
	}
	return helpStyle.Render(name)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("streamsim: " + m.scenario.Name))
	b.WriteString("\n\n")

	if m.bench == nil {
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
			b.WriteString(helpStyle.Render("q: quit"))
			return b.String()
		}
		b.WriteString("Building...")
		return b.String()
	}

	bench := m.bench
	fmt.Fprintf(&b, "cycle %d   sent %d   received %d/%d\n\n",
		bench.circuit.Cycle(), bench.drv.Sent(), len(bench.mon.Beats()), bench.expect)

	for i, p := range bench.ports {
		ep := p.ep
		name := fmt.Sprintf("%-10s", p.name)
		if i == m.selected {
			name = selectedStyle.Render(name)
		} else {
			name = nameStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s %s %s %s %s  %s\n", name,
			signalFlag("valid", ep.Valid()), signalFlag("ready", ep.Ready()),
			signalFlag("sop", ep.SOP()), signalFlag("eop", ep.EOP()),
			signalStyle.Render(ep.Payload().String()))
	}
	if sel := m.selected; sel < len(bench.ports) {
		fmt.Fprintf(&b, "\n%s\n", helpStyle.Render(bench.ports[sel].ep.Description().String()))
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if bench.done() {
		b.WriteString("\n")
		b.WriteString(firedStyle.Render("complete"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n\n")

	if m.state == stateInputTicks {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter: run • esc: cancel"))
		return b.String()
	}
	b.WriteString(m.help.View(keys))
	return b.String()
}

func runInteractive(ctx context.Context, s *Scenario, metrics *sim.Metrics) error {
	m := newInteractiveModel(ctx, s, metrics)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	m.close()
	return err
}

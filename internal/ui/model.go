// Package ui implements the interactive terminal view for the engine install flow.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wrap"

	"github.com/porthole-app/porthole/bottle"
	"github.com/porthole-app/porthole/color"
	"github.com/porthole-app/porthole/icon"
	"github.com/porthole-app/porthole/style"
	"github.com/porthole-app/porthole/util"
)

// InstallModel renders a running engine installation. Stage events stream
// in from the installer's progress callback; the result channel delivers
// the final error once the install returns.
type InstallModel struct {
	events <-chan bottle.Event
	result <-chan error

	spinner  spinner.Model
	progress progress.Model

	stage   bottle.Stage
	formula string
	current int64
	total   int64
	history []string

	width int
	err   error
	done  bool
}

// NewInstall creates the model for a single installation run.
func NewInstall(events <-chan bottle.Event, result <-chan error) *InstallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = style.New().Foreground(color.Purple)

	m := &InstallModel{
		events:   events,
		result:   result,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
	}

	if w, _, err := util.TerminalSize(); err == nil {
		m.resize(w)
	}

	return m
}

// resize propagates terminal dimension changes to the progress bar.
func (m *InstallModel) resize(width int) {
	m.width = width
	m.progress.Width = util.Min(width-24, 48)
}

// Err returns the final installation error, if any, after the program exits.
func (m *InstallModel) Err() error {
	return m.err
}

type eventMsg bottle.Event

type doneMsg struct {
	err error
}

// Init implements tea.Model.
func (m *InstallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.nextEvent(), m.awaitResult())
}

// nextEvent blocks on the installer's event stream.
func (m *InstallModel) nextEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

// awaitResult blocks until the install goroutine reports its outcome.
func (m *InstallModel) awaitResult() tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-m.result}
	}
}

// Update implements tea.Model.
func (m *InstallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width)
		return m, nil

	case tea.KeyMsg:
		// The install keeps running in its goroutine; quitting only
		// detaches the view.
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case eventMsg:
		cmds := []tea.Cmd{m.nextEvent()}

		if msg.Stage != m.stage {
			if m.stage != "" {
				m.history = append(m.history, StageLabel(m.stage, m.formula))
			}
			m.stage = msg.Stage
			m.current, m.total = 0, 0
		}
		m.formula = msg.Formula

		if msg.Total > 0 {
			m.current, m.total = msg.Current, msg.Total
			if m.stage == bottle.StageDownload {
				cmds = append(cmds, m.progress.SetPercent(float64(msg.Current)/float64(msg.Total)))
			}
		}

		return m, tea.Batch(cmds...)

	case doneMsg:
		m.done = true
		m.err = msg.err
		if m.err == nil && m.stage != "" {
			m.history = append(m.history, StageLabel(m.stage, m.formula))
			m.stage = ""
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.progress.Update(msg)
		m.progress = model.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *InstallModel) View() string {
	var b strings.Builder

	b.WriteString(style.Title("Engine install"))
	b.WriteString("\n\n")

	check := style.Fg(color.Green)(icon.Get(icon.Check))
	for _, line := range m.history {
		fmt.Fprintf(&b, "%s %s\n", check, line)
	}

	if m.done {
		if m.err != nil {
			line := fmt.Sprintf("%s %s", style.Fg(color.Red)(icon.Get(icon.Cross)), m.err.Error())
			if m.width > 0 {
				line = wrap.String(line, m.width)
			}
			b.WriteString(line + "\n")
		} else {
			fmt.Fprintf(&b, "\n%s Engine installed\n", check)
		}
		return b.String()
	}

	if m.stage == "" {
		fmt.Fprintf(&b, "%s Starting...\n", m.spinner.View())
		return b.String()
	}

	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), StageLabel(m.stage, m.formula))
	if m.stage == bottle.StageDownload && m.total > 0 {
		fmt.Fprintf(&b, "  %s %s\n", m.progress.View(), transferred(m.current, m.total))
	}

	return b.String()
}

// StageLabel maps an installer stage to its display line.
func StageLabel(stage bottle.Stage, formula string) string {
	switch stage {
	case bottle.StageResolve:
		return "Resolving formulae"
	case bottle.StageAuth:
		if formula != "" {
			return "Authorizing " + formula
		}
		return "Authorizing downloads"
	case bottle.StageDownload:
		if formula != "" {
			return "Downloading " + formula
		}
		return "Downloading bottles"
	case bottle.StageExtract:
		if formula != "" {
			return "Extracting " + formula
		}
		return "Extracting libraries"
	case bottle.StagePatch:
		return "Relinking load paths"
	case bottle.StagePublish:
		return "Publishing engine"
	default:
		return string(stage)
	}
}

func transferred(current, total int64) string {
	return fmt.Sprintf("%s / %s", util.HumanBytes(current), util.HumanBytes(total))
}

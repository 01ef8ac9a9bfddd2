// Package console is the operator terminal: it renders the kiosk screen and
// turns key presses into installation events.
package console

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/audiolibrelab/homebooth/internal/installation"
	"github.com/audiolibrelab/homebooth/internal/service"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const defaultRefresh = 100 * time.Millisecond

// Controller is the part of the service the console needs.
type Controller interface {
	Send(ev installation.Event) bool
	Snapshot() service.Snapshot
	Done() <-chan struct{}
}

type tickMsg time.Time

// loopDoneMsg reports that the kiosk loop has exited.
type loopDoneMsg struct{}

type Model struct {
	ctrl       Controller
	keys       KeyMap
	help       help.Model
	snap       service.Snapshot
	refresh    time.Duration
	width      int
	height     int
	showStatus bool
	quitting   bool
}

func New(ctrl Controller) Model {
	return Model{
		ctrl:       ctrl,
		keys:       DefaultKeyMap(),
		help:       help.New(),
		refresh:    defaultRefresh,
		width:      80,
		height:     24,
		showStatus: true,
		snap:       ctrl.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), waitDone(m.ctrl.Done()))
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitDone(done <-chan struct{}) tea.Cmd {
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		<-done
		return loopDoneMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.ctrl.Send(installation.EventQuit)
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Advance):
			m.ctrl.Send(installation.EventAdvance)
		case key.Matches(msg, m.keys.Reset):
			m.ctrl.Send(installation.EventReset)
		case key.Matches(msg, m.keys.Status):
			m.showStatus = !m.showStatus
		}
		return m, nil

	case tickMsg:
		m.snap = m.ctrl.Snapshot()
		return m, m.tick()

	case loopDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	screen := m.snap.Screen
	header := titleStyle.Render("homebooth") + mutedStyle.Render(" · "+screen.PhaseName)

	var footer []string
	if screen.Frame != nil && screen.Headline != "" {
		footer = append(footer, m.headline(screen))
	}
	if screen.Hint != "" && screen.Hint != screen.Headline {
		footer = append(footer, hintStyle.Render(screen.Hint))
	}
	if m.showStatus {
		footer = append(footer, statusStyle.Render(strings.Join(screen.StatusLines(), "\n")))
	}
	footer = append(footer, m.help.View(m.keys))
	bottom := strings.Join(footer, "\n")

	rows := m.height - lipgloss.Height(header) - lipgloss.Height(bottom)
	if rows < 1 {
		rows = 1
	}

	var body string
	if screen.Frame != nil {
		body = renderFrame(screen.Frame, screen.Overlay, m.width, rows)
	} else {
		body = lipgloss.Place(m.width, rows, lipgloss.Center, lipgloss.Center, m.headline(screen))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, bottom)
}

func (m Model) headline(screen installation.Screen) string {
	if screen.Phase == installation.PhaseRecording {
		return recordingStyle.Render(screen.Headline)
	}
	return headlineStyle.Render(screen.Headline)
}

// Run blocks until the operator quits, the kiosk loop exits or ctx is done.
func Run(ctx context.Context, ctrl Controller) error {
	p := tea.NewProgram(New(ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

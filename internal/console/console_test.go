package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/homebooth/internal/installation"
	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/service"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu     sync.Mutex
	events []installation.Event
	snap   service.Snapshot
	done   chan struct{}
}

func newFakeController(screen installation.Screen) *fakeController {
	return &fakeController{
		snap: service.Snapshot{Screen: screen, Running: true},
		done: make(chan struct{}),
	}
}

func (c *fakeController) Send(ev installation.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return true
}

func (c *fakeController) Snapshot() service.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *fakeController) Done() <-chan struct{} { return c.done }

func (c *fakeController) sent() []installation.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]installation.Event(nil), c.events...)
}

func promptScreen() installation.Screen {
	return installation.Screen{
		Phase:     installation.PhasePrompt,
		PhaseName: "Prompt",
		Content:   installation.ContentPrompt,
		Headline:  "What does home mean to you?",
		Hint:      "Recording starts in: 2.0s",
		Status:    installation.Status{Phase: "Prompt", Recording: "Ready", Camera: true},
	}
}

func keyPress(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeysSendEvents(t *testing.T) {
	ctrl := newFakeController(promptScreen())
	var m tea.Model = New(ctrl)

	m, _ = m.Update(keyPress(" "))
	m, _ = m.Update(keyPress("r"))
	assert.Equal(t, []installation.Event{installation.EventAdvance, installation.EventReset}, ctrl.sent())

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Equal(t, installation.EventQuit, ctrl.sent()[2])
	assert.Equal(t, "Shutting down...\n", m.View())
}

func TestStatusToggle(t *testing.T) {
	ctrl := newFakeController(promptScreen())
	var m tea.Model = New(ctrl)

	assert.Contains(t, m.View(), "State: Prompt")
	m, _ = m.Update(keyPress("d"))
	assert.NotContains(t, m.View(), "State: Prompt")
}

func TestViewText(t *testing.T) {
	ctrl := newFakeController(promptScreen())
	var m tea.Model = New(ctrl)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})

	view := m.View()
	assert.Contains(t, view, "What does home mean to you?")
	assert.Contains(t, view, "Recording starts in: 2.0s")
	assert.Contains(t, view, "space")
}

func TestTickRefreshesSnapshot(t *testing.T) {
	ctrl := newFakeController(promptScreen())
	var m tea.Model = New(ctrl)

	ctrl.mu.Lock()
	ctrl.snap.Screen = installation.Screen{
		Phase:     installation.PhaseThankYou,
		PhaseName: "ThankYou",
		Headline:  "Thank you for sharing!",
		Status:    installation.Status{Phase: "ThankYou"},
	}
	ctrl.mu.Unlock()

	m, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Thank you for sharing!")
}

func TestLoopDoneQuits(t *testing.T) {
	var m tea.Model = New(newFakeController(promptScreen()))
	m, cmd := m.Update(loopDoneMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestRenderFrame(t *testing.T) {
	f := &media.Frame{Width: 2, Height: 2, Pix: []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 255, 255, 255,
	}}

	out := renderFrame(f, nil, 2, 1)
	assert.Equal(t, 1, strings.Count(out, "\n")+1)
	assert.Equal(t, 2, strings.Count(out, halfBlock))

	assert.Empty(t, renderFrame(nil, nil, 2, 1))
	assert.Empty(t, renderFrame(&media.Frame{Width: 4, Height: 4, Pix: []byte{1}}, nil, 2, 1))
}

func TestSample(t *testing.T) {
	base := &media.Frame{Width: 2, Height: 2, Pix: []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 255, 255, 255,
	}}
	overlay := &media.Frame{Width: 1, Height: 1, Pix: []byte{16, 32, 48}}

	assert.Equal(t, "#ff0000", sample(base, nil, 0, 0, 2, 2))
	assert.Equal(t, "#ffffff", sample(base, nil, 1, 1, 2, 2))
	assert.Equal(t, "#102030", sample(base, overlay, 1, 1, 2, 2))
	assert.Equal(t, "#ff0000", sample(base, overlay, 0, 0, 2, 2))
}

func TestConsoleProgram(t *testing.T) {
	ctrl := newFakeController(promptScreen())
	tm := teatest.NewTestModel(t, New(ctrl), teatest.WithInitialTermSize(80, 24))

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("What does home mean to you?"))
	}, teatest.WithCheckInterval(50*time.Millisecond), teatest.WithDuration(3*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	require.Eventually(t, func() bool {
		return len(ctrl.sent()) == 1
	}, time.Second, 20*time.Millisecond)

	close(ctrl.done)
	tm.WaitFinished(t, teatest.WithFinalTimeout(3*time.Second))
	assert.Equal(t, installation.EventAdvance, ctrl.sent()[0])
}

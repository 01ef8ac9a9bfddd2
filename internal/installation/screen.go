package installation

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/play"
)

// Content is what the main surface shows.
type Content string

const (
	ContentPlayback    Content = "playback"
	ContentPlaceholder Content = "placeholder"
	ContentPrompt      Content = "prompt"
	ContentPreview     Content = "preview"
	ContentThankYou    Content = "thank_you"
)

// Status is the operator-facing status block.
type Status struct {
	Phase       string    `json:"phase"`
	Recording   string    `json:"recording"`
	Message     string    `json:"message,omitempty"`
	Library     int       `json:"library"`
	Camera      bool      `json:"camera"`
	Playback    play.Info `json:"playback"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	Cycles      int       `json:"cycles"`
}

// Screen is everything the renderer needs for one tick.
type Screen struct {
	Phase          Phase         `json:"-"`
	PhaseName      string        `json:"phase"`
	Content        Content       `json:"content"`
	Frame          *media.Frame  `json:"-"`
	Overlay        *media.Frame  `json:"-"`
	Clip           string        `json:"clip,omitempty"`
	Headline       string        `json:"headline,omitempty"`
	Hint           string        `json:"hint,omitempty"`
	Remaining      time.Duration `json:"remaining"`
	CanFinishEarly bool          `json:"can_finish_early"`
	Status         Status        `json:"status"`
}

// HasFrame reports whether the tick produced a picture.
func (s Screen) HasFrame() bool {
	return s.Frame != nil
}

// Countdown formats the remaining time the way the kiosk shows it.
func (s Screen) Countdown() string {
	if s.Remaining <= 0 {
		return "0.0s"
	}
	return fmt.Sprintf("%.1fs", s.Remaining.Seconds())
}

// StatusLines is the small debug overlay text.
func (s Screen) StatusLines() []string {
	lines := []string{
		"State: " + s.Status.Phase,
		fmt.Sprintf("Videos: %d", s.Status.Library),
		"Status: " + s.Status.Recording,
	}
	if s.Status.Message != "" {
		lines = append(lines, s.Status.Message)
	}
	if s.Phase == PhaseIdle && s.Status.Playback.Path != "" {
		lines = append(lines,
			"Playing: "+filepath.Base(s.Status.Playback.Path),
			fmt.Sprintf("Video %d of %d", s.Status.Playback.Index+1, s.Status.Playback.Total),
		)
		if s.Status.Playback.AudioPlaying {
			lines = append(lines, "Audio playing")
		}
	}
	if !s.Status.Camera {
		lines = append(lines, "No camera found")
	}
	return lines
}

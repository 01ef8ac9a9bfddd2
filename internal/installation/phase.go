// Package installation holds the kiosk phase cycle: idle playback, prompt,
// recording and thank-you.
package installation

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the current stage of the visitor cycle.
type Phase int

const (
	// PhaseIdle loops previously recorded responses until a visitor starts.
	PhaseIdle Phase = iota
	// PhasePrompt shows the question with a countdown.
	PhasePrompt
	// PhaseRecording captures the visitor's response.
	PhaseRecording
	// PhaseThankYou finalizes the recording and thanks the visitor.
	PhaseThankYou
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePrompt:
		return "Prompt"
	case PhaseRecording:
		return "Recording"
	case PhaseThankYou:
		return "ThankYou"
	default:
		return "Unknown"
	}
}

// Next is the phase that follows p in the cycle.
func (p Phase) Next() Phase {
	switch p {
	case PhaseIdle:
		return PhasePrompt
	case PhasePrompt:
		return PhaseRecording
	case PhaseRecording:
		return PhaseThankYou
	default:
		return PhaseIdle
	}
}

// ShouldAdvance reports whether a phase entered at entered with duration d
// is over at now.
func ShouldAdvance(entered, now time.Time, d time.Duration) bool {
	return now.Sub(entered) >= d
}

// Event is a discrete operator signal.
type Event int

const (
	EventAdvance Event = iota
	EventReset
	EventQuit
)

func (e Event) String() string {
	switch e {
	case EventAdvance:
		return "advance"
	case EventReset:
		return "reset"
	case EventQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// ParseEvent maps a signal name to an Event.
func ParseEvent(s string) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "advance":
		return EventAdvance, nil
	case "reset":
		return EventReset, nil
	case "quit":
		return EventQuit, nil
	default:
		return 0, fmt.Errorf("unknown event %q", s)
	}
}

package installation

import (
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/play"
	"github.com/audiolibrelab/homebooth/internal/recording"
)

// Recorder is the capture side of the installation.
type Recorder interface {
	Start(path string) (*recording.Session, error)
	Stop(s *recording.Session) recording.Report
	PreviewFrame() *media.Frame
	HasDevice() bool
}

// Player loops the idle library.
type Player interface {
	Poll() *media.Frame
	Stop()
	Info() play.Info
}

// Clips plays the optional phase clips.
type Clips interface {
	Start(name string) bool
	Frame() *media.Frame
	Stop()
}

// Journal keeps a record of every finished recording.
type Journal interface {
	Record(r recording.Report) error
}

type Deps struct {
	Recorder      Recorder
	Player        Player
	Clips         Clips
	Journal       Journal // optional
	RecordingsDir string
	Phases        config.PhasesConfig
	Text          config.TextConfig
}

// Installation is the phase machine. It is driven from a single goroutine:
// Handle for operator events and Tick once per loop iteration.
type Installation struct {
	deps Deps
	now  func() time.Time

	phase          Phase
	entered        time.Time
	session        *recording.Session
	canFinishEarly bool
	clipPlaying    bool
	recStatus      string
	message        string
	lastOutcome    recording.Outcome
	cycles         int
	closed         bool
}

func New(deps Deps) *Installation {
	in := &Installation{
		deps:      deps,
		now:       time.Now,
		phase:     PhaseIdle,
		recStatus: "Ready",
	}
	in.entered = in.now()
	if !deps.Recorder.HasDevice() {
		in.recStatus = "No camera available"
	}
	return in
}

func (in *Installation) Phase() Phase {
	return in.phase
}

// Capturing reports whether a recording session is writing into the store.
func (in *Installation) Capturing() bool {
	return in.session != nil
}

// Handle applies an operator event and reports whether the loop should quit.
func (in *Installation) Handle(ev Event) bool {
	slog.Debug("Event received", "event", ev.String(), "phase", in.phase.String())

	switch ev {
	case EventAdvance:
		switch {
		case in.phase == PhaseIdle:
			in.transition(PhasePrompt)
		case in.phase == PhaseRecording && in.canFinishEarly:
			slog.Info("Recording finished early")
			in.transition(PhaseThankYou)
		}
	case EventReset:
		slog.Info("Reset requested", "phase", in.phase.String())
		in.stopRecording()
		in.transition(PhaseIdle)
	case EventQuit:
		in.Close()
		return true
	}
	return false
}

// Tick runs the phase timeout check and returns what should be on screen.
func (in *Installation) Tick() Screen {
	if in.phase != PhaseIdle {
		if d := in.duration(in.phase); ShouldAdvance(in.entered, in.now(), d) {
			in.transition(in.phase.Next())
		}
	}
	return in.screen()
}

// Close tears down any recording and playback. Safe to call more than once.
func (in *Installation) Close() {
	if in.closed {
		return
	}
	in.closed = true
	in.stopRecording()
	in.deps.Player.Stop()
	in.deps.Clips.Stop()
}

func (in *Installation) duration(p Phase) time.Duration {
	switch p {
	case PhasePrompt:
		return in.deps.Phases.Prompt
	case PhaseRecording:
		return in.deps.Phases.Recording
	case PhaseThankYou:
		return in.deps.Phases.ThankYou
	default:
		return 0
	}
}

func (in *Installation) transition(to Phase) {
	from := in.phase
	if from == PhaseIdle && to != PhaseIdle {
		in.deps.Player.Stop()
	}
	in.deps.Clips.Stop()
	in.clipPlaying = false

	in.phase = to
	in.entered = in.now()
	slog.Info("Phase changed", "from", from.String(), "to", to.String())

	switch to {
	case PhaseIdle:
		in.canFinishEarly = false
		in.stopRecording()
		if from == PhaseThankYou {
			in.cycles++
		}
	case PhasePrompt:
		in.message = ""
		in.clipPlaying = in.deps.Clips.Start(play.ClipPrompt)
	case PhaseRecording:
		in.enterRecording()
	case PhaseThankYou:
		in.canFinishEarly = false
		in.stopRecording()
		// the thank-you time runs from the end of the stop
		in.entered = in.now()
		in.clipPlaying = in.deps.Clips.Start(play.ClipThankYou)
	}
}

func (in *Installation) enterRecording() {
	in.canFinishEarly = false

	path := recording.TargetPath(in.deps.RecordingsDir, in.now())
	s, err := in.deps.Recorder.Start(path)
	if err != nil {
		in.recStatus = recordingError(err)
		in.message = err.Error()
		slog.Error("Recording aborted", "path", path, "error", err)
		in.transition(PhaseIdle)
		return
	}

	in.session = s
	in.canFinishEarly = true
	// the phase clock starts once the recorder is actually capturing
	in.entered = in.now()
	in.recStatus = "Recording with audio: " + filepath.Base(path)
	in.clipPlaying = in.deps.Clips.Start(play.ClipTimer)
}

func recordingError(err error) string {
	switch {
	case errors.Is(err, media.ErrDeviceUnavailable):
		return "No camera available"
	case errors.Is(err, media.ErrLaunchFailed):
		return "Recording error: recorder failed to start"
	default:
		return "Recording error: " + err.Error()
	}
}

// stopRecording finalizes the current session, if any.
func (in *Installation) stopRecording() {
	if in.session == nil {
		return
	}

	report := in.deps.Recorder.Stop(in.session)
	in.session = nil
	in.lastOutcome = report.Outcome

	name := filepath.Base(report.Path)
	switch report.Outcome {
	case recording.OutcomeSaved:
		in.recStatus = "Saved: " + name
	case recording.OutcomeCorrupt:
		in.recStatus = "Recording corrupted, removed"
	case recording.OutcomeTooSmall:
		in.recStatus = "Recording failed - file too small"
	case recording.OutcomeNoFileProduced:
		in.recStatus = "Recording failed - no file created"
	}

	if in.deps.Journal != nil && report.Outcome != recording.OutcomeNone {
		if err := in.deps.Journal.Record(report); err != nil {
			slog.Warn("Failed to write journal entry", "path", report.Path, "error", err)
		}
	}
}

func (in *Installation) remaining() time.Duration {
	d := in.duration(in.phase) - in.now().Sub(in.entered)
	if d < 0 {
		return 0
	}
	return d
}

func (in *Installation) screen() Screen {
	s := Screen{
		Phase:     in.phase,
		PhaseName: in.phase.String(),
		Status: Status{
			Phase:       in.phase.String(),
			Recording:   in.recStatus,
			Message:     in.message,
			Camera:      in.deps.Recorder.HasDevice(),
			LastOutcome: string(in.lastOutcome),
			Cycles:      in.cycles,
		},
	}

	switch in.phase {
	case PhaseIdle:
		s.Frame = in.deps.Player.Poll()
		info := in.deps.Player.Info()
		s.Status.Playback = info
		s.Hint = in.deps.Text.Instruction
		if info.Total == 0 {
			s.Content = ContentPlaceholder
			s.Headline = in.deps.Text.Instruction
		} else {
			s.Content = ContentPlayback
		}
	case PhasePrompt:
		s.Content = ContentPrompt
		s.Remaining = in.remaining()
		if in.clipPlaying {
			s.Frame = in.deps.Clips.Frame()
			s.Clip = play.ClipPrompt
		}
		if s.Frame == nil {
			s.Headline = in.deps.Text.Question
			s.Hint = "Recording starts in: " + s.Countdown()
		}
	case PhaseRecording:
		s.Content = ContentPreview
		s.Remaining = in.remaining()
		s.CanFinishEarly = in.canFinishEarly
		s.Frame = in.deps.Recorder.PreviewFrame()
		s.Headline = "● RECORDING"
		s.Hint = "Time left: " + s.Countdown()
		if in.canFinishEarly {
			s.Hint += " | Press SPACE again to finish early"
		}
		if in.clipPlaying {
			s.Overlay = in.deps.Clips.Frame()
			s.Clip = play.ClipTimer
		}
	case PhaseThankYou:
		s.Content = ContentThankYou
		s.Remaining = in.remaining()
		if in.clipPlaying {
			s.Frame = in.deps.Clips.Frame()
			s.Clip = play.ClipThankYou
		}
		if s.Frame == nil {
			s.Headline = in.deps.Text.ThankYou
		}
	}

	if s.Status.Playback.Total == 0 && in.phase != PhaseIdle {
		s.Status.Playback = in.deps.Player.Info()
	}
	s.Status.Library = s.Status.Playback.Total
	return s
}

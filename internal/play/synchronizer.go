package play

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/library"
	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/process"
)

// State of the playback session.
type State int

const (
	StateInactive State = iota
	StateStarting
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "Inactive"
	case StateStarting:
		return "Starting"
	case StatePlaying:
		return "Playing"
	default:
		return "Unknown"
	}
}

// Info is a snapshot of what is playing.
type Info struct {
	State        string `json:"state"`
	Path         string `json:"path,omitempty"`
	Index        int    `json:"index"`
	Total        int    `json:"total"`
	Frame        int    `json:"frame"`
	AudioPlaying bool   `json:"audio_playing"`
}

type Options struct {
	DefaultFrameRate float64
	SkipThreshold    int
	AudioStopTimeout time.Duration
}

func OptionsFromConfig(c config.PlaybackConfig) Options {
	return Options{
		DefaultFrameRate: c.DefaultFrameRate,
		SkipThreshold:    c.SkipThreshold,
		AudioStopTimeout: c.AudioStopTimeout,
	}
}

// session is replaced, never reused, when the file changes.
type session struct {
	id        uint64
	index     int
	path      string
	startedAt time.Time
	fps       float64
	decoder   media.Decoder
	audio     process.Handle
	last      *media.Frame
}

// Synchronizer plays the library in a loop, pacing video frames to the wall
// clock so they stay aligned with the separately running audio channel.
type Synchronizer struct {
	mu      sync.Mutex
	opener  media.Opener
	audio   AudioLauncher
	checker library.Checker
	opts    Options

	library []string
	index   int
	state   State
	current *session
	nextID  uint64

	// set for the whole duration of a file switch
	switching atomic.Bool

	now    func() time.Time
	remove func(string) error
}

func NewSynchronizer(opener media.Opener, audio AudioLauncher, checker library.Checker, opts Options) *Synchronizer {
	if opts.DefaultFrameRate <= 0 {
		opts.DefaultFrameRate = 30
	}
	if opts.SkipThreshold < 1 {
		opts.SkipThreshold = 5
	}
	return &Synchronizer{
		opener:  opener,
		audio:   audio,
		checker: checker,
		opts:    opts,
		now:     time.Now,
		remove:  os.Remove,
	}
}

// SetLibrary replaces the playlist. Playback restarts from the newest entry
// on the next switch.
func (s *Synchronizer) SetLibrary(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.library = append([]string(nil), paths...)
	s.index = 0
	if s.current != nil {
		// the running file finishes first; the advance then lands on index 0
		s.index = -1
	}
	slog.Debug("Playback library updated", "entries", len(paths))
}

// Library returns a copy of the playlist.
func (s *Synchronizer) Library() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.library...)
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartPlayback stops any current session and starts path.
func (s *Synchronizer) StartPlayback(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := -1
	for i, p := range s.library {
		if p == path {
			index = i
			break
		}
	}
	return s.startLocked(path, index)
}

func (s *Synchronizer) startLocked(path string, index int) error {
	s.stopLocked()
	s.state = StateStarting

	if !s.checker.IsValid(path) {
		s.state = StateInactive
		return fmt.Errorf("%w: %s", media.ErrInvalidMedia, path)
	}

	dec, err := s.opener.Open(path)
	if err != nil {
		s.state = StateInactive
		if errors.Is(err, media.ErrInvalidMedia) {
			return err
		}
		return fmt.Errorf("%w: %v", media.ErrInvalidMedia, err)
	}

	audio, err := s.audio.Play(path)
	if err != nil {
		// video still plays; end of stream then comes from the decoder
		slog.Warn("Audio channel unavailable", "path", path, "error", err)
		audio = nil
	}

	fps := dec.FrameRate()
	if fps <= 0 {
		fps = s.opts.DefaultFrameRate
	}

	s.nextID++
	s.current = &session{
		id:        s.nextID,
		index:     index,
		path:      path,
		startedAt: s.now(),
		fps:       fps,
		decoder:   dec,
		audio:     audio,
	}
	if index >= 0 {
		s.index = index
	}
	s.state = StatePlaying

	slog.Info("Playback started", "path", path, "index", index, "total", len(s.library), "fps", fps)
	return nil
}

// startIndexLocked starts library[i], deleting and dropping entries that
// turn out to be invalid, until one plays or the library is empty.
func (s *Synchronizer) startIndexLocked(i int) {
	for len(s.library) > 0 {
		if i < 0 || i >= len(s.library) {
			i = 0
		}
		path := s.library[i]

		err := s.startLocked(path, i)
		if err == nil {
			return
		}

		slog.Warn("Dropping unplayable recording", "path", path, "error", err)
		if rmErr := s.remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("Failed to delete unplayable recording", "path", path, "error", rmErr)
		}
		s.library = append(s.library[:i:i], s.library[i+1:]...)
	}
	s.index = 0
	s.state = StateInactive
}

// CurrentFrame returns the frame due at the current wall-clock time.
// It returns nil when nothing plays or when the stream just ended, in which
// case playback has already moved on to the next file.
func (s *Synchronizer) CurrentFrame() *media.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFrameLocked()
}

func (s *Synchronizer) currentFrameLocked() *media.Frame {
	cur := s.current
	if cur == nil || s.state != StatePlaying {
		return nil
	}

	frame, err := dueFrame(cur.decoder, s.now().Sub(cur.startedAt), cur.fps, s.opts.SkipThreshold, cur.last)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF):
			slog.Debug("Video reached end of stream", "path", cur.path)
		case errors.Is(err, media.ErrDecodeStall):
			slog.Warn("Frame decode stalled, advancing", "path", cur.path)
		default:
			slog.Warn("Frame decode failed, advancing", "path", cur.path, "error", err)
		}
		s.advanceLocked(cur.id)
		return nil
	}

	cur.last = frame
	return frame
}

// HasEnded reports whether the audio channel exited on its own. Without an
// audio channel it is always false and video end of stream drives advancing.
func (s *Synchronizer) HasEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasEndedLocked()
}

func (s *Synchronizer) hasEndedLocked() bool {
	if s.current == nil || s.current.audio == nil {
		return false
	}
	return s.current.audio.Exited()
}

// AdvanceToNext stops the current file and starts the next one, wrapping
// around the library.
func (s *Synchronizer) AdvanceToNext() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id uint64
	if s.current != nil {
		id = s.current.id
	}
	s.advanceLocked(id)
}

// advanceLocked switches away from session id. It is a no-op when another
// switch is in flight or when id no longer names the current session, so
// two end signals for the same file advance once.
func (s *Synchronizer) advanceLocked(id uint64) bool {
	if !s.switching.CompareAndSwap(false, true) {
		slog.Debug("Advance already in progress")
		return false
	}
	defer s.switching.Store(false)

	if id != 0 && (s.current == nil || s.current.id != id) {
		return false
	}
	if id == 0 && s.current != nil {
		return false
	}

	s.stopLocked()
	if len(s.library) == 0 {
		s.index = 0
		return true
	}

	next := (s.index + 1) % len(s.library)
	s.startIndexLocked(next)
	return true
}

// Poll is the per-tick entry point: it starts playback when idle, advances
// when the audio channel finished and otherwise returns the due frame.
func (s *Synchronizer) Poll() *media.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		if len(s.library) == 0 {
			return nil
		}
		s.startIndexLocked(s.index)
		if s.current == nil {
			return nil
		}
	}

	if s.hasEndedLocked() {
		slog.Debug("Audio channel finished", "path", s.current.path)
		s.advanceLocked(s.current.id)
		return nil
	}

	return s.currentFrameLocked()
}

// Stop ends the current session. It is safe to call repeatedly.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Synchronizer) stopLocked() {
	cur := s.current
	if cur == nil {
		s.state = StateInactive
		return
	}

	if cur.audio != nil {
		if err := cur.audio.Terminate(s.opts.AudioStopTimeout); err != nil {
			slog.Warn("Failed to stop audio channel", "path", cur.path, "error", err)
		}
	}
	if err := cur.decoder.Close(); err != nil {
		slog.Debug("Decoder close failed", "path", cur.path, "error", err)
	}

	s.current = nil
	s.state = StateInactive
	slog.Debug("Playback stopped", "path", cur.path)
}

// Info describes the current session for the status display.
func (s *Synchronizer) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{State: s.state.String(), Total: len(s.library)}
	if cur := s.current; cur != nil {
		info.Path = cur.path
		info.Index = cur.index
		info.Frame = cur.decoder.Position()
		info.AudioPlaying = cur.audio != nil && !cur.audio.Exited()
	}
	return info
}

package recording

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/device"
	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/process"
)

// Session is one recording attempt.
type Session struct {
	Path      string
	StartedAt time.Time

	handle  process.Handle
	status  Status
	preview atomic.Pointer[media.Frame]
}

func (s *Session) Status() Status {
	return s.status
}

type Options struct {
	FFmpeg        string
	Grace         time.Duration
	StopTimeout   time.Duration
	FinalizeDelay time.Duration
	PreviewWidth  int
	PreviewHeight int
	PreviewRate   int
}

func OptionsFromConfig(c config.CaptureConfig) Options {
	return Options{
		FFmpeg:        c.FFmpeg,
		Grace:         c.Grace,
		StopTimeout:   c.StopTimeout,
		FinalizeDelay: c.FinalizeDelay,
		PreviewWidth:  c.PreviewWidth,
		PreviewHeight: c.PreviewHeight,
		PreviewRate:   c.PreviewRate,
	}
}

// Controller owns the external capture process. At most one session runs at a time.
type Controller struct {
	mu        sync.Mutex
	runner    process.Runner
	device    *device.Device
	validator *media.Validator
	opts      Options
	current   *Session
	status    Status
	onSaved   func(path string)

	// replaceable in tests
	sleep  func(time.Duration)
	now    func() time.Time
	remove func(string) error
}

// NewController builds a controller. A nil device refuses every Start with ErrDeviceUnavailable.
func NewController(runner process.Runner, dev *device.Device, validator *media.Validator, opts Options) *Controller {
	return &Controller{
		runner:    runner,
		device:    dev,
		validator: validator,
		opts:      opts,
		status:    StatusNotStarted,
		sleep:     time.Sleep,
		now:       time.Now,
		remove:    os.Remove,
	}
}

// OnSaved registers the hook run after a clean stop.
func (c *Controller) OnSaved(fn func(path string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSaved = fn
}

// Status returns the status of the current or most recent session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Active returns the running session, if any.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// HasDevice reports whether a capture device was selected.
func (c *Controller) HasDevice() bool {
	return c.device != nil
}

// Start launches the recorder writing to path and waits the grace interval.
// Calling Start while a session is running returns that session.
func (c *Controller) Start(path string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		slog.Warn("Recording already in progress", "path", c.current.Path)
		return c.current, nil
	}
	if c.device == nil {
		c.status = StatusFailed
		return nil, fmt.Errorf("cannot record: %w", media.ErrDeviceUnavailable)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.status = StatusFailed
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	spec := process.Spec{
		Name:      c.opts.FFmpeg,
		Args:      c.buildArgs(path),
		RawStdout: true,
		Label:     "recorder",
	}
	slog.Info("Starting recorder", "path", path, "device", c.device.String())

	h, err := c.runner.Start(spec)
	if err != nil {
		c.status = StatusFailed
		return nil, &LaunchError{Path: path, ExitCode: -1, Err: err}
	}

	s := &Session{Path: path, StartedAt: c.now(), handle: h, status: StatusRunning}
	if out := h.Stdout(); out != nil {
		go readPreview(out, c.opts.PreviewWidth, c.opts.PreviewHeight, &s.preview)
	}

	c.sleep(c.opts.Grace)

	if h.Exited() {
		s.status = StatusFailed
		c.status = StatusFailed
		if out := h.Stdout(); out != nil {
			out.Close()
		}
		if err := c.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove partial recording", "path", path, "error", err)
		}
		launchErr := &LaunchError{Path: path, ExitCode: h.ExitCode(), Output: h.Output()}
		slog.Error("Recorder exited during grace interval", "path", path, "exit_code", launchErr.ExitCode,
			"output", launchErr.Output)
		return nil, launchErr
	}

	c.current = s
	c.status = StatusRunning
	slog.Info("Recording started", "path", path, "pid", h.Pid())
	return s, nil
}

// Stop ends s: graceful termination, finalize delay, then re-validation.
// Stopping a session that is not running has no effect and reports OutcomeNone.
func (c *Controller) Stop(s *Session) Report {
	c.mu.Lock()

	if s == nil || s != c.current {
		status := c.status
		c.mu.Unlock()
		report := Report{Outcome: OutcomeNone, Status: status}
		if s != nil {
			report.Path = s.Path
			report.Status = s.status
		}
		return report
	}

	slog.Debug("Stopping recorder", "path", s.Path)
	if err := s.handle.Terminate(c.opts.StopTimeout); err != nil {
		slog.Warn("Recorder termination failed", "path", s.Path, "error", err)
	}
	if out := s.handle.Stdout(); out != nil {
		out.Close()
	}

	c.sleep(c.opts.FinalizeDelay)

	report := Report{Path: s.Path, StartedAt: s.StartedAt, FinishedAt: c.now()}
	if info, err := os.Stat(s.Path); err == nil {
		report.Bytes = info.Size()
	}

	err := c.validator.Check(s.Path)
	switch {
	case err == nil:
		report.Outcome = OutcomeSaved
		report.Status = StatusStoppedClean
	case errors.Is(err, media.ErrNoFileProduced):
		report.Outcome = OutcomeNoFileProduced
		report.Status = StatusFailed
	case errors.Is(err, media.ErrFileTooSmall):
		report.Outcome = OutcomeTooSmall
		report.Status = StatusStoppedCorrupt
	default:
		report.Outcome = OutcomeCorrupt
		report.Status = StatusStoppedCorrupt
	}
	if err != nil {
		report.Detail = err.Error()
	}

	if report.Status == StatusStoppedCorrupt {
		if rmErr := c.remove(s.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("Failed to delete invalid recording", "path", s.Path, "error", rmErr)
		}
	}

	s.status = report.Status
	c.status = report.Status
	c.current = nil
	hook := c.onSaved
	c.mu.Unlock()

	slog.Info("Recording stopped", "path", s.Path, "outcome", report.Outcome, "bytes", report.Bytes)

	if report.Outcome == OutcomeSaved && hook != nil {
		hook(s.Path)
	}
	return report
}

// PreviewFrame returns the latest mirrored preview frame of the running session.
func (c *Controller) PreviewFrame() *media.Frame {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.preview.Load()
}

func (c *Controller) buildArgs(path string) []string {
	o := c.opts
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, c.device.InputArgs()...)
	args = append(args, c.device.MapArgs()...)
	args = append(args,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "ultrafast",
		"-crf", "23",
		"-movflags", "+faststart",
		"-fflags", "+genpts",
		"-avoid_negative_ts", "make_zero",
		"-max_muxing_queue_size", "1024",
		"-y", path,
	)

	// second output: low-rate raw preview on stdout
	args = append(args,
		"-map", "0:v",
		"-vf", fmt.Sprintf("scale=%d:%d,fps=%s", o.PreviewWidth, o.PreviewHeight, strconv.Itoa(o.PreviewRate)),
		"-pix_fmt", "rgb24",
		"-f", "rawvideo",
		"pipe:1",
	)
	return args
}

// readPreview keeps draining the preview pipe so the recorder never blocks on it.
func readPreview(r io.Reader, width, height int, latest *atomic.Pointer[media.Frame]) {
	size := media.FrameSize(width, height)
	for index := 0; ; index++ {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return
		}
		f := &media.Frame{Index: index, Width: width, Height: height, Pix: buf}
		latest.Store(f.Mirror())
	}
}

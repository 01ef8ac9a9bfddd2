package play

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/homebooth/internal/media"
)

// Custom clips looked up in the clips directory.
const (
	ClipPrompt   = "prompt.mp4"
	ClipTimer    = "timer.mp4"
	ClipThankYou = "thankyou.mp4"
)

// ClipPlayer plays one optional phase clip, paced by the wall clock. Once the
// clip runs out the last frame stays on screen.
type ClipPlayer struct {
	opener media.Opener
	dir    string
	skip   int
	now    func() time.Time

	name      string
	dec       media.Decoder
	startedAt time.Time
	last      *media.Frame
	finished  bool
}

func NewClipPlayer(opener media.Opener, dir string, skip int) *ClipPlayer {
	return &ClipPlayer{opener: opener, dir: dir, skip: skip, now: time.Now}
}

// Available reports whether the named clip exists.
func (p *ClipPlayer) Available(name string) bool {
	if p.dir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(p.dir, name))
	return err == nil && !info.IsDir()
}

// Start begins the named clip and reports whether it is playing. A missing or
// unopenable clip leaves the caller to show its text fallback.
func (p *ClipPlayer) Start(name string) bool {
	p.Stop()

	if !p.Available(name) {
		return false
	}

	path := filepath.Join(p.dir, name)
	dec, err := p.opener.Open(path)
	if err != nil {
		slog.Warn("Failed to open clip", "clip", name, "error", err)
		return false
	}

	p.name = name
	p.dec = dec
	p.startedAt = p.now()
	slog.Debug("Clip started", "clip", name)
	return true
}

// Playing returns the name of the running clip, or "".
func (p *ClipPlayer) Playing() string {
	return p.name
}

// Frame returns the clip frame due now.
func (p *ClipPlayer) Frame() *media.Frame {
	if p.dec == nil || p.finished {
		return p.last
	}

	frame, err := dueFrame(p.dec, p.now().Sub(p.startedAt), p.dec.FrameRate(), p.skip, p.last)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			slog.Debug("Clip decode stopped", "clip", p.name, "error", err)
		}
		p.finished = true
		return p.last
	}

	p.last = frame
	return frame
}

// Stop releases the running clip.
func (p *ClipPlayer) Stop() {
	if p.dec != nil {
		p.dec.Close()
	}
	p.name = ""
	p.dec = nil
	p.last = nil
	p.finished = false
}

package device

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/process"
)

// Device is the capture input selected for the kiosk.
type Device struct {
	Format      string // "avfoundation" or "v4l2"
	VideoIndex  int
	AudioDevice string
	Width       int
	Height      int
	FrameRate   int
}

func FromConfig(c config.CaptureConfig, videoIndex int) *Device {
	return &Device{
		Format:      c.Format,
		VideoIndex:  videoIndex,
		AudioDevice: c.AudioDevice,
		Width:       c.Width,
		Height:      c.Height,
		FrameRate:   c.FrameRate,
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("%s video=%d audio=%s", d.Format, d.VideoIndex, d.AudioDevice)
}

func (d *Device) grabArgs() []string {
	return []string{
		"-framerate", strconv.Itoa(d.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", d.Width, d.Height),
	}
}

// InputArgs returns the ffmpeg input selectors for video plus audio.
func (d *Device) InputArgs() []string {
	switch d.Format {
	case "avfoundation":
		args := append([]string{"-f", "avfoundation"}, d.grabArgs()...)
		return append(args, "-i", fmt.Sprintf("%d:%s", d.VideoIndex, d.AudioDevice))
	default:
		args := append([]string{"-f", "v4l2"}, d.grabArgs()...)
		args = append(args, "-i", videoPath(d.VideoIndex))
		return append(args, "-f", "alsa", "-i", d.AudioDevice)
	}
}

// MapArgs selects the video and audio streams of InputArgs for a muxed output.
func (d *Device) MapArgs() []string {
	if d.Format == "avfoundation" {
		return []string{"-map", "0:v", "-map", "0:a"}
	}
	return []string{"-map", "0:v", "-map", "1:a"}
}

// VideoInputArgs returns the ffmpeg input selectors for video only.
func (d *Device) VideoInputArgs() []string {
	switch d.Format {
	case "avfoundation":
		args := append([]string{"-f", "avfoundation"}, d.grabArgs()...)
		return append(args, "-i", fmt.Sprintf("%d:none", d.VideoIndex))
	default:
		args := append([]string{"-f", "v4l2"}, d.grabArgs()...)
		return append(args, "-i", videoPath(d.VideoIndex))
	}
}

func videoPath(index int) string {
	return "/dev/video" + strconv.Itoa(index)
}

// ProbeResult is the outcome of trying one camera index.
type ProbeResult struct {
	Index     int    `json:"index"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Prober checks camera indices by grabbing a single frame.
type Prober struct {
	Runner  process.Runner
	FFmpeg  string
	Capture config.CaptureConfig
	Timeout time.Duration
}

func NewProber(runner process.Runner, c config.CaptureConfig) *Prober {
	return &Prober{Runner: runner, FFmpeg: c.FFmpeg, Capture: c, Timeout: c.ProbeTimeout}
}

// Select returns the configured device, or the first candidate index that yields a frame.
func (p *Prober) Select() (*Device, error) {
	if p.Capture.VideoIndex >= 0 {
		return FromConfig(p.Capture, p.Capture.VideoIndex), nil
	}

	for _, index := range p.Capture.Candidates {
		res := p.Check(index)
		if res.Available {
			d := FromConfig(p.Capture, index)
			slog.Info("Camera selected", "device", d.String())
			return d, nil
		}
		slog.Debug("Camera candidate unavailable", "index", index, "detail", res.Detail)
	}

	return nil, fmt.Errorf("%w: no camera among indices %v", media.ErrDeviceUnavailable, p.Capture.Candidates)
}

// ProbeAll checks every candidate index.
func (p *Prober) ProbeAll() []ProbeResult {
	results := make([]ProbeResult, 0, len(p.Capture.Candidates))
	for _, index := range p.Capture.Candidates {
		results = append(results, p.Check(index))
	}
	return results
}

// Check grabs one frame from the camera at index.
func (p *Prober) Check(index int) ProbeResult {
	d := FromConfig(p.Capture, index)
	args := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, d.VideoInputArgs()...)
	args = append(args, "-frames:v", "1", "-f", "null", "-")

	h, err := p.Runner.Start(process.Spec{Name: p.FFmpeg, Args: args, Label: "camera-probe"})
	if err != nil {
		return ProbeResult{Index: index, Detail: err.Error()}
	}

	select {
	case <-h.Done():
	case <-time.After(p.Timeout):
		_ = h.Terminate(time.Second)
		return ProbeResult{Index: index, Detail: "timed out waiting for a frame"}
	}

	if h.ExitCode() != 0 {
		return ProbeResult{Index: index, Detail: lastLine(h.Output())}
	}
	return ProbeResult{Index: index, Available: true}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

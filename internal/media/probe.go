package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// StreamInfo describes the first video stream of a container.
type StreamInfo struct {
	Width      int
	Height     int
	FrameRate  float64 // 0 when the container does not report one
	FramesRead int
}

// Prober inspects a media file. FramesRead must reflect frames actually decoded.
type Prober interface {
	Probe(ctx context.Context, path string) (*StreamInfo, error)
}

// FFprobe decodes the first video frame with ffprobe.
type FFprobe struct {
	Binary string
}

func NewFFprobe(binary string) *FFprobe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{Binary: binary}
}

func (p *FFprobe) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-read_intervals", "%+#1",
		"-count_frames",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_read_frames",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}

	slog.Debug("Probe completed", "path", path, "width", info.Width, "height", info.Height,
		"fps", info.FrameRate, "frames", info.FramesRead)
	return info, nil
}

func parseProbeOutput(output []byte) (*StreamInfo, error) {
	var probeResult struct {
		Streams []struct {
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
			NbReadFrames string `json:"nb_read_frames"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(output, &probeResult); err != nil {
		return nil, err
	}
	if len(probeResult.Streams) == 0 {
		return nil, fmt.Errorf("no video stream")
	}

	s := probeResult.Streams[0]
	info := &StreamInfo{
		Width:     s.Width,
		Height:    s.Height,
		FrameRate: parseRate(s.AvgFrameRate),
	}
	if info.FrameRate <= 0 {
		info.FrameRate = parseRate(s.RFrameRate)
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s.NbReadFrames)); err == nil {
		info.FramesRead = n
	}

	return info, nil
}

// parseRate turns ffprobe's "num/den" notation into frames per second.
func parseRate(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0
	}

	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// FrameRate probes path and falls back to fallback when the rate is unknown.
func FrameRate(ctx context.Context, p Prober, path string, fallback float64) float64 {
	info, err := p.Probe(ctx, path)
	if err != nil || info.FrameRate <= 0 {
		return fallback
	}
	return info.FrameRate
}

// probeContext bounds a probe; zero means no bound.
func probeContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

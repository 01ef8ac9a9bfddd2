package play

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/homebooth/internal/process"
)

// AudioLauncher starts the audio channel of a file as its own process.
type AudioLauncher interface {
	Play(path string) (process.Handle, error)
}

// AudioPlayer plays only the audio stream of a video file through ffplay or mpv.
type AudioPlayer struct {
	runner     process.Runner
	preference string
	lookPath   func(string) (string, error)
}

// NewAudioPlayer creates a player; preference is "auto", "ffplay" or "mpv".
func NewAudioPlayer(runner process.Runner, preference string) *AudioPlayer {
	return &AudioPlayer{runner: runner, preference: preference, lookPath: exec.LookPath}
}

// Play launches the audio channel for path and returns immediately.
// The process exits on its own at end of stream.
func (p *AudioPlayer) Play(path string) (process.Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("media file not found: %s", path)
	}

	player, err := p.findAudioPlayer()
	if err != nil {
		return nil, fmt.Errorf("no suitable audio player found: %w", err)
	}

	var args []string
	switch player {
	case "mpv":
		args = []string{"--no-video", "--really-quiet", path}
	case "ffplay":
		args = []string{"-nodisp", "-autoexit", "-vn", "-loglevel", "error", path}
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}

	h, err := p.runner.Start(process.Spec{Name: player, Args: args, Label: "audio"})
	if err != nil {
		return nil, fmt.Errorf("playback failed with %s: %w", player, err)
	}

	slog.Debug("Audio channel started", "player", player, "path", path, "pid", h.Pid())
	return h, nil
}

func (p *AudioPlayer) findAudioPlayer() (string, error) {
	// List of preferred audio players in order of preference
	players := []string{"ffplay", "mpv"}
	if p.preference != "" && p.preference != "auto" {
		players = []string{p.preference}
	}

	for _, player := range players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

package service

import (
	"log/slog"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/device"
	"github.com/audiolibrelab/homebooth/internal/installation"
	"github.com/audiolibrelab/homebooth/internal/journal"
	"github.com/audiolibrelab/homebooth/internal/library"
	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/play"
	"github.com/audiolibrelab/homebooth/internal/process"
	"github.com/audiolibrelab/homebooth/internal/recording"
)

// Build wires the production components: ffmpeg capture and decode, ffprobe
// validation and the audio channel player. j may be nil.
func Build(cfg *config.Config, j *journal.Journal) *KioskService {
	runner := process.NewExecRunner()

	dev, err := device.NewProber(runner, cfg.Capture).Select()
	if err != nil {
		slog.Warn("No camera available, recording disabled", "error", err)
		dev = nil
	}

	return assemble(cfg, j, runner, media.NewFFprobe(cfg.Playback.FFprobe), dev)
}

// assemble connects capture, playback and the library around runner and
// prober. A nil dev runs the kiosk without recording.
func assemble(cfg *config.Config, j *journal.Journal, runner process.Runner, prober media.Prober, dev *device.Device) *KioskService {
	validator := media.NewValidator(prober, cfg.Storage.MinBytes, cfg.Playback.ProbeTimeout)

	ctrl := recording.NewController(runner, dev, validator, recording.OptionsFromConfig(cfg.Capture))

	opener := &media.FFmpegOpener{
		Runner:           runner,
		Validator:        validator,
		FFmpeg:           cfg.Playback.FFmpeg,
		Width:            cfg.Playback.Width,
		Height:           cfg.Playback.Height,
		DefaultFrameRate: cfg.Playback.DefaultFrameRate,
		ReadTimeout:      cfg.Playback.ReadTimeout,
	}
	synchronizer := play.NewSynchronizer(opener, play.NewAudioPlayer(runner, cfg.Playback.AudioPlayer), validator, play.OptionsFromConfig(cfg.Playback))
	clips := play.NewClipPlayer(opener, cfg.Storage.ClipsDirectory, cfg.Playback.SkipThreshold)

	deps := installation.Deps{
		Recorder:      ctrl,
		Player:        synchronizer,
		Clips:         clips,
		RecordingsDir: cfg.Storage.RecordingsDirectory,
		Phases:        cfg.Phases,
		Text:          cfg.Text,
	}
	comps := Components{
		Library:  library.NewScanner(cfg.Storage.RecordingsDirectory, cfg.Storage.Extensions, validator),
		Playlist: synchronizer,
	}
	if j != nil {
		deps.Journal = j
		comps.History = j
	}
	comps.Engine = installation.New(deps)

	svc := New(cfg, comps)
	ctrl.OnSaved(func(path string) {
		slog.Debug("New recording saved, scheduling rescan", "path", path)
		svc.Rescan()
	})
	return svc
}

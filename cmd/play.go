package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/audiolibrelab/homebooth/internal/library"
	"github.com/audiolibrelab/homebooth/internal/lockfile"
	"github.com/audiolibrelab/homebooth/internal/play"
	"github.com/audiolibrelab/homebooth/internal/process"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [recording]",
	Short: "Play the audio of a recording",
	Long: `Play the audio track of a recording through the same player the kiosk uses
for looped playback (ffplay or mpv). Without an argument the newest valid
recording is played; finding it scans the store and needs the directory lock.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveRecording(args)
		if err != nil {
			return err
		}

		fmt.Printf("Playing: %s\n", filepath.Base(path))

		player := play.NewAudioPlayer(process.NewExecRunner(), cfg.Playback.AudioPlayer)
		h, err := player.Play(path)
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case <-h.Done():
			if code := h.ExitCode(); code != 0 {
				return fmt.Errorf("player exited with code %d", code)
			}
		case <-sigChan:
			return h.Terminate(cfg.Playback.AudioStopTimeout)
		}
		return nil
	},
}

func resolveRecording(args []string) (string, error) {
	if len(args) == 1 {
		path := args[0]
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(cfg.Storage.RecordingsDirectory, args[0])
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("recording not found: %s", args[0])
		}
		return path, nil
	}

	// scanning deletes invalid files, so it needs the store to itself
	lock, err := lockfile.Acquire(cfg.Storage.RecordingsDirectory)
	if err != nil {
		return "", err
	}
	defer lock.Release()

	entries, err := library.NewScanner(cfg.Storage.RecordingsDirectory, cfg.Storage.Extensions, newValidator()).Scan()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no recordings in %s", cfg.Storage.RecordingsDirectory)
	}
	return entries[0].Path, nil
}

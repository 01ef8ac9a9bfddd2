package cmd

import (
	"fmt"

	"github.com/audiolibrelab/homebooth/internal/library"
	"github.com/audiolibrelab/homebooth/internal/lockfile"
	"github.com/audiolibrelab/homebooth/internal/media"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Validate the recordings store and list the playback order",
	Long: `Scan the recordings directory the way the kiosk does before playback:
every file is checked with ffprobe, unreadable or too small files are
deleted and the rest are listed newest first.

The scan takes the recordings directory lock, so it refuses to run while a
kiosk is using the same directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lock, err := lockfile.Acquire(cfg.Storage.RecordingsDirectory)
		if err != nil {
			return err
		}
		defer lock.Release()

		validator := newValidator()
		scanner := library.NewScanner(cfg.Storage.RecordingsDirectory, cfg.Storage.Extensions, validator)

		entries, err := scanner.Scan()
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Recordings in %s (%d)\n\n", scanner.Dir(), len(entries))
		for i, e := range entries {
			fps := validator.FrameRate(e.Path, cfg.Playback.DefaultFrameRate)
			fmt.Printf("%3d. %s  %10d bytes  %s  %.2f fps\n", i+1, e.Name, e.Size, e.ModTime.Format("2006-01-02 15:04:05"), fps)
		}
		return nil
	},
}

func newValidator() *media.Validator {
	return media.NewValidator(media.NewFFprobe(cfg.Playback.FFprobe), cfg.Storage.MinBytes, cfg.Playback.ProbeTimeout)
}

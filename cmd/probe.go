package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/homebooth/internal/device"
	"github.com/audiolibrelab/homebooth/internal/process"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "List which camera indices deliver frames",
	Long: `Grab a single frame from every candidate camera index (capture.candidates)
and report which ones work. The kiosk picks the first working index unless
capture.video_index is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prober := device.NewProber(process.NewExecRunner(), cfg.Capture)

		fmt.Printf("Capture devices (%s, %s)\n\n", runtime.GOOS, cfg.Capture.Format)
		selected := -1
		for _, res := range prober.ProbeAll() {
			dev := device.FromConfig(cfg.Capture, res.Index)
			if res.Available {
				if selected < 0 {
					selected = res.Index
				}
				fmt.Printf("  %-24s available\n", dev.String())
			} else {
				fmt.Printf("  %-24s unavailable: %s\n", dev.String(), res.Detail)
			}
		}

		fmt.Println()
		switch {
		case cfg.Capture.VideoIndex >= 0:
			fmt.Printf("Configured index: %d\n", cfg.Capture.VideoIndex)
		case selected >= 0:
			fmt.Printf("The kiosk would use index %d\n", selected)
		default:
			fmt.Println("No camera found; the kiosk will run without recording")
		}
		return nil
	},
}

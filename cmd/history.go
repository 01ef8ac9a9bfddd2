package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/audiolibrelab/homebooth/internal/journal"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the journal of recording attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		j, err := journal.Open(cfg.Storage.Journal)
		if err != nil {
			return err
		}
		defer j.Close()

		summary, err := j.Summary()
		if err != nil {
			return err
		}
		entries, err := j.Recent(limit)
		if err != nil {
			return err
		}

		fmt.Printf("%d attempts, %d saved\n\n", summary.Total, summary.Saved)
		for _, e := range entries {
			fmt.Printf("%s  %-16s  %-34s  %d bytes", e.FinishedAt.Local().Format("2006-01-02 15:04:05"), e.Outcome, filepath.Base(e.Path), e.Bytes)
			if e.Detail != "" {
				fmt.Printf("  (%s)", e.Detail)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries to show (0 = all)")
}

package cmd

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kiosk headless with the control API",
	Long: `Run the kiosk loop without a terminal console and control it through the
HTTP API: POST /api/advance, POST /api/reset, GET /api/status. The operator
page is served at the API root.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}
		return runKiosk(cmd.Context(), true, true)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides server.listen)")
}

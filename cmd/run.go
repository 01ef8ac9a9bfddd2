package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/audiolibrelab/homebooth/internal/console"
	"github.com/audiolibrelab/homebooth/internal/journal"
	"github.com/audiolibrelab/homebooth/internal/lockfile"
	"github.com/audiolibrelab/homebooth/internal/server"
	"github.com/audiolibrelab/homebooth/internal/service"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the kiosk with the operator console",
	Long: `Run the kiosk loop. The terminal becomes the operator console:
SPACE starts a session or finishes a recording early, r resets to idle,
d toggles the status block and esc or q quits.

Logs go to storage.log_file while the console owns the terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		noServer, _ := cmd.Flags().GetBool("no-server")
		return runKiosk(cmd.Context(), headless, cfg.Server.Enabled && !noServer)
	},
}

func init() {
	runCmd.Flags().Bool("headless", false, "run without the terminal console (control through the API)")
	runCmd.Flags().Bool("no-server", false, "do not start the control API")
}

func runKiosk(parent context.Context, headless, withServer bool) error {
	if parent == nil {
		parent = context.Background()
	}

	if !headless {
		logFile, err := openLogFile(cfg.Storage.LogFile)
		if err != nil {
			return err
		}
		defer logFile.Close()
		setupLogging(verboseLevel, logFile)
	}

	lock, err := lockfile.Acquire(cfg.Storage.RecordingsDirectory)
	if err != nil {
		return err
	}
	defer lock.Release()

	j, err := journal.Open(cfg.Storage.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.Build(cfg, j)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Run(ctx); err != nil {
			errs <- err
		}
		// the loop ending on quit takes the API down with it
		stop()
	}()

	if withServer {
		srv := server.New(svc, cfg.Server.Listen)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				slog.Error("Control API stopped", "error", err)
				errs <- err
			}
		}()
	}

	if headless {
		slog.Info("Running headless", "recordings", cfg.Storage.RecordingsDirectory, "api", withServer)
		<-ctx.Done()
	} else if err := console.Run(ctx, svc); err != nil {
		slog.Error("Console failed", "error", err)
		errs <- err
	}

	stop()
	wg.Wait()
	close(errs)
	if err, ok := <-errs; ok {
		return err
	}
	slog.Info("homebooth stopped")
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

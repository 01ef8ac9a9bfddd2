package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	envFile      string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "homebooth",
	Short: "Video booth kiosk that records visitor answers and loops them back",
	Long: `homebooth runs an unattended video booth. While idle it loops previously
recorded answers. A visitor presses SPACE, sees the question, records a
response with the camera and is thanked; the new recording joins the loop.

Capture and decoding are done by ffmpeg, validation by ffprobe and the audio
of looped recordings by ffplay or mpv.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel, os.Stderr)

		if err := loadEnvFile(envFile); err != nil {
			return err
		}

		// config init writes the file, it must not require one
		if cmd.Name() == "init" {
			return nil
		}

		if cfgFile == "" {
			cfgFile = defaultConfigPath()
		}

		var err error
		cfg, err = config.Load(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "file", cfgFile, "profile", cfg.ActiveProfile)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/homebooth.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with HOMEBOOTH_* overrides, ignored when missing")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "phase timing profile to use (overrides active_profile from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func defaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/homebooth.yaml")
}

// loadEnvFile applies a dotenv file without overriding variables that are
// already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Debug("Environment file loaded", "file", path)
	return nil
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int, w io.Writer) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(w, opts)
	slog.SetDefault(slog.New(handler))
}

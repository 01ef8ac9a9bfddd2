package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "HOMEBOOTH"

type Config struct {
	Phases   PhasesConfig   `mapstructure:"phases" yaml:"phases"`
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Loop     LoopConfig     `mapstructure:"loop" yaml:"loop"`
	Text     TextConfig     `mapstructure:"text" yaml:"text"`

	// Profiles override phase durations only (e.g. a longer recording window at events).
	ActiveProfile string                  `mapstructure:"active_profile" yaml:"active_profile,omitempty"`
	Profiles      map[string]PhasesConfig `mapstructure:"profiles" yaml:"profiles,omitempty"`
}

// PhasesConfig holds the timed phase durations. Idle has no duration.
type PhasesConfig struct {
	Prompt    time.Duration `mapstructure:"prompt" yaml:"prompt"`
	Recording time.Duration `mapstructure:"recording" yaml:"recording"`
	ThankYou  time.Duration `mapstructure:"thank_you" yaml:"thank_you"`
}

type CaptureConfig struct {
	FFmpeg        string        `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	Format        string        `mapstructure:"format" yaml:"format"` // "avfoundation", "v4l2"
	VideoIndex    int           `mapstructure:"video_index" yaml:"video_index"` // -1 probes Candidates
	Candidates    []int         `mapstructure:"candidates" yaml:"candidates"`
	AudioDevice   string        `mapstructure:"audio_device" yaml:"audio_device"`
	Width         int           `mapstructure:"width" yaml:"width"`
	Height        int           `mapstructure:"height" yaml:"height"`
	FrameRate     int           `mapstructure:"frame_rate" yaml:"frame_rate"`
	PreviewWidth  int           `mapstructure:"preview_width" yaml:"preview_width"`
	PreviewHeight int           `mapstructure:"preview_height" yaml:"preview_height"`
	PreviewRate   int           `mapstructure:"preview_rate" yaml:"preview_rate"`
	Grace         time.Duration `mapstructure:"grace" yaml:"grace"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	FinalizeDelay time.Duration `mapstructure:"finalize_delay" yaml:"finalize_delay"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

type PlaybackConfig struct {
	FFmpeg           string        `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	FFprobe          string        `mapstructure:"ffprobe" yaml:"ffprobe"`
	DefaultFrameRate float64       `mapstructure:"default_frame_rate" yaml:"default_frame_rate"`
	SkipThreshold    int           `mapstructure:"skip_threshold" yaml:"skip_threshold"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	AudioStopTimeout time.Duration `mapstructure:"audio_stop_timeout" yaml:"audio_stop_timeout"`
	AudioPlayer      string        `mapstructure:"audio_player" yaml:"audio_player"` // "auto", "ffplay", "mpv"
	Width            int           `mapstructure:"width" yaml:"width"`
	Height           int           `mapstructure:"height" yaml:"height"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

type StorageConfig struct {
	RecordingsDirectory string   `mapstructure:"recordings_directory" yaml:"recordings_directory"`
	ClipsDirectory      string   `mapstructure:"clips_directory" yaml:"clips_directory"`
	Extensions          []string `mapstructure:"extensions" yaml:"extensions"`
	MinBytes            int64    `mapstructure:"min_bytes" yaml:"min_bytes"`
	Journal             string   `mapstructure:"journal" yaml:"journal"`
	LogFile             string   `mapstructure:"log_file" yaml:"log_file"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// TextConfig holds the visitor-facing fallback text shown when no clip is present.
type TextConfig struct {
	Question    string `mapstructure:"question" yaml:"question"`
	Instruction string `mapstructure:"instruction" yaml:"instruction"`
	ThankYou    string `mapstructure:"thank_you" yaml:"thank_you"`
}

type LoopConfig struct {
	TickRate int `mapstructure:"tick_rate" yaml:"tick_rate"` // ticks per second
	Inbox    int `mapstructure:"inbox" yaml:"inbox"`
}

var defaultConfig = Config{
	Phases: PhasesConfig{
		Prompt:    3 * time.Second,
		Recording: 30 * time.Second,
		ThankYou:  2 * time.Second,
	},
	Capture: CaptureConfig{
		FFmpeg:        "ffmpeg",
		Format:        defaultCaptureFormat(),
		VideoIndex:    -1,
		Candidates:    []int{0, 1, 2},
		AudioDevice:   defaultAudioDevice(),
		Width:         1280,
		Height:        720,
		FrameRate:     30,
		PreviewWidth:  320,
		PreviewHeight: 180,
		PreviewRate:   10,
		Grace:         2 * time.Second,
		StopTimeout:   10 * time.Second,
		FinalizeDelay: time.Second,
		ProbeTimeout:  5 * time.Second,
	},
	Playback: PlaybackConfig{
		FFmpeg:           "ffmpeg",
		FFprobe:          "ffprobe",
		DefaultFrameRate: 30,
		SkipThreshold:    5,
		ReadTimeout:      2 * time.Second,
		AudioStopTimeout: time.Second,
		AudioPlayer:      "auto",
		Width:            640,
		Height:           360,
		ProbeTimeout:     10 * time.Second,
	},
	Storage: StorageConfig{
		RecordingsDirectory: filepath.Join(os.Getenv("HOME"), "homebooth", "recordings"),
		ClipsDirectory:      filepath.Join(os.Getenv("HOME"), "homebooth", "videos"),
		Extensions:          []string{".mp4"},
		MinBytes:            1000,
		Journal:             filepath.Join(os.Getenv("HOME"), "homebooth", "journal.db"),
		LogFile:             filepath.Join(os.Getenv("HOME"), "homebooth", "homebooth.log"),
	},
	Server: ServerConfig{
		Enabled: true,
		Listen:  "127.0.0.1:8787",
	},
	Loop: LoopConfig{
		TickRate: 60,
		Inbox:    16,
	},
	Text: TextConfig{
		Question:    "What does home mean to you?",
		Instruction: "Press SPACE to record your response",
		ThankYou:    "Thank you for sharing!",
	},
}

func defaultCaptureFormat() string {
	if runtime.GOOS == "darwin" {
		return "avfoundation"
	}
	return "v4l2"
}

func defaultAudioDevice() string {
	if runtime.GOOS == "darwin" {
		return "0"
	}
	return "default"
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Capture.Candidates = append([]int(nil), defaultConfig.Capture.Candidates...)
	c.Storage.Extensions = append([]string(nil), defaultConfig.Storage.Extensions...)
	return &c
}

// Load reads configFile (optional: a missing file means defaults), applies
// HOMEBOOTH_* environment overrides and the selected phase profile, then validates.
func Load(configFile, profile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error accessing config file %s: %w", configFile, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	profileName := profile
	if profileName == "" {
		profileName = c.ActiveProfile
	}
	if profileName != "" {
		p, exists := c.Profiles[profileName]
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found", profileName)
		}
		c.Phases = mergePhases(c.Phases, p)
		c.ActiveProfile = profileName
	}

	c.Storage.RecordingsDirectory = expandPath(c.Storage.RecordingsDirectory)
	c.Storage.ClipsDirectory = expandPath(c.Storage.ClipsDirectory)
	c.Storage.Journal = expandPath(c.Storage.Journal)
	c.Storage.LogFile = expandPath(c.Storage.LogFile)
	c.Storage.Extensions = normalizeExtensions(c.Storage.Extensions)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig

	v.SetDefault("phases.prompt", d.Phases.Prompt)
	v.SetDefault("phases.recording", d.Phases.Recording)
	v.SetDefault("phases.thank_you", d.Phases.ThankYou)

	v.SetDefault("capture.ffmpeg", d.Capture.FFmpeg)
	v.SetDefault("capture.format", d.Capture.Format)
	v.SetDefault("capture.video_index", d.Capture.VideoIndex)
	v.SetDefault("capture.candidates", d.Capture.Candidates)
	v.SetDefault("capture.audio_device", d.Capture.AudioDevice)
	v.SetDefault("capture.width", d.Capture.Width)
	v.SetDefault("capture.height", d.Capture.Height)
	v.SetDefault("capture.frame_rate", d.Capture.FrameRate)
	v.SetDefault("capture.preview_width", d.Capture.PreviewWidth)
	v.SetDefault("capture.preview_height", d.Capture.PreviewHeight)
	v.SetDefault("capture.preview_rate", d.Capture.PreviewRate)
	v.SetDefault("capture.grace", d.Capture.Grace)
	v.SetDefault("capture.stop_timeout", d.Capture.StopTimeout)
	v.SetDefault("capture.finalize_delay", d.Capture.FinalizeDelay)
	v.SetDefault("capture.probe_timeout", d.Capture.ProbeTimeout)

	v.SetDefault("playback.ffmpeg", d.Playback.FFmpeg)
	v.SetDefault("playback.ffprobe", d.Playback.FFprobe)
	v.SetDefault("playback.default_frame_rate", d.Playback.DefaultFrameRate)
	v.SetDefault("playback.skip_threshold", d.Playback.SkipThreshold)
	v.SetDefault("playback.read_timeout", d.Playback.ReadTimeout)
	v.SetDefault("playback.audio_stop_timeout", d.Playback.AudioStopTimeout)
	v.SetDefault("playback.audio_player", d.Playback.AudioPlayer)
	v.SetDefault("playback.width", d.Playback.Width)
	v.SetDefault("playback.height", d.Playback.Height)
	v.SetDefault("playback.probe_timeout", d.Playback.ProbeTimeout)

	v.SetDefault("storage.recordings_directory", d.Storage.RecordingsDirectory)
	v.SetDefault("storage.clips_directory", d.Storage.ClipsDirectory)
	v.SetDefault("storage.extensions", d.Storage.Extensions)
	v.SetDefault("storage.min_bytes", d.Storage.MinBytes)
	v.SetDefault("storage.journal", d.Storage.Journal)
	v.SetDefault("storage.log_file", d.Storage.LogFile)

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.listen", d.Server.Listen)

	v.SetDefault("loop.tick_rate", d.Loop.TickRate)
	v.SetDefault("loop.inbox", d.Loop.Inbox)

	v.SetDefault("text.question", d.Text.Question)
	v.SetDefault("text.instruction", d.Text.Instruction)
	v.SetDefault("text.thank_you", d.Text.ThankYou)
}

// mergePhases keeps base durations for every phase the profile leaves unset.
func mergePhases(base, profile PhasesConfig) PhasesConfig {
	result := base
	if profile.Prompt > 0 {
		result.Prompt = profile.Prompt
	}
	if profile.Recording > 0 {
		result.Recording = profile.Recording
	}
	if profile.ThankYou > 0 {
		result.ThankYou = profile.ThankYou
	}
	return result
}

// Validate checks the loaded configuration for values the kiosk cannot run with.
func (c *Config) Validate() error {
	if err := validatePhases(c.Phases); err != nil {
		return err
	}
	if err := validateCapture(c.Capture); err != nil {
		return err
	}
	if err := validatePlayback(c.Playback); err != nil {
		return err
	}
	if err := validateStorage(c.Storage); err != nil {
		return err
	}

	if c.Server.Enabled && c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required when the server is enabled")
	}
	if c.Loop.TickRate <= 0 {
		return fmt.Errorf("loop.tick_rate must be > 0, got: %d", c.Loop.TickRate)
	}
	if c.Loop.Inbox <= 0 {
		return fmt.Errorf("loop.inbox must be > 0, got: %d", c.Loop.Inbox)
	}

	for name, p := range c.Profiles {
		if p.Prompt < 0 || p.Recording < 0 || p.ThankYou < 0 {
			return fmt.Errorf("profiles.%s: durations must be >= 0", name)
		}
	}

	return nil
}

func validatePhases(p PhasesConfig) error {
	if p.Prompt <= 0 {
		return fmt.Errorf("phases.prompt must be > 0, got: %s", p.Prompt)
	}
	if p.Recording <= 0 {
		return fmt.Errorf("phases.recording must be > 0, got: %s", p.Recording)
	}
	if p.ThankYou <= 0 {
		return fmt.Errorf("phases.thank_you must be > 0, got: %s", p.ThankYou)
	}
	return nil
}

func validateCapture(c CaptureConfig) error {
	if c.FFmpeg == "" {
		return fmt.Errorf("capture.ffmpeg is required")
	}
	if c.Format != "avfoundation" && c.Format != "v4l2" {
		return fmt.Errorf("capture.format must be 'avfoundation' or 'v4l2', got: %s", c.Format)
	}
	if c.VideoIndex < 0 && len(c.Candidates) == 0 {
		return fmt.Errorf("capture.candidates cannot be empty when video_index is not set")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("capture resolution must be > 0, got: %dx%d", c.Width, c.Height)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("capture.frame_rate must be > 0, got: %d", c.FrameRate)
	}
	if c.PreviewWidth <= 0 || c.PreviewHeight <= 0 || c.PreviewRate <= 0 {
		return fmt.Errorf("capture preview size and rate must be > 0")
	}
	if c.Grace < 0 || c.StopTimeout <= 0 || c.FinalizeDelay < 0 {
		return fmt.Errorf("capture timings are invalid: grace=%s stop_timeout=%s finalize_delay=%s",
			c.Grace, c.StopTimeout, c.FinalizeDelay)
	}
	return nil
}

func validatePlayback(p PlaybackConfig) error {
	if p.DefaultFrameRate <= 0 {
		return fmt.Errorf("playback.default_frame_rate must be > 0, got: %.2f", p.DefaultFrameRate)
	}
	if p.SkipThreshold < 1 {
		return fmt.Errorf("playback.skip_threshold must be >= 1, got: %d", p.SkipThreshold)
	}
	if p.ReadTimeout <= 0 {
		return fmt.Errorf("playback.read_timeout must be > 0, got: %s", p.ReadTimeout)
	}
	switch p.AudioPlayer {
	case "auto", "ffplay", "mpv":
	default:
		return fmt.Errorf("playback.audio_player must be 'auto', 'ffplay' or 'mpv', got: %s", p.AudioPlayer)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("playback size must be > 0, got: %dx%d", p.Width, p.Height)
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	if s.RecordingsDirectory == "" {
		return fmt.Errorf("storage.recordings_directory is required")
	}
	if len(s.Extensions) == 0 {
		return fmt.Errorf("storage.extensions cannot be empty")
	}
	if s.MinBytes < 0 {
		return fmt.Errorf("storage.min_bytes must be >= 0, got: %d", s.MinBytes)
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

package media

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// DefaultMinBytes is the smallest file considered a real recording.
const DefaultMinBytes = 1000

// Validator decides whether a file on disk is playable media.
type Validator struct {
	prober   Prober
	minBytes int64
	timeout  time.Duration
}

func NewValidator(prober Prober, minBytes int64, timeout time.Duration) *Validator {
	return &Validator{prober: prober, minBytes: minBytes, timeout: timeout}
}

// IsValid reports whether path exists, is larger than the minimum size and
// decodes at least one video frame. It never fails: probe errors mean false.
func (v *Validator) IsValid(path string) bool {
	err := v.Check(path)
	if err != nil {
		slog.Debug("Media failed validation", "path", path, "error", err)
	}
	return err == nil
}

// Check classifies why path is not valid media. It returns one of
// ErrNoFileProduced, ErrFileTooSmall or ErrFileCorrupt, or nil.
func (v *Validator) Check(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoFileProduced, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrFileCorrupt, path)
	}
	if info.Size() <= v.minBytes {
		return fmt.Errorf("%w: %d bytes", ErrFileTooSmall, info.Size())
	}

	ctx, cancel := probeContext(v.timeout)
	defer cancel()

	stream, err := v.prober.Probe(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileCorrupt, err)
	}
	if stream.FramesRead < 1 {
		return fmt.Errorf("%w: no decodable video frame", ErrFileCorrupt)
	}

	return nil
}

// FrameRate returns the probed frame rate of path or fallback.
func (v *Validator) FrameRate(path string, fallback float64) float64 {
	ctx, cancel := probeContext(v.timeout)
	defer cancel()
	return FrameRate(ctx, v.prober, path, fallback)
}

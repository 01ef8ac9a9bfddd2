package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/homebooth/internal/media"
)

// Status represents the lifecycle of a recording session
type Status string

const (
	StatusNotStarted     Status = "NOT_STARTED"
	StatusRunning        Status = "RUNNING"
	StatusStoppedClean   Status = "STOPPED_CLEAN"
	StatusStoppedCorrupt Status = "STOPPED_CORRUPT"
	StatusFailed         Status = "FAILED"
)

// Outcome is the result of stopping a session
type Outcome string

const (
	OutcomeNone           Outcome = "NONE"
	OutcomeSaved          Outcome = "SAVED"
	OutcomeCorrupt        Outcome = "CORRUPT"
	OutcomeTooSmall       Outcome = "TOO_SMALL"
	OutcomeNoFileProduced Outcome = "NO_FILE_PRODUCED"
)

// Report describes how a session ended.
type Report struct {
	Path       string    `json:"path"`
	Outcome    Outcome   `json:"outcome"`
	Status     Status    `json:"status"`
	Bytes      int64     `json:"bytes"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Detail     string    `json:"detail,omitempty"`
}

// LaunchError reports a recorder that died during its grace interval.
type LaunchError struct {
	Path     string
	ExitCode int
	Output   string
	Err      error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("recorder failed to launch for %s", filepath.Base(e.Path))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + lastLines(out, 3)
	}
	return msg
}

func (e *LaunchError) Is(target error) bool {
	return target == media.ErrLaunchFailed
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// TargetPath returns the timestamped file name for a new response. A name
// already taken in dir gets a numeric suffix, since the recorder overwrites.
func TargetPath(dir string, t time.Time) string {
	base := "response_" + t.Format("20060102_150405")
	path := filepath.Join(dir, base+".mp4")
	for n := 1; exists(path); n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.mp4", base, n))
	}
	return path
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

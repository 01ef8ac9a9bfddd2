package recording

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/device"
	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/process"
	"github.com/audiolibrelab/homebooth/internal/process/processtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	err error
}

func (p stubProber) Probe(ctx context.Context, path string) (*media.StreamInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &media.StreamInfo{Width: 1280, Height: 720, FrameRate: 30, FramesRead: 1}, nil
}

type harness struct {
	ctrl   *Controller
	runner *processtest.Runner
	dir    string
	sleeps []time.Duration
	saved  []string
}

// newHarness builds a controller whose recorder writes size bytes to its
// target path when terminated (size < 0 writes nothing).
func newHarness(t *testing.T, prober media.Prober, size int) *harness {
	t.Helper()

	h := &harness{dir: t.TempDir()}
	h.runner = &processtest.Runner{Next: func(spec process.Spec) (*processtest.Handle, error) {
		ph := processtest.NewHandle()
		target := outputPath(spec.Args)
		ph.OnTerminate = func() {
			if size >= 0 {
				_ = os.WriteFile(target, bytes.Repeat([]byte{0}, size), 0o644)
			}
		}
		return ph, nil
	}}

	c := config.Default().Capture
	c.Format = "v4l2"
	dev := device.FromConfig(c, 0)

	h.ctrl = NewController(h.runner, dev, media.NewValidator(prober, media.DefaultMinBytes, time.Second), OptionsFromConfig(c))
	h.ctrl.sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }
	h.ctrl.OnSaved(func(path string) { h.saved = append(h.saved, path) })
	return h
}

// outputPath finds the file argument that follows -y.
func outputPath(args []string) string {
	for i, a := range args {
		if a == "-y" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func (h *harness) target() string {
	return TargetPath(h.dir, time.Date(2024, 5, 1, 14, 30, 5, 0, time.UTC))
}

func TestTargetPath(t *testing.T) {
	got := TargetPath("/data/rec", time.Date(2024, 5, 1, 14, 30, 5, 0, time.UTC))
	assert.Equal(t, "/data/rec/response_20240501_143005.mp4", got)
}

func TestTargetPath_SameSecond(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2024, 5, 1, 14, 30, 5, 0, time.UTC)

	first := TargetPath(dir, at)
	require.NoError(t, os.WriteFile(first, []byte("saved"), 0o644))

	second := TargetPath(dir, at)
	assert.Equal(t, filepath.Join(dir, "response_20240501_143005_1.mp4"), second)
	require.NoError(t, os.WriteFile(second, []byte("saved"), 0o644))

	assert.Equal(t, filepath.Join(dir, "response_20240501_143005_2.mp4"), TargetPath(dir, at))
}

func TestStart_RunningAfterGrace(t *testing.T) {
	h := newHarness(t, stubProber{}, 2000)

	s, err := h.ctrl.Start(h.target())
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, StatusRunning, s.Status())
	assert.Equal(t, StatusRunning, h.ctrl.Status())
	assert.Same(t, s, h.ctrl.Active())
	assert.Equal(t, []time.Duration{2 * time.Second}, h.sleeps)

	args := strings.Join(h.runner.Specs()[0].Args, " ")
	assert.Contains(t, args, "-c:v libx264")
	assert.Contains(t, args, "-c:a aac")
	assert.Contains(t, args, "-movflags +faststart")
	assert.Contains(t, args, "-video_size 1280x720")
	assert.Contains(t, args, "-y "+h.target())
	assert.Contains(t, args, "-f rawvideo pipe:1")
}

func TestStart_WhileRunningReturnsExistingSession(t *testing.T) {
	h := newHarness(t, stubProber{}, 2000)

	first, err := h.ctrl.Start(h.target())
	require.NoError(t, err)

	second, err := h.ctrl.Start(filepath.Join(h.dir, "other.mp4"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, h.runner.Specs(), 1)
}

func TestStart_LaunchFailure(t *testing.T) {
	h := newHarness(t, stubProber{}, 2000)
	h.runner.Next = func(spec process.Spec) (*processtest.Handle, error) {
		ph := processtest.NewHandle()
		ph.SetOutput("[video4linux2,v4l2 @ 0x1] Cannot open video device /dev/video0: Device or resource busy\n")
		// leave a partial file behind
		_ = os.WriteFile(outputPath(spec.Args), []byte("partial"), 0o644)
		ph.Exit(1)
		return ph, nil
	}

	s, err := h.ctrl.Start(h.target())
	assert.Nil(t, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrLaunchFailed)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, 1, launchErr.ExitCode)
	assert.Contains(t, launchErr.Output, "Device or resource busy")

	assert.Equal(t, StatusFailed, h.ctrl.Status())
	assert.Nil(t, h.ctrl.Active())
	assert.NoFileExists(t, h.target())
}

func TestStart_ProcessCannotStart(t *testing.T) {
	h := newHarness(t, stubProber{}, 2000)
	h.runner.Next = processtest.Failing("executable file not found in $PATH")

	_, err := h.ctrl.Start(h.target())
	assert.ErrorIs(t, err, media.ErrLaunchFailed)
	assert.Contains(t, err.Error(), "not found")
}

func TestStart_NoDevice(t *testing.T) {
	runner := &processtest.Runner{}
	ctrl := NewController(runner, nil, media.NewValidator(stubProber{}, 0, time.Second), OptionsFromConfig(config.Default().Capture))
	ctrl.sleep = func(time.Duration) {}

	_, err := ctrl.Start(filepath.Join(t.TempDir(), "x.mp4"))
	assert.ErrorIs(t, err, media.ErrDeviceUnavailable)
	assert.Empty(t, runner.Specs())
	assert.False(t, ctrl.HasDevice())
}

func TestStop_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		prober      media.Prober
		size        int
		wantOutcome Outcome
		wantStatus  Status
		wantFile    bool
		wantSaved   bool
	}{
		{"saved", stubProber{}, 2000, OutcomeSaved, StatusStoppedClean, true, true},
		{"corrupt", stubProber{err: errors.New("moov atom not found")}, 2000, OutcomeCorrupt, StatusStoppedCorrupt, false, false},
		{"too small", stubProber{}, 10, OutcomeTooSmall, StatusStoppedCorrupt, false, false},
		{"no file", stubProber{}, -1, OutcomeNoFileProduced, StatusFailed, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.prober, tt.size)

			s, err := h.ctrl.Start(h.target())
			require.NoError(t, err)

			report := h.ctrl.Stop(s)
			assert.Equal(t, tt.wantOutcome, report.Outcome)
			assert.Equal(t, tt.wantStatus, report.Status)
			assert.Equal(t, tt.wantStatus, h.ctrl.Status())
			assert.Equal(t, h.target(), report.Path)
			assert.Nil(t, h.ctrl.Active())
			assert.Equal(t, 1, h.runner.Last().Terminations())

			if tt.wantFile {
				assert.FileExists(t, h.target())
				assert.Equal(t, int64(tt.size), report.Bytes)
			} else {
				assert.NoFileExists(t, h.target())
			}

			if tt.wantSaved {
				assert.Equal(t, []string{h.target()}, h.saved)
			} else {
				assert.Empty(t, h.saved)
			}

			// grace then finalize delay
			assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, h.sleeps)
		})
	}
}

func TestStop_NothingActive(t *testing.T) {
	h := newHarness(t, stubProber{}, 2000)

	report := h.ctrl.Stop(nil)
	assert.Equal(t, OutcomeNone, report.Outcome)
	assert.Equal(t, StatusNotStarted, report.Status)
	assert.Empty(t, h.runner.Specs())
}

func TestStop_Twice(t *testing.T) {
	h := newHarness(t, stubProber{}, 2000)

	s, err := h.ctrl.Start(h.target())
	require.NoError(t, err)

	first := h.ctrl.Stop(s)
	second := h.ctrl.Stop(s)

	assert.Equal(t, OutcomeSaved, first.Outcome)
	assert.Equal(t, OutcomeNone, second.Outcome)
	assert.Equal(t, 1, h.runner.Last().Terminations())
	assert.Len(t, h.saved, 1)
}

func TestPreviewFrame_Mirrored(t *testing.T) {
	h := newHarness(t, stubProber{}, 2000)
	h.ctrl.opts.PreviewWidth = 2
	h.ctrl.opts.PreviewHeight = 1

	pr, pw := io.Pipe()
	h.runner.Next = func(spec process.Spec) (*processtest.Handle, error) {
		ph := processtest.NewHandle()
		ph.SetStdout(pr)
		return ph, nil
	}

	_, err := h.ctrl.Start(h.target())
	require.NoError(t, err)
	assert.Nil(t, h.ctrl.PreviewFrame())

	go func() {
		_, _ = pw.Write([]byte{1, 2, 3, 4, 5, 6})
	}()

	require.Eventually(t, func() bool {
		return h.ctrl.PreviewFrame() != nil
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, []byte{4, 5, 6, 1, 2, 3}, h.ctrl.PreviewFrame().Pix)
}

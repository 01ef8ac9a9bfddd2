package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/device"
	"github.com/audiolibrelab/homebooth/internal/installation"
	"github.com/audiolibrelab/homebooth/internal/media"
	"github.com/audiolibrelab/homebooth/internal/play"
	"github.com/audiolibrelab/homebooth/internal/process"
	"github.com/audiolibrelab/homebooth/internal/process/processtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeProber accepts every file that exists as a 2x2 30fps video.
type storeProber struct{}

func (storeProber) Probe(ctx context.Context, path string) (*media.StreamInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &media.StreamInfo{Width: 2, Height: 2, FrameRate: 30, FramesRead: 1}, nil
}

// recorderOutput finds the file argument that follows -y.
func recorderOutput(args []string) string {
	for i, a := range args {
		if a == "-y" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func stepUntil(t *testing.T, svc *KioskService, phase installation.Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		svc.step()
		return svc.Snapshot().Screen.Phase == phase
	}, 3*time.Second, 2*time.Millisecond, "waiting for %s", phase)
}

func TestSavedRecordingJoinsEmptyLibrary(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.RecordingsDirectory = t.TempDir()
	cfg.Storage.ClipsDirectory = t.TempDir()
	cfg.Phases = config.PhasesConfig{
		Prompt:    10 * time.Millisecond,
		Recording: 200 * time.Millisecond,
		ThankYou:  50 * time.Millisecond,
	}
	cfg.Capture.Format = "v4l2"
	cfg.Capture.Grace = 5 * time.Millisecond
	cfg.Capture.FinalizeDelay = 0
	cfg.Capture.StopTimeout = 100 * time.Millisecond
	cfg.Playback.Width = 2
	cfg.Playback.Height = 2

	frames := bytes.Repeat([]byte{200, 100, 50}, 4*300)
	runner := &processtest.Runner{Next: func(spec process.Spec) (*processtest.Handle, error) {
		h := processtest.NewHandle()
		switch spec.Label {
		case "recorder":
			// ffmpeg creates the file at once but only finalizes it on stop
			target := recorderOutput(spec.Args)
			if err := os.WriteFile(target, []byte("partial"), 0o644); err != nil {
				return nil, err
			}
			h.OnTerminate = func() {
				_ = os.WriteFile(target, bytes.Repeat([]byte{0}, 4096), 0o644)
			}
		case "decoder":
			h.SetStdout(io.NopCloser(bytes.NewReader(frames)))
		}
		return h, nil
	}}

	svc := assemble(cfg, nil, runner, storeProber{}, device.FromConfig(cfg.Capture, 0))
	t.Cleanup(svc.comps.Engine.Close)
	synchronizer, ok := svc.comps.Playlist.(*play.Synchronizer)
	require.True(t, ok)

	svc.step()
	assert.Equal(t, installation.ContentPlaceholder, svc.Snapshot().Screen.Content)
	assert.Empty(t, synchronizer.Library())

	require.True(t, svc.Send(installation.EventAdvance))
	svc.step()
	require.Equal(t, installation.PhasePrompt, svc.Snapshot().Screen.Phase)

	stepUntil(t, svc, installation.PhaseRecording)
	var target string
	for _, spec := range runner.Specs() {
		if spec.Label == "recorder" {
			target = recorderOutput(spec.Args)
		}
	}
	require.NotEmpty(t, target)

	// a rescan requested mid-recording must leave the live file alone
	svc.Rescan()
	svc.step()
	assert.FileExists(t, target)

	stepUntil(t, svc, installation.PhaseThankYou)
	assert.Equal(t, "Saved: "+filepath.Base(target), svc.Snapshot().Screen.Status.Recording)

	svc.step()
	assert.Equal(t, []string{target}, synchronizer.Library())
	recs := svc.Recordings()
	require.Len(t, recs, 1)
	assert.Equal(t, int64(4096), recs[0].Size)

	stepUntil(t, svc, installation.PhaseIdle)
	svc.step()
	info := synchronizer.Info()
	assert.Equal(t, target, info.Path)
	assert.Equal(t, 0, info.Index)
	assert.Equal(t, 1, info.Total)
	assert.Equal(t, installation.ContentPlayback, svc.Snapshot().Screen.Content)
}

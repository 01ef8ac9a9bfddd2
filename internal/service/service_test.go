package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/installation"
	"github.com/audiolibrelab/homebooth/internal/journal"
	"github.com/audiolibrelab/homebooth/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu        sync.Mutex
	events    []installation.Event
	ticks     int
	closed    int
	quitOn    installation.Event
	hasQuit   bool
	capturing bool
}

func (e *fakeEngine) Handle(ev installation.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return e.hasQuit && ev == e.quitOn
}

func (e *fakeEngine) Tick() installation.Screen {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks++
	return installation.Screen{Phase: installation.PhaseIdle, PhaseName: "Idle"}
}

func (e *fakeEngine) Capturing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capturing
}

func (e *fakeEngine) setCapturing(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capturing = v
}

func (e *fakeEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
}

type fakeLibrary struct {
	entries []library.Entry
	err     error
	scans   int
}

func (l *fakeLibrary) Scan() ([]library.Entry, error) {
	l.scans++
	return l.entries, l.err
}

type fakePlaylist struct {
	sets [][]string
}

func (p *fakePlaylist) SetLibrary(paths []string) {
	p.sets = append(p.sets, paths)
}

type checkerFunc func(path string) bool

func (f checkerFunc) IsValid(path string) bool { return f(path) }

type fakeHistory struct{}

func (fakeHistory) Recent(limit int) ([]journal.Entry, error) {
	return []journal.Entry{{ID: 1, Path: "/r/a.mp4"}}, nil
}

func newTestService(engine *fakeEngine, lib *fakeLibrary) (*KioskService, *fakePlaylist) {
	cfg := config.Default()
	cfg.Loop.Inbox = 2
	playlist := &fakePlaylist{}
	return New(cfg, Components{Engine: engine, Library: lib, Playlist: playlist}), playlist
}

func TestStep_DrainsEventsBeforeTick(t *testing.T) {
	engine := &fakeEngine{}
	svc, _ := newTestService(engine, &fakeLibrary{})

	assert.True(t, svc.Send(installation.EventAdvance))
	assert.True(t, svc.Send(installation.EventReset))

	assert.False(t, svc.step())
	assert.Equal(t, []installation.Event{installation.EventAdvance, installation.EventReset}, engine.events)
	assert.Equal(t, 1, engine.ticks)

	snap := svc.Snapshot()
	assert.Equal(t, uint64(1), snap.Tick)
	assert.True(t, snap.Running)
	assert.Equal(t, "Idle", snap.Screen.PhaseName)
}

func TestSend_FullInboxDrops(t *testing.T) {
	svc, _ := newTestService(&fakeEngine{}, &fakeLibrary{})

	assert.True(t, svc.Send(installation.EventAdvance))
	assert.True(t, svc.Send(installation.EventAdvance))
	assert.False(t, svc.Send(installation.EventAdvance))
}

func TestStep_QuitStopsBeforeTick(t *testing.T) {
	engine := &fakeEngine{hasQuit: true, quitOn: installation.EventQuit}
	svc, _ := newTestService(engine, &fakeLibrary{})

	svc.Send(installation.EventQuit)
	assert.True(t, svc.step())
	assert.Zero(t, engine.ticks)
}

func TestRefreshLibrary(t *testing.T) {
	mod := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lib := &fakeLibrary{entries: []library.Entry{
		{Name: "response_2.mp4", Path: "/r/response_2.mp4", Size: 2048, ModTime: mod},
		{Name: "response_1.mp4", Path: "/r/response_1.mp4", Size: 100, ModTime: mod.Add(-time.Hour)},
	}}
	svc, playlist := newTestService(&fakeEngine{}, lib)

	svc.step()
	require.Len(t, playlist.sets, 1)
	assert.Equal(t, []string{"/r/response_2.mp4", "/r/response_1.mp4"}, playlist.sets[0])

	recs := svc.Recordings()
	require.Len(t, recs, 2)
	assert.Equal(t, "2.0 KB", recs[0].SizeHuman)
	assert.Equal(t, "2024-05-01 12:00:00", recs[0].ModTimeHuman)

	// no rescan until asked
	svc.step()
	assert.Equal(t, 1, lib.scans)

	svc.Rescan()
	svc.step()
	assert.Equal(t, 2, lib.scans)
}

func TestRescanWaitsWhileCapturing(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "response_20240501_120003.mp4")
	require.NoError(t, os.WriteFile(live, []byte("mdat without moov yet"), 0o644))

	// the container only validates once the recorder has finalized it
	finalized := false
	checker := checkerFunc(func(string) bool { return finalized })

	engine := &fakeEngine{capturing: true}
	playlist := &fakePlaylist{}
	svc := New(config.Default(), Components{
		Engine:   engine,
		Library:  library.NewScanner(dir, []string{".mp4"}, checker),
		Playlist: playlist,
	})

	svc.step()
	svc.Rescan()
	svc.step()
	assert.FileExists(t, live)
	assert.Empty(t, playlist.sets)
	assert.Equal(t, 2, engine.ticks)

	finalized = true
	engine.setCapturing(false)
	svc.step()
	assert.FileExists(t, live)
	require.Len(t, playlist.sets, 1)
	assert.Equal(t, []string{live}, playlist.sets[0])
}

func TestRefreshLibrary_Error(t *testing.T) {
	lib := &fakeLibrary{err: errors.New("permission denied")}
	svc, playlist := newTestService(&fakeEngine{}, lib)

	svc.step()
	assert.Empty(t, playlist.sets)
	assert.Contains(t, svc.GetLastError(), "permission denied")
}

func TestHistory(t *testing.T) {
	svc, _ := newTestService(&fakeEngine{}, &fakeLibrary{})
	entries, err := svc.History(10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	svc.comps.History = fakeHistory{}
	entries, err = svc.History(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRun_QuitClosesEngine(t *testing.T) {
	engine := &fakeEngine{hasQuit: true, quitOn: installation.EventQuit}
	svc, _ := newTestService(engine, &fakeLibrary{})

	errc := make(chan error, 1)
	go func() { errc <- svc.Run(context.Background()) }()

	require.True(t, svc.Send(installation.EventQuit))
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on quit")
	}

	<-svc.Done()
	assert.Equal(t, 1, engine.closed)
	assert.False(t, svc.Snapshot().Running)
}

func TestRun_ContextCancel(t *testing.T) {
	engine := &fakeEngine{}
	svc, _ := newTestService(engine, &fakeLibrary{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
	assert.Equal(t, 1, engine.closed)

	assert.Error(t, svc.Run(context.Background()))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "999 B", formatBytes(999))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "3.0 MB", formatBytes(3*1024*1024))
}

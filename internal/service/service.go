package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/homebooth/internal/config"
	"github.com/audiolibrelab/homebooth/internal/installation"
	"github.com/audiolibrelab/homebooth/internal/journal"
	"github.com/audiolibrelab/homebooth/internal/library"
)

// Service is what the console and the HTTP API see of the running kiosk.
type Service interface {
	// Loop
	Run(ctx context.Context) error
	Done() <-chan struct{}

	// Operator signals
	Send(ev installation.Event) bool
	Rescan()

	// Status
	Snapshot() Snapshot
	Recordings() []RecordingInfo
	History(limit int) ([]journal.Entry, error)
	GetConfig() *config.Config
	GetLastError() string
}

// Engine is the phase machine driven by the loop.
type Engine interface {
	Handle(ev installation.Event) bool
	Tick() installation.Screen
	// Capturing is true while a recorder writes into the recordings store.
	Capturing() bool
	Close()
}

// Library lists the recordings store.
type Library interface {
	Scan() ([]library.Entry, error)
}

// Playlist receives the ordered library.
type Playlist interface {
	SetLibrary(paths []string)
}

// History reads the recording journal.
type History interface {
	Recent(limit int) ([]journal.Entry, error)
}

// Components are the collaborators the loop drives.
type Components struct {
	Engine   Engine
	Library  Library
	Playlist Playlist
	History  History // optional
}

// Snapshot is the published result of the last tick.
type Snapshot struct {
	Screen    installation.Screen `json:"screen"`
	Tick      uint64              `json:"tick"`
	UpdatedAt time.Time           `json:"updated_at"`
	Running   bool                `json:"running"`
}

// RecordingInfo is a library entry prepared for display.
type RecordingInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
}

// KioskService owns the installation on a single goroutine.
type KioskService struct {
	cfg   *config.Config
	comps Components
	inbox chan installation.Event
	done  chan struct{}

	rescan  atomic.Bool
	started atomic.Bool

	mu         sync.RWMutex
	snapshot   Snapshot
	recordings []RecordingInfo

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates the kiosk service. Run must be called to start the loop.
func New(cfg *config.Config, comps Components) *KioskService {
	inbox := cfg.Loop.Inbox
	if inbox < 1 {
		inbox = 1
	}
	s := &KioskService{
		cfg:   cfg,
		comps: comps,
		inbox: make(chan installation.Event, inbox),
		done:  make(chan struct{}),
	}
	s.rescan.Store(true)
	return s
}

// Run drives the loop until ctx is cancelled or a quit event arrives. It may
// only be called once.
func (s *KioskService) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("service already running")
	}
	defer close(s.done)
	defer s.comps.Engine.Close()

	rate := s.cfg.Loop.TickRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	slog.Info("Kiosk loop started", "tick_rate", rate)
	s.step()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Kiosk loop stopping", "reason", ctx.Err())
			s.markStopped()
			return nil
		case <-ticker.C:
			if quit := s.step(); quit {
				slog.Info("Quit requested")
				s.markStopped()
				return nil
			}
		}
	}
}

func (s *KioskService) Done() <-chan struct{} {
	return s.done
}

// step is one loop iteration: drain events, refresh the library if needed,
// tick the engine and publish the result.
func (s *KioskService) step() bool {
drain:
	for {
		select {
		case ev := <-s.inbox:
			if s.comps.Engine.Handle(ev) {
				return true
			}
		default:
			break drain
		}
	}

	// the scanner deletes files it cannot validate, which includes a
	// recording that is still being written
	if !s.comps.Engine.Capturing() && s.rescan.CompareAndSwap(true, false) {
		s.refreshLibrary()
	}

	screen := s.comps.Engine.Tick()

	s.mu.Lock()
	s.snapshot = Snapshot{
		Screen:    screen,
		Tick:      s.snapshot.Tick + 1,
		UpdatedAt: time.Now(),
		Running:   true,
	}
	s.mu.Unlock()
	return false
}

func (s *KioskService) markStopped() {
	s.mu.Lock()
	s.snapshot.Running = false
	s.mu.Unlock()
}

func (s *KioskService) refreshLibrary() {
	entries, err := s.comps.Library.Scan()
	if err != nil {
		slog.Error("Library scan failed", "error", err)
		s.setLastError(fmt.Sprintf("Failed to scan recordings: %v", err))
		return
	}

	s.comps.Playlist.SetLibrary(library.Paths(entries))

	infos := make([]RecordingInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, RecordingInfo{
			Name:         e.Name,
			Path:         e.Path,
			Size:         e.Size,
			SizeHuman:    formatBytes(e.Size),
			ModTime:      e.ModTime,
			ModTimeHuman: e.ModTime.Format("2006-01-02 15:04:05"),
		})
	}

	s.mu.Lock()
	s.recordings = infos
	s.mu.Unlock()
	s.clearLastError()
	slog.Info("Library refreshed", "entries", len(infos))
}

// Send queues an event for the next tick. It never blocks; a full inbox
// drops the event.
func (s *KioskService) Send(ev installation.Event) bool {
	select {
	case s.inbox <- ev:
		return true
	default:
		slog.Warn("Event dropped, inbox full", "event", ev.String())
		return false
	}
}

// Rescan asks the loop to rebuild the library before its next tick. While a
// recording runs the rescan waits until the session has stopped.
func (s *KioskService) Rescan() {
	s.rescan.Store(true)
}

func (s *KioskService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Recordings returns the library as of the last scan.
func (s *KioskService) Recordings() []RecordingInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RecordingInfo(nil), s.recordings...)
}

func (s *KioskService) History(limit int) ([]journal.Entry, error) {
	if s.comps.History == nil {
		return []journal.Entry{}, nil
	}
	return s.comps.History.Recent(limit)
}

func (s *KioskService) GetConfig() *config.Config {
	return s.cfg
}

// GetLastError returns the last error message
func (s *KioskService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *KioskService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
	slog.Debug("Service error set", "error", err)
}

func (s *KioskService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

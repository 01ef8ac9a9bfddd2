package library

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is a validated recording in the store.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Checker decides whether a file is playable.
type Checker interface {
	IsValid(path string) bool
}

// Scanner rebuilds the ordered library from the recordings directory.
type Scanner struct {
	dir        string
	extensions []string
	checker    Checker
	remove     func(string) error
}

func NewScanner(dir string, extensions []string, checker Checker) *Scanner {
	return &Scanner{dir: dir, extensions: extensions, checker: checker, remove: os.Remove}
}

func (s *Scanner) Dir() string {
	return s.dir
}

// Scan validates every candidate file, deletes the invalid ones and returns
// the survivors newest first. A missing directory is created and yields an
// empty library.
func (s *Scanner) Scan() ([]Entry, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	entries := make([]Entry, 0, len(files))
	removed := 0
	for _, file := range files {
		if file.IsDir() || !s.matches(file.Name()) {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		if !s.checker.IsValid(path) {
			if err := s.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Failed to delete invalid recording", "file", file.Name(), "error", err)
			} else {
				removed++
				slog.Info("Deleted invalid recording", "file", file.Name())
			}
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info for recording", "file", file.Name(), "error", err)
			continue
		}

		entries = append(entries, Entry{
			Name:    file.Name(),
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// newest first; name breaks ties so equal mtimes keep a stable order
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].Name > entries[j].Name
		}
		return entries[i].ModTime.After(entries[j].ModTime)
	})

	slog.Debug("Library scanned", "dir", s.dir, "entries", len(entries), "removed", removed)
	return entries, nil
}

func (s *Scanner) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range s.extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Paths returns the file paths of entries in order.
func Paths(entries []Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

// Package lockfile keeps two kiosks from writing into the same recordings
// directory. The flock is dropped by the kernel when the process dies.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const Name = ".homebooth.lock"

// Lock is a held directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive, non-blocking lock on dir.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, Name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, &LockError{Path: path, Holder: holder(path), Cause: err}
	}

	// truncate only once we own it so a refused second instance leaves the pid intact
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteString(fmt.Sprintf("pid=%d\n", os.Getpid()))
		if err != nil {
			slog.Warn("Failed to write lock owner", "path", path, "error", err)
		}
	}

	slog.Debug("Directory lock acquired", "path", path, "pid", os.Getpid())
	return &Lock{file: file, path: path}, nil
}

func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock and removes the file. Safe to call repeatedly.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Failed to unlock", "path", l.path, "error", err)
	}
	err := l.file.Close()
	l.file = nil
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
		slog.Warn("Failed to remove lock file", "path", l.path, "error", rmErr)
	}

	slog.Debug("Directory lock released", "path", l.path)
	return err
}

// LockError is returned when another process holds the lock.
type LockError struct {
	Path   string
	Holder string
	Cause  error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another homebooth instance is using %s", filepath.Dir(e.Path))
	if e.Holder != "" {
		msg += " (" + e.Holder + ")"
	}
	return msg + fmt.Sprintf("; if it is not running, remove %s", e.Path)
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// holder describes the owner recorded in the lock file.
func holder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return ""
	}
	if alive(pid) {
		return fmt.Sprintf("pid %d", pid)
	}
	return fmt.Sprintf("pid %d, not running", pid)
}

func parsePID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "pid="); ok {
			if pid, err := strconv.Atoi(v); err == nil {
				return pid
			}
		}
	}
	return 0
}

func alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

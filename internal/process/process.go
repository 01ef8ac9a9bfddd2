package process

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// maxOutput bounds the diagnostic output kept per process.
const maxOutput = 64 * 1024

// Spec describes an external program to launch.
type Spec struct {
	Name string
	Args []string
	Env  []string
	// RawStdout exposes stdout as a byte stream (e.g. rawvideo frames)
	// instead of logging it line by line.
	RawStdout bool
	Label     string
}

func (s Spec) String() string {
	return strings.Join(append([]string{s.Name}, s.Args...), " ")
}

// Handle is a running (or finished) external process.
type Handle interface {
	Pid() int
	// Exited reports without blocking whether the process has terminated.
	Exited() bool
	// Done is closed once the process has terminated.
	Done() <-chan struct{}
	ExitCode() int
	// Terminate requests a graceful stop, waits up to timeout and then kills.
	Terminate(timeout time.Duration) error
	// Output returns the captured diagnostic output (stderr).
	Output() string
	// Stdout is nil unless the process was started with RawStdout.
	Stdout() io.ReadCloser
}

// Runner launches external processes.
type Runner interface {
	Start(spec Spec) (Handle, error)
}

// ExecRunner starts real OS processes.
type ExecRunner struct {
	// WaitDelay bounds how long Wait lingers on pipes held open by
	// grandchildren after the process itself exited.
	WaitDelay time.Duration
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: time.Second}
}

func (r *ExecRunner) Start(spec Spec) (Handle, error) {
	label := spec.Label
	if label == "" {
		label = spec.Name
	}

	cmd := exec.Command(spec.Name, spec.Args...)
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.WaitDelay = r.WaitDelay

	h := &execHandle{
		cmd:   cmd,
		label: label,
		done:  make(chan struct{}),
		exit:  -1,
	}
	cmd.Stderr = &lineWriter{buf: &h.out, mu: &h.mu, label: label}

	var stdoutWriter *os.File
	if spec.RawStdout {
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		cmd.Stdout = pw
		stdoutWriter = pw
		h.stdout = pr
	} else {
		cmd.Stdout = &lineWriter{buf: &h.out, mu: &h.mu, label: label}
	}

	slog.Debug("Starting process", "label", label, "command", spec.String())

	if err := cmd.Start(); err != nil {
		if stdoutWriter != nil {
			stdoutWriter.Close()
			h.stdout.Close()
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}
	if stdoutWriter != nil {
		// the child holds its own copy; closing ours lets the reader see EOF on exit
		stdoutWriter.Close()
	}

	go h.wait()

	return h, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	label  string
	stdout *os.File

	mu   sync.Mutex
	out  bytes.Buffer
	exit int
	err  error

	done chan struct{}
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.err = err
	if h.cmd.ProcessState != nil {
		h.exit = h.cmd.ProcessState.ExitCode()
	}
	h.mu.Unlock()

	slog.Debug("Process exited", "label", h.label, "pid", h.Pid(), "state", stateString(h.cmd.ProcessState))
	close(h.done)
}

func (h *execHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *execHandle) Done() <-chan struct{} {
	return h.done
}

func (h *execHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit
}

func (h *execHandle) Terminate(timeout time.Duration) error {
	if h.Exited() {
		return nil
	}

	slog.Debug("Sending SIGTERM", "label", h.label, "pid", h.Pid())
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.Debug("Failed to send SIGTERM, falling back to SIGKILL", "label", h.label, "error", err)
		h.cmd.Process.Kill()
	}

	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		slog.Warn("Process did not exit within timeout, force killing", "label", h.label, "timeout", timeout)
		if err := h.cmd.Process.Kill(); err != nil && !h.Exited() {
			return fmt.Errorf("failed to kill %s: %w", h.label, err)
		}
		<-h.done
		return nil
	}
}

func (h *execHandle) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.String()
}

func (h *execHandle) Stdout() io.ReadCloser {
	if h.stdout == nil {
		return nil
	}
	return h.stdout
}

func stateString(ps *os.ProcessState) string {
	if ps == nil {
		return "unknown"
	}
	return ps.String()
}

// lineWriter keeps a bounded tail of the output and logs complete lines at debug level.
type lineWriter struct {
	mu      *sync.Mutex
	buf     *bytes.Buffer
	label   string
	partial []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(p)
	if over := w.buf.Len() - maxOutput; over > 0 {
		w.buf.Next(over)
	}
	w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.partial[:i]), "\r")
		if line != "" {
			slog.Debug("Process output", "label", w.label, "line", line)
		}
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// Package processtest provides in-memory process handles for tests.
package processtest

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/audiolibrelab/homebooth/internal/process"
)

// Handle is a controllable process.Handle.
type Handle struct {
	PID int

	mu         sync.Mutex
	exitCode   int
	output     string
	stdout     io.ReadCloser
	done       chan struct{}
	once       sync.Once
	terminated int
	// OnTerminate runs before the handle is marked exited.
	OnTerminate func()
}

func NewHandle() *Handle {
	return &Handle{PID: 1000, exitCode: -1, done: make(chan struct{})}
}

// Exit marks the process as finished with code.
func (h *Handle) Exit(code int) {
	h.mu.Lock()
	h.exitCode = code
	h.mu.Unlock()
	h.once.Do(func() { close(h.done) })
}

func (h *Handle) SetOutput(s string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.output = s
}

func (h *Handle) SetStdout(r io.ReadCloser) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stdout = r
}

// Terminations counts Terminate calls.
func (h *Handle) Terminations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

func (h *Handle) Pid() int { return h.PID }

func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

func (h *Handle) Terminate(timeout time.Duration) error {
	h.mu.Lock()
	h.terminated++
	hook := h.OnTerminate
	h.mu.Unlock()

	if h.Exited() {
		return nil
	}
	if hook != nil {
		hook()
	}
	h.Exit(255)
	return nil
}

func (h *Handle) Output() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.output
}

func (h *Handle) Stdout() io.ReadCloser {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stdout
}

// Runner records every Spec and hands out handles built by Next.
type Runner struct {
	mu    sync.Mutex
	specs []process.Spec
	// Next builds the handle for a start; nil yields a fresh running Handle.
	Next func(spec process.Spec) (*Handle, error)
	// Handles holds every handle returned, in start order.
	Handles []*Handle
}

func (r *Runner) Start(spec process.Spec) (process.Handle, error) {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	next := r.Next
	r.mu.Unlock()

	h := NewHandle()
	if next != nil {
		var err error
		h, err = next(spec)
		if err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	h.PID = 1000 + len(r.Handles)
	r.Handles = append(r.Handles, h)
	r.mu.Unlock()
	return h, nil
}

// Specs returns a copy of all started specs.
func (r *Runner) Specs() []process.Spec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Spec(nil), r.specs...)
}

// Last returns the most recent handle.
func (r *Runner) Last() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Handles) == 0 {
		return nil
	}
	return r.Handles[len(r.Handles)-1]
}

// Failing returns a Next func whose starts always fail.
func Failing(msg string) func(process.Spec) (*Handle, error) {
	return func(spec process.Spec) (*Handle, error) {
		return nil, fmt.Errorf("failed to start %s: %s", spec.Name, msg)
	}
}

package sim

import (
	"sync"
	"sync/atomic"

	"github.com/nerrad567/virtfoo-core/internal/platform"
)

// Line is a simulated interrupt line.
//
// Each Raise runs the installed handler on a fresh goroutine, so handlers
// observe the same asynchrony they would under a real interrupt controller.
type Line struct {
	mu      sync.Mutex
	handler platform.IRQHandler
	name    string
	running sync.WaitGroup

	raised   atomic.Uint64
	handled  atomic.Uint64
	spurious atomic.Uint64
}

// LineStats reports interrupt delivery counters.
type LineStats struct {
	Raised   uint64
	Handled  uint64
	Spurious uint64
}

// NewLine creates an interrupt line with no handler installed.
func NewLine() *Line {
	return &Line{}
}

// install sets the handler. It fails if one is already installed.
func (l *Line) install(name string, handler platform.IRQHandler) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler != nil {
		return false
	}
	l.handler = handler
	l.name = name
	return true
}

// remove clears the handler and waits for running invocations to return.
func (l *Line) remove() {
	l.mu.Lock()
	l.handler = nil
	l.name = ""
	l.mu.Unlock()
	l.running.Wait()
}

// Raise signals the line.
//
// Returns:
//   - bool: false if no handler is installed (the interrupt is counted as spurious)
func (l *Line) Raise() bool {
	l.raised.Add(1)

	l.mu.Lock()
	handler := l.handler
	if handler == nil {
		l.mu.Unlock()
		l.spurious.Add(1)
		return false
	}
	l.running.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.running.Done()
		if handler() == platform.IRQHandled {
			l.handled.Add(1)
		}
	}()
	return true
}

// Installed reports whether a handler is present.
func (l *Line) Installed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler != nil
}

// Stats returns delivery counters.
func (l *Line) Stats() LineStats {
	return LineStats{
		Raised:   l.raised.Load(),
		Handled:  l.handled.Load(),
		Spurious: l.spurious.Load(),
	}
}

package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/platform"
	"github.com/nerrad567/virtfoo-core/internal/regs"
)

// fakeWindow is a register window with read-to-clear status and no side effects.
type fakeWindow struct {
	mu     sync.Mutex
	buf    []byte
	writes map[uint32][]uint32
}

func newFakeWindow(size int) *fakeWindow {
	return &fakeWindow{buf: make([]byte, size), writes: make(map[uint32][]uint32)}
}

func (w *fakeWindow) ReadUint32(off uint32) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := binary.LittleEndian.Uint32(w.buf[off:])
	if regs.Offset(off) == regs.IntStatus {
		binary.LittleEndian.PutUint32(w.buf[off:], 0)
	}
	return v
}

func (w *fakeWindow) WriteUint32(off uint32, v uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes[off] = append(w.writes[off], v)
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

func (w *fakeWindow) Len() int {
	return len(w.buf)
}

// set stores a register value without recording a write.
func (w *fakeWindow) set(off regs.Offset, v uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

func (w *fakeWindow) writesTo(off regs.Offset) []uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint32(nil), w.writes[uint32(off)]...)
}

// fakePlatform is a platform device whose interrupts are fired by the test.
type fakePlatform struct {
	window *fakeWindow

	noMem  bool
	mapErr error
	irq    int
	noIRQ  bool
	irqErr error

	// onFree runs at the start of FreeIRQ, before freeDelay.
	onFree    func()
	freeDelay time.Duration

	mu       sync.Mutex
	handler  platform.IRQHandler
	freed    bool
	unmapped bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{window: newFakeWindow(regs.Size), irq: 9}
}

func (p *fakePlatform) MemResource() (platform.Resource, bool) {
	if p.noMem {
		return platform.Resource{}, false
	}
	return platform.Resource{Start: 0x1000, Size: p.window.Len()}, true
}

func (p *fakePlatform) IORemap(platform.Resource) (regs.IO, error) {
	if p.mapErr != nil {
		return nil, p.mapErr
	}
	return p.window, nil
}

func (p *fakePlatform) IOUnmap(regs.IO) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unmapped = true
}

func (p *fakePlatform) IRQResource() (int, bool) {
	return p.irq, !p.noIRQ
}

func (p *fakePlatform) RequestIRQ(irq int, _ string, h platform.IRQHandler) error {
	if p.irqErr != nil {
		return p.irqErr
	}
	if irq != p.irq {
		return fmt.Errorf("unexpected irq %d", irq)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
	return nil
}

func (p *fakePlatform) FreeIRQ(int) {
	if p.onFree != nil {
		p.onFree()
	}
	time.Sleep(p.freeDelay)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = nil
	p.freed = true
}

// fire latches status bits and invokes the handler synchronously.
func (p *fakePlatform) fire(t *testing.T, status uint32) {
	t.Helper()
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h == nil {
		t.Fatal("fire: no handler installed")
	}
	p.window.set(regs.IntStatus, status)
	if got := h(); got != platform.IRQHandled {
		t.Fatalf("handler returned %v, want IRQ_HANDLED", got)
	}
}

func (p *fakePlatform) state() (freed, unmapped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freed, p.unmapped
}

// recordingLogger captures log messages.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, level+": "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

func (l *recordingLogger) count(entry string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.msgs {
		if m == entry {
			n++
		}
	}
	return n
}

// drain waits for all queued jobs to run.
func drain(t *testing.T, d *Device) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/regs"
)

// DefaultChipID is the identity reported when none is configured.
const DefaultChipID uint32 = 0xf001

// Hardware is the simulated device behind the register window.
//
// It implements regs.IO. All methods are safe for concurrent use.
type Hardware struct {
	mu      sync.Mutex
	mem     []byte
	chipID  uint32
	cmd     uint32
	status  uint32
	initReg uint32

	line         *Line
	dequeueDelay time.Duration
	raiseOnInit  bool

	pending sync.WaitGroup
	closed  bool
}

// HardwareConfig configures a simulated device.
type HardwareConfig struct {
	// ChipID is the value of the ID register. Default: DefaultChipID.
	ChipID uint32

	// MemSize is the window size in bytes. Default: regs.Size.
	MemSize int

	// DequeueDelay is how long the hardware takes to consume a command
	// before signalling IRQBufDeq. Zero signals immediately.
	DequeueDelay time.Duration

	// QuietInit suppresses the interrupt normally raised on hardware enable.
	QuietInit bool
}

// NewHardware creates a simulated device wired to an interrupt line.
func NewHardware(cfg HardwareConfig, line *Line) *Hardware {
	if cfg.ChipID == 0 {
		cfg.ChipID = DefaultChipID
	}
	if cfg.MemSize <= 0 {
		cfg.MemSize = regs.Size
	}
	return &Hardware{
		mem:          make([]byte, cfg.MemSize),
		chipID:       cfg.ChipID,
		line:         line,
		dequeueDelay: cfg.DequeueDelay,
		raiseOnInit:  !cfg.QuietInit,
	}
}

// Len implements regs.IO.
func (h *Hardware) Len() int {
	return len(h.mem)
}

// ReadUint32 implements regs.IO.
func (h *Hardware) ReadUint32(off uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch regs.Offset(off) {
	case regs.ID:
		return h.chipID
	case regs.Init:
		return 0
	case regs.Cmd:
		return h.cmd
	case regs.IntStatus:
		v := h.status
		h.status = 0
		return v
	}
	if int(off)+4 > len(h.mem) {
		return 0
	}
	return binary.LittleEndian.Uint32(h.mem[off:])
}

// WriteUint32 implements regs.IO.
func (h *Hardware) WriteUint32(off uint32, v uint32) {
	h.mu.Lock()

	switch regs.Offset(off) {
	case regs.ID, regs.IntStatus:
		// read-only
		h.mu.Unlock()
	case regs.Init:
		h.initReg = v
		raise := v&regs.HWEnable != 0 && h.raiseOnInit && !h.closed
		if raise {
			h.status |= regs.IRQEnabled
		}
		h.mu.Unlock()
		if raise {
			h.line.Raise()
		}
	case regs.Cmd:
		h.cmd = v
		if h.closed {
			h.mu.Unlock()
			return
		}
		h.pending.Add(1)
		h.mu.Unlock()
		h.scheduleDequeue()
	default:
		if int(off)+4 <= len(h.mem) {
			binary.LittleEndian.PutUint32(h.mem[off:], v)
		}
		h.mu.Unlock()
	}
}

// scheduleDequeue signals IRQBufDeq once the command has been consumed.
// The caller has already added to h.pending.
func (h *Hardware) scheduleDequeue() {
	fire := func() {
		defer h.pending.Done()
		h.Trigger(regs.IRQBufDeq)
	}
	if h.dequeueDelay <= 0 {
		go fire()
		return
	}
	time.AfterFunc(h.dequeueDelay, fire)
}

// Trigger latches status bits and raises the interrupt line.
// Bits outside the known mask are latched as-is.
//
// Returns:
//   - bool: true if a handler was installed to receive the interrupt
func (h *Hardware) Trigger(bits uint32) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.status |= bits
	h.mu.Unlock()
	return h.line.Raise()
}

// Enabled reports whether the driver has set HWEnable.
func (h *Hardware) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initReg&regs.HWEnable != 0
}

// PendingStatus returns latched status bits without clearing them.
func (h *Hardware) PendingStatus() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Close stops further interrupts and waits for scheduled dequeues to finish.
func (h *Hardware) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.pending.Wait()
}

package regs

import (
	"errors"
	"fmt"
)

// Offset is a byte offset into the register window.
type Offset uint32

// Register offsets.
const (
	ID        Offset = 0x0
	Init      Offset = 0x4
	Cmd       Offset = 0x8
	IntStatus Offset = 0xc
)

// Size is the number of bytes the register map occupies.
const Size = 0x10

// INIT register bits.
const (
	// HWEnable turns the hardware on.
	HWEnable uint32 = 1 << 0
)

// INT_STATUS register bits.
const (
	// IRQEnabled signals that the hardware has been enabled.
	IRQEnabled uint32 = 1 << 0

	// IRQBufDeq signals that the command buffer was dequeued.
	IRQBufDeq uint32 = 1 << 1

	// IRQKnownMask covers every status bit the driver understands.
	IRQKnownMask = IRQEnabled | IRQBufDeq
)

// ErrWindowTooSmall is returned by New when the window cannot hold the register map.
var ErrWindowTooSmall = errors.New("regs: window too small for register map")

// IO is a byte-addressable I/O window.
//
// Implementations must be safe for concurrent use; the driver reads the
// status register from interrupt context while the control plane writes
// the command register.
type IO interface {
	// ReadUint32 returns the 32-bit value at a byte offset.
	ReadUint32(off uint32) uint32

	// WriteUint32 stores a 32-bit value at a byte offset.
	WriteUint32(off uint32, v uint32)

	// Len returns the window size in bytes.
	Len() int
}

// Registers is the typed view over a mapped window.
type Registers struct {
	io IO
}

// New binds a register view to a window.
//
// Parameters:
//   - io: Mapped I/O window, at least Size bytes long
//
// Returns:
//   - *Registers: Register view ready for use
//   - error: ErrWindowTooSmall if the window cannot hold all registers
func New(io IO) (*Registers, error) {
	if io == nil {
		return nil, fmt.Errorf("%w: nil window", ErrWindowTooSmall)
	}
	if io.Len() < Size {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrWindowTooSmall, io.Len(), Size)
	}
	return &Registers{io: io}, nil
}

// Read returns the current value of a register.
func (r *Registers) Read(off Offset) uint32 {
	return r.io.ReadUint32(uint32(off))
}

// Write stores a value into a register. Writes are fire-and-forget.
func (r *Registers) Write(off Offset, v uint32) {
	r.io.WriteUint32(uint32(off), v)
}

// String names a register offset for logging.
func (o Offset) String() string {
	switch o {
	case ID:
		return "ID"
	case Init:
		return "INIT"
	case Cmd:
		return "CMD"
	case IntStatus:
		return "INT_STATUS"
	default:
		return fmt.Sprintf("0x%x", uint32(o))
	}
}

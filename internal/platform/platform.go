// Package platform describes the platform bus a virt-foo device is attached to.
//
// A platform device hands the driver two resources: a memory range holding the
// register window and, optionally, an interrupt line. The driver maps the
// former and installs a handler on the latter. Both are released on detach.
package platform

import "github.com/nerrad567/virtfoo-core/internal/regs"

// Resource is a memory range published by the platform.
type Resource struct {
	Start uint64
	Size  int
}

// IRQReturn is the result of an interrupt handler.
type IRQReturn int

const (
	// IRQNone means the interrupt was not for this device.
	IRQNone IRQReturn = iota

	// IRQHandled means the interrupt was acknowledged.
	IRQHandled
)

// String returns the conventional name of the return value.
func (r IRQReturn) String() string {
	switch r {
	case IRQHandled:
		return "IRQ_HANDLED"
	default:
		return "IRQ_NONE"
	}
}

// IRQHandler is invoked once per interrupt.
//
// Handlers run in a restricted context: they must not block, must not sleep
// and must return promptly.
type IRQHandler func() IRQReturn

// Device is the platform-side view of one device instance.
type Device interface {
	// MemResource returns the register memory range, if the platform has one.
	MemResource() (Resource, bool)

	// IORemap maps a memory range into a register window.
	IORemap(res Resource) (regs.IO, error)

	// IOUnmap releases a window returned by IORemap.
	IOUnmap(io regs.IO)

	// IRQResource returns the interrupt line number, if the platform has one.
	IRQResource() (int, bool)

	// RequestIRQ installs a handler on an interrupt line.
	RequestIRQ(irq int, name string, handler IRQHandler) error

	// FreeIRQ removes the handler and waits for any running invocation to return.
	FreeIRQ(irq int)
}

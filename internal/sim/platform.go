package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/virtfoo-core/internal/platform"
	"github.com/nerrad567/virtfoo-core/internal/regs"
)

// Errors returned by the simulated platform.
var (
	// ErrBusy is returned when an interrupt line already has a handler.
	ErrBusy = errors.New("sim: interrupt line busy")

	// ErrNoSuchIRQ is returned for an interrupt number the platform does not own.
	ErrNoSuchIRQ = errors.New("sim: no such interrupt line")

	// ErrNoSuchResource is returned when mapping a range the platform does not own.
	ErrNoSuchResource = errors.New("sim: no such memory resource")
)

// DefaultBase is the physical address published for the register window.
const DefaultBase uint64 = 0x0a00_0000

// Config configures a simulated platform device.
type Config struct {
	Hardware HardwareConfig

	// IRQ is the interrupt number to publish. Negative publishes none.
	IRQ int

	// NoMemory withholds the memory resource.
	NoMemory bool

	// MapErr, if set, makes IORemap fail with this error.
	MapErr error

	// IRQErr, if set, makes RequestIRQ fail with this error.
	IRQErr error
}

// Platform is a simulated platform device. It implements platform.Device.
type Platform struct {
	cfg  Config
	hw   *Hardware
	line *Line

	mu     sync.Mutex
	mapped bool
}

// NewPlatform builds a platform device around fresh simulated hardware.
func NewPlatform(cfg Config) *Platform {
	line := NewLine()
	return &Platform{
		cfg:  cfg,
		line: line,
		hw:   NewHardware(cfg.Hardware, line),
	}
}

// Hardware returns the simulated device.
func (p *Platform) Hardware() *Hardware {
	return p.hw
}

// Line returns the simulated interrupt line.
func (p *Platform) Line() *Line {
	return p.line
}

// MemResource implements platform.Device.
func (p *Platform) MemResource() (platform.Resource, bool) {
	if p.cfg.NoMemory {
		return platform.Resource{}, false
	}
	return platform.Resource{Start: DefaultBase, Size: p.hw.Len()}, true
}

// IORemap implements platform.Device.
func (p *Platform) IORemap(res platform.Resource) (regs.IO, error) {
	if p.cfg.MapErr != nil {
		return nil, p.cfg.MapErr
	}
	if p.cfg.NoMemory || res.Start != DefaultBase || res.Size > p.hw.Len() {
		return nil, fmt.Errorf("%w: %#x+%d", ErrNoSuchResource, res.Start, res.Size)
	}
	p.mu.Lock()
	p.mapped = true
	p.mu.Unlock()
	return p.hw, nil
}

// IOUnmap implements platform.Device.
func (p *Platform) IOUnmap(_ regs.IO) {
	p.mu.Lock()
	p.mapped = false
	p.mu.Unlock()
}

// Mapped reports whether the register window is currently mapped.
func (p *Platform) Mapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mapped
}

// IRQResource implements platform.Device.
func (p *Platform) IRQResource() (int, bool) {
	if p.cfg.IRQ < 0 {
		return 0, false
	}
	return p.cfg.IRQ, true
}

// RequestIRQ implements platform.Device.
func (p *Platform) RequestIRQ(irq int, name string, handler platform.IRQHandler) error {
	if p.cfg.IRQErr != nil {
		return p.cfg.IRQErr
	}
	if p.cfg.IRQ < 0 || irq != p.cfg.IRQ {
		return fmt.Errorf("%w: %d", ErrNoSuchIRQ, irq)
	}
	if handler == nil {
		return fmt.Errorf("sim: nil handler for irq %d", irq)
	}
	if !p.line.install(name, handler) {
		return fmt.Errorf("%w: %d", ErrBusy, irq)
	}
	return nil
}

// FreeIRQ implements platform.Device.
func (p *Platform) FreeIRQ(irq int) {
	if irq != p.cfg.IRQ {
		return
	}
	p.line.remove()
}

// Close shuts the simulated hardware down.
func (p *Platform) Close() {
	p.hw.Close()
}

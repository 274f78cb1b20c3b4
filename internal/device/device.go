package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-catrate"

	"github.com/nerrad567/virtfoo-core/internal/platform"
	"github.com/nerrad567/virtfoo-core/internal/regs"
)

// DefaultIRQName is the name the interrupt handler is registered under.
const DefaultIRQName = "vf_irq"

// Options configures Attach.
type Options struct {
	// ID identifies this device instance in logs, journals and topics.
	// Default: a random UUID.
	ID string

	// IRQName is the handler name passed to the platform. Default: DefaultIRQName.
	IRQName string

	// MonitorInterval is the threshold monitor's sampling period.
	// Default: DefaultMonitorInterval.
	MonitorInterval time.Duration

	// QueueLimit bounds the work queue. Zero means unbounded.
	QueueLimit int

	// ObserverBuffer is the observer fan-out buffer. Default: DefaultObserverBuffer.
	ObserverBuffer int

	// Observers are registered before any interrupt can fire.
	Observers []Observer

	// Logger receives device logs. Nil disables logging.
	Logger Logger

	// Limiter rate-limits hot-path logs. Nil uses a default limiter.
	Limiter *catrate.Limiter
}

// Stats is a snapshot of device activity.
type Stats struct {
	ID         string        `json:"id"`
	Count      int           `json:"count"`
	Threshold  int           `json:"threshold"`
	Attached   bool          `json:"attached"`
	IRQ        int           `json:"irq"`
	HasIRQ     bool          `json:"has_irq"`
	AttachedAt time.Time     `json:"attached_at"`
	Dispatch   DispatchStats `json:"dispatch"`
	Queue      QueueStats    `json:"queue"`
	Monitor    MonitorStats  `json:"monitor"`
	Observers  ObserverStats `json:"observers"`
}

// Device is one attached virt-foo instance.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Device struct {
	id     string
	plat   platform.Device
	io     regs.IO
	regs   *regs.Registers
	logger Logger

	counter    *Counter
	queue      *WorkQueue
	dispatcher *Dispatcher
	monitor    *Monitor
	notifier   *notifier

	irq        int
	hasIRQ     bool
	attachedAt time.Time
	cancel     context.CancelFunc

	// mu guards the register window against unmapping.
	mu       sync.RWMutex
	detached bool
	lastID   uint32
	lastCmd  uint32

	detachOnce sync.Once
}

// Attach brings a device up on a platform.
//
// Steps, in order: locate and map the register window, start the work queue
// and observer fan-out, install the interrupt handler if the platform has an
// interrupt line, enable the hardware with the counter at zero, and start the
// threshold monitor.
//
// Parameters:
//   - ctx: Parent context for the monitor; cancelling it stops sampling
//   - plat: Platform device publishing the resources
//   - opts: Attach options (zero value is valid)
//
// Returns:
//   - *Device: Running device
//   - error: *AttachError on failure, with nothing left running
func Attach(ctx context.Context, plat platform.Device, opts Options) (*Device, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.IRQName == "" {
		opts.IRQName = DefaultIRQName
	}
	logger := orNoop(opts.Logger)

	res, ok := plat.MemResource()
	if !ok {
		return nil, &AttachError{Stage: StageMemResource, Err: ErrNoMemResource}
	}

	io, err := plat.IORemap(res)
	if err != nil {
		return nil, &AttachError{Stage: StageMap, Err: fmt.Errorf("%w: %w", ErrMapFailed, err)}
	}

	r, err := regs.New(io)
	if err != nil {
		plat.IOUnmap(io)
		return nil, &AttachError{Stage: StageRegisters, Err: fmt.Errorf("%w: %w", ErrMapFailed, err)}
	}

	d := &Device{
		id:       opts.ID,
		plat:     plat,
		io:       io,
		regs:     r,
		logger:   logger,
		counter:  NewCounter(),
		notifier: newNotifier(opts.ObserverBuffer, logger),
	}
	for _, o := range opts.Observers {
		d.notifier.add(o)
	}

	d.queue = NewWorkQueue(d.counter, QueueConfig{
		Limit:    opts.QueueLimit,
		Logger:   logger,
		Limiter:  opts.Limiter,
		OnCommit: d.notifier.publish,
	})
	d.dispatcher = NewDispatcher(r, d.queue, logger, opts.Limiter)
	d.monitor = NewMonitor(d.counter, d.queue, opts.MonitorInterval, logger)
	d.queue.Start()

	if irq, ok := plat.IRQResource(); ok {
		if err := plat.RequestIRQ(irq, opts.IRQName, d.dispatcher.OnNotify); err != nil {
			d.queue.Stop()
			d.notifier.close()
			plat.IOUnmap(io)
			return nil, &AttachError{Stage: StageIRQ, Err: fmt.Errorf("%w: irq %d: %w", ErrIRQRequest, irq, err)}
		}
		d.irq = irq
		d.hasIRQ = true
	} else {
		logger.Warn("no interrupt resource, running without notifications", "device_id", d.id)
	}

	d.regs.Write(regs.Init, regs.HWEnable)
	d.attachedAt = time.Now().UTC()

	monitorCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.monitor.Start(monitorCtx)

	logger.Info("device attached",
		"device_id", d.id,
		"mem_start", fmt.Sprintf("0x%x", res.Start),
		"mem_size", res.Size,
		"irq", d.irq,
		"has_irq", d.hasIRQ,
	)
	return d, nil
}

// Detach shuts the device down. Safe to call multiple times.
//
// Monitor reset submissions are blocked before anything else, then the
// interrupt handler is removed so no new increments are produced. The monitor
// is awaited, the work queue drained, the observer fan-out flushed, and the
// register window unmapped.
func (d *Device) Detach() {
	d.detachOnce.Do(func() {
		d.monitor.beginStop()
		if d.hasIRQ {
			d.plat.FreeIRQ(d.irq)
		}
		d.monitor.Stop()
		d.cancel()
		d.queue.Stop()
		d.notifier.close()

		d.mu.Lock()
		d.lastID = d.regs.Read(regs.ID)
		d.lastCmd = d.regs.Read(regs.Cmd)
		d.detached = true
		d.plat.IOUnmap(d.io)
		d.mu.Unlock()

		d.logger.Info("device detached", "device_id", d.id, "count", d.counter.Read())
	})
}

// ID returns the device instance identifier.
func (d *Device) ID() string {
	return d.id
}

// Count returns the current counter value.
func (d *Device) Count() int {
	return d.counter.Read()
}

// AddObserver registers an observer for mutations committed from now on.
func (d *Device) AddObserver(o Observer) {
	d.notifier.add(o)
}

// Drain waits until every job queued before the call has executed.
//
// Returns:
//   - error: ErrDetached after Detach, or ctx.Err() if ctx ends first
func (d *Device) Drain(ctx context.Context) error {
	if err := d.queue.Drain(ctx); err != nil {
		if errors.Is(err, ErrQueueStopped) {
			return ErrDetached
		}
		return err
	}
	return nil
}

// Stats returns a snapshot of device activity.
func (d *Device) Stats() Stats {
	d.mu.RLock()
	attached := !d.detached
	d.mu.RUnlock()

	return Stats{
		ID:         d.id,
		Count:      d.counter.Read(),
		Threshold:  Threshold,
		Attached:   attached,
		IRQ:        d.irq,
		HasIRQ:     d.hasIRQ,
		AttachedAt: d.attachedAt,
		Dispatch:   d.dispatcher.Stats(),
		Queue:      d.queue.Stats(),
		Monitor:    d.monitor.Stats(),
		Observers:  d.notifier.stats(),
	}
}

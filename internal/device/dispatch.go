package device

import (
	"sync/atomic"

	"github.com/joeycumines/go-catrate"

	"github.com/nerrad567/virtfoo-core/internal/platform"
	"github.com/nerrad567/virtfoo-core/internal/regs"
)

// DispatchStats counts interrupts seen by the dispatcher.
type DispatchStats struct {
	Notifications uint64 `json:"notifications"`
	HWEnabled     uint64 `json:"hw_enabled"`
	BufDequeued   uint64 `json:"buf_dequeued"`
	Unknown       uint64 `json:"unknown"`
	Rejected      uint64 `json:"rejected"`
}

// Dispatcher handles interrupt notifications.
//
// OnNotify runs in interrupt context: it never blocks, never takes the
// counter lock, and never waits on job completion.
type Dispatcher struct {
	regs    *regs.Registers
	queue   *WorkQueue
	logger  Logger
	limiter *catrate.Limiter

	notifications atomic.Uint64
	hwEnabled     atomic.Uint64
	bufDequeued   atomic.Uint64
	unknown       atomic.Uint64
	rejected      atomic.Uint64
}

// NewDispatcher creates a dispatcher reading status from r and submitting to q.
// A nil limiter uses the default log rate.
func NewDispatcher(r *regs.Registers, q *WorkQueue, logger Logger, limiter *catrate.Limiter) *Dispatcher {
	if limiter == nil {
		limiter = newLogLimiter()
	}
	return &Dispatcher{
		regs:    r,
		queue:   q,
		logger:  orNoop(logger),
		limiter: limiter,
	}
}

// OnNotify is the interrupt handler.
//
// It reads INT_STATUS once, records an observation for each recognised flag,
// and submits exactly one Increment job no matter how many flags are set.
// Unknown bits are counted and otherwise ignored.
//
// Returns:
//   - platform.IRQReturn: always IRQHandled
func (d *Dispatcher) OnNotify() platform.IRQReturn {
	d.notifications.Add(1)

	status := d.regs.Read(regs.IntStatus)
	if status&regs.IRQEnabled != 0 {
		d.hwEnabled.Add(1)
		d.observe("hw_enabled", "hardware enabled", status)
	}
	if status&regs.IRQBufDeq != 0 {
		d.bufDequeued.Add(1)
		d.observe("buf_dequeued", "command buffer dequeued", status)
	}
	if status&^regs.IRQKnownMask != 0 {
		d.unknown.Add(1)
	}

	if !d.queue.Submit(Job{Kind: JobIncrement, Source: SourceIRQ}) {
		d.rejected.Add(1)
	}
	return platform.IRQHandled
}

// observe logs a flag observation, at most at the limiter's rate per flag.
func (d *Dispatcher) observe(category, msg string, status uint32) {
	if _, ok := d.limiter.Allow(category); !ok {
		return
	}
	d.logger.Info(msg, "int_status", status)
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Notifications: d.notifications.Load(),
		HWEnabled:     d.hwEnabled.Load(),
		BufDequeued:   d.bufDequeued.Load(),
		Unknown:       d.unknown.Load(),
		Rejected:      d.rejected.Load(),
	}
}

package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Threshold is the counter value at which the monitor schedules a reset.
const Threshold = 5

// DefaultMonitorInterval is how often the monitor samples the counter.
const DefaultMonitorInterval = time.Second

// MonitorStats counts monitor activity.
type MonitorStats struct {
	Cycles          uint64 `json:"cycles"`
	ResetsScheduled uint64 `json:"resets_scheduled"`
}

// Monitor periodically samples the counter and schedules a Reset once it
// reaches Threshold.
//
// Stop is observed immediately, and no Reset is submitted once Stop has begun.
type Monitor struct {
	counter  *Counter
	queue    *WorkQueue
	interval time.Duration
	logger   Logger

	mu       sync.Mutex
	stopping bool

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	cycles atomic.Uint64
	resets atomic.Uint64
}

// NewMonitor creates a monitor. A non-positive interval uses DefaultMonitorInterval.
func NewMonitor(counter *Counter, queue *WorkQueue, interval time.Duration, logger Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		counter:  counter,
		queue:    queue,
		interval: interval,
		logger:   orNoop(logger),
		done:     make(chan struct{}),
	}
}

// Start begins the sampling loop in a background goroutine. The loop ends
// when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Debug("threshold monitor started", "interval", m.interval.String(), "threshold", Threshold)
}

// Stop signals the loop to exit and waits for it. Safe to call multiple times.
func (m *Monitor) Stop() {
	m.beginStop()
	m.wg.Wait()
}

// beginStop blocks further reset submissions and signals the loop without
// waiting for it.
func (m *Monitor) beginStop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopping = true
		m.mu.Unlock()
		close(m.done)
	})
}

// Stats returns a snapshot of monitor counters.
func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		Cycles:          m.cycles.Load(),
		ResetsScheduled: m.resets.Load(),
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check samples the counter once and schedules a reset if needed.
func (m *Monitor) check(ctx context.Context) {
	m.cycles.Add(1)

	value := m.counter.Read()
	if value < Threshold {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping || ctx.Err() != nil {
		return
	}
	if m.queue.Submit(Job{Kind: JobReset, Source: SourceMonitor}) {
		m.resets.Add(1)
		m.logger.Info("threshold reached, reset scheduled", "value", value, "threshold", Threshold)
	}
}

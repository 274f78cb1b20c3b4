package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

// QueueConfig configures a WorkQueue.
type QueueConfig struct {
	// Limit bounds the number of pending jobs. Zero means unbounded.
	// When the bound is reached new jobs are dropped.
	Limit int

	// Logger receives per-job log lines. Nil disables logging.
	Logger Logger

	// Limiter rate-limits overflow warnings. Nil uses a default of
	// one warning per second.
	Limiter *catrate.Limiter

	// OnCommit is called on the worker goroutine after each mutation,
	// with the counter lock released.
	OnCommit func(Mutation)
}

// QueueStats is a snapshot of work queue activity.
type QueueStats struct {
	Pending   int    `json:"pending"`
	Submitted uint64 `json:"submitted"`
	Executed  uint64 `json:"executed"`
	Dropped   uint64 `json:"dropped"`
}

// WorkQueue runs counter jobs one at a time on a single worker goroutine.
//
// Submit never blocks. Jobs execute in submission order.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type WorkQueue struct {
	counter  *Counter
	logger   Logger
	limiter  *catrate.Limiter
	limit    int
	onCommit func(Mutation)

	mu      sync.Mutex
	pending []Job
	started bool
	stopped bool

	wake chan struct{}
	done chan struct{}

	submitted atomic.Uint64
	executed  atomic.Uint64
	dropped   atomic.Uint64
}

// NewWorkQueue creates a work queue bound to a counter. Call Start to run it.
func NewWorkQueue(counter *Counter, cfg QueueConfig) *WorkQueue {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = newLogLimiter()
	}
	limit := cfg.Limit
	if limit < 0 {
		limit = 0
	}
	return &WorkQueue{
		counter:  counter,
		logger:   orNoop(cfg.Logger),
		limiter:  limiter,
		limit:    limit,
		onCommit: cfg.OnCommit,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// newLogLimiter allows one log line per category per second, and at most
// ten per minute.
func newLogLimiter() *catrate.Limiter {
	return catrate.NewLimiter(map[time.Duration]int{
		time.Second: 1,
		time.Minute: 10,
	})
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (q *WorkQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	go q.run()
}

// Submit queues a job for execution.
//
// Submit never blocks and never takes the counter lock, so it is safe to
// call from interrupt context.
//
// Returns:
//   - bool: false if the queue is stopped, full, or the job kind is unknown
func (q *WorkQueue) Submit(job Job) bool {
	if job.barrier == nil && job.Kind != JobIncrement && job.Kind != JobReset {
		return false
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	if job.barrier == nil && q.limit > 0 && len(q.pending) >= q.limit {
		q.mu.Unlock()
		q.dropped.Add(1)
		if _, ok := q.limiter.Allow("queue_overflow"); ok {
			q.logger.Warn("work queue full, dropping job",
				"kind", job.Kind.String(),
				"source", string(job.Source),
				"limit", q.limit,
				"dropped_total", q.dropped.Load(),
			)
		}
		return false
	}
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	if job.barrier == nil {
		q.submitted.Add(1)
	}
	q.signal()
	return true
}

// Drain waits until every job submitted before the call has executed.
//
// Parameters:
//   - ctx: Bounds the wait
//
// Returns:
//   - error: ErrQueueStopped if the queue no longer accepts jobs, or ctx.Err()
func (q *WorkQueue) Drain(ctx context.Context) error {
	barrier := make(chan struct{})
	if !q.Submit(Job{barrier: barrier}) {
		return ErrQueueStopped
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new jobs, runs every job already queued, and waits for the
// worker to exit. Safe to call multiple times.
func (q *WorkQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	if !started {
		q.run()
		return
	}
	q.signal()
	<-q.done
}

// Stats returns a snapshot of queue counters.
func (q *WorkQueue) Stats() QueueStats {
	q.mu.Lock()
	pending := len(q.pending)
	q.mu.Unlock()

	return QueueStats{
		Pending:   pending,
		Submitted: q.submitted.Load(),
		Executed:  q.executed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *WorkQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run is the worker loop. It exits once the queue is stopped and empty.
func (q *WorkQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		stopped := q.stopped
		q.mu.Unlock()

		for _, job := range batch {
			q.execute(job)
		}
		if len(batch) > 0 {
			continue
		}
		if stopped {
			return
		}
		<-q.wake
	}
}

func (q *WorkQueue) execute(job Job) {
	if job.barrier != nil {
		close(job.barrier)
		return
	}

	m := q.counter.apply(job.Kind, job.Source, func(m Mutation) {
		if m.Kind == JobReset {
			q.logger.Info("counter reset", "value", m.Value, "source", string(m.Source), "seq", m.Seq)
			return
		}
		q.logger.Debug("counter incremented", "value", m.Value, "source", string(m.Source), "seq", m.Seq)
	})
	q.executed.Add(1)

	if q.onCommit != nil {
		q.onCommit(m)
	}
}

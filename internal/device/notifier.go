package device

import (
	"sync"
	"sync/atomic"
)

// DefaultObserverBuffer is the number of mutations that may wait for
// delivery before new ones are dropped.
const DefaultObserverBuffer = 256

// Observer receives committed counter mutations.
//
// ObserveMutation runs on the fan-out goroutine, never under the counter
// lock. Slow observers delay other observers, not the work queue.
type Observer interface {
	ObserveMutation(m Mutation)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(m Mutation)

// ObserveMutation calls f(m).
func (f ObserverFunc) ObserveMutation(m Mutation) {
	f(m)
}

// ObserverStats counts fan-out activity.
type ObserverStats struct {
	Observers int    `json:"observers"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Panics    uint64 `json:"panics"`
}

// notifier delivers mutations to observers from a single goroutine.
type notifier struct {
	logger Logger
	ch     chan Mutation
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	obsMu     sync.RWMutex
	observers []Observer

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// newNotifier creates and starts a fan-out with the given buffer size.
func newNotifier(size int, logger Logger) *notifier {
	if size <= 0 {
		size = DefaultObserverBuffer
	}
	n := &notifier{
		logger: orNoop(logger),
		ch:     make(chan Mutation, size),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) add(o Observer) {
	if o == nil {
		return
	}
	n.obsMu.Lock()
	n.observers = append(n.observers, o)
	n.obsMu.Unlock()
}

// publish queues a mutation without blocking. Mutations published after
// close, or while the buffer is full, are dropped.
func (n *notifier) publish(m Mutation) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.dropped.Add(1)
		return
	}
	select {
	case n.ch <- m:
	default:
		n.dropped.Add(1)
	}
}

// close stops accepting mutations, delivers what is buffered, and waits.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	close(n.ch)
	n.mu.Unlock()
	<-n.done
}

func (n *notifier) run() {
	defer close(n.done)
	for m := range n.ch {
		n.obsMu.RLock()
		observers := n.observers
		n.obsMu.RUnlock()

		for _, o := range observers {
			n.deliver(o, m)
		}
	}
}

// deliver calls one observer, recovering from panics so one faulty
// observer cannot stop the fan-out.
func (n *notifier) deliver(o Observer, m Mutation) {
	defer func() {
		if r := recover(); r != nil {
			n.panics.Add(1)
			n.logger.Error("observer panicked", "panic", r, "seq", m.Seq)
		}
	}()
	o.ObserveMutation(m)
	n.delivered.Add(1)
}

func (n *notifier) stats() ObserverStats {
	n.obsMu.RLock()
	count := len(n.observers)
	n.obsMu.RUnlock()
	return ObserverStats{
		Observers: count,
		Delivered: n.delivered.Load(),
		Dropped:   n.dropped.Load(),
		Panics:    n.panics.Load(),
	}
}

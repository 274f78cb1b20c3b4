package device

import (
	"sync"
	"time"
)

// Counter is the shared interrupt counter.
//
// The value is only reachable through Increment, Reset and Read, all of
// which are mutually exclusive. The value never goes negative.
type Counter struct {
	mu    sync.Mutex
	value int
	seq   uint64
}

// NewCounter returns a counter at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int {
	return c.apply(JobIncrement, "", nil).Value
}

// Reset sets the counter to zero and returns the new value.
func (c *Counter) Reset() int {
	return c.apply(JobReset, "", nil).Value
}

// Read returns the current value.
func (c *Counter) Read() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// apply performs one mutation under the lock. The within callback, if any,
// runs before the lock is released.
func (c *Counter) apply(kind JobKind, source Source, within func(Mutation)) Mutation {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case JobIncrement:
		c.value++
	case JobReset:
		c.value = 0
	}
	c.seq++

	m := Mutation{
		Seq:    c.seq,
		Kind:   kind,
		Source: source,
		Value:  c.value,
		At:     time.Now().UTC(),
	}
	if within != nil {
		within(m)
	}
	return m
}

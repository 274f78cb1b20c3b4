package device

import (
	"fmt"
	"time"
)

// JobKind identifies the mutation a job applies to the counter.
type JobKind int

const (
	// JobIncrement adds one to the counter.
	JobIncrement JobKind = iota + 1

	// JobReset sets the counter to zero.
	JobReset
)

// String returns the lower-case name of the kind.
func (k JobKind) String() string {
	switch k {
	case JobIncrement:
		return "increment"
	case JobReset:
		return "reset"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k JobKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *JobKind) UnmarshalText(text []byte) error {
	parsed, err := ParseJobKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseJobKind converts a kind name back into a JobKind.
func ParseJobKind(s string) (JobKind, error) {
	switch s {
	case "increment":
		return JobIncrement, nil
	case "reset":
		return JobReset, nil
	default:
		return 0, fmt.Errorf("device: unknown job kind %q", s)
	}
}

// Source identifies which context produced a job.
type Source string

// Job sources.
const (
	// SourceIRQ marks jobs submitted by the notification dispatcher.
	SourceIRQ Source = "irq"

	// SourceMonitor marks jobs submitted by the threshold monitor.
	SourceMonitor Source = "monitor"
)

// Job is a unit of deferred work.
//
// Jobs are fire-and-forget: they are never retried and never persisted.
type Job struct {
	Kind   JobKind
	Source Source

	// barrier is closed by the worker instead of mutating the counter.
	barrier chan struct{}
}

// Mutation describes one committed change to the counter.
type Mutation struct {
	// Seq increases by one with every mutation over the device's lifetime.
	Seq uint64 `json:"seq"`

	// Kind is the mutation applied.
	Kind JobKind `json:"kind"`

	// Source is the context that requested it.
	Source Source `json:"source"`

	// Value is the counter value after the mutation.
	Value int `json:"value"`

	// At is when the mutation was committed (UTC).
	At time.Time `json:"at"`
}

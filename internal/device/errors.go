package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrInvalidArgument) {
//	    // reject the command
//	}
var (
	// ErrInvalidArgument is returned when command input does not parse as an unsigned 32-bit integer.
	ErrInvalidArgument = errors.New("device: invalid argument")

	// ErrNoMemResource is returned when the platform publishes no register memory.
	ErrNoMemResource = errors.New("device: no memory resource")

	// ErrMapFailed is returned when the register window cannot be mapped.
	ErrMapFailed = errors.New("device: mapping register window failed")

	// ErrIRQRequest is returned when the interrupt handler cannot be installed.
	ErrIRQRequest = errors.New("device: requesting interrupt failed")

	// ErrDetached is returned by operations on a device that has been detached.
	ErrDetached = errors.New("device: detached")

	// ErrQueueStopped is returned when waiting on a work queue that no longer accepts jobs.
	ErrQueueStopped = errors.New("device: work queue stopped")
)

// Attach stages, reported in AttachError.
const (
	StageMemResource = "mem_resource"
	StageMap         = "map"
	StageRegisters   = "registers"
	StageIRQ         = "irq"
)

// AttachError reports why a device could not be attached.
//
// When Attach returns an AttachError nothing is left running and every
// resource acquired before the failure has been released.
type AttachError struct {
	// Stage names the attach step that failed.
	Stage string

	// Err is the underlying cause. It wraps one of the package sentinels.
	Err error
}

// Error implements error.
func (e *AttachError) Error() string {
	return fmt.Sprintf("device: attach failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AttachError) Unwrap() error {
	return e.Err
}

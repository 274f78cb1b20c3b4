// Package sim models the virt-foo hardware.
//
// It provides a register window with the device's side effects, an
// interrupt line that delivers each raise on its own goroutine, and a
// platform device that publishes both to the driver. The daemon runs
// against it in place of real silicon and the driver's tests use it to
// drive interrupts deterministically.
//
// Hardware behaviour:
//
//   - ID reads return the configured chip identity.
//   - Writing HWEnable to INIT latches IRQEnabled and raises the line.
//   - Writing CMD stores the value; after DequeueDelay the hardware latches
//     IRQBufDeq and raises the line. CMD keeps the last written value.
//   - INT_STATUS is read-to-clear.
//   - Reads from INIT return zero (write-only register).
package sim

// Package device implements the virt-foo device control core.
//
// A virt-foo device raises an interrupt for every hardware event. The core
// turns those interrupts into a shared counter, lets a control plane read the
// counter and drive the command register, and resets the counter on its own
// whenever it reaches Threshold.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                              Device                                   │
//	│                                                                       │
//	│  interrupt ──▶ Dispatcher ──Submit(Increment)──▶ WorkQueue ──▶ Counter │
//	│                (dispatch.go)                    (workqueue.go)        │
//	│                                                      ▲          │     │
//	│                 Monitor ───Submit(Reset)─────────────┘          │     │
//	│                (monitor.go)  ◀────────── Read ──────────────────┘     │
//	│                                                                       │
//	│  Control plane (control.go): ShowID / ShowCmd / ShowCount / StoreCmd  │
//	│  Observers (notifier.go):    journal, MQTT, InfluxDB, WebSocket       │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Concurrency
//
// Three execution contexts touch the counter:
//
//   - The dispatcher runs on the interrupt line's goroutine. It never blocks
//     and never takes the counter lock; it only reads INT_STATUS and queues an
//     Increment job.
//   - The work queue runs every job on a single worker goroutine. Each job
//     takes the counter lock, mutates, logs, and releases.
//   - The monitor samples the counter once per interval and queues a Reset
//     job when the sample is at or above Threshold.
//
// Only work queue jobs mutate the counter. Readers take the same lock, so no
// caller ever sees a partially applied mutation.
//
// # Lifecycle
//
//	dev, err := device.Attach(ctx, plat, device.Options{Logger: log})
//	if err != nil {
//	    return err // *device.AttachError, nothing left running
//	}
//	defer dev.Detach()
//
//	fmt.Print(dev.ShowCount()) // "Interrupt count: 0\n"
//
// Detach releases the interrupt first so no new increments are produced,
// then stops the monitor, drains the work queue, closes the observer
// fan-out and unmaps the register window. It is safe to call more than once.
//
// # Observers
//
// Every committed mutation is described by a Mutation and delivered, after
// the counter lock is released, to each registered Observer through a bounded
// asynchronous queue. A slow observer causes drops, never back-pressure on
// the worker.
package device

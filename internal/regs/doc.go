// Package regs provides access to the virt-foo register window.
//
// The device exposes four 32-bit registers in a memory-mapped I/O region:
//
//	offset  name        access  contents
//	0x0     ID          RO      chip identity
//	0x4     INIT        WO      bit 0: hardware enable
//	0x8     CMD         RW      command buffer
//	0xc     INT_STATUS  RO      bit 0: hardware enabled, bit 1: command buffer dequeued
//
// The package performs no validation of written values and has no error path:
// an unusable window is rejected once, when the device is attached.
//
// Usage:
//
//	r, err := regs.New(window)
//	if err != nil {
//	    return err
//	}
//	r.Write(regs.Init, regs.HWEnable)
//	status := r.Read(regs.IntStatus)
package regs

package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/regs"
	"github.com/nerrad567/virtfoo-core/internal/sim"
)

func TestDevice_OnSimulatedHardware(t *testing.T) {
	plat := sim.NewPlatform(sim.Config{
		IRQ:      5,
		Hardware: sim.HardwareConfig{ChipID: 0xf001, DequeueDelay: time.Millisecond},
	})
	defer plat.Close()

	d, err := Attach(context.Background(), plat, Options{MonitorInterval: time.Hour})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer d.Detach()

	// enabling the hardware raises one interrupt
	if !eventually(t, 2*time.Second, func() bool { return d.Count() == 1 }) {
		t.Fatalf("Count() after enable = %d, want 1", d.Count())
	}
	if got := d.ShowID(); got != "Chip ID: 0xf001\n" {
		t.Errorf("ShowID() = %q", got)
	}

	if _, err := d.StoreCmd("42\n"); err != nil {
		t.Fatalf("StoreCmd() error = %v", err)
	}
	if got := plat.Hardware().ReadUint32(uint32(regs.Cmd)); got != 42 {
		t.Errorf("CMD register = %d, want 42", got)
	}
	if !eventually(t, 2*time.Second, func() bool { return d.Count() == 2 }) {
		t.Fatalf("Count() after command dequeue = %d, want 2", d.Count())
	}

	st := d.Stats().Dispatch
	if st.HWEnabled != 1 || st.BufDequeued != 1 {
		t.Errorf("Dispatch stats = %+v, want one of each flag", st)
	}
}

func TestDevice_SimulatedStorm(t *testing.T) {
	plat := sim.NewPlatform(sim.Config{IRQ: 1, Hardware: sim.HardwareConfig{QuietInit: true}})
	defer plat.Close()

	d, err := Attach(context.Background(), plat, Options{MonitorInterval: time.Hour})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	const n = 100
	for i := 0; i < n; i++ {
		plat.Hardware().Trigger(regs.IRQBufDeq)
	}
	if !eventually(t, 2*time.Second, func() bool { return plat.Line().Stats().Handled == n }) {
		t.Fatalf("handled = %d, want %d", plat.Line().Stats().Handled, n)
	}
	drain(t, d)
	if got := d.Count(); got != n {
		t.Errorf("Count() = %d, want %d", got, n)
	}

	d.Detach()
	if plat.Line().Installed() {
		t.Error("handler still installed after Detach")
	}
	if plat.Mapped() {
		t.Error("window still mapped after Detach")
	}
}

func TestAttach_SimulatedFailures(t *testing.T) {
	tests := []struct {
		name    string
		cfg     sim.Config
		wantErr error
	}{
		{name: "no memory", cfg: sim.Config{NoMemory: true}, wantErr: ErrNoMemResource},
		{name: "irq busy", cfg: sim.Config{IRQ: 2, IRQErr: sim.ErrBusy}, wantErr: ErrIRQRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plat := sim.NewPlatform(tt.cfg)
			defer plat.Close()

			_, err := Attach(context.Background(), plat, Options{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Attach() error = %v, want %v", err, tt.wantErr)
			}
			if plat.Mapped() {
				t.Error("window left mapped after failed attach")
			}
			if plat.Hardware().Enabled() {
				t.Error("hardware enabled after failed attach")
			}
		})
	}
}

// With QuietInit the enable write raises nothing, so the count starts at zero
// and five command-dequeue interrupts count 1..5 before the monitor resets.
func TestDevice_SimulatedCountThenReset(t *testing.T) {
	plat := sim.NewPlatform(sim.Config{IRQ: 3, Hardware: sim.HardwareConfig{QuietInit: true}})
	defer plat.Close()

	d, err := Attach(context.Background(), plat, Options{MonitorInterval: time.Hour})
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer d.Detach()

	if got := d.Count(); got != 0 {
		t.Fatalf("Count() after attach = %d, want 0", got)
	}
	for want := 1; want <= Threshold; want++ {
		if !plat.Hardware().Trigger(regs.IRQBufDeq) {
			t.Fatal("Trigger() found no handler installed")
		}
		if !eventually(t, 2*time.Second, func() bool { return plat.Line().Stats().Handled == uint64(want) }) {
			t.Fatalf("handled = %d, want %d", plat.Line().Stats().Handled, want)
		}
		drain(t, d)
		if got := d.Count(); got != want {
			t.Fatalf("Count() after interrupt %d = %d", want, got)
		}
	}

	d.monitor.check(context.Background())
	drain(t, d)
	if got := d.Count(); got != 0 {
		t.Errorf("Count() after monitor cycle = %d, want 0", got)
	}
}

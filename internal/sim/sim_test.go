package sim

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/virtfoo-core/internal/platform"
	"github.com/nerrad567/virtfoo-core/internal/regs"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHardware_IDAndCmd(t *testing.T) {
	hw := NewHardware(HardwareConfig{ChipID: 0xabcd, QuietInit: true}, NewLine())
	defer hw.Close()

	if got := hw.ReadUint32(uint32(regs.ID)); got != 0xabcd {
		t.Errorf("ID = %#x, want 0xabcd", got)
	}
	hw.WriteUint32(uint32(regs.ID), 1)
	if got := hw.ReadUint32(uint32(regs.ID)); got != 0xabcd {
		t.Errorf("ID after write = %#x, want unchanged", got)
	}

	hw.WriteUint32(uint32(regs.Cmd), 42)
	if got := hw.ReadUint32(uint32(regs.Cmd)); got != 42 {
		t.Errorf("CMD = %d, want 42", got)
	}
	if got := hw.ReadUint32(uint32(regs.Init)); got != 0 {
		t.Errorf("INIT read = %d, want 0", got)
	}
}

func TestHardware_DefaultChipID(t *testing.T) {
	hw := NewHardware(HardwareConfig{}, NewLine())
	if got := hw.ReadUint32(uint32(regs.ID)); got != DefaultChipID {
		t.Errorf("ID = %#x, want %#x", got, DefaultChipID)
	}
	if hw.Len() != regs.Size {
		t.Errorf("Len() = %d, want %d", hw.Len(), regs.Size)
	}
}

func TestHardware_StatusReadToClear(t *testing.T) {
	hw := NewHardware(HardwareConfig{}, NewLine())

	hw.Trigger(regs.IRQBufDeq)
	if got := hw.ReadUint32(uint32(regs.IntStatus)); got != regs.IRQBufDeq {
		t.Fatalf("INT_STATUS = %#x, want %#x", got, regs.IRQBufDeq)
	}
	if got := hw.ReadUint32(uint32(regs.IntStatus)); got != 0 {
		t.Errorf("INT_STATUS second read = %#x, want 0", got)
	}
}

func TestHardware_EnableRaisesInterrupt(t *testing.T) {
	line := NewLine()
	hw := NewHardware(HardwareConfig{}, line)

	var seen atomic.Uint32
	line.install("test", func() platform.IRQReturn {
		seen.Store(hw.ReadUint32(uint32(regs.IntStatus)))
		return platform.IRQHandled
	})

	hw.WriteUint32(uint32(regs.Init), regs.HWEnable)
	waitFor(t, func() bool { return line.Stats().Handled == 1 })

	if seen.Load() != regs.IRQEnabled {
		t.Errorf("handler saw status %#x, want %#x", seen.Load(), regs.IRQEnabled)
	}
	if !hw.Enabled() {
		t.Error("Enabled() = false after HWEnable write")
	}
}

func TestHardware_QuietInit(t *testing.T) {
	line := NewLine()
	hw := NewHardware(HardwareConfig{QuietInit: true}, line)

	hw.WriteUint32(uint32(regs.Init), regs.HWEnable)
	if got := line.Stats().Raised; got != 0 {
		t.Errorf("Raised = %d, want 0", got)
	}
	if hw.PendingStatus() != 0 {
		t.Errorf("PendingStatus() = %#x, want 0", hw.PendingStatus())
	}
}

func TestHardware_CmdSignalsDequeue(t *testing.T) {
	line := NewLine()
	hw := NewHardware(HardwareConfig{QuietInit: true, DequeueDelay: 5 * time.Millisecond}, line)

	var handled atomic.Int32
	line.install("test", func() platform.IRQReturn {
		if hw.ReadUint32(uint32(regs.IntStatus))&regs.IRQBufDeq != 0 {
			handled.Add(1)
		}
		return platform.IRQHandled
	})

	hw.WriteUint32(uint32(regs.Cmd), 7)
	waitFor(t, func() bool { return handled.Load() == 1 })
	hw.Close()
}

func TestHardware_CloseStopsInterrupts(t *testing.T) {
	line := NewLine()
	hw := NewHardware(HardwareConfig{}, line)
	hw.Close()

	if hw.Trigger(regs.IRQEnabled) {
		t.Error("Trigger() after Close = true, want false")
	}
	hw.WriteUint32(uint32(regs.Cmd), 1)
	if got := line.Stats().Raised; got != 0 {
		t.Errorf("Raised = %d, want 0", got)
	}
}

func TestLine_SpuriousWithoutHandler(t *testing.T) {
	line := NewLine()
	if line.Raise() {
		t.Error("Raise() without handler = true, want false")
	}
	st := line.Stats()
	if st.Raised != 1 || st.Spurious != 1 {
		t.Errorf("Stats() = %+v, want Raised=1 Spurious=1", st)
	}
}

func TestLine_RemoveWaitsForHandler(t *testing.T) {
	line := NewLine()
	release := make(chan struct{})
	var finished atomic.Bool
	line.install("test", func() platform.IRQReturn {
		<-release
		finished.Store(true)
		return platform.IRQHandled
	})

	line.Raise()
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	line.remove()

	if !finished.Load() {
		t.Error("remove() returned before handler finished")
	}
	if line.Installed() {
		t.Error("Installed() = true after remove")
	}
}

func TestPlatform_Resources(t *testing.T) {
	p := NewPlatform(Config{IRQ: 5})
	defer p.Close()

	res, ok := p.MemResource()
	if !ok {
		t.Fatal("MemResource() ok = false")
	}
	io, err := p.IORemap(res)
	if err != nil {
		t.Fatalf("IORemap() error = %v", err)
	}
	if !p.Mapped() {
		t.Error("Mapped() = false after IORemap")
	}
	p.IOUnmap(io)
	if p.Mapped() {
		t.Error("Mapped() = true after IOUnmap")
	}

	irq, ok := p.IRQResource()
	if !ok || irq != 5 {
		t.Errorf("IRQResource() = %d, %v; want 5, true", irq, ok)
	}
}

func TestPlatform_RequestIRQ(t *testing.T) {
	handler := func() platform.IRQReturn { return platform.IRQHandled }

	tests := []struct {
		name    string
		cfg     Config
		irq     int
		wantErr error
	}{
		{name: "ok", cfg: Config{IRQ: 3}, irq: 3},
		{name: "wrong line", cfg: Config{IRQ: 3}, irq: 4, wantErr: ErrNoSuchIRQ},
		{name: "no irq published", cfg: Config{IRQ: -1}, irq: 0, wantErr: ErrNoSuchIRQ},
		{name: "injected", cfg: Config{IRQ: 3, IRQErr: errInjected}, irq: 3, wantErr: errInjected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlatform(tt.cfg)
			err := p.RequestIRQ(tt.irq, "virt-foo", handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RequestIRQ() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

var errInjected = errors.New("injected")

func TestPlatform_RequestIRQBusy(t *testing.T) {
	p := NewPlatform(Config{IRQ: 1})
	handler := func() platform.IRQReturn { return platform.IRQHandled }

	if err := p.RequestIRQ(1, "a", handler); err != nil {
		t.Fatalf("first RequestIRQ() error = %v", err)
	}
	if err := p.RequestIRQ(1, "b", handler); !errors.Is(err, ErrBusy) {
		t.Errorf("second RequestIRQ() error = %v, want ErrBusy", err)
	}
	p.FreeIRQ(1)
	if err := p.RequestIRQ(1, "c", handler); err != nil {
		t.Errorf("RequestIRQ() after FreeIRQ error = %v", err)
	}
}

func TestPlatform_FailureInjection(t *testing.T) {
	p := NewPlatform(Config{NoMemory: true, IRQ: -1})
	if _, ok := p.MemResource(); ok {
		t.Error("MemResource() ok = true with NoMemory")
	}
	if _, ok := p.IRQResource(); ok {
		t.Error("IRQResource() ok = true with IRQ -1")
	}

	p = NewPlatform(Config{MapErr: errInjected})
	res, _ := p.MemResource()
	if _, err := p.IORemap(res); !errors.Is(err, errInjected) {
		t.Errorf("IORemap() error = %v, want injected", err)
	}
}

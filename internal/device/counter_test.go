package device

import (
	"sync"
	"testing"
)

func TestCounter_IncrementAndReset(t *testing.T) {
	c := NewCounter()

	if got := c.Read(); got != 0 {
		t.Fatalf("Read() on new counter = %d, want 0", got)
	}
	for want := 1; want <= 3; want++ {
		if got := c.Increment(); got != want {
			t.Errorf("Increment() = %d, want %d", got, want)
		}
	}
	if got := c.Reset(); got != 0 {
		t.Errorf("Reset() = %d, want 0", got)
	}
	if got := c.Read(); got != 0 {
		t.Errorf("Read() after Reset = %d, want 0", got)
	}
}

func TestCounter_ResetIdempotent(t *testing.T) {
	c := NewCounter()
	c.Reset()
	c.Reset()
	if got := c.Read(); got != 0 {
		t.Errorf("Read() after double Reset = %d, want 0", got)
	}
}

func TestCounter_ConcurrentIncrements(t *testing.T) {
	const workers, each = 8, 250

	c := NewCounter()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				c.Increment()
			}
		}()
	}
	wg.Wait()

	if got := c.Read(); got != workers*each {
		t.Errorf("Read() = %d, want %d", got, workers*each)
	}
}

func TestCounter_ApplySequence(t *testing.T) {
	c := NewCounter()

	var inside []int
	m1 := c.apply(JobIncrement, SourceIRQ, func(m Mutation) { inside = append(inside, m.Value) })
	m2 := c.apply(JobReset, SourceMonitor, func(m Mutation) { inside = append(inside, m.Value) })

	if m1.Seq != 1 || m2.Seq != 2 {
		t.Errorf("Seq = %d, %d; want 1, 2", m1.Seq, m2.Seq)
	}
	if m1.Kind != JobIncrement || m1.Source != SourceIRQ || m1.Value != 1 {
		t.Errorf("first mutation = %+v", m1)
	}
	if m2.Kind != JobReset || m2.Source != SourceMonitor || m2.Value != 0 {
		t.Errorf("second mutation = %+v", m2)
	}
	if len(inside) != 2 || inside[0] != 1 || inside[1] != 0 {
		t.Errorf("callback values = %v, want [1 0]", inside)
	}
	if m1.At.IsZero() || m1.At.Location().String() != "UTC" {
		t.Errorf("At = %v, want non-zero UTC", m1.At)
	}
}

func TestJobKind_Text(t *testing.T) {
	tests := []struct {
		kind JobKind
		text string
	}{
		{JobIncrement, "increment"},
		{JobReset, "reset"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			b, err := tt.kind.MarshalText()
			if err != nil || string(b) != tt.text {
				t.Errorf("MarshalText() = %q, %v; want %q", b, err, tt.text)
			}
			var k JobKind
			if err := k.UnmarshalText([]byte(tt.text)); err != nil || k != tt.kind {
				t.Errorf("UnmarshalText(%q) = %v, %v; want %v", tt.text, k, err, tt.kind)
			}
		})
	}

	if _, err := ParseJobKind("explode"); err == nil {
		t.Error("ParseJobKind(explode) error = nil, want error")
	}
	if got := JobKind(42).String(); got != "unknown(42)" {
		t.Errorf("String() = %q, want unknown(42)", got)
	}
}

package gpio

import (
	"errors"
	"testing"
)

func TestFakeInputRead(t *testing.T) {
	f := NewFakeInput(true, false, true)

	want := []bool{true, false, true, true} // last sample repeats
	for i, w := range want {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("read %d: got %v, want %v", i, got, w)
		}
	}
	if f.Reads != 4 {
		t.Errorf("Reads: got %d, want 4", f.Reads)
	}
}

func TestFakeInputNoSamples(t *testing.T) {
	f := NewFakeInput()

	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeInputError(t *testing.T) {
	f := NewFakeInput(true)
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeInputScript(t *testing.T) {
	f := NewFakeInput(true, true)
	f.Read()

	f.Script(false)
	got, _ := f.Read()
	if got {
		t.Error("after Script(false): expected false")
	}
}

func TestFakeInputClose(t *testing.T) {
	f := NewFakeInput(true)
	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakeOutputPulses(t *testing.T) {
	f := NewFakeOutput()
	for _, v := range []bool{true, false, false, true, false, true} {
		if err := f.Set(v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := f.Pulses(); got != 3 {
		t.Errorf("Pulses: got %d, want 3", got)
	}
	if !f.High() {
		t.Error("expected line to be high after last Set(true)")
	}
}

func TestFakeOutputError(t *testing.T) {
	f := NewFakeOutput()
	f.SetError = errors.New("boom")

	if err := f.Set(true); err == nil {
		t.Error("expected error to be returned")
	}
	if len(f.History) != 0 {
		t.Errorf("failed Set should not be recorded, got %v", f.History)
	}
}

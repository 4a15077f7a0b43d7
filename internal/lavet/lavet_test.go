package lavet

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/tide-display/internal/gpio"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) { s.calls = append(s.calls, d) }

func newTestActuator(t *testing.T) (*Actuator, *gpio.FakeOutput, *gpio.FakeOutput, *sleepRecorder) {
	t.Helper()
	tick, tock := gpio.NewFakeOutput(), gpio.NewFakeOutput()
	sr := &sleepRecorder{}
	a, err := New(tick, tock, 60*time.Millisecond, sr.sleep)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, tick, tock, sr
}

func TestNewDrivesLinesLow(t *testing.T) {
	_, tick, tock, _ := newTestActuator(t)

	for name, line := range map[string]*gpio.FakeOutput{"tick": tick, "tock": tock} {
		if len(line.History) != 1 || line.History[0] {
			t.Errorf("%s: expected a single low write, got %v", name, line.History)
		}
	}
}

func TestStepAlternatesLines(t *testing.T) {
	a, tick, tock, sr := newTestActuator(t)

	for i := 0; i < 5; i++ {
		a.Step()
	}

	if got := tick.Pulses(); got != 3 {
		t.Errorf("tick pulses: got %d, want 3", got)
	}
	if got := tock.Pulses(); got != 2 {
		t.Errorf("tock pulses: got %d, want 2", got)
	}
	if tick.High() || tock.High() {
		t.Error("both lines must be low at rest")
	}
	if a.Pulses() != 5 {
		t.Errorf("Pulses: got %d, want 5", a.Pulses())
	}
	if len(sr.calls) != 5 {
		t.Fatalf("expected 5 pulse waits, got %d", len(sr.calls))
	}
	for i, d := range sr.calls {
		if d != 60*time.Millisecond {
			t.Errorf("wait %d: got %v, want 60ms", i, d)
		}
	}
}

func TestStepFirstPulseIsTick(t *testing.T) {
	a, tick, tock, _ := newTestActuator(t)

	a.Step()

	// Initial low, then high, then low
	want := []bool{false, true, false}
	if len(tick.History) != len(want) {
		t.Fatalf("tick history: got %v, want %v", tick.History, want)
	}
	for i := range want {
		if tick.History[i] != want[i] {
			t.Errorf("tick history[%d]: got %v, want %v", i, tick.History[i], want[i])
		}
	}
	if tock.Pulses() != 0 {
		t.Errorf("tock should not have pulsed, got %d", tock.Pulses())
	}
}

func TestStepWriteErrorStillAlternates(t *testing.T) {
	a, tick, tock, sr := newTestActuator(t)
	tick.SetError = errors.New("line busy")

	a.Step() // tick fails
	a.Step() // tock succeeds

	if a.Pulses() != 1 {
		t.Errorf("Pulses: got %d, want 1", a.Pulses())
	}
	if tock.Pulses() != 1 {
		t.Errorf("tock pulses: got %d, want 1", tock.Pulses())
	}
	if len(sr.calls) != 1 {
		t.Errorf("failed pulse must not wait, got %d waits", len(sr.calls))
	}
}

func TestNewPropagatesError(t *testing.T) {
	tick := gpio.NewFakeOutput()
	tick.SetError = errors.New("no line")

	if _, err := New(tick, gpio.NewFakeOutput(), time.Millisecond, func(time.Duration) {}); err == nil {
		t.Error("expected error when the idle level cannot be set")
	}
}

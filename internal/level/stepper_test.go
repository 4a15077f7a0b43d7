package level

import (
	"errors"
	"testing"

	"github.com/sweeney/tide-display/internal/gpio"
	"github.com/sweeney/tide-display/internal/logic"
)

func newTestCoils() ([4]gpio.Output, [4]*gpio.FakeOutput) {
	var outs [4]gpio.Output
	var fakes [4]*gpio.FakeOutput
	for i := range fakes {
		fakes[i] = gpio.NewFakeOutput()
		outs[i] = fakes[i]
	}
	return outs, fakes
}

func coilState(fakes [4]*gpio.FakeOutput) [4]bool {
	var s [4]bool
	for i, f := range fakes {
		s[i] = f.High()
	}
	return s
}

func TestMoveFollowsHalfStepSequence(t *testing.T) {
	coils, fakes := newTestCoils()
	s := NewStepper(coils)

	for i := 1; i <= 8; i++ {
		if err := s.Move(1); err != nil {
			t.Fatalf("Move: %v", err)
		}
		want := halfStepSequence[i%8]
		if got := coilState(fakes); got != want {
			t.Errorf("step %d: coils = %v, want %v", i, got, want)
		}
	}
	if s.Position() != 8 {
		t.Errorf("Position = %d, want 8", s.Position())
	}
}

func TestMoveBackwardReversesSequence(t *testing.T) {
	coils, fakes := newTestCoils()
	s := NewStepper(coils)

	s.Move(-1)
	if got, want := coilState(fakes), halfStepSequence[7]; got != want {
		t.Errorf("coils = %v, want %v", got, want)
	}
	s.Move(-1)
	if got, want := coilState(fakes), halfStepSequence[6]; got != want {
		t.Errorf("coils = %v, want %v", got, want)
	}
	if s.Position() != -2 {
		t.Errorf("Position = %d, want -2", s.Position())
	}
}

func TestSetCurrentMovesTarget(t *testing.T) {
	coils, _ := newTestCoils()
	s := NewStepper(coils)
	s.SetTarget(50)
	s.SetCurrent(425)

	if s.Position() != 425 || s.Target() != 425 {
		t.Errorf("Position/Target = %d/%d, want 425/425", s.Position(), s.Target())
	}
}

func TestTickIgnoredInKeepSpeed(t *testing.T) {
	coils, _ := newTestCoils()
	s := NewStepper(coils)
	s.SetTarget(10)

	stepped, err := s.Tick(0)
	if err != nil || stepped {
		t.Errorf("Tick = %v, %v; want no step in keep-speed mode", stepped, err)
	}
}

func TestTickFollowsTargetAtMaxSpeed(t *testing.T) {
	coils, _ := newTestCoils()
	s := NewStepper(coils)
	s.SetMaxSpeed(100) // 10ms per step
	s.SetMode(ModeFollowPos)
	s.SetTarget(-3)

	var now logic.Millis
	steps := 0
	for i := 0; i < 40; i++ {
		stepped, err := s.Tick(now)
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if stepped {
			steps++
		}
		now++
	}

	if steps != 3 {
		t.Errorf("steps = %d, want 3", steps)
	}
	if s.Position() != -3 {
		t.Errorf("Position = %d, want -3", s.Position())
	}
}

func TestTickReleasesCoilsAtTarget(t *testing.T) {
	coils, fakes := newTestCoils()
	s := NewStepper(coils)
	s.SetMode(ModeFollowPos)
	s.SetTarget(1)

	s.Tick(0)
	if coilState(fakes) == [4]bool{} {
		t.Fatal("coils should be energised after a step")
	}
	s.Tick(10)
	if got := coilState(fakes); got != [4]bool{} {
		t.Errorf("coils = %v, want all released at target", got)
	}

	// Releasing twice doesn't write again
	n := len(fakes[0].History)
	s.Tick(20)
	if len(fakes[0].History) != n {
		t.Error("idle stepper should not keep writing coils")
	}
}

func TestMovePropagatesCoilError(t *testing.T) {
	coils, fakes := newTestCoils()
	fakes[2].SetError = errors.New("line gone")
	s := NewStepper(coils)

	if err := s.Move(1); err == nil {
		t.Error("expected error from failing coil")
	}
}

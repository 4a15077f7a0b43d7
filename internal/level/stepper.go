package level

import (
	"fmt"
	"time"

	"github.com/sweeney/tide-display/internal/gpio"
	"github.com/sweeney/tide-display/internal/logic"
)

// StepsPerTurn is the number of half-steps per output shaft turn of the
// 28BYJ-48 as driven here.
const StepsPerTurn = 2048

// Mode selects how the stepper is driven.
type Mode int

const (
	// ModeKeepSpeed: the caller drives each step explicitly (homing).
	ModeKeepSpeed Mode = iota
	// ModeFollowPos: Tick closes the loop on the target position.
	ModeFollowPos
)

// 8-step half-step sequence for a unipolar stepper on a ULN2003
var halfStepSequence = [8][4]bool{
	{true, false, false, false},
	{true, true, false, false},
	{false, true, false, false},
	{false, true, true, false},
	{false, false, true, false},
	{false, false, true, true},
	{false, false, false, true},
	{true, false, false, true},
}

// Stepper is a 4-wire unipolar stepper with a software position register.
// The position is only as good as the last SetCurrent: there is no
// feedback.
type Stepper struct {
	coils    [4]gpio.Output
	phase    int
	pos      int32
	target   int32
	mode     Mode
	interval time.Duration

	lastStep  logic.Millis
	stepped   bool
	energised bool
}

// NewStepper creates a stepper on the given coil lines (IN1..IN4).
func NewStepper(coils [4]gpio.Output) *Stepper {
	return &Stepper{coils: coils, interval: time.Second / 600}
}

// SetMaxSpeed sets the position-following speed.
func (s *Stepper) SetMaxSpeed(stepsPerSecond float64) {
	s.interval = time.Duration(float64(time.Second) / stepsPerSecond)
}

// SetMode switches between explicit stepping and position following.
func (s *Stepper) SetMode(m Mode) {
	s.mode = m
}

// Mode returns the drive mode.
func (s *Stepper) Mode() Mode {
	return s.mode
}

// SetCurrent overwrites the position register. The target is moved with it,
// so the stepper stays put until a new target is set.
func (s *Stepper) SetCurrent(pos int32) {
	s.pos = pos
	s.target = pos
}

// SetTarget sets the position to follow.
func (s *Stepper) SetTarget(pos int32) {
	s.target = pos
}

// Position returns the position register.
func (s *Stepper) Position() int32 {
	return s.pos
}

// Target returns the position being followed.
func (s *Stepper) Target() int32 {
	return s.target
}

// Move takes one step in direction dir (+1 or -1).
func (s *Stepper) Move(dir int) error {
	if dir >= 0 {
		s.phase = (s.phase + 1) % len(halfStepSequence)
		s.pos++
	} else {
		s.phase = (s.phase - 1 + len(halfStepSequence)) % len(halfStepSequence)
		s.pos--
	}
	return s.apply()
}

// Tick advances one step toward the target if in ModeFollowPos, not there
// yet, and the step interval has elapsed. Coils are released once the
// target is reached. It reports whether a step was taken.
func (s *Stepper) Tick(now logic.Millis) (bool, error) {
	if s.mode != ModeFollowPos {
		return false, nil
	}
	if s.pos == s.target {
		return false, s.Release()
	}
	if s.stepped && now.Since(s.lastStep) < s.interval {
		return false, nil
	}
	s.stepped = true
	s.lastStep = now

	dir := 1
	if s.target < s.pos {
		dir = -1
	}
	return true, s.Move(dir)
}

// Release de-energises all coils.
func (s *Stepper) Release() error {
	if !s.energised {
		return nil
	}
	for i, c := range s.coils {
		if err := c.Set(false); err != nil {
			return fmt.Errorf("release coil %d: %w", i+1, err)
		}
	}
	s.energised = false
	return nil
}

func (s *Stepper) apply() error {
	seq := halfStepSequence[s.phase]
	for i, c := range s.coils {
		if err := c.Set(seq[i]); err != nil {
			return fmt.Errorf("coil %d: %w", i+1, err)
		}
	}
	s.energised = true
	return nil
}

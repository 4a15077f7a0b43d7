package logic

import (
	"fmt"
	"time"
)

// Variant names a physical Lavet movement.
type Variant string

const (
	// VariantTick is the common one-step-per-second "ticking" movement.
	VariantTick Variant = "tick"
	// VariantSweep is a continuous-sweep movement that takes 16 small
	// steps for every second of hand travel.
	VariantSweep Variant = "sweep"
)

// MotorProfile holds the timing of one movement variant.
type MotorProfile struct {
	Variant         Variant
	StepsPerTick    int           // motor steps per displayed tick
	MinStepInterval time.Duration // fastest the movement can be stepped
	PulseDuration   time.Duration // how long a coil is energised per step
}

var motorProfiles = map[Variant]MotorProfile{
	VariantTick: {
		Variant:         VariantTick,
		StepsPerTick:    1,
		MinStepInterval: 200 * time.Millisecond,
		PulseDuration:   60 * time.Millisecond,
	},
	VariantSweep: {
		Variant:         VariantSweep,
		StepsPerTick:    16,
		MinStepInterval: 14 * time.Millisecond,
		PulseDuration:   6 * time.Millisecond,
	},
}

// Profile returns the profile for v.
func Profile(v Variant) (MotorProfile, error) {
	p, ok := motorProfiles[v]
	if !ok {
		return MotorProfile{}, fmt.Errorf("unknown motor variant %q (want %q or %q)", v, VariantTick, VariantSweep)
	}
	return p, nil
}

// Validate checks the pulse fits inside the step interval.
func (m MotorProfile) Validate() error {
	if m.StepsPerTick < 1 {
		return fmt.Errorf("motor %s: steps per tick %d < 1", m.Variant, m.StepsPerTick)
	}
	if m.PulseDuration <= 0 {
		return fmt.Errorf("motor %s: pulse duration %v must be positive", m.Variant, m.PulseDuration)
	}
	if m.MinStepInterval < m.PulseDuration {
		return fmt.Errorf("motor %s: step interval %v shorter than pulse %v", m.Variant, m.MinStepInterval, m.PulseDuration)
	}
	return nil
}

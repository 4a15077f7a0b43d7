// Package lavet drives a quartz clock movement whose Lavet motor coil has
// been wired directly to two GPIO lines. Each pulse advances the movement by
// one step; successive pulses must alternate polarity, so the active line
// alternates between "tick" and "tock".
package lavet

import (
	"log"
	"time"

	"github.com/sweeney/tide-display/internal/gpio"
)

// Actuator issues alternating tick/tock pulses.
type Actuator struct {
	tick  gpio.Output
	tock  gpio.Output
	pulse time.Duration
	sleep func(time.Duration)

	useTock bool
	pulses  uint64
}

// New creates an actuator. Both lines are driven low at rest. sleep is
// time.Sleep in production.
func New(tick, tock gpio.Output, pulse time.Duration, sleep func(time.Duration)) (*Actuator, error) {
	for _, line := range []gpio.Output{tick, tock} {
		if err := line.Set(false); err != nil {
			return nil, err
		}
	}
	return &Actuator{tick: tick, tock: tock, pulse: pulse, sleep: sleep}, nil
}

// Step energises the active line for the pulse duration, releases it and
// flips to the other line for next time. It blocks for the pulse.
func (a *Actuator) Step() {
	line, name := a.tick, "tick"
	if a.useTock {
		line, name = a.tock, "tock"
	}
	a.useTock = !a.useTock

	if err := line.Set(true); err != nil {
		log.Printf("lavet: %s pulse: %v", name, err)
		return
	}
	a.sleep(a.pulse)
	if err := line.Set(false); err != nil {
		log.Printf("lavet: %s release: %v", name, err)
		return
	}
	a.pulses++
}

// Pulses returns the number of completed pulses.
func (a *Actuator) Pulses() uint64 {
	return a.pulses
}

package level

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/tide-display/internal/gpio"
)

var (
	// ErrNoPower is returned when homing is attempted without USB power.
	ErrNoPower = errors.New("no power to the stepper")
	// ErrPowerLost is returned when power drops during the drive phase.
	ErrPowerLost = errors.New("power lost while homing")
	// ErrLimitNotFound is returned when the limit sensor never trips.
	ErrLimitNotFound = errors.New("limit sensor not reached")
)

const (
	// HomingDegPerSec is the speed used to approach the limit sensor.
	// Positive is clockwise, which lowers the sea.
	HomingDegPerSec = 30

	// MaxHomingSteps bounds the drive phase.
	MaxHomingSteps = 3 * StepsPerTurn
)

// Homer re-establishes absolute position by driving the stepper until the
// Hall-effect limit sensor trips.
type Homer struct {
	stepper  *Stepper
	limit    gpio.Input
	power    gpio.Input
	homePos  int32
	interval time.Duration
	maxSteps int
	sleep    func(time.Duration)
}

// NewHomer creates a Homer. homePos is the position register value at the
// sensor, i.e. the position of the lowest displayable level.
func NewHomer(stepper *Stepper, limit, power gpio.Input, homePos int32, sleep func(time.Duration)) *Homer {
	stepsPerSec := float64(HomingDegPerSec) * StepsPerTurn / 360
	return &Homer{
		stepper:  stepper,
		limit:    limit,
		power:    power,
		homePos:  homePos,
		interval: time.Duration(float64(time.Second) / stepsPerSec),
		maxSteps: MaxHomingSteps,
		sleep:    sleep,
	}
}

// Home drives toward the limit sensor, checking the power-present signal
// before every step. On success the position register is set to the home
// position and the stepper is left following position.
func (h *Homer) Home() error {
	if err := h.requirePower(ErrNoPower); err != nil {
		return err
	}

	h.stepper.SetMode(ModeKeepSpeed)
	for n := 0; ; n++ {
		tripped, err := h.limit.Read()
		if err != nil {
			return h.abort(fmt.Errorf("read limit sensor: %w", err))
		}
		if tripped {
			break
		}
		if err := h.requirePower(ErrPowerLost); err != nil {
			return h.abort(err)
		}
		if n >= h.maxSteps {
			return h.abort(fmt.Errorf("%w after %d steps", ErrLimitNotFound, n))
		}
		if err := h.stepper.Move(1); err != nil {
			return h.abort(fmt.Errorf("homing step: %w", err))
		}
		h.sleep(h.interval)
	}

	// The plug could have been pulled on the last step.
	if err := h.requirePower(ErrPowerLost); err != nil {
		return h.abort(err)
	}

	h.stepper.SetCurrent(h.homePos)
	h.stepper.SetMode(ModeFollowPos)
	return nil
}

// abort de-energises the coils after a failed homing attempt. A release
// failure is joined to cause, which stays matchable with errors.Is.
func (h *Homer) abort(cause error) error {
	if err := h.stepper.Release(); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (h *Homer) requirePower(sentinel error) error {
	on, err := h.power.Read()
	if err != nil {
		return fmt.Errorf("read power: %w", err)
	}
	if !on {
		return sentinel
	}
	return nil
}

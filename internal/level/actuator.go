// Package level drives the water-level display: a stepper-driven sea that
// must be homed against a limit sensor before it can show a level.
package level

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/tide-display/internal/gpio"
	"github.com/sweeney/tide-display/internal/logic"
)

var (
	// ErrOutOfRange is returned by SetLevel for levels outside the
	// configured range.
	ErrOutOfRange = errors.New("level out of range")
	// ErrNotReady is returned by SetLevel before homing has succeeded.
	ErrNotReady = errors.New("display not homed")
)

const (
	// MinPosition is the position register value at the maximum level.
	MinPosition = -1200

	// FollowStepsPerSec is the top speed when following a level.
	FollowStepsPerSec = 600

	// HomeRetry is the back-off between failed homing attempts while
	// power stays on.
	HomeRetry = 5 * time.Second

	DefaultMinLevel = -4.3
	DefaultMaxLevel = 12.1
)

// Config is the displayable range in feet.
type Config struct {
	MinLevel float64
	MaxLevel float64
}

// Validate checks the range can be mapped onto stepper positions.
func (c Config) Validate() error {
	if c.MaxLevel <= c.MinLevel {
		return fmt.Errorf("max level %.2f must exceed min level %.2f", c.MaxLevel, c.MinLevel)
	}
	if c.MaxLevel <= 0 {
		return fmt.Errorf("max level %.2f must be positive", c.MaxLevel)
	}
	if stepsPerUnit(c.MaxLevel) == 0 {
		return fmt.Errorf("max level %.2f too large for %d steps", c.MaxLevel, -MinPosition)
	}
	return nil
}

func stepsPerUnit(maxLevel float64) int32 {
	return int32(MinPosition/maxLevel - 0.5)
}

// Snapshot is the display state for status reporting.
type Snapshot struct {
	Ready          bool
	PowerOn        bool
	PowerState     logic.PowerState
	Level          float64
	Position       int32
	Target         int32
	MinLevel       float64
	MaxLevel       float64
	Homings        int
	HomingFailures int
}

// Display is the level actuator. It is not safe for concurrent use; the
// control loop owns it.
type Display struct {
	cfg          Config
	stepsPerUnit int32

	stepper *Stepper
	homer   *Homer
	power   gpio.Input
	monitor *logic.PowerMonitor
	uptime  logic.Uptime

	ready     bool
	level     float64
	homeTried bool
	lastHome  logic.Millis

	homings        int
	homingFailures int
}

// New creates a Display. It starts NOT_READY; the first Run with power
// present homes it.
func New(cfg Config, stepper *Stepper, limit, power gpio.Input, monitor *logic.PowerMonitor, uptime logic.Uptime, sleep func(time.Duration)) (*Display, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	spu := stepsPerUnit(cfg.MaxLevel)
	stepper.SetMaxSpeed(FollowStepsPerSec)
	return &Display{
		cfg:          cfg,
		stepsPerUnit: spu,
		stepper:      stepper,
		homer:        NewHomer(stepper, limit, power, int32(float64(spu)*cfg.MinLevel), sleep),
		power:        power,
		monitor:      monitor,
		uptime:       uptime,
		level:        cfg.MinLevel,
	}, nil
}

// Position maps a level in feet to a stepper position.
func (d *Display) Position(level float64) int32 {
	return int32(level * float64(d.stepsPerUnit))
}

// PositionRange returns the positions of the maximum and minimum levels.
// The sea sits between them once homed.
func (d *Display) PositionRange() (lo, hi int32) {
	return d.Position(d.cfg.MaxLevel), d.Position(d.cfg.MinLevel)
}

// SetLevel sets the level to display. Out-of-range levels and requests
// made before homing leave the display unchanged.
func (d *Display) SetLevel(level float64) error {
	// Written so that NaN fails the check.
	if !(level >= d.cfg.MinLevel && level <= d.cfg.MaxLevel) {
		return fmt.Errorf("%w: %.2f not in [%.2f, %.2f]", ErrOutOfRange, level, d.cfg.MinLevel, d.cfg.MaxLevel)
	}
	if !d.ready {
		return ErrNotReady
	}
	d.level = level
	d.stepper.SetTarget(d.Position(level))
	return nil
}

// Run samples power, homes when needed and steps toward the target. It is
// called once per control loop iteration and may block for the duration of
// a homing run.
func (d *Display) Run() ([]logic.Event, error) {
	now := d.uptime()
	raw, err := d.power.Read()
	if err != nil {
		return nil, fmt.Errorf("read power: %w", err)
	}

	var events []logic.Event
	switch d.monitor.Sample(raw, now) {
	case logic.PowerWentOff:
		d.ready = false
		events = append(events, logic.Event{Type: logic.EventPowerOff})
		if err := d.stepper.Release(); err != nil {
			return events, err
		}
		return events, nil
	case logic.PowerCameOn:
		d.homeTried = false
		events = append(events, logic.Event{Type: logic.EventPowerOn})
	}

	if !d.monitor.On() {
		return events, nil
	}

	if !d.ready {
		if d.homeTried && now.Since(d.lastHome) < HomeRetry {
			return events, nil
		}
		d.homeTried = true
		d.lastHome = now
		if err := d.homer.Home(); err != nil {
			d.homingFailures++
			return append(events, logic.Event{Type: logic.EventHomingFailed, Reason: err.Error()}), nil
		}
		d.homings++
		d.ready = true
		d.level = d.cfg.MinLevel
		return append(events, logic.Event{
			Type:     logic.EventHomed,
			Level:    d.level,
			Position: d.stepper.Position(),
		}), nil
	}

	if _, err := d.stepper.Tick(now); err != nil {
		return events, err
	}
	return events, nil
}

// Ready reports whether the display has been homed since power came on.
func (d *Display) Ready() bool {
	return d.ready
}

// Level returns the level currently being displayed (or driven toward).
func (d *Display) Level() float64 {
	return d.level
}

// Snapshot returns the current display state.
func (d *Display) Snapshot() Snapshot {
	return Snapshot{
		Ready:          d.ready,
		PowerOn:        d.monitor.On(),
		PowerState:     d.monitor.State(),
		Level:          d.level,
		Position:       d.stepper.Position(),
		Target:         d.stepper.Target(),
		MinLevel:       d.cfg.MinLevel,
		MaxLevel:       d.cfg.MaxLevel,
		Homings:        d.homings,
		HomingFailures: d.homingFailures,
	}
}

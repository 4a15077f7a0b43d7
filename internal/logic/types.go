// Package logic contains the pure control state machines of the tide display:
// tide-clock pacing and power-present debouncing.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Wall-clock time is passed in as time.Time; interval timing uses Millis.
package logic

import "time"

// Millis is a free-running millisecond tick counter. It wraps at 2^32, so
// intervals are always computed with Since, never by direct comparison.
type Millis uint32

// Since returns the time elapsed from earlier to m. Unsigned subtraction
// keeps the result correct across a counter wrap.
func (m Millis) Since(earlier Millis) time.Duration {
	return time.Duration(uint32(m-earlier)) * time.Millisecond
}

// Uptime returns the current value of the tick counter.
type Uptime func() Millis

// TideKind identifies a tide extreme.
type TideKind int

const (
	TideUnavailable TideKind = iota
	TideHigh
	TideLow
)

func (k TideKind) String() string {
	switch k {
	case TideHigh:
		return "HIGH"
	case TideLow:
		return "LOW"
	default:
		return "UNAVAILABLE"
	}
}

// TideEvent is a predicted tide extreme. A zero TideEvent is unavailable.
type TideEvent struct {
	Kind TideKind
	Time time.Time
}

// Available reports whether the event carries a usable prediction.
func (e TideEvent) Available() bool {
	return e.Kind != TideUnavailable && !e.Time.IsZero()
}

// NextTideFunc supplies the next tide extreme after the current time, or an
// unavailable TideEvent. It may block on the network.
type NextTideFunc func() TideEvent

// LevelFunc supplies the current water level in feet. ok is false when no
// value is available.
type LevelFunc func() (level float64, ok bool)

// EventType identifies something worth reporting to the operator.
type EventType string

const (
	EventTideAccepted  EventType = "TIDE_ACCEPTED"
	EventClockPaused   EventType = "CLOCK_PAUSED"
	EventClockResumed  EventType = "CLOCK_RESUMED"
	EventPowerOn       EventType = "POWER_ON"
	EventPowerOff      EventType = "POWER_OFF"
	EventHomed         EventType = "HOMED"
	EventHomingFailed  EventType = "HOMING_FAILED"
	EventLevelSet      EventType = "LEVEL_SET"
	EventLevelRejected EventType = "LEVEL_REJECTED"
)

// Event is a notable state change, produced by the state machines and
// published by the control loop.
type Event struct {
	Timestamp time.Time
	Type      EventType

	// Tide pacing
	Tide        TideEvent
	StepsNeeded int
	StepsTaken  int
	MissedCycle bool
	Wait        time.Duration // CLOCK_PAUSED only

	// Level display
	Level    float64
	Position int32
	Reason   string
}

// Stamp sets the timestamp on every event that does not have one yet.
func Stamp(events []Event, t time.Time) []Event {
	for i := range events {
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = t
		}
	}
	return events
}

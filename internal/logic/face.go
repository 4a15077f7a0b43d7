package logic

import "fmt"

// FaceKind selects how time-to-tide maps onto hand position.
type FaceKind int

const (
	FaceLinear FaceKind = iota
	FaceNonlinear
)

func (k FaceKind) String() string {
	if k == FaceNonlinear {
		return "nonlinear"
	}
	return "linear"
}

// ParseFace converts a flag value into a FaceKind.
func ParseFace(s string) (FaceKind, error) {
	switch s {
	case "linear":
		return FaceLinear, nil
	case "nonlinear":
		return FaceNonlinear, nil
	}
	return FaceLinear, fmt.Errorf("unknown face %q (want linear or nonlinear)", s)
}

const (
	secondsIn6Hours  = 6 * 60 * 60
	secondsIn18Hours = 18 * 60 * 60

	// CycleTicks is the number of ticks the hand travels between two
	// extremes: half a turn of the movement's minute hand.
	CycleTicks = 1800

	// SecondsPerTick is the linear face's rate: 6 hours over CycleTicks.
	SecondsPerTick = secondsIn6Hours / CycleTicks
)

// FaceGeometry is the fixed mapping from seconds-since-cycle-start to ticks.
type FaceGeometry struct {
	Kind       FaceKind
	Window     int64 // nominal cycle window, seconds
	CycleTicks int
}

// NewFace returns the geometry for kind.
//
// The nonlinear face follows ticks = a * s^2 with a = CycleTicks / Window^2,
// so it reaches CycleTicks exactly at the 18 hour mark. a is kept as that
// integer ratio rather than a float so the boundary value is exact.
func NewFace(kind FaceKind) FaceGeometry {
	if kind == FaceNonlinear {
		return FaceGeometry{Kind: FaceNonlinear, Window: secondsIn18Hours, CycleTicks: CycleTicks}
	}
	return FaceGeometry{Kind: FaceLinear, Window: secondsIn6Hours, CycleTicks: CycleTicks}
}

// Ticks returns the hand position, in ticks from the cycle start, for a
// point secondsSinceStart into the nominal window. It is clamped to
// [0, CycleTicks].
func (f FaceGeometry) Ticks(secondsSinceStart int64) int {
	return f.Steps(secondsSinceStart, 1)
}

// Steps is Ticks scaled to a movement with perTick steps per tick. The
// scaling happens before rounding down, so a fine movement advances
// step by step rather than a whole tick at a time.
func (f FaceGeometry) Steps(secondsSinceStart int64, perTick int) int {
	full := int64(f.CycleTicks) * int64(perTick)
	if secondsSinceStart <= 0 {
		return 0
	}
	if secondsSinceStart >= f.Window {
		return int(full)
	}
	if f.Kind == FaceNonlinear {
		s := secondsSinceStart
		return int(full * s * s / (f.Window * f.Window))
	}
	return int(secondsSinceStart * full / f.Window)
}

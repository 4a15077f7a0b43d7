package logic

import "time"

// PacerState is the tide clock's pacing state.
type PacerState string

const (
	PacerAwaitingFirstEvent PacerState = "AWAITING_FIRST_EVENT"
	PacerNormal             PacerState = "NORMAL_PACING"
	PacerPaused             PacerState = "PAUSED"
)

// DefaultFetchInterval bounds how often the tide source is asked for a new
// prediction while one is due.
const DefaultFetchInterval = 120 * time.Second

// Stepper advances a clock movement by one motor step.
type Stepper interface {
	Step()
}

// Pacer keeps the tide clock's hand pointing at the time remaining to the
// next tide extreme. Call Advance as often as possible; it rate-limits itself
// to the movement's maximum step rate and never takes more than one step per
// call.
//
// On the first tide event accepted after start-up the hand is assumed to
// have been set correctly by the operator: the pacer records the required
// position as already reached instead of stepping to it. Nothing can verify
// that assumption.
type Pacer struct {
	face       FaceGeometry
	motor      MotorProfile
	next       NextTideFunc
	stepper    Stepper
	uptime     Uptime
	fetchEvery time.Duration

	state       PacerState
	tide        TideEvent
	stepsTaken  int
	stepsNeeded int
	makeup      int // extra steps owed: a missed cycle plus any unfinished one
	missed      bool

	attempted   bool
	lastAttempt Millis
	fetched     bool
	lastFetch   Millis
	totalSteps  uint64
}

// NewPacer creates a pacer for the given face and movement.
func NewPacer(face FaceGeometry, motor MotorProfile, next NextTideFunc, stepper Stepper, uptime Uptime, fetchEvery time.Duration) *Pacer {
	return &Pacer{
		face:       face,
		motor:      motor,
		next:       next,
		stepper:    stepper,
		uptime:     uptime,
		fetchEvery: fetchEvery,
		state:      PacerAwaitingFirstEvent,
	}
}

// Advance moves the clock toward the position required at now. It returns
// the events worth reporting, usually none.
func (p *Pacer) Advance(now time.Time) []Event {
	ms := p.uptime()
	if p.attempted && ms.Since(p.lastAttempt) < p.motor.MinStepInterval {
		return nil
	}
	p.attempted = true
	p.lastAttempt = ms

	var events []Event
	first := p.state == PacerAwaitingFirstEvent
	accepted := false
	if !p.tide.Available() || now.Unix() > p.tide.Time.Unix() {
		if ev, ok := p.fetch(ms, now); ok {
			accepted = true
			p.accept(ev)
		}
	}
	if !p.tide.Available() {
		return nil
	}

	since := p.secondsSinceCycleStart(now)
	p.stepsNeeded = p.face.Steps(since, p.motor.StepsPerTick) + p.makeup

	if accepted {
		if since < 0 {
			p.state = PacerPaused
		} else {
			p.state = PacerNormal
			if first {
				p.stepsTaken = p.stepsNeeded
			}
		}
		events = append(events, Event{
			Type:        EventTideAccepted,
			Tide:        p.tide,
			StepsNeeded: p.stepsNeeded,
			StepsTaken:  p.stepsTaken,
			MissedCycle: p.missed,
		})
		if p.state == PacerPaused {
			events = append(events, Event{
				Type: EventClockPaused,
				Tide: p.tide,
				Wait: time.Duration(-since) * time.Second,
			})
		}
	}

	if p.state == PacerPaused {
		if since >= 0 {
			p.state = PacerNormal
			events = append(events, Event{Type: EventClockResumed, Tide: p.tide, StepsNeeded: p.stepsNeeded})
		}
		return events
	}

	if p.stepsNeeded > p.stepsTaken {
		p.stepper.Step()
		p.stepsTaken++
		p.totalSteps++
	}
	return events
}

// fetch asks the tide source for a new target, at most once per fetchEvery.
// Unavailable or stale predictions are ignored.
func (p *Pacer) fetch(ms Millis, now time.Time) (TideEvent, bool) {
	if p.fetched && ms.Since(p.lastFetch) < p.fetchEvery {
		return TideEvent{}, false
	}
	p.fetched = true
	p.lastFetch = ms

	ev := p.next()
	if !ev.Available() || ev.Time.Unix() <= now.Unix() {
		return TideEvent{}, false
	}
	return ev, true
}

// accept starts a new cycle. Steps still owed on the cycle being left
// carry over. A tide of the same kind as the previous one means at least
// one extreme went by unseen, so a full cycle of steps is owed as well.
func (p *Pacer) accept(ev TideEvent) {
	p.makeup = 0
	p.missed = false
	if p.tide.Available() {
		p.makeup = max(p.stepsNeeded-p.stepsTaken, 0)
		if ev.Kind == p.tide.Kind {
			p.missed = true
			p.makeup += p.face.CycleTicks * p.motor.StepsPerTick
		}
	}
	p.tide = ev
	p.stepsTaken = 0
}

// secondsSinceCycleStart is negative while the tide is further away than
// the face's nominal window.
func (p *Pacer) secondsSinceCycleStart(now time.Time) int64 {
	return p.face.Window - (p.tide.Time.Unix() - now.Unix())
}

// PacerSnapshot is a point-in-time view of the pacer.
type PacerSnapshot struct {
	State       PacerState
	Face        FaceKind
	Motor       Variant
	NextTide    TideEvent
	StepsTaken  int
	StepsNeeded int
	TotalSteps  uint64
}

// Snapshot returns the pacer's current state.
func (p *Pacer) Snapshot() PacerSnapshot {
	return PacerSnapshot{
		State:       p.state,
		Face:        p.face.Kind,
		Motor:       p.motor.Variant,
		NextTide:    p.tide,
		StepsTaken:  p.stepsTaken,
		StepsNeeded: p.stepsNeeded,
		TotalSteps:  p.totalSteps,
	}
}

// State returns the pacing state.
func (p *Pacer) State() PacerState {
	return p.state
}

// NextTide returns the current target, unavailable before the first fetch.
func (p *Pacer) NextTide() TideEvent {
	return p.tide
}

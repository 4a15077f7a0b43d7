package logic

import (
	"testing"
	"time"
)

// fakeUptime is a hand-driven millisecond counter.
type fakeUptime struct {
	ms Millis
}

func (f *fakeUptime) now() Millis { return f.ms }

func (f *fakeUptime) add(d time.Duration) { f.ms += Millis(d / time.Millisecond) }

// recordingStepper records the counter value at every step.
type recordingStepper struct {
	clock *fakeUptime
	at    []Millis
}

func (s *recordingStepper) Step() { s.at = append(s.at, s.clock.ms) }

// scriptedTides returns the scripted events in order, then unavailable.
type scriptedTides struct {
	events []TideEvent
	calls  int
}

func (s *scriptedTides) next() TideEvent {
	s.calls++
	if len(s.events) == 0 {
		return TideEvent{}
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev
}

var t0 = time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

func tickProfile(t *testing.T) MotorProfile {
	t.Helper()
	p, err := Profile(VariantTick)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	return p
}

func newTestPacer(t *testing.T, kind FaceKind, tides ...TideEvent) (*Pacer, *fakeUptime, *recordingStepper, *scriptedTides) {
	t.Helper()
	clock := &fakeUptime{ms: 1000}
	stepper := &recordingStepper{clock: clock}
	src := &scriptedTides{events: tides}
	p := NewPacer(NewFace(kind), tickProfile(t), src.next, stepper, clock.now, DefaultFetchInterval)
	return p, clock, stepper, src
}

// advance calls Advance after letting the motor's step interval elapse.
func advance(p *Pacer, clock *fakeUptime, now time.Time) []Event {
	clock.add(200 * time.Millisecond)
	return p.Advance(now)
}

func TestPacerAwaitsFirstEvent(t *testing.T) {
	p, clock, stepper, _ := newTestPacer(t, FaceLinear)

	for i := 0; i < 5; i++ {
		if events := advance(p, clock, t0); len(events) != 0 {
			t.Errorf("call %d: expected no events, got %v", i, events)
		}
	}
	if p.State() != PacerAwaitingFirstEvent {
		t.Errorf("state: got %s, want %s", p.State(), PacerAwaitingFirstEvent)
	}
	if len(stepper.at) != 0 {
		t.Errorf("expected no steps, got %d", len(stepper.at))
	}
}

func TestPacerFirstEventTrustsOperator(t *testing.T) {
	p, clock, stepper, _ := newTestPacer(t, FaceLinear, TideEvent{Kind: TideHigh, Time: t0.Add(3 * time.Hour)})

	events := advance(p, clock, t0)
	if len(events) != 1 || events[0].Type != EventTideAccepted {
		t.Fatalf("expected one TIDE_ACCEPTED event, got %v", events)
	}
	if events[0].MissedCycle {
		t.Error("first event must not be treated as a missed cycle")
	}

	snap := p.Snapshot()
	// 3h into a 6h window at 12s per tick
	if snap.StepsNeeded != 900 {
		t.Errorf("StepsNeeded: got %d, want 900", snap.StepsNeeded)
	}
	if snap.StepsTaken != 900 {
		t.Errorf("StepsTaken: got %d, want 900 (assumed already in position)", snap.StepsTaken)
	}
	if len(stepper.at) != 0 {
		t.Errorf("expected no steps on first event, got %d", len(stepper.at))
	}
	if snap.State != PacerNormal {
		t.Errorf("state: got %s, want %s", snap.State, PacerNormal)
	}
}

func TestPacerNormalPacing(t *testing.T) {
	p, clock, stepper, _ := newTestPacer(t, FaceLinear, TideEvent{Kind: TideHigh, Time: t0.Add(3 * time.Hour)})
	advance(p, clock, t0)

	// Nothing due within the same 12 second tick
	advance(p, clock, t0.Add(11*time.Second))
	if len(stepper.at) != 0 {
		t.Fatalf("expected no step before the next tick, got %d", len(stepper.at))
	}

	for i := 1; i <= 10; i++ {
		advance(p, clock, t0.Add(time.Duration(12*i)*time.Second))
		if len(stepper.at) != i {
			t.Fatalf("after tick %d: got %d steps, want %d", i, len(stepper.at), i)
		}
	}
}

func TestPacerQuickCatchUp(t *testing.T) {
	p, clock, stepper, _ := newTestPacer(t, FaceLinear,
		TideEvent{Kind: TideHigh, Time: t0.Add(time.Second)},
		TideEvent{Kind: TideLow, Time: t0.Add(2*time.Second + 3*time.Hour)},
	)
	advance(p, clock, t0)

	now := t0.Add(2 * time.Second)
	clock.add(DefaultFetchInterval)
	events := advance(p, clock, now)
	if len(events) != 1 || events[0].Type != EventTideAccepted {
		t.Fatalf("expected TIDE_ACCEPTED, got %v", events)
	}
	if events[0].StepsNeeded != 900 {
		t.Errorf("StepsNeeded: got %d, want 900", events[0].StepsNeeded)
	}

	// One step per call, never more.
	for i := 2; i <= 900; i++ {
		advance(p, clock, now)
		if len(stepper.at) != i {
			t.Fatalf("call %d: got %d steps, want %d", i, len(stepper.at), i)
		}
	}
	advance(p, clock, now)
	if len(stepper.at) != 900 {
		t.Errorf("caught up: expected 900 steps total, got %d", len(stepper.at))
	}
}

func TestPacerPausesUntilWindowStart(t *testing.T) {
	p, clock, stepper, _ := newTestPacer(t, FaceLinear,
		TideEvent{Kind: TideHigh, Time: t0.Add(time.Second)},
		TideEvent{Kind: TideLow, Time: t0.Add(2*time.Second + 8*time.Hour)},
	)
	advance(p, clock, t0)

	now := t0.Add(2 * time.Second)
	clock.add(DefaultFetchInterval)
	events := advance(p, clock, now)
	if len(events) != 2 {
		t.Fatalf("expected TIDE_ACCEPTED and CLOCK_PAUSED, got %v", events)
	}
	if events[1].Type != EventClockPaused {
		t.Errorf("event 1: got %s, want CLOCK_PAUSED", events[1].Type)
	}
	if events[1].Wait != 2*time.Hour {
		t.Errorf("Wait: got %v, want 2h", events[1].Wait)
	}
	if p.State() != PacerPaused {
		t.Fatalf("state: got %s, want PAUSED", p.State())
	}

	advance(p, clock, now.Add(time.Hour))
	advance(p, clock, now.Add(2*time.Hour-time.Second))
	if p.State() != PacerPaused || len(stepper.at) != 0 {
		t.Fatalf("expected still paused with no steps, state=%s steps=%d", p.State(), len(stepper.at))
	}

	events = advance(p, clock, now.Add(2*time.Hour))
	if len(events) != 1 || events[0].Type != EventClockResumed {
		t.Fatalf("expected CLOCK_RESUMED, got %v", events)
	}
	if len(stepper.at) != 0 {
		t.Errorf("resuming call must not step, got %d", len(stepper.at))
	}

	advance(p, clock, now.Add(2*time.Hour+12*time.Second))
	if len(stepper.at) != 1 {
		t.Errorf("expected 1 step one tick after resuming, got %d", len(stepper.at))
	}
}

func TestPacerMissedCycle(t *testing.T) {
	tests := []struct {
		name       string
		second     TideKind
		wantNeeded int
		wantMissed bool
	}{
		// 7199s to go in a 21600s window: 14401s elapsed, 1200 ticks
		{"alternating kind", TideLow, 1200, false},
		{"same kind twice", TideHigh, 1200 + CycleTicks, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, clock, _, _ := newTestPacer(t, FaceLinear,
				TideEvent{Kind: TideHigh, Time: t0},
				TideEvent{Kind: tt.second, Time: t0.Add(7200 * time.Second)},
			)
			advance(p, clock, t0.Add(-3*time.Hour))

			clock.add(DefaultFetchInterval)
			events := advance(p, clock, t0.Add(time.Second))
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %v", events)
			}
			ev := events[0]
			if ev.MissedCycle != tt.wantMissed {
				t.Errorf("MissedCycle: got %v, want %v", ev.MissedCycle, tt.wantMissed)
			}
			if ev.StepsNeeded != tt.wantNeeded {
				t.Errorf("StepsNeeded: got %d, want %d", ev.StepsNeeded, tt.wantNeeded)
			}
		})
	}
}

func TestPacerMissedCycleSweepMotor(t *testing.T) {
	clock := &fakeUptime{}
	stepper := &recordingStepper{clock: clock}
	src := &scriptedTides{events: []TideEvent{
		{Kind: TideLow, Time: t0},
		{Kind: TideLow, Time: t0.Add(7200 * time.Second)},
	}}
	sweep, _ := Profile(VariantSweep)
	p := NewPacer(NewFace(FaceLinear), sweep, src.next, stepper, clock.now, DefaultFetchInterval)

	clock.add(time.Second)
	p.Advance(t0.Add(-time.Hour))
	clock.add(DefaultFetchInterval)
	events := p.Advance(t0.Add(time.Second))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %v", events)
	}
	// 14401s into the cycle is one second, a step and a third, past tick 1200.
	want := 1200*16 + 1 + CycleTicks*16
	if events[0].StepsNeeded != want {
		t.Errorf("StepsNeeded: got %d, want %d", events[0].StepsNeeded, want)
	}
}

func TestPacerCarriesUnfinishedCycle(t *testing.T) {
	p, clock, stepper, _ := newTestPacer(t, FaceLinear,
		TideEvent{Kind: TideHigh, Time: t0.Add(time.Minute)},
		TideEvent{Kind: TideHigh, Time: t0.Add(6 * time.Minute)},
		TideEvent{Kind: TideLow, Time: t0.Add(6*time.Minute + 3*time.Hour)},
	)
	advance(p, clock, t0)

	// Missed cycle: 21360s elapsed is 1780 ticks, plus a full cycle.
	now := t0.Add(2 * time.Minute)
	clock.add(DefaultFetchInterval)
	events := advance(p, clock, now)
	if len(events) != 1 || events[0].StepsNeeded != 1780+CycleTicks {
		t.Fatalf("expected TIDE_ACCEPTED needing %d, got %v", 1780+CycleTicks, events)
	}
	for i := 1; i < 100; i++ {
		advance(p, clock, now)
	}
	if len(stepper.at) != 100 {
		t.Fatalf("got %d steps, want 100", len(stepper.at))
	}

	// The high passes with 3480 steps still owed; they are not forgotten.
	clock.add(DefaultFetchInterval)
	events = advance(p, clock, t0.Add(7*time.Minute))
	if len(events) != 1 || events[0].Type != EventTideAccepted {
		t.Fatalf("expected TIDE_ACCEPTED, got %v", events)
	}
	if events[0].MissedCycle {
		t.Error("alternating kinds must not be reported as a missed cycle")
	}
	// 10860s elapsed is 905 ticks.
	if want := 905 + 1780 + CycleTicks - 100; events[0].StepsNeeded != want {
		t.Errorf("StepsNeeded: got %d, want %d", events[0].StepsNeeded, want)
	}
}

func TestPacerKeepsTargetWhenUnavailable(t *testing.T) {
	p, clock, _, src := newTestPacer(t, FaceLinear, TideEvent{Kind: TideHigh, Time: t0.Add(time.Minute)})
	advance(p, clock, t0)
	before := p.Snapshot()

	// Tide has passed; the source has nothing more to give.
	clock.add(DefaultFetchInterval)
	advance(p, clock, t0.Add(2*time.Minute))

	after := p.Snapshot()
	if !after.NextTide.Time.Equal(before.NextTide.Time) || after.NextTide.Kind != before.NextTide.Kind {
		t.Errorf("target changed: before %+v, after %+v", before.NextTide, after.NextTide)
	}
	if src.calls != 2 {
		t.Errorf("source calls: got %d, want 2", src.calls)
	}
	if after.StepsNeeded != CycleTicks {
		t.Errorf("StepsNeeded past the tide: got %d, want clamp at %d", after.StepsNeeded, CycleTicks)
	}
}

func TestPacerIgnoresStalePrediction(t *testing.T) {
	p, clock, _, _ := newTestPacer(t, FaceLinear, TideEvent{Kind: TideHigh, Time: t0.Add(-time.Minute)})

	if events := advance(p, clock, t0); len(events) != 0 {
		t.Errorf("expected stale prediction to be ignored, got %v", events)
	}
	if p.State() != PacerAwaitingFirstEvent {
		t.Errorf("state: got %s, want AWAITING_FIRST_EVENT", p.State())
	}
}

func TestPacerFetchRateLimit(t *testing.T) {
	p, clock, _, src := newTestPacer(t, FaceLinear)

	// 1000 calls, 200ms apart: 200 seconds of retrying
	for i := 0; i < 1000; i++ {
		advance(p, clock, t0.Add(time.Duration(i)*200*time.Millisecond))
	}
	// Fetches at 0s and 120s
	if src.calls != 2 {
		t.Errorf("source calls: got %d, want 2", src.calls)
	}
}

func TestPacerStepRateLimit(t *testing.T) {
	p, clock, stepper, _ := newTestPacer(t, FaceLinear,
		TideEvent{Kind: TideHigh, Time: t0.Add(time.Second)},
		TideEvent{Kind: TideLow, Time: t0.Add(2*time.Second + 3*time.Hour)},
	)
	advance(p, clock, t0)
	clock.add(DefaultFetchInterval)
	advance(p, clock, t0.Add(2*time.Second)) // 900 steps owed

	start := len(stepper.at)
	for i := 0; i < 1000; i++ {
		clock.add(time.Millisecond)
		p.Advance(t0.Add(2 * time.Second))
	}

	steps := stepper.at[start:]
	if max := 1000 / 200; len(steps) > max {
		t.Errorf("1000 calls over 1s: got %d steps, want at most %d", len(steps), max)
	}
	for i := 1; i < len(stepper.at); i++ {
		if gap := stepper.at[i].Since(stepper.at[i-1]); gap < 200*time.Millisecond {
			t.Errorf("steps %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestPacerRateLimitAcrossCounterWrap(t *testing.T) {
	p, clock, stepper, _ := newTestPacer(t, FaceLinear,
		TideEvent{Kind: TideHigh, Time: t0.Add(time.Second)},
		TideEvent{Kind: TideLow, Time: t0.Add(2*time.Second + 3*time.Hour)},
	)
	advance(p, clock, t0)

	clock.ms = 0xFFFFFF00
	p.Advance(t0.Add(2 * time.Second))
	n := len(stepper.at)

	clock.ms = 0x00000010 // 272ms later, after the wrap
	p.Advance(t0.Add(2 * time.Second))
	if len(stepper.at) != n+1 {
		t.Errorf("expected a step after the counter wrapped, got %d new", len(stepper.at)-n)
	}

	clock.ms = 0x00000020 // only 16ms later
	p.Advance(t0.Add(2 * time.Second))
	if len(stepper.at) != n+1 {
		t.Errorf("expected rate limit to hold after the wrap, got %d new", len(stepper.at)-n)
	}
}

func TestPacerNonlinearFace(t *testing.T) {
	p, clock, _, _ := newTestPacer(t, FaceNonlinear, TideEvent{Kind: TideHigh, Time: t0.Add(9 * time.Hour)})
	advance(p, clock, t0)

	// Halfway through the 18h window: a quarter of the cycle
	if got := p.Snapshot().StepsNeeded; got != 450 {
		t.Errorf("StepsNeeded: got %d, want 450", got)
	}
}

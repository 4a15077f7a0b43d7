// Package status provides a thread-safe status tracker for the tide display
// daemon. The control loop writes it; HTTP handlers and MQTT system events
// read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tide-display/internal/level"
	"github.com/sweeney/tide-display/internal/logic"
)

// Mode is the operating mode of the display.
type Mode string

const (
	// ModeRun fetches the water level periodically.
	ModeRun Mode = "run"
	// ModeTest suspends fetching; the operator sets the level by hand.
	ModeTest Mode = "test"
)

// RecentEvents is how many events the tracker remembers.
const RecentEvents = 20

// Config contains daemon configuration for display.
type Config struct {
	BootID       string
	PollMs       int64
	DebounceMs   int64
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
	Station      string
	Face         string
	Motor        string
	LevelSource  string
	LevelEveryMs int64
}

// LevelFetch records the most recent level lookup.
type LevelFetch struct {
	At    time.Time
	Level float64
	OK    bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Mode          Mode
	Pacer         logic.PacerSnapshot
	Display       level.Snapshot
	LastFetch     LevelFetch
	Counts        map[logic.EventType]int
	Recent        []logic.Event // newest last
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Mode:      ModeRun,
			Counts:    make(map[logic.EventType]int),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the pacer and display state.
// Called from runLoop on every tick.
func (t *Tracker) Update(pacer logic.PacerSnapshot, display level.Snapshot) {
	t.mu.Lock()
	t.snap.Pacer = pacer
	t.snap.Display = display
	t.mu.Unlock()
}

// Record counts events and keeps the most recent.
func (t *Tracker) Record(events []logic.Event) {
	if len(events) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range events {
		t.snap.Counts[e.Type]++
	}
	recent := append(t.snap.Recent, events...)
	if len(recent) > RecentEvents {
		recent = recent[len(recent)-RecentEvents:]
	}
	// Always a fresh array so earlier snapshots are not overwritten
	t.snap.Recent = append([]logic.Event(nil), recent...)
}

// SetMode sets the operating mode.
func (t *Tracker) SetMode(m Mode) {
	t.mu.Lock()
	t.snap.Mode = m
	t.mu.Unlock()
}

// SetLevelFetch records the result of a level lookup.
func (t *Tracker) SetLevelFetch(f LevelFetch) {
	t.mu.Lock()
	t.snap.LastFetch = f
	t.mu.Unlock()
}

// SetMQTT sets the MQTT connection status and outbound buffer depth.
func (t *Tracker) SetMQTT(connected bool, buffered int) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.MQTTBuffered = buffered
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts = make(map[logic.EventType]int, len(t.snap.Counts))
	for k, v := range t.snap.Counts {
		s.Counts[k] = v
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/tide-display/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	BootID        string         `json:"boot_id,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Mode          string         `json:"mode"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Clock         ClockJSON      `json:"clock"`
	Level         LevelJSON      `json:"level"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        map[string]int `json:"event_counts"`
	Config        ConfigJSON     `json:"config"`
}

// ClockJSON is the tide clock state.
type ClockJSON struct {
	State       string    `json:"state"`
	Face        string    `json:"face"`
	Motor       string    `json:"motor"`
	NextTide    *TideJSON `json:"next_tide"`
	StepsTaken  int       `json:"steps_taken"`
	StepsNeeded int       `json:"steps_needed"`
	TotalSteps  uint64    `json:"total_steps"`
}

// TideJSON is a predicted tide extreme.
type TideJSON struct {
	Kind string `json:"kind"`
	Time string `json:"time"`
}

// LevelJSON is the water-level display state.
type LevelJSON struct {
	Ready          bool     `json:"ready"`
	Power          string   `json:"power"`
	Level          float64  `json:"level"`
	Position       int32    `json:"position"`
	Target         int32    `json:"target"`
	MinLevel       float64  `json:"min_level"`
	MaxLevel       float64  `json:"max_level"`
	Homings        int      `json:"homings"`
	HomingFailures int      `json:"homing_failures"`
	LastFetch      string   `json:"last_fetch,omitempty"`
	FetchedLevel   *float64 `json:"fetched_level,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs       int64  `json:"poll_ms"`
	DebounceMs   int64  `json:"debounce_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
	Station      string `json:"station"`
	Face         string `json:"face"`
	Motor        string `json:"motor"`
	LevelSource  string `json:"level_source"`
	LevelEveryMs int64  `json:"level_every_ms"`
}

// Build converts a snapshot into its JSON form.
func Build(snap Snapshot) StatusInner {
	counts := make(map[string]int, len(snap.Counts))
	for k, v := range snap.Counts {
		counts[string(k)] = v
	}

	power := string(snap.Display.PowerState)
	if power == "" {
		power = string(logic.PowerUnknown)
	}

	inner := StatusInner{
		BootID:        snap.Config.BootID,
		Mode:          string(snap.Mode),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Clock: ClockJSON{
			State:       string(snap.Pacer.State),
			Face:        snap.Pacer.Face.String(),
			Motor:       string(snap.Pacer.Motor),
			StepsTaken:  snap.Pacer.StepsTaken,
			StepsNeeded: snap.Pacer.StepsNeeded,
			TotalSteps:  snap.Pacer.TotalSteps,
		},
		Level: LevelJSON{
			Ready:          snap.Display.Ready,
			Power:          power,
			Level:          snap.Display.Level,
			Position:       snap.Display.Position,
			Target:         snap.Display.Target,
			MinLevel:       snap.Display.MinLevel,
			MaxLevel:       snap.Display.MaxLevel,
			Homings:        snap.Display.Homings,
			HomingFailures: snap.Display.HomingFailures,
		},
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Buffered:  snap.MQTTBuffered,
		},
		Counts: counts,
		Config: ConfigJSON{
			PollMs:       snap.Config.PollMs,
			DebounceMs:   snap.Config.DebounceMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			Station:      snap.Config.Station,
			Face:         snap.Config.Face,
			Motor:        snap.Config.Motor,
			LevelSource:  snap.Config.LevelSource,
			LevelEveryMs: snap.Config.LevelEveryMs,
		},
	}

	if tide := snap.Pacer.NextTide; tide.Available() {
		inner.Clock.NextTide = &TideJSON{
			Kind: tide.Kind.String(),
			Time: tide.Time.UTC().Format(time.RFC3339),
		}
	}
	if f := snap.LastFetch; !f.At.IsZero() {
		inner.Level.LastFetch = f.At.UTC().Format(time.RFC3339)
		if f.OK && !math.IsNaN(f.Level) && !math.IsInf(f.Level, 0) {
			v := f.Level
			inner.Level.FetchedLevel = &v
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Build(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := Build(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

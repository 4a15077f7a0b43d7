// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/tide-display/internal/logic"
)

// Topic is the MQTT topic for display events.
const Topic = "tides/display/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "tides/display/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a display event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Display DisplayPayload `json:"tide_display"`
}

// DisplayPayload contains the event details. Only the fields relevant to
// the event type are present.
type DisplayPayload struct {
	Timestamp   string       `json:"timestamp"`
	Event       string       `json:"event"`
	Tide        *TidePayload `json:"tide,omitempty"`
	StepsNeeded *int         `json:"steps_needed,omitempty"`
	MissedCycle *bool        `json:"missed_cycle,omitempty"`
	WaitSeconds *int64       `json:"wait_s,omitempty"`
	Level       *float64     `json:"level,omitempty"`
	Position    *int32       `json:"position,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// TidePayload is a predicted tide extreme.
type TidePayload struct {
	Kind string `json:"kind"`
	Time string `json:"time"`
}

// FormatPayload creates the JSON payload for a display event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := DisplayPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
	}

	switch event.Type {
	case logic.EventTideAccepted:
		p.Tide = tidePayload(event.Tide)
		p.StepsNeeded = &event.StepsNeeded
		p.MissedCycle = &event.MissedCycle
	case logic.EventClockPaused:
		wait := int64(event.Wait / time.Second)
		p.Tide = tidePayload(event.Tide)
		p.WaitSeconds = &wait
	case logic.EventClockResumed:
		p.Tide = tidePayload(event.Tide)
		p.StepsNeeded = &event.StepsNeeded
	case logic.EventHomed, logic.EventLevelSet:
		p.Level = finite(event.Level)
		p.Position = &event.Position
	case logic.EventLevelRejected:
		p.Level = finite(event.Level)
		p.Reason = event.Reason
	case logic.EventHomingFailed:
		p.Reason = event.Reason
	}

	return json.Marshal(Payload{Display: p})
}

// finite drops levels JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func tidePayload(e logic.TideEvent) *TidePayload {
	if !e.Available() {
		return nil
	}
	return &TidePayload{
		Kind: e.Kind.String(),
		Time: e.Time.UTC().Format(time.RFC3339),
	}
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

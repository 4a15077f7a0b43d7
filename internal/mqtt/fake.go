package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/sweeney/tide-display/internal/logic"
)

// FakePublisher stands in for the broker in tests. Each display event is
// kept next to the tide_display body a subscriber would have decoded.
type FakePublisher struct {
	Events   []logic.Event
	Displays []DisplayPayload // Displays[i] is the body sent for Events[i]

	SystemEvents []SystemEvent

	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish formats the event as the real publisher would and records it.
// An event that cannot be encoded is not recorded.
func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	data, err := FormatPayload(event)
	if err != nil {
		return err
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	f.Events = append(f.Events, event)
	f.Displays = append(f.Displays, p.Display)
	return nil
}

// PublishSystem records the system event once its body is valid JSON.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	data, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("%s: invalid JSON payload", event.Event)
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// Types lists the recorded display event types in publish order.
func (f *FakePublisher) Types() []logic.EventType {
	out := make([]logic.EventType, len(f.Events))
	for i, e := range f.Events {
		out[i] = e.Type
	}
	return out
}

// Count returns how many display events of type typ were published.
func (f *FakePublisher) Count(typ logic.EventType) int {
	n := 0
	for _, e := range f.Events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// LastDisplay returns the most recent body published for typ.
func (f *FakePublisher) LastDisplay(typ logic.EventType) (DisplayPayload, bool) {
	for i := len(f.Events) - 1; i >= 0; i-- {
		if f.Events[i].Type == typ {
			return f.Displays[i], true
		}
	}
	return DisplayPayload{}, false
}

// LastSystem returns the most recent system event named name.
func (f *FakePublisher) LastSystem(name string) (SystemEvent, bool) {
	for i := len(f.SystemEvents) - 1; i >= 0; i-- {
		if f.SystemEvents[i].Event == name {
			return f.SystemEvents[i], true
		}
	}
	return SystemEvent{}, false
}

func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears everything recorded and any injected failures.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}

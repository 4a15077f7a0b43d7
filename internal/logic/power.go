package logic

import "time"

// PowerState is the debounced state of the power-present signal.
type PowerState string

const (
	PowerUnknown   PowerState = "UNKNOWN"
	PowerStableOn  PowerState = "STABLE_ON"
	PowerStableOff PowerState = "STABLE_OFF"
	PowerSettling  PowerState = "SETTLING"
)

// PowerTransition is the one-shot result of a confirmed state change.
type PowerTransition int

const (
	PowerNoChange PowerTransition = iota
	PowerCameOn
	PowerWentOff
)

// DefaultSettle is how long the power signal must hold a new value before
// it is believed.
const DefaultSettle = 100 * time.Millisecond

// PowerMonitor debounces the raw power-present signal.
type PowerMonitor struct {
	settle time.Duration

	// Current stable (debounced) value
	stable bool
	// Whether a first stable value has been established
	baselined bool
	// Pending value and when it was first observed
	settling     bool
	pending      bool
	pendingSince Millis
}

// NewPowerMonitor creates a monitor with the given settle window.
func NewPowerMonitor(settle time.Duration) *PowerMonitor {
	return &PowerMonitor{settle: settle}
}

// Sample feeds one raw reading taken at now. It returns a transition only
// when a changed value has persisted for the whole settle window. The first
// stable value establishes a baseline and is not reported as a transition.
func (m *PowerMonitor) Sample(raw bool, now Millis) PowerTransition {
	if !m.baselined {
		if !m.settling || m.pending != raw {
			// Start observing, or restart after a change
			m.settling = true
			m.pending = raw
			m.pendingSince = now
			return PowerNoChange
		}
		if now.Since(m.pendingSince) >= m.settle {
			m.stable = raw
			m.baselined = true
			m.settling = false
		}
		return PowerNoChange
	}

	if raw == m.stable {
		// Reverted (or never left): abandon any settling
		m.settling = false
		return PowerNoChange
	}

	if !m.settling {
		m.settling = true
		m.pending = raw
		m.pendingSince = now
		return PowerNoChange
	}

	if now.Since(m.pendingSince) < m.settle {
		return PowerNoChange
	}

	m.stable = raw
	m.settling = false
	if raw {
		return PowerCameOn
	}
	return PowerWentOff
}

// Baselined reports whether a first stable value has been established.
func (m *PowerMonitor) Baselined() bool {
	return m.baselined
}

// On reports the confirmed power state. It is false before the baseline.
func (m *PowerMonitor) On() bool {
	return m.baselined && m.stable
}

// State returns the monitor's debounce state.
func (m *PowerMonitor) State() PowerState {
	switch {
	case !m.baselined:
		return PowerUnknown
	case m.settling:
		return PowerSettling
	case m.stable:
		return PowerStableOn
	default:
		return PowerStableOff
	}
}

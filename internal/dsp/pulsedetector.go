package dsp

import "github.com/hfwwv/wwvsync/internal/events"

// PulseDetector is the common shape of the tick and marker detectors:
// accumulate samples into an FFT frame, measure bucket energy, run a
// hysteresis state machine, and occasionally emit one event. The BCD
// time/frequency detectors in internal/bcddet follow the same internal
// skeleton but emit a PulseEvent rather than a DetectorEvent, so they
// don't implement this interface directly.
type PulseDetector interface {
	// ProcessSamples feeds newly arrived detector-path samples and reports
	// at most one event produced as a result (an FFT frame boundary may or
	// may not have been crossed within this call).
	ProcessSamples(samples []complex128) (events.DetectorEvent, bool)

	// Reset clears all filter/accumulator/state-machine history, required
	// on stream discontinuity.
	Reset()
}

// PulseState is the three-state machine shape common to C3 and C4:
// IDLE -> IN_PULSE -> COOLDOWN -> IDLE.
type PulseState int

const (
	StateIdle PulseState = iota
	StateInPulse
	StateCooldown
)

func (s PulseState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInPulse:
		return "IN_PULSE"
	case StateCooldown:
		return "COOLDOWN"
	default:
		return "?"
	}
}
